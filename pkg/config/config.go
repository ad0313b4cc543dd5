// Package config holds the engine configuration: calculation parameters,
// scheduling, pool, output and observability settings.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dd0wney/cluso-hazard/pkg/hazard"
	"github.com/dd0wney/cluso-hazard/pkg/logging"
	"github.com/dd0wney/cluso-hazard/pkg/telemetry"
	"github.com/dd0wney/cluso-hazard/pkg/validation"
)

// DefaultWeightTolerance is the sum-to-one tolerance of sibling branch weights
const DefaultWeightTolerance = 1e-6

const (
	PoolLocal   = "local"
	PoolCluster = "cluster"
)

// Config is the engine configuration
type Config struct {
	Calculation CalculationConfig `yaml:"calculation"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Pool        PoolConfig        `yaml:"pool"`
	Output      OutputConfig      `yaml:"output"`
	Logging     LoggingConfig     `yaml:"logging"`
	Telemetry   telemetry.Config  `yaml:"telemetry"`
}

// CalculationConfig holds the hazard parameters of a calculation
type CalculationConfig struct {
	Mode              string             `yaml:"mode" validate:"oneof=classical event_based"`
	InvestigationTime float64            `yaml:"investigation_time" validate:"gt=0"`
	TruncationLevel   float64            `yaml:"truncation_level" validate:"gte=0"` // 0 = untruncated
	MaximumDistance   map[string]float64 `yaml:"maximum_distance"`                  // km per TRT plus "default"
	IMTLs             []hazard.IMTLevels `yaml:"imtls"`
	NumSamples        int                `yaml:"number_of_logic_tree_samples" validate:"gte=0"`
	RandomSeed        int64              `yaml:"random_seed"`
	SESPerPath        int                `yaml:"ses_per_logic_tree_path" validate:"gte=0"`
	PoEs              []float64          `yaml:"poes"`
	Quantiles         []float64          `yaml:"quantiles"`
	MeanCurves        bool               `yaml:"mean_curves"`
	WeightTolerance   float64            `yaml:"weight_tolerance" validate:"gt=0"`
}

// Kind returns the task kind of the calculation mode
func (c CalculationConfig) Kind() hazard.Kind {
	return hazard.Kind(c.Mode)
}

// SchedulerConfig controls task planning, dispatch and retries
type SchedulerConfig struct {
	ConcurrentTasks int           `yaml:"concurrent_tasks" validate:"gt=0"`
	MaxWeight       float64       `yaml:"max_weight" validate:"gte=0"` // 0 = derive from concurrent_tasks
	MinWeight       float64       `yaml:"min_weight" validate:"gte=0"`
	MaxAttempts     int           `yaml:"max_attempts" validate:"gte=1"`
	TaskTimeout     time.Duration `yaml:"task_timeout"` // 0 = none
	MaxInFlight     int           `yaml:"max_in_flight" validate:"gte=0"`
}

// PoolConfig selects where tasks run
type PoolConfig struct {
	Kind        string        `yaml:"kind" validate:"oneof=local cluster"`
	Workers     int           `yaml:"workers" validate:"gte=0"` // 0 = one per CPU
	Capacity    int           `yaml:"capacity" validate:"gte=0"`
	TaskURL     string        `yaml:"task_url"`
	ResultURL   string        `yaml:"result_url"`
	TokenSecret string        `yaml:"token_secret"`
	SendTimeout time.Duration `yaml:"send_timeout"`
}

// OutputConfig controls persistence and export of frozen results
type OutputConfig struct {
	ResultDir   string `yaml:"result_dir"` // empty keeps results in memory only
	InMemory    bool   `yaml:"in_memory"`
	S3Bucket    string `yaml:"s3_bucket"`
	S3Prefix    string `yaml:"s3_prefix"`
	S3Region    string `yaml:"s3_region"`
	S3Endpoint  string `yaml:"s3_endpoint"`  // S3-compatible service, e.g. R2 or MinIO
	DatabaseURL string `yaml:"database_url"` // empty uses the in-memory job store
}

// LoggingConfig sets the log level
type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=DEBUG INFO WARN ERROR debug info warn error"`
}

// Default returns a configuration with safe defaults
func Default() Config {
	return Config{
		Calculation: CalculationConfig{
			Mode:              string(hazard.KindClassical),
			InvestigationTime: 50,
			TruncationLevel:   3,
			MaximumDistance:   map[string]float64{"default": 200},
			SESPerPath:        1,
			MeanCurves:        true,
			WeightTolerance:   DefaultWeightTolerance,
		},
		Scheduler: SchedulerConfig{
			ConcurrentTasks: 64,
			MinWeight:       100,
			MaxAttempts:     3,
		},
		Pool: PoolConfig{
			Kind:        PoolLocal,
			Capacity:    64,
			SendTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "INFO",
		},
		Telemetry: telemetry.DefaultConfig(),
	}
}

// Load reads a yaml file over the defaults and validates the result
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes yaml over the defaults and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every violation of the configuration together
func (c *Config) Validate() error {
	cv := validation.NewConfigValidator("config")
	cv.Add(validation.Struct(c)...)

	calc := c.Calculation
	cv.When(len(calc.IMTLs) == 0, func(cv *validation.ConfigValidator) {
		cv.Custom("calculation.imtls", func() error { return errors.New("at least one IMT is required") })
	})
	seen := make(map[string]bool)
	for _, il := range calc.IMTLs {
		cv.Required("calculation.imtls.imt", il.IMT)
		if seen[il.IMT] {
			cv.Custom("calculation.imtls", func() error { return fmt.Errorf("IMT %q repeated", il.IMT) })
		}
		seen[il.IMT] = true
		cv.Increasing("calculation.imtls."+il.IMT, il.Levels)
	}
	for trt, d := range calc.MaximumDistance {
		cv.PositiveFloat("calculation.maximum_distance."+trt, d)
	}
	for _, q := range calc.Quantiles {
		cv.RangeFloat("calculation.quantiles", q, 0, 1)
	}
	for _, poe := range calc.PoEs {
		if poe <= 0 || poe > 1 {
			cv.Custom("calculation.poes", func() error { return fmt.Errorf("poe %v outside (0, 1]", poe) })
		}
	}
	cv.When(calc.Kind() == hazard.KindEventBased, func(cv *validation.ConfigValidator) {
		cv.Positive("calculation.ses_per_logic_tree_path", calc.SESPerPath)
	})

	cv.NonNegativeDuration("scheduler.task_timeout", c.Scheduler.TaskTimeout)
	cv.When(c.Scheduler.MaxWeight > 0 && c.Scheduler.MinWeight > c.Scheduler.MaxWeight, func(cv *validation.ConfigValidator) {
		cv.Custom("scheduler.min_weight", func() error {
			return fmt.Errorf("%v exceeds max_weight %v", c.Scheduler.MinWeight, c.Scheduler.MaxWeight)
		})
	})

	cv.NonNegativeDuration("pool.send_timeout", c.Pool.SendTimeout)
	cv.When(c.Pool.Kind == PoolCluster, func(cv *validation.ConfigValidator) {
		cv.Required("pool.task_url", c.Pool.TaskURL).
			Required("pool.result_url", c.Pool.ResultURL)
	})
	cv.When(c.Pool.TokenSecret != "" && len(c.Pool.TokenSecret) < 32, func(cv *validation.ConfigValidator) {
		cv.Custom("pool.token_secret", func() error { return errors.New("must be at least 32 characters") })
	})

	cv.When(c.Output.S3Prefix != "" && c.Output.S3Bucket == "", func(cv *validation.ConfigValidator) {
		cv.Required("output.s3_bucket", c.Output.S3Bucket)
	})
	return cv.Validate()
}

// LogLevel returns the configured level; the LOG_LEVEL environment variable
// takes precedence
func (c *Config) LogLevel() logging.Level {
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		return logging.ParseLevel(env)
	}
	return logging.ParseLevel(c.Logging.Level)
}
