package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-hazard/pkg/hazard"
	"github.com/dd0wney/cluso-hazard/pkg/logging"
)

const engineYAML = `
calculation:
  mode: event_based
  investigation_time: 1
  ses_per_logic_tree_path: 100
  number_of_logic_tree_samples: 10
  random_seed: 23
  maximum_distance:
    default: 300
    Stable Shallow Crust: 150
  imtls:
    - imt: PGA
      levels: [0.05, 0.1, 0.2]
    - imt: SA(1.0)
      levels: [0.01, 0.02]
scheduler:
  concurrent_tasks: 8
  task_timeout: 2m
pool:
  kind: cluster
  task_url: tcp://*:7001
  result_url: tcp://*:7002
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(engineYAML))
	require.NoError(t, err)

	assert.Equal(t, hazard.KindEventBased, cfg.Calculation.Kind())
	assert.Equal(t, 100, cfg.Calculation.SESPerPath)
	assert.Equal(t, int64(23), cfg.Calculation.RandomSeed)
	assert.Equal(t, 150.0, cfg.Calculation.MaximumDistance["Stable Shallow Crust"])
	require.Len(t, cfg.Calculation.IMTLs, 2)
	assert.Equal(t, "SA(1.0)", cfg.Calculation.IMTLs[1].IMT)
	assert.Equal(t, 8, cfg.Scheduler.ConcurrentTasks)
	assert.Equal(t, 2*time.Minute, cfg.Scheduler.TaskTimeout)
	assert.Equal(t, PoolCluster, cfg.Pool.Kind)

	// untouched keys keep their defaults
	assert.Equal(t, 3, cfg.Scheduler.MaxAttempts)
	assert.Equal(t, DefaultWeightTolerance, cfg.Calculation.WeightTolerance)
	assert.Equal(t, 30*time.Second, cfg.Pool.SendTimeout)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("calculation:\n  investigaton_time: 50\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "investigaton_time")
}

func TestValidateCollectsEveryViolation(t *testing.T) {
	cfg := Default()
	cfg.Calculation.Mode = "scenario"
	cfg.Calculation.InvestigationTime = 0
	cfg.Calculation.IMTLs = []hazard.IMTLevels{
		{IMT: "PGA", Levels: []float64{0.2, 0.1}},
		{IMT: "PGA", Levels: []float64{0.1}},
	}
	cfg.Calculation.Quantiles = []float64{1.5}
	cfg.Calculation.PoEs = []float64{0}
	cfg.Scheduler.MaxAttempts = 0
	cfg.Pool.Kind = PoolCluster
	cfg.Pool.TokenSecret = "short"

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		"Mode", "InvestigationTime", "MaxAttempts",
		"strictly increasing", `IMT "PGA" repeated`,
		"calculation.quantiles", "calculation.poes",
		"pool.task_url", "pool.result_url", "pool.token_secret",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidateDefaultsNeedIMTs(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one IMT")

	cfg.Calculation.IMTLs = []hazard.IMTLevels{{IMT: "PGA", Levels: []float64{0.1, 0.2}}}
	assert.NoError(t, cfg.Validate())
}

func TestValidateEventBasedNeedsSES(t *testing.T) {
	cfg := Default()
	cfg.Calculation.IMTLs = []hazard.IMTLevels{{IMT: "PGA", Levels: []float64{0.1}}}
	cfg.Calculation.Mode = string(hazard.KindEventBased)
	cfg.Calculation.SESPerPath = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ses_per_logic_tree_path")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(engineYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Scheduler.ConcurrentTasks)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLogLevel(t *testing.T) {
	cfg := Default()
	cfg.Logging.Level = "WARN"

	t.Setenv("LOG_LEVEL", "")
	assert.Equal(t, logging.WarnLevel, cfg.LogLevel())

	t.Setenv("LOG_LEVEL", "debug")
	assert.Equal(t, logging.DebugLevel, cfg.LogLevel())
}
