package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dd0wney/cluso-hazard/pkg/auth"
	"github.com/dd0wney/cluso-hazard/pkg/calc"
	"github.com/dd0wney/cluso-hazard/pkg/config"
	"github.com/dd0wney/cluso-hazard/pkg/export"
	"github.com/dd0wney/cluso-hazard/pkg/jobstore"
	"github.com/dd0wney/cluso-hazard/pkg/logging"
	"github.com/dd0wney/cluso-hazard/pkg/parallel"
	"github.com/dd0wney/cluso-hazard/pkg/resultstore"
)

// tokenDuration bounds how long a worker token issued for a calculation
// stays valid
const tokenDuration = 24 * time.Hour

// loadConfig reads --config, or returns the defaults when it is not set
func loadConfig() (*config.Config, error) {
	if configPath == "" {
		cfg := config.Default()
		return &cfg, nil
	}
	return config.Load(configPath)
}

func newLogger(cfg *config.Config) logging.Logger {
	level := cfg.LogLevel()
	if logLevel != "" {
		level = logging.ParseLevel(logLevel)
	}
	return logging.NewJSONLogger(os.Stderr, level)
}

func openJobStore(ctx context.Context, cfg *config.Config) (jobstore.Store, error) {
	if cfg.Output.DatabaseURL == "" {
		return jobstore.NewMemoryStore(), nil
	}
	return jobstore.NewPGStore(ctx, cfg.Output.DatabaseURL)
}

func openResultStore(cfg *config.Config, logger logging.Logger) (*resultstore.Store, error) {
	if cfg.Output.InMemory || cfg.Output.ResultDir == "" {
		return resultstore.OpenInMemory()
	}
	return resultstore.Open(resultstore.Config{
		Path:       cfg.Output.ResultDir,
		SyncWrites: true,
		Logger:     logger,
	})
}

// newExporter returns nil when no bucket is configured
func newExporter(ctx context.Context, cfg *config.Config, logger logging.Logger) (calc.Exporter, error) {
	if cfg.Output.S3Bucket == "" {
		return nil, nil
	}
	client, err := export.NewS3Client(ctx, export.ClientOptions{
		Region:   cfg.Output.S3Region,
		Endpoint: cfg.Output.S3Endpoint,
	})
	if err != nil {
		return nil, err
	}
	return export.NewS3Exporter(client, cfg.Output.S3Bucket, cfg.Output.S3Prefix, logger)
}

func newTokens(secret string) (*auth.TokenManager, error) {
	if secret == "" {
		return nil, nil
	}
	return auth.NewTokenManager(secret, tokenDuration)
}

// poolFactory opens a local pool or, for a cluster, binds the coordinator
// sockets remote workers connect to
func poolFactory(cfg *config.Config, logger logging.Logger) (calc.PoolFactory, error) {
	pc := cfg.Pool
	switch pc.Kind {
	case config.PoolLocal:
		return func(_ string, handler parallel.Handler) (parallel.Pool, error) {
			return parallel.NewLocalPool(pc.Workers, handler, logger)
		}, nil
	case config.PoolCluster:
		tokens, err := newTokens(pc.TokenSecret)
		if err != nil {
			return nil, err
		}
		return func(calcID string, _ parallel.Handler) (parallel.Pool, error) {
			return parallel.NewClusterPool(parallel.ClusterConfig{
				TaskURL:       pc.TaskURL,
				ResultURL:     pc.ResultURL,
				Capacity:      pc.Capacity,
				CalculationID: calcID,
				Tokens:        tokens,
				SendTimeout:   pc.SendTimeout,
				Logger:        logger,
			})
		}, nil
	default:
		return nil, fmt.Errorf("unknown pool kind %q", pc.Kind)
	}
}
