package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dd0wney/cluso-hazard/pkg/calc"
	"github.com/dd0wney/cluso-hazard/pkg/inputs"
	"github.com/dd0wney/cluso-hazard/pkg/logging"
	"github.com/dd0wney/cluso-hazard/pkg/metrics"
	"github.com/dd0wney/cluso-hazard/pkg/telemetry"
)

// runSummary is printed on stdout when a calculation completes
type runSummary struct {
	CalculationID string `json:"calculation_id"`
	Kind          string `json:"kind"`
	Realizations  int    `json:"realizations"`
	Tasks         int    `json:"tasks"`
	Digest        string `json:"digest"`
}

func newRunCmd() *cobra.Command {
	var inputsPath string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one hazard calculation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCalculation(cmd, inputsPath)
		},
	}
	cmd.Flags().StringVarP(&inputsPath, "inputs", "i", "", "sites, source models and logic trees (yaml)")
	_ = cmd.MarkFlagRequired("inputs")
	return cmd
}

func runCalculation(cmd *cobra.Command, inputsPath string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	in, err := inputs.Load(inputsPath)
	if err != nil {
		return err
	}
	if err := in.Validate(); err != nil {
		return err
	}
	registry, err := in.Registry()
	if err != nil {
		return err
	}

	shutdown, err := telemetry.Init(ctx, cfg.Telemetry, os.Stderr)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("telemetry shutdown failed", logging.Error(err))
		}
	}()

	jobs, err := openJobStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer jobs.Close()

	results, err := openResultStore(cfg, logger)
	if err != nil {
		return err
	}
	defer results.Close()

	exporter, err := newExporter(ctx, cfg, logger)
	if err != nil {
		return err
	}
	pools, err := poolFactory(cfg, logger)
	if err != nil {
		return err
	}

	c, err := calc.New(calc.Options{
		Config:   cfg,
		Pools:    pools,
		Jobs:     jobs,
		Results:  results,
		Exporter: exporter,
		Logger:   logger,
		Metrics:  metrics.DefaultRegistry(),
	})
	if err != nil {
		return err
	}

	res, err := c.Run(ctx, calc.Inputs{
		Description:     inputsPath,
		Sites:           in.SiteCollection(),
		SourceModels:    in.SourceModels,
		SourceModelTree: in.SourceModelTree,
		GMMTree:         in.GMMTree,
		Registry:        registry,
	})
	if err != nil {
		var cerr *calc.CalculationError
		if errors.As(err, &cerr) {
			return fmt.Errorf("calculation %s failed: %w", cerr.CalculationID, err)
		}
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(runSummary{
		CalculationID: res.CalculationID,
		Kind:          string(res.Kind),
		Realizations:  len(res.Realizations),
		Tasks:         res.NumTasks,
		Digest:        res.Digest,
	})
}
