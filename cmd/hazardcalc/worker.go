package main

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/dd0wney/cluso-hazard/pkg/hazard"
	"github.com/dd0wney/cluso-hazard/pkg/inputs"
	"github.com/dd0wney/cluso-hazard/pkg/parallel"
)

func newWorkerCmd() *cobra.Command {
	var (
		inputsPath  string
		name        string
		taskURL     string
		resultURL   string
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run tasks pushed by a coordinator until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			// the worker only needs the ground-motion models of the inputs
			in, err := inputs.Load(inputsPath)
			if err != nil {
				return err
			}
			registry, err := in.Registry()
			if err != nil {
				return err
			}

			if taskURL == "" {
				taskURL = cfg.Pool.TaskURL
			}
			if resultURL == "" {
				resultURL = cfg.Pool.ResultURL
			}
			if name == "" {
				name, _ = os.Hostname()
			}
			tokens, err := newTokens(cfg.Pool.TokenSecret)
			if err != nil {
				return err
			}

			err = parallel.ServeWorker(cmd.Context(), parallel.WorkerConfig{
				Name:        name,
				TaskURL:     taskURL,
				ResultURL:   resultURL,
				Concurrency: concurrency,
				SendTimeout: cfg.Pool.SendTimeout,
				Tokens:      tokens,
				Handler:     hazard.Handler(registry),
				Logger:      logger,
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&inputsPath, "inputs", "i", "", "inputs file providing the ground-motion models")
	cmd.Flags().StringVar(&name, "name", "", "worker name reported in outcomes (default: hostname)")
	cmd.Flags().StringVar(&taskURL, "task-url", "", "coordinator task address, e.g. tcp://coordinator:7001")
	cmd.Flags().StringVar(&resultURL, "result-url", "", "coordinator result address, e.g. tcp://coordinator:7002")
	cmd.Flags().IntVar(&concurrency, "concurrency", 1, "tasks run at once")
	_ = cmd.MarkFlagRequired("inputs")
	return cmd
}
