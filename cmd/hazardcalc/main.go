// Command hazardcalc runs probabilistic seismic hazard calculations, serves
// remote workers for them and exposes their results over GraphQL.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "hazardcalc",
		Short:         "Probabilistic seismic hazard calculator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "calculation config file (yaml)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level, overrides the config and LOG_LEVEL")

	root.AddCommand(newRunCmd(), newWorkerCmd(), newServeCmd())
	return root
}
