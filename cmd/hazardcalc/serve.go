package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/dd0wney/cluso-hazard/pkg/graphql"
	"github.com/dd0wney/cluso-hazard/pkg/health"
	"github.com/dd0wney/cluso-hazard/pkg/logging"
	"github.com/dd0wney/cluso-hazard/pkg/metrics"
)

const (
	shutdownTimeout = 30 * time.Second
	healthTimeout   = 5 * time.Second
)

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve jobs and stored results over GraphQL",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	return cmd
}

func serve(ctx context.Context, addr string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

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

	schema, err := graphql.GenerateSchema(jobs, results)
	if err != nil {
		return err
	}
	reg := metrics.DefaultRegistry()

	mux := http.NewServeMux()
	mux.Handle("/graphql", graphql.NewGraphQLHandler(schema, logger))
	mux.Handle("/metrics", promhttp.HandlerFor(reg.GetPrometheusRegistry(), promhttp.HandlerOpts{}))
	hc := health.NewHealthChecker(healthTimeout)
	hc.RegisterReadinessCheck("jobs", health.PingCheck(jobs.Ping))
	hc.RegisterReadinessCheck("results", health.PingCheck(results.Ping))
	hc.RegisterLivenessCheck("memory", health.MemoryCheck(0))
	mux.Handle("/health", hc.HTTPHandler())
	mux.Handle("/health/ready", hc.ReadinessHandler())
	mux.Handle("/health/live", hc.LivenessHandler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           instrument(mux, reg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", logging.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// statusRecorder captures the status code written by a handler
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument records the duration and status of every request, labelled
// by the mux pattern that matched it
func instrument(mux *http.ServeMux, reg *metrics.Registry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reg.HTTPRequestsInFlight.Inc()
		defer reg.HTTPRequestsInFlight.Dec()

		_, route := mux.Handler(r)
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		mux.ServeHTTP(rec, r)
		reg.RecordHTTPRequest(r.Method, route, strconv.Itoa(rec.status), time.Since(start))
	})
}
