package parallel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/pull"
	"go.nanomsg.org/mangos/v3/protocol/push"
	"golang.org/x/sync/errgroup"

	"github.com/dd0wney/cluso-hazard/pkg/auth"
	"github.com/dd0wney/cluso-hazard/pkg/logging"
)

// WorkerConfig configures a remote worker process
type WorkerConfig struct {
	Name          string
	TaskURL       string // coordinator PUSH address to dial
	ResultURL     string // coordinator PULL address to dial
	Concurrency   int
	SendTimeout   time.Duration      // bound on pushing one outcome back, default 30s
	CalculationID string             // empty accepts any calculation the token allows
	Tokens        *auth.TokenManager // nil runs jobs without a token check
	Handler       Handler
	Logger        logging.Logger
}

// ServeWorker pulls jobs from a coordinator and pushes back their outcomes
// until ctx is cancelled.
func ServeWorker(ctx context.Context, cfg WorkerConfig) error {
	if cfg.Handler == nil {
		return fmt.Errorf("worker needs a handler")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNopLogger()
	}
	logger := cfg.Logger.With(logging.Component("worker"), logging.String("worker", cfg.Name))

	jobs, err := pull.NewSocket()
	if err != nil {
		return fmt.Errorf("failed to create PULL socket: %w", err)
	}
	defer jobs.Close()
	outs, err := push.NewSocket()
	if err != nil {
		return fmt.Errorf("failed to create PUSH socket: %w", err)
	}
	defer outs.Close()

	for _, s := range []mangos.Socket{jobs, outs} {
		if err := s.SetOption(mangos.OptionDialAsynch, true); err != nil {
			return fmt.Errorf("failed to set asynchronous dial: %w", err)
		}
	}
	if err := jobs.SetOption(mangos.OptionRecvDeadline, pollInterval); err != nil {
		return fmt.Errorf("failed to set receive deadline: %w", err)
	}
	if err := outs.SetOption(mangos.OptionSendDeadline, cfg.SendTimeout); err != nil {
		return fmt.Errorf("failed to set send deadline: %w", err)
	}
	if err := jobs.Dial(cfg.TaskURL); err != nil {
		return fmt.Errorf("failed to dial %s: %w", cfg.TaskURL, err)
	}
	if err := outs.Dial(cfg.ResultURL); err != nil {
		return fmt.Errorf("failed to dial %s: %w", cfg.ResultURL, err)
	}
	logger.Info("worker connected",
		logging.String("task_url", cfg.TaskURL),
		logging.String("result_url", cfg.ResultURL),
		logging.Int("concurrency", cfg.Concurrency))

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Concurrency; i++ {
		g.Go(func() error {
			return serveLoop(gctx, cfg, jobs, outs, logger)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func serveLoop(ctx context.Context, cfg WorkerConfig, jobs, outs mangos.Socket, logger logging.Logger) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		msg, err := jobs.Recv()
		if err != nil {
			if errors.Is(err, mangos.ErrRecvTimeout) {
				continue
			}
			if errors.Is(err, mangos.ErrClosed) {
				return nil
			}
			return fmt.Errorf("job receive failed: %w", err)
		}

		var env jobEnvelope
		if err := json.Unmarshal(msg, &env); err != nil {
			logger.Warn("dropping malformed job", logging.Error(err))
			continue
		}

		reply := handleJob(ctx, cfg, env)
		if reply.Error != "" {
			logger.Warn("job failed",
				logging.TaskID(env.Job.ID),
				logging.Attempt(env.Job.Attempt),
				logging.String("error", reply.Error))
		}
		data, err := json.Marshal(reply)
		if err != nil {
			return fmt.Errorf("failed to encode outcome of job %d: %w", env.Job.ID, err)
		}
		if err := outs.Send(data); err != nil {
			if errors.Is(err, mangos.ErrClosed) {
				return nil
			}
			if errors.Is(err, mangos.ErrSendTimeout) {
				// the coordinator retries the job after its own timeout
				logger.Warn("outcome dropped", logging.TaskID(env.Job.ID), logging.Error(err))
				continue
			}
			return fmt.Errorf("failed to send outcome of job %d: %w", env.Job.ID, err)
		}
	}
}

func handleJob(ctx context.Context, cfg WorkerConfig, env jobEnvelope) outcomeEnvelope {
	reply := outcomeEnvelope{
		CalculationID: env.CalculationID,
		JobID:         env.Job.ID,
		Attempt:       env.Job.Attempt,
		Worker:        cfg.Name,
	}

	if cfg.Tokens != nil {
		calcID := cfg.CalculationID
		if calcID == "" {
			calcID = env.CalculationID
		}
		if err := cfg.Tokens.Authorize(ctx, env.Token, calcID, auth.RoleWorker); err != nil {
			reply.Error = "unauthorized: " + err.Error()
			return reply
		}
	}

	start := time.Now()
	heap := sampleHeap(ctx)
	payload, err := invoke(ctx, cfg.Handler, env.Job.Payload)
	reply.PeakHeap = heap.Stop()
	reply.Elapsed = time.Since(start)
	if err != nil {
		reply.Error = err.Error()
		return reply
	}
	reply.Payload = payload
	return reply
}
