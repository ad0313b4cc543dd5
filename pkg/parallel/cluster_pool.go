package parallel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/pull"
	"go.nanomsg.org/mangos/v3/protocol/push"

	// Register all transports
	_ "go.nanomsg.org/mangos/v3/transport/all"

	"github.com/dd0wney/cluso-hazard/pkg/auth"
	"github.com/dd0wney/cluso-hazard/pkg/logging"
)

const pollInterval = 100 * time.Millisecond

// jobEnvelope is what travels from the coordinator to a worker
type jobEnvelope struct {
	CalculationID string `json:"calc_id"`
	Token         string `json:"token,omitempty"`
	Job           Job    `json:"job"`
}

// outcomeEnvelope is what travels back from a worker
type outcomeEnvelope struct {
	CalculationID string        `json:"calc_id"`
	JobID         uint64        `json:"job_id"`
	Attempt       int           `json:"attempt"`
	Payload       []byte        `json:"payload,omitempty"`
	Error         string        `json:"error,omitempty"`
	Worker        string        `json:"worker"`
	Elapsed       time.Duration `json:"elapsed"`
	PeakHeap      uint64        `json:"peak_heap"`
}

// ClusterConfig configures the coordinator side of a cluster pool
type ClusterConfig struct {
	TaskURL       string // PUSH socket jobs are listened on, e.g. tcp://*:7001
	ResultURL     string // PULL socket outcomes are listened on
	Capacity      int
	CalculationID string
	Tokens        *auth.TokenManager // nil disables job tokens
	SendTimeout   time.Duration
	Logger        logging.Logger
}

// ClusterPool dispatches jobs to remote workers over a mangos PUSH/PULL pair.
// Workers connect to it with ServeWorker.
type ClusterPool struct {
	cfg     ClusterConfig
	token   string
	jobs    mangos.Socket
	outs    mangos.Socket
	results chan Outcome
	logger  logging.Logger

	ctx    context.Context
	cancel context.CancelFunc

	wg     sync.WaitGroup
	once   sync.Once
	mu     sync.RWMutex
	closed bool // Protected by mu
}

// NewClusterPool binds both sockets and starts collecting outcomes
func NewClusterPool(cfg ClusterConfig) (*ClusterPool, error) {
	if cfg.TaskURL == "" || cfg.ResultURL == "" {
		return nil, fmt.Errorf("cluster pool needs a task and a result url")
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = 64
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNopLogger()
	}

	p := &ClusterPool{
		cfg:     cfg,
		results: make(chan Outcome, cfg.Capacity),
		logger:  cfg.Logger.With(logging.Component("cluster-pool"), logging.CalculationID(cfg.CalculationID)),
	}
	if cfg.Tokens != nil {
		token, err := cfg.Tokens.GenerateToken(cfg.CalculationID, auth.RoleWorker)
		if err != nil {
			return nil, fmt.Errorf("failed to issue worker token: %w", err)
		}
		p.token = token
	}

	// Close whatever was opened if a later step fails
	var opened []mangos.Socket
	fail := func(err error) (*ClusterPool, error) {
		for _, s := range opened {
			s.Close()
		}
		return nil, err
	}

	jobs, err := push.NewSocket()
	if err != nil {
		return fail(fmt.Errorf("failed to create PUSH socket: %w", err))
	}
	opened = append(opened, jobs)
	if err := jobs.SetOption(mangos.OptionWriteQLen, cfg.Capacity); err != nil {
		return fail(fmt.Errorf("failed to size PUSH queue: %w", err))
	}
	if cfg.SendTimeout > 0 {
		if err := jobs.SetOption(mangos.OptionSendDeadline, cfg.SendTimeout); err != nil {
			return fail(fmt.Errorf("failed to set send deadline: %w", err))
		}
	}
	if err := jobs.Listen(cfg.TaskURL); err != nil {
		return fail(fmt.Errorf("failed to bind PUSH socket: %w", err))
	}

	outs, err := pull.NewSocket()
	if err != nil {
		return fail(fmt.Errorf("failed to create PULL socket: %w", err))
	}
	opened = append(opened, outs)
	if err := outs.SetOption(mangos.OptionRecvDeadline, pollInterval); err != nil {
		return fail(fmt.Errorf("failed to set receive deadline: %w", err))
	}
	if err := outs.Listen(cfg.ResultURL); err != nil {
		return fail(fmt.Errorf("failed to bind PULL socket: %w", err))
	}

	p.jobs, p.outs = jobs, outs
	p.ctx, p.cancel = context.WithCancel(context.Background())

	p.wg.Add(1)
	go p.collect()

	p.logger.Info("cluster pool listening",
		logging.String("task_url", cfg.TaskURL),
		logging.String("result_url", cfg.ResultURL))
	return p, nil
}

// collect receives outcome envelopes until the pool is cancelled or closed
func (p *ClusterPool) collect() {
	defer p.wg.Done()

	for {
		msg, err := p.outs.Recv()
		if p.ctx.Err() != nil {
			return
		}
		if err != nil {
			if errors.Is(err, mangos.ErrRecvTimeout) {
				continue
			}
			if errors.Is(err, mangos.ErrClosed) {
				return
			}
			p.logger.Warn("outcome receive failed", logging.Error(err))
			continue
		}

		var env outcomeEnvelope
		if err := json.Unmarshal(msg, &env); err != nil {
			p.logger.Warn("dropping malformed outcome", logging.Error(err), logging.Bytes("size", int64(len(msg))))
			continue
		}
		if env.CalculationID != p.cfg.CalculationID {
			// a late reply to a job of another calculation on the same urls
			p.logger.Warn("dropping outcome of another calculation",
				logging.String("outcome_calc_id", env.CalculationID),
				logging.TaskID(env.JobID),
				logging.Attempt(env.Attempt))
			continue
		}
		out := Outcome{
			JobID:    env.JobID,
			Attempt:  env.Attempt,
			Payload:  env.Payload,
			Elapsed:  env.Elapsed,
			PeakHeap: env.PeakHeap,
		}
		if env.Error != "" {
			out.Payload = nil
			out.Err = &RemoteError{Worker: env.Worker, Message: env.Error}
		}

		select {
		case p.results <- out:
		case <-p.ctx.Done():
			return
		}
	}
}

// Submit pushes a job to the next available worker
func (p *ClusterPool) Submit(ctx context.Context, job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}
	if p.ctx.Err() != nil {
		return ErrPoolCancelled
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := json.Marshal(jobEnvelope{
		CalculationID: p.cfg.CalculationID,
		Token:         p.token,
		Job:           job,
	})
	if err != nil {
		return fmt.Errorf("failed to encode job %d: %w", job.ID, err)
	}
	if err := p.jobs.Send(msg); err != nil {
		return fmt.Errorf("failed to send job %d: %w", job.ID, err)
	}
	return nil
}

// Results returns the outcome channel, closed by Close
func (p *ClusterPool) Results() <-chan Outcome {
	return p.results
}

// Cancel stops collecting outcomes; jobs already on remote workers are abandoned
func (p *ClusterPool) Cancel() {
	p.cancel()
}

// Capacity returns the size of the outgoing job queue
func (p *ClusterPool) Capacity() int {
	return p.cfg.Capacity
}

// Close releases both sockets
func (p *ClusterPool) Close() error {
	var firstErr error
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()

		p.cancel()
		if err := p.jobs.Close(); err != nil {
			firstErr = err
		}
		if err := p.outs.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		p.wg.Wait()
		close(p.results)
	})
	return firstErr
}
