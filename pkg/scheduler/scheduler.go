package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dd0wney/cluso-hazard/pkg/logging"
	"github.com/dd0wney/cluso-hazard/pkg/monitor"
	"github.com/dd0wney/cluso-hazard/pkg/parallel"
	"github.com/dd0wney/cluso-hazard/pkg/telemetry"
)

// DefaultMaxAttempts is the number of attempts a task gets by default
const DefaultMaxAttempts = 3

// Config controls dispatch and retries
type Config struct {
	Kind        string        // task kind label for diagnostics
	MaxAttempts int           // attempts per task, including the first
	MaxInFlight int           // zero means the pool capacity
	TaskTimeout time.Duration // zero disables attempt timeouts
}

// Encoder builds the payload of a task
type Encoder func(spec TaskSpec) ([]byte, error)

// FoldFunc consumes the result payload of a task. It is called from the
// scheduler goroutine only, at most once per task.
type FoldFunc func(spec TaskSpec, payload []byte) error

// Scheduler dispatches tasks to a pool and folds their results
type Scheduler struct {
	cfg     Config
	monitor *monitor.Monitor
	logger  logging.Logger
}

// New creates a scheduler reporting to mon
func New(cfg Config, mon *monitor.Monitor) *Scheduler {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if mon == nil {
		mon = monitor.New("", nil, nil)
	}
	return &Scheduler{
		cfg:     cfg,
		monitor: mon,
		logger:  mon.Logger().With(logging.Component("scheduler")),
	}
}

type attemptKey struct {
	task    uint64
	attempt int
}

// taskState tracks one task across its attempts
type taskState struct {
	spec     TaskSpec
	attempts int       // attempts submitted so far
	current  int       // attempt counted as in flight, zero when none
	deadline time.Time // of the current attempt
	sent     int
	started  time.Time
	done     bool
}

// run holds the state of one Run call; only the Run goroutine touches it
type run struct {
	s        *Scheduler
	ctx      context.Context
	pool     parallel.Pool
	encode   Encoder
	fold     FoldFunc
	tasks    map[uint64]*taskState
	pending  []*taskState
	inflight int
	// submitted attempts whose outcome has not arrived, with the time after
	// which a timed-out one is forgotten
	outstanding map[attemptKey]time.Time
	spans       map[attemptKey]trace.Span
	completed   int
}

// Run dispatches every spec to pool and folds each successful result exactly
// once. It returns when every task is folded, when a task exhausts its
// attempts (TaskExecutionError) or when ctx is cancelled; in the last two
// cases the pool is cancelled. Run does not close the pool.
func (s *Scheduler) Run(ctx context.Context, specs []TaskSpec, pool parallel.Pool, encode Encoder, fold FoldFunc) error {
	r := &run{
		s:           s,
		ctx:         ctx,
		pool:        pool,
		encode:      encode,
		fold:        fold,
		tasks:       make(map[uint64]*taskState, len(specs)),
		outstanding: make(map[attemptKey]time.Time),
		spans:       make(map[attemptKey]trace.Span),
	}
	for _, spec := range specs {
		if _, dup := r.tasks[spec.ID]; dup {
			return fmt.Errorf("duplicated task id %d", spec.ID)
		}
		st := &taskState{spec: spec}
		r.tasks[spec.ID] = st
		r.pending = append(r.pending, st)
	}

	err := r.loop()
	if err != nil {
		pool.Cancel()
		for key, span := range r.spans {
			telemetry.End(span, err)
			delete(r.spans, key)
		}
	}
	return err
}

func (r *run) limit() int {
	limit := r.pool.Capacity()
	if r.s.cfg.MaxInFlight > 0 && r.s.cfg.MaxInFlight < limit {
		limit = r.s.cfg.MaxInFlight
	}
	if limit < 1 {
		limit = 1
	}
	return limit
}

func (r *run) loop() error {
	limit := r.limit()
	var tick <-chan time.Time
	if r.s.cfg.TaskTimeout > 0 {
		ticker := time.NewTicker(tickInterval(r.s.cfg.TaskTimeout))
		defer ticker.Stop()
		tick = ticker.C
	}

	for r.completed < len(r.tasks) {
		// timed-out attempts may still be running, so they keep counting
		// against the pool until their outcome arrives or is forgotten
		for len(r.pending) > 0 && r.inflight < limit && len(r.outstanding) < 2*limit {
			st := r.pending[0]
			r.pending = r.pending[1:]
			if err := r.submit(st); err != nil {
				return err
			}
		}

		select {
		case <-r.ctx.Done():
			return r.ctx.Err()
		case out, ok := <-r.pool.Results():
			if !ok {
				return ErrResultsClosed
			}
			if err := r.handle(out); err != nil {
				return err
			}
		case now := <-tick:
			if err := r.expire(now); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *run) submit(st *taskState) error {
	if st.done {
		return nil
	}
	payload, err := r.encode(st.spec)
	if err != nil {
		return r.terminal(st, fmt.Errorf("encode: %w", err))
	}

	st.attempts++
	key := attemptKey{st.spec.ID, st.attempts}
	if st.started.IsZero() {
		st.started = time.Now()
	}
	st.sent += len(payload)

	_, span := telemetry.StartSpan(r.ctx, "task.attempt",
		attribute.Int64("task_id", int64(st.spec.ID)),
		attribute.Int("grp_id", st.spec.GroupID),
		attribute.Int("attempt", st.attempts),
		attribute.Int("bytes_sent", len(payload)))

	err = r.pool.Submit(r.ctx, parallel.Job{ID: st.spec.ID, Attempt: st.attempts, Payload: payload})
	if err != nil {
		telemetry.End(span, err)
		if r.ctx.Err() != nil {
			return r.ctx.Err()
		}
		if errors.Is(err, parallel.ErrPoolClosed) || errors.Is(err, parallel.ErrPoolCancelled) {
			return err
		}
		r.logger().Warn("task submission failed",
			logging.TaskID(st.spec.ID),
			logging.Attempt(st.attempts),
			logging.Error(err))
		return r.retryOrFail(st, err)
	}

	r.s.monitor.RecordDispatch(r.s.cfg.Kind, len(payload))
	r.spans[key] = span
	r.outstanding[key] = time.Time{}
	st.current = st.attempts
	if r.s.cfg.TaskTimeout > 0 {
		st.deadline = time.Now().Add(r.s.cfg.TaskTimeout)
	}
	r.inflight++
	return nil
}

func (r *run) handle(out parallel.Outcome) error {
	key := attemptKey{out.JobID, out.Attempt}
	st, known := r.tasks[out.JobID]
	if _, expected := r.outstanding[key]; !known || !expected {
		r.logger().Warn("ignoring unexpected outcome",
			logging.TaskID(out.JobID),
			logging.Attempt(out.Attempt))
		return nil
	}
	delete(r.outstanding, key)
	span := r.spans[key]
	delete(r.spans, key)

	isCurrent := st.current == out.Attempt
	if isCurrent {
		st.current = 0
		r.inflight--
	}
	ok := out.Err == nil
	r.s.monitor.RecordAttempt(r.s.cfg.Kind, ok, len(out.Payload), out.Elapsed, !ok && isCurrent && st.attempts < r.s.cfg.MaxAttempts && !st.done)

	if st.done {
		// a late duplicate of a task already folded
		telemetry.End(span, nil)
		return nil
	}
	if !ok {
		telemetry.End(span, out.Err)
		if !isCurrent {
			// a timed-out attempt failing late; the current one decides
			return nil
		}
		r.logger().Warn("task attempt failed",
			logging.TaskID(out.JobID),
			logging.Attempt(out.Attempt),
			logging.Error(out.Err))
		return r.retryOrFail(st, out.Err)
	}

	if err := r.fold(st.spec, out.Payload); err != nil {
		telemetry.End(span, err)
		return r.terminal(st, fmt.Errorf("fold: %w", err))
	}
	telemetry.End(span, nil)
	st.done = true
	r.completed++
	if st.current != 0 {
		// an earlier attempt won; the current one becomes a stray
		st.current = 0
		r.inflight--
	}

	r.s.monitor.RecordTask(monitor.TaskInfo{
		TaskID:     st.spec.ID,
		GroupID:    st.spec.GroupID,
		Kind:       r.s.cfg.Kind,
		Attempts:   st.attempts,
		Wall:       time.Since(st.started),
		PeakHeap:   out.PeakHeap,
		Sent:       st.sent,
		Received:   len(out.Payload),
		Weight:     st.spec.Weight,
		NumSources: len(st.spec.Sources),
	})
	return nil
}

// expire times out overdue attempts and forgets strays that never answered
func (r *run) expire(now time.Time) error {
	for key, forget := range r.outstanding {
		if !forget.IsZero() && now.After(forget) {
			delete(r.outstanding, key)
			if span, ok := r.spans[key]; ok {
				telemetry.End(span, ErrTaskTimeout)
				delete(r.spans, key)
			}
		}
	}
	for _, st := range r.tasks {
		if st.current == 0 || now.Before(st.deadline) {
			continue
		}
		key := attemptKey{st.spec.ID, st.current}
		r.outstanding[key] = now.Add(r.s.cfg.TaskTimeout)
		st.current = 0
		r.inflight--
		r.logger().Warn("task attempt timed out",
			logging.TaskID(st.spec.ID),
			logging.Attempt(key.attempt),
			logging.Duration("timeout", r.s.cfg.TaskTimeout))
		r.s.monitor.RecordAttempt(r.s.cfg.Kind, false, 0, r.s.cfg.TaskTimeout, st.attempts < r.s.cfg.MaxAttempts)
		if err := r.retryOrFail(st, ErrTaskTimeout); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) retryOrFail(st *taskState, cause error) error {
	if st.attempts >= r.s.cfg.MaxAttempts {
		return r.terminal(st, cause)
	}
	r.pending = append(r.pending, st)
	return nil
}

func (r *run) terminal(st *taskState, cause error) error {
	err := &TaskExecutionError{
		TaskID:      st.spec.ID,
		GroupID:     st.spec.GroupID,
		SourceRange: st.spec.SourceRange,
		Attempts:    st.attempts,
		Err:         cause,
	}
	r.s.monitor.RecordTask(monitor.TaskInfo{
		TaskID:     st.spec.ID,
		GroupID:    st.spec.GroupID,
		Kind:       r.s.cfg.Kind,
		Attempts:   st.attempts,
		Wall:       time.Since(st.started),
		Sent:       st.sent,
		Weight:     st.spec.Weight,
		NumSources: len(st.spec.Sources),
		Err:        cause.Error(),
	})
	return err
}

func (r *run) logger() logging.Logger {
	return r.s.logger
}

func tickInterval(timeout time.Duration) time.Duration {
	d := timeout / 4
	if d < 10*time.Millisecond {
		d = 10 * time.Millisecond
	}
	return d
}
