package parallel

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/dd0wney/cluso-hazard/pkg/logging"
)

// LocalPool runs jobs on a fixed set of goroutines of this process
type LocalPool struct {
	workers int
	handler Handler
	queue   chan Job
	results chan Outcome
	logger  logging.Logger

	ctx    context.Context
	cancel context.CancelFunc

	wg     sync.WaitGroup
	once   sync.Once
	mu     sync.RWMutex // Protects queue from concurrent close during send
	closed bool         // Protected by mu
}

// ErrTooManyWorkers is returned when the worker count exceeds the maximum allowed.
var ErrTooManyWorkers = fmt.Errorf("worker count exceeds maximum")

// MaxWorkers is the maximum number of workers allowed in a pool.
const MaxWorkers = math.MaxInt / 4

// NewLocalPool creates a pool of workers goroutines running handler.
// Returns an error if the worker count exceeds MaxWorkers.
func NewLocalPool(workers int, handler Handler, logger logging.Logger) (*LocalPool, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	// Prevent overflow in buffer size calculation
	if workers > MaxWorkers {
		return nil, fmt.Errorf("%w: %d exceeds %d", ErrTooManyWorkers, workers, MaxWorkers)
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	capacity := workers * 2
	pool := &LocalPool{
		workers: workers,
		handler: handler,
		queue:   make(chan Job, capacity),
		results: make(chan Outcome, capacity),
		logger:  logger.With(logging.Component("local-pool")),
		ctx:     ctx,
		cancel:  cancel,
	}

	pool.start()
	return pool, nil
}

// start initializes the worker goroutines
func (p *LocalPool) start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// worker processes jobs from the queue
func (p *LocalPool) worker() {
	defer p.wg.Done()

	for job := range p.queue {
		out := p.run(job)
		select {
		case p.results <- out:
		case <-p.ctx.Done():
			// nobody reads results after a cancel
		}
	}
}

// run executes one job, turning a panic into an error outcome
func (p *LocalPool) run(job Job) Outcome {
	out := Outcome{JobID: job.ID, Attempt: job.Attempt}
	if err := p.ctx.Err(); err != nil {
		out.Err = ErrPoolCancelled
		return out
	}

	start := time.Now()
	heap := sampleHeap(p.ctx)
	out.Payload, out.Err = invoke(p.ctx, p.handler, job.Payload)
	out.PeakHeap = heap.Stop()
	out.Elapsed = time.Since(start)

	var pe *PanicError
	if errors.As(out.Err, &pe) {
		p.logger.Error("handler panic recovered",
			logging.TaskID(job.ID),
			logging.Attempt(job.Attempt),
			logging.Any("panic", pe.Value))
	}
	return out
}

// Submit adds a job to the queue
func (p *LocalPool) Submit(ctx context.Context, job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	// Check if pool is closed while holding read lock
	if p.closed {
		return ErrPoolClosed
	}

	// Safe to send because we hold the lock and pool is not closed
	select {
	case p.queue <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return ErrPoolCancelled
	}
}

// Results returns the outcome channel, closed by Close
func (p *LocalPool) Results() <-chan Outcome {
	return p.results
}

// Cancel aborts the running handlers and drops queued jobs
func (p *LocalPool) Cancel() {
	p.cancel()
}

// Capacity returns the number of outstanding jobs accepted without blocking
func (p *LocalPool) Capacity() int {
	return cap(p.queue)
}

// Workers returns the number of worker goroutines
func (p *LocalPool) Workers() int {
	return p.workers
}

// Close shuts down the pool once the queued jobs are done
func (p *LocalPool) Close() error {
	p.once.Do(func() {
		// Acquire write lock before closing
		p.mu.Lock()
		p.closed = true
		close(p.queue)
		p.mu.Unlock()

		p.wg.Wait()
		p.cancel()
		close(p.results)
	})
	return nil
}

// invoke runs the handler, recovering a panic as a PanicError
func invoke(ctx context.Context, h Handler, payload []byte) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, &PanicError{Value: r}
		}
	}()
	return h(ctx, payload)
}
