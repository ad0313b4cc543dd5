package scheduler

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-hazard/pkg/metrics"
	"github.com/dd0wney/cluso-hazard/pkg/monitor"
	"github.com/dd0wney/cluso-hazard/pkg/parallel"
	"github.com/dd0wney/cluso-hazard/pkg/source"
)

// fakePool answers every job synchronously through respond, which returns
// the outcomes to deliver (none, one, or duplicates)
type fakePool struct {
	mu        sync.Mutex
	respond   func(job parallel.Job) []parallel.Outcome
	results   chan parallel.Outcome
	submitted []parallel.Job
	cancelled bool
}

func newFakePool(respond func(job parallel.Job) []parallel.Outcome) *fakePool {
	return &fakePool{respond: respond, results: make(chan parallel.Outcome, 1024)}
}

func (p *fakePool) Submit(ctx context.Context, job parallel.Job) error {
	p.mu.Lock()
	p.submitted = append(p.submitted, job)
	p.mu.Unlock()
	for _, out := range p.respond(job) {
		p.results <- out
	}
	return nil
}

func (p *fakePool) Results() <-chan parallel.Outcome { return p.results }
func (p *fakePool) Capacity() int                    { return 4 }
func (p *fakePool) Close() error                     { return nil }

func (p *fakePool) Cancel() {
	p.mu.Lock()
	p.cancelled = true
	p.mu.Unlock()
}

func ok(job parallel.Job) parallel.Outcome {
	return parallel.Outcome{JobID: job.ID, Attempt: job.Attempt, Payload: job.Payload}
}

func specsN(n int) []TaskSpec {
	specs := make([]TaskSpec, n)
	for i := range specs {
		specs[i] = TaskSpec{
			ID:          uint64(i),
			GroupID:     i % 2,
			Sources:     []*source.Source{weighted("src-"+strconv.Itoa(i), 1)},
			Weight:      1,
			SourceRange: "group " + strconv.Itoa(i%2) + " source src-" + strconv.Itoa(i),
		}
	}
	return specs
}

func encodeID(spec TaskSpec) ([]byte, error) {
	return []byte(strconv.FormatUint(spec.ID, 10)), nil
}

// folder counts folds per task id
type folder struct {
	counts map[uint64]int
}

func newFolder() *folder { return &folder{counts: map[uint64]int{}} }

func (f *folder) fold(spec TaskSpec, payload []byte) error {
	if string(payload) != strconv.FormatUint(spec.ID, 10) {
		return errors.New("payload mismatch")
	}
	f.counts[spec.ID]++
	return nil
}

func newMonitor() (*monitor.Monitor, *metrics.Registry) {
	reg := metrics.NewRegistry()
	return monitor.New("calc-test", nil, reg), reg
}

func TestRunFoldsEveryTaskOnce(t *testing.T) {
	mon, _ := newMonitor()
	pool, err := parallel.NewLocalPool(3, func(ctx context.Context, payload []byte) ([]byte, error) {
		return payload, nil
	}, nil)
	require.NoError(t, err)
	defer pool.Close()

	f := newFolder()
	s := New(Config{Kind: "classical"}, mon)
	require.NoError(t, s.Run(context.Background(), specsN(25), pool, encodeID, f.fold))

	assert.Len(t, f.counts, 25)
	for id, n := range f.counts {
		assert.Equal(t, 1, n, "task %d", id)
	}
	transfer := mon.Transfer()
	assert.Equal(t, 25, transfer.NumTasks)
	assert.Greater(t, transfer.Sent, int64(0))
	assert.Len(t, mon.Tasks(), 25)
}

func TestRunRespectsMaxInFlight(t *testing.T) {
	var running, peak int64
	pool, err := parallel.NewLocalPool(8, func(ctx context.Context, payload []byte) ([]byte, error) {
		n := atomic.AddInt64(&running, 1)
		for {
			p := atomic.LoadInt64(&peak)
			if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt64(&running, -1)
		return payload, nil
	}, nil)
	require.NoError(t, err)
	defer pool.Close()

	f := newFolder()
	s := New(Config{MaxInFlight: 2}, nil)
	require.NoError(t, s.Run(context.Background(), specsN(20), pool, encodeID, f.fold))
	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(2))
	assert.Len(t, f.counts, 20)
}

func TestRunRetriesTransientFailures(t *testing.T) {
	mon, _ := newMonitor()
	pool := newFakePool(func(job parallel.Job) []parallel.Outcome {
		if job.ID == 1 && job.Attempt < 3 {
			return []parallel.Outcome{{JobID: job.ID, Attempt: job.Attempt, Err: errors.New("connection reset")}}
		}
		return []parallel.Outcome{ok(job)}
	})

	f := newFolder()
	s := New(Config{Kind: "classical", MaxAttempts: 3}, mon)
	require.NoError(t, s.Run(context.Background(), specsN(3), pool, encodeID, f.fold))

	assert.Equal(t, map[uint64]int{0: 1, 1: 1, 2: 1}, f.counts)
	assert.Len(t, pool.submitted, 5)
	assert.False(t, pool.cancelled)
	for _, info := range mon.Tasks() {
		if info.TaskID == 1 {
			assert.Equal(t, 3, info.Attempts)
		}
	}
}

func TestRunFailsAfterMaxAttempts(t *testing.T) {
	cause := errors.New("worker crashed")
	pool := newFakePool(func(job parallel.Job) []parallel.Outcome {
		if job.ID == 1 {
			return []parallel.Outcome{{JobID: job.ID, Attempt: job.Attempt, Err: cause}}
		}
		return []parallel.Outcome{ok(job)}
	})

	f := newFolder()
	s := New(Config{MaxAttempts: 3}, nil)
	err := s.Run(context.Background(), specsN(2), pool, encodeID, f.fold)

	var te *TaskExecutionError
	require.True(t, errors.As(err, &te), "got %v", err)
	assert.Equal(t, uint64(1), te.TaskID)
	assert.Equal(t, 1, te.GroupID)
	assert.Equal(t, "group 1 source src-1", te.SourceRange)
	assert.Equal(t, 3, te.Attempts)
	assert.ErrorIs(t, err, ErrTaskExecution)
	assert.ErrorIs(t, err, cause)
	assert.True(t, pool.cancelled)
	assert.Zero(t, f.counts[1])
}

func TestRunIgnoresDuplicateOutcomes(t *testing.T) {
	pool := newFakePool(func(job parallel.Job) []parallel.Outcome {
		return []parallel.Outcome{ok(job), ok(job), {JobID: 999, Attempt: 1}}
	})

	f := newFolder()
	s := New(Config{}, nil)
	require.NoError(t, s.Run(context.Background(), specsN(6), pool, encodeID, f.fold))
	for id, n := range f.counts {
		assert.Equal(t, 1, n, "task %d folded %d times", id, n)
	}
}

func TestRunRetriesTimedOutAttempts(t *testing.T) {
	pool := newFakePool(func(job parallel.Job) []parallel.Outcome {
		if job.ID == 0 {
			switch job.Attempt {
			case 1:
				// lost until the retry is sent
				return nil
			case 2:
				first := ok(job)
				first.Attempt = 1
				return []parallel.Outcome{first, ok(job)}
			}
		}
		return []parallel.Outcome{ok(job)}
	})

	f := newFolder()
	s := New(Config{TaskTimeout: 40 * time.Millisecond}, nil)
	require.NoError(t, s.Run(context.Background(), specsN(2), pool, encodeID, f.fold))

	// the late first attempt wins; the retry's answer is never folded
	assert.Equal(t, map[uint64]int{0: 1, 1: 1}, f.counts)
	assert.Len(t, pool.submitted, 3)
}

func TestRunTimeoutExhaustsAttempts(t *testing.T) {
	pool := newFakePool(func(job parallel.Job) []parallel.Outcome { return nil })

	s := New(Config{TaskTimeout: 20 * time.Millisecond, MaxAttempts: 2}, nil)
	err := s.Run(context.Background(), specsN(1), pool, encodeID, newFolder().fold)
	assert.ErrorIs(t, err, ErrTaskTimeout)

	var te *TaskExecutionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 2, te.Attempts)
}

func TestRunCancellation(t *testing.T) {
	pool := newFakePool(func(job parallel.Job) []parallel.Outcome { return nil })
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	s := New(Config{}, nil)
	err := s.Run(ctx, specsN(3), pool, encodeID, newFolder().fold)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, pool.cancelled)
}

func TestRunFoldAndEncodeErrors(t *testing.T) {
	pool := newFakePool(func(job parallel.Job) []parallel.Outcome {
		return []parallel.Outcome{{JobID: job.ID, Attempt: job.Attempt, Payload: []byte("corrupt")}}
	})
	s := New(Config{}, nil)
	err := s.Run(context.Background(), specsN(1), pool, encodeID, newFolder().fold)
	assert.ErrorIs(t, err, ErrTaskExecution)

	badEncode := func(TaskSpec) ([]byte, error) { return nil, errors.New("too big") }
	err = s.Run(context.Background(), specsN(1), newFakePool(nil), badEncode, newFolder().fold)
	assert.ErrorIs(t, err, ErrTaskExecution)
}

func TestRunDuplicatedTaskIDs(t *testing.T) {
	specs := append(specsN(2), specsN(1)...)
	err := New(Config{}, nil).Run(context.Background(), specs, newFakePool(nil), encodeID, newFolder().fold)
	assert.Error(t, err)
}
