// Package monitor collects the diagnostics of one calculation: timed
// operations, per-task accounting and data-transfer totals. Every
// calculation owns its Monitor; nothing here is process-global.
package monitor

import (
	"runtime"
	"sync"
	"time"

	"github.com/dd0wney/cluso-hazard/pkg/logging"
	"github.com/dd0wney/cluso-hazard/pkg/metrics"
)

// Operation accumulates the measurements of one named operation
type Operation struct {
	Name      string        `json:"name"`
	Calls     int           `json:"calls"`
	Elapsed   time.Duration `json:"elapsed"`
	HeapBytes int64         `json:"heap_bytes"` // largest heap growth seen in one call
	Items     int           `json:"items"`
}

// TaskInfo is the diagnostic record of one task, written once it is folded
// or has failed for good
type TaskInfo struct {
	TaskID     uint64        `json:"task_id"`
	GroupID    int           `json:"grp_id"`
	Kind       string        `json:"kind"`
	Attempts   int           `json:"attempts"`
	Wall       time.Duration `json:"wall"`
	PeakHeap   uint64        `json:"peak_heap"`
	Sent       int           `json:"sent"`
	Received   int           `json:"received"`
	Weight     float64       `json:"weight"`
	NumSources int           `json:"num_sources"`
	Err        string        `json:"error,omitempty"`
}

// DataTransfer sums the payload traffic of a calculation
type DataTransfer struct {
	Sent          int64 `json:"sent"`
	MaxReceived   int64 `json:"max_received_per_task"`
	TotalReceived int64 `json:"total_received"`
	NumTasks      int   `json:"num_tasks"`
}

// Monitor is the per-calculation diagnostics context. Safe for concurrent use.
type Monitor struct {
	calcID  string
	logger  logging.Logger
	metrics *metrics.Registry

	mu       sync.Mutex
	ops      map[string]*Operation
	order    []string
	tasks    []TaskInfo
	transfer DataTransfer
}

// New creates a Monitor. A nil logger or registry disables that sink.
func New(calcID string, logger logging.Logger, reg *metrics.Registry) *Monitor {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Monitor{
		calcID:  calcID,
		logger:  logger.With(logging.CalculationID(calcID)),
		metrics: reg,
		ops:     make(map[string]*Operation),
	}
}

// CalculationID returns the id of the monitored calculation
func (m *Monitor) CalculationID() string {
	return m.calcID
}

// Logger returns the calculation-scoped logger
func (m *Monitor) Logger() logging.Logger {
	return m.logger
}

// Metrics returns the registry, possibly nil
func (m *Monitor) Metrics() *metrics.Registry {
	return m.metrics
}

// Measurement is an operation being timed
type Measurement struct {
	m     *Monitor
	name  string
	start time.Time
	heap  uint64
}

// Start begins measuring the named operation
func (m *Monitor) Start(name string) *Measurement {
	return &Measurement{m: m, name: name, start: time.Now(), heap: heapAlloc()}
}

// Stop records the measurement with the number of items processed
func (s *Measurement) Stop(items int) time.Duration {
	elapsed := time.Since(s.start)
	growth := int64(heapAlloc()) - int64(s.heap)
	s.m.Record(s.name, elapsed, growth, items)
	return elapsed
}

// Record adds one call of the named operation
func (m *Monitor) Record(name string, elapsed time.Duration, heapBytes int64, items int) {
	m.mu.Lock()
	op, ok := m.ops[name]
	if !ok {
		op = &Operation{Name: name}
		m.ops[name] = op
		m.order = append(m.order, name)
	}
	op.Calls++
	op.Elapsed += elapsed
	op.Items += items
	if heapBytes > op.HeapBytes {
		op.HeapBytes = heapBytes
	}
	m.mu.Unlock()

	m.logger.Debug("operation measured",
		logging.Operation(name),
		logging.Latency(elapsed),
		logging.Count(items))
}

// RecordDispatch accounts one task attempt sent to the pool
func (m *Monitor) RecordDispatch(kind string, bytes int) {
	m.mu.Lock()
	m.transfer.Sent += int64(bytes)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.RecordTaskDispatched(kind, bytes)
	}
}

// RecordAttempt accounts one attempt coming back from the pool
func (m *Monitor) RecordAttempt(kind string, ok bool, bytes int, elapsed time.Duration, retry bool) {
	if m.metrics == nil {
		return
	}
	m.metrics.RecordTaskOutcome(kind, ok, bytes, elapsed)
	if retry {
		m.metrics.RecordTaskRetry(kind)
	}
}

// RecordTask stores the final diagnostics of a task
func (m *Monitor) RecordTask(info TaskInfo) {
	m.mu.Lock()
	m.tasks = append(m.tasks, info)
	if info.Err == "" {
		m.transfer.NumTasks++
		m.transfer.TotalReceived += int64(info.Received)
		if int64(info.Received) > m.transfer.MaxReceived {
			m.transfer.MaxReceived = int64(info.Received)
		}
	}
	m.mu.Unlock()

	fields := []logging.Field{
		logging.TaskID(info.TaskID),
		logging.GroupID(info.GroupID),
		logging.Attempt(info.Attempts),
		logging.Duration("wall", info.Wall),
		logging.Uint64("peak_heap", info.PeakHeap),
		logging.Int("sent", info.Sent),
		logging.Int("received", info.Received),
	}
	if m.metrics != nil && info.PeakHeap > 0 {
		m.metrics.RecordPeakHeap(info.PeakHeap)
	}
	if info.Err != "" {
		if m.metrics != nil {
			m.metrics.RecordTaskFailure(info.Kind)
		}
		m.logger.Error("task failed", append(fields, logging.String("error", info.Err))...)
		return
	}
	m.logger.Debug("task folded", fields...)
}

// Operations returns a copy of the operations in first-seen order
func (m *Monitor) Operations() []Operation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Operation, len(m.order))
	for i, name := range m.order {
		out[i] = *m.ops[name]
	}
	return out
}

// Operation returns the named operation
func (m *Monitor) Operation(name string) (Operation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	op, ok := m.ops[name]
	if !ok {
		return Operation{}, false
	}
	return *op, true
}

// Tasks returns a copy of the task records in recording order
func (m *Monitor) Tasks() []TaskInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]TaskInfo(nil), m.tasks...)
}

// Transfer returns the data-transfer totals
func (m *Monitor) Transfer() DataTransfer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transfer
}

// Flush logs the collected totals
func (m *Monitor) Flush() {
	for _, op := range m.Operations() {
		m.logger.Info("operation summary",
			logging.Operation(op.Name),
			logging.Int("calls", op.Calls),
			logging.Latency(op.Elapsed),
			logging.Int64("heap_bytes", op.HeapBytes),
			logging.Count(op.Items))
	}
	t := m.Transfer()
	m.logger.Info("data transfer",
		logging.Bytes("sent", t.Sent),
		logging.Bytes("max_received_per_task", t.MaxReceived),
		logging.Bytes("total_received", t.TotalReceived),
		logging.Int("num_tasks", t.NumTasks))
}

func heapAlloc() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapAlloc
}

// HeapAlloc returns the bytes of allocated heap objects of the process
func HeapAlloc() uint64 {
	return heapAlloc()
}
