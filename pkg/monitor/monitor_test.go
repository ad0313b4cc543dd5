package monitor

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-hazard/pkg/logging"
	"github.com/dd0wney/cluso-hazard/pkg/metrics"
)

func TestRecordAccumulates(t *testing.T) {
	m := New("calc-1", nil, nil)
	m.Record("filter", 10*time.Millisecond, 100, 3)
	m.Record("split", 5*time.Millisecond, 50, 1)
	m.Record("filter", 20*time.Millisecond, 40, 2)

	ops := m.Operations()
	require.Len(t, ops, 2)
	assert.Equal(t, "filter", ops[0].Name)
	assert.Equal(t, 2, ops[0].Calls)
	assert.Equal(t, 30*time.Millisecond, ops[0].Elapsed)
	assert.Equal(t, int64(100), ops[0].HeapBytes)
	assert.Equal(t, 5, ops[0].Items)

	_, ok := m.Operation("missing")
	assert.False(t, ok)
}

func TestStartStop(t *testing.T) {
	m := New("calc-1", nil, nil)
	s := m.Start("sampling")
	time.Sleep(time.Millisecond)
	elapsed := s.Stop(7)

	op, ok := m.Operation("sampling")
	require.True(t, ok)
	assert.Equal(t, elapsed, op.Elapsed)
	assert.Equal(t, 7, op.Items)
	assert.GreaterOrEqual(t, op.Elapsed, time.Millisecond)
}

func TestDataTransfer(t *testing.T) {
	reg := metrics.NewRegistry()
	m := New("calc-1", nil, reg)

	m.RecordDispatch("classical", 100)
	m.RecordDispatch("classical", 120)
	m.RecordDispatch("classical", 80)
	m.RecordTask(TaskInfo{TaskID: 0, Received: 300})
	m.RecordTask(TaskInfo{TaskID: 1, Received: 500})
	m.RecordTask(TaskInfo{TaskID: 2, Kind: "classical", Received: 999, Err: "boom"})

	tr := m.Transfer()
	assert.Equal(t, int64(300), tr.Sent)
	assert.Equal(t, int64(500), tr.MaxReceived)
	assert.Equal(t, int64(800), tr.TotalReceived)
	assert.Equal(t, 2, tr.NumTasks)
	assert.Len(t, m.Tasks(), 3)
}

func TestMonitorsDoNotShareState(t *testing.T) {
	a, b := New("a", nil, nil), New("b", nil, nil)
	a.Record("filter", time.Millisecond, 0, 1)
	a.RecordDispatch("classical", 10)

	assert.Empty(t, b.Operations())
	assert.Zero(t, b.Transfer().Sent)
}

func TestConcurrentRecord(t *testing.T) {
	m := New("calc-1", nil, nil)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.Record("kernel", time.Microsecond, 0, 1)
			}
		}()
	}
	wg.Wait()

	op, _ := m.Operation("kernel")
	assert.Equal(t, 800, op.Calls)
	assert.Equal(t, 800, op.Items)
}

func TestFlushLogsWithCalculationID(t *testing.T) {
	var buf bytes.Buffer
	m := New("calc-42", logging.NewJSONLogger(&buf, logging.InfoLevel), nil)
	m.Record("split", time.Millisecond, 0, 2)
	m.Flush()

	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, "\n"))
	assert.Contains(t, out, `"calc_id":"calc-42"`)
	assert.Contains(t, out, `"operation":"split"`)
	assert.Contains(t, out, "data transfer")
}
