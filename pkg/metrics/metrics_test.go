package metrics

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var metric dto.Metric
	if err := c.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	return metric.Counter.GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Metric) float64 {
	t.Helper()
	var metric dto.Metric
	if err := g.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	return metric.Gauge.GetValue()
}

func histogramCount(t *testing.T, o prometheus.Observer) uint64 {
	t.Helper()
	var metric dto.Metric
	if err := o.(prometheus.Histogram).Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	return metric.Histogram.GetSampleCount()
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r == nil {
		t.Fatal("NewRegistry() returned nil")
	}

	if r.HTTPRequestsTotal == nil {
		t.Error("HTTPRequestsTotal not initialized")
	}
	if r.RealizationsTotal == nil {
		t.Error("RealizationsTotal not initialized")
	}
	if r.TasksDispatchedTotal == nil {
		t.Error("TasksDispatchedTotal not initialized")
	}
	if r.CalculationsTotal == nil {
		t.Error("CalculationsTotal not initialized")
	}
	if r.registry == nil {
		t.Error("Prometheus registry not initialized")
	}
}

func TestDefaultRegistry(t *testing.T) {
	if DefaultRegistry() != DefaultRegistry() {
		t.Error("DefaultRegistry() should return the same instance")
	}
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := NewRegistry(), NewRegistry()
	a.RecordTaskRetry("classical")

	if got := counterValue(t, a.TasksRetriedTotal.WithLabelValues("classical")); got != 1 {
		t.Errorf("registry a retries = %v, want 1", got)
	}
	if got := counterValue(t, b.TasksRetriedTotal.WithLabelValues("classical")); got != 0 {
		t.Errorf("registry b retries = %v, want 0", got)
	}
}

func TestRecordLogicTree(t *testing.T) {
	r := NewRegistry()
	r.RecordLogicTree("enumeration", 4, 12, 7)
	r.RecordLogicTree("sampling", 10, 10, 3)

	if got := counterValue(t, r.LogicTreePathsTotal.WithLabelValues("enumeration")); got != 4 {
		t.Errorf("enumeration paths = %v, want 4", got)
	}
	if got := counterValue(t, r.RealizationsTotal); got != 22 {
		t.Errorf("realizations = %v, want 22", got)
	}
	if got := counterValue(t, r.AssociationKeysTotal); got != 10 {
		t.Errorf("association keys = %v, want 10", got)
	}
}

func TestRecordFilterAndSplit(t *testing.T) {
	r := NewRegistry()
	r.RecordFilter("Active", 8, 2, time.Millisecond)
	r.RecordSplit("Active", 3, 17, 2*time.Millisecond)

	if got := counterValue(t, r.SourcesFilteredTotal.WithLabelValues("Active", "kept")); got != 8 {
		t.Errorf("kept = %v, want 8", got)
	}
	if got := counterValue(t, r.SourcesFilteredTotal.WithLabelValues("Active", "discarded")); got != 2 {
		t.Errorf("discarded = %v, want 2", got)
	}
	if got := counterValue(t, r.SubSourcesTotal.WithLabelValues("Active")); got != 17 {
		t.Errorf("sub-sources = %v, want 17", got)
	}
	if got := histogramCount(t, r.SourceOpDuration.WithLabelValues("split")); got != 1 {
		t.Errorf("split observations = %v, want 1", got)
	}
}

func TestRecordTaskLifecycle(t *testing.T) {
	r := NewRegistry()

	r.RecordTaskDispatched("classical", 100)
	r.RecordTaskDispatched("classical", 150)
	if got := gaugeValue(t, r.TasksInFlight); got != 2 {
		t.Errorf("in flight = %v, want 2", got)
	}

	r.RecordTaskOutcome("classical", false, 0, 0)
	r.RecordTaskRetry("classical")
	r.RecordTaskOutcome("classical", true, 900, 20*time.Millisecond)

	if got := gaugeValue(t, r.TasksInFlight); got != 0 {
		t.Errorf("in flight = %v, want 0", got)
	}
	if got := counterValue(t, r.TaskBytesSent.WithLabelValues("classical")); got != 250 {
		t.Errorf("bytes sent = %v, want 250", got)
	}
	if got := counterValue(t, r.TaskBytesReceived.WithLabelValues("classical")); got != 900 {
		t.Errorf("bytes received = %v, want 900", got)
	}
	if got := counterValue(t, r.TasksCompletedTotal.WithLabelValues("classical")); got != 1 {
		t.Errorf("completed = %v, want 1", got)
	}
	if got := histogramCount(t, r.TaskDuration.WithLabelValues("classical")); got != 1 {
		t.Errorf("duration observations = %v, want 1", got)
	}
}

func TestRecordCalculation(t *testing.T) {
	r := NewRegistry()
	r.CalculationStarted()
	r.CalculationStarted()
	r.RecordCalculation("classical", "complete", time.Second)

	if got := gaugeValue(t, r.CalculationsRunning); got != 1 {
		t.Errorf("running = %v, want 1", got)
	}
	if got := counterValue(t, r.CalculationsTotal.WithLabelValues("classical", "complete")); got != 1 {
		t.Errorf("complete = %v, want 1", got)
	}
}

func TestSystemMetrics(t *testing.T) {
	r := NewRegistry()
	if got := gaugeValue(t, r.UptimeSeconds); got < 0 {
		t.Errorf("uptime = %v, want >= 0", got)
	}

	for _, heap := range []uint64{2048, 8192, 4096} {
		r.RecordPeakHeap(heap)
	}
	if got := gaugeValue(t, r.TaskPeakHeapBytes); got != 8192 {
		t.Errorf("peak heap = %v, want 8192", got)
	}
}

func TestGetPrometheusRegistry(t *testing.T) {
	r := NewRegistry()

	metrics, err := r.GetPrometheusRegistry().Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	names := make(map[string]bool)
	for _, m := range metrics {
		names[m.GetName()] = true
	}
	for _, expected := range []string{
		"hazard_realizations_total",
		"hazard_tasks_in_flight",
		"hazard_calculations_running",
		"hazard_uptime_seconds",
	} {
		if !names[expected] {
			t.Errorf("Expected metric %s not found", expected)
		}
	}
}

func TestConcurrentMetricUpdates(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.RecordTaskDispatched("event_based", 1)
			}
		}()
	}
	wg.Wait()

	if got := counterValue(t, r.TasksDispatchedTotal.WithLabelValues("event_based")); got != 1000 {
		t.Errorf("dispatched = %v, want 1000", got)
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	r := NewRegistry()
	r.RecordHTTPRequest("POST", "/graphql", "200", time.Millisecond)
	r.RecordHTTPRequest("GET", "", "404", time.Millisecond)

	if got := counterValue(t, r.HTTPRequestsTotal.WithLabelValues("POST", "/graphql", "200")); got != 1 {
		t.Errorf("graphql requests = %v, want 1", got)
	}
	if got := counterValue(t, r.HTTPRequestsTotal.WithLabelValues("GET", "other", "404")); got != 1 {
		t.Errorf("unmatched requests = %v, want 1", got)
	}
}

func TestMetricNaming(t *testing.T) {
	r := NewRegistry()
	r.RecordHTTPRequest("POST", "/graphql", "200", time.Millisecond)
	r.RecordFilter("Active", 1, 0, 0)

	metrics, err := r.GetPrometheusRegistry().Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}
	for _, m := range metrics {
		if name := m.GetName(); !strings.HasPrefix(name, "hazard_") {
			t.Errorf("Metric %s does not have hazard_ prefix", name)
		}
	}
}

func BenchmarkRecordTaskOutcome(b *testing.B) {
	r := NewRegistry()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r.RecordTaskOutcome("classical", true, 1024, 10*time.Millisecond)
	}
}
