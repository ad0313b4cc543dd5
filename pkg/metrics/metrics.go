package metrics

import (
	"time"
)

// RecordHTTPRequest records a served request under its route pattern
func (r *Registry) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	if route == "" {
		route = "other"
	}
	r.HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	r.HTTPRequestDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
}

// RecordLogicTree records the outcome of logic tree processing
func (r *Registry) RecordLogicTree(mode string, paths, realizations, keys int) {
	r.LogicTreePathsTotal.WithLabelValues(mode).Add(float64(paths))
	r.RealizationsTotal.Add(float64(realizations))
	r.RealizationsPerRun.Observe(float64(realizations))
	r.AssociationKeysTotal.Add(float64(keys))
}

// RecordFilter records the distance filtering of the sources of one TRT
func (r *Registry) RecordFilter(trt string, kept, discarded int, duration time.Duration) {
	r.SourcesFilteredTotal.WithLabelValues(trt, "kept").Add(float64(kept))
	r.SourcesFilteredTotal.WithLabelValues(trt, "discarded").Add(float64(discarded))
	r.SourceOpDuration.WithLabelValues("filter").Observe(duration.Seconds())
}

// RecordSplit records the splitting of heavy sources of one TRT
func (r *Registry) RecordSplit(trt string, parents, children int, duration time.Duration) {
	r.SourcesSplitTotal.WithLabelValues(trt).Add(float64(parents))
	r.SubSourcesTotal.WithLabelValues(trt).Add(float64(children))
	r.SourceOpDuration.WithLabelValues("split").Observe(duration.Seconds())
}

// RecordTaskDispatched records a task attempt leaving for the pool
func (r *Registry) RecordTaskDispatched(kind string, bytesSent int) {
	r.TasksDispatchedTotal.WithLabelValues(kind).Inc()
	r.TaskBytesSent.WithLabelValues(kind).Add(float64(bytesSent))
	r.TasksInFlight.Inc()
}

// RecordTaskOutcome records a task attempt coming back, successful or not
func (r *Registry) RecordTaskOutcome(kind string, ok bool, bytesReceived int, duration time.Duration) {
	r.TasksInFlight.Dec()
	if !ok {
		return
	}
	r.TasksCompletedTotal.WithLabelValues(kind).Inc()
	r.TaskBytesReceived.WithLabelValues(kind).Add(float64(bytesReceived))
	r.TaskDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordTaskRetry records a failed attempt that will be retried
func (r *Registry) RecordTaskRetry(kind string) {
	r.TasksRetriedTotal.WithLabelValues(kind).Inc()
}

// RecordTaskFailure records a task that exhausted its attempts
func (r *Registry) RecordTaskFailure(kind string) {
	r.TasksFailedTotal.WithLabelValues(kind).Inc()
}

// RecordStage records the duration of one calculation stage
func (r *Registry) RecordStage(stage string, duration time.Duration) {
	r.StageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// CalculationStarted marks a calculation as running
func (r *Registry) CalculationStarted() {
	r.CalculationsRunning.Inc()
}

// RecordCalculation records a finished calculation
func (r *Registry) RecordCalculation(mode, status string, duration time.Duration) {
	r.CalculationsRunning.Dec()
	r.CalculationsTotal.WithLabelValues(mode, status).Inc()
	r.CalculationDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordPeakHeap raises the peak heap gauge when a task reports more
func (r *Registry) RecordPeakHeap(bytes uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if bytes > r.peakHeap {
		r.peakHeap = bytes
		r.TaskPeakHeapBytes.Set(float64(bytes))
	}
}
