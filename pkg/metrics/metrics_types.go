package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all metrics of one engine instance
type Registry struct {
	// HTTP Metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Logic Tree Metrics
	LogicTreePathsTotal  *prometheus.CounterVec
	RealizationsTotal    prometheus.Counter
	RealizationsPerRun   prometheus.Histogram
	AssociationKeysTotal prometheus.Counter

	// Source Metrics
	SourcesFilteredTotal *prometheus.CounterVec
	SourcesSplitTotal    *prometheus.CounterVec
	SubSourcesTotal      *prometheus.CounterVec
	SourceOpDuration     *prometheus.HistogramVec

	// Task Metrics
	TasksDispatchedTotal *prometheus.CounterVec
	TasksRetriedTotal    *prometheus.CounterVec
	TasksFailedTotal     *prometheus.CounterVec
	TasksCompletedTotal  *prometheus.CounterVec
	TaskDuration         *prometheus.HistogramVec
	TaskBytesSent        *prometheus.CounterVec
	TaskBytesReceived    *prometheus.CounterVec
	TasksInFlight        prometheus.Gauge

	// Calculation Metrics
	CalculationsTotal   *prometheus.CounterVec
	CalculationDuration *prometheus.HistogramVec
	CalculationsRunning prometheus.Gauge
	StageDuration       *prometheus.HistogramVec

	// System Metrics
	UptimeSeconds     prometheus.GaugeFunc
	TaskPeakHeapBytes prometheus.Gauge
	peakHeap          uint64 // Protected by mu

	registry *prometheus.Registry
	mu       sync.RWMutex
}

var (
	// Global registry instance
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the process-wide registry used by the CLI
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
	}

	r.initHTTPMetrics()
	r.initLogicTreeMetrics()
	r.initSourceMetrics()
	r.initTaskMetrics()
	r.initCalculationMetrics()
	r.initSystemMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
