package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initTaskMetrics() {
	r.TasksDispatchedTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "hazard_tasks_dispatched_total",
			Help: "Total number of task attempts submitted to the pool",
		},
		[]string{"kind"},
	)

	r.TasksRetriedTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "hazard_tasks_retried_total",
			Help: "Total number of task attempts retried after a failure",
		},
		[]string{"kind"},
	)

	r.TasksFailedTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "hazard_tasks_failed_total",
			Help: "Total number of tasks that exhausted their attempts",
		},
		[]string{"kind"},
	)

	r.TasksCompletedTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "hazard_tasks_completed_total",
			Help: "Total number of tasks whose result was folded",
		},
		[]string{"kind"},
	)

	r.TaskDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hazard_task_duration_seconds",
			Help:    "Wall time of successful task attempts in seconds",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30, 120, 600},
		},
		[]string{"kind"},
	)

	r.TaskBytesSent = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "hazard_task_bytes_sent_total",
			Help: "Total encoded task payload bytes sent to workers",
		},
		[]string{"kind"},
	)

	r.TaskBytesReceived = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "hazard_task_bytes_received_total",
			Help: "Total encoded result payload bytes received from workers",
		},
		[]string{"kind"},
	)

	r.TasksInFlight = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "hazard_tasks_in_flight",
			Help: "Current number of task attempts in flight",
		},
	)
}
