package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initCalculationMetrics() {
	r.CalculationsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "hazard_calculations_total",
			Help: "Total number of calculations by mode and final status",
		},
		[]string{"mode", "status"},
	)

	r.CalculationDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hazard_calculation_duration_seconds",
			Help:    "Calculation duration in seconds",
			Buckets: []float64{0.1, 1, 10, 60, 300, 1800, 7200},
		},
		[]string{"mode"},
	)

	r.CalculationsRunning = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "hazard_calculations_running",
			Help: "Current number of running calculations",
		},
	)

	r.StageDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hazard_stage_duration_seconds",
			Help:    "Duration of each calculation stage in seconds",
			Buckets: []float64{0.001, 0.01, 0.1, 1, 10, 60, 600},
		},
		[]string{"stage"},
	)
}
