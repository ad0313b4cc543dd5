package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initSourceMetrics() {
	r.SourcesFilteredTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "hazard_sources_filtered_total",
			Help: "Total number of sources seen by the distance filter",
		},
		[]string{"trt", "outcome"},
	)

	r.SourcesSplitTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "hazard_sources_split_total",
			Help: "Total number of heavy sources split",
		},
		[]string{"trt"},
	)

	r.SubSourcesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "hazard_subsources_total",
			Help: "Total number of sub-sources produced by splitting",
		},
		[]string{"trt"},
	)

	r.SourceOpDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hazard_source_operation_duration_seconds",
			Help:    "Duration of source filtering and splitting in seconds",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 1.0, 10.0},
		},
		[]string{"operation"},
	)
}
