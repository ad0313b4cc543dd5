package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initLogicTreeMetrics() {
	r.LogicTreePathsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "hazard_logictree_paths_total",
			Help: "Total number of source-model logic tree paths walked",
		},
		[]string{"mode"},
	)

	r.RealizationsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "hazard_realizations_total",
			Help: "Total number of realizations built",
		},
	)

	r.RealizationsPerRun = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hazard_realizations_per_calculation",
			Help:    "Number of realizations of each calculation",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	r.AssociationKeysTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "hazard_association_keys_total",
			Help: "Total number of (group, ground-motion model) pairs associated",
		},
	)
}
