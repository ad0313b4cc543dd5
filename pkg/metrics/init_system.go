package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initSystemMetrics() {
	start := time.Now()
	r.UptimeSeconds = promauto.With(r.registry).NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "hazard_uptime_seconds",
			Help: "Time since the registry was created in seconds",
		},
		func() float64 { return time.Since(start).Seconds() },
	)

	r.TaskPeakHeapBytes = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "hazard_task_peak_heap_bytes",
			Help: "Largest heap in use reported by a task attempt",
		},
	)

	// cpu, memory and file descriptors of this process
	r.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{
		Namespace: "hazard",
	}))
}
