package health

import (
	"context"
	"runtime"
)

// PingCheck reports a store unhealthy when ping fails
func PingCheck(ping func(ctx context.Context) error) CheckFunc {
	return func(ctx context.Context) Check {
		if err := ping(ctx); err != nil {
			return Check{Status: StatusUnhealthy, Message: err.Error()}
		}
		return Check{Status: StatusHealthy, Message: "reachable"}
	}
}

// MemoryCheck reports degraded once the live heap exceeds limit bytes.
// A zero limit only reports the figures.
func MemoryCheck(limit uint64) CheckFunc {
	return func(ctx context.Context) Check {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)

		check := Check{
			Status: StatusHealthy,
			Details: map[string]any{
				"heap_inuse_bytes": ms.HeapInuse,
				"sys_bytes":        ms.Sys,
				"goroutines":       runtime.NumGoroutine(),
			},
		}
		if limit > 0 && ms.HeapInuse > limit {
			check.Status = StatusDegraded
			check.Message = "heap above limit"
		}
		return check
	}
}
