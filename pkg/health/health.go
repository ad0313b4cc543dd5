// Package health reports whether a hazard server can serve: its stores are
// reachable and the process has memory headroom.
package health

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Status represents the health status of a component
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check is the outcome of one component check
type Check struct {
	Name        string         `json:"name"`
	Status      Status         `json:"status"`
	Message     string         `json:"message,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	LastChecked time.Time      `json:"last_checked"`
	Duration    time.Duration  `json:"duration_ns"`
}

// CheckFunc checks one component
type CheckFunc func(ctx context.Context) Check

// Response is the aggregate of a set of checks
type Response struct {
	Status    Status           `json:"status"`
	Timestamp time.Time        `json:"timestamp"`
	Checks    map[string]Check `json:"checks"`
	Uptime    time.Duration    `json:"uptime_ns"`
}

// HealthChecker runs registered checks. Readiness checks gate traffic,
// liveness checks gate restarts.
type HealthChecker struct {
	mu          sync.RWMutex
	started     time.Time
	timeout     time.Duration
	readyChecks map[string]CheckFunc
	liveChecks  map[string]CheckFunc
}

// NewHealthChecker creates a checker; each check gets at most timeout
func NewHealthChecker(timeout time.Duration) *HealthChecker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthChecker{
		started:     time.Now(),
		timeout:     timeout,
		readyChecks: make(map[string]CheckFunc),
		liveChecks:  make(map[string]CheckFunc),
	}
}

// RegisterReadinessCheck registers a readiness check
func (hc *HealthChecker) RegisterReadinessCheck(name string, check CheckFunc) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.readyChecks[name] = check
}

// RegisterLivenessCheck registers a liveness check
func (hc *HealthChecker) RegisterLivenessCheck(name string, check CheckFunc) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.liveChecks[name] = check
}

// Check runs every check
func (hc *HealthChecker) Check(ctx context.Context) Response {
	hc.mu.RLock()
	all := make(map[string]CheckFunc, len(hc.readyChecks)+len(hc.liveChecks))
	for name, fn := range hc.liveChecks {
		all[name] = fn
	}
	for name, fn := range hc.readyChecks {
		all[name] = fn
	}
	hc.mu.RUnlock()
	return hc.performChecks(ctx, all)
}

// CheckReadiness runs the readiness checks
func (hc *HealthChecker) CheckReadiness(ctx context.Context) Response {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.performChecks(ctx, hc.readyChecks)
}

// CheckLiveness runs the liveness checks
func (hc *HealthChecker) CheckLiveness(ctx context.Context) Response {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.performChecks(ctx, hc.liveChecks)
}

func (hc *HealthChecker) performChecks(ctx context.Context, checks map[string]CheckFunc) Response {
	response := Response{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Checks:    make(map[string]Check, len(checks)),
		Uptime:    time.Since(hc.started),
	}

	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		cctx, cancel := context.WithTimeout(ctx, hc.timeout)
		start := time.Now()
		check := checks[name](cctx)
		cancel()
		check.Name = name
		check.Duration = time.Since(start)
		check.LastChecked = start
		response.Checks[name] = check

		// worst status wins
		if check.Status == StatusUnhealthy {
			response.Status = StatusUnhealthy
		} else if check.Status == StatusDegraded && response.Status != StatusUnhealthy {
			response.Status = StatusDegraded
		}
	}
	return response
}
