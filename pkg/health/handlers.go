package health

import (
	"context"
	"encoding/json"
	"net/http"
)

// HTTPHandler serves every check. A degraded server still answers 200.
func (hc *HealthChecker) HTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := hc.Check(r.Context())
		code := http.StatusOK
		if response.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, response)
	}
}

// ReadinessHandler serves the readiness checks; only healthy is ready
func (hc *HealthChecker) ReadinessHandler() http.HandlerFunc {
	return binaryHandler(hc.CheckReadiness)
}

// LivenessHandler serves the liveness checks; only healthy is alive
func (hc *HealthChecker) LivenessHandler() http.HandlerFunc {
	return binaryHandler(hc.CheckLiveness)
}

func binaryHandler(run func(ctx context.Context) Response) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := run(r.Context())
		code := http.StatusOK
		if response.Status != StatusHealthy {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, response)
	}
}

func writeJSON(w http.ResponseWriter, code int, response Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(response)
}
