package server

import (
	"encoding/json"
	"net/http"
)

// HealthStatus is the daemon's self-reported state.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "HEALTHY"
	HealthDegraded HealthStatus = "DEGRADED"
	HealthError    HealthStatus = "ERROR"
)

// HealthFunc reports the current status and a human-readable reason.
type HealthFunc func() (HealthStatus, string)

type healthResponse struct {
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
}

// HealthHandler answers 200 unless check reports HealthError. A nil check
// always reports healthy.
func HealthHandler(check HealthFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		resp := healthResponse{Status: HealthHealthy}
		if check != nil {
			resp.Status, resp.Message = check()
		}

		w.Header().Set("Content-Type", "application/json")
		if resp.Status == HealthError {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
}
