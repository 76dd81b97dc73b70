package handlers

import (
	"net/http"

	"github.com/teilomillet/assure/server/provider"
)

// HealthReporter is satisfied by *provider.Guard.
type HealthReporter interface {
	Name() string
	Model() string
	Health() provider.HealthStatus
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Circuit  string `json:"circuit"`
}

// Health reports the completion backend as seen from real traffic. It
// answers 503 "degraded" while the circuit breaker is open.
func Health(reporter HealthReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := reporter.Health()
		resp := HealthResponse{
			Status:   "ok",
			Provider: reporter.Name(),
			Model:    reporter.Model(),
			Circuit:  h.Circuit,
		}
		status := http.StatusOK
		if h.Circuit == "open" {
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
	}
}
