package handlers

import (
	"net/http"

	"github.com/upb/agentic-rag/app"
	"github.com/upb/agentic-rag/services/audit"
	"github.com/upb/agentic-rag/utils"
)

// HealthCheck returns a simple health check handler
func HealthCheck(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}

// ReadinessResponse is the body of the readiness probe
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// ReadinessCheck reports 503 until a provider is configured and the
// pipeline is wired
func ReadinessCheck(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ready, checks := deps.Ready()

		response := ReadinessResponse{Status: "ready", Checks: checks}
		status := http.StatusOK
		if !ready {
			response.Status = "not_ready"
			status = http.StatusServiceUnavailable
		}
		_ = utils.WriteJSON(w, status, response)
	}
}

// StatusResponse describes the running service
type StatusResponse struct {
	Version     string       `json:"version"`
	Environment string       `json:"environment"`
	Providers   []string     `json:"providers"`
	Provider    string       `json:"provider"`
	Model       string       `json:"model,omitempty"`
	Documents   int          `json:"documents"`
	Busy        bool         `json:"busy"`
	Audit       *audit.Stats `json:"audit,omitempty"`
}

// StatusHandler returns application status information
func StatusHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := StatusResponse{
			Version:     app.Version,
			Environment: deps.Config.Environment,
			Providers:   []string{},
			Provider:    deps.Config.Providers.Active,
			Model:       deps.Model,
		}
		if deps.ProviderRegistry != nil {
			response.Providers = deps.ProviderRegistry.ListProviders()
		}
		if deps.Store != nil {
			response.Documents = deps.Store.Len()
		}
		if deps.Orchestrator != nil {
			response.Busy = deps.Orchestrator.Busy()
		}
		if deps.Audit != nil {
			stats := deps.Audit.GetStats()
			response.Audit = &stats
		}

		_ = utils.WriteJSON(w, http.StatusOK, response)
	}
}
