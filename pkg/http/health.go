package http

import (
	"net/http"
	"time"
)

// ComponentHealth describes one checked component.
type ComponentHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is the body served by the health endpoints.
type HealthResponse struct {
	Status      string                     `json:"status"`
	Timestamp   time.Time                  `json:"timestamp"`
	Uptime      string                     `json:"uptime"`
	ActiveCalls int                        `json:"active_calls"`
	Components  map[string]ComponentHealth `json:"components,omitempty"`
}

// healthHandler serves the full component health report.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	response := s.checkHealth()

	status := http.StatusOK
	if response.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, response)
}

// livenessHandler reports that the process is up. It never checks
// dependencies, so a wedged broker cannot get the pod restarted.
func (s *Server) livenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// readinessHandler reports whether the server should receive traffic.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	response := s.checkHealth()

	if response.Status == "unhealthy" {
		writeJSON(w, http.StatusServiceUnavailable, response)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

// checkHealth inspects the wired components. A missing orchestrator is
// unhealthy; a disconnected broker only degrades, since event publishing is
// best effort.
func (s *Server) checkHealth() *HealthResponse {
	response := &HealthResponse{
		Status:     "healthy",
		Timestamp:  time.Now(),
		Uptime:     time.Since(s.startTime).String(),
		Components: make(map[string]ComponentHealth),
	}

	if s.calls == nil {
		response.Status = "unhealthy"
		response.Components["orchestrator"] = ComponentHealth{
			Status:  "unhealthy",
			Message: "call orchestrator not configured",
		}
	} else {
		response.ActiveCalls = s.calls.ActiveCalls()
		response.Components["orchestrator"] = ComponentHealth{Status: "healthy"}
	}

	if s.broker != nil {
		if s.broker.IsConnected() {
			response.Components["amqp"] = ComponentHealth{Status: "healthy"}
		} else {
			if response.Status == "healthy" {
				response.Status = "degraded"
			}
			response.Components["amqp"] = ComponentHealth{
				Status:  "degraded",
				Message: "event broker disconnected, publishing disabled",
			}
		}
	}

	if s.hub != nil {
		response.Components["websocket"] = ComponentHealth{Status: "healthy"}
	}

	return response
}
