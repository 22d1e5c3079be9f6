// Package http exposes the operator surface: health probes, Prometheus
// metrics, the safety dashboard and carrier webhook ingestion.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"ghostvoice-server/pkg/errors"
	"ghostvoice-server/pkg/guardrails"
	"ghostvoice-server/pkg/metrics"
	"ghostvoice-server/pkg/observability"
	"ghostvoice-server/pkg/telephony"
)

// DashboardProvider exposes the aggregate safety view and incident log.
type DashboardProvider interface {
	GetDashboard() *guardrails.Dashboard
	Incidents() []guardrails.SafetyIncident
}

// CallService is the slice of the orchestrator the HTTP layer needs.
type CallService interface {
	ActiveCalls() int
	DispatchEvent(ctx context.Context, event *telephony.Event) error
}

// BrokerStatus reports whether the event publisher is connected.
type BrokerStatus interface {
	IsConnected() bool
}

// SummaryProvider exposes the aggregated daily call stats.
type SummaryProvider interface {
	TodaySummary() observability.DailySummary
}

// Config holds HTTP server configuration.
type Config struct {
	Port          int
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	EnableMetrics bool
}

// DefaultConfig returns the default HTTP server configuration.
func DefaultConfig() *Config {
	return &Config{
		Port:          8080,
		ReadTimeout:   10 * time.Second,
		WriteTimeout:  30 * time.Second,
		EnableMetrics: true,
	}
}

// Server serves health checks, metrics, the safety dashboard and carrier
// webhooks.
type Server struct {
	config     *Config
	logger     *logrus.Logger
	httpServer *http.Server
	mux        *http.ServeMux
	startTime  time.Time

	calls     CallService
	dashboard DashboardProvider
	broker    BrokerStatus
	summary   SummaryProvider
	adapters  *telephony.AdapterFactory
	hub       *EventHub
}

// NewServer creates the HTTP server and registers all routes.
func NewServer(logger *logrus.Logger, config *Config, calls CallService, dashboard DashboardProvider, adapters *telephony.AdapterFactory) *Server {
	if config == nil {
		config = DefaultConfig()
	}

	server := &Server{
		config:    config,
		logger:    logger,
		startTime: time.Now(),
		calls:     calls,
		dashboard: dashboard,
		adapters:  adapters,
	}

	mux := http.NewServeMux()
	server.mux = mux

	mux.HandleFunc("/health", server.healthHandler)
	mux.HandleFunc("/health/live", server.livenessHandler)
	mux.HandleFunc("/health/ready", server.readinessHandler)
	mux.HandleFunc("/api/dashboard", server.dashboardHandler)
	mux.HandleFunc("/api/incidents", server.incidentsHandler)
	mux.HandleFunc("/api/summary", server.summaryHandler)
	mux.HandleFunc("/webhooks/", server.webhookHandler)

	if config.EnableMetrics {
		metrics.RegisterHandler(mux)
		logger.Info("Prometheus metrics endpoint enabled at /metrics")
	} else {
		logger.Info("Metrics endpoint disabled")
	}

	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Port),
		Handler:      mux,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}

	return server
}

// SetBrokerStatus wires the AMQP publisher into the readiness probe.
func (s *Server) SetBrokerStatus(broker BrokerStatus) {
	s.broker = broker
}

// SetSummaryProvider wires the call observability collector into /api/summary.
func (s *Server) SetSummaryProvider(summary SummaryProvider) {
	s.summary = summary
}

// SetEventHub registers the websocket event hub at /ws/events.
func (s *Server) SetEventHub(hub *EventHub) {
	s.hub = hub
	s.mux.HandleFunc("/ws/events", hub.ServeWs)
	s.logger.Info("Event WebSocket endpoint registered at /ws/events")
}

// Handler returns the route mux, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start starts the HTTP server in a goroutine.
func (s *Server) Start() {
	s.logger.WithField("port", s.config.Port).Info("Starting HTTP server")

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("HTTP server failed")
		}
	}()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server...")
	return s.httpServer.Shutdown(ctx)
}

// dashboardHandler serves the operator safety dashboard.
func (s *Server) dashboardHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.dashboard == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "dashboard not available")
		return
	}

	writeJSON(w, http.StatusOK, s.dashboard.GetDashboard())
}

// incidentsHandler serves the full safety incident log.
func (s *Server) incidentsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.dashboard == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "incident log not available")
		return
	}

	incidents := s.dashboard.Incidents()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":     len(incidents),
		"incidents": incidents,
	})
}

// summaryHandler serves today's aggregate call stats.
func (s *Server) summaryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.summary == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "call stats not available")
		return
	}

	writeJSON(w, http.StatusOK, s.summary.TodaySummary())
}

// webhookHandler ingests carrier status callbacks at /webhooks/{carrier},
// validates the signature and dispatches the normalized event to the call
// orchestrator.
func (s *Server) webhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	carrier := strings.Trim(strings.TrimPrefix(r.URL.Path, "/webhooks/"), "/")
	if carrier == "" {
		writeJSONError(w, http.StatusBadRequest, "missing carrier in webhook path")
		return
	}

	adapter, err := s.adapters.CreateAdapter(carrier)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, fmt.Sprintf("unsupported carrier: %s", carrier))
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "failed to read webhook payload")
		return
	}

	if !adapter.ValidateWebhook(payload, r.Header.Get(signatureHeader(carrier))) {
		s.logger.WithField("carrier", carrier).Warn("Rejected webhook with invalid signature")
		writeJSONError(w, http.StatusUnauthorized, "invalid webhook signature")
		return
	}

	event, err := adapter.ParseEvent(payload)
	if err != nil {
		s.logger.WithError(err).WithField("carrier", carrier).Warn("Failed to parse webhook payload")
		writeJSONError(w, http.StatusBadRequest, "invalid webhook payload")
		return
	}

	if err := s.calls.DispatchEvent(r.Context(), event); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"carrier":  carrier,
			"call_sid": event.CallSID,
		}).Warn("Failed to dispatch webhook event")
		errors.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

// signatureHeader returns the signature header name a carrier sends.
func signatureHeader(carrier string) string {
	switch carrier {
	case "twilio":
		return "X-Twilio-Signature"
	case "telnyx":
		return "Telnyx-Signature-Ed25519"
	default:
		return "X-Webhook-Signature"
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
