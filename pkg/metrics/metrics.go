// Package metrics exposes Prometheus instrumentation for the call pipeline:
// turn throughput, collaborator leg latency, guard findings and transport
// health, served from a dedicated registry.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	registry           *prometheus.Registry
	registryOnce       sync.Once
	defaultMetricsPath = "/metrics"
	metricsEnabled     = true

	// Call metrics
	CallsTotal        *prometheus.CounterVec
	ActiveCalls       prometheus.Gauge
	CallDuration      *prometheus.HistogramVec
	TurnsTotal        *prometheus.CounterVec
	TurnLatency       prometheus.Histogram
	LegLatency        *prometheus.HistogramVec
	EscalationsTotal  *prometheus.CounterVec
	TerminationsTotal *prometheus.CounterVec

	// Guard metrics
	RiskLevelsTotal      *prometheus.CounterVec
	PIIDetectionsTotal   prometheus.Counter
	PIITypesDetected     prometheus.Counter
	ViolationsTotal      *prometheus.CounterVec
	SafetyIncidentsTotal *prometheus.CounterVec
	RateLimitHitsTotal   prometheus.Counter

	// Circuit breaker metrics
	BreakerState      *prometheus.GaugeVec
	BreakerTripsTotal *prometheus.CounterVec

	// AMQP metrics
	AMQPPublishedMessages *prometheus.CounterVec
	AMQPConnectionErrors  *prometheus.CounterVec
	AMQPReconnectAttempts *prometheus.CounterVec
	AMQPConnectionStatus  prometheus.Gauge
)

// Init initializes all metrics and registers them with Prometheus
func Init(logger *logrus.Logger) {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()

		CallsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ghostvoice_calls_total",
				Help: "Total number of calls by final state",
			},
			[]string{"state"},
		)

		ActiveCalls = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ghostvoice_active_calls",
				Help: "Number of calls currently in progress",
			},
		)

		CallDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ghostvoice_call_duration_seconds",
				Help:    "Duration of completed calls",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68min
			},
			[]string{"state"},
		)

		TurnsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ghostvoice_turns_total",
				Help: "Total number of conversation turns processed",
			},
			[]string{"status"},
		)

		TurnLatency = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ghostvoice_turn_latency_seconds",
				Help:    "End-to-end latency of conversation turns",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
			},
		)

		LegLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ghostvoice_leg_latency_seconds",
				Help:    "Latency of individual turn legs",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
			},
			[]string{"leg"},
		)

		EscalationsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ghostvoice_escalations_total",
				Help: "Total number of escalations to a human agent",
			},
			[]string{"reason"},
		)

		TerminationsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ghostvoice_terminations_total",
				Help: "Total number of guard-initiated call terminations",
			},
			[]string{"reason"},
		)

		RiskLevelsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ghostvoice_risk_levels_total",
				Help: "Total number of turns by assessed risk level",
			},
			[]string{"level"},
		)

		PIIDetectionsTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ghostvoice_pii_detections_total",
				Help: "Total number of turns with PII detected",
			},
		)

		PIITypesDetected = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ghostvoice_pii_types_detected_total",
				Help: "Total number of distinct PII categories detected",
			},
		)

		ViolationsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ghostvoice_compliance_violations_total",
				Help: "Total number of compliance violations by framework",
			},
			[]string{"framework"},
		)

		SafetyIncidentsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ghostvoice_safety_incidents_total",
				Help: "Total number of safety incidents by risk level",
			},
			[]string{"level"},
		)

		RateLimitHitsTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ghostvoice_rate_limit_hits_total",
				Help: "Total number of rate-limited turns",
			},
		)

		BreakerState = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ghostvoice_circuit_breaker_state",
				Help: "Circuit breaker state per service (0 = closed, 1 = open, 2 = half-open)",
			},
			[]string{"service"},
		)

		BreakerTripsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ghostvoice_circuit_breaker_trips_total",
				Help: "Total number of circuit breaker trips per service",
			},
			[]string{"service"},
		)

		AMQPPublishedMessages = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ghostvoice_amqp_published_messages_total",
				Help: "Total number of messages published to AMQP",
			},
			[]string{"queue", "status"},
		)

		AMQPConnectionErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ghostvoice_amqp_connection_errors_total",
				Help: "Total number of AMQP connection errors",
			},
			[]string{"error_type"},
		)

		AMQPReconnectAttempts = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ghostvoice_amqp_reconnect_attempts_total",
				Help: "Total number of AMQP reconnection attempts",
			},
			[]string{"status"},
		)

		AMQPConnectionStatus = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ghostvoice_amqp_connection_status",
				Help: "Status of AMQP connection (1 = connected, 0 = disconnected)",
			},
		)

		registry.MustRegister(
			CallsTotal,
			ActiveCalls,
			CallDuration,
			TurnsTotal,
			TurnLatency,
			LegLatency,
			EscalationsTotal,
			TerminationsTotal,

			RiskLevelsTotal,
			PIIDetectionsTotal,
			PIITypesDetected,
			ViolationsTotal,
			SafetyIncidentsTotal,
			RateLimitHitsTotal,

			BreakerState,
			BreakerTripsTotal,

			AMQPPublishedMessages,
			AMQPConnectionErrors,
			AMQPReconnectAttempts,
			AMQPConnectionStatus,
		)

		logger.Info("Prometheus metrics initialized")
	})
}

// GetRegistry returns the prometheus registry
func GetRegistry() *prometheus.Registry {
	return registry
}

// SetMetricsPath sets the HTTP path for metrics endpoint
func SetMetricsPath(path string) {
	defaultMetricsPath = path
}

// SetMetricsEnabled enables or disables metrics collection
func SetMetricsEnabled(enabled bool) {
	metricsEnabled = enabled
}

// IsMetricsEnabled returns whether metrics are enabled
func IsMetricsEnabled() bool {
	return metricsEnabled
}

// RegisterHandler registers the metrics HTTP handler
func RegisterHandler(mux *http.ServeMux) {
	if metricsEnabled && registry != nil {
		handler := promhttp.HandlerFor(
			registry,
			promhttp.HandlerOpts{
				EnableOpenMetrics: true,
				Registry:          registry,
			},
		)
		mux.Handle(defaultMetricsPath, handler)
	}
}

// StartMetrics initializes the metrics service
func StartMetrics(logger *logrus.Logger, enabled bool) {
	if !enabled {
		SetMetricsEnabled(false)
		logger.Info("Metrics collection is disabled")
		return
	}

	Init(logger)
	SetMetricsEnabled(true)
	logger.WithField("metrics_path", defaultMetricsPath).Info("Metrics endpoint initialized")
}

// RecordCallStarted records a call entering the pipeline
func RecordCallStarted() {
	if metricsEnabled && ActiveCalls != nil {
		ActiveCalls.Inc()
	}
}

// RecordCallEnded records a call reaching a terminal state
func RecordCallEnded(state string, duration time.Duration) {
	if metricsEnabled && CallsTotal != nil {
		CallsTotal.WithLabelValues(state).Inc()
		CallDuration.WithLabelValues(state).Observe(duration.Seconds())
		ActiveCalls.Dec()
	}
}

// RecordTurn records a processed conversation turn
func RecordTurn(status string, latency time.Duration) {
	if metricsEnabled && TurnsTotal != nil {
		TurnsTotal.WithLabelValues(status).Inc()
		TurnLatency.Observe(latency.Seconds())
	}
}

// ObserveLegLatency returns a timer function recording one leg's latency
func ObserveLegLatency(leg string) func() {
	if !metricsEnabled || LegLatency == nil {
		return func() {}
	}

	start := time.Now()
	return func() {
		LegLatency.WithLabelValues(leg).Observe(time.Since(start).Seconds())
	}
}

// RecordEscalation records an escalation to a human agent
func RecordEscalation(reason string) {
	if metricsEnabled && EscalationsTotal != nil {
		EscalationsTotal.WithLabelValues(reason).Inc()
	}
}

// RecordTermination records a guard-initiated call termination
func RecordTermination(reason string) {
	if metricsEnabled && TerminationsTotal != nil {
		TerminationsTotal.WithLabelValues(reason).Inc()
	}
}

// RecordRiskLevel records the assessed risk level of a turn
func RecordRiskLevel(level string) {
	if metricsEnabled && RiskLevelsTotal != nil {
		RiskLevelsTotal.WithLabelValues(level).Inc()
	}
}

// RecordPIIDetection records a turn with PII and the number of categories hit
func RecordPIIDetection(typeCount int) {
	if metricsEnabled && PIIDetectionsTotal != nil {
		PIIDetectionsTotal.Inc()
		PIITypesDetected.Add(float64(typeCount))
	}
}

// RecordComplianceViolation records one compliance violation
func RecordComplianceViolation(framework string) {
	if metricsEnabled && ViolationsTotal != nil {
		ViolationsTotal.WithLabelValues(framework).Inc()
	}
}

// RecordSafetyIncident records a created safety incident
func RecordSafetyIncident(level string) {
	if metricsEnabled && SafetyIncidentsTotal != nil {
		SafetyIncidentsTotal.WithLabelValues(level).Inc()
	}
}

// RecordRateLimitHit records a rate-limited turn
func RecordRateLimitHit() {
	if metricsEnabled && RateLimitHitsTotal != nil {
		RateLimitHitsTotal.Inc()
	}
}

// SetBreakerState records a circuit breaker state change
func SetBreakerState(service string, state float64) {
	if metricsEnabled && BreakerState != nil {
		BreakerState.WithLabelValues(service).Set(state)
	}
}

// RecordBreakerTrip records a circuit breaker opening
func RecordBreakerTrip(service string) {
	if metricsEnabled && BreakerTripsTotal != nil {
		BreakerTripsTotal.WithLabelValues(service).Inc()
	}
}

// RecordAMQPPublish records metrics for an AMQP publish
func RecordAMQPPublish(queue, status string) {
	if metricsEnabled && AMQPPublishedMessages != nil {
		AMQPPublishedMessages.WithLabelValues(queue, status).Inc()
	}
}

// RecordAMQPConnectionError records an AMQP connection error
func RecordAMQPConnectionError(errorType string) {
	if metricsEnabled && AMQPConnectionErrors != nil {
		AMQPConnectionErrors.WithLabelValues(errorType).Inc()
	}
}

// RecordAMQPReconnectAttempt records an AMQP reconnection attempt
func RecordAMQPReconnectAttempt(status string) {
	if metricsEnabled && AMQPReconnectAttempts != nil {
		AMQPReconnectAttempts.WithLabelValues(status).Inc()
	}
}

// SetAMQPConnectionStatus sets the AMQP connection status
func SetAMQPConnectionStatus(connected bool) {
	if metricsEnabled && AMQPConnectionStatus != nil {
		if connected {
			AMQPConnectionStatus.Set(1)
		} else {
			AMQPConnectionStatus.Set(0)
		}
	}
}
