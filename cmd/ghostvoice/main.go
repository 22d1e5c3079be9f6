package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"ghostvoice-server/pkg/circuitbreaker"
	"ghostvoice-server/pkg/config"
	"ghostvoice-server/pkg/guardrails"
	http_server "ghostvoice-server/pkg/http"
	"ghostvoice-server/pkg/language"
	"ghostvoice-server/pkg/llm"
	"ghostvoice-server/pkg/messaging"
	"ghostvoice-server/pkg/metrics"
	"ghostvoice-server/pkg/observability"
	"ghostvoice-server/pkg/session"
	"ghostvoice-server/pkg/stt"
	"ghostvoice-server/pkg/telemetry"
	"ghostvoice-server/pkg/telephony"
	"ghostvoice-server/pkg/tts"
)

var (
	logger    = logrus.New()
	appConfig *config.Config

	cbManager    *circuitbreaker.Manager
	validator    *guardrails.Validator
	orchestrator *session.Orchestrator
	publisher    *messaging.Publisher
	eventHub     *http_server.EventHub
	httpServer   *http_server.Server

	// Context for graceful shutdown
	rootCtx    context.Context
	rootCancel context.CancelFunc
)

func main() {
	// Set up logger with basic configuration (will be updated after config is loaded)
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	logger.SetOutput(os.Stdout)

	rootCtx, rootCancel = context.WithCancel(context.Background())
	defer rootCancel()

	if err := initialize(); err != nil {
		logger.WithError(err).Fatal("Failed to initialize application")
	}

	httpServer.Start()
	logger.Info("HTTP server started")

	// Graceful shutdown handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigChan
	logger.WithField("signal", sig.String()).Info("Received shutdown signal, cleaning up...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	// Cancel the root context to signal shutdown to all goroutines
	rootCancel()

	if httpServer != nil {
		logger.Debug("Shutting down HTTP server...")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("Error shutting down HTTP server")
		} else {
			logger.Info("HTTP server shut down successfully")
		}
	}

	if publisher != nil && publisher.IsConnected() {
		logger.Debug("Disconnecting from AMQP...")
		publisher.Disconnect()
		logger.Info("AMQP publisher disconnected")
	}

	if eventHub != nil {
		// The hub shuts down through context cancellation; give connected
		// clients a moment to close
		time.Sleep(500 * time.Millisecond)
		logger.Info("WebSocket event hub shut down")
	}

	logger.Info("Application shut down gracefully")
}

// initialize loads configuration and wires all components
func initialize() error {
	var err error

	appConfig, err = config.Load(logger)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := appConfig.ApplyLogging(logger); err != nil {
		return fmt.Errorf("failed to apply logging configuration: %w", err)
	}
	logger.WithField("level", logger.GetLevel().String()).Info("Log level set")

	metrics.StartMetrics(logger, appConfig.HTTP.EnableMetrics)

	cbManager = circuitbreaker.NewManager(logger, nil)
	logger.Info("Circuit breaker manager initialized")

	// AMQP publisher for safety incidents and turn events. Broker trouble
	// never blocks startup; calls proceed without event publishing.
	if appConfig.Messaging.AMQPUrl != "" {
		publisher = messaging.NewPublisher(logger, messaging.Config{
			URL:          appConfig.Messaging.AMQPUrl,
			QueueName:    appConfig.Messaging.AMQPQueueName,
			ExchangeName: appConfig.Messaging.AMQPExchangeName,
			RoutingKey:   appConfig.Messaging.AMQPRoutingKey,
		})
		if err := publisher.Connect(); err != nil {
			logger.WithError(err).Warn("Failed to connect to AMQP server, continuing without event publishing")
		} else {
			logger.Info("AMQP publisher initialized")
		}
	} else {
		logger.Warn("AMQP not configured, safety incidents will not be sent to message queue")
	}

	// WebSocket hub for live incident and turn event streaming
	eventHub = http_server.NewEventHub(logger)
	go eventHub.Run(rootCtx)

	// Guard pipeline. Incidents fan out to AMQP and websocket subscribers.
	sinks := guardrails.MultiSink{eventHub}
	if publisher != nil {
		sinks = append(sinks, publisher)
	}
	validator = guardrails.NewValidator(logger,
		appConfig.Guardrails.Frameworks,
		appConfig.Guardrails.MaxTurnsPerWindow,
		appConfig.Guardrails.RateWindow,
		guardrails.WithBreakerStates(cbManager.States),
		guardrails.WithIncidentSink(sinks),
	)
	logger.Info("Guard pipeline initialized")

	// Speech and language components
	sttManager := stt.NewProviderManager(logger, appConfig.Session.STTProvider)
	if err := sttManager.RegisterProvider(stt.NewMockProvider(logger)); err != nil {
		return fmt.Errorf("failed to register STT provider: %w", err)
	}

	ttsManager := tts.NewProviderManager(logger, appConfig.Session.TTSProvider)
	if err := ttsManager.RegisterProvider(tts.NewMockProvider(logger)); err != nil {
		return fmt.Errorf("failed to register TTS provider: %w", err)
	}

	responder := llm.NewMockResponder(logger)
	personas := llm.NewPersonaRegistry(logger)
	detector := language.NewDetector(logger)
	fallback := language.NewFallbackSystem(logger)

	// Turn telemetry and call-level observability
	traceCollector := telemetry.NewCollector(logger, telemetry.Thresholds{
		MaxTotalLatency:  appConfig.Telemetry.MaxTotalLatency,
		MaxLegLatency:    appConfig.Telemetry.MaxLegLatency,
		MinSTTConfidence: appConfig.Telemetry.MinSTTConfidence,
		MaxErrorRate:     appConfig.Telemetry.MaxErrorRate,
	})
	callCollector := observability.NewCollector(logger, observability.DefaultAlertRules())

	// Turn events follow the same fan-out as incidents
	turnSinks := session.MultiTurnSink{eventHub}
	if publisher != nil {
		turnSinks = append(turnSinks, publisher)
	}

	orchestrator = session.NewOrchestrator(logger, &session.Config{
		STTProvider:      appConfig.Session.STTProvider,
		TTSProvider:      appConfig.Session.TTSProvider,
		HistoryWindow:    appConfig.Session.HistoryWindow,
		CleanupDelay:     appConfig.Session.CleanupDelay,
		MinSTTConfidence: appConfig.Session.MinSTTConfidence,
	}, session.Dependencies{
		Validator:     validator,
		Breakers:      cbManager,
		STT:           sttManager,
		TTS:           ttsManager,
		Responder:     responder,
		Personas:      personas,
		Language:      detector,
		Fallback:      fallback,
		Telemetry:     traceCollector,
		Observability: callCollector,
		Events:        turnSinks,
	})
	logger.Info("Call orchestrator initialized")

	adapters := telephony.NewAdapterFactory(logger)

	httpServer = http_server.NewServer(logger, &http_server.Config{
		Port:          appConfig.HTTP.Port,
		ReadTimeout:   appConfig.HTTP.ReadTimeout,
		WriteTimeout:  appConfig.HTTP.WriteTimeout,
		EnableMetrics: appConfig.HTTP.EnableMetrics,
	}, orchestrator, validator, adapters)
	httpServer.SetEventHub(eventHub)
	httpServer.SetSummaryProvider(callCollector)
	if publisher != nil {
		httpServer.SetBrokerStatus(publisher)
	}

	logStartupConfig()

	return nil
}

// logStartupConfig logs the current configuration
func logStartupConfig() {
	logger.Info("GhostVoice server is starting with the following configuration:")

	logger.WithFields(logrus.Fields{
		"http_port":          appConfig.HTTP.Port,
		"http_metrics":       appConfig.HTTP.EnableMetrics,
		"http_read_timeout":  appConfig.HTTP.ReadTimeout,
		"http_write_timeout": appConfig.HTTP.WriteTimeout,
	}).Info("HTTP server configuration")

	logger.WithFields(logrus.Fields{
		"frameworks":           appConfig.Guardrails.Frameworks,
		"max_turns_per_window": appConfig.Guardrails.MaxTurnsPerWindow,
		"rate_window":          appConfig.Guardrails.RateWindow,
	}).Info("Guardrails configuration")

	logger.WithFields(logrus.Fields{
		"stt_provider":       appConfig.Session.STTProvider,
		"tts_provider":       appConfig.Session.TTSProvider,
		"history_window":     appConfig.Session.HistoryWindow,
		"cleanup_delay":      appConfig.Session.CleanupDelay,
		"min_stt_confidence": appConfig.Session.MinSTTConfidence,
		"default_persona":    appConfig.Session.DefaultPersona,
	}).Info("Session configuration")

	logger.WithFields(logrus.Fields{
		"default_carrier":  appConfig.Telephony.DefaultCarrier,
		"webhook_base_url": appConfig.Telephony.WebhookBaseURL,
	}).Info("Telephony configuration")

	logger.WithFields(logrus.Fields{
		"amqp_configured": appConfig.Messaging.AMQPUrl != "",
		"amqp_queue":      appConfig.Messaging.AMQPQueueName,
	}).Info("Messaging configuration")
}
