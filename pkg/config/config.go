// Package config loads application configuration from the environment, with
// optional .env file support for local development.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"ghostvoice-server/pkg/errors"
	"ghostvoice-server/pkg/guardrails"
)

// Config represents the complete application configuration
type Config struct {
	Logging    LoggingConfig    `json:"logging"`
	HTTP       HTTPConfig       `json:"http"`
	Guardrails GuardrailsConfig `json:"guardrails"`
	Session    SessionConfig    `json:"session"`
	Telephony  TelephonyConfig  `json:"telephony"`
	Messaging  MessagingConfig  `json:"messaging"`
	Telemetry  TelemetryConfig  `json:"telemetry"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	// Log level (debug, info, warn, error)
	Level string `json:"level" env:"LOG_LEVEL" default:"info"`

	// Log format (json or text)
	Format string `json:"format" env:"LOG_FORMAT" default:"json"`

	// Log output file (empty = stdout)
	OutputFile string `json:"output_file" env:"LOG_OUTPUT_FILE"`
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Port          int           `json:"port" env:"HTTP_PORT" default:"8080"`
	ReadTimeout   time.Duration `json:"read_timeout" env:"HTTP_READ_TIMEOUT" default:"10s"`
	WriteTimeout  time.Duration `json:"write_timeout" env:"HTTP_WRITE_TIMEOUT" default:"30s"`
	EnableMetrics bool          `json:"enable_metrics" env:"ENABLE_METRICS" default:"true"`
}

// GuardrailsConfig holds guard pipeline configuration
type GuardrailsConfig struct {
	// Compliance frameworks to enforce (empty = built-in defaults)
	Frameworks []guardrails.Framework `json:"frameworks" env:"GUARD_FRAMEWORKS"`

	// Per-call rate limit
	MaxTurnsPerWindow int           `json:"max_turns_per_window" env:"GUARD_MAX_TURNS_PER_WINDOW" default:"10"`
	RateWindow        time.Duration `json:"rate_window" env:"GUARD_RATE_WINDOW" default:"5m"`
}

// SessionConfig holds call session and pipeline configuration
type SessionConfig struct {
	STTProvider      string        `json:"stt_provider" env:"STT_PROVIDER" default:"mock"`
	TTSProvider      string        `json:"tts_provider" env:"TTS_PROVIDER" default:"mock"`
	HistoryWindow    int           `json:"history_window" env:"SESSION_HISTORY_WINDOW" default:"10"`
	CleanupDelay     time.Duration `json:"cleanup_delay" env:"SESSION_CLEANUP_DELAY" default:"5m"`
	MinSTTConfidence float64       `json:"min_stt_confidence" env:"STT_MIN_CONFIDENCE" default:"0.7"`
	DefaultPersona   string        `json:"default_persona" env:"DEFAULT_PERSONA" default:"stephen"`
}

// TelephonyConfig holds carrier configuration
type TelephonyConfig struct {
	DefaultCarrier string `json:"default_carrier" env:"DEFAULT_CARRIER" default:"loopback"`
	WebhookBaseURL string `json:"webhook_base_url" env:"WEBHOOK_BASE_URL"`
}

// MessagingConfig holds AMQP event publishing configuration
type MessagingConfig struct {
	AMQPUrl          string `json:"amqp_url" env:"AMQP_URL"`
	AMQPQueueName    string `json:"amqp_queue_name" env:"AMQP_QUEUE_NAME" default:"ghostvoice.events"`
	AMQPExchangeName string `json:"amqp_exchange_name" env:"AMQP_EXCHANGE_NAME"`
	AMQPRoutingKey   string `json:"amqp_routing_key" env:"AMQP_ROUTING_KEY"`
}

// TelemetryConfig holds turn tracing thresholds
type TelemetryConfig struct {
	MaxTotalLatency  time.Duration `json:"max_total_latency" env:"TELEMETRY_MAX_TOTAL_LATENCY" default:"500ms"`
	MaxLegLatency    time.Duration `json:"max_leg_latency" env:"TELEMETRY_MAX_LEG_LATENCY" default:"250ms"`
	MinSTTConfidence float64       `json:"min_stt_confidence" env:"TELEMETRY_MIN_STT_CONFIDENCE" default:"0.7"`
	MaxErrorRate     float64       `json:"max_error_rate" env:"TELEMETRY_MAX_ERROR_RATE" default:"0.05"`
}

// Load reads configuration from the environment, trying a .env file first.
func Load(logger *logrus.Logger) (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		logger.WithError(err).Warn("Failed to get current working directory")
		wd = "unknown"
	}

	possibleEnvFiles := []string{
		".env",
		"../.env",
		filepath.Join(wd, ".env"),
	}

	var loadedFrom string
	for _, envFile := range possibleEnvFiles {
		if _, statErr := os.Stat(envFile); statErr == nil {
			absPath, _ := filepath.Abs(envFile)
			logger.WithField("path", absPath).Debug("Attempting to load .env file")

			if loadErr := godotenv.Load(envFile); loadErr == nil {
				loadedFrom = absPath
				break
			}
		}
	}

	if loadedFrom != "" {
		logger.WithFields(logrus.Fields{
			"working_dir": wd,
			"path":        loadedFrom,
		}).Info("Successfully loaded .env file")
	} else {
		logger.WithField("working_dir", wd).Debug("No .env file found, using environment variables only")
	}

	config := &Config{}

	loadLoggingConfig(logger, &config.Logging)
	loadHTTPConfig(&config.HTTP)
	loadGuardrailsConfig(logger, &config.Guardrails)
	loadSessionConfig(&config.Session)
	loadTelephonyConfig(&config.Telephony)
	loadMessagingConfig(logger, &config.Messaging)
	loadTelemetryConfig(&config.Telemetry)

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	return config, nil
}

func loadLoggingConfig(logger *logrus.Logger, config *LoggingConfig) {
	config.Level = getEnv("LOG_LEVEL", "info")
	if _, err := logrus.ParseLevel(config.Level); err != nil {
		logger.Warnf("Invalid LOG_LEVEL '%s', defaulting to 'info'", config.Level)
		config.Level = "info"
	}

	config.Format = getEnv("LOG_FORMAT", "json")
	if config.Format != "json" && config.Format != "text" {
		logger.Warn("Invalid LOG_FORMAT, must be 'json' or 'text', defaulting to 'json'")
		config.Format = "json"
	}

	config.OutputFile = getEnv("LOG_OUTPUT_FILE", "")
}

func loadHTTPConfig(config *HTTPConfig) {
	config.Port = getEnvInt("HTTP_PORT", 8080)
	config.ReadTimeout = getEnvDuration("HTTP_READ_TIMEOUT", 10*time.Second)
	config.WriteTimeout = getEnvDuration("HTTP_WRITE_TIMEOUT", 30*time.Second)
	config.EnableMetrics = getEnvBool("ENABLE_METRICS", true)
}

func loadGuardrailsConfig(logger *logrus.Logger, config *GuardrailsConfig) {
	config.Frameworks = parseFrameworks(logger, getEnv("GUARD_FRAMEWORKS", ""))
	config.MaxTurnsPerWindow = getEnvInt("GUARD_MAX_TURNS_PER_WINDOW", 10)
	config.RateWindow = getEnvDuration("GUARD_RATE_WINDOW", 5*time.Minute)
}

func loadSessionConfig(config *SessionConfig) {
	config.STTProvider = getEnv("STT_PROVIDER", "mock")
	config.TTSProvider = getEnv("TTS_PROVIDER", "mock")
	config.HistoryWindow = getEnvInt("SESSION_HISTORY_WINDOW", 10)
	config.CleanupDelay = getEnvDuration("SESSION_CLEANUP_DELAY", 5*time.Minute)
	config.MinSTTConfidence = getEnvFloat("STT_MIN_CONFIDENCE", 0.7)
	config.DefaultPersona = getEnv("DEFAULT_PERSONA", "stephen")
}

func loadTelephonyConfig(config *TelephonyConfig) {
	config.DefaultCarrier = getEnv("DEFAULT_CARRIER", "loopback")
	config.WebhookBaseURL = getEnv("WEBHOOK_BASE_URL", "")
}

func loadMessagingConfig(logger *logrus.Logger, config *MessagingConfig) {
	config.AMQPUrl = getEnv("AMQP_URL", "")
	config.AMQPQueueName = getEnv("AMQP_QUEUE_NAME", "ghostvoice.events")
	config.AMQPExchangeName = getEnv("AMQP_EXCHANGE_NAME", "")
	config.AMQPRoutingKey = getEnv("AMQP_ROUTING_KEY", "")

	if config.AMQPUrl == "" {
		logger.Debug("AMQP_URL not set, event publishing disabled")
	}
}

func loadTelemetryConfig(config *TelemetryConfig) {
	config.MaxTotalLatency = getEnvDuration("TELEMETRY_MAX_TOTAL_LATENCY", 500*time.Millisecond)
	config.MaxLegLatency = getEnvDuration("TELEMETRY_MAX_LEG_LATENCY", 250*time.Millisecond)
	config.MinSTTConfidence = getEnvFloat("TELEMETRY_MIN_STT_CONFIDENCE", 0.7)
	config.MaxErrorRate = getEnvFloat("TELEMETRY_MAX_ERROR_RATE", 0.05)
}

// knownFrameworks maps the accepted GUARD_FRAMEWORKS tokens.
var knownFrameworks = map[string]guardrails.Framework{
	"pci_dss": guardrails.FrameworkPCIDSS,
	"hipaa":   guardrails.FrameworkHIPAA,
	"gdpr":    guardrails.FrameworkGDPR,
	"sox":     guardrails.FrameworkSOX,
	"tcpa":    guardrails.FrameworkTCPA,
}

// parseFrameworks parses a comma-separated framework list. Unknown tokens are
// logged and skipped. An empty result leaves the built-in defaults in force.
func parseFrameworks(logger *logrus.Logger, value string) []guardrails.Framework {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}

	var frameworks []guardrails.Framework
	for _, token := range strings.Split(value, ",") {
		token = strings.ToLower(strings.TrimSpace(token))
		if token == "" {
			continue
		}

		framework, ok := knownFrameworks[token]
		if !ok {
			logger.WithField("framework", token).Warn("Unknown compliance framework in GUARD_FRAMEWORKS, skipping")
			continue
		}
		frameworks = append(frameworks, framework)
	}
	return frameworks
}

func validateConfig(config *Config) error {
	if config.HTTP.Port < 1 || config.HTTP.Port > 65535 {
		return errors.New(fmt.Sprintf("HTTP port out of range: %d", config.HTTP.Port))
	}
	if config.Guardrails.MaxTurnsPerWindow < 1 {
		return errors.New("GUARD_MAX_TURNS_PER_WINDOW must be at least 1")
	}
	if config.Session.HistoryWindow < 1 {
		return errors.New("SESSION_HISTORY_WINDOW must be at least 1")
	}
	if config.Session.MinSTTConfidence < 0 || config.Session.MinSTTConfidence > 1 {
		return errors.New(fmt.Sprintf("STT_MIN_CONFIDENCE must be between 0 and 1, got %f", config.Session.MinSTTConfidence))
	}
	if config.Session.DefaultPersona == "" {
		return errors.New("DEFAULT_PERSONA must not be empty")
	}
	return nil
}

// ApplyLogging configures the logger from the logging section.
func (c *Config) ApplyLogging(logger *logrus.Logger) error {
	level, err := logrus.ParseLevel(c.Logging.Level)
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("invalid log level: %s", c.Logging.Level))
	}
	logger.SetLevel(level)

	if c.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339Nano,
		})
	}

	if c.Logging.OutputFile != "" {
		f, err := os.OpenFile(c.Logging.OutputFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("failed to open log file: %s", c.Logging.OutputFile))
		}
		logger.SetOutput(f)
	} else {
		logger.SetOutput(os.Stdout)
	}

	return nil
}

// Helper function to get an environment variable with a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// Helper function to get a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	switch strings.ToLower(value) {
	case "true", "yes", "1", "on":
		return true
	case "false", "no", "0", "off":
		return false
	default:
		return defaultValue
	}
}

// Helper function to get an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

// Helper function to get a duration environment variable with a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return duration
}

// getEnvFloat retrieves an environment variable and converts it to float64
func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return floatValue
}
