// Package telemetry tracks per-turn pipeline traces with leg timings, quality
// flags, and threshold-based alerting.
package telemetry

import (
	"sort"
	"sync"
	"time"

	"ghostvoice-server/pkg/metrics"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// TurnTrace is the complete trace for one conversation turn.
type TurnTrace struct {
	TraceID    string    `json:"trace_id"`
	SessionID  string    `json:"session_id"`
	TurnNumber int       `json:"turn_number"`
	Timestamp  time.Time `json:"timestamp"`

	STTStart      time.Time     `json:"-"`
	STTDuration   time.Duration `json:"stt_duration"`
	STTConfidence float64       `json:"stt_confidence"`

	LLMStart     time.Time     `json:"-"`
	LLMDuration  time.Duration `json:"llm_duration"`
	LLMTokensIn  int           `json:"llm_tokens_in"`
	LLMTokensOut int           `json:"llm_tokens_out"`

	TTSStart    time.Time     `json:"-"`
	TTSDuration time.Duration `json:"tts_duration"`
	TTSVoiceID  string        `json:"tts_voice_id"`

	TotalDuration time.Duration `json:"total_duration"`

	BargeInDetected   bool   `json:"barge_in_detected"`
	BargeInSuccessful bool   `json:"barge_in_successful"`
	LanguageDetected  string `json:"language_detected,omitempty"`
	LanguageSwitched  bool   `json:"language_switched"`

	IntentDetected      string `json:"intent_detected,omitempty"`
	EscalationTriggered bool   `json:"escalation_triggered"`
	Successful          bool   `json:"successful"`

	Errors []string `json:"errors,omitempty"`
}

// Thresholds are the alerting limits checked at turn completion.
type Thresholds struct {
	MaxTotalLatency  time.Duration
	MaxLegLatency    time.Duration
	MinSTTConfidence float64
	MaxErrorRate     float64
}

// DefaultThresholds returns the production alerting limits.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxTotalLatency:  500 * time.Millisecond,
		MaxLegLatency:    250 * time.Millisecond,
		MinSTTConfidence: 0.7,
		MaxErrorRate:     0.05,
	}
}

// Alert is a threshold breach raised during turn processing.
type Alert struct {
	Timestamp time.Time `json:"timestamp"`
	TraceID   string    `json:"trace_id"`
	Message   string    `json:"message"`
	Severity  string    `json:"severity"`
}

// AlertSink receives threshold alerts. Implementations must not block.
type AlertSink interface {
	SendAlert(alert Alert)
}

// PerformanceSummary aggregates recent traces for a reporting window.
type PerformanceSummary struct {
	TotalTurns     int           `json:"total_turns"`
	AvgLatency     time.Duration `json:"avg_latency"`
	P95Latency     time.Duration `json:"p95_latency"`
	ErrorRate      float64       `json:"error_rate"`
	BargeInSuccess float64       `json:"barge_in_success_rate"`
	EscalationRate float64       `json:"escalation_rate"`
	LanguagesSeen  []string      `json:"languages_seen"`
}

// Collector records per-turn traces and raises alerts on threshold breaches.
type Collector struct {
	logger     *logrus.Entry
	thresholds Thresholds
	sink       AlertSink

	mu     sync.Mutex
	traces map[string]*TurnTrace
	order  []string
}

// CollectorOption configures optional collector behavior.
type CollectorOption func(*Collector)

// WithAlertSink routes threshold alerts to the sink in addition to the log.
func WithAlertSink(sink AlertSink) CollectorOption {
	return func(c *Collector) {
		c.sink = sink
	}
}

// NewCollector creates a telemetry collector.
func NewCollector(logger *logrus.Logger, thresholds Thresholds, opts ...CollectorOption) *Collector {
	c := &Collector{
		logger:     logger.WithField("component", "telemetry"),
		thresholds: thresholds,
		traces:     make(map[string]*TurnTrace),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StartTurn begins tracking a conversation turn and returns its trace ID.
func (c *Collector) StartTurn(sessionID string, turnNumber int) string {
	traceID := uuid.New().String()[:8]

	c.mu.Lock()
	c.traces[traceID] = &TurnTrace{
		TraceID:    traceID,
		SessionID:  sessionID,
		TurnNumber: turnNumber,
		Timestamp:  time.Now(),
	}
	c.order = append(c.order, traceID)
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"trace_id":   traceID,
		"session_id": sessionID,
		"turn":       turnNumber,
	}).Info("Turn started")

	return traceID
}

// BeginSTT marks the start of the recognition leg.
func (c *Collector) BeginSTT(traceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if trace, ok := c.traces[traceID]; ok {
		trace.STTStart = time.Now()
	}
}

// CompleteSTT records recognition results and alerts on low confidence.
func (c *Collector) CompleteSTT(traceID string, confidence float64, text, language string) {
	c.mu.Lock()
	trace, ok := c.traces[traceID]
	if !ok {
		c.mu.Unlock()
		return
	}
	if !trace.STTStart.IsZero() {
		trace.STTDuration = time.Since(trace.STTStart)
	}
	trace.STTConfidence = confidence
	trace.LanguageDetected = language
	duration := trace.STTDuration
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"trace_id":    traceID,
		"duration_ms": duration.Milliseconds(),
		"confidence":  confidence,
		"text_length": len(text),
	}).Info("STT complete")

	if confidence < c.thresholds.MinSTTConfidence {
		c.raiseAlert(traceID, "low STT confidence")
	}
}

// BeginLLM marks the start of the response generation leg.
func (c *Collector) BeginLLM(traceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if trace, ok := c.traces[traceID]; ok {
		trace.LLMStart = time.Now()
	}
}

// CompleteLLM records generation results.
func (c *Collector) CompleteLLM(traceID string, tokensIn, tokensOut int, intent string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	trace, ok := c.traces[traceID]
	if !ok {
		return
	}
	if !trace.LLMStart.IsZero() {
		trace.LLMDuration = time.Since(trace.LLMStart)
	}
	trace.LLMTokensIn = tokensIn
	trace.LLMTokensOut = tokensOut
	trace.IntentDetected = intent

	c.logger.WithFields(logrus.Fields{
		"trace_id":    traceID,
		"duration_ms": trace.LLMDuration.Milliseconds(),
		"tokens_in":   tokensIn,
		"tokens_out":  tokensOut,
	}).Info("LLM complete")
}

// BeginTTS marks the start of the synthesis leg.
func (c *Collector) BeginTTS(traceID, voiceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if trace, ok := c.traces[traceID]; ok {
		trace.TTSStart = time.Now()
		trace.TTSVoiceID = voiceID
	}
}

// CompleteTTS records synthesis completion.
func (c *Collector) CompleteTTS(traceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	trace, ok := c.traces[traceID]
	if !ok {
		return
	}
	if !trace.TTSStart.IsZero() {
		trace.TTSDuration = time.Since(trace.TTSStart)
	}

	c.logger.WithFields(logrus.Fields{
		"trace_id":    traceID,
		"duration_ms": trace.TTSDuration.Milliseconds(),
		"voice_id":    trace.TTSVoiceID,
	}).Info("TTS complete")
}

// RecordBargeIn records a caller interruption attempt.
func (c *Collector) RecordBargeIn(traceID string, successful bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if trace, ok := c.traces[traceID]; ok {
		trace.BargeInDetected = true
		trace.BargeInSuccessful = successful
	}
}

// RecordLanguageSwitch records a mid-call language change.
func (c *Collector) RecordLanguageSwitch(traceID, fromLang, toLang string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	trace, ok := c.traces[traceID]
	if !ok {
		return
	}
	trace.LanguageSwitched = true
	trace.LanguageDetected = toLang

	c.logger.WithFields(logrus.Fields{
		"trace_id": traceID,
		"from":     fromLang,
		"to":       toLang,
	}).Info("Language switch")
}

// RecordError appends a pipeline error to the trace.
func (c *Collector) RecordError(traceID, component, errMsg string) {
	c.mu.Lock()
	if trace, ok := c.traces[traceID]; ok {
		trace.Errors = append(trace.Errors, component+": "+errMsg)
	}
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"trace_id":  traceID,
		"component": component,
		"error":     errMsg,
	}).Error("Pipeline error")
}

// CompleteTurn finalizes the trace, checks latency thresholds, and records
// the turn metric.
func (c *Collector) CompleteTurn(traceID string, successful, escalated bool) {
	c.mu.Lock()
	trace, ok := c.traces[traceID]
	if !ok {
		c.mu.Unlock()
		return
	}
	trace.Successful = successful
	trace.EscalationTriggered = escalated
	trace.TotalDuration = time.Since(trace.Timestamp)
	snapshot := *trace
	c.mu.Unlock()

	status := "success"
	if !successful {
		status = "failure"
	}
	metrics.RecordTurn(status, snapshot.TotalDuration)

	c.logger.WithFields(logrus.Fields{
		"trace_id":    traceID,
		"duration_ms": snapshot.TotalDuration.Milliseconds(),
		"successful":  successful,
		"escalated":   escalated,
	}).Info("Turn complete")

	c.checkLatency(&snapshot)
}

func (c *Collector) checkLatency(trace *TurnTrace) {
	if trace.TotalDuration > c.thresholds.MaxTotalLatency {
		c.raiseAlert(trace.TraceID, "high total latency")
	}

	legs := []struct {
		name     string
		duration time.Duration
	}{
		{"STT", trace.STTDuration},
		{"LLM", trace.LLMDuration},
		{"TTS", trace.TTSDuration},
	}
	for _, leg := range legs {
		if leg.duration > c.thresholds.MaxLegLatency {
			c.raiseAlert(trace.TraceID, "high "+leg.name+" latency")
		}
	}
}

func (c *Collector) raiseAlert(traceID, message string) {
	alert := Alert{
		Timestamp: time.Now(),
		TraceID:   traceID,
		Message:   message,
		Severity:  "HIGH",
	}

	c.logger.WithFields(logrus.Fields{
		"trace_id": traceID,
		"message":  message,
	}).Warn("Telemetry alert")

	if c.sink != nil {
		c.sink.SendAlert(alert)
	}
}

// Trace returns a copy of the trace, or nil when unknown.
func (c *Collector) Trace(traceID string) *TurnTrace {
	c.mu.Lock()
	defer c.mu.Unlock()

	trace, ok := c.traces[traceID]
	if !ok {
		return nil
	}
	snapshot := *trace
	return &snapshot
}

// SessionTraces returns copies of all traces for a session in start order.
func (c *Collector) SessionTraces(sessionID string) []TurnTrace {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []TurnTrace
	for _, id := range c.order {
		if trace := c.traces[id]; trace.SessionID == sessionID {
			out = append(out, *trace)
		}
	}
	return out
}

// PerformanceSummary aggregates traces started within the window.
func (c *Collector) PerformanceSummary(window time.Duration) PerformanceSummary {
	cutoff := time.Now().Add(-window)

	c.mu.Lock()
	var recent []*TurnTrace
	for _, id := range c.order {
		if trace := c.traces[id]; trace.Timestamp.After(cutoff) {
			recent = append(recent, trace)
		}
	}

	summary := PerformanceSummary{TotalTurns: len(recent)}
	if len(recent) == 0 {
		c.mu.Unlock()
		return summary
	}

	var (
		latencies  []time.Duration
		total      time.Duration
		errorCount int
		bargeIns   int
		bargeOK    int
		escalated  int
		langs      = make(map[string]bool)
	)
	for _, trace := range recent {
		if trace.TotalDuration > 0 {
			latencies = append(latencies, trace.TotalDuration)
			total += trace.TotalDuration
		}
		errorCount += len(trace.Errors)
		if trace.BargeInDetected {
			bargeIns++
			if trace.BargeInSuccessful {
				bargeOK++
			}
		}
		if trace.EscalationTriggered {
			escalated++
		}
		if trace.LanguageDetected != "" {
			langs[trace.LanguageDetected] = true
		}
	}
	c.mu.Unlock()

	if len(latencies) > 0 {
		summary.AvgLatency = total / time.Duration(len(latencies))
		summary.P95Latency = percentile(latencies, 0.95)
	}
	summary.ErrorRate = float64(errorCount) / float64(len(recent))
	if bargeIns > 0 {
		summary.BargeInSuccess = float64(bargeOK) / float64(bargeIns)
	}
	summary.EscalationRate = float64(escalated) / float64(len(recent))

	for lang := range langs {
		summary.LanguagesSeen = append(summary.LanguagesSeen, lang)
	}
	sort.Strings(summary.LanguagesSeen)

	return summary
}

func percentile(durations []time.Duration, p float64) time.Duration {
	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}
