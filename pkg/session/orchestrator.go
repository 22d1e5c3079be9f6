package session

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"ghostvoice-server/pkg/circuitbreaker"
	"ghostvoice-server/pkg/errors"
	"ghostvoice-server/pkg/guardrails"
	"ghostvoice-server/pkg/language"
	"ghostvoice-server/pkg/llm"
	"ghostvoice-server/pkg/messaging"
	"ghostvoice-server/pkg/metrics"
	"ghostvoice-server/pkg/observability"
	"ghostvoice-server/pkg/stt"
	"ghostvoice-server/pkg/telemetry"
	"ghostvoice-server/pkg/telephony"
	"ghostvoice-server/pkg/tts"
)

// The collaborator service names used for circuit breaker keying.
const (
	ServiceSTT = "stt"
	ServiceLLM = "llm"
	ServiceTTS = "tts"
)

// RefusalMessage is spoken when the guard pipeline blocks a turn.
const RefusalMessage = "I'm sorry, but I cannot process this request for safety and compliance reasons."

// Config holds orchestrator tunables.
type Config struct {
	STTProvider      string
	TTSProvider      string
	HistoryWindow    int
	CleanupDelay     time.Duration
	MinSTTConfidence float64
}

// DefaultConfig returns the production orchestrator settings.
func DefaultConfig() *Config {
	return &Config{
		STTProvider:      "mock",
		TTSProvider:      "mock",
		HistoryWindow:    10,
		CleanupDelay:     300 * time.Second,
		MinSTTConfidence: 0.7,
	}
}

// TurnSink receives a summary of every processed turn for downstream
// consumers. A nil sink disables turn events.
type TurnSink interface {
	PublishTurnEvent(callID, sessionID string, turn *messaging.TurnEvent) error
}

// MultiTurnSink fans turn events out to several sinks. The first error is
// returned after all sinks have been tried.
type MultiTurnSink []TurnSink

func (m MultiTurnSink) PublishTurnEvent(callID, sessionID string, turn *messaging.TurnEvent) error {
	var firstErr error
	for _, sink := range m {
		if err := sink.PublishTurnEvent(callID, sessionID, turn); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Dependencies bundles the orchestrator's injected collaborators.
type Dependencies struct {
	Validator     *guardrails.Validator
	Breakers      *circuitbreaker.Manager
	STT           *stt.ProviderManager
	TTS           *tts.ProviderManager
	Responder     llm.Responder
	Personas      *llm.PersonaRegistry
	Language      *language.Detector
	Fallback      *language.FallbackSystem
	Telemetry     *telemetry.Collector
	Observability *observability.Collector
	Events        TurnSink
}

// TurnResult is the outcome of one processed conversation turn.
type TurnResult struct {
	TraceID      string              `json:"trace_id"`
	Transcript   string              `json:"transcript,omitempty"`
	Response     string              `json:"response"`
	Audio        []byte              `json:"-"`
	Verdict      *guardrails.Verdict `json:"verdict,omitempty"`
	FallbackUsed bool                `json:"fallback_used"`
	Escalated    bool                `json:"escalated"`
	Terminated   bool                `json:"terminated"`
}

// Orchestrator owns the active call sessions and runs each turn through the
// guard pipeline and the breaker-wrapped STT, LLM, and TTS collaborators.
type Orchestrator struct {
	logger *logrus.Entry
	config *Config
	deps   Dependencies

	mu       sync.RWMutex
	sessions map[string]*CallSession
}

// NewOrchestrator creates an orchestrator and provisions the collaborator
// circuit breakers with their service-specific configurations.
func NewOrchestrator(logger *logrus.Logger, config *Config, deps Dependencies) *Orchestrator {
	if config == nil {
		config = DefaultConfig()
	}

	deps.Breakers.GetCircuitBreaker(ServiceSTT, circuitbreaker.STTConfig())
	deps.Breakers.GetCircuitBreaker(ServiceLLM, circuitbreaker.LLMConfig())
	deps.Breakers.GetCircuitBreaker(ServiceTTS, circuitbreaker.TTSConfig())

	return &Orchestrator{
		logger:   logger.WithField("component", "orchestrator"),
		config:   config,
		deps:     deps,
		sessions: make(map[string]*CallSession),
	}
}

// StartCall registers a new call session in the INITIATED state.
func (o *Orchestrator) StartCall(callID, sessionID, carrier, from, to, persona string, meta guardrails.CallMetadata) (*CallSession, error) {
	if callID == "" || sessionID == "" {
		return nil, errors.NewInvalidInput("call ID and session ID are required")
	}

	resolved := o.deps.Personas.Get(persona)

	o.mu.Lock()
	if _, exists := o.sessions[callID]; exists {
		o.mu.Unlock()
		return nil, errors.Wrap(errors.ErrSessionAlreadyExist, "call already active",
			map[string]interface{}{"call_id": callID})
	}
	s := newCallSession(callID, sessionID, carrier, from, to, resolved.Name, meta)
	o.sessions[callID] = s
	o.mu.Unlock()

	metrics.RecordCallStarted()
	o.deps.Observability.StartCall(callID, sessionID)

	o.logger.WithFields(logrus.Fields{
		"call_id":    callID,
		"session_id": sessionID,
		"carrier":    carrier,
		"persona":    resolved.Name,
	}).Info("Call session started")

	return s, nil
}

// Session returns the active session for a call ID.
func (o *Orchestrator) Session(callID string) (*CallSession, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	s, ok := o.sessions[callID]
	if !ok {
		return nil, errors.NewSessionNotFound(callID)
	}
	return s, nil
}

// ActiveCalls returns the number of sessions not yet cleaned up.
func (o *Orchestrator) ActiveCalls() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.sessions)
}

// MarkRinging records the carrier's ringing event.
func (o *Orchestrator) MarkRinging(callID string) error {
	s, err := o.Session(callID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transition(StateRinging)
}

// Answer transitions the call to ANSWERED and speaks the persona's greeting.
func (o *Orchestrator) Answer(ctx context.Context, callID string) (*TurnResult, error) {
	s, err := o.Session(callID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.transition(StateAnswered); err != nil {
		return nil, err
	}

	greeting := o.deps.Personas.Greeting(s.persona)
	s.appendHistory("assistant", greeting)

	result := &TurnResult{Response: greeting}
	if audio, synthErr := o.synthesize(ctx, s, greeting); synthErr == nil {
		result.Audio = audio
	} else {
		o.logger.WithError(synthErr).WithField("call_id", callID).Warn("Greeting synthesis failed")
	}

	o.logger.WithFields(logrus.Fields{
		"call_id": callID,
		"persona": s.persona,
	}).Info("Call answered")

	return result, nil
}

// ProcessTurn runs one inbound audio turn: STT, guard pipeline, LLM, TTS.
// The session mutex is held for the whole turn, so turns within one call are
// strictly ordered while other calls proceed concurrently.
func (o *Orchestrator) ProcessTurn(ctx context.Context, callID string, audio []byte) (*TurnResult, error) {
	s, err := o.Session(callID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Terminal() {
		return nil, errors.NewSessionTerminated(callID)
	}
	if s.state == StateAnswered {
		if err := s.transition(StateInProgress); err != nil {
			return nil, err
		}
	} else if s.state != StateInProgress {
		return nil, errors.NewInvalidTransition(string(s.state), string(StateInProgress),
			map[string]interface{}{"call_id": callID})
	}

	s.turnCount++
	turnStart := time.Now()
	traceID := o.deps.Telemetry.StartTurn(s.sessionID, s.turnCount)
	result := &TurnResult{TraceID: traceID}

	// Recognition leg
	transcript, confidence, detectedLang, err := o.transcribe(ctx, traceID, audio)
	if err != nil {
		return o.failTurn(s, result, turnStart, "stt", classifyError(ServiceSTT, err), err), nil
	}
	result.Transcript = transcript

	if confidence < o.config.MinSTTConfidence {
		err := errors.Wrap(errors.ErrTranscriptionFailed, "recognition confidence below threshold",
			map[string]interface{}{"confidence": confidence})
		return o.failTurn(s, result, turnStart, "stt", language.ErrorSTTLowConfidence, err), nil
	}

	o.detectLanguage(s, traceID, transcript, time.Since(turnStart), detectedLang)

	// Guard pipeline
	verdict, err := o.deps.Validator.Validate(s.callID, s.sessionID, transcript, s.metadata)
	if err != nil {
		return nil, err
	}
	result.Verdict = verdict

	userContent := transcript
	if verdict.PII != nil && verdict.PII.Detected {
		userContent = verdict.PII.MaskedContent
	}
	s.appendHistory("user", userContent)

	if !verdict.Allow {
		return o.blockTurn(ctx, s, result, turnStart, verdict), nil
	}
	if verdict.Escalate {
		result.Escalated = true
		o.escalate(s, "guardrails")
	}

	// Generation leg
	reply, err := o.generate(ctx, s, traceID, transcript)
	if err != nil {
		return o.failTurn(s, result, turnStart, "llm", classifyError(ServiceLLM, err), err), nil
	}
	result.Response = reply

	// Synthesis leg
	o.deps.Telemetry.BeginTTS(traceID, o.voiceFor(s))
	audioOut, err := o.synthesize(ctx, s, reply)
	if err != nil {
		return o.failTurn(s, result, turnStart, "tts", classifyError(ServiceTTS, err), err), nil
	}
	o.deps.Telemetry.CompleteTTS(traceID)
	result.Audio = audioOut

	s.appendHistory("assistant", reply)

	o.deps.Telemetry.CompleteTurn(traceID, true, result.Escalated)
	o.deps.Observability.RecordTurn(s.callID, time.Since(turnStart), true)
	o.emitTurn(s, result)

	return result, nil
}

// EndCall completes the call and schedules deferred cleanup. Unknown call
// IDs and already-ended calls are tolerated as late duplicate events.
func (o *Orchestrator) EndCall(callID, resolution string) error {
	o.mu.RLock()
	s, ok := o.sessions[callID]
	o.mu.RUnlock()
	if !ok {
		return nil
	}

	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return nil
	}
	if err := s.transition(StateCompleted); err != nil {
		s.mu.Unlock()
		return err
	}
	duration := s.endTime.Sub(s.startTime)
	s.mu.Unlock()

	metrics.RecordCallEnded(string(StateCompleted), duration)
	o.deps.Observability.EndCall(callID, resolution)
	o.scheduleCleanup(callID)

	o.logger.WithFields(logrus.Fields{
		"call_id":    callID,
		"resolution": resolution,
		"duration":   duration,
	}).Info("Call completed")

	return nil
}

// FailCall marks the call FAILED from any non-terminal state and schedules
// cleanup. Already-terminal calls are tolerated as duplicates.
func (o *Orchestrator) FailCall(callID, reason string) error {
	o.mu.RLock()
	s, ok := o.sessions[callID]
	o.mu.RUnlock()
	if !ok {
		return nil
	}

	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return nil
	}
	if err := s.transition(StateFailed); err != nil {
		s.mu.Unlock()
		return err
	}
	duration := s.endTime.Sub(s.startTime)
	s.mu.Unlock()

	metrics.RecordCallEnded(string(StateFailed), duration)
	o.deps.Observability.EndCall(callID, observability.ResolutionDropped)
	o.scheduleCleanup(callID)

	o.logger.WithFields(logrus.Fields{
		"call_id": callID,
		"reason":  reason,
	}).Warn("Call failed")

	return nil
}

// DispatchEvent routes a parsed carrier event to the matching lifecycle
// operation.
func (o *Orchestrator) DispatchEvent(ctx context.Context, event *telephony.Event) error {
	status := strings.ToLower(event.Status)

	switch {
	case strings.Contains(status, "ringing"):
		return o.MarkRinging(event.CallSID)
	case strings.Contains(status, "answered"), strings.Contains(status, "in-progress"):
		_, err := o.Answer(ctx, event.CallSID)
		return err
	case strings.Contains(status, "completed"), strings.Contains(status, "hangup"), strings.Contains(status, "ended"):
		return o.EndCall(event.CallSID, observability.ResolutionResolved)
	case strings.Contains(status, "busy"), strings.Contains(status, "failed"), strings.Contains(status, "no-answer"):
		return o.FailCall(event.CallSID, status)
	default:
		o.logger.WithFields(logrus.Fields{
			"call_id": event.CallSID,
			"status":  event.Status,
		}).Debug("Ignoring unhandled carrier event")
		return nil
	}
}

// transcribe runs the breaker-wrapped recognition leg.
func (o *Orchestrator) transcribe(ctx context.Context, traceID string, audio []byte) (string, float64, string, error) {
	var result *stt.Result

	o.deps.Telemetry.BeginSTT(traceID)
	stop := metrics.ObserveLegLatency(ServiceSTT)
	err := o.deps.Breakers.Execute(ServiceSTT, ctx, func(ctx context.Context) error {
		var sttErr error
		result, sttErr = o.deps.STT.Transcribe(ctx, o.config.STTProvider, audio)
		return sttErr
	})
	stop()

	if err != nil {
		return "", 0, "", errors.Wrap(err, "transcription failed")
	}

	o.deps.Telemetry.CompleteSTT(traceID, result.Confidence, result.Text, result.Language)
	return result.Text, result.Confidence, result.Language, nil
}

// generate runs the breaker-wrapped response generation leg.
func (o *Orchestrator) generate(ctx context.Context, s *CallSession, traceID, input string) (string, error) {
	persona := o.deps.Personas.Get(s.persona)
	history := s.recentHistory(o.config.HistoryWindow)

	var reply string
	o.deps.Telemetry.BeginLLM(traceID)
	stop := metrics.ObserveLegLatency(ServiceLLM)
	err := o.deps.Breakers.Execute(ServiceLLM, ctx, func(ctx context.Context) error {
		var llmErr error
		reply, llmErr = o.deps.Responder.GenerateResponse(ctx, input, history, persona)
		return llmErr
	})
	stop()

	if err != nil {
		return "", errors.Wrap(err, "response generation failed")
	}

	o.deps.Telemetry.CompleteLLM(traceID, len(strings.Fields(input)), len(strings.Fields(reply)), "")
	return reply, nil
}

// synthesize runs the breaker-wrapped synthesis leg. Caller holds s.mu.
func (o *Orchestrator) synthesize(ctx context.Context, s *CallSession, text string) ([]byte, error) {
	voice := o.voiceFor(s)

	var audio []byte
	stop := metrics.ObserveLegLatency(ServiceTTS)
	err := o.deps.Breakers.Execute(ServiceTTS, ctx, func(ctx context.Context) error {
		var ttsErr error
		audio, ttsErr = o.deps.TTS.Synthesize(ctx, o.config.TTSProvider, text, voice)
		return ttsErr
	})
	stop()

	if err != nil {
		return nil, errors.Wrap(err, "synthesis failed")
	}
	return audio, nil
}

// voiceFor picks the synthesis voice: the persona's own voice for US English,
// the language-mapped voice once the session has locked onto another language.
func (o *Orchestrator) voiceFor(s *CallSession) string {
	persona := o.deps.Personas.Get(s.persona)
	if s.lang == language.LangENUS {
		return persona.VoiceID
	}
	return o.deps.Language.VoiceForLanguage(s.lang, persona.Style)
}

// detectLanguage locks the session language on the first confident switch.
// Caller holds s.mu.
func (o *Orchestrator) detectLanguage(s *CallSession, traceID, transcript string, elapsed time.Duration, reportedLang string) {
	if s.langLocked {
		return
	}

	detected := o.deps.Language.DetectFromText(transcript, elapsed)
	if detected == nil || detected.Language == s.lang {
		return
	}

	o.deps.Telemetry.RecordLanguageSwitch(traceID, string(s.lang), string(detected.Language))
	s.lang = detected.Language
	s.langLocked = true

	o.logger.WithFields(logrus.Fields{
		"call_id":       s.callID,
		"language":      detected.Language,
		"confidence":    detected.Confidence,
		"reported_lang": reportedLang,
	}).Info("Session language locked")
}

// blockTurn handles a guard-pipeline denial: refusal response, escalation
// and termination per the verdict. Caller holds s.mu.
func (o *Orchestrator) blockTurn(ctx context.Context, s *CallSession, result *TurnResult, turnStart time.Time, verdict *guardrails.Verdict) *TurnResult {
	result.Response = RefusalMessage
	s.appendHistory("assistant", RefusalMessage)

	if audio, err := o.synthesize(ctx, s, RefusalMessage); err == nil {
		result.Audio = audio
	}

	if verdict.Escalate {
		result.Escalated = true
		o.escalate(s, "guardrails")
	}
	if verdict.Terminate {
		result.Terminated = true
		o.terminate(s, verdict)
	}

	o.deps.Telemetry.CompleteTurn(result.TraceID, false, result.Escalated)
	o.deps.Observability.RecordTurn(s.callID, time.Since(turnStart), false)
	o.emitTurn(s, result)

	o.logger.WithFields(logrus.Fields{
		"call_id":    s.callID,
		"risk_level": verdict.RiskLevel.String(),
		"actions":    verdict.ActionsTaken,
	}).Warn("Turn blocked by guard pipeline")

	return result
}

// terminate ends the call for a critical-risk verdict. Caller holds s.mu.
func (o *Orchestrator) terminate(s *CallSession, verdict *guardrails.Verdict) {
	if err := s.transition(StateCompleted); err != nil {
		o.logger.WithError(err).WithField("call_id", s.callID).Error("Termination transition failed")
		return
	}
	duration := s.endTime.Sub(s.startTime)

	metrics.RecordCallEnded(string(StateCompleted), duration)
	metrics.RecordTermination("critical_risk")
	o.deps.Observability.EndCall(s.callID, observability.ResolutionDropped)
	o.scheduleCleanup(s.callID)

	o.logger.WithFields(logrus.Fields{
		"call_id":    s.callID,
		"risk_level": verdict.RiskLevel.String(),
	}).Warn("Call terminated by guard pipeline")
}

// failTurn handles a collaborator failure with a rotating fallback response
// and the escalation policy. Caller holds s.mu.
func (o *Orchestrator) failTurn(s *CallSession, result *TurnResult, turnStart time.Time, component, errorType string, cause error) *TurnResult {
	s.errorCount++
	s.errorTypes = append(s.errorTypes, errorType)

	result.FallbackUsed = true
	result.Response = o.deps.Fallback.FallbackResponse(errorType)
	s.appendHistory("assistant", result.Response)

	o.deps.Telemetry.RecordError(result.TraceID, component, cause.Error())
	o.deps.Observability.RecordError(s.callID, errorType)

	if o.deps.Fallback.ShouldEscalate(s.sessionID, s.errorCount, s.errorTypes) {
		result.Escalated = true
		o.escalate(s, "pipeline_errors")
	}

	o.deps.Telemetry.CompleteTurn(result.TraceID, false, result.Escalated)
	o.deps.Observability.RecordTurn(s.callID, time.Since(turnStart), false)
	o.emitTurn(s, result)

	o.logger.WithError(cause).WithFields(logrus.Fields{
		"call_id":    s.callID,
		"component":  component,
		"error_type": errorType,
		"escalated":  result.Escalated,
	}).Warn("Turn failed, fallback response served")

	return result
}

// emitTurn publishes a turn summary to the configured sink. Caller holds s.mu.
func (o *Orchestrator) emitTurn(s *CallSession, result *TurnResult) {
	if o.deps.Events == nil {
		return
	}

	turn := &messaging.TurnEvent{
		TraceID:    result.TraceID,
		Allowed:    true,
		Escalated:  result.Escalated,
		Terminated: result.Terminated,
	}
	if result.Verdict != nil {
		turn.RiskLevel = result.Verdict.RiskLevel.String()
		turn.Allowed = result.Verdict.Allow
		turn.ActionsTaken = result.Verdict.ActionsTaken
	}

	if err := o.deps.Events.PublishTurnEvent(s.callID, s.sessionID, turn); err != nil {
		o.logger.WithError(err).WithField("call_id", s.callID).Debug("Turn event publish failed")
	}
}

func (o *Orchestrator) escalate(s *CallSession, reason string) {
	metrics.RecordEscalation(reason)
	o.deps.Observability.RecordEscalation(s.callID, reason)
}

// scheduleCleanup removes the session from the active set after the grace
// delay. Late duplicate end events find either a terminal session or no
// session, both no-ops.
func (o *Orchestrator) scheduleCleanup(callID string) {
	time.AfterFunc(o.config.CleanupDelay, func() {
		o.mu.Lock()
		delete(o.sessions, callID)
		o.mu.Unlock()

		o.logger.WithField("call_id", callID).Debug("Session cleaned up")
	})
}

// classifyError maps a collaborator failure to a fallback error category.
func classifyError(service string, err error) string {
	timeout := circuitbreaker.IsCircuitBreakerError(err) ||
		stderrors.Is(err, context.DeadlineExceeded) ||
		stderrors.Is(err, context.Canceled)
	if !timeout {
		return language.ErrorGeneral
	}

	switch service {
	case ServiceSTT:
		return language.ErrorSTTTimeout
	case ServiceLLM:
		return language.ErrorLLMTimeout
	case ServiceTTS:
		return language.ErrorTTSTimeout
	default:
		return language.ErrorGeneral
	}
}
