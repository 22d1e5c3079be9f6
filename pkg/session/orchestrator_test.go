package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ghostvoice-server/pkg/circuitbreaker"
	"ghostvoice-server/pkg/errors"
	"ghostvoice-server/pkg/guardrails"
	"ghostvoice-server/pkg/language"
	"ghostvoice-server/pkg/llm"
	"ghostvoice-server/pkg/messaging"
	"ghostvoice-server/pkg/observability"
	"ghostvoice-server/pkg/stt"
	"ghostvoice-server/pkg/telemetry"
	"ghostvoice-server/pkg/telephony"
	"ghostvoice-server/pkg/tts"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

type recordedTurn struct {
	callID    string
	sessionID string
	turn      *messaging.TurnEvent
}

type fakeTurnSink struct {
	mu    sync.Mutex
	turns []recordedTurn
}

func (f *fakeTurnSink) PublishTurnEvent(callID, sessionID string, turn *messaging.TurnEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.turns = append(f.turns, recordedTurn{callID: callID, sessionID: sessionID, turn: turn})
	return nil
}

type testHarness struct {
	orchestrator *Orchestrator
	sttMock      *stt.MockProvider
	llmMock      *llm.MockResponder
	telemetry    *telemetry.Collector
	events       *fakeTurnSink
}

func newHarness(t *testing.T, config *Config) *testHarness {
	t.Helper()
	logger := testLogger()

	sttMock := stt.NewMockProvider(logger)
	sttMgr := stt.NewProviderManager(logger, "mock")
	require.NoError(t, sttMgr.RegisterProvider(sttMock))

	ttsMgr := tts.NewProviderManager(logger, "mock")
	require.NoError(t, ttsMgr.RegisterProvider(tts.NewMockProvider(logger)))

	llmMock := llm.NewMockResponder(logger)

	collector := telemetry.NewCollector(logger, telemetry.Thresholds{
		MaxTotalLatency: time.Hour,
		MaxLegLatency:   time.Hour,
	})

	events := &fakeTurnSink{}

	deps := Dependencies{
		Validator:     guardrails.NewValidator(logger, nil, 100, 5*time.Minute),
		Breakers:      circuitbreaker.NewManager(logger, nil),
		STT:           sttMgr,
		TTS:           ttsMgr,
		Responder:     llmMock,
		Personas:      llm.NewPersonaRegistry(logger),
		Language:      language.NewDetector(logger),
		Fallback:      language.NewFallbackSystem(logger),
		Telemetry:     collector,
		Observability: observability.NewCollector(logger, observability.DefaultAlertRules()),
		Events:        events,
	}

	return &testHarness{
		orchestrator: NewOrchestrator(logger, config, deps),
		sttMock:      sttMock,
		llmMock:      llmMock,
		telemetry:    collector,
		events:       events,
	}
}

func startedCall(t *testing.T, h *testHarness) *CallSession {
	t.Helper()
	s, err := h.orchestrator.StartCall("call-1", "sess-1", "loopback", "+15550001", "+15550002", "stephen",
		guardrails.CallMetadata{ConsentObtained: true})
	require.NoError(t, err)
	return s
}

func TestStartCallValidation(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.orchestrator.StartCall("", "sess-1", "loopback", "a", "b", "stephen", guardrails.CallMetadata{})
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	startedCall(t, h)
	_, err = h.orchestrator.StartCall("call-1", "sess-2", "loopback", "a", "b", "stephen", guardrails.CallMetadata{})
	assert.ErrorIs(t, err, errors.ErrSessionAlreadyExist)

	assert.Equal(t, 1, h.orchestrator.ActiveCalls())
}

func TestUnknownPersonaFallsBack(t *testing.T) {
	h := newHarness(t, nil)

	s, err := h.orchestrator.StartCall("call-1", "sess-1", "loopback", "a", "b", "zorp", guardrails.CallMetadata{})
	require.NoError(t, err)

	result, err := h.orchestrator.Answer(context.Background(), s.CallID())
	require.NoError(t, err)
	assert.Equal(t, "Hey there! Stephen here. What's on your mind?", result.Response)
}

func TestCallLifecycle(t *testing.T) {
	h := newHarness(t, nil)
	s := startedCall(t, h)

	require.NoError(t, h.orchestrator.MarkRinging("call-1"))
	assert.Equal(t, StateRinging, s.State())

	answer, err := h.orchestrator.Answer(context.Background(), "call-1")
	require.NoError(t, err)
	assert.Equal(t, StateAnswered, s.State())
	assert.Equal(t, "Hey there! Stephen here. What's on your mind?", answer.Response)
	assert.Equal(t, []byte("stephen_voice|Hey there! Stephen here. What's on your mind?"), answer.Audio)

	result, err := h.orchestrator.ProcessTurn(context.Background(), "call-1", []byte("Hi, I'd like to check my account balance please"))
	require.NoError(t, err)
	assert.Equal(t, StateInProgress, s.State())
	assert.Equal(t, "Hi, I'd like to check my account balance please", result.Transcript)
	assert.Equal(t, "stephen heard: Hi, I'd like to check my account balance please", result.Response)
	assert.Equal(t, []byte("stephen_voice|stephen heard: Hi, I'd like to check my account balance please"), result.Audio)
	require.NotNil(t, result.Verdict)
	assert.True(t, result.Verdict.Allow)
	assert.Equal(t, guardrails.RiskLow, result.Verdict.RiskLevel)
	assert.False(t, result.FallbackUsed)

	history := s.History()
	require.Len(t, history, 3)
	assert.Equal(t, "assistant", history[0].Role)
	assert.Equal(t, "user", history[1].Role)
	assert.Equal(t, "assistant", history[2].Role)

	require.NoError(t, h.orchestrator.EndCall("call-1", observability.ResolutionResolved))
	assert.Equal(t, StateCompleted, s.State())
}

func TestTurnsBeforeAnswerRejected(t *testing.T) {
	h := newHarness(t, nil)
	startedCall(t, h)

	_, err := h.orchestrator.ProcessTurn(context.Background(), "call-1", []byte("hello"))
	assert.ErrorIs(t, err, errors.ErrInvalidTransition)
}

func TestTerminalStateRejectsTurns(t *testing.T) {
	h := newHarness(t, nil)
	startedCall(t, h)
	require.NoError(t, h.orchestrator.EndCall("call-1", observability.ResolutionResolved))

	_, err := h.orchestrator.ProcessTurn(context.Background(), "call-1", []byte("hello"))
	assert.ErrorIs(t, err, errors.ErrSessionTerminated)
}

func TestDuplicateEndEventsTolerated(t *testing.T) {
	h := newHarness(t, nil)
	s := startedCall(t, h)

	require.NoError(t, h.orchestrator.EndCall("call-1", observability.ResolutionResolved))
	require.NoError(t, h.orchestrator.EndCall("call-1", observability.ResolutionResolved))
	require.NoError(t, h.orchestrator.FailCall("call-1", "late failure event"))
	assert.Equal(t, StateCompleted, s.State())

	// Unknown call IDs are late duplicates after cleanup
	require.NoError(t, h.orchestrator.EndCall("call-gone", observability.ResolutionResolved))
}

func TestFailFromAnyNonTerminalState(t *testing.T) {
	h := newHarness(t, nil)
	s := startedCall(t, h)

	require.NoError(t, h.orchestrator.FailCall("call-1", "carrier error"))
	assert.Equal(t, StateFailed, s.State())
}

func TestGuardTerminationEndsCall(t *testing.T) {
	h := newHarness(t, nil)
	s, err := h.orchestrator.StartCall("call-1", "sess-1", "loopback", "a", "b", "stephen",
		guardrails.CallMetadata{ConsentObtained: false, DNCListed: true})
	require.NoError(t, err)

	_, err = h.orchestrator.Answer(context.Background(), "call-1")
	require.NoError(t, err)

	result, err := h.orchestrator.ProcessTurn(context.Background(), "call-1",
		[]byte("Can you store my credit card 4532-1234-5678-9012 with CVV 123?"))
	require.NoError(t, err)

	assert.True(t, result.Terminated)
	assert.Equal(t, RefusalMessage, result.Response)
	require.NotNil(t, result.Verdict)
	assert.False(t, result.Verdict.Allow)
	assert.Equal(t, guardrails.RiskCritical, result.Verdict.RiskLevel)
	assert.Equal(t, StateCompleted, s.State())

	// Masked content, not the raw card number, lands in history
	history := s.History()
	userEntry := history[1]
	assert.Equal(t, "user", userEntry.Role)
	assert.NotContains(t, userEntry.Content, "4532-1234-5678-9012")
}

func TestDistressEscalatesWithoutBlocking(t *testing.T) {
	h := newHarness(t, nil)
	startedCall(t, h)

	_, err := h.orchestrator.Answer(context.Background(), "call-1")
	require.NoError(t, err)

	result, err := h.orchestrator.ProcessTurn(context.Background(), "call-1",
		[]byte("I can't take it anymore, I want to hurt myself"))
	require.NoError(t, err)

	assert.True(t, result.Escalated)
	assert.False(t, result.Terminated)
	require.NotNil(t, result.Verdict)
	assert.True(t, result.Verdict.Allow)
	assert.Contains(t, result.Verdict.ActionsTaken, "mental_health_escalation")
	assert.NotEqual(t, RefusalMessage, result.Response)
}

func TestLowConfidenceFallback(t *testing.T) {
	h := newHarness(t, nil)
	startedCall(t, h)

	_, err := h.orchestrator.Answer(context.Background(), "call-1")
	require.NoError(t, err)

	h.sttMock.QueueResult("mumble", 0.3, "en")
	result, err := h.orchestrator.ProcessTurn(context.Background(), "call-1", []byte("audio"))
	require.NoError(t, err)
	assert.True(t, result.FallbackUsed)
	assert.Equal(t, "I'm sorry, could you speak a bit louder?", result.Response)
	assert.False(t, result.Escalated)

	// Second low-confidence turn trips the repeated-low-confidence policy
	h.sttMock.QueueResult("mumble again", 0.2, "en")
	result, err = h.orchestrator.ProcessTurn(context.Background(), "call-1", []byte("audio"))
	require.NoError(t, err)
	assert.True(t, result.FallbackUsed)
	assert.Equal(t, "I didn't catch that clearly. Could you repeat that?", result.Response)
	assert.True(t, result.Escalated)
}

func TestResponderFailureServesFallback(t *testing.T) {
	h := newHarness(t, nil)
	startedCall(t, h)

	_, err := h.orchestrator.Answer(context.Background(), "call-1")
	require.NoError(t, err)

	h.llmMock.Err = errors.New("model exploded")
	result, err := h.orchestrator.ProcessTurn(context.Background(), "call-1", []byte("hello there"))
	require.NoError(t, err)

	assert.True(t, result.FallbackUsed)
	assert.Equal(t, "I'm experiencing technical difficulties. Let me connect you with a human agent.", result.Response)
	assert.False(t, result.Escalated)

	// Third cumulative error triggers escalation
	_, err = h.orchestrator.ProcessTurn(context.Background(), "call-1", []byte("hello again"))
	require.NoError(t, err)
	result, err = h.orchestrator.ProcessTurn(context.Background(), "call-1", []byte("still here"))
	require.NoError(t, err)
	assert.True(t, result.Escalated)
}

func TestLanguageLock(t *testing.T) {
	h := newHarness(t, nil)
	s := startedCall(t, h)

	_, err := h.orchestrator.Answer(context.Background(), "call-1")
	require.NoError(t, err)

	_, err = h.orchestrator.ProcessTurn(context.Background(), "call-1",
		[]byte("hola sí que bueno el día de hoy"))
	require.NoError(t, err)
	assert.Equal(t, language.LangESES, s.Language())

	// Locked: a later English-looking turn does not switch back
	_, err = h.orchestrator.ProcessTurn(context.Background(), "call-1",
		[]byte("hello yes the and a to no"))
	require.NoError(t, err)
	assert.Equal(t, language.LangESES, s.Language())
}

func TestHistoryWindowBoundsLLMContext(t *testing.T) {
	config := DefaultConfig()
	config.HistoryWindow = 4
	h := newHarness(t, config)
	startedCall(t, h)

	_, err := h.orchestrator.Answer(context.Background(), "call-1")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := h.orchestrator.ProcessTurn(context.Background(), "call-1", []byte("checking in"))
		require.NoError(t, err)
	}

	assert.Len(t, h.llmMock.LastHistory, 4)
}

func TestDispatchEvent(t *testing.T) {
	h := newHarness(t, nil)
	s := startedCall(t, h)
	ctx := context.Background()

	require.NoError(t, h.orchestrator.DispatchEvent(ctx, &telephony.Event{CallSID: "call-1", Status: "ringing"}))
	assert.Equal(t, StateRinging, s.State())

	require.NoError(t, h.orchestrator.DispatchEvent(ctx, &telephony.Event{CallSID: "call-1", Status: "answered"}))
	assert.Equal(t, StateAnswered, s.State())

	require.NoError(t, h.orchestrator.DispatchEvent(ctx, &telephony.Event{CallSID: "call-1", Status: "completed"}))
	assert.Equal(t, StateCompleted, s.State())

	// Unknown statuses are ignored, late events for gone calls tolerated
	require.NoError(t, h.orchestrator.DispatchEvent(ctx, &telephony.Event{CallSID: "call-1", Status: "transcription-ready"}))
	require.NoError(t, h.orchestrator.DispatchEvent(ctx, &telephony.Event{CallSID: "call-gone", Status: "completed"}))
}

func TestTurnEventsPublished(t *testing.T) {
	h := newHarness(t, nil)
	startedCall(t, h)

	_, err := h.orchestrator.Answer(context.Background(), "call-1")
	require.NoError(t, err)

	result, err := h.orchestrator.ProcessTurn(context.Background(), "call-1", []byte("hello there"))
	require.NoError(t, err)

	require.Len(t, h.events.turns, 1)
	got := h.events.turns[0]
	assert.Equal(t, "call-1", got.callID)
	assert.Equal(t, "sess-1", got.sessionID)
	assert.Equal(t, result.TraceID, got.turn.TraceID)
	assert.True(t, got.turn.Allowed)
	assert.Equal(t, "LOW", got.turn.RiskLevel)

	// Fallback turns are published too
	h.llmMock.Err = errors.New("model exploded")
	_, err = h.orchestrator.ProcessTurn(context.Background(), "call-1", []byte("again"))
	require.NoError(t, err)
	require.Len(t, h.events.turns, 2)
	assert.Equal(t, "call-1", h.events.turns[1].callID)
}

func TestDeferredCleanup(t *testing.T) {
	config := DefaultConfig()
	config.CleanupDelay = 10 * time.Millisecond
	h := newHarness(t, config)
	startedCall(t, h)

	require.NoError(t, h.orchestrator.EndCall("call-1", observability.ResolutionResolved))
	assert.Equal(t, 1, h.orchestrator.ActiveCalls())

	assert.Eventually(t, func() bool {
		return h.orchestrator.ActiveCalls() == 0
	}, time.Second, 5*time.Millisecond)

	// A very late duplicate end event after cleanup is a no-op
	require.NoError(t, h.orchestrator.EndCall("call-1", observability.ResolutionResolved))
}

func TestTurnTelemetryRecorded(t *testing.T) {
	h := newHarness(t, nil)
	startedCall(t, h)

	_, err := h.orchestrator.Answer(context.Background(), "call-1")
	require.NoError(t, err)

	result, err := h.orchestrator.ProcessTurn(context.Background(), "call-1", []byte("hello there friend"))
	require.NoError(t, err)

	trace := h.telemetry.Trace(result.TraceID)
	require.NotNil(t, trace)
	assert.Equal(t, "sess-1", trace.SessionID)
	assert.Equal(t, 1, trace.TurnNumber)
	assert.Equal(t, 0.95, trace.STTConfidence)
	assert.True(t, trace.Successful)
}
