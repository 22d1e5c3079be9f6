package session

import (
	"sync"
	"time"

	"ghostvoice-server/pkg/errors"
	"ghostvoice-server/pkg/guardrails"
	"ghostvoice-server/pkg/language"
	"ghostvoice-server/pkg/llm"
)

// HistoryEntry is one timestamped conversation exchange half.
type HistoryEntry struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// CallSession is the mutable per-call record. All turn processing for one
// call runs under its mutex, so turns are strictly ordered per call while
// different calls proceed concurrently.
type CallSession struct {
	mu sync.Mutex

	callID    string
	sessionID string
	carrier   string
	from      string
	to        string
	persona   string

	state     CallState
	startTime time.Time
	endTime   *time.Time
	metadata  guardrails.CallMetadata
	history   []HistoryEntry

	lang       language.Language
	langLocked bool

	turnCount  int
	errorCount int
	errorTypes []string
}

func newCallSession(callID, sessionID, carrier, from, to, persona string, meta guardrails.CallMetadata) *CallSession {
	return &CallSession{
		callID:    callID,
		sessionID: sessionID,
		carrier:   carrier,
		from:      from,
		to:        to,
		persona:   persona,
		state:     StateInitiated,
		startTime: time.Now(),
		metadata:  meta,
		lang:      language.LangENUS,
	}
}

// transition moves the session to the target state. Caller holds mu.
func (s *CallSession) transition(to CallState) error {
	if !canTransition(s.state, to) {
		return errors.NewInvalidTransition(string(s.state), string(to),
			map[string]interface{}{"call_id": s.callID})
	}
	s.state = to
	if to.Terminal() {
		now := time.Now()
		s.endTime = &now
	}
	return nil
}

// appendHistory adds one conversation entry. Caller holds mu.
func (s *CallSession) appendHistory(role, content string) {
	s.history = append(s.history, HistoryEntry{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
}

// recentHistory returns the last n entries as LLM context. Caller holds mu.
func (s *CallSession) recentHistory(n int) []llm.Message {
	start := 0
	if len(s.history) > n {
		start = len(s.history) - n
	}

	out := make([]llm.Message, 0, len(s.history)-start)
	for _, entry := range s.history[start:] {
		out = append(out, llm.Message{Role: entry.Role, Content: entry.Content})
	}
	return out
}

// CallID returns the carrier call identifier.
func (s *CallSession) CallID() string {
	return s.callID
}

// SessionID returns the logical conversation identifier.
func (s *CallSession) SessionID() string {
	return s.sessionID
}

// State returns the current lifecycle state.
func (s *CallSession) State() CallState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Language returns the session's conversation language.
func (s *CallSession) Language() language.Language {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lang
}

// History returns a copy of the conversation history.
func (s *CallSession) History() []HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]HistoryEntry, len(s.history))
	copy(out, s.history)
	return out
}

// TurnCount returns the number of turns dispatched so far.
func (s *CallSession) TurnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turnCount
}

// Metadata returns the call metadata used by the guard pipeline.
func (s *CallSession) Metadata() guardrails.CallMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metadata
}

// Duration returns the call duration so far, or the final duration once the
// call has ended.
func (s *CallSession) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.endTime != nil {
		return s.endTime.Sub(s.startTime)
	}
	return time.Since(s.startTime)
}
