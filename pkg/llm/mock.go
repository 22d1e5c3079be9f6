package llm

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// MockResponder is a deterministic responder for tests and the loopback demo.
// It returns queued replies in order, then falls back to a templated echo.
type MockResponder struct {
	logger  *logrus.Logger
	replies []string
	next    int

	// Err, when set, is returned by every GenerateResponse call
	Err error

	// LastHistory records the history passed to the most recent call
	LastHistory []Message
}

// NewMockResponder creates a new mock responder
func NewMockResponder(logger *logrus.Logger) *MockResponder {
	return &MockResponder{logger: logger}
}

// QueueReply appends a canned reply
func (m *MockResponder) QueueReply(text string) {
	m.replies = append(m.replies, text)
}

// Name returns the responder name
func (m *MockResponder) Name() string {
	return "mock"
}

// Initialize initializes the mock responder
func (m *MockResponder) Initialize() error {
	m.logger.Info("Mock responder initialized")
	return nil
}

// GenerateResponse returns the next queued reply or a templated echo
func (m *MockResponder) GenerateResponse(ctx context.Context, input string, history []Message, persona *Persona) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.LastHistory = history

	if m.next < len(m.replies) {
		reply := m.replies[m.next]
		m.next++
		return reply, nil
	}

	name := DefaultPersona
	if persona != nil {
		name = persona.Name
	}
	return fmt.Sprintf("%s heard: %s", name, input), nil
}
