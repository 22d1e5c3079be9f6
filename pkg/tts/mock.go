package tts

import (
	"context"

	"github.com/sirupsen/logrus"
)

// MockProvider implements a deterministic text-to-speech provider for tests
// and the loopback demo. The returned audio is the input text prefixed with
// the voice ID, so assertions can inspect what would have been spoken.
type MockProvider struct {
	logger *logrus.Logger

	// Err, when set, is returned by every Synthesize call
	Err error
}

// NewMockProvider creates a new mock provider
func NewMockProvider(logger *logrus.Logger) *MockProvider {
	return &MockProvider{logger: logger}
}

// Name returns the provider name
func (p *MockProvider) Name() string {
	return "mock"
}

// Initialize initializes the mock provider
func (p *MockProvider) Initialize() error {
	p.logger.Info("Mock TTS provider initialized")
	return nil
}

// Synthesize returns the text tagged with the voice as fake audio bytes
func (p *MockProvider) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	if p.Err != nil {
		return nil, p.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if text == "" {
		return nil, ErrEmptyText
	}

	return []byte(voiceID + "|" + text), nil
}
