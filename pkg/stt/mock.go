package stt

import (
	"context"

	"github.com/sirupsen/logrus"
)

// MockProvider implements a deterministic speech-to-text provider for tests
// and the loopback demo. It returns canned transcripts in order, or echoes
// the audio payload as text when no transcripts are queued.
type MockProvider struct {
	logger      *logrus.Logger
	transcripts []Result
	next        int

	// Err, when set, is returned by every Transcribe call
	Err error
}

// NewMockProvider creates a new mock provider
func NewMockProvider(logger *logrus.Logger) *MockProvider {
	return &MockProvider{logger: logger}
}

// QueueResult appends a canned transcription result
func (p *MockProvider) QueueResult(text string, confidence float64, language string) {
	p.transcripts = append(p.transcripts, Result{
		Text:       text,
		Confidence: confidence,
		Language:   language,
	})
}

// Name returns the provider name
func (p *MockProvider) Name() string {
	return "mock"
}

// Initialize initializes the mock provider
func (p *MockProvider) Initialize() error {
	p.logger.Info("Mock STT provider initialized")
	return nil
}

// Transcribe returns the next queued result, or echoes the audio bytes
func (p *MockProvider) Transcribe(ctx context.Context, audio []byte) (*Result, error) {
	if p.Err != nil {
		return nil, p.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(audio) == 0 {
		return nil, ErrEmptyAudio
	}

	if p.next < len(p.transcripts) {
		result := p.transcripts[p.next]
		p.next++
		return &result, nil
	}

	return &Result{
		Text:       string(audio),
		Confidence: 0.95,
		Language:   "en",
	}, nil
}
