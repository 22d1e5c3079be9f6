// Package tts defines the text-to-speech provider contract and registry.
package tts

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	// ErrNoProviderAvailable indicates no registered provider could serve the request
	ErrNoProviderAvailable = errors.New("no text-to-speech provider available")

	// ErrEmptyText indicates there was nothing to synthesize
	ErrEmptyText = errors.New("empty synthesis text")
)

// Provider defines the interface for text-to-speech providers
type Provider interface {
	// Initialize initializes the provider with any required configuration
	Initialize() error

	// Name returns the provider name
	Name() string

	// Synthesize renders the text as audio using the given voice
	Synthesize(ctx context.Context, text, voiceID string) ([]byte, error)
}

// ProviderManager manages the registered text-to-speech providers
type ProviderManager struct {
	logger          *logrus.Logger
	providers       map[string]Provider
	defaultProvider string
}

// NewProviderManager creates a new provider manager
func NewProviderManager(logger *logrus.Logger, defaultProvider string) *ProviderManager {
	return &ProviderManager{
		logger:          logger,
		providers:       make(map[string]Provider),
		defaultProvider: defaultProvider,
	}
}

// RegisterProvider initializes and registers a text-to-speech provider
func (m *ProviderManager) RegisterProvider(provider Provider) error {
	if err := provider.Initialize(); err != nil {
		m.logger.WithFields(logrus.Fields{
			"provider": provider.Name(),
			"error":    err,
		}).Error("Failed to initialize text-to-speech provider")
		return err
	}

	m.providers[provider.Name()] = provider
	m.logger.WithField("provider", provider.Name()).Info("Registered text-to-speech provider")

	return nil
}

// GetProvider returns a provider by name
func (m *ProviderManager) GetProvider(name string) (Provider, bool) {
	provider, exists := m.providers[name]
	return provider, exists
}

// Synthesize routes the text to the named provider, falling back to the
// default provider when the requested one is not registered
func (m *ProviderManager) Synthesize(ctx context.Context, providerName, text, voiceID string) ([]byte, error) {
	startTime := time.Now()

	provider, exists := m.GetProvider(providerName)
	if !exists {
		provider, exists = m.GetProvider(m.defaultProvider)
		if !exists {
			return nil, ErrNoProviderAvailable
		}
	}

	audio, err := provider.Synthesize(ctx, text, voiceID)

	m.logger.WithFields(logrus.Fields{
		"provider":    provider.Name(),
		"voice_id":    voiceID,
		"duration_ms": time.Since(startTime).Milliseconds(),
		"error":       err != nil,
	}).Debug("Synthesis completed")

	return audio, err
}
