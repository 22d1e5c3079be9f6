// Package telephony abstracts the carrier integrations: outbound dialing,
// webhook event parsing and audio streaming, behind a carrier-keyed factory.
package telephony

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// DialResult reports the outcome of an outbound call attempt.
type DialResult struct {
	CallSID string `json:"call_sid"`
	Carrier string `json:"carrier"`
	Status  string `json:"status"`
}

// Event is a carrier webhook normalized into a common shape.
type Event struct {
	CallSID   string `json:"call_sid"`
	Status    string `json:"status"`
	Carrier   string `json:"carrier"`
	EventType string `json:"event_type"`
}

// Adapter defines the interface for telephony carrier adapters
type Adapter interface {
	// Name returns the carrier name
	Name() string

	// MakeCall initiates an outbound call
	MakeCall(ctx context.Context, to, from, webhookURL string) (*DialResult, error)

	// StreamAudio streams synthesized audio to an active call
	StreamAudio(ctx context.Context, callSID string, audio []byte) error

	// ValidateWebhook validates a webhook signature
	ValidateWebhook(payload []byte, signature string) bool

	// ParseEvent normalizes a carrier webhook payload
	ParseEvent(payload []byte) (*Event, error)

	// FormatSpeakResponse renders the carrier-specific speak instruction
	FormatSpeakResponse(message string) string
}

// AdapterFactory builds adapters by carrier name
type AdapterFactory struct {
	logger   *logrus.Logger
	builders map[string]func(*logrus.Logger) Adapter
	order    []string
}

// NewAdapterFactory creates a factory with the built-in carriers registered
func NewAdapterFactory(logger *logrus.Logger) *AdapterFactory {
	f := &AdapterFactory{
		logger:   logger,
		builders: make(map[string]func(*logrus.Logger) Adapter),
	}

	f.Register("twilio", func(l *logrus.Logger) Adapter { return NewTwilioAdapter(l) })
	f.Register("telnyx", func(l *logrus.Logger) Adapter { return NewTelnyxAdapter(l) })
	f.Register("loopback", func(l *logrus.Logger) Adapter { return NewLoopbackAdapter(l) })

	return f
}

// Register adds a carrier builder
func (f *AdapterFactory) Register(carrier string, builder func(*logrus.Logger) Adapter) {
	if _, exists := f.builders[carrier]; !exists {
		f.order = append(f.order, carrier)
	}
	f.builders[carrier] = builder
}

// CreateAdapter builds an adapter for the named carrier
func (f *AdapterFactory) CreateAdapter(carrier string) (Adapter, error) {
	builder, ok := f.builders[carrier]
	if !ok {
		return nil, fmt.Errorf("unsupported carrier: %s", carrier)
	}
	return builder(f.logger), nil
}

// SupportedCarriers lists registered carrier names in registration order
func (f *AdapterFactory) SupportedCarriers() []string {
	out := make([]string, len(f.order))
	copy(out, f.order)
	return out
}
