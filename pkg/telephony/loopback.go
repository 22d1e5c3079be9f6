package telephony

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// LoopbackAdapter is an in-process carrier for tests and local demos. Dialed
// calls and streamed audio are recorded in memory instead of leaving the host.
type LoopbackAdapter struct {
	logger *logrus.Entry

	mu     sync.Mutex
	calls  map[string][]byte
	dialed []string
}

// NewLoopbackAdapter creates a loopback adapter
func NewLoopbackAdapter(logger *logrus.Logger) *LoopbackAdapter {
	return &LoopbackAdapter{
		logger: logger.WithField("component", "loopback_adapter"),
		calls:  make(map[string][]byte),
	}
}

// Name returns the carrier name
func (a *LoopbackAdapter) Name() string {
	return "loopback"
}

// MakeCall records the dial and returns a generated call SID
func (a *LoopbackAdapter) MakeCall(ctx context.Context, to, from, webhookURL string) (*DialResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sid := "loop-" + uuid.New().String()

	a.mu.Lock()
	a.calls[sid] = nil
	a.dialed = append(a.dialed, to)
	a.mu.Unlock()

	a.logger.WithFields(logrus.Fields{
		"call_sid": sid,
		"to":       to,
	}).Info("Loopback call created")

	return &DialResult{CallSID: sid, Carrier: "loopback", Status: "success"}, nil
}

// StreamAudio appends the audio to the call's in-memory buffer
func (a *LoopbackAdapter) StreamAudio(ctx context.Context, callSID string, audio []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.calls[callSID]; !ok {
		return fmt.Errorf("loopback call not found: %s", callSID)
	}
	a.calls[callSID] = append(a.calls[callSID], audio...)
	return nil
}

// ValidateWebhook accepts every payload; loopback events originate in-process
func (a *LoopbackAdapter) ValidateWebhook(payload []byte, signature string) bool {
	return true
}

// ParseEvent decodes an Event marshaled by this adapter
func (a *LoopbackAdapter) ParseEvent(payload []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("parsing loopback event: %w", err)
	}
	if event.CallSID == "" {
		return nil, fmt.Errorf("loopback event missing call_sid")
	}
	event.Carrier = "loopback"
	if event.EventType == "" {
		event.EventType = "status_update"
	}
	return &event, nil
}

// FormatSpeakResponse returns the message unchanged
func (a *LoopbackAdapter) FormatSpeakResponse(message string) string {
	return message
}

// StreamedAudio returns the audio accumulated for a call
func (a *LoopbackAdapter) StreamedAudio(callSID string) []byte {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]byte, len(a.calls[callSID]))
	copy(out, a.calls[callSID])
	return out
}

// DialedNumbers returns the destinations dialed so far
func (a *LoopbackAdapter) DialedNumbers() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]string, len(a.dialed))
	copy(out, a.dialed)
	return out
}
