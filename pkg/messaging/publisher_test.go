package messaging

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ghostvoice-server/pkg/guardrails"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestConfigDefaults(t *testing.T) {
	p := NewPublisher(testLogger(), Config{URL: "amqp://localhost", QueueName: "ghostvoice.events"})

	assert.Equal(t, "ghostvoice.events", p.config.RoutingKey)
	assert.True(t, p.config.Durable)
	assert.False(t, p.config.AutoDelete)
	assert.False(t, p.IsConnected())
}

func TestConnectRequiresConfiguration(t *testing.T) {
	p := NewPublisher(testLogger(), Config{})

	err := p.Connect()
	assert.Error(t, err)
	assert.False(t, p.IsConnected())
}

func TestPublishWhileDisconnected(t *testing.T) {
	p := NewPublisher(testLogger(), Config{URL: "amqp://localhost", QueueName: "q"})

	err := p.PublishTurnEvent("call-1", "sess-1", &TurnEvent{TraceID: "abc12345", RiskLevel: "LOW", Allowed: true})
	assert.Error(t, err)

	// The incident sink swallows broker errors
	p.PublishIncident(&guardrails.SafetyIncident{ID: "INC_1_abc", CallID: "call-1"})
}

func TestDisconnectWithoutConnectIsNoop(t *testing.T) {
	p := NewPublisher(testLogger(), Config{URL: "amqp://localhost", QueueName: "q"})
	p.Disconnect()
	assert.False(t, p.IsConnected())
}

func TestMonitorStopsOnDisconnectSignal(t *testing.T) {
	p := NewPublisher(testLogger(), Config{URL: "amqp://localhost", QueueName: "q"})

	done := make(chan struct{})
	go func() {
		p.monitorConnection()
		close(done)
	}()

	close(p.stopChan)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop on disconnect signal")
	}
}

func TestMessageEnvelope(t *testing.T) {
	incident := &guardrails.SafetyIncident{
		ID:         "INC_1700000000_def123",
		CallID:     "call-abcdef123",
		Timestamp:  time.Now(),
		RiskLevel:  guardrails.RiskHigh,
		AutoAction: "human_review_required",
	}
	msg := &Message{
		EventType: EventTypeIncident,
		CallID:    incident.CallID,
		Timestamp: time.Now(),
		Incident:  incident,
	}

	body, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded Message
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, EventTypeIncident, decoded.EventType)
	assert.Equal(t, "call-abcdef123", decoded.CallID)
	require.NotNil(t, decoded.Incident)
	assert.Equal(t, "INC_1700000000_def123", decoded.Incident.ID)
	assert.Nil(t, decoded.Turn)
}
