package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ghostvoice-server/pkg/guardrails"
	"ghostvoice-server/pkg/messaging"
)

func dialHub(t *testing.T, hub *EventHub, query string) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWs))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 1
	}, time.Second, 10*time.Millisecond)

	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) *EventMessage {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg EventMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return &msg
}

func TestHubBroadcastsIncident(t *testing.T) {
	hub := NewEventHub(testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	conn := dialHub(t, hub, "")

	hub.PublishIncident(&guardrails.SafetyIncident{
		ID:        "INC_1700000000_abc123",
		CallID:    "call-1",
		RiskLevel: guardrails.RiskHigh,
	})

	msg := readEvent(t, conn)
	assert.Equal(t, messaging.EventTypeIncident, msg.EventType)
	assert.Equal(t, "call-1", msg.CallID)
	require.NotNil(t, msg.Incident)
	assert.Equal(t, "INC_1700000000_abc123", msg.Incident.ID)
	assert.Nil(t, msg.Turn)
}

func TestHubFiltersCallScopedSubscribers(t *testing.T) {
	hub := NewEventHub(testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	conn := dialHub(t, hub, "?call_id=call-1")

	hub.BroadcastTurn("call-2", &messaging.TurnEvent{TraceID: "aaaa1111", RiskLevel: "LOW", Allowed: true})
	hub.BroadcastTurn("call-1", &messaging.TurnEvent{TraceID: "bbbb2222", RiskLevel: "HIGH", Escalated: true})

	// Only the subscribed call's event arrives
	msg := readEvent(t, conn)
	assert.Equal(t, "call-1", msg.CallID)
	require.NotNil(t, msg.Turn)
	assert.Equal(t, "bbbb2222", msg.Turn.TraceID)
}

func TestHubDisconnectCleansUp(t *testing.T) {
	hub := NewEventHub(testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	conn := dialHub(t, hub, "")
	conn.Close()

	assert.Eventually(t, func() bool {
		return hub.ClientCount() == 0
	}, time.Second, 10*time.Millisecond)
}
