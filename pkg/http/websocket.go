package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"ghostvoice-server/pkg/guardrails"
	"ghostvoice-server/pkg/messaging"
)

// EventMessage is the frame pushed to websocket subscribers for every
// safety incident and completed turn.
type EventMessage struct {
	EventType string                     `json:"event_type"`
	CallID    string                     `json:"call_id"`
	Timestamp time.Time                  `json:"timestamp"`
	Incident  *guardrails.SafetyIncident `json:"incident,omitempty"`
	Turn      *messaging.TurnEvent       `json:"turn,omitempty"`
}

// Client represents a connected WebSocket client.
type Client struct {
	hub    *EventHub
	conn   *websocket.Conn
	send   chan []byte
	logger *logrus.Logger
	callID string // set when the client subscribes to one call
}

// EventHub manages WebSocket clients and broadcasts call events. It
// implements guardrails.IncidentSink so incidents reach live dashboards the
// moment the validator records them.
type EventHub struct {
	logger          *logrus.Logger
	clients         map[*Client]bool
	callSubscribers map[string]map[*Client]bool
	broadcast       chan *EventMessage
	register        chan *Client
	unregister      chan *Client
	mutex           sync.RWMutex
}

// eventUpgrader configures the WebSocket connection.
var eventUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewEventHub creates an event hub.
func NewEventHub(logger *logrus.Logger) *EventHub {
	return &EventHub{
		logger:          logger,
		clients:         make(map[*Client]bool),
		callSubscribers: make(map[string]map[*Client]bool),
		broadcast:       make(chan *EventMessage, 64),
		register:        make(chan *Client),
		unregister:      make(chan *Client),
	}
}

// Run starts the event hub loop.
func (h *EventHub) Run(ctx context.Context) {
	h.logger.Info("Starting WebSocket event hub")

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("Shutting down WebSocket event hub")
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			if client.callID != "" {
				if _, exists := h.callSubscribers[client.callID]; !exists {
					h.callSubscribers[client.callID] = make(map[*Client]bool)
				}
				h.callSubscribers[client.callID][client] = true
				h.logger.WithField("call_id", client.callID).Info("Client subscribed to specific call")
			}
			h.mutex.Unlock()
			h.logger.Info("Client connected to event WebSocket")

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)

				if client.callID != "" {
					if subscribers, exists := h.callSubscribers[client.callID]; exists {
						delete(subscribers, client)
						if len(subscribers) == 0 {
							delete(h.callSubscribers, client.callID)
						}
					}
				}
				h.logger.Info("Client disconnected from event WebSocket")
			}
			h.mutex.Unlock()

		case message := <-h.broadcast:
			data, err := json.Marshal(message)
			if err != nil {
				h.logger.WithError(err).Error("Failed to marshal event message")
				continue
			}

			h.mutex.Lock()

			if subscribers, exists := h.callSubscribers[message.CallID]; exists {
				for client := range subscribers {
					select {
					case client.send <- data:
					default:
						close(client.send)
						delete(h.clients, client)
						delete(subscribers, client)
					}
				}
			}

			for client := range h.clients {
				// Call-scoped clients already got theirs above
				if client.callID != "" {
					continue
				}

				select {
				case client.send <- data:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}

			h.mutex.Unlock()
		}
	}
}

// PublishIncident broadcasts a safety incident to subscribers. It satisfies
// guardrails.IncidentSink and never blocks the guard pipeline.
func (h *EventHub) PublishIncident(incident *guardrails.SafetyIncident) {
	msg := &EventMessage{
		EventType: messaging.EventTypeIncident,
		CallID:    incident.CallID,
		Timestamp: time.Now(),
		Incident:  incident,
	}

	select {
	case h.broadcast <- msg:
	default:
		h.logger.WithField("incident_id", incident.ID).Warn("Event hub backlog full, dropping incident broadcast")
	}
}

// BroadcastTurn pushes a completed turn summary to subscribers.
func (h *EventHub) BroadcastTurn(callID string, turn *messaging.TurnEvent) {
	msg := &EventMessage{
		EventType: messaging.EventTypeTurn,
		CallID:    callID,
		Timestamp: time.Now(),
		Turn:      turn,
	}

	select {
	case h.broadcast <- msg:
	default:
		h.logger.WithField("call_id", callID).Warn("Event hub backlog full, dropping turn broadcast")
	}
}

// PublishTurnEvent broadcasts a turn summary. It satisfies session.TurnSink;
// a full backlog drops the broadcast rather than failing the turn.
func (h *EventHub) PublishTurnEvent(callID, sessionID string, turn *messaging.TurnEvent) error {
	h.BroadcastTurn(callID, turn)
	return nil
}

// ClientCount returns the number of connected clients.
func (h *EventHub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// ServeWs handles WebSocket requests from clients. An optional call_id query
// parameter scopes the subscription to one call.
func (h *EventHub) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := eventUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade connection to WebSocket")
		return
	}

	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, 256),
		logger: h.logger,
		callID: r.URL.Query().Get("call_id"),
	}

	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}

// writePump pumps messages from the hub to the WebSocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(60 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains the connection so pings and close frames are processed,
// and unregisters the client when the peer goes away.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
