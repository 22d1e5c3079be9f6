// Package messaging publishes safety incidents and turn events to an AMQP
// broker for downstream review tooling.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"ghostvoice-server/pkg/guardrails"
	"ghostvoice-server/pkg/metrics"
)

// Event types carried on the queue.
const (
	EventTypeIncident = "safety_incident"
	EventTypeTurn     = "turn_event"
)

// Message is the envelope published for every event.
type Message struct {
	EventType string                     `json:"event_type"`
	CallID    string                     `json:"call_id"`
	SessionID string                     `json:"session_id,omitempty"`
	Timestamp time.Time                  `json:"timestamp"`
	Incident  *guardrails.SafetyIncident `json:"incident,omitempty"`
	Turn      *TurnEvent                 `json:"turn,omitempty"`
}

// TurnEvent summarizes one processed turn for downstream consumers.
type TurnEvent struct {
	TraceID      string   `json:"trace_id"`
	RiskLevel    string   `json:"risk_level"`
	Allowed      bool     `json:"allowed"`
	Escalated    bool     `json:"escalated"`
	Terminated   bool     `json:"terminated"`
	ActionsTaken []string `json:"actions_taken,omitempty"`
}

// Config holds AMQP publisher configuration.
type Config struct {
	URL          string
	QueueName    string
	ExchangeName string
	RoutingKey   string
	Durable      bool
	AutoDelete   bool
}

// Publisher handles the AMQP connection and message publishing. It
// implements guardrails.IncidentSink so the validator can fan incidents out
// without knowing about the broker.
type Publisher struct {
	logger    *logrus.Entry
	config    Config
	conn      *amqp.Connection
	channel   *amqp.Channel
	connected bool
	connMutex sync.RWMutex
	stopChan  chan struct{}
}

// NewPublisher creates an AMQP publisher.
func NewPublisher(logger *logrus.Logger, config Config) *Publisher {
	if config.RoutingKey == "" {
		config.RoutingKey = config.QueueName
	}
	config.Durable = true
	config.AutoDelete = false

	return &Publisher{
		logger:   logger.WithField("component", "messaging"),
		config:   config,
		stopChan: make(chan struct{}),
	}
}

// Connect establishes a connection to the AMQP server.
func (p *Publisher) Connect() error {
	p.connMutex.Lock()
	defer p.connMutex.Unlock()

	if p.connected {
		return nil
	}

	if p.config.URL == "" || p.config.QueueName == "" {
		p.logger.Warn("AMQP URL or queue name not set, event publishing disabled")
		return fmt.Errorf("AMQP URL or queue name not configured")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connChan := make(chan struct {
		conn *amqp.Connection
		err  error
	}, 1)

	go func() {
		conn, err := amqp.Dial(p.config.URL)
		select {
		case <-ctx.Done():
			if conn != nil {
				conn.Close()
			}
		case connChan <- struct {
			conn *amqp.Connection
			err  error
		}{conn, err}:
		}
	}()

	var conn *amqp.Connection
	var err error
	select {
	case result := <-connChan:
		conn = result.conn
		err = result.err
	case <-ctx.Done():
		metrics.RecordAMQPConnectionError("dial_timeout")
		return fmt.Errorf("connection to AMQP server timed out after 5 seconds")
	}

	if err != nil {
		metrics.RecordAMQPConnectionError("dial_failed")
		return fmt.Errorf("failed to connect to AMQP server: %w", err)
	}
	p.conn = conn

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		metrics.RecordAMQPConnectionError("channel_failed")
		return fmt.Errorf("failed to open AMQP channel: %w", err)
	}
	p.channel = channel

	_, err = channel.QueueDeclare(
		p.config.QueueName,
		p.config.Durable,
		p.config.AutoDelete,
		false, // Exclusive
		false, // No-wait
		nil,   // Arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		metrics.RecordAMQPConnectionError("queue_declare_failed")
		return fmt.Errorf("failed to declare AMQP queue: %w", err)
	}

	if err := channel.Qos(10, 0, false); err != nil {
		p.logger.WithError(err).Warn("Failed to set QoS on AMQP channel, continuing anyway")
	}

	p.connected = true
	metrics.SetAMQPConnectionStatus(true)
	p.logger.WithFields(logrus.Fields{
		"url":   p.config.URL,
		"queue": p.config.QueueName,
	}).Info("Connected to AMQP server")

	p.stopChan = make(chan struct{})
	go p.monitorConnection()

	return nil
}

// Disconnect closes the AMQP connection.
func (p *Publisher) Disconnect() {
	p.connMutex.Lock()
	defer p.connMutex.Unlock()

	if !p.connected {
		return
	}

	close(p.stopChan)

	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}

	p.connected = false
	metrics.SetAMQPConnectionStatus(false)
	p.logger.Info("Disconnected from AMQP server")
}

// IsConnected returns the connection status.
func (p *Publisher) IsConnected() bool {
	p.connMutex.RLock()
	defer p.connMutex.RUnlock()
	return p.connected
}

// PublishIncident publishes a safety incident. Failures are logged, never
// propagated, so the guard pipeline is unaffected by broker trouble.
func (p *Publisher) PublishIncident(incident *guardrails.SafetyIncident) {
	msg := &Message{
		EventType: EventTypeIncident,
		CallID:    incident.CallID,
		Timestamp: time.Now(),
		Incident:  incident,
	}

	if err := p.publish(msg); err != nil {
		p.logger.WithError(err).WithField("incident_id", incident.ID).Error("Failed to publish safety incident")
	}
}

// PublishTurnEvent publishes a turn summary for a call.
func (p *Publisher) PublishTurnEvent(callID, sessionID string, turn *TurnEvent) error {
	msg := &Message{
		EventType: EventTypeTurn,
		CallID:    callID,
		SessionID: sessionID,
		Timestamp: time.Now(),
		Turn:      turn,
	}
	return p.publish(msg)
}

// publish sends one message with a bounded wait so a wedged broker cannot
// stall a call turn.
func (p *Publisher) publish(msg *Message) error {
	defer func() {
		if r := recover(); r != nil {
			p.logger.WithFields(logrus.Fields{
				"call_id": msg.CallID,
				"recover": r,
			}).Error("Recovered from panic while publishing")
		}
	}()

	if !p.IsConnected() {
		metrics.RecordAMQPPublish(p.config.QueueName, "not_connected")
		return fmt.Errorf("not connected to AMQP server")
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	publishChan := make(chan error, 1)
	go func() {
		p.connMutex.RLock()
		defer p.connMutex.RUnlock()

		if !p.connected || p.channel == nil {
			select {
			case <-ctx.Done():
			case publishChan <- fmt.Errorf("lost AMQP connection before publishing"):
			}
			return
		}

		err := p.channel.Publish(
			p.config.ExchangeName,
			p.config.RoutingKey,
			false, // Mandatory
			false, // Immediate
			amqp.Publishing{
				ContentType:  "application/json",
				Body:         body,
				DeliveryMode: amqp.Persistent,
				Timestamp:    time.Now(),
				Expiration:   "43200000", // 12 hours
				Headers: amqp.Table{
					"x-event-type": msg.EventType,
					"x-call-id":    msg.CallID,
				},
			},
		)

		select {
		case <-ctx.Done():
		case publishChan <- err:
		}
	}()

	select {
	case err := <-publishChan:
		if err != nil {
			metrics.RecordAMQPPublish(p.config.QueueName, "error")
			return fmt.Errorf("failed to publish to AMQP: %w", err)
		}
	case <-ctx.Done():
		metrics.RecordAMQPPublish(p.config.QueueName, "timeout")
		return fmt.Errorf("publishing to AMQP timed out after 200ms")
	}

	metrics.RecordAMQPPublish(p.config.QueueName, "success")
	p.logger.WithFields(logrus.Fields{
		"call_id":    msg.CallID,
		"event_type": msg.EventType,
	}).Debug("Published event to AMQP")
	return nil
}

// monitorConnection watches for a broker-side close and reconnects with
// exponential backoff. The broker closes the NotifyClose channel when the
// connection dies, so this monitor is single-shot: a successful Connect
// starts a fresh monitor registered on the new connection.
func (p *Publisher) monitorConnection() {
	closeChan := make(chan *amqp.Error)

	p.connMutex.RLock()
	if p.conn != nil {
		p.conn.NotifyClose(closeChan)
	}
	p.connMutex.RUnlock()

	select {
	case <-p.stopChan:
		return
	case closeErr := <-closeChan:
		p.connMutex.Lock()
		p.connected = false
		p.connMutex.Unlock()
		metrics.SetAMQPConnectionStatus(false)

		p.logger.WithError(closeErr).Warn("AMQP connection closed, attempting to reconnect")

		for attempt := 1; attempt <= 10; attempt++ {
			p.logger.WithField("attempt", attempt).Info("Reconnecting to AMQP server")

			if err := p.Connect(); err == nil {
				metrics.RecordAMQPReconnectAttempt("success")
				p.logger.Info("Successfully reconnected to AMQP server")
				return
			} else {
				metrics.RecordAMQPReconnectAttempt("failure")
				p.logger.WithError(err).WithField("attempt", attempt).Error("Failed to reconnect to AMQP server")
			}

			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			if backoff > 30*time.Second {
				backoff = 30 * time.Second
			}
			time.Sleep(backoff)
		}

		p.logger.Error("Giving up on AMQP reconnection, publishing stays disabled until the next Connect")
	}
}
