// Package observability aggregates per-call conversation metrics and daily
// containment statistics.
package observability

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Resolution classifies how a call ended.
const (
	ResolutionResolved  = "resolved"
	ResolutionEscalated = "escalated"
	ResolutionDropped   = "dropped"
)

// CallMetrics holds the conversation metrics for one call.
type CallMetrics struct {
	CallID    string     `json:"call_id"`
	SessionID string     `json:"session_id"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	TurnsCompleted          int `json:"turns_completed"`
	SuccessfulInterruptions int `json:"successful_interruptions"`
	FailedInterruptions     int `json:"failed_interruptions"`
	Escalations             int `json:"escalations"`

	AvgResponseTime   time.Duration `json:"avg_response_time"`
	FirstResponseTime time.Duration `json:"first_response_time"`

	Resolution          string `json:"resolution"`
	ContainmentAchieved bool   `json:"containment_achieved"`

	ErrorCount int      `json:"error_count"`
	ErrorTypes []string `json:"error_types,omitempty"`
}

// DailySummary is the derived view over one day's calls.
type DailySummary struct {
	Date            string        `json:"date"`
	TotalCalls      int           `json:"total_calls"`
	TotalTurns      int           `json:"total_turns"`
	ContainmentRate float64       `json:"containment_rate"`
	EscalationRate  float64       `json:"escalation_rate"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
}

type dailyStats struct {
	totalCalls        int
	resolvedCalls     int
	escalatedCalls    int
	totalTurns        int
	totalResponseTime time.Duration
}

// AlertRules are the thresholds checked when a call ends.
type AlertRules struct {
	MaxAvgResponseTime time.Duration
	MaxErrorRate       float64
}

// DefaultAlertRules returns the production call-level thresholds.
func DefaultAlertRules() AlertRules {
	return AlertRules{
		MaxAvgResponseTime: 500 * time.Millisecond,
		MaxErrorRate:       0.05,
	}
}

// Collector tracks active calls and rolls finished calls into daily stats.
type Collector struct {
	logger *logrus.Entry
	rules  AlertRules

	mu    sync.Mutex
	calls map[string]*CallMetrics
	daily map[string]*dailyStats
}

// NewCollector creates an observability collector.
func NewCollector(logger *logrus.Logger, rules AlertRules) *Collector {
	return &Collector{
		logger: logger.WithField("component", "observability"),
		rules:  rules,
		calls:  make(map[string]*CallMetrics),
		daily:  make(map[string]*dailyStats),
	}
}

// StartCall begins tracking a call.
func (c *Collector) StartCall(callID, sessionID string) {
	c.mu.Lock()
	c.calls[callID] = &CallMetrics{
		CallID:     callID,
		SessionID:  sessionID,
		StartTime:  time.Now(),
		Resolution: "unknown",
	}
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"call_id":    callID,
		"session_id": sessionID,
	}).Info("Call tracking started")
}

// RecordTurn updates the running response-time average for a call.
func (c *Collector) RecordTurn(callID string, responseTime time.Duration, successful bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.calls[callID]
	if !ok {
		return
	}

	m.TurnsCompleted++
	if m.TurnsCompleted == 1 {
		m.AvgResponseTime = responseTime
		m.FirstResponseTime = responseTime
	} else {
		total := m.AvgResponseTime * time.Duration(m.TurnsCompleted-1)
		m.AvgResponseTime = (total + responseTime) / time.Duration(m.TurnsCompleted)
	}
	if !successful {
		m.ErrorCount++
	}
}

// RecordInterruption records a barge-in attempt.
func (c *Collector) RecordInterruption(callID string, successful bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.calls[callID]
	if !ok {
		return
	}
	if successful {
		m.SuccessfulInterruptions++
	} else {
		m.FailedInterruptions++
	}
}

// RecordEscalation records a handoff to a human agent.
func (c *Collector) RecordEscalation(callID, reason string) {
	c.mu.Lock()
	if m, ok := c.calls[callID]; ok {
		m.Escalations++
	}
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"call_id": callID,
		"reason":  reason,
	}).Info("Call escalated")
}

// RecordError appends an error category to the call.
func (c *Collector) RecordError(callID, errorType string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if m, ok := c.calls[callID]; ok {
		m.ErrorCount++
		m.ErrorTypes = append(m.ErrorTypes, errorType)
	}
}

// EndCall finalizes a call's metrics, checks alert thresholds, and updates
// the daily stats.
func (c *Collector) EndCall(callID, resolution string) {
	c.mu.Lock()
	m, ok := c.calls[callID]
	if !ok {
		c.mu.Unlock()
		return
	}

	now := time.Now()
	m.EndTime = &now
	m.Resolution = resolution
	m.ContainmentAchieved = resolution == ResolutionResolved

	day := c.daily[dateKey(m.StartTime)]
	if day == nil {
		day = &dailyStats{}
		c.daily[dateKey(m.StartTime)] = day
	}
	day.totalCalls++
	day.totalTurns += m.TurnsCompleted
	day.totalResponseTime += m.AvgResponseTime
	if m.Resolution == ResolutionResolved {
		day.resolvedCalls++
	} else if m.Escalations > 0 {
		day.escalatedCalls++
	}
	snapshot := *m
	c.mu.Unlock()

	c.checkAlerts(&snapshot)

	c.logger.WithFields(logrus.Fields{
		"call_id":    callID,
		"resolution": resolution,
		"turns":      snapshot.TurnsCompleted,
	}).Info("Call tracking ended")
}

func (c *Collector) checkAlerts(m *CallMetrics) {
	if m.AvgResponseTime > c.rules.MaxAvgResponseTime {
		c.logger.WithFields(logrus.Fields{
			"call_id":         m.CallID,
			"avg_response_ms": m.AvgResponseTime.Milliseconds(),
		}).Warn("High average response time")
	}

	if m.TurnsCompleted > 0 {
		errorRate := float64(m.ErrorCount) / float64(m.TurnsCompleted)
		if errorRate > c.rules.MaxErrorRate {
			c.logger.WithFields(logrus.Fields{
				"call_id":    m.CallID,
				"error_rate": errorRate,
			}).Warn("High error rate")
		}
	}
}

// Call returns a copy of the call's metrics, or nil when unknown.
func (c *Collector) Call(callID string) *CallMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.calls[callID]
	if !ok {
		return nil
	}
	snapshot := *m
	return &snapshot
}

// DailySummaryFor returns the derived stats for a date in YYYY-MM-DD form.
// Returns a zero-valued summary when no calls ended on that date.
func (c *Collector) DailySummaryFor(date string) DailySummary {
	c.mu.Lock()
	defer c.mu.Unlock()

	summary := DailySummary{Date: date}
	day, ok := c.daily[date]
	if !ok || day.totalCalls == 0 {
		return summary
	}

	summary.TotalCalls = day.totalCalls
	summary.TotalTurns = day.totalTurns
	summary.ContainmentRate = float64(day.resolvedCalls) / float64(day.totalCalls)
	summary.EscalationRate = float64(day.escalatedCalls) / float64(day.totalCalls)
	summary.AvgResponseTime = day.totalResponseTime / time.Duration(day.totalCalls)
	return summary
}

// TodaySummary returns the derived stats for the current date.
func (c *Collector) TodaySummary() DailySummary {
	return c.DailySummaryFor(dateKey(time.Now()))
}

func dateKey(t time.Time) string {
	return t.Format("2006-01-02")
}
