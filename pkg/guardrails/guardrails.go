// Package guardrails implements the per-turn guard pipeline: PII detection
// and masking, compliance framework checks, content safety filtering, session
// rate limiting, risk scoring and enforcement action resolution, plus the
// incident log and safety dashboard built on top of those findings.
package guardrails

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"ghostvoice-server/pkg/errors"
	"ghostvoice-server/pkg/metrics"
)

// Verdict is the full guard-pipeline decision for one conversation turn.
type Verdict struct {
	CallID         string           `json:"call_id"`
	SessionID      string           `json:"session_id"`
	Timestamp      time.Time        `json:"timestamp"`
	ValidationTime time.Duration    `json:"validation_time"`
	PII            *PIIDetection    `json:"pii"`
	Violations     []Violation      `json:"violations"`
	SafetyIssues   []string         `json:"safety_issues"`
	RateLimit      *RateLimitResult `json:"rate_limit"`
	RiskLevel      RiskLevel        `json:"risk_level"`
	Allow          bool             `json:"allow"`
	Review         bool             `json:"review"`
	Escalate       bool             `json:"escalate"`
	Terminate      bool             `json:"terminate"`
	ActionsTaken   []string         `json:"actions_taken"`
}

// SafetyIncident is a persisted record of a high-risk turn.
type SafetyIncident struct {
	ID                  string    `json:"incident_id"`
	CallID              string    `json:"call_id"`
	Timestamp           time.Time `json:"timestamp"`
	RiskLevel           RiskLevel `json:"risk_level"`
	Description         string    `json:"description"`
	AutoAction          string    `json:"auto_action"`
	HumanReviewRequired bool      `json:"human_review_required"`
	Resolved            bool      `json:"resolved"`
}

// Dashboard is the aggregate safety view served to operators.
type Dashboard struct {
	Timestamp             time.Time         `json:"timestamp"`
	IncidentsLast24h      int               `json:"incidents_last_24h"`
	ViolationsByFramework map[Framework]int `json:"violations_by_framework"`
	BreakerStates         map[string]string `json:"circuit_breaker_states"`
	ActiveRateLimits      map[string]int    `json:"active_rate_limits"`
	RecentIncidents       []SafetyIncident  `json:"recent_incidents"`
}

// IncidentSink receives incidents as they are created, for fan-out to
// messaging or websocket subscribers. Implementations must not block.
type IncidentSink interface {
	PublishIncident(incident *SafetyIncident)
}

// MultiSink fans incidents out to several sinks in order.
type MultiSink []IncidentSink

// PublishIncident delivers the incident to every sink.
func (m MultiSink) PublishIncident(incident *SafetyIncident) {
	for _, sink := range m {
		sink.PublishIncident(incident)
	}
}

// Validator runs every guard stage over each turn and resolves the verdict.
type Validator struct {
	logger     *logrus.Entry
	pii        *PIIDetector
	compliance *ComplianceEngine
	safety     *SafetyFilter
	rateLimit  *RateLimiter
	risk       *RiskAssessor

	breakerStates func() map[string]string
	sink          IncidentSink

	incidentMu sync.Mutex
	incidents  []SafetyIncident
}

// Option configures optional Validator collaborators.
type Option func(*Validator)

// WithBreakerStates supplies the dashboard's circuit breaker state snapshot.
func WithBreakerStates(fn func() map[string]string) Option {
	return func(v *Validator) { v.breakerStates = fn }
}

// WithIncidentSink registers a fan-out target for new incidents.
func WithIncidentSink(sink IncidentSink) Option {
	return func(v *Validator) { v.sink = sink }
}

// NewValidator wires the full guard pipeline.
func NewValidator(logger *logrus.Logger, frameworks []Framework, maxTurns int, window time.Duration, opts ...Option) *Validator {
	v := &Validator{
		logger:     logger.WithField("component", "guardrails"),
		pii:        NewPIIDetector(logger),
		compliance: NewComplianceEngine(logger, frameworks),
		safety:     NewSafetyFilter(logger),
		rateLimit:  NewRateLimiter(logger, maxTurns, window),
		risk:       NewRiskAssessor(logger),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate runs all guard stages over one turn and returns the verdict.
// Every stage runs on every turn; a critical finding in one stage never
// short-circuits the others. The error return covers invalid input only,
// never an unfavorable verdict.
func (v *Validator) Validate(callID, sessionID, content string, meta CallMetadata) (*Verdict, error) {
	if callID == "" {
		return nil, errors.NewInvalidInput("call ID is required")
	}
	if sessionID == "" {
		return nil, errors.NewInvalidInput("session ID is required")
	}

	start := time.Now()

	pii := v.pii.DetectAndMask(content)
	violations := v.compliance.CheckCompliance(content, meta)
	safety := v.safety.CheckSafety(content)
	rate := v.rateLimit.Check(sessionID)
	risk := v.risk.Assess(pii, violations, safety)

	allow, review, escalate, terminate, actions := ResolveActions(risk, pii, violations, safety)

	verdict := &Verdict{
		CallID:         callID,
		SessionID:      sessionID,
		Timestamp:      start,
		ValidationTime: time.Since(start),
		PII:            pii,
		Violations:     violations,
		SafetyIssues:   safety.Issues,
		RateLimit:      rate,
		RiskLevel:      risk,
		Allow:          allow,
		Review:         review,
		Escalate:       escalate,
		Terminate:      terminate,
		ActionsTaken:   actions,
	}

	metrics.RecordRiskLevel(risk.String())
	if pii.Detected {
		metrics.RecordPIIDetection(len(pii.Types))
	}
	for _, viol := range violations {
		metrics.RecordComplianceViolation(string(viol.Framework))
	}
	if rate.Limited {
		metrics.RecordRateLimitHit()
	}

	if risk >= RiskHigh {
		v.recordIncident(verdict)
	}

	v.logger.WithFields(logrus.Fields{
		"call_id":    callID,
		"session_id": sessionID,
		"risk_level": risk.String(),
		"allow":      allow,
		"actions":    actions,
	}).Info("Turn validated")

	return verdict, nil
}

// recordIncident creates, stores and fans out an incident for a high-risk turn.
func (v *Validator) recordIncident(verdict *Verdict) {
	suffix := verdict.CallID
	if len(suffix) > 6 {
		suffix = suffix[len(suffix)-6:]
	}

	var details []string
	details = append(details, verdict.SafetyIssues...)
	for _, viol := range verdict.Violations {
		details = append(details, viol.Description)
	}
	if len(details) > 3 {
		details = details[:3]
	}

	autoAction := "human_review_required"
	if verdict.RiskLevel == RiskMedium {
		autoAction = "monitoring_enhanced"
	}

	incident := SafetyIncident{
		ID:                  fmt.Sprintf("INC_%d_%s", verdict.Timestamp.Unix(), suffix),
		CallID:              verdict.CallID,
		Timestamp:           verdict.Timestamp,
		RiskLevel:           verdict.RiskLevel,
		Description:         fmt.Sprintf("Risk level %s detected: %s", verdict.RiskLevel.String(), strings.Join(details, ", ")),
		AutoAction:          autoAction,
		HumanReviewRequired: verdict.RiskLevel >= RiskHigh,
	}

	v.incidentMu.Lock()
	v.incidents = append(v.incidents, incident)
	v.incidentMu.Unlock()

	metrics.RecordSafetyIncident(verdict.RiskLevel.String())

	v.logger.WithFields(logrus.Fields{
		"incident_id": incident.ID,
		"call_id":     incident.CallID,
		"risk_level":  incident.RiskLevel.String(),
	}).Error("Safety incident created")

	if v.sink != nil {
		v.sink.PublishIncident(&incident)
	}
}

// Incidents returns a snapshot of all recorded incidents.
func (v *Validator) Incidents() []SafetyIncident {
	v.incidentMu.Lock()
	defer v.incidentMu.Unlock()
	out := make([]SafetyIncident, len(v.incidents))
	copy(out, v.incidents)
	return out
}

// GetDashboard assembles the operator safety view: incident volume over the
// last 24 hours, violation counts by framework, breaker states, sessions with
// rate limit violations and the ten most recent incidents.
func (v *Validator) GetDashboard() *Dashboard {
	now := time.Now()
	cutoff := now.Add(-24 * time.Hour)

	v.incidentMu.Lock()
	var recent24 int
	for _, inc := range v.incidents {
		if !inc.Timestamp.Before(cutoff) {
			recent24++
		}
	}
	last := v.incidents
	if len(last) > 10 {
		last = last[len(last)-10:]
	}
	recentIncidents := make([]SafetyIncident, len(last))
	copy(recentIncidents, last)
	v.incidentMu.Unlock()

	byFramework := make(map[Framework]int)
	for _, viol := range v.compliance.ViolationsSince(cutoff) {
		byFramework[viol.Framework]++
	}

	states := map[string]string{}
	if v.breakerStates != nil {
		states = v.breakerStates()
	}

	return &Dashboard{
		Timestamp:             now,
		IncidentsLast24h:      recent24,
		ViolationsByFramework: byFramework,
		BreakerStates:         states,
		ActiveRateLimits:      v.rateLimit.ActiveLimits(),
		RecentIncidents:       recentIncidents,
	}
}
