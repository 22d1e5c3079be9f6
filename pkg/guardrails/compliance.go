package guardrails

import (
	"regexp"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Violation records a single compliance rule that fired on a turn.
type Violation struct {
	Framework       Framework `json:"framework"`
	RuleID          string    `json:"rule_id"`
	Severity        RiskLevel `json:"severity"`
	Description     string    `json:"description"`
	DetectedContent string    `json:"detected_content"`
	Timestamp       time.Time `json:"timestamp"`
}

// CallMetadata carries the per-call facts the metadata-based rules need.
type CallMetadata struct {
	ConsentObtained bool              `json:"consent_obtained"`
	DNCListed       bool              `json:"dnc_listed"`
	Persona         string            `json:"persona,omitempty"`
	Extra           map[string]string `json:"extra,omitempty"`
}

// complianceRule is either pattern-based (re != nil) or a metadata predicate.
type complianceRule struct {
	id          string
	description string
	severity    RiskLevel
	re          *regexp.Regexp
	check       func(meta CallMetadata) (string, bool)
}

// ComplianceEngine evaluates turn text and call metadata against the rule
// tables of the enabled regulatory frameworks.
type ComplianceEngine struct {
	logger           *logrus.Entry
	activeFrameworks []Framework
	rules            map[Framework][]complianceRule

	historyMu sync.Mutex
	history   []Violation
}

// DefaultFrameworks is the set enabled when no configuration overrides it.
var DefaultFrameworks = []Framework{FrameworkPCIDSS, FrameworkTCPA}

// NewComplianceEngine creates an engine with the built-in rule tables.
// An empty frameworks slice enables the default set.
func NewComplianceEngine(logger *logrus.Logger, frameworks []Framework) *ComplianceEngine {
	if len(frameworks) == 0 {
		frameworks = DefaultFrameworks
	}

	return &ComplianceEngine{
		logger:           logger.WithField("component", "compliance_engine"),
		activeFrameworks: frameworks,
		rules: map[Framework][]complianceRule{
			FrameworkPCIDSS: {
				{
					id:          "no_cc_storage",
					description: "Credit card numbers must not be stored",
					severity:    RiskCritical,
					re:          regexp.MustCompile(`\b(?:\d{4}[-\s]?){3}\d{4}\b`),
				},
				{
					id:          "no_cvv_storage",
					description: "CVV codes must not be stored",
					severity:    RiskCritical,
					re:          regexp.MustCompile(`(?i)\bcvv:?\s*\d{3,4}\b`),
				},
			},
			FrameworkTCPA: {
				{
					id:          "consent_required",
					description: "Calls require explicit consent",
					severity:    RiskHigh,
					check: func(meta CallMetadata) (string, bool) {
						if !meta.ConsentObtained {
							return "No consent flag", true
						}
						return "", false
					},
				},
				{
					id:          "do_not_call",
					description: "Must respect do-not-call preferences",
					severity:    RiskCritical,
					check: func(meta CallMetadata) (string, bool) {
						if meta.DNCListed {
							return "DNC listed number", true
						}
						return "", false
					},
				},
			},
			FrameworkHIPAA: {
				{
					id:          "phi_protection",
					description: "Protected health information must be secured",
					severity:    RiskCritical,
					re:          regexp.MustCompile(`(?i)\b(?:diagnosis|prescription|medical record|health condition)\b`),
				},
			},
		},
	}
}

// CheckCompliance evaluates every rule of every enabled framework against the
// turn. All rules run each turn; nothing short-circuits. Each violation is
// appended to the long-lived history used by the dashboard.
func (e *ComplianceEngine) CheckCompliance(content string, meta CallMetadata) []Violation {
	var violations []Violation

	for _, framework := range e.activeFrameworks {
		violations = append(violations, e.checkFramework(framework, content, meta)...)
	}

	if len(violations) > 0 {
		e.historyMu.Lock()
		e.history = append(e.history, violations...)
		e.historyMu.Unlock()
	}

	for _, v := range violations {
		e.logger.WithFields(logrus.Fields{
			"framework": v.Framework,
			"rule_id":   v.RuleID,
			"severity":  v.Severity.String(),
		}).Warn("Compliance violation")
	}

	return violations
}

// checkFramework evaluates one framework's rule table. A panic while
// evaluating one framework must not prevent evaluation of the others.
func (e *ComplianceEngine) checkFramework(framework Framework, content string, meta CallMetadata) (violations []Violation) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.WithFields(logrus.Fields{
				"framework": framework,
				"panic":     r,
			}).Error("Framework evaluation panicked, skipping")
			violations = nil
		}
	}()

	for _, rule := range e.rules[framework] {
		if v, ok := e.checkRule(framework, rule, content, meta); ok {
			violations = append(violations, v)
		}
	}
	return violations
}

func (e *ComplianceEngine) checkRule(framework Framework, rule complianceRule, content string, meta CallMetadata) (Violation, bool) {
	if rule.re != nil {
		if match := rule.re.FindString(content); match != "" {
			return Violation{
				Framework:       framework,
				RuleID:          rule.id,
				Severity:        rule.severity,
				Description:     rule.description,
				DetectedContent: match,
				Timestamp:       time.Now(),
			}, true
		}
		return Violation{}, false
	}

	if rule.check != nil {
		if marker, violated := rule.check(meta); violated {
			description := rule.description
			switch rule.id {
			case "consent_required":
				description = "Call made without explicit consent"
			case "do_not_call":
				description = "Call to number on do-not-call list"
			}
			return Violation{
				Framework:       framework,
				RuleID:          rule.id,
				Severity:        rule.severity,
				Description:     description,
				DetectedContent: marker,
				Timestamp:       time.Now(),
			}, true
		}
	}

	return Violation{}, false
}

// ViolationsSince returns a copy of all recorded violations at or after the cutoff.
func (e *ComplianceEngine) ViolationsSince(cutoff time.Time) []Violation {
	e.historyMu.Lock()
	defer e.historyMu.Unlock()

	var out []Violation
	for _, v := range e.history {
		if !v.Timestamp.Before(cutoff) {
			out = append(out, v)
		}
	}
	return out
}

// ActiveFrameworks returns the enabled framework set.
func (e *ComplianceEngine) ActiveFrameworks() []Framework {
	return e.activeFrameworks
}
