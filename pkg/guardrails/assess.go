package guardrails

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// RiskAssessor combines PII, compliance and safety findings into a single
// ordinal risk level using an additive score.
type RiskAssessor struct {
	logger *logrus.Entry
}

// NewRiskAssessor creates a risk assessor.
func NewRiskAssessor(logger *logrus.Logger) *RiskAssessor {
	return &RiskAssessor{logger: logger.WithField("component", "risk_assessor")}
}

// Assess scores the turn. PII contributes once based on the strongest category
// present, each violation contributes its severity ordinal, and each safety
// issue contributes by kind.
func (a *RiskAssessor) Assess(pii *PIIDetection, violations []Violation, safety *SafetyResult) RiskLevel {
	score := 0

	if pii != nil && pii.Detected {
		switch {
		case containsAny(pii.Types, "ssn", "credit_card"):
			score += 3
		case containsAny(pii.Types, "phone", "email", "dob"):
			score += 2
		default:
			score++
		}
	}

	for _, v := range violations {
		score += int(v.Severity)
	}

	if safety != nil {
		for _, issue := range safety.Issues {
			switch {
			case strings.HasPrefix(issue, "fraud_indicator"), strings.HasPrefix(issue, "distress_indicator"):
				score += 3
			case strings.HasPrefix(issue, "blocked_phrase"):
				score += 2
			default:
				score++
			}
		}
	}

	level := RiskLow
	switch {
	case score >= 8:
		level = RiskCritical
	case score >= 5:
		level = RiskHigh
	case score >= 2:
		level = RiskMedium
	}

	a.logger.WithFields(logrus.Fields{
		"score": score,
		"level": level.String(),
	}).Debug("Risk assessed")

	return level
}

func containsAny(haystack []string, needles ...string) bool {
	for _, h := range haystack {
		for _, n := range needles {
			if h == n {
				return true
			}
		}
	}
	return false
}

// ResolveActions maps the risk level and individual findings to the enforcement
// decision for the turn. Actions accumulate; a turn can both mask PII and
// terminate.
func ResolveActions(risk RiskLevel, pii *PIIDetection, violations []Violation, safety *SafetyResult) (allow, review, escalate, terminate bool, actions []string) {
	allow = true

	switch risk {
	case RiskCritical:
		allow = false
		terminate = true
		escalate = true
		actions = append(actions, "call_terminated_critical_risk")
	case RiskHigh:
		review = true
		actions = append(actions, "human_review_required")
	case RiskMedium:
		actions = append(actions, "enhanced_monitoring")
	}

	for _, v := range violations {
		if v.Severity == RiskCritical {
			terminate = true
			actions = append(actions, "compliance_violation_"+string(v.Framework))
		}
	}

	if pii != nil && pii.Detected {
		actions = append(actions, "pii_detected_and_masked")
	}

	if safety != nil {
		// One action per matching issue, duplicates included
		for _, issue := range safety.Issues {
			switch {
			case strings.HasPrefix(issue, "distress_indicator"):
				escalate = true
				actions = append(actions, "mental_health_escalation")
			case strings.HasPrefix(issue, "fraud_indicator"):
				review = true
				actions = append(actions, "fraud_prevention_review")
			}
		}
	}

	return allow, review, escalate, terminate, actions
}
