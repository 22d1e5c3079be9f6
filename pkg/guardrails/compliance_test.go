package guardrails

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func consentedMeta() CallMetadata {
	return CallMetadata{ConsentObtained: true}
}

func TestComplianceCreditCardViolation(t *testing.T) {
	e := NewComplianceEngine(testLogger(), nil)

	violations := e.CheckCompliance("my card is 4111-1111-1111-1111", consentedMeta())
	require.Len(t, violations, 1)
	assert.Equal(t, FrameworkPCIDSS, violations[0].Framework)
	assert.Equal(t, "no_cc_storage", violations[0].RuleID)
	assert.Equal(t, RiskCritical, violations[0].Severity)
	assert.Equal(t, "4111-1111-1111-1111", violations[0].DetectedContent)
}

func TestComplianceCVVViolation(t *testing.T) {
	e := NewComplianceEngine(testLogger(), nil)

	violations := e.CheckCompliance("the cvv: 123", consentedMeta())
	require.Len(t, violations, 1)
	assert.Equal(t, "no_cvv_storage", violations[0].RuleID)
	assert.Equal(t, RiskCritical, violations[0].Severity)
}

func TestComplianceConsentRequired(t *testing.T) {
	e := NewComplianceEngine(testLogger(), nil)

	violations := e.CheckCompliance("hello", CallMetadata{ConsentObtained: false})
	require.Len(t, violations, 1)
	assert.Equal(t, FrameworkTCPA, violations[0].Framework)
	assert.Equal(t, "consent_required", violations[0].RuleID)
	assert.Equal(t, RiskHigh, violations[0].Severity)
}

func TestComplianceDoNotCall(t *testing.T) {
	e := NewComplianceEngine(testLogger(), nil)

	violations := e.CheckCompliance("hello", CallMetadata{ConsentObtained: true, DNCListed: true})
	require.Len(t, violations, 1)
	assert.Equal(t, "do_not_call", violations[0].RuleID)
	assert.Equal(t, RiskCritical, violations[0].Severity)
}

func TestComplianceCleanTurn(t *testing.T) {
	e := NewComplianceEngine(testLogger(), nil)

	violations := e.CheckCompliance("I would like to check my balance", consentedMeta())
	assert.Empty(t, violations)
}

func TestComplianceAllRulesRunEveryTurn(t *testing.T) {
	e := NewComplianceEngine(testLogger(), nil)

	// Critical card hit must not stop the CVV and TCPA rules from firing
	violations := e.CheckCompliance("4111-1111-1111-1111 cvv: 999", CallMetadata{DNCListed: true})
	require.Len(t, violations, 4)

	rules := make([]string, len(violations))
	for i, v := range violations {
		rules[i] = v.RuleID
	}
	assert.Equal(t, []string{"no_cc_storage", "no_cvv_storage", "consent_required", "do_not_call"}, rules)
}

func TestComplianceHIPAADisabledByDefault(t *testing.T) {
	e := NewComplianceEngine(testLogger(), nil)

	violations := e.CheckCompliance("my diagnosis and prescription", consentedMeta())
	assert.Empty(t, violations)
}

func TestComplianceHIPAAWhenEnabled(t *testing.T) {
	e := NewComplianceEngine(testLogger(), []Framework{FrameworkHIPAA})

	violations := e.CheckCompliance("my diagnosis and prescription", CallMetadata{})
	require.Len(t, violations, 1)
	assert.Equal(t, FrameworkHIPAA, violations[0].Framework)
	assert.Equal(t, "phi_protection", violations[0].RuleID)

	// TCPA rules do not run when the framework is not enabled
	violations = e.CheckCompliance("hello", CallMetadata{DNCListed: true})
	assert.Empty(t, violations)
}

func TestComplianceHistory(t *testing.T) {
	e := NewComplianceEngine(testLogger(), nil)

	e.CheckCompliance("cvv: 123", consentedMeta())
	e.CheckCompliance("cvv: 456", consentedMeta())

	since := e.ViolationsSince(time.Now().Add(-time.Minute))
	assert.Len(t, since, 2)

	assert.Empty(t, e.ViolationsSince(time.Now().Add(time.Hour)))
}
