package guardrails

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRiskAssessorLevels(t *testing.T) {
	a := NewRiskAssessor(testLogger())

	testCases := []struct {
		name       string
		pii        *PIIDetection
		violations []Violation
		safety     *SafetyResult
		expected   RiskLevel
	}{
		{
			name:     "NoFindings",
			pii:      &PIIDetection{},
			safety:   &SafetyResult{Safe: true},
			expected: RiskLow,
		},
		{
			name:     "WeakPIIOnly",
			pii:      &PIIDetection{Detected: true, Types: []string{"zip_code"}},
			safety:   &SafetyResult{Safe: true},
			expected: RiskLow, // score 1
		},
		{
			name:     "MidPII",
			pii:      &PIIDetection{Detected: true, Types: []string{"email"}},
			safety:   &SafetyResult{Safe: true},
			expected: RiskMedium, // score 2
		},
		{
			name:     "StrongPII",
			pii:      &PIIDetection{Detected: true, Types: []string{"ssn"}},
			safety:   &SafetyResult{Safe: true},
			expected: RiskMedium, // score 3
		},
		{
			name:   "StrongPIIDominatesWeaker",
			pii:    &PIIDetection{Detected: true, Types: []string{"phone", "credit_card"}},
			safety: &SafetyResult{Safe: true},
			// Only the strongest category scores, not the sum
			expected: RiskMedium, // score 3
		},
		{
			name:       "HighViolation",
			pii:        &PIIDetection{},
			violations: []Violation{{Severity: RiskHigh}},
			safety:     &SafetyResult{Safe: true},
			expected:   RiskMedium, // score 3
		},
		{
			name:       "CriticalViolationPlusPII",
			pii:        &PIIDetection{Detected: true, Types: []string{"credit_card"}},
			violations: []Violation{{Severity: RiskCritical}},
			safety:     &SafetyResult{Safe: true},
			expected:   RiskHigh, // score 7
		},
		{
			name:     "TwoDistressIndicators",
			pii:      &PIIDetection{},
			safety:   &SafetyResult{Issues: []string{"distress_indicator: can't take it", "distress_indicator: feel hopeless"}},
			expected: RiskHigh, // score 6
		},
		{
			name:     "BlockedPhrasePlusFraud",
			pii:      &PIIDetection{},
			safety:   &SafetyResult{Issues: []string{"blocked_phrase: fraud", "fraud_indicator: act now"}},
			expected: RiskHigh, // score 5
		},
		{
			name:       "EverythingAtOnce",
			pii:        &PIIDetection{Detected: true, Types: []string{"ssn"}},
			violations: []Violation{{Severity: RiskCritical}, {Severity: RiskHigh}},
			safety:     &SafetyResult{Issues: []string{"fraud_indicator: act now"}},
			expected:   RiskCritical, // score 13
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, a.Assess(tc.pii, tc.violations, tc.safety))
		})
	}
}

func TestResolveActionsCriticalRisk(t *testing.T) {
	allow, review, escalate, terminate, actions := ResolveActions(RiskCritical, &PIIDetection{}, nil, &SafetyResult{Safe: true})
	assert.False(t, allow)
	assert.False(t, review)
	assert.True(t, escalate)
	assert.True(t, terminate)
	assert.Equal(t, []string{"call_terminated_critical_risk"}, actions)
}

func TestResolveActionsHighRisk(t *testing.T) {
	allow, review, escalate, terminate, actions := ResolveActions(RiskHigh, &PIIDetection{}, nil, &SafetyResult{Safe: true})
	assert.True(t, allow)
	assert.True(t, review)
	assert.False(t, escalate)
	assert.False(t, terminate)
	assert.Equal(t, []string{"human_review_required"}, actions)
}

func TestResolveActionsMediumRisk(t *testing.T) {
	allow, _, _, terminate, actions := ResolveActions(RiskMedium, &PIIDetection{}, nil, &SafetyResult{Safe: true})
	assert.True(t, allow)
	assert.False(t, terminate)
	assert.Equal(t, []string{"enhanced_monitoring"}, actions)
}

func TestResolveActionsCriticalViolationAlwaysTerminates(t *testing.T) {
	// A critical violation forces termination even when the overall score
	// stayed below the critical band
	violations := []Violation{{Framework: FrameworkTCPA, Severity: RiskCritical}}
	_, _, _, terminate, actions := ResolveActions(RiskHigh, &PIIDetection{}, violations, &SafetyResult{Safe: true})
	assert.True(t, terminate)
	assert.Contains(t, actions, "compliance_violation_tcpa")
}

func TestResolveActionsPerViolationActions(t *testing.T) {
	violations := []Violation{
		{Framework: FrameworkPCIDSS, Severity: RiskCritical},
		{Framework: FrameworkPCIDSS, Severity: RiskCritical},
		{Framework: FrameworkTCPA, Severity: RiskHigh},
	}
	_, _, _, _, actions := ResolveActions(RiskCritical, &PIIDetection{}, violations, &SafetyResult{Safe: true})
	// One action per critical violation, duplicates included
	assert.Equal(t, []string{
		"call_terminated_critical_risk",
		"compliance_violation_pci_dss",
		"compliance_violation_pci_dss",
	}, actions)
}

func TestResolveActionsDistressAndFraud(t *testing.T) {
	safety := &SafetyResult{Issues: []string{
		"distress_indicator: feel hopeless",
		"fraud_indicator: act now",
	}}
	allow, review, escalate, _, actions := ResolveActions(RiskHigh, &PIIDetection{}, nil, safety)
	assert.True(t, allow)
	assert.True(t, review)
	assert.True(t, escalate)
	assert.Equal(t, []string{
		"human_review_required",
		"mental_health_escalation",
		"fraud_prevention_review",
	}, actions)
}

func TestResolveActionsPerSafetyIssue(t *testing.T) {
	safety := &SafetyResult{Issues: []string{
		"distress_indicator: feel hopeless",
		"fraud_indicator: act now",
		"distress_indicator: can't take it",
		"fraud_indicator: verify your account",
	}}
	_, _, escalate, _, actions := ResolveActions(RiskHigh, &PIIDetection{}, nil, safety)
	assert.True(t, escalate)
	// One action per matching issue, in issue order
	assert.Equal(t, []string{
		"human_review_required",
		"mental_health_escalation",
		"fraud_prevention_review",
		"mental_health_escalation",
		"fraud_prevention_review",
	}, actions)
}

func TestResolveActionsPIIMasking(t *testing.T) {
	pii := &PIIDetection{Detected: true, Types: []string{"email"}}
	_, _, _, _, actions := ResolveActions(RiskMedium, pii, nil, &SafetyResult{Safe: true})
	assert.Equal(t, []string{"enhanced_monitoring", "pii_detected_and_masked"}, actions)
}
