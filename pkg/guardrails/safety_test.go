package guardrails

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafetyCleanText(t *testing.T) {
	f := NewSafetyFilter(testLogger())

	result := f.CheckSafety("I would like to check my balance")
	assert.True(t, result.Safe)
	assert.Empty(t, result.Issues)
}

func TestSafetyFraudIndicators(t *testing.T) {
	f := NewSafetyFilter(testLogger())

	result := f.CheckSafety("Please verify your account, urgent action required")
	require.False(t, result.Safe)
	assert.Equal(t, []string{
		"fraud_indicator: verify your account",
		"fraud_indicator: urgent action required",
	}, result.Issues)
}

func TestSafetyDistressIndicators(t *testing.T) {
	f := NewSafetyFilter(testLogger())

	result := f.CheckSafety("I can't take it anymore, I feel hopeless")
	require.False(t, result.Safe)
	assert.Equal(t, []string{
		"distress_indicator: can't take it",
		"distress_indicator: feel hopeless",
	}, result.Issues)
}

func TestSafetyBlockedPhrase(t *testing.T) {
	f := NewSafetyFilter(testLogger())

	result := f.CheckSafety("let's talk about HACKING techniques")
	require.False(t, result.Safe)
	assert.Equal(t, []string{"blocked_phrase: hacking"}, result.Issues)
}

func TestSafetyMixedCategoriesKeepScanOrder(t *testing.T) {
	f := NewSafetyFilter(testLogger())

	// Blocked phrases are scanned before fraud indicators
	result := f.CheckSafety("this fraud needs urgent action required now")
	require.False(t, result.Safe)
	assert.Equal(t, []string{
		"blocked_phrase: fraud",
		"fraud_indicator: urgent action required",
	}, result.Issues)
}
