package guardrails

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestPIIDetectorSSN(t *testing.T) {
	d := NewPIIDetector(testLogger())

	result := d.DetectAndMask("My SSN is 123-45-6789")
	require.True(t, result.Detected)
	assert.Equal(t, []string{"ssn"}, result.Types)
	assert.Equal(t, "My SSN is [SSN]******", result.MaskedContent)
	assert.Equal(t, [][2]int{{10, 21}}, result.Positions)
	// Hyphenated SSN gets the format bonus, capped at 1.0
	assert.Equal(t, 1.0, result.Confidence)
}

func TestPIIDetectorEmail(t *testing.T) {
	d := NewPIIDetector(testLogger())

	result := d.DetectAndMask("contact me at john.doe@example.com")
	require.True(t, result.Detected)
	assert.Equal(t, []string{"email"}, result.Types)
	assert.Equal(t, "contact me at [EMAIL]*************", result.MaskedContent)
	assert.Equal(t, 0.85, result.Confidence)
}

func TestPIIDetectorPhone(t *testing.T) {
	d := NewPIIDetector(testLogger())

	result := d.DetectAndMask("call me at 555-123-4567")
	require.True(t, result.Detected)
	assert.Equal(t, []string{"phone"}, result.Types)
	assert.Equal(t, "call me at [PHONE]*****", result.MaskedContent)
	// 10-digit number gets the format bonus
	assert.InDelta(t, 0.85, result.Confidence, 0.0001)
}

func TestPIIDetectorCreditCard(t *testing.T) {
	d := NewPIIDetector(testLogger())

	result := d.DetectAndMask("card 4111 1111 1111 1111 please")
	require.True(t, result.Detected)
	assert.Equal(t, []string{"credit_card"}, result.Types)
	assert.Equal(t, "card [CREDIT_CARD]****** please", result.MaskedContent)
	assert.Equal(t, 0.90, result.Confidence)
}

func TestPIIDetectorDateOfBirth(t *testing.T) {
	d := NewPIIDetector(testLogger())

	result := d.DetectAndMask("born on 01/02/1990")
	require.True(t, result.Detected)
	assert.Contains(t, result.Types, "dob")
	assert.Equal(t, 0.65, result.Confidence)
}

func TestPIIDetectorContextKeywords(t *testing.T) {
	d := NewPIIDetector(testLogger())

	result := d.DetectAndMask("what is your mother's maiden name")
	require.True(t, result.Detected)
	assert.Equal(t, []string{"context_security_questions"}, result.Types)
	// Context hits tag the turn but never mask anything
	assert.Equal(t, "what is your mother's maiden name", result.MaskedContent)
	assert.Empty(t, result.Positions)
	assert.Equal(t, 0.7, result.Confidence)
}

func TestPIIDetectorCleanText(t *testing.T) {
	d := NewPIIDetector(testLogger())

	result := d.DetectAndMask("I would like to check my order status")
	assert.False(t, result.Detected)
	assert.Empty(t, result.Types)
	assert.Equal(t, 0.0, result.Confidence)
	assert.Equal(t, "I would like to check my order status", result.MaskedContent)
}

func TestPIIDetectorDedupesRepeatedTypes(t *testing.T) {
	d := NewPIIDetector(testLogger())

	result := d.DetectAndMask("emails: a@example.com b@example.com")
	require.True(t, result.Detected)
	assert.Equal(t, []string{"email"}, result.Types)
	assert.Len(t, result.Positions, 2)
}

func TestMaskFor(t *testing.T) {
	assert.Equal(t, "[SSN]******", maskFor("ssn", 11))
	// Short matches never produce negative padding
	assert.Equal(t, "[EMAIL]", maskFor("email", 3))
}

func TestSpliceMaskClampsBounds(t *testing.T) {
	assert.Equal(t, "abXY", spliceMask("abcd", 2, 10, "XY"))
	assert.Equal(t, "abcdXY", spliceMask("abcd", 10, 12, "XY"))
}
