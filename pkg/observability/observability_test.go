package observability

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestCallLifecycle(t *testing.T) {
	c := NewCollector(testLogger(), DefaultAlertRules())

	c.StartCall("call-1", "sess-1")
	c.RecordTurn("call-1", 250*time.Millisecond, true)
	c.RecordTurn("call-1", 150*time.Millisecond, true)
	c.RecordInterruption("call-1", true)
	c.EndCall("call-1", ResolutionResolved)

	m := c.Call("call-1")
	require.NotNil(t, m)
	assert.Equal(t, 2, m.TurnsCompleted)
	assert.Equal(t, 250*time.Millisecond, m.FirstResponseTime)
	assert.Equal(t, 200*time.Millisecond, m.AvgResponseTime)
	assert.Equal(t, 1, m.SuccessfulInterruptions)
	assert.True(t, m.ContainmentAchieved)
	assert.Equal(t, ResolutionResolved, m.Resolution)
	require.NotNil(t, m.EndTime)
}

func TestRunningAverage(t *testing.T) {
	c := NewCollector(testLogger(), DefaultAlertRules())
	c.StartCall("call-1", "sess-1")

	c.RecordTurn("call-1", 100*time.Millisecond, true)
	c.RecordTurn("call-1", 200*time.Millisecond, true)
	c.RecordTurn("call-1", 300*time.Millisecond, true)

	m := c.Call("call-1")
	require.NotNil(t, m)
	assert.Equal(t, 200*time.Millisecond, m.AvgResponseTime)
	assert.Equal(t, 100*time.Millisecond, m.FirstResponseTime)
}

func TestUnknownCallIgnored(t *testing.T) {
	c := NewCollector(testLogger(), DefaultAlertRules())

	c.RecordTurn("nope", time.Second, true)
	c.RecordEscalation("nope", "reason")
	c.EndCall("nope", ResolutionDropped)

	assert.Nil(t, c.Call("nope"))
}

func TestErrorTracking(t *testing.T) {
	c := NewCollector(testLogger(), DefaultAlertRules())
	c.StartCall("call-1", "sess-1")

	c.RecordTurn("call-1", time.Millisecond, false)
	c.RecordError("call-1", "stt_timeout")

	m := c.Call("call-1")
	require.NotNil(t, m)
	assert.Equal(t, 2, m.ErrorCount)
	assert.Equal(t, []string{"stt_timeout"}, m.ErrorTypes)
}

func TestDailySummary(t *testing.T) {
	c := NewCollector(testLogger(), DefaultAlertRules())

	c.StartCall("call-1", "sess-1")
	c.RecordTurn("call-1", 100*time.Millisecond, true)
	c.EndCall("call-1", ResolutionResolved)

	c.StartCall("call-2", "sess-2")
	c.RecordTurn("call-2", 300*time.Millisecond, true)
	c.RecordTurn("call-2", 300*time.Millisecond, true)
	c.RecordEscalation("call-2", "human_review_required")
	c.EndCall("call-2", ResolutionEscalated)

	summary := c.TodaySummary()
	assert.Equal(t, 2, summary.TotalCalls)
	assert.Equal(t, 3, summary.TotalTurns)
	assert.Equal(t, 0.5, summary.ContainmentRate)
	assert.Equal(t, 0.5, summary.EscalationRate)
	assert.Equal(t, 200*time.Millisecond, summary.AvgResponseTime)
}

func TestDailySummaryEmpty(t *testing.T) {
	c := NewCollector(testLogger(), DefaultAlertRules())

	summary := c.DailySummaryFor("1999-01-01")
	assert.Equal(t, "1999-01-01", summary.Date)
	assert.Equal(t, 0, summary.TotalCalls)
	assert.Equal(t, 0.0, summary.ContainmentRate)
}

func TestEscalatedButResolvedCountsAsResolved(t *testing.T) {
	c := NewCollector(testLogger(), DefaultAlertRules())

	c.StartCall("call-1", "sess-1")
	c.RecordEscalation("call-1", "fraud_prevention_review")
	c.EndCall("call-1", ResolutionResolved)

	summary := c.TodaySummary()
	assert.Equal(t, 1.0, summary.ContainmentRate)
	assert.Equal(t, 0.0, summary.EscalationRate)
}
