package guardrails

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterAllowsUpToMax(t *testing.T) {
	r := NewRateLimiter(testLogger(), 3, time.Minute)

	for i := 1; i <= 3; i++ {
		result := r.Check("session-1")
		assert.False(t, result.Limited, "turn %d should be allowed", i)
		assert.Equal(t, i, result.CallCount)
	}

	result := r.Check("session-1")
	assert.True(t, result.Limited)
	assert.Equal(t, 4, result.CallCount)
	assert.Equal(t, 3, result.MaxAllowed)
	assert.Equal(t, 1, result.ViolationCount)
}

func TestRateLimiterResultCarriesFullContract(t *testing.T) {
	r := NewRateLimiter(testLogger(), 2, time.Minute)

	result := r.Check("s")
	assert.False(t, result.Limited)
	assert.Equal(t, 1, result.CallCount)
	assert.Equal(t, 2, result.MaxAllowed)
	assert.Equal(t, 0, result.ViolationCount)

	r.Check("s")
	r.Check("s")
	result = r.Check("s")
	assert.True(t, result.Limited)
	assert.Equal(t, 4, result.CallCount)
	assert.Equal(t, 2, result.MaxAllowed)
	assert.Equal(t, 2, result.ViolationCount)
}

func TestRateLimiterSessionsAreIndependent(t *testing.T) {
	r := NewRateLimiter(testLogger(), 1, time.Minute)

	assert.False(t, r.Check("a").Limited)
	assert.True(t, r.Check("a").Limited)
	assert.False(t, r.Check("b").Limited)
}

func TestRateLimiterCountsKeepGrowing(t *testing.T) {
	r := NewRateLimiter(testLogger(), 2, time.Minute)

	for i := 0; i < 5; i++ {
		r.Check("s")
	}

	// Every turn past the limit is both counted and flagged
	result := r.Check("s")
	assert.True(t, result.Limited)
	assert.Equal(t, 6, result.CallCount)
}

func TestRateLimiterActiveLimits(t *testing.T) {
	r := NewRateLimiter(testLogger(), 1, time.Minute)

	r.Check("quiet")
	r.Check("noisy")
	r.Check("noisy")
	r.Check("noisy")

	limits := r.ActiveLimits()
	assert.Equal(t, map[string]int{"noisy": 2}, limits)
}

func TestRateLimiterDefaults(t *testing.T) {
	r := NewRateLimiter(testLogger(), 0, 0)

	for i := 1; i <= 10; i++ {
		assert.False(t, r.Check("s").Limited)
	}
	assert.True(t, r.Check("s").Limited)
}
