package guardrails

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// RateLimitResult reports whether a session has exceeded its turn allowance.
type RateLimitResult struct {
	Limited        bool `json:"rate_limited"`
	CallCount      int  `json:"calls_in_window"`
	MaxAllowed     int  `json:"max_allowed"`
	ViolationCount int  `json:"violation_count"`
}

// sessionRecord tracks per-session turn counting. Counts never expire; the
// window length is advisory and only reported in the dashboard.
type sessionRecord struct {
	callCount  int
	firstCall  time.Time
	lastCall   time.Time
	violations int
}

// RateLimiter counts turns per session and flags sessions that exceed the
// configured maximum.
type RateLimiter struct {
	logger   *logrus.Entry
	maxCalls int
	window   time.Duration
	mu       sync.Mutex
	sessions map[string]*sessionRecord
}

// NewRateLimiter creates a limiter allowing maxCalls turns per session.
// Values of zero or below fall back to the defaults (10 turns, 5 minutes).
func NewRateLimiter(logger *logrus.Logger, maxCalls int, window time.Duration) *RateLimiter {
	if maxCalls <= 0 {
		maxCalls = 10
	}
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &RateLimiter{
		logger:   logger.WithField("component", "rate_limiter"),
		maxCalls: maxCalls,
		window:   window,
		sessions: make(map[string]*sessionRecord),
	}
}

// Check increments the session's turn counter and reports whether the session
// is over its allowance. Exceeding turns still count; each one past the limit
// also increments the session's violation tally.
func (r *RateLimiter) Check(sessionID string) *RateLimitResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	rec, ok := r.sessions[sessionID]
	if !ok {
		rec = &sessionRecord{firstCall: now}
		r.sessions[sessionID] = rec
	}
	rec.callCount++
	rec.lastCall = now

	limited := rec.callCount > r.maxCalls
	if limited {
		rec.violations++
		r.logger.WithFields(logrus.Fields{
			"session_id": sessionID,
			"call_count": rec.callCount,
			"violations": rec.violations,
		}).Warn("Session rate limit exceeded")
	}

	return &RateLimitResult{
		Limited:        limited,
		CallCount:      rec.callCount,
		MaxAllowed:     r.maxCalls,
		ViolationCount: rec.violations,
	}
}

// ActiveLimits returns the violation count per session for sessions that have
// exceeded the limit at least once.
func (r *RateLimiter) ActiveLimits() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]int)
	for id, rec := range r.sessions {
		if rec.violations > 0 {
			out[id] = rec.violations
		}
	}
	return out
}
