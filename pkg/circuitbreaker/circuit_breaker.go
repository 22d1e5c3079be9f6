// Package circuitbreaker guards the external collaborator calls (speech
// recognition, response generation, speech synthesis, messaging) with
// per-service breakers managed by a shared Manager.
package circuitbreaker

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"ghostvoice-server/pkg/metrics"
)

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds circuit breaker configuration
type Config struct {
	// Consecutive failures before opening the circuit
	FailureThreshold int64 `json:"failure_threshold"`

	// Time the circuit stays open before admitting a probe request
	RecoveryTimeout time.Duration `json:"recovery_timeout"`

	// Deadline applied to protected operations without one
	RequestTimeout time.Duration `json:"request_timeout"`
}

// DefaultConfig returns default circuit breaker configuration
func DefaultConfig() *Config {
	return &Config{
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
		RequestTimeout:   30 * time.Second,
	}
}

// Statistics tracks circuit breaker performance
type Statistics struct {
	TotalRequests       int64     `json:"total_requests"`
	SuccessfulRequests  int64     `json:"successful_requests"`
	FailedRequests      int64     `json:"failed_requests"`
	RejectedRequests    int64     `json:"rejected_requests"`
	ConsecutiveFailures int64     `json:"consecutive_failures"`
	LastFailureTime     time.Time `json:"last_failure_time"`
	LastSuccessTime     time.Time `json:"last_success_time"`
	StateTransitions    int64     `json:"state_transitions"`
}

// CircuitBreaker rejects calls to a failing service until it recovers.
// The circuit opens after FailureThreshold consecutive failures. Once
// RecoveryTimeout has elapsed the next call runs as a half-open probe:
// success closes the circuit, failure re-opens it and restarts the timer.
type CircuitBreaker struct {
	name   string
	logger *logrus.Entry
	config *Config

	mutex        sync.Mutex
	state        State
	failures     int64
	lastFailTime time.Time
	stats        Statistics

	onStateChange func(name string, from, to State)
}

// NewCircuitBreaker creates a new circuit breaker in the closed state
func NewCircuitBreaker(name string, config *Config, logger *logrus.Logger) *CircuitBreaker {
	if config == nil {
		config = DefaultConfig()
	}

	return &CircuitBreaker{
		name:   name,
		logger: logger.WithField("circuit_breaker", name),
		config: config,
		state:  StateClosed,
	}
}

// Execute runs the given function with circuit breaker protection
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if !cb.allowRequest() {
		cb.recordRejection()
		return NewCircuitBreakerOpenError(cb.name, cb.GetState())
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cb.config.RequestTimeout)
		defer cancel()
	}

	err := fn(ctx)
	if err != nil {
		cb.recordFailure(err)
		return err
	}

	cb.recordSuccess()
	return nil
}

// ExecuteWithFallback runs the function with circuit breaker protection,
// invoking the fallback only when the circuit rejected the request
func (cb *CircuitBreaker) ExecuteWithFallback(ctx context.Context, fn func(ctx context.Context) error, fallback func(ctx context.Context) error) error {
	err := cb.Execute(ctx, fn)
	if err != nil {
		if IsCircuitBreakerError(err) && fallback != nil {
			cb.logger.WithError(err).Debug("Circuit breaker open, executing fallback")
			return fallback(ctx)
		}
		return err
	}
	return nil
}

// allowRequest checks if a request should be allowed, moving an expired open
// circuit to half-open so the request runs as the recovery probe
func (cb *CircuitBreaker) allowRequest() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if time.Since(cb.lastFailTime) >= cb.config.RecoveryTimeout {
			cb.setState(StateHalfOpen)
			return true
		}
		return false
	default:
		return false
	}
}

// recordSuccess records a successful execution. A half-open probe success
// closes the circuit and clears the failure count.
func (cb *CircuitBreaker) recordSuccess() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.failures = 0
	cb.stats.TotalRequests++
	cb.stats.SuccessfulRequests++
	cb.stats.ConsecutiveFailures = 0
	cb.stats.LastSuccessTime = time.Now()

	if cb.state == StateHalfOpen {
		cb.setState(StateClosed)
	}
}

// recordFailure records a failed execution. A half-open probe failure
// re-opens the circuit immediately and restarts the recovery timer.
func (cb *CircuitBreaker) recordFailure(err error) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.failures++
	cb.lastFailTime = time.Now()
	cb.stats.TotalRequests++
	cb.stats.FailedRequests++
	cb.stats.ConsecutiveFailures++
	cb.stats.LastFailureTime = cb.lastFailTime

	if cb.state == StateHalfOpen || cb.failures >= cb.config.FailureThreshold {
		cb.setState(StateOpen)
	}

	cb.logger.WithError(err).WithFields(logrus.Fields{
		"failures": cb.failures,
		"state":    cb.state.String(),
	}).Debug("Circuit breaker recorded failure")
}

// recordRejection records a rejected request
func (cb *CircuitBreaker) recordRejection() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	cb.stats.RejectedRequests++
}

// setState changes the circuit breaker state. Caller must hold the mutex.
func (cb *CircuitBreaker) setState(newState State) {
	if cb.state == newState {
		return
	}

	oldState := cb.state
	cb.state = newState
	cb.stats.StateTransitions++

	if newState == StateClosed {
		cb.failures = 0
	}

	metrics.SetBreakerState(cb.name, float64(newState))
	if newState == StateOpen {
		metrics.RecordBreakerTrip(cb.name)
	}

	cb.logger.WithFields(logrus.Fields{
		"from_state": oldState.String(),
		"to_state":   newState.String(),
		"failures":   cb.failures,
	}).Info("Circuit breaker state changed")

	if cb.onStateChange != nil {
		go cb.onStateChange(cb.name, oldState, newState)
	}
}

// GetState returns the current circuit breaker state without triggering the
// open-to-half-open transition
func (cb *CircuitBreaker) GetState() State {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.state
}

// GetStatistics returns a snapshot of circuit breaker statistics
func (cb *CircuitBreaker) GetStatistics() Statistics {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.stats
}

// Reset returns the circuit breaker to the closed state and clears counters
func (cb *CircuitBreaker) Reset() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.setState(StateClosed)
	cb.failures = 0
	cb.lastFailTime = time.Time{}
	cb.stats = Statistics{}

	cb.logger.Info("Circuit breaker reset")
}

// SetStateChangeCallback sets a callback for state changes
func (cb *CircuitBreaker) SetStateChangeCallback(callback func(name string, from, to State)) {
	cb.onStateChange = callback
}

// GetName returns the circuit breaker name
func (cb *CircuitBreaker) GetName() string {
	return cb.name
}

// IsOpen returns true if the circuit is open
func (cb *CircuitBreaker) IsOpen() bool {
	return cb.GetState() == StateOpen
}

// IsClosed returns true if the circuit is closed
func (cb *CircuitBreaker) IsClosed() bool {
	return cb.GetState() == StateClosed
}

// IsHalfOpen returns true if the circuit is half-open
func (cb *CircuitBreaker) IsHalfOpen() bool {
	return cb.GetState() == StateHalfOpen
}
