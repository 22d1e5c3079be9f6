package circuitbreaker

import (
	"errors"
	"fmt"
	"time"
)

// CircuitBreakerError is returned when a request is rejected by an open circuit
type CircuitBreakerError struct {
	CircuitName string
	State       State
	Timestamp   time.Time
}

func (e *CircuitBreakerError) Error() string {
	return fmt.Sprintf("circuit breaker '%s' is %s: request rejected", e.CircuitName, e.State.String())
}

// NewCircuitBreakerOpenError creates an error for a rejected request
func NewCircuitBreakerOpenError(name string, state State) *CircuitBreakerError {
	return &CircuitBreakerError{
		CircuitName: name,
		State:       state,
		Timestamp:   time.Now(),
	}
}

// IsCircuitBreakerError checks if an error is a circuit breaker rejection
func IsCircuitBreakerError(err error) bool {
	var cbErr *CircuitBreakerError
	return errors.As(err, &cbErr)
}
