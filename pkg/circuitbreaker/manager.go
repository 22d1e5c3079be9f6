package circuitbreaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Manager manages the per-service circuit breakers, creating them lazily on
// first use
type Manager struct {
	logger        *logrus.Entry
	breakers      map[string]*CircuitBreaker
	mutex         sync.RWMutex
	defaultConfig *Config
}

// NewManager creates a new circuit breaker manager
func NewManager(logger *logrus.Logger, defaultConfig *Config) *Manager {
	if defaultConfig == nil {
		defaultConfig = DefaultConfig()
	}

	return &Manager{
		logger:        logger.WithField("component", "circuit_breaker_manager"),
		breakers:      make(map[string]*CircuitBreaker),
		defaultConfig: defaultConfig,
	}
}

// GetCircuitBreaker gets or creates a circuit breaker
func (m *Manager) GetCircuitBreaker(name string, config *Config) *CircuitBreaker {
	m.mutex.RLock()
	if breaker, exists := m.breakers[name]; exists {
		m.mutex.RUnlock()
		return breaker
	}
	m.mutex.RUnlock()

	m.mutex.Lock()
	defer m.mutex.Unlock()

	// Double-check after acquiring write lock
	if breaker, exists := m.breakers[name]; exists {
		return breaker
	}

	if config == nil {
		config = m.defaultConfig
	}

	breaker := NewCircuitBreaker(name, config, m.logger.Logger)
	breaker.SetStateChangeCallback(m.onStateChange)
	m.breakers[name] = breaker

	m.logger.WithFields(logrus.Fields{
		"circuit_name":      name,
		"failure_threshold": config.FailureThreshold,
		"recovery_timeout":  config.RecoveryTimeout,
	}).Info("Created new circuit breaker")

	return breaker
}

// Execute runs a function with circuit breaker protection
func (m *Manager) Execute(name string, ctx context.Context, fn func(ctx context.Context) error) error {
	breaker := m.GetCircuitBreaker(name, nil)
	return breaker.Execute(ctx, fn)
}

// ExecuteWithFallback runs a function with circuit breaker protection and fallback
func (m *Manager) ExecuteWithFallback(name string, ctx context.Context, fn func(ctx context.Context) error, fallback func(ctx context.Context) error) error {
	breaker := m.GetCircuitBreaker(name, nil)
	return breaker.ExecuteWithFallback(ctx, fn, fallback)
}

// States returns the current state of every breaker, keyed by service name
func (m *Manager) States() map[string]string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	states := make(map[string]string, len(m.breakers))
	for name, breaker := range m.breakers {
		states[name] = breaker.GetState().String()
	}
	return states
}

// GetAllStatistics returns statistics for all circuit breakers
func (m *Manager) GetAllStatistics() map[string]Statistics {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	stats := make(map[string]Statistics, len(m.breakers))
	for name, breaker := range m.breakers {
		stats[name] = breaker.GetStatistics()
	}
	return stats
}

// ResetCircuitBreaker resets a specific circuit breaker
func (m *Manager) ResetCircuitBreaker(name string) error {
	m.mutex.RLock()
	breaker, exists := m.breakers[name]
	m.mutex.RUnlock()

	if !exists {
		return fmt.Errorf("circuit breaker '%s' not found", name)
	}

	breaker.Reset()
	return nil
}

// onStateChange handles state change events
func (m *Manager) onStateChange(name string, from, to State) {
	m.logger.WithFields(logrus.Fields{
		"circuit_name": name,
		"from_state":   from.String(),
		"to_state":     to.String(),
		"timestamp":    time.Now(),
	}).Warn("Circuit breaker state changed")
}

// Shutdown releases all circuit breakers
func (m *Manager) Shutdown() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for name := range m.breakers {
		delete(m.breakers, name)
	}

	m.logger.Info("Circuit breaker manager shut down")
}
