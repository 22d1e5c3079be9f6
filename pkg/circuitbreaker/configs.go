package circuitbreaker

import "time"

// Predefined configurations for the collaborator services

// STTConfig returns circuit breaker config for speech recognition services
func STTConfig() *Config {
	return &Config{
		FailureThreshold: 3, // STT services can be flaky, lower threshold
		RecoveryTimeout:  30 * time.Second,
		RequestTimeout:   45 * time.Second, // STT requests can be slow
	}
}

// LLMConfig returns circuit breaker config for response generation services
func LLMConfig() *Config {
	return &Config{
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
		RequestTimeout:   30 * time.Second,
	}
}

// TTSConfig returns circuit breaker config for speech synthesis services
func TTSConfig() *Config {
	return &Config{
		FailureThreshold: 4,
		RecoveryTimeout:  30 * time.Second,
		RequestTimeout:   20 * time.Second,
	}
}

// AMQPConfig returns circuit breaker config for the message broker
func AMQPConfig() *Config {
	return &Config{
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
		RequestTimeout:   10 * time.Second, // AMQP should be fast
	}
}

// TelephonyConfig returns circuit breaker config for carrier adapters
func TelephonyConfig() *Config {
	return &Config{
		FailureThreshold: 4,
		RecoveryTimeout:  45 * time.Second,
		RequestTimeout:   15 * time.Second,
	}
}
