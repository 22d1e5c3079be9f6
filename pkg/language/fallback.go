package language

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Error categories recognized by the fallback system.
const (
	ErrorSTTLowConfidence = "stt_low_confidence"
	ErrorSTTTimeout       = "stt_timeout"
	ErrorLLMRateLimit     = "llm_rate_limit"
	ErrorLLMTimeout       = "llm_timeout"
	ErrorTTSTimeout       = "tts_timeout"
	ErrorGeneral          = "general_error"
)

// criticalErrors are the categories that escalate a call on first occurrence.
var criticalErrors = map[string]bool{
	ErrorSTTTimeout: true,
	ErrorLLMTimeout: true,
	ErrorTTSTimeout: true,
}

// FallbackSystem serves canned spoken responses when a pipeline leg fails,
// rotating within each category so callers don't hear the same line twice in
// a row, and decides when repeated failures warrant a human handoff.
type FallbackSystem struct {
	logger    *logrus.Entry
	mu        sync.Mutex
	responses map[string][]string
	counters  map[string]int
}

// NewFallbackSystem creates a fallback system with the built-in response sets.
func NewFallbackSystem(logger *logrus.Logger) *FallbackSystem {
	return &FallbackSystem{
		logger: logger.WithField("component", "fallback_system"),
		responses: map[string][]string{
			ErrorSTTLowConfidence: {
				"I'm sorry, could you speak a bit louder?",
				"I didn't catch that clearly. Could you repeat that?",
				"Could you please say that again?",
			},
			ErrorSTTTimeout: {
				"I'm having trouble hearing you. Let me connect you with someone who can help.",
				"There seems to be an audio issue. I'll transfer you to a human agent.",
			},
			ErrorLLMRateLimit: {
				"I'm experiencing high demand right now. Please hold while I connect you with an agent.",
				"Let me transfer you to someone who can help you immediately.",
			},
			ErrorLLMTimeout: {
				"I'm taking longer than usual to process. Let me get you to a human agent.",
				"I'll connect you with someone right away.",
			},
			ErrorTTSTimeout: {
				"I'm having technical difficulties. Connecting you with a human agent now.",
				"Let me transfer you to someone who can assist you.",
			},
			ErrorGeneral: {
				"I'm experiencing technical difficulties. Let me connect you with a human agent.",
				"I'll transfer you to someone who can help you right away.",
			},
		},
		counters: make(map[string]int),
	}
}

// FallbackResponse returns the next canned line for the error category.
// Unknown categories map to the general set.
func (f *FallbackSystem) FallbackResponse(errorType string) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.responses[errorType]; !ok {
		errorType = ErrorGeneral
	}

	responses := f.responses[errorType]
	counter := f.counters[errorType]
	response := responses[counter%len(responses)]
	f.counters[errorType] = (counter + 1) % len(responses)

	f.logger.WithFields(logrus.Fields{
		"error_type": errorType,
		"response":   response,
	}).Info("Fallback response served")

	return response
}

// ShouldEscalate decides whether the session's error history warrants a human
// handoff: three or more cumulative errors, any critical error category, or
// repeated low-confidence recognition.
func (f *FallbackSystem) ShouldEscalate(sessionID string, errorCount int, errorTypes []string) bool {
	if errorCount >= 3 {
		f.logger.WithFields(logrus.Fields{
			"session_id":  sessionID,
			"error_count": errorCount,
		}).Warn("Escalating session, too many errors")
		return true
	}

	lowConfidence := 0
	for _, errorType := range errorTypes {
		if criticalErrors[errorType] {
			f.logger.WithFields(logrus.Fields{
				"session_id": sessionID,
				"error_type": errorType,
			}).Warn("Escalating session, critical error")
			return true
		}
		if errorType == ErrorSTTLowConfidence {
			lowConfidence++
		}
	}

	if lowConfidence >= 2 {
		f.logger.WithField("session_id", sessionID).Warn("Escalating session, repeated low confidence")
		return true
	}

	return false
}
