package guardrails

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// SafetyResult is the outcome of screening one turn's text for unsafe content.
type SafetyResult struct {
	Safe   bool     `json:"safe"`
	Issues []string `json:"issues"`
}

// SafetyFilter screens turn text for blocked phrases, fraud patterns and
// caller-distress signals. All three lists are scanned on every turn; the
// issue list preserves scan order and keeps duplicates.
type SafetyFilter struct {
	logger             *logrus.Entry
	blockedPhrases     []string
	fraudIndicators    []string
	distressIndicators []string
}

// NewSafetyFilter creates a filter with the built-in phrase lists.
func NewSafetyFilter(logger *logrus.Logger) *SafetyFilter {
	return &SafetyFilter{
		logger: logger.WithField("component", "safety_filter"),
		blockedPhrases: []string{
			"profanity",
			"harassment",
			"threats",
			"discrimination",
			"suicide",
			"self-harm",
			"abuse",
			"violence",
			"illegal activities",
			"fraud",
			"hacking",
			"unauthorized access",
			"competitor names",
			"unauthorized promotions",
			"off-topic discussions",
		},
		fraudIndicators: []string{
			"give me your",
			"provide your password",
			"verify your account",
			"urgent action required",
			"limited time offer",
			"act now",
			"social security number",
			"bank account details",
		},
		distressIndicators: []string{
			"want to hurt",
			"thinking about",
			"can't take it",
			"end it all",
			"nobody cares",
			"feel hopeless",
			"want to die",
		},
	}
}

// CheckSafety scans text against all three indicator lists. Matching is
// case-insensitive substring containment.
func (f *SafetyFilter) CheckSafety(text string) *SafetyResult {
	lower := strings.ToLower(text)
	var issues []string

	for _, phrase := range f.blockedPhrases {
		if strings.Contains(lower, phrase) {
			issues = append(issues, "blocked_phrase: "+phrase)
		}
	}
	for _, indicator := range f.fraudIndicators {
		if strings.Contains(lower, indicator) {
			issues = append(issues, "fraud_indicator: "+indicator)
		}
	}
	for _, indicator := range f.distressIndicators {
		if strings.Contains(lower, indicator) {
			issues = append(issues, "distress_indicator: "+indicator)
		}
	}

	if len(issues) > 0 {
		f.logger.WithField("issues", issues).Warn("Safety issues detected")
	}

	return &SafetyResult{
		Safe:   len(issues) == 0,
		Issues: issues,
	}
}
