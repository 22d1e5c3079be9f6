package guardrails

import (
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
)

// PIIDetection is the result of scanning one turn's text for sensitive data.
type PIIDetection struct {
	Detected      bool     `json:"detected"`
	Types         []string `json:"pii_types"`
	Confidence    float64  `json:"confidence"`
	MaskedContent string   `json:"masked_content"`
	Positions     [][2]int `json:"original_positions"`
}

// piiPattern pairs a category tag with its matcher. Matchers run in
// declaration order; masks are spliced into the already-masked text at the
// positions found in the original text, so overlapping matches can corrupt
// each other's masks. Callers must tolerate this.
type piiPattern struct {
	category string
	re       *regexp.Regexp
}

// PIIDetector detects and masks personally identifiable information in text.
type PIIDetector struct {
	logger            *logrus.Entry
	patterns          []piiPattern
	sensitiveKeywords []keywordCategory
}

type keywordCategory struct {
	category string
	keywords []string
}

// NewPIIDetector creates a PII detector with the fixed pattern set.
func NewPIIDetector(logger *logrus.Logger) *PIIDetector {
	return &PIIDetector{
		logger: logger.WithField("component", "pii_detector"),
		patterns: []piiPattern{
			{"ssn", regexp.MustCompile(`\b\d{3}-?\d{2}-?\d{4}\b`)},
			{"credit_card", regexp.MustCompile(`\b(?:\d{4}[-\s]?){3}\d{4}\b`)},
			{"phone", regexp.MustCompile(`\b\d{3}-?\d{3}-?\d{4}\b`)},
			{"email", regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
			{"dob", regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b`)},
			{"account_number", regexp.MustCompile(`\b\d{8,20}\b`)},
			{"routing_number", regexp.MustCompile(`\b\d{9}\b`)},
			{"zip_code", regexp.MustCompile(`\b\d{5}(?:-\d{4})?\b`)},
			{"address", regexp.MustCompile(`(?i)\b\d+\s+\w+\s+(?:street|st|avenue|ave|road|rd|drive|dr|lane|ln|boulevard|blvd)\b`)},
		},
		sensitiveKeywords: []keywordCategory{
			{"security_questions", []string{"mother's maiden name", "first pet", "childhood friend", "high school"}},
			{"financial", []string{"bank account", "routing number", "social security", "credit score"}},
			{"medical", []string{"diagnosis", "prescription", "medical record", "health condition"}},
			{"personal", []string{"password", "pin number", "secret", "confidential"}},
		},
	}
}

// DetectAndMask scans text for PII patterns and sensitive keyword contexts.
// Every pattern match is replaced by a category-tagged mask of roughly the
// original width; keyword context hits add advisory category tags without
// masking anything.
func (d *PIIDetector) DetectAndMask(text string) *PIIDetection {
	var (
		detectedTypes []string
		positions     [][2]int
		confidences   []float64
	)
	maskedText := text

	for _, p := range d.patterns {
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			match := text[loc[0]:loc[1]]
			detectedTypes = append(detectedTypes, p.category)
			positions = append(positions, [2]int{loc[0], loc[1]})
			confidences = append(confidences, patternConfidence(p.category, match))
			maskedText = spliceMask(maskedText, loc[0], loc[1], maskFor(p.category, len(match)))
		}
	}

	lower := strings.ToLower(text)
	for _, kc := range d.sensitiveKeywords {
		for _, keyword := range kc.keywords {
			if strings.Contains(lower, keyword) {
				detectedTypes = append(detectedTypes, "context_"+kc.category)
				confidences = append(confidences, 0.7)
			}
		}
	}

	overall := 0.0
	for _, c := range confidences {
		if c > overall {
			overall = c
		}
	}

	result := &PIIDetection{
		Detected:      len(detectedTypes) > 0,
		Types:         dedupe(detectedTypes),
		Confidence:    overall,
		MaskedContent: maskedText,
		Positions:     positions,
	}

	if result.Detected {
		d.logger.WithFields(logrus.Fields{
			"pii_types":  result.Types,
			"confidence": result.Confidence,
		}).Info("PII detected and masked")
	}

	return result
}

// patternConfidence maps a category to its base confidence, adjusted
// upward for strong format hints.
func patternConfidence(category, content string) float64 {
	confidence := map[string]float64{
		"ssn":            0.95,
		"credit_card":    0.90,
		"email":          0.85,
		"phone":          0.75,
		"account_number": 0.60,
		"zip_code":       0.70,
		"dob":            0.65,
		"routing_number": 0.90,
		"address":        0.80,
	}[category]
	if confidence == 0 {
		confidence = 0.5
	}

	if category == "phone" {
		digits := strings.ReplaceAll(strings.ReplaceAll(content, "-", ""), " ", "")
		if len(digits) == 10 {
			confidence += 0.1
		}
	}
	if category == "ssn" && strings.Contains(content, "-") {
		confidence += 0.05
	}

	if confidence > 1.0 {
		confidence = 1.0
	}
	return confidence
}

// maskFor builds the replacement token: the upper-cased category in brackets,
// star-padded toward the original match length.
func maskFor(category string, matchLen int) string {
	pad := matchLen - len(category) - 2
	if pad < 0 {
		pad = 0
	}
	return "[" + strings.ToUpper(category) + "]" + strings.Repeat("*", pad)
}

// spliceMask replaces [start,end) of s with mask, clamping out-of-range
// offsets. Offsets come from the original text but are applied to the
// evolving masked string, so earlier masks that changed the length can
// shift later splices; bounds are clamped rather than re-derived.
func spliceMask(s string, start, end int, mask string) string {
	if start > len(s) {
		start = len(s)
	}
	if end > len(s) {
		end = len(s)
	}
	if start > end {
		start = end
	}
	return s[:start] + mask + s[end:]
}

// dedupe removes duplicate tags preserving first-seen order.
func dedupe(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
