// Package language provides fast text-based language identification, the
// per-language voice and prompt mappings, and the fallback response system
// used when a pipeline leg fails.
package language

import (
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Language is a BCP 47 style language tag.
type Language string

const (
	LangENUS Language = "en-US"
	LangENGB Language = "en-GB"
	LangESES Language = "es-ES"
	LangFRFR Language = "fr-FR"
	LangDEDE Language = "de-DE"
	LangITIT Language = "it-IT"
	LangPTBR Language = "pt-BR"
)

// Result is a language identification outcome.
type Result struct {
	Language   Language      `json:"language"`
	Confidence float64       `json:"confidence"`
	DetectedIn time.Duration `json:"detected_in"`
}

// PromptPack holds the language-specific canned lines.
type PromptPack struct {
	Greeting    string `json:"greeting"`
	Fallback    string `json:"fallback"`
	Transfer    string `json:"transfer"`
	Personality string `json:"personality"`
}

type languagePatterns struct {
	language Language
	patterns []string
}

// Detector identifies the caller's language from early transcript text.
type Detector struct {
	logger        *logrus.Entry
	patterns      []languagePatterns
	voiceMappings map[Language]map[string]string
	promptPacks   map[Language]PromptPack
}

// MinConfidence is the share of patterns that must match before a detection
// is reported.
const MinConfidence = 0.2

// NewDetector creates a detector with the built-in pattern tables.
func NewDetector(logger *logrus.Logger) *Detector {
	return &Detector{
		logger: logger.WithField("component", "language_detector"),
		patterns: []languagePatterns{
			{LangENUS, []string{"hello", "hi", "yes", "no", "the", "and", "a", "to"}},
			{LangESES, []string{"hola", "sí", "no", "el", "la", "y", "de", "que"}},
			{LangFRFR, []string{"bonjour", "oui", "non", "le", "la", "et", "de", "que"}},
			{LangDEDE, []string{"hallo", "ja", "nein", "der", "die", "und", "von", "dass"}},
			{LangITIT, []string{"ciao", "sì", "no", "il", "la", "e", "di", "che"}},
			{LangPTBR, []string{"olá", "sim", "não", "o", "a", "e", "de", "que"}},
		},
		voiceMappings: map[Language]map[string]string{
			LangENUS: {
				"professional": "pNInz6obpgDQGcFmaJgB",
				"friendly":     "EXAVITQu4vr4xnSDxMaL",
				"energetic":    "MF3mGyEYCl7XYWbV9V6O",
			},
			LangENGB: {
				"professional": "onwK4e9ZLuTAKqWW03F9",
				"friendly":     "Xb7hH8MSUJpSbSDYk0k2",
				"energetic":    "Xb7hH8MSUJpSbSDYk0k2",
			},
			LangESES: {
				"professional": "zcAOhNBS3c14rBihAFp1",
				"friendly":     "XrExE9yKIg1WjnnlVkGX",
				"energetic":    "XrExE9yKIg1WjnnlVkGX",
			},
			LangFRFR: {
				"professional": "XrExE9yKIg1WjnnlVkGX",
				"friendly":     "XrExE9yKIg1WjnnlVkGX",
				"energetic":    "zcAOhNBS3c14rBihAFp1",
			},
			LangDEDE: {
				"professional": "XrExE9yKIg1WjnnlVkGX",
				"friendly":     "XrExE9yKIg1WjnnlVkGX",
				"energetic":    "XrExE9yKIg1WjnnlVkGX",
			},
			LangITIT: {
				"professional": "zcAOhNBS3c14rBihAFp1",
				"friendly":     "zcAOhNBS3c14rBihAFp1",
				"energetic":    "zcAOhNBS3c14rBihAFp1",
			},
		},
		promptPacks: map[Language]PromptPack{
			LangENUS: {
				Greeting:    "Hello! I'm your AI assistant. How can I help you today?",
				Fallback:    "I'm sorry, I didn't quite catch that. Could you repeat that please?",
				Transfer:    "I'll connect you with a human agent who can better assist you.",
				Personality: "friendly and professional",
			},
			LangESES: {
				Greeting:    "¡Hola! Soy tu asistente de IA. ¿Cómo puedo ayudarte hoy?",
				Fallback:    "Lo siento, no entendí bien. ¿Podrías repetir eso por favor?",
				Transfer:    "Te conectaré con un agente humano que podrá ayudarte mejor.",
				Personality: "amigable y profesional",
			},
			LangFRFR: {
				Greeting:    "Bonjour! Je suis votre assistant IA. Comment puis-je vous aider aujourd'hui?",
				Fallback:    "Désolé, je n'ai pas bien compris. Pourriez-vous répéter s'il vous plaît?",
				Transfer:    "Je vais vous connecter avec un agent humain qui pourra mieux vous aider.",
				Personality: "amical et professionnel",
			},
			LangDEDE: {
				Greeting:    "Hallo! Ich bin Ihr KI-Assistent. Wie kann ich Ihnen heute helfen?",
				Fallback:    "Entschuldigung, das habe ich nicht ganz verstanden. Könnten Sie das bitte wiederholen?",
				Transfer:    "Ich verbinde Sie mit einem menschlichen Mitarbeiter, der Ihnen besser helfen kann.",
				Personality: "freundlich und professionell",
			},
			LangITIT: {
				Greeting:    "Ciao! Sono il tuo assistente IA. Come posso aiutarti oggi?",
				Fallback:    "Mi dispiace, non ho capito bene. Potresti ripetere per favore?",
				Transfer:    "Ti collegherò con un agente umano che potrà aiutarti meglio.",
				Personality: "amichevole e professionale",
			},
		},
	}
}

// DetectFromText scores each language by the share of its patterns appearing
// in the text. Returns nil when no language reaches the confidence floor.
// Pattern matching is substring containment, so very short function words
// also hit inside larger words; the normalization absorbs most of that noise.
func (d *Detector) DetectFromText(text string, processingTime time.Duration) *Result {
	lower := strings.ToLower(text)

	var best *Result
	for _, lp := range d.patterns {
		matched := 0
		for _, pattern := range lp.patterns {
			if strings.Contains(lower, pattern) {
				matched++
			}
		}
		confidence := float64(matched) / float64(len(lp.patterns))
		if best == nil || confidence > best.Confidence {
			best = &Result{Language: lp.language, Confidence: confidence, DetectedIn: processingTime}
		}
	}

	if best == nil || best.Confidence < MinConfidence {
		return nil
	}

	d.logger.WithFields(logrus.Fields{
		"language":   best.Language,
		"confidence": best.Confidence,
	}).Info("Language detected")

	return best
}

// VoiceForLanguage returns the synthesis voice for a language and persona
// style, falling back to the language's first style and then to US English.
func (d *Detector) VoiceForLanguage(lang Language, personaStyle string) string {
	if voices, ok := d.voiceMappings[lang]; ok {
		if voice, ok := voices[personaStyle]; ok {
			return voice
		}
		return voices["professional"]
	}
	return d.voiceMappings[LangENUS][personaStyle]
}

// PromptsForLanguage returns the prompt pack for a language, falling back to
// US English.
func (d *Detector) PromptsForLanguage(lang Language) PromptPack {
	if pack, ok := d.promptPacks[lang]; ok {
		return pack
	}
	return d.promptPacks[LangENUS]
}
