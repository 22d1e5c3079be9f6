// Package llm defines the conversational response contract, the persona
// registry and a mock responder for tests and the loopback demo.
package llm

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Persona describes one assistant voice personality.
type Persona struct {
	Name         string `json:"name"`
	Personality  string `json:"personality"`
	VoiceID      string `json:"voice_id"`
	SystemPrompt string `json:"system_prompt"`
	Greeting     string `json:"greeting"`
	Style        string `json:"conversation_style"`
}

// Message is one entry of the conversation history passed to a responder.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// DefaultPersona is used when a requested persona is not registered.
const DefaultPersona = "stephen"

// Responder generates the assistant's reply for one turn.
type Responder interface {
	// Initialize initializes the responder with any required configuration
	Initialize() error

	// Name returns the responder name
	Name() string

	// GenerateResponse produces a reply to the user input given the recent
	// conversation history and the persona's system prompt
	GenerateResponse(ctx context.Context, input string, history []Message, persona *Persona) (string, error)
}

// PersonaRegistry holds the available personas and resolves lookups with a
// fallback to the default persona.
type PersonaRegistry struct {
	logger   *logrus.Entry
	personas map[string]*Persona
	order    []string
}

// NewPersonaRegistry creates a registry preloaded with the built-in personas.
func NewPersonaRegistry(logger *logrus.Logger) *PersonaRegistry {
	r := &PersonaRegistry{
		logger:   logger.WithField("component", "persona_registry"),
		personas: make(map[string]*Persona),
	}

	for _, p := range []*Persona{
		{
			Name:         "stephen",
			Personality:  "confident, knowledgeable, slightly witty",
			VoiceID:      "stephen_voice",
			SystemPrompt: "You are Stephen, a confident and knowledgeable AI assistant with a slight wit. Keep responses conversational and under 50 words.",
			Greeting:     "Hey there! Stephen here. What's on your mind?",
			Style:        "confident",
		},
		{
			Name:         "nova",
			Personality:  "warm, empathetic, supportive",
			VoiceID:      "nova_voice",
			SystemPrompt: "You are Nova, a warm and empathetic AI assistant. You're supportive and caring in your responses. Keep responses under 50 words.",
			Greeting:     "Hi! I'm Nova. I'm here to help and support you however I can.",
			Style:        "supportive",
		},
		{
			Name:         "sugar",
			Personality:  "bubbly, energetic, enthusiastic",
			VoiceID:      "sugar_voice",
			SystemPrompt: "You are Sugar, a bubbly and energetic AI assistant. You're enthusiastic and positive. Keep responses upbeat and under 50 words.",
			Greeting:     "Hey there, sweetie! Sugar here and I'm super excited to chat with you!",
			Style:        "energetic",
		},
	} {
		r.Register(p)
	}

	return r
}

// Register adds or replaces a persona
func (r *PersonaRegistry) Register(p *Persona) {
	if _, exists := r.personas[p.Name]; !exists {
		r.order = append(r.order, p.Name)
	}
	r.personas[p.Name] = p
	r.logger.WithField("persona", p.Name).Debug("Registered persona")
}

// Get resolves a persona by name, falling back to the default persona
func (r *PersonaRegistry) Get(name string) *Persona {
	if p, ok := r.personas[name]; ok {
		return p
	}
	return r.personas[DefaultPersona]
}

// Greeting returns the opening line for the persona
func (r *PersonaRegistry) Greeting(name string) string {
	return r.Get(name).Greeting
}

// VoiceID returns the synthesis voice for the persona
func (r *PersonaRegistry) VoiceID(name string) string {
	return r.Get(name).VoiceID
}

// Available lists the registered persona names in registration order
func (r *PersonaRegistry) Available() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
