// Package types defines the shared types used across voxhire packages.
//
// These types form the lingua franca between providers, the memory layer and the
// interview orchestrator. Each package defines its own domain types; only
// cross-cutting data structures live here to avoid circular imports.
package types

import "time"

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleUser is the candidate being interviewed.
	RoleUser Role = "user"

	// RoleAssistant is the AI interviewer.
	RoleAssistant Role = "assistant"

	// RoleSystem marks instructions or out-of-band notes.
	RoleSystem Role = "system"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// ConversationMessage is a single entry in an interview's conversation history.
type ConversationMessage struct {
	// ID is the store-assigned identifier. Empty for messages not yet persisted.
	ID string

	// Role is who produced the message.
	Role Role

	// Content is the message text.
	Content string

	// Timestamp is when the message was produced.
	Timestamp time.Time
}

// Message is a single turn handed to a language model.
type Message struct {
	Role    Role
	Content string
}

// Job describes the position the candidate is interviewing for.
type Job struct {
	ID          string
	Title       string
	Company     string
	Description string

	// Skills are the required skills, used both for prompting and as a
	// vocabulary for transcript correction.
	Skills []string

	// Language is the BCP-47 interview language (e.g. "en", "de-DE").
	Language string
}

// Candidate describes the person being interviewed.
type Candidate struct {
	ID      string
	Name    string
	Summary string
	Skills  []string
}

// InterviewContext bundles everything needed to drive an interview.
type InterviewContext struct {
	InterviewID string
	Job         Job
	Candidate   Candidate

	// Voice is the TTS voice configured for this interview. Empty means the
	// provider default.
	Voice VoiceProfile
}

// VoiceProfile selects a synthesis voice on a TTS provider.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is a human-readable label.
	Name string

	// Provider names the TTS backend the ID belongs to.
	Provider string

	// Metadata carries provider-specific attributes (accent, category, ...).
	Metadata map[string]string
}

// ModelCapabilities describes static properties of a language model.
type ModelCapabilities struct {
	// ContextWindow is the maximum number of tokens the model accepts.
	ContextWindow int

	// MaxOutputTokens is the maximum completion length.
	MaxOutputTokens int
}
