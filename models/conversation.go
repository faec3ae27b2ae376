package models

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a conversation turn
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Persona selects the instruction set the assistant runs under
type Persona string

const (
	PersonaAssistant Persona = "assistant"
	PersonaAnalysis  Persona = "analysis"
	PersonaDrafting  Persona = "drafting"
)

// Valid reports whether p is one of the supported personas
func (p Persona) Valid() bool {
	switch p {
	case PersonaAssistant, PersonaAnalysis, PersonaDrafting:
		return true
	}
	return false
}

// Conversation represents one case thread (the topic)
type Conversation struct {
	ID        uuid.UUID          `json:"id"`
	OwnerID   uuid.UUID          `json:"owner_id"`
	Title     string             `json:"title"`
	Persona   Persona            `json:"persona"`
	Turns     []ConversationTurn `json:"turns,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// TokenUsage records model token accounting for a turn
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add returns the sum of two usage records
func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		PromptTokens:     u.PromptTokens + other.PromptTokens,
		CompletionTokens: u.CompletionTokens + other.CompletionTokens,
		TotalTokens:      u.TotalTokens + other.TotalTokens,
	}
}

// ConversationTurn is one entry of the conversation history
type ConversationTurn struct {
	ID             uuid.UUID   `json:"id"`
	ConversationID uuid.UUID   `json:"conversation_id"`
	Role           Role        `json:"role"`
	Content        string      `json:"content"`
	Attachments    []uuid.UUID `json:"attachments,omitempty"`
	Usage          TokenUsage  `json:"usage"`
	CreatedAt      time.Time   `json:"created_at"`
}
