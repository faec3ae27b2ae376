package models

import (
	"time"

	"github.com/google/uuid"
)

// TimelineEventType classifies a timeline event
type TimelineEventType string

const (
	EventFact     TimelineEventType = "fact"
	EventDeadline TimelineEventType = "deadline"
	EventStatus   TimelineEventType = "status"
)

// TimelineEvent is a dated case fact extracted from an assistant answer
type TimelineEvent struct {
	ID             uuid.UUID         `json:"id"`
	ConversationID uuid.UUID         `json:"conversation_id"`
	Date           string            `json:"date"` // ISO date or free text
	Title          string            `json:"title"`
	Description    string            `json:"description"`
	Type           TimelineEventType `json:"type"`
	CreatedAt      time.Time         `json:"created_at"`
}
