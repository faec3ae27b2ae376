package models

import (
	"time"

	"github.com/google/uuid"
)

// File represents an uploaded attachment
type File struct {
	ID             uuid.UUID  `json:"id"`
	UserID         uuid.UUID  `json:"user_id"`
	ConversationID *uuid.UUID `json:"conversation_id,omitempty"`
	Filename       string     `json:"filename"`
	MimeType       string     `json:"mime_type"`
	Size           int64      `json:"size"`
	StoragePath    string     `json:"storage_path"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Attachment is a file loaded into memory for inlining into a model request
type Attachment struct {
	FileID   uuid.UUID
	Filename string
	MimeType string
	Data     []byte
}
