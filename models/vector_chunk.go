package models

import (
	"time"

	"github.com/google/uuid"
)

// Visibility partitions vector chunks between tenants.
// It is either VisibilityGlobal or the owner's user id.
type Visibility string

const VisibilityGlobal Visibility = "GLOBAL"

// OwnerVisibility returns the private visibility tag of an owner
func OwnerVisibility(ownerID uuid.UUID) Visibility {
	return Visibility(ownerID.String())
}

// ChunkMetadata describes where a chunk came from
type ChunkMetadata struct {
	Title      string          `json:"title"`
	Source     KnowledgeSource `json:"source"`
	Year       int             `json:"year,omitempty"`
	Publisher  string          `json:"publisher,omitempty"`
	Pos        int             `json:"pos,omitempty"`
	JudgmentID string          `json:"judgment_id,omitempty"`
	Heading    string          `json:"heading,omitempty"`
}

// EmbeddingDimensions is the width of the vector(768) column of vector_chunks
const EmbeddingDimensions = 768

// VectorChunk represents an embedded chunk of legal text in the semantic library
type VectorChunk struct {
	ID         uuid.UUID     `json:"id"`
	DocumentID uuid.UUID     `json:"document_id"`
	ChunkIndex int           `json:"chunk_index"`
	Content    string        `json:"content"`
	Embedding  []float32     `json:"-"`
	Visibility Visibility    `json:"visibility"`
	Metadata   ChunkMetadata `json:"metadata"`
	Distance   float64       `json:"distance,omitempty"` // Vector similarity distance
	CreatedAt  time.Time     `json:"created_at"`
}
