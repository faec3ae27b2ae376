package service

import (
	"context"

	"lexcounsel-backend/legalapi"
	"lexcounsel-backend/models"

	"github.com/google/uuid"
)

// The interfaces below are satisfied by the repository, legalapi and
// embedding packages. Services depend on them so tests can run in memory.

// ConversationStore persists conversations and their turns
type ConversationStore interface {
	Create(ctx context.Context, c *models.Conversation) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]models.Conversation, error)
	AppendTurn(ctx context.Context, turn *models.ConversationTurn) error
	ListTurns(ctx context.Context, conversationID uuid.UUID) ([]models.ConversationTurn, error)
}

// TopicKnowledgeStore persists approved knowledge per conversation
type TopicKnowledgeStore interface {
	List(ctx context.Context, conversationID uuid.UUID) ([]models.KnowledgeItem, error)
	Get(ctx context.Context, conversationID uuid.UUID, key models.IdentityKey) (*models.KnowledgeItem, error)
	Insert(ctx context.Context, item *models.KnowledgeItem) (bool, error)
	MergeCitedArticles(ctx context.Context, conversationID uuid.UUID, key models.IdentityKey, articles []string) ([]string, error)
}

// ProposalStore persists knowledge proposals awaiting user confirmation
type ProposalStore interface {
	Create(ctx context.Context, p *models.KnowledgeProposal) error
	Get(ctx context.Context, token string) (*models.KnowledgeProposal, error)
	ListPending(ctx context.Context, conversationID uuid.UUID) ([]models.KnowledgeProposal, error)
	ListConfirmed(ctx context.Context, conversationID uuid.UUID) ([]models.KnowledgeProposal, error)
	Confirm(ctx context.Context, conversationID uuid.UUID, token string) (*models.KnowledgeProposal, error)
	Consume(ctx context.Context, token string) (bool, error)
}

// ChunkStore is the vector index
type ChunkStore interface {
	Search(ctx context.Context, embedding []float32, visibilities []models.Visibility, limit int) ([]models.VectorChunk, error)
	InsertBatch(ctx context.Context, chunks []models.VectorChunk) (int, error)
}

// TimelineStore persists extracted timeline events
type TimelineStore interface {
	InsertBatch(ctx context.Context, events []models.TimelineEvent) error
	ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]models.TimelineEvent, error)
}

// FileStore persists attachment metadata
type FileStore interface {
	Create(ctx context.Context, file *models.File) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.File, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// StatuteSource searches and fetches statutes
type StatuteSource interface {
	Search(ctx context.Context, q legalapi.StatuteQuery) ([]legalapi.StatuteCandidate, error)
	FetchText(ctx context.Context, publisher string, year, pos, limit int) (string, error)
}

// RulingSource searches and fetches court rulings
type RulingSource interface {
	Search(ctx context.Context, query, courtType string) ([]legalapi.RulingCandidate, error)
	FetchText(ctx context.Context, judgmentID string) (string, error)
}

// Embedder produces query and document embeddings
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedDocuments(ctx context.Context, title string, texts []string) ([][]float32, error)
}
