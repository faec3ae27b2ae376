package repository

import (
	"context"
	"fmt"

	"lexcounsel-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ConversationRepository handles database operations for conversations and their turns
type ConversationRepository struct {
	db *pgxpool.Pool
}

// NewConversationRepository creates a new conversation repository
func NewConversationRepository(db *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// Create creates a new conversation
func (r *ConversationRepository) Create(ctx context.Context, c *models.Conversation) error {
	query := `
		INSERT INTO conversations (owner_id, title, persona)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`

	return r.db.QueryRow(ctx, query, c.OwnerID, c.Title, c.Persona).
		Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
}

// GetByID retrieves a conversation without its turns
func (r *ConversationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	c := &models.Conversation{}
	query := `
		SELECT id, owner_id, title, persona, created_at, updated_at
		FROM conversations
		WHERE id = $1`

	err := r.db.QueryRow(ctx, query, id).Scan(
		&c.ID,
		&c.OwnerID,
		&c.Title,
		&c.Persona,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

// ListByOwner returns an owner's conversations, most recently active first
func (r *ConversationRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]models.Conversation, error) {
	query := `
		SELECT id, owner_id, title, persona, created_at, updated_at
		FROM conversations
		WHERE owner_id = $1
		ORDER BY updated_at DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	var out []models.Conversation
	for rows.Next() {
		var c models.Conversation
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Title, &c.Persona, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// AppendTurn stores a turn at the end of the history and bumps the conversation's updated_at
func (r *ConversationRepository) AppendTurn(ctx context.Context, turn *models.ConversationTurn) error {
	attachments := turn.Attachments
	if attachments == nil {
		attachments = []uuid.UUID{}
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO conversation_turns (
			conversation_id, role, content, attachments,
			prompt_tokens, completion_tokens, total_tokens
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	err = tx.QueryRow(
		ctx, query,
		turn.ConversationID,
		turn.Role,
		turn.Content,
		attachments,
		turn.Usage.PromptTokens,
		turn.Usage.CompletionTokens,
		turn.Usage.TotalTokens,
	).Scan(&turn.ID, &turn.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert turn: %w", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE conversations SET updated_at = NOW() WHERE id = $1`, turn.ConversationID); err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}

	return tx.Commit(ctx)
}

// ListTurns returns the conversation history in insertion order
func (r *ConversationRepository) ListTurns(ctx context.Context, conversationID uuid.UUID) ([]models.ConversationTurn, error) {
	query := `
		SELECT id, conversation_id, role, content, attachments,
			prompt_tokens, completion_tokens, total_tokens, created_at
		FROM conversation_turns
		WHERE conversation_id = $1
		ORDER BY seq`

	rows, err := r.db.Query(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	var turns []models.ConversationTurn
	for rows.Next() {
		var t models.ConversationTurn
		err := rows.Scan(
			&t.ID,
			&t.ConversationID,
			&t.Role,
			&t.Content,
			&t.Attachments,
			&t.Usage.PromptTokens,
			&t.Usage.CompletionTokens,
			&t.Usage.TotalTokens,
			&t.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}
