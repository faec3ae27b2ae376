package repository

import (
	"context"
	"errors"
	"fmt"

	"lexcounsel-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ProposalRepository stores knowledge proposals awaiting user confirmation
type ProposalRepository struct {
	db *pgxpool.Pool
}

// NewProposalRepository creates a new proposal repository
func NewProposalRepository(db *pgxpool.Pool) *ProposalRepository {
	return &ProposalRepository{db: db}
}

const proposalColumns = `token, conversation_id, source, identity_key, title, status, created_at, confirmed_at`

func scanProposal(row pgx.Row, p *models.KnowledgeProposal) error {
	return row.Scan(
		&p.Token,
		&p.ConversationID,
		&p.Source,
		&p.IdentityKey,
		&p.Title,
		&p.Status,
		&p.CreatedAt,
		&p.ConfirmedAt,
	)
}

// Create stores a new pending proposal
func (r *ProposalRepository) Create(ctx context.Context, p *models.KnowledgeProposal) error {
	query := `
		INSERT INTO knowledge_proposals (token, conversation_id, source, identity_key, title, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	return r.db.QueryRow(ctx, query, p.Token, p.ConversationID, p.Source, string(p.IdentityKey), p.Title, p.Status).
		Scan(&p.CreatedAt)
}

// Get retrieves a proposal by token
func (r *ProposalRepository) Get(ctx context.Context, token string) (*models.KnowledgeProposal, error) {
	var p models.KnowledgeProposal
	query := `SELECT ` + proposalColumns + ` FROM knowledge_proposals WHERE token = $1`
	if err := scanProposal(r.db.QueryRow(ctx, query, token), &p); err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// ListPending returns proposals of a conversation that still await confirmation
func (r *ProposalRepository) ListPending(ctx context.Context, conversationID uuid.UUID) ([]models.KnowledgeProposal, error) {
	return r.listByStatus(ctx, conversationID, models.ProposalPending)
}

// ListConfirmed returns confirmed proposals whose token has not been used yet
func (r *ProposalRepository) ListConfirmed(ctx context.Context, conversationID uuid.UUID) ([]models.KnowledgeProposal, error) {
	return r.listByStatus(ctx, conversationID, models.ProposalConfirmed)
}

func (r *ProposalRepository) listByStatus(ctx context.Context, conversationID uuid.UUID, status models.ProposalStatus) ([]models.KnowledgeProposal, error) {
	query := `SELECT ` + proposalColumns + `
		FROM knowledge_proposals
		WHERE conversation_id = $1 AND status = $2
		ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, conversationID, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to query proposals: %w", err)
	}
	defer rows.Close()

	var out []models.KnowledgeProposal
	for rows.Next() {
		var p models.KnowledgeProposal
		if err := scanProposal(rows, &p); err != nil {
			return nil, fmt.Errorf("failed to scan proposal: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Confirm moves a pending proposal of the conversation to confirmed
func (r *ProposalRepository) Confirm(ctx context.Context, conversationID uuid.UUID, token string) (*models.KnowledgeProposal, error) {
	query := `
		UPDATE knowledge_proposals
		SET status = 'confirmed', confirmed_at = NOW()
		WHERE token = $1 AND conversation_id = $2 AND status = 'pending'
		RETURNING ` + proposalColumns

	var p models.KnowledgeProposal
	err := scanProposal(r.db.QueryRow(ctx, query, token, conversationID), &p)
	if err == nil {
		return &p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to confirm proposal: %w", err)
	}

	existing, getErr := r.Get(ctx, token)
	return unconfirmable(existing, getErr, conversationID)
}

// unconfirmable explains why a proposal could not be moved to confirmed.
// A proposal of another conversation is reported as not found.
func unconfirmable(existing *models.KnowledgeProposal, err error, conversationID uuid.UUID) (*models.KnowledgeProposal, error) {
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load proposal: %w", err)
	}
	if existing.ConversationID != conversationID {
		return nil, ErrNotFound
	}
	return existing, ErrConflict
}

// Consume marks a confirmed proposal as used. It reports false when the
// proposal was not in the confirmed state.
func (r *ProposalRepository) Consume(ctx context.Context, token string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE knowledge_proposals
		SET status = 'consumed'
		WHERE token = $1 AND status = 'confirmed'`, token)
	if err != nil {
		return false, fmt.Errorf("failed to consume proposal: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
