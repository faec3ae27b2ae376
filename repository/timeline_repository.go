package repository

import (
	"context"
	"fmt"

	"lexcounsel-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TimelineRepository stores timeline events extracted from assistant answers
type TimelineRepository struct {
	db *pgxpool.Pool
}

// NewTimelineRepository creates a new timeline repository
func NewTimelineRepository(db *pgxpool.Pool) *TimelineRepository {
	return &TimelineRepository{db: db}
}

// InsertBatch stores events in one transaction. IDs and timestamps must be set by the caller.
func (r *TimelineRepository) InsertBatch(ctx context.Context, events []models.TimelineEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO timeline_events (
			id, conversation_id, event_date, title, description, event_type, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	for _, e := range events {
		_, err := tx.Exec(ctx, query, e.ID, e.ConversationID, e.Date, e.Title, e.Description, e.Type, e.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert timeline event: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// ListByConversation returns a conversation's events in creation order
func (r *TimelineRepository) ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]models.TimelineEvent, error) {
	query := `
		SELECT id, conversation_id, event_date, title, description, event_type, created_at
		FROM timeline_events
		WHERE conversation_id = $1
		ORDER BY created_at, id`

	rows, err := r.db.Query(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query timeline events: %w", err)
	}
	defer rows.Close()

	var events []models.TimelineEvent
	for rows.Next() {
		var e models.TimelineEvent
		if err := rows.Scan(&e.ID, &e.ConversationID, &e.Date, &e.Title, &e.Description, &e.Type, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan timeline event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
