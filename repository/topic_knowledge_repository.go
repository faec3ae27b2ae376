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

// TopicKnowledgeRepository stores the approved knowledge of each conversation.
// Items are unique per (conversation_id, identity_key).
type TopicKnowledgeRepository struct {
	db *pgxpool.Pool
}

// NewTopicKnowledgeRepository creates a new topic knowledge repository
func NewTopicKnowledgeRepository(db *pgxpool.Pool) *TopicKnowledgeRepository {
	return &TopicKnowledgeRepository{db: db}
}

const topicKnowledgeColumns = `id, conversation_id, source, title, content,
	publisher, year, pos, cited_articles, judgment_id, case_number, created_at`

func scanKnowledgeItem(row pgx.Row, item *models.KnowledgeItem) error {
	return row.Scan(
		&item.ID,
		&item.ConversationID,
		&item.Source,
		&item.Title,
		&item.Content,
		&item.Publisher,
		&item.Year,
		&item.Pos,
		&item.CitedArticles,
		&item.JudgmentID,
		&item.CaseNumber,
		&item.CreatedAt,
	)
}

// List returns all items of a conversation in the order they were approved
func (r *TopicKnowledgeRepository) List(ctx context.Context, conversationID uuid.UUID) ([]models.KnowledgeItem, error) {
	query := `SELECT ` + topicKnowledgeColumns + `
		FROM topic_knowledge
		WHERE conversation_id = $1
		ORDER BY created_at, id`

	rows, err := r.db.Query(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query topic knowledge: %w", err)
	}
	defer rows.Close()

	var items []models.KnowledgeItem
	for rows.Next() {
		var item models.KnowledgeItem
		if err := scanKnowledgeItem(rows, &item); err != nil {
			return nil, fmt.Errorf("failed to scan topic knowledge: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Get returns one item by identity key
func (r *TopicKnowledgeRepository) Get(ctx context.Context, conversationID uuid.UUID, key models.IdentityKey) (*models.KnowledgeItem, error) {
	query := `SELECT ` + topicKnowledgeColumns + `
		FROM topic_knowledge
		WHERE conversation_id = $1 AND identity_key = $2`

	var item models.KnowledgeItem
	if err := scanKnowledgeItem(r.db.QueryRow(ctx, query, conversationID, string(key)), &item); err != nil {
		return nil, notFound(err)
	}
	return &item, nil
}

// Insert stores a new item. It reports false, without error, when an item with
// the same identity key already exists; the existing row is left untouched.
func (r *TopicKnowledgeRepository) Insert(ctx context.Context, item *models.KnowledgeItem) (bool, error) {
	cited := item.CitedArticles
	if cited == nil {
		cited = []string{}
	}

	query := `
		INSERT INTO topic_knowledge (
			conversation_id, identity_key, source, title, content,
			publisher, year, pos, cited_articles, judgment_id, case_number
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (conversation_id, identity_key) DO NOTHING
		RETURNING id, created_at`

	err := r.db.QueryRow(
		ctx, query,
		item.ConversationID,
		string(item.Key()),
		item.Source,
		item.Title,
		item.Content,
		item.Publisher,
		item.Year,
		item.Pos,
		cited,
		item.JudgmentID,
		item.CaseNumber,
	).Scan(&item.ID, &item.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert topic knowledge: %w", err)
	}
	return true, nil
}

// MergeCitedArticles appends newly observed cited articles to an existing item,
// keeping first-seen order without duplicates. It returns the merged list.
func (r *TopicKnowledgeRepository) MergeCitedArticles(ctx context.Context, conversationID uuid.UUID, key models.IdentityKey, articles []string) ([]string, error) {
	query := `
		UPDATE topic_knowledge
		SET cited_articles = ARRAY(
			SELECT a
			FROM unnest(cited_articles || $3::text[]) WITH ORDINALITY AS t(a, ord)
			GROUP BY a
			ORDER BY MIN(ord)
		)
		WHERE conversation_id = $1 AND identity_key = $2
		RETURNING cited_articles`

	var merged []string
	if err := r.db.QueryRow(ctx, query, conversationID, string(key), articles).Scan(&merged); err != nil {
		return nil, notFound(err)
	}
	return merged, nil
}
