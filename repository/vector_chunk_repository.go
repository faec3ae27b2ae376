package repository

import (
	"context"
	"fmt"
	"strings"

	"lexcounsel-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EmbeddingDimensions matches the vector(768) column of vector_chunks
const EmbeddingDimensions = models.EmbeddingDimensions

// VectorChunkRepository handles database operations for the semantic library
type VectorChunkRepository struct {
	db *pgxpool.Pool
}

// NewVectorChunkRepository creates a new vector chunk repository
func NewVectorChunkRepository(db *pgxpool.Pool) *VectorChunkRepository {
	return &VectorChunkRepository{db: db}
}

// formatVector formats an embedding vector as a pgvector literal
func formatVector(embedding []float32) string {
	if len(embedding) == 0 {
		return "[]"
	}
	parts := make([]string, 0, len(embedding))
	for _, v := range embedding {
		parts = append(parts, fmt.Sprintf("%.6f", v))
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// Search returns the chunks nearest to embedding among those whose visibility
// is one of visibilities. Filtering happens before ranking.
func (r *VectorChunkRepository) Search(
	ctx context.Context,
	embedding []float32,
	visibilities []models.Visibility,
	limit int,
) ([]models.VectorChunk, error) {
	if len(embedding) != EmbeddingDimensions {
		return nil, fmt.Errorf("embedding must be %d dimensions, got %d", EmbeddingDimensions, len(embedding))
	}
	if len(visibilities) == 0 {
		return nil, fmt.Errorf("at least one visibility is required")
	}

	tags := make([]string, 0, len(visibilities))
	for _, v := range visibilities {
		tags = append(tags, string(v))
	}

	query := `
		SELECT
			id,
			document_id,
			chunk_index,
			content,
			visibility,
			metadata,
			created_at,
			embedding <=> $1::vector AS distance
		FROM vector_chunks
		WHERE visibility = ANY($2::text[])
		ORDER BY embedding <=> $1::vector
		LIMIT $3`

	rows, err := r.db.Query(ctx, query, formatVector(embedding), tags, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query vector chunks: %w", err)
	}
	defer rows.Close()

	var chunks []models.VectorChunk
	for rows.Next() {
		var chunk models.VectorChunk
		err := rows.Scan(
			&chunk.ID,
			&chunk.DocumentID,
			&chunk.ChunkIndex,
			&chunk.Content,
			&chunk.Visibility,
			&chunk.Metadata,
			&chunk.CreatedAt,
			&chunk.Distance,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan vector chunk: %w", err)
		}
		chunks = append(chunks, chunk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating vector chunks: %w", err)
	}

	return chunks, nil
}

// InsertBatch writes the chunks of one ingestion run in a single transaction.
// Chunks already present for (document_id, chunk_index) are skipped, so a
// repeated ingestion of the same document is a no-op. It returns the number inserted.
func (r *VectorChunkRepository) InsertBatch(ctx context.Context, chunks []models.VectorChunk) (int, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO vector_chunks (
			id, document_id, chunk_index, content, embedding, visibility, metadata
		) VALUES ($1, $2, $3, $4, $5::vector, $6, $7)
		ON CONFLICT (document_id, chunk_index) DO NOTHING`

	inserted := 0
	for _, chunk := range chunks {
		if len(chunk.Embedding) != EmbeddingDimensions {
			return 0, fmt.Errorf("chunk %d: embedding must be %d dimensions, got %d", chunk.ChunkIndex, EmbeddingDimensions, len(chunk.Embedding))
		}
		id := chunk.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		tag, err := tx.Exec(ctx, query,
			id,
			chunk.DocumentID,
			chunk.ChunkIndex,
			chunk.Content,
			formatVector(chunk.Embedding),
			string(chunk.Visibility),
			chunk.Metadata,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert chunk %d: %w", chunk.ChunkIndex, err)
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return inserted, nil
}

// CountByDocument returns how many chunks a document has in the index
func (r *VectorChunkRepository) CountByDocument(ctx context.Context, documentID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM vector_chunks WHERE document_id = $1`, documentID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return count, nil
}
