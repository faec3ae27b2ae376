package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"lexcounsel-backend/chunking"
	"lexcounsel-backend/legalapi"
	"lexcounsel-backend/metrics"
	"lexcounsel-backend/models"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Semantic search result sources
const (
	SourceIndex             = "index"
	SourceFallbackIngestion = "fallback_ingestion"
)

// IngestionService answers semantic library queries and indexes statutes on
// demand when the index has nothing for a query
type IngestionService struct {
	chunks    ChunkStore
	embedder  Embedder
	statutes  StatuteSource
	knowledge *KnowledgeService

	topK       int
	chunkLimit int
	chunkOpts  chunking.Options
	timeout    time.Duration

	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *log.Logger
}

// IngestionServiceOption is a functional option for IngestionService
type IngestionServiceOption func(*IngestionService)

// IngestionWithChunkStore sets the vector chunk store
func IngestionWithChunkStore(store ChunkStore) IngestionServiceOption {
	return func(s *IngestionService) {
		s.chunks = store
	}
}

// IngestionWithEmbedder sets the embedding client
func IngestionWithEmbedder(e Embedder) IngestionServiceOption {
	return func(s *IngestionService) {
		s.embedder = e
	}
}

// IngestionWithStatuteSource sets the statute adapter
func IngestionWithStatuteSource(src StatuteSource) IngestionServiceOption {
	return func(s *IngestionService) {
		s.statutes = src
	}
}

// IngestionWithKnowledgeService routes full-text fetches through the global cache
func IngestionWithKnowledgeService(k *KnowledgeService) IngestionServiceOption {
	return func(s *IngestionService) {
		s.knowledge = k
	}
}

// IngestionWithLimits sets the search result cap and the fallback chunk cap
func IngestionWithLimits(topK, fallbackChunkLimit int) IngestionServiceOption {
	return func(s *IngestionService) {
		s.topK = topK
		s.chunkLimit = fallbackChunkLimit
	}
}

// IngestionWithChunking sets the chunk size options
func IngestionWithChunking(opts chunking.Options) IngestionServiceOption {
	return func(s *IngestionService) {
		s.chunkOpts = opts
	}
}

// IngestionWithTimeout bounds a shared ingestion run independently of its callers
func IngestionWithTimeout(d time.Duration) IngestionServiceOption {
	return func(s *IngestionService) {
		s.timeout = d
	}
}

// IngestionWithMetrics sets the metrics recorder
func IngestionWithMetrics(m *metrics.Metrics) IngestionServiceOption {
	return func(s *IngestionService) {
		s.metrics = m
	}
}

// IngestionWithLogger sets the logger
func IngestionWithLogger(l *log.Logger) IngestionServiceOption {
	return func(s *IngestionService) {
		s.logger = l
	}
}

// NewIngestionService creates an ingestion service
func NewIngestionService(opts ...IngestionServiceOption) *IngestionService {
	s := &IngestionService{
		topK:       5,
		chunkLimit: 10,
		timeout:    2 * time.Minute,
		logger:     log.New(log.Writer(), "[ingest] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SemanticSearchRequest represents a semantic library query
type SemanticSearchRequest struct {
	Query   string
	OwnerID uuid.UUID // uuid.Nil searches GLOBAL chunks only
}

// SemanticSearchResult holds the matched chunks and where they came from
type SemanticSearchResult struct {
	Chunks   []models.VectorChunk
	Source   string
	Document *IngestResult
}

// Search embeds the query and looks it up among GLOBAL chunks and the
// owner's private chunks. An empty result triggers a synchronous ingestion of
// the best matching statute, whose chunks are returned directly.
func (s *IngestionService) Search(ctx context.Context, req SemanticSearchRequest) (*SemanticSearchResult, error) {
	if s.chunks == nil {
		return nil, errors.New("vector chunk repository not set")
	}
	if s.embedder == nil {
		return nil, errors.New("embedder not set")
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidInput)
	}

	embedding, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	visibilities := []models.Visibility{models.VisibilityGlobal}
	if req.OwnerID != uuid.Nil {
		visibilities = append(visibilities, models.OwnerVisibility(req.OwnerID))
	}

	chunks, err := s.chunks.Search(ctx, embedding, visibilities, s.topK)
	if err != nil {
		return nil, fmt.Errorf("semantic search failed: %w", err)
	}
	if len(chunks) > 0 {
		return &SemanticSearchResult{Chunks: chunks, Source: SourceIndex}, nil
	}

	s.logger.Printf("No indexed chunks for %q, running fallback ingestion", query)
	doc, err := s.ingestByKeyword(ctx, query)
	if err != nil {
		s.metrics.RecordFallbackIngestion("error")
		return nil, fmt.Errorf("fallback ingestion failed: %w", err)
	}
	if doc == nil {
		s.metrics.RecordFallbackIngestion("no_candidate")
		return &SemanticSearchResult{Source: SourceFallbackIngestion}, nil
	}

	s.metrics.RecordFallbackIngestion("ingested")
	returned := doc.Chunks
	if len(returned) > s.topK {
		returned = returned[:s.topK]
	}
	return &SemanticSearchResult{Chunks: returned, Source: SourceFallbackIngestion, Document: doc}, nil
}

func (s *IngestionService) ingestByKeyword(ctx context.Context, keyword string) (*IngestResult, error) {
	if s.statutes == nil {
		return nil, errors.New("statute source not set")
	}
	candidates, err := s.statutes.Search(ctx, legalapi.StatuteQuery{Keyword: keyword})
	if err != nil {
		if errors.Is(err, legalapi.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	first := candidates[0]
	return s.IngestStatute(ctx, IngestStatuteRequest{
		Publisher:  first.Publisher,
		Year:       first.Year,
		Pos:        first.Pos,
		Title:      first.Title,
		ChunkLimit: s.chunkLimit,
	})
}

// IngestStatuteRequest represents a request to index one statute
type IngestStatuteRequest struct {
	Publisher  string
	Year       int
	Pos        int
	Title      string
	ChunkLimit int // zero indexes every chunk
}

// IngestResult describes an indexed document
type IngestResult struct {
	DocumentID uuid.UUID
	Key        models.IdentityKey
	Title      string
	Chunks     []models.VectorChunk
	Inserted   int
}

// IngestStatute fetches, chunks, embeds and indexes a statute as GLOBAL.
// Concurrent ingestions of the same statute share one run. The shared run is
// not cancelled by any single caller; a caller whose context ends stops waiting
// and the run continues for the others. The document id is derived from the
// identity key, so re-ingestion does not duplicate chunks.
func (s *IngestionService) IngestStatute(ctx context.Context, req IngestStatuteRequest) (*IngestResult, error) {
	if s.chunks == nil {
		return nil, errors.New("vector chunk repository not set")
	}
	if s.embedder == nil {
		return nil, errors.New("embedder not set")
	}

	key := models.StatuteKey(req.Publisher, req.Year, req.Pos)
	ch := s.group.DoChan(string(key)+"#"+strconv.Itoa(req.ChunkLimit), func() (any, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		return s.ingestStatute(runCtx, key, req)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		if r.Shared {
			s.logger.Printf("Joined in-flight ingestion of %s", key)
		}
		return r.Val.(*IngestResult), nil
	}
}

func (s *IngestionService) ingestStatute(ctx context.Context, key models.IdentityKey, req IngestStatuteRequest) (*IngestResult, error) {
	text, err := s.fullText(ctx, req)
	if err != nil {
		return nil, err
	}

	pieces := chunking.Split(text, s.chunkOpts)
	if len(pieces) == 0 {
		return nil, fmt.Errorf("statute %s has no text to index", key)
	}
	if req.ChunkLimit > 0 && len(pieces) > req.ChunkLimit {
		pieces = pieces[:req.ChunkLimit]
	}

	texts := make([]string, len(pieces))
	for i, p := range pieces {
		texts[i] = p.Content
	}
	embeddings, err := s.embedder.EmbedDocuments(ctx, req.Title, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(embeddings) != len(pieces) {
		return nil, fmt.Errorf("embedding count mismatch: got %d for %d chunks", len(embeddings), len(pieces))
	}

	docID := uuid.NewSHA1(uuid.NameSpaceURL, []byte(key))
	chunks := make([]models.VectorChunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = models.VectorChunk{
			ID:         uuid.NewSHA1(docID, []byte(strconv.Itoa(p.Index))),
			DocumentID: docID,
			ChunkIndex: p.Index,
			Content:    p.Content,
			Embedding:  embeddings[i],
			Visibility: models.VisibilityGlobal,
			Metadata: models.ChunkMetadata{
				Title:     req.Title,
				Source:    models.SourceStatute,
				Year:      req.Year,
				Publisher: req.Publisher,
				Pos:       req.Pos,
				Heading:   p.Heading,
			},
		}
	}

	inserted, err := s.chunks.InsertBatch(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to index chunks: %w", err)
	}
	s.logger.Printf("Indexed %s: %d chunks (%d new)", key, len(chunks), inserted)

	return &IngestResult{
		DocumentID: docID,
		Key:        key,
		Title:      req.Title,
		Chunks:     chunks,
		Inserted:   inserted,
	}, nil
}

func (s *IngestionService) fullText(ctx context.Context, req IngestStatuteRequest) (string, error) {
	if s.knowledge != nil {
		return s.knowledge.FullStatuteText(ctx, req.Publisher, req.Year, req.Pos, req.Title)
	}
	if s.statutes == nil {
		return "", errors.New("statute source not set")
	}
	return s.statutes.FetchText(ctx, req.Publisher, req.Year, req.Pos, 0)
}
