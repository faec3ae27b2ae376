package main

import (
	"context"
	"fmt"
	"log"

	"lexcounsel-backend/cache"
	"lexcounsel-backend/config"
	"lexcounsel-backend/embedding"
	"lexcounsel-backend/legalapi"
	"lexcounsel-backend/llm"
	"lexcounsel-backend/metrics"
	"lexcounsel-backend/repository"
	"lexcounsel-backend/service"
	"lexcounsel-backend/storage"

	"github.com/jackc/pgx/v5/pgxpool"
)

// app holds the process-scoped dependencies shared by the subcommands
type app struct {
	cfg     *config.Config
	db      *pgxpool.Pool
	metrics *metrics.Metrics
	storage storage.Storage

	conversationRepo *repository.ConversationRepository
	fileRepo         *repository.FileRepository

	model         *llm.Provider
	knowledge     *service.KnowledgeService
	ingestion     *service.IngestionService
	statutes      *legalapi.StatuteClient
	chat          *service.ChatService
	conversations *service.ConversationService

	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := cfg.RequireDatabase(); err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, metrics: metrics.New()}

	db, err := initPostgres(ctx, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Postgres: %w", err)
	}
	a.db = db

	knowledgeCache, closeCache, err := cache.New(ctx, cfg.Cache)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}
	a.closers = append(a.closers, closeCache)
	log.Printf("Knowledge cache initialized (%s)", cfg.Cache.Type)

	a.storage, err = storage.New(ctx, cfg.Storage)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	log.Printf("Storage initialized (%s)", cfg.Storage.Type)

	a.conversationRepo = repository.NewConversationRepository(db)
	a.fileRepo = repository.NewFileRepository(db)
	topicRepo := repository.NewTopicKnowledgeRepository(db)
	proposalRepo := repository.NewProposalRepository(db)
	timelineRepo := repository.NewTimelineRepository(db)
	chunkRepo := repository.NewVectorChunkRepository(db)

	if cfg.Gemini.APIKey == "" {
		log.Printf("Warning: GEMINI_API_KEY not set, chat and embeddings will be unavailable")
	}
	a.model = llm.NewProvider(llm.NewGeminiFactory(cfg.Gemini.APIKey, cfg.Gemini.ChatModel))
	embedder := embedding.NewClient(cfg.Gemini.APIKey, cfg.Gemini.EmbeddingModel, cfg.Gemini.EmbeddingDimensions)

	a.statutes = legalapi.NewStatuteClient(cfg.Adapters.StatuteBaseURL, cfg.Adapters.Timeout)
	rulings := legalapi.NewRulingClient(cfg.Adapters.RulingBaseURL, cfg.Adapters.Timeout)

	a.knowledge = service.NewKnowledgeService(
		service.KnowledgeWithTopicStore(topicRepo),
		service.KnowledgeWithProposalStore(proposalRepo),
		service.KnowledgeWithCache(knowledgeCache),
		service.KnowledgeWithStatuteSource(a.statutes),
		service.KnowledgeWithRulingSource(rulings),
		service.KnowledgeWithConfirmationRequired(cfg.Knowledge.ConfirmationRequired),
		service.KnowledgeWithInlineTextLimit(cfg.Chat.InlineTextLimit),
	)

	a.ingestion = service.NewIngestionService(
		service.IngestionWithChunkStore(chunkRepo),
		service.IngestionWithEmbedder(embedder),
		service.IngestionWithStatuteSource(a.statutes),
		service.IngestionWithKnowledgeService(a.knowledge),
		service.IngestionWithLimits(cfg.Chat.SemanticTopK, cfg.Chat.FallbackChunkLimit),
		service.IngestionWithTimeout(cfg.Chat.IngestTimeout),
		service.IngestionWithMetrics(a.metrics),
	)

	tools := service.NewToolDispatcher(
		service.ToolsWithKnowledgeService(a.knowledge),
		service.ToolsWithIngestionService(a.ingestion),
		service.ToolsWithStatuteSource(a.statutes),
		service.ToolsWithRulingSource(rulings),
		service.ToolsWithConcurrency(cfg.Chat.ToolConcurrency),
		service.ToolsWithMetrics(a.metrics),
	)

	orchestrator := service.NewOrchestrator(
		service.OrchestratorWithModel(a.model),
		service.OrchestratorWithTools(tools),
		service.OrchestratorWithMaxIterations(cfg.Chat.MaxIterations),
		service.OrchestratorWithConfirmationRequired(cfg.Knowledge.ConfirmationRequired),
		service.OrchestratorWithMetrics(a.metrics),
	)

	a.chat = service.NewChatService(
		service.ChatWithConversationStore(a.conversationRepo),
		service.ChatWithKnowledgeService(a.knowledge),
		service.ChatWithAttachmentLoader(service.NewAttachmentLoader(a.fileRepo, a.storage)),
		service.ChatWithOrchestrator(orchestrator),
		service.ChatWithTimelineExtractor(service.NewTimelineExtractor(
			service.TimelineWithStore(timelineRepo),
			service.TimelineWithMetrics(a.metrics),
		)),
		service.ChatWithModelReadiness(a.model),
		service.ChatWithMetrics(a.metrics),
	)

	a.conversations = service.NewConversationService(
		service.ConversationWithStore(a.conversationRepo),
		service.ConversationWithTimelineStore(timelineRepo),
		service.ConversationWithKnowledgeService(a.knowledge),
	)

	return a, nil
}

// Close releases the database pool and cache connections
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Printf("Warning: failed to close resource: %v", err)
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}

func initPostgres(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	log.Println("Postgres connection established with pgvector support")
	return pool, nil
}
