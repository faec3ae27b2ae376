package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"lexcounsel-backend/metrics"
	"lexcounsel-backend/models"
	"lexcounsel-backend/repository"

	"github.com/google/uuid"
)

var (
	ErrModelUnavailable     = errors.New("language model is not available")
	ErrInvalidInput         = errors.New("invalid input")
	ErrConversationNotFound = errors.New("conversation not found")
)

const attachmentOnlyText = "(see attached documents)"

// ModelReadiness reports whether the model backend can serve requests
type ModelReadiness interface {
	Ready(ctx context.Context) error
}

// ChatService persists a user message, runs the orchestrator and stores the
// answer together with the extracted timeline
type ChatService struct {
	conversations ConversationStore
	knowledge     *KnowledgeService
	attachments   *AttachmentLoader
	orchestrator  *Orchestrator
	timeline      *TimelineExtractor
	readiness     ModelReadiness

	metrics *metrics.Metrics
	logger  *log.Logger
}

// ChatServiceOption is a functional option for ChatService
type ChatServiceOption func(*ChatService)

// ChatWithConversationStore sets the conversation store
func ChatWithConversationStore(store ConversationStore) ChatServiceOption {
	return func(s *ChatService) {
		s.conversations = store
	}
}

// ChatWithKnowledgeService sets the knowledge service
func ChatWithKnowledgeService(k *KnowledgeService) ChatServiceOption {
	return func(s *ChatService) {
		s.knowledge = k
	}
}

// ChatWithAttachmentLoader sets the attachment loader
func ChatWithAttachmentLoader(l *AttachmentLoader) ChatServiceOption {
	return func(s *ChatService) {
		s.attachments = l
	}
}

// ChatWithOrchestrator sets the orchestrator
func ChatWithOrchestrator(o *Orchestrator) ChatServiceOption {
	return func(s *ChatService) {
		s.orchestrator = o
	}
}

// ChatWithTimelineExtractor sets the timeline extractor
func ChatWithTimelineExtractor(e *TimelineExtractor) ChatServiceOption {
	return func(s *ChatService) {
		s.timeline = e
	}
}

// ChatWithModelReadiness sets the model availability check
func ChatWithModelReadiness(r ModelReadiness) ChatServiceOption {
	return func(s *ChatService) {
		s.readiness = r
	}
}

// ChatWithMetrics sets the metrics recorder
func ChatWithMetrics(m *metrics.Metrics) ChatServiceOption {
	return func(s *ChatService) {
		s.metrics = m
	}
}

// ChatWithLogger sets the logger
func ChatWithLogger(l *log.Logger) ChatServiceOption {
	return func(s *ChatService) {
		s.logger = l
	}
}

// NewChatService creates a chat service
func NewChatService(opts ...ChatServiceOption) *ChatService {
	s := &ChatService{
		logger: log.New(log.Writer(), "[chat] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.timeline == nil {
		s.timeline = NewTimelineExtractor()
	}
	return s
}

// SendMessageRequest represents a user message in a conversation
type SendMessageRequest struct {
	ConversationID uuid.UUID
	OwnerID        uuid.UUID
	Content        string
	AttachmentIDs  []uuid.UUID
	Persona        models.Persona // overrides the conversation persona when set
}

// SendMessageResult is the stored answer and its side effects
type SendMessageResult struct {
	Turn             *models.ConversationTurn
	Timeline         []models.TimelineEvent
	PendingProposals []models.KnowledgeProposal
	Iterations       int
	CapReached       bool
}

// SendMessage runs one conversation turn
func (s *ChatService) SendMessage(ctx context.Context, req SendMessageRequest) (*SendMessageResult, error) {
	if s.conversations == nil {
		return nil, errors.New("conversation repository not set")
	}
	if s.orchestrator == nil {
		return nil, errors.New("orchestrator not set")
	}

	// 1. Validate input before anything reaches the model
	content := strings.TrimSpace(req.Content)
	if content == "" && len(req.AttachmentIDs) == 0 {
		return nil, fmt.Errorf("%w: message content is required", ErrInvalidInput)
	}
	if req.Persona != "" && !req.Persona.Valid() {
		return nil, fmt.Errorf("%w: unknown persona %q", ErrInvalidInput, req.Persona)
	}

	// 2. Model availability
	if s.readiness != nil {
		if err := s.readiness.Ready(ctx); err != nil {
			s.metrics.RecordTurn("unavailable", 0)
			return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
		}
	}

	// 3. Ownership
	conv, err := s.conversations.GetByID(ctx, req.ConversationID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && conv.OwnerID != req.OwnerID) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	persona := conv.Persona
	if req.Persona != "" {
		persona = req.Persona
	}

	// 4. Context: attachments and approved knowledge
	attachments, err := s.attachments.Load(ctx, req.OwnerID, req.AttachmentIDs)
	if err != nil {
		return nil, err
	}
	var knowledge []models.KnowledgeItem
	var confirmed []models.KnowledgeProposal
	if s.knowledge != nil {
		knowledge, err = s.knowledge.ListKnowledge(ctx, conv.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load topic knowledge: %w", err)
		}
		if s.knowledge.ConfirmationRequired() {
			confirmed, err = s.knowledge.ListConfirmedProposals(ctx, conv.ID)
			if err != nil {
				s.logger.Printf("Warning: failed to list confirmed proposals for %s: %v", conv.ID, err)
			}
		}
	}

	// 5. Persist the user turn, then load the full history
	if content == "" {
		content = attachmentOnlyText
	}
	userTurn := &models.ConversationTurn{
		ConversationID: conv.ID,
		Role:           models.RoleUser,
		Content:        content,
		Attachments:    req.AttachmentIDs,
	}
	if err := s.conversations.AppendTurn(ctx, userTurn); err != nil {
		return nil, fmt.Errorf("failed to store user message: %w", err)
	}
	turns, err := s.conversations.ListTurns(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	history := turnsToMessages(turns)

	// 6. Tool loop
	turn, err := s.orchestrator.RunTurn(ctx, TurnRequest{
		ConversationID: conv.ID,
		OwnerID:        req.OwnerID,
		Persona:        persona,
		History:        history,
		Knowledge:      knowledge,
		Attachments:    attachments,

		ConfirmedProposals: confirmed,
	})
	if err != nil {
		s.metrics.RecordTurn("error", 0)
		s.logger.Printf("Error: turn failed for conversation %s: %v", conv.ID, err)
		return nil, err
	}

	// 7. Timeline and the model turn
	extraction := s.timeline.ExtractAndStore(ctx, conv.ID, turn.Text)
	modelTurn := &models.ConversationTurn{
		ConversationID: conv.ID,
		Role:           models.RoleModel,
		Content:        extraction.Text,
		Usage:          turn.Usage,
	}
	if err := s.conversations.AppendTurn(ctx, modelTurn); err != nil {
		return nil, fmt.Errorf("failed to store answer: %w", err)
	}

	var pending []models.KnowledgeProposal
	if s.knowledge != nil && s.knowledge.ConfirmationRequired() {
		pending, err = s.knowledge.ListPendingProposals(ctx, conv.ID)
		if err != nil {
			s.logger.Printf("Warning: failed to list pending proposals for %s: %v", conv.ID, err)
		}
	}

	outcome := "ok"
	if turn.CapReached {
		outcome = "cap_reached"
	}
	s.metrics.RecordTurn(outcome, turn.Iterations)

	return &SendMessageResult{
		Turn:             modelTurn,
		Timeline:         extraction.Events,
		PendingProposals: pending,
		Iterations:       turn.Iterations,
		CapReached:       turn.CapReached,
	}, nil
}
