package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"lexcounsel-backend/models"
	"lexcounsel-backend/repository"

	"github.com/google/uuid"
)

const (
	defaultConversationTitle = "New matter"
	maxListLimit             = 100
)

// ConversationService handles conversation lifecycle and the read APIs
type ConversationService struct {
	conversations ConversationStore
	timeline      TimelineStore
	knowledge     *KnowledgeService
}

// ConversationServiceOption is a functional option for ConversationService
type ConversationServiceOption func(*ConversationService)

// ConversationWithStore sets the conversation store
func ConversationWithStore(store ConversationStore) ConversationServiceOption {
	return func(s *ConversationService) {
		s.conversations = store
	}
}

// ConversationWithTimelineStore sets the timeline store
func ConversationWithTimelineStore(store TimelineStore) ConversationServiceOption {
	return func(s *ConversationService) {
		s.timeline = store
	}
}

// ConversationWithKnowledgeService sets the knowledge service
func ConversationWithKnowledgeService(k *KnowledgeService) ConversationServiceOption {
	return func(s *ConversationService) {
		s.knowledge = k
	}
}

// NewConversationService creates a conversation service
func NewConversationService(opts ...ConversationServiceOption) *ConversationService {
	s := &ConversationService{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateConversationRequest represents a request to open a conversation
type CreateConversationRequest struct {
	OwnerID uuid.UUID
	Title   string
	Persona models.Persona
}

// CreateConversation opens a new conversation for the owner
func (s *ConversationService) CreateConversation(ctx context.Context, req CreateConversationRequest) (*models.Conversation, error) {
	if s.conversations == nil {
		return nil, errors.New("conversation repository not set")
	}
	if req.OwnerID == uuid.Nil {
		return nil, fmt.Errorf("%w: owner is required", ErrInvalidInput)
	}

	persona := req.Persona
	if persona == "" {
		persona = models.PersonaAssistant
	}
	if !persona.Valid() {
		return nil, fmt.Errorf("%w: unknown persona %q", ErrInvalidInput, persona)
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = defaultConversationTitle
	}

	conv := &models.Conversation{
		OwnerID: req.OwnerID,
		Title:   title,
		Persona: persona,
	}
	if err := s.conversations.Create(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// GetConversation returns a conversation with its turns
func (s *ConversationService) GetConversation(ctx context.Context, ownerID, id uuid.UUID) (*models.Conversation, error) {
	conv, err := s.owned(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	turns, err := s.conversations.ListTurns(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load turns: %w", err)
	}
	conv.Turns = turns
	return conv, nil
}

// ListConversations returns the owner's conversations, most recent first
func (s *ConversationService) ListConversations(ctx context.Context, ownerID uuid.UUID, limit int) ([]models.Conversation, error) {
	if s.conversations == nil {
		return nil, errors.New("conversation repository not set")
	}
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	return s.conversations.ListByOwner(ctx, ownerID, limit)
}

// ListKnowledge returns the conversation's approved topic knowledge
func (s *ConversationService) ListKnowledge(ctx context.Context, ownerID, id uuid.UUID) ([]models.KnowledgeItem, error) {
	if s.knowledge == nil {
		return nil, errors.New("knowledge service not set")
	}
	if _, err := s.owned(ctx, ownerID, id); err != nil {
		return nil, err
	}
	return s.knowledge.ListKnowledge(ctx, id)
}

// ListTimeline returns the conversation's timeline events
func (s *ConversationService) ListTimeline(ctx context.Context, ownerID, id uuid.UUID) ([]models.TimelineEvent, error) {
	if s.timeline == nil {
		return nil, errors.New("timeline repository not set")
	}
	if _, err := s.owned(ctx, ownerID, id); err != nil {
		return nil, err
	}
	return s.timeline.ListByConversation(ctx, id)
}

// ListProposals returns proposals awaiting confirmation
func (s *ConversationService) ListProposals(ctx context.Context, ownerID, id uuid.UUID) ([]models.KnowledgeProposal, error) {
	if s.knowledge == nil {
		return nil, errors.New("knowledge service not set")
	}
	if _, err := s.owned(ctx, ownerID, id); err != nil {
		return nil, err
	}
	return s.knowledge.ListPendingProposals(ctx, id)
}

// ConfirmProposal records the user's confirmation of a proposal
func (s *ConversationService) ConfirmProposal(ctx context.Context, ownerID, id uuid.UUID, token string) (*models.KnowledgeProposal, error) {
	if s.knowledge == nil {
		return nil, errors.New("knowledge service not set")
	}
	if _, err := s.owned(ctx, ownerID, id); err != nil {
		return nil, err
	}
	return s.knowledge.ConfirmProposal(ctx, id, token)
}

func (s *ConversationService) owned(ctx context.Context, ownerID, id uuid.UUID) (*models.Conversation, error) {
	if s.conversations == nil {
		return nil, errors.New("conversation repository not set")
	}
	conv, err := s.conversations.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}
	if conv.OwnerID != ownerID {
		return nil, ErrConversationNotFound
	}
	return conv, nil
}
