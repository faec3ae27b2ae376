package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"lexcounsel-backend/cache"
	"lexcounsel-backend/legalapi"
	"lexcounsel-backend/models"
	"lexcounsel-backend/repository"

	"github.com/google/uuid"
)

var (
	ErrProposalNotFound       = errors.New("knowledge proposal not found")
	ErrProposalNotConfirmable = errors.New("knowledge proposal is not pending")
)

// KnowledgeService owns topic knowledge writes, knowledge proposals and the
// read-through use of the global knowledge cache
type KnowledgeService struct {
	topics    TopicKnowledgeStore
	proposals ProposalStore
	cache     cache.KnowledgeCache
	statutes  StatuteSource
	rulings   RulingSource

	confirmationRequired bool
	inlineTextLimit      int

	locks  *keyedMutex
	logger *log.Logger
}

// KnowledgeServiceOption is a functional option for KnowledgeService
type KnowledgeServiceOption func(*KnowledgeService)

// KnowledgeWithTopicStore sets the topic knowledge store
func KnowledgeWithTopicStore(store TopicKnowledgeStore) KnowledgeServiceOption {
	return func(s *KnowledgeService) {
		s.topics = store
	}
}

// KnowledgeWithProposalStore sets the proposal store
func KnowledgeWithProposalStore(store ProposalStore) KnowledgeServiceOption {
	return func(s *KnowledgeService) {
		s.proposals = store
	}
}

// KnowledgeWithCache sets the global knowledge cache
func KnowledgeWithCache(c cache.KnowledgeCache) KnowledgeServiceOption {
	return func(s *KnowledgeService) {
		s.cache = c
	}
}

// KnowledgeWithStatuteSource sets the statute adapter
func KnowledgeWithStatuteSource(src StatuteSource) KnowledgeServiceOption {
	return func(s *KnowledgeService) {
		s.statutes = src
	}
}

// KnowledgeWithRulingSource sets the ruling adapter
func KnowledgeWithRulingSource(src RulingSource) KnowledgeServiceOption {
	return func(s *KnowledgeService) {
		s.rulings = src
	}
}

// KnowledgeWithConfirmationRequired toggles token enforcement on add operations
func KnowledgeWithConfirmationRequired(required bool) KnowledgeServiceOption {
	return func(s *KnowledgeService) {
		s.confirmationRequired = required
	}
}

// KnowledgeWithInlineTextLimit caps statute text returned inline to the model
func KnowledgeWithInlineTextLimit(limit int) KnowledgeServiceOption {
	return func(s *KnowledgeService) {
		s.inlineTextLimit = limit
	}
}

// KnowledgeWithLogger sets the logger
func KnowledgeWithLogger(l *log.Logger) KnowledgeServiceOption {
	return func(s *KnowledgeService) {
		s.logger = l
	}
}

// NewKnowledgeService creates a knowledge service
func NewKnowledgeService(opts ...KnowledgeServiceOption) *KnowledgeService {
	s := &KnowledgeService{
		confirmationRequired: true,
		inlineTextLimit:      15000,
		locks:                newKeyedMutex(),
		logger:               log.New(log.Writer(), "[knowledge] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ConfirmationRequired reports whether add operations need a confirmed token
func (s *KnowledgeService) ConfirmationRequired() bool {
	return s.confirmationRequired
}

// StatuteContent is fetched statute text
type StatuteContent struct {
	Key       models.IdentityKey
	Title     string
	Content   string
	Truncated bool
	FromCache bool
}

// GetStatuteContent returns statute text capped at the inline limit. The full
// text is written through to the global cache; the topic store is untouched.
// title may be empty; when given it is recorded on the cached document.
func (s *KnowledgeService) GetStatuteContent(ctx context.Context, publisher string, year, pos int, title string) (*StatuteContent, error) {
	doc, fromCache, err := s.statuteDocument(ctx, publisher, year, pos, title)
	if err != nil {
		return nil, err
	}
	content, truncated := legalapi.Truncate(doc.Content, s.inlineTextLimit)
	return &StatuteContent{
		Key:       doc.Key,
		Title:     doc.Title,
		Content:   content,
		Truncated: truncated,
		FromCache: fromCache,
	}, nil
}

// FullStatuteText returns the uncapped statute text through the global cache
func (s *KnowledgeService) FullStatuteText(ctx context.Context, publisher string, year, pos int, title string) (string, error) {
	doc, _, err := s.statuteDocument(ctx, publisher, year, pos, title)
	if err != nil {
		return "", err
	}
	return doc.Content, nil
}

func (s *KnowledgeService) statuteDocument(ctx context.Context, publisher string, year, pos int, title string) (*models.CachedDocument, bool, error) {
	key := models.StatuteKey(publisher, year, pos)
	if doc := s.cached(ctx, key); doc != nil {
		s.backfillTitle(ctx, doc, title)
		return doc, true, nil
	}

	if s.statutes == nil {
		return nil, false, errors.New("statute source not set")
	}
	text, err := s.statutes.FetchText(ctx, publisher, year, pos, 0)
	if err != nil {
		return nil, false, err
	}

	doc := models.CachedDocument{
		Key:       key,
		Source:    models.SourceStatute,
		Title:     title,
		Content:   text,
		FetchedAt: time.Now(),
	}
	s.store(ctx, doc)
	return &doc, false, nil
}

func (s *KnowledgeService) rulingDocument(ctx context.Context, judgmentID, title string) (*models.CachedDocument, error) {
	key := models.RulingKey(judgmentID)
	if doc := s.cached(ctx, key); doc != nil {
		s.backfillTitle(ctx, doc, title)
		return doc, nil
	}

	if s.rulings == nil {
		return nil, errors.New("ruling source not set")
	}
	text, err := s.rulings.FetchText(ctx, judgmentID)
	if err != nil {
		return nil, err
	}

	doc := models.CachedDocument{
		Key:       key,
		Source:    models.SourceRuling,
		Title:     title,
		Content:   text,
		FetchedAt: time.Now(),
	}
	s.store(ctx, doc)
	return &doc, nil
}

func (s *KnowledgeService) cached(ctx context.Context, key models.IdentityKey) *models.CachedDocument {
	if s.cache == nil {
		return nil
	}
	doc, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.Printf("Warning: knowledge cache read for %s failed: %v", key, err)
		}
		return nil
	}
	return doc
}

// backfillTitle names a document that was cached before its title was known
func (s *KnowledgeService) backfillTitle(ctx context.Context, doc *models.CachedDocument, title string) {
	title = strings.TrimSpace(title)
	if doc.Title != "" || title == "" {
		return
	}
	doc.Title = title
	s.store(ctx, *doc)
}

func (s *KnowledgeService) store(ctx context.Context, doc models.CachedDocument) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Put(ctx, doc); err != nil {
		s.logger.Printf("Warning: knowledge cache write for %s failed: %v", doc.Key, err)
	}
}

// AddKnowledgeResult reports the outcome of an add operation.
// Status is StatusOK, StatusAlreadyExists, StatusPendingConfirmation or StatusError.
type AddKnowledgeResult struct {
	Status  ToolStatus
	Message string
	Item    *models.KnowledgeItem
}

// AddStatuteRequest represents a request to add a statute to topic knowledge
type AddStatuteRequest struct {
	ConversationID    uuid.UUID
	Publisher         string
	Year              int
	Pos               int
	Title             string
	CitedArticles     []string
	ConfirmationToken string
}

// AddStatute writes a statute into the conversation's topic knowledge.
// An existing item is never overwritten; newly cited articles are merged into it.
func (s *KnowledgeService) AddStatute(ctx context.Context, req AddStatuteRequest) (*AddKnowledgeResult, error) {
	if s.topics == nil {
		return nil, errors.New("topic knowledge repository not set")
	}
	if req.Publisher == "" || req.Year <= 0 || req.Pos <= 0 {
		return nil, fmt.Errorf("%w: publisher, year and pos are required", ErrInvalidInput)
	}

	key := models.StatuteKey(req.Publisher, req.Year, req.Pos)
	unlock := s.locks.Lock(req.ConversationID)
	defer unlock()

	existing, err := s.existing(ctx, req.ConversationID, key)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if len(req.CitedArticles) > 0 {
			merged, err := s.topics.MergeCitedArticles(ctx, req.ConversationID, key, req.CitedArticles)
			if err != nil {
				return nil, err
			}
			existing.CitedArticles = merged
		}
		return &AddKnowledgeResult{Status: StatusAlreadyExists, Message: "statute is already in topic knowledge", Item: existing}, nil
	}

	if res, err := s.checkConfirmation(ctx, req.ConversationID, key, req.ConfirmationToken); res != nil || err != nil {
		return res, err
	}

	content, err := s.FullStatuteText(ctx, req.Publisher, req.Year, req.Pos, req.Title)
	if err != nil {
		return nil, err
	}

	item := &models.KnowledgeItem{
		ConversationID: req.ConversationID,
		Source:         models.SourceStatute,
		Title:          req.Title,
		Content:        content,
		Publisher:      req.Publisher,
		Year:           req.Year,
		Pos:            req.Pos,
		CitedArticles:  dedupeStrings(req.CitedArticles),
	}
	return s.insert(ctx, item, req.ConfirmationToken)
}

// AddRulingRequest represents a request to add a ruling to topic knowledge
type AddRulingRequest struct {
	ConversationID    uuid.UUID
	JudgmentID        string
	CaseNumber        string
	Title             string
	Content           string
	ConfirmationToken string
}

// AddRuling writes a court ruling into the conversation's topic knowledge.
// Content supplied by the caller is used as is; otherwise it is fetched.
func (s *KnowledgeService) AddRuling(ctx context.Context, req AddRulingRequest) (*AddKnowledgeResult, error) {
	if s.topics == nil {
		return nil, errors.New("topic knowledge repository not set")
	}
	if strings.TrimSpace(req.JudgmentID) == "" {
		return nil, fmt.Errorf("%w: judgmentId is required", ErrInvalidInput)
	}

	key := models.RulingKey(req.JudgmentID)
	unlock := s.locks.Lock(req.ConversationID)
	defer unlock()

	existing, err := s.existing(ctx, req.ConversationID, key)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &AddKnowledgeResult{Status: StatusAlreadyExists, Message: "ruling is already in topic knowledge", Item: existing}, nil
	}

	if res, err := s.checkConfirmation(ctx, req.ConversationID, key, req.ConfirmationToken); res != nil || err != nil {
		return res, err
	}

	title := req.Title
	if title == "" {
		title = req.CaseNumber
	}

	content := req.Content
	if strings.TrimSpace(content) == "" {
		doc, err := s.rulingDocument(ctx, req.JudgmentID, title)
		if err != nil {
			return nil, err
		}
		content = doc.Content
	}

	item := &models.KnowledgeItem{
		ConversationID: req.ConversationID,
		Source:         models.SourceRuling,
		Title:          title,
		Content:        content,
		JudgmentID:     req.JudgmentID,
		CaseNumber:     req.CaseNumber,
	}
	return s.insert(ctx, item, req.ConfirmationToken)
}

func (s *KnowledgeService) existing(ctx context.Context, conversationID uuid.UUID, key models.IdentityKey) (*models.KnowledgeItem, error) {
	item, err := s.topics.Get(ctx, conversationID, key)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up topic knowledge: %w", err)
	}
	return item, nil
}

func (s *KnowledgeService) insert(ctx context.Context, item *models.KnowledgeItem, token string) (*AddKnowledgeResult, error) {
	inserted, err := s.topics.Insert(ctx, item)
	if err != nil {
		return nil, err
	}
	if !inserted {
		existing, err := s.existing(ctx, item.ConversationID, item.Key())
		if err != nil {
			return nil, err
		}
		return &AddKnowledgeResult{Status: StatusAlreadyExists, Message: "item is already in topic knowledge", Item: existing}, nil
	}

	if s.confirmationRequired && token != "" && s.proposals != nil {
		if ok, err := s.proposals.Consume(ctx, token); err != nil || !ok {
			s.logger.Printf("Warning: confirmation token %s for %s was not consumed (err: %v)", token, item.Key(), err)
		}
	}

	s.logger.Printf("Added %s to topic knowledge of conversation %s", item.Key(), item.ConversationID)
	return &AddKnowledgeResult{Status: StatusOK, Item: item}, nil
}

// checkConfirmation returns a non-nil result when the add must not proceed
func (s *KnowledgeService) checkConfirmation(ctx context.Context, conversationID uuid.UUID, key models.IdentityKey, token string) (*AddKnowledgeResult, error) {
	if !s.confirmationRequired {
		return nil, nil
	}
	if s.proposals == nil {
		return nil, errors.New("proposal repository not set")
	}

	if strings.TrimSpace(token) == "" {
		return &AddKnowledgeResult{
			Status:  StatusPendingConfirmation,
			Message: "a confirmationToken is required; call propose_topic_knowledge and wait for the user to confirm",
		}, nil
	}

	p, err := s.proposals.Get(ctx, token)
	if errors.Is(err, repository.ErrNotFound) {
		return &AddKnowledgeResult{Status: StatusError, Message: "unknown confirmationToken"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load proposal: %w", err)
	}
	if p.ConversationID != conversationID || p.IdentityKey != key {
		return &AddKnowledgeResult{Status: StatusError, Message: "confirmationToken was issued for a different item"}, nil
	}

	switch p.Status {
	case models.ProposalConfirmed:
		return nil, nil
	case models.ProposalPending:
		return &AddKnowledgeResult{
			Status:  StatusPendingConfirmation,
			Message: "the user has not confirmed this proposal yet",
		}, nil
	default:
		return &AddKnowledgeResult{Status: StatusError, Message: "confirmationToken was already used"}, nil
	}
}

// ProposeRequest represents a knowledge proposal made by the model
type ProposeRequest struct {
	ConversationID uuid.UUID
	Source         models.KnowledgeSource
	Publisher      string
	Year           int
	Pos            int
	JudgmentID     string
	Title          string
}

// ProposeResult is the outcome of a proposal
type ProposeResult struct {
	Status   ToolStatus
	Proposal *models.KnowledgeProposal
}

// Propose records a pending proposal and issues its confirmation token.
// Items already in topic knowledge are reported as such without a token.
func (s *KnowledgeService) Propose(ctx context.Context, req ProposeRequest) (*ProposeResult, error) {
	if s.proposals == nil {
		return nil, errors.New("proposal repository not set")
	}
	if s.topics == nil {
		return nil, errors.New("topic knowledge repository not set")
	}

	var key models.IdentityKey
	switch req.Source {
	case models.SourceStatute:
		if req.Publisher == "" || req.Year <= 0 || req.Pos <= 0 {
			return nil, fmt.Errorf("%w: publisher, year and pos are required for a statute", ErrInvalidInput)
		}
		key = models.StatuteKey(req.Publisher, req.Year, req.Pos)
	case models.SourceRuling:
		if strings.TrimSpace(req.JudgmentID) == "" {
			return nil, fmt.Errorf("%w: judgmentId is required for a ruling", ErrInvalidInput)
		}
		key = models.RulingKey(req.JudgmentID)
	default:
		return nil, fmt.Errorf("%w: unknown source %q", ErrInvalidInput, req.Source)
	}

	existing, err := s.existing(ctx, req.ConversationID, key)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &ProposeResult{Status: StatusAlreadyExists}, nil
	}

	p := &models.KnowledgeProposal{
		Token:          uuid.NewString(),
		ConversationID: req.ConversationID,
		Source:         req.Source,
		IdentityKey:    key,
		Title:          req.Title,
		Status:         models.ProposalPending,
	}
	if err := s.proposals.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create proposal: %w", err)
	}
	return &ProposeResult{Status: StatusPendingConfirmation, Proposal: p}, nil
}

// ConfirmProposal marks a pending proposal of the conversation as confirmed by the user
func (s *KnowledgeService) ConfirmProposal(ctx context.Context, conversationID uuid.UUID, token string) (*models.KnowledgeProposal, error) {
	if s.proposals == nil {
		return nil, errors.New("proposal repository not set")
	}
	p, err := s.proposals.Confirm(ctx, conversationID, token)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, ErrProposalNotFound
	case errors.Is(err, repository.ErrConflict):
		return p, ErrProposalNotConfirmable
	case err != nil:
		return nil, err
	}
	return p, nil
}

// ListKnowledge returns the conversation's topic knowledge
func (s *KnowledgeService) ListKnowledge(ctx context.Context, conversationID uuid.UUID) ([]models.KnowledgeItem, error) {
	if s.topics == nil {
		return nil, errors.New("topic knowledge repository not set")
	}
	return s.topics.List(ctx, conversationID)
}

// ListPendingProposals returns proposals awaiting user confirmation
func (s *KnowledgeService) ListPendingProposals(ctx context.Context, conversationID uuid.UUID) ([]models.KnowledgeProposal, error) {
	if s.proposals == nil {
		return nil, errors.New("proposal repository not set")
	}
	return s.proposals.ListPending(ctx, conversationID)
}

// ListConfirmedProposals returns confirmed proposals whose token is still unused
func (s *KnowledgeService) ListConfirmedProposals(ctx context.Context, conversationID uuid.UUID) ([]models.KnowledgeProposal, error) {
	if s.proposals == nil {
		return nil, errors.New("proposal repository not set")
	}
	return s.proposals.ListConfirmed(ctx, conversationID)
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
