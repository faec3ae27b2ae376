package service

import (
	"context"
	"sync"
	"time"

	"lexcounsel-backend/legalapi"
	"lexcounsel-backend/llm"
	"lexcounsel-backend/models"
	"lexcounsel-backend/repository"

	"github.com/google/uuid"
)

type fakeConversationStore struct {
	mu            sync.Mutex
	conversations map[uuid.UUID]*models.Conversation
	turns         map[uuid.UUID][]models.ConversationTurn
}

func newFakeConversationStore() *fakeConversationStore {
	return &fakeConversationStore{
		conversations: map[uuid.UUID]*models.Conversation{},
		turns:         map[uuid.UUID][]models.ConversationTurn{},
	}
}

func (f *fakeConversationStore) Create(ctx context.Context, c *models.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c.ID = uuid.New()
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	cp := *c
	f.conversations[c.ID] = &cp
	return nil
}

func (f *fakeConversationStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.conversations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeConversationStore) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Conversation
	for _, c := range f.conversations {
		if c.OwnerID == ownerID && len(out) < limit {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeConversationStore) AppendTurn(ctx context.Context, turn *models.ConversationTurn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	turn.ID = uuid.New()
	turn.CreatedAt = time.Now()
	f.turns[turn.ConversationID] = append(f.turns[turn.ConversationID], *turn)
	return nil
}

func (f *fakeConversationStore) ListTurns(ctx context.Context, conversationID uuid.UUID) ([]models.ConversationTurn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ConversationTurn{}, f.turns[conversationID]...), nil
}

type fakeTopicStore struct {
	mu    sync.Mutex
	items map[uuid.UUID]map[models.IdentityKey]models.KnowledgeItem
	order map[uuid.UUID][]models.IdentityKey
}

func newFakeTopicStore() *fakeTopicStore {
	return &fakeTopicStore{
		items: map[uuid.UUID]map[models.IdentityKey]models.KnowledgeItem{},
		order: map[uuid.UUID][]models.IdentityKey{},
	}
}

func (f *fakeTopicStore) List(ctx context.Context, conversationID uuid.UUID) ([]models.KnowledgeItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.KnowledgeItem
	for _, k := range f.order[conversationID] {
		out = append(out, f.items[conversationID][k])
	}
	return out, nil
}

func (f *fakeTopicStore) Get(ctx context.Context, conversationID uuid.UUID, key models.IdentityKey) (*models.KnowledgeItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[conversationID][key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &item, nil
}

func (f *fakeTopicStore) Insert(ctx context.Context, item *models.KnowledgeItem) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := item.Key()
	if f.items[item.ConversationID] == nil {
		f.items[item.ConversationID] = map[models.IdentityKey]models.KnowledgeItem{}
	}
	if _, ok := f.items[item.ConversationID][key]; ok {
		return false, nil
	}
	item.ID = uuid.New()
	item.CreatedAt = time.Now()
	f.items[item.ConversationID][key] = *item
	f.order[item.ConversationID] = append(f.order[item.ConversationID], key)
	return true, nil
}

func (f *fakeTopicStore) MergeCitedArticles(ctx context.Context, conversationID uuid.UUID, key models.IdentityKey, articles []string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[conversationID][key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	item.CitedArticles = dedupeStrings(append(item.CitedArticles, articles...))
	f.items[conversationID][key] = item
	return item.CitedArticles, nil
}

func (f *fakeTopicStore) count(conversationID uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items[conversationID])
}

type fakeProposalStore struct {
	mu        sync.Mutex
	proposals map[string]models.KnowledgeProposal
}

func newFakeProposalStore() *fakeProposalStore {
	return &fakeProposalStore{proposals: map[string]models.KnowledgeProposal{}}
}

func (f *fakeProposalStore) Create(ctx context.Context, p *models.KnowledgeProposal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.CreatedAt = time.Now()
	f.proposals[p.Token] = *p
	return nil
}

func (f *fakeProposalStore) Get(ctx context.Context, token string) (*models.KnowledgeProposal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.proposals[token]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (f *fakeProposalStore) ListPending(ctx context.Context, conversationID uuid.UUID) ([]models.KnowledgeProposal, error) {
	return f.list(conversationID, models.ProposalPending), nil
}

func (f *fakeProposalStore) ListConfirmed(ctx context.Context, conversationID uuid.UUID) ([]models.KnowledgeProposal, error) {
	return f.list(conversationID, models.ProposalConfirmed), nil
}

func (f *fakeProposalStore) list(conversationID uuid.UUID, status models.ProposalStatus) []models.KnowledgeProposal {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.KnowledgeProposal
	for _, p := range f.proposals {
		if p.ConversationID == conversationID && p.Status == status {
			out = append(out, p)
		}
	}
	return out
}

func (f *fakeProposalStore) Confirm(ctx context.Context, conversationID uuid.UUID, token string) (*models.KnowledgeProposal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.proposals[token]
	if !ok || p.ConversationID != conversationID {
		return nil, repository.ErrNotFound
	}
	if p.Status != models.ProposalPending {
		return &p, repository.ErrConflict
	}
	now := time.Now()
	p.Status = models.ProposalConfirmed
	p.ConfirmedAt = &now
	f.proposals[token] = p
	return &p, nil
}

func (f *fakeProposalStore) Consume(ctx context.Context, token string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.proposals[token]
	if !ok || p.Status != models.ProposalConfirmed {
		return false, nil
	}
	p.Status = models.ProposalConsumed
	f.proposals[token] = p
	return true, nil
}

type fakeChunkStore struct {
	mu       sync.Mutex
	chunks   []models.VectorChunk
	searches int
}

func (f *fakeChunkStore) Search(ctx context.Context, embedding []float32, visibilities []models.Visibility, limit int) ([]models.VectorChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches++
	allowed := map[models.Visibility]bool{}
	for _, v := range visibilities {
		allowed[v] = true
	}
	var out []models.VectorChunk
	for _, c := range f.chunks {
		if allowed[c.Visibility] && len(out) < limit {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeChunkStore) InsertBatch(ctx context.Context, chunks []models.VectorChunk) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inserted := 0
	for _, c := range chunks {
		dup := false
		for _, existing := range f.chunks {
			if existing.DocumentID == c.DocumentID && existing.ChunkIndex == c.ChunkIndex {
				dup = true
				break
			}
		}
		if !dup {
			f.chunks = append(f.chunks, c)
			inserted++
		}
	}
	return inserted, nil
}

type fakeTimelineStore struct {
	mu     sync.Mutex
	events []models.TimelineEvent
	err    error
}

func (f *fakeTimelineStore) InsertBatch(ctx context.Context, events []models.TimelineEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, events...)
	return nil
}

func (f *fakeTimelineStore) ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]models.TimelineEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.TimelineEvent
	for _, e := range f.events {
		if e.ConversationID == conversationID {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeStatuteSource struct {
	mu         sync.Mutex
	searches   int
	fetches    int
	candidates []legalapi.StatuteCandidate
	texts      map[models.IdentityKey]string
	SearchFunc func(ctx context.Context, q legalapi.StatuteQuery) ([]legalapi.StatuteCandidate, error)
	// BeforeFetch runs ahead of every text fetch; an error aborts the fetch
	BeforeFetch func(ctx context.Context) error
}

func (f *fakeStatuteSource) Search(ctx context.Context, q legalapi.StatuteQuery) ([]legalapi.StatuteCandidate, error) {
	f.mu.Lock()
	f.searches++
	f.mu.Unlock()
	if f.SearchFunc != nil {
		return f.SearchFunc(ctx, q)
	}
	return f.candidates, nil
}

func (f *fakeStatuteSource) FetchText(ctx context.Context, publisher string, year, pos, limit int) (string, error) {
	if f.BeforeFetch != nil {
		if err := f.BeforeFetch(ctx); err != nil {
			return "", err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	text, ok := f.texts[models.StatuteKey(publisher, year, pos)]
	if !ok {
		return "", legalapi.ErrNotFound
	}
	text, _ = legalapi.Truncate(text, limit)
	return text, nil
}

func (f *fakeStatuteSource) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

type fakeRulingSource struct {
	mu         sync.Mutex
	fetches    int
	SearchFunc func(ctx context.Context, query, courtType string) ([]legalapi.RulingCandidate, error)
	texts      map[string]string
}

func (f *fakeRulingSource) Search(ctx context.Context, query, courtType string) ([]legalapi.RulingCandidate, error) {
	if f.SearchFunc != nil {
		return f.SearchFunc(ctx, query, courtType)
	}
	return nil, nil
}

func (f *fakeRulingSource) FetchText(ctx context.Context, judgmentID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	text, ok := f.texts[judgmentID]
	if !ok {
		return "", legalapi.ErrNotFound
	}
	return text, nil
}

type fakeEmbedder struct {
	mu        sync.Mutex
	documents int
}

func (f *fakeEmbedder) vector() []float32 {
	v := make([]float32, 768)
	v[0] = 1
	return v
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return f.vector(), nil
}

func (f *fakeEmbedder) EmbedDocuments(ctx context.Context, title string, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.documents += len(texts)
	f.mu.Unlock()
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vector()
	}
	return out, nil
}

type fakeModel struct {
	mu           sync.Mutex
	requests     []llm.Request
	GenerateFunc func(ctx context.Context, req llm.Request, call int) (*llm.Response, error)
}

func (f *fakeModel) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	f.mu.Lock()
	cp := req
	cp.Messages = append([]llm.Message{}, req.Messages...)
	f.requests = append(f.requests, cp)
	call := len(f.requests)
	f.mu.Unlock()
	return f.GenerateFunc(ctx, req, call)
}

func (f *fakeModel) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type fakeReadiness struct {
	err error
}

func (f fakeReadiness) Ready(ctx context.Context) error {
	return f.err
}

type fakeFileStore struct {
	files map[uuid.UUID]*models.File
}

func (f *fakeFileStore) Create(ctx context.Context, file *models.File) error {
	f.files[file.ID] = file
	return nil
}

func (f *fakeFileStore) GetByID(ctx context.Context, id uuid.UUID) (*models.File, error) {
	file, ok := f.files[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return file, nil
}

func (f *fakeFileStore) Delete(ctx context.Context, id uuid.UUID) error {
	delete(f.files, id)
	return nil
}
