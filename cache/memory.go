package cache

import (
	"context"
	"sync"
	"time"

	"lexcounsel-backend/models"
)

// MemoryKnowledgeCache is a process-local cache for development and tests
type MemoryKnowledgeCache struct {
	mu     sync.RWMutex
	docs   map[models.IdentityKey]models.CachedDocument
	maxAge time.Duration
	now    func() time.Time
}

// NewMemoryKnowledgeCache creates an empty in-memory cache
func NewMemoryKnowledgeCache(maxAge time.Duration) *MemoryKnowledgeCache {
	return &MemoryKnowledgeCache{
		docs:   make(map[models.IdentityKey]models.CachedDocument),
		maxAge: maxAge,
		now:    time.Now,
	}
}

// Get returns a fresh cached document or ErrMiss
func (c *MemoryKnowledgeCache) Get(ctx context.Context, key models.IdentityKey) (*models.CachedDocument, error) {
	c.mu.RLock()
	doc, ok := c.docs[key]
	c.mu.RUnlock()
	if !ok || stale(&doc, c.maxAge, c.now()) {
		return nil, ErrMiss
	}
	return &doc, nil
}

// Put stores a document
func (c *MemoryKnowledgeCache) Put(ctx context.Context, doc models.CachedDocument) error {
	if doc.FetchedAt.IsZero() {
		doc.FetchedAt = c.now().UTC()
	}
	c.mu.Lock()
	c.docs[doc.Key] = doc
	c.mu.Unlock()
	return nil
}
