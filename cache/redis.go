package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"lexcounsel-backend/models"

	"github.com/redis/go-redis/v9"
)

const knowledgeKeyPrefix = "knowledge:"

// RedisKnowledgeCache stores documents as JSON values under a key prefix
type RedisKnowledgeCache struct {
	client *redis.Client
	prefix string
	maxAge time.Duration
}

// NewRedisKnowledgeCache creates a Redis-backed cache
func NewRedisKnowledgeCache(client *redis.Client, prefix string, maxAge time.Duration) *RedisKnowledgeCache {
	return &RedisKnowledgeCache{client: client, prefix: prefix, maxAge: maxAge}
}

func (c *RedisKnowledgeCache) key(k models.IdentityKey) string {
	return c.prefix + knowledgeKeyPrefix + string(k)
}

// Get returns a fresh cached document or ErrMiss
func (c *RedisKnowledgeCache) Get(ctx context.Context, key models.IdentityKey) (*models.CachedDocument, error) {
	val, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("failed to read cache: %w", err)
	}

	var doc models.CachedDocument
	if err := json.Unmarshal(val, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode cached document: %w", err)
	}
	if stale(&doc, c.maxAge, time.Now()) {
		return nil, ErrMiss
	}
	return &doc, nil
}

// Put writes a document, expiring it after the configured max age
func (c *RedisKnowledgeCache) Put(ctx context.Context, doc models.CachedDocument) error {
	if doc.FetchedAt.IsZero() {
		doc.FetchedAt = time.Now().UTC()
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	if err := c.client.Set(ctx, c.key(doc.Key), data, c.maxAge).Err(); err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}
	return nil
}
