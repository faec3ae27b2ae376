// Package cache holds the global knowledge cache: fetched statute and ruling
// texts keyed by natural identity, shared across conversations.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lexcounsel-backend/config"
	"lexcounsel-backend/models"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned when a key is absent or stale
var ErrMiss = errors.New("cache miss")

// KnowledgeCache stores fetched documents by identity key
type KnowledgeCache interface {
	Get(ctx context.Context, key models.IdentityKey) (*models.CachedDocument, error)
	Put(ctx context.Context, doc models.CachedDocument) error
}

// New builds the configured cache. The returned close function releases connections.
func New(ctx context.Context, cfg config.CacheConfig) (KnowledgeCache, func() error, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryKnowledgeCache(cfg.MaxAge), func() error { return nil }, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:        cfg.RedisAddr,
			Password:    cfg.RedisPassword,
			DB:          cfg.RedisDB,
			DialTimeout: 5 * time.Second,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		return NewRedisKnowledgeCache(client, cfg.KeyPrefix, cfg.MaxAge), client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache type: %s", cfg.Type)
	}
}

func stale(doc *models.CachedDocument, maxAge time.Duration, now time.Time) bool {
	return maxAge > 0 && now.Sub(doc.FetchedAt) > maxAge
}
