package query

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// TemplateCache memoizes a Translation by its normalized query string.
// The Translator falls back to direct template matching whenever no cache
// is attached.
type TemplateCache interface {
	Get(ctx context.Context, query string) (Translation, bool)
	Set(ctx context.Context, query string, translation Translation)
}

// RedisTemplateCache is a TemplateCache backed by a Redis client, JSON-
// encoding Translation under a fixed key prefix and TTL.
type RedisTemplateCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisTemplateCache returns a RedisTemplateCache that expires entries
// after ttl. A zero ttl defaults to 5 minutes, since the template table
// itself changes far less often than metric values do.
func NewRedisTemplateCache(client *redis.Client, ttl time.Duration) *RedisTemplateCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisTemplateCache{client: client, ttl: ttl, prefix: "opswatch:translation:"}
}

func (c *RedisTemplateCache) key(query string) string {
	return c.prefix + strings.ToLower(strings.TrimSpace(query))
}

// Get returns the cached translation for query, if present.
func (c *RedisTemplateCache) Get(ctx context.Context, query string) (Translation, bool) {
	raw, err := c.client.Get(ctx, c.key(query)).Bytes()
	if err != nil {
		return Translation{}, false
	}
	var t Translation
	if err := json.Unmarshal(raw, &t); err != nil {
		return Translation{}, false
	}
	return t, true
}

// Set stores translation under query with the cache's configured TTL.
func (c *RedisTemplateCache) Set(ctx context.Context, query string, translation Translation) {
	raw, err := json.Marshal(translation)
	if err != nil {
		return
	}
	c.client.Set(ctx, c.key(query), raw, c.ttl)
}
