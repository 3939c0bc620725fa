package query

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisCache(t *testing.T) *RedisTemplateCache {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("starting miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisTemplateCache(client, time.Minute)
}

func TestRedisTemplateCacheRoundTrip(t *testing.T) {
	cache := newTestRedisCache(t)
	ctx := context.Background()

	if _, ok := cache.Get(ctx, "memory usage for pod x"); ok {
		t.Fatal("expected a miss before any Set")
	}

	want := Translation{Success: true, PromQL: `container_memory_usage_bytes{pod="x"}`, Category: "memory"}
	cache.Set(ctx, "Memory Usage For Pod X", want)

	got, ok := cache.Get(ctx, "memory usage for pod x")
	if !ok {
		t.Fatal("expected a hit after Set with a different-case query")
	}
	if got.PromQL != want.PromQL {
		t.Errorf("got PromQL %q, want %q", got.PromQL, want.PromQL)
	}
}

func TestRedisTemplateCacheDefaultsTTL(t *testing.T) {
	cache := NewRedisTemplateCache(nil, 0)
	if cache.ttl != 5*time.Minute {
		t.Errorf("got default ttl %v, want 5m", cache.ttl)
	}
}
