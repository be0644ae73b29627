// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nskitch/atlas/internal/model"
)

// TestRedisCache_ChunkLifecycle exercises the read-through chunk cache
// against a live Redis instance, following the teacher's REDIS_ADDR
// convention (internal/config/redis.go). Skipped when unset, same as the
// metadatastore package's Postgres test skips without DATABASE_URL.
func TestRedisCache_ChunkLifecycle(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	c, err := New(ctx, client)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	chunk := model.Chunk{ID: "chunk-xyz", SourceID: "src-1", CharCount: 42}
	if err := c.SetChunk(ctx, chunk, time.Minute); err != nil {
		t.Fatalf("SetChunk: %v", err)
	}

	got, err := c.GetChunk(ctx, "chunk-xyz")
	if err != nil || got == nil {
		t.Fatalf("GetChunk: %v %+v", err, got)
	}
	if got.CharCount != 42 {
		t.Errorf("expected char_count=42, got %d", got.CharCount)
	}

	if err := c.InvalidateChunk(ctx, "chunk-xyz"); err != nil {
		t.Fatalf("InvalidateChunk: %v", err)
	}
	got, err = c.GetChunk(ctx, "chunk-xyz")
	if err != nil {
		t.Fatalf("GetChunk after invalidate: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil after invalidation, got %+v", got)
	}
}

func TestRedisCache_StatsInvalidationIsAuthoritativeOverTTL(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	c, err := New(ctx, client)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	stats := model.CollectionStats{CollectionName: "chunks", TotalChunks: 10}
	if err := c.SetStats(ctx, "chunks", stats, time.Hour); err != nil {
		t.Fatalf("SetStats: %v", err)
	}
	if err := c.InvalidateStats(ctx, "chunks"); err != nil {
		t.Fatalf("InvalidateStats: %v", err)
	}
	got, err := c.GetStats(ctx, "chunks")
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if got != nil {
		t.Errorf("expected invalidation to override the hour-long TTL, got %+v", got)
	}
}
