// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
// Package cache implements the CanCache capability (spec.md §4.I): a
// read-through cache over chunks, the QNTM-key set, and collection stats,
// with TTL expiry and authoritative invalidation. Grounded on the teacher's
// internal/queue/redis_queue.go (wrap *redis.Client, JSON-marshal the
// payload, log every operation) and internal/config/redis.go for client
// construction.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nskitch/atlas/internal/atlaserr"
	"github.com/nskitch/atlas/internal/logger"
	"github.com/nskitch/atlas/internal/model"
)

const (
	chunkKeyPrefix = "atlas:chunk:"
	qntmKeysKey    = "atlas:qntm_keys"
	statsKeyPrefix = "atlas:stats:"
)

// Backend is the CanCache capability surface (spec.md §4.I).
type Backend interface {
	GetChunk(ctx context.Context, id string) (*model.Chunk, error)
	SetChunk(ctx context.Context, chunk model.Chunk, ttl time.Duration) error
	InvalidateChunk(ctx context.Context, id string) error

	GetQNTMKeys(ctx context.Context) ([]model.QNTMKey, error)
	SetQNTMKeys(ctx context.Context, keys []model.QNTMKey, ttl time.Duration) error
	InvalidateQNTMKeys(ctx context.Context) error

	GetStats(ctx context.Context, collection string) (*model.CollectionStats, error)
	SetStats(ctx context.Context, collection string, stats model.CollectionStats, ttl time.Duration) error
	InvalidateStats(ctx context.Context, collection string) error
}

// RedisCache adapts Backend onto go-redis, the same client the teacher uses
// for its job queue.
type RedisCache struct {
	client *redis.Client
}

// New builds a RedisCache over an existing client, pinging it once so
// misconfiguration surfaces at startup rather than on the first request.
func New(ctx context.Context, client *redis.Client) (*RedisCache, error) {
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, atlaserr.Unavailable(atlaserr.TierCache, fmt.Errorf("cache: failed to ping redis: %w", err))
	}
	return &RedisCache{client: client}, nil
}

func (c *RedisCache) GetChunk(ctx context.Context, id string) (*model.Chunk, error) {
	var chunk model.Chunk
	if err := c.getJSON(ctx, chunkKeyPrefix+id, &chunk); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	return &chunk, nil
}

func (c *RedisCache) SetChunk(ctx context.Context, chunk model.Chunk, ttl time.Duration) error {
	return c.setJSON(ctx, chunkKeyPrefix+chunk.ID, chunk, ttl)
}

func (c *RedisCache) InvalidateChunk(ctx context.Context, id string) error {
	return c.del(ctx, chunkKeyPrefix+id)
}

func (c *RedisCache) GetQNTMKeys(ctx context.Context) ([]model.QNTMKey, error) {
	var keys []model.QNTMKey
	if err := c.getJSON(ctx, qntmKeysKey, &keys); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	return keys, nil
}

func (c *RedisCache) SetQNTMKeys(ctx context.Context, keys []model.QNTMKey, ttl time.Duration) error {
	return c.setJSON(ctx, qntmKeysKey, keys, ttl)
}

func (c *RedisCache) InvalidateQNTMKeys(ctx context.Context) error {
	return c.del(ctx, qntmKeysKey)
}

func (c *RedisCache) GetStats(ctx context.Context, collection string) (*model.CollectionStats, error) {
	var stats model.CollectionStats
	if err := c.getJSON(ctx, statsKeyPrefix+collection, &stats); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	return &stats, nil
}

func (c *RedisCache) SetStats(ctx context.Context, collection string, stats model.CollectionStats, ttl time.Duration) error {
	return c.setJSON(ctx, statsKeyPrefix+collection, stats, ttl)
}

// InvalidateStats is authoritative: it removes the cached entry outright
// rather than relying on TTL expiry, so a write that changes collection
// counters is never read back stale even within the TTL window (spec.md
// §4.I: "invalidate_* is authoritative and overrides TTL").
func (c *RedisCache) InvalidateStats(ctx context.Context, collection string) error {
	return c.del(ctx, statsKeyPrefix+collection)
}

func (c *RedisCache) getJSON(ctx context.Context, key string, dst any) error {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return err
		}
		return atlaserr.Unavailable(atlaserr.TierCache, fmt.Errorf("cache get %s: %w", key, err))
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("cache unmarshal %s: %w", key, err)
	}
	return nil
}

func (c *RedisCache) setJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache marshal %s: %w", key, err)
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return atlaserr.Unavailable(atlaserr.TierCache, fmt.Errorf("cache set %s: %w", key, err))
	}
	logger.Tracef("cache: set %s (ttl=%s)", key, ttl)
	return nil
}

func (c *RedisCache) del(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return atlaserr.Unavailable(atlaserr.TierCache, fmt.Errorf("cache del %s: %w", key, err))
	}
	logger.Tracef("cache: invalidated %s", key)
	return nil
}

var _ Backend = (*RedisCache)(nil)
