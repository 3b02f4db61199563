package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pricelens/backend/internal/domain"
)

const redisKeyPrefix = "pricelens:cache:"

// RedisCache stores aggregate results in Redis. Each key holds one whole
// CacheEntry; Redis expiry and the entry's own ExpiresAt both apply.
type RedisCache struct {
	rdb *redis.Client
	now func() time.Time
}

// NewRedisCache wraps an already-connected client
func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb, now: time.Now}
}

func (c *RedisCache) Get(ctx context.Context, key string) (*domain.AggregateResult, error) {
	raw, err := c.rdb.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}

	var entry domain.CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, domain.ErrCacheMiss
	}
	if entry.Expired(c.now()) {
		return nil, domain.ErrCacheMiss
	}

	return &entry.Result, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value *domain.AggregateResult, ttl time.Duration) error {
	entry := domain.CacheEntry{
		Result:    *value,
		ExpiresAt: c.now().Add(ttl),
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	if err := c.rdb.Set(ctx, redisKeyPrefix+key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, redisKeyPrefix+key).Err()
}

// Clear deletes every cache key owned by this service
func (c *RedisCache) Clear(ctx context.Context) error {
	iter := c.rdb.Scan(ctx, 0, redisKeyPrefix+"*", 200).Iterator()
	batch := make([]string, 0, 200)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := c.rdb.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("redis del: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	if len(batch) > 0 {
		return c.rdb.Del(ctx, batch...).Err()
	}
	return nil
}

// PurgeExpired is a no-op: Redis expires keys on its own
func (c *RedisCache) PurgeExpired(ctx context.Context) (int, error) {
	return 0, nil
}
