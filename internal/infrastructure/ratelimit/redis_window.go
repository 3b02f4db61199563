package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/pricelens/backend/internal/domain"
)

const redisWindowPrefix = "pricelens:ratelimit:"

// reserveScript prunes, counts and inserts in one step so concurrent
// reservations from several processes cannot overshoot the window.
// Returns -1 when reserved, otherwise the oldest timestamp in the window.
var reserveScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count >= max then
  local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  return tonumber(oldest[2])
end
redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return -1
`)

// RedisWindow is a sliding-window limiter whose state survives restarts and
// is shared by every backend instance pointing at the same Redis.
type RedisWindow struct {
	rdb *redis.Client
	now func() time.Time
}

// NewRedisWindow wraps an already-connected client
func NewRedisWindow(rdb *redis.Client) *RedisWindow {
	return &RedisWindow{rdb: rdb, now: time.Now}
}

func (l *RedisWindow) CheckAndReserve(ctx context.Context, platform string, maxRequests int, window time.Duration) error {
	if maxRequests <= 0 || window <= 0 {
		return fmt.Errorf("invalid rate limit for %s: max=%d window=%s", platform, maxRequests, window)
	}

	nowMs := l.now().UnixMilli()
	res, err := reserveScript.Run(ctx, l.rdb,
		[]string{redisWindowPrefix + platform},
		nowMs, window.Milliseconds(), maxRequests, strconv.FormatInt(nowMs, 10)+":"+uuid.NewString(),
	).Int64()
	if err != nil {
		return fmt.Errorf("rate limit script for %s: %w", platform, err)
	}

	if res < 0 {
		return nil
	}

	retryAfter := window - time.Duration(nowMs-res)*time.Millisecond
	return &domain.RateLimitError{Platform: platform, RetryAfter: retryAfter}
}

// Prune is a no-op: keys expire with their window
func (l *RedisWindow) Prune(maxWindow time.Duration) int {
	return 0
}
