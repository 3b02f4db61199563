package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricelens/backend/internal/domain"
	"github.com/pricelens/backend/internal/infrastructure/db"
)

// newTestRedisCache connects to PRICELENS_TEST_REDIS_URL or skips the test
func newTestRedisCache(t *testing.T) *RedisCache {
	t.Helper()
	url := os.Getenv("PRICELENS_TEST_REDIS_URL")
	if url == "" {
		t.Skip("PRICELENS_TEST_REDIS_URL not set")
	}

	rdb, err := db.NewRedisClient(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(func() { rdb.Close() })

	c := NewRedisCache(rdb)
	require.NoError(t, c.Clear(context.Background()))
	return c
}

func TestRedisCache_SetGetDelete(t *testing.T) {
	c := newTestRedisCache(t)
	ctx := context.Background()

	_, err := c.Get(ctx, "text:missing")
	assert.ErrorIs(t, err, domain.ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "text:1", sampleResult("Wireless Mouse"), time.Minute))

	got, err := c.Get(ctx, "text:1")
	require.NoError(t, err)
	assert.Equal(t, "Wireless Mouse", got.Candidates[0].Title)

	require.NoError(t, c.Delete(ctx, "text:1"))
	_, err = c.Get(ctx, "text:1")
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
}

func TestRedisCache_EntryExpiryIsHonoured(t *testing.T) {
	c := newTestRedisCache(t)
	ctx := context.Background()

	clock := newFakeClock()
	c.now = clock.Now

	require.NoError(t, c.Set(ctx, "text:2", sampleResult("x"), time.Minute))
	clock.Advance(time.Minute + time.Millisecond)

	_, err := c.Get(ctx, "text:2")
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
}

func TestRedisCache_Clear(t *testing.T) {
	c := newTestRedisCache(t)
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		require.NoError(t, c.Set(ctx, key, sampleResult(key), time.Minute))
	}
	require.NoError(t, c.Clear(ctx))

	for _, key := range []string{"a", "b", "c"} {
		_, err := c.Get(ctx, key)
		assert.ErrorIs(t, err, domain.ErrCacheMiss)
	}
}
