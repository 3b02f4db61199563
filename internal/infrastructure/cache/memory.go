package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pricelens/backend/internal/domain"
)

// MemoryCache is a thread-safe in-memory result cache with TTL support.
// Entries are held serialized so a reader never shares memory with a writer.
type MemoryCache struct {
	data  map[string]storedEntry
	mutex sync.RWMutex
	now   func() time.Time
}

type storedEntry struct {
	payload   []byte
	expiresAt time.Time
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		data: make(map[string]storedEntry),
		now:  time.Now,
	}
}

// WithClock replaces the cache's time source (for tests)
func (c *MemoryCache) WithClock(now func() time.Time) *MemoryCache {
	c.now = now
	return c
}

// Get retrieves a result from the cache. Expired entries are a miss.
func (c *MemoryCache) Get(ctx context.Context, key string) (*domain.AggregateResult, error) {
	c.mutex.RLock()
	item, exists := c.data[key]
	c.mutex.RUnlock()

	if !exists {
		return nil, domain.ErrCacheMiss
	}

	entry := domain.CacheEntry{ExpiresAt: item.expiresAt}
	if entry.Expired(c.now()) {
		return nil, domain.ErrCacheMiss
	}

	if err := json.Unmarshal(item.payload, &entry.Result); err != nil {
		return nil, domain.ErrCacheMiss
	}

	return &entry.Result, nil
}

// Set stores a result with TTL, replacing any previous entry for key.
// Expired entries are evicted on every write.
func (c *MemoryCache) Set(ctx context.Context, key string, value *domain.AggregateResult, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}

	now := c.now()

	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.evictExpiredLocked(now)
	c.data[key] = storedEntry{
		payload:   payload,
		expiresAt: now.Add(ttl),
	}

	return nil
}

// Delete removes a value from the cache
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.data, key)
	return nil
}

// Clear removes all items from the cache
func (c *MemoryCache) Clear(ctx context.Context) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.data = make(map[string]storedEntry)
	return nil
}

// PurgeExpired removes expired entries and returns how many were dropped
func (c *MemoryCache) PurgeExpired(ctx context.Context) (int, error) {
	now := c.now()

	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.evictExpiredLocked(now), nil
}

func (c *MemoryCache) evictExpiredLocked(now time.Time) int {
	evicted := 0
	for key, item := range c.data {
		if !now.Before(item.expiresAt) {
			delete(c.data, key)
			evicted++
		}
	}
	return evicted
}

// Size returns the current number of items in the cache (for debugging/monitoring)
func (c *MemoryCache) Size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.data)
}
