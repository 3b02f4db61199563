package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pricelens/backend/internal/domain"
)

// fakeClock is a manually advanced time source
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func sampleResult(title string) *domain.AggregateResult {
	return &domain.AggregateResult{
		Candidates: []domain.SearchCandidate{
			{Title: title, Price: 12.5, Currency: "USD", Platform: "temu", ProductURL: "https://temu.example.com/p/1"},
		},
		Platforms: []string{"temu"},
		Outcome:   domain.OutcomeMatched,
	}
}

func TestMemoryCache_SetAndGet(t *testing.T) {
	cache := NewMemoryCache()
	ctx := context.Background()

	tests := []struct {
		name  string
		key   string
		value *domain.AggregateResult
		ttl   time.Duration
	}{
		{
			name:  "store and retrieve result",
			key:   "text:1",
			value: sampleResult("Wireless Mouse"),
			ttl:   1 * time.Minute,
		},
		{
			name: "store and retrieve result with errors",
			key:  "text:2",
			value: &domain.AggregateResult{
				Candidates: []domain.SearchCandidate{},
				Platforms:  []string{"dhgate"},
				Errors: map[string]*domain.PlatformError{
					"dhgate": {Platform: "dhgate", Kind: domain.KindTimeout, Reason: "slow"},
				},
			},
			ttl: 1 * time.Minute,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := cache.Set(ctx, tt.key, tt.value, tt.ttl); err != nil {
				t.Fatalf("Set() error = %v", err)
			}

			got, err := cache.Get(ctx, tt.key)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}

			if len(got.Candidates) != len(tt.value.Candidates) {
				t.Errorf("Get() candidates = %d, want %d", len(got.Candidates), len(tt.value.Candidates))
			}
			if len(got.Errors) != len(tt.value.Errors) {
				t.Errorf("Get() errors = %d, want %d", len(got.Errors), len(tt.value.Errors))
			}
		})
	}
}

func TestMemoryCache_TTLBoundary(t *testing.T) {
	clock := newFakeClock()
	cache := NewMemoryCache().WithClock(clock.Now)
	ctx := context.Background()
	ttl := 10 * time.Second

	if err := cache.Set(ctx, "k", sampleResult("a"), ttl); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	clock.Advance(ttl - time.Millisecond)
	if _, err := cache.Get(ctx, "k"); err != nil {
		t.Errorf("Get() at writeTime+T-1 error = %v, want hit", err)
	}

	clock.Advance(2 * time.Millisecond)
	if _, err := cache.Get(ctx, "k"); err != domain.ErrCacheMiss {
		t.Errorf("Get() at writeTime+T+1 error = %v, want ErrCacheMiss", err)
	}
}

func TestMemoryCache_Get_CacheMiss(t *testing.T) {
	cache := NewMemoryCache()
	ctx := context.Background()

	_, err := cache.Get(ctx, "non-existent-key")
	if err != domain.ErrCacheMiss {
		t.Errorf("Get() error = %v, want %v", err, domain.ErrCacheMiss)
	}
}

func TestMemoryCache_OverwriteReplacesWholeEntry(t *testing.T) {
	cache := NewMemoryCache()
	ctx := context.Background()

	first := sampleResult("first")
	first.Errors = map[string]*domain.PlatformError{"temu": {Platform: "temu", Kind: domain.KindEmpty}}
	if err := cache.Set(ctx, "k", first, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := cache.Set(ctx, "k", sampleResult("second"), time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := cache.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Candidates[0].Title != "second" {
		t.Errorf("title = %q, want second", got.Candidates[0].Title)
	}
	if len(got.Errors) != 0 {
		t.Errorf("errors = %v, want none carried over from the first write", got.Errors)
	}
}

func TestMemoryCache_ReturnedValueIsIsolated(t *testing.T) {
	cache := NewMemoryCache()
	ctx := context.Background()

	value := sampleResult("original")
	if err := cache.Set(ctx, "k", value, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	value.Candidates[0].Title = "mutated after write"

	got, _ := cache.Get(ctx, "k")
	got.Candidates[0].Title = "mutated after read"

	again, _ := cache.Get(ctx, "k")
	if again.Candidates[0].Title != "original" {
		t.Errorf("title = %q, want original", again.Candidates[0].Title)
	}
}

func TestMemoryCache_Delete(t *testing.T) {
	cache := NewMemoryCache()
	ctx := context.Background()

	key := "delete-test"
	if err := cache.Set(ctx, key, sampleResult("x"), 1*time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if err := cache.Delete(ctx, key); err != nil {
		t.Errorf("Delete() error = %v", err)
	}

	if _, err := cache.Get(ctx, key); err != domain.ErrCacheMiss {
		t.Errorf("Get() after delete error = %v, want %v", err, domain.ErrCacheMiss)
	}
}

func TestMemoryCache_ExpiredEvictedOnWrite(t *testing.T) {
	clock := newFakeClock()
	cache := NewMemoryCache().WithClock(clock.Now)
	ctx := context.Background()

	cache.Set(ctx, "old", sampleResult("old"), time.Second)
	clock.Advance(2 * time.Second)

	if cache.Size() != 1 {
		t.Fatalf("Size() = %d, want 1 before next write", cache.Size())
	}

	cache.Set(ctx, "new", sampleResult("new"), time.Minute)
	if cache.Size() != 1 {
		t.Errorf("Size() = %d, want 1 after expired entry was evicted", cache.Size())
	}
}

func TestMemoryCache_PurgeExpired(t *testing.T) {
	clock := newFakeClock()
	cache := NewMemoryCache().WithClock(clock.Now)
	ctx := context.Background()

	cache.Set(ctx, "short-1", sampleResult("a"), time.Second)
	cache.Set(ctx, "short-2", sampleResult("b"), time.Second)
	cache.Set(ctx, "long", sampleResult("c"), time.Hour)
	clock.Advance(time.Minute)

	purged, err := cache.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("PurgeExpired() error = %v", err)
	}
	if purged != 2 {
		t.Errorf("PurgeExpired() = %d, want 2", purged)
	}
	if cache.Size() != 1 {
		t.Errorf("Size() = %d, want 1", cache.Size())
	}
}

func TestMemoryCache_Clear(t *testing.T) {
	cache := NewMemoryCache()
	ctx := context.Background()

	for _, key := range []string{"key1", "key2", "key3"} {
		cache.Set(ctx, key, sampleResult(key), 1*time.Minute)
	}

	if cache.Size() != 3 {
		t.Errorf("Size() before clear = %d, want 3", cache.Size())
	}

	if err := cache.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}

	if cache.Size() != 0 {
		t.Errorf("Size() after clear = %d, want 0", cache.Size())
	}
}

func TestMemoryCache_Concurrency(t *testing.T) {
	cache := NewMemoryCache()
	ctx := context.Background()

	var wg sync.WaitGroup
	numGoroutines := 50

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			key := "concurrent-key"
			cache.Set(ctx, key, sampleResult("v"), 1*time.Minute)
			cache.Get(ctx, key)
		}(i)
	}

	wg.Wait()

	if _, err := cache.Get(ctx, "concurrent-key"); err != nil {
		t.Errorf("Get() after concurrent writes error = %v", err)
	}
}
