package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pricelens/backend/internal/domain"
)

// MockAdapter is a mock implementation of domain.PlatformAdapter
type MockAdapter struct {
	platform   string
	candidates []domain.SearchCandidate
	err        error
	delay      time.Duration
	ignoreCtx  bool
	panicMsg   string
	calls      atomic.Int32
	lastQuery  atomic.Value
}

func NewMockAdapter(platform string, candidates ...domain.SearchCandidate) *MockAdapter {
	return &MockAdapter{platform: platform, candidates: candidates}
}

func (m *MockAdapter) Platform() string { return m.platform }

func (m *MockAdapter) Search(ctx context.Context, query domain.NormalizedQuery) (*domain.PlatformSearchResult, error) {
	m.calls.Add(1)
	m.lastQuery.Store(query)
	if m.panicMsg != "" {
		panic(m.panicMsg)
	}
	if m.delay > 0 {
		if m.ignoreCtx {
			time.Sleep(m.delay)
		} else {
			select {
			case <-time.After(m.delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return &domain.PlatformSearchResult{
		Platform:   m.platform,
		Candidates: append([]domain.SearchCandidate{}, m.candidates...),
		SourceURL:  "https://" + m.platform + ".example/search",
	}, nil
}

// MockImageSearcher is a mock implementation of domain.ImageSearcher
type MockImageSearcher struct {
	platform   string
	candidates []domain.SearchCandidate
	err        error
	calls      atomic.Int32
}

func NewMockImageSearcher(platform string, candidates ...domain.SearchCandidate) *MockImageSearcher {
	return &MockImageSearcher{platform: platform, candidates: candidates}
}

func (m *MockImageSearcher) Platform() string { return m.platform }

func (m *MockImageSearcher) SearchByImage(ctx context.Context, query domain.ImageQuery) (*domain.PlatformSearchResult, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	return &domain.PlatformSearchResult{
		Platform:   m.platform,
		Candidates: append([]domain.SearchCandidate{}, m.candidates...),
	}, nil
}

// MockLimiter is a mock implementation of domain.RateLimiter
type MockLimiter struct {
	mu      sync.Mutex
	deny    map[string]time.Duration
	reserve map[string]int
}

func NewMockLimiter() *MockLimiter {
	return &MockLimiter{deny: map[string]time.Duration{}, reserve: map[string]int{}}
}

func (m *MockLimiter) Deny(platform string, retryAfter time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deny[platform] = retryAfter
}

func (m *MockLimiter) CheckAndReserve(ctx context.Context, platform string, maxRequests int, window time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if retry, ok := m.deny[platform]; ok {
		return &domain.RateLimitError{Platform: platform, RetryAfter: retry}
	}
	m.reserve[platform]++
	return nil
}

func (m *MockLimiter) Reservations(platform string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reserve[platform]
}

// MockCache is a mock implementation of domain.ResultCache
type MockCache struct {
	mu         sync.Mutex
	data       map[string]domain.AggregateResult
	ttls       map[string]time.Duration
	setError   error
	clearCalls int
}

func NewMockCache() *MockCache {
	return &MockCache{
		data: make(map[string]domain.AggregateResult),
		ttls: make(map[string]time.Duration),
	}
}

func (m *MockCache) Get(ctx context.Context, key string) (*domain.AggregateResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, domain.ErrCacheMiss
	}
	v.Candidates = append([]domain.SearchCandidate{}, v.Candidates...)
	return &v, nil
}

func (m *MockCache) Set(ctx context.Context, key string, value *domain.AggregateResult, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setError != nil {
		return m.setError
	}
	v := *value
	v.Candidates = append([]domain.SearchCandidate{}, value.Candidates...)
	m.data[key] = v
	m.ttls[key] = ttl
	return nil
}

func (m *MockCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MockCache) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearCalls++
	m.data = make(map[string]domain.AggregateResult)
	return nil
}

func (m *MockCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

// MockHistory is a mock implementation of HistoryRecorder
type MockHistory struct {
	mu      sync.Mutex
	entries []domain.HistoryEntry
}

func (m *MockHistory) PushHistory(ctx context.Context, entry domain.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *MockHistory) Entries() []domain.HistoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.HistoryEntry{}, m.entries...)
}

func fixedClock() func() time.Time {
	t := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return t }
}
