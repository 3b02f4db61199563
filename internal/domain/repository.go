package domain

import (
	"context"
	"time"
)

// ResultCache defines the keyed, TTL-based storage of aggregate results
type ResultCache interface {
	Get(ctx context.Context, key string) (*AggregateResult, error)
	Set(ctx context.Context, key string, value *AggregateResult, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// PlatformAdapter searches one marketplace by text.
// Expected failures are returned as *PlatformError.
type PlatformAdapter interface {
	Platform() string
	Search(ctx context.Context, query NormalizedQuery) (*PlatformSearchResult, error)
}

// ImageSearcher searches one marketplace or provider by image
type ImageSearcher interface {
	Platform() string
	SearchByImage(ctx context.Context, query ImageQuery) (*PlatformSearchResult, error)
}

// RateLimiter gates outbound calls per platform with a sliding window
type RateLimiter interface {
	CheckAndReserve(ctx context.Context, platform string, maxRequests int, window time.Duration) error
}

// StateStore persists the extension's settings, history and click log
type StateStore interface {
	GetSettings(ctx context.Context) (*Settings, error)
	SaveSettings(ctx context.Context, settings Settings) error
	PushHistory(ctx context.Context, entry HistoryEntry) error
	ListHistory(ctx context.Context) ([]HistoryEntry, error)
	PushClick(ctx context.Context, event ClickEvent) error
	ListClicks(ctx context.Context) ([]ClickEvent, error)
}
