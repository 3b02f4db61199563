// Package state persists the extension's settings, search history and
// affiliate click log.
package state

import (
	"context"
	"sync"

	"github.com/pricelens/backend/internal/domain"
)

// MemoryStore keeps state for the lifetime of the process
type MemoryStore struct {
	mu       sync.RWMutex
	settings *domain.Settings
	history  []domain.HistoryEntry
	clicks   []domain.ClickEvent
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// GetSettings returns the stored settings, or defaults when none were saved
func (s *MemoryStore) GetSettings(ctx context.Context) (*domain.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.settings == nil {
		def := domain.DefaultSettings()
		return &def, nil
	}
	out := *s.settings
	out.PreferredPlatforms = append([]string{}, s.settings.PreferredPlatforms...)
	return &out, nil
}

func (s *MemoryStore) SaveSettings(ctx context.Context, settings domain.Settings) error {
	settings.PreferredPlatforms = append([]string{}, settings.PreferredPlatforms...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = &settings
	return nil
}

// PushHistory prepends entry, keeping at most domain.MaxSearchHistory entries
func (s *MemoryStore) PushHistory(ctx context.Context, entry domain.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = pushFront(s.history, entry, domain.MaxSearchHistory)
	return nil
}

// ListHistory returns history, most recent first
func (s *MemoryStore) ListHistory(ctx context.Context) ([]domain.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.HistoryEntry{}, s.history...), nil
}

// PushClick prepends event, keeping at most domain.MaxClickEvents events
func (s *MemoryStore) PushClick(ctx context.Context, event domain.ClickEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clicks = pushFront(s.clicks, event, domain.MaxClickEvents)
	return nil
}

// ListClicks returns click events, most recent first
func (s *MemoryStore) ListClicks(ctx context.Context) ([]domain.ClickEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.ClickEvent{}, s.clicks...), nil
}

// pushFront returns a new slice with item first and at most limit items
func pushFront[T any](items []T, item T, limit int) []T {
	n := len(items) + 1
	if n > limit {
		n = limit
	}
	out := make([]T, 0, n)
	out = append(out, item)
	return append(out, items[:n-1]...)
}
