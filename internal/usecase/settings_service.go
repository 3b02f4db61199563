package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/pricelens/backend/internal/domain"
)

// SettingsService manages the user's settings, search history and click log
type SettingsService struct {
	store     domain.StateStore
	cache     domain.ResultCache
	platforms map[string]bool
	now       func() time.Time
}

// NewSettingsService creates a settings service. knownPlatforms lists the
// marketplaces a user may select.
func NewSettingsService(store domain.StateStore, cache domain.ResultCache, knownPlatforms []string) *SettingsService {
	known := make(map[string]bool, len(knownPlatforms))
	for _, p := range knownPlatforms {
		known[p] = true
	}
	return &SettingsService{
		store:     store,
		cache:     cache,
		platforms: known,
		now:       time.Now,
	}
}

// GetSettings returns the current settings
func (s *SettingsService) GetSettings(ctx context.Context) (*domain.Settings, error) {
	return s.store.GetSettings(ctx)
}

// UpdateSettings validates and stores settings. Cached results are dropped
// when the preferred marketplaces change, since they were built for a
// different platform set.
func (s *SettingsService) UpdateSettings(ctx context.Context, settings domain.Settings) (*domain.Settings, error) {
	if settings.PriceThreshold < 0 || settings.PriceThreshold > 100 {
		return nil, fmt.Errorf("%w: priceThreshold must be between 0 and 100", domain.ErrMalformedInput)
	}

	normalized := make([]string, 0, len(settings.PreferredPlatforms))
	seen := make(map[string]bool)
	for _, p := range settings.PreferredPlatforms {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" || seen[p] {
			continue
		}
		if !s.platforms[p] {
			return nil, fmt.Errorf("%w: unknown platform %q", domain.ErrMalformedInput, p)
		}
		seen[p] = true
		normalized = append(normalized, p)
	}
	settings.PreferredPlatforms = normalized

	previous, err := s.store.GetSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	if err := s.store.SaveSettings(ctx, settings); err != nil {
		return nil, fmt.Errorf("save settings: %w", err)
	}

	if !samePlatforms(previous.PreferredPlatforms, settings.PreferredPlatforms) {
		log.Printf("[SETTINGS] Preferred platforms changed to %v, clearing cache", settings.PreferredPlatforms)
		if err := s.cache.Clear(ctx); err != nil {
			log.Printf("[SETTINGS] Failed to clear cache: %v", err)
		}
	}

	return &settings, nil
}

// ClearCache drops every cached search result
func (s *SettingsService) ClearCache(ctx context.Context) error {
	if err := s.cache.Clear(ctx); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	return nil
}

// History returns recent searches, most recent first
func (s *SettingsService) History(ctx context.Context) ([]domain.HistoryEntry, error) {
	entries, err := s.store.ListHistory(ctx)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []domain.HistoryEntry{}
	}
	return entries, nil
}

// Clicks returns recorded affiliate clicks, most recent first
func (s *SettingsService) Clicks(ctx context.Context) ([]domain.ClickEvent, error) {
	clicks, err := s.store.ListClicks(ctx)
	if err != nil {
		return nil, err
	}
	if clicks == nil {
		clicks = []domain.ClickEvent{}
	}
	return clicks, nil
}

// TrackClick records an outbound click when the user enabled tracking.
// It reports whether the click was stored.
func (s *SettingsService) TrackClick(ctx context.Context, platform, productURL string) (bool, error) {
	platform = strings.ToLower(strings.TrimSpace(platform))
	productURL = strings.TrimSpace(productURL)
	if platform == "" || productURL == "" {
		return false, fmt.Errorf("%w: platform and productUrl are required", domain.ErrMalformedInput)
	}

	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		return false, fmt.Errorf("load settings: %w", err)
	}
	if !settings.EnableTracking {
		return false, nil
	}

	event := domain.ClickEvent{
		ID:         uuid.NewString(),
		Platform:   platform,
		ProductURL: productURL,
		ClickedAt:  s.now(),
	}
	if err := s.store.PushClick(ctx, event); err != nil {
		return false, fmt.Errorf("record click: %w", err)
	}
	return true, nil
}

func samePlatforms(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
