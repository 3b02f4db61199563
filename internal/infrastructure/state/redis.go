package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/pricelens/backend/internal/domain"
)

const (
	settingsKey = "pricelens:settings"
	historyKey  = "pricelens:searchHistory"
	clicksKey   = "pricelens:affiliateTracking"
)

// RedisStore persists state in Redis. The history and click rings are Redis
// lists trimmed on every push.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore wraps an already-connected client
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) GetSettings(ctx context.Context) (*domain.Settings, error) {
	raw, err := s.rdb.Get(ctx, settingsKey).Bytes()
	if errors.Is(err, redis.Nil) {
		def := domain.DefaultSettings()
		return &def, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get settings: %w", err)
	}

	var settings domain.Settings
	if err := json.Unmarshal(raw, &settings); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	return &settings, nil
}

func (s *RedisStore) SaveSettings(ctx context.Context, settings domain.Settings) error {
	payload, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, settingsKey, payload, 0).Err()
}

func (s *RedisStore) PushHistory(ctx context.Context, entry domain.HistoryEntry) error {
	return s.pushRing(ctx, historyKey, entry, domain.MaxSearchHistory)
}

func (s *RedisStore) ListHistory(ctx context.Context) ([]domain.HistoryEntry, error) {
	var out []domain.HistoryEntry
	err := s.listRing(ctx, historyKey, func(raw string) error {
		var e domain.HistoryEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return err
		}
		out = append(out, e)
		return nil
	})
	return out, err
}

func (s *RedisStore) PushClick(ctx context.Context, event domain.ClickEvent) error {
	return s.pushRing(ctx, clicksKey, event, domain.MaxClickEvents)
}

func (s *RedisStore) ListClicks(ctx context.Context) ([]domain.ClickEvent, error) {
	var out []domain.ClickEvent
	err := s.listRing(ctx, clicksKey, func(raw string) error {
		var e domain.ClickEvent
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return err
		}
		out = append(out, e)
		return nil
	})
	return out, err
}

func (s *RedisStore) pushRing(ctx context.Context, key string, value interface{}, limit int) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}

	pipe := s.rdb.TxPipeline()
	pipe.LPush(ctx, key, payload)
	pipe.LTrim(ctx, key, 0, int64(limit-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis push %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) listRing(ctx context.Context, key string, decode func(string) error) error {
	items, err := s.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("redis lrange %s: %w", key, err)
	}
	for _, raw := range items {
		if err := decode(raw); err != nil {
			log.Warnf("[STATE] Skipping undecodable entry in %s: %v", key, err)
		}
	}
	return nil
}
