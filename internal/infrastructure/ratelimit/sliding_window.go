// Package ratelimit implements per-platform sliding-window request gates.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pricelens/backend/internal/domain"
)

// SlidingWindow keeps a log of reservation timestamps per platform.
// A reservation is granted only while fewer than maxRequests timestamps fall
// inside the trailing window; check and insert happen under one lock.
type SlidingWindow struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	now     func() time.Time
}

// NewSlidingWindow creates an empty process-wide limiter
func NewSlidingWindow() *SlidingWindow {
	return &SlidingWindow{
		windows: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// WithClock replaces the limiter's time source (for tests)
func (l *SlidingWindow) WithClock(now func() time.Time) *SlidingWindow {
	l.now = now
	return l
}

// CheckAndReserve records a request for platform if the window has room.
// It returns a *domain.RateLimitError when the window is full.
func (l *SlidingWindow) CheckAndReserve(ctx context.Context, platform string, maxRequests int, window time.Duration) error {
	if maxRequests <= 0 || window <= 0 {
		return fmt.Errorf("invalid rate limit for %s: max=%d window=%s", platform, maxRequests, window)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	log := prune(l.windows[platform], now, window)

	if len(log) >= maxRequests {
		l.windows[platform] = log
		retryAfter := window - now.Sub(log[0])
		return &domain.RateLimitError{Platform: platform, RetryAfter: retryAfter}
	}

	l.windows[platform] = append(log, now)
	return nil
}

// Prune drops timestamps older than maxWindow and forgets idle platforms
func (l *SlidingWindow) Prune(maxWindow time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	dropped := 0
	for platform, log := range l.windows {
		log = prune(log, now, maxWindow)
		if len(log) == 0 {
			delete(l.windows, platform)
			dropped++
			continue
		}
		l.windows[platform] = log
	}
	return dropped
}

// prune returns the suffix of log still inside (now-window, now]
func prune(log []time.Time, now time.Time, window time.Duration) []time.Time {
	i := 0
	for i < len(log) && now.Sub(log[i]) >= window {
		i++
	}
	if i == 0 {
		return log
	}
	return append(log[:0:0], log[i:]...)
}
