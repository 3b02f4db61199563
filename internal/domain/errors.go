package domain

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrMalformedInput is returned when a request is rejected before any fan-out
	ErrMalformedInput = errors.New("malformed input")

	// ErrPlatformUnavailable is returned when a marketplace cannot be reached or answers garbage
	ErrPlatformUnavailable = errors.New("platform unavailable")

	// ErrRateLimited is returned when a platform's request window is full
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrTimeout is returned when a single platform call exceeds its deadline
	ErrTimeout = errors.New("platform call timed out")

	// ErrNoResults is returned when a platform answered with zero candidates
	ErrNoResults = errors.New("no results found")

	// ErrCacheMiss is returned when data is not found in cache or has expired
	ErrCacheMiss = errors.New("cache miss")

	// ErrSearchTimeout is returned when the request deadline passes before any platform completed
	ErrSearchTimeout = errors.New("search timed out")

	// ErrUnknownMessage is returned for message types the backend does not handle
	ErrUnknownMessage = errors.New("unknown message type")
)

// PlatformErrorKind classifies a per-platform failure
type PlatformErrorKind string

const (
	KindUnavailable PlatformErrorKind = "unavailable"
	KindRateLimited PlatformErrorKind = "rate_limited"
	KindTimeout     PlatformErrorKind = "timeout"
	KindEmpty       PlatformErrorKind = "empty"
)

// PlatformError is the typed failure of one marketplace within one request.
// It never escapes the platform's result slot.
type PlatformError struct {
	Platform     string            `json:"platform"`
	Kind         PlatformErrorKind `json:"kind"`
	Reason       string            `json:"reason"`
	RetryAfterMs int64             `json:"retryAfterMs,omitempty"`
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Platform, e.Reason, e.Kind)
}

// Unwrap maps the failure kind onto the package sentinels so callers can use errors.Is
func (e *PlatformError) Unwrap() error {
	switch e.Kind {
	case KindRateLimited:
		return ErrRateLimited
	case KindTimeout:
		return ErrTimeout
	case KindEmpty:
		return ErrNoResults
	default:
		return ErrPlatformUnavailable
	}
}

// NewPlatformError builds a PlatformError, classifying err by the sentinel it wraps
func NewPlatformError(platform string, err error) *PlatformError {
	var pe *PlatformError
	if errors.As(err, &pe) {
		return pe
	}

	var rl *RateLimitError
	if errors.As(err, &rl) {
		return &PlatformError{
			Platform:     platform,
			Kind:         KindRateLimited,
			Reason:       rl.UserMessage(),
			RetryAfterMs: rl.RetryAfter.Milliseconds(),
		}
	}

	kind := KindUnavailable
	reason := "platform unavailable, check your connection and try again"
	switch {
	case errors.Is(err, ErrTimeout):
		kind = KindTimeout
		reason = "platform did not answer in time"
	case errors.Is(err, ErrNoResults):
		kind = KindEmpty
		reason = "no matching products found"
	}
	if err != nil && kind == KindUnavailable {
		reason = fmt.Sprintf("%s: %v", reason, err)
	}

	return &PlatformError{Platform: platform, Kind: kind, Reason: reason}
}

// RateLimitError is returned by a rate limiter when a reservation is refused
type RateLimitError struct {
	Platform   string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry after %s", e.Platform, e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// UserMessage returns an actionable description of the limit
func (e *RateLimitError) UserMessage() string {
	secs := int64(math.Ceil(e.RetryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return fmt.Sprintf("too many requests, wait %d seconds before retrying", secs)
}
