package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pricelens/backend/internal/domain"
)

type platformCall func(ctx context.Context) (*domain.PlatformSearchResult, error)

type callOutcome struct {
	result *domain.PlatformSearchResult
	err    error
}

// invokePlatform runs one marketplace call under its own deadline. Whatever
// happens inside call, including a panic, ends up as either a non-empty
// result or a *PlatformError for that platform.
func invokePlatform(ctx context.Context, platform string, timeout time.Duration, call platformCall) (*domain.PlatformSearchResult, *domain.PlatformError) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan callOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- callOutcome{err: fmt.Errorf("%w: adapter panic: %v", domain.ErrPlatformUnavailable, r)}
			}
		}()
		res, err := call(callCtx)
		done <- callOutcome{result: res, err: err}
	}()

	var out callOutcome
	select {
	case out = <-done:
	case <-callCtx.Done():
		return nil, domain.NewPlatformError(platform, domain.ErrTimeout)
	}

	if out.err != nil {
		if errors.Is(out.err, context.DeadlineExceeded) || errors.Is(out.err, context.Canceled) {
			return nil, domain.NewPlatformError(platform, domain.ErrTimeout)
		}
		return nil, domain.NewPlatformError(platform, out.err)
	}
	if out.result == nil || len(out.result.Candidates) == 0 {
		return nil, domain.NewPlatformError(platform, domain.ErrNoResults)
	}
	return out.result, nil
}
