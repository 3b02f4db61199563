// Package scheduler runs periodic housekeeping: sweeping expired cache
// entries and dropping idle rate limit windows.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// Purger removes expired cache entries and reports how many were dropped
type Purger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

// Pruner drops rate limit windows idle for longer than maxWindow
type Pruner interface {
	Prune(maxWindow time.Duration) int
}

// Scheduler wraps robfig/cron and manages the housekeeping loop
type Scheduler struct {
	cron      *cron.Cron
	purger    Purger
	pruner    Pruner
	maxWindow time.Duration
	interval  time.Duration
	spec      string // cron spec, e.g. "@every 10m0s"
}

// New creates a Scheduler that fires every interval. maxWindow is the
// longest configured rate limit window.
func New(purger Purger, pruner Pruner, interval, maxWindow time.Duration) *Scheduler {
	return &Scheduler{
		cron:      cron.New(),
		purger:    purger,
		pruner:    pruner,
		maxWindow: maxWindow,
		interval:  interval,
		spec:      fmt.Sprintf("@every %s", interval),
	}
}

// Start registers the job and starts the scheduler
func (s *Scheduler) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return fmt.Errorf("cleanup interval must be positive, got %s", s.interval)
	}
	if _, err := s.cron.AddFunc(s.spec, func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	s.cron.Start()
	log.Printf("[SCHEDULER] Cron started - spec: %s", s.spec)
	return nil
}

// Stop shuts the scheduler down and waits for a running sweep to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Println("[SCHEDULER] Cron stopped")
}

// RunOnce performs one housekeeping pass
func (s *Scheduler) RunOnce(ctx context.Context) {
	if s.purger != nil {
		n, err := s.purger.PurgeExpired(ctx)
		if err != nil {
			log.Printf("[SCHEDULER] Cache sweep failed: %v", err)
		} else if n > 0 {
			log.Printf("[SCHEDULER] Swept %d expired cache entries", n)
		}
	}

	if s.pruner != nil {
		if n := s.pruner.Prune(s.maxWindow); n > 0 {
			log.Printf("[SCHEDULER] Pruned %d idle rate limit windows", n)
		}
	}
}
