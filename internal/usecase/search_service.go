package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/pricelens/backend/internal/domain"
)

// HistoryRecorder records completed searches
type HistoryRecorder interface {
	PushHistory(ctx context.Context, entry domain.HistoryEntry) error
}

// SearchServiceConfig holds configuration for the search service
type SearchServiceConfig struct {
	CacheTTL           time.Duration
	CallTimeout        time.Duration
	RequestTimeout     time.Duration
	DefaultPlatforms   []string
	MaxConcurrency     int
	Limits             map[string]domain.PlatformLimits
	EnableDebugLogging bool
}

// SearchService finds a product across marketplaces with caching
type SearchService struct {
	cache     domain.ResultCache
	limiter   domain.RateLimiter
	adapters  map[string]domain.PlatformAdapter
	scorer    *MatchScorer
	affiliate *AffiliateProcessor
	history   HistoryRecorder
	config    SearchServiceConfig
	now       func() time.Time
}

// slot is the outcome of one platform within one request
type slot struct {
	result *domain.PlatformSearchResult
	err    *domain.PlatformError
	ran    bool // the adapter answered, successfully or with a non-timeout error
}

// NewSearchService creates a new search service with dependencies
func NewSearchService(
	cache domain.ResultCache,
	limiter domain.RateLimiter,
	adapters []domain.PlatformAdapter,
	affiliate *AffiliateProcessor,
	history HistoryRecorder,
	config SearchServiceConfig,
) *SearchService {
	byPlatform := make(map[string]domain.PlatformAdapter, len(adapters))
	for _, a := range adapters {
		byPlatform[a.Platform()] = a
	}

	if config.CacheTTL == 0 {
		config.CacheTTL = 24 * time.Hour
	}
	if config.CallTimeout == 0 {
		config.CallTimeout = 6 * time.Second
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = 11 * time.Second
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = len(adapters)
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 1
	}
	if affiliate == nil {
		affiliate = NewAffiliateProcessor(nil)
	}

	return &SearchService{
		cache:     cache,
		limiter:   limiter,
		adapters:  byPlatform,
		scorer:    NewMatchScorer(),
		affiliate: affiliate,
		history:   history,
		config:    config,
		now:       time.Now,
	}
}

// Search looks up equivalents of a product on the selected marketplaces.
// Flow: check cache -> fan out -> merge -> affiliate rewrite -> cache -> return
func (s *SearchService) Search(
	ctx context.Context,
	descriptor *domain.ProductDescriptor,
	settings domain.Settings,
) (*domain.AggregateResult, error) {
	if descriptor == nil || strings.TrimSpace(descriptor.Title) == "" {
		return nil, fmt.Errorf("%w: product title is required", domain.ErrMalformedInput)
	}

	cacheKey := textCacheKey(descriptor)

	// Try cache first
	if cached, err := s.cache.Get(ctx, cacheKey); err == nil && cached != nil {
		cached.Cached = true
		cached.Candidates = applyDealThreshold(s.affiliate.RewriteCandidates(cached.Candidates, settings), settings.PriceThreshold)
		s.recordHistory(ctx, descriptor, cached)
		return cached, nil
	} else if err != nil && !errors.Is(err, domain.ErrCacheMiss) {
		log.Printf("[SEARCH] Cache read failed for %s: %v", cacheKey, err)
	}

	platforms := s.selectPlatforms(settings)
	if len(platforms) == 0 {
		return nil, fmt.Errorf("%w: no marketplaces are enabled", domain.ErrMalformedInput)
	}

	query := BuildQuery(descriptor)
	if s.config.EnableDebugLogging {
		log.Debugf("[SEARCH] Query %q on %v", query.Text(), platforms)
	}

	slots, timedOut := s.fanOut(ctx, platforms, query)
	if timedOut && !anyRan(slots) {
		return nil, fmt.Errorf("%w: no marketplace answered in time, check your connection and try again", domain.ErrSearchTimeout)
	}

	result := s.merge(descriptor, platforms, slots, settings)
	result.Candidates = s.affiliate.RewriteCandidates(result.Candidates, settings)

	// only matched results are cached
	if result.Outcome == domain.OutcomeMatched {
		if err := s.cache.Set(ctx, cacheKey, result, s.config.CacheTTL); err != nil {
			log.Printf("[SEARCH] Cache write failed for %s: %v", cacheKey, err)
		}
	}

	s.recordHistory(ctx, descriptor, result)
	return result, nil
}

// selectPlatforms keeps the user's preferred platforms that have an adapter,
// falling back to the configured defaults
func (s *SearchService) selectPlatforms(settings domain.Settings) []string {
	pick := func(ids []string) []string {
		var out []string
		seen := make(map[string]bool)
		for _, id := range ids {
			id = strings.ToLower(strings.TrimSpace(id))
			if _, ok := s.adapters[id]; !ok || seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, id)
		}
		return out
	}

	if preferred := pick(settings.PreferredPlatforms); len(preferred) > 0 {
		return preferred
	}
	return pick(s.config.DefaultPlatforms)
}

func (s *SearchService) limitsFor(platform string) domain.PlatformLimits {
	if l, ok := s.config.Limits[platform]; ok && l.MaxRequests > 0 && l.Window > 0 {
		return l
	}
	return domain.PlatformLimits{MaxRequests: 10, Window: time.Minute}
}

// fanOut queries every platform concurrently. It returns once all calls have
// finished or the request deadline passed; in the latter case the platforms
// still running are reported as timed out.
func (s *SearchService) fanOut(ctx context.Context, platforms []string, query domain.NormalizedQuery) ([]slot, bool) {
	reqCtx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	var mu sync.Mutex
	slots := make([]slot, len(platforms))
	finished := make([]bool, len(platforms))
	record := func(i int, sl slot) {
		mu.Lock()
		defer mu.Unlock()
		slots[i] = sl
		finished[i] = true
	}

	sem := semaphore.NewWeighted(int64(s.config.MaxConcurrency))
	var g errgroup.Group

	for i, platform := range platforms {
		limits := s.limitsFor(platform)
		if err := s.limiter.CheckAndReserve(reqCtx, platform, limits.MaxRequests, limits.Window); err != nil {
			log.Printf("[SEARCH] %s skipped: %v", platform, err)
			record(i, slot{err: domain.NewPlatformError(platform, err)})
			continue
		}

		adapter := s.adapters[platform]
		g.Go(func() error {
			if err := sem.Acquire(reqCtx, 1); err != nil {
				record(i, slot{err: domain.NewPlatformError(platform, domain.ErrTimeout)})
				return nil
			}
			defer sem.Release(1)

			start := s.now()
			res, perr := invokePlatform(reqCtx, platform, s.config.CallTimeout, func(c context.Context) (*domain.PlatformSearchResult, error) {
				return adapter.Search(c, query)
			})
			if s.config.EnableDebugLogging {
				log.Debugf("[SEARCH] %s finished in %s", platform, s.now().Sub(start))
			}
			record(i, slot{result: res, err: perr, ran: perr == nil || perr.Kind != domain.KindTimeout})
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-reqCtx.Done():
	}
	timedOut := reqCtx.Err() != nil

	mu.Lock()
	defer mu.Unlock()

	out := make([]slot, len(slots))
	copy(out, slots)
	for i := range out {
		if !finished[i] {
			out[i] = slot{err: domain.NewPlatformError(platforms[i], domain.ErrTimeout)}
		}
	}
	return out, timedOut
}

func anyRan(slots []slot) bool {
	for _, sl := range slots {
		if sl.ran {
			return true
		}
	}
	return false
}

// merge flattens platform results in platform order, scores every
// candidate and sorts the union
func (s *SearchService) merge(
	descriptor *domain.ProductDescriptor,
	platforms []string,
	slots []slot,
	settings domain.Settings,
) *domain.AggregateResult {
	result := &domain.AggregateResult{
		Candidates: []domain.SearchCandidate{},
		Platforms:  platforms,
		CreatedAt:  s.now(),
	}

	for i, platform := range platforms {
		sl := slots[i]
		if sl.err != nil {
			if result.Errors == nil {
				result.Errors = make(map[string]*domain.PlatformError)
			}
			result.Errors[platform] = sl.err
			continue
		}
		if sl.result == nil {
			continue
		}

		for _, c := range sl.result.Candidates {
			if c.Platform == "" {
				c.Platform = platform
			}
			if c.MatchType == "" {
				c.MatchType = domain.MatchTypeSimilar
			}
			c.ConfidenceScore = s.scorer.Score(descriptor, &c)
			c.SavingsPercent = savingsPercent(descriptor.Price, c)
			c.IsDeal = isDeal(c.SavingsPercent, settings.PriceThreshold)
			result.Candidates = append(result.Candidates, c)
		}
	}

	sortCandidates(result.Candidates)

	result.Outcome = domain.OutcomeMatched
	if len(result.Candidates) == 0 {
		result.Outcome = domain.OutcomeNoResults
	}
	return result
}

func isDeal(savings *float64, threshold float64) bool {
	return savings != nil && threshold > 0 && *savings >= threshold
}

// applyDealThreshold re-evaluates the deal flag of every candidate under threshold
func applyDealThreshold(candidates []domain.SearchCandidate, threshold float64) []domain.SearchCandidate {
	for i := range candidates {
		candidates[i].IsDeal = isDeal(candidates[i].SavingsPercent, threshold)
	}
	return candidates
}

func (s *SearchService) recordHistory(ctx context.Context, descriptor *domain.ProductDescriptor, result *domain.AggregateResult) {
	if s.history == nil {
		return
	}
	entry := domain.HistoryEntry{
		ID:          uuid.NewString(),
		Kind:        domain.SearchKindText,
		Query:       strings.TrimSpace(descriptor.Title),
		ProductID:   descriptor.ID,
		ResultCount: len(result.Candidates),
		SearchedAt:  s.now(),
	}
	if err := s.history.PushHistory(ctx, entry); err != nil {
		log.Printf("[SEARCH] Failed to record history: %v", err)
	}
}
