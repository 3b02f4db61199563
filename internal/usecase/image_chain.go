package usecase

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/pricelens/backend/internal/domain"
)

// MaxImageBytes is the largest decoded inline image accepted
const MaxImageBytes = 5 << 20

// ImageSearchRequest is the caller's reverse image search input.
// Exactly one of ImageURL or DataURL must be set.
type ImageSearchRequest struct {
	ImageURL string `json:"imageUrl,omitempty"`
	DataURL  string `json:"dataUrl,omitempty"`
	Title    string `json:"title,omitempty"`
}

// ImageChainConfig holds configuration for the reverse image chain
type ImageChainConfig struct {
	CacheTTL       time.Duration
	CallTimeout    time.Duration
	RequestTimeout time.Duration
	MinConfidence  float64
	Limits         map[string]domain.PlatformLimits
}

// ImageChain tries image-capable marketplaces in order and stops at the
// first one that yields a usable result. The generic fallback always runs last.
type ImageChain struct {
	steps     []domain.ImageSearcher
	cache     domain.ResultCache
	limiter   domain.RateLimiter
	scorer    *MatchScorer
	affiliate *AffiliateProcessor
	history   HistoryRecorder
	config    ImageChainConfig
	now       func() time.Time
}

// NewImageChain creates a chain of searchers followed by fallback
func NewImageChain(
	searchers []domain.ImageSearcher,
	fallback domain.ImageSearcher,
	cache domain.ResultCache,
	limiter domain.RateLimiter,
	affiliate *AffiliateProcessor,
	history HistoryRecorder,
	config ImageChainConfig,
) *ImageChain {
	steps := make([]domain.ImageSearcher, 0, len(searchers)+1)
	steps = append(steps, searchers...)
	if fallback != nil {
		steps = append(steps, fallback)
	}

	if config.CacheTTL == 0 {
		config.CacheTTL = time.Hour
	}
	if config.CallTimeout == 0 {
		config.CallTimeout = 6 * time.Second
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = 11 * time.Second
	}
	if affiliate == nil {
		affiliate = NewAffiliateProcessor(nil)
	}

	return &ImageChain{
		steps:     steps,
		cache:     cache,
		limiter:   limiter,
		scorer:    NewMatchScorer(),
		affiliate: affiliate,
		history:   history,
		config:    config,
		now:       time.Now,
	}
}

// Search runs the chain for req
func (c *ImageChain) Search(ctx context.Context, req ImageSearchRequest, settings domain.Settings) (*domain.AggregateResult, error) {
	query, err := ParseImageRequest(req)
	if err != nil {
		return nil, err
	}

	cacheKey := imageCacheKey(query)
	if cached, err := c.cache.Get(ctx, cacheKey); err == nil && cached != nil {
		cached.Cached = true
		cached.Candidates = c.affiliate.RewriteCandidates(cached.Candidates, settings)
		c.recordHistory(ctx, query, cached)
		return cached, nil
	} else if err != nil && !errors.Is(err, domain.ErrCacheMiss) {
		log.Printf("[IMAGE] Cache read failed for %s: %v", cacheKey, err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	result := &domain.AggregateResult{
		Candidates: []domain.SearchCandidate{},
		Platforms:  []string{},
		Outcome:    domain.OutcomeNoResults,
	}
	ran := false

	for _, step := range c.steps {
		platform := step.Platform()
		result.Platforms = append(result.Platforms, platform)

		if reqCtx.Err() != nil {
			c.addError(result, domain.NewPlatformError(platform, domain.ErrTimeout))
			continue
		}

		limits := c.limitsFor(platform)
		if err := c.limiter.CheckAndReserve(reqCtx, platform, limits.MaxRequests, limits.Window); err != nil {
			log.Printf("[IMAGE] %s skipped: %v", platform, err)
			c.addError(result, domain.NewPlatformError(platform, err))
			continue
		}

		res, perr := invokePlatform(reqCtx, platform, c.config.CallTimeout, func(cctx context.Context) (*domain.PlatformSearchResult, error) {
			return step.SearchByImage(cctx, query)
		})
		if perr == nil || perr.Kind != domain.KindTimeout {
			ran = true
		}
		if perr != nil {
			log.Printf("[IMAGE] %s failed: %v", platform, perr)
			c.addError(result, perr)
			continue
		}

		candidates := c.filter(dedupe(c.score(platform, query.Title, res.Candidates)))
		if len(candidates) == 0 {
			c.addError(result, &domain.PlatformError{
				Platform: platform,
				Kind:     domain.KindEmpty,
				Reason:   "no confident visual matches",
			})
			continue
		}

		sortCandidates(candidates)
		result.Candidates = c.affiliate.RewriteCandidates(candidates, settings)
		result.Outcome = domain.OutcomeMatched
		break
	}

	result.CreatedAt = c.now()

	if result.Outcome == domain.OutcomeNoResults && !ran && reqCtx.Err() != nil {
		return nil, fmt.Errorf("%w: no image search provider answered in time, check your connection and try again", domain.ErrSearchTimeout)
	}

	if result.Outcome == domain.OutcomeMatched {
		if err := c.cache.Set(ctx, cacheKey, result, c.config.CacheTTL); err != nil {
			log.Printf("[IMAGE] Cache write failed for %s: %v", cacheKey, err)
		}
	}

	c.recordHistory(ctx, query, result)
	return result, nil
}

// score assigns every candidate its confidence: the provider's visual
// similarity when given, otherwise title similarity against the hint
func (c *ImageChain) score(platform, hint string, in []domain.SearchCandidate) []domain.SearchCandidate {
	source := &domain.ProductDescriptor{Title: hint}
	out := make([]domain.SearchCandidate, 0, len(in))
	for _, cand := range in {
		if cand.Platform == "" {
			cand.Platform = platform
		}
		if cand.MatchType == "" {
			cand.MatchType = domain.MatchTypeVisualSimilar
		}
		switch {
		case cand.ConfidenceScore > 0:
			cand.ConfidenceScore = math.Min(cand.ConfidenceScore, 100)
		case strings.TrimSpace(hint) != "":
			cand.ConfidenceScore = c.scorer.Score(source, &cand)
		default:
			cand.ConfidenceScore = 0
		}
		out = append(out, cand)
	}
	return out
}

func (c *ImageChain) filter(in []domain.SearchCandidate) []domain.SearchCandidate {
	out := make([]domain.SearchCandidate, 0, len(in))
	for _, cand := range in {
		if cand.ConfidenceScore >= c.config.MinConfidence {
			out = append(out, cand)
		}
	}
	return out
}

// dedupe drops candidates whose fingerprint was already seen; the first one wins
func dedupe(in []domain.SearchCandidate) []domain.SearchCandidate {
	seen := make(map[string]bool, len(in))
	out := make([]domain.SearchCandidate, 0, len(in))
	for _, cand := range in {
		fp := fingerprint(cand)
		if seen[fp] {
			continue
		}
		seen[fp] = true
		out = append(out, cand)
	}
	return out
}

func fingerprint(c domain.SearchCandidate) string {
	return strings.ToLower(strings.TrimSpace(c.Title)) + "|" + strconv.FormatInt(int64(math.Round(c.Price)), 10)
}

func (c *ImageChain) addError(result *domain.AggregateResult, perr *domain.PlatformError) {
	if result.Errors == nil {
		result.Errors = make(map[string]*domain.PlatformError)
	}
	result.Errors[perr.Platform] = perr
}

func (c *ImageChain) limitsFor(platform string) domain.PlatformLimits {
	if l, ok := c.config.Limits[platform]; ok && l.MaxRequests > 0 && l.Window > 0 {
		return l
	}
	return domain.PlatformLimits{MaxRequests: 10, Window: time.Minute}
}

func (c *ImageChain) recordHistory(ctx context.Context, q domain.ImageQuery, result *domain.AggregateResult) {
	if c.history == nil {
		return
	}
	label := q.Title
	if label == "" {
		label = q.ImageURL
	}
	if label == "" {
		label = "uploaded image"
	}
	entry := domain.HistoryEntry{
		ID:          uuid.NewString(),
		Kind:        domain.SearchKindImage,
		Query:       label,
		ResultCount: len(result.Candidates),
		SearchedAt:  c.now(),
	}
	if err := c.history.PushHistory(ctx, entry); err != nil {
		log.Printf("[IMAGE] Failed to record history: %v", err)
	}
}

// ParseImageRequest validates req and decodes an inline image
func ParseImageRequest(req ImageSearchRequest) (domain.ImageQuery, error) {
	imageURL := strings.TrimSpace(req.ImageURL)
	dataURL := strings.TrimSpace(req.DataURL)
	title := strings.TrimSpace(req.Title)

	switch {
	case imageURL != "" && dataURL != "":
		return domain.ImageQuery{}, fmt.Errorf("%w: provide either imageUrl or dataUrl, not both", domain.ErrMalformedInput)
	case imageURL != "":
		u, err := url.Parse(imageURL)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return domain.ImageQuery{}, fmt.Errorf("%w: imageUrl must be an absolute http or https URL", domain.ErrMalformedInput)
		}
		return domain.ImageQuery{ImageURL: imageURL, Title: title}, nil
	case dataURL != "":
		mime, data, err := decodeDataURL(dataURL)
		if err != nil {
			return domain.ImageQuery{}, err
		}
		return domain.ImageQuery{Data: data, MimeType: mime, Title: title}, nil
	default:
		return domain.ImageQuery{}, fmt.Errorf("%w: imageUrl or dataUrl is required", domain.ErrMalformedInput)
	}
}

// decodeDataURL parses "data:image/<type>;base64,<payload>"
func decodeDataURL(s string) (string, []byte, error) {
	const prefix = "data:"
	malformed := fmt.Errorf("%w: dataUrl must look like data:image/<type>;base64,<data>", domain.ErrMalformedInput)

	if !strings.HasPrefix(s, prefix) {
		return "", nil, malformed
	}
	meta, payload, ok := strings.Cut(s[len(prefix):], ",")
	if !ok {
		return "", nil, malformed
	}
	mime, ok := strings.CutSuffix(meta, ";base64")
	if !ok || !strings.HasPrefix(mime, "image/") || len(mime) == len("image/") {
		return "", nil, malformed
	}

	if base64.StdEncoding.DecodedLen(len(payload)) > MaxImageBytes+2 {
		return "", nil, fmt.Errorf("%w: image is larger than 5 MiB", domain.ErrMalformedInput)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil || len(data) == 0 {
		return "", nil, fmt.Errorf("%w: dataUrl does not contain valid base64 image data", domain.ErrMalformedInput)
	}
	if len(data) > MaxImageBytes {
		return "", nil, fmt.Errorf("%w: image is larger than 5 MiB", domain.ErrMalformedInput)
	}
	return mime, data, nil
}
