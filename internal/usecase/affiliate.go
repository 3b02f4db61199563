package usecase

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pricelens/backend/internal/domain"
)

// timestampParam is appended to every rewritten URL
const timestampParam = "plts"

// AffiliateProcessor tags outbound product URLs with per-platform affiliate
// parameters and removes them again.
type AffiliateProcessor struct {
	configs   map[string]domain.AffiliateConfig
	knownKeys map[string]bool
	now       func() time.Time
}

// NewAffiliateProcessor creates a processor for the given per-platform configs.
// Every configured parameter name is treated as ours by Strip, including
// those of disabled platforms.
func NewAffiliateProcessor(configs map[string]domain.AffiliateConfig) *AffiliateProcessor {
	known := map[string]bool{timestampParam: true}
	for _, cfg := range configs {
		if cfg.Param != "" {
			known[cfg.Param] = true
		}
		for k := range cfg.Extra {
			known[k] = true
		}
	}

	return &AffiliateProcessor{
		configs:   configs,
		knownKeys: known,
		now:       time.Now,
	}
}

// Rewrite returns rawURL tagged for platform. The URL is returned unchanged
// when affiliate links are disabled, the platform has no enabled config, or
// rawURL is not an absolute http(s) URL. Existing values of our parameters
// are replaced, all other query parameters keep their order and encoding.
func (p *AffiliateProcessor) Rewrite(rawURL, platform string, settings domain.Settings) string {
	if !settings.EnableAffiliate {
		return rawURL
	}
	cfg, ok := p.configs[platform]
	if !ok || !cfg.Enabled || cfg.Param == "" || cfg.Value == "" {
		return rawURL
	}
	if !isRewritableURL(rawURL) {
		return rawURL
	}

	params := [][2]string{{cfg.Param, cfg.Value}}
	extraKeys := make([]string, 0, len(cfg.Extra))
	for k := range cfg.Extra {
		extraKeys = append(extraKeys, k)
	}
	sort.Strings(extraKeys)
	for _, k := range extraKeys {
		params = append(params, [2]string{k, cfg.Extra[k]})
	}
	params = append(params, [2]string{timestampParam, strconv.FormatInt(p.now().UnixMilli(), 10)})

	replaced := make(map[string]bool, len(params))
	for _, kv := range params {
		replaced[kv[0]] = true
	}

	base, query, fragment := splitURL(rawURL)
	segments := filterSegments(query, replaced)
	if query == "" && hasQueryMark(base, fragment, rawURL) {
		// keep a bare "?" recoverable by Strip
		segments = append(segments, "")
	}
	for _, kv := range params {
		segments = append(segments, url.QueryEscape(kv[0])+"="+url.QueryEscape(kv[1]))
	}

	return base + "?" + strings.Join(segments, "&") + fragment
}

// Strip removes every parameter Rewrite may have added. It is the inverse of
// Rewrite for URLs that did not already carry one of those parameters.
func (p *AffiliateProcessor) Strip(rawURL string) string {
	if !isRewritableURL(rawURL) {
		return rawURL
	}

	base, query, fragment := splitURL(rawURL)
	if query == "" {
		return rawURL
	}

	segments := filterSegments(query, p.knownKeys)
	if len(segments) == 0 {
		return base + fragment
	}
	return base + "?" + strings.Join(segments, "&") + fragment
}

// RewriteCandidates returns a copy of candidates with product URLs tagged
// under settings. Previously added parameters are stripped first so that a
// cached result picks up the current settings.
func (p *AffiliateProcessor) RewriteCandidates(candidates []domain.SearchCandidate, settings domain.Settings) []domain.SearchCandidate {
	out := make([]domain.SearchCandidate, len(candidates))
	for i, c := range candidates {
		c.ProductURL = p.Rewrite(p.Strip(c.ProductURL), c.Platform, settings)
		out[i] = c
	}
	return out
}

func isRewritableURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// splitURL splits rawURL into the part before the query, the raw query
// without '?', and the fragment including '#'
func splitURL(rawURL string) (base, query, fragment string) {
	rest := rawURL
	if i := strings.Index(rest, "#"); i >= 0 {
		fragment = rest[i:]
		rest = rest[:i]
	}
	if i := strings.Index(rest, "?"); i >= 0 {
		return rest[:i], rest[i+1:], fragment
	}
	return rest, "", fragment
}

// hasQueryMark reports whether rawURL carries a '?' between base and fragment
func hasQueryMark(base, fragment, rawURL string) bool {
	return len(base)+len(fragment) < len(rawURL)
}

// filterSegments drops the raw "k=v" query segments whose key is in drop
func filterSegments(query string, drop map[string]bool) []string {
	var kept []string
	if query == "" {
		return kept
	}
	for _, seg := range strings.Split(query, "&") {
		key := seg
		if i := strings.Index(seg, "="); i >= 0 {
			key = seg[:i]
		}
		if unescaped, err := url.QueryUnescape(key); err == nil {
			key = unescaped
		}
		if drop[key] {
			continue
		}
		kept = append(kept, seg)
	}
	return kept
}
