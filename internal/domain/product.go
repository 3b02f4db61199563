package domain

import (
	"strings"
	"time"
)

// Match types reported by marketplaces for a candidate
const (
	MatchTypeExact         = "exact"
	MatchTypeSimilar       = "similar"
	MatchTypeVisualSimilar = "visual-similar"
)

// Price is a currency-tagged amount
type Price struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// ProductDescriptor represents the product the user is viewing, as extracted
// by the extension's page scraper. Only Title is required.
type ProductDescriptor struct {
	ID             string `json:"id,omitempty"`
	Title          string `json:"title"`
	ImageURL       string `json:"imageUrl,omitempty"`
	Price          *Price `json:"price,omitempty"`
	Brand          string `json:"brand,omitempty"`
	Category       string `json:"category,omitempty"`
	SourcePlatform string `json:"sourcePlatform,omitempty"`
}

// SearchCandidate is one result returned by one marketplace
type SearchCandidate struct {
	Title           string   `json:"title"`
	Price           float64  `json:"price"`
	Currency        string   `json:"currency"`
	ImageURL        string   `json:"imageUrl,omitempty"`
	ProductURL      string   `json:"productUrl"`
	Platform        string   `json:"platform"`
	SellerRating    float64  `json:"sellerRating"` // 0-5
	ReviewCount     int      `json:"reviewCount"`
	ShippingCost    float64  `json:"shippingCost"`
	MatchType       string   `json:"matchType"`
	ConfidenceScore float64  `json:"confidenceScore"` // 0-100, assigned by the scorer
	Brand           string   `json:"brand,omitempty"`
	Category        string   `json:"category,omitempty"`
	SavingsPercent  *float64 `json:"savingsPercent,omitempty"`
	IsDeal          bool     `json:"isDeal,omitempty"`
}

// NormalizedQuery is the platform-independent search query built from a descriptor
type NormalizedQuery struct {
	Brand    string   `json:"brand,omitempty"`
	Keywords []string `json:"keywords"`
}

// Text joins the query into the free-text form most marketplaces accept
func (q NormalizedQuery) Text() string {
	parts := make([]string, 0, len(q.Keywords)+1)
	if q.Brand != "" {
		parts = append(parts, q.Brand)
	}
	parts = append(parts, q.Keywords...)
	return strings.Join(parts, " ")
}

// ImageQuery is the input of an image-capable marketplace search.
// Exactly one of ImageURL or Data is set.
type ImageQuery struct {
	ImageURL string `json:"imageUrl,omitempty"`
	Data     []byte `json:"-"`
	MimeType string `json:"mimeType,omitempty"`
	Title    string `json:"title,omitempty"` // optional hint used for scoring
}

// PlatformSearchResult is the successful output of a marketplace adapter
type PlatformSearchResult struct {
	Platform   string            `json:"platform"`
	Candidates []SearchCandidate `json:"candidates"`
	SourceURL  string            `json:"sourceUrl"`
}

// Outcomes of an aggregate search
const (
	OutcomeMatched   = "matched"
	OutcomeNoResults = "no_results"
)

// AggregateResult is the merged, scored and sorted candidate set for one
// request. It is the unit that gets cached.
type AggregateResult struct {
	Candidates []SearchCandidate         `json:"candidates"`
	Platforms  []string                  `json:"platforms"`
	Errors     map[string]*PlatformError `json:"errors,omitempty"`
	Outcome    string                    `json:"outcome"`
	CreatedAt  time.Time                 `json:"createdAt"`
	Cached     bool                      `json:"cached"`
}

// CacheEntry wraps an AggregateResult with its expiry
type CacheEntry struct {
	Result    AggregateResult `json:"result"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

// Expired reports whether the entry can no longer be served at now
func (e CacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}
