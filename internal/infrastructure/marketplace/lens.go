package marketplace

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/pricelens/backend/internal/domain"
)

// Lens is the generic visual search provider used as the last step of the
// reverse image chain
type Lens struct {
	http    *httpClient
	baseURL string
	apiKey  string
}

// NewLens creates the visual search adapter
func NewLens(cfg Config) (*Lens, error) {
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("lens: invalid base url %q: %w", cfg.BaseURL, err)
	}
	return &Lens{
		http:    newHTTPClient(domain.PlatformLens, cfg),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
	}, nil
}

func (l *Lens) Platform() string { return domain.PlatformLens }

type lensRequest struct {
	URL   string `json:"url,omitempty"`
	Image string `json:"image,omitempty"` // base64
}

type lensMatch struct {
	Title     string `json:"title"`
	Link      string `json:"link"`
	Source    string `json:"source"`
	Thumbnail string `json:"thumbnail"`
	Price     *struct {
		Value          string  `json:"value"`
		ExtractedValue float64 `json:"extracted_value"`
		Currency       string  `json:"currency"`
	} `json:"price"`
	Rating  float64 `json:"rating"`
	Reviews int     `json:"reviews"`
	Score   float64 `json:"score"` // 0-1
}

type lensResponse struct {
	VisualMatches []lensMatch `json:"visual_matches"`
}

// SearchByImage asks the provider for visually similar products
func (l *Lens) SearchByImage(ctx context.Context, query domain.ImageQuery) (*domain.PlatformSearchResult, error) {
	body := lensRequest{URL: query.ImageURL}
	if len(query.Data) > 0 {
		body.Image = base64.StdEncoding.EncodeToString(query.Data)
	}

	var headers map[string]string
	if l.apiKey != "" {
		headers = map[string]string{"Authorization": "Bearer " + l.apiKey}
	}

	reqURL := l.baseURL + "/v1/visual-search"
	var resp lensResponse
	if err := l.http.postJSON(ctx, reqURL, headers, body, &resp); err != nil {
		return nil, err
	}

	result := &domain.PlatformSearchResult{
		Platform:   domain.PlatformLens,
		Candidates: make([]domain.SearchCandidate, 0, len(resp.VisualMatches)),
		SourceURL:  reqURL,
	}
	for _, m := range resp.VisualMatches {
		// only shopping matches carry a price
		if m.Price == nil || strings.TrimSpace(m.Title) == "" || m.Link == "" {
			continue
		}
		price := m.Price.ExtractedValue
		if price == 0 {
			price = parsePrice(m.Price.Value)
		}
		currency := strings.ToUpper(m.Price.Currency)
		if currency == "" {
			currency = currencyFromSymbol(m.Price.Value)
		}
		result.Candidates = append(result.Candidates, domain.SearchCandidate{
			Title:           strings.TrimSpace(m.Title),
			Price:           price,
			Currency:        currency,
			ImageURL:        m.Thumbnail,
			ProductURL:      m.Link,
			Platform:        domain.PlatformLens,
			SellerRating:    clampRating(m.Rating),
			ReviewCount:     m.Reviews,
			MatchType:       domain.MatchTypeVisualSimilar,
			ConfidenceScore: similarityScore(m.Score),
		})
	}

	log.Printf("[LENS] %d shopping matches", len(result.Candidates))
	return result, nil
}
