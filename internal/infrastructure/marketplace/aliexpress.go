package marketplace

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/pricelens/backend/internal/domain"
)

// AliExpress searches AliExpress by keyword and by image
type AliExpress struct {
	http    *httpClient
	baseURL string
	apiKey  string
}

// NewAliExpress creates the AliExpress adapter
func NewAliExpress(cfg Config) (*AliExpress, error) {
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("aliexpress: invalid base url %q: %w", cfg.BaseURL, err)
	}
	return &AliExpress{
		http:    newHTTPClient(domain.PlatformAliExpress, cfg),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
	}, nil
}

func (a *AliExpress) Platform() string { return domain.PlatformAliExpress }

type aliMoney struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

type aliItem struct {
	Title       string   `json:"title"`
	SalePrice   aliMoney `json:"sale_price"`
	ImageURL    string   `json:"image_url"`
	ProductURL  string   `json:"product_url"`
	StoreRating float64  `json:"store_rating"`
	Reviews     int      `json:"reviews"`
	ShippingFee float64  `json:"shipping_fee"`
	Brand       string   `json:"brand"`
	Category    string   `json:"category"`
	Similarity  float64  `json:"similarity"` // 0-1, image search only
}

type aliResponse struct {
	Items []aliItem `json:"items"`
}

type aliImageRequest struct {
	ImageURL    string `json:"image_url,omitempty"`
	ImageBase64 string `json:"image_base64,omitempty"`
	MimeType    string `json:"mime_type,omitempty"`
	PageSize    int    `json:"page_size"`
}

// Search runs a keyword search
func (a *AliExpress) Search(ctx context.Context, query domain.NormalizedQuery) (*domain.PlatformSearchResult, error) {
	params := url.Values{}
	params.Set("q", query.Text())
	params.Set("page_size", strconv.Itoa(defaultPageSize))
	reqURL := fmt.Sprintf("%s/search?%s", a.baseURL, params.Encode())

	var resp aliResponse
	if err := a.http.getJSON(ctx, reqURL, a.headers(), &resp); err != nil {
		return nil, err
	}

	log.Printf("[ALIEXPRESS] Found %d items for query: %q", len(resp.Items), query.Text())
	return a.toResult(resp, reqURL, domain.MatchTypeSimilar), nil
}

// SearchByImage runs the native image search
func (a *AliExpress) SearchByImage(ctx context.Context, query domain.ImageQuery) (*domain.PlatformSearchResult, error) {
	body := aliImageRequest{ImageURL: query.ImageURL, MimeType: query.MimeType, PageSize: defaultPageSize}
	if len(query.Data) > 0 {
		body.ImageBase64 = base64.StdEncoding.EncodeToString(query.Data)
	}
	reqURL := a.baseURL + "/image-search"

	var resp aliResponse
	if err := a.http.postJSON(ctx, reqURL, a.headers(), body, &resp); err != nil {
		return nil, err
	}

	log.Printf("[ALIEXPRESS] Image search returned %d items", len(resp.Items))
	return a.toResult(resp, reqURL, domain.MatchTypeVisualSimilar), nil
}

func (a *AliExpress) headers() map[string]string {
	if a.apiKey == "" {
		return nil
	}
	return map[string]string{"X-API-Key": a.apiKey}
}

func (a *AliExpress) toResult(resp aliResponse, sourceURL, matchType string) *domain.PlatformSearchResult {
	result := &domain.PlatformSearchResult{
		Platform:   domain.PlatformAliExpress,
		Candidates: make([]domain.SearchCandidate, 0, len(resp.Items)),
		SourceURL:  sourceURL,
	}
	for _, it := range resp.Items {
		if strings.TrimSpace(it.Title) == "" || it.ProductURL == "" {
			continue
		}
		currency := it.SalePrice.Currency
		if currency == "" {
			currency = "USD"
		}
		result.Candidates = append(result.Candidates, domain.SearchCandidate{
			Title:           strings.TrimSpace(it.Title),
			Price:           it.SalePrice.Amount,
			Currency:        strings.ToUpper(currency),
			ImageURL:        absoluteURL(a.baseURL, it.ImageURL),
			ProductURL:      absoluteURL(a.baseURL, it.ProductURL),
			Platform:        domain.PlatformAliExpress,
			SellerRating:    clampRating(it.StoreRating),
			ReviewCount:     it.Reviews,
			ShippingCost:    it.ShippingFee,
			MatchType:       matchType,
			ConfidenceScore: similarityScore(it.Similarity),
			Brand:           it.Brand,
			Category:        it.Category,
		})
	}
	return result
}

// absoluteURL resolves ref against base; protocol-relative links get https
func absoluteURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	if strings.HasPrefix(ref, "//") {
		return "https:" + ref
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

func clampRating(r float64) float64 {
	switch {
	case r < 0:
		return 0
	case r > 5:
		return 5
	default:
		return r
	}
}

// similarityScore converts a 0-1 provider similarity to 0-100
func similarityScore(sim float64) float64 {
	switch {
	case sim <= 0:
		return 0
	case sim > 1:
		return 100
	default:
		return sim * 100
	}
}
