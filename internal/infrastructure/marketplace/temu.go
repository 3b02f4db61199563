package marketplace

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/pricelens/backend/internal/domain"
)

// Temu searches Temu by keyword
type Temu struct {
	http    *httpClient
	baseURL string
}

// NewTemu creates the Temu adapter
func NewTemu(cfg Config) (*Temu, error) {
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("temu: invalid base url %q: %w", cfg.BaseURL, err)
	}
	return &Temu{
		http:    newHTTPClient(domain.PlatformTemu, cfg),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}, nil
}

func (t *Temu) Platform() string { return domain.PlatformTemu }

type temuGoods struct {
	GoodsName string `json:"goods_name"`
	PriceInfo struct {
		Price    int64  `json:"price"` // minor units
		Currency string `json:"currency"`
	} `json:"price_info"`
	ThumbURL   string  `json:"thumb_url"`
	LinkURL    string  `json:"link_url"`
	MallRating float64 `json:"mall_rating"`
	CommentNum string  `json:"comment_num"` // e.g. "1.2K"
	BrandName  string  `json:"brand_name"`
	CatName    string  `json:"cat_name"`
	ShipFee    int64   `json:"shipping_fee"` // minor units
}

type temuResponse struct {
	Success bool `json:"success"`
	Result  struct {
		GoodsList []temuGoods `json:"goods_list"`
	} `json:"result"`
	ErrorMsg string `json:"error_msg"`
}

// Search runs a keyword search
func (t *Temu) Search(ctx context.Context, query domain.NormalizedQuery) (*domain.PlatformSearchResult, error) {
	params := url.Values{}
	params.Set("search_key", query.Text())
	params.Set("page_size", strconv.Itoa(defaultPageSize))
	reqURL := fmt.Sprintf("%s/api/search/goods?%s", t.baseURL, params.Encode())

	var resp temuResponse
	if err := t.http.getJSON(ctx, reqURL, nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, domain.NewPlatformError(domain.PlatformTemu,
			fmt.Errorf("%w: %s", domain.ErrPlatformUnavailable, resp.ErrorMsg))
	}

	result := &domain.PlatformSearchResult{
		Platform:   domain.PlatformTemu,
		Candidates: make([]domain.SearchCandidate, 0, len(resp.Result.GoodsList)),
		SourceURL:  reqURL,
	}
	for _, g := range resp.Result.GoodsList {
		if strings.TrimSpace(g.GoodsName) == "" || g.LinkURL == "" {
			continue
		}
		currency := strings.ToUpper(g.PriceInfo.Currency)
		if currency == "" {
			currency = "USD"
		}
		result.Candidates = append(result.Candidates, domain.SearchCandidate{
			Title:        strings.TrimSpace(g.GoodsName),
			Price:        float64(g.PriceInfo.Price) / 100,
			Currency:     currency,
			ImageURL:     absoluteURL(t.baseURL, g.ThumbURL),
			ProductURL:   absoluteURL(t.baseURL, g.LinkURL),
			Platform:     domain.PlatformTemu,
			SellerRating: clampRating(g.MallRating),
			ReviewCount:  parseCount(g.CommentNum),
			ShippingCost: float64(g.ShipFee) / 100,
			MatchType:    domain.MatchTypeSimilar,
			Brand:        g.BrandName,
			Category:     g.CatName,
		})
	}

	log.Printf("[TEMU] Found %d goods for query: %q", len(result.Candidates), query.Text())
	return result, nil
}
