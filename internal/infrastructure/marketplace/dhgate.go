package marketplace

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	log "github.com/sirupsen/logrus"

	"github.com/pricelens/backend/internal/domain"
)

// DHgate scrapes DHgate's wholesale search result page
type DHgate struct {
	http    *httpClient
	baseURL string
}

// NewDHgate creates the DHgate adapter
func NewDHgate(cfg Config) (*DHgate, error) {
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("dhgate: invalid base url %q: %w", cfg.BaseURL, err)
	}
	return newDHgate(cfg.Client, cfg.BaseURL, cfg.RequestsPerSecond), nil
}

// newDHgate lets tests inject the client and base URL
func newDHgate(client *http.Client, baseURL string, rps float64) *DHgate {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &DHgate{
		http:    newHTTPClient(domain.PlatformDHgate, Config{Client: client, RequestsPerSecond: rps}),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (d *DHgate) Platform() string { return domain.PlatformDHgate }

// Search fetches the search page for query and extracts the listed products
func (d *DHgate) Search(ctx context.Context, query domain.NormalizedQuery) (*domain.PlatformSearchResult, error) {
	params := url.Values{}
	params.Set("searchkey", query.Text())
	params.Set("catalog", "")
	reqURL := fmt.Sprintf("%s/wholesale/search.do?%s", d.baseURL, params.Encode())

	doc, err := d.http.getHTML(ctx, reqURL)
	if err != nil {
		return nil, err
	}

	candidates := d.extractItems(doc)
	log.Printf("[DHGATE] Parsed %d items for query: %q", len(candidates), query.Text())

	return &domain.PlatformSearchResult{
		Platform:   domain.PlatformDHgate,
		Candidates: candidates,
		SourceURL:  reqURL,
	}, nil
}

// extractItems maps every product tile on the page to a candidate
func (d *DHgate) extractItems(doc *goquery.Document) []domain.SearchCandidate {
	items := make([]domain.SearchCandidate, 0)
	seen := make(map[string]bool)

	doc.Find("div.gitem, li.gitem, div.list-item").Each(func(_ int, s *goquery.Selection) {
		link := s.Find("a.item-title, .pro-title a, h3 a").First()
		title := strings.TrimSpace(link.AttrOr("title", ""))
		if title == "" {
			title = strings.TrimSpace(link.Text())
		}
		href, ok := link.Attr("href")
		if title == "" || !ok {
			return
		}
		productURL := absoluteURL(d.baseURL, href)
		if seen[productURL] {
			return
		}
		seen[productURL] = true

		priceText := strings.TrimSpace(s.Find(".price, .pro-price").First().Text())
		currency := currencyFromSymbol(priceText)
		if currency == "" {
			currency = "USD"
		}

		img := s.Find("img").First()
		imageURL := img.AttrOr("data-src", "")
		if imageURL == "" {
			imageURL = img.AttrOr("src", "")
		}

		rating, _ := strconv.ParseFloat(s.Find("[data-rate]").First().AttrOr("data-rate", ""), 64)

		items = append(items, domain.SearchCandidate{
			Title:        title,
			Price:        parsePrice(priceText),
			Currency:     currency,
			ImageURL:     absoluteURL(d.baseURL, imageURL),
			ProductURL:   productURL,
			Platform:     domain.PlatformDHgate,
			SellerRating: clampRating(rating),
			ReviewCount:  parseCount(s.Find(".review-count, .reviews").First().Text()),
			ShippingCost: parseShipping(s.Find(".shipping, .ship-cost").First().Text()),
			MatchType:    domain.MatchTypeSimilar,
			Brand:        strings.TrimSpace(s.AttrOr("data-brand", "")),
			Category:     strings.TrimSpace(s.AttrOr("data-category", "")),
		})
	})

	return items
}

// parseShipping reads "Free Shipping" as zero, otherwise the listed amount
func parseShipping(s string) float64 {
	if strings.Contains(strings.ToLower(s), "free") {
		return 0
	}
	return parsePrice(s)
}
