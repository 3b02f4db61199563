// Package marketplace holds the adapters that search individual
// marketplaces and visual search providers.
package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/pricelens/backend/internal/domain"
)

const (
	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"
	maxBodyBytes     = 4 << 20
	maxAttempts      = 2
	defaultPageSize  = 20
)

// Config configures one marketplace adapter
type Config struct {
	BaseURL string
	APIKey  string
	// RequestsPerSecond throttles outbound requests to the host. Zero means 2/s.
	RequestsPerSecond float64
	// Client overrides the HTTP client, mainly for tests
	Client *http.Client
}

// httpClient is the transport shared by all adapters: a politeness limiter
// per host, browser headers, one retry on 5xx and errors mapped to
// *domain.PlatformError
type httpClient struct {
	platform string
	client   *http.Client
	limiter  *rate.Limiter
	backoff  func(attempt int) time.Duration
}

func newHTTPClient(platform string, cfg Config) *httpClient {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}

	return &httpClient{
		platform: platform,
		client:   client,
		limiter:  rate.NewLimiter(rate.Limit(rps), 4),
		backoff:  exponentialBackoff,
	}
}

// exponentialBackoff returns 250ms, 500ms, 1s, ... for attempts 1, 2, 3, ...
func exponentialBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return 250 * time.Millisecond << (attempt - 1)
}

type requestBuilder func(ctx context.Context) (*http.Request, error)

// do executes the request built by build, retrying once on 5xx or a
// transport error, and returns the response body of a 2xx answer
func (c *httpClient) do(ctx context.Context, build requestBuilder) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, c.fail(ctx, fmt.Errorf("politeness limiter: %w", err))
		}

		req, err := build(ctx)
		if err != nil {
			return nil, c.fail(ctx, fmt.Errorf("failed to create request: %w", err))
		}
		if req.Header.Get("User-Agent") == "" {
			req.Header.Set("User-Agent", browserUserAgent)
		}
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, c.fail(ctx, err)
			}
			log.Printf("[%s] Request error (attempt %d): %v", strings.ToUpper(c.platform), attempt, err)
			lastErr = err
			if !c.sleep(ctx, attempt) {
				return nil, c.fail(ctx, ctx.Err())
			}
			continue
		}

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		resp.Body.Close()
		if readErr != nil {
			return nil, c.fail(ctx, fmt.Errorf("failed to read body: %w", readErr))
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, domain.NewPlatformError(c.platform, &domain.RateLimitError{
				Platform:   c.platform,
				RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			})
		case resp.StatusCode >= 500:
			log.Printf("[%s] API error (attempt %d) - Status: %d", strings.ToUpper(c.platform), attempt, resp.StatusCode)
			lastErr = fmt.Errorf("%w: status %d", domain.ErrPlatformUnavailable, resp.StatusCode)
			if !c.sleep(ctx, attempt) {
				return nil, c.fail(ctx, ctx.Err())
			}
			continue
		case resp.StatusCode == http.StatusNotFound:
			return nil, domain.NewPlatformError(c.platform, domain.ErrNoResults)
		case resp.StatusCode < 200 || resp.StatusCode > 299:
			return nil, c.fail(ctx, fmt.Errorf("%w: status %d", domain.ErrPlatformUnavailable, resp.StatusCode))
		}

		return body, nil
	}

	return nil, c.fail(ctx, lastErr)
}

// sleep waits before the next attempt; false means ctx ended first
func (c *httpClient) sleep(ctx context.Context, attempt int) bool {
	if attempt >= maxAttempts {
		return true
	}
	timer := time.NewTimer(c.backoff(attempt))
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// fail converts err into the platform's error, classifying deadline
// expiry as a timeout
func (c *httpClient) fail(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.NewPlatformError(c.platform, domain.ErrTimeout)
	}
	return domain.NewPlatformError(c.platform, err)
}

func (c *httpClient) getJSON(ctx context.Context, reqURL string, headers map[string]string, out interface{}) error {
	body, err := c.do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		return req, nil
	})
	if err != nil {
		return err
	}
	return c.decode(body, out)
}

func (c *httpClient) postJSON(ctx context.Context, reqURL string, headers map[string]string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	body, err := c.do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		return req, nil
	})
	if err != nil {
		return err
	}
	return c.decode(body, out)
}

func (c *httpClient) decode(body []byte, out interface{}) error {
	if err := json.Unmarshal(body, out); err != nil {
		log.Printf("[%s] JSON decode error: %v", strings.ToUpper(c.platform), err)
		return domain.NewPlatformError(c.platform, fmt.Errorf("unexpected response: %w", err))
	}
	return nil
}

// getHTML fetches a page and parses it into a goquery.Document
func (c *httpClient) getHTML(ctx context.Context, reqURL string) (*goquery.Document, error) {
	body, err := c.do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, domain.NewPlatformError(c.platform, fmt.Errorf("failed to parse HTML: %w", err))
	}
	return doc, nil
}

// parseRetryAfter reads a Retry-After header in seconds, defaulting to a minute
func parseRetryAfter(v string) time.Duration {
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return time.Minute
}

var priceNumberRegex = regexp.MustCompile(`[0-9][0-9,]*(?:\.[0-9]+)?`)

// parsePrice extracts the first amount from strings like "US $1,299.99 - 1,400"
func parsePrice(s string) float64 {
	m := priceNumberRegex.FindString(s)
	if m == "" {
		return 0
	}
	v, _ := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
	return v
}

// parseCount extracts an integer from strings like "(1,024 reviews)" or "2.3K+ sold"
func parseCount(s string) int {
	s = strings.ToLower(strings.TrimSpace(s))
	m := priceNumberRegex.FindString(s)
	if m == "" {
		return 0
	}
	v, _ := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
	rest := s[strings.Index(s, m)+len(m):]
	switch {
	case strings.HasPrefix(rest, "k"):
		v *= 1000
	case strings.HasPrefix(rest, "m"):
		v *= 1000000
	}
	return int(v)
}

// currencyFromSymbol maps a price string's symbol to an ISO code
func currencyFromSymbol(s string) string {
	switch {
	case strings.Contains(s, "€"):
		return "EUR"
	case strings.Contains(s, "£"):
		return "GBP"
	case strings.Contains(s, "$"):
		return "USD"
	default:
		return ""
	}
}
