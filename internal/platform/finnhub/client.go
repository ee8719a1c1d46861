// Package finnhub is the quote source adapter for the Finnhub REST API.
package finnhub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/alanyoungcy/signalist/internal/domain"
)

// DefaultBaseURL is the public Finnhub API root.
const DefaultBaseURL = "https://finnhub.io/api/v1"

const (
	rateLimitKey    = "finnhub:quote"
	maxErrorBodyLen = 256
	// maxBodyBytes bounds how much of a response is read. A quote is well
	// under 1 KiB.
	maxBodyBytes = 1 << 20
)

// Options configures a Client.
type Options struct {
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration
	// RatePerMinute caps requests across every process sharing Limiter.
	// Zero disables the limiter.
	RatePerMinute int
	Limiter       domain.RateLimiter
}

// Client implements domain.QuoteSource.
type Client struct {
	baseURL       string
	apiKey        string
	httpClient    *http.Client
	limiter       domain.RateLimiter
	ratePerMinute int
	now           func() time.Time
}

// NewClient creates a Finnhub client. Every request is bounded by
// opts.RequestTimeout (10s when unset).
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	c := &Client{
		baseURL: opts.BaseURL,
		apiKey:  opts.APIKey,
		httpClient: &http.Client{
			Timeout: opts.RequestTimeout,
		},
		now: time.Now,
	}
	if opts.Limiter != nil && opts.RatePerMinute > 0 {
		c.limiter = opts.Limiter
		c.ratePerMinute = opts.RatePerMinute
	}
	return c
}

// Quote fetches the current quote for symbol.
func (c *Client) Quote(ctx context.Context, symbol string) (domain.QuoteSnapshot, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, rateLimitKey, c.ratePerMinute, time.Minute); err != nil {
			return domain.QuoteSnapshot{}, fmt.Errorf("finnhub: quote %s: rate limit: %w", symbol, err)
		}
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("token", c.apiKey)

	body, err := c.doGet(ctx, "/quote?"+params.Encode())
	if err != nil {
		return domain.QuoteSnapshot{}, fmt.Errorf("finnhub: quote %s: %w", symbol, err)
	}

	var q APIQuote
	if err := json.Unmarshal(body, &q); err != nil {
		return domain.QuoteSnapshot{}, fmt.Errorf("finnhub: decode quote %s: %w: %v", symbol, domain.ErrMalformedQuote, err)
	}
	snap, err := q.ToDomainQuote(symbol, c.now().UTC())
	if err != nil {
		return domain.QuoteSnapshot{}, fmt.Errorf("finnhub: %w", err)
	}
	return snap, nil
}

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// The request URL carries the API token.
		var ue *url.Error
		if errors.As(err, &ue) {
			return nil, fmt.Errorf("http request: %w", ue.Err)
		}
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("%w: response body exceeds %d bytes", domain.ErrMalformedQuote, maxBodyBytes)
	}
	return body, nil
}

func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	if len(bodyStr) > maxErrorBodyLen {
		bodyStr = bodyStr[:maxErrorBodyLen] + "..."
	}
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %w: HTTP %d: %s", domain.ErrUpstreamStatus, domain.ErrUnauthorized, statusCode, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w: HTTP %d: %s", domain.ErrUpstreamStatus, domain.ErrRateLimited, statusCode, bodyStr)
	default:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrUpstreamStatus, statusCode, bodyStr)
	}
}

// Compile-time interface check.
var _ domain.QuoteSource = (*Client)(nil)
