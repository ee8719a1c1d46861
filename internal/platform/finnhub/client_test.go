package finnhub

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/signalist/internal/domain"
)

func newTestServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/quote" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("token") != "secret" {
			t.Errorf("missing token")
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Quote(t *testing.T) {
	srv := newTestServer(t, http.StatusOK,
		`{"c":189.98,"d":1.5,"dp":0.7958,"h":190.3,"l":187.1,"o":188,"pc":188.48,"t":1760788800,"v":53211000}`)
	c := NewClient(Options{BaseURL: srv.URL, APIKey: "secret"})

	q, err := c.Quote(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if q.Symbol != "AAPL" {
		t.Fatalf("Symbol = %q", q.Symbol)
	}
	if q.Price.String() != "189.98" || q.ChangePercent.String() != "0.7958" || q.Volume.String() != "53211000" {
		t.Fatalf("unexpected quote %+v", q)
	}
	if q.PreviousClose.String() != "188.48" {
		t.Fatalf("PreviousClose = %s", q.PreviousClose)
	}
}

func TestClient_QuoteErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"server error", http.StatusBadGateway, "bad gateway", domain.ErrUpstreamStatus},
		{"rate limited", http.StatusTooManyRequests, `{"error":"API limit reached"}`, domain.ErrRateLimited},
		{"unauthorized", http.StatusUnauthorized, `{"error":"Invalid API key"}`, domain.ErrUnauthorized},
		{"unknown symbol", http.StatusOK, `{"c":0,"d":null,"dp":null,"h":0,"l":0,"o":0,"pc":0,"t":0}`, domain.ErrMalformedQuote},
		{"negative price", http.StatusOK, `{"c":-1,"t":1760788800}`, domain.ErrMalformedQuote},
		{"not json", http.StatusOK, `<html>`, domain.ErrMalformedQuote},
		{"missing price", http.StatusOK, `{"t":1760788800}`, domain.ErrMalformedQuote},
		{"oversized body", http.StatusOK,
			`{"c":189.98,"t":1760788800}` + strings.Repeat(" ", maxBodyBytes), domain.ErrMalformedQuote},
		{"oversized error body", http.StatusBadGateway, strings.Repeat("x", 2*maxBodyBytes), domain.ErrUpstreamStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.status, tt.body)
			c := NewClient(Options{BaseURL: srv.URL, APIKey: "secret"})
			_, err := c.Quote(context.Background(), "ZZZZ")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if strings.Contains(err.Error(), "secret") {
				t.Fatalf("error leaks api key: %v", err)
			}
		})
	}
}

func TestClient_QuoteTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, APIKey: "secret", RequestTimeout: 50 * time.Millisecond})
	start := time.Now()
	if _, err := c.Quote(context.Background(), "AAPL"); err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("request was not bounded by timeout")
	}
}

type fakeLimiter struct {
	mu    sync.Mutex
	calls int
	limit int
	err   error
}

func (f *fakeLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return true, nil
}

func (f *fakeLimiter) Wait(_ context.Context, key string, limit int, window time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.limit = limit
	if key != rateLimitKey || window != time.Minute {
		return errors.New("unexpected limiter arguments")
	}
	return f.err
}

func TestClient_UsesRateLimiter(t *testing.T) {
	srv := newTestServer(t, http.StatusOK, `{"c":10,"t":1760788800,"v":5}`)
	lim := &fakeLimiter{}
	c := NewClient(Options{BaseURL: srv.URL, APIKey: "secret", RatePerMinute: 30, Limiter: lim})

	if _, err := c.Quote(context.Background(), "AAPL"); err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if lim.calls != 1 || lim.limit != 30 {
		t.Fatalf("limiter calls=%d limit=%d", lim.calls, lim.limit)
	}

	lim.err = domain.ErrRateLimited
	if _, err := c.Quote(context.Background(), "AAPL"); !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
}
