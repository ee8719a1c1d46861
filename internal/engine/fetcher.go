package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/signalist/internal/domain"
)

// DefaultMaxInFlight caps concurrent external calls when no limit is configured.
const DefaultMaxInFlight = 8

// Fetcher fans quote requests out over a bounded number of goroutines.
type Fetcher struct {
	source      domain.QuoteSource
	maxInFlight int
	logger      *slog.Logger
}

// NewFetcher creates a Fetcher. A maxInFlight below 1 uses DefaultMaxInFlight.
func NewFetcher(source domain.QuoteSource, maxInFlight int, logger *slog.Logger) *Fetcher {
	if maxInFlight < 1 {
		maxInFlight = DefaultMaxInFlight
	}
	return &Fetcher{
		source:      source,
		maxInFlight: maxInFlight,
		logger:      logger.With(slog.String("component", "fetcher")),
	}
}

// FetchAll requests one quote per distinct symbol. A failed symbol is absent
// from the returned map and reported as a fetch-stage ItemError; it never
// affects the other symbols. There is no retry within a call.
func (f *Fetcher) FetchAll(ctx context.Context, symbols []string) (map[string]domain.QuoteSnapshot, []domain.ItemError) {
	var (
		mu     sync.Mutex
		quotes = make(map[string]domain.QuoteSnapshot, len(symbols))
		errs   []domain.ItemError
		seen   = make(map[string]struct{}, len(symbols))
	)

	var g errgroup.Group
	g.SetLimit(f.maxInFlight)

	for _, sym := range symbols {
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}

		g.Go(func() error {
			q, err := f.source.Quote(ctx, sym)
			if err == nil && q.Symbol != sym {
				err = fmt.Errorf("%w: asked for %s, got %s", domain.ErrMalformedQuote, sym, q.Symbol)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				f.logger.WarnContext(ctx, "quote fetch failed",
					slog.String("symbol", sym),
					slog.String("error", err.Error()),
				)
				errs = append(errs, domain.ItemError{Stage: domain.StageFetch, Key: sym, Err: err})
				return nil
			}
			quotes[sym] = q
			return nil
		})
	}
	_ = g.Wait()

	return quotes, errs
}
