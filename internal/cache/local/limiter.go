// Package local provides in-process stand-ins for the Redis-backed
// coordination primitives, used when a single replica runs without Redis.
package local

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/signalist/internal/domain"
)

// RateLimiter implements domain.RateLimiter with one token bucket per key.
// A bucket refills limit tokens per window and holds at most limit tokens.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	limit   int
	window  time.Duration
	limiter *rate.Limiter
}

// NewRateLimiter creates an empty RateLimiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{buckets: make(map[string]*bucket)}
}

// get returns the bucket for key, replacing it when the caller asks for a
// different limit or window than the one it was built with.
func (rl *RateLimiter) get(key string, limit int, window time.Duration) (*rate.Limiter, error) {
	if limit <= 0 || window <= 0 {
		return nil, fmt.Errorf("local: rate limit %s: limit and window must be positive", key)
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok || b.limit != limit || b.window != window {
		every := window / time.Duration(limit)
		b = &bucket{
			limit:   limit,
			window:  window,
			limiter: rate.NewLimiter(rate.Every(every), limit),
		}
		rl.buckets[key] = b
	}
	return b.limiter, nil
}

// Allow reports whether one more request fits, consuming a token when it does.
func (rl *RateLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	l, err := rl.get(key, limit, window)
	if err != nil {
		return false, err
	}
	return l.Allow(), nil
}

// Wait blocks until a token is available or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context, key string, limit int, window time.Duration) error {
	l, err := rl.get(key, limit, window)
	if err != nil {
		return err
	}
	if err := l.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("local: rate limit wait %s: %w: %w", key, domain.ErrRateLimited, ctxErr)
		}
		// rate reports a wait that would outlast the deadline before it expires.
		return fmt.Errorf("local: rate limit wait %s: %w: %v", key, domain.ErrRateLimited, err)
	}
	return nil
}

var _ domain.RateLimiter = (*RateLimiter)(nil)
