package domain

import (
	"context"
	"time"
)

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string, limit int, window time.Duration) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// ReportFeed carries encoded cycle reports published by any replica.
type ReportFeed interface {
	// Follow returns report JSON as it is published. The channel closes
	// when ctx is done or the feed drops the subscription.
	Follow(ctx context.Context) (<-chan []byte, error)
}
