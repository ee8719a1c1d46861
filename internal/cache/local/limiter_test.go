package local

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alanyoungcy/signalist/internal/domain"
)

func TestRateLimiter_AllowUpToLimit(t *testing.T) {
	rl := NewRateLimiter()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "k", 3, time.Hour)
		if err != nil || !ok {
			t.Fatalf("request %d: ok=%v err=%v", i, ok, err)
		}
	}
	ok, err := rl.Allow(ctx, "k", 3, time.Hour)
	if err != nil || ok {
		t.Fatalf("fourth request admitted: ok=%v err=%v", ok, err)
	}

	// Keys are independent.
	if ok, _ := rl.Allow(ctx, "other", 3, time.Hour); !ok {
		t.Fatal("separate key should have its own bucket")
	}
}

func TestRateLimiter_WaitHonoursDeadline(t *testing.T) {
	rl := NewRateLimiter()
	ctx := context.Background()
	if err := rl.Wait(ctx, "k", 1, time.Hour); err != nil {
		t.Fatalf("first wait: %v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := rl.Wait(ctx, "k", 1, time.Hour)
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
}

func TestRateLimiter_RejectsBadLimits(t *testing.T) {
	rl := NewRateLimiter()
	if _, err := rl.Allow(context.Background(), "k", 0, time.Minute); err == nil {
		t.Fatal("expected error for zero limit")
	}
}
