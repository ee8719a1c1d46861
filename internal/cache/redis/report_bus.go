package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/signalist/internal/domain"
)

// Channel and stream names for cycle reports.
const (
	CycleChannel = "ch:cycle"
	CycleStream  = "stream:cycles"
)

// cycleStreamMaxLen caps CycleStream via XADD MAXLEN ~.
const cycleStreamMaxLen int64 = 10000

// ReportBus shares cycle reports between replicas. Publish broadcasts each
// report on CycleChannel for live listeners and appends it to CycleStream as
// a bounded history; Follow subscribes to CycleChannel.
type ReportBus struct {
	rdb *redis.Client
}

// NewReportBus creates a ReportBus backed by the given Client.
func NewReportBus(c *Client) *ReportBus {
	return &ReportBus{rdb: c.Underlying()}
}

// Publish encodes report as JSON and sends PUBLISH and XADD in one pipeline.
// Both commands are attempted even if the first fails.
func (rb *ReportBus) Publish(ctx context.Context, report domain.CycleReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("redis: encode cycle report %s: %w", report.CycleID, err)
	}

	pipe := rb.rdb.Pipeline()
	pub := pipe.Publish(ctx, CycleChannel, payload)
	add := pipe.XAdd(ctx, historyArgs(payload))
	_, _ = pipe.Exec(ctx)

	var errs []error
	if err := pub.Err(); err != nil {
		errs = append(errs, fmt.Errorf("redis: publish %s: %w", CycleChannel, err))
	}
	if err := add.Err(); err != nil {
		errs = append(errs, fmt.Errorf("redis: append %s: %w", CycleStream, err))
	}
	return errors.Join(errs...)
}

func historyArgs(payload []byte) *redis.XAddArgs {
	return &redis.XAddArgs{
		Stream: CycleStream,
		MaxLen: cycleStreamMaxLen,
		Approx: true,
		Values: map[string]any{"report": payload},
	}
}

// Follow returns report payloads published on CycleChannel by any replica.
// The subscription and the returned channel close when ctx is done.
func (rb *ReportBus) Follow(ctx context.Context) (<-chan []byte, error) {
	pubsub := rb.rdb.Subscribe(ctx, CycleChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", CycleChannel, err)
	}

	out := make(chan []byte, 64)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Compile-time interface check.
var _ domain.ReportFeed = (*ReportBus)(nil)
