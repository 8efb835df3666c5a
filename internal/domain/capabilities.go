package domain

import (
	"context"
	"time"
)

// ChannelSender is the external channel-send capability. Send submits one
// formatted message and returns the provider's message identifier. Failures
// are reported as *SendError for provider responses or a plain error for
// network-level problems.
type ChannelSender interface {
	Send(ctx context.Context, msg Message) (string, error)
	CheckReachable(ctx context.Context) error
}

// DealSource produces candidate deal records from an external content
// source. A per-page error is handled inside the source (logged, zero
// records for that page); FetchDeals only errors when nothing could run.
type DealSource interface {
	FetchDeals(ctx context.Context) ([]DealRecord, error)
}

// Clock abstracts wall-clock reads and cooperative waits so retry/backoff
// logic is testable without real sleeps.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the production Clock backed by the runtime timer.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
