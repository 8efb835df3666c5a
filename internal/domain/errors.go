package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidRecord is returned when a record is missing required fields
	// at a point where the validator should already have rejected it.
	ErrInvalidRecord = errors.New("invalid deal record")

	// ErrChannelUnreachable is returned when the channel-send capability
	// cannot be reached at all.
	ErrChannelUnreachable = errors.New("channel capability unreachable")

	// ErrRateWaitExceeded is returned when a delivery attempt spent its
	// whole wait budget on rate-limiter denials.
	ErrRateWaitExceeded = errors.New("rate limiter wait budget exceeded")
)

// SendError reports a non-success response from the channel provider.
// RetryAfter is only set when the provider supplied a throttle hint.
type SendError struct {
	StatusCode  int
	RetryAfter  time.Duration
	Description string
}

func (e *SendError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("channel send failed: status %d: %s", e.StatusCode, e.Description)
	}
	return fmt.Sprintf("channel send failed: status %d", e.StatusCode)
}

// Throttled reports whether the provider asked us to slow down.
func (e *SendError) Throttled() bool {
	return e.StatusCode == 429
}

// Permanent reports whether retrying cannot fix the failure (bad request,
// bad credentials, forbidden target). 429 is transient by definition.
func (e *SendError) Permanent() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500 && e.StatusCode != 429
}
