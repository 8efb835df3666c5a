// Package ratelimit bounds outbound channel sends: a token budget per
// rolling window plus a minimum spacing floor between consecutive grants.
package ratelimit

import (
	"sync"
	"time"

	"github.com/dealwatch/backend/internal/domain"
)

// Decision is the result of one Acquire call. RetryAfter is only set on
// denial and is the wait until the next token or window boundary.
type Decision struct {
	Granted    bool
	RetryAfter time.Duration
}

// Budget is a snapshot of the limiter state, for logging and tests.
type Budget struct {
	WindowStart     time.Time
	TokensRemaining int
	WindowCapacity  int
	MinSpacing      time.Duration
}

// Limiter enforces at most capacity grants within any rolling window, with
// consecutive grants spaced at least minSpacing apart. Acquire never
// blocks; waiting on a denial is the caller's responsibility.
type Limiter struct {
	mu         sync.Mutex
	capacity   int
	window     time.Duration
	minSpacing time.Duration
	grants     []time.Time
	lastGrant  time.Time
	clock      domain.Clock
}

// New creates a limiter. capacity and window must be positive; minSpacing
// may be zero to disable the spacing floor.
func New(capacity int, window, minSpacing time.Duration, clock domain.Clock) *Limiter {
	if capacity <= 0 {
		capacity = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &Limiter{
		capacity:   capacity,
		window:     window,
		minSpacing: minSpacing,
		clock:      clock,
	}
}

// Acquire either consumes a token and returns a grant, or returns the wait
// until a grant would be possible. One call per send attempt.
func (l *Limiter) Acquire() Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	l.prune(now)

	var wait time.Duration
	if len(l.grants) >= l.capacity {
		wait = l.grants[0].Add(l.window).Sub(now)
	}
	if !l.lastGrant.IsZero() {
		if spacing := l.lastGrant.Add(l.minSpacing).Sub(now); spacing > wait {
			wait = spacing
		}
	}

	if wait > 0 {
		return Decision{RetryAfter: wait}
	}

	l.grants = append(l.grants, now)
	l.lastGrant = now
	return Decision{Granted: true}
}

// Snapshot returns the current budget without consuming a token.
func (l *Limiter) Snapshot() Budget {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	l.prune(now)

	start := now
	if len(l.grants) > 0 {
		start = l.grants[0]
	}
	return Budget{
		WindowStart:     start,
		TokensRemaining: l.capacity - len(l.grants),
		WindowCapacity:  l.capacity,
		MinSpacing:      l.minSpacing,
	}
}

// prune drops grants that fell out of the rolling window. Caller holds mu.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.grants) && !l.grants[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.grants = append(l.grants[:0], l.grants[i:]...)
	}
}
