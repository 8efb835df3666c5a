package usecase

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/dealwatch/backend/internal/domain"
	"github.com/dealwatch/backend/internal/ratelimit"
)

const maxDescriptionRunes = 200

// DeliveryConfig holds retry and wait-budget policy for the delivery
// engine.
type DeliveryConfig struct {
	MaxAttempts   int
	BackoffBase   time.Duration
	BackoffFactor float64
	BackoffCap    time.Duration
	MaxRateWait   time.Duration
}

// DefaultDeliveryConfig returns the production retry policy.
func DefaultDeliveryConfig() DeliveryConfig {
	return DeliveryConfig{
		MaxAttempts:   5,
		BackoffBase:   time.Second,
		BackoffFactor: 2,
		BackoffCap:    32 * time.Second,
		MaxRateWait:   30 * time.Second,
	}
}

// DeliveryEngine formats an accepted, non-duplicate record into a channel
// message, submits it through the rate limiter, and retries transient
// failures with exponential backoff. Every record terminates: either Sent,
// PermanentFailure, or TransientFailure after MaxAttempts.
type DeliveryEngine struct {
	sender  domain.ChannelSender
	limiter *ratelimit.Limiter
	clock   domain.Clock
	cfg     DeliveryConfig
	logger  *slog.Logger
}

// NewDeliveryEngine creates the engine. Zero config fields fall back to
// DefaultDeliveryConfig values.
func NewDeliveryEngine(
	sender domain.ChannelSender,
	limiter *ratelimit.Limiter,
	clock domain.Clock,
	cfg DeliveryConfig,
	logger *slog.Logger,
) *DeliveryEngine {
	defaults := DefaultDeliveryConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = defaults.BackoffBase
	}
	if cfg.BackoffFactor < 1 {
		cfg.BackoffFactor = defaults.BackoffFactor
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = defaults.BackoffCap
	}
	if cfg.MaxRateWait <= 0 {
		cfg.MaxRateWait = defaults.MaxRateWait
	}
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DeliveryEngine{
		sender:  sender,
		limiter: limiter,
		clock:   clock,
		cfg:     cfg,
		logger:  logger,
	}
}

// Deliver runs the attempt chain for one record and returns its terminal
// outcome. Duplicate delivery on ambiguous failures (timeout after the
// provider actually received the message) is accepted at-least-once
// behavior; the provider offers no idempotency key.
func (e *DeliveryEngine) Deliver(ctx context.Context, record domain.DealRecord) domain.DeliveryAttempt {
	msg := FormatMessage(record)

	var last domain.DeliveryAttempt
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		last = domain.DeliveryAttempt{
			Record:        record,
			AttemptNumber: attempt,
			StartedAt:     e.clock.Now(),
		}

		if err := e.waitForSlot(ctx); err != nil {
			last.Outcome = domain.OutcomeTransientFailure
			last.Cause = err
			if ctx.Err() != nil {
				return last
			}
			e.logger.Warn("delivery attempt starved by rate limiter",
				"title", record.Title, "attempt", attempt)
			if attempt == e.cfg.MaxAttempts || !e.backoff(ctx, attempt, 0) {
				return last
			}
			continue
		}

		externalID, err := e.sender.Send(ctx, msg)
		if err == nil {
			last.Outcome = domain.OutcomeSent
			last.ExternalID = externalID
			return last
		}
		last.Cause = err

		var sendErr *domain.SendError
		switch {
		case errors.As(err, &sendErr) && sendErr.Permanent():
			last.Outcome = domain.OutcomePermanentFailure
			return last
		case errors.As(err, &sendErr) && sendErr.Throttled():
			last.Outcome = domain.OutcomeRateLimited
			e.logger.Warn("channel throttled delivery",
				"title", record.Title, "attempt", attempt, "retryAfter", sendErr.RetryAfter)
			if attempt == e.cfg.MaxAttempts {
				last.Outcome = domain.OutcomeTransientFailure
				return last
			}
			if !e.backoff(ctx, attempt, sendErr.RetryAfter) {
				last.Outcome = domain.OutcomeTransientFailure
				return last
			}
		default:
			last.Outcome = domain.OutcomeTransientFailure
			e.logger.Warn("transient delivery failure",
				"title", record.Title, "attempt", attempt, "error", err)
			if attempt == e.cfg.MaxAttempts {
				return last
			}
			if !e.backoff(ctx, attempt, 0) {
				return last
			}
		}

		if attempt == e.cfg.MaxAttempts {
			last.Outcome = domain.OutcomeTransientFailure
			return last
		}
	}

	return last
}

// waitForSlot loops on limiter denials, sleeping each retry-after through
// the injected clock, up to the configured wait budget per attempt.
func (e *DeliveryEngine) waitForSlot(ctx context.Context) error {
	var waited time.Duration
	for {
		decision := e.limiter.Acquire()
		if decision.Granted {
			return nil
		}
		if waited+decision.RetryAfter > e.cfg.MaxRateWait {
			return domain.ErrRateWaitExceeded
		}
		if err := e.clock.Sleep(ctx, decision.RetryAfter); err != nil {
			return err
		}
		waited += decision.RetryAfter
	}
}

// backoff sleeps the exponential delay for the given attempt, honoring a
// provider retry-after hint when it is longer. Returns false when the
// context was canceled during the wait.
func (e *DeliveryEngine) backoff(ctx context.Context, attempt int, providerHint time.Duration) bool {
	delay := e.backoffDelay(attempt)
	if providerHint > delay {
		delay = providerHint
	}
	return e.clock.Sleep(ctx, delay) == nil
}

// backoffDelay computes base * factor^(attempt-1), capped, with ±20%
// jitter.
func (e *DeliveryEngine) backoffDelay(attempt int) time.Duration {
	delay := float64(e.cfg.BackoffBase)
	for i := 1; i < attempt; i++ {
		delay *= e.cfg.BackoffFactor
		if delay >= float64(e.cfg.BackoffCap) {
			delay = float64(e.cfg.BackoffCap)
			break
		}
	}
	jittered := delay * (0.8 + 0.4*rand.Float64())
	return time.Duration(jittered)
}

// FormatMessage renders the fixed channel template for a record that
// already passed validation. It never fails.
func FormatMessage(record domain.DealRecord) domain.Message {
	var b strings.Builder
	b.WriteString("🔥 <b>New Deal Spotted!</b>\n")
	fmt.Fprintf(&b, "📦 <b>Item:</b> %s", html.EscapeString(record.Title))

	if price := strings.TrimSpace(record.Price); price != "" {
		fmt.Fprintf(&b, "\n💸 <b>Price:</b> %s", html.EscapeString(price))
	}

	if desc := strings.TrimSpace(record.Description); desc != "" {
		fmt.Fprintf(&b, "\n📝 <b>Description:</b> %s", html.EscapeString(truncateRunes(desc, maxDescriptionRunes)))
	}

	fmt.Fprintf(&b, "\n🔗 <a href=\"%s\">View Deal</a>", html.EscapeString(record.URL))

	return domain.Message{Text: b.String()}
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
