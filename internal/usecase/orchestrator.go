package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dealwatch/backend/internal/domain"
)

// RecordStatus is the terminal disposition of one submitted record.
type RecordStatus string

const (
	StatusRejected  RecordStatus = "rejected"
	StatusDuplicate RecordStatus = "duplicate"
	StatusDelivered RecordStatus = "delivered"
	StatusFailed    RecordStatus = "failed"
)

// RecordResult reports what happened to a single record.
type RecordResult struct {
	Status     RecordStatus
	Reason     domain.RejectReason
	ExternalID string
	Err        error
}

// PipelineConfig holds orchestration settings.
type PipelineConfig struct {
	Workers int
	// AlertThreshold is the number of consecutive delivery failures after
	// which a process-level alert is logged. Zero disables the alert.
	AlertThreshold int
}

// Pipeline threads candidate records through validation, deduplication and
// delivery, and aggregates outcomes. One Pipeline owns one ledger and one
// rate budget; construct a fresh instance per running pipeline.
type Pipeline struct {
	validator *Validator
	dedup     *Deduplicator
	delivery  *DeliveryEngine
	cfg       PipelineConfig
	logger    *slog.Logger

	mu            sync.Mutex
	summary       domain.Summary
	failureStreak int
}

// NewPipeline wires the pipeline components together.
func NewPipeline(
	validator *Validator,
	dedup *Deduplicator,
	delivery *DeliveryEngine,
	cfg PipelineConfig,
	logger *slog.Logger,
) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		validator: validator,
		dedup:     dedup,
		delivery:  delivery,
		cfg:       cfg,
		logger:    logger,
	}
}

// Process drains the candidate channel with a bounded worker pool and
// returns the aggregated summary once the channel closes or the context is
// canceled. In-flight deliveries finish or hit their own bounded waits; no
// new candidates are admitted after cancellation.
func (p *Pipeline) Process(ctx context.Context, candidates <-chan domain.DealRecord) domain.Summary {
	var wg sync.WaitGroup
	wg.Add(p.cfg.Workers)
	for i := 0; i < p.cfg.Workers; i++ {
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case record, ok := <-candidates:
					if !ok {
						return
					}
					p.Submit(ctx, record)
				}
			}
		}()
	}
	wg.Wait()
	return p.Summary()
}

// Submit runs one record through the full pipeline and returns its
// disposition. Safe for concurrent use; the inbound HTTP surface calls it
// directly.
func (p *Pipeline) Submit(ctx context.Context, record domain.DealRecord) RecordResult {
	if record.DiscoveredAt.IsZero() {
		record.DiscoveredAt = time.Now().UTC()
	}
	p.count(func(s *domain.Summary) { s.Received++ })

	outcome := p.validator.Validate(record)
	if !outcome.Accepted {
		p.count(func(s *domain.Summary) { s.Rejected++ })
		p.logger.Info("deal rejected",
			"title", record.Title, "url", record.URL, "reason", string(outcome.Reason))
		return RecordResult{Status: StatusRejected, Reason: outcome.Reason}
	}

	dedupResult, err := p.dedup.CheckAndReserve(record)
	if err != nil {
		p.count(func(s *domain.Summary) { s.Rejected++ })
		p.logger.Error("dedup check failed on validated record",
			"url", record.URL, "error", err)
		return RecordResult{Status: StatusRejected, Reason: domain.ReasonMalformedURL, Err: err}
	}
	if dedupResult == Duplicate {
		p.count(func(s *domain.Summary) { s.Duplicates++ })
		p.logger.Info("duplicate deal skipped", "title", record.Title, "url", record.URL)
		return RecordResult{Status: StatusDuplicate}
	}

	attempt := p.delivery.Deliver(ctx, record)
	switch attempt.Outcome {
	case domain.OutcomeSent:
		p.recordSent()
		p.logger.Info("deal delivered",
			"title", record.Title, "externalId", attempt.ExternalID, "attempts", attempt.AttemptNumber)
		return RecordResult{Status: StatusDelivered, ExternalID: attempt.ExternalID}
	case domain.OutcomePermanentFailure:
		p.recordFailure()
		p.logger.Error("permanent delivery failure, likely affects all subsequent deliveries",
			"title", record.Title, "error", attempt.Cause)
		return RecordResult{Status: StatusFailed, Err: attempt.Cause}
	default:
		p.recordFailure()
		p.logger.Warn("delivery failed after retries",
			"title", record.Title, "attempts", attempt.AttemptNumber, "error", attempt.Cause)
		return RecordResult{Status: StatusFailed, Err: attempt.Cause}
	}
}

// Summary returns a race-free snapshot of the aggregated counts.
func (p *Pipeline) Summary() domain.Summary {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.summary
}

func (p *Pipeline) count(update func(*domain.Summary)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	update(&p.summary)
}

func (p *Pipeline) recordSent() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.summary.Sent++
	p.failureStreak = 0
}

func (p *Pipeline) recordFailure() {
	p.mu.Lock()
	p.summary.Failed++
	p.failureStreak++
	streak := p.failureStreak
	threshold := p.cfg.AlertThreshold
	p.mu.Unlock()

	if threshold > 0 && streak == threshold {
		p.logger.Error("channel delivery failing consecutively, check channel credentials and reachability",
			"consecutiveFailures", streak)
	}
}
