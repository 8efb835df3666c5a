package usecase

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dealwatch/backend/internal/domain"
)

// DedupResult reports whether a record's fingerprint was seen before.
type DedupResult int

const (
	Fresh DedupResult = iota
	Duplicate
)

func (r DedupResult) String() string {
	if r == Duplicate {
		return "duplicate"
	}
	return "fresh"
}

// Deduplicator owns the ledger of fingerprints already reserved for
// delivery. Check and insert happen under a single mutex hold so at most
// one caller wins per fingerprint even under concurrent submission.
type Deduplicator struct {
	mu         sync.Mutex
	ledger     map[domain.Fingerprint]time.Time
	order      []domain.Fingerprint
	maxEntries int
	clock      domain.Clock
}

// NewDeduplicator creates a deduplicator. maxEntries caps the ledger with
// oldest-first eviction; zero means unbounded for the process lifetime.
func NewDeduplicator(maxEntries int, clock domain.Clock) *Deduplicator {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &Deduplicator{
		ledger:     make(map[domain.Fingerprint]time.Time),
		maxEntries: maxEntries,
		clock:      clock,
	}
}

// CheckAndReserve computes the record's fingerprint and atomically inserts
// it if absent. The validator runs first in the pipeline, so an unparsable
// URL here is a caller bug and surfaces as an error rather than a panic.
func (d *Deduplicator) CheckAndReserve(record domain.DealRecord) (DedupResult, error) {
	fp, err := FingerprintFor(record.URL)
	if err != nil {
		return Fresh, fmt.Errorf("%w: %v", domain.ErrInvalidRecord, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, seen := d.ledger[fp]; seen {
		return Duplicate, nil
	}

	if d.maxEntries > 0 && len(d.ledger) >= d.maxEntries {
		oldest := d.order[0]
		d.order = d.order[1:]
		delete(d.ledger, oldest)
	}

	d.ledger[fp] = d.clock.Now()
	d.order = append(d.order, fp)
	return Fresh, nil
}

// Size returns the current ledger size.
func (d *Deduplicator) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.ledger)
}

// FingerprintFor derives the dedup key from a deal URL: lowercased
// scheme and host, path with the trailing slash stripped, query and
// fragment dropped.
func FingerprintFor(rawURL string) (domain.Fingerprint, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if !parsed.IsAbs() || parsed.Host == "" {
		return "", fmt.Errorf("url %q is not absolute", rawURL)
	}

	scheme := strings.ToLower(parsed.Scheme)
	host := strings.ToLower(parsed.Host)
	path := strings.TrimSuffix(parsed.EscapedPath(), "/")

	return domain.Fingerprint(scheme + "://" + host + path), nil
}
