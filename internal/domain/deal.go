package domain

import "time"

// DealRecord is the canonical in-memory representation of a candidate deal
// produced by a content source or an inbound submission.
type DealRecord struct {
	Title        string    `json:"title"`
	URL          string    `json:"url"`
	Price        string    `json:"price,omitempty"`
	Description  string    `json:"description,omitempty"`
	DiscoveredAt time.Time `json:"discoveredAt"`
}

// RejectReason identifies which validation rule a record failed.
type RejectReason string

const (
	ReasonEmptyTitle        RejectReason = "empty_title"
	ReasonMalformedURL      RejectReason = "malformed_url"
	ReasonUnsupportedScheme RejectReason = "unsupported_scheme"
	ReasonMalformedPrice    RejectReason = "malformed_price"
	ReasonSpamPattern       RejectReason = "spam_pattern"
	ReasonTitleTooShort     RejectReason = "title_too_short"
)

// ValidationOutcome is the result of running a record through the validator.
// Reason is empty when the record was accepted.
type ValidationOutcome struct {
	Record   DealRecord
	Accepted bool
	Reason   RejectReason
}

// Fingerprint identifies "the same deal" across re-scrapes. It is derived
// from the normalized URL only; two records with equal fingerprints are
// duplicates regardless of other field differences.
type Fingerprint string

// DeliveryOutcome classifies how a delivery attempt chain ended.
type DeliveryOutcome string

const (
	OutcomeSent             DeliveryOutcome = "sent"
	OutcomeRateLimited      DeliveryOutcome = "rate_limited"
	OutcomeTransientFailure DeliveryOutcome = "transient_failure"
	OutcomePermanentFailure DeliveryOutcome = "permanent_failure"
)

// DeliveryAttempt records the terminal state of delivering one record.
type DeliveryAttempt struct {
	Record        DealRecord
	AttemptNumber int
	StartedAt     time.Time
	Outcome       DeliveryOutcome
	ExternalID    string
	Cause         error
}

// Message is a formatted channel message ready for the channel-send
// capability.
type Message struct {
	Text           string
	DisablePreview bool
}

// Summary aggregates pipeline outcomes for one run.
type Summary struct {
	Received   int `json:"received"`
	Rejected   int `json:"rejected"`
	Duplicates int `json:"duplicates"`
	Sent       int `json:"sent"`
	Failed     int `json:"failed"`
}
