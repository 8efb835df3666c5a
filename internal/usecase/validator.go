package usecase

import (
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/dealwatch/backend/internal/domain"
)

// Package-level compiled regex patterns for performance
var (
	// Optional currency symbol, digits either grouped with thousands
	// separators or plain, optional decimal separator with exactly two
	// fractional digits.
	priceRegex = regexp.MustCompile(`^[$£€¥₹]?\s?(?:\d{1,3}(?:,\d{3})+|\d+)(?:[.,]\d{2})?$`)
)

// DefaultMinTitleLength is used when no minimum is configured.
const DefaultMinTitleLength = 3

// Validator applies data-quality rules to candidate deal records before
// they enter the pipeline. It is pure: no I/O, no state mutation, and the
// same input always yields the same outcome.
type Validator struct {
	spamPhrases []string
	minTitleLen int
}

// NewValidator creates a validator with the given spam-phrase list and
// minimum title length. Phrases are matched as case-insensitive substrings
// of title+description.
func NewValidator(spamPhrases []string, minTitleLen int) *Validator {
	if minTitleLen <= 0 {
		minTitleLen = DefaultMinTitleLength
	}
	lowered := make([]string, 0, len(spamPhrases))
	for _, phrase := range spamPhrases {
		phrase = strings.ToLower(strings.TrimSpace(phrase))
		if phrase != "" {
			lowered = append(lowered, phrase)
		}
	}
	return &Validator{
		spamPhrases: lowered,
		minTitleLen: minTitleLen,
	}
}

// Validate runs the rules in order; the first failure wins.
func (v *Validator) Validate(record domain.DealRecord) domain.ValidationOutcome {
	title := strings.TrimSpace(record.Title)

	if title == "" {
		return rejected(record, domain.ReasonEmptyTitle)
	}

	if reason, ok := checkURL(record.URL); !ok {
		return rejected(record, reason)
	}

	if price := strings.TrimSpace(record.Price); price != "" {
		if !priceRegex.MatchString(price) {
			return rejected(record, domain.ReasonMalformedPrice)
		}
	}

	if v.matchesSpam(record) {
		return rejected(record, domain.ReasonSpamPattern)
	}

	if utf8.RuneCountInString(title) < v.minTitleLen {
		return rejected(record, domain.ReasonTitleTooShort)
	}

	return domain.ValidationOutcome{Record: record, Accepted: true}
}

func rejected(record domain.DealRecord, reason domain.RejectReason) domain.ValidationOutcome {
	return domain.ValidationOutcome{Record: record, Reason: reason}
}

// checkURL distinguishes a URL that does not parse as an absolute URI with
// a host (malformed) from one that parses but uses a scheme we never
// deliver (unsupported).
func checkURL(raw string) (domain.RejectReason, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.ReasonMalformedURL, false
	}

	parsed, err := url.Parse(raw)
	if err != nil || !parsed.IsAbs() || parsed.Host == "" {
		return domain.ReasonMalformedURL, false
	}

	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
		return "", true
	default:
		return domain.ReasonUnsupportedScheme, false
	}
}

func (v *Validator) matchesSpam(record domain.DealRecord) bool {
	if len(v.spamPhrases) == 0 {
		return false
	}
	combined := strings.ToLower(record.Title + " " + record.Description)
	for _, phrase := range v.spamPhrases {
		if strings.Contains(combined, phrase) {
			return true
		}
	}
	return false
}
