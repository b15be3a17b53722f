package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// MatchTier buckets a confidence score into a reviewable grade.
type MatchTier string

// Match tiers, derived from confidence at record time.
const (
	TierExact    MatchTier = "EXACT"
	TierProbable MatchTier = "PROBABLE"
	TierPossible MatchTier = "POSSIBLE"
)

// MatchStatus tracks the review state of a candidate pair. Every
// transition is reversible; there is no terminal state.
type MatchStatus string

// Match statuses.
const (
	StatusPending   MatchStatus = "PENDING"
	StatusConfirmed MatchStatus = "CONFIRMED"
	StatusRejected  MatchStatus = "REJECTED"
)

// Valid reports whether s is a known match status.
func (s MatchStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusRejected:
		return true
	default:
		return false
	}
}

// MatchCriteria records why two transactions were proposed as
// duplicates, so review tooling can explain the score.
type MatchCriteria struct {
	AmountDelta    decimal.Decimal `json:"amount_delta"`
	TextSimilarity float64         `json:"text_similarity"`
	DateDeltaDays  int             `json:"date_delta_days"`
	SameDate       bool            `json:"same_date"`
	SameAmount     bool            `json:"same_amount"`
}

// TransactionMatch is a directed candidate-duplicate relationship
// between a primary and a duplicate transaction. At most one row
// exists per ordered pair.
type TransactionMatch struct {
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ID          string
	PrimaryID   string
	DuplicateID string
	Tier        MatchTier
	Status      MatchStatus
	Criteria    MatchCriteria
	Confidence  float64
}

// TierForConfidence derives the match tier from a confidence score.
func TierForConfidence(confidence float64) MatchTier {
	switch {
	case confidence >= 0.95:
		return TierExact
	case confidence >= 0.8:
		return TierProbable
	default:
		return TierPossible
	}
}
