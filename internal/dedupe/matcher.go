// Package dedupe detects transactions recorded twice from overlapping
// imports and manages the reversible merge state machine over them.
package dedupe

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/shopspring/decimal"

	"github.com/mbellot/tally/internal/common"
	"github.com/mbellot/tally/internal/model"
	"github.com/mbellot/tally/internal/service"
)

// MatcherOptions holds the scoring thresholds and tolerances. The
// defaults mirror long-standing heuristics; they are configuration,
// not constants, but no smarter scoring hides behind them.
type MatcherOptions struct {
	AmountTolerance     decimal.Decimal
	ExactAmountDelta    decimal.Decimal
	DateToleranceDays   int
	ExactSimilarity     float64
	ProbableSimilarity  float64
	ExactConfidence     float64
	ProbableConfidence  float64
	PossibleConfidence  float64
	FallbackConfidence  float64
	MinRecordConfidence float64
}

// DefaultMatcherOptions returns the stock thresholds: ±0.01 amount,
// ±3 days, similarity cutoffs 0.8/0.6, confidence ladder
// 0.95/0.80/0.60/0.30, and a 0.6 floor for persisting matches.
func DefaultMatcherOptions() MatcherOptions {
	return MatcherOptions{
		AmountTolerance:     decimal.RequireFromString("0.01"),
		ExactAmountDelta:    decimal.RequireFromString("0.01"),
		DateToleranceDays:   3,
		ExactSimilarity:     0.8,
		ProbableSimilarity:  0.6,
		ExactConfidence:     0.95,
		ProbableConfidence:  0.80,
		PossibleConfidence:  0.60,
		FallbackConfidence:  0.30,
		MinRecordConfidence: 0.60,
	}
}

// Matcher scores candidate duplicate pairs.
type Matcher struct {
	storage service.Storage
	opts    MatcherOptions
}

// NewMatcher creates a matcher with the given options.
func NewMatcher(storage service.Storage, opts MatcherOptions) *Matcher {
	return &Matcher{storage: storage, opts: opts}
}

// Candidate is one scored duplicate proposal, with the raw criteria so
// review tooling can explain the score.
type Candidate struct {
	Transaction model.Transaction
	Criteria    model.MatchCriteria
	Confidence  float64
}

// FindCandidates returns transactions that plausibly record the same
// real-world event as the given one. The pool is every visible
// transaction within the date and amount tolerances, excluding the
// reference itself and transactions from the same import source:
// same-source duplicates are a different bug class and are not
// proposed here. Results are ordered by confidence, then date delta,
// then amount delta.
func (m *Matcher) FindCandidates(ctx context.Context, transactionID string) ([]Candidate, error) {
	ref, err := m.storage.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	refEntries, err := m.storage.GetEntries(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	refMagnitude := model.EntryMagnitude(refEntries)

	from := ref.Date.AddDate(0, 0, -m.opts.DateToleranceDays)
	to := ref.Date.AddDate(0, 0, m.opts.DateToleranceDays).Add(24*time.Hour - time.Nanosecond)
	pool, err := m.storage.ListTransactions(ctx, service.TransactionFilter{
		StartDate: &from,
		EndDate:   &to,
	})
	if err != nil {
		return nil, err
	}

	var candidates []Candidate
	for _, other := range pool {
		if other.Transaction.ID == ref.ID {
			continue
		}
		if sameSource(ref.ImportSource, other.Transaction.ImportSource) {
			continue
		}

		criteria := m.criteriaFor(ref, refMagnitude, &other.Transaction, model.EntryMagnitude(other.Entries))
		if criteria.AmountDelta.GreaterThan(m.opts.AmountTolerance) {
			continue
		}

		candidates = append(candidates, Candidate{
			Transaction: other.Transaction,
			Criteria:    criteria,
			Confidence:  m.score(criteria),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.Criteria.DateDeltaDays != b.Criteria.DateDeltaDays {
			return a.Criteria.DateDeltaDays < b.Criteria.DateDeltaDays
		}
		return a.Criteria.AmountDelta.LessThan(b.Criteria.AmountDelta)
	})
	return candidates, nil
}

// sameSource reports whether two provenance labels name the same
// import source. Transactions without provenance are treated as
// distinct manual entries, not as one shared source.
func sameSource(a, b string) bool {
	return a != "" && b != "" && a == b
}

// criteriaFor computes the raw comparison record for a pair.
func (m *Matcher) criteriaFor(ref *model.Transaction, refMagnitude decimal.Decimal, other *model.Transaction, otherMagnitude decimal.Decimal) model.MatchCriteria {
	amountDelta := refMagnitude.Sub(otherMagnitude).Abs()
	dateDelta := calendarDaysApart(ref.Date, other.Date)

	return model.MatchCriteria{
		AmountDelta:    amountDelta,
		DateDeltaDays:  dateDelta,
		TextSimilarity: similarity(ref.Description, other.Description),
		SameDate:       dateDelta == 0,
		SameAmount:     amountDelta.LessThan(m.opts.ExactAmountDelta),
	}
}

// score buckets criteria into the confidence ladder. Highest
// applicable tier wins; anything inside the pool but below every
// threshold keeps the visibility-only fallback score.
func (m *Matcher) score(c model.MatchCriteria) float64 {
	withinAmount := !c.AmountDelta.GreaterThan(m.opts.AmountTolerance)
	withinDate := c.DateDeltaDays <= m.opts.DateToleranceDays

	switch {
	case c.SameAmount && c.SameDate && c.TextSimilarity > m.opts.ExactSimilarity:
		return m.opts.ExactConfidence
	case withinAmount && withinDate && c.TextSimilarity > m.opts.ProbableSimilarity:
		return m.opts.ProbableConfidence
	case withinAmount && withinDate:
		return m.opts.PossibleConfidence
	default:
		return m.opts.FallbackConfidence
	}
}

// similarity is a normalized Levenshtein ratio over upper-cased
// descriptions, 1 meaning identical. Distance and length are both
// counted in runes so accented text is not over-scored.
func similarity(a, b string) float64 {
	a = strings.ToUpper(strings.TrimSpace(a))
	b = strings.ToUpper(strings.TrimSpace(b))
	maxLen := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > maxLen {
		maxLen = n
	}
	if maxLen == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(maxLen)
}

// calendarDaysApart counts whole calendar days between two dates,
// ignoring time of day.
func calendarDaysApart(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	days := int(da.Sub(db).Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days
}

// RecordMatch persists a scored pair. Recording the same ordered pair
// again updates the existing row; the review status is untouched.
func (m *Matcher) RecordMatch(ctx context.Context, primaryID, duplicateID string, confidence float64, criteria model.MatchCriteria) (string, error) {
	if primaryID == duplicateID {
		return "", fmt.Errorf("%w: %s", common.ErrSelfMatch, primaryID)
	}
	if _, err := m.storage.GetTransaction(ctx, primaryID); err != nil {
		return "", err
	}
	if _, err := m.storage.GetTransaction(ctx, duplicateID); err != nil {
		return "", err
	}

	match := &model.TransactionMatch{
		PrimaryID:   primaryID,
		DuplicateID: duplicateID,
		Confidence:  confidence,
		Criteria:    criteria,
		Tier:        model.TierForConfidence(confidence),
		Status:      model.StatusPending,
	}
	if err := m.storage.UpsertMatch(ctx, match); err != nil {
		return "", err
	}
	return match.ID, nil
}

// UpdateStatus moves a match through its review state machine. All
// transitions are legal; confirming, rejecting and reopening are each
// reversible.
func (m *Matcher) UpdateStatus(ctx context.Context, matchID string, status model.MatchStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid match status %q", status)
	}
	return m.storage.UpdateMatchStatus(ctx, matchID, status)
}

// DetectBatch scans every transaction of an import batch for
// duplicates and records candidates at or above the persistence floor.
// With autoConfirmExact set, exact-tier matches are confirmed
// immediately; hiding the duplicate still requires an explicit merge.
func (m *Matcher) DetectBatch(ctx context.Context, batchID string, autoConfirmExact bool) ([]model.TransactionMatch, error) {
	batch, err := m.storage.ListTransactions(ctx, service.TransactionFilter{ImportBatchID: batchID})
	if err != nil {
		return nil, err
	}

	var recorded []model.TransactionMatch
	for _, txn := range batch {
		candidates, err := m.FindCandidates(ctx, txn.Transaction.ID)
		if err != nil {
			return nil, err
		}
		for _, cand := range candidates {
			if cand.Confidence < m.opts.MinRecordConfidence {
				continue
			}
			matchID, err := m.RecordMatch(ctx, txn.Transaction.ID, cand.Transaction.ID, cand.Confidence, cand.Criteria)
			if err != nil {
				return nil, err
			}
			if autoConfirmExact && model.TierForConfidence(cand.Confidence) == model.TierExact {
				if err := m.UpdateStatus(ctx, matchID, model.StatusConfirmed); err != nil {
					return nil, err
				}
			}
			match, err := m.storage.GetMatch(ctx, matchID)
			if err != nil {
				return nil, err
			}
			recorded = append(recorded, *match)
		}
	}

	slog.Info("batch duplicate detection finished",
		"batch_id", batchID,
		"transactions", len(batch),
		"matches", len(recorded))
	return recorded, nil
}
