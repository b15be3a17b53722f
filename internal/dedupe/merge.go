package dedupe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/mbellot/tally/internal/common"
	"github.com/mbellot/tally/internal/model"
	"github.com/mbellot/tally/internal/service"
)

// Merger applies and reverses duplicate merges. A merge hides the
// duplicate behind the primary; nothing is deleted, so unmerge restores
// the duplicate exactly as it was.
type Merger struct {
	storage service.Storage
}

// NewMerger creates a merge manager over the given storage.
func NewMerger(storage service.Storage) *Merger {
	return &Merger{storage: storage}
}

// Merge hides the duplicate transaction behind the primary. The match
// confirmation and the visibility flags flip in one unit of work. A
// pair merged without a recorded match gets an implicit full-confidence
// manual match so the audit trail always explains the hidden row.
func (m *Merger) Merge(ctx context.Context, primaryID, duplicateID string) error {
	if primaryID == duplicateID {
		return fmt.Errorf("%w: %s", common.ErrSelfMerge, primaryID)
	}

	primary, err := m.storage.GetTransaction(ctx, primaryID)
	if err != nil {
		return err
	}
	duplicate, err := m.storage.GetTransaction(ctx, duplicateID)
	if err != nil {
		return err
	}
	if duplicate.IsDuplicate {
		return fmt.Errorf("%w: %s", common.ErrAlreadyMerged, duplicateID)
	}
	if primary.IsDuplicate {
		return fmt.Errorf("%w: primary %s is itself hidden", common.ErrAlreadyMerged, primaryID)
	}

	match, err := m.findPairEitherOrder(ctx, m.storage, primaryID, duplicateID)
	if err != nil {
		return err
	}

	tx, err := m.storage.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if match == nil {
		match = &model.TransactionMatch{
			PrimaryID:   primaryID,
			DuplicateID: duplicateID,
			Confidence:  1.0,
			Tier:        model.TierExact,
			Status:      model.StatusPending,
			Criteria: model.MatchCriteria{
				AmountDelta:    decimal.Zero,
				TextSimilarity: 1.0,
				SameDate:       true,
				SameAmount:     true,
			},
		}
		if err := tx.UpsertMatch(ctx, match); err != nil {
			return err
		}
	}

	if err := tx.UpdateMatchStatus(ctx, match.ID, model.StatusConfirmed); err != nil {
		return err
	}
	if err := tx.SetDuplicateFlags(ctx, duplicateID, true, &primaryID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	slog.Info("merged duplicate transaction",
		"primary_id", primaryID,
		"duplicate_id", duplicateID,
		"match_id", match.ID)
	return nil
}

// Unmerge restores a hidden duplicate to full visibility and reopens
// every match involving it for review.
func (m *Merger) Unmerge(ctx context.Context, transactionID string) error {
	txn, err := m.storage.GetTransaction(ctx, transactionID)
	if err != nil {
		return err
	}
	if !txn.IsDuplicate {
		return fmt.Errorf("%w: %s", common.ErrNotMerged, transactionID)
	}

	matches, err := m.storage.ListMatchesForTransaction(ctx, transactionID)
	if err != nil {
		return err
	}

	tx, err := m.storage.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.SetDuplicateFlags(ctx, transactionID, false, nil); err != nil {
		return err
	}
	for _, match := range matches {
		if match.Status != model.StatusConfirmed {
			continue
		}
		if err := tx.UpdateMatchStatus(ctx, match.ID, model.StatusPending); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	slog.Info("unmerged transaction", "transaction_id", transactionID)
	return nil
}

// findPairEitherOrder looks the pair up in both orientations; the
// detector may have recorded it from either side.
func (m *Merger) findPairEitherOrder(ctx context.Context, store service.Storage, a, b string) (*model.TransactionMatch, error) {
	match, err := store.GetMatchByPair(ctx, a, b)
	if err == nil {
		return match, nil
	}
	if !errors.Is(err, common.ErrMatchNotFound) {
		return nil, err
	}
	match, err = store.GetMatchByPair(ctx, b, a)
	if err == nil {
		return match, nil
	}
	if errors.Is(err, common.ErrMatchNotFound) {
		return nil, nil
	}
	return nil, err
}
