package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mbellot/tally/internal/common"
	"github.com/mbellot/tally/internal/model"
	"github.com/mbellot/tally/internal/service"
)

// ownershipEpsilon absorbs rounding noise in the 100% ceiling check.
var ownershipEpsilon = decimal.RequireFromString("0.0001")

// Ownership tracks fractional account ownership per user and enforces
// the 100% ceiling.
type Ownership struct {
	storage service.Storage
}

// NewOwnership creates an ownership ledger over the given storage.
func NewOwnership(storage service.Storage) *Ownership {
	return &Ownership{storage: storage}
}

// Set assigns a share of an account to a user. The ceiling check and
// the write happen in one unit of work so concurrent callers cannot
// overshoot 100% between check and commit; contended commits are
// retried by the caller via common.WithRetry.
func (o *Ownership) Set(ctx context.Context, accountID, userID string, percentage decimal.Decimal) error {
	if percentage.LessThanOrEqual(decimal.Zero) || percentage.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: got %s", common.ErrInvalidPercentage, percentage)
	}

	tx, err := o.storage.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.GetAccount(ctx, accountID); err != nil {
		return err
	}
	if _, err := tx.GetUser(ctx, userID); err != nil {
		return err
	}

	shares, err := tx.ListOwnership(ctx, accountID)
	if err != nil {
		return err
	}

	total := percentage
	for _, share := range shares {
		if share.UserID == userID {
			continue
		}
		total = total.Add(share.Percentage)
	}
	if total.GreaterThan(decimal.NewFromInt(1).Add(ownershipEpsilon)) {
		return fmt.Errorf("%w: total would be %s", common.ErrOwnershipExceeded, total)
	}

	share := &model.OwnershipShare{
		AccountID:  accountID,
		UserID:     userID,
		Percentage: percentage,
	}
	if err := tx.UpsertOwnership(ctx, share); err != nil {
		return err
	}
	return tx.Commit()
}

// Remove drops a user's share of an account, freeing the fraction for
// reassignment.
func (o *Ownership) Remove(ctx context.Context, accountID, userID string) error {
	if _, err := o.storage.GetAccount(ctx, accountID); err != nil {
		return err
	}
	return o.storage.DeleteOwnership(ctx, accountID, userID)
}

// Shares returns all ownership shares of an account.
func (o *Ownership) Shares(ctx context.Context, accountID string) ([]model.OwnershipShare, error) {
	if _, err := o.storage.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return o.storage.ListOwnership(ctx, accountID)
}

// Weight returns the combined fraction of an account attributable to
// the given user set. Reporting collaborators use this to pro-rate
// postings on shared accounts; an account with no shares for these
// users weighs zero.
func (o *Ownership) Weight(ctx context.Context, accountID string, userIDs []string) (decimal.Decimal, error) {
	shares, err := o.storage.ListOwnership(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}

	wanted := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		wanted[id] = true
	}

	weight := decimal.Zero
	for _, share := range shares {
		if wanted[share.UserID] {
			weight = weight.Add(share.Percentage)
		}
	}
	return weight, nil
}
