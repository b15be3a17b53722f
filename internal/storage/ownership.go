package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mbellot/tally/internal/model"
)

// ListOwnership returns all shares of one account, largest first.
func (s *SQLiteStorage) ListOwnership(ctx context.Context, accountID string) ([]model.OwnershipShare, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(accountID, "accountID"); err != nil {
		return nil, err
	}
	return s.listOwnershipTx(ctx, s.db, accountID)
}

func (s *SQLiteStorage) listOwnershipTx(ctx context.Context, q querier, accountID string) ([]model.OwnershipShare, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT account_id, user_id, percentage, created_at, updated_at
		FROM ownership_shares WHERE account_id = ?
		ORDER BY percentage DESC, user_id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ownership: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var shares []model.OwnershipShare
	for rows.Next() {
		var share model.OwnershipShare
		var pct string
		if err := rows.Scan(&share.AccountID, &share.UserID, &pct, &share.CreatedAt, &share.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ownership share: %w", err)
		}
		share.Percentage, err = decimal.NewFromString(pct)
		if err != nil {
			return nil, fmt.Errorf("corrupt percentage for account %s user %s: %w", share.AccountID, share.UserID, err)
		}
		shares = append(shares, share)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ownership shares: %w", err)
	}
	return shares, nil
}

// UpsertOwnership inserts or updates one (account, user) share.
func (s *SQLiteStorage) UpsertOwnership(ctx context.Context, share *model.OwnershipShare) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateShare(share); err != nil {
		return err
	}
	return s.upsertOwnershipTx(ctx, s.db, share)
}

func (s *SQLiteStorage) upsertOwnershipTx(ctx context.Context, q querier, share *model.OwnershipShare) error {
	now := time.Now().UTC()
	if share.CreatedAt.IsZero() {
		share.CreatedAt = now
	}
	share.UpdatedAt = now

	_, err := q.ExecContext(ctx, `
		INSERT INTO ownership_shares (account_id, user_id, percentage, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (account_id, user_id) DO UPDATE SET
			percentage = excluded.percentage,
			updated_at = excluded.updated_at`,
		share.AccountID, share.UserID, share.Percentage.String(), share.CreatedAt, share.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert ownership share: %w", err)
	}
	return nil
}

// DeleteOwnership removes one (account, user) share. Missing rows are
// not an error; the end state is the same.
func (s *SQLiteStorage) DeleteOwnership(ctx context.Context, accountID, userID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(accountID, "accountID"); err != nil {
		return err
	}
	if err := validateString(userID, "userID"); err != nil {
		return err
	}
	return s.deleteOwnershipTx(ctx, s.db, accountID, userID)
}

func (s *SQLiteStorage) deleteOwnershipTx(ctx context.Context, q querier, accountID, userID string) error {
	_, err := q.ExecContext(ctx,
		`DELETE FROM ownership_shares WHERE account_id = ? AND user_id = ?`, accountID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete ownership share: %w", err)
	}
	return nil
}
