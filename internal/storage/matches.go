package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mbellot/tally/internal/common"
	"github.com/mbellot/tally/internal/model"
)

const matchColumns = `id, primary_transaction_id, duplicate_transaction_id, confidence,
	amount_delta, date_delta_days, text_similarity, same_date, same_amount,
	match_tier, status, created_at, updated_at`

// UpsertMatch records a candidate pair. Re-recording the same ordered
// pair updates the score and criteria in place; it never creates a
// second row, and it never touches the existing review status.
func (s *SQLiteStorage) UpsertMatch(ctx context.Context, m *model.TransactionMatch) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateMatch(m); err != nil {
		return err
	}
	return s.upsertMatchTx(ctx, s.db, m)
}

func (s *SQLiteStorage) upsertMatchTx(ctx context.Context, q querier, m *model.TransactionMatch) error {
	now := time.Now().UTC()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	_, err := q.ExecContext(ctx, `
		INSERT INTO transaction_matches (
			id, primary_transaction_id, duplicate_transaction_id, confidence,
			amount_delta, date_delta_days, text_similarity, same_date, same_amount,
			match_tier, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (primary_transaction_id, duplicate_transaction_id) DO UPDATE SET
			confidence = excluded.confidence,
			amount_delta = excluded.amount_delta,
			date_delta_days = excluded.date_delta_days,
			text_similarity = excluded.text_similarity,
			same_date = excluded.same_date,
			same_amount = excluded.same_amount,
			match_tier = excluded.match_tier,
			updated_at = excluded.updated_at`,
		m.ID,
		m.PrimaryID,
		m.DuplicateID,
		m.Confidence,
		m.Criteria.AmountDelta.String(),
		m.Criteria.DateDeltaDays,
		m.Criteria.TextSimilarity,
		m.Criteria.SameDate,
		m.Criteria.SameAmount,
		string(m.Tier),
		string(m.Status),
		m.CreatedAt,
		m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert match: %w", err)
	}

	// The upsert path keeps the existing row id; read it back so the
	// caller always holds the persisted identity.
	existing, err := s.getMatchByPairTx(ctx, q, m.PrimaryID, m.DuplicateID)
	if err != nil {
		return err
	}
	*m = *existing
	return nil
}

// GetMatch fetches a match by id.
func (s *SQLiteStorage) GetMatch(ctx context.Context, id string) (*model.TransactionMatch, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return s.getMatchTx(ctx, s.db, id)
}

func (s *SQLiteStorage) getMatchTx(ctx context.Context, q querier, id string) (*model.TransactionMatch, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+matchColumns+` FROM transaction_matches WHERE id = ?`, id)
	m, err := scanMatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", common.ErrMatchNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get match: %w", err)
	}
	return m, nil
}

// GetMatchByPair fetches the match row for an ordered pair, if any.
func (s *SQLiteStorage) GetMatchByPair(ctx context.Context, primaryID, duplicateID string) (*model.TransactionMatch, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(primaryID, "primaryID"); err != nil {
		return nil, err
	}
	if err := validateString(duplicateID, "duplicateID"); err != nil {
		return nil, err
	}
	return s.getMatchByPairTx(ctx, s.db, primaryID, duplicateID)
}

func (s *SQLiteStorage) getMatchByPairTx(ctx context.Context, q querier, primaryID, duplicateID string) (*model.TransactionMatch, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+matchColumns+` FROM transaction_matches
		 WHERE primary_transaction_id = ? AND duplicate_transaction_id = ?`,
		primaryID, duplicateID)
	m, err := scanMatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: pair %s -> %s", common.ErrMatchNotFound, primaryID, duplicateID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get match by pair: %w", err)
	}
	return m, nil
}

// ListMatchesForTransaction returns every match touching a transaction
// on either side, highest confidence first.
func (s *SQLiteStorage) ListMatchesForTransaction(ctx context.Context, transactionID string) ([]model.TransactionMatch, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(transactionID, "transactionID"); err != nil {
		return nil, err
	}
	return s.listMatchesForTransactionTx(ctx, s.db, transactionID)
}

func (s *SQLiteStorage) listMatchesForTransactionTx(ctx context.Context, q querier, transactionID string) ([]model.TransactionMatch, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+matchColumns+` FROM transaction_matches
		 WHERE primary_transaction_id = ? OR duplicate_transaction_id = ?
		 ORDER BY confidence DESC, created_at`,
		transactionID, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var matches []model.TransactionMatch
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		matches = append(matches, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating matches: %w", err)
	}
	return matches, nil
}

// UpdateMatchStatus moves a match through its review state machine.
func (s *SQLiteStorage) UpdateMatchStatus(ctx context.Context, id string, status model.MatchStatus) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidMatch, status)
	}
	return s.updateMatchStatusTx(ctx, s.db, id, status)
}

func (s *SQLiteStorage) updateMatchStatusTx(ctx context.Context, q querier, id string, status model.MatchStatus) error {
	result, err := q.ExecContext(ctx,
		`UPDATE transaction_matches SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update match status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", common.ErrMatchNotFound, id)
	}
	return nil
}

func scanMatch(row scanner) (*model.TransactionMatch, error) {
	var m model.TransactionMatch
	var tier, status, amountDelta string

	err := row.Scan(
		&m.ID,
		&m.PrimaryID,
		&m.DuplicateID,
		&m.Confidence,
		&amountDelta,
		&m.Criteria.DateDeltaDays,
		&m.Criteria.TextSimilarity,
		&m.Criteria.SameDate,
		&m.Criteria.SameAmount,
		&tier,
		&status,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.Criteria.AmountDelta, err = decimal.NewFromString(amountDelta)
	if err != nil {
		return nil, fmt.Errorf("corrupt amount delta for match %s: %w", m.ID, err)
	}
	m.Tier = model.MatchTier(tier)
	m.Status = model.MatchStatus(status)
	return &m, nil
}
