package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mbellot/tally/internal/common"
	"github.com/mbellot/tally/internal/model"
	"github.com/mbellot/tally/internal/service"
)

const transactionColumns = `id, description, reference, transaction_date,
	import_source, import_batch_id, is_duplicate, merged_into, created_at`

// CreateTransaction inserts a transaction header and all its entries
// in one statement sequence. Callers that need atomicity with other
// writes run it through a Tx; the direct path opens its own.
func (s *SQLiteStorage) CreateTransaction(ctx context.Context, txn *model.Transaction, entries []model.JournalEntry) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTransaction(txn); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.createTransactionTx(ctx, tx, txn, entries); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStorage) createTransactionTx(ctx context.Context, q querier, txn *model.Transaction, entries []model.JournalEntry) error {
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now().UTC()
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO transactions (
			id, description, reference, transaction_date,
			import_source, import_batch_id, is_duplicate, merged_into, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		txn.ID,
		txn.Description,
		txn.Reference,
		txn.Date,
		txn.ImportSource,
		txn.ImportBatchID,
		txn.IsDuplicate,
		nullString(txn.MergedInto),
		txn.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	return s.insertEntriesTx(ctx, q, txn.ID, entries)
}

func (s *SQLiteStorage) insertEntriesTx(ctx context.Context, q querier, transactionID string, entries []model.JournalEntry) error {
	for i := range entries {
		e := &entries[i]
		e.TransactionID = transactionID
		if e.CreatedAt.IsZero() {
			e.CreatedAt = time.Now().UTC()
		}
		result, err := q.ExecContext(ctx, `
			INSERT INTO journal_entries (transaction_id, account_id, amount, memo, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			e.TransactionID, e.AccountID, e.Amount.String(), e.Memo, e.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert journal entry: %w", err)
		}
		if e.ID, err = result.LastInsertId(); err != nil {
			return fmt.Errorf("failed to get entry id: %w", err)
		}
	}
	return nil
}

// GetTransaction fetches a transaction header by id.
func (s *SQLiteStorage) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return s.getTransactionTx(ctx, s.db, id)
}

func (s *SQLiteStorage) getTransactionTx(ctx context.Context, q querier, id string) (*model.Transaction, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", common.ErrTransactionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return txn, nil
}

// GetEntries returns the full entry set of a transaction.
func (s *SQLiteStorage) GetEntries(ctx context.Context, transactionID string) ([]model.JournalEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(transactionID, "transactionID"); err != nil {
		return nil, err
	}
	return s.getEntriesTx(ctx, s.db, transactionID)
}

func (s *SQLiteStorage) getEntriesTx(ctx context.Context, q querier, transactionID string) ([]model.JournalEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, transaction_id, account_id, amount, memo, created_at
		FROM journal_entries WHERE transaction_id = ? ORDER BY id`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []model.JournalEntry
	for rows.Next() {
		var e model.JournalEntry
		var amount string
		var memo sql.NullString
		if err := rows.Scan(&e.ID, &e.TransactionID, &e.AccountID, &amount, &memo, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		e.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("corrupt amount for entry %d: %w", e.ID, err)
		}
		e.Memo = memo.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entries: %w", err)
	}
	return entries, nil
}

// ReplaceEntries swaps the whole entry set of a transaction. Partial
// edits are not supported; the caller validates the replacement set
// before this is reached.
func (s *SQLiteStorage) ReplaceEntries(ctx context.Context, transactionID string, entries []model.JournalEntry) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(transactionID, "transactionID"); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.replaceEntriesTx(ctx, tx, transactionID, entries); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStorage) replaceEntriesTx(ctx context.Context, q querier, transactionID string, entries []model.JournalEntry) error {
	if _, err := s.getTransactionTx(ctx, q, transactionID); err != nil {
		return err
	}
	if _, err := q.ExecContext(ctx,
		`DELETE FROM journal_entries WHERE transaction_id = ?`, transactionID); err != nil {
		return fmt.Errorf("failed to delete entries: %w", err)
	}
	return s.insertEntriesTx(ctx, q, transactionID, entries)
}

// DeleteTransaction removes a transaction; entries cascade.
func (s *SQLiteStorage) DeleteTransaction(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}
	return s.deleteTransactionTx(ctx, s.db, id)
}

func (s *SQLiteStorage) deleteTransactionTx(ctx context.Context, q querier, id string) error {
	result, err := q.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", common.ErrTransactionNotFound, id)
	}
	return nil
}

// ListTransactions returns transactions matching the filter, each with
// its full entry set. Hidden transactions are excluded unless
// IncludeHidden is set.
func (s *SQLiteStorage) ListTransactions(ctx context.Context, filter service.TransactionFilter) ([]service.TransactionWithEntries, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.listTransactionsTx(ctx, s.db, filter)
}

func (s *SQLiteStorage) listTransactionsTx(ctx context.Context, q querier, filter service.TransactionFilter) ([]service.TransactionWithEntries, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE 1=1`
	var args []any

	if !filter.IncludeHidden {
		query += ` AND is_duplicate = 0`
	}
	if filter.StartDate != nil {
		query += ` AND transaction_date >= ?`
		args = append(args, *filter.StartDate)
	}
	if filter.EndDate != nil {
		query += ` AND transaction_date <= ?`
		args = append(args, *filter.EndDate)
	}
	if filter.ImportSource != "" {
		query += ` AND import_source = ?`
		args = append(args, filter.ImportSource)
	}
	if filter.ImportBatchID != "" {
		query += ` AND import_batch_id = ?`
		args = append(args, filter.ImportBatchID)
	}
	query += ` ORDER BY transaction_date DESC, created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}

	headers, err := collectTransactions(rows)
	if err != nil {
		return nil, err
	}

	result := make([]service.TransactionWithEntries, 0, len(headers))
	for _, txn := range headers {
		entries, err := s.getEntriesTx(ctx, q, txn.ID)
		if err != nil {
			return nil, err
		}
		result = append(result, service.TransactionWithEntries{Transaction: txn, Entries: entries})
	}
	return result, nil
}

// SetDuplicateFlags updates the duplicate visibility pair. Both flags
// always change together so no reader can see a half-merged state.
func (s *SQLiteStorage) SetDuplicateFlags(ctx context.Context, transactionID string, isDuplicate bool, mergedInto *string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(transactionID, "transactionID"); err != nil {
		return err
	}
	return s.setDuplicateFlagsTx(ctx, s.db, transactionID, isDuplicate, mergedInto)
}

func (s *SQLiteStorage) setDuplicateFlagsTx(ctx context.Context, q querier, transactionID string, isDuplicate bool, mergedInto *string) error {
	result, err := q.ExecContext(ctx,
		`UPDATE transactions SET is_duplicate = ?, merged_into = ? WHERE id = ?`,
		isDuplicate, nullString(mergedInto), transactionID)
	if err != nil {
		return fmt.Errorf("failed to update duplicate flags: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", common.ErrTransactionNotFound, transactionID)
	}
	return nil
}

func scanTransaction(row scanner) (*model.Transaction, error) {
	var txn model.Transaction
	var reference, source, batchID, mergedInto sql.NullString

	err := row.Scan(
		&txn.ID,
		&txn.Description,
		&reference,
		&txn.Date,
		&source,
		&batchID,
		&txn.IsDuplicate,
		&mergedInto,
		&txn.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	txn.Reference = reference.String
	txn.ImportSource = source.String
	txn.ImportBatchID = batchID.String
	if mergedInto.Valid {
		txn.MergedInto = &mergedInto.String
	}
	return &txn, nil
}

func collectTransactions(rows *sql.Rows) ([]model.Transaction, error) {
	defer func() { _ = rows.Close() }()

	var txns []model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, *txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return txns, nil
}
