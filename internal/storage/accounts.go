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
)

const accountColumns = `id, name, full_path, account_type, account_subtype, parent_id,
	symbol, quantity, average_cost, currency, notes, is_active, created_at, updated_at`

// CreateAccount inserts a new account row.
func (s *SQLiteStorage) CreateAccount(ctx context.Context, account *model.Account) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateAccount(account); err != nil {
		return err
	}
	return s.createAccountTx(ctx, s.db, account)
}

func (s *SQLiteStorage) createAccountTx(ctx context.Context, q querier, account *model.Account) error {
	now := time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now

	_, err := q.ExecContext(ctx, `
		INSERT INTO accounts (
			id, name, full_path, account_type, account_subtype, parent_id,
			symbol, quantity, average_cost, currency, notes, is_active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		account.ID,
		account.Name,
		account.FullPath,
		string(account.Type),
		string(account.Subtype),
		nullString(account.ParentID),
		account.Symbol,
		nullDecimal(account.Quantity),
		nullDecimal(account.AverageCost),
		account.Currency,
		account.Notes,
		account.Active,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert account %q: %w", account.FullPath, err)
	}
	return nil
}

// GetAccount fetches an account by id, active or not.
func (s *SQLiteStorage) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return s.getAccountTx(ctx, s.db, id)
}

func (s *SQLiteStorage) getAccountTx(ctx context.Context, q querier, id string) (*model.Account, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", common.ErrAccountNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// GetAccountByPath fetches an active account by its cached full path.
func (s *SQLiteStorage) GetAccountByPath(ctx context.Context, path string) (*model.Account, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(path, "path"); err != nil {
		return nil, err
	}
	return s.getAccountByPathTx(ctx, s.db, path)
}

func (s *SQLiteStorage) getAccountByPathTx(ctx context.Context, q querier, path string) (*model.Account, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE full_path = ? AND is_active = 1`, path)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", common.ErrAccountNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account by path: %w", err)
	}
	return account, nil
}

// FindChildAccounts returns all active accounts with the given name
// under the given parent (nil parent means root). The sibling
// uniqueness invariant guarantees at most one result; callers treat
// more than one as directory corruption.
func (s *SQLiteStorage) FindChildAccounts(ctx context.Context, parentID *string, name string) ([]model.Account, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(name, "name"); err != nil {
		return nil, err
	}
	return s.findChildAccountsTx(ctx, s.db, parentID, name)
}

func (s *SQLiteStorage) findChildAccountsTx(ctx context.Context, q querier, parentID *string, name string) ([]model.Account, error) {
	var rows *sql.Rows
	var err error
	if parentID == nil {
		rows, err = q.QueryContext(ctx,
			`SELECT `+accountColumns+` FROM accounts WHERE parent_id IS NULL AND name = ? AND is_active = 1`, name)
	} else {
		rows, err = q.QueryContext(ctx,
			`SELECT `+accountColumns+` FROM accounts WHERE parent_id = ? AND name = ? AND is_active = 1`, *parentID, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query child accounts: %w", err)
	}
	return collectAccounts(rows)
}

// ListAccounts returns all accounts ordered by path.
func (s *SQLiteStorage) ListAccounts(ctx context.Context, includeInactive bool) ([]model.Account, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.listAccountsTx(ctx, s.db, includeInactive)
}

func (s *SQLiteStorage) listAccountsTx(ctx context.Context, q querier, includeInactive bool) ([]model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts`
	if !includeInactive {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY full_path`

	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return collectAccounts(rows)
}

// ListChildren returns the direct active children of an account.
func (s *SQLiteStorage) ListChildren(ctx context.Context, parentID string) ([]model.Account, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(parentID, "parentID"); err != nil {
		return nil, err
	}
	return s.listChildrenTx(ctx, s.db, parentID)
}

func (s *SQLiteStorage) listChildrenTx(ctx context.Context, q querier, parentID string) ([]model.Account, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE parent_id = ? AND is_active = 1 ORDER BY name`, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list children: %w", err)
	}
	return collectAccounts(rows)
}

// UpdateAccount rewrites the mutable columns of an account row.
func (s *SQLiteStorage) UpdateAccount(ctx context.Context, account *model.Account) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateAccount(account); err != nil {
		return err
	}
	return s.updateAccountTx(ctx, s.db, account)
}

func (s *SQLiteStorage) updateAccountTx(ctx context.Context, q querier, account *model.Account) error {
	account.UpdatedAt = time.Now().UTC()

	result, err := q.ExecContext(ctx, `
		UPDATE accounts SET
			name = ?, full_path = ?, account_type = ?, account_subtype = ?,
			parent_id = ?, symbol = ?, quantity = ?, average_cost = ?,
			currency = ?, notes = ?, is_active = ?, updated_at = ?
		WHERE id = ?`,
		account.Name,
		account.FullPath,
		string(account.Type),
		string(account.Subtype),
		nullString(account.ParentID),
		account.Symbol,
		nullDecimal(account.Quantity),
		nullDecimal(account.AverageCost),
		account.Currency,
		account.Notes,
		account.Active,
		account.UpdatedAt,
		account.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", common.ErrAccountNotFound, account.ID)
	}
	return nil
}

// DeactivateAccount soft-deletes an account. Accounts referenced by
// journal entries keep their rows forever.
func (s *SQLiteStorage) DeactivateAccount(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}
	return s.deactivateAccountTx(ctx, s.db, id)
}

func (s *SQLiteStorage) deactivateAccountTx(ctx context.Context, q querier, id string) error {
	result, err := q.ExecContext(ctx,
		`UPDATE accounts SET is_active = 0, updated_at = ? WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to deactivate account: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", common.ErrAccountNotFound, id)
	}
	return nil
}

// AccountHasEntries reports whether any journal entry references the account.
func (s *SQLiteStorage) AccountHasEntries(ctx context.Context, accountID string) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateString(accountID, "accountID"); err != nil {
		return false, err
	}
	return s.accountHasEntriesTx(ctx, s.db, accountID)
}

func (s *SQLiteStorage) accountHasEntriesTx(ctx context.Context, q querier, accountID string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM journal_entries WHERE account_id = ? LIMIT 1`, accountID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to count entries: %w", err)
	}
	return count > 0, nil
}

// scanner abstracts sql.Row and sql.Rows for the scan helpers.
type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (*model.Account, error) {
	var account model.Account
	var accountType, subtype string
	var parentID, symbol, quantity, averageCost, notes sql.NullString

	err := row.Scan(
		&account.ID,
		&account.Name,
		&account.FullPath,
		&accountType,
		&subtype,
		&parentID,
		&symbol,
		&quantity,
		&averageCost,
		&account.Currency,
		&notes,
		&account.Active,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	account.Type = model.AccountType(accountType)
	account.Subtype = model.AccountSubtype(subtype)
	if parentID.Valid {
		account.ParentID = &parentID.String
	}
	account.Symbol = symbol.String
	account.Notes = notes.String

	if quantity.Valid {
		d, derr := decimal.NewFromString(quantity.String)
		if derr != nil {
			return nil, fmt.Errorf("corrupt quantity for account %s: %w", account.ID, derr)
		}
		account.Quantity = &d
	}
	if averageCost.Valid {
		d, derr := decimal.NewFromString(averageCost.String)
		if derr != nil {
			return nil, fmt.Errorf("corrupt average cost for account %s: %w", account.ID, derr)
		}
		account.AverageCost = &d
	}

	return &account, nil
}

func collectAccounts(rows *sql.Rows) ([]model.Account, error) {
	defer func() { _ = rows.Close() }()

	var accounts []model.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, *account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}
	return accounts, nil
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullDecimal(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}
