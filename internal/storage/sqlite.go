package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mbellot/tally/internal/model"
	"github.com/mbellot/tally/internal/service"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStorage implements the service.Storage interface using SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	dbPath string
}

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
// Query helpers take a querier so the direct and in-transaction paths
// run identical SQL.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// NewSQLiteStorage creates a new SQLite storage instance.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if err := validateString(dbPath, "dbPath"); err != nil {
		return nil, err
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// _txlock=immediate takes the write lock at BEGIN, so concurrent
	// writers queue on the busy timeout instead of failing at commit.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't benefit from multiple connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteStorage{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new database transaction.
func (s *SQLiteStorage) BeginTx(ctx context.Context) (service.Tx, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	return &sqliteTx{
		tx:      tx,
		storage: s,
	}, nil
}

// sqliteTx wraps sql.Tx to implement service.Tx.
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// Storage methods delegate to the shared helpers with the transaction.

func (t *sqliteTx) CreateUser(ctx context.Context, user *model.User) error {
	if err := validateUser(user); err != nil {
		return err
	}
	return t.storage.createUserTx(ctx, t.tx, user)
}

func (t *sqliteTx) GetUser(ctx context.Context, id string) (*model.User, error) {
	return t.storage.getUserTx(ctx, t.tx, id)
}

func (t *sqliteTx) GetUserByName(ctx context.Context, name string) (*model.User, error) {
	return t.storage.getUserByNameTx(ctx, t.tx, name)
}

func (t *sqliteTx) GetFirstUser(ctx context.Context) (*model.User, error) {
	return t.storage.getFirstUserTx(ctx, t.tx)
}

func (t *sqliteTx) CreateAccount(ctx context.Context, account *model.Account) error {
	if err := validateAccount(account); err != nil {
		return err
	}
	return t.storage.createAccountTx(ctx, t.tx, account)
}

func (t *sqliteTx) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	return t.storage.getAccountTx(ctx, t.tx, id)
}

func (t *sqliteTx) GetAccountByPath(ctx context.Context, path string) (*model.Account, error) {
	return t.storage.getAccountByPathTx(ctx, t.tx, path)
}

func (t *sqliteTx) FindChildAccounts(ctx context.Context, parentID *string, name string) ([]model.Account, error) {
	return t.storage.findChildAccountsTx(ctx, t.tx, parentID, name)
}

func (t *sqliteTx) ListAccounts(ctx context.Context, includeInactive bool) ([]model.Account, error) {
	return t.storage.listAccountsTx(ctx, t.tx, includeInactive)
}

func (t *sqliteTx) ListChildren(ctx context.Context, parentID string) ([]model.Account, error) {
	return t.storage.listChildrenTx(ctx, t.tx, parentID)
}

func (t *sqliteTx) UpdateAccount(ctx context.Context, account *model.Account) error {
	if err := validateAccount(account); err != nil {
		return err
	}
	return t.storage.updateAccountTx(ctx, t.tx, account)
}

func (t *sqliteTx) DeactivateAccount(ctx context.Context, id string) error {
	return t.storage.deactivateAccountTx(ctx, t.tx, id)
}

func (t *sqliteTx) AccountHasEntries(ctx context.Context, accountID string) (bool, error) {
	return t.storage.accountHasEntriesTx(ctx, t.tx, accountID)
}

func (t *sqliteTx) CreateTransaction(ctx context.Context, txn *model.Transaction, entries []model.JournalEntry) error {
	if err := validateTransaction(txn); err != nil {
		return err
	}
	return t.storage.createTransactionTx(ctx, t.tx, txn, entries)
}

func (t *sqliteTx) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	return t.storage.getTransactionTx(ctx, t.tx, id)
}

func (t *sqliteTx) GetEntries(ctx context.Context, transactionID string) ([]model.JournalEntry, error) {
	return t.storage.getEntriesTx(ctx, t.tx, transactionID)
}

func (t *sqliteTx) ReplaceEntries(ctx context.Context, transactionID string, entries []model.JournalEntry) error {
	return t.storage.replaceEntriesTx(ctx, t.tx, transactionID, entries)
}

func (t *sqliteTx) DeleteTransaction(ctx context.Context, id string) error {
	return t.storage.deleteTransactionTx(ctx, t.tx, id)
}

func (t *sqliteTx) ListTransactions(ctx context.Context, filter service.TransactionFilter) ([]service.TransactionWithEntries, error) {
	return t.storage.listTransactionsTx(ctx, t.tx, filter)
}

func (t *sqliteTx) SetDuplicateFlags(ctx context.Context, transactionID string, isDuplicate bool, mergedInto *string) error {
	return t.storage.setDuplicateFlagsTx(ctx, t.tx, transactionID, isDuplicate, mergedInto)
}

func (t *sqliteTx) ListOwnership(ctx context.Context, accountID string) ([]model.OwnershipShare, error) {
	return t.storage.listOwnershipTx(ctx, t.tx, accountID)
}

func (t *sqliteTx) UpsertOwnership(ctx context.Context, share *model.OwnershipShare) error {
	if err := validateShare(share); err != nil {
		return err
	}
	return t.storage.upsertOwnershipTx(ctx, t.tx, share)
}

func (t *sqliteTx) DeleteOwnership(ctx context.Context, accountID, userID string) error {
	return t.storage.deleteOwnershipTx(ctx, t.tx, accountID, userID)
}

func (t *sqliteTx) UpsertMatch(ctx context.Context, m *model.TransactionMatch) error {
	if err := validateMatch(m); err != nil {
		return err
	}
	return t.storage.upsertMatchTx(ctx, t.tx, m)
}

func (t *sqliteTx) GetMatch(ctx context.Context, id string) (*model.TransactionMatch, error) {
	return t.storage.getMatchTx(ctx, t.tx, id)
}

func (t *sqliteTx) GetMatchByPair(ctx context.Context, primaryID, duplicateID string) (*model.TransactionMatch, error) {
	return t.storage.getMatchByPairTx(ctx, t.tx, primaryID, duplicateID)
}

func (t *sqliteTx) ListMatchesForTransaction(ctx context.Context, transactionID string) ([]model.TransactionMatch, error) {
	return t.storage.listMatchesForTransactionTx(ctx, t.tx, transactionID)
}

func (t *sqliteTx) UpdateMatchStatus(ctx context.Context, id string, status model.MatchStatus) error {
	return t.storage.updateMatchStatusTx(ctx, t.tx, id, status)
}

func (t *sqliteTx) GetImportedFileByHash(ctx context.Context, hash string) (*model.ImportedFile, error) {
	return t.storage.getImportedFileByHashTx(ctx, t.tx, hash)
}

func (t *sqliteTx) RecordImportedFile(ctx context.Context, file *model.ImportedFile) error {
	return t.storage.recordImportedFileTx(ctx, t.tx, file)
}

func (t *sqliteTx) Migrate(_ context.Context) error {
	// Migrations should not be run within a transaction
	return fmt.Errorf("migrations cannot be run within a transaction")
}

func (t *sqliteTx) BeginTx(_ context.Context) (service.Tx, error) {
	// Nested transactions not supported
	return nil, fmt.Errorf("nested transactions not supported")
}

func (t *sqliteTx) Close() error {
	// Transactions should be committed or rolled back, not closed
	return fmt.Errorf("transactions must be committed or rolled back, not closed")
}
