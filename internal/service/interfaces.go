// Package service defines the interfaces between the ledger engines
// and the persistence layer.
package service

import (
	"context"
	"time"

	"github.com/mbellot/tally/internal/model"
)

// TransactionFilter defines filtering options for transaction queries.
// Hidden (merged) transactions are excluded unless IncludeHidden is
// set, so aggregation-facing callers never see duplicates by default.
type TransactionFilter struct {
	StartDate     *time.Time
	EndDate       *time.Time
	ImportSource  string
	ImportBatchID string
	Limit         int
	IncludeHidden bool
}

// TransactionWithEntries pairs a transaction header with its full
// entry set.
type TransactionWithEntries struct {
	Transaction model.Transaction
	Entries     []model.JournalEntry
}

// Storage defines the contract for the persistence layer. All writes
// that belong to one logical operation must happen through a single Tx
// so no reader ever observes a partially applied unit of work.
type Storage interface {
	// User operations
	CreateUser(ctx context.Context, user *model.User) error
	GetUser(ctx context.Context, id string) (*model.User, error)
	GetUserByName(ctx context.Context, name string) (*model.User, error)
	GetFirstUser(ctx context.Context) (*model.User, error)

	// Account operations
	CreateAccount(ctx context.Context, account *model.Account) error
	GetAccount(ctx context.Context, id string) (*model.Account, error)
	GetAccountByPath(ctx context.Context, path string) (*model.Account, error)
	FindChildAccounts(ctx context.Context, parentID *string, name string) ([]model.Account, error)
	ListAccounts(ctx context.Context, includeInactive bool) ([]model.Account, error)
	ListChildren(ctx context.Context, parentID string) ([]model.Account, error)
	UpdateAccount(ctx context.Context, account *model.Account) error
	DeactivateAccount(ctx context.Context, id string) error
	AccountHasEntries(ctx context.Context, accountID string) (bool, error)

	// Transaction operations
	CreateTransaction(ctx context.Context, txn *model.Transaction, entries []model.JournalEntry) error
	GetTransaction(ctx context.Context, id string) (*model.Transaction, error)
	GetEntries(ctx context.Context, transactionID string) ([]model.JournalEntry, error)
	ReplaceEntries(ctx context.Context, transactionID string, entries []model.JournalEntry) error
	DeleteTransaction(ctx context.Context, id string) error
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]TransactionWithEntries, error)
	SetDuplicateFlags(ctx context.Context, transactionID string, isDuplicate bool, mergedInto *string) error

	// Ownership operations
	ListOwnership(ctx context.Context, accountID string) ([]model.OwnershipShare, error)
	UpsertOwnership(ctx context.Context, share *model.OwnershipShare) error
	DeleteOwnership(ctx context.Context, accountID, userID string) error

	// Match operations
	UpsertMatch(ctx context.Context, m *model.TransactionMatch) error
	GetMatch(ctx context.Context, id string) (*model.TransactionMatch, error)
	GetMatchByPair(ctx context.Context, primaryID, duplicateID string) (*model.TransactionMatch, error)
	ListMatchesForTransaction(ctx context.Context, transactionID string) ([]model.TransactionMatch, error)
	UpdateMatchStatus(ctx context.Context, id string, status model.MatchStatus) error

	// Import bookkeeping
	GetImportedFileByHash(ctx context.Context, hash string) (*model.ImportedFile, error)
	RecordImportedFile(ctx context.Context, file *model.ImportedFile) error

	// Database management
	Migrate(ctx context.Context) error
	BeginTx(ctx context.Context) (Tx, error)
	Close() error
}

// Tx represents a database transaction.
type Tx interface {
	Commit() error
	Rollback() error
	// Include all Storage methods for use within the transaction
	Storage
}
