package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mbellot/tally/internal/common"
	"github.com/mbellot/tally/internal/model"
	"github.com/mbellot/tally/internal/service"
)

// Poster creates transactions as atomic balanced sets of journal
// entries. The zero-sum invariant is enforced here, before commit,
// so it holds identically regardless of storage backend.
type Poster struct {
	storage   service.Storage
	directory *Directory
}

// NewPoster creates a posting engine using the given directory for
// path resolution.
func NewPoster(storage service.Storage, directory *Directory) *Poster {
	return &Poster{storage: storage, directory: directory}
}

// EntryDraft is one leg of a draft transaction. Exactly one of
// AccountID and AccountPath must be set; Type is the account type used
// when auto-creating missing path segments.
type EntryDraft struct {
	AccountID   string
	AccountPath string
	Memo        string
	Type        model.AccountType
	Amount      decimal.Decimal
}

// Draft is a transaction before posting.
type Draft struct {
	Date          time.Time
	Description   string
	Reference     string
	ImportSource  string
	ImportBatchID string
	Entries       []EntryDraft
	AutoCreate    bool
}

// Post validates a draft and persists it atomically. Accounts created
// while resolving entry paths are not rolled back on a later failure:
// their creation is idempotent and harmless to retry, unlike a partial
// entry set, which is never persisted.
func (p *Poster) Post(ctx context.Context, draft Draft) (string, error) {
	if len(draft.Entries) < 2 {
		return "", fmt.Errorf("%w: got %d", common.ErrEmptyTransaction, len(draft.Entries))
	}
	if draft.Date.IsZero() {
		return "", common.ErrMissingDate
	}

	entries := make([]model.JournalEntry, 0, len(draft.Entries))
	for i, ed := range draft.Entries {
		accountID, err := p.resolveEntry(ctx, ed, draft.AutoCreate)
		if err != nil {
			return "", fmt.Errorf("entry %d: %w", i, err)
		}
		entries = append(entries, model.JournalEntry{
			AccountID: accountID,
			Amount:    ed.Amount,
			Memo:      ed.Memo,
		})
	}

	if sum := model.EntrySum(entries); !sum.IsZero() {
		return "", fmt.Errorf("%w: got %s", common.ErrUnbalancedTransaction, sum)
	}

	txn := &model.Transaction{
		ID:            uuid.NewString(),
		Description:   draft.Description,
		Reference:     draft.Reference,
		Date:          draft.Date,
		ImportSource:  draft.ImportSource,
		ImportBatchID: draft.ImportBatchID,
	}

	tx, err := p.storage.BeginTx(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.CreateTransaction(ctx, txn, entries); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}

	slog.Debug("posted transaction",
		"id", txn.ID,
		"description", txn.Description,
		"entries", len(entries))
	return txn.ID, nil
}

func (p *Poster) resolveEntry(ctx context.Context, ed EntryDraft, autoCreate bool) (string, error) {
	if ed.AccountID != "" {
		account, err := p.storage.GetAccount(ctx, ed.AccountID)
		if err != nil {
			return "", err
		}
		return account.ID, nil
	}
	if ed.AccountPath == "" {
		return "", fmt.Errorf("%w: entry names neither account id nor path", common.ErrAccountNotFound)
	}

	if autoCreate {
		typeHint := ed.Type
		if typeHint == "" {
			typeHint = model.TypeAsset
		}
		return p.directory.ResolveOrCreate(ctx, ed.AccountPath, typeHint)
	}

	account, err := p.directory.Resolve(ctx, ed.AccountPath)
	if err != nil {
		return "", err
	}
	return account.ID, nil
}

// ReplaceEntries swaps the full entry set of an existing transaction.
// Single-entry edits are deliberately not exposed: the entry set is
// only ever replaced whole, so no reader can observe an unbalanced
// intermediate state.
func (p *Poster) ReplaceEntries(ctx context.Context, transactionID string, drafts []EntryDraft) error {
	if len(drafts) < 2 {
		return fmt.Errorf("%w: got %d", common.ErrEmptyTransaction, len(drafts))
	}

	entries := make([]model.JournalEntry, 0, len(drafts))
	for i, ed := range drafts {
		accountID, err := p.resolveEntry(ctx, ed, false)
		if err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
		entries = append(entries, model.JournalEntry{
			AccountID: accountID,
			Amount:    ed.Amount,
			Memo:      ed.Memo,
		})
	}

	if sum := model.EntrySum(entries); !sum.IsZero() {
		return fmt.Errorf("%w: got %s", common.ErrUnbalancedTransaction, sum)
	}

	tx, err := p.storage.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.ReplaceEntries(ctx, transactionID, entries); err != nil {
		return err
	}
	return tx.Commit()
}

// Delete removes a transaction and its entries. Hidden duplicates must
// be unmerged first so the merge audit trail is never silently lost.
func (p *Poster) Delete(ctx context.Context, transactionID string) error {
	txn, err := p.storage.GetTransaction(ctx, transactionID)
	if err != nil {
		return err
	}
	if txn.IsDuplicate {
		return fmt.Errorf("%w: unmerge %s first", common.ErrAlreadyMerged, transactionID)
	}
	return p.storage.DeleteTransaction(ctx, transactionID)
}

// Transfer posts a two-entry movement between asset accounts.
func (p *Poster) Transfer(ctx context.Context, fromPath, toPath string, amount decimal.Decimal, date time.Time, description string) (string, error) {
	return p.twoLegged(ctx, description, date,
		EntryDraft{AccountPath: toPath, Amount: amount, Type: model.TypeAsset},
		EntryDraft{AccountPath: fromPath, Amount: amount.Neg(), Type: model.TypeAsset})
}

// Income posts a two-entry receipt: debit the asset account, credit
// the income account.
func (p *Poster) Income(ctx context.Context, assetPath, incomePath string, amount decimal.Decimal, date time.Time, description string) (string, error) {
	return p.twoLegged(ctx, description, date,
		EntryDraft{AccountPath: assetPath, Amount: amount, Type: model.TypeAsset},
		EntryDraft{AccountPath: incomePath, Amount: amount.Neg(), Type: model.TypeIncome})
}

// Expense posts a two-entry payment: debit the expense account, credit
// the asset account.
func (p *Poster) Expense(ctx context.Context, assetPath, expensePath string, amount decimal.Decimal, date time.Time, description string) (string, error) {
	return p.twoLegged(ctx, description, date,
		EntryDraft{AccountPath: expensePath, Amount: amount, Type: model.TypeExpense},
		EntryDraft{AccountPath: assetPath, Amount: amount.Neg(), Type: model.TypeAsset})
}

func (p *Poster) twoLegged(ctx context.Context, description string, date time.Time, a, b EntryDraft) (string, error) {
	if !a.Amount.IsPositive() {
		return "", fmt.Errorf("%w: amount must be positive, got %s", common.ErrInvalidAmount, a.Amount)
	}
	return p.Post(ctx, Draft{
		Description: description,
		Date:        date,
		AutoCreate:  true,
		Entries:     []EntryDraft{a, b},
	})
}
