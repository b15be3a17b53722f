package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mbellot/tally/internal/common"
	"github.com/mbellot/tally/internal/model"
	"github.com/mbellot/tally/internal/service"
)

func seedAccounts(t *testing.T, store *SQLiteStorage) {
	t.Helper()
	ctx := context.Background()
	checking := testAccount("acc-checking", "Checking", "Checking", nil)
	if err := store.CreateAccount(ctx, checking); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	salary := testAccount("acc-salary", "Salary", "Salary", nil)
	salary.Type = model.TypeIncome
	if err := store.CreateAccount(ctx, salary); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
}

func balancedEntries(amount string) []model.JournalEntry {
	amt := decimal.RequireFromString(amount)
	return []model.JournalEntry{
		{AccountID: "acc-checking", Amount: amt},
		{AccountID: "acc-salary", Amount: amt.Neg()},
	}
}

func seedTransaction(t *testing.T, store *SQLiteStorage, id, description, amount string, date time.Time, source string) {
	t.Helper()
	txn := &model.Transaction{
		ID:           id,
		Description:  description,
		Date:         date,
		ImportSource: source,
	}
	if err := store.CreateTransaction(context.Background(), txn, balancedEntries(amount)); err != nil {
		t.Fatalf("CreateTransaction failed: %v", err)
	}
}

func TestCreateAndGetTransaction(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	seedAccounts(t, store)
	ctx := context.Background()

	date := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	seedTransaction(t, store, "txn-1", "Salary March", "3000.00", date, "boursorama")

	got, err := store.GetTransaction(ctx, "txn-1")
	if err != nil {
		t.Fatalf("GetTransaction failed: %v", err)
	}
	if got.Description != "Salary March" {
		t.Errorf("Description = %q, want %q", got.Description, "Salary March")
	}
	if got.IsDuplicate {
		t.Error("new transaction should not be flagged as duplicate")
	}

	entries, err := store.GetEntries(ctx, "txn-1")
	if err != nil {
		t.Fatalf("GetEntries failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if !model.EntrySum(entries).IsZero() {
		t.Errorf("entries sum to %s, want 0", model.EntrySum(entries))
	}
	// Amounts survive the round trip exactly.
	if !entries[0].Amount.Equal(decimal.RequireFromString("3000.00")) {
		t.Errorf("amount = %s, want 3000.00", entries[0].Amount)
	}
}

func TestListTransactionsFilters(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	seedAccounts(t, store)
	ctx := context.Background()

	jan := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC)
	seedTransaction(t, store, "txn-jan", "Groceries", "45.00", jan, "boursorama")
	seedTransaction(t, store, "txn-feb", "Groceries", "45.00", feb, "fortuneo")

	from := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	got, err := store.ListTransactions(ctx, service.TransactionFilter{StartDate: &from})
	if err != nil {
		t.Fatalf("ListTransactions failed: %v", err)
	}
	if len(got) != 1 || got[0].Transaction.ID != "txn-feb" {
		t.Errorf("date filter returned %d results, want [txn-feb]", len(got))
	}

	got, err = store.ListTransactions(ctx, service.TransactionFilter{ImportSource: "boursorama"})
	if err != nil {
		t.Fatalf("ListTransactions failed: %v", err)
	}
	if len(got) != 1 || got[0].Transaction.ID != "txn-jan" {
		t.Errorf("source filter returned %d results, want [txn-jan]", len(got))
	}

	// Entries ride along with each header.
	if len(got[0].Entries) != 2 {
		t.Errorf("got %d entries, want 2", len(got[0].Entries))
	}
}

func TestListTransactionsHidesDuplicates(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	seedAccounts(t, store)
	ctx := context.Background()

	date := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	seedTransaction(t, store, "txn-1", "Salary", "3000.00", date, "boursorama")
	seedTransaction(t, store, "txn-2", "Salary", "3000.00", date, "fortuneo")

	primary := "txn-1"
	if err := store.SetDuplicateFlags(ctx, "txn-2", true, &primary); err != nil {
		t.Fatalf("SetDuplicateFlags failed: %v", err)
	}

	visible, err := store.ListTransactions(ctx, service.TransactionFilter{})
	if err != nil {
		t.Fatalf("ListTransactions failed: %v", err)
	}
	if len(visible) != 1 || visible[0].Transaction.ID != "txn-1" {
		t.Errorf("visible = %d transactions, want only txn-1", len(visible))
	}

	all, err := store.ListTransactions(ctx, service.TransactionFilter{IncludeHidden: true})
	if err != nil {
		t.Fatalf("ListTransactions with hidden failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("got %d transactions with IncludeHidden, want 2", len(all))
	}

	hidden, err := store.GetTransaction(ctx, "txn-2")
	if err != nil {
		t.Fatalf("GetTransaction failed: %v", err)
	}
	if !hidden.IsDuplicate || hidden.MergedInto == nil || *hidden.MergedInto != "txn-1" {
		t.Errorf("flags = (%v, %v), want (true, txn-1)", hidden.IsDuplicate, hidden.MergedInto)
	}
}

func TestReplaceEntries(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	seedAccounts(t, store)
	ctx := context.Background()

	date := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	seedTransaction(t, store, "txn-1", "Salary", "3000.00", date, "")

	if err := store.ReplaceEntries(ctx, "txn-1", balancedEntries("3100.00")); err != nil {
		t.Fatalf("ReplaceEntries failed: %v", err)
	}

	entries, err := store.GetEntries(ctx, "txn-1")
	if err != nil {
		t.Fatalf("GetEntries failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if !entries[0].Amount.Equal(decimal.RequireFromString("3100.00")) {
		t.Errorf("amount = %s, want 3100.00", entries[0].Amount)
	}
}

func TestDeleteTransactionCascadesEntries(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	seedAccounts(t, store)
	ctx := context.Background()

	date := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	seedTransaction(t, store, "txn-1", "Salary", "3000.00", date, "")

	if err := store.DeleteTransaction(ctx, "txn-1"); err != nil {
		t.Fatalf("DeleteTransaction failed: %v", err)
	}
	if _, err := store.GetTransaction(ctx, "txn-1"); !errors.Is(err, common.ErrTransactionNotFound) {
		t.Errorf("error = %v, want ErrTransactionNotFound", err)
	}

	has, err := store.AccountHasEntries(ctx, "acc-checking")
	if err != nil {
		t.Fatalf("AccountHasEntries failed: %v", err)
	}
	if has {
		t.Error("entries survived transaction deletion")
	}
}
