package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mbellot/tally/internal/common"
	"github.com/mbellot/tally/internal/model"
)

func newTestPoster(t *testing.T) (*Poster, *Directory) {
	t.Helper()
	store := newTestStorage(t)
	dir := NewDirectory(store, "", "EUR")
	return NewPoster(store, dir), dir
}

func testDate() time.Time {
	return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
}

func TestPostBalancedTransaction(t *testing.T) {
	poster, dir := newTestPoster(t)
	ctx := context.Background()

	id, err := poster.Post(ctx, Draft{
		Date:        testDate(),
		Description: "Salary March",
		AutoCreate:  true,
		Entries: []EntryDraft{
			{AccountPath: "Assets:Checking", Amount: decimal.RequireFromString("3000.00"), Type: model.TypeAsset},
			{AccountPath: "Income:Salary", Amount: decimal.RequireFromString("-3000.00"), Type: model.TypeIncome},
		},
	})
	if err != nil {
		t.Fatalf("Post failed: %v", err)
	}

	txn, err := poster.storage.GetTransaction(ctx, id)
	if err != nil {
		t.Fatalf("GetTransaction failed: %v", err)
	}
	if txn.Description != "Salary March" {
		t.Errorf("Description = %q, want Salary March", txn.Description)
	}

	entries, err := poster.storage.GetEntries(ctx, id)
	if err != nil {
		t.Fatalf("GetEntries failed: %v", err)
	}
	if !model.EntrySum(entries).IsZero() {
		t.Errorf("entries sum to %s, want 0", model.EntrySum(entries))
	}

	// The entry paths were auto-created.
	if _, err := dir.Resolve(ctx, "Income:Salary"); err != nil {
		t.Errorf("auto-created account missing: %v", err)
	}
}

func TestPostRejectsUnbalancedEntries(t *testing.T) {
	poster, _ := newTestPoster(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		amounts []string
	}{
		{name: "off by five", amounts: []string{"100.00", "-95.00"}},
		{name: "off by a thousandth", amounts: []string{"100.000", "-99.999"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries := make([]EntryDraft, len(tt.amounts))
			for i, a := range tt.amounts {
				entries[i] = EntryDraft{
					AccountPath: "Assets:Checking",
					Amount:      decimal.RequireFromString(a),
					Type:        model.TypeAsset,
				}
			}
			_, err := poster.Post(ctx, Draft{
				Date:        testDate(),
				Description: "unbalanced",
				AutoCreate:  true,
				Entries:     entries,
			})
			if !errors.Is(err, common.ErrUnbalancedTransaction) {
				t.Errorf("error = %v, want ErrUnbalancedTransaction", err)
			}
		})
	}
}

func TestPostRequiresTwoEntries(t *testing.T) {
	poster, _ := newTestPoster(t)
	ctx := context.Background()

	_, err := poster.Post(ctx, Draft{
		Date:        testDate(),
		Description: "lonely",
		AutoCreate:  true,
		Entries: []EntryDraft{
			{AccountPath: "Assets:Checking", Amount: decimal.Zero, Type: model.TypeAsset},
		},
	})
	if !errors.Is(err, common.ErrEmptyTransaction) {
		t.Errorf("error = %v, want ErrEmptyTransaction", err)
	}

	_, err = poster.Post(ctx, Draft{Date: testDate(), Description: "empty"})
	if !errors.Is(err, common.ErrEmptyTransaction) {
		t.Errorf("error = %v, want ErrEmptyTransaction", err)
	}
}

func TestPostRequiresDate(t *testing.T) {
	poster, _ := newTestPoster(t)
	ctx := context.Background()

	_, err := poster.Post(ctx, Draft{
		Description: "undated",
		AutoCreate:  true,
		Entries: []EntryDraft{
			{AccountPath: "Assets:Checking", Amount: decimal.RequireFromString("10.00"), Type: model.TypeAsset},
			{AccountPath: "Expenses:Misc", Amount: decimal.RequireFromString("-10.00"), Type: model.TypeExpense},
		},
	})
	if !errors.Is(err, common.ErrMissingDate) {
		t.Errorf("error = %v, want ErrMissingDate", err)
	}
}

func TestPostWithoutAutoCreateFailsOnMissingAccount(t *testing.T) {
	poster, _ := newTestPoster(t)
	ctx := context.Background()

	_, err := poster.Post(ctx, Draft{
		Date:        testDate(),
		Description: "no accounts",
		Entries: []EntryDraft{
			{AccountPath: "Assets:Checking", Amount: decimal.RequireFromString("10.00")},
			{AccountPath: "Expenses:Food", Amount: decimal.RequireFromString("-10.00")},
		},
	})
	if !errors.Is(err, common.ErrAccountNotFound) {
		t.Errorf("error = %v, want ErrAccountNotFound", err)
	}
}

func TestReplaceEntriesKeepsBalance(t *testing.T) {
	poster, _ := newTestPoster(t)
	ctx := context.Background()

	id, err := poster.Post(ctx, Draft{
		Date:        testDate(),
		Description: "Groceries",
		AutoCreate:  true,
		Entries: []EntryDraft{
			{AccountPath: "Expenses:Food", Amount: decimal.RequireFromString("45.00"), Type: model.TypeExpense},
			{AccountPath: "Assets:Checking", Amount: decimal.RequireFromString("-45.00"), Type: model.TypeAsset},
		},
	})
	if err != nil {
		t.Fatalf("Post failed: %v", err)
	}

	err = poster.ReplaceEntries(ctx, id, []EntryDraft{
		{AccountPath: "Expenses:Food", Amount: decimal.RequireFromString("47.50")},
		{AccountPath: "Assets:Checking", Amount: decimal.RequireFromString("-47.50")},
	})
	if err != nil {
		t.Fatalf("ReplaceEntries failed: %v", err)
	}

	entries, err := poster.storage.GetEntries(ctx, id)
	if err != nil {
		t.Fatalf("GetEntries failed: %v", err)
	}
	if len(entries) != 2 || !entries[0].Amount.Abs().Equal(decimal.RequireFromString("47.50")) {
		t.Errorf("entries = %+v, want replaced 47.50 pair", entries)
	}

	// An unbalanced replacement leaves the old entries untouched.
	err = poster.ReplaceEntries(ctx, id, []EntryDraft{
		{AccountPath: "Expenses:Food", Amount: decimal.RequireFromString("50.00")},
		{AccountPath: "Assets:Checking", Amount: decimal.RequireFromString("-47.50")},
	})
	if !errors.Is(err, common.ErrUnbalancedTransaction) {
		t.Fatalf("error = %v, want ErrUnbalancedTransaction", err)
	}
	entries, err = poster.storage.GetEntries(ctx, id)
	if err != nil {
		t.Fatalf("GetEntries failed: %v", err)
	}
	if !entries[0].Amount.Abs().Equal(decimal.RequireFromString("47.50")) {
		t.Errorf("entries changed after failed replacement: %+v", entries)
	}
}

func TestConvenienceHelpers(t *testing.T) {
	poster, _ := newTestPoster(t)
	ctx := context.Background()

	if _, err := poster.Income(ctx, "Assets:Checking", "Income:Salary", decimal.RequireFromString("3000.00"), testDate(), "Salary"); err != nil {
		t.Fatalf("Income failed: %v", err)
	}
	if _, err := poster.Expense(ctx, "Assets:Checking", "Expenses:Food", decimal.RequireFromString("45.00"), testDate(), "Groceries"); err != nil {
		t.Fatalf("Expense failed: %v", err)
	}
	if _, err := poster.Transfer(ctx, "Assets:Checking", "Assets:Savings", decimal.RequireFromString("500.00"), testDate(), "Monthly savings"); err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}

	// Negative amounts are rejected; direction comes from the helper.
	_, err := poster.Transfer(ctx, "Assets:Checking", "Assets:Savings", decimal.RequireFromString("-500.00"), testDate(), "backwards")
	if !errors.Is(err, common.ErrInvalidAmount) {
		t.Errorf("error = %v, want ErrInvalidAmount", err)
	}
}

func TestDeleteRefusesHiddenDuplicate(t *testing.T) {
	poster, _ := newTestPoster(t)
	ctx := context.Background()

	post := func(desc string) string {
		id, err := poster.Post(ctx, Draft{
			Date:        testDate(),
			Description: desc,
			AutoCreate:  true,
			Entries: []EntryDraft{
				{AccountPath: "Assets:Checking", Amount: decimal.RequireFromString("10.00"), Type: model.TypeAsset},
				{AccountPath: "Income:Misc", Amount: decimal.RequireFromString("-10.00"), Type: model.TypeIncome},
			},
		})
		if err != nil {
			t.Fatalf("Post failed: %v", err)
		}
		return id
	}
	primary := post("first")
	duplicate := post("second")

	if err := poster.storage.SetDuplicateFlags(ctx, duplicate, true, &primary); err != nil {
		t.Fatalf("SetDuplicateFlags failed: %v", err)
	}

	if err := poster.Delete(ctx, duplicate); !errors.Is(err, common.ErrAlreadyMerged) {
		t.Errorf("error = %v, want ErrAlreadyMerged", err)
	}
	if err := poster.Delete(ctx, primary); err != nil {
		t.Errorf("Delete of visible transaction failed: %v", err)
	}
}
