package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/mbellot/tally/internal/common"
	"github.com/mbellot/tally/internal/model"
	"github.com/mbellot/tally/internal/storage"
)

func newTestStorage(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	return store
}

func createUser(t *testing.T, store *storage.SQLiteStorage, id, name string) {
	t.Helper()
	err := store.CreateUser(context.Background(), &model.User{
		ID:          id,
		Name:        name,
		DisplayName: name,
		Active:      true,
	})
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
}

func TestResolveOrCreateBuildsMissingSegments(t *testing.T) {
	store := newTestStorage(t)
	createUser(t, store, "user-1", "marie")
	dir := NewDirectory(store, "", "EUR")
	ctx := context.Background()

	id, err := dir.ResolveOrCreate(ctx, "Assets:Bank:Checking", model.TypeAsset)
	if err != nil {
		t.Fatalf("ResolveOrCreate failed: %v", err)
	}

	leaf, err := store.GetAccount(ctx, id)
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	if leaf.FullPath != "Assets:Bank:Checking" {
		t.Errorf("FullPath = %q, want Assets:Bank:Checking", leaf.FullPath)
	}
	if leaf.Subtype != model.SubtypeCategory {
		t.Errorf("Subtype = %s, want CATEGORY", leaf.Subtype)
	}

	// Intermediates exist and carry the type hint.
	bank, err := store.GetAccountByPath(ctx, "Assets:Bank")
	if err != nil {
		t.Fatalf("intermediate missing: %v", err)
	}
	if bank.Type != model.TypeAsset {
		t.Errorf("intermediate type = %s, want ASSET", bank.Type)
	}

	// Every created account got full default ownership.
	shares, err := store.ListOwnership(ctx, id)
	if err != nil {
		t.Fatalf("ListOwnership failed: %v", err)
	}
	if len(shares) != 1 || shares[0].UserID != "user-1" {
		t.Fatalf("shares = %+v, want one share for user-1", shares)
	}
	if !shares[0].Percentage.Equal(decimal.NewFromInt(1)) {
		t.Errorf("percentage = %s, want 1", shares[0].Percentage)
	}
}

func TestResolveOrCreateIsIdempotent(t *testing.T) {
	store := newTestStorage(t)
	dir := NewDirectory(store, "", "EUR")
	ctx := context.Background()

	first, err := dir.ResolveOrCreate(ctx, "Expenses:Food", model.TypeExpense)
	if err != nil {
		t.Fatalf("ResolveOrCreate failed: %v", err)
	}
	second, err := dir.ResolveOrCreate(ctx, "Expenses:Food", model.TypeExpense)
	if err != nil {
		t.Fatalf("second ResolveOrCreate failed: %v", err)
	}
	if first != second {
		t.Errorf("resolved different accounts: %s != %s", first, second)
	}

	accounts, err := store.ListAccounts(ctx, true)
	if err != nil {
		t.Fatalf("ListAccounts failed: %v", err)
	}
	if len(accounts) != 2 {
		t.Errorf("got %d accounts, want 2", len(accounts))
	}
}

func TestResolveOrCreateRejectsBadPaths(t *testing.T) {
	store := newTestStorage(t)
	dir := NewDirectory(store, "", "EUR")
	ctx := context.Background()

	tests := []struct {
		name string
		path string
	}{
		{name: "empty path", path: ""},
		{name: "blank path", path: "   "},
		{name: "empty segment", path: "Assets::Checking"},
		{name: "trailing separator", path: "Assets:"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := dir.ResolveOrCreate(ctx, tt.path, model.TypeAsset)
			if !errors.Is(err, common.ErrInvalidPath) {
				t.Errorf("error = %v, want ErrInvalidPath", err)
			}
		})
	}

	if _, err := dir.ResolveOrCreate(ctx, "Assets", model.AccountType("WEIRD")); !errors.Is(err, common.ErrInvalidPath) {
		t.Errorf("error = %v, want ErrInvalidPath for bad type", err)
	}
}

func TestResolveMissingAccount(t *testing.T) {
	store := newTestStorage(t)
	dir := NewDirectory(store, "", "EUR")

	_, err := dir.Resolve(context.Background(), "Assets:Nowhere")
	if !errors.Is(err, common.ErrAccountNotFound) {
		t.Errorf("error = %v, want ErrAccountNotFound", err)
	}
}

func TestCreateRejectsDuplicateLeaf(t *testing.T) {
	store := newTestStorage(t)
	dir := NewDirectory(store, "", "EUR")
	ctx := context.Background()

	spec := AccountSpec{Path: "Assets:Checking", Type: model.TypeAsset, Subtype: model.SubtypeChecking}
	if _, err := dir.Create(ctx, spec); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := dir.Create(ctx, spec); !errors.Is(err, common.ErrDuplicateName) {
		t.Errorf("error = %v, want ErrDuplicateName", err)
	}
}

func TestResolveDetectsAmbiguousSiblings(t *testing.T) {
	store := newTestStorage(t)
	dir := NewDirectory(store, "", "EUR")
	ctx := context.Background()

	// Two same-named roots inserted behind the directory's back.
	for _, id := range []string{"acc-1", "acc-2"} {
		err := store.CreateAccount(ctx, &model.Account{
			ID:       id,
			Name:     "Assets",
			FullPath: "Assets",
			Type:     model.TypeAsset,
			Subtype:  model.SubtypeCategory,
			Currency: "EUR",
			Active:   true,
		})
		if err != nil {
			t.Fatalf("CreateAccount failed: %v", err)
		}
	}

	_, err := dir.Resolve(ctx, "Assets")
	if !errors.Is(err, common.ErrDirectoryCorrupt) {
		t.Errorf("error = %v, want ErrDirectoryCorrupt", err)
	}
}

func TestMoveRecomputesSubtreePaths(t *testing.T) {
	store := newTestStorage(t)
	dir := NewDirectory(store, "", "EUR")
	ctx := context.Background()

	leafID, err := dir.ResolveOrCreate(ctx, "Assets:Bank:Checking", model.TypeAsset)
	if err != nil {
		t.Fatalf("ResolveOrCreate failed: %v", err)
	}
	bank, err := dir.Resolve(ctx, "Assets:Bank")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	// Rename the middle node; the leaf's cached path must follow.
	if err := dir.Move(ctx, bank.ID, "Boursorama", bank.ParentID); err != nil {
		t.Fatalf("Move failed: %v", err)
	}

	leaf, err := store.GetAccount(ctx, leafID)
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	if leaf.FullPath != "Assets:Boursorama:Checking" {
		t.Errorf("FullPath = %q, want Assets:Boursorama:Checking", leaf.FullPath)
	}
	if _, err := dir.Resolve(ctx, "Assets:Boursorama:Checking"); err != nil {
		t.Errorf("Resolve after move failed: %v", err)
	}
}

func TestMoveRejectsCycle(t *testing.T) {
	store := newTestStorage(t)
	dir := NewDirectory(store, "", "EUR")
	ctx := context.Background()

	if _, err := dir.ResolveOrCreate(ctx, "Assets:Bank:Checking", model.TypeAsset); err != nil {
		t.Fatalf("ResolveOrCreate failed: %v", err)
	}
	assets, err := dir.Resolve(ctx, "Assets")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	checking, err := dir.Resolve(ctx, "Assets:Bank:Checking")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	// Moving an account under its own descendant must fail.
	if err := dir.Move(ctx, assets.ID, "", &checking.ID); !errors.Is(err, common.ErrCyclicMove) {
		t.Errorf("error = %v, want ErrCyclicMove", err)
	}
}

func TestMoveRejectsDuplicateSibling(t *testing.T) {
	store := newTestStorage(t)
	dir := NewDirectory(store, "", "EUR")
	ctx := context.Background()

	if _, err := dir.ResolveOrCreate(ctx, "Assets:Checking", model.TypeAsset); err != nil {
		t.Fatalf("ResolveOrCreate failed: %v", err)
	}
	if _, err := dir.ResolveOrCreate(ctx, "Assets:Savings", model.TypeAsset); err != nil {
		t.Fatalf("ResolveOrCreate failed: %v", err)
	}
	savings, err := dir.Resolve(ctx, "Assets:Savings")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if err := dir.Move(ctx, savings.ID, "Checking", savings.ParentID); !errors.Is(err, common.ErrDuplicateName) {
		t.Errorf("error = %v, want ErrDuplicateName", err)
	}
}

func TestDefaultOwnerByConfiguredName(t *testing.T) {
	store := newTestStorage(t)
	createUser(t, store, "user-1", "marie")
	createUser(t, store, "user-2", "paul")
	dir := NewDirectory(store, "paul", "EUR")
	ctx := context.Background()

	id, err := dir.ResolveOrCreate(ctx, "Assets", model.TypeAsset)
	if err != nil {
		t.Fatalf("ResolveOrCreate failed: %v", err)
	}
	shares, err := store.ListOwnership(ctx, id)
	if err != nil {
		t.Fatalf("ListOwnership failed: %v", err)
	}
	if len(shares) != 1 || shares[0].UserID != "user-2" {
		t.Errorf("shares = %+v, want one share for user-2", shares)
	}
}

func TestCreateWithoutUsersSkipsOwnership(t *testing.T) {
	store := newTestStorage(t)
	dir := NewDirectory(store, "", "EUR")
	ctx := context.Background()

	id, err := dir.ResolveOrCreate(ctx, "Assets", model.TypeAsset)
	if err != nil {
		t.Fatalf("ResolveOrCreate failed: %v", err)
	}
	shares, err := store.ListOwnership(ctx, id)
	if err != nil {
		t.Fatalf("ListOwnership failed: %v", err)
	}
	if len(shares) != 0 {
		t.Errorf("got %d shares with no users, want 0", len(shares))
	}
}
