// Package ledger implements the core bookkeeping engines: the account
// directory, the ownership ledger and the posting engine.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mbellot/tally/internal/common"
	"github.com/mbellot/tally/internal/model"
	"github.com/mbellot/tally/internal/service"
)

// Directory resolves colon-delimited paths to accounts, creating
// missing segments on demand. The cached full_path column is derived
// state: the parent pointer and name are authoritative, and every
// rename or move recomputes the paths of the affected subtree.
type Directory struct {
	storage      service.Storage
	defaultOwner string
	currency     string
}

// NewDirectory creates a directory over the given storage.
// defaultOwner is the user name that receives 100% ownership of newly
// created accounts; when empty, the first active user is used.
func NewDirectory(storage service.Storage, defaultOwner, currency string) *Directory {
	if currency == "" {
		currency = "EUR"
	}
	return &Directory{
		storage:      storage,
		defaultOwner: defaultOwner,
		currency:     currency,
	}
}

// AccountSpec describes a leaf account to create by path.
type AccountSpec struct {
	Path     string
	Type     model.AccountType
	Subtype  model.AccountSubtype
	Currency string
	Symbol   string
	Notes    string
}

// validatePath splits a path and rejects empty or malformed segments.
func validatePath(path string) ([]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: empty path", common.ErrInvalidPath)
	}
	segments := model.SplitPath(path)
	for _, seg := range segments {
		if strings.TrimSpace(seg) == "" {
			return nil, fmt.Errorf("%w: empty segment in %q", common.ErrInvalidPath, path)
		}
	}
	return segments, nil
}

// Resolve walks a path from the root and returns the account it names,
// without creating anything.
func (d *Directory) Resolve(ctx context.Context, path string) (*model.Account, error) {
	segments, err := validatePath(path)
	if err != nil {
		return nil, err
	}

	var current *model.Account
	var parentID *string
	for _, seg := range segments {
		account, err := d.lookupChild(ctx, d.storage, parentID, seg, path)
		if err != nil {
			return nil, err
		}
		if account == nil {
			return nil, fmt.Errorf("%w: %s", common.ErrAccountNotFound, path)
		}
		current = account
		parentID = &account.ID
	}
	return current, nil
}

// ResolveOrCreate walks a path from the root, creating each missing
// segment with the given type and a generic category subtype. Each
// created account gets default ownership in the same unit of work as
// its insertion; accounts created before a later failure stay created,
// since creation is idempotent to retry.
func (d *Directory) ResolveOrCreate(ctx context.Context, path string, typeHint model.AccountType) (string, error) {
	segments, err := validatePath(path)
	if err != nil {
		return "", err
	}
	if !typeHint.Valid() {
		return "", fmt.Errorf("%w: unknown account type %q", common.ErrInvalidPath, typeHint)
	}

	var parentID *string
	var parentPath string
	var resolvedID string
	for _, seg := range segments {
		account, err := d.lookupChild(ctx, d.storage, parentID, seg, path)
		if err != nil {
			return "", err
		}

		fullPath := seg
		if parentPath != "" {
			fullPath = model.JoinPath(parentPath, seg)
		}

		if account == nil {
			account, err = d.createAccount(ctx, &model.Account{
				ID:       uuid.NewString(),
				Name:     seg,
				FullPath: fullPath,
				Type:     typeHint,
				Subtype:  model.SubtypeCategory,
				ParentID: parentID,
				Currency: d.currency,
				Active:   true,
			})
			if err != nil {
				return "", err
			}
		}

		resolvedID = account.ID
		parentID = &account.ID
		parentPath = account.FullPath
	}
	return resolvedID, nil
}

// Create creates a leaf account by path with an explicit subtype,
// auto-creating missing ancestors as categories of the same type.
func (d *Directory) Create(ctx context.Context, spec AccountSpec) (*model.Account, error) {
	segments, err := validatePath(spec.Path)
	if err != nil {
		return nil, err
	}
	if !spec.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown account type %q", common.ErrInvalidPath, spec.Type)
	}

	if len(segments) > 1 {
		parentPath := model.JoinPath(segments[:len(segments)-1]...)
		if _, err := d.ResolveOrCreate(ctx, parentPath, spec.Type); err != nil {
			return nil, err
		}
	}

	var parentID *string
	var parentPath string
	if len(segments) > 1 {
		parent, err := d.Resolve(ctx, model.JoinPath(segments[:len(segments)-1]...))
		if err != nil {
			return nil, err
		}
		parentID = &parent.ID
		parentPath = parent.FullPath
	}

	name := segments[len(segments)-1]
	existing, err := d.lookupChild(ctx, d.storage, parentID, name, spec.Path)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", common.ErrDuplicateName, spec.Path)
	}

	subtype := spec.Subtype
	if subtype == "" {
		subtype = model.SubtypeCategory
	}
	currency := spec.Currency
	if currency == "" {
		currency = d.currency
	}

	fullPath := name
	if parentPath != "" {
		fullPath = model.JoinPath(parentPath, name)
	}

	return d.createAccount(ctx, &model.Account{
		ID:       uuid.NewString(),
		Name:     name,
		FullPath: fullPath,
		Type:     spec.Type,
		Subtype:  subtype,
		ParentID: parentID,
		Currency: currency,
		Symbol:   spec.Symbol,
		Notes:    spec.Notes,
		Active:   true,
	})
}

// lookupChild finds the single active account with the given name
// under the given parent. More than one sibling with the same name
// means the uniqueness invariant is already broken outside this core's
// control, which is fatal, not recoverable.
func (d *Directory) lookupChild(ctx context.Context, store service.Storage, parentID *string, name, path string) (*model.Account, error) {
	matches, err := store.FindChildAccounts(ctx, parentID, name)
	if err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return &matches[0], nil
	default:
		return nil, fmt.Errorf("%w: %d accounts named %q while resolving %q",
			common.ErrDirectoryCorrupt, len(matches), name, path)
	}
}

// createAccount inserts the account and its default ownership in one
// unit of work.
func (d *Directory) createAccount(ctx context.Context, account *model.Account) (*model.Account, error) {
	ownerID, err := d.defaultOwnerID(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := d.storage.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.CreateAccount(ctx, account); err != nil {
		return nil, err
	}
	if ownerID != "" {
		share := &model.OwnershipShare{
			AccountID:  account.ID,
			UserID:     ownerID,
			Percentage: decimal.NewFromInt(1),
		}
		if err := tx.UpsertOwnership(ctx, share); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	slog.Debug("created account", "path", account.FullPath, "type", account.Type)
	return account, nil
}

// defaultOwnerID applies the default-ownership policy: the configured
// owner if set, otherwise the first active user. A ledger with no
// users yet creates accounts without ownership.
func (d *Directory) defaultOwnerID(ctx context.Context) (string, error) {
	if d.defaultOwner != "" {
		user, err := d.storage.GetUserByName(ctx, d.defaultOwner)
		if err != nil {
			return "", err
		}
		return user.ID, nil
	}

	user, err := d.storage.GetFirstUser(ctx)
	if errors.Is(err, common.ErrUserNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return user.ID, nil
}

// Move renames an account and/or reparents it, then recomputes the
// cached paths of the moved subtree.
func (d *Directory) Move(ctx context.Context, accountID, newName string, newParentID *string) error {
	account, err := d.storage.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if newName == "" {
		newName = account.Name
	}
	if strings.TrimSpace(newName) == "" || strings.Contains(newName, model.PathSeparator) {
		return fmt.Errorf("%w: invalid name %q", common.ErrInvalidPath, newName)
	}

	var parentPath string
	if newParentID != nil {
		parent, err := d.storage.GetAccount(ctx, *newParentID)
		if err != nil {
			return err
		}
		parentPath = parent.FullPath

		// The destination must not be the account itself or any of
		// its descendants.
		for cursor := parent; ; {
			if cursor.ID == account.ID {
				return fmt.Errorf("%w: %s into %s", common.ErrCyclicMove, account.FullPath, parent.FullPath)
			}
			if cursor.ParentID == nil {
				break
			}
			cursor, err = d.storage.GetAccount(ctx, *cursor.ParentID)
			if err != nil {
				return err
			}
		}
	}

	siblings, err := d.storage.FindChildAccounts(ctx, newParentID, newName)
	if err != nil {
		return err
	}
	for _, sib := range siblings {
		if sib.ID != account.ID {
			return fmt.Errorf("%w: %q", common.ErrDuplicateName, newName)
		}
	}

	tx, err := d.storage.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	account.Name = newName
	account.ParentID = newParentID
	if parentPath != "" {
		account.FullPath = model.JoinPath(parentPath, newName)
	} else {
		account.FullPath = newName
	}
	if err := tx.UpdateAccount(ctx, account); err != nil {
		return err
	}
	if err := d.recomputeSubtree(ctx, tx, account); err != nil {
		return err
	}

	return tx.Commit()
}

// recomputeSubtree rewrites the cached paths of every descendant of
// the given account. Scoped to the changed subtree only.
func (d *Directory) recomputeSubtree(ctx context.Context, tx service.Tx, parent *model.Account) error {
	children, err := tx.ListChildren(ctx, parent.ID)
	if err != nil {
		return err
	}
	for i := range children {
		child := &children[i]
		child.FullPath = model.JoinPath(parent.FullPath, child.Name)
		if err := tx.UpdateAccount(ctx, child); err != nil {
			return err
		}
		if err := d.recomputeSubtree(ctx, tx, child); err != nil {
			return err
		}
	}
	return nil
}

// Deactivate soft-deletes an account. The row survives as long as any
// journal entry references it.
func (d *Directory) Deactivate(ctx context.Context, accountID string) error {
	return d.storage.DeactivateAccount(ctx, accountID)
}
