// Package storage provides the SQLite persistence layer for the ledger.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mbellot/tally/internal/model"
)

// Validation errors.
var (
	ErrNilContext     = errors.New("context cannot be nil")
	ErrEmptyString    = errors.New("string parameter cannot be empty")
	ErrNilParameter   = errors.New("parameter cannot be nil")
	ErrInvalidAccount = errors.New("invalid account")
	ErrInvalidTxn     = errors.New("invalid transaction")
	ErrInvalidShare   = errors.New("invalid ownership share")
	ErrInvalidMatch   = errors.New("invalid transaction match")
	ErrInvalidUser    = errors.New("invalid user")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateAccount validates an account row before it is written.
func validateAccount(account *model.Account) error {
	if account == nil {
		return fmt.Errorf("%w: account", ErrNilParameter)
	}
	if account.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidAccount)
	}
	if strings.TrimSpace(account.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidAccount)
	}
	if strings.Contains(account.Name, model.PathSeparator) {
		return fmt.Errorf("%w: name contains path separator", ErrInvalidAccount)
	}
	if !account.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidAccount, account.Type)
	}
	return nil
}

// validateTransaction validates a transaction header.
func validateTransaction(txn *model.Transaction) error {
	if txn == nil {
		return fmt.Errorf("%w: transaction", ErrNilParameter)
	}
	if txn.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidTxn)
	}
	if strings.TrimSpace(txn.Description) == "" {
		return fmt.Errorf("%w: missing description", ErrInvalidTxn)
	}
	if txn.Date.IsZero() {
		return fmt.Errorf("%w: missing date", ErrInvalidTxn)
	}
	return nil
}

// validateShare validates an ownership share.
func validateShare(share *model.OwnershipShare) error {
	if share == nil {
		return fmt.Errorf("%w: share", ErrNilParameter)
	}
	if share.AccountID == "" {
		return fmt.Errorf("%w: missing account ID", ErrInvalidShare)
	}
	if share.UserID == "" {
		return fmt.Errorf("%w: missing user ID", ErrInvalidShare)
	}
	return nil
}

// validateMatch validates a transaction match row.
func validateMatch(m *model.TransactionMatch) error {
	if m == nil {
		return fmt.Errorf("%w: match", ErrNilParameter)
	}
	if m.PrimaryID == "" || m.DuplicateID == "" {
		return fmt.Errorf("%w: missing transaction reference", ErrInvalidMatch)
	}
	if m.PrimaryID == m.DuplicateID {
		return fmt.Errorf("%w: primary and duplicate are the same transaction", ErrInvalidMatch)
	}
	if m.Confidence < 0 || m.Confidence > 1 {
		return fmt.Errorf("%w: confidence must be between 0 and 1", ErrInvalidMatch)
	}
	if !m.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidMatch, m.Status)
	}
	return nil
}

// validateUser validates a user row.
func validateUser(user *model.User) error {
	if user == nil {
		return fmt.Errorf("%w: user", ErrNilParameter)
	}
	if user.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidUser)
	}
	if strings.TrimSpace(user.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidUser)
	}
	return nil
}
