// Package common provides shared utilities and types used across the application.
package common

import (
	"errors"
	"fmt"
)

// Validation errors: rejected before anything is persisted, recoverable
// by correcting the input.
var (
	ErrInvalidPath       = errors.New("invalid account path")
	ErrEmptyTransaction  = errors.New("transaction requires at least two entries")
	ErrInvalidPercentage = errors.New("ownership percentage must be in (0, 1]")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrMissingDate       = errors.New("transaction date is required")
)

// Invariant errors: rejected at commit time, the unit of work is fully
// rolled back.
var (
	ErrUnbalancedTransaction = errors.New("transaction entries do not sum to zero")
	ErrOwnershipExceeded     = errors.New("total ownership cannot exceed 100%")
	ErrSelfMatch             = errors.New("transaction cannot match itself")
	ErrSelfMerge             = errors.New("transaction cannot be merged into itself")
	ErrAlreadyMerged         = errors.New("transaction is already merged")
	ErrNotMerged             = errors.New("transaction is not merged")
	ErrDuplicateName         = errors.New("account name already exists under this parent")
	ErrCyclicMove            = errors.New("account cannot become its own ancestor")
)

// Lookup errors.
var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrMatchNotFound       = errors.New("match not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrFileAlreadyImported = errors.New("file already imported")
)

// Integrity errors: the persisted state already violates an invariant
// this core relies on. Fatal, surfaced rather than worked around.
var (
	ErrDirectoryCorrupt = errors.New("account directory corrupt")
)

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}
