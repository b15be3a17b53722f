package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OwnershipShare assigns a fraction of an account to a user.
// Percentage is a value in (0,1]; the shares of one account may sum to
// less than 1 (unassigned remainder) but never more.
type OwnershipShare struct {
	CreatedAt  time.Time
	UpdatedAt  time.Time
	AccountID  string
	UserID     string
	Percentage decimal.Decimal
}

// User is a member of the household sharing the ledger.
type User struct {
	CreatedAt   time.Time
	ID          string
	Name        string
	DisplayName string
	Active      bool
}
