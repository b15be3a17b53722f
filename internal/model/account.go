// Package model defines the domain types shared across the application.
package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PathSeparator joins account names into a full hierarchical path.
const PathSeparator = ":"

// AccountType is the top-level accounting classification of an account.
type AccountType string

// Account types.
const (
	TypeAsset     AccountType = "ASSET"
	TypeLiability AccountType = "LIABILITY"
	TypeEquity    AccountType = "EQUITY"
	TypeIncome    AccountType = "INCOME"
	TypeExpense   AccountType = "EXPENSE"
)

// Valid reports whether t is one of the known account types.
func (t AccountType) Valid() bool {
	switch t {
	case TypeAsset, TypeLiability, TypeEquity, TypeIncome, TypeExpense:
		return true
	default:
		return false
	}
}

// AccountSubtype refines an AccountType, e.g. Checking under Asset.
type AccountSubtype string

// Account subtypes.
const (
	SubtypeCategory   AccountSubtype = "CATEGORY"
	SubtypeChecking   AccountSubtype = "CHECKING"
	SubtypeSavings    AccountSubtype = "SAVINGS"
	SubtypeInvestment AccountSubtype = "INVESTMENT"
	SubtypeCash       AccountSubtype = "CASH"
	SubtypeSalary     AccountSubtype = "SALARY"
	SubtypeMortgage   AccountSubtype = "MORTGAGE"
	SubtypeCreditCard AccountSubtype = "CREDIT_CARD"
)

// Account is one node of the chart-of-accounts forest. FullPath is a
// derived value cached from the names along the parent chain; the
// parent pointer is the source of truth.
type Account struct {
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ParentID    *string
	AverageCost *decimal.Decimal
	Quantity    *decimal.Decimal
	ID          string
	Name        string
	FullPath    string
	Symbol      string
	Currency    string
	Notes       string
	Type        AccountType
	Subtype     AccountSubtype
	Active      bool
}

// SplitPath breaks a colon-delimited account path into its segments.
func SplitPath(path string) []string {
	return strings.Split(path, PathSeparator)
}

// JoinPath is the inverse of SplitPath.
func JoinPath(segments ...string) string {
	return strings.Join(segments, PathSeparator)
}
