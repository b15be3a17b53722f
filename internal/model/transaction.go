package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is the header of a balanced set of journal entries.
// IsDuplicate and MergedInto are visibility flags maintained by the
// merge manager; a hidden transaction keeps its entries untouched.
type Transaction struct {
	Date          time.Time
	CreatedAt     time.Time
	MergedInto    *string
	ID            string
	Description   string
	Reference     string
	ImportSource  string
	ImportBatchID string
	IsDuplicate   bool
}

// JournalEntry posts one signed amount to one account within a
// transaction. Positive amounts are debits, negative are credits.
type JournalEntry struct {
	CreatedAt     time.Time
	Amount        decimal.Decimal
	TransactionID string
	AccountID     string
	Memo          string
	ID            int64
}

// EntrySum returns the exact signed sum of a set of entries.
func EntrySum(entries []JournalEntry) decimal.Decimal {
	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(e.Amount)
	}
	return sum
}

// EntryMagnitude returns the total debit volume of a transaction: the
// sum of its positive entries. For a balanced set this equals the
// absolute credit volume, making it a stable size measure when
// comparing transactions recorded from different sources.
func EntryMagnitude(entries []JournalEntry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		if e.Amount.IsPositive() {
			total = total.Add(e.Amount)
		}
	}
	return total
}
