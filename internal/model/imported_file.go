package model

import "time"

// ImportedFile records a file that has already been ingested, keyed by
// content hash so re-running an import is a no-op.
type ImportedFile struct {
	ImportedAt       time.Time
	Hash             string
	Path             string
	Source           string
	BatchID          string
	TransactionCount int
}
