// Package importer ingests bank exports into the ledger as balanced
// transactions, one import batch per file.
package importer

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mbellot/tally/internal/common"
	"github.com/mbellot/tally/internal/dedupe"
	"github.com/mbellot/tally/internal/ledger"
	"github.com/mbellot/tally/internal/model"
	"github.com/mbellot/tally/internal/service"
)

// CSVOptions describes how to read one bank's CSV layout.
type CSVOptions struct {
	// Source labels the provenance of imported transactions, e.g.
	// "boursorama". Duplicate detection never pairs two transactions
	// with the same source.
	Source string

	// AccountPath is the ledger account the file describes, e.g.
	// "Assets:Checking". Created on demand.
	AccountPath string

	// OffsetPath receives the balancing leg of each row. Income rows
	// credit it, expense rows debit it.
	OffsetPath string

	// DateFormat is the time.Parse layout of the date column.
	DateFormat string

	DateColumn        int
	DescriptionColumn int
	AmountColumn      int
	ReferenceColumn   int

	HasHeader bool

	// AutoConfirmExact confirms exact-tier duplicate matches found
	// during post-import detection without manual review.
	AutoConfirmExact bool
}

// Result summarizes one import run.
type Result struct {
	BatchID  string
	Imported int
	Matches  []model.TransactionMatch
}

// CSVImporter turns CSV rows into posted transactions and runs
// duplicate detection over the new batch.
type CSVImporter struct {
	storage service.Storage
	poster  *ledger.Poster
	matcher *dedupe.Matcher
	opts    CSVOptions
}

// NewCSVImporter creates an importer for one CSV layout.
func NewCSVImporter(storage service.Storage, poster *ledger.Poster, matcher *dedupe.Matcher, opts CSVOptions) (*CSVImporter, error) {
	if opts.Source == "" {
		return nil, fmt.Errorf("import source is required")
	}
	if opts.AccountPath == "" || opts.OffsetPath == "" {
		return nil, fmt.Errorf("account and offset paths are required")
	}
	if opts.DateFormat == "" {
		opts.DateFormat = "2006-01-02"
	}
	return &CSVImporter{
		storage: storage,
		poster:  poster,
		matcher: matcher,
		opts:    opts,
	}, nil
}

// ImportFile ingests one CSV file. The file's content hash gates
// re-imports: running the same file twice returns
// common.ErrFileAlreadyImported and changes nothing.
func (imp *CSVImporter) ImportFile(ctx context.Context, path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read import file: %w", err)
	}
	hash := contentHash(data)

	existing, err := imp.storage.GetImportedFileByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s imported %s as batch %s",
			common.ErrFileAlreadyImported, path, existing.ImportedAt.Format(time.RFC3339), existing.BatchID)
	}

	batchID := uuid.NewString()
	imported, err := imp.importRows(ctx, bytes.NewReader(data), batchID)
	if err != nil {
		// Rows posted before the failure stay posted; the file hash is
		// not recorded, so a fixed file can be re-imported.
		common.LogError(err, "import aborted", common.Fields{
			"path":     path,
			"batch_id": batchID,
			"imported": imported,
		})
		return nil, err
	}

	if err := imp.storage.RecordImportedFile(ctx, &model.ImportedFile{
		Hash:             hash,
		Path:             path,
		Source:           imp.opts.Source,
		BatchID:          batchID,
		TransactionCount: imported,
	}); err != nil {
		return nil, err
	}

	matches, err := imp.matcher.DetectBatch(ctx, batchID, imp.opts.AutoConfirmExact)
	if err != nil {
		return nil, err
	}

	common.LogInfo("imported file", common.Fields{
		"path":         path,
		"source":       imp.opts.Source,
		"batch_id":     batchID,
		"transactions": imported,
		"matches":      len(matches),
	})
	return &Result{BatchID: batchID, Imported: imported, Matches: matches}, nil
}

// importRows posts one balanced two-entry transaction per CSV row. The
// signed amount goes to the account leg; the offset leg carries the
// negation, typed income or expense by sign.
func (imp *CSVImporter) importRows(ctx context.Context, r io.Reader, batchID string) (int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rowNum := 0
	imported := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return imported, fmt.Errorf("row %d: %w", rowNum+1, err)
		}
		rowNum++
		if rowNum == 1 && imp.opts.HasHeader {
			continue
		}

		draft, err := imp.rowToDraft(record, batchID)
		if err != nil {
			return imported, fmt.Errorf("row %d: %w", rowNum, err)
		}
		err = common.WithRetry(ctx, func() error {
			_, postErr := imp.poster.Post(ctx, *draft)
			return postErr
		}, common.RetryOptions{})
		if err != nil {
			return imported, fmt.Errorf("row %d: %w", rowNum, err)
		}
		imported++
	}
	return imported, nil
}

func (imp *CSVImporter) rowToDraft(record []string, batchID string) (*ledger.Draft, error) {
	date, err := imp.field(record, imp.opts.DateColumn, "date")
	if err != nil {
		return nil, err
	}
	parsedDate, err := time.Parse(imp.opts.DateFormat, date)
	if err != nil {
		return nil, fmt.Errorf("bad date %q: %w", date, err)
	}

	rawAmount, err := imp.field(record, imp.opts.AmountColumn, "amount")
	if err != nil {
		return nil, err
	}
	amount, err := decimal.NewFromString(normalizeAmount(rawAmount))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", common.ErrInvalidAmount, rawAmount)
	}
	if amount.IsZero() {
		return nil, fmt.Errorf("%w: zero amount", common.ErrInvalidAmount)
	}

	description, err := imp.field(record, imp.opts.DescriptionColumn, "description")
	if err != nil {
		return nil, err
	}

	var reference string
	if imp.opts.ReferenceColumn > 0 && imp.opts.ReferenceColumn <= len(record) {
		reference = strings.TrimSpace(record[imp.opts.ReferenceColumn-1])
	}

	offsetType := model.TypeExpense
	if amount.IsPositive() {
		offsetType = model.TypeIncome
	}

	return &ledger.Draft{
		Date:          parsedDate,
		Description:   strings.TrimSpace(description),
		Reference:     reference,
		ImportSource:  imp.opts.Source,
		ImportBatchID: batchID,
		AutoCreate:    true,
		Entries: []ledger.EntryDraft{
			{AccountPath: imp.opts.AccountPath, Amount: amount, Type: model.TypeAsset},
			{AccountPath: imp.opts.OffsetPath, Amount: amount.Neg(), Type: offsetType},
		},
	}, nil
}

// field fetches a 1-based column, so zero-valued options fail loudly
// instead of silently reading the first column.
func (imp *CSVImporter) field(record []string, column int, name string) (string, error) {
	if column < 1 || column > len(record) {
		return "", fmt.Errorf("missing %s column %d in %d-column row", name, column, len(record))
	}
	value := strings.TrimSpace(record[column-1])
	if value == "" {
		return "", fmt.Errorf("empty %s column", name)
	}
	return value, nil
}

// contentHash fingerprints a file's content for re-import detection.
func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// normalizeAmount strips thousands separators and turns a decimal
// comma into a point. French bank exports use "1 234,56".
func normalizeAmount(s string) string {
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, " ", "")
	if strings.Contains(s, ",") && !strings.Contains(s, ".") {
		s = strings.ReplaceAll(s, ",", ".")
	}
	return s
}
