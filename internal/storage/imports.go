package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mbellot/tally/internal/model"
)

// GetImportedFileByHash looks up a previously imported file by content
// hash. Returns (nil, nil) when the hash is unknown.
func (s *SQLiteStorage) GetImportedFileByHash(ctx context.Context, hash string) (*model.ImportedFile, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(hash, "hash"); err != nil {
		return nil, err
	}
	return s.getImportedFileByHashTx(ctx, s.db, hash)
}

func (s *SQLiteStorage) getImportedFileByHashTx(ctx context.Context, q querier, hash string) (*model.ImportedFile, error) {
	var file model.ImportedFile
	err := q.QueryRowContext(ctx, `
		SELECT hash, path, source, batch_id, transaction_count, imported_at
		FROM imported_files WHERE hash = ?`, hash).Scan(
		&file.Hash, &file.Path, &file.Source, &file.BatchID, &file.TransactionCount, &file.ImportedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get imported file: %w", err)
	}
	return &file, nil
}

// RecordImportedFile marks a file hash as ingested.
func (s *SQLiteStorage) RecordImportedFile(ctx context.Context, file *model.ImportedFile) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if file == nil {
		return fmt.Errorf("%w: file", ErrNilParameter)
	}
	if err := validateString(file.Hash, "hash"); err != nil {
		return err
	}
	return s.recordImportedFileTx(ctx, s.db, file)
}

func (s *SQLiteStorage) recordImportedFileTx(ctx context.Context, q querier, file *model.ImportedFile) error {
	if file.ImportedAt.IsZero() {
		file.ImportedAt = time.Now().UTC()
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO imported_files (hash, path, source, batch_id, transaction_count, imported_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		file.Hash, file.Path, file.Source, file.BatchID, file.TransactionCount, file.ImportedAt)
	if err != nil {
		return fmt.Errorf("failed to record imported file: %w", err)
	}
	return nil
}
