package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial ledger schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS users (
					id TEXT PRIMARY KEY,
					name TEXT UNIQUE NOT NULL,
					display_name TEXT,
					is_active BOOLEAN DEFAULT 1,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,

				`CREATE TABLE IF NOT EXISTS accounts (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					full_path TEXT NOT NULL,
					account_type TEXT NOT NULL,
					account_subtype TEXT NOT NULL,
					parent_id TEXT REFERENCES accounts(id),
					symbol TEXT,
					quantity TEXT,
					average_cost TEXT,
					currency TEXT NOT NULL DEFAULT 'EUR',
					notes TEXT,
					is_active BOOLEAN DEFAULT 1,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_accounts_parent ON accounts(parent_id)`,
				`CREATE INDEX idx_accounts_full_path ON accounts(full_path)`,

				`CREATE TABLE IF NOT EXISTS transactions (
					id TEXT PRIMARY KEY,
					description TEXT NOT NULL,
					reference TEXT,
					transaction_date DATETIME NOT NULL,
					import_source TEXT,
					import_batch_id TEXT,
					is_duplicate BOOLEAN DEFAULT 0,
					merged_into TEXT REFERENCES transactions(id),
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_transactions_date ON transactions(transaction_date)`,
				`CREATE INDEX idx_transactions_batch ON transactions(import_batch_id)`,

				`CREATE TABLE IF NOT EXISTS journal_entries (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					transaction_id TEXT NOT NULL REFERENCES transactions(id) ON DELETE CASCADE,
					account_id TEXT NOT NULL REFERENCES accounts(id),
					amount TEXT NOT NULL,
					memo TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_journal_entries_transaction ON journal_entries(transaction_id)`,
				`CREATE INDEX idx_journal_entries_account ON journal_entries(account_id)`,

				`CREATE TABLE IF NOT EXISTS ownership_shares (
					account_id TEXT NOT NULL REFERENCES accounts(id),
					user_id TEXT NOT NULL REFERENCES users(id),
					percentage TEXT NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					PRIMARY KEY (account_id, user_id)
				)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Add transaction matches for duplicate detection",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS transaction_matches (
					id TEXT PRIMARY KEY,
					primary_transaction_id TEXT NOT NULL REFERENCES transactions(id),
					duplicate_transaction_id TEXT NOT NULL REFERENCES transactions(id),
					confidence REAL NOT NULL,
					amount_delta TEXT NOT NULL,
					date_delta_days INTEGER NOT NULL,
					text_similarity REAL NOT NULL,
					same_date BOOLEAN NOT NULL,
					same_amount BOOLEAN NOT NULL,
					match_tier TEXT NOT NULL,
					status TEXT NOT NULL DEFAULT 'PENDING',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE (primary_transaction_id, duplicate_transaction_id)
				)`,
				`CREATE INDEX idx_matches_primary ON transaction_matches(primary_transaction_id)`,
				`CREATE INDEX idx_matches_duplicate ON transaction_matches(duplicate_transaction_id)`,
				`CREATE INDEX idx_matches_status ON transaction_matches(status)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query '%s': %w", query, err)
				}
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Add imported files table for file-level dedup",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS imported_files (
					hash TEXT PRIMARY KEY,
					path TEXT NOT NULL,
					source TEXT NOT NULL,
					batch_id TEXT NOT NULL,
					transaction_count INTEGER NOT NULL DEFAULT 0,
					imported_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_imported_files_source ON imported_files(source)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query '%s': %w", query, err)
				}
			}
			return nil
		},
	},
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
