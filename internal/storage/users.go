package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mbellot/tally/internal/common"
	"github.com/mbellot/tally/internal/model"
)

// CreateUser inserts a new user.
func (s *SQLiteStorage) CreateUser(ctx context.Context, user *model.User) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateUser(user); err != nil {
		return err
	}
	return s.createUserTx(ctx, s.db, user)
}

func (s *SQLiteStorage) createUserTx(ctx context.Context, q querier, user *model.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO users (id, name, display_name, is_active, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		user.ID, user.Name, user.DisplayName, user.Active, user.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert user %q: %w", user.Name, err)
	}
	return nil
}

// GetUser fetches a user by id.
func (s *SQLiteStorage) GetUser(ctx context.Context, id string) (*model.User, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return s.getUserTx(ctx, s.db, id)
}

func (s *SQLiteStorage) getUserTx(ctx context.Context, q querier, id string) (*model.User, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, name, display_name, is_active, created_at FROM users WHERE id = ?`, id)
	return scanUser(row, id)
}

// GetUserByName fetches a user by unique name.
func (s *SQLiteStorage) GetUserByName(ctx context.Context, name string) (*model.User, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(name, "name"); err != nil {
		return nil, err
	}
	return s.getUserByNameTx(ctx, s.db, name)
}

func (s *SQLiteStorage) getUserByNameTx(ctx context.Context, q querier, name string) (*model.User, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, name, display_name, is_active, created_at FROM users WHERE name = ?`, name)
	return scanUser(row, name)
}

// GetFirstUser returns the oldest active user, used as the default
// ownership target when no explicit owner is configured.
func (s *SQLiteStorage) GetFirstUser(ctx context.Context) (*model.User, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getFirstUserTx(ctx, s.db)
}

func (s *SQLiteStorage) getFirstUserTx(ctx context.Context, q querier) (*model.User, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, name, display_name, is_active, created_at FROM users
		 WHERE is_active = 1 ORDER BY created_at, id LIMIT 1`)
	return scanUser(row, "first user")
}

func scanUser(row scanner, ref string) (*model.User, error) {
	var user model.User
	var displayName sql.NullString

	err := row.Scan(&user.ID, &user.Name, &displayName, &user.Active, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", common.ErrUserNotFound, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	user.DisplayName = displayName.String
	return &user, nil
}
