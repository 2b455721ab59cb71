// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Freshtrack Contributors

// Package sqlite implements auth repositories on an embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/freshtrack/freshtrack/internal/auth"
)

// Querier is the subset of *sql.DB the repository uses.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// UserRepository implements auth.UserRepository using SQLite.
// Timestamps are stored as RFC 3339 text in UTC.
type UserRepository struct {
	db Querier
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db Querier) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, full_name, password_digest, created_at, updated_at`

// Create stores a new user.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	if user.PasswordDigest == "" {
		return oops.Code("USER_CREATE_FAILED").
			With("user_id", user.ID.String()).
			Errorf("password digest is empty")
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID.String(),
		user.Email,
		user.FullName,
		user.PasswordDigest,
		formatTime(user.CreatedAt),
		formatTime(user.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return auth.DuplicateIdentityError(user.Email, err)
		}
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("email", user.Email).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id.String())
	user, err := scanUser(row)
	if err != nil {
		return nil, oops.With("user_id", id.String()).Wrap(err)
	}
	return user, nil
}

// GetByEmail retrieves a user by email, ignoring case.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower(?)`, email)
	user, err := scanUser(row)
	if err != nil {
		return nil, oops.With("email", email).Wrap(err)
	}
	return user, nil
}

// Update persists the mutable fields of user and bumps UpdatedAt.
func (r *UserRepository) Update(ctx context.Context, user *auth.User) error {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET email = ?, full_name = ?, password_digest = ?, updated_at = ? WHERE id = ?`,
		user.Email,
		user.FullName,
		user.PasswordDigest,
		formatTime(now),
		user.ID.String(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return auth.DuplicateIdentityError(user.Email, err)
		}
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "update user").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").With("operation", "rows affected").Wrap(err)
	}
	if n == 0 {
		return oops.Code("USER_NOT_FOUND").With("user_id", user.ID.String()).Wrap(auth.ErrNotFound)
	}
	user.UpdatedAt = now
	return nil
}

func scanUser(row *sql.Row) (*auth.User, error) {
	var (
		u                auth.User
		idStr            string
		created, updated string
	)
	err := row.Scan(&idStr, &u.Email, &u.FullName, &u.PasswordDigest, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_QUERY_FAILED").With("operation", "scan user").Wrap(err)
	}
	if u.ID, err = ulid.Parse(idStr); err != nil {
		return nil, oops.Code("USER_QUERY_FAILED").With("operation", "parse user id").With("id", idStr).Wrap(err)
	}
	if u.CreatedAt, err = parseTime(created); err != nil {
		return nil, oops.Code("USER_QUERY_FAILED").With("operation", "parse created_at").Wrap(err)
	}
	if u.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, oops.Code("USER_QUERY_FAILED").With("operation", "parse updated_at").Wrap(err)
	}
	return &u, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err //nolint:wrapcheck // wrapped by scanUser
	}
	return t.UTC(), nil
}

func isUniqueViolation(err error) bool {
	var sqlErr *sqlite.Error
	if !errors.As(err, &sqlErr) {
		return false
	}
	switch sqlErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		return strings.Contains(sqlErr.Error(), "UNIQUE")
	default:
		return false
	}
}

var _ auth.UserRepository = (*UserRepository)(nil)
