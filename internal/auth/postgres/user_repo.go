// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Freshtrack Contributors

// Package postgres implements auth repositories on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/freshtrack/freshtrack/internal/auth"
)

// Querier is the subset of pgxpool.Pool the repository uses.
// pgxmock.PgxPoolIface satisfies it in tests.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UserRepository implements auth.UserRepository using PostgreSQL.
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

	_, err := r.db.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		user.ID.String(),
		user.Email,
		user.FullName,
		user.PasswordDigest,
		user.CreatedAt,
		user.UpdatedAt,
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
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id.String())
	user, err := scanUser(row)
	if err != nil {
		return nil, oops.With("user_id", id.String()).Wrap(err)
	}
	return user, nil
}

// GetByEmail retrieves a user by email, ignoring case.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
	user, err := scanUser(row)
	if err != nil {
		return nil, oops.With("email", email).Wrap(err)
	}
	return user, nil
}

// Update persists the mutable fields of user and bumps UpdatedAt.
func (r *UserRepository) Update(ctx context.Context, user *auth.User) error {
	now := time.Now().UTC()
	tag, err := r.db.Exec(ctx, `
		UPDATE users
		SET email = $2, full_name = $3, password_digest = $4, updated_at = $5
		WHERE id = $1
	`,
		user.ID.String(),
		user.Email,
		user.FullName,
		user.PasswordDigest,
		now,
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
	if tag.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("user_id", user.ID.String()).Wrap(auth.ErrNotFound)
	}
	user.UpdatedAt = now
	return nil
}

func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		u     auth.User
		idStr string
	)
	err := row.Scan(&idStr, &u.Email, &u.FullName, &u.PasswordDigest, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_QUERY_FAILED").With("operation", "scan user").Wrap(err)
	}
	u.ID, err = ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_QUERY_FAILED").With("operation", "parse user id").With("id", idStr).Wrap(err)
	}
	return &u, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

var _ auth.UserRepository = (*UserRepository)(nil)
