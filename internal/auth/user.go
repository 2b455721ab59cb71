// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Freshtrack Contributors

package auth

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// User is a registered account.
type User struct {
	ID             ulid.ULID `json:"id"`
	Email          string    `json:"email"`
	FullName       string    `json:"full_name"`
	PasswordDigest string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewUser creates a User with a fresh ID. The email must already be normalized.
func NewUser(email, fullName, digest string) (*User, error) {
	if digest == "" {
		return nil, oops.Code("AUTH_EMPTY_DIGEST").Errorf("password digest cannot be empty")
	}
	now := time.Now().UTC()
	return &User{
		ID:             ulid.Make(),
		Email:          email,
		FullName:       fullName,
		PasswordDigest: digest,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// NormalizeEmail trims and lower-cases an address and checks that it parses
// as a bare addr-spec.
func NormalizeEmail(email string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" {
		return "", oops.Code(CodeInvalidEmail).Wrap(ErrInvalidEmail)
	}
	addr, err := mail.ParseAddress(normalized)
	if err != nil || addr.Address != normalized || strings.Count(normalized, "@") != 1 {
		return "", oops.Code(CodeInvalidEmail).With("email", normalized).Wrap(ErrInvalidEmail)
	}
	return normalized, nil
}

// ProfilePatch holds the fields a user may change about themselves.
// Nil or empty fields are left untouched.
type ProfilePatch struct {
	FullName *string `json:"full_name,omitempty"`
	Email    *string `json:"email,omitempty"`
}

// UserRepository manages user persistence.
type UserRepository interface {
	// Create stores a new user. Returns an error matching
	// ErrDuplicateIdentity when the email is already taken.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID. Returns ErrNotFound if absent.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByEmail retrieves a user by normalized email. Returns ErrNotFound if absent.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// Update persists email, full name and digest and bumps UpdatedAt.
	// Returns an error matching ErrDuplicateIdentity on an email conflict.
	Update(ctx context.Context, user *User) error
}
