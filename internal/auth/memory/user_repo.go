// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Freshtrack Contributors

// Package memory provides an in-process UserRepository for development and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/freshtrack/freshtrack/internal/auth"
)

// UserRepository keeps users in maps guarded by a mutex. The email index
// plays the role of a unique constraint.
type UserRepository struct {
	mu      sync.RWMutex
	byID    map[ulid.ULID]auth.User
	byEmail map[string]ulid.ULID
}

// NewUserRepository creates an empty repository.
func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID:    make(map[ulid.ULID]auth.User),
		byEmail: make(map[string]ulid.ULID),
	}
}

// Create stores a new user.
func (r *UserRepository) Create(_ context.Context, user *auth.User) error {
	if user.PasswordDigest == "" {
		return oops.Code("USER_CREATE_FAILED").With("user_id", user.ID.String()).Errorf("password digest is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmail[user.Email]; taken {
		return auth.DuplicateIdentityError(user.Email, nil)
	}
	if _, exists := r.byID[user.ID]; exists {
		return oops.Code("USER_CREATE_FAILED").With("user_id", user.ID.String()).Errorf("user id already exists")
	}
	r.byID[user.ID] = *user
	r.byEmail[user.Email] = user.ID
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").With("user_id", id.String()).Wrap(auth.ErrNotFound)
	}
	return &u, nil
}

// GetByEmail retrieves a user by normalized email.
func (r *UserRepository) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").With("email", email).Wrap(auth.ErrNotFound)
	}
	u := r.byID[id]
	return &u, nil
}

// Update persists the mutable fields of user and bumps UpdatedAt.
func (r *UserRepository) Update(_ context.Context, user *auth.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byID[user.ID]
	if !ok {
		return oops.Code("USER_NOT_FOUND").With("user_id", user.ID.String()).Wrap(auth.ErrNotFound)
	}
	if user.Email != current.Email {
		if _, taken := r.byEmail[user.Email]; taken {
			return auth.DuplicateIdentityError(user.Email, nil)
		}
		delete(r.byEmail, current.Email)
		r.byEmail[user.Email] = user.ID
	}

	user.UpdatedAt = time.Now().UTC()
	current.Email = user.Email
	current.FullName = user.FullName
	if user.PasswordDigest != "" {
		current.PasswordDigest = user.PasswordDigest
	}
	current.UpdatedAt = user.UpdatedAt
	r.byID[user.ID] = current
	return nil
}

// Len returns the number of stored users.
func (r *UserRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

var _ auth.UserRepository = (*UserRepository)(nil)
