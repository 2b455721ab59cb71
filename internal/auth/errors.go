// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Freshtrack Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"
)

// ErrNotFound is returned by repositories when a requested user does not exist.
var ErrNotFound = errors.New("not found")

// Caller-visible failure kinds.
var (
	// ErrDuplicateIdentity means the email is already registered.
	ErrDuplicateIdentity = errors.New("email already registered")

	// ErrInvalidCredentials is returned for both unknown emails and wrong
	// passwords so callers cannot tell the two apart.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrUnauthenticated means the authorization value was missing,
	// malformed, expired, or named a user that no longer exists.
	ErrUnauthenticated = errors.New("not authenticated")

	// ErrMalformedDigest is returned by ParseDigest for corrupted stored digests.
	ErrMalformedDigest = errors.New("malformed password digest")

	// ErrInvalidEmail is returned when an email address cannot be normalized.
	ErrInvalidEmail = errors.New("invalid email address")
)

// Error codes attached to the sentinels above.
const (
	CodeDuplicateIdentity  = "AUTH_DUPLICATE_IDENTITY"
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeUnauthenticated    = "AUTH_UNAUTHENTICATED"
	CodeInvalidEmail       = "AUTH_INVALID_EMAIL"
)

// DuplicateIdentityError wraps ErrDuplicateIdentity with a code and the
// conflicting email. Repositories use it when the store's unique index
// rejects an insert.
func DuplicateIdentityError(email string, cause error) error {
	b := oops.Code(CodeDuplicateIdentity).With("email", email)
	if cause != nil {
		return b.Wrap(errors.Join(ErrDuplicateIdentity, cause))
	}
	return b.Wrap(ErrDuplicateIdentity)
}

func invalidCredentials() error {
	return oops.Code(CodeInvalidCredentials).Wrap(ErrInvalidCredentials)
}

func unauthenticated(reason string) error {
	return oops.Code(CodeUnauthenticated).With("reason", reason).Wrap(ErrUnauthenticated)
}
