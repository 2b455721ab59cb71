// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Freshtrack Contributors

// Package auth provides the credential and token subsystem.
//
// # Primitives
//
//   - PBKDF2Hasher derives and verifies salted password digests
//     encoded as "{salt}${key}".
//   - TokenService issues and verifies HS256 session tokens that
//     always carry an expiry.
//
// # Service
//
// Service orchestrates registration, login, bearer-token resolution and
// profile updates against a UserRepository. Callers branch on the
// sentinel errors (ErrDuplicateIdentity, ErrInvalidCredentials,
// ErrUnauthenticated) with errors.Is; the wrapped oops errors carry
// codes and context for logs only.
package auth
