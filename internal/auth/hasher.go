// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Freshtrack Contributors

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/pbkdf2"
)

// PBKDF2 parameters. The salt is stored as hex text and that text, not the
// decoded bytes, is fed to the KDF.
const (
	DefaultIterations = 100_000
	saltLen           = 16 // bytes before hex encoding
	keyLen            = 32 // sha256 output size
	digestSeparator   = "$"
)

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces an encoded digest of the password.
	Hash(password string) (string, error)

	// Verify reports whether password matches digest. A malformed digest
	// is a mismatch, never an error.
	Verify(password, digest string) bool
}

// Digest is a parsed "{salt}${key}" password digest.
type Digest struct {
	Salt string // 32 hex chars
	Key  []byte // 32 bytes
}

// String encodes d in its stored form.
func (d Digest) String() string {
	return d.Salt + digestSeparator + hex.EncodeToString(d.Key)
}

// ParseDigest validates and splits an encoded digest.
// Returns ErrMalformedDigest for anything that is not exactly
// 32 hex chars, one "$", then 64 hex chars.
func ParseDigest(encoded string) (Digest, error) {
	salt, key, ok := strings.Cut(encoded, digestSeparator)
	if !ok || strings.Contains(key, digestSeparator) {
		return Digest{}, oops.With("reason", "separator").Wrap(ErrMalformedDigest)
	}
	if len(salt) != saltLen*2 || !isHex(salt) {
		return Digest{}, oops.With("reason", "salt").Wrap(ErrMalformedDigest)
	}
	if len(key) != keyLen*2 {
		return Digest{}, oops.With("reason", "key length").Wrap(ErrMalformedDigest)
	}
	raw, err := hex.DecodeString(key)
	if err != nil {
		return Digest{}, oops.With("reason", "key encoding").Wrap(ErrMalformedDigest)
	}
	return Digest{Salt: salt, Key: raw}, nil
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// PBKDF2Hasher implements PasswordHasher with PBKDF2-HMAC-SHA256.
type PBKDF2Hasher struct {
	iterations int
}

// HasherOption configures a PBKDF2Hasher.
type HasherOption func(*PBKDF2Hasher)

// WithIterations overrides the iteration count. Values below 1 are ignored.
// Production callers should leave the default in place; tests lower it to
// keep suites fast.
func WithIterations(n int) HasherOption {
	return func(h *PBKDF2Hasher) {
		if n >= 1 {
			h.iterations = n
		}
	}
}

// NewPBKDF2Hasher creates a hasher using DefaultIterations unless overridden.
func NewPBKDF2Hasher(opts ...HasherOption) *PBKDF2Hasher {
	h := &PBKDF2Hasher{iterations: DefaultIterations}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Iterations returns the configured iteration count.
func (h *PBKDF2Hasher) Iterations() int {
	return h.iterations
}

// Hash derives a digest with a fresh random salt. Empty passwords are
// accepted; password policy belongs to the caller.
func (h *PBKDF2Hasher) Hash(password string) (string, error) {
	raw := make([]byte, saltLen)
	if _, err := rand.Read(raw); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}
	salt := hex.EncodeToString(raw)
	return Digest{Salt: salt, Key: h.derive(password, salt)}.String(), nil
}

// Verify recomputes the key with the stored salt and compares in constant time.
func (h *PBKDF2Hasher) Verify(password, digest string) bool {
	d, err := ParseDigest(digest)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(h.derive(password, d.Salt), d.Key) == 1
}

func (h *PBKDF2Hasher) derive(password, salt string) []byte {
	return pbkdf2.Key([]byte(password), []byte(salt), h.iterations, keyLen, sha256.New)
}

var _ PasswordHasher = (*PBKDF2Hasher)(nil)
