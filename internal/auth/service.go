// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Freshtrack Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// TokenTypeBearer is the token_type reported with every issued session.
const TokenTypeBearer = "bearer"

// dummyDigest is verified when the email is unknown so that login takes
// the same time whether or not the account exists. It is well-formed, so
// the full key derivation runs, and matches no password.
//
//nolint:gosec // G101: intentionally fake digest, not a credential.
const dummyDigest = "00000000000000000000000000000000$0000000000000000000000000000000000000000000000000000000000000000"

// Operation outcomes reported to the Observer.
const (
	OutcomeSuccess   = "success"
	OutcomeDuplicate = "duplicate"
	OutcomeInvalid   = "invalid"
	OutcomeRejected  = "rejected"
	OutcomeError     = "error"
)

// Observer receives auth outcomes and password hashing latency.
type Observer interface {
	RecordAuth(operation, outcome string)
	ObserveHash(d time.Duration)
}

type nopObserver struct{}

func (nopObserver) RecordAuth(string, string) {}
func (nopObserver) ObserveHash(time.Duration) {}

// Session is the result of a successful register or login.
type Session struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	User        *User  `json:"user"`
}

// Service orchestrates registration, login and token resolution.
type Service struct {
	users    UserRepository
	hasher   PasswordHasher
	tokens   *TokenService
	logger   *slog.Logger
	observer Observer
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) ServiceOption {
	return func(s *Service) {
		if o != nil {
			s.observer = o
		}
	}
}

// NewService creates a Service. All dependencies are required.
func NewService(users UserRepository, hasher PasswordHasher, tokens *TokenService, opts ...ServiceOption) (*Service, error) {
	if users == nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("user repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("password hasher is required")
	}
	if tokens == nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("token service is required")
	}
	s := &Service{
		users:    users,
		hasher:   hasher,
		tokens:   tokens,
		logger:   slog.Default(),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Register creates an account and returns a session for it.
// The pre-check only saves a hash on the common path; the store's unique
// index decides concurrent registrations.
func (s *Service) Register(ctx context.Context, email, password, fullName string) (*Session, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		s.observer.RecordAuth("register", OutcomeInvalid)
		return nil, err
	}

	_, err = s.users.GetByEmail(ctx, normalized)
	switch {
	case err == nil:
		s.observer.RecordAuth("register", OutcomeDuplicate)
		return nil, DuplicateIdentityError(normalized, nil)
	case !errors.Is(err, ErrNotFound):
		s.observer.RecordAuth("register", OutcomeError)
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "check existing email").
			Wrap(err)
	}

	digest, err := s.hash(password)
	if err != nil {
		s.observer.RecordAuth("register", OutcomeError)
		return nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "hash password").Wrap(err)
	}

	user, err := NewUser(normalized, strings.TrimSpace(fullName), digest)
	if err != nil {
		s.observer.RecordAuth("register", OutcomeError)
		return nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "build user").Wrap(err)
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicateIdentity) {
			s.observer.RecordAuth("register", OutcomeDuplicate)
			return nil, err
		}
		s.observer.RecordAuth("register", OutcomeError)
		return nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "create user").Wrap(err)
	}

	session, err := s.issue(user)
	if err != nil {
		// The record stays; issuance has no side effect, so logging in
		// again yields a token for the same account.
		s.logger.Warn("token issuance failed after registration",
			"user_id", user.ID.String(),
			"error", err)
		s.observer.RecordAuth("register", OutcomeError)
		return nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "issue token").Wrap(err)
	}

	s.observer.RecordAuth("register", OutcomeSuccess)
	return session, nil
}

// Login verifies credentials and returns a fresh session. Unknown emails
// and wrong passwords produce the same error.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))

	user, lookupErr := s.users.GetByEmail(ctx, normalized)
	if lookupErr != nil && !errors.Is(lookupErr, ErrNotFound) {
		s.observer.RecordAuth("login", OutcomeError)
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "get user by email").
			Wrap(lookupErr)
	}

	target := dummyDigest
	if lookupErr == nil {
		target = user.PasswordDigest
	}

	start := time.Now()
	valid := s.hasher.Verify(password, target)
	s.observer.ObserveHash(time.Since(start))

	if lookupErr != nil || !valid {
		s.observer.RecordAuth("login", OutcomeRejected)
		return nil, invalidCredentials()
	}

	session, err := s.issue(user)
	if err != nil {
		s.observer.RecordAuth("login", OutcomeError)
		return nil, oops.Code("AUTH_LOGIN_FAILED").With("operation", "issue token").Wrap(err)
	}

	s.observer.RecordAuth("login", OutcomeSuccess)
	return session, nil
}

// Resolve maps an Authorization header value of the form "Bearer <token>"
// to the user it names. Every shape, signature, expiry or lookup miss
// yields ErrUnauthenticated.
func (s *Service) Resolve(ctx context.Context, authorization string) (*User, error) {
	fields := strings.Fields(authorization)
	if len(fields) != 2 || !strings.EqualFold(fields[0], "bearer") {
		s.observer.RecordAuth("resolve", OutcomeRejected)
		return nil, unauthenticated("header")
	}

	claims := s.tokens.Verify(fields[1])
	if claims == nil {
		s.observer.RecordAuth("resolve", OutcomeRejected)
		return nil, unauthenticated("token")
	}

	id, err := ulid.Parse(claims.Subject)
	if err != nil {
		s.observer.RecordAuth("resolve", OutcomeRejected)
		return nil, unauthenticated("subject")
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.observer.RecordAuth("resolve", OutcomeRejected)
			return nil, unauthenticated("user")
		}
		s.observer.RecordAuth("resolve", OutcomeError)
		return nil, oops.Code("AUTH_RESOLVE_FAILED").
			With("operation", "get user by id").
			With("user_id", id.String()).
			Wrap(err)
	}

	s.observer.RecordAuth("resolve", OutcomeSuccess)
	return user, nil
}

// Update merges patch into user. Only non-empty fields overwrite; an email
// change must stay unique.
func (s *Service) Update(ctx context.Context, user *User, patch ProfilePatch) (*User, error) {
	if user == nil {
		return nil, unauthenticated("identity")
	}

	updated := *user
	changed := false

	if patch.FullName != nil && *patch.FullName != "" && *patch.FullName != user.FullName {
		updated.FullName = *patch.FullName
		changed = true
	}

	if patch.Email != nil && *patch.Email != "" {
		normalized, err := NormalizeEmail(*patch.Email)
		if err != nil {
			s.observer.RecordAuth("update", OutcomeInvalid)
			return nil, err
		}
		if normalized != user.Email {
			existing, err := s.users.GetByEmail(ctx, normalized)
			switch {
			case err == nil && existing.ID != user.ID:
				s.observer.RecordAuth("update", OutcomeDuplicate)
				return nil, DuplicateIdentityError(normalized, nil)
			case err != nil && !errors.Is(err, ErrNotFound):
				s.observer.RecordAuth("update", OutcomeError)
				return nil, oops.Code("AUTH_UPDATE_FAILED").
					With("operation", "check existing email").
					Wrap(err)
			}
			updated.Email = normalized
			changed = true
		}
	}

	if !changed {
		return user, nil
	}

	if err := s.users.Update(ctx, &updated); err != nil {
		if errors.Is(err, ErrDuplicateIdentity) {
			s.observer.RecordAuth("update", OutcomeDuplicate)
			return nil, err
		}
		s.observer.RecordAuth("update", OutcomeError)
		return nil, oops.Code("AUTH_UPDATE_FAILED").
			With("operation", "persist user").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	s.observer.RecordAuth("update", OutcomeSuccess)
	return &updated, nil
}

func (s *Service) hash(password string) (string, error) {
	start := time.Now()
	defer func() { s.observer.ObserveHash(time.Since(start)) }()
	return s.hasher.Hash(password)
}

func (s *Service) issue(user *User) (*Session, error) {
	token, err := s.tokens.Issue(SessionClaims{
		Email:            user.Email,
		RegisteredClaims: jwt.RegisteredClaims{Subject: user.ID.String()},
	}, 0)
	if err != nil {
		return nil, err
	}
	return &Session{AccessToken: token, TokenType: TokenTypeBearer, User: user}, nil
}
