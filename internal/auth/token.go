// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Freshtrack Contributors

package auth

import (
	"errors"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"
)

// DefaultTokenTTL is the lifetime of a session token when the caller does
// not supply one.
const DefaultTokenTTL = 7 * 24 * time.Hour

// SessionClaims is the claim set carried by a session token.
// Subject holds the user ID.
type SessionClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Token verification outcomes, used for logs and metrics.
const (
	VerifyOK        = "ok"
	VerifyExpired   = "expired"
	VerifySignature = "signature"
	VerifyMalformed = "malformed"
	VerifyInvalid   = "invalid"
)

// VerifyObserver receives the outcome of every Verify call.
type VerifyObserver func(result string)

// TokenService issues and verifies HS256 session tokens.
// The secret is immutable after construction.
type TokenService struct {
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
	logger   *slog.Logger
	observer VerifyObserver
}

// TokenOption configures a TokenService.
type TokenOption func(*TokenService)

// WithTTL sets the default lifetime used when Issue is called with ttl <= 0.
func WithTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTokenLogger sets the logger used for verification failures.
func WithTokenLogger(logger *slog.Logger) TokenOption {
	return func(s *TokenService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithVerifyObserver registers a callback for verification outcomes.
func WithVerifyObserver(fn VerifyObserver) TokenOption {
	return func(s *TokenService) {
		s.observer = fn
	}
}

// NewTokenService creates a TokenService signing with secret.
func NewTokenService(secret []byte, opts ...TokenOption) (*TokenService, error) {
	if len(secret) == 0 {
		return nil, oops.Code("AUTH_EMPTY_SECRET").Errorf("token secret cannot be empty")
	}
	s := &TokenService{
		secret: append([]byte(nil), secret...),
		ttl:    DefaultTokenTTL,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// TTL returns the default token lifetime.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Issue signs a copy of claims with exp = now + ttl. A ttl <= 0 uses the
// service default. Any expiry already present in claims is overwritten.
func (s *TokenService) Issue(claims SessionClaims, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = s.ttl
	}
	now := s.now().UTC()

	c := claims
	if claims.Audience != nil {
		c.Audience = append(jwt.ClaimStrings(nil), claims.Audience...)
	}
	c.IssuedAt = jwt.NewNumericDate(now)
	c.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", oops.Code("AUTH_TOKEN_SIGN_FAILED").With("subject", claims.Subject).Wrap(err)
	}
	return signed, nil
}

// Verify checks signature and expiry. It returns nil for any failure;
// the reason is logged at debug level and never returned.
func (s *TokenService) Verify(tokenString string) *SessionClaims {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, s.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		result := classifyTokenError(err)
		s.logger.Debug("token rejected", "reason", result, "error", err)
		s.observe(result)
		return nil
	}
	s.observe(VerifyOK)
	return claims
}

func (s *TokenService) keyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, oops.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return s.secret, nil
}

func (s *TokenService) observe(result string) {
	if s.observer != nil {
		s.observer(result)
	}
}

func classifyTokenError(err error) string {
	switch {
	case err == nil:
		return VerifyInvalid
	case errors.Is(err, jwt.ErrTokenExpired):
		return VerifyExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return VerifySignature
	case errors.Is(err, jwt.ErrTokenMalformed):
		return VerifyMalformed
	default:
		return VerifyInvalid
	}
}
