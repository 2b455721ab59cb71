// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Freshtrack Contributors

package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/freshtrack/freshtrack/internal/auth"
	"github.com/freshtrack/freshtrack/pkg/errutil"
)

// Response details.
const (
	DetailEmailTaken         = "Email already registered"
	DetailInvalidCredentials = "Invalid email or password"
	DetailNotAuthenticated   = "Not authenticated"
	DetailInvalidEmail       = "Invalid email address"
	DetailInternal           = "Internal server error"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userKey struct{}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "email and password are required")
		return
	}

	session, err := s.auth.Register(r.Context(), req.Email, req.Password, req.FullName)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}

	session, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, currentUser(r.Context()))
}

func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var patch auth.ProfilePatch
	if !decode(w, r, &patch) {
		return
	}

	updated, err := s.auth.Update(r.Context(), currentUser(r.Context()), patch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handlePublicConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.endpoints())
}

// authenticate resolves the bearer token and stores the user in the
// request context.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.auth.Resolve(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, user)))
	})
}

func currentUser(ctx context.Context) *auth.User {
	user, _ := ctx.Value(userKey{}).(*auth.User) //nolint:errcheck // set by authenticate
	return user
}

// writeError maps auth failures to status codes. Anything unexpected is
// logged and reported as 500 without detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrDuplicateIdentity):
		writeDetail(w, http.StatusBadRequest, DetailEmailTaken)
	case errors.Is(err, auth.ErrInvalidEmail):
		writeDetail(w, http.StatusUnprocessableEntity, DetailInvalidEmail)
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeDetail(w, http.StatusUnauthorized, DetailInvalidCredentials)
	case errors.Is(err, auth.ErrUnauthenticated):
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeDetail(w, http.StatusUnauthorized, DetailNotAuthenticated)
	default:
		errutil.LogError(s.logger.With("path", r.URL.Path, "method", r.Method), "request failed", err)
		writeDetail(w, http.StatusInternalServerError, DetailInternal)
	}
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload) //nolint:errcheck // client may have gone away
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
