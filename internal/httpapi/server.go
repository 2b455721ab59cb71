// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Freshtrack Contributors

// Package httpapi serves the account endpoints and the public config
// endpoint over JSON.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/samber/oops"

	"github.com/freshtrack/freshtrack/internal/auth"
	"github.com/freshtrack/freshtrack/internal/config"
)

// ShutdownTimeout bounds graceful shutdown in Run.
const ShutdownTimeout = 5 * time.Second

const maxBodyBytes = 1 << 20

// HTTPObserver receives per-request latency.
type HTTPObserver interface {
	ObserveHTTP(method, route string, status int, d time.Duration)
}

// Server wires the auth gateway to HTTP.
type Server struct {
	auth      *auth.Service
	endpoints func() config.PublicEndpoints
	origins   []string
	observer  HTTPObserver
	logger    *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request and error logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithObserver records request latency.
func WithObserver(o HTTPObserver) Option {
	return func(s *Server) { s.observer = o }
}

// WithCORSOrigins sets the allowed browser origins. "*" allows any.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.origins = origins }
}

// WithPublicEndpoints sets the source for GET /config/public.
func WithPublicEndpoints(fn func() config.PublicEndpoints) Option {
	return func(s *Server) {
		if fn != nil {
			s.endpoints = fn
		}
	}
}

// New creates a Server over svc.
func New(svc *auth.Service, opts ...Option) *Server {
	s := &Server{
		auth:   svc,
		logger: slog.Default(),
		endpoints: func() config.PublicEndpoints {
			cfg := config.Default()
			return cfg.PublicEndpoints()
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	if len(s.origins) > 0 {
		r.Use(s.corsHandler())
	}

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
	})

	r.Route("/users", func(r chi.Router) {
		r.With(s.authenticate).Get("/me", s.handleGetMe)
		r.With(s.authenticate).Put("/me", s.handleUpdateMe)
	})

	r.Get("/config/public", s.handlePublicConfig)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeDetail(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeDetail(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})
	return r
}

// Serve serves on lis until ctx is done.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(lis)
	}()
	s.logger.InfoContext(ctx, "http api listening", "addr", lis.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return oops.Code("HTTP_SERVE_FAILED").Wrap(err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return oops.Code("HTTP_SHUTDOWN_FAILED").Wrap(err)
	}
	<-errCh
	s.logger.InfoContext(ctx, "http api stopped")
	return nil
}
