// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Freshtrack Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"syscall"

	"github.com/oklog/run"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/freshtrack/freshtrack/internal/auth"
	"github.com/freshtrack/freshtrack/internal/config"
	"github.com/freshtrack/freshtrack/internal/httpapi"
	"github.com/freshtrack/freshtrack/internal/netsetup"
	"github.com/freshtrack/freshtrack/internal/observability"
	"github.com/freshtrack/freshtrack/internal/store"
	"github.com/freshtrack/freshtrack/pkg/errutil"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API. On startup the store is opened and migrated,
the bind address is detected and, inside WSL, Windows is asked to forward
the API port from the Wi-Fi address.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cmd, deps)
		},
	}
}

func runServe(ctx context.Context, cmd *cobra.Command, deps *Deps) error {
	deps = deps.withDefaults()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newDefaultLogger(cmd, cfg)

	if cfg.UsesDefaultSecret() {
		logger.Warn("using the default secret key; set SECRET_KEY before exposing the API")
	}

	handle, err := openStore(ctx, cfg, deps, logger)
	if err != nil {
		errutil.LogError(logger, "store unavailable", err)
		return err
	}
	defer func() {
		if closeErr := handle.Close(); closeErr != nil {
			errutil.LogWarn(ctx, logger, "closing store", closeErr)
		}
	}()

	obs := observability.NewServer(cfg.MetricsAddr, handle.Ping, observability.WithLogger(logger))
	metrics := obs.Metrics()

	if cfg.AutoNetwork {
		configureNetwork(ctx, cfg, deps, logger, metrics)
	}

	svc, err := newAuthService(cfg, handle, logger, metrics)
	if err != nil {
		return err
	}

	api := httpapi.New(svc,
		httpapi.WithLogger(logger),
		httpapi.WithObserver(metrics),
		httpapi.WithCORSOrigins(cfg.CORSOrigins),
		httpapi.WithPublicEndpoints(cfg.PublicEndpoints),
	)

	lis, err := deps.Listen("tcp", cfg.APIAddr())
	if err != nil {
		err = oops.Code("HTTP_LISTEN_FAILED").With("addr", cfg.APIAddr()).Wrap(err)
		errutil.LogError(logger, "cannot bind API", err)
		return err
	}

	endpoints := cfg.PublicEndpoints()
	logger.Info("starting freshtrack",
		"addr", lis.Addr().String(),
		"public_url", endpoints.PublicURL,
		"api_url", endpoints.APIURL)

	var g run.Group
	{
		apiCtx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			return api.Serve(apiCtx, lis)
		}, func(error) {
			cancel()
		})
	}
	if cfg.MetricsAddr != "" {
		obsCtx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			return obs.Run(obsCtx)
		}, func(error) {
			cancel()
		})
	}
	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))

	err = g.Run()
	var sigErr run.SignalError
	switch {
	case err == nil, errors.As(err, &sigErr), errors.Is(err, context.Canceled):
		logger.Info("shutdown complete")
		return nil
	default:
		errutil.LogError(logger, "server stopped", err)
		return err
	}
}

// openStore opens the configured store and applies pending migrations
// when auto_migrate is on.
func openStore(ctx context.Context, cfg *config.Config, deps *Deps, logger *slog.Logger) (*store.Handle, error) {
	handle, err := deps.OpenStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if !cfg.AutoMigrate || !handle.Dialect.HasSchema() {
		return handle, nil
	}

	if err := migrateUp(cfg.DatabaseURL, deps, logger); err != nil {
		_ = handle.Close() //nolint:errcheck // migration error takes precedence
		return nil, err
	}
	return handle, nil
}

func migrateUp(url string, deps *Deps, logger *slog.Logger) error {
	m, err := deps.NewMigrator(url)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			logger.Warn("closing migrator", "error", closeErr)
		}
	}()

	pending, err := m.PendingMigrations()
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}
	if err := m.Up(); err != nil {
		return oops.Code("AUTO_MIGRATE_FAILED").With("pending", pending).Wrap(err)
	}
	logger.Info("applied migrations", "versions", pending)
	return nil
}

// configureNetwork runs startup detection and copies the chosen hosts
// into cfg. Failures only degrade reachability.
func configureNetwork(ctx context.Context, cfg *config.Config, deps *Deps, logger *slog.Logger, metrics *observability.Metrics) {
	locator, err := deps.NewLocator(cfg, logger)
	if err != nil {
		errutil.LogWarn(ctx, logger, "network detection disabled", err)
		return
	}
	bridge := deps.NewBridge(logger, metrics.RecordNetBridge)

	out := netsetup.New(locator, bridge, netsetup.WithLogger(logger)).Run(ctx, netsetup.Input{
		Port:         cfg.Port,
		Host:         cfg.Host,
		EnvFile:      cfg.EnvFile,
		FirewallRule: cfg.FirewallRule,
	})

	// An undetected bind host stays empty so the public URL falls back to
	// localhost; APIAddr still listens on the wildcard.
	if out.Detected {
		cfg.Host = out.BindHost
	}
	if out.PublicHost != "" {
		cfg.PublicHost = out.PublicHost
	}
}

func newAuthService(cfg *config.Config, handle *store.Handle, logger *slog.Logger, metrics *observability.Metrics) (*auth.Service, error) {
	tokens, err := auth.NewTokenService([]byte(cfg.SecretKey),
		auth.WithTTL(cfg.TokenTTL),
		auth.WithTokenLogger(logger),
		auth.WithVerifyObserver(metrics.RecordTokenVerify),
	)
	if err != nil {
		return nil, err
	}
	hasher := auth.NewPBKDF2Hasher(auth.WithIterations(cfg.HashIterations))
	return auth.NewService(handle.Users, hasher, tokens,
		auth.WithLogger(logger),
		auth.WithObserver(metrics))
}
