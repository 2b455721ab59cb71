// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Freshtrack Contributors

package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"runtime"

	"golang.org/x/term"

	"github.com/freshtrack/freshtrack/internal/config"
	"github.com/freshtrack/freshtrack/internal/execx"
	"github.com/freshtrack/freshtrack/internal/netlocate"
	"github.com/freshtrack/freshtrack/internal/netsetup"
	"github.com/freshtrack/freshtrack/internal/store"
	"github.com/freshtrack/freshtrack/internal/winbridge"
)

// Deps contains injectable dependencies for the commands.
// Nil fields use their default implementations.
type Deps struct {
	// OpenStore opens the user store.
	// Default: store.Open
	OpenStore func(ctx context.Context, url string) (*store.Handle, error)

	// NewMigrator creates a schema migrator.
	// Default: store.NewMigrator
	NewMigrator func(url string) (Migrator, error)

	// NewLocator creates the network locator.
	// Default: netlocate.New with the configured matchers
	NewLocator func(cfg *config.Config, logger *slog.Logger) (netsetup.Locator, error)

	// NewBridge creates the Windows bridge, or returns nil when netsh is
	// not reachable.
	// Default: winbridge.New over the detected Windows tools
	NewBridge func(logger *slog.Logger, observer winbridge.Observer) netsetup.Bridge

	// Listen opens the API listener.
	// Default: net.Listen
	Listen func(network, address string) (net.Listener, error)

	// Stdin is the file used for password prompts.
	// Default: os.Stdin
	Stdin *os.File

	// IsTerminal reports whether fd is a terminal.
	// Default: term.IsTerminal
	IsTerminal func(fd int) bool

	// ReadPassword reads a line from fd without echo.
	// Default: term.ReadPassword
	ReadPassword func(fd int) ([]byte, error)
}

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Dialect() store.Dialect
	Up() error
	Down() error
	Steps(n int) error
	Version() (uint, bool, error)
	Force(version int) error
	PendingMigrations() ([]uint, error)
	AppliedMigrations() ([]uint, error)
	Close() error
}

// locatorWithTools is satisfied by *netlocate.Locator.
type locatorWithTools interface {
	netsetup.Locator
	Tools() execx.Tools
}

func (d *Deps) withDefaults() *Deps {
	out := &Deps{}
	if d != nil {
		*out = *d
	}
	if out.OpenStore == nil {
		out.OpenStore = store.Open
	}
	if out.NewMigrator == nil {
		out.NewMigrator = func(url string) (Migrator, error) {
			return store.NewMigrator(url)
		}
	}
	if out.NewLocator == nil {
		out.NewLocator = defaultLocator
	}
	if out.NewBridge == nil {
		out.NewBridge = defaultBridge
	}
	if out.Listen == nil {
		out.Listen = net.Listen
	}
	if out.Stdin == nil {
		out.Stdin = os.Stdin
	}
	if out.IsTerminal == nil {
		out.IsTerminal = term.IsTerminal
	}
	if out.ReadPassword == nil {
		out.ReadPassword = term.ReadPassword
	}
	return out
}

func defaultLocator(cfg *config.Config, logger *slog.Logger) (netsetup.Locator, error) {
	lan, err := netlocate.NewLANMatcher(cfg.LANPattern)
	if err != nil {
		return nil, err
	}
	adapter, err := netlocate.NewAdapterMatcher(cfg.WiFiAdapter)
	if err != nil {
		return nil, err
	}
	return netlocate.New(
		netlocate.WithRunner(execx.NewExecRunner(logger)),
		netlocate.WithLANMatcher(lan),
		netlocate.WithAdapterMatcher(adapter),
		netlocate.WithLogger(logger),
	), nil
}

func defaultBridge(logger *slog.Logger, observer winbridge.Observer) netsetup.Bridge {
	tools := execx.DetectTools(runtime.GOOS, execx.FileExists)
	if !tools.HasNetsh() {
		return nil
	}
	return winbridge.New(execx.NewExecRunner(logger), tools,
		winbridge.WithLogger(logger),
		winbridge.WithObserver(observer))
}
