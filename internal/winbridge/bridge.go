// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Freshtrack Contributors

// Package winbridge makes a port served inside a WSL guest reachable from
// the physical LAN by configuring the Windows host with netsh.
//
// Both operations are idempotent: they query the current state, change
// only what differs, retry through an elevated PowerShell prompt when the
// plain command is refused, and re-query to confirm. Failures are reported
// as a Result, never as a Go error, so callers can log and carry on.
package winbridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/freshtrack/freshtrack/internal/execx"
)

// Command timeouts.
const (
	NetshTimeout     = 8 * time.Second
	ElevationTimeout = 15 * time.Second
)

// DefaultFirewallRule names the inbound allow rule.
const DefaultFirewallRule = "Freshness Tracker Backend"

// Re-verify defaults. Start-Process returns before the elevated netsh
// has run, so the first query after elevation may still miss the change.
const (
	DefaultVerifyAttempts = 5
	DefaultVerifyInterval = time.Second
)

// Actions and outcomes reported to the Observer.
const (
	ActionPortProxy = "portproxy"
	ActionFirewall  = "firewall"

	OutcomePresent     = "present"
	OutcomeAdded       = "added"
	OutcomeElevated    = "elevated"
	OutcomeFailed      = "failed"
	OutcomeUnavailable = "unavailable"
)

var errNotConverged = errors.New("state not yet applied")

// Result is the outcome of an Ensure call.
type Result struct {
	OK       bool   `json:"ok"`
	Changed  bool   `json:"changed"`
	Elevated bool   `json:"elevated"`
	Message  string `json:"message"`
}

// Observer receives one outcome per Ensure call.
type Observer func(action, outcome string)

// Bridge configures Windows networking through netsh.
type Bridge struct {
	runner         execx.Runner
	tools          execx.Tools
	logger         *slog.Logger
	observer       Observer
	verifyAttempts uint64
	verifyInterval time.Duration
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithObserver registers a callback for outcomes.
func WithObserver(o Observer) Option {
	return func(b *Bridge) { b.observer = o }
}

// WithVerifyRetry sets how often and how far apart the post-elevation
// query is repeated. attempts counts retries after the first query.
func WithVerifyRetry(attempts uint64, interval time.Duration) Option {
	return func(b *Bridge) {
		b.verifyAttempts = attempts
		if interval > 0 {
			b.verifyInterval = interval
		}
	}
}

// New creates a Bridge over runner using the given tool paths.
func New(runner execx.Runner, tools execx.Tools, opts ...Option) *Bridge {
	b := &Bridge{
		runner:         runner,
		tools:          tools,
		logger:         slog.Default(),
		verifyAttempts: DefaultVerifyAttempts,
		verifyInterval: DefaultVerifyInterval,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Available reports whether netsh can be run.
func (b *Bridge) Available() bool {
	return b.tools.HasNetsh()
}

// netsh runs netsh with args and the standard timeout.
func (b *Bridge) netsh(ctx context.Context, args ...string) (execx.Result, error) {
	res, err := b.runner.Run(ctx, NetshTimeout, b.tools.Netsh, args...)
	if err != nil {
		b.logger.Debug("netsh failed to run", "args", strings.Join(args, " "), "error", err)
	}
	return res, err //nolint:wrapcheck // callers turn this into a Result message
}

// elevate runs netsh with argList through an elevated PowerShell
// Start-Process. It returns an operator-facing error text, or "" once the
// elevated process has been launched.
func (b *Bridge) elevate(ctx context.Context, argList string) string {
	if !b.tools.HasPowerShell() {
		return "powershell not available"
	}
	command := fmt.Sprintf("Start-Process netsh -ArgumentList '%s' -Verb RunAs", argList)
	res, err := b.runner.Run(ctx, ElevationTimeout, b.tools.PowerShell, "-NoProfile", "-Command", command)
	if err != nil {
		return err.Error()
	}
	if !res.OK() {
		return errorText(res, nil)
	}
	return ""
}

// awaitState polls present until it holds or the retry budget runs out.
func (b *Bridge) awaitState(ctx context.Context, present func(context.Context) bool) bool {
	backoff := retry.WithMaxRetries(b.verifyAttempts, retry.NewConstant(b.verifyInterval))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if present(ctx) {
			return nil
		}
		return retry.RetryableError(errNotConverged)
	})
	return err == nil
}

func (b *Bridge) observe(action, outcome string) {
	if b.observer != nil {
		b.observer(action, outcome)
	}
}

// errorText extracts the most useful message from a failed command.
func errorText(res execx.Result, err error) string {
	if msg := strings.TrimSpace(res.Stderr); msg != "" {
		return msg
	}
	if msg := strings.TrimSpace(res.Stdout); msg != "" {
		return msg
	}
	if err != nil {
		return err.Error()
	}
	if res.ExitCode != 0 {
		return fmt.Sprintf("exit status %d", res.ExitCode)
	}
	return ""
}
