// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Freshtrack Contributors

// Package netsetup picks the bind and public hosts at startup and, inside
// WSL, asks Windows to forward the API port from the Wi-Fi address.
//
// Every step is best effort. Failures are logged and the server falls back
// to the configured host or the wildcard address.
package netsetup

import (
	"context"
	"log/slog"

	"github.com/freshtrack/freshtrack/internal/envfile"
	"github.com/freshtrack/freshtrack/internal/netlocate"
	"github.com/freshtrack/freshtrack/internal/winbridge"
	"github.com/freshtrack/freshtrack/pkg/errutil"
)

// WildcardHost binds every interface.
const WildcardHost = "0.0.0.0"

// Env keys written back after detection.
const (
	EnvHost       = "HOST"
	EnvPublicHost = "PUBLIC_HOST"
)

// Locator finds host addresses.
type Locator interface {
	GOOS() string
	InWSL() bool
	Detect(ctx context.Context) (netlocate.Address, bool)
	WindowsWiFiIP(ctx context.Context) (string, bool)
	DetectGuestAddress(ctx context.Context) (string, bool)
}

// Bridge configures the Windows host.
type Bridge interface {
	Available() bool
	EnsureFirewallRule(ctx context.Context, port int, name string) winbridge.Result
	EnsurePortForward(ctx context.Context, rule winbridge.PortForwardRule) winbridge.Result
}

// EnvUpdater persists KEY=value. envfile.Update satisfies it.
type EnvUpdater func(path, key, value string) (bool, error)

// Input is what startup knows before detection.
type Input struct {
	Port         int
	Host         string // configured HOST, used when nothing is detected
	EnvFile      string // "" disables write-back
	FirewallRule string
}

// Outcome records what was decided and done.
type Outcome struct {
	BindHost   string            `json:"bind_host"`
	PublicHost string            `json:"public_host,omitempty"`
	Detected   bool              `json:"detected"`
	WSL        bool              `json:"wsl"`
	GuestIP    string            `json:"guest_ip,omitempty"`
	Firewall   *winbridge.Result `json:"firewall,omitempty"`
	PortProxy  *winbridge.Result `json:"portproxy,omitempty"`
	EnvWritten []string          `json:"env_written,omitempty"`
}

// Setup runs the startup network flow.
type Setup struct {
	locator   Locator
	bridge    Bridge
	updateEnv EnvUpdater
	logger    *slog.Logger
}

// Option configures a Setup.
type Option func(*Setup)

// WithEnvUpdater replaces the .env writer.
func WithEnvUpdater(fn EnvUpdater) Option {
	return func(s *Setup) {
		if fn != nil {
			s.updateEnv = fn
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Setup) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a Setup. bridge may be nil when netsh is unreachable.
func New(locator Locator, bridge Bridge, opts ...Option) *Setup {
	s := &Setup{
		locator:   locator,
		bridge:    bridge,
		updateEnv: envfile.Update,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run decides the bind host and public host.
//
// On Windows the Wi-Fi adapter address is bound. Inside WSL the API binds
// the wildcard, the Windows Wi-Fi address becomes the public host, and the
// firewall rule and port forward are ensured when both ends are known.
// Otherwise the first LAN address found is bound. Detected hosts are
// written to the .env file.
func (s *Setup) Run(ctx context.Context, in Input) Outcome {
	var out Outcome
	out.WSL = s.locator.InWSL()

	if s.locator.GOOS() == "windows" {
		if ip, ok := s.locator.WindowsWiFiIP(ctx); ok {
			out.BindHost = ip
			out.Detected = true
			s.persist(ctx, in.EnvFile, EnvHost, ip, &out)
			s.logger.InfoContext(ctx, "using Windows Wi-Fi address", "host", ip)
		} else {
			s.logger.InfoContext(ctx, "Windows Wi-Fi address not found, falling back to detection")
		}
	}

	if out.WSL {
		s.configureWSL(ctx, in, &out)
	}

	if out.BindHost == "" {
		if addr, ok := s.locator.Detect(ctx); ok {
			out.BindHost = addr.IP
			out.Detected = true
			s.persist(ctx, in.EnvFile, EnvHost, addr.IP, &out)
			s.logger.InfoContext(ctx, "detected LAN address", "host", addr.IP, "source", addr.Source)
		} else {
			out.BindHost = in.Host
			if out.BindHost == "" {
				out.BindHost = WildcardHost
			}
			s.logger.InfoContext(ctx, "no LAN address detected, using configured host", "host", out.BindHost)
		}
	}

	return out
}

func (s *Setup) configureWSL(ctx context.Context, in Input, out *Outcome) {
	if ip, ok := s.locator.WindowsWiFiIP(ctx); ok {
		out.PublicHost = ip
		s.persist(ctx, in.EnvFile, EnvPublicHost, ip, out)
		s.logger.InfoContext(ctx, "detected Windows Wi-Fi address", "public_host", ip)
	}
	if out.BindHost == "" {
		out.BindHost = WildcardHost
	}

	guest, ok := s.locator.DetectGuestAddress(ctx)
	if ok {
		out.GuestIP = guest
	}
	if out.PublicHost == "" || !ok {
		s.logger.InfoContext(ctx, "skipping port forwarding, address unknown",
			"public_host", out.PublicHost, "guest_ip", out.GuestIP)
		return
	}
	if s.bridge == nil || !s.bridge.Available() {
		s.logger.WarnContext(ctx, "netsh not reachable from WSL, skipping port forwarding")
		return
	}

	fw := s.bridge.EnsureFirewallRule(ctx, in.Port, in.FirewallRule)
	out.Firewall = &fw
	s.logResult(ctx, "firewall", fw)

	pp := s.bridge.EnsurePortForward(ctx, winbridge.PortForwardRule{
		ListenAddr:  out.PublicHost,
		ListenPort:  in.Port,
		ConnectAddr: guest,
		ConnectPort: in.Port,
	})
	out.PortProxy = &pp
	s.logResult(ctx, "portproxy", pp)
	if !pp.OK {
		s.logger.WarnContext(ctx, "accept the Windows UAC prompt to finish port forwarding")
	}
}

func (s *Setup) persist(ctx context.Context, path, key, value string, out *Outcome) {
	if path == "" {
		return
	}
	written, err := s.updateEnv(path, key, value)
	if err != nil {
		errutil.LogWarn(ctx, s.logger, "could not update env file", err, "path", path, "key", key)
		return
	}
	if written {
		out.EnvWritten = append(out.EnvWritten, key)
		s.logger.InfoContext(ctx, "updated env file", "path", path, "key", key, "value", value)
	}
}

func (s *Setup) logResult(ctx context.Context, action string, r winbridge.Result) {
	level := slog.LevelInfo
	if !r.OK {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, action+": "+r.Message, "changed", r.Changed, "elevated", r.Elevated)
}
