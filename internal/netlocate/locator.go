// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Freshtrack Contributors

package netlocate

import (
	"context"
	"log/slog"
	"net"
	"os"
	"runtime"
	"strings"

	"github.com/freshtrack/freshtrack/internal/execx"
)

// kernelReleasePath holds the release string on Linux.
const kernelReleasePath = "/proc/sys/kernel/osrelease"

// Locator runs the discovery chain for one host.
type Locator struct {
	runner     execx.Runner
	tools      *execx.Tools
	goos       string
	release    func() (string, error)
	localAddr  LocalAddrFunc
	ifaceAddrs InterfaceAddrsFunc
	lan        LANMatcher
	adapter    AdapterMatcher
	logger     *slog.Logger
	strategies []Strategy
}

// Option configures a Locator.
type Option func(*Locator)

// WithRunner sets the process runner used for ipconfig and hostname.
func WithRunner(r execx.Runner) Option {
	return func(l *Locator) { l.runner = r }
}

// WithTools sets the Windows tool paths.
func WithTools(t execx.Tools) Option {
	return func(l *Locator) { l.tools = &t }
}

// WithGOOS overrides the operating system name.
func WithGOOS(goos string) Option {
	return func(l *Locator) { l.goos = goos }
}

// WithKernelRelease overrides how the kernel release string is read.
func WithKernelRelease(fn func() (string, error)) Option {
	return func(l *Locator) { l.release = fn }
}

// WithLocalAddr overrides the UDP-dial lookup.
func WithLocalAddr(fn LocalAddrFunc) Option {
	return func(l *Locator) { l.localAddr = fn }
}

// WithInterfaceAddrs overrides interface enumeration.
func WithInterfaceAddrs(fn InterfaceAddrsFunc) Option {
	return func(l *Locator) { l.ifaceAddrs = fn }
}

// WithLANMatcher sets the LAN address pattern.
func WithLANMatcher(m LANMatcher) Option {
	return func(l *Locator) { l.lan = m }
}

// WithAdapterMatcher sets the Wi-Fi adapter header glob.
func WithAdapterMatcher(m AdapterMatcher) Option {
	return func(l *Locator) { l.adapter = m }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Locator) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New creates a Locator for the current host. Defaults: the real process
// runner, tools detected for runtime.GOOS, and the default patterns.
func New(opts ...Option) *Locator {
	l := &Locator{
		goos:       runtime.GOOS,
		release:    readKernelRelease,
		localAddr:  UDPLocalAddr,
		ifaceAddrs: SystemInterfaceAddrs,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.runner == nil {
		l.runner = execx.NewExecRunner(l.logger)
	}
	if l.tools == nil {
		detected := execx.DetectTools(l.goos, execx.FileExists)
		l.tools = &detected
	}
	if l.lan.re == nil {
		l.lan, _ = NewLANMatcher("") //nolint:errcheck // default pattern compiles
	}
	if l.adapter.g == nil {
		l.adapter, _ = NewAdapterMatcher("") //nolint:errcheck // default glob compiles
	}

	windows := l.goos == "windows"
	l.strategies = []Strategy{
		&ipconfigStrategy{runner: l.runner, path: l.tools.Ipconfig, enabled: windows, adapter: l.adapter, lan: l.lan},
		&udpDialStrategy{localAddr: l.localAddr, enabled: !windows, lan: l.lan},
		&interfacesStrategy{addrs: l.ifaceAddrs, lan: l.lan},
	}
	return l
}

// Strategies returns the detection chain in order.
func (l *Locator) Strategies() []Strategy {
	return append([]Strategy(nil), l.strategies...)
}

// Detect returns the first LAN address any available strategy finds.
func (l *Locator) Detect(ctx context.Context) (Address, bool) {
	for _, s := range l.strategies {
		if !s.Available() {
			l.logger.Debug("network strategy unavailable", "strategy", s.Name())
			continue
		}
		if ctx.Err() != nil {
			return Address{}, false
		}
		if ip, ok := s.Detect(ctx); ok {
			l.logger.Debug("LAN address detected", "strategy", s.Name(), "ip", ip)
			return Address{IP: ip, Class: ClassPrivateLAN, Source: s.Name()}, true
		}
		l.logger.Debug("network strategy found nothing", "strategy", s.Name())
	}
	return Address{}, false
}

// WindowsWiFiIP returns the Wi-Fi address of the Windows host, whether
// this process runs on Windows or inside a WSL guest.
func (l *Locator) WindowsWiFiIP(ctx context.Context) (string, bool) {
	if !l.tools.HasIpconfig() {
		return "", false
	}
	s := &ipconfigStrategy{runner: l.runner, path: l.tools.Ipconfig, enabled: true, adapter: l.adapter, lan: l.lan}
	return s.Detect(ctx)
}

// DetectGuestAddress returns this guest's own IPv4 address: the first
// IPv4 token from `hostname -I`, else the UDP-dial source address with no
// LAN filter.
func (l *Locator) DetectGuestAddress(ctx context.Context) (string, bool) {
	res, err := l.runner.Run(ctx, HostnameTimeout, "hostname", "-I")
	if err == nil {
		for _, tok := range strings.Fields(res.Stdout) {
			if isIPv4(tok) {
				return tok, true
			}
		}
	}
	ip, err := l.localAddr(ctx, DialTarget)
	if err != nil || ip == "" {
		return "", false
	}
	return ip, true
}

// InWSL reports whether this process runs in a WSL guest.
func (l *Locator) InWSL() bool {
	release, err := l.release()
	if err != nil {
		return false
	}
	return IsWSL(l.goos, release)
}

// Tools returns the Windows tool paths the locator uses.
func (l *Locator) Tools() execx.Tools {
	return *l.tools
}

// GOOS returns the operating system the locator was built for.
func (l *Locator) GOOS() string {
	return l.goos
}

// IsWSL reports whether goos and a kernel release string describe a WSL
// guest.
func IsWSL(goos, release string) bool {
	return goos == "linux" && strings.Contains(strings.ToLower(release), "microsoft")
}

func isIPv4(s string) bool {
	ip := net.ParseIP(s)
	return ip != nil && ip.To4() != nil && strings.Count(s, ".") == 3
}

func readKernelRelease() (string, error) {
	data, err := os.ReadFile(kernelReleasePath)
	if err != nil {
		return "", err //nolint:wrapcheck // callers treat any error as "not WSL"
	}
	return strings.TrimSpace(string(data)), nil
}
