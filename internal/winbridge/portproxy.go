// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Freshtrack Contributors

package winbridge

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/samber/oops"
)

// PortForwardRule maps ListenAddr:ListenPort on the Windows host to
// ConnectAddr:ConnectPort inside the guest.
type PortForwardRule struct {
	ListenAddr  string `json:"listen_addr"`
	ListenPort  int    `json:"listen_port"`
	ConnectAddr string `json:"connect_addr"`
	ConnectPort int    `json:"connect_port"`
}

// Validate checks that both endpoints are IPv4 addresses with valid ports.
func (r PortForwardRule) Validate() error {
	for _, ep := range []struct {
		name string
		addr string
		port int
	}{
		{"listen", r.ListenAddr, r.ListenPort},
		{"connect", r.ConnectAddr, r.ConnectPort},
	} {
		if ip := net.ParseIP(ep.addr); ip == nil || ip.To4() == nil {
			return oops.Code("WINBRIDGE_INVALID_RULE").With("endpoint", ep.name).Errorf("invalid IPv4 address %q", ep.addr)
		}
		if ep.port < 1 || ep.port > 65535 {
			return oops.Code("WINBRIDGE_INVALID_RULE").With("endpoint", ep.name).Errorf("invalid port %d", ep.port)
		}
	}
	return nil
}

func (r PortForwardRule) listen() string {
	return net.JoinHostPort(r.ListenAddr, strconv.Itoa(r.ListenPort))
}

func (r PortForwardRule) connect() string {
	return net.JoinHostPort(r.ConnectAddr, strconv.Itoa(r.ConnectPort))
}

func (r PortForwardRule) addArgs() []string {
	return []string{
		"interface", "portproxy", "add", "v4tov4",
		"listenaddress=" + r.ListenAddr,
		"listenport=" + strconv.Itoa(r.ListenPort),
		"connectaddress=" + r.ConnectAddr,
		"connectport=" + strconv.Itoa(r.ConnectPort),
	}
}

// EnsurePortForward makes the host forward rule.Listen to rule.Connect.
// An existing identical mapping is left alone. Otherwise any mapping on
// the same listen endpoint is deleted before the new one is added.
func (b *Bridge) EnsurePortForward(ctx context.Context, rule PortForwardRule) Result {
	if !b.Available() {
		b.observe(ActionPortProxy, OutcomeUnavailable)
		return Result{Message: "netsh not available"}
	}
	if err := rule.Validate(); err != nil {
		b.observe(ActionPortProxy, OutcomeFailed)
		return Result{Message: "failed to configure portproxy: " + err.Error()}
	}

	if b.portForwardPresent(ctx, rule) {
		b.observe(ActionPortProxy, OutcomePresent)
		return Result{OK: true, Message: "portproxy already configured"}
	}

	// A failed delete just means there was nothing to delete.
	_, _ = b.netsh(ctx, "interface", "portproxy", "delete", "v4tov4", //nolint:errcheck // see above
		"listenaddress="+rule.ListenAddr,
		"listenport="+strconv.Itoa(rule.ListenPort))

	res, err := b.netsh(ctx, rule.addArgs()...)
	if err == nil && res.OK() {
		b.logger.Info("portproxy configured", "listen", rule.listen(), "connect", rule.connect())
		b.observe(ActionPortProxy, OutcomeAdded)
		return Result{OK: true, Changed: true, Message: "portproxy configured"}
	}
	addErr := errorText(res, err)

	b.logger.Info("portproxy add refused, retrying elevated", "listen", rule.listen(), "error", addErr)
	elevateErr := b.elevate(ctx, strings.Join(rule.addArgs(), " "))

	if elevateErr == "" && b.awaitState(ctx, func(ctx context.Context) bool { return b.portForwardPresent(ctx, rule) }) {
		b.observe(ActionPortProxy, OutcomeElevated)
		return Result{OK: true, Changed: true, Elevated: true, Message: "portproxy configured (elevated)"}
	}

	msg := addErr
	if msg == "" {
		msg = elevateErr
	}
	b.observe(ActionPortProxy, OutcomeFailed)
	return Result{Message: fmt.Sprintf("failed to configure portproxy: %s", msg)}
}

// portForwardPresent reports whether `show all` lists both endpoints.
func (b *Bridge) portForwardPresent(ctx context.Context, rule PortForwardRule) bool {
	res, err := b.netsh(ctx, "interface", "portproxy", "show", "all")
	if err != nil || !res.OK() {
		return false
	}
	return showsMapping(res.Stdout, rule)
}

// showsMapping scans `netsh interface portproxy show all` output for a row
// listing the rule. Rows look like:
//
//	192.168.1.23    8000        172.24.170.5    8000
func showsMapping(out string, rule PortForwardRule) bool {
	listenPort := strconv.Itoa(rule.ListenPort)
	connectPort := strconv.Itoa(rule.ConnectPort)
	for _, line := range strings.Split(out, "\n") {
		f := strings.Fields(line)
		if len(f) == 4 && f[0] == rule.ListenAddr && f[1] == listenPort &&
			f[2] == rule.ConnectAddr && f[3] == connectPort {
			return true
		}
	}
	// Some netsh builds print addr:port pairs.
	return strings.Contains(out, rule.ListenAddr+":"+listenPort) &&
		strings.Contains(out, rule.ConnectAddr+":"+connectPort)
}
