// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Freshtrack Contributors

package winbridge

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// EnsureFirewallRule makes sure an inbound TCP allow rule called name
// covers port. An empty name uses DefaultFirewallRule.
func (b *Bridge) EnsureFirewallRule(ctx context.Context, port int, name string) Result {
	if name == "" {
		name = DefaultFirewallRule
	}
	if !b.Available() {
		b.observe(ActionFirewall, OutcomeUnavailable)
		return Result{Message: "netsh not available"}
	}
	if port < 1 || port > 65535 {
		b.observe(ActionFirewall, OutcomeFailed)
		return Result{Message: fmt.Sprintf("failed to add firewall rule: invalid port %d", port)}
	}
	if strings.ContainsAny(name, `'"`) {
		b.observe(ActionFirewall, OutcomeFailed)
		return Result{Message: "failed to add firewall rule: rule name must not contain quotes"}
	}

	if b.firewallRulePresent(ctx, port, name) {
		b.observe(ActionFirewall, OutcomePresent)
		return Result{OK: true, Message: "firewall rule exists"}
	}

	res, err := b.netsh(ctx, "advfirewall", "firewall", "add", "rule",
		"name="+name, "dir=in", "action=allow", "protocol=TCP",
		"localport="+strconv.Itoa(port), "profile=any")
	if err == nil && res.OK() {
		b.logger.Info("firewall rule added", "rule", name, "port", port)
		b.observe(ActionFirewall, OutcomeAdded)
		return Result{OK: true, Changed: true, Message: "firewall rule added"}
	}
	addErr := errorText(res, err)

	b.logger.Info("firewall add refused, retrying elevated", "rule", name, "error", addErr)
	argList := fmt.Sprintf(`advfirewall firewall add rule name="%s" dir=in action=allow protocol=TCP localport=%d profile=any`, name, port)
	elevateErr := b.elevate(ctx, argList)

	if elevateErr == "" && b.awaitState(ctx, func(ctx context.Context) bool { return b.firewallRulePresent(ctx, port, name) }) {
		b.observe(ActionFirewall, OutcomeElevated)
		return Result{OK: true, Changed: true, Elevated: true, Message: "firewall rule added (elevated)"}
	}

	msg := addErr
	if msg == "" {
		msg = elevateErr
	}
	b.observe(ActionFirewall, OutcomeFailed)
	return Result{Message: "failed to add firewall rule: " + msg}
}

// firewallRulePresent reports whether `show rule name=<name>` succeeds
// and mentions port.
func (b *Bridge) firewallRulePresent(ctx context.Context, port int, name string) bool {
	res, err := b.netsh(ctx, "advfirewall", "firewall", "show", "rule", "name="+name)
	if err != nil || !res.OK() {
		return false
	}
	return showsPort(res.Stdout, port)
}

// showsPort looks for port as a whole token on a LocalPort line, falling
// back to a plain substring match for localized output.
func showsPort(out string, port int) bool {
	p := strconv.Itoa(port)
	sawLocalPort := false
	for _, line := range strings.Split(out, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok || !strings.EqualFold(strings.TrimSpace(key), "LocalPort") {
			continue
		}
		sawLocalPort = true
		for _, tok := range strings.FieldsFunc(value, isPortSeparator) {
			if tok == p {
				return true
			}
		}
	}
	return !sawLocalPort && strings.Contains(out, p)
}

func isPortSeparator(r rune) bool {
	return r == ',' || r == ' ' || r == '\t' || r == '\r'
}
