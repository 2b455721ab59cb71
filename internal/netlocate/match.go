// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Freshtrack Contributors

// Package netlocate discovers a LAN-reachable IPv4 address for this host.
//
// Detection is an ordered chain of strategies. Each strategy reports
// whether it can run on this host; the first one to produce an address
// wins. On a Windows host the Wi-Fi adapter section of ipconfig output is
// preferred. Elsewhere the kernel is asked which source address it would
// use for an outbound UDP flow. Enumerating interfaces is the last resort.
package netlocate

import (
	"net/netip"
	"regexp"
	"strings"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// DefaultLANPattern matches the home-router ranges phones can reach.
const DefaultLANPattern = `^192\.168\.(0|1)\.\d+$`

// DefaultWiFiAdapter matches ipconfig section headers for wireless adapters.
// It is compared against the lower-cased, trimmed header line.
const DefaultWiFiAdapter = "*wireless lan adapter*{wi-fi,wi fi,wifi}*"

// Class describes how an address was judged.
type Class string

// Address classes.
const (
	ClassPrivateLAN Class = "private-lan"
	ClassOther      Class = "other"
)

// Address is a discovered IPv4 address and the strategy that found it.
type Address struct {
	IP     string `json:"ip"`
	Class  Class  `json:"class"`
	Source string `json:"source"`
}

// LANMatcher decides whether an IPv4 string is a reachable LAN address.
type LANMatcher struct {
	re *regexp.Regexp
}

// NewLANMatcher compiles pattern. An empty pattern uses DefaultLANPattern.
func NewLANMatcher(pattern string) (LANMatcher, error) {
	if pattern == "" {
		pattern = DefaultLANPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return LANMatcher{}, oops.Code("NETLOCATE_BAD_PATTERN").With("pattern", pattern).Wrap(err)
	}
	return LANMatcher{re: re}, nil
}

// Match reports whether ip is a dotted IPv4 address matching the LAN
// pattern. Out-of-range octets never match.
func (m LANMatcher) Match(ip string) bool {
	if m.re == nil {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil || !addr.Is4() {
		return false
	}
	return m.re.MatchString(ip)
}

// String returns the pattern source.
func (m LANMatcher) String() string {
	if m.re == nil {
		return ""
	}
	return m.re.String()
}

// AdapterMatcher recognises the ipconfig header of the wireless adapter.
type AdapterMatcher struct {
	g       glob.Glob
	pattern string
}

// NewAdapterMatcher compiles a case-insensitive glob. An empty pattern uses
// DefaultWiFiAdapter.
func NewAdapterMatcher(pattern string) (AdapterMatcher, error) {
	if pattern == "" {
		pattern = DefaultWiFiAdapter
	}
	lowered := strings.ToLower(pattern)
	g, err := glob.Compile(lowered)
	if err != nil {
		return AdapterMatcher{}, oops.Code("NETLOCATE_BAD_PATTERN").With("pattern", pattern).Wrap(err)
	}
	return AdapterMatcher{g: g, pattern: lowered}, nil
}

// Match reports whether line is a header for the wireless adapter.
func (m AdapterMatcher) Match(line string) bool {
	return m.g != nil && m.g.Match(strings.ToLower(strings.TrimSpace(line)))
}

// String returns the lower-cased glob.
func (m AdapterMatcher) String() string {
	return m.pattern
}
