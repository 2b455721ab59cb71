// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Freshtrack Contributors

package netlocate

import (
	"context"
	"net"
	"time"

	"github.com/samber/oops"
	psnet "github.com/shirou/gopsutil/v4/net"

	"github.com/freshtrack/freshtrack/internal/execx"
)

// Timeouts for discovery. No packet is sent by the UDP dial; the timeout
// only bounds route lookup.
const (
	IpconfigTimeout = 5 * time.Second
	HostnameTimeout = 3 * time.Second
	DialTimeout     = 2 * time.Second
)

// DialTarget is the public address used to make the kernel pick a source
// address for an outbound flow.
const DialTarget = "8.8.8.8:80"

// Strategy is one way of finding a LAN address.
type Strategy interface {
	// Name identifies the strategy in logs and in Address.Source.
	Name() string
	// Available reports whether the strategy can run on this host.
	Available() bool
	// Detect returns a LAN address, or false.
	Detect(ctx context.Context) (string, bool)
}

// LocalAddrFunc returns the local IP the kernel would use to reach target.
type LocalAddrFunc func(ctx context.Context, target string) (string, error)

// InterfaceAddrsFunc lists the unicast addresses of every interface.
type InterfaceAddrsFunc func() ([]net.Addr, error)

// UDPLocalAddr is the default LocalAddrFunc. It dials target over UDP,
// which selects a route without sending anything, and reads back the
// local endpoint.
func UDPLocalAddr(ctx context.Context, target string) (string, error) {
	d := net.Dialer{Timeout: DialTimeout}
	conn, err := d.DialContext(ctx, "udp4", target)
	if err != nil {
		return "", oops.Code("NETLOCATE_DIAL_FAILED").With("target", target).Wrap(err)
	}
	defer func() { _ = conn.Close() }() //nolint:errcheck // UDP close cannot lose data
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || addr.IP.To4() == nil {
		return "", oops.Code("NETLOCATE_DIAL_FAILED").Errorf("no IPv4 local address")
	}
	return addr.IP.String(), nil
}

// SystemInterfaceAddrs is the default InterfaceAddrsFunc. It lists every
// address gopsutil reports for every interface, skipping entries that are
// not valid CIDR strings.
func SystemInterfaceAddrs() ([]net.Addr, error) {
	ifaces, err := psnet.Interfaces()
	if err != nil {
		return nil, oops.Code("NETLOCATE_INTERFACES_FAILED").Wrap(err)
	}
	var out []net.Addr
	for _, iface := range ifaces {
		for _, a := range iface.Addrs {
			ip, ipnet, err := net.ParseCIDR(a.Addr)
			if err != nil {
				continue
			}
			out = append(out, &net.IPNet{IP: ip, Mask: ipnet.Mask})
		}
	}
	return out, nil
}

// ipconfigStrategy parses ipconfig output on a Windows-style host.
type ipconfigStrategy struct {
	runner  execx.Runner
	path    string
	enabled bool
	adapter AdapterMatcher
	lan     LANMatcher
}

func (s *ipconfigStrategy) Name() string { return "ipconfig" }

func (s *ipconfigStrategy) Available() bool { return s.enabled && s.path != "" }

func (s *ipconfigStrategy) Detect(ctx context.Context) (string, bool) {
	res, err := s.runner.Run(ctx, IpconfigTimeout, s.path)
	if err != nil || res.Stdout == "" {
		return "", false
	}
	ip := ParseIPConfig(res.Stdout, s.adapter, s.lan)
	return ip, ip != ""
}

// udpDialStrategy asks the kernel for the outbound source address.
type udpDialStrategy struct {
	localAddr LocalAddrFunc
	enabled   bool
	lan       LANMatcher
}

func (s *udpDialStrategy) Name() string { return "udp-dial" }

func (s *udpDialStrategy) Available() bool { return s.enabled }

func (s *udpDialStrategy) Detect(ctx context.Context) (string, bool) {
	ip, err := s.localAddr(ctx, DialTarget)
	if err != nil || !s.lan.Match(ip) {
		return "", false
	}
	return ip, true
}

// interfacesStrategy walks every interface address.
type interfacesStrategy struct {
	addrs InterfaceAddrsFunc
	lan   LANMatcher
}

func (s *interfacesStrategy) Name() string { return "interfaces" }

func (s *interfacesStrategy) Available() bool { return true }

func (s *interfacesStrategy) Detect(_ context.Context) (string, bool) {
	addrs, err := s.addrs()
	if err != nil {
		return "", false
	}
	for _, a := range addrs {
		var ip net.IP
		switch v := a.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip4 := ip.To4(); ip4 != nil && s.lan.Match(ip4.String()) {
			return ip4.String(), true
		}
	}
	return "", false
}
