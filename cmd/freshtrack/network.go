// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Freshtrack Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"text/tabwriter"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/freshtrack/freshtrack/internal/config"
	"github.com/freshtrack/freshtrack/internal/execx"
	"github.com/freshtrack/freshtrack/internal/netlocate"
	"github.com/freshtrack/freshtrack/internal/netsetup"
	"github.com/freshtrack/freshtrack/internal/winbridge"
)

// NetworkReport is what `network detect` prints.
type NetworkReport struct {
	GOOS      string                 `json:"goos"`
	WSL       bool                   `json:"wsl"`
	LAN       *netlocate.Address     `json:"lan,omitempty"`
	WiFi      string                 `json:"wifi,omitempty"`
	Guest     string                 `json:"guest,omitempty"`
	Tools     *execx.Tools           `json:"tools,omitempty"`
	Endpoints config.PublicEndpoints `json:"endpoints"`
}

// NewNetworkCmd creates the network command group.
func NewNetworkCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "network",
		Short: "Inspect and configure LAN reachability",
	}
	cmd.AddCommand(newNetworkDetectCmd(deps))
	cmd.AddCommand(newNetworkBridgeCmd(deps))
	return cmd
}

func newNetworkDetectCmd(deps *Deps) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Print detected LAN, Wi-Fi and guest addresses",
		Long: `Run the address detection chain without changing anything and print
what serve would use. Nothing is written to the env file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps := deps.withDefaults()
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cmd, cfg)

			locator, err := deps.NewLocator(cfg, logger)
			if err != nil {
				return err
			}
			report := detectNetwork(cmd.Context(), cfg, locator)

			if jsonOutput {
				data, err := json.MarshalIndent(report, "", "  ")
				if err != nil {
					return oops.Code("OUTPUT_FAILED").Wrap(err)
				}
				cmd.Println(string(data))
				return nil
			}
			cmd.Print(formatNetworkReport(report))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

// detectNetwork fills a report and applies the same host choice serve
// makes, without touching the env file or Windows.
func detectNetwork(ctx context.Context, cfg *config.Config, locator netsetup.Locator) NetworkReport {
	report := NetworkReport{GOOS: locator.GOOS(), WSL: locator.InWSL()}
	if lt, ok := locator.(locatorWithTools); ok {
		tools := lt.Tools()
		report.Tools = &tools
	}

	if addr, ok := locator.Detect(ctx); ok {
		report.LAN = &addr
	}
	if report.GOOS == "windows" || report.WSL {
		if ip, ok := locator.WindowsWiFiIP(ctx); ok {
			report.WiFi = ip
		}
	}
	if report.WSL {
		if ip, ok := locator.DetectGuestAddress(ctx); ok {
			report.Guest = ip
		}
	}

	view := *cfg
	switch {
	case report.WSL:
		if report.WiFi != "" {
			view.PublicHost = report.WiFi
		}
	case report.GOOS == "windows" && report.WiFi != "":
		view.Host = report.WiFi
	case report.LAN != nil:
		view.Host = report.LAN.IP
	}
	report.Endpoints = view.PublicEndpoints()
	return report
}

func formatNetworkReport(r NetworkReport) string {
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)

	orNone := func(s string) string {
		if s == "" {
			return "-"
		}
		return s
	}

	_, _ = fmt.Fprintf(w, "OS:\t%s\n", r.GOOS)
	_, _ = fmt.Fprintf(w, "WSL:\t%t\n", r.WSL)
	if r.LAN != nil {
		_, _ = fmt.Fprintf(w, "LAN:\t%s (%s, %s)\n", r.LAN.IP, r.LAN.Source, r.LAN.Class)
	} else {
		_, _ = fmt.Fprintf(w, "LAN:\t-\n")
	}
	_, _ = fmt.Fprintf(w, "Wi-Fi:\t%s\n", orNone(r.WiFi))
	_, _ = fmt.Fprintf(w, "Guest:\t%s\n", orNone(r.Guest))
	if r.Tools != nil {
		_, _ = fmt.Fprintf(w, "ipconfig:\t%s\n", orNone(r.Tools.Ipconfig))
		_, _ = fmt.Fprintf(w, "netsh:\t%s\n", orNone(r.Tools.Netsh))
		_, _ = fmt.Fprintf(w, "powershell:\t%s\n", orNone(r.Tools.PowerShell))
	}
	_, _ = fmt.Fprintf(w, "Public URL:\t%s\n", r.Endpoints.PublicURL)
	_, _ = fmt.Fprintf(w, "API URL:\t%s\n", r.Endpoints.APIURL)

	_ = w.Flush() //nolint:errcheck // strings.Builder never fails
	return sb.String()
}

type bridgeConfig struct {
	listenAddr  string
	connectAddr string
	port        int
	jsonOutput  bool
}

// BridgeReport is what `network bridge` prints.
type BridgeReport struct {
	Rule      winbridge.PortForwardRule `json:"rule"`
	Firewall  winbridge.Result          `json:"firewall"`
	PortProxy winbridge.Result          `json:"portproxy"`
}

func newNetworkBridgeCmd(deps *Deps) *cobra.Command {
	bc := &bridgeConfig{}
	cmd := &cobra.Command{
		Use:   "bridge",
		Short: "Open the firewall and forward the API port on the Windows host",
		Long: `Ensure the inbound firewall rule and the netsh portproxy mapping that
make the API reachable from the LAN. Addresses default to the detected
Wi-Fi address (listen) and guest address (connect).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBridge(cmd, deps, bc)
		},
	}
	cmd.Flags().StringVar(&bc.listenAddr, "listen-addr", "", "Windows address to listen on (default: detected Wi-Fi address)")
	cmd.Flags().StringVar(&bc.connectAddr, "connect-addr", "", "guest address to forward to (default: detected guest address)")
	cmd.Flags().IntVar(&bc.port, "port", 0, "port to open and forward (default: configured port)")
	cmd.Flags().BoolVar(&bc.jsonOutput, "json", false, "output as JSON")
	return cmd
}

func runBridge(cmd *cobra.Command, deps *Deps, bc *bridgeConfig) error {
	deps = deps.withDefaults()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg)
	ctx := cmd.Context()

	bridge := deps.NewBridge(logger, nil)
	if bridge == nil || !bridge.Available() {
		return oops.Code("BRIDGE_UNAVAILABLE").Errorf("netsh is not reachable from this host")
	}

	port := bc.port
	if port == 0 {
		port = cfg.Port
	}

	rule, err := resolveForwardRule(ctx, cfg, deps, logger, bc, port)
	if err != nil {
		return err
	}

	report := BridgeReport{Rule: rule}
	report.Firewall = bridge.EnsureFirewallRule(ctx, port, cfg.FirewallRule)
	report.PortProxy = bridge.EnsurePortForward(ctx, rule)

	if bc.jsonOutput {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return oops.Code("OUTPUT_FAILED").Wrap(err)
		}
		cmd.Println(string(data))
	} else {
		cmd.Printf("firewall:  %s\n", report.Firewall.Message)
		cmd.Printf("portproxy: %s\n", report.PortProxy.Message)
	}

	if !report.Firewall.OK || !report.PortProxy.OK {
		return oops.Code("BRIDGE_FAILED").
			With("firewall", report.Firewall.OK).
			With("portproxy", report.PortProxy.OK).
			Errorf("Windows bridge incomplete; run from an elevated prompt if UAC was declined")
	}
	return nil
}

func resolveForwardRule(ctx context.Context, cfg *config.Config, deps *Deps, logger *slog.Logger, bc *bridgeConfig, port int) (winbridge.PortForwardRule, error) {
	rule := winbridge.PortForwardRule{
		ListenAddr:  bc.listenAddr,
		ListenPort:  port,
		ConnectAddr: bc.connectAddr,
		ConnectPort: port,
	}
	if rule.ListenAddr != "" && rule.ConnectAddr != "" {
		return rule, nil
	}

	locator, err := deps.NewLocator(cfg, logger)
	if err != nil {
		return rule, err
	}
	if rule.ListenAddr == "" {
		ip, ok := locator.WindowsWiFiIP(ctx)
		if !ok {
			return rule, oops.Code("BRIDGE_NO_LISTEN_ADDR").Errorf("no Windows Wi-Fi address found; pass --listen-addr")
		}
		rule.ListenAddr = ip
	}
	if rule.ConnectAddr == "" {
		ip, ok := locator.DetectGuestAddress(ctx)
		if !ok {
			return rule, oops.Code("BRIDGE_NO_CONNECT_ADDR").Errorf("no guest address found; pass --connect-addr")
		}
		rule.ConnectAddr = ip
	}
	return rule, nil
}
