// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Freshtrack Contributors

package execx

import "os"

// Windows system tools as seen from a WSL guest.
const (
	wslIpconfig   = "/mnt/c/Windows/System32/ipconfig.exe"
	wslNetsh      = "/mnt/c/Windows/System32/netsh.exe"
	wslPowerShell = "/mnt/c/Windows/System32/WindowsPowerShell/v1.0/powershell.exe"
)

// Tools records which Windows programs are reachable from this process.
// An empty path means the tool is unavailable.
type Tools struct {
	Ipconfig   string
	Netsh      string
	PowerShell string
}

// DetectTools resolves tool paths for goos. On Windows they are found on
// PATH; elsewhere only the WSL interop mounts qualify. exists is typically
// FileExists.
func DetectTools(goos string, exists func(path string) bool) Tools {
	if goos == "windows" {
		return Tools{Ipconfig: "ipconfig", Netsh: "netsh", PowerShell: "powershell"}
	}

	var t Tools
	if exists(wslIpconfig) {
		t.Ipconfig = wslIpconfig
	}
	if exists(wslNetsh) {
		t.Netsh = wslNetsh
	}
	if exists(wslPowerShell) {
		t.PowerShell = wslPowerShell
	}
	return t
}

// HasIpconfig reports whether ipconfig can be run.
func (t Tools) HasIpconfig() bool { return t.Ipconfig != "" }

// HasNetsh reports whether netsh can be run.
func (t Tools) HasNetsh() bool { return t.Netsh != "" }

// HasPowerShell reports whether elevation through PowerShell is possible.
func (t Tools) HasPowerShell() bool { return t.PowerShell != "" }

// FileExists reports whether path names an existing file.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
