// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Freshtrack Contributors

package netlocate

import (
	"bufio"
	"regexp"
	"strings"
)

var ipv4LinePattern = regexp.MustCompile(`IPv4 Address[ .:]*(\d+\.\d+\.\d+\.\d+)`)

// ParseIPConfig extracts the preferred LAN address from Windows ipconfig
// output. A header accepted by adapter opens a section; the first blank
// line after the section body closes it, so the blank line ipconfig prints
// under every header does not. The first LAN address inside that section
// wins; otherwise the first LAN address anywhere in the output. Returns ""
// when neither exists.
func ParseIPConfig(output string, adapter AdapterMatcher, lan LANMatcher) string {
	var (
		inSection bool
		inBody    bool
		sectionIP string
		anyIP     string
	)

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		raw := scanner.Text()
		line := strings.TrimSpace(raw)

		if adapter.Match(line) {
			inSection, inBody = true, false
			continue
		}

		ip := ""
		if m := ipv4LinePattern.FindStringSubmatch(raw); m != nil && lan.Match(m[1]) {
			ip = m[1]
		}

		if inSection {
			if ip != "" && sectionIP == "" {
				sectionIP = ip
			}
			switch {
			case line != "":
				inBody = true
			case inBody:
				inSection = false
			}
		}
		if ip != "" && anyIP == "" {
			anyIP = ip
		}
	}

	if sectionIP != "" {
		return sectionIP
	}
	return anyIP
}
