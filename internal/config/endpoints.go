// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Freshtrack Contributors

package config

import (
	"net"
	"strconv"

	"github.com/samber/lo"
)

// PublicEndpoints are the URLs a browser or phone on the LAN should use.
type PublicEndpoints struct {
	PublicHost string `json:"public_host"`
	PublicPort int    `json:"public_port"`
	PublicURL  string `json:"public_url"`
	APIHost    string `json:"api_host"`
	APIPort    int    `json:"api_port"`
	APIURL     string `json:"api_url"`
}

// PublicEndpoints derives the advertised URLs. The public host falls back
// from PublicHost to Host to localhost; the API URL never points at the
// wildcard address.
func (c *Config) PublicEndpoints() PublicEndpoints {
	publicHost := lo.CoalesceOrEmpty(c.PublicHost, c.Host, "localhost")
	apiHost := lo.CoalesceOrEmpty(c.Host, "0.0.0.0")
	apiURLHost := lo.Ternary(publicHost == "0.0.0.0", "localhost", publicHost)

	return PublicEndpoints{
		PublicHost: publicHost,
		PublicPort: c.FrontendPort,
		PublicURL:  httpURL(publicHost, c.FrontendPort),
		APIHost:    apiHost,
		APIPort:    c.Port,
		APIURL:     httpURL(apiURLHost, c.Port),
	}
}

func httpURL(host string, port int) string {
	return "http://" + net.JoinHostPort(host, strconv.Itoa(port))
}
