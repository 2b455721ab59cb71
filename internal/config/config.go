// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Freshtrack Contributors

// Package config loads and validates freshtrack configuration.
//
// Sources are layered with koanf, later sources winning: flag defaults,
// the YAML config file, the .env file, the process environment, and
// finally flags set explicitly on the command line.
package config

import (
	"net"
	"strconv"
	"time"

	"github.com/samber/oops"

	"github.com/freshtrack/freshtrack/internal/logging"
	"github.com/freshtrack/freshtrack/internal/netlocate"
	"github.com/freshtrack/freshtrack/internal/store"
	"github.com/freshtrack/freshtrack/internal/winbridge"
)

// Defaults.
const (
	//nolint:gosec // G101: well-known placeholder, a warning is logged when it is in use.
	DefaultSecretKey      = "your-secret-key-change-in-production"
	DefaultPort           = 8000
	DefaultFrontendPort   = 3000
	DefaultDatabaseURL    = "sqlite://freshness.db"
	DefaultTokenTTL       = 7 * 24 * time.Hour
	DefaultHashIterations = 100_000
	DefaultCORSOrigin     = "*"
	DefaultLogFormat      = "json"
	DefaultLogLevel       = "info"
	DefaultMetricsAddr    = "127.0.0.1:9100"
	DefaultEnvFile        = ".env"
	DefaultConfigFileName = "config.yaml"

	// MinHashIterations is the lowest PBKDF2 work factor accepted from configuration.
	MinHashIterations = 100_000
)

// Config is the complete runtime configuration.
type Config struct {
	SecretKey      string        `koanf:"secret_key" json:"secret_key,omitempty" jsonschema:"description=HS256 signing secret for session tokens"`
	Host           string        `koanf:"host" json:"host,omitempty" jsonschema:"description=Address the API binds to; detected at startup when empty"`
	PublicHost     string        `koanf:"public_host" json:"public_host,omitempty" jsonschema:"description=Host other devices use to reach the app"`
	Port           int           `koanf:"port" json:"port,omitempty" jsonschema:"minimum=1,maximum=65535,default=8000"`
	FrontendPort   int           `koanf:"frontend_port" json:"frontend_port,omitempty" jsonschema:"minimum=1,maximum=65535,default=3000"`
	DatabaseURL    string        `koanf:"database_url" json:"database_url,omitempty" jsonschema:"description=postgres://... or sqlite://path or memory://"`
	TokenTTL       time.Duration `koanf:"token_ttl" json:"token_ttl,omitempty" jsonschema:"description=Session token lifetime such as 168h"`
	HashIterations int           `koanf:"hash_iterations" json:"hash_iterations,omitempty" jsonschema:"minimum=100000,default=100000"`
	LANPattern     string        `koanf:"lan_pattern" json:"lan_pattern,omitempty" jsonschema:"description=Regular expression a LAN address must match"`
	WiFiAdapter    string        `koanf:"wifi_adapter" json:"wifi_adapter,omitempty" jsonschema:"description=Glob matched against lower-cased ipconfig adapter headers"`
	FirewallRule   string        `koanf:"firewall_rule" json:"firewall_rule,omitempty" jsonschema:"description=Windows firewall rule name for the API port"`
	AutoNetwork    bool          `koanf:"auto_network" json:"auto_network,omitempty" jsonschema:"default=true"`
	AutoMigrate    bool          `koanf:"auto_migrate" json:"auto_migrate,omitempty" jsonschema:"default=true"`
	CORSOrigins    []string      `koanf:"cors_origins" json:"cors_origins,omitempty" jsonschema:"description=Allowed browser origins; * allows any"`
	LogFormat      string        `koanf:"log_format" json:"log_format,omitempty" jsonschema:"enum=json,enum=text"`
	LogLevel       string        `koanf:"log_level" json:"log_level,omitempty" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
	MetricsAddr    string        `koanf:"metrics_addr" json:"metrics_addr,omitempty" jsonschema:"description=Metrics and health listener; empty disables"`

	// EnvFile is the .env path the config was loaded from. Startup writes
	// detected hosts back to it.
	EnvFile string `koanf:"-" json:"-"`
}

// Default returns the configuration used when no source sets a key.
func Default() Config {
	return Config{
		SecretKey:      DefaultSecretKey,
		Port:           DefaultPort,
		FrontendPort:   DefaultFrontendPort,
		DatabaseURL:    DefaultDatabaseURL,
		TokenTTL:       DefaultTokenTTL,
		HashIterations: DefaultHashIterations,
		LANPattern:     netlocate.DefaultLANPattern,
		WiFiAdapter:    netlocate.DefaultWiFiAdapter,
		FirewallRule:   winbridge.DefaultFirewallRule,
		AutoNetwork:    true,
		AutoMigrate:    true,
		CORSOrigins:    []string{DefaultCORSOrigin},
		LogFormat:      DefaultLogFormat,
		LogLevel:       DefaultLogLevel,
		MetricsAddr:    DefaultMetricsAddr,
		EnvFile:        DefaultEnvFile,
	}
}

// UsesDefaultSecret reports whether the placeholder signing secret is in use.
func (c *Config) UsesDefaultSecret() bool {
	return c.SecretKey == DefaultSecretKey
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.SecretKey == "" {
		return invalid("secret_key", "must not be empty")
	}
	if err := validatePort("port", c.Port); err != nil {
		return err
	}
	if err := validatePort("frontend_port", c.FrontendPort); err != nil {
		return err
	}
	if c.TokenTTL <= 0 {
		return invalid("token_ttl", "must be positive")
	}
	if c.HashIterations < MinHashIterations {
		return invalid("hash_iterations", "must be at least "+strconv.Itoa(MinHashIterations))
	}
	if _, err := store.ParseDialect(c.DatabaseURL); err != nil {
		return oops.Code("CONFIG_INVALID").With("field", "database_url").Wrap(err)
	}
	if _, err := netlocate.NewLANMatcher(c.LANPattern); err != nil {
		return oops.Code("CONFIG_INVALID").With("field", "lan_pattern").Wrap(err)
	}
	if _, err := netlocate.NewAdapterMatcher(c.WiFiAdapter); err != nil {
		return oops.Code("CONFIG_INVALID").With("field", "wifi_adapter").Wrap(err)
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return invalid("log_format", "must be json or text")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return oops.Code("CONFIG_INVALID").With("field", "log_level").Wrap(err)
	}
	if c.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(c.MetricsAddr); err != nil {
			return oops.Code("CONFIG_INVALID").With("field", "metrics_addr").Wrap(err)
		}
	}
	return nil
}

// APIAddr is the address the HTTP API listens on.
func (c *Config) APIAddr() string {
	host := c.Host
	if host == "" {
		host = "0.0.0.0"
	}
	return net.JoinHostPort(host, strconv.Itoa(c.Port))
}

func validatePort(field string, port int) error {
	if port < 1 || port > 65535 {
		return invalid(field, "must be between 1 and 65535")
	}
	return nil
}

func invalid(field, msg string) error {
	return oops.Code("CONFIG_INVALID").With("field", field).Errorf("%s %s", field, msg)
}
