// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Freshtrack Contributors

package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/lo"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/freshtrack/freshtrack/internal/xdg"
)

// keys lists every configuration key. Environment variables use the
// upper-cased key and flags use the key with '-' for '_'.
var keys = []string{
	"secret_key",
	"host",
	"public_host",
	"port",
	"frontend_port",
	"database_url",
	"token_ttl",
	"hash_iterations",
	"lan_pattern",
	"wifi_adapter",
	"firewall_rule",
	"auto_network",
	"auto_migrate",
	"cors_origins",
	"log_format",
	"log_level",
	"metrics_addr",
}

var knownKeys = func() map[string]struct{} {
	m := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		m[k] = struct{}{}
	}
	return m
}()

// LoadOptions selects the sources Load reads.
type LoadOptions struct {
	// ConfigFile is an explicit YAML path. It must exist when set. When
	// empty, config.yaml in the XDG config directory is read if present.
	ConfigFile string

	// EnvFile is the .env path. A missing file is skipped. Empty means DefaultEnvFile.
	EnvFile string

	// Flags holds flags registered with RegisterFlags. May be nil.
	Flags *pflag.FlagSet
}

// DefaultConfigFile is the YAML file read when no --config is given.
func DefaultConfigFile() string {
	return filepath.Join(xdg.ConfigDir(), DefaultConfigFileName)
}

// RegisterFlags adds a flag for each configuration key except the
// signing secret, which is never taken from the command line.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("host", d.Host, "API bind address (detected when empty)")
	fs.String("public-host", d.PublicHost, "host other devices use to reach the app")
	fs.Int("port", d.Port, "API port")
	fs.Int("frontend-port", d.FrontendPort, "frontend port advertised in public URLs")
	fs.String("database-url", d.DatabaseURL, "postgres://, sqlite:// or memory:// URL")
	fs.Duration("token-ttl", d.TokenTTL, "session token lifetime")
	fs.Int("hash-iterations", d.HashIterations, "PBKDF2 iterations for new password digests")
	fs.String("lan-pattern", d.LANPattern, "regular expression for LAN addresses")
	fs.String("wifi-adapter", d.WiFiAdapter, "glob for the Wi-Fi adapter header in ipconfig output")
	fs.String("firewall-rule", d.FirewallRule, "Windows firewall rule name")
	fs.Bool("auto-network", d.AutoNetwork, "detect addresses and configure the Windows bridge at startup")
	fs.Bool("auto-migrate", d.AutoMigrate, "apply pending database migrations at startup")
	fs.StringSlice("cors-origins", d.CORSOrigins, "allowed CORS origins")
	fs.String("log-format", d.LogFormat, "log format (json or text)")
	fs.String("log-level", d.LogLevel, "log level (debug, info, warn, error)")
	fs.String("metrics-addr", d.MetricsAddr, "metrics and health listener (empty disables)")
}

// Load reads configuration from all sources. The result is not validated.
func Load(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")

	configFile, required := opts.ConfigFile, true
	if configFile == "" {
		configFile, required = DefaultConfigFile(), false
	}
	if err := loadOptionalFile(k, configFile, required, yaml.Parser()); err != nil {
		return nil, err
	}

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = DefaultEnvFile
	}
	if err := loadOptionalFile(k, envFile, false, dotenv.ParserEnv("", ".", envKey)); err != nil {
		return nil, err
	}

	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "environment").Wrap(err)
	}

	if opts.Flags != nil {
		provider := posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if _, ok := knownKeys[key]; !ok {
				return "", nil
			}
			return key, posflag.FlagVal(opts.Flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	cfg := Default()
	cfg.CORSOrigins = nil
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "unmarshal").Wrap(err)
	}
	cfg.CORSOrigins = splitList(cfg.CORSOrigins)
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{DefaultCORSOrigin}
	}
	cfg.EnvFile = envFile
	return &cfg, nil
}

func loadOptionalFile(k *koanf.Koanf, path string, required bool, parser koanf.Parser) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !required {
			return nil
		}
		return oops.Code("CONFIG_READ_FAILED").With("path", path).Wrap(err)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
	}
	return nil
}

// splitList flattens comma-separated entries, as set through the
// environment, and drops blanks.
func splitList(items []string) []string {
	parts := lo.FlatMap(items, func(item string, _ int) []string {
		return lo.Map(strings.Split(item, ","), func(p string, _ int) string {
			return strings.TrimSpace(p)
		})
	})
	return lo.Compact(parts)
}

// envKey maps an environment variable name to a config key, or "" to skip it.
func envKey(name string) string {
	key := strings.ToLower(name)
	if _, ok := knownKeys[key]; !ok {
		return ""
	}
	return key
}
