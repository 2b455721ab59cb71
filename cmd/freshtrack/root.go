// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Freshtrack Contributors

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/freshtrack/freshtrack/internal/config"
	"github.com/freshtrack/freshtrack/internal/logging"
)

const serviceName = "freshtrack"

// Global flags available to all subcommands.
var (
	configFile string
	envFile    string
)

// NewRootCmd creates the root command with default dependencies.
func NewRootCmd() *cobra.Command {
	return newRootCmd(nil)
}

func newRootCmd(deps *Deps) *cobra.Command {
	deps = deps.withDefaults()

	cmd := &cobra.Command{
		Use:   "freshtrack",
		Short: "Freshness Tracker backend",
		Long: `Freshness Tracker backend: account registration, login and session
tokens over HTTP, with LAN address detection and Windows port forwarding
so phones on the same Wi-Fi can reach the API.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/freshtrack/config.yaml)")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", config.DefaultEnvFile, ".env file read at startup and updated with detected hosts")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd(deps))
	cmd.AddCommand(NewMigrateCmd(deps))
	cmd.AddCommand(NewNetworkCmd(deps))
	cmd.AddCommand(NewUserCmd(deps))
	cmd.AddCommand(NewConfigCmd())

	return cmd
}

// loadConfig reads and validates configuration for cmd.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{
		ConfigFile: configFile,
		EnvFile:    envFile,
		Flags:      cmd.Flags(),
	})
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the command logger on cmd's stderr.
func newLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	return logging.Setup(serviceName, version, cfg.LogFormat, level, cmd.ErrOrStderr())
}

// newDefaultLogger is newLogger installed as the process-wide slog default.
func newDefaultLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	return logging.SetDefault(serviceName, version, cfg.LogFormat, level, cmd.ErrOrStderr())
}
