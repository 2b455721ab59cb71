// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Freshtrack Contributors

package main

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/freshtrack/freshtrack/internal/config"
	"github.com/freshtrack/freshtrack/internal/xdg"
)

const redacted = "<redacted>"

// NewConfigCmd creates the config command group.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate configuration",
	}
	cmd.AddCommand(newConfigSchemaCmd())
	cmd.AddCommand(newConfigValidateCmd())
	cmd.AddCommand(newConfigShowCmd())
	return cmd
}

func newConfigSchemaCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema for the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			schema, err := config.GenerateSchema()
			if err != nil {
				return err
			}
			if output == "" {
				cmd.Println(string(schema))
				return nil
			}
			if err := xdg.EnsureDir(filepath.Dir(output)); err != nil {
				return err
			}
			if err := os.WriteFile(output, schema, 0o600); err != nil {
				return oops.Code("SCHEMA_WRITE_FAILED").With("path", output).Wrap(err)
			}
			cmd.Printf("Wrote %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the schema to a file instead of stdout")
	return cmd
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a config file against the schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return oops.Code("CONFIG_READ_FAILED").With("path", args[0]).Wrap(err)
			}
			if err := config.ValidateFile(data); err != nil {
				return oops.With("path", args[0]).Wrap(err)
			}
			cmd.Printf("%s is valid\n", args[0])
			return nil
		},
	}
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with the secret redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			view := *cfg
			if view.SecretKey != "" {
				view.SecretKey = redacted
			}
			data, err := showConfig(&view)
			if err != nil {
				return oops.Code("OUTPUT_FAILED").Wrap(err)
			}
			cmd.Println(string(data))
			return nil
		},
	}
}

// showConfig renders cfg as JSON with durations in their string form.
func showConfig(cfg *config.Config) ([]byte, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	fields["token_ttl"] = cfg.TokenTTL.String()
	return json.MarshalIndent(fields, "", "  ")
}
