// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Freshtrack Contributors

package main

import (
	"strconv"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/freshtrack/freshtrack/internal/store"
)

// NewMigrateCmd creates the migrate command group.
func NewMigrateCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		Long:  `Apply, roll back or inspect schema migrations for the configured database_url.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, deps, func(m Migrator) error {
				pending, err := m.PendingMigrations()
				if err != nil {
					return err
				}
				if len(pending) == 0 {
					cmd.Println("No pending migrations")
					return nil
				}
				if err := m.Up(); err != nil {
					return oops.Code("MIGRATION_FAILED").With("operation", "up").Wrap(err)
				}
				cmd.Printf("Applied %d migration(s)\n", len(pending))
				return nil
			})
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations (one step by default, --all for every step)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			all, _ := cmd.Flags().GetBool("all") //nolint:errcheck // flag is registered below
			return withMigrator(cmd, deps, func(m Migrator) error {
				if all {
					if err := m.Down(); err != nil {
						return oops.Code("MIGRATION_FAILED").With("operation", "down").Wrap(err)
					}
					cmd.Println("Rolled back all migrations")
					return nil
				}
				if steps < 1 {
					return oops.Code("MIGRATION_INVALID_STEPS").With("steps", steps).Errorf("--steps must be at least 1")
				}
				if err := m.Steps(-steps); err != nil {
					return oops.Code("MIGRATION_FAILED").With("operation", "down").With("steps", steps).Wrap(err)
				}
				cmd.Printf("Rolled back %d migration(s)\n", steps)
				return nil
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	down.Flags().Bool("all", false, "roll back every migration")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, deps, func(m Migrator) error {
				return printMigrationStatus(cmd, m)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force <version>",
		Short: "Set the recorded version without running migrations (clears the dirty flag)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return oops.Code("MIGRATION_INVALID_VERSION").With("version", args[0]).Wrap(err)
			}
			return withMigrator(cmd, deps, func(m Migrator) error {
				if err := m.Force(version); err != nil {
					return err
				}
				cmd.Printf("Forced version %d\n", version)
				return nil
			})
		},
	})

	return cmd
}

func withMigrator(cmd *cobra.Command, deps *Deps, fn func(Migrator) error) error {
	deps = deps.withDefaults()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	m, err := deps.NewMigrator(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			cmd.PrintErrf("warning: closing migrator: %v\n", closeErr)
		}
	}()
	return fn(m)
}

func printMigrationStatus(cmd *cobra.Command, m Migrator) error {
	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	applied, err := m.AppliedMigrations()
	if err != nil {
		return err
	}
	pending, err := m.PendingMigrations()
	if err != nil {
		return err
	}

	cmd.Printf("Dialect: %s\n", m.Dialect())
	if version == 0 && !dirty {
		cmd.Println("Version: none")
	} else {
		cmd.Printf("Version: %d\n", version)
	}
	if dirty {
		cmd.Println("State:   DIRTY (fix the schema, then run 'freshtrack migrate force <version>')")
	}

	cmd.Println("Applied:")
	printMigrations(cmd, m.Dialect(), applied)
	cmd.Println("Pending:")
	printMigrations(cmd, m.Dialect(), pending)
	return nil
}

func printMigrations(cmd *cobra.Command, d store.Dialect, versions []uint) {
	if len(versions) == 0 {
		cmd.Println("  (none)")
		return
	}
	for _, v := range versions {
		name, err := store.MigrationName(d, v)
		if err != nil {
			name = "?"
		}
		cmd.Printf("  %06d %s\n", v, name)
	}
}
