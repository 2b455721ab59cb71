// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Freshtrack Contributors

package store

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	// Register pgx/v5 database driver for golang-migrate.
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	// Register the modernc-backed sqlite driver for golang-migrate.
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/samber/oops"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// Migration versions per dialect, computed once since the embedded FS is immutable.
var migrationVersions = map[Dialect]func() ([]uint, error){
	DialectPostgres: sync.OnceValues(func() ([]uint, error) { return loadMigrationVersions(DialectPostgres) }),
	DialectSQLite:   sync.OnceValues(func() ([]uint, error) { return loadMigrationVersions(DialectSQLite) }),
}

// migrateIface abstracts golang-migrate so the Migrator can be tested
// without a database.
type migrateIface interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	Close() (source error, database error)
}

// Migrator wraps golang-migrate for schema management of one dialect.
type Migrator struct {
	m       migrateIface
	dialect Dialect
}

// NewMigrator creates a Migrator for databaseURL. Postgres URLs are
// rewritten to the pgx5:// scheme; sqlite URLs pass through. The memory
// dialect has no schema and is rejected with MIGRATION_UNSUPPORTED.
func NewMigrator(databaseURL string) (*Migrator, error) {
	dialect, err := ParseDialect(databaseURL)
	if err != nil {
		return nil, err
	}
	if dialect == DialectMemory {
		return nil, oops.Code("MIGRATION_UNSUPPORTED").
			With("dialect", string(dialect)).
			Errorf("the memory store has no schema to migrate")
	}

	source, err := iofs.New(migrationsFS, dialect.migrationsDir())
	if err != nil {
		return nil, oops.Code("MIGRATION_SOURCE_FAILED").With("operation", "create migration source").Wrap(err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, dialect.migrateURL(databaseURL))
	if err != nil {
		_ = source.Close() //nolint:errcheck // init error takes precedence
		return nil, oops.Code("MIGRATION_INIT_FAILED").
			With("operation", "initialize migrator").
			With("dialect", string(dialect)).
			Wrap(err)
	}

	return &Migrator{m: m, dialect: dialect}, nil
}

// Dialect reports which backend the migrator manages.
func (m *Migrator) Dialect() Dialect {
	return m.dialect
}

// Up applies all pending migrations.
func (m *Migrator) Up() error {
	if err := m.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return oops.Code("MIGRATION_UP_FAILED").With("dialect", string(m.dialect)).Wrap(err)
	}
	return nil
}

// Down rolls back every migration. This drops the users table.
func (m *Migrator) Down() error {
	if err := m.m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return oops.Code("MIGRATION_DOWN_FAILED").With("dialect", string(m.dialect)).Wrap(err)
	}
	return nil
}

// Steps applies n migrations. Positive n migrates up, negative n migrates down.
func (m *Migrator) Steps(n int) error {
	if err := m.m.Steps(n); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return oops.Code("MIGRATION_STEPS_FAILED").With("steps", n).Wrap(err)
	}
	return nil
}

// Version returns the current migration version and dirty state.
// Returns version 0 with dirty=false if no migrations have been applied.
func (m *Migrator) Version() (version uint, dirty bool, err error) {
	version, dirty, err = m.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, oops.Code("MIGRATION_VERSION_FAILED").Wrap(err)
	}
	return version, dirty, nil
}

// Force sets the migration version without running migrations. It is
// meant for recovering from a dirty state after a manual fix.
func (m *Migrator) Force(version int) error {
	if version < 0 {
		return oops.Code("INVALID_VERSION").Errorf("version must be non-negative, got %d", version)
	}
	if err := m.m.Force(version); err != nil {
		return oops.Code("MIGRATION_FORCE_FAILED").With("version", version).Wrap(err)
	}
	return nil
}

// Close releases resources.
func (m *Migrator) Close() error {
	srcErr, dbErr := m.m.Close()
	switch {
	case srcErr != nil && dbErr != nil:
		return oops.Code("MIGRATION_CLOSE_FAILED").
			With("component", "both").
			Errorf("source: %v; database: %v", srcErr, dbErr)
	case srcErr != nil:
		return oops.Code("MIGRATION_CLOSE_FAILED").With("component", "source").Wrap(srcErr)
	case dbErr != nil:
		return oops.Code("MIGRATION_CLOSE_FAILED").With("component", "database").Wrap(dbErr)
	}
	return nil
}

// allMigrationVersions returns the sorted versions embedded for d.
// The returned slice is a copy.
func allMigrationVersions(d Dialect) ([]uint, error) {
	load, ok := migrationVersions[d]
	if !ok {
		return nil, oops.Code("MIGRATION_UNSUPPORTED").With("dialect", string(d)).Errorf("no migrations for dialect")
	}
	versions, err := load()
	if err != nil {
		return nil, err
	}
	return slices.Clone(versions), nil
}

// loadMigrationVersions parses version numbers from the embedded file
// names. Files not named NNNNNN_name.up.sql are logged and skipped;
// TestMigrationsFS_EmbeddedFiles keeps the tree clean.
func loadMigrationVersions(d Dialect) ([]uint, error) {
	entries, err := migrationsFS.ReadDir(d.migrationsDir())
	if err != nil {
		return nil, oops.Code("MIGRATION_LIST_FAILED").With("operation", "read migrations dir").Wrap(err)
	}

	var versions []uint
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		var version uint
		if _, err := fmt.Sscanf(name, "%06d", &version); err != nil {
			slog.Warn("migration file name doesn't match expected format, skipping",
				"filename", name,
				"dialect", string(d),
				"expected_format", "NNNNNN_name.up.sql",
				"error", err)
			continue
		}
		versions = append(versions, version)
	}

	slices.Sort(versions)
	return slices.Compact(versions), nil
}

// MigrationName returns the NNNNNN_name of a migration, or "" when the
// version is unknown.
func MigrationName(d Dialect, version uint) (string, error) {
	entries, err := migrationsFS.ReadDir(d.migrationsDir())
	if err != nil {
		return "", oops.Code("MIGRATION_READ_FAILED").With("operation", "read migrations dir").Wrap(err)
	}

	prefix := fmt.Sprintf("%06d_", version)
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ".up.sql") {
			return strings.TrimSuffix(name, ".up.sql"), nil
		}
	}
	return "", nil
}

// PendingMigrations returns the versions Up would apply, ascending.
func (m *Migrator) PendingMigrations() ([]uint, error) {
	currentVersion, _, err := m.Version()
	if err != nil {
		return nil, oops.With("operation", "get pending migrations").Wrap(err)
	}

	allVersions, err := allMigrationVersions(m.dialect)
	if err != nil {
		return nil, oops.With("operation", "get pending migrations").Wrap(err)
	}

	var pending []uint
	for _, v := range allVersions {
		if v > currentVersion {
			pending = append(pending, v)
		}
	}
	return pending, nil
}

// AppliedMigrations returns the versions already applied, ascending.
func (m *Migrator) AppliedMigrations() ([]uint, error) {
	currentVersion, _, err := m.Version()
	if err != nil {
		return nil, oops.With("operation", "get applied migrations").Wrap(err)
	}
	if currentVersion == 0 {
		return nil, nil
	}

	allVersions, err := allMigrationVersions(m.dialect)
	if err != nil {
		return nil, oops.With("operation", "get applied migrations").Wrap(err)
	}

	var applied []uint
	for _, v := range allVersions {
		if v <= currentVersion {
			applied = append(applied, v)
		}
	}
	return applied, nil
}
