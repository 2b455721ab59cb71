// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Freshtrack Contributors

package store

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	// Register the "sqlite" database/sql driver.
	_ "modernc.org/sqlite"

	"github.com/freshtrack/freshtrack/internal/auth"
	"github.com/freshtrack/freshtrack/internal/auth/memory"
	"github.com/freshtrack/freshtrack/internal/auth/postgres"
	authsqlite "github.com/freshtrack/freshtrack/internal/auth/sqlite"
)

// sqliteBusyPragma makes writers wait for the file lock instead of
// failing with SQLITE_BUSY.
const sqliteBusyPragma = "_pragma=busy_timeout(5000)"

// Handle owns the connection behind a user repository.
type Handle struct {
	Dialect Dialect
	Users   auth.UserRepository

	ping  func(ctx context.Context) error
	close func() error
}

// Open connects to the store named by databaseURL and returns its user
// repository. Schema migration is separate; see NewMigrator.
func Open(ctx context.Context, databaseURL string) (*Handle, error) {
	dialect, err := ParseDialect(databaseURL)
	if err != nil {
		return nil, err
	}

	switch dialect {
	case DialectPostgres:
		return openPostgres(ctx, databaseURL)
	case DialectSQLite:
		return openSQLite(ctx, databaseURL)
	default:
		return &Handle{
			Dialect: DialectMemory,
			Users:   memory.NewUserRepository(),
			ping:    func(context.Context) error { return nil },
			close:   func() error { return nil },
		}, nil
	}
}

func openPostgres(ctx context.Context, databaseURL string) (*Handle, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, oops.Code("STORE_OPEN_FAILED").
			With("dialect", string(DialectPostgres)).
			With("database_url", redact(databaseURL)).
			Wrap(err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, oops.Code("STORE_OPEN_FAILED").
			With("dialect", string(DialectPostgres)).
			With("operation", "ping").
			Wrap(err)
	}
	return &Handle{
		Dialect: DialectPostgres,
		Users:   postgres.NewUserRepository(pool),
		ping:    pool.Ping,
		close: func() error {
			pool.Close()
			return nil
		},
	}, nil
}

func openSQLite(ctx context.Context, databaseURL string) (*Handle, error) {
	dsn := sqlitePath(databaseURL)
	if !strings.Contains(dsn, "busy_timeout") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + sqliteBusyPragma
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, oops.Code("STORE_OPEN_FAILED").With("dialect", string(DialectSQLite)).Wrap(err)
	}
	// SQLite serializes writers; one connection avoids lock contention.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close() //nolint:errcheck // ping error takes precedence
		return nil, oops.Code("STORE_OPEN_FAILED").
			With("dialect", string(DialectSQLite)).
			With("operation", "ping").
			Wrap(err)
	}
	return &Handle{
		Dialect: DialectSQLite,
		Users:   authsqlite.NewUserRepository(db),
		ping:    db.PingContext,
		close:   db.Close,
	}, nil
}

// Ping checks that the backing store is reachable.
func (h *Handle) Ping(ctx context.Context) error {
	if err := h.ping(ctx); err != nil {
		return oops.Code("STORE_UNAVAILABLE").With("dialect", string(h.Dialect)).Wrap(err)
	}
	return nil
}

// Close releases the connection.
func (h *Handle) Close() error {
	if err := h.close(); err != nil {
		return oops.Code("STORE_CLOSE_FAILED").With("dialect", string(h.Dialect)).Wrap(err)
	}
	return nil
}
