// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Freshtrack Contributors

// Package store opens the user store named by a database URL and manages
// its schema migrations.
package store

import (
	"net/url"
	"strings"

	"github.com/samber/oops"
)

// Dialect identifies a storage backend.
type Dialect string

// Supported dialects.
const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
	DialectMemory   Dialect = "memory"
)

// ParseDialect derives the dialect from the scheme of databaseURL.
//
//	postgres://, postgresql://, pgx5://  -> postgres
//	sqlite://, sqlite3://                -> sqlite
//	memory://, memory                    -> memory
func ParseDialect(databaseURL string) (Dialect, error) {
	switch {
	case hasScheme(databaseURL, "postgres", "postgresql", "pgx5"):
		return DialectPostgres, nil
	case hasScheme(databaseURL, "sqlite", "sqlite3"):
		if sqlitePath(databaseURL) == "" {
			return "", oops.Code("STORE_UNSUPPORTED_URL").
				With("database_url", redact(databaseURL)).
				Errorf("sqlite url has no file path")
		}
		return DialectSQLite, nil
	case databaseURL == "memory" || hasScheme(databaseURL, "memory"):
		return DialectMemory, nil
	default:
		return "", oops.Code("STORE_UNSUPPORTED_URL").
			With("database_url", redact(databaseURL)).
			Errorf("unsupported database url scheme")
	}
}

func hasScheme(u string, schemes ...string) bool {
	for _, s := range schemes {
		if strings.HasPrefix(u, s+"://") {
			return true
		}
	}
	return false
}

// sqlitePath strips the scheme, leaving a path (with optional query) that
// the modernc driver accepts as a DSN.
func sqlitePath(u string) string {
	for _, prefix := range []string{"sqlite://", "sqlite3://"} {
		if rest, ok := strings.CutPrefix(u, prefix); ok {
			return rest
		}
	}
	return ""
}

// migrateURL rewrites databaseURL into the scheme the golang-migrate
// driver for d registers.
func (d Dialect) migrateURL(databaseURL string) string {
	switch d {
	case DialectPostgres:
		for _, prefix := range []string{"postgres://", "postgresql://"} {
			if rest, ok := strings.CutPrefix(databaseURL, prefix); ok {
				return "pgx5://" + rest
			}
		}
	case DialectSQLite:
		return "sqlite://" + sqlitePath(databaseURL)
	}
	return databaseURL
}

// HasSchema reports whether d is backed by migrated tables.
func (d Dialect) HasSchema() bool {
	return d == DialectPostgres || d == DialectSQLite
}

func (d Dialect) migrationsDir() string {
	return "migrations/" + string(d)
}

// redact hides the password component of a URL for logs and errors.
func redact(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return "<unparseable>"
	}
	return parsed.Redacted()
}
