// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Freshtrack Contributors

package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freshtrack/freshtrack/pkg/errutil"
)

func TestParseDialect(t *testing.T) {
	tests := []struct {
		url     string
		want    Dialect
		wantErr bool
	}{
		{"postgres://u:p@localhost/db", DialectPostgres, false},
		{"postgresql://localhost/db", DialectPostgres, false},
		{"pgx5://localhost/db", DialectPostgres, false},
		{"sqlite://freshness.db", DialectSQLite, false},
		{"sqlite3:///var/lib/fresh.db", DialectSQLite, false},
		{"memory://", DialectMemory, false},
		{"memory", DialectMemory, false},
		{"sqlite://", "", true},
		{"mysql://localhost/db", "", true},
		{"freshness.db", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got, err := ParseDialect(tt.url)
			if tt.wantErr {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, "STORE_UNSUPPORTED_URL")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDialect_MigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@h/db", DialectPostgres.migrateURL("postgres://u:p@h/db"))
	assert.Equal(t, "pgx5://h/db", DialectPostgres.migrateURL("postgresql://h/db"))
	assert.Equal(t, "pgx5://h/db", DialectPostgres.migrateURL("pgx5://h/db"))
	assert.Equal(t, "sqlite://fresh.db", DialectSQLite.migrateURL("sqlite3://fresh.db"))
	assert.Equal(t, "sqlite:///tmp/a.db", DialectSQLite.migrateURL("sqlite:///tmp/a.db"))
}

func TestDialect_HasSchema(t *testing.T) {
	assert.True(t, DialectPostgres.HasSchema())
	assert.True(t, DialectSQLite.HasSchema())
	assert.False(t, DialectMemory.HasSchema())
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "postgres://app:xxxxx@db:5432/fresh", redact("postgres://app:hunter2@db:5432/fresh"))
	assert.Equal(t, "postgres://db/fresh", redact("postgres://db/fresh"))
}
