// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Freshtrack Contributors

package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freshtrack/freshtrack/internal/config"
	"github.com/freshtrack/freshtrack/pkg/errutil"
)

func TestConfigSchema_Stdout(t *testing.T) {
	envPath := isolate(t)

	out, _, err := execute(context.Background(), t, nil, envPath, "config", "schema")
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &schema))
	assert.Equal(t, config.SchemaID, schema["$id"])
}

func TestConfigSchema_Output(t *testing.T) {
	envPath := isolate(t)
	path := filepath.Join(t.TempDir(), "nested", "config.schema.json")

	out, _, err := execute(context.Background(), t, nil, envPath, "config", "schema", "--output", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	data, err := os.ReadFile(path) //nolint:gosec // test-owned temp file
	require.NoError(t, err)
	assert.Contains(t, string(data), "database_url")
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantCode string
	}{
		{"valid", "port: 9000\ndatabase_url: sqlite://fresh.db\ntoken_ttl: 24h\n", ""},
		{"unknown key", "prot: 9000\n", "CONFIG_SCHEMA_VIOLATION"},
		{"wrong type", "port: high\n", "CONFIG_SCHEMA_VIOLATION"},
		{"bad yaml", "port: [1\n", "CONFIG_INVALID_YAML"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			envPath := isolate(t)
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			out, _, err := execute(context.Background(), t, nil, envPath, "config", "validate", path)
			if tt.wantCode != "" {
				errutil.AssertErrorCode(t, err, tt.wantCode)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, out, "is valid")
		})
	}
}

func TestConfigValidate_MissingFile(t *testing.T) {
	envPath := isolate(t)

	_, _, err := execute(context.Background(), t, nil, envPath, "config", "validate", filepath.Join(t.TempDir(), "nope.yaml"))
	errutil.AssertErrorCode(t, err, "CONFIG_READ_FAILED")
}

func TestConfigShow_RedactsSecret(t *testing.T) {
	envPath := isolate(t)
	require.NoError(t, os.WriteFile(envPath, []byte("SECRET_KEY=super-secret-value\nPORT=9100\n"), 0o600))

	out, _, err := execute(context.Background(), t, nil, envPath, "config", "show")
	require.NoError(t, err)
	assert.NotContains(t, out, "super-secret-value")

	var shown map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	assert.Equal(t, redacted, shown["secret_key"])
	assert.InDelta(t, 9100, shown["port"], 0)
	assert.Equal(t, "168h0m0s", shown["token_ttl"])
}
