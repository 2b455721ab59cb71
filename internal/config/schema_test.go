// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Freshtrack Contributors

package config_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freshtrack/freshtrack/internal/config"
	"github.com/freshtrack/freshtrack/pkg/errutil"
)

func TestGenerateSchema(t *testing.T) {
	data, err := config.GenerateSchema()
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(data, &schema))
	assert.Equal(t, config.SchemaID, schema["$id"])
	assert.Equal(t, false, schema["additionalProperties"])

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	for _, key := range []string{"secret_key", "port", "token_ttl", "cors_origins", "wifi_adapter"} {
		assert.Contains(t, props, key)
	}
	assert.NotContains(t, props, "EnvFile")

	ttl, ok := props["token_ttl"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "string", ttl["type"])
}

func TestValidateFile(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{name: "empty document", yaml: ""},
		{name: "valid", yaml: "port: 8000\ntoken_ttl: 24h\ncors_origins: [\"*\"]\nlog_format: text\n"},
		{name: "unknown key", yaml: "prot: 8000\n", wantErr: "CONFIG_SCHEMA_VIOLATION"},
		{name: "port out of range", yaml: "port: 70000\n", wantErr: "CONFIG_SCHEMA_VIOLATION"},
		{name: "wrong type", yaml: "port: eighty\n", wantErr: "CONFIG_SCHEMA_VIOLATION"},
		{name: "bad duration", yaml: "token_ttl: forever\n", wantErr: "CONFIG_SCHEMA_VIOLATION"},
		{name: "bad enum", yaml: "log_level: loud\n", wantErr: "CONFIG_SCHEMA_VIOLATION"},
		{name: "low iterations", yaml: "hash_iterations: 10\n", wantErr: "CONFIG_SCHEMA_VIOLATION"},
		{name: "not yaml", yaml: "port: [\n", wantErr: "CONFIG_INVALID_YAML"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := config.ValidateFile([]byte(tt.yaml))
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			errutil.AssertErrorCode(t, err, tt.wantErr)
		})
	}
}
