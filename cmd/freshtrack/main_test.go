// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Freshtrack Contributors

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// envVars are the configuration variables cleared for every test.
var envVars = []string{
	"SECRET_KEY", "HOST", "PUBLIC_HOST", "PORT", "FRONTEND_PORT", "DATABASE_URL",
	"TOKEN_TTL", "HASH_ITERATIONS", "LAN_PATTERN", "WIFI_ADAPTER", "FIREWALL_RULE",
	"AUTO_NETWORK", "AUTO_MIGRATE", "CORS_ORIGINS", "LOG_FORMAT", "LOG_LEVEL", "METRICS_ADDR",
}

// isolate clears config variables, points XDG at a temp dir and returns
// a private .env path.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	for _, name := range envVars {
		t.Setenv(name, "")
		require.NoError(t, os.Unsetenv(name))
	}
	return filepath.Join(dir, ".env")
}

// syncBuffer is a bytes.Buffer safe for concurrent log writes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// execute runs the root command with deps and returns stdout, stderr and
// the command error. The env file is pinned to envPath.
func execute(ctx context.Context, t *testing.T, deps *Deps, envPath string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd(deps)
	stdout := &syncBuffer{}
	stderr := &syncBuffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(append([]string{"--env-file", envPath, "--log-format", "text"}, args...))
	err := cmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

func TestRootCommand_HasExpectedSubcommands(t *testing.T) {
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	require.NoError(t, cmd.Execute())

	output := buf.String()
	for _, sub := range []string{"serve", "migrate", "network", "user", "config"} {
		assert.Contains(t, output, sub, "Help missing %q command", sub)
	}
}

func TestRootCommand_ConfigFlag(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantFlag string
	}{
		{
			name:     "separate value",
			args:     []string{"--config", "/path/to/config.yaml", "--help"},
			wantFlag: "/path/to/config.yaml",
		},
		{
			name:     "with equals",
			args:     []string{"--config=/etc/freshtrack.yaml", "--help"},
			wantFlag: "/etc/freshtrack.yaml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configFile = ""

			cmd := NewRootCmd()
			cmd.SetOut(new(bytes.Buffer))
			cmd.SetArgs(tt.args)

			require.NoError(t, cmd.Execute())
			assert.Equal(t, tt.wantFlag, configFile)
		})
	}
}

func TestRootCommand_ConfigKeyFlags(t *testing.T) {
	cmd := NewRootCmd()
	flags := cmd.PersistentFlags()

	for _, name := range []string{"host", "port", "database-url", "token-ttl", "cors-origins", "auto-network", "metrics-addr", "env-file"} {
		assert.NotNil(t, flags.Lookup(name), "missing --%s", name)
	}
	assert.Nil(t, flags.Lookup("secret-key"), "the signing secret must not be a flag")
}

func TestRootCommand_VersionFlag(t *testing.T) {
	cmd := NewRootCmd()
	cmd.Version = "test-version"
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "test-version")
}

func TestRootCommand_InvalidConfigFails(t *testing.T) {
	envPath := isolate(t)

	_, _, err := execute(context.Background(), t, nil, envPath, "config", "show", "--port", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port")
}
