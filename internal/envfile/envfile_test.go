// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Freshtrack Contributors

package envfile_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freshtrack/freshtrack/internal/envfile"
	"github.com/freshtrack/freshtrack/pkg/errutil"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestUpdate(t *testing.T) {
	tests := []struct {
		name        string
		initial     string
		key, value  string
		wantWritten bool
		want        string
	}{
		{
			name:        "rewrites changed value and keeps comments",
			initial:     "# backend settings\nSECRET_KEY=abc\n\nHOST=10.0.0.1\nnot a pair\n",
			key:         "HOST",
			value:       "192.168.1.23",
			wantWritten: true,
			want:        "# backend settings\nSECRET_KEY=abc\n\nHOST=192.168.1.23\nnot a pair\n",
		},
		{
			name:        "unchanged value is not written",
			initial:     "HOST=192.168.1.23\n",
			key:         "HOST",
			value:       "192.168.1.23",
			wantWritten: false,
			want:        "HOST=192.168.1.23\n",
		},
		{
			name:        "missing key is appended",
			initial:     "SECRET_KEY=abc",
			key:         "PUBLIC_HOST",
			value:       "192.168.0.8",
			wantWritten: true,
			want:        "SECRET_KEY=abc\nPUBLIC_HOST=192.168.0.8\n",
		},
		{
			name:        "commented key is not treated as set",
			initial:     "# HOST=1.2.3.4\n",
			key:         "HOST",
			value:       "0.0.0.0",
			wantWritten: true,
			want:        "# HOST=1.2.3.4\nHOST=0.0.0.0\n",
		},
		{
			name:        "key with surrounding spaces matches",
			initial:     " HOST =old\n",
			key:         "HOST",
			value:       "new",
			wantWritten: true,
			want:        "HOST=new\n",
		},
		{
			name:        "crlf input",
			initial:     "A=1\r\nHOST=old\r\n",
			key:         "HOST",
			value:       "new",
			wantWritten: true,
			want:        "A=1\nHOST=new\n",
		},
		{
			name:        "similar key prefix is not a match",
			initial:     "HOSTNAME=box\n",
			key:         "HOST",
			value:       "h",
			wantWritten: true,
			want:        "HOSTNAME=box\nHOST=h\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.initial)
			written, err := envfile.Update(path, tt.key, tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.wantWritten, written)
			assert.Equal(t, tt.want, readFile(t, path))
		})
	}
}

func TestUpdate_CreatesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")

	written, err := envfile.Update(path, "HOST", "0.0.0.0")
	require.NoError(t, err)
	assert.True(t, written)
	assert.Equal(t, "HOST=0.0.0.0\n", readFile(t, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestUpdate_PreservesMode(t *testing.T) {
	path := writeFile(t, "HOST=a\n")
	require.NoError(t, os.Chmod(path, 0o640))

	_, err := envfile.Update(path, "HOST", "b")
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())
}

func TestUpdate_Idempotent(t *testing.T) {
	path := writeFile(t, "# c\n")

	written, err := envfile.Update(path, "PORT", "8000")
	require.NoError(t, err)
	assert.True(t, written)

	written, err = envfile.Update(path, "PORT", "8000")
	require.NoError(t, err)
	assert.False(t, written)
}

func TestUpdate_RejectsBadInput(t *testing.T) {
	path := writeFile(t, "")

	_, err := envfile.Update(path, "", "x")
	errutil.AssertErrorCode(t, err, "ENVFILE_INVALID_KEY")

	_, err = envfile.Update(path, "A=B", "x")
	errutil.AssertErrorCode(t, err, "ENVFILE_INVALID_KEY")

	_, err = envfile.Update(path, "A", "x\ny")
	errutil.AssertErrorCode(t, err, "ENVFILE_INVALID_VALUE")
}

func TestUpdate_UnwritableDirectory(t *testing.T) {
	_, err := envfile.Update(filepath.Join(t.TempDir(), "missing", ".env"), "HOST", "x")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "ENVFILE_WRITE_FAILED")
}
