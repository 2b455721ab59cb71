// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Freshtrack Contributors

// Package envfile edits KEY=value files in place, leaving comments and
// unrelated lines untouched.
package envfile

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/oops"
)

// newFileMode is used when the file does not exist yet. It may hold the
// signing secret.
const newFileMode fs.FileMode = 0o600

// Update sets key to value in the file at path. Comment lines and lines
// without '=' are kept as they are. A matching line is rewritten only when
// its value differs; a missing key is appended. The file is written when
// something changed or when it did not exist, and Update reports whether
// it wrote.
func Update(path, key, value string) (bool, error) {
	if key == "" || strings.ContainsAny(key, "=\n") {
		return false, oops.Code("ENVFILE_INVALID_KEY").With("key", key).Errorf("invalid key")
	}
	if strings.Contains(value, "\n") {
		return false, oops.Code("ENVFILE_INVALID_VALUE").With("key", key).Errorf("value must be a single line")
	}

	mode := newFileMode
	exists := true
	data, err := os.ReadFile(path) //nolint:gosec // G304: operator-chosen path
	switch {
	case errors.Is(err, fs.ErrNotExist):
		exists = false
	case err != nil:
		return false, oops.Code("ENVFILE_READ_FAILED").With("path", path).Wrap(err)
	default:
		if info, statErr := os.Stat(path); statErr == nil {
			mode = info.Mode().Perm()
		}
	}

	lines, changed := setKey(splitLines(string(data)), key, value)
	if !changed && exists {
		return false, nil
	}

	if err := writeAtomic(path, []byte(strings.Join(lines, "\n")+"\n"), mode); err != nil {
		return false, err
	}
	return true, nil
}

// setKey returns lines with key set to value and whether anything changed.
func setKey(lines []string, key, value string) ([]string, bool) {
	out := make([]string, 0, len(lines)+1)
	found, changed := false, false
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "#") || !strings.Contains(line, "=") {
			out = append(out, line)
			continue
		}
		k, old, _ := strings.Cut(line, "=")
		if strings.TrimSpace(k) != key {
			out = append(out, line)
			continue
		}
		found = true
		if old == value {
			out = append(out, line)
			continue
		}
		out = append(out, key+"="+value)
		changed = true
	}
	if !found {
		out = append(out, key+"="+value)
		changed = true
	}
	return out, changed
}

// splitLines splits on newlines, dropping a trailing carriage return from
// each line and the empty element after a final newline.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.Split(strings.TrimSuffix(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// writeAtomic writes data to a temp file in the same directory and
// renames it over path.
func writeAtomic(path string, data []byte, mode fs.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return oops.Code("ENVFILE_WRITE_FAILED").With("path", path).With("operation", "create temp").Wrap(err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) } //nolint:errcheck // best effort

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close() //nolint:errcheck // write error takes precedence
		cleanup()
		return oops.Code("ENVFILE_WRITE_FAILED").With("path", path).With("operation", "write").Wrap(err)
	}
	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close() //nolint:errcheck // chmod error takes precedence
		cleanup()
		return oops.Code("ENVFILE_WRITE_FAILED").With("path", path).With("operation", "chmod").Wrap(err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return oops.Code("ENVFILE_WRITE_FAILED").With("path", path).With("operation", "close").Wrap(err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return oops.Code("ENVFILE_WRITE_FAILED").With("path", path).With("operation", "rename").Wrap(err)
	}
	return nil
}
