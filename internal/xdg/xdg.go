// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Freshtrack Contributors

// Package xdg resolves XDG base directories for freshtrack.
package xdg

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const appName = "freshtrack"

// ConfigDir returns $XDG_CONFIG_HOME/freshtrack, falling back to
// ~/.config/freshtrack.
func ConfigDir() string {
	return filepath.Join(baseDir("XDG_CONFIG_HOME", ".config"), appName)
}

func baseDir(envVar, homeRel string) string {
	if base := os.Getenv(envVar); base != "" {
		return base
	}
	home := os.Getenv("HOME")
	if home == "" {
		if h, err := os.UserHomeDir(); err == nil {
			home = h
		}
	}
	return filepath.Join(home, homeRel)
}

// EnsureDir creates path and its parents with 0700 permissions.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return oops.Code("XDG_MKDIR_FAILED").With("path", path).Wrap(err)
	}
	return nil
}
