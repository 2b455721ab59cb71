// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Freshtrack Contributors

// Package execx runs external programs with a hard timeout.
package execx

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/samber/oops"
)

// Sentinel errors for failures that callers branch on.
var (
	// ErrTimeout means the process was killed at its deadline.
	ErrTimeout = errors.New("command timed out")

	// ErrUnavailable means the program could not be started.
	ErrUnavailable = errors.New("command unavailable")
)

// waitDelay bounds how long Run waits for output pipes after the process
// is killed.
const waitDelay = 500 * time.Millisecond

// Result is the outcome of a process that ran to completion.
// A non-zero ExitCode is not an error.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// OK reports whether the process exited with status zero.
func (r Result) OK() bool {
	return r.ExitCode == 0
}

// Output returns stdout followed by stderr.
func (r Result) Output() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	return r.Stdout + r.Stderr
}

// Runner starts a program and waits for it, never longer than timeout.
type Runner interface {
	Run(ctx context.Context, timeout time.Duration, name string, args ...string) (Result, error)
}

// ExecRunner implements Runner with os/exec.
type ExecRunner struct {
	logger *slog.Logger
}

// NewExecRunner creates an ExecRunner. A nil logger uses slog.Default.
func NewExecRunner(logger *slog.Logger) *ExecRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecRunner{logger: logger}
}

// Run executes name with args. The process is killed when timeout elapses
// or ctx is done; both yield an error matching ErrTimeout.
func (r *ExecRunner) Run(ctx context.Context, timeout time.Duration, name string, args ...string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec // G204: program paths come from Tools
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}

	if err != nil && ctx.Err() != nil {
		r.logger.Debug("command timed out",
			"command", name,
			"args", strings.Join(args, " "),
			"timeout", timeout)
		return res, oops.Code("EXEC_TIMEOUT").
			With("command", name).
			With("timeout", timeout.String()).
			Wrap(errors.Join(ErrTimeout, ctx.Err()))
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		return res, oops.Code("EXEC_START_FAILED").
			With("command", name).
			Wrap(errors.Join(ErrUnavailable, err))
	}

	r.logger.Debug("command finished",
		"command", name,
		"exit_code", res.ExitCode,
		"duration", elapsed)
	return res, nil
}

var _ Runner = (*ExecRunner)(nil)
