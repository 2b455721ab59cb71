// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Freshtrack Contributors

// Package execxtest provides a scripted execx.Runner for tests.
package execxtest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/freshtrack/freshtrack/internal/execx"
)

// Call is one recorded invocation.
type Call struct {
	Name    string
	Args    []string
	Timeout time.Duration
}

// Line returns the program and its arguments joined by spaces.
func (c Call) Line() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Response is what a scripted call returns.
type Response struct {
	Result execx.Result
	Err    error
}

// Stdout is shorthand for a successful response printing out.
func Stdout(out string) Response {
	return Response{Result: execx.Result{Stdout: out}}
}

// Exit is shorthand for a response with the given exit code and output.
func Exit(code int, out string) Response {
	return Response{Result: execx.Result{ExitCode: code, Stdout: out}}
}

// Fail is shorthand for a response that returns err.
func Fail(err error) Response {
	return Response{Err: err}
}

type rule struct {
	match     string
	responses []Response
	next      int
}

// Runner answers calls whose Line contains a registered substring. Rules
// are tried in registration order. Each call consumes the next response of
// the matching rule; the last response repeats. Unmatched calls get
// Fallback.
type Runner struct {
	mu       sync.Mutex
	rules    []*rule
	calls    []Call
	Fallback Response
}

// New creates a Runner whose unmatched calls exit with status 1.
func New() *Runner {
	return &Runner{Fallback: Exit(1, "")}
}

// On registers responses for calls containing match.
func (r *Runner) On(match string, responses ...Response) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(responses) == 0 {
		responses = []Response{Stdout("")}
	}
	r.rules = append(r.rules, &rule{match: match, responses: responses})
	return r
}

// Run implements execx.Runner.
func (r *Runner) Run(ctx context.Context, timeout time.Duration, name string, args ...string) (execx.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	call := Call{Name: name, Args: append([]string(nil), args...), Timeout: timeout}
	r.calls = append(r.calls, call)

	if err := ctx.Err(); err != nil {
		return execx.Result{}, err
	}

	line := call.Line()
	for _, rl := range r.rules {
		if !strings.Contains(line, rl.match) {
			continue
		}
		resp := rl.responses[rl.next]
		if rl.next < len(rl.responses)-1 {
			rl.next++
		}
		return resp.Result, resp.Err
	}
	return r.Fallback.Result, r.Fallback.Err
}

// Calls returns a copy of the recorded invocations.
func (r *Runner) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Lines returns the recorded invocations as joined command lines.
func (r *Runner) Lines() []string {
	calls := r.Calls()
	lines := make([]string, len(calls))
	for i, c := range calls {
		lines[i] = c.Line()
	}
	return lines
}

// Count returns how many recorded calls contain match.
func (r *Runner) Count(match string) int {
	n := 0
	for _, line := range r.Lines() {
		if strings.Contains(line, match) {
			n++
		}
	}
	return n
}

var _ execx.Runner = (*Runner)(nil)
