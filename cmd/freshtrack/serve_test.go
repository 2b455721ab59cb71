// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Freshtrack Contributors

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freshtrack/freshtrack/internal/config"
	"github.com/freshtrack/freshtrack/internal/observability"
	"github.com/freshtrack/freshtrack/internal/store"
	"github.com/freshtrack/freshtrack/pkg/errutil"
)

// loopbackListen records the requested address and listens on an
// ephemeral loopback port instead.
type loopbackListen struct {
	requested chan string
	ready     chan net.Listener
}

func newLoopbackListen() *loopbackListen {
	return &loopbackListen{requested: make(chan string, 1), ready: make(chan net.Listener, 1)}
}

func (l *loopbackListen) Listen(network, address string) (net.Listener, error) {
	l.requested <- address
	lis, err := net.Listen(network, "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	l.ready <- lis
	return lis, nil
}

type serveRun struct {
	cancel context.CancelFunc
	done   chan error
	lis    net.Listener
	addr   string
}

func startServe(t *testing.T, deps *Deps, envPath string, args ...string) *serveRun {
	t.Helper()
	ll := newLoopbackListen()
	deps.Listen = ll.Listen

	ctx, cancel := context.WithCancel(context.Background())
	run := &serveRun{cancel: cancel, done: make(chan error, 1)}
	go func() {
		_, _, err := execute(ctx, t, deps, envPath, append(args, "serve")...)
		run.done <- err
	}()

	select {
	case run.addr = <-ll.requested:
	case err := <-run.done:
		cancel()
		t.Fatalf("serve exited before listening: %v", err)
	case <-time.After(10 * time.Second):
		cancel()
		t.Fatal("serve did not listen")
	}
	run.lis = <-ll.ready
	t.Cleanup(func() { _ = run.stop(t) })
	return run
}

func (r *serveRun) url(path string) string {
	return "http://" + r.lis.Addr().String() + path
}

func (r *serveRun) stop(t *testing.T) error {
	t.Helper()
	r.cancel()
	select {
	case err, ok := <-r.done:
		if !ok {
			return nil
		}
		close(r.done)
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
		return nil
	}
}

func waitHTTP(t *testing.T, url string) {
	t.Helper()
	require.Eventually(t, func() bool {
		resp, err := http.Get(url) //nolint:gosec,noctx // loopback test server
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return true
	}, 5*time.Second, 20*time.Millisecond)
}

func TestServe_MemoryStore(t *testing.T) {
	envPath := isolate(t)
	run := startServe(t, &Deps{}, envPath,
		"--database-url", "memory://",
		"--auto-network=false",
		"--metrics-addr", "127.0.0.1:0",
		"--host", "127.0.0.1")

	assert.Equal(t, "127.0.0.1:8000", run.addr)
	waitHTTP(t, run.url("/config/public"))

	body, err := json.Marshal(map[string]string{
		"email":     "alice@example.com",
		"password":  "hunter2hunter2",
		"full_name": "Alice",
	})
	require.NoError(t, err)
	resp, err := http.Post(run.url("/auth/register"), "application/json", bytes.NewReader(body)) //nolint:gosec,noctx // loopback test server
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var session struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&session))
	assert.NotEmpty(t, session.AccessToken)
	assert.Equal(t, "bearer", session.TokenType)

	req, err := http.NewRequest(http.MethodGet, run.url("/users/me"), nil) //nolint:noctx // loopback test server
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+session.AccessToken)
	me, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = me.Body.Close() }()
	assert.Equal(t, http.StatusOK, me.StatusCode)

	require.NoError(t, run.stop(t))
}

func TestServe_AutoNetworkUsesDetectedHost(t *testing.T) {
	envPath := isolate(t)
	l := &fakeLocator{goos: "linux", lan: "192.168.1.50"}
	run := startServe(t, networkDeps(l, nil), envPath,
		"--database-url", "memory://",
		"--metrics-addr=")

	assert.Equal(t, "192.168.1.50:8000", run.addr)
	waitHTTP(t, run.url("/config/public"))

	resp, err := http.Get(run.url("/config/public")) //nolint:gosec,noctx // loopback test server
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var endpoints config.PublicEndpoints
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&endpoints))
	assert.Equal(t, "192.168.1.50", endpoints.PublicHost)
	assert.Equal(t, "http://192.168.1.50:8000", endpoints.APIURL)

	data, err := os.ReadFile(envPath) //nolint:gosec // test-owned temp file
	require.NoError(t, err)
	assert.Contains(t, string(data), "HOST=192.168.1.50")

	require.NoError(t, run.stop(t))
}

func TestConfigureNetwork_PublicHostFallback(t *testing.T) {
	tests := []struct {
		name          string
		locator       *fakeLocator
		wantHost      string
		wantPublicURL string
		wantAPIAddr   string
	}{
		{
			name:          "nothing detected",
			locator:       &fakeLocator{goos: "linux"},
			wantPublicURL: "http://localhost:3000",
			wantAPIAddr:   "0.0.0.0:8000",
		},
		{
			name:          "nothing detected in WSL",
			locator:       &fakeLocator{goos: "linux", wsl: true},
			wantPublicURL: "http://localhost:3000",
			wantAPIAddr:   "0.0.0.0:8000",
		},
		{
			name:          "WSL with Wi-Fi address",
			locator:       &fakeLocator{goos: "linux", wsl: true, wifi: "192.168.1.30"},
			wantPublicURL: "http://192.168.1.30:3000",
			wantAPIAddr:   "0.0.0.0:8000",
		},
		{
			name:          "LAN address detected",
			locator:       &fakeLocator{goos: "linux", lan: "192.168.1.50"},
			wantHost:      "192.168.1.50",
			wantPublicURL: "http://192.168.1.50:3000",
			wantAPIAddr:   "192.168.1.50:8000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.EnvFile = ""
			metrics := observability.NewMetrics(prometheus.NewRegistry())

			configureNetwork(context.Background(), &cfg, networkDeps(tt.locator, nil), slog.New(slog.DiscardHandler), metrics)

			assert.Equal(t, tt.wantHost, cfg.Host)
			assert.Equal(t, tt.wantPublicURL, cfg.PublicEndpoints().PublicURL)
			assert.Equal(t, tt.wantAPIAddr, cfg.APIAddr())
		})
	}
}

func TestServe_AutoMigratesSQLite(t *testing.T) {
	envPath := isolate(t)
	url := sqliteURL(t)
	run := startServe(t, &Deps{}, envPath,
		"--database-url", url,
		"--auto-network=false",
		"--metrics-addr=")
	require.NoError(t, run.stop(t))

	m, err := store.NewMigrator(url)
	require.NoError(t, err)
	defer func() { _ = m.Close() }()
	pending, err := m.PendingMigrations()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestServe_ListenFailure(t *testing.T) {
	envPath := isolate(t)
	deps := &Deps{
		Listen: func(string, string) (net.Listener, error) {
			return nil, errors.New("address already in use")
		},
	}

	_, _, err := execute(context.Background(), t, deps, envPath,
		"--database-url", "memory://", "--auto-network=false", "--metrics-addr=", "serve")
	errutil.AssertErrorCode(t, err, "HTTP_LISTEN_FAILED")
}

func TestServe_StoreFailure(t *testing.T) {
	envPath := isolate(t)
	deps := &Deps{
		OpenStore: func(context.Context, string) (*store.Handle, error) {
			return nil, errors.New("connection refused")
		},
	}

	_, stderr, err := execute(context.Background(), t, deps, envPath, "--auto-network=false", "serve")
	require.Error(t, err)
	assert.Contains(t, stderr, "store unavailable")
}

func TestServe_WarnsOnDefaultSecret(t *testing.T) {
	envPath := isolate(t)
	deps := &Deps{
		Listen: func(string, string) (net.Listener, error) {
			return nil, errors.New("stop here")
		},
	}

	_, stderr, err := execute(context.Background(), t, deps, envPath,
		"--database-url", "memory://", "--auto-network=false", "--metrics-addr=", "serve")
	require.Error(t, err)
	assert.Contains(t, stderr, "default secret key")
}
