// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Freshtrack Contributors

package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the freshtrack collectors. It satisfies auth.Observer and
// the winbridge and token verification callbacks.
type Metrics struct {
	AuthOperations     *prometheus.CounterVec
	TokenVerifications *prometheus.CounterVec
	PasswordHash       prometheus.Histogram
	NetBridgeActions   *prometheus.CounterVec
	HTTPRequests       *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AuthOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "freshtrack_auth_operations_total",
				Help: "Auth operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		TokenVerifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "freshtrack_token_verifications_total",
				Help: "Session token verifications by result",
			},
			[]string{"result"},
		),
		PasswordHash: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "freshtrack_password_hash_seconds",
			Help:    "Time spent deriving password keys",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		NetBridgeActions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "freshtrack_netbridge_actions_total",
				Help: "Windows port forwarding and firewall actions by result",
			},
			[]string{"action", "result"},
		),
		HTTPRequests: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "freshtrack_http_request_duration_seconds",
				Help:    "HTTP API request latency by route and status",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
	}

	reg.MustRegister(
		m.AuthOperations,
		m.TokenVerifications,
		m.PasswordHash,
		m.NetBridgeActions,
		m.HTTPRequests,
	)
	return m
}

// RecordAuth counts one auth operation.
func (m *Metrics) RecordAuth(operation, outcome string) {
	m.AuthOperations.WithLabelValues(operation, outcome).Inc()
}

// ObserveHash records one key derivation.
func (m *Metrics) ObserveHash(d time.Duration) {
	m.PasswordHash.Observe(d.Seconds())
}

// RecordTokenVerify counts one token verification.
func (m *Metrics) RecordTokenVerify(result string) {
	m.TokenVerifications.WithLabelValues(result).Inc()
}

// RecordNetBridge counts one netsh action.
func (m *Metrics) RecordNetBridge(action, outcome string) {
	m.NetBridgeActions.WithLabelValues(action, outcome).Inc()
}

// ObserveHTTP records one HTTP request. route is the matched pattern, not
// the raw path.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}
