// Copyright 2025 The Volmirror Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package replication

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "volmirror"

// Metrics is a prometheus.Collector tracking replication activity.
// A nil *Metrics is valid and records nothing, so metrics wiring is
// optional for callers such as tests.
type Metrics struct {
	operations *prometheus.CounterVec
	failovers  *prometheus.CounterVec
	mirrorLag  *prometheus.GaugeVec
}

// NewMetrics returns a new Metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "operations_total",
				Help:      "Mirror operations issued to backends, by operation and result.",
			}, []string{"backend", "operation", "result"},
		),
		failovers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "failovers_total",
				Help:      "Completed failover attempts, by target backend and result.",
			}, []string{"target", "result"},
		),
		mirrorLag: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "mirror_lag_seconds",
				Help:      "Replication lag of each mirrored pool.",
			}, []string{"backend", "pool"},
		),
	}
}

// Describe is part of the prometheus.Collector interface.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.operations.Describe(ch)
	m.failovers.Describe(ch)
	m.mirrorLag.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.operations.Collect(ch)
	m.failovers.Collect(ch)
	m.mirrorLag.Collect(ch)
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveOperation records the outcome of one mirror operation.
func (m *Metrics) ObserveOperation(backendName, op string, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(backendName, op, result(err)).Inc()
}

// ObserveFailover records the outcome of a failover attempt.
func (m *Metrics) ObserveFailover(target string, err error) {
	if m == nil {
		return
	}
	m.failovers.WithLabelValues(target, result(err)).Inc()
}

// SetMirrorLag records the current lag of a mirrored pool.
func (m *Metrics) SetMirrorLag(backendName, pool string, lag time.Duration) {
	if m == nil {
		return
	}
	m.mirrorLag.WithLabelValues(backendName, pool).Set(lag.Seconds())
}
