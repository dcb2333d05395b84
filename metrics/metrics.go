// Package metrics provides Prometheus instrumentation for verification runs.
package metrics

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the counters updated throughout a verification. A nil *Metrics is valid and records nothing, so
// components can accept it optionally.
type Metrics struct {
	registry *prometheus.Registry

	verificationsTotal *prometheus.CounterVec
	stageAttemptsTotal *prometheus.CounterVec
	rpcRequestsTotal   *prometheus.CounterVec
	sourceFetchesTotal *prometheus.CounterVec
	compilationsTotal  *prometheus.CounterVec
}

// New creates a Metrics instance whose collectors are registered on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		verificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verification_total",
				Help: "Total number of verification attempts by resulting match status",
			},
			[]string{"status"},
		),
		stageAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verification_stage_attempts_total",
				Help: "Total number of matcher stage attempts by stage and outcome",
			},
			[]string{"stage", "outcome"},
		),
		rpcRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rpc_requests_total",
				Help: "Total number of chain RPC requests by chain, method and outcome",
			},
			[]string{"chain", "method", "outcome"},
		),
		sourceFetchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "source_fetches_total",
				Help: "Total number of missing source fetches by origin and outcome",
			},
			[]string{"origin", "outcome"},
		),
		compilationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "compilations_total",
				Help: "Total number of compiler invocations by backend and outcome",
			},
			[]string{"backend", "outcome"},
		),
	}
	m.registry.MustRegister(
		m.verificationsTotal,
		m.stageAttemptsTotal,
		m.rpcRequestsTotal,
		m.sourceFetchesTotal,
		m.compilationsTotal,
	)
	return m
}

// Gatherer returns the registry holding every collector, or nil for a nil Metrics.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordVerification counts a finished verification. An empty status is recorded as "failed".
func (m *Metrics) RecordVerification(status string) {
	if m == nil {
		return
	}
	if status == "" {
		status = "failed"
	}
	m.verificationsTotal.WithLabelValues(status).Inc()
}

// RecordStageAttempt counts an attempt of a matcher stage.
func (m *Metrics) RecordStageAttempt(stage string, outcome string) {
	if m == nil {
		return
	}
	m.stageAttemptsTotal.WithLabelValues(stage, outcome).Inc()
}

// RecordRPCRequest counts a single RPC endpoint request.
func (m *Metrics) RecordRPCRequest(chain string, method string, outcome string) {
	if m == nil {
		return
	}
	m.rpcRequestsTotal.WithLabelValues(chain, method, outcome).Inc()
}

// RecordSourceFetch counts a single source fetch attempt.
func (m *Metrics) RecordSourceFetch(origin string, outcome string) {
	if m == nil {
		return
	}
	m.sourceFetchesTotal.WithLabelValues(origin, outcome).Inc()
}

// RecordCompilation counts a compiler invocation.
func (m *Metrics) RecordCompilation(backend string, outcome string) {
	if m == nil {
		return
	}
	m.compilationsTotal.WithLabelValues(backend, outcome).Inc()
}

// WriteToFile writes every collected metric to the provided path in the Prometheus text exposition format.
func (m *Metrics) WriteToFile(path string) error {
	if m == nil {
		return nil
	}
	return errors.WithStack(prometheus.WriteToTextfile(path, m.registry))
}
