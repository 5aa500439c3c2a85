// Package metrics provides Prometheus metrics collection for the worker
// core's main-loop phases.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector the main loop reports to.
type Metrics struct {
	CycleDuration   *prometheus.HistogramVec // labels: outcome (ran|idle|stopped)
	CyclesTotal     *prometheus.CounterVec   // labels: outcome
	PhaseErrors     *prometheus.CounterVec   // labels: phase, code

	ClaimsTotal     *prometheus.CounterVec // labels: result (in_progress|already_claimed|completed|credential_insufficient|unrecognized|error)
	DeliveriesTotal *prometheus.CounterVec // labels: status (success|failure)

	ExecutorTerminations *prometheus.CounterVec // labels: reason
	ExecutorDuration     prometheus.Histogram

	HeartbeatsTotal  prometheus.Counter
	CheckpointsTotal *prometheus.CounterVec // labels: status
	RestakesTotal    *prometheus.CounterVec // labels: status
	RotationsTotal   *prometheus.CounterVec // labels: status

	SessionMapSize *prometheus.GaugeVec // labels: map
}

// New builds and registers a Metrics instance against registerer.
func New(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		CycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "worker_cycle_duration_seconds",
			Help:    "Duration of one main-loop cycle",
			Buckets: []float64{.1, .5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"outcome"}),
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_cycles_total",
			Help: "Total number of main-loop cycles by outcome",
		}, []string{"outcome"}),
		PhaseErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_phase_errors_total",
			Help: "Errors encountered in a given main-loop phase",
		}, []string{"phase", "code"}),
		ClaimsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_claims_total",
			Help: "Claim attempts by result",
		}, []string{"result"}),
		DeliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_deliveries_total",
			Help: "Delivery attempts by status",
		}, []string{"status"}),
		ExecutorTerminations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_executor_terminations_total",
			Help: "Subprocess terminations by reason",
		}, []string{"reason"}),
		ExecutorDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "worker_executor_duration_seconds",
			Help:    "Subprocess wall-clock duration",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 900},
		}),
		HeartbeatsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "worker_heartbeats_total",
			Help: "Synthetic heartbeat requests submitted",
		}),
		CheckpointsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_checkpoints_total",
			Help: "Staking checkpoint() calls by status",
		}, []string{"status"}),
		RestakesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_restakes_total",
			Help: "Auto-restake attempts by status",
		}, []string{"status"}),
		RotationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_rotations_total",
			Help: "Active-service rotations by status",
		}, []string{"status"}),
		SessionMapSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "worker_session_map_size",
			Help: "Size of each TTL-bounded session map",
		}, []string{"map"}),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.CycleDuration, m.CyclesTotal, m.PhaseErrors,
			m.ClaimsTotal, m.DeliveriesTotal,
			m.ExecutorTerminations, m.ExecutorDuration,
			m.HeartbeatsTotal, m.CheckpointsTotal, m.RestakesTotal, m.RotationsTotal,
			m.SessionMapSize,
		)
	}
	return m
}

// RecordCycle records one main-loop cycle's outcome and duration.
func (m *Metrics) RecordCycle(outcome string, d time.Duration) {
	m.CyclesTotal.WithLabelValues(outcome).Inc()
	m.CycleDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

var (
	global   *Metrics
	globalMu sync.Mutex
)

// Init lazily creates the process-wide Metrics instance against the
// default Prometheus registry.
func Init() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		global = New(prometheus.DefaultRegisterer)
	}
	return global
}

// Global returns the process-wide Metrics instance, creating it with a
// no-op registerer if Init was never called (useful in tests).
func Global() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		global = New(nil)
	}
	return global
}
