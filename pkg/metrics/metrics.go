// Package metrics holds the Prometheus collectors exported by the console.
//
// All recording methods are safe to call on a nil *Metrics so components can
// run without a registry in tests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sazpd"

// Metrics groups the collectors of every console component.
type Metrics struct {
	PollsTotal          *prometheus.CounterVec
	PollDuration        *prometheus.HistogramVec
	ConsecutiveFailures *prometheus.GaugeVec
	Escalations         *prometheus.CounterVec

	Notifications   prometheus.Counter
	UnackedCritical prometheus.Gauge

	SessionsTotal   *prometheus.CounterVec
	ModuleRunsTotal *prometheus.CounterVec

	AuditExportsTotal *prometheus.CounterVec

	BreakerState *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PollsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "monitoring_polls_total",
			Help:      "Snapshot polls by kind and outcome.",
		}, []string{"kind", "outcome"}),
		PollDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "monitoring_poll_duration_seconds",
			Help:      "Round-trip time of snapshot polls.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"kind"}),
		ConsecutiveFailures: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "monitoring_consecutive_failures",
			Help:      "Current run of failed polls per kind.",
		}, []string{"kind"}),
		Escalations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "monitoring_escalations_total",
			Help:      "Warning alerts synthesized after repeated poll failures.",
		}, []string{"kind"}),
		Notifications: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_notifications_total",
			Help:      "Critical alert notifications fired.",
		}),
		UnackedCritical: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "alerts_unacknowledged_critical",
			Help:      "Unacknowledged critical alerts in the last observed snapshot.",
		}),
		SessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "test_sessions_total",
			Help:      "Test sessions that reached a terminal state.",
		}, []string{"status"}),
		ModuleRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "test_module_runs_total",
			Help:      "Module executions by module and outcome.",
		}, []string{"module", "status"}),
		AuditExportsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_exports_total",
			Help:      "Audit CSV exports by outcome.",
		}, []string{"outcome"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "upstream_breaker_state",
			Help:      "Circuit breaker state per upstream endpoint group (0 closed, 1 half-open, 2 open).",
		}, []string{"group"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.PollsTotal,
			m.PollDuration,
			m.ConsecutiveFailures,
			m.Escalations,
			m.Notifications,
			m.UnackedCritical,
			m.SessionsTotal,
			m.ModuleRunsTotal,
			m.AuditExportsTotal,
			m.BreakerState,
		)
	}
	return m
}

// ObservePoll records one poll of kind.
func (m *Metrics) ObservePoll(kind string, err error, took time.Duration, failures int) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.PollsTotal.WithLabelValues(kind, outcome).Inc()
	m.PollDuration.WithLabelValues(kind).Observe(took.Seconds())
	m.ConsecutiveFailures.WithLabelValues(kind).Set(float64(failures))
}

// ObserveEscalation records a synthesized warning for kind.
func (m *Metrics) ObserveEscalation(kind string) {
	if m == nil {
		return
	}
	m.Escalations.WithLabelValues(kind).Inc()
}

// ObserveCritical records the unacknowledged critical count and whether a
// notification fired for it.
func (m *Metrics) ObserveCritical(count int, notified bool) {
	if m == nil {
		return
	}
	m.UnackedCritical.Set(float64(count))
	if notified {
		m.Notifications.Inc()
	}
}

// ObserveSession records a session reaching status.
func (m *Metrics) ObserveSession(status string) {
	if m == nil {
		return
	}
	m.SessionsTotal.WithLabelValues(status).Inc()
}

// ObserveModuleRun records a settled module execution.
func (m *Metrics) ObserveModuleRun(module, status string) {
	if m == nil {
		return
	}
	m.ModuleRunsTotal.WithLabelValues(module, status).Inc()
}

// ObserveExport records an audit export attempt.
func (m *Metrics) ObserveExport(err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.AuditExportsTotal.WithLabelValues(outcome).Inc()
}

// ObserveBreaker records the circuit breaker state of an upstream group.
func (m *Metrics) ObserveBreaker(group string, state int) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(group).Set(float64(state))
}
