// Package metrics provides Prometheus metrics for Hearth.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records
// nothing, so components can be built without instrumentation.
type Metrics struct {
	TransitionsTotal     *prometheus.CounterVec
	RejectionsTotal      *prometheus.CounterVec
	RecoveriesTotal      *prometheus.CounterVec
	QueueDepth           prometheus.Gauge
	QueueEventsTotal     *prometheus.CounterVec
	SideEffectErrors     *prometheus.CounterVec
	RiskEvaluationsTotal *prometheus.CounterVec
	LoopsDetectedTotal   prometheus.Counter

	registry *prometheus.Registry
}

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		TransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hearth_state_transitions_total",
				Help: "Accepted state transitions by from, to and trigger.",
			},
			[]string{"from", "to", "trigger"},
		),
		RejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hearth_state_rejections_total",
				Help: "Rejected state changes by reason.",
			},
			[]string{"reason"},
		),
		RecoveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hearth_recoveries_total",
				Help: "Recovery timer firings by outcome.",
			},
			[]string{"outcome"},
		),
		QueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "hearth_emergency_queue_depth",
				Help: "Emergency actions waiting in the local queue.",
			},
		),
		QueueEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hearth_emergency_queue_events_total",
				Help: "Emergency queue activity by action and event (queued, drained, dropped).",
			},
			[]string{"action", "event"},
		),
		SideEffectErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hearth_side_effect_errors_total",
				Help: "Swallowed secondary-effect failures by kind (audit, notify, event).",
			},
			[]string{"kind"},
		),
		RiskEvaluationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hearth_risk_evaluations_total",
				Help: "Risk evaluations by resulting level.",
			},
			[]string{"level"},
		),
		LoopsDetectedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "hearth_debug_loops_detected_total",
				Help: "Debugging loops opened by the detector.",
			},
		),
		registry: reg,
	}

	reg.MustRegister(m.TransitionsTotal)
	reg.MustRegister(m.RejectionsTotal)
	reg.MustRegister(m.RecoveriesTotal)
	reg.MustRegister(m.QueueDepth)
	reg.MustRegister(m.QueueEventsTotal)
	reg.MustRegister(m.SideEffectErrors)
	reg.MustRegister(m.RiskEvaluationsTotal)
	reg.MustRegister(m.LoopsDetectedTotal)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordTransition increments the accepted-transition counter.
func (m *Metrics) RecordTransition(from, to, trigger string) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(from, to, trigger).Inc()
}

// RecordRejection increments the rejection counter.
func (m *Metrics) RecordRejection(reason string) {
	if m == nil {
		return
	}
	m.RejectionsTotal.WithLabelValues(reason).Inc()
}

// RecordRecovery increments the recovery counter.
func (m *Metrics) RecordRecovery(outcome string) {
	if m == nil {
		return
	}
	m.RecoveriesTotal.WithLabelValues(outcome).Inc()
}

// SetQueueDepth sets the emergency queue depth gauge.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

// RecordQueueEvent increments the queue activity counter.
func (m *Metrics) RecordQueueEvent(action, event string) {
	if m == nil {
		return
	}
	m.QueueEventsTotal.WithLabelValues(action, event).Inc()
}

// RecordSideEffectError increments the swallowed-failure counter.
func (m *Metrics) RecordSideEffectError(kind string) {
	if m == nil {
		return
	}
	m.SideEffectErrors.WithLabelValues(kind).Inc()
}

// RecordRiskEvaluation increments the risk evaluation counter.
func (m *Metrics) RecordRiskEvaluation(level string) {
	if m == nil {
		return
	}
	m.RiskEvaluationsTotal.WithLabelValues(level).Inc()
}

// RecordLoopDetected increments the detected-loop counter.
func (m *Metrics) RecordLoopDetected() {
	if m == nil {
		return
	}
	m.LoopsDetectedTotal.Inc()
}
