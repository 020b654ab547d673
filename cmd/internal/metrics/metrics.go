// Package metrics holds the Prometheus collectors for the engine.
//
// Every method is safe on a nil *Metrics so components can run without
// instrumentation in tests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "invitetrack"

// Validity outcomes.
const (
	OutcomeValid     = "valid"
	OutcomeNotMember = "not_member"
	OutcomeTooRecent = "too_recent"
	OutcomeError     = "error"
)

// Metrics is the engine's collector set, registered on its own registry.
type Metrics struct {
	reg *prometheus.Registry

	tokensCreated  *prometheus.CounterVec
	joinsRecorded  *prometheus.CounterVec
	gatewayErrors  *prometheus.CounterVec
	validity       *prometheus.CounterVec
	reportBuilds   *prometheus.CounterVec
	reportDuration *prometheus.HistogramVec
	scheduledChats *prometheus.CounterVec
}

// New constructs and registers all collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		tokensCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invite_tokens_created_total",
			Help:      "Invite tokens issued and stored, by link mode.",
		}, []string{"mode"}),
		joinsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "joins_recorded_total",
			Help:      "Attribution events appended, by whether the token resolved to an inviter.",
		}, []string{"resolved"}),
		gatewayErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_errors_total",
			Help:      "Failed messaging platform calls, by method.",
		}, []string{"method"}),
		validity: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validity_checks_total",
			Help:      "Invite validity evaluations, by outcome.",
		}, []string{"outcome"}),
		reportBuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_builds_total",
			Help:      "Leaderboard report builds, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		reportDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "report_build_seconds",
			Help:      "Leaderboard build latency.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"kind"}),
		scheduledChats: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduled_report_chats_total",
			Help:      "Chats processed by the daily report, by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.tokensCreated,
		m.joinsRecorded,
		m.gatewayErrors,
		m.validity,
		m.reportBuilds,
		m.reportDuration,
		m.scheduledChats,
	)
	return m
}

// Registry exposes the underlying registry (tests, extra collectors).
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) TokenCreated(mode string) {
	if m == nil {
		return
	}
	m.tokensCreated.WithLabelValues(mode).Inc()
}

func (m *Metrics) JoinRecorded(resolved bool) {
	if m == nil {
		return
	}
	m.joinsRecorded.WithLabelValues(strconv.FormatBool(resolved)).Inc()
}

func (m *Metrics) GatewayError(method string) {
	if m == nil {
		return
	}
	m.gatewayErrors.WithLabelValues(method).Inc()
}

func (m *Metrics) ValidityChecked(outcome string) {
	if m == nil {
		return
	}
	m.validity.WithLabelValues(outcome).Inc()
}

// ReportBuilt records one report build. err == nil counts as "ok".
func (m *Metrics) ReportBuilt(kind string, took time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.reportBuilds.WithLabelValues(kind, outcome).Inc()
	m.reportDuration.WithLabelValues(kind).Observe(took.Seconds())
}

func (m *Metrics) ScheduledChat(outcome string) {
	if m == nil {
		return
	}
	m.scheduledChats.WithLabelValues(outcome).Inc()
}
