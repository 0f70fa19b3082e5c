package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ptscheck/models"
)

// Metrics exposes validation run statistics on a private registry.
type Metrics struct {
	registry *prometheus.Registry
	runs     *prometheus.CounterVec
	findings *prometheus.CounterVec
	events   prometheus.Gauge
	runDur   prometheus.Summary
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.runs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ptscheck",
		Name:      "validation_runs_total",
		Help:      "Number of validation runs by status",
	}, []string{"status"})
	m.findings = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ptscheck",
		Name:      "findings_total",
		Help:      "Number of findings by category",
	}, []string{"category"})
	m.events = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ptscheck",
		Name:      "last_schedule_events",
		Help:      "Number of events in the most recently validated schedule",
	})
	m.runDur = prometheus.NewSummary(prometheus.SummaryOpts{
		Namespace: "ptscheck",
		Name:      "validation_duration_seconds",
		Help:      "Time spent loading and validating one schedule",
	})

	m.registry.MustRegister(m.runs, m.findings, m.events, m.runDur)
	return m
}

// ObserveReport records a completed run.
func (m *Metrics) ObserveReport(report models.Report, elapsed time.Duration) {
	m.runs.WithLabelValues("ok").Inc()
	for cat, n := range report.Counters {
		m.findings.WithLabelValues(string(cat)).Add(float64(n))
	}
	m.events.Set(float64(report.EventCount))
	m.runDur.Observe(elapsed.Seconds())
}

// ObserveFailure records a run that aborted while loading.
func (m *Metrics) ObserveFailure() {
	m.runs.WithLabelValues("failed").Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
