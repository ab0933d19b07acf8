package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "punchcard"

// Metrics holds the collectors of the command pipeline on a private
// registry. A nil *Metrics is valid and records nothing.
type Metrics struct {
	reg *prometheus.Registry

	commands       *prometheus.CounterVec
	attempts       *prometheus.CounterVec
	outcomes       *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	staleSessions  *prometheus.GaugeVec
	releasedMirror prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_received_total",
			Help:      "Slash commands received by action",
		}, []string{"action"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transition_attempts_total",
			Help:      "Clock transition attempts including retries",
		}, []string{"action"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "command_outcomes_total",
			Help:      "Terminal command outcomes",
		}, []string{"action", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Time from first attempt to terminal outcome",
			Buckets:   []float64{0.1, 0.3, 0.5, 1.0, 3.0, 5.0, 10.0, 20.0, 40.0},
		}, []string{"action"}),
		staleSessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stale_sessions",
			Help:      "Open ledger rows older than the session horizon found by the last sweep",
		}, []string{"team_id"}),
		releasedMirror: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mirror_sessions_released_total",
			Help:      "Session store entries released because the ledger row was closed or missing",
		}),
	}

	m.reg.MustRegister(
		m.commands,
		m.attempts,
		m.outcomes,
		m.duration,
		m.staleSessions,
		m.releasedMirror,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Registry exposes the registry for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

func (m *Metrics) CommandReceived(action string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(action).Inc()
}

func (m *Metrics) Attempt(action string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(action).Inc()
}

func (m *Metrics) Outcome(action, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(action, outcome).Inc()
	m.duration.WithLabelValues(action).Observe(elapsed.Seconds())
}

func (m *Metrics) StaleSessions(teamID string, n int) {
	if m == nil {
		return
	}
	m.staleSessions.WithLabelValues(teamID).Set(float64(n))
}

func (m *Metrics) MirrorReleased() {
	if m == nil {
		return
	}
	m.releasedMirror.Inc()
}
