// Package observability holds the Prometheus collectors of the server.
// They live in their own registry, exposed on /metrics.
package observability

import (
	"code-lab/contract"
	"code-lab/domain/execution"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "codelab"

var _ contract.RunObserver = (*Metrics)(nil)

type Metrics struct {
	registry    *prometheus.Registry
	events      *prometheus.CounterVec
	runs        *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
	connections prometheus.Gauge
	channelLen  *prometheus.GaugeVec
	channelCap  *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Events broadcast to sessions, by event name.",
		}, []string{"event"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished run requests, by language and outcome.",
		}, []string{"language", "outcome"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall clock duration of run requests.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30},
		}, []string{"language"}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Open real-time connections.",
		}),
		channelLen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channel_length",
			Help:      "Buffered items waiting in an internal channel.",
		}, []string{"channel"}),
		channelCap: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channel_capacity",
			Help:      "Capacity of an internal channel.",
		}, []string{"channel"}),
	}
	m.registry.MustRegister(
		m.events, m.runs, m.runDuration, m.connections, m.channelLen, m.channelCap,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) IncEvent(name string) {
	m.events.WithLabelValues(name).Inc()
}

func (m *Metrics) ObserveRun(language execution.Language, outcome execution.Outcome, elapsed time.Duration) {
	m.runs.WithLabelValues(string(language), string(outcome)).Inc()
	m.runDuration.WithLabelValues(string(language)).Observe(elapsed.Seconds())
}

func (m *Metrics) ConnectionOpened() { m.connections.Inc() }

func (m *Metrics) ConnectionClosed() { m.connections.Dec() }

func (m *Metrics) ObserveChannel(name string, length, capacity int) {
	m.channelLen.WithLabelValues(name).Set(float64(length))
	m.channelCap.WithLabelValues(name).Set(float64(capacity))
}
