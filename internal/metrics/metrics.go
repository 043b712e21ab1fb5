// Package metrics holds the Prometheus instruments of the bridge.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the instruments used by the conversation service.
type Metrics struct {
	registry *prometheus.Registry

	ActiveTurns    prometheus.Gauge
	Turns          *prometheus.CounterVec
	ProtocolErrors *prometheus.CounterVec
	AudioBytes     *prometheus.CounterVec
	TurnDuration   prometheus.Histogram
}

// New registers the instruments on a fresh registry.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		ActiveTurns: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_turns",
			Help:      "Number of conversation turns currently streaming.",
		}),
		Turns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Finished conversation turns by terminal state.",
		}, []string{"state"}),
		ProtocolErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_errors_total",
			Help:      "Errors reported by the assistant service by code.",
		}, []string{"code"}),
		AudioBytes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_total",
			Help:      "Audio bytes by direction.",
		}, []string{"direction"}),
		TurnDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Wall time of a conversation turn.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		}),
	}
}

// ObserveTurn records a finished turn.
func (m *Metrics) ObserveTurn(state string, sent, received int64, d time.Duration) {
	m.Turns.WithLabelValues(state).Inc()
	m.AudioBytes.WithLabelValues("in").Add(float64(sent))
	m.AudioBytes.WithLabelValues("out").Add(float64(received))
	m.TurnDuration.Observe(d.Seconds())
}

// ObserveProtocolError counts an error reported by the service.
func (m *Metrics) ObserveProtocolError(code int) {
	m.ProtocolErrors.WithLabelValues(strconv.Itoa(code)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
