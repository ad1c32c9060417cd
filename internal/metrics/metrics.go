package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns the prometheus registry and the service's collectors.
type Metrics struct {
	registry *prometheus.Registry

	relayed prometheus.Counter
	dropped prometheus.Counter
	typing  prometheus.Counter
	signOns prometheus.Counter
}

// New builds a registry with the service collectors. liveSessions is sampled
// on scrape for the live-session gauge.
func New(liveSessions func() float64) *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		relayed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stridebuddy_messages_relayed_total",
			Help: "Messages accepted for delivery.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stridebuddy_messages_dropped_total",
			Help: "Messages evicted from full recipient queues.",
		}),
		typing: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stridebuddy_typing_events_total",
			Help: "Typing notifications forwarded to live recipients.",
		}),
		signOns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stridebuddy_signons_total",
			Help: "Successful sign-ons.",
		}),
	}

	reg.MustRegister(
		m.relayed,
		m.dropped,
		m.typing,
		m.signOns,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "stridebuddy_sessions_live",
			Help: "Sessions currently live.",
		}, liveSessions),
		collectors.NewGoCollector(),
	)

	return m
}

// MessageRelayed increments the relayed-message counter.
func (m *Metrics) MessageRelayed() { m.relayed.Inc() }

// MessageDropped increments the evicted-message counter.
func (m *Metrics) MessageDropped() { m.dropped.Inc() }

// TypingForwarded increments the typing-event counter.
func (m *Metrics) TypingForwarded() { m.typing.Inc() }

// SignOn increments the successful sign-on counter.
func (m *Metrics) SignOn() { m.signOns.Inc() }

// Handler serves the registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
