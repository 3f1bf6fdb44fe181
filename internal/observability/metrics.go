package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters and gauges for the notification relay.
type Metrics struct {
	MessagesReceived *prometheus.CounterVec // labels: account
	Notifications    *prometheus.CounterVec // labels: kind={speech,beep}
	DeliveryFailures *prometheus.CounterVec // labels: target={speech,beep,pushgateway}
	SeverityTier     *prometheus.HistogramVec
	StreamEvents     *prometheus.CounterVec // labels: event={connected,reconnect_attempt,...}
	DuplicateDropped prometheus.Counter
	StreamConnected  prometheus.Gauge
}

// NewMetrics creates and registers all relay metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.MessagesReceived,
		m.Notifications,
		m.DeliveryFailures,
		m.SeverityTier,
		m.StreamEvents,
		m.DuplicateDropped,
		m.StreamConnected,
	)
	return m
}

// NewMetricsForTesting creates Metrics that are not registered anywhere, so
// tests can build as many as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quake_notify",
			Name:      "messages_received_total",
			Help:      "Stream messages classified, by account.",
		}, []string{"account"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quake_notify",
			Name:      "notifications_total",
			Help:      "Notifications dispatched, by kind.",
		}, []string{"kind"}),
		DeliveryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quake_notify",
			Name:      "delivery_failures_total",
			Help:      "Failed background deliveries, by target.",
		}, []string{"target"}),
		SeverityTier: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "quake_notify",
			Name:      "severity_tier",
			Help:      "Intensity tier extracted from classified messages.",
			Buckets:   []float64{0, 1, 2, 3, 4, 5, 6, 7},
		}, []string{"account"}),
		StreamEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quake_notify",
			Name:      "stream_events_total",
			Help:      "Stream lifecycle transitions, by event.",
		}, []string{"event"}),
		DuplicateDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quake_notify",
			Name:      "duplicate_messages_total",
			Help:      "Messages dropped because their ID was already seen.",
		}),
		StreamConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "quake_notify",
			Name:      "stream_connected",
			Help:      "1 while the stream is connected, 0 otherwise.",
		}),
	}
}
