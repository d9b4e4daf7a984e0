package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Event source metrics
	EventsReceived  *prometheus.CounterVec
	EventsMalformed *prometheus.CounterVec
	Reconnects      prometheus.Counter
	Connected       prometheus.Gauge

	// Notification log metrics
	EventsDuplicate prometheus.Counter
	EventsMerged    prometheus.Counter
	Unread          prometheus.Gauge
	LogSize         prometheus.Gauge

	// Acknowledgment metrics
	AckOutcomes *prometheus.CounterVec
	AckLatency  prometheus.Histogram

	// Backend metrics
	BackendRequests *prometheus.CounterVec
	BackendLatency  *prometheus.HistogramVec
	CircuitState    *prometheus.GaugeVec
}

// New creates and registers all application metrics on reg. Tests pass a
// fresh prometheus.NewRegistry() so registrations never collide.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EventsReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "events_received_total",
			Help:      "Total number of booking events received",
		}, []string{"origin"}),
		EventsMalformed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "events_malformed_total",
			Help:      "Total number of payloads dropped as malformed",
		}, []string{"origin"}),
		Reconnects: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "reconnects_total",
			Help:      "Total number of reconnect attempts",
		}),
		Connected: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "connected",
			Help:      "1 while the live subscription is established",
		}),

		EventsDuplicate: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "log",
			Name:      "events_duplicate_total",
			Help:      "Total number of events discarded as duplicates",
		}),
		EventsMerged: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "log",
			Name:      "events_merged_total",
			Help:      "Total number of events merged into an existing entry",
		}),
		Unread: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "log",
			Name:      "unread",
			Help:      "Current number of unread notifications",
		}),
		LogSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "log",
			Name:      "entries",
			Help:      "Current number of notifications held",
		}),

		AckOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ack",
			Name:      "outcomes_total",
			Help:      "Acknowledgment attempts by outcome",
		}, []string{"outcome"}),
		AckLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ack",
			Name:      "request_duration_seconds",
			Help:      "Duration of acknowledgment round trips",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),

		BackendRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "requests_total",
			Help:      "Total number of backend requests",
		}, []string{"operation", "status"}),
		BackendLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "request_duration_seconds",
			Help:      "Duration of backend requests",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"operation"}),
		CircuitState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "circuit_state",
			Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		}, []string{"name"}),
	}
}

// Nop returns metrics registered on a private registry. Useful where a
// component needs a *Metrics but nothing scrapes it.
func Nop() *Metrics {
	return New("nop", prometheus.NewRegistry())
}
