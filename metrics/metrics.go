// Package metrics defines the prometheus collectors exported by skv
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "skv"

// Metrics holds every collector. Components receive a
// *Metrics through their config rather than registering
// globals so that tests can use isolated registries.
type Metrics struct {
	OpenTransactions      prometheus.Gauge
	DeserializationErrors prometheus.Counter
	Conflicts             prometheus.Counter
	TxnBeginLatency       prometheus.Histogram
	TxnEndLatency         prometheus.Histogram
	TxnDuration           prometheus.Histogram
}

// New creates the collectors and registers them with registerer.
// A nil registerer leaves them unregistered.
func New(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)

	return &Metrics{
		OpenTransactions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "open_txns",
			Help:      "Number of transactions that are currently active.",
		}),
		DeserializationErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "deserialization_errors",
			Help:      "Counter of request bodies or records that could not be decoded.",
		}),
		Conflicts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "conflicts_total",
			Help:      "Counter of writes and commits rejected by conflict detection.",
		}),
		TxnBeginLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "txn_begin_latency_seconds",
			Help:      "Bucketed histogram of the time taken to begin a transaction.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 13),
		}),
		TxnEndLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "txn_end_latency_seconds",
			Help:      "Bucketed histogram of the time taken to commit or abort a transaction.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 13),
		}),
		TxnDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "txn_duration_seconds",
			Help:      "Bucketed histogram of the lifetime of finalized transactions.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16),
		}),
	}
}
