package adminhttp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the counters the data-server and data-store binaries
// increment as they do their work; /metrics exposes them in Prometheus
// exposition format via promhttp.
type Metrics struct {
	ReadingsReceived prometheus.Counter
	ReadingsDropped  prometheus.Counter
	ErrorsReceived   prometheus.Counter
	ActivationsOK    prometheus.Counter
	ActivationsFailed prometheus.Counter
}

// NewMetrics registers every counter against the default registry. Call
// once per process.
func NewMetrics() *Metrics {
	return &Metrics{
		ReadingsReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "sensormesh",
			Name:      "readings_received_total",
			Help:      "Readings accepted from nodes and fanned out on the bus.",
		}),
		ReadingsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "sensormesh",
			Name:      "readings_dropped_total",
			Help:      "Readings dropped because a subscriber's queue was full.",
		}),
		ErrorsReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "sensormesh",
			Name:      "device_errors_total",
			Help:      "Device error reports received from nodes.",
		}),
		ActivationsOK: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "sensormesh",
			Name:      "affector_activations_total",
			Help:      "Affector activations accepted by some registered node.",
		}),
		ActivationsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "sensormesh",
			Name:      "affector_activations_failed_total",
			Help:      "Affector activations rejected because no node served it.",
		}),
	}
}
