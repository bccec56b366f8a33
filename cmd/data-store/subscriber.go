package main

import (
	"time"

	"github.com/sensormesh/fabric/internal/adminhttp"
	"github.com/sensormesh/fabric/internal/logstore"
	"github.com/sensormesh/fabric/pkg/log"
	"github.com/sensormesh/fabric/pkg/series"
	"github.com/sensormesh/fabric/pkg/wire"
)

// Subscriber turns the broadcast stream from a data-server's subscribe
// port into durable state: readings land in the series store, device
// errors and affector activations land in the SQL log store, and every
// reading's arrival feeds its kind's inter-arrival histogram.
type Subscriber struct {
	Series     *series.Store
	Logs       *logstore.Store
	Histograms *logstore.HistogramStore
	Metrics    *adminhttp.Metrics
}

// Handle is the rpc.Handler invoked for every message the subscribe-port
// connection delivers.
func (s *Subscriber) Handle(m wire.Msg) error {
	now := time.Now()

	switch m.Kind {
	case wire.KindReadings:
		s.Metrics.ReadingsReceived.Add(float64(len(m.Readings)))
		for _, r := range m.Readings {
			if err := s.Series.Append(r); err != nil {
				log.Warnf("data-store: append reading %s: %v", r, err)
			}
			s.Histograms.Observe(r.Kind, now)
		}
	case wire.KindError:
		s.Metrics.ErrorsReceived.Inc()
		if err := s.Logs.RecordError(m.Err, now); err != nil {
			log.Warnf("data-store: record error: %v", err)
		}
	case wire.KindAffectorControlled:
		accepted := m.ControlledBy != ""
		if accepted {
			s.Metrics.ActivationsOK.Inc()
		} else {
			s.Metrics.ActivationsFailed.Inc()
		}
		if err := s.Logs.RecordActivation(m.Handled, accepted, now); err != nil {
			log.Warnf("data-store: record activation: %v", err)
		}
	default:
		log.Warnf("data-store: unexpected message kind %d from subscribe port", m.Kind)
	}
	return nil
}
