// Package opstelemetry publishes operational counters about the fabric onto
// an optional NATS subject, for external monitoring. It is never part of the
// reading bus itself: subscriber fan-out stays on its own two TCP ports.
package opstelemetry

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/sensormesh/fabric/pkg/log"
)

// Config describes how to reach the optional NATS broker. An empty Address
// disables ops telemetry entirely.
type Config struct {
	Address       string `json:"address"`
	Username      string `json:"username,omitempty"`
	Password      string `json:"password,omitempty"`
	CredsFilePath string `json:"creds-file-path,omitempty"`
	Subject       string `json:"subject"`
}

const ConfigSchema = `{
    "type": "object",
    "description": "Optional NATS sink for operational counters.",
    "properties": {
        "address": {"type": "string"},
        "username": {"type": "string"},
        "password": {"type": "string"},
        "creds-file-path": {"type": "string"},
        "subject": {"type": "string"}
    }
}`

// Snapshot is the payload published every tick. Field names are the wire
// format, so keep them stable.
type Snapshot struct {
	Timestamp       time.Time `json:"ts"`
	SubscriberCount int       `json:"subscriber_count"`
	SubscriberDrops uint64    `json:"subscriber_drops"`
	AffectorCount   int       `json:"affector_count"`
	QueueDepth      int       `json:"queue_depth"`
}

// Publisher wraps a NATS connection that only ever publishes. Subscribing
// isn't meaningful for this component, so the surface kept from the
// teacher's client is deliberately narrower than a general-purpose wrapper.
type Publisher struct {
	mu      sync.Mutex
	conn    *nats.Conn
	subject string
}

// Connect dials the configured NATS server. If cfg.Address is empty, it
// returns (nil, nil): callers should treat a nil *Publisher as "disabled".
func Connect(cfg Config) (*Publisher, error) {
	if cfg.Address == "" {
		log.Info("opstelemetry: no address configured, ops telemetry disabled")
		return nil, nil
	}

	var opts []nats.Option
	if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.CredsFilePath != "" {
		opts = append(opts, nats.UserCredentials(cfg.CredsFilePath))
	}
	opts = append(opts, nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
		if err != nil {
			log.Warnf("opstelemetry: disconnected: %v", err)
		}
	}))
	opts = append(opts, nats.ReconnectHandler(func(nc *nats.Conn) {
		log.Infof("opstelemetry: reconnected to %s", nc.ConnectedUrl())
	}))
	opts = append(opts, nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
		log.Errorf("opstelemetry: error: %v", err)
	}))

	nc, err := nats.Connect(cfg.Address, opts...)
	if err != nil {
		return nil, fmt.Errorf("opstelemetry: connect failed: %w", err)
	}

	subject := cfg.Subject
	if subject == "" {
		subject = "sensormesh.ops"
	}

	log.Infof("opstelemetry: connected to %s, publishing on %q", cfg.Address, subject)
	return &Publisher{conn: nc, subject: subject}, nil
}

// Publish sends one counters snapshot. A nil Publisher is a no-op so callers
// don't have to branch on whether ops telemetry is enabled.
func (p *Publisher) Publish(snap Snapshot) error {
	if p == nil {
		return nil
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("opstelemetry: marshal snapshot: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("opstelemetry: publish failed: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying connection. A nil Publisher is a
// no-op.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		p.conn.Flush()
		p.conn.Close()
	}
}
