// Package events announces cache rebuilds to other processes.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubject is the subject rebuild events are published on.
const DefaultSubject = "obscore.cache.rebuilt"

// TypeCacheRebuilt tags events emitted after a rebuild completes.
const TypeCacheRebuilt = "cache.rebuilt"

// Event describes one completed rebuild.
type Event struct {
	Type       string    `json:"type"`
	RunID      string    `json:"run_id"`
	Kind       string    `json:"kind"`
	Offerings  []string  `json:"offerings,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	Errors     int       `json:"errors"`
	At         time.Time `json:"at"`
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Noop drops every event.
type Noop struct{}

// Publish implements Publisher.
func (Noop) Publish(context.Context, Event) error { return nil }

// msgPublisher is the subset of *nats.Conn used for publishing.
type msgPublisher interface {
	Publish(subject string, data []byte) error
}

var _ msgPublisher = (*nats.Conn)(nil)

// NATSPublisher publishes JSON events on a NATS subject.
type NATSPublisher struct {
	conn    msgPublisher
	subject string
	closer  func()
}

// Connect dials url and returns a publisher on subject (DefaultSubject when empty).
func Connect(url, subject string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("obscore"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	p := newNATSPublisher(nc, subject)
	p.closer = nc.Close
	return p, nil
}

func newNATSPublisher(conn msgPublisher, subject string) *NATSPublisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSPublisher{conn: conn, subject: subject}
}

// Subject returns the subject events are published on.
func (p *NATSPublisher) Subject() string { return p.subject }

// Publish encodes ev as JSON and publishes it. NATS core publishing does not
// take a context, so ctx is only checked before sending.
func (p *NATSPublisher) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before publish: %w", err)
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}
	return nil
}

// Close closes the underlying connection when the publisher owns it.
func (p *NATSPublisher) Close() {
	if p.closer != nil {
		p.closer()
	}
}
