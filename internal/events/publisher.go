// Package events publishes accepted events to NATS for downstream
// consumers (warehouse export, alerting, plugins). Publishing is
// fire-and-forget: a broker outage never blocks or fails collection.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/de3sec/pagesight/internal/models"
)

// SubjectEventAccepted carries every event that passed validation and
// sampling. Messages are JSON-encoded models.Event values.
const SubjectEventAccepted = "pagesight.events.accepted"

// Publisher fans accepted events out to interested consumers.
type Publisher interface {
	PublishEvent(e *models.Event) error
	Close()
}

// NATSPublisher implements Publisher on a NATS connection.
type NATSPublisher struct {
	conn *nats.Conn
}

// NewNATSPublisher connects to the NATS server at url.
func NewNATSPublisher(url, name string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSPublisher{conn: conn}, nil
}

// NewNATSPublisherFromConn wraps an existing connection.
func NewNATSPublisherFromConn(conn *nats.Conn) *NATSPublisher {
	return &NATSPublisher{conn: conn}
}

func (p *NATSPublisher) PublishEvent(e *models.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.conn.Publish(SubjectEventAccepted, data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

func (p *NATSPublisher) Close() {
	if p.conn != nil {
		p.conn.Drain() //nolint:errcheck
	}
}

// NoOpPublisher is used when no NATS URL is configured.
type NoOpPublisher struct{}

func (NoOpPublisher) PublishEvent(*models.Event) error { return nil }
func (NoOpPublisher) Close()                           {}
