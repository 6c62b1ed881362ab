// Package events publishes completed pipeline transitions so that clients
// and other services can move the user to the next screen.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Type names a transition.
type Type string

const (
	ApplicationCommitted Type = "application.committed"
	PaymentApproved      Type = "payment.approved"
	PaymentFailed        Type = "payment.failed"
	SessionLogin         Type = "session.login"
	SessionLogout        Type = "session.logout"
)

// Event is a completed transition.
type Event struct {
	Type          Type      `json:"type"`
	UserID        string    `json:"userId"`
	ApplicationID string    `json:"applicationId,omitempty"`
	PassNumber    string    `json:"passNumber,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	At            time.Time `json:"at"`
}

// Publisher delivers events. Publishing is best effort; callers log failures
// and never roll back a transition because of them.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// LogPublisher writes events to the log only.
type LogPublisher struct {
	log *zap.Logger
}

// NewLogPublisher returns a publisher writing events to log.
func NewLogPublisher(log *zap.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

// Publish logs e at info level.
func (p *LogPublisher) Publish(_ context.Context, e Event) error {
	p.log.Info("event",
		zap.String("type", string(e.Type)),
		zap.String("user_id", e.UserID),
		zap.String("application_id", e.ApplicationID),
		zap.String("pass_number", e.PassNumber),
	)
	return nil
}

// Conn is the part of *nats.Conn used by NATSPublisher.
type Conn interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher publishes each event as JSON on <prefix>.<type>.
type NATSPublisher struct {
	conn   Conn
	prefix string
	log    *zap.Logger
}

// NewNATSPublisher returns a publisher on conn. An empty prefix publishes on
// the bare event type.
func NewNATSPublisher(conn Conn, prefix string, log *zap.Logger) *NATSPublisher {
	return &NATSPublisher{conn: conn, prefix: prefix, log: log}
}

// Subject returns the subject an event of type t is published on.
func (p *NATSPublisher) Subject(t Type) string {
	if p.prefix == "" {
		return string(t)
	}
	return p.prefix + "." + string(t)
}

// Publish sends e as JSON on Subject(e.Type).
func (p *NATSPublisher) Publish(_ context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := p.conn.Publish(p.Subject(e.Type), data); err != nil {
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}
	p.log.Debug("event published", zap.String("subject", p.Subject(e.Type)))
	return nil
}

// ConnectNATS dials the server at url.
func ConnectNATS(url string, log *zap.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("digitalpass"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return nc, nil
}
