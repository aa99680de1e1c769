// Package transport forwards booking events to other services over NATS.
package transport

import (
	"fmt"
	"time"

	"consultbot/internal/config"
	"consultbot/internal/events"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Publisher is the subset of *nats.Conn the bridge needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSBridge republishes every event from the in-process bus on
// <prefix>.<event_type>.
type NATSBridge struct {
	conn   *nats.Conn
	pub    Publisher
	prefix string
	logger *zerolog.Logger
}

func Connect(cfg config.NATSConfig, logger *zerolog.Logger) (*NATSBridge, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.Timeout(timeout),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.Info().Str("url", cfg.URL).Msg("Connected to NATS server")

	b := NewNATSBridge(conn, cfg.SubjectPrefix, logger)
	b.conn = conn
	return b, nil
}

func NewNATSBridge(pub Publisher, prefix string, logger *zerolog.Logger) *NATSBridge {
	return &NATSBridge{
		pub:    pub,
		prefix: prefix,
		logger: logger,
	}
}

// Subject returns the NATS subject for an event type.
func (b *NATSBridge) Subject(eventType string) string {
	if b.prefix == "" {
		return eventType
	}
	return b.prefix + "." + eventType
}

// Attach subscribes the bridge to every event on bus.
func (b *NATSBridge) Attach(bus *events.EventBus) {
	bus.SubscribeAll(b.Forward)
}

// Forward publishes the raw JSON payload of ev.
func (b *NATSBridge) Forward(ev *events.Event) error {
	subject := b.Subject(ev.Type)
	if err := b.pub.Publish(subject, ev.Payload); err != nil {
		b.logger.Error().Err(err).Str("subject", subject).Msg("NATS publish failed")
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	b.logger.Debug().Str("subject", subject).Int64("event_id", ev.ID).Msg("Event forwarded to NATS")
	return nil
}

// Close drains pending publishes and closes the connection.
func (b *NATSBridge) Close() error {
	if b.conn == nil {
		return nil
	}
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
		return err
	}
	b.logger.Info().Msg("NATS connection closed")
	return nil
}
