package announce

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/tickdown/go/internal/countdown"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Publisher delivers countdown lifecycle events to interested systems.
type Publisher interface {
	Publish(ev countdown.Event) error
	Close()
}

// NATSConfig holds connection settings for the NATS announcer.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultNATSConfig returns defaults matching a local NATS server.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: "countdown",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// NATSPublisher publishes lifecycle events to subjects of the form
// <prefix>.<key>.<event>, e.g. countdown.launch-day.expired.
type NATSPublisher struct {
	nc     *nats.Conn
	config NATSConfig
}

// NewNATSPublisher connects to NATS with reconnect handling.
func NewNATSPublisher(config NATSConfig) (*NATSPublisher, error) {
	opts := []nats.Option{
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	return &NATSPublisher{nc: nc, config: config}, nil
}

type envelope struct {
	EventID     string    `json:"eventId"`
	EventType   string    `json:"eventType"`
	Key         string    `json:"key"`
	SessionID   string    `json:"sessionId"`
	Timestamp   time.Time `json:"timestamp"`
	RemainingMS int64     `json:"remainingMs"`
	Detail      string    `json:"detail,omitempty"`
}

// Publish sends one lifecycle event, fire-and-forget.
func (p *NATSPublisher) Publish(ev countdown.Event) error {
	subject := fmt.Sprintf("%s.%s.%s",
		p.config.SubjectPrefix, subjectToken(ev.Key), strings.ToLower(string(ev.Type)))

	messageBytes, err := json.Marshal(envelope{
		EventID:     uuid.New().String(),
		EventType:   string(ev.Type),
		Key:         ev.Key,
		SessionID:   ev.SessionID,
		Timestamp:   ev.At,
		RemainingMS: ev.RemainingMS,
		Detail:      ev.Detail,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.nc.Publish(subject, messageBytes); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	log.Debug().
		Str("subject", subject).
		Str("event_type", string(ev.Type)).
		Int("size", len(messageBytes)).
		Msg("published countdown event")
	return nil
}

// Close drains the connection.
func (p *NATSPublisher) Close() {
	p.nc.Close()
}

// subjectToken makes a countdown key safe for use as a NATS subject token.
func subjectToken(key string) string {
	if key == "" {
		return "default"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', ' ', '*', '>':
			return '-'
		default:
			return r
		}
	}, key)
}

// NopPublisher discards events; used when no NATS URL is configured.
type NopPublisher struct{}

// Publish does nothing.
func (NopPublisher) Publish(ev countdown.Event) error { return nil }

// Close does nothing.
func (NopPublisher) Close() {}

// Attach subscribes a publisher to a session's lifecycle emitter. Publish
// failures are logged, never propagated into the countdown path.
func Attach(emitter *countdown.Emitter, p Publisher) {
	emitter.Subscribe(func(ev countdown.Event) {
		if err := p.Publish(ev); err != nil {
			log.Warn().Err(err).Str("event_type", string(ev.Type)).Msg("failed to announce event")
		}
	})
}
