// Package nats provides invalidation broadcasts over a NATS subject.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/unifiedui/session-service/internal/core/events"
)

// Config holds NATS connection settings.
type Config struct {
	URL           string
	Name          string
	Subject       string
	Origin        string
	ReconnectWait time.Duration
	MaxReconnects int
}

// DefaultConfig returns the defaults used when fields are left empty.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Name:          "session-service",
		Subject:       events.DefaultChannel,
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// Notifier implements events.Notifier with NATS core pub/sub.
type Notifier struct {
	conn    *nats.Conn
	subject string
	origin  string

	mu   sync.Mutex
	subs []*nats.Subscription
}

var _ events.Notifier = (*Notifier)(nil)

// NewNotifier connects to NATS.
func NewNotifier(cfg Config) (*Notifier, error) {
	def := DefaultConfig()
	if cfg.URL == "" {
		cfg.URL = def.URL
	}
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.Subject == "" {
		cfg.Subject = def.Subject
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = def.ReconnectWait
	}
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = def.MaxReconnects
	}

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &Notifier{
		conn:    nc,
		subject: cfg.Subject,
		origin:  cfg.Origin,
	}, nil
}

// Publish broadcasts inv on the subject.
func (n *Notifier) Publish(ctx context.Context, inv events.Invalidation) error {
	if inv.Origin == "" {
		inv.Origin = n.origin
	}
	if inv.At.IsZero() {
		inv.At = time.Now().UTC()
	}

	data, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("failed to encode invalidation: %w", err)
	}
	if err := n.conn.Publish(n.subject, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", n.subject, err)
	}
	return nil
}

// Subscribe delivers invalidations from other instances to handler until
// ctx is done.
func (n *Notifier) Subscribe(ctx context.Context, handler events.Handler) error {
	sub, err := n.conn.Subscribe(n.subject, func(msg *nats.Msg) {
		var inv events.Invalidation
		if err := json.Unmarshal(msg.Data, &inv); err != nil {
			log.Warn().Err(err).Str("subject", msg.Subject).Msg("dropping malformed invalidation")
			return
		}
		if inv.Origin == n.origin {
			return
		}
		handler(ctx, inv)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", n.subject, err)
	}

	n.mu.Lock()
	n.subs = append(n.subs, sub)
	n.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()

	return nil
}

// Close drains subscriptions and closes the connection.
func (n *Notifier) Close() error {
	n.mu.Lock()
	subs := n.subs
	n.subs = nil
	n.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Unsubscribe()
	}
	n.conn.Close()
	return nil
}
