// Package redis provides invalidation broadcasts over Redis pub/sub.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/unifiedui/session-service/internal/core/events"
)

// Notifier implements events.Notifier with Redis pub/sub.
type Notifier struct {
	client  *goredis.Client
	channel string
	origin  string

	mu   sync.Mutex
	subs []*goredis.PubSub
}

var _ events.Notifier = (*Notifier)(nil)

// NewNotifier creates a notifier publishing on channel. origin identifies
// this instance so its own messages are skipped on receipt.
func NewNotifier(client *goredis.Client, channel, origin string) *Notifier {
	if channel == "" {
		channel = events.DefaultChannel
	}
	return &Notifier{
		client:  client,
		channel: channel,
		origin:  origin,
	}
}

// Publish broadcasts inv.
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
	if err := n.client.Publish(ctx, n.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish invalidation: %w", err)
	}
	return nil
}

// Subscribe starts delivering invalidations from other instances to handler.
// It returns once the subscription is confirmed by Redis.
func (n *Notifier) Subscribe(ctx context.Context, handler events.Handler) error {
	ps := n.client.Subscribe(ctx, n.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", n.channel, err)
	}

	n.mu.Lock()
	n.subs = append(n.subs, ps)
	n.mu.Unlock()

	ch := ps.Channel()
	go func() {
		for {
			select {
			case <-ctx.Done():
				_ = ps.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var inv events.Invalidation
				if err := json.Unmarshal([]byte(msg.Payload), &inv); err != nil {
					log.Warn().Err(err).Str("channel", msg.Channel).Msg("dropping malformed invalidation")
					continue
				}
				if inv.Origin == n.origin {
					continue
				}
				handler(ctx, inv)
			}
		}
	}()

	return nil
}

// Close stops every subscription. The client is left open.
func (n *Notifier) Close() error {
	n.mu.Lock()
	subs := n.subs
	n.subs = nil
	n.mu.Unlock()

	var firstErr error
	for _, ps := range subs {
		if err := ps.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
