// Package events defines the cross-replica invalidation channel.
package events

import (
	"context"
	"time"
)

// Invalidation tells peers that a session (or every session of a user)
// changed and any local copy must be dropped.
type Invalidation struct {
	// SessionID is empty for a user-wide invalidation.
	SessionID string    `json:"sessionId,omitempty"`
	UserID    string    `json:"userId,omitempty"`
	Origin    string    `json:"origin"`
	At        time.Time `json:"at"`
}

// Handler receives invalidations published by other instances.
type Handler func(ctx context.Context, inv Invalidation)

// Notifier publishes and receives invalidations.
type Notifier interface {
	// Publish broadcasts an invalidation to every subscriber.
	Publish(ctx context.Context, inv Invalidation) error

	// Subscribe registers handler until ctx is done or the notifier is closed.
	// Invalidations whose Origin matches this instance are not delivered.
	Subscribe(ctx context.Context, handler Handler) error

	// Close stops every subscription and releases the connection.
	Close() error
}
