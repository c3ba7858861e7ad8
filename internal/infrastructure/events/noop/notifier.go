// Package noop provides a notifier that broadcasts nothing, for single
// instance deployments.
package noop

import (
	"context"

	"github.com/unifiedui/session-service/internal/core/events"
)

// Notifier implements events.Notifier and drops everything.
type Notifier struct{}

var _ events.Notifier = Notifier{}

// NewNotifier creates a no-op notifier.
func NewNotifier() Notifier {
	return Notifier{}
}

// Publish does nothing.
func (Notifier) Publish(context.Context, events.Invalidation) error { return nil }

// Subscribe does nothing.
func (Notifier) Subscribe(context.Context, events.Handler) error { return nil }

// Close does nothing.
func (Notifier) Close() error { return nil }
