// Package noop provides an audit logger that keeps nothing.
package noop

import (
	"context"

	"github.com/unifiedui/session-service/internal/core/auditlog"
	"github.com/unifiedui/session-service/internal/domain/models"
)

// Logger implements auditlog.Logger and discards every event.
type Logger struct{}

var _ auditlog.Logger = Logger{}

// NewLogger creates a no-op audit logger.
func NewLogger() Logger {
	return Logger{}
}

// Record discards the event.
func (Logger) Record(context.Context, *models.SessionEvent) error { return nil }

// List always returns an empty list.
func (Logger) List(context.Context, string, int) ([]*models.SessionEvent, error) {
	return []*models.SessionEvent{}, nil
}

// Ping always succeeds.
func (Logger) Ping(context.Context) error { return nil }

// Close does nothing.
func (Logger) Close(context.Context) error { return nil }
