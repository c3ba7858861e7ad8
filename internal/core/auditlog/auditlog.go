// Package auditlog defines the session audit trail interface.
package auditlog

import (
	"context"

	"github.com/unifiedui/session-service/internal/domain/models"
)

// DefaultListLimit is used when List is called with a non-positive limit.
const DefaultListLimit = 50

// Logger records session lifecycle events.
type Logger interface {
	// Record appends an event. ID and OccurredAt are filled if empty.
	Record(ctx context.Context, event *models.SessionEvent) error

	// List returns the newest events for a user, newest first.
	List(ctx context.Context, userID string, limit int) ([]*models.SessionEvent, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend's resources.
	Close(ctx context.Context) error
}
