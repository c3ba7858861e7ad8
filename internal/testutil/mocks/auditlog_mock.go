package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/unifiedui/session-service/internal/domain/models"
)

// MockAuditLogger is a mock implementation of auditlog.Logger.
type MockAuditLogger struct {
	mock.Mock
}

// Record appends an event.
func (m *MockAuditLogger) Record(ctx context.Context, event *models.SessionEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// List returns a user's events.
func (m *MockAuditLogger) List(ctx context.Context, userID string, limit int) ([]*models.SessionEvent, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.SessionEvent), args.Error(1)
}

// Ping checks the backend.
func (m *MockAuditLogger) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Close releases the backend.
func (m *MockAuditLogger) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
