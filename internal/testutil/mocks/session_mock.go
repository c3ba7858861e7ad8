package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/unifiedui/session-service/internal/domain/models"
	"github.com/unifiedui/session-service/internal/services/session"
)

// MockSessionService is a mock implementation of session.Service.
type MockSessionService struct {
	mock.Mock
}

var _ session.Service = (*MockSessionService)(nil)

func (m *MockSessionService) sessionResult(args mock.Arguments) (*models.Session, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Session), args.Error(1)
}

// Create starts a session.
func (m *MockSessionService) Create(ctx context.Context, params *session.CreateParams) (*models.Session, error) {
	return m.sessionResult(m.Called(ctx, params))
}

// Get returns a session.
func (m *MockSessionService) Get(ctx context.Context, id string) (*models.Session, error) {
	return m.sessionResult(m.Called(ctx, id))
}

// Update changes a session.
func (m *MockSessionService) Update(ctx context.Context, id string, params *session.UpdateParams) (*models.Session, error) {
	return m.sessionResult(m.Called(ctx, id, params))
}

// Refresh extends a session.
func (m *MockSessionService) Refresh(ctx context.Context, id string) (*models.Session, error) {
	return m.sessionResult(m.Called(ctx, id))
}

// Revoke ends a session.
func (m *MockSessionService) Revoke(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// RevokeUser ends a user's sessions.
func (m *MockSessionService) RevokeUser(ctx context.Context, userID string) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

// ListUser lists a user's sessions.
func (m *MockSessionService) ListUser(ctx context.Context, userID string) ([]*models.Session, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Session), args.Error(1)
}

// History lists a user's audit events.
func (m *MockSessionService) History(ctx context.Context, userID string, limit int) ([]*models.SessionEvent, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.SessionEvent), args.Error(1)
}

// IdleTTL returns the idle timeout.
func (m *MockSessionService) IdleTTL() time.Duration {
	args := m.Called()
	return args.Get(0).(time.Duration)
}
