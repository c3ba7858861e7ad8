// Package mocks provides mock implementations for testing.
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/unifiedui/session-service/internal/core/sessionstore"
)

// MockStore is a mock implementation of sessionstore.Store.
type MockStore struct {
	mock.Mock
}

var _ sessionstore.Store = (*MockStore)(nil)

// Get retrieves a record.
func (m *MockStore) Get(ctx context.Context, id string) (*sessionstore.Record, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sessionstore.Record), args.Error(1)
}

// Create stores a new record.
func (m *MockStore) Create(ctx context.Context, rec *sessionstore.Record, ttl time.Duration) error {
	args := m.Called(ctx, rec, ttl)
	return args.Error(0)
}

// Save replaces a record if its version matches.
func (m *MockStore) Save(ctx context.Context, rec *sessionstore.Record, ttl time.Duration) error {
	args := m.Called(ctx, rec, ttl)
	return args.Error(0)
}

// Touch extends a record's TTL.
func (m *MockStore) Touch(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, id, ttl)
	return args.Bool(0), args.Error(1)
}

// Delete removes a record.
func (m *MockStore) Delete(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

// ListByUser lists a user's session IDs.
func (m *MockStore) ListByUser(ctx context.Context, userID string) ([]string, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// DeleteByUser removes a user's sessions.
func (m *MockStore) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

// Ping checks the backend.
func (m *MockStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Close releases the backend.
func (m *MockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
