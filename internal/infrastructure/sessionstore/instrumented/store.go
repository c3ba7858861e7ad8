// Package instrumented wraps a session store with Prometheus metrics.
package instrumented

import (
	"context"
	"errors"
	"time"

	"github.com/unifiedui/session-service/internal/core/sessionstore"
	"github.com/unifiedui/session-service/internal/metrics"
)

// Store records a counter and a latency sample for every call to the
// wrapped store.
type Store struct {
	next    sessionstore.Store
	backend string
}

var _ sessionstore.Store = (*Store)(nil)

// Wrap instruments next under the given backend label.
func Wrap(next sessionstore.Store, backend string) *Store {
	return &Store{next: next, backend: backend}
}

// Unwrap returns the wrapped store.
func (s *Store) Unwrap() sessionstore.Store {
	return s.next
}

func (s *Store) observe(op string, start time.Time, result string) {
	metrics.StoreLatency.WithLabelValues(s.backend, op).Observe(time.Since(start).Seconds())
	metrics.StoreOperations.WithLabelValues(s.backend, op, result).Inc()
}

func result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, sessionstore.ErrNotFound):
		return "miss"
	case errors.Is(err, sessionstore.ErrVersionConflict):
		return "conflict"
	case errors.Is(err, sessionstore.ErrExists):
		return "exists"
	default:
		return "error"
	}
}

func found(ok bool, err error) string {
	if err == nil && !ok {
		return "miss"
	}
	return result(err)
}

// Get implements sessionstore.Store.
func (s *Store) Get(ctx context.Context, id string) (*sessionstore.Record, error) {
	start := time.Now()
	rec, err := s.next.Get(ctx, id)
	s.observe("get", start, found(rec != nil, err))
	return rec, err
}

// Create implements sessionstore.Store.
func (s *Store) Create(ctx context.Context, rec *sessionstore.Record, ttl time.Duration) error {
	start := time.Now()
	err := s.next.Create(ctx, rec, ttl)
	s.observe("create", start, result(err))
	return err
}

// Save implements sessionstore.Store.
func (s *Store) Save(ctx context.Context, rec *sessionstore.Record, ttl time.Duration) error {
	start := time.Now()
	err := s.next.Save(ctx, rec, ttl)
	s.observe("save", start, result(err))
	return err
}

// Touch implements sessionstore.Store.
func (s *Store) Touch(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	start := time.Now()
	ok, err := s.next.Touch(ctx, id, ttl)
	s.observe("touch", start, found(ok, err))
	return ok, err
}

// Delete implements sessionstore.Store.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	start := time.Now()
	ok, err := s.next.Delete(ctx, id)
	s.observe("delete", start, found(ok, err))
	return ok, err
}

// ListByUser implements sessionstore.Store.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]string, error) {
	start := time.Now()
	ids, err := s.next.ListByUser(ctx, userID)
	s.observe("list_by_user", start, result(err))
	return ids, err
}

// DeleteByUser implements sessionstore.Store.
func (s *Store) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	start := time.Now()
	n, err := s.next.DeleteByUser(ctx, userID)
	s.observe("delete_by_user", start, result(err))
	return n, err
}

// Ping implements sessionstore.Store.
func (s *Store) Ping(ctx context.Context) error {
	start := time.Now()
	err := s.next.Ping(ctx)
	s.observe("ping", start, result(err))
	return err
}

// Close implements sessionstore.Store.
func (s *Store) Close() error {
	return s.next.Close()
}
