// Package sessionstore defines the session repository contract shared by
// every storage backend.
package sessionstore

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors returned by Store implementations.
var (
	// ErrExists is returned by Create when the ID is already taken.
	ErrExists = errors.New("sessionstore: session already exists")

	// ErrNotFound is returned by Save when the record is absent or expired.
	ErrNotFound = errors.New("sessionstore: session not found")

	// ErrVersionConflict is returned by Save when the stored version moved on.
	ErrVersionConflict = errors.New("sessionstore: version conflict")
)

// Record is the unit of storage. Payload is opaque to the store.
type Record struct {
	ID      string
	UserID  string
	Version int64
	Payload []byte

	// ExpiresAt is filled on read from the backend's remaining TTL.
	// It is ignored on write.
	ExpiresAt time.Time
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Payload = append([]byte(nil), r.Payload...)
	return &c
}

// Store is the session repository. Single-record operations are
// linearizable within one backend; the per-user index is eventually
// consistent and pruned on ListByUser.
type Store interface {
	// Get returns the record, or nil if it does not exist or has expired.
	Get(ctx context.Context, id string) (*Record, error)

	// Create inserts rec if its ID is free, otherwise returns ErrExists.
	// A zero Version is stored as 1.
	Create(ctx context.Context, rec *Record, ttl time.Duration) error

	// Save replaces rec if the stored version equals rec.Version and bumps
	// the version by one, updating rec.Version on success.
	// Returns ErrNotFound or ErrVersionConflict.
	Save(ctx context.Context, rec *Record, ttl time.Duration) error

	// Touch resets the TTL of a record without rewriting it.
	// Returns false if the record does not exist.
	Touch(ctx context.Context, id string, ttl time.Duration) (bool, error)

	// Delete removes a record. Returns true if it existed.
	Delete(ctx context.Context, id string) (bool, error)

	// ListByUser returns the IDs of the user's live sessions.
	ListByUser(ctx context.Context, userID string) ([]string, error)

	// DeleteByUser removes all of the user's sessions and returns how many
	// were removed.
	DeleteByUser(ctx context.Context, userID string) (int64, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend's resources.
	Close() error
}
