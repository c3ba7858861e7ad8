// Package memory provides the in-process session store. It is replica-local
// and exists for single-instance deployments and as the legacy side of the
// dual store during migration.
package memory

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/unifiedui/session-service/internal/core/sessionstore"
)

// Config holds memory store configuration.
type Config struct {
	DefaultTTL      time.Duration
	CleanupInterval time.Duration
}

// Store implements sessionstore.Store on top of go-cache.
type Store struct {
	// mu serializes read-modify-write paths. go-cache locks each call on
	// its own, which is not enough for compare-and-swap.
	mu    sync.Mutex
	items *gocache.Cache

	// idxMu guards byUser. It is taken from the eviction hook, which go-cache
	// calls outside its own lock, so it must never be held while calling an
	// items method that evicts (Delete, DeleteExpired, Flush).
	idxMu  sync.Mutex
	byUser map[string]map[string]struct{}
}

var _ sessionstore.Store = (*Store)(nil)

// NewStore creates a new memory store.
func NewStore(cfg Config) *Store {
	defaultTTL := cfg.DefaultTTL
	if defaultTTL <= 0 {
		defaultTTL = gocache.NoExpiration
	}
	cleanup := cfg.CleanupInterval
	if cleanup <= 0 {
		cleanup = time.Minute
	}

	s := &Store{
		items:  gocache.New(defaultTTL, cleanup),
		byUser: make(map[string]map[string]struct{}),
	}
	s.items.OnEvicted(s.onEvicted)
	return s
}

func (s *Store) onEvicted(id string, v interface{}) {
	rec, ok := v.(*sessionstore.Record)
	if !ok {
		return
	}

	s.idxMu.Lock()
	defer s.idxMu.Unlock()

	// The janitor calls this after releasing go-cache's lock, so a Touch or
	// Create may already have put the ID back.
	if _, found := s.items.Get(id); found {
		return
	}
	s.unindexLocked(rec.UserID, id)
}

func (s *Store) index(userID, id string) {
	if userID == "" {
		return
	}
	s.idxMu.Lock()
	defer s.idxMu.Unlock()

	ids, ok := s.byUser[userID]
	if !ok {
		ids = make(map[string]struct{})
		s.byUser[userID] = ids
	}
	ids[id] = struct{}{}
}

func (s *Store) unindex(userID, id string) {
	s.idxMu.Lock()
	defer s.idxMu.Unlock()
	s.unindexLocked(userID, id)
}

func (s *Store) unindexLocked(userID, id string) {
	ids, ok := s.byUser[userID]
	if !ok {
		return
	}
	delete(ids, id)
	if len(ids) == 0 {
		delete(s.byUser, userID)
	}
}

func (s *Store) lookup(id string) (*sessionstore.Record, time.Time, bool) {
	v, exp, found := s.items.GetWithExpiration(id)
	if !found {
		return nil, time.Time{}, false
	}
	return v.(*sessionstore.Record), exp, true
}

func expiration(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return gocache.DefaultExpiration
	}
	return ttl
}

// Get returns a copy of the record, or nil if absent or expired.
func (s *Store) Get(ctx context.Context, id string) (*sessionstore.Record, error) {
	rec, exp, found := s.lookup(id)
	if !found {
		return nil, nil
	}
	out := rec.Clone()
	out.ExpiresAt = exp
	return out, nil
}

// Create inserts rec if the ID is free.
func (s *Store) Create(ctx context.Context, rec *sessionstore.Record, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := rec.Clone()
	stored.ExpiresAt = time.Time{}
	if stored.Version == 0 {
		stored.Version = 1
	}

	if err := s.items.Add(rec.ID, stored, expiration(ttl)); err != nil {
		return sessionstore.ErrExists
	}
	rec.Version = stored.Version
	s.index(rec.UserID, rec.ID)
	return nil
}

// Save replaces rec if the stored version matches.
func (s *Store) Save(ctx context.Context, rec *sessionstore.Record, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, _, found := s.lookup(rec.ID)
	if !found {
		return sessionstore.ErrNotFound
	}
	if cur.Version != rec.Version {
		return sessionstore.ErrVersionConflict
	}

	stored := rec.Clone()
	stored.ExpiresAt = time.Time{}
	stored.Version = cur.Version + 1

	s.items.Set(rec.ID, stored, expiration(ttl))
	rec.Version = stored.Version

	if cur.UserID != stored.UserID {
		s.unindex(cur.UserID, rec.ID)
	}
	s.index(stored.UserID, rec.ID)
	return nil
}

// Touch resets the TTL of a record.
func (s *Store) Touch(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, _, found := s.lookup(id)
	if !found {
		return false, nil
	}
	s.items.Set(id, cur, expiration(ttl))
	// The janitor may have evicted and unindexed it since lookup.
	s.index(cur.UserID, id)
	return true, nil
}

// Delete removes a record.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, _, found := s.lookup(id)
	if !found {
		// It may still sit in go-cache past its expiry; drop it so the
		// index does not hold on to it.
		s.items.Delete(id)
		return false, nil
	}
	s.items.Delete(id)
	// The eviction hook does this too; do it here so Delete does not depend
	// on the hook having been registered.
	s.unindex(cur.UserID, id)
	return true, nil
}

// ListByUser returns the IDs of the user's live sessions and prunes dead
// index entries.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]string, error) {
	s.idxMu.Lock()
	candidates := make([]string, 0, len(s.byUser[userID]))
	for id := range s.byUser[userID] {
		candidates = append(candidates, id)
	}
	s.idxMu.Unlock()

	live := make([]string, 0, len(candidates))
	for _, id := range candidates {
		rec, _, found := s.lookup(id)
		if found && rec.UserID == userID {
			live = append(live, id)
			continue
		}
		s.unindex(userID, id)
	}
	return live, nil
}

// DeleteByUser removes all of the user's sessions.
func (s *Store) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	ids, err := s.ListByUser(ctx, userID)
	if err != nil {
		return 0, err
	}

	var deleted int64
	for _, id := range ids {
		ok, err := s.Delete(ctx, id)
		if err != nil {
			return deleted, err
		}
		if ok {
			deleted++
		}
	}
	return deleted, nil
}

// Len returns the number of records, including expired ones the janitor
// has not yet removed.
func (s *Store) Len() int {
	return s.items.ItemCount()
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// Close drops every record.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items.Flush()

	s.idxMu.Lock()
	s.byUser = make(map[string]map[string]struct{})
	s.idxMu.Unlock()
	return nil
}
