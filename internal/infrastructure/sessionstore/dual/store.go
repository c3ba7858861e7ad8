// Package dual provides the migration store: a shared primary (Redis) that
// is authoritative, and a replica-local secondary (memory) that is mirrored
// on a best-effort basis so a rollback to memory-only keeps recent sessions.
//
// Records written only to the secondary before the migration started are
// promoted into the primary the first time they are read. Copies the store
// mirrored itself are never promoted: a primary miss for one of them means
// the session was revoked or expired, possibly by another replica.
package dual

import (
	"context"
	"errors"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/unifiedui/session-service/internal/core/events"
	"github.com/unifiedui/session-service/internal/core/sessionstore"
)

// Config holds the dual store dependencies.
type Config struct {
	Primary   sessionstore.Store
	Secondary sessionstore.Store

	// Notifier broadcasts invalidations so peers drop their secondary copy.
	// Optional.
	Notifier events.Notifier

	Logger *zerolog.Logger
}

// Store implements sessionstore.Store over two stores.
type Store struct {
	primary   sessionstore.Store
	secondary sessionstore.Store
	notifier  events.Notifier
	logger    zerolog.Logger

	// mirrored holds the IDs whose secondary copy was written by this store,
	// with the same TTL as the copy.
	mirrored *gocache.Cache
}

var _ sessionstore.Store = (*Store)(nil)

// NewStore creates a new dual store.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Primary == nil {
		return nil, fmt.Errorf("primary store is required")
	}
	if cfg.Secondary == nil {
		return nil, fmt.Errorf("secondary store is required")
	}

	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &Store{
		primary:   cfg.Primary,
		secondary: cfg.Secondary,
		notifier:  cfg.Notifier,
		logger:    logger.With().Str("component", "dual_store").Logger(),
		mirrored:  gocache.New(gocache.NoExpiration, time.Minute),
	}, nil
}

// Listen subscribes to peer invalidations and drops the matching secondary
// copies. It returns once the subscription is established.
func (s *Store) Listen(ctx context.Context) error {
	if s.notifier == nil {
		return nil
	}
	return s.notifier.Subscribe(ctx, s.handleInvalidation)
}

func (s *Store) handleInvalidation(ctx context.Context, inv events.Invalidation) {
	switch {
	case inv.SessionID != "":
		s.mirrored.Delete(inv.SessionID)
		if _, err := s.secondary.Delete(ctx, inv.SessionID); err != nil {
			s.logger.Warn().Err(err).Str("session_id", inv.SessionID).Msg("failed to drop invalidated session")
		}
	case inv.UserID != "":
		if _, err := s.secondary.DeleteByUser(ctx, inv.UserID); err != nil {
			s.logger.Warn().Err(err).Str("user_id", inv.UserID).Msg("failed to drop invalidated user sessions")
		}
	}
}

func (s *Store) publish(ctx context.Context, inv events.Invalidation) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(ctx, inv); err != nil {
		s.logger.Warn().Err(err).Str("session_id", inv.SessionID).Str("user_id", inv.UserID).Msg("failed to publish invalidation")
	}
}

func markTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return gocache.NoExpiration
	}
	return ttl
}

func (s *Store) mark(id string, ttl time.Duration) {
	s.mirrored.Set(id, struct{}{}, markTTL(ttl))
}

func (s *Store) isMirror(id string) bool {
	_, ok := s.mirrored.Get(id)
	return ok
}

// mirror overwrites the secondary copy with rec.
func (s *Store) mirror(ctx context.Context, rec *sessionstore.Record, ttl time.Duration) {
	if _, err := s.secondary.Delete(ctx, rec.ID); err != nil {
		s.logger.Warn().Err(err).Str("session_id", rec.ID).Msg("failed to mirror session")
		return
	}
	if err := s.secondary.Create(ctx, rec.Clone(), ttl); err != nil {
		s.logger.Warn().Err(err).Str("session_id", rec.ID).Msg("failed to mirror session")
	}
	// Marked after the write so the mark never expires before the copy.
	s.mark(rec.ID, ttl)
}

// legacy returns the secondary copy of id if it predates the dual store.
// A mirrored copy whose primary record is gone is stale and dropped.
func (s *Store) legacy(ctx context.Context, id string) (*sessionstore.Record, error) {
	if s.isMirror(id) {
		if _, err := s.secondary.Delete(ctx, id); err != nil {
			s.logger.Warn().Err(err).Str("session_id", id).Msg("failed to drop stale mirrored session")
		}
		s.mirrored.Delete(id)
		return nil, nil
	}
	return s.secondary.Get(ctx, id)
}

// promote copies a secondary-only record into the primary with whatever
// TTL it has left. Losing the race to another promoter is fine.
func (s *Store) promote(ctx context.Context, rec *sessionstore.Record) (*sessionstore.Record, error) {
	ttl := time.Duration(0)
	if !rec.ExpiresAt.IsZero() {
		ttl = time.Until(rec.ExpiresAt)
		if ttl <= 0 {
			return nil, nil
		}
	}

	err := s.primary.Create(ctx, rec.Clone(), ttl)
	switch {
	case err == nil:
		s.mark(rec.ID, ttl)
		s.logger.Debug().Str("session_id", rec.ID).Msg("promoted session to primary")
		return rec, nil
	case errors.Is(err, sessionstore.ErrExists):
		return s.primary.Get(ctx, rec.ID)
	default:
		return nil, fmt.Errorf("failed to promote session %s: %w", rec.ID, err)
	}
}

// Get reads the primary and falls back to the secondary.
func (s *Store) Get(ctx context.Context, id string) (*sessionstore.Record, error) {
	rec, err := s.primary.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		return rec, nil
	}

	legacy, err := s.legacy(ctx, id)
	if err != nil || legacy == nil {
		return nil, err
	}
	return s.promote(ctx, legacy)
}

// Create writes the primary, then the secondary.
func (s *Store) Create(ctx context.Context, rec *sessionstore.Record, ttl time.Duration) error {
	if err := s.primary.Create(ctx, rec, ttl); err != nil {
		return err
	}
	if err := s.secondary.Create(ctx, rec.Clone(), ttl); err != nil && !errors.Is(err, sessionstore.ErrExists) {
		s.logger.Warn().Err(err).Str("session_id", rec.ID).Msg("failed to mirror new session")
	}
	s.mark(rec.ID, ttl)
	return nil
}

// Save writes the primary, promoting a secondary-only record first, then
// mirrors the result and tells peers to drop their copies.
func (s *Store) Save(ctx context.Context, rec *sessionstore.Record, ttl time.Duration) error {
	err := s.primary.Save(ctx, rec, ttl)
	if errors.Is(err, sessionstore.ErrNotFound) {
		legacy, gerr := s.legacy(ctx, rec.ID)
		if gerr != nil {
			return gerr
		}
		if legacy == nil {
			return sessionstore.ErrNotFound
		}
		if _, perr := s.promote(ctx, legacy); perr != nil {
			return perr
		}
		err = s.primary.Save(ctx, rec, ttl)
	}
	if err != nil {
		return err
	}

	s.mirror(ctx, rec, ttl)
	s.publish(ctx, events.Invalidation{SessionID: rec.ID, UserID: rec.UserID})
	return nil
}

// Touch extends both copies. A mirrored copy alone does not count as live.
func (s *Store) Touch(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	ok, err := s.primary.Touch(ctx, id, ttl)
	if err != nil {
		return false, err
	}

	mirror := s.isMirror(id)
	if !ok && mirror {
		if _, err := s.legacy(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}

	legacyOK, lerr := s.secondary.Touch(ctx, id, ttl)
	if lerr != nil {
		s.logger.Warn().Err(lerr).Str("session_id", id).Msg("failed to touch mirrored session")
	}
	if mirror && legacyOK {
		s.mark(id, ttl)
	}
	return ok || legacyOK, nil
}

// Delete removes both copies and tells peers.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	ok, err := s.primary.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	legacyOK, err := s.secondary.Delete(ctx, id)
	if err != nil {
		return ok, err
	}
	s.mirrored.Delete(id)
	s.publish(ctx, events.Invalidation{SessionID: id})
	return ok || legacyOK, nil
}

// ListByUser returns the union of both stores.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.primary.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	legacy, err := s.secondary.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return union(ids, legacy), nil
}

// DeleteByUser removes the user's sessions from both stores and tells peers.
// The count is of distinct sessions.
func (s *Store) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	ids, err := s.ListByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	if _, err := s.primary.DeleteByUser(ctx, userID); err != nil {
		return 0, err
	}
	if _, err := s.secondary.DeleteByUser(ctx, userID); err != nil {
		return 0, err
	}
	for _, id := range ids {
		s.mirrored.Delete(id)
	}
	s.publish(ctx, events.Invalidation{UserID: userID})
	return int64(len(ids)), nil
}

// Ping checks the primary only; the secondary is in-process.
func (s *Store) Ping(ctx context.Context) error {
	return s.primary.Ping(ctx)
}

// Close closes both stores.
func (s *Store) Close() error {
	return errors.Join(s.primary.Close(), s.secondary.Close())
}

func union(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, id := range list {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
