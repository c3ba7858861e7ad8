// Package session implements the session lifecycle on top of a
// sessionstore.Store: creation, sliding idle expiry, absolute expiry,
// optimistic updates, revocation and the audit trail.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/unifiedui/session-service/internal/core/auditlog"
	"github.com/unifiedui/session-service/internal/core/sessionstore"
	domainerrors "github.com/unifiedui/session-service/internal/domain/errors"
	"github.com/unifiedui/session-service/internal/domain/models"
	"github.com/unifiedui/session-service/internal/infrastructure/auditlog/noop"
	"github.com/unifiedui/session-service/internal/metrics"
	"github.com/unifiedui/session-service/internal/pkg/encryption"
)

const (
	// DefaultIdleTTL is how long a session survives without activity.
	DefaultIdleTTL = 30 * time.Minute

	// DefaultAbsoluteTTL is the hard cap on a session's lifetime.
	DefaultAbsoluteTTL = 24 * time.Hour

	// maxUpdateAttempts bounds the retry loop of unversioned updates.
	maxUpdateAttempts = 3
)

// CreateParams describes a new session.
type CreateParams struct {
	UserID    string
	TenantID  string
	Values    map[string]interface{}
	ClientIP  string
	UserAgent string
}

// UpdateParams describes a change to a session's values.
// Keys in Unset are removed after Set is applied.
type UpdateParams struct {
	Set   map[string]interface{}
	Unset []string

	// Version, when set, must match the stored version or the update fails
	// with a conflict. When nil the update is retried on conflicts.
	Version *int64
}

// Service manages user sessions.
type Service interface {
	// Create starts a new session for a user.
	Create(ctx context.Context, params *CreateParams) (*models.Session, error)

	// Get returns a live session and slides its idle expiry.
	Get(ctx context.Context, id string) (*models.Session, error)

	// Update changes a session's values.
	Update(ctx context.Context, id string, params *UpdateParams) (*models.Session, error)

	// Refresh marks the session as seen now and extends its idle expiry.
	Refresh(ctx context.Context, id string) (*models.Session, error)

	// Revoke ends a session. Revoking an unknown session is not an error.
	Revoke(ctx context.Context, id string) error

	// RevokeUser ends every session of a user and returns how many ended.
	RevokeUser(ctx context.Context, userID string) (int64, error)

	// ListUser returns a user's live sessions, oldest first.
	ListUser(ctx context.Context, userID string) ([]*models.Session, error)

	// History returns a user's audit events, newest first.
	History(ctx context.Context, userID string, limit int) ([]*models.SessionEvent, error)

	// IdleTTL returns the configured idle timeout.
	IdleTTL() time.Duration
}

// Config holds the configuration for the session service.
type Config struct {
	Store     sessionstore.Store
	Encryptor encryption.Encryptor

	// Audit is optional; events are dropped when nil.
	Audit auditlog.Logger

	IdleTTL     time.Duration
	AbsoluteTTL time.Duration

	// MaxPerUser caps concurrent sessions per user. Zero means unlimited.
	MaxPerUser int

	// Instance is recorded on audit events.
	Instance string

	Clock  func() time.Time
	Logger *zerolog.Logger
}

type service struct {
	store       sessionstore.Store
	encryptor   encryption.Encryptor
	audit       auditlog.Logger
	idleTTL     time.Duration
	absoluteTTL time.Duration
	maxPerUser  int
	instance    string
	now         func() time.Time
	logger      zerolog.Logger
}

// NewService creates a new session service.
func NewService(cfg *Config) (Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if cfg.Encryptor == nil {
		return nil, fmt.Errorf("encryptor is required")
	}
	if cfg.MaxPerUser < 0 {
		return nil, fmt.Errorf("max sessions per user must not be negative")
	}

	idleTTL := cfg.IdleTTL
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	absoluteTTL := cfg.AbsoluteTTL
	if absoluteTTL <= 0 {
		absoluteTTL = DefaultAbsoluteTTL
	}
	if idleTTL > absoluteTTL {
		idleTTL = absoluteTTL
	}

	var audit auditlog.Logger = noop.NewLogger()
	if cfg.Audit != nil {
		audit = cfg.Audit
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &service{
		store:       cfg.Store,
		encryptor:   cfg.Encryptor,
		audit:       audit,
		idleTTL:     idleTTL,
		absoluteTTL: absoluteTTL,
		maxPerUser:  cfg.MaxPerUser,
		instance:    cfg.Instance,
		now:         func() time.Time { return clock().UTC() },
		logger:      logger.With().Str("component", "session_service").Logger(),
	}, nil
}

func (s *service) IdleTTL() time.Duration {
	return s.idleTTL
}

// Create starts a new session. When the user is at the per-user limit the
// least recently seen sessions are evicted first.
func (s *service) Create(ctx context.Context, params *CreateParams) (*models.Session, error) {
	if params == nil || params.UserID == "" {
		return nil, domainerrors.NewValidationError("userId is required", "")
	}

	if s.maxPerUser > 0 {
		if err := s.enforceLimit(ctx, params.UserID); err != nil {
			return nil, err
		}
	}

	now := s.now()
	sess := models.NewSession(uuid.NewString(), params.UserID, params.TenantID, params.Values, now, s.absoluteTTL)
	sess.ClientIP = params.ClientIP
	sess.UserAgent = params.UserAgent

	ttl := sess.StoreTTL(now, s.idleTTL)
	payload, err := s.seal(sess)
	if err != nil {
		return nil, domainerrors.NewInternalError("failed to seal session", err)
	}

	rec := &sessionstore.Record{ID: sess.ID, UserID: sess.UserID, Payload: payload}
	if err := s.store.Create(ctx, rec, ttl); err != nil {
		if errors.Is(err, sessionstore.ErrExists) {
			return nil, domainerrors.NewConflictError("session id already in use", sess.ID)
		}
		return nil, storeError(err)
	}

	sess.Version = rec.Version
	sess.IdleExpiresAt = now.Add(ttl)

	metrics.SessionsCreated.Inc()
	s.record(ctx, models.EventCreated, sess.ID, sess.UserID, sess.TenantID, "")
	s.logger.Debug().Str("session_id", sess.ID).Str("user_id", sess.UserID).Msg("session created")

	return sess, nil
}

// enforceLimit evicts the user's least recently seen sessions until one
// more fits.
func (s *service) enforceLimit(ctx context.Context, userID string) error {
	live, err := s.ListUser(ctx, userID)
	if err != nil {
		return err
	}

	excess := len(live) - s.maxPerUser + 1
	if excess <= 0 {
		return nil
	}

	sort.SliceStable(live, func(i, j int) bool {
		return live[i].LastSeenAt.Before(live[j].LastSeenAt)
	})

	for _, victim := range live[:excess] {
		deleted, err := s.store.Delete(ctx, victim.ID)
		if err != nil {
			return storeError(err)
		}
		if deleted {
			metrics.SessionsRevoked.WithLabelValues(models.EventEvicted).Inc()
			s.record(ctx, models.EventEvicted, victim.ID, victim.UserID, victim.TenantID, "session limit reached")
		}
	}
	return nil
}

// Get returns the session and slides its idle expiry. The payload is not
// rewritten.
func (s *service) Get(ctx context.Context, id string) (*models.Session, error) {
	sess, _, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	ttl := sess.StoreTTL(now, s.idleTTL)
	ok, err := s.store.Touch(ctx, id, ttl)
	if err != nil {
		return nil, storeError(err)
	}
	if !ok {
		// Gone between the read and the touch.
		return nil, domainerrors.NewNotFoundError("session", id)
	}

	sess.IdleExpiresAt = now.Add(ttl)
	return sess, nil
}

// load reads and unseals a live session. Unreadable sessions are removed
// and reported as missing; sessions past their absolute expiry are removed
// and reported as expired.
func (s *service) load(ctx context.Context, id string) (*models.Session, *sessionstore.Record, error) {
	if id == "" {
		return nil, nil, domainerrors.NewNotFoundError("session", id)
	}

	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, nil, storeError(err)
	}
	if rec == nil {
		return nil, nil, domainerrors.NewNotFoundError("session", id)
	}

	sess, err := s.unseal(rec)
	if err != nil {
		s.logger.Warn().Err(err).Str("session_id", id).Msg("dropping unreadable session")
		if _, derr := s.store.Delete(ctx, id); derr != nil {
			s.logger.Warn().Err(derr).Str("session_id", id).Msg("failed to drop unreadable session")
		}
		metrics.SessionsRevoked.WithLabelValues("unreadable").Inc()
		return nil, nil, domainerrors.NewNotFoundError("session", id)
	}

	if sess.IsExpired(s.now()) {
		deleted, derr := s.store.Delete(ctx, id)
		if derr != nil {
			return nil, nil, storeError(derr)
		}
		if deleted {
			metrics.SessionsRevoked.WithLabelValues(models.EventExpired).Inc()
			s.record(ctx, models.EventExpired, sess.ID, sess.UserID, sess.TenantID, "absolute lifetime reached")
		}
		return nil, nil, domainerrors.NewSessionExpiredError(id)
	}

	return sess, rec, nil
}

// Update applies params with a read-modify-write.
func (s *service) Update(ctx context.Context, id string, params *UpdateParams) (*models.Session, error) {
	if params == nil {
		params = &UpdateParams{}
	}
	return s.mutate(ctx, id, params.Version, func(sess *models.Session) {
		for k, v := range params.Set {
			sess.Values[k] = v
		}
		for _, k := range params.Unset {
			delete(sess.Values, k)
		}
	})
}

// Refresh re-saves the session with LastSeenAt set to now.
func (s *service) Refresh(ctx context.Context, id string) (*models.Session, error) {
	return s.mutate(ctx, id, nil, func(*models.Session) {})
}

func (s *service) mutate(ctx context.Context, id string, expected *int64, apply func(*models.Session)) (*models.Session, error) {
	attempts := maxUpdateAttempts
	if expected != nil {
		attempts = 1
	}

	for attempt := 1; ; attempt++ {
		sess, rec, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		if expected != nil && *expected != rec.Version {
			return nil, versionConflict(id, *expected, rec.Version)
		}

		now := s.now()
		if sess.Values == nil {
			sess.Values = make(map[string]interface{})
		}
		apply(sess)
		sess.UpdatedAt = now
		sess.LastSeenAt = now

		payload, err := s.seal(sess)
		if err != nil {
			return nil, domainerrors.NewInternalError("failed to seal session", err)
		}
		rec.Payload = payload

		ttl := sess.StoreTTL(now, s.idleTTL)
		err = s.store.Save(ctx, rec, ttl)
		switch {
		case err == nil:
			sess.Version = rec.Version
			sess.IdleExpiresAt = now.Add(ttl)
			return sess, nil
		case errors.Is(err, sessionstore.ErrNotFound):
			return nil, domainerrors.NewNotFoundError("session", id)
		case errors.Is(err, sessionstore.ErrVersionConflict):
			if attempt >= attempts {
				return nil, domainerrors.NewConflictError("session was modified concurrently", id)
			}
			s.logger.Debug().Str("session_id", id).Int("attempt", attempt).Msg("retrying session update after conflict")
		default:
			return nil, storeError(err)
		}
	}
}

// Revoke deletes the session.
func (s *service) Revoke(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}

	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return storeError(err)
	}

	deleted, err := s.store.Delete(ctx, id)
	if err != nil {
		return storeError(err)
	}
	if !deleted {
		return nil
	}

	userID, tenantID := "", ""
	if rec != nil {
		userID = rec.UserID
		if sess, uerr := s.unseal(rec); uerr == nil {
			tenantID = sess.TenantID
		}
	}

	metrics.SessionsRevoked.WithLabelValues(models.EventRevoked).Inc()
	s.record(ctx, models.EventRevoked, id, userID, tenantID, "")
	s.logger.Debug().Str("session_id", id).Msg("session revoked")
	return nil
}

// RevokeUser deletes every session of the user.
func (s *service) RevokeUser(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, domainerrors.NewValidationError("userId is required", "")
	}

	n, err := s.store.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, storeError(err)
	}

	if n > 0 {
		metrics.SessionsRevoked.WithLabelValues(models.EventRevokedUser).Add(float64(n))
	}
	s.record(ctx, models.EventRevokedUser, "", userID, "", "count="+strconv.FormatInt(n, 10))
	s.logger.Info().Str("user_id", userID).Int64("count", n).Msg("user sessions revoked")
	return n, nil
}

// ListUser returns the user's readable, unexpired sessions sorted by
// creation time.
func (s *service) ListUser(ctx context.Context, userID string) ([]*models.Session, error) {
	ids, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, storeError(err)
	}

	now := s.now()
	sessions := make([]*models.Session, 0, len(ids))
	for _, id := range ids {
		rec, err := s.store.Get(ctx, id)
		if err != nil {
			return nil, storeError(err)
		}
		if rec == nil {
			continue
		}

		sess, err := s.unseal(rec)
		if err != nil {
			s.logger.Debug().Err(err).Str("session_id", id).Msg("skipping unreadable session")
			continue
		}
		if sess.IsExpired(now) {
			continue
		}
		sessions = append(sessions, sess)
	}

	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	return sessions, nil
}

// History returns the user's audit events.
func (s *service) History(ctx context.Context, userID string, limit int) ([]*models.SessionEvent, error) {
	if userID == "" {
		return nil, domainerrors.NewValidationError("userId is required", "")
	}
	if limit <= 0 {
		limit = auditlog.DefaultListLimit
	}

	events, err := s.audit.List(ctx, userID, limit)
	if err != nil {
		return nil, domainerrors.NewServiceUnavailableError("audit log", err)
	}
	return events, nil
}

// record writes an audit event. Failures are logged only.
func (s *service) record(ctx context.Context, eventType, sessionID, userID, tenantID, detail string) {
	event := &models.SessionEvent{
		Type:       eventType,
		SessionID:  sessionID,
		UserID:     userID,
		TenantID:   tenantID,
		Instance:   s.instance,
		Detail:     detail,
		OccurredAt: s.now(),
	}
	if err := s.audit.Record(ctx, event); err != nil {
		s.logger.Warn().Err(err).
			Str("event", eventType).
			Str("session_id", sessionID).
			Str("user_id", userID).
			Msg("failed to record audit event")
	}
}

func (s *service) seal(sess *models.Session) ([]byte, error) {
	data, err := json.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}
	sealed, err := s.encryptor.Encrypt(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt session: %w", err)
	}
	return []byte(sealed), nil
}

// unseal decodes a record. The record's version and remaining TTL win over
// whatever was sealed into the payload.
func (s *service) unseal(rec *sessionstore.Record) (*models.Session, error) {
	data, err := s.encryptor.Decrypt(string(rec.Payload))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt session: %w", err)
	}

	var sess models.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if sess.ID != rec.ID {
		return nil, fmt.Errorf("session payload belongs to %q", sess.ID)
	}

	sess.Version = rec.Version
	sess.IdleExpiresAt = rec.ExpiresAt
	if sess.Values == nil {
		sess.Values = make(map[string]interface{})
	}
	return &sess, nil
}

func storeError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return domainerrors.NewTimeoutError("session store", err)
	}
	return domainerrors.NewServiceUnavailableError("session store", err)
}

func versionConflict(id string, expected, actual int64) error {
	return domainerrors.NewConflictError(
		"session version mismatch",
		fmt.Sprintf("%s: expected version %d, current version %d", id, expected, actual),
	)
}
