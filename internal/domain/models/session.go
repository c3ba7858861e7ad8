// Package models contains domain models for the Session Service.
package models

import "time"

// Session is a user session as seen by the application.
// The store only sees it in sealed form; see sessionstore.Record.
type Session struct {
	ID                string                 `json:"id"`
	UserID            string                 `json:"userId"`
	TenantID          string                 `json:"tenantId,omitempty"`
	Values            map[string]interface{} `json:"values"`
	Version           int64                  `json:"version"`
	ClientIP          string                 `json:"clientIp,omitempty"`
	UserAgent         string                 `json:"userAgent,omitempty"`
	CreatedAt         time.Time              `json:"createdAt"`
	UpdatedAt         time.Time              `json:"updatedAt"`
	LastSeenAt        time.Time              `json:"lastSeenAt"`
	IdleExpiresAt     time.Time              `json:"idleExpiresAt"`
	AbsoluteExpiresAt time.Time              `json:"absoluteExpiresAt"`
}

// NewSession creates a session that starts now and can live at most absoluteTTL.
func NewSession(id, userID, tenantID string, values map[string]interface{}, now time.Time, absoluteTTL time.Duration) *Session {
	if values == nil {
		values = make(map[string]interface{})
	}
	return &Session{
		ID:                id,
		UserID:            userID,
		TenantID:          tenantID,
		Values:            values,
		CreatedAt:         now,
		UpdatedAt:         now,
		LastSeenAt:        now,
		AbsoluteExpiresAt: now.Add(absoluteTTL),
	}
}

// IsExpired reports whether the absolute lifetime has passed at now.
func (s *Session) IsExpired(now time.Time) bool {
	return !s.AbsoluteExpiresAt.IsZero() && !now.Before(s.AbsoluteExpiresAt)
}

// StoreTTL returns how long the store should keep the session from now:
// the idle TTL capped by whatever is left of the absolute lifetime.
func (s *Session) StoreTTL(now time.Time, idleTTL time.Duration) time.Duration {
	ttl := idleTTL
	if !s.AbsoluteExpiresAt.IsZero() {
		if remaining := s.AbsoluteExpiresAt.Sub(now); remaining < ttl {
			ttl = remaining
		}
	}
	return ttl
}

// SessionEvent is an audit trail entry for a session lifecycle change.
type SessionEvent struct {
	ID         string    `json:"id" bson:"_id"`
	Type       string    `json:"type" bson:"type"`
	SessionID  string    `json:"sessionId,omitempty" bson:"sessionId,omitempty"`
	UserID     string    `json:"userId" bson:"userId"`
	TenantID   string    `json:"tenantId,omitempty" bson:"tenantId,omitempty"`
	Instance   string    `json:"instance,omitempty" bson:"instance,omitempty"`
	Detail     string    `json:"detail,omitempty" bson:"detail,omitempty"`
	OccurredAt time.Time `json:"occurredAt" bson:"occurredAt"`
}

// Session event types.
const (
	EventCreated     = "created"
	EventRevoked     = "revoked"
	EventRevokedUser = "revoked_user"
	EventExpired     = "expired"
	EventEvicted     = "evicted"
)
