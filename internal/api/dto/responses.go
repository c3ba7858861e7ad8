package dto

import (
	"time"

	"github.com/unifiedui/session-service/internal/domain/models"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

// SessionResponse represents a session in API responses.
type SessionResponse struct {
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

// NewSessionResponse converts a session model.
func NewSessionResponse(s *models.Session) *SessionResponse {
	return &SessionResponse{
		ID:                s.ID,
		UserID:            s.UserID,
		TenantID:          s.TenantID,
		Values:            s.Values,
		Version:           s.Version,
		ClientIP:          s.ClientIP,
		UserAgent:         s.UserAgent,
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
		LastSeenAt:        s.LastSeenAt,
		IdleExpiresAt:     s.IdleExpiresAt,
		AbsoluteExpiresAt: s.AbsoluteExpiresAt,
	}
}

// ListSessionsResponse represents the response for listing a user's sessions.
type ListSessionsResponse struct {
	Sessions []*SessionResponse `json:"sessions"`
	Total    int                `json:"total"`
}

// RevokeSessionsResponse represents the response for revoking a user's sessions.
type RevokeSessionsResponse struct {
	Revoked int64 `json:"revoked"`
}

// EventResponse represents an audit event in API responses.
type EventResponse struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	SessionID  string    `json:"sessionId,omitempty"`
	UserID     string    `json:"userId"`
	TenantID   string    `json:"tenantId,omitempty"`
	Instance   string    `json:"instance,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// ListEventsResponse represents the response for listing audit events.
type ListEventsResponse struct {
	Events []*EventResponse `json:"events"`
	Total  int              `json:"total"`
}

// NewListEventsResponse converts audit events.
func NewListEventsResponse(events []*models.SessionEvent) *ListEventsResponse {
	out := make([]*EventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, &EventResponse{
			ID:         e.ID,
			Type:       e.Type,
			SessionID:  e.SessionID,
			UserID:     e.UserID,
			TenantID:   e.TenantID,
			Instance:   e.Instance,
			Detail:     e.Detail,
			OccurredAt: e.OccurredAt,
		})
	}
	return &ListEventsResponse{Events: out, Total: len(out)}
}
