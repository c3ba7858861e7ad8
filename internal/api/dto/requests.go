// Package dto provides Data Transfer Objects for API requests and responses.
package dto

// CreateSessionRequest represents the request body for creating a session.
type CreateSessionRequest struct {
	UserID   string                 `json:"userId" binding:"required,max=256"`
	TenantID string                 `json:"tenantId" binding:"max=256"`
	Values   map[string]interface{} `json:"values"`
}

// UpdateSessionRequest represents the request body for changing session values.
type UpdateSessionRequest struct {
	Set     map[string]interface{} `json:"set"`
	Unset   []string               `json:"unset"`
	Version *int64                 `json:"version"`
}

// ListEventsQuery holds the query parameters for listing audit events.
type ListEventsQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=500"`
}
