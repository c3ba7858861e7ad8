package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/unifiedui/session-service/internal/api/dto"
	"github.com/unifiedui/session-service/internal/api/middleware"
	domainerrors "github.com/unifiedui/session-service/internal/domain/errors"
	"github.com/unifiedui/session-service/internal/services/session"
)

// UsersHandler handles the per-user session management endpoints.
type UsersHandler struct {
	service session.Service
}

// NewUsersHandler creates a new UsersHandler.
func NewUsersHandler(service session.Service) *UsersHandler {
	return &UsersHandler{service: service}
}

// ListSessions handles GET /api/v1/users/:userId/sessions.
func (h *UsersHandler) ListSessions(c *gin.Context) {
	sessions, err := h.service.ListUser(c.Request.Context(), c.Param("userId"))
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	resp := &dto.ListSessionsResponse{
		Sessions: make([]*dto.SessionResponse, 0, len(sessions)),
		Total:    len(sessions),
	}
	for _, s := range sessions {
		resp.Sessions = append(resp.Sessions, dto.NewSessionResponse(s))
	}

	c.JSON(http.StatusOK, resp)
}

// RevokeSessions handles DELETE /api/v1/users/:userId/sessions.
func (h *UsersHandler) RevokeSessions(c *gin.Context) {
	n, err := h.service.RevokeUser(c.Request.Context(), c.Param("userId"))
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.RevokeSessionsResponse{Revoked: n})
}

// ListEvents handles GET /api/v1/users/:userId/sessions/events.
func (h *UsersHandler) ListEvents(c *gin.Context) {
	var query dto.ListEventsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		middleware.HandleError(c, domainerrors.NewValidationError("invalid query parameters", err.Error()))
		return
	}

	events, err := h.service.History(c.Request.Context(), c.Param("userId"), query.Limit)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewListEventsResponse(events))
}
