package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/unifiedui/session-service/internal/api/dto"
	"github.com/unifiedui/session-service/internal/api/middleware"
	domainerrors "github.com/unifiedui/session-service/internal/domain/errors"
	"github.com/unifiedui/session-service/internal/domain/models"
	"github.com/unifiedui/session-service/internal/services/session"
)

// SessionsHandler handles session endpoints.
type SessionsHandler struct {
	service session.Service
	cookie  middleware.CookieConfig
}

// NewSessionsHandler creates a new SessionsHandler.
func NewSessionsHandler(service session.Service, cookie middleware.CookieConfig) *SessionsHandler {
	return &SessionsHandler{
		service: service,
		cookie:  cookie,
	}
}

// Create handles POST /api/v1/sessions.
func (h *SessionsHandler) Create(c *gin.Context) {
	var req dto.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, domainerrors.NewValidationError("invalid request body", err.Error()))
		return
	}

	sess, err := h.service.Create(c.Request.Context(), &session.CreateParams{
		UserID:    req.UserID,
		TenantID:  req.TenantID,
		Values:    req.Values,
		ClientIP:  c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	h.cookie.Set(c, sess.ID, h.cookieMaxAge(sess))
	h.respond(c, http.StatusCreated, sess)
}

// Revoke handles DELETE /api/v1/sessions/:sessionId.
func (h *SessionsHandler) Revoke(c *gin.Context) {
	if err := h.service.Revoke(c.Request.Context(), c.Param("sessionId")); err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Current handles GET /api/v1/sessions/current.
func (h *SessionsHandler) Current(c *gin.Context) {
	h.respond(c, http.StatusOK, middleware.GetSession(c))
}

// UpdateCurrent handles PATCH /api/v1/sessions/current. The expected
// version can come from the body or from an If-Match header.
func (h *SessionsHandler) UpdateCurrent(c *gin.Context) {
	var req dto.UpdateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, domainerrors.NewValidationError("invalid request body", err.Error()))
		return
	}

	if ifMatch := c.GetHeader("If-Match"); ifMatch != "" && req.Version == nil {
		version, err := strconv.ParseInt(strings.Trim(ifMatch, `"`), 10, 64)
		if err != nil {
			middleware.HandleError(c, domainerrors.NewBadRequestError("invalid If-Match header", ifMatch))
			return
		}
		req.Version = &version
	}

	current := middleware.GetSession(c)
	sess, err := h.service.Update(c.Request.Context(), current.ID, &session.UpdateParams{
		Set:     req.Set,
		Unset:   req.Unset,
		Version: req.Version,
	})
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	h.respond(c, http.StatusOK, sess)
}

// RefreshCurrent handles POST /api/v1/sessions/current/refresh.
func (h *SessionsHandler) RefreshCurrent(c *gin.Context) {
	sess, err := h.service.Refresh(c.Request.Context(), middleware.GetSession(c).ID)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	h.cookie.Set(c, sess.ID, h.cookieMaxAge(sess))
	h.respond(c, http.StatusOK, sess)
}

// RevokeCurrent handles DELETE /api/v1/sessions/current.
func (h *SessionsHandler) RevokeCurrent(c *gin.Context) {
	if err := h.service.Revoke(c.Request.Context(), middleware.GetSession(c).ID); err != nil {
		middleware.HandleError(c, err)
		return
	}

	h.cookie.Clear(c)
	c.Status(http.StatusNoContent)
}

// cookieMaxAge is what is left of the idle window, so the cookie expires
// with the session even when the absolute lifetime caps that window.
func (h *SessionsHandler) cookieMaxAge(sess *models.Session) time.Duration {
	if sess.IdleExpiresAt.IsZero() || sess.LastSeenAt.IsZero() {
		return h.service.IdleTTL()
	}
	return sess.IdleExpiresAt.Sub(sess.LastSeenAt)
}

func (h *SessionsHandler) respond(c *gin.Context, status int, sess *models.Session) {
	c.Header("ETag", strconv.Quote(strconv.FormatInt(sess.Version, 10)))
	c.JSON(status, dto.NewSessionResponse(sess))
}
