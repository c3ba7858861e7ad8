package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	domainerrors "github.com/unifiedui/session-service/internal/domain/errors"
	"github.com/unifiedui/session-service/internal/domain/models"
	"github.com/unifiedui/session-service/internal/services/session"
)

// SessionHeader lets non-browser clients pass the session ID without a cookie.
const SessionHeader = "X-Session-ID"

const sessionKey = "session"

// CookieConfig describes the session cookie.
type CookieConfig struct {
	Name     string
	Path     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
}

// Set writes the session cookie. maxAge follows http.Cookie semantics.
func (cfg CookieConfig) Set(c *gin.Context, value string, maxAge time.Duration) {
	c.SetSameSite(cfg.SameSite)
	c.SetCookie(cfg.Name, value, int(maxAge.Seconds()), cfg.path(), cfg.Domain, cfg.Secure, true)
}

// Clear expires the session cookie.
func (cfg CookieConfig) Clear(c *gin.Context) {
	c.SetSameSite(cfg.SameSite)
	c.SetCookie(cfg.Name, "", -1, cfg.path(), cfg.Domain, cfg.Secure, true)
}

func (cfg CookieConfig) path() string {
	if cfg.Path == "" {
		return "/"
	}
	return cfg.Path
}

// SessionMiddleware resolves the caller's session from the cookie or the
// X-Session-ID header.
type SessionMiddleware struct {
	service session.Service
	cookie  CookieConfig
}

// NewSessionMiddleware creates a new SessionMiddleware.
func NewSessionMiddleware(service session.Service, cookie CookieConfig) *SessionMiddleware {
	return &SessionMiddleware{
		service: service,
		cookie:  cookie,
	}
}

// RequireSession aborts with 401 unless the request carries a live session.
// Unknown and expired sessions also clear the cookie.
func (m *SessionMiddleware) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := m.sessionID(c)
		if id == "" {
			HandleError(c, domainerrors.NewUnauthorizedError("missing session"))
			return
		}

		sess, err := m.service.Get(c.Request.Context(), id)
		if err != nil {
			if domainerrors.IsNotFound(err) || domainerrors.IsSessionExpired(err) {
				m.cookie.Clear(c)
				if domainerrors.IsNotFound(err) {
					err = domainerrors.NewUnauthorizedError("unknown session")
				}
			}
			HandleError(c, err)
			return
		}

		c.Set(sessionKey, sess)
		logger := GetRequestLogger(c).With().Str("session_id", sess.ID).Logger()
		c.Set(loggerKey, logger)

		c.Next()
	}
}

func (m *SessionMiddleware) sessionID(c *gin.Context) string {
	if id, err := c.Cookie(m.cookie.Name); err == nil && id != "" {
		return id
	}
	return c.GetHeader(SessionHeader)
}

// GetSession retrieves the session loaded by RequireSession.
func GetSession(c *gin.Context) *models.Session {
	if sess, exists := c.Get(sessionKey); exists {
		return sess.(*models.Session)
	}
	return nil
}
