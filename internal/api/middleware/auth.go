// Package middleware provides HTTP middleware for the API.
package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"

	domainerrors "github.com/unifiedui/session-service/internal/domain/errors"
)

// AuthMiddleware guards the management API with a shared service key.
type AuthMiddleware struct {
	apiKey []byte
}

// NewAuthMiddleware creates a new AuthMiddleware. An empty key disables the
// check.
func NewAuthMiddleware(apiKey string) *AuthMiddleware {
	return &AuthMiddleware{
		apiKey: []byte(apiKey),
	}
}

// Authenticate returns a gin middleware that validates the Bearer token
// against the service key.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(m.apiKey) == 0 {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			HandleError(c, domainerrors.NewUnauthorizedError("missing authorization header"))
			return
		}

		// Extract Bearer token
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
			HandleError(c, domainerrors.NewUnauthorizedError("invalid authorization header format"))
			return
		}

		if subtle.ConstantTimeCompare([]byte(parts[1]), m.apiKey) != 1 {
			HandleError(c, domainerrors.NewForbiddenError("invalid service key"))
			return
		}

		c.Next()
	}
}
