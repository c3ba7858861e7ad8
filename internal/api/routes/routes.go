// Package routes defines the HTTP routes for the session service.
package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/unifiedui/session-service/internal/api/handlers"
	"github.com/unifiedui/session-service/internal/api/middleware"
)

// Config holds the dependencies for setting up routes.
type Config struct {
	HealthHandler     *handlers.HealthHandler
	SessionsHandler   *handlers.SessionsHandler
	UsersHandler      *handlers.UsersHandler
	AuthMiddleware    *middleware.AuthMiddleware
	SessionMiddleware *middleware.SessionMiddleware

	// MetricsHandler serves /metrics when set.
	MetricsHandler http.Handler
}

// Setup configures all routes on the Gin engine.
func Setup(r *gin.Engine, cfg *Config) {
	// Health check routes (no auth required)
	r.GET("/health", cfg.HealthHandler.Health)
	r.GET("/ready", cfg.HealthHandler.Ready)
	r.GET("/live", cfg.HealthHandler.Live)

	if cfg.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(cfg.MetricsHandler))
	}

	v1 := r.Group("/api/v1")
	{
		// Session-scoped routes, authenticated by the session itself.
		current := v1.Group("/sessions/current")
		current.Use(cfg.SessionMiddleware.RequireSession())
		{
			current.GET("", cfg.SessionsHandler.Current)
			current.PATCH("", cfg.SessionsHandler.UpdateCurrent)
			current.DELETE("", cfg.SessionsHandler.RevokeCurrent)
			current.POST("/refresh", cfg.SessionsHandler.RefreshCurrent)
		}

		// Management routes, called by the application backend.
		protected := v1.Group("")
		protected.Use(cfg.AuthMiddleware.Authenticate())
		{
			protected.POST("/sessions", cfg.SessionsHandler.Create)
			protected.DELETE("/sessions/:sessionId", cfg.SessionsHandler.Revoke)

			users := protected.Group("/users/:userId/sessions")
			{
				users.GET("", cfg.UsersHandler.ListSessions)
				users.DELETE("", cfg.UsersHandler.RevokeSessions)
				users.GET("/events", cfg.UsersHandler.ListEvents)
			}
		}
	}
}

// SetupWithMiddleware sets up routes with common middleware.
func SetupWithMiddleware(r *gin.Engine, cfg *Config, loggingMw *middleware.LoggingMiddleware, errorMw *middleware.ErrorMiddleware, cors gin.HandlerFunc) {
	r.Use(loggingMw.RequestLogger())
	r.Use(loggingMw.Logger())
	r.Use(errorMw.Recovery())
	if cors != nil {
		r.Use(cors)
	}

	r.NoRoute(middleware.NotFound())
	r.NoMethod(middleware.MethodNotAllowed())
	r.HandleMethodNotAllowed = true

	Setup(r, cfg)
}
