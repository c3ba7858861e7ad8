package routes_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unifiedui/session-service/internal/api/dto"
	"github.com/unifiedui/session-service/internal/api/handlers"
	"github.com/unifiedui/session-service/internal/api/middleware"
	"github.com/unifiedui/session-service/internal/api/routes"
	domainerrors "github.com/unifiedui/session-service/internal/domain/errors"
	"github.com/unifiedui/session-service/internal/infrastructure/sessionstore/memory"
	"github.com/unifiedui/session-service/internal/metrics"
	"github.com/unifiedui/session-service/internal/pkg/encryption"
	"github.com/unifiedui/session-service/internal/services/session"
	"github.com/unifiedui/session-service/internal/testutil"
)

const apiKey = "test-key"

var auth = map[string]string{"Authorization": "Bearer " + apiKey}

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()

	key, err := encryption.GenerateKey()
	require.NoError(t, err)
	ring, err := encryption.NewKeyring(key)
	require.NoError(t, err)

	store := memory.NewStore(memory.Config{DefaultTTL: time.Hour})
	t.Cleanup(func() { store.Close() })

	svc, err := session.NewService(&session.Config{
		Store:       store,
		Encryptor:   ring,
		IdleTTL:     time.Minute,
		AbsoluteTTL: time.Hour,
	})
	require.NoError(t, err)

	cookie := middleware.CookieConfig{Name: "sid", SameSite: http.SameSiteLaxMode}

	router := testutil.SetupTestRouter()
	routes.SetupWithMiddleware(router, &routes.Config{
		HealthHandler:     handlers.NewHealthHandler(handlers.HealthComponent{Name: "store", Pinger: store}),
		SessionsHandler:   handlers.NewSessionsHandler(svc, cookie),
		UsersHandler:      handlers.NewUsersHandler(svc),
		AuthMiddleware:    middleware.NewAuthMiddleware(apiKey),
		SessionMiddleware: middleware.NewSessionMiddleware(svc, cookie),
		MetricsHandler:    metrics.Handler(),
	}, middleware.NewLoggingMiddleware(), middleware.NewErrorMiddleware(), nil)

	return router
}

func createSession(t *testing.T, router *gin.Engine, userID string) *http.Cookie {
	t.Helper()
	w := testutil.PerformRequest(router, http.MethodPost, "/api/v1/sessions", map[string]interface{}{
		"userId": userID,
		"values": map[string]interface{}{"step": "start"},
	}, auth)
	testutil.AssertStatusCode(t, http.StatusCreated, w)

	cookie := testutil.ResponseCookie(w, "sid")
	require.NotNil(t, cookie)
	return &http.Cookie{Name: cookie.Name, Value: cookie.Value}
}

func TestSessionLifecycle(t *testing.T) {
	router := newRouter(t)
	cookie := createSession(t, router, "u-1")

	// Read through the cookie.
	w := testutil.PerformRequest(router, http.MethodGet, "/api/v1/sessions/current", nil, nil, cookie)
	testutil.AssertStatusCode(t, http.StatusOK, w)

	var current dto.SessionResponse
	testutil.ParseJSONResponse(t, w, &current)
	assert.Equal(t, cookie.Value, current.ID)
	assert.Equal(t, "start", current.Values["step"])
	assert.Equal(t, int64(1), current.Version)

	// Update with a matching If-Match.
	w = testutil.PerformRequest(router, http.MethodPatch, "/api/v1/sessions/current",
		map[string]interface{}{"set": map[string]interface{}{"step": "pay"}},
		map[string]string{"If-Match": `"1"`}, cookie)
	testutil.AssertStatusCode(t, http.StatusOK, w)

	// A second update against version 1 is stale.
	w = testutil.PerformRequest(router, http.MethodPatch, "/api/v1/sessions/current",
		map[string]interface{}{"set": map[string]interface{}{"step": "lost"}},
		map[string]string{"If-Match": `"1"`}, cookie)
	testutil.AssertStatusCode(t, http.StatusConflict, w)

	// Header-based access sees the winning write.
	w = testutil.PerformRequest(router, http.MethodGet, "/api/v1/sessions/current", nil,
		map[string]string{middleware.SessionHeader: cookie.Value})
	testutil.AssertStatusCode(t, http.StatusOK, w)
	testutil.ParseJSONResponse(t, w, &current)
	assert.Equal(t, "pay", current.Values["step"])
	assert.Equal(t, int64(2), current.Version)

	w = testutil.PerformRequest(router, http.MethodPost, "/api/v1/sessions/current/refresh", nil, nil, cookie)
	testutil.AssertStatusCode(t, http.StatusOK, w)

	w = testutil.PerformRequest(router, http.MethodDelete, "/api/v1/sessions/current", nil, nil, cookie)
	testutil.AssertStatusCode(t, http.StatusNoContent, w)

	// Gone: 401 and the cookie is cleared.
	w = testutil.PerformRequest(router, http.MethodGet, "/api/v1/sessions/current", nil, nil, cookie)
	testutil.AssertStatusCode(t, http.StatusUnauthorized, w)
	cleared := testutil.ResponseCookie(w, "sid")
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
}

func TestCurrentWithoutSession(t *testing.T) {
	router := newRouter(t)

	w := testutil.PerformRequest(router, http.MethodGet, "/api/v1/sessions/current", nil, nil)

	testutil.AssertStatusCode(t, http.StatusUnauthorized, w)
	var resp dto.ErrorResponse
	testutil.ParseJSONResponse(t, w, &resp)
	assert.Equal(t, domainerrors.ErrCodeUnauthorized, resp.Code)
}

func TestManagementRoutesRequireKey(t *testing.T) {
	router := newRouter(t)

	w := testutil.PerformRequest(router, http.MethodPost, "/api/v1/sessions", map[string]interface{}{"userId": "u-1"}, nil)
	testutil.AssertStatusCode(t, http.StatusUnauthorized, w)

	w = testutil.PerformRequest(router, http.MethodGet, "/api/v1/users/u-1/sessions", nil, map[string]string{"Authorization": "Bearer wrong"})
	testutil.AssertStatusCode(t, http.StatusForbidden, w)
}

func TestUserSessionManagement(t *testing.T) {
	router := newRouter(t)

	first := createSession(t, router, "u-1")
	createSession(t, router, "u-1")
	other := createSession(t, router, "u-2")

	w := testutil.PerformRequest(router, http.MethodGet, "/api/v1/users/u-1/sessions", nil, auth)
	testutil.AssertStatusCode(t, http.StatusOK, w)
	var list dto.ListSessionsResponse
	testutil.ParseJSONResponse(t, w, &list)
	assert.Equal(t, 2, list.Total)

	w = testutil.PerformRequest(router, http.MethodDelete, "/api/v1/sessions/"+first.Value, nil, auth)
	testutil.AssertStatusCode(t, http.StatusNoContent, w)

	w = testutil.PerformRequest(router, http.MethodDelete, "/api/v1/users/u-1/sessions", nil, auth)
	testutil.AssertStatusCode(t, http.StatusOK, w)
	var revoked dto.RevokeSessionsResponse
	testutil.ParseJSONResponse(t, w, &revoked)
	assert.Equal(t, int64(1), revoked.Revoked)

	w = testutil.PerformRequest(router, http.MethodGet, "/api/v1/sessions/current", nil, nil, other)
	testutil.AssertStatusCode(t, http.StatusOK, w)

	// No audit backend: an empty history.
	w = testutil.PerformRequest(router, http.MethodGet, "/api/v1/users/u-1/sessions/events?limit=5", nil, auth)
	testutil.AssertStatusCode(t, http.StatusOK, w)
	assert.JSONEq(t, `{"events":[],"total":0}`, w.Body.String())
}

func TestOperationalRoutes(t *testing.T) {
	router := newRouter(t)
	createSession(t, router, "u-1")

	w := testutil.PerformRequest(router, http.MethodGet, "/health", nil, nil)
	testutil.AssertStatusCode(t, http.StatusOK, w)

	w = testutil.PerformRequest(router, http.MethodGet, "/live", nil, nil)
	testutil.AssertStatusCode(t, http.StatusOK, w)

	w = testutil.PerformRequest(router, http.MethodGet, "/metrics", nil, nil)
	testutil.AssertStatusCode(t, http.StatusOK, w)
	assert.Contains(t, w.Body.String(), "sessions_created_total")
	assert.Contains(t, w.Body.String(), `route="/api/v1/sessions"`)

	w = testutil.PerformRequest(router, http.MethodGet, "/nope", nil, nil)
	testutil.AssertStatusCode(t, http.StatusNotFound, w)

	w = testutil.PerformRequest(router, http.MethodPut, "/live", nil, nil)
	testutil.AssertStatusCode(t, http.StatusMethodNotAllowed, w)
}
