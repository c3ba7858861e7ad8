package handlers_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/unifiedui/session-service/internal/api/dto"
	"github.com/unifiedui/session-service/internal/api/handlers"
	"github.com/unifiedui/session-service/internal/api/middleware"
	domainerrors "github.com/unifiedui/session-service/internal/domain/errors"
	"github.com/unifiedui/session-service/internal/domain/models"
	"github.com/unifiedui/session-service/internal/pkg/encryption"
	"github.com/unifiedui/session-service/internal/services/session"
	"github.com/unifiedui/session-service/internal/testutil"
	"github.com/unifiedui/session-service/internal/testutil/mocks"
)

var testCookie = middleware.CookieConfig{Name: "sid", SameSite: http.SameSiteLaxMode}

func testSession(id string, version int64) *models.Session {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := models.NewSession(id, "u-1", "t-1", map[string]interface{}{"k": "v"}, now, time.Hour)
	s.Version = version
	return s
}

// withSession stands in for SessionMiddleware.RequireSession.
func withSession(sess *models.Session) gin.HandlerFunc {
	mockSvc := &mocks.MockSessionService{}
	mockSvc.On("Get", mock.Anything, sess.ID).Return(sess, nil)
	return middleware.NewSessionMiddleware(mockSvc, testCookie).RequireSession()
}

func TestSessionsHandler_Create(t *testing.T) {
	svc := &mocks.MockSessionService{}
	svc.On("Create", mock.Anything, mock.MatchedBy(func(p *session.CreateParams) bool {
		return p.UserID == "u-1" && p.TenantID == "t-1" && p.Values["k"] == "v"
	})).Return(testSession("s-1", 1), nil)
	svc.On("IdleTTL").Return(30 * time.Minute)

	handler := handlers.NewSessionsHandler(svc, testCookie)
	router := testutil.SetupTestRouter()
	router.POST("/sessions", handler.Create)

	w := testutil.PerformRequest(router, http.MethodPost, "/sessions", map[string]interface{}{
		"userId":   "u-1",
		"tenantId": "t-1",
		"values":   map[string]interface{}{"k": "v"},
	}, nil)

	testutil.AssertStatusCode(t, http.StatusCreated, w)

	var resp dto.SessionResponse
	testutil.ParseJSONResponse(t, w, &resp)
	assert.Equal(t, "s-1", resp.ID)
	assert.Equal(t, `"1"`, w.Header().Get("ETag"))

	cookie := testutil.ResponseCookie(w, "sid")
	require.NotNil(t, cookie)
	assert.Equal(t, "s-1", cookie.Value)
	assert.Equal(t, 1800, cookie.MaxAge)
	assert.True(t, cookie.HttpOnly)

	svc.AssertExpectations(t)
}

func TestSessionsHandler_Create_InvalidBody(t *testing.T) {
	svc := &mocks.MockSessionService{}
	handler := handlers.NewSessionsHandler(svc, testCookie)
	router := testutil.SetupTestRouter()
	router.POST("/sessions", handler.Create)

	w := testutil.PerformRequest(router, http.MethodPost, "/sessions", map[string]interface{}{"tenantId": "t-1"}, nil)

	testutil.AssertStatusCode(t, http.StatusBadRequest, w)

	var resp dto.ErrorResponse
	testutil.ParseJSONResponse(t, w, &resp)
	assert.Equal(t, domainerrors.ErrCodeValidation, resp.Code)
	svc.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestSessionsHandler_Revoke(t *testing.T) {
	svc := &mocks.MockSessionService{}
	svc.On("Revoke", mock.Anything, "s-1").Return(nil)

	handler := handlers.NewSessionsHandler(svc, testCookie)
	router := testutil.SetupTestRouter()
	router.DELETE("/sessions/:sessionId", handler.Revoke)

	w := testutil.PerformRequest(router, http.MethodDelete, "/sessions/s-1", nil, nil)

	testutil.AssertStatusCode(t, http.StatusNoContent, w)
	svc.AssertExpectations(t)
}

func TestSessionsHandler_UpdateCurrent_IfMatch(t *testing.T) {
	current := testSession("s-1", 3)

	svc := &mocks.MockSessionService{}
	svc.On("Update", mock.Anything, "s-1", mock.MatchedBy(func(p *session.UpdateParams) bool {
		return p.Version != nil && *p.Version == 3 && p.Set["theme"] == "dark"
	})).Return(testSession("s-1", 4), nil)

	handler := handlers.NewSessionsHandler(svc, testCookie)
	router := testutil.SetupTestRouter()
	router.PATCH("/sessions/current", withSession(current), handler.UpdateCurrent)

	w := testutil.PerformRequest(router, http.MethodPatch, "/sessions/current",
		map[string]interface{}{"set": map[string]interface{}{"theme": "dark"}},
		map[string]string{"If-Match": `"3"`, middleware.SessionHeader: "s-1"},
	)

	testutil.AssertStatusCode(t, http.StatusOK, w)
	assert.Equal(t, `"4"`, w.Header().Get("ETag"))
	svc.AssertExpectations(t)
}

func TestSessionsHandler_UpdateCurrent_BadIfMatch(t *testing.T) {
	current := testSession("s-1", 3)
	handler := handlers.NewSessionsHandler(&mocks.MockSessionService{}, testCookie)
	router := testutil.SetupTestRouter()
	router.PATCH("/sessions/current", withSession(current), handler.UpdateCurrent)

	w := testutil.PerformRequest(router, http.MethodPatch, "/sessions/current",
		map[string]interface{}{},
		map[string]string{"If-Match": "W/abc", middleware.SessionHeader: "s-1"},
	)

	testutil.AssertStatusCode(t, http.StatusBadRequest, w)
}

func TestSessionsHandler_UpdateCurrent_Conflict(t *testing.T) {
	current := testSession("s-1", 3)

	svc := &mocks.MockSessionService{}
	svc.On("Update", mock.Anything, "s-1", mock.Anything).Return(nil, domainerrors.NewConflictError("session version mismatch", "s-1"))

	handler := handlers.NewSessionsHandler(svc, testCookie)
	router := testutil.SetupTestRouter()
	router.PATCH("/sessions/current", withSession(current), handler.UpdateCurrent)

	version := int64(1)
	w := testutil.PerformRequest(router, http.MethodPatch, "/sessions/current",
		dto.UpdateSessionRequest{Version: &version},
		map[string]string{middleware.SessionHeader: "s-1"},
	)

	testutil.AssertStatusCode(t, http.StatusConflict, w)

	var resp dto.ErrorResponse
	testutil.ParseJSONResponse(t, w, &resp)
	assert.Equal(t, domainerrors.ErrCodeConflict, resp.Code)
}

func TestSessionsHandler_RefreshCurrent(t *testing.T) {
	current := testSession("s-1", 1)

	svc := &mocks.MockSessionService{}
	svc.On("Refresh", mock.Anything, "s-1").Return(testSession("s-1", 2), nil)
	svc.On("IdleTTL").Return(10 * time.Minute)

	handler := handlers.NewSessionsHandler(svc, testCookie)
	router := testutil.SetupTestRouter()
	router.POST("/sessions/current/refresh", withSession(current), handler.RefreshCurrent)

	w := testutil.PerformRequest(router, http.MethodPost, "/sessions/current/refresh", nil,
		map[string]string{middleware.SessionHeader: "s-1"})

	testutil.AssertStatusCode(t, http.StatusOK, w)

	cookie := testutil.ResponseCookie(w, "sid")
	require.NotNil(t, cookie)
	assert.Equal(t, 600, cookie.MaxAge)
}

func TestSessionsHandler_RevokeCurrent(t *testing.T) {
	current := testSession("s-1", 1)

	svc := &mocks.MockSessionService{}
	svc.On("Revoke", mock.Anything, "s-1").Return(nil)

	handler := handlers.NewSessionsHandler(svc, testCookie)
	router := testutil.SetupTestRouter()
	router.DELETE("/sessions/current", withSession(current), handler.RevokeCurrent)

	w := testutil.PerformRequest(router, http.MethodDelete, "/sessions/current", nil, nil,
		&http.Cookie{Name: "sid", Value: "s-1"})

	testutil.AssertStatusCode(t, http.StatusNoContent, w)

	cookie := testutil.ResponseCookie(w, "sid")
	require.NotNil(t, cookie)
	assert.Equal(t, "", cookie.Value)
	assert.Less(t, cookie.MaxAge, 0)
}

func TestSessionsHandler_RefreshCurrent_CookieCappedByAbsoluteExpiry(t *testing.T) {
	current := testSession("s-1", 1)

	// Five minutes of absolute lifetime left; the idle TTL is longer.
	refreshed := testSession("s-1", 2)
	refreshed.IdleExpiresAt = refreshed.LastSeenAt.Add(5 * time.Minute)

	svc := &mocks.MockSessionService{}
	svc.On("Refresh", mock.Anything, "s-1").Return(refreshed, nil)

	handler := handlers.NewSessionsHandler(svc, testCookie)
	router := testutil.SetupTestRouter()
	router.POST("/sessions/current/refresh", withSession(current), handler.RefreshCurrent)

	w := testutil.PerformRequest(router, http.MethodPost, "/sessions/current/refresh", nil,
		map[string]string{middleware.SessionHeader: "s-1"})

	testutil.AssertStatusCode(t, http.StatusOK, w)

	cookie := testutil.ResponseCookie(w, "sid")
	require.NotNil(t, cookie)
	assert.Equal(t, 300, cookie.MaxAge)
	svc.AssertNotCalled(t, "IdleTTL")
}

func TestSessionsHandler_Create_StoreFailures(t *testing.T) {
	tests := []struct {
		name       string
		storeErr   error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "deadline exceeded",
			storeErr:   fmt.Errorf("failed to create session s-1: %w", context.DeadlineExceeded),
			wantStatus: http.StatusGatewayTimeout,
			wantCode:   domainerrors.ErrCodeTimeout,
		},
		{
			name:       "connection refused",
			storeErr:   fmt.Errorf("failed to create session s-1: %w", errors.New("dial tcp: connection refused")),
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   domainerrors.ErrCodeServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mocks.MockStore{}
			store.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(tt.storeErr)

			svc, err := session.NewService(&session.Config{
				Store:     store,
				Encryptor: encryption.NewNoOpEncryptor(),
			})
			require.NoError(t, err)

			handler := handlers.NewSessionsHandler(svc, testCookie)
			router := testutil.SetupTestRouter()
			router.POST("/sessions", handler.Create)

			w := testutil.PerformRequest(router, http.MethodPost, "/sessions", map[string]interface{}{"userId": "u-1"}, nil)

			testutil.AssertStatusCode(t, tt.wantStatus, w)

			var resp dto.ErrorResponse
			testutil.ParseJSONResponse(t, w, &resp)
			assert.Equal(t, tt.wantCode, resp.Code)
			assert.Nil(t, testutil.ResponseCookie(w, "sid"))
		})
	}
}
