package middleware_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/unifiedui/session-service/internal/api/dto"
	"github.com/unifiedui/session-service/internal/api/middleware"
	domainerrors "github.com/unifiedui/session-service/internal/domain/errors"
	"github.com/unifiedui/session-service/internal/domain/models"
	"github.com/unifiedui/session-service/internal/testutil"
	"github.com/unifiedui/session-service/internal/testutil/mocks"
)

func ok(c *gin.Context) { c.Status(http.StatusOK) }

func TestAuthMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		header     string
		wantStatus int
	}{
		{name: "disabled", key: "", header: "", wantStatus: http.StatusOK},
		{name: "valid key", key: "s3cret", header: "Bearer s3cret", wantStatus: http.StatusOK},
		{name: "scheme is case insensitive", key: "s3cret", header: "bearer s3cret", wantStatus: http.StatusOK},
		{name: "missing header", key: "s3cret", header: "", wantStatus: http.StatusUnauthorized},
		{name: "wrong scheme", key: "s3cret", header: "Basic s3cret", wantStatus: http.StatusUnauthorized},
		{name: "empty token", key: "s3cret", header: "Bearer ", wantStatus: http.StatusUnauthorized},
		{name: "wrong key", key: "s3cret", header: "Bearer nope", wantStatus: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := testutil.SetupTestRouter()
			router.GET("/x", middleware.NewAuthMiddleware(tt.key).Authenticate(), ok)

			headers := map[string]string{}
			if tt.header != "" {
				headers["Authorization"] = tt.header
			}
			w := testutil.PerformRequest(router, http.MethodGet, "/x", nil, headers)

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestCORSMiddleware(t *testing.T) {
	router := testutil.SetupTestRouter()
	router.Use(middleware.NewCORSMiddleware(middleware.DefaultCORSConfig([]string{"https://app.example.com"})))
	router.GET("/x", ok)
	router.OPTIONS("/x", ok)

	w := testutil.PerformRequest(router, http.MethodOptions, "/x", nil, map[string]string{"Origin": "https://app.example.com"})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), middleware.SessionHeader)

	w = testutil.PerformRequest(router, http.MethodGet, "/x", nil, map[string]string{"Origin": "https://evil.example.com"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestLogger_PropagatesRequestID(t *testing.T) {
	logging := middleware.NewLoggingMiddleware()

	var seen string
	router := testutil.SetupTestRouter()
	router.Use(logging.RequestLogger(), logging.Logger())
	router.GET("/x", func(c *gin.Context) {
		seen = middleware.GetRequestID(c)
		c.Status(http.StatusOK)
	})

	w := testutil.PerformRequest(router, http.MethodGet, "/x", nil, map[string]string{middleware.RequestIDHeader: "req-42"})
	assert.Equal(t, "req-42", seen)
	assert.Equal(t, "req-42", w.Header().Get(middleware.RequestIDHeader))

	w = testutil.PerformRequest(router, http.MethodGet, "/x", nil, nil)
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
}

func TestLogger_WritesRequestEvent(t *testing.T) {
	var buf bytes.Buffer
	logging := middleware.NewLoggingMiddlewareWithLogger(zerolog.New(&buf))

	router := testutil.SetupTestRouter()
	router.Use(logging.RequestLogger(), logging.Logger())
	router.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	testutil.PerformRequest(router, http.MethodGet, "/missing?x=1", nil, map[string]string{middleware.RequestIDHeader: "req-7"})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "req-7", entry["request_id"])
	assert.Equal(t, "/missing", entry["path"])
	assert.Equal(t, "x=1", entry["query"])
	assert.Equal(t, float64(http.StatusNotFound), entry["status"])
	assert.Equal(t, "request completed", entry["message"])
}

func TestRecovery(t *testing.T) {
	router := testutil.SetupTestRouter()
	router.Use(middleware.NewErrorMiddleware().Recovery())
	router.GET("/panic", func(*gin.Context) { panic("boom") })

	w := testutil.PerformRequest(router, http.MethodGet, "/panic", nil, nil)

	testutil.AssertStatusCode(t, http.StatusInternalServerError, w)
	var resp dto.ErrorResponse
	testutil.ParseJSONResponse(t, w, &resp)
	assert.Equal(t, domainerrors.ErrCodeInternal, resp.Code)
}

func TestHandleError_PlainError(t *testing.T) {
	router := testutil.SetupTestRouter()
	router.GET("/x", func(c *gin.Context) { middleware.HandleError(c, assert.AnError) })

	w := testutil.PerformRequest(router, http.MethodGet, "/x", nil, nil)

	testutil.AssertStatusCode(t, http.StatusInternalServerError, w)
	assert.NotContains(t, w.Body.String(), assert.AnError.Error())
}

var cookie = middleware.CookieConfig{Name: "sid", Secure: true, SameSite: http.SameSiteStrictMode}

func sessionRouter(svc *mocks.MockSessionService) *gin.Engine {
	router := testutil.SetupTestRouter()
	router.GET("/current", middleware.NewSessionMiddleware(svc, cookie).RequireSession(), func(c *gin.Context) {
		c.String(http.StatusOK, middleware.GetSession(c).ID)
	})
	return router
}

func TestRequireSession_FromCookie(t *testing.T) {
	sess := models.NewSession("s-1", "u-1", "", nil, time.Now(), time.Hour)
	svc := &mocks.MockSessionService{}
	svc.On("Get", mock.Anything, "s-1").Return(sess, nil)

	w := testutil.PerformRequest(sessionRouter(svc), http.MethodGet, "/current", nil, nil, &http.Cookie{Name: "sid", Value: "s-1"})

	testutil.AssertStatusCode(t, http.StatusOK, w)
	assert.Equal(t, "s-1", w.Body.String())
}

func TestRequireSession_CookieWinsOverHeader(t *testing.T) {
	sess := models.NewSession("s-1", "u-1", "", nil, time.Now(), time.Hour)
	svc := &mocks.MockSessionService{}
	svc.On("Get", mock.Anything, "s-1").Return(sess, nil)

	w := testutil.PerformRequest(sessionRouter(svc), http.MethodGet, "/current", nil,
		map[string]string{middleware.SessionHeader: "s-2"},
		&http.Cookie{Name: "sid", Value: "s-1"})

	testutil.AssertStatusCode(t, http.StatusOK, w)
	svc.AssertNotCalled(t, "Get", mock.Anything, "s-2")
}

func TestRequireSession_FromHeader(t *testing.T) {
	sess := models.NewSession("s-2", "u-1", "", nil, time.Now(), time.Hour)
	svc := &mocks.MockSessionService{}
	svc.On("Get", mock.Anything, "s-2").Return(sess, nil)

	w := testutil.PerformRequest(sessionRouter(svc), http.MethodGet, "/current", nil, map[string]string{middleware.SessionHeader: "s-2"})

	testutil.AssertStatusCode(t, http.StatusOK, w)
	assert.Equal(t, "s-2", w.Body.String())
}

func TestRequireSession_Missing(t *testing.T) {
	svc := &mocks.MockSessionService{}

	w := testutil.PerformRequest(sessionRouter(svc), http.MethodGet, "/current", nil, nil)

	testutil.AssertStatusCode(t, http.StatusUnauthorized, w)
	assert.Nil(t, testutil.ResponseCookie(w, "sid"))
	svc.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

func TestRequireSession_UnknownOrExpiredClearsCookie(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{name: "unknown", err: domainerrors.NewNotFoundError("session", "s-1"), wantCode: domainerrors.ErrCodeUnauthorized},
		{name: "expired", err: domainerrors.NewSessionExpiredError("s-1"), wantCode: domainerrors.ErrCodeSessionExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mocks.MockSessionService{}
			svc.On("Get", mock.Anything, "s-1").Return(nil, tt.err)

			w := testutil.PerformRequest(sessionRouter(svc), http.MethodGet, "/current", nil, nil, &http.Cookie{Name: "sid", Value: "s-1"})

			testutil.AssertStatusCode(t, http.StatusUnauthorized, w)

			var resp dto.ErrorResponse
			testutil.ParseJSONResponse(t, w, &resp)
			assert.Equal(t, tt.wantCode, resp.Code)

			cleared := testutil.ResponseCookie(w, "sid")
			require.NotNil(t, cleared)
			assert.Empty(t, cleared.Value)
			assert.True(t, cleared.Secure)
		})
	}
}

func TestRequireSession_StoreDownKeepsCookie(t *testing.T) {
	svc := &mocks.MockSessionService{}
	svc.On("Get", mock.Anything, "s-1").Return(nil, domainerrors.NewServiceUnavailableError("session store", assert.AnError))

	w := testutil.PerformRequest(sessionRouter(svc), http.MethodGet, "/current", nil, nil, &http.Cookie{Name: "sid", Value: "s-1"})

	testutil.AssertStatusCode(t, http.StatusServiceUnavailable, w)
	assert.Nil(t, testutil.ResponseCookie(w, "sid"))
}
