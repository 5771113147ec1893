package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRequestID(t *testing.T) {
	t.Run("generates new request ID when not provided", func(t *testing.T) {
		router := gin.New()
		router.Use(RequestID())
		router.GET("/test", func(c *gin.Context) {
			c.String(http.StatusOK, GetRequestID(c))
		})

		req := httptest.NewRequest("GET", "/test", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		headerID := w.Header().Get(RequestIDHeader)
		assert.NotEmpty(t, headerID)
		assert.Equal(t, headerID, w.Body.String())
	})

	t.Run("uses existing request ID from header", func(t *testing.T) {
		router := gin.New()
		router.Use(RequestID())
		router.GET("/test", func(c *gin.Context) {
			c.String(http.StatusOK, GetRequestID(c))
		})

		existingID := "existing-request-id-123"
		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set(RequestIDHeader, existingID)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, existingID, w.Header().Get(RequestIDHeader))
		assert.Equal(t, existingID, w.Body.String())
	})
}

func TestRequireAuth(t *testing.T) {
	const secret = "test-secret"

	signToken := func(t *testing.T, userID uuid.UUID, expiry time.Duration) string {
		t.Helper()
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
			UserID: userID,
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiry)),
			},
		})
		signed, err := token.SignedString([]byte(secret))
		require.NoError(t, err)
		return signed
	}

	newRouter := func() *gin.Engine {
		router := gin.New()
		router.Use(RequireAuth(secret))
		router.GET("/test", func(c *gin.Context) {
			c.String(http.StatusOK, GetUserID(c).String())
		})
		return router
	}

	t.Run("accepts valid token", func(t *testing.T) {
		userID := uuid.New()
		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set(AuthorizationHeader, BearerPrefix+signToken(t, userID, time.Hour))
		w := httptest.NewRecorder()

		newRouter().ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, userID.String(), w.Body.String())
	})

	t.Run("rejects missing header", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		w := httptest.NewRecorder()

		newRouter().ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("rejects expired token", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set(AuthorizationHeader, BearerPrefix+signToken(t, uuid.New(), -time.Hour))
		w := httptest.NewRecorder()

		newRouter().ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("rejects token signed with another secret", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{UserID: uuid.New()})
		signed, err := token.SignedString([]byte("other-secret"))
		require.NoError(t, err)

		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set(AuthorizationHeader, BearerPrefix+signed)
		w := httptest.NewRecorder()

		newRouter().ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestRequireServiceToken(t *testing.T) {
	newRouter := func(token string) *gin.Engine {
		router := gin.New()
		router.Use(RequireServiceToken(token))
		router.POST("/test", func(c *gin.Context) {
			c.String(http.StatusOK, "ok")
		})
		return router
	}

	t.Run("accepts matching token", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/test", nil)
		req.Header.Set(ServiceTokenHeader, "svc-token")
		w := httptest.NewRecorder()

		newRouter("svc-token").ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("rejects wrong token", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/test", nil)
		req.Header.Set(ServiceTokenHeader, "not-it")
		w := httptest.NewRecorder()

		newRouter("svc-token").ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("rejects everything when unconfigured", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/test", nil)
		req.Header.Set(ServiceTokenHeader, "")
		w := httptest.NewRecorder()

		newRouter("").ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestRecovery(t *testing.T) {
	router := gin.New()
	router.Use(Recovery(zap.NewNop()))
	router.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})

	req := httptest.NewRequest("GET", "/panic", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
