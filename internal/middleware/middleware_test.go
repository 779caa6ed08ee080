package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SergeiKhy/fileshare/internal/auth"
	"github.com/SergeiKhy/fileshare/internal/middleware"
	"github.com/SergeiKhy/fileshare/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func doRequest(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// TestRateLimiter_Middleware проверяет работу rate limiter middleware
func TestRateLimiter_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// Лимит 5 запросов в секунду и burst 5
	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		RequestsPerSecond: 5,
		BurstSize:         5,
		CleanupInterval:   time.Minute,
	})
	defer rl.Stop()

	router := gin.New()
	router.Use(rl.Middleware())
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Первые 5 запросов должны пройти (в пределах burst лимита)
	for i := 0; i < 5; i++ {
		req, _ := http.NewRequest("GET", "/test", nil)
		assert.Equal(t, http.StatusOK, doRequest(router, req).Code)
	}

	// Следующий запрос должен быть ограничен
	req, _ := http.NewRequest("GET", "/test", nil)
	w := doRequest(router, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), `"retry_after":1`)
}

// TestRateLimiter_MiddlewareWithKey проверяет rate limiting с кастомным ключом
func TestRateLimiter_MiddlewareWithKey(t *testing.T) {
	gin.SetMode(gin.TestMode)

	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		RequestsPerSecond: 2,
		BurstSize:         2,
		CleanupInterval:   time.Minute,
	})
	defer rl.Stop()

	keyGetter := func(c *gin.Context) string {
		return c.GetHeader("X-User-ID")
	}

	router := gin.New()
	router.Use(rl.MiddlewareWithKey(keyGetter))
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	newReq := func(user string) *http.Request {
		req, _ := http.NewRequest("GET", "/test", nil)
		req.Header.Set("X-User-ID", user)
		return req
	}

	// Пользователь 1 - первые 2 запроса успешны
	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, doRequest(router, newReq("user1")).Code)
	}

	// Третий запрос должен быть ограничен
	assert.Equal(t, http.StatusTooManyRequests, doRequest(router, newReq("user1")).Code)

	// Другой ключ не затронут
	assert.Equal(t, http.StatusOK, doRequest(router, newReq("user2")).Code)
}

// TestAdminKey_Middleware проверяет аутентификацию по API ключу
func TestAdminKey_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	ak := middleware.NewAdminKey(map[string]string{
		"test-key-1": "Test Key 1",
		"test-key-2": "Test Key 2",
	})

	router := gin.New()
	router.Use(ak.Middleware())
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"key": middleware.AdminKeyName(c)})
	})

	testCases := []struct {
		name   string
		setup  func(r *http.Request)
		status int
	}{
		{"missing", func(r *http.Request) {}, http.StatusUnauthorized},
		{"invalid", func(r *http.Request) { r.Header.Set("X-API-Key", "invalid-key") }, http.StatusForbidden},
		{"valid", func(r *http.Request) { r.Header.Set("X-API-Key", "test-key-2") }, http.StatusOK},
		// Ключ принимается только из заголовка
		{"query", func(r *http.Request) { r.URL.RawQuery = "api_key=test-key-1" }, http.StatusUnauthorized},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer test-key-1") }, http.StatusUnauthorized},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req, _ := http.NewRequest("GET", "/test", nil)
			tc.setup(req)
			w := doRequest(router, req)
			assert.Equal(t, tc.status, w.Code)
			if tc.status == http.StatusOK {
				assert.Contains(t, w.Body.String(), "Test Key 2")
			}
		})
	}
}

func TestAdminKey_NoKeysConfigured(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(middleware.NewAdminKey(nil).Middleware())
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	req, _ := http.NewRequest("GET", "/test", nil)
	req.Header.Set("X-API-Key", "anything")
	assert.Equal(t, http.StatusForbidden, doRequest(router, req).Code)
}

func TestAuth_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	verifier := auth.NewHMACVerifier("secret", "")
	var hooked []string
	hook := func(ctx context.Context, claims *models.Claims) error {
		hooked = append(hooked, claims.Subject)
		return errors.New("ledger down")
	}

	router := gin.New()
	router.Use(middleware.RequestIDMiddleware(), middleware.Auth(verifier, hook, zap.NewNop()))
	router.GET("/me", func(c *gin.Context) {
		claims, ok := middleware.ClaimsFrom(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"sub": claims.Subject, "key": middleware.SubjectKey(c)})
	})

	token, err := verifier.Issue(models.Claims{Subject: "u1", Email: "a@example.com"}, time.Hour)
	require.NoError(t, err)
	expired, err := verifier.Issue(models.Claims{Subject: "u1"}, -time.Hour)
	require.NoError(t, err)

	testCases := []struct {
		name   string
		header string
		status int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"garbage", "Bearer not-a-token", http.StatusUnauthorized},
		{"expired", "Bearer " + expired, http.StatusUnauthorized},
		{"valid", "Bearer " + token, http.StatusOK},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req, _ := http.NewRequest("GET", "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := doRequest(router, req)
			assert.Equal(t, tc.status, w.Code)
			assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
		})
	}

	// Ошибка хука не прерывает запрос
	assert.Equal(t, []string{"u1"}, hooked)
}

func TestRequestID_KeepsIncoming(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(middleware.RequestIDMiddleware(), middleware.Logger(zap.NewNop()))
	router.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, middleware.RequestID(c))
	})

	req, _ := http.NewRequest("GET", "/test", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-42")
	w := doRequest(router, req)
	assert.Equal(t, "req-42", w.Body.String())
	assert.Equal(t, "req-42", w.Header().Get(middleware.RequestIDHeader))
}
