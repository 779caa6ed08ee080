package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SergeiKhy/fileshare/internal/auth"
	"github.com/SergeiKhy/fileshare/internal/middleware"
	"github.com/SergeiKhy/fileshare/internal/models"
	"github.com/SergeiKhy/fileshare/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testSecret   = "handler-secret"
	testAdminKey = "admin-key"
)

// stubLinks подменяет только вызываемые методы LinkService
type stubLinks struct {
	service.LinkService
	err       error
	gotOwner  string
	gotLimit  int
	listCalls int
}

func (s *stubLinks) ListForOwner(ctx context.Context, owner string, limit int) ([]models.Link, error) {
	s.listCalls++
	s.gotOwner, s.gotLimit = owner, limit
	if s.err != nil {
		return nil, s.err
	}
	return []models.Link{{Code: "abc1234", TargetURL: "https://example.com", Owner: owner}}, nil
}

type stubTrials struct {
	service.TrialService
	err       error
	gotDays   int
	reminders []models.TrialReminder
}

func (s *stubTrials) StartTrial(ctx context.Context, claims *models.Claims) (*models.StartTrialResult, error) {
	return nil, s.err
}

func (s *stubTrials) ExpiringTrials(ctx context.Context, days int) ([]models.TrialReminder, error) {
	s.gotDays = days
	if s.err != nil {
		return nil, s.err
	}
	return s.reminders, nil
}

type stubStats struct{ stats service.ChannelStats }

func (s stubStats) Stats() service.ChannelStats { return s.stats }

type routerFixture struct {
	router *gin.Engine
	links  *stubLinks
	trials *stubTrials
}

func setupRouter(t *testing.T, limiter *middleware.RateLimiter) *routerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &routerFixture{links: &stubLinks{}, trials: &stubTrials{}}
	f.router = NewRouter(Services{
		Links:     f.links,
		Trials:    f.trials,
		GroupSync: stubStats{stats: service.ChannelStats{BufferSize: 1000, BufferUsed: 2, WorkerCount: 3}},
	}, RouterConfig{
		BaseURL:     "http://short.test",
		Auth:        middleware.Auth(auth.NewHMACVerifier(testSecret, ""), nil, zap.NewNop()),
		Admin:       middleware.NewAdminKey(map[string]string{testAdminKey: "tests"}).Middleware(),
		RateLimiter: limiter,
	}, zap.NewNop())
	return f
}

func bearer(t *testing.T, subject string) string {
	t.Helper()
	token, err := auth.NewHMACVerifier(testSecret, "").Issue(models.Claims{Subject: subject, Email: subject + "@example.com"}, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

// TestRespondError ошибки сервиса сопоставляются статусам; 5xx несут Retry-After и не раскрывают детали
func TestRespondError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	testCases := []struct {
		name       string
		err        error
		status     int
		code       string
		message    string
		retryAfter string
	}{
		{
			name:    "trial unavailable",
			err:     fmt.Errorf("%w: %s", service.ErrTrialUnavailable, service.ReasonTrialUsed),
			status:  http.StatusConflict,
			code:    "trial_unavailable",
			message: service.ErrTrialUnavailable.Error() + ": " + service.ReasonTrialUsed,
		},
		{
			name:    "account conflict",
			err:     service.ErrAccountConflict,
			status:  http.StatusConflict,
			code:    "account_conflict",
			message: service.ErrAccountConflict.Error(),
		},
		{
			name:       "storage unavailable",
			err:        fmt.Errorf("%w: connection refused on 10.0.0.5", service.ErrStorage),
			status:     http.StatusServiceUnavailable,
			code:       "storage_unavailable",
			message:    service.ErrStorage.Error(),
			retryAfter: "1",
		},
		{
			name:       "code space exhausted",
			err:        service.ErrCodeSpaceExhausted,
			status:     http.StatusServiceUnavailable,
			code:       "code_space_exhausted",
			message:    service.ErrCodeSpaceExhausted.Error(),
			retryAfter: "1",
		},
		{
			name:    "not found",
			err:     service.ErrNotFound,
			status:  http.StatusNotFound,
			code:    "not_found",
			message: service.ErrNotFound.Error(),
		},
		{
			name:    "invalid expiry",
			err:     service.ErrInvalidExpiry,
			status:  http.StatusBadRequest,
			code:    "invalid_expiry",
			message: service.ErrInvalidExpiry.Error(),
		},
		{
			name:    "unknown",
			err:     errors.New("pq: relation does not exist"),
			status:  http.StatusInternalServerError,
			code:    "internal_error",
			message: "Внутренняя ошибка сервера",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			respondError(c, zap.NewNop(), tc.err)

			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, tc.retryAfter, w.Header().Get("Retry-After"))
			resp := decodeError(t, w)
			assert.Equal(t, tc.code, resp.Error)
			assert.Equal(t, tc.message, resp.Message)
		})
	}
}

func TestRouter_StartTrialConflict(t *testing.T) {
	f := setupRouter(t, nil)
	f.trials.err = fmt.Errorf("%w: %s", service.ErrTrialUnavailable, service.ReasonTrialActive)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/trial/start", nil)
	req.Header.Set("Authorization", bearer(t, "u1"))
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "trial_unavailable", decodeError(t, w).Error)
}

func TestLinkHandler_ListLinksLimit(t *testing.T) {
	testCases := []struct {
		name      string
		query     string
		status    int
		wantLimit int
	}{
		{name: "default", query: "", status: http.StatusOK, wantLimit: 0},
		{name: "explicit", query: "?limit=5", status: http.StatusOK, wantLimit: 5},
		{name: "zero", query: "?limit=0", status: http.StatusOK, wantLimit: 0},
		{name: "not a number", query: "?limit=abc", status: http.StatusBadRequest},
		{name: "negative", query: "?limit=-1", status: http.StatusBadRequest},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := setupRouter(t, nil)

			w := httptest.NewRecorder()
			req, _ := http.NewRequest(http.MethodGet, "/api/v1/links"+tc.query, nil)
			req.Header.Set("Authorization", bearer(t, "u1"))
			f.router.ServeHTTP(w, req)

			require.Equal(t, tc.status, w.Code)
			if tc.status != http.StatusOK {
				assert.Equal(t, "invalid_limit", decodeError(t, w).Error)
				assert.Zero(t, f.links.listCalls)
				return
			}
			assert.Equal(t, tc.wantLimit, f.links.gotLimit)
			assert.Equal(t, "u1@example.com", f.links.gotOwner)
		})
	}
}

func TestLinkHandler_ListLinksStorageError(t *testing.T) {
	f := setupRouter(t, nil)
	f.links.err = fmt.Errorf("%w: timeout", service.ErrStorage)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/links", nil)
	req.Header.Set("Authorization", bearer(t, "u1"))
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

// TestRouter_PerSubjectRateLimit у каждого пользователя свой бюджет, даже при разных IP
func TestRouter_PerSubjectRateLimit(t *testing.T) {
	limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{RequestsPerSecond: 0.001, BurstSize: 2})
	t.Cleanup(limiter.Stop)
	f := setupRouter(t, limiter)

	do := func(subject, ip string) int {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/api/v1/links", nil)
		req.RemoteAddr = ip + ":1234"
		req.Header.Set("Authorization", bearer(t, subject))
		f.router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, do("u1", "10.0.0.1"))
	assert.Equal(t, http.StatusOK, do("u1", "10.0.0.2"))
	assert.Equal(t, http.StatusTooManyRequests, do("u1", "10.0.0.3"))

	// Другой пользователь не затронут
	assert.Equal(t, http.StatusOK, do("u2", "10.0.0.4"))
}

func TestAdminHandler_ExpiringTrials(t *testing.T) {
	expires := time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)

	testCases := []struct {
		name     string
		query    string
		err      error
		status   int
		wantDays int
	}{
		{name: "default window", query: "", status: http.StatusOK, wantDays: 3},
		{name: "explicit window", query: "?days=7", status: http.StatusOK, wantDays: 7},
		{name: "not a number", query: "?days=soon", status: http.StatusBadRequest},
		{name: "out of range", query: "?days=0", err: service.ErrInvalidInput, status: http.StatusBadRequest, wantDays: 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := setupRouter(t, nil)
			f.trials.err = tc.err
			f.trials.reminders = []models.TrialReminder{{UserID: "u1", Email: "a@example.com", TrialExpiresAt: expires, DaysRemaining: 2}}

			w := httptest.NewRecorder()
			req, _ := http.NewRequest(http.MethodGet, "/api/v1/admin/trials/expiring"+tc.query, nil)
			req.Header.Set(middleware.AdminKeyHeader, testAdminKey)
			f.router.ServeHTTP(w, req)

			require.Equal(t, tc.status, w.Code)
			assert.Equal(t, tc.wantDays, f.trials.gotDays)
			if tc.status != http.StatusOK {
				return
			}

			var resp struct {
				Days   int                    `json:"days"`
				Count  int                    `json:"count"`
				Trials []models.TrialReminder `json:"trials"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tc.wantDays, resp.Days)
			assert.Equal(t, 1, resp.Count)
			assert.Equal(t, 2, resp.Trials[0].DaysRemaining)
		})
	}
}

func TestAdminHandler_Stats(t *testing.T) {
	f := setupRouter(t, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/admin/stats", nil)
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/api/v1/admin/stats", nil)
	req.Header.Set(middleware.AdminKeyHeader, testAdminKey)
	f.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		GroupSync service.ChannelStats `json:"group_sync"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, service.ChannelStats{BufferSize: 1000, BufferUsed: 2, WorkerCount: 3}, resp.GroupSync)
}
