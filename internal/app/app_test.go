package app_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/SergeiKhy/fileshare/internal/app"
	"github.com/SergeiKhy/fileshare/internal/auth"
	"github.com/SergeiKhy/fileshare/internal/config"
	"github.com/SergeiKhy/fileshare/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func sqliteConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		App:       config.AppConfig{BaseURL: "http://localhost:8080"},
		DB:        config.DBConfig{Driver: config.DriverSQLite, Path: filepath.Join(dir, "app.db")},
		Auth:      config.AuthConfig{Mode: config.AuthHMAC, HMACSecret: "secret", AdminKeys: map[string]string{}},
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 100, BurstSize: 100},
		Storage: config.StorageConfig{
			Backend:        config.StorageLocal,
			LocalDir:       filepath.Join(dir, "uploads"),
			SigningSecret:  "storage-secret",
			MaxUploadBytes: 1 << 20,
			FreeLinkTTL:    72 * time.Hour,
			PremiumLinkTTL: 720 * time.Hour,
		},
		Links: config.LinksConfig{DefaultExpiryDays: 7, CodeLength: 7, SweepInterval: time.Minute},
		Trial: config.TrialConfig{DurationDays: 30, FreeGroup: "free-tier", TrialGroup: "premium-trial", PremiumGroup: "premium-tier"},
	}
}

func TestNew_SQLiteBackend(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	sc, err := app.New(ctx, sqliteConfig(t), zap.NewNop(), app.Options{})
	require.NoError(t, err)
	t.Cleanup(sc.Close)

	res, err := sc.Links.CreateLink(ctx, &models.CreateLinkInput{TargetURL: "https://example.com/a", Owner: "a@example.com"})
	require.NoError(t, err)
	assert.Len(t, res.Code, 7)
	assert.True(t, res.Created)

	link, err := sc.Links.Resolve(ctx, res.Code)
	require.NoError(t, err)
	assert.Equal(t, int64(1), link.ClickCount)

	status, err := sc.Trials.GetStatus(ctx, &models.Claims{Subject: "u1", Email: "a@example.com"})
	require.NoError(t, err)
	assert.Equal(t, models.TierFree, status.Tier)
	assert.True(t, status.CanStartTrial)
}

func TestNew_RouterRequiresToken(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cfg := sqliteConfig(t)
	sc, err := app.New(context.Background(), cfg, zap.NewNop(), app.Options{})
	require.NoError(t, err)
	t.Cleanup(sc.Close)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/trial/status", nil)
	sc.Router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := auth.NewHMACVerifier(cfg.Auth.HMACSecret, "").Issue(models.Claims{Subject: "u1", Email: "a@example.com"}, time.Hour)
	require.NoError(t, err)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/api/v1/trial/status", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	sc.Router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNew_UnsupportedAuthMode(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.Auth.Mode = "basic"

	_, err := app.New(context.Background(), cfg, zap.NewNop(), app.Options{})
	assert.Error(t, err)
}
