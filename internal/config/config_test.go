package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// minimalEnv выставляет обязательные переменные для прохождения валидации
func minimalEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("AUTH_MODE", "hmac")
	t.Setenv("AUTH_HMAC_SECRET", "dev-secret")
	t.Setenv("STORAGE_SIGNING_SECRET", "sign-secret")
}

func TestLoad_Defaults(t *testing.T) {
	minimalEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, DriverPostgres, cfg.DB.Driver)
	assert.Equal(t, StorageLocal, cfg.Storage.Backend)
	assert.Equal(t, 7, cfg.Links.DefaultExpiryDays)
	assert.Equal(t, 6, cfg.Links.CodeLength)
	assert.Equal(t, time.Minute, cfg.Links.SweepInterval)
	assert.Equal(t, 30, cfg.Trial.DurationDays)
	assert.Equal(t, 72*time.Hour, cfg.Storage.FreeLinkTTL)
	assert.Equal(t, 720*time.Hour, cfg.Storage.PremiumLinkTTL)
	assert.Equal(t, "premium-trial", cfg.Trial.TrialGroup)
	assert.False(t, cfg.Redis.Enabled())
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
}

func TestLoad_FromFile(t *testing.T) {
	minimalEnv(t)
	path := filepath.Join(t.TempDir(), "app.env")
	require.NoError(t, os.WriteFile(path, []byte("APP_PORT=9090\nDB_DRIVER=sqlite\nLINKS_CODE_LENGTH=8\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.App.Port)
	assert.Equal(t, DriverSQLite, cfg.DB.Driver)
	assert.Equal(t, 8, cfg.Links.CodeLength)
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"unknown driver", "DB_DRIVER", "oracle"},
		{"unknown storage", "STORAGE_BACKEND", "ftp"},
		{"s3 without bucket", "STORAGE_BACKEND", "s3"},
		{"unknown auth", "AUTH_MODE", "basic"},
		{"code too short", "LINKS_CODE_LENGTH", "4"},
		{"negative expiry", "LINKS_DEFAULT_EXPIRY_DAYS", "-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			minimalEnv(t)
			t.Setenv(tt.key, tt.val)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestParseAPIKeys(t *testing.T) {
	keys := parseAPIKeys("k1:ops, k2:cron ,broken,:empty")

	assert.Equal(t, map[string]string{"k1": "ops", "k2": "cron"}, keys)
	assert.Empty(t, parseAPIKeys(""))
}
