package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Поддерживаемые драйверы и бэкенды
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"

	StorageS3    = "s3"
	StorageLocal = "local"

	AuthOIDC = "oidc"
	AuthHMAC = "hmac"
)

type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Storage   StorageConfig
	Links     LinksConfig
	Trial     TrialConfig
	Log       LogConfig
	CORS      CORSConfig
}

type AppConfig struct {
	Port    string
	BaseURL string // Публичный адрес для коротких ссылок и локальных загрузок
	Env     string
}

type DBConfig struct {
	Driver   string // postgres | mysql | sqlite
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	Path     string // Файл базы для sqlite
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
}

// Enabled сообщает, настроен ли Redis. Без него sweep выполняется на каждой записи.
func (c RedisConfig) Enabled() bool {
	return c.Host != ""
}

type AuthConfig struct {
	Mode       string // oidc | hmac
	Issuer     string
	ClientID   string
	HMACSecret string
	AdminKeys  map[string]string // API key -> name/description
}

type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

type StorageConfig struct {
	Backend        string // s3 | local
	Bucket         string
	Region         string
	LocalDir       string
	SigningSecret  string
	MaxUploadBytes int64
	FreeLinkTTL    time.Duration
	PremiumLinkTTL time.Duration
}

type LinksConfig struct {
	DefaultExpiryDays int
	CodeLength        int
	SweepInterval     time.Duration
}

type TrialConfig struct {
	DurationDays int
	UserPoolID   string
	Region       string
	FreeGroup    string
	TrialGroup   string
	PremiumGroup string
}

type LogConfig struct {
	Level string
	File  string
}

type CORSConfig struct {
	AllowedOrigins []string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_PORT", "8080")
	v.SetDefault("APP_BASE_URL", "http://localhost:8080")
	v.SetDefault("APP_ENV", "development")

	v.SetDefault("DB_DRIVER", DriverPostgres)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_PATH", "fileshare.db")

	v.SetDefault("REDIS_PORT", "6379")

	v.SetDefault("AUTH_MODE", AuthOIDC)

	v.SetDefault("RATE_LIMIT_RPS", 10)
	v.SetDefault("RATE_LIMIT_BURST", 20)

	v.SetDefault("STORAGE_BACKEND", StorageLocal)
	v.SetDefault("STORAGE_REGION", "us-east-1")
	v.SetDefault("STORAGE_LOCAL_DIR", "./data/uploads")
	v.SetDefault("STORAGE_MAX_UPLOAD_BYTES", 100<<20)
	v.SetDefault("STORAGE_FREE_LINK_TTL", "72h")
	v.SetDefault("STORAGE_PREMIUM_LINK_TTL", "720h")

	v.SetDefault("LINKS_DEFAULT_EXPIRY_DAYS", 7)
	v.SetDefault("LINKS_CODE_LENGTH", 6)
	v.SetDefault("LINKS_SWEEP_INTERVAL", "1m")

	v.SetDefault("TRIAL_DURATION_DAYS", 30)
	v.SetDefault("TRIAL_REGION", "us-east-1")
	v.SetDefault("TRIAL_FREE_GROUP", "free-tier")
	v.SetDefault("TRIAL_TRIAL_GROUP", "premium-trial")
	v.SetDefault("TRIAL_PREMIUM_GROUP", "premium-tier")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
}

// Load читает конфигурацию из .env (если файл есть) и переменных окружения.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	path := v.GetString("CONFIG_FILE")
	if path == "" {
		path = ".env"
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		// Отсутствующий файл не ошибка: в контейнере всё приходит через env
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	cfg.App.Port = v.GetString("APP_PORT")
	cfg.App.BaseURL = strings.TrimRight(v.GetString("APP_BASE_URL"), "/")
	cfg.App.Env = v.GetString("APP_ENV")

	cfg.DB.Driver = strings.ToLower(v.GetString("DB_DRIVER"))
	cfg.DB.Host = v.GetString("DB_HOST")
	cfg.DB.Port = v.GetString("DB_PORT")
	cfg.DB.User = v.GetString("DB_USER")
	cfg.DB.Password = v.GetString("DB_PASSWORD")
	cfg.DB.Name = v.GetString("DB_NAME")
	cfg.DB.Path = v.GetString("DB_PATH")

	cfg.Redis.Host = v.GetString("REDIS_HOST")
	cfg.Redis.Port = v.GetString("REDIS_PORT")
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")

	cfg.Auth.Mode = strings.ToLower(v.GetString("AUTH_MODE"))
	cfg.Auth.Issuer = v.GetString("AUTH_ISSUER")
	cfg.Auth.ClientID = v.GetString("AUTH_CLIENT_ID")
	cfg.Auth.HMACSecret = v.GetString("AUTH_HMAC_SECRET")
	// Format: key1:name1,key2:name2
	cfg.Auth.AdminKeys = parseAPIKeys(v.GetString("ADMIN_KEYS"))

	cfg.RateLimit.RequestsPerSecond = v.GetFloat64("RATE_LIMIT_RPS")
	cfg.RateLimit.BurstSize = v.GetInt("RATE_LIMIT_BURST")

	cfg.Storage.Backend = strings.ToLower(v.GetString("STORAGE_BACKEND"))
	cfg.Storage.Bucket = v.GetString("STORAGE_BUCKET")
	cfg.Storage.Region = v.GetString("STORAGE_REGION")
	cfg.Storage.LocalDir = v.GetString("STORAGE_LOCAL_DIR")
	cfg.Storage.SigningSecret = v.GetString("STORAGE_SIGNING_SECRET")
	cfg.Storage.MaxUploadBytes = v.GetInt64("STORAGE_MAX_UPLOAD_BYTES")
	cfg.Storage.FreeLinkTTL = v.GetDuration("STORAGE_FREE_LINK_TTL")
	cfg.Storage.PremiumLinkTTL = v.GetDuration("STORAGE_PREMIUM_LINK_TTL")

	cfg.Links.DefaultExpiryDays = v.GetInt("LINKS_DEFAULT_EXPIRY_DAYS")
	cfg.Links.CodeLength = v.GetInt("LINKS_CODE_LENGTH")
	cfg.Links.SweepInterval = v.GetDuration("LINKS_SWEEP_INTERVAL")

	cfg.Trial.DurationDays = v.GetInt("TRIAL_DURATION_DAYS")
	cfg.Trial.UserPoolID = v.GetString("TRIAL_USER_POOL_ID")
	cfg.Trial.Region = v.GetString("TRIAL_REGION")
	cfg.Trial.FreeGroup = v.GetString("TRIAL_FREE_GROUP")
	cfg.Trial.TrialGroup = v.GetString("TRIAL_TRIAL_GROUP")
	cfg.Trial.PremiumGroup = v.GetString("TRIAL_PREMIUM_GROUP")

	cfg.Log.Level = v.GetString("LOG_LEVEL")
	cfg.Log.File = v.GetString("LOG_FILE")

	cfg.CORS.AllowedOrigins = splitList(v.GetString("CORS_ALLOWED_ORIGINS"))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate проверяет согласованность выбранных бэкендов.
func (c *Config) Validate() error {
	switch c.DB.Driver {
	case DriverPostgres, DriverMySQL, DriverSQLite:
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DB.Driver)
	}

	switch c.Storage.Backend {
	case StorageS3:
		if c.Storage.Bucket == "" {
			return errors.New("STORAGE_BUCKET is required for s3 storage")
		}
	case StorageLocal:
		if c.Storage.SigningSecret == "" {
			return errors.New("STORAGE_SIGNING_SECRET is required for local storage")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_BACKEND %q", c.Storage.Backend)
	}

	switch c.Auth.Mode {
	case AuthOIDC:
		if c.Auth.Issuer == "" {
			return errors.New("AUTH_ISSUER is required for oidc auth")
		}
	case AuthHMAC:
		if c.Auth.HMACSecret == "" {
			return errors.New("AUTH_HMAC_SECRET is required for hmac auth")
		}
	default:
		return fmt.Errorf("unsupported AUTH_MODE %q", c.Auth.Mode)
	}

	if c.Links.CodeLength < 6 || c.Links.CodeLength > 8 {
		return fmt.Errorf("LINKS_CODE_LENGTH must be between 6 and 8, got %d", c.Links.CodeLength)
	}
	if c.Links.DefaultExpiryDays <= 0 {
		return errors.New("LINKS_DEFAULT_EXPIRY_DAYS must be positive")
	}
	if c.Trial.DurationDays <= 0 {
		return errors.New("TRIAL_DURATION_DAYS must be positive")
	}
	if c.Storage.FreeLinkTTL <= 0 || c.Storage.PremiumLinkTTL <= 0 {
		return errors.New("download link TTLs must be positive")
	}
	return nil
}

// parseAPIKeys parses comma-separated API keys in format "key1:name1,key2:name2"
func parseAPIKeys(raw string) map[string]string {
	keys := make(map[string]string)
	if raw == "" {
		return keys
	}

	for _, pair := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) == 2 && parts[0] != "" {
			keys[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}

	return keys
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
