package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/SergeiKhy/fileshare/internal/auth"
	"github.com/SergeiKhy/fileshare/internal/config"
	"github.com/SergeiKhy/fileshare/internal/groups"
	"github.com/SergeiKhy/fileshare/internal/handler"
	"github.com/SergeiKhy/fileshare/internal/middleware"
	"github.com/SergeiKhy/fileshare/internal/models"
	"github.com/SergeiKhy/fileshare/internal/repository"
	"github.com/SergeiKhy/fileshare/internal/service"
	"github.com/SergeiKhy/fileshare/internal/shortcode"
	"github.com/SergeiKhy/fileshare/internal/storage"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ServiceContext все зависимости процесса. Собирается один раз при старте,
// глобальных клиентов нет.
type ServiceContext struct {
	Config *config.Config
	Logger *zap.Logger

	Links     service.LinkService
	Trials    service.TrialService
	Files     service.FileService
	GroupSync service.GroupSyncProcessor
	Verifier  auth.Verifier
	Store     storage.ObjectStore
	RateLimit *middleware.RateLimiter
	Router    *gin.Engine

	closers []func()
}

// Options подмены для тестов. Пустые поля собираются из конфигурации.
type Options struct {
	Verifier auth.Verifier
	Mover    groups.Mover
	Clock    service.Clock
}

// New подключается к хранилищам, применяет миграции и собирает сервисы
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts Options) (*ServiceContext, error) {
	sc := &ServiceContext{Config: cfg, Logger: logger}
	if err := sc.build(ctx, opts); err != nil {
		sc.Close()
		return nil, err
	}
	return sc, nil
}

func (sc *ServiceContext) build(ctx context.Context, opts Options) error {
	cfg, logger := sc.Config, sc.Logger

	linkRepo, userRepo, err := sc.openDatabase(ctx)
	if err != nil {
		return err
	}

	var sweepLock repository.LockRepository
	if cfg.Redis.Enabled() {
		redis, err := repository.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		sc.onClose(func() { redis.Close() })
		hostname, _ := os.Hostname()
		sweepLock = repository.NewLockRepository(redis, hostname)
		logger.Info("Connected to Redis")
	} else {
		logger.Warn("Redis not configured, expired links are swept before every write")
	}

	sc.Verifier = opts.Verifier
	if sc.Verifier == nil {
		if sc.Verifier, err = newVerifier(ctx, cfg.Auth); err != nil {
			return err
		}
	}

	var local *storage.Local
	switch cfg.Storage.Backend {
	case config.StorageS3:
		if sc.Store, err = storage.NewS3(ctx, cfg.Storage.Bucket, cfg.Storage.Region, logger); err != nil {
			return err
		}
	default:
		if local, err = storage.NewLocal(cfg.Storage.LocalDir, cfg.App.BaseURL, cfg.Storage.SigningSecret); err != nil {
			return err
		}
		sc.Store = local
	}
	logger.Info("Object storage ready", zap.String("backend", cfg.Storage.Backend))

	mover := opts.Mover
	if mover == nil {
		if mover, err = newMover(ctx, cfg.Trial, logger); err != nil {
			return err
		}
	}
	sc.GroupSync = service.NewGroupSyncProcessor(mover, logger, service.GroupSyncConfig{})
	sc.GroupSync.Start()
	sc.onClose(sc.GroupSync.Stop)

	gen, err := shortcode.NewRandom(cfg.Links.CodeLength)
	if err != nil {
		return err
	}
	sc.Links, err = service.NewLinkService(linkRepo, sweepLock, logger, service.LinkServiceConfig{
		DefaultExpiryDays: cfg.Links.DefaultExpiryDays,
		SweepInterval:     cfg.Links.SweepInterval,
		Generator:         gen,
		Clock:             opts.Clock,
	})
	if err != nil {
		return err
	}

	sc.Trials = service.NewTrialService(userRepo, sc.GroupSync, logger, service.TrialServiceConfig{
		TrialDuration: time.Duration(cfg.Trial.DurationDays) * 24 * time.Hour,
		FreeGroup:     cfg.Trial.FreeGroup,
		TrialGroup:    cfg.Trial.TrialGroup,
		PremiumGroup:  cfg.Trial.PremiumGroup,
		Clock:         opts.Clock,
	})

	sc.Files = service.NewFileService(sc.Store, sc.Links, sc.Trials, logger, service.FileServiceConfig{
		FreeLinkTTL:    cfg.Storage.FreeLinkTTL,
		PremiumLinkTTL: cfg.Storage.PremiumLinkTTL,
		PremiumGroup:   cfg.Trial.PremiumGroup,
		BaseURL:        cfg.App.BaseURL,
		Clock:          opts.Clock,
	})

	sc.RateLimit = middleware.NewRateLimiter(middleware.RateLimiterConfig{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		BurstSize:         cfg.RateLimit.BurstSize,
		CleanupInterval:   time.Minute,
	})
	sc.onClose(sc.RateLimit.Stop)

	if len(cfg.Auth.AdminKeys) == 0 {
		logger.Warn("ADMIN_KEYS is empty, admin routes are disabled")
	} else {
		logger.Info("Admin API keys loaded", zap.Int("keys_count", len(cfg.Auth.AdminKeys)))
	}

	ensureAccount := func(ctx context.Context, claims *models.Claims) error {
		_, err := sc.Trials.EnsureAccount(ctx, claims)
		return err
	}

	sc.Router = handler.NewRouter(handler.Services{
		Links:     sc.Links,
		Trials:    sc.Trials,
		Files:     sc.Files,
		Local:     local,
		GroupSync: sc.GroupSync,
	}, handler.RouterConfig{
		BaseURL:        cfg.App.BaseURL,
		MaxUploadBytes: cfg.Storage.MaxUploadBytes,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Auth:           middleware.Auth(sc.Verifier, ensureAccount, logger),
		Admin:          middleware.NewAdminKey(cfg.Auth.AdminKeys).Middleware(),
		RateLimiter:    sc.RateLimit,
	}, logger)

	return nil
}

// openDatabase выбирает реализацию репозиториев по DB_DRIVER и применяет миграции
func (sc *ServiceContext) openDatabase(ctx context.Context) (repository.LinkRepository, repository.UserRepository, error) {
	cfg := sc.Config.DB

	if cfg.Driver == config.DriverPostgres {
		db, err := repository.NewPostgresDB(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		sc.onClose(db.Close)
		if err := db.Migrate(ctx); err != nil {
			return nil, nil, err
		}
		sc.Logger.Info("Connected to PostgreSQL")
		return repository.NewLinkRepository(db), repository.NewUserRepository(db), nil
	}

	db, err := repository.NewGormDB(cfg)
	if err != nil {
		return nil, nil, err
	}
	sc.onClose(func() { closeGorm(db) })
	if err := repository.MigrateGorm(ctx, db); err != nil {
		return nil, nil, err
	}
	sc.Logger.Info("Connected to database", zap.String("driver", cfg.Driver))
	return repository.NewGormLinkRepository(db), repository.NewGormUserRepository(db), nil
}

func newVerifier(ctx context.Context, cfg config.AuthConfig) (auth.Verifier, error) {
	switch cfg.Mode {
	case config.AuthOIDC:
		return auth.NewOIDCVerifier(ctx, cfg.Issuer, cfg.ClientID)
	case config.AuthHMAC:
		return auth.NewHMACVerifier(cfg.HMACSecret, cfg.Issuer), nil
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.Mode)
	}
}

// newMover Cognito при заданном пуле, иначе переносы только логируются
func newMover(ctx context.Context, cfg config.TrialConfig, logger *zap.Logger) (groups.Mover, error) {
	if cfg.UserPoolID == "" {
		logger.Warn("TRIAL_USER_POOL_ID is empty, group moves are logged only")
		return groups.NewNoop(logger), nil
	}
	cognito, err := groups.NewCognito(ctx, cfg.UserPoolID, cfg.Region)
	if err != nil {
		return nil, err
	}
	ensureTierGroups(ctx, cognito, cfg, logger)
	return cognito, nil
}

type groupEnsurer interface {
	EnsureGroups(ctx context.Context, names ...string) error
}

// ensureTierGroups без групп переносы будут падать, но запуск сервиса от этого не зависит
func ensureTierGroups(ctx context.Context, g groupEnsurer, cfg config.TrialConfig, logger *zap.Logger) {
	if err := g.EnsureGroups(ctx, cfg.FreeGroup, cfg.TrialGroup, cfg.PremiumGroup); err != nil {
		logger.Warn("Failed to ensure tier groups", zap.String("user_pool_id", cfg.UserPoolID), zap.Error(err))
		return
	}
	logger.Info("Tier groups ready", zap.String("user_pool_id", cfg.UserPoolID))
}

func closeGorm(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}

func (sc *ServiceContext) onClose(fn func()) {
	sc.closers = append(sc.closers, fn)
}

// Close освобождает ресурсы в обратном порядке: сначала дорабатывает очередь
// переносов групп, затем закрывает соединения
func (sc *ServiceContext) Close() {
	for i := len(sc.closers) - 1; i >= 0; i-- {
		sc.closers[i]()
	}
	sc.closers = nil
}
