package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/SergeiKhy/fileshare/internal/models"
	"github.com/SergeiKhy/fileshare/internal/repository"
	"github.com/SergeiKhy/fileshare/internal/shortcode"
	"go.uber.org/zap"
)

// Константы сервиса
const (
	defaultExpiryDays = 7
	maxExpiryDays     = 3650
	maxCreateAttempts = 10
	defaultListLimit  = 100
	maxListLimit      = 1000
	maxURLLength      = 8192
	sweepLockName     = "short_links_sweep"
)

var urlPattern = regexp.MustCompile(`^https?://[^\s]+$`)

// LinkService интерфейс сервиса коротких ссылок
type LinkService interface {
	CreateLink(ctx context.Context, input *models.CreateLinkInput) (*models.CreateLinkResult, error)
	Resolve(ctx context.Context, code string) (*models.Link, error)
	ListForOwner(ctx context.Context, owner string, limit int) ([]models.Link, error)
	DeleteLink(ctx context.Context, code, owner string) (bool, error)
	Sweep(ctx context.Context) (int64, error)
}

type LinkServiceConfig struct {
	DefaultExpiryDays int
	// SweepInterval минимальный интервал между попутными очистками в кластере
	SweepInterval time.Duration
	Generator     shortcode.Generator
	Clock         Clock
}

// linkService реализация сервиса ссылок
type linkService struct {
	linkRepo  repository.LinkRepository
	sweepLock repository.LockRepository
	logger    *zap.Logger
	cfg       LinkServiceConfig
}

// NewLinkService sweepLock может быть nil: тогда очистка идёт перед каждой записью
func NewLinkService(
	linkRepo repository.LinkRepository,
	sweepLock repository.LockRepository,
	logger *zap.Logger,
	cfg LinkServiceConfig,
) (LinkService, error) {
	if cfg.DefaultExpiryDays <= 0 {
		cfg.DefaultExpiryDays = defaultExpiryDays
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock
	}
	if cfg.Generator == nil {
		gen, err := shortcode.NewRandom(shortcode.DefaultLength)
		if err != nil {
			return nil, err
		}
		cfg.Generator = gen
	}

	return &linkService{
		linkRepo:  linkRepo,
		sweepLock: sweepLock,
		logger:    logger,
		cfg:       cfg,
	}, nil
}

// CreateLink создаёт короткую ссылку или возвращает существующую активную для той же пары (target, owner)
func (s *linkService) CreateLink(ctx context.Context, input *models.CreateLinkInput) (*models.CreateLinkResult, error) {
	if err := validateURL(input.TargetURL); err != nil {
		return nil, err
	}

	days := s.cfg.DefaultExpiryDays
	if input.ExpiresInDays != nil {
		days = *input.ExpiresInDays
	}
	if days < 0 || days > maxExpiryDays {
		return nil, ErrInvalidExpiry
	}

	now := s.cfg.Clock()
	s.sweepBeforeWrite(ctx, now)

	existing, err := s.linkRepo.FindActiveByTarget(ctx, input.TargetURL, input.Owner, now)
	switch {
	case err == nil:
		return &models.CreateLinkResult{Code: existing.Code, Created: false, ExpiresAt: existing.ExpiresAt}, nil
	case !errors.Is(err, repository.ErrLinkNotFound):
		return nil, storageErr(err)
	}

	// 0 дней = бессрочная ссылка
	var expiresAt *time.Time
	if days > 0 {
		t := now.Add(time.Duration(days) * 24 * time.Hour)
		expiresAt = &t
	}

	for attempt := 1; attempt <= maxCreateAttempts; attempt++ {
		code, err := s.cfg.Generator.Generate()
		if err != nil {
			return nil, fmt.Errorf("failed to generate code: %w", err)
		}

		inUse, err := s.linkRepo.CodeInUse(ctx, code, now)
		if err != nil {
			return nil, storageErr(err)
		}
		if inUse {
			s.logger.Debug("Short code collision", zap.String("code", code), zap.Int("attempt", attempt))
			continue
		}

		link := &models.Link{
			Code:        code,
			TargetURL:   input.TargetURL,
			Owner:       input.Owner,
			ResourceKey: input.ResourceKey,
			DisplayName: input.DisplayName,
			CreatedAt:   now,
			ExpiresAt:   expiresAt,
		}
		err = s.linkRepo.Create(ctx, link)
		if errors.Is(err, repository.ErrCodeExists) {
			// Код заняли между проверкой и вставкой
			s.logger.Debug("Short code taken concurrently", zap.String("code", code), zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return nil, storageErr(err)
		}

		s.logger.Info("Short link created",
			zap.String("code", code),
			zap.String("owner", input.Owner),
			zap.Int("attempt", attempt),
		)
		return &models.CreateLinkResult{Code: code, Created: true, ExpiresAt: expiresAt}, nil
	}

	s.logger.Error("Short code space exhausted", zap.Int("attempts", maxCreateAttempts))
	return nil, ErrCodeSpaceExhausted
}

// Resolve возвращает активную ссылку и засчитывает переход
func (s *linkService) Resolve(ctx context.Context, code string) (*models.Link, error) {
	if !shortcode.Valid(code) {
		return nil, ErrNotFound
	}

	link, err := s.linkRepo.Resolve(ctx, code, s.cfg.Clock())
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return nil, ErrNotFound
		}
		return nil, storageErr(err)
	}
	return link, nil
}

// ListForOwner активные ссылки владельца, новые первыми
func (s *linkService) ListForOwner(ctx context.Context, owner string, limit int) ([]models.Link, error) {
	if owner == "" {
		return nil, ErrInvalidInput
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	links, err := s.linkRepo.ListByOwner(ctx, owner, s.cfg.Clock(), limit)
	if err != nil {
		return nil, storageErr(err)
	}
	return links, nil
}

// DeleteLink удаляет ссылку владельца. Чужая и отсутствующая ссылка неразличимы: false.
func (s *linkService) DeleteLink(ctx context.Context, code, owner string) (bool, error) {
	if owner == "" || code == "" {
		return false, nil
	}

	deleted, err := s.linkRepo.DeleteOwned(ctx, code, owner)
	if err != nil {
		return false, storageErr(err)
	}
	if deleted {
		s.logger.Info("Short link deleted", zap.String("code", code), zap.String("owner", owner))
	}
	return deleted, nil
}

// Sweep удаляет все ссылки с expires_at < now
func (s *linkService) Sweep(ctx context.Context) (int64, error) {
	removed, err := s.linkRepo.DeleteExpired(ctx, s.cfg.Clock())
	if err != nil {
		return 0, storageErr(err)
	}
	s.logger.Info("Expired links swept", zap.Int64("removed", removed))
	return removed, nil
}

// sweepBeforeWrite попутная очистка. Ошибки не прерывают запись.
func (s *linkService) sweepBeforeWrite(ctx context.Context, now time.Time) {
	if s.sweepLock != nil {
		acquired, err := s.sweepLock.TryAcquire(ctx, sweepLockName, s.cfg.SweepInterval)
		if err != nil {
			s.logger.Warn("Sweep lock unavailable, sweeping anyway", zap.Error(err))
		} else if !acquired {
			return
		}
	}

	removed, err := s.linkRepo.DeleteExpired(ctx, now)
	if err != nil {
		s.logger.Warn("Opportunistic sweep failed", zap.Error(err))
		return
	}
	if removed > 0 {
		s.logger.Debug("Opportunistic sweep", zap.Int64("removed", removed))
	}
}

// validateURL проверяет формат URL с помощью регулярного выражения
func validateURL(url string) error {
	if len(url) > maxURLLength || !urlPattern.MatchString(url) {
		return ErrInvalidURL
	}
	return nil
}
