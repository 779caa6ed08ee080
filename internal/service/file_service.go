package service

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/SergeiKhy/fileshare/internal/models"
	"github.com/SergeiKhy/fileshare/internal/storage"
	"go.uber.org/zap"
)

const (
	defaultFreeLinkTTL    = 3 * 24 * time.Hour
	defaultPremiumLinkTTL = 30 * 24 * time.Hour
)

// FileService файлы пользователя. Каждый пользователь работает только со своим префиксом.
type FileService interface {
	Upload(ctx context.Context, claims *models.Claims, filename string, body io.Reader, size int64, contentType string) (*models.ObjectInfo, error)
	List(ctx context.Context, claims *models.Claims) ([]models.ObjectInfo, error)
	Delete(ctx context.Context, claims *models.Claims, name string) error
	// DownloadLink подписанная ссылка, обёрнутая в короткую. Срок зависит от тарифа.
	DownloadLink(ctx context.Context, claims *models.Claims, name string) (*models.DownloadLink, error)
}

type FileServiceConfig struct {
	FreeLinkTTL    time.Duration
	PremiumLinkTTL time.Duration
	PremiumGroup   string
	BaseURL        string
	Clock          Clock
}

type fileService struct {
	store  storage.ObjectStore
	links  LinkService
	trials TrialService
	logger *zap.Logger
	cfg    FileServiceConfig
}

func NewFileService(
	store storage.ObjectStore,
	links LinkService,
	trials TrialService,
	logger *zap.Logger,
	cfg FileServiceConfig,
) FileService {
	if cfg.FreeLinkTTL <= 0 {
		cfg.FreeLinkTTL = defaultFreeLinkTTL
	}
	if cfg.PremiumLinkTTL <= 0 {
		cfg.PremiumLinkTTL = defaultPremiumLinkTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock
	}

	return &fileService{
		store:  store,
		links:  links,
		trials: trials,
		logger: logger,
		cfg:    cfg,
	}
}

func (s *fileService) Upload(ctx context.Context, claims *models.Claims, filename string, body io.Reader, size int64, contentType string) (*models.ObjectInfo, error) {
	key, err := s.key(claims, filename)
	if err != nil {
		return nil, err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if err := s.store.Put(ctx, key, body, size, contentType); err != nil {
		return nil, objectErr(err)
	}

	s.logger.Info("File uploaded",
		zap.String("user_id", claims.Subject),
		zap.String("key", key),
		zap.Int64("size", size),
	)
	return &models.ObjectInfo{
		Key:        key,
		Name:       key[len(storage.UserPrefix(claims.Subject)):],
		Size:       size,
		ModifiedAt: s.cfg.Clock(),
	}, nil
}

func (s *fileService) List(ctx context.Context, claims *models.Claims) ([]models.ObjectInfo, error) {
	if claims == nil || claims.Subject == "" {
		return nil, ErrInvalidInput
	}

	objects, err := s.store.List(ctx, storage.UserPrefix(claims.Subject))
	if err != nil {
		return nil, objectErr(err)
	}
	return objects, nil
}

func (s *fileService) Delete(ctx context.Context, claims *models.Claims, name string) error {
	key, err := s.key(claims, name)
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, key); err != nil {
		return objectErr(err)
	}

	s.logger.Info("File deleted", zap.String("user_id", claims.Subject), zap.String("key", key))
	return nil
}

func (s *fileService) DownloadLink(ctx context.Context, claims *models.Claims, name string) (*models.DownloadLink, error) {
	key, err := s.key(claims, name)
	if err != nil {
		return nil, err
	}

	object, err := s.find(ctx, claims.Subject, key)
	if err != nil {
		return nil, err
	}

	tier, err := s.tierOf(ctx, claims)
	if err != nil {
		return nil, err
	}
	ttl := s.cfg.FreeLinkTTL
	if tier != models.TierFree {
		ttl = s.cfg.PremiumLinkTTL
	}

	now := s.cfg.Clock()
	signed, applied, err := s.store.SignedURL(ctx, key, ttl)
	if err != nil {
		return nil, objectErr(err)
	}
	if applied < ttl {
		s.logger.Info("Download link TTL limited by object store",
			zap.Duration("requested", ttl),
			zap.Duration("applied", applied),
		)
		ttl = applied
	}

	// Срок короткой ссылки в сутках, округлён вниз до срока подписанного URL (минимум сутки)
	days := int(ttl / (24 * time.Hour))
	if days < 1 {
		days = 1
	}
	short, err := s.links.CreateLink(ctx, &models.CreateLinkInput{
		TargetURL:     signed,
		Owner:         claims.Identity(),
		ResourceKey:   key,
		DisplayName:   object.Name,
		ExpiresInDays: &days,
	})
	if err != nil {
		return nil, err
	}

	return &models.DownloadLink{
		URL:              signed,
		ShortCode:        short.Code,
		ShortURL:         s.cfg.BaseURL + "/s/" + short.Code,
		Tier:             tier,
		ExpiresInSeconds: int64(ttl / time.Second),
		ExpiresAt:        now.Add(ttl),
	}, nil
}

// tierOf тариф из реестра; группа premium в токене приравнивается к Premium
func (s *fileService) tierOf(ctx context.Context, claims *models.Claims) (models.Tier, error) {
	tier, err := s.trials.EffectiveTier(ctx, claims)
	if err != nil {
		return "", err
	}
	if tier == models.TierFree && claims.InGroup(s.cfg.PremiumGroup) {
		return models.TierPremium, nil
	}
	return tier, nil
}

func (s *fileService) find(ctx context.Context, subject, key string) (*models.ObjectInfo, error) {
	objects, err := s.store.List(ctx, storage.UserPrefix(subject))
	if err != nil {
		return nil, objectErr(err)
	}
	for i := range objects {
		if objects[i].Key == key {
			return &objects[i], nil
		}
	}
	return nil, ErrNotFound
}

func (s *fileService) key(claims *models.Claims, name string) (string, error) {
	if claims == nil || claims.Subject == "" {
		return "", ErrInvalidInput
	}
	key, err := storage.ObjectKey(claims.Subject, name)
	if err != nil {
		return "", ErrInvalidFile
	}
	return key, nil
}

func objectErr(err error) error {
	switch {
	case errors.Is(err, storage.ErrObjectNotFound):
		return ErrNotFound
	case errors.Is(err, storage.ErrInvalidKey):
		return ErrInvalidFile
	default:
		return storageErr(err)
	}
}
