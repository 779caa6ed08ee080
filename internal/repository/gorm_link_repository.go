package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SergeiKhy/fileshare/internal/models"
	"gorm.io/gorm"
)

const activeLinkCond = "(expires_at IS NULL OR expires_at > ?)"

type gormLinkRepository struct {
	db *gorm.DB
}

// NewGormLinkRepository LinkRepository поверх MySQL/SQLite
func NewGormLinkRepository(db *gorm.DB) LinkRepository {
	return &gormLinkRepository{db: db}
}

func toLinkRecord(l *models.Link) *linkRecord {
	rec := &linkRecord{
		Code:        l.Code,
		TargetURL:   l.TargetURL,
		Owner:       l.Owner,
		ResourceKey: l.ResourceKey,
		DisplayName: l.DisplayName,
		CreatedAt:   l.CreatedAt.UTC(),
	}
	if l.ExpiresAt != nil {
		t := l.ExpiresAt.UTC()
		rec.ExpiresAt = &t
	}
	return rec
}

func (rec *linkRecord) toModel() *models.Link {
	return &models.Link{
		Code:        rec.Code,
		TargetURL:   rec.TargetURL,
		Owner:       rec.Owner,
		ResourceKey: rec.ResourceKey,
		DisplayName: rec.DisplayName,
		CreatedAt:   rec.CreatedAt,
		ExpiresAt:   rec.ExpiresAt,
		ClickCount:  rec.ClickCount,
	}
}

func (r *gormLinkRepository) Create(ctx context.Context, link *models.Link) error {
	rec := toLinkRecord(link)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Освобождаем код, если его держит только истёкшая запись
		if err := tx.Where("code = ? AND expires_at IS NOT NULL AND expires_at <= ?", rec.Code, rec.CreatedAt).
			Delete(&linkRecord{}).Error; err != nil {
			return err
		}
		return tx.Create(rec).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrCodeExists
		}
		return fmt.Errorf("failed to create link: %w", err)
	}

	link.ClickCount = 0
	return nil
}

func (r *gormLinkRepository) FindActiveByTarget(ctx context.Context, targetURL, owner string, now time.Time) (*models.Link, error) {
	var rec linkRecord
	err := r.db.WithContext(ctx).
		Where("target_url = ? AND owner = ?", targetURL, owner).
		Where(activeLinkCond, now.UTC()).
		Order("created_at DESC").
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to find link by target: %w", err)
	}
	return rec.toModel(), nil
}

func (r *gormLinkRepository) CodeInUse(ctx context.Context, code string, now time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&linkRecord{}).
		Where("code = ?", code).
		Where(activeLinkCond, now.UTC()).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check code: %w", err)
	}
	return count > 0, nil
}

func (r *gormLinkRepository) Resolve(ctx context.Context, code string, now time.Time) (*models.Link, error) {
	var rec linkRecord
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&linkRecord{}).
			Where("code = ?", code).
			Where(activeLinkCond, now.UTC()).
			Update("click_count", gorm.Expr("click_count + ?", 1))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrLinkNotFound
		}
		// Строка заблокирована UPDATE до конца транзакции
		return tx.Where("code = ?", code).First(&rec).Error
	})
	if err != nil {
		if errors.Is(err, ErrLinkNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to resolve link: %w", err)
	}
	return rec.toModel(), nil
}

func (r *gormLinkRepository) ListByOwner(ctx context.Context, owner string, now time.Time, limit int) ([]models.Link, error) {
	var recs []linkRecord
	err := r.db.WithContext(ctx).
		Where("owner = ?", owner).
		Where(activeLinkCond, now.UTC()).
		Order("created_at DESC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}

	links := make([]models.Link, 0, len(recs))
	for i := range recs {
		links = append(links, *recs[i].toModel())
	}
	return links, nil
}

func (r *gormLinkRepository) DeleteOwned(ctx context.Context, code, owner string) (bool, error) {
	res := r.db.WithContext(ctx).Where("code = ? AND owner = ?", code, owner).Delete(&linkRecord{})
	if res.Error != nil {
		return false, fmt.Errorf("failed to delete link: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *gormLinkRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at < ?", now.UTC()).
		Delete(&linkRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete expired links: %w", res.Error)
	}
	return res.RowsAffected, nil
}
