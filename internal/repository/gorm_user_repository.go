package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SergeiKhy/fileshare/internal/models"
	"gorm.io/gorm"
)

type gormUserRepository struct {
	db *gorm.DB
}

// NewGormUserRepository UserRepository поверх MySQL/SQLite
func NewGormUserRepository(db *gorm.DB) UserRepository {
	return &gormUserRepository{db: db}
}

func (rec *userRecord) toModel() *models.UserAccount {
	return &models.UserAccount{
		UserID:         rec.UserID,
		Email:          rec.Email,
		Tier:           models.Tier(rec.Tier),
		TrialUsed:      rec.TrialUsed,
		TrialStartedAt: rec.TrialStartedAt,
		TrialExpiresAt: rec.TrialExpiresAt,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
	}
}

func (r *gormUserRepository) first(ctx context.Context, query string, arg any) (*models.UserAccount, error) {
	var rec userRecord
	if err := r.db.WithContext(ctx).Where(query, arg).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return rec.toModel(), nil
}

func (r *gormUserRepository) GetByID(ctx context.Context, userID string) (*models.UserAccount, error) {
	return r.first(ctx, "user_id = ?", userID)
}

func (r *gormUserRepository) GetByEmail(ctx context.Context, email string) (*models.UserAccount, error) {
	return r.first(ctx, "email = ?", email)
}

func (r *gormUserRepository) Upsert(ctx context.Context, userID, email string, tier models.Tier, now time.Time) (*models.UserAccount, error) {
	now = now.UTC()
	var rec userRecord
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("user_id = ?", userID).First(&rec).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			rec = userRecord{
				UserID:    userID,
				Email:     email,
				Tier:      string(tier),
				CreatedAt: now,
				UpdatedAt: now,
			}
			return tx.Create(&rec).Error
		case err != nil:
			return err
		case rec.Email == email:
			return nil
		}

		rec.Email = email
		rec.UpdatedAt = now
		return tx.Model(&userRecord{}).Where("user_id = ?", userID).
			Updates(map[string]any{"email": email, "updated_at": now}).Error
	})
	if err != nil {
		// Конкурентное создание того же user_id: перечитываем запись
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			existing, getErr := r.GetByID(ctx, userID)
			if getErr == nil && existing.Email == email {
				return existing, nil
			}
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return rec.toModel(), nil
}

func (r *gormUserRepository) SetTrial(ctx context.Context, userID string, startedAt, expiresAt time.Time) (bool, error) {
	startedAt, expiresAt = startedAt.UTC(), expiresAt.UTC()
	res := r.db.WithContext(ctx).Model(&userRecord{}).
		Where("user_id = ? AND trial_used = ? AND tier = ?", userID, false, string(models.TierFree)).
		Updates(map[string]any{
			"tier":             string(models.TierTrial),
			"trial_used":       true,
			"trial_started_at": startedAt,
			"trial_expires_at": expiresAt,
			"updated_at":       startedAt,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to start trial: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *gormUserRepository) SetTier(ctx context.Context, userID string, tier models.Tier, now time.Time) error {
	res := r.db.WithContext(ctx).Model(&userRecord{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{"tier": string(tier), "updated_at": now.UTC()})
	if res.Error != nil {
		return fmt.Errorf("failed to set tier: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *gormUserRepository) ExpireTrial(ctx context.Context, userID string, asOf, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&userRecord{}).
		Where("user_id = ? AND tier = ? AND trial_expires_at < ?", userID, string(models.TierTrial), asOf.UTC()).
		Updates(map[string]any{"tier": string(models.TierFree), "updated_at": now.UTC()})
	if res.Error != nil {
		return false, fmt.Errorf("failed to expire trial: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *gormUserRepository) ScanExpiredTrials(ctx context.Context, asOf time.Time) ([]models.UserAccount, error) {
	users, err := r.list(ctx, "tier = ? AND trial_expires_at < ?", string(models.TierTrial), asOf.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to scan expired trials: %w", err)
	}
	return users, nil
}

func (r *gormUserRepository) ScanExpiringTrials(ctx context.Context, from, to time.Time) ([]models.UserAccount, error) {
	users, err := r.list(ctx, "tier = ? AND trial_expires_at >= ? AND trial_expires_at <= ?",
		string(models.TierTrial), from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to scan expiring trials: %w", err)
	}
	return users, nil
}

func (r *gormUserRepository) list(ctx context.Context, where string, args ...any) ([]models.UserAccount, error) {
	var recs []userRecord
	if err := r.db.WithContext(ctx).Where(where, args...).Order("trial_expires_at").Find(&recs).Error; err != nil {
		return nil, err
	}

	users := make([]models.UserAccount, 0, len(recs))
	for i := range recs {
		users = append(users, *recs[i].toModel())
	}
	return users, nil
}
