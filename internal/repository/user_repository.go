package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SergeiKhy/fileshare/internal/models"
	"github.com/jackc/pgx/v5"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email belongs to another account")
)

// UserRepository реестр подписок. Переходы тарифа выполняются условными UPDATE,
// поэтому из нескольких конкурентных вызовов изменение применяет ровно один.
type UserRepository interface {
	GetByID(ctx context.Context, userID string) (*models.UserAccount, error)
	GetByEmail(ctx context.Context, email string) (*models.UserAccount, error)
	// Upsert создаёт аккаунт с заданным тарифом либо обновляет email существующего.
	// Тариф и поля пробного периода существующего аккаунта не меняются.
	Upsert(ctx context.Context, userID, email string, tier models.Tier, now time.Time) (*models.UserAccount, error)
	// SetTrial начинает пробный период, только если trial_used = false и тариф Free
	SetTrial(ctx context.Context, userID string, startedAt, expiresAt time.Time) (bool, error)
	SetTier(ctx context.Context, userID string, tier models.Tier, now time.Time) error
	// ExpireTrial переводит Trial -> Free, только если trial_expires_at < asOf.
	// updated_at получает now, а не asOf.
	ExpireTrial(ctx context.Context, userID string, asOf, now time.Time) (bool, error)
	ScanExpiredTrials(ctx context.Context, asOf time.Time) ([]models.UserAccount, error)
	// ScanExpiringTrials активные пробные периоды с from <= trial_expires_at <= to
	ScanExpiringTrials(ctx context.Context, from, to time.Time) ([]models.UserAccount, error)
}

const userColumns = `user_id, email, tier, trial_used, trial_started_at, trial_expires_at, created_at, updated_at`

type userRepository struct {
	db *PostgresDB
}

func NewUserRepository(db *PostgresDB) UserRepository {
	return &userRepository{db: db}
}

func scanUser(row pgx.Row) (*models.UserAccount, error) {
	u := &models.UserAccount{}
	var tier string
	err := row.Scan(
		&u.UserID,
		&u.Email,
		&tier,
		&u.TrialUsed,
		&u.TrialStartedAt,
		&u.TrialExpiresAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.Tier = models.Tier(tier)
	return u, nil
}

func (r *userRepository) get(ctx context.Context, where string, arg any) (*models.UserAccount, error) {
	query := `SELECT ` + userColumns + ` FROM user_accounts WHERE ` + where

	u, err := scanUser(r.db.Pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

func (r *userRepository) GetByID(ctx context.Context, userID string) (*models.UserAccount, error) {
	return r.get(ctx, `user_id = $1`, userID)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.UserAccount, error) {
	return r.get(ctx, `email = $1`, email)
}

func (r *userRepository) Upsert(ctx context.Context, userID, email string, tier models.Tier, now time.Time) (*models.UserAccount, error) {
	query := `
		INSERT INTO user_accounts (user_id, email, tier, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			email      = EXCLUDED.email,
			updated_at = CASE WHEN user_accounts.email <> EXCLUDED.email
				THEN EXCLUDED.updated_at ELSE user_accounts.updated_at END
		RETURNING ` + userColumns

	u, err := scanUser(r.db.Pool.QueryRow(ctx, query, userID, email, string(tier), now))
	if err != nil {
		// user_id обрабатывается ON CONFLICT, значит нарушена уникальность email
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return u, nil
}

func (r *userRepository) SetTrial(ctx context.Context, userID string, startedAt, expiresAt time.Time) (bool, error) {
	query := `
		UPDATE user_accounts
		SET tier = $2, trial_used = TRUE, trial_started_at = $3, trial_expires_at = $4, updated_at = $3
		WHERE user_id = $1 AND trial_used = FALSE AND tier = $5
	`

	result, err := r.db.Pool.Exec(ctx, query, userID, string(models.TierTrial), startedAt, expiresAt, string(models.TierFree))
	if err != nil {
		return false, fmt.Errorf("failed to start trial: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

func (r *userRepository) SetTier(ctx context.Context, userID string, tier models.Tier, now time.Time) error {
	query := `UPDATE user_accounts SET tier = $2, updated_at = $3 WHERE user_id = $1`

	result, err := r.db.Pool.Exec(ctx, query, userID, string(tier), now)
	if err != nil {
		return fmt.Errorf("failed to set tier: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *userRepository) ExpireTrial(ctx context.Context, userID string, asOf, now time.Time) (bool, error) {
	query := `
		UPDATE user_accounts
		SET tier = $2, updated_at = $5
		WHERE user_id = $1 AND tier = $4 AND trial_expires_at < $3
	`

	result, err := r.db.Pool.Exec(ctx, query, userID, string(models.TierFree), asOf, string(models.TierTrial), now)
	if err != nil {
		return false, fmt.Errorf("failed to expire trial: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

func (r *userRepository) ScanExpiredTrials(ctx context.Context, asOf time.Time) ([]models.UserAccount, error) {
	query := `
		SELECT ` + userColumns + `
		FROM user_accounts
		WHERE tier = $1 AND trial_expires_at < $2
		ORDER BY trial_expires_at
	`

	users, err := r.list(ctx, query, string(models.TierTrial), asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to scan expired trials: %w", err)
	}
	return users, nil
}

func (r *userRepository) ScanExpiringTrials(ctx context.Context, from, to time.Time) ([]models.UserAccount, error) {
	query := `
		SELECT ` + userColumns + `
		FROM user_accounts
		WHERE tier = $1 AND trial_expires_at >= $2 AND trial_expires_at <= $3
		ORDER BY trial_expires_at
	`

	users, err := r.list(ctx, query, string(models.TierTrial), from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to scan expiring trials: %w", err)
	}
	return users, nil
}

func (r *userRepository) list(ctx context.Context, query string, args ...any) ([]models.UserAccount, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]models.UserAccount, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}
