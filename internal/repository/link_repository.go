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
	ErrLinkNotFound = errors.New("link not found")
	ErrCodeExists   = errors.New("short code already exists")
)

// LinkRepository хранилище коротких ссылок. Все проверки активности принимают now явно.
type LinkRepository interface {
	// Create вставляет ссылку. Код, занятый только истёкшей записью, переиспользуется.
	Create(ctx context.Context, link *models.Link) error
	FindActiveByTarget(ctx context.Context, targetURL, owner string, now time.Time) (*models.Link, error)
	CodeInUse(ctx context.Context, code string, now time.Time) (bool, error)
	// Resolve атомарно увеличивает счётчик переходов и возвращает ссылку после увеличения
	Resolve(ctx context.Context, code string, now time.Time) (*models.Link, error)
	ListByOwner(ctx context.Context, owner string, now time.Time, limit int) ([]models.Link, error)
	DeleteOwned(ctx context.Context, code, owner string) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

const linkColumns = `code, target_url, owner, resource_key, display_name, created_at, expires_at, click_count`

type linkRepository struct {
	db *PostgresDB
}

func NewLinkRepository(db *PostgresDB) LinkRepository {
	return &linkRepository{db: db}
}

func scanLink(row pgx.Row) (*models.Link, error) {
	link := &models.Link{}
	err := row.Scan(
		&link.Code,
		&link.TargetURL,
		&link.Owner,
		&link.ResourceKey,
		&link.DisplayName,
		&link.CreatedAt,
		&link.ExpiresAt,
		&link.ClickCount,
	)
	if err != nil {
		return nil, err
	}
	return link, nil
}

func (r *linkRepository) Create(ctx context.Context, link *models.Link) error {
	query := `
		INSERT INTO short_links (code, target_url, owner, resource_key, display_name, created_at, expires_at, click_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0)
		ON CONFLICT (code) DO UPDATE SET
			target_url   = EXCLUDED.target_url,
			owner        = EXCLUDED.owner,
			resource_key = EXCLUDED.resource_key,
			display_name = EXCLUDED.display_name,
			created_at   = EXCLUDED.created_at,
			expires_at   = EXCLUDED.expires_at,
			click_count  = 0
		WHERE short_links.expires_at IS NOT NULL AND short_links.expires_at <= EXCLUDED.created_at
		RETURNING code
	`

	var code string
	err := r.db.Pool.QueryRow(
		ctx,
		query,
		link.Code,
		link.TargetURL,
		link.Owner,
		link.ResourceKey,
		link.DisplayName,
		link.CreatedAt,
		link.ExpiresAt,
	).Scan(&code)

	if err != nil {
		// Конфликт с активной записью: DO UPDATE пропущен, строк нет
		if errors.Is(err, pgx.ErrNoRows) || isUniqueViolation(err) {
			return ErrCodeExists
		}
		return fmt.Errorf("failed to create link: %w", err)
	}

	link.ClickCount = 0
	return nil
}

func (r *linkRepository) FindActiveByTarget(ctx context.Context, targetURL, owner string, now time.Time) (*models.Link, error) {
	query := `
		SELECT ` + linkColumns + `
		FROM short_links
		WHERE target_url = $1 AND owner = $2 AND (expires_at IS NULL OR expires_at > $3)
		ORDER BY created_at DESC
		LIMIT 1
	`

	link, err := scanLink(r.db.Pool.QueryRow(ctx, query, targetURL, owner, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to find link by target: %w", err)
	}
	return link, nil
}

func (r *linkRepository) CodeInUse(ctx context.Context, code string, now time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM short_links
			WHERE code = $1 AND (expires_at IS NULL OR expires_at > $2)
		)
	`

	var exists bool
	if err := r.db.Pool.QueryRow(ctx, query, code, now).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check code: %w", err)
	}
	return exists, nil
}

func (r *linkRepository) Resolve(ctx context.Context, code string, now time.Time) (*models.Link, error) {
	query := `
		UPDATE short_links
		SET click_count = click_count + 1
		WHERE code = $1 AND (expires_at IS NULL OR expires_at > $2)
		RETURNING ` + linkColumns

	link, err := scanLink(r.db.Pool.QueryRow(ctx, query, code, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to resolve link: %w", err)
	}
	return link, nil
}

func (r *linkRepository) ListByOwner(ctx context.Context, owner string, now time.Time, limit int) ([]models.Link, error) {
	query := `
		SELECT ` + linkColumns + `
		FROM short_links
		WHERE owner = $1 AND (expires_at IS NULL OR expires_at > $2)
		ORDER BY created_at DESC
		LIMIT $3
	`

	rows, err := r.db.Pool.Query(ctx, query, owner, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	defer rows.Close()

	links := make([]models.Link, 0)
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		links = append(links, *link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	return links, nil
}

func (r *linkRepository) DeleteOwned(ctx context.Context, code, owner string) (bool, error) {
	query := `DELETE FROM short_links WHERE code = $1 AND owner = $2`

	result, err := r.db.Pool.Exec(ctx, query, code, owner)
	if err != nil {
		return false, fmt.Errorf("failed to delete link: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

func (r *linkRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM short_links WHERE expires_at IS NOT NULL AND expires_at < $1`

	result, err := r.db.Pool.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired links: %w", err)
	}
	return result.RowsAffected(), nil
}
