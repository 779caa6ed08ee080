package repository

import (
	"context"
	"fmt"
	"time"
)

// LockRepository короткоживущие распределённые блокировки.
// Используется, чтобы очистка истёкших ссылок шла не чаще одного раза за интервал на весь кластер.
type LockRepository interface {
	// TryAcquire возвращает true, если блокировка взята этим вызовом. Освобождается по ttl.
	TryAcquire(ctx context.Context, name string, ttl time.Duration) (bool, error)
}

type lockRepository struct {
	redis *RedisDB
	owner string
}

// NewLockRepository owner записывается значением ключа для диагностики
func NewLockRepository(redis *RedisDB, owner string) LockRepository {
	return &lockRepository{redis: redis, owner: owner}
}

func (r *lockRepository) TryAcquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	ok, err := r.redis.Client.SetNX(ctx, r.key(name), r.owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", name, err)
	}
	return ok, nil
}

func (r *lockRepository) key(name string) string {
	return "lock:" + name
}
