package service

import (
	"errors"
	"fmt"
	"time"
)

// Ошибки сервиса
var (
	ErrInvalidURL         = errors.New("невалидный URL")
	ErrInvalidExpiry      = errors.New("некорректный срок действия ссылки")
	ErrInvalidInput       = errors.New("некорректные входные данные")
	ErrInvalidFile        = errors.New("недопустимое имя файла")
	ErrNotFound           = errors.New("не найдено")
	ErrTrialUnavailable   = errors.New("пробный период недоступен")
	ErrAccountConflict    = errors.New("идентификатор уже привязан к другому аккаунту")
	ErrCodeSpaceExhausted = errors.New("не удалось подобрать свободный короткий код")
	ErrStorage            = errors.New("хранилище временно недоступно")
)

// storageErr помечает ошибку драйвера как временную
func storageErr(err error) error {
	return fmt.Errorf("%w: %w", ErrStorage, err)
}

// Clock источник текущего времени. В тестах подменяется.
type Clock func() time.Time

// SystemClock UTC с точностью до микросекунд, как у TIMESTAMPTZ
func SystemClock() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
