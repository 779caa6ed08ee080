package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/SergeiKhy/fileshare/internal/models"
)

var (
	ErrObjectNotFound = errors.New("object not found")
	ErrInvalidKey     = errors.New("invalid object key")
	ErrInvalidToken   = errors.New("invalid download token")
)

// ObjectStore хранилище пользовательских файлов
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	List(ctx context.Context, prefix string) ([]models.ObjectInfo, error)
	Delete(ctx context.Context, key string) error
	// SignedURL выдаёт ссылку на скачивание. Возвращает фактический срок действия:
	// бэкенд может урезать запрошенный ttl до своего максимума.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, time.Duration, error)
}

const maxNameLength = 255

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9\-_. ]+`)

// SanitizeName оставляет базовое имя файла без опасных символов
func SanitizeName(name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(path.Clean("/" + name))
	name = strings.TrimSpace(unsafeChars.ReplaceAllString(name, ""))
	if name == "" || name == "." || name == ".." || name == "/" {
		return "", ErrInvalidKey
	}
	if len(name) > maxNameLength {
		ext := path.Ext(name)
		if len(ext) > 16 {
			ext = ""
		}
		name = name[:maxNameLength-len(ext)] + ext
	}
	return name, nil
}

// ObjectKey собирает ключ объекта пользователя: <subject>/<имя>
func ObjectKey(subject, name string) (string, error) {
	if subject == "" || strings.ContainsAny(subject, "/\\") || subject == "." || subject == ".." {
		return "", ErrInvalidKey
	}
	clean, err := SanitizeName(name)
	if err != nil {
		return "", err
	}
	return subject + "/" + clean, nil
}

// UserPrefix префикс всех объектов пользователя
func UserPrefix(subject string) string {
	return subject + "/"
}
