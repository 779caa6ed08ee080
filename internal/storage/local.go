package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/SergeiKhy/fileshare/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

// DownloadPath маршрут, по которому локальное хранилище отдаёт файлы
const DownloadPath = "/files/download"

// Local хранит объекты в дереве каталогов, ссылки подписываются HS256 токеном
type Local struct {
	baseDir string
	baseURL string
	secret  []byte
	now     func() time.Time
}

func NewLocal(baseDir, baseURL, secret string) (*Local, error) {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}
	return &Local{
		baseDir: abs,
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  []byte(secret),
		now:     time.Now,
	}, nil
}

// resolve переводит ключ в путь на диске, не выпуская за пределы baseDir
func (l *Local) resolve(key string) (string, error) {
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." || strings.Contains(part, "\\") {
			return "", ErrInvalidKey
		}
	}
	p := filepath.Join(l.baseDir, filepath.FromSlash(key))
	if !strings.HasPrefix(p, l.baseDir+string(filepath.Separator)) {
		return "", ErrInvalidKey
	}
	return p, nil
}

func (l *Local) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	p, err := l.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Пишем во временный файл и переименовываем, чтобы не отдавать недописанный
	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close object: %w", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("failed to store object: %w", err)
	}
	return nil
}

func (l *Local) List(ctx context.Context, prefix string) ([]models.ObjectInfo, error) {
	dir, err := l.resolve(strings.TrimSuffix(prefix, "/"))
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []models.ObjectInfo{}, nil
		}
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	objects := make([]models.ObjectInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".upload-") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		objects = append(objects, models.ObjectInfo{
			Key:        prefix + entry.Name(),
			Name:       entry.Name(),
			Size:       info.Size(),
			ModifiedAt: info.ModTime().UTC(),
		})
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

func (l *Local) Delete(ctx context.Context, key string) error {
	p, err := l.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrObjectNotFound
		}
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

func (l *Local) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, time.Duration, error) {
	if _, err := l.resolve(key); err != nil {
		return "", 0, err
	}

	now := l.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   key,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	signed, err := token.SignedString(l.secret)
	if err != nil {
		return "", 0, fmt.Errorf("failed to sign download token: %w", err)
	}
	return l.baseURL + DownloadPath + "?token=" + url.QueryEscape(signed), ttl, nil
}

// Open проверяет токен из подписанной ссылки и возвращает путь к файлу
func (l *Local) Open(token string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return l.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(l.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	p, err := l.resolve(claims.Subject)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrObjectNotFound
		}
		return "", fmt.Errorf("failed to stat object: %w", err)
	}
	return p, nil
}
