package models

import (
	"slices"
	"time"
)

// Claims проверенные атрибуты токена
type Claims struct {
	Subject  string   `json:"sub"`
	Email    string   `json:"email,omitempty"`
	Username string   `json:"username,omitempty"`
	Groups   []string `json:"groups,omitempty"`
}

// Identity имя пользователя для владения ссылками и операций с группами.
// Порядок: email, затем username, затем subject.
func (c *Claims) Identity() string {
	switch {
	case c.Email != "":
		return c.Email
	case c.Username != "":
		return c.Username
	default:
		return c.Subject
	}
}

func (c *Claims) InGroup(group string) bool {
	return group != "" && slices.Contains(c.Groups, group)
}

// ObjectInfo метаданные объекта в хранилище
type ObjectInfo struct {
	Key        string    `json:"key"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

type DownloadLink struct {
	URL              string    `json:"download_url"`
	ShortCode        string    `json:"short_code"`
	ShortURL         string    `json:"short_url"`
	Tier             Tier      `json:"tier"`
	ExpiresInSeconds int64     `json:"expires_in_seconds"`
	ExpiresAt        time.Time `json:"expires_at"`
}
