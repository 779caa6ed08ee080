package models

import (
	"time"
)

// Link короткая ссылка, указывающая на целевой URL (обычно подписанную ссылку на файл)
type Link struct {
	Code        string     `json:"short_code"`
	TargetURL   string     `json:"target_url"`
	Owner       string     `json:"owner,omitempty"`
	ResourceKey string     `json:"resource_key,omitempty"`
	DisplayName string     `json:"display_name,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"` // nil = бессрочная
	ClickCount  int64      `json:"click_count"`
}

// ActiveAt сообщает, видна ли ссылка в момент now. Ссылка с expires_at == now уже неактивна.
func (l *Link) ActiveAt(now time.Time) bool {
	return l.ExpiresAt == nil || l.ExpiresAt.After(now)
}

// ExpiredBefore сообщает, подлежит ли ссылка удалению при очистке на момент now.
func (l *Link) ExpiredBefore(now time.Time) bool {
	return l.ExpiresAt != nil && l.ExpiresAt.Before(now)
}

type CreateLinkInput struct {
	TargetURL     string `json:"target_url"`
	Owner         string `json:"owner,omitempty"`
	ResourceKey   string `json:"resource_key,omitempty"`
	DisplayName   string `json:"display_name,omitempty"`
	ExpiresInDays *int   `json:"expires_in_days,omitempty"` // nil = значение по умолчанию, 0 = бессрочная
}

type CreateLinkResult struct {
	Code      string     `json:"short_code"`
	Created   bool       `json:"created"` // false, если переиспользована существующая ссылка
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}
