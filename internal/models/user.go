package models

import (
	"time"
)

// Tier уровень подписки пользователя
type Tier string

const (
	TierFree    Tier = "Free"
	TierTrial   Tier = "Trial"
	TierPremium Tier = "Premium"
)

// TrialState состояние пробного периода, вычисляется при чтении
type TrialState string

const (
	TrialNotStarted TrialState = "not_started"
	TrialActive     TrialState = "active"
	TrialExpired    TrialState = "expired"
)

// UserAccount запись реестра подписок. Ключ - subject из токена.
type UserAccount struct {
	UserID         string     `json:"user_id"`
	Email          string     `json:"email"`
	Tier           Tier       `json:"tier"`
	TrialUsed      bool       `json:"trial_used"`
	TrialStartedAt *time.Time `json:"trial_started_at,omitempty"`
	TrialExpiresAt *time.Time `json:"trial_expires_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TrialExpiredAt единственный предикат истечения пробного периода: trial_expires_at < asOf.
// Тот же предикат используют SQL запросы репозиториев.
func TrialExpiredAt(expiresAt *time.Time, asOf time.Time) bool {
	return expiresAt != nil && expiresAt.Before(asOf)
}

// TrialStateAt вычисляет состояние пробного периода на момент now
func (u *UserAccount) TrialStateAt(now time.Time) TrialState {
	switch {
	case u.TrialStartedAt == nil:
		return TrialNotStarted
	case TrialExpiredAt(u.TrialExpiresAt, now):
		return TrialExpired
	default:
		return TrialActive
	}
}

// EffectiveTier учитывает истёкший, но ещё не обработанный пробный период
func (u *UserAccount) EffectiveTier(now time.Time) Tier {
	if u.Tier == TierTrial && TrialExpiredAt(u.TrialExpiresAt, now) {
		return TierFree
	}
	return u.Tier
}

// DaysRemaining целые дни до конца пробного периода, с отбрасыванием дробной части
func (u *UserAccount) DaysRemaining(now time.Time) int {
	if u.TrialStateAt(now) != TrialActive {
		return 0
	}
	return int(u.TrialExpiresAt.Sub(now) / (24 * time.Hour))
}

type TrialStatus struct {
	UserID         string     `json:"user_id"`
	Email          string     `json:"email"`
	Tier           Tier       `json:"tier"`
	TrialStatus    TrialState `json:"trial_status"`
	TrialUsed      bool       `json:"trial_used"`
	TrialStartedAt *time.Time `json:"trial_started_at,omitempty"`
	TrialExpiresAt *time.Time `json:"trial_expires_at,omitempty"`
	DaysRemaining  int        `json:"days_remaining"`
	CanStartTrial  bool       `json:"can_start_trial"`
}

type StartTrialResult struct {
	Success        bool      `json:"success"`
	TrialExpiresAt time.Time `json:"trial_expires_at"`
	DaysRemaining  int       `json:"days_remaining"`
}

type Eligibility struct {
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason"`
}

type ExpiryReport struct {
	ExpiredCount int `json:"expired_count"`
	FailedCount  int `json:"failed_count"`
}

// TrialReminder пробный период, который скоро закончится
type TrialReminder struct {
	UserID         string    `json:"user_id"`
	Email          string    `json:"email"`
	TrialExpiresAt time.Time `json:"trial_expires_at"`
	DaysRemaining  int       `json:"days_remaining"`
}

// GroupMove перенос пользователя между группами провайдера идентификации
type GroupMove struct {
	User string `json:"user"`
	From string `json:"from,omitempty"`
	To   string `json:"to"`
}
