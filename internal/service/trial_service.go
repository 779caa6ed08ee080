package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SergeiKhy/fileshare/internal/models"
	"github.com/SergeiKhy/fileshare/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultTrialDuration = 30 * 24 * time.Hour
	maxReminderDays      = 30
)

// Причины (не)доступности пробного периода
const (
	ReasonNewUser        = "new user"
	ReasonNoTrial        = "no previous trial"
	ReasonTrialActive    = "trial already active"
	ReasonTrialUsed      = "trial already used"
	ReasonAlreadyPremium = "already premium"
)

// TrialService жизненный цикл тарифа: Free -> Trial -> Free(expired), Free/Trial -> Premium
type TrialService interface {
	// EnsureAccount создаёт аккаунт при первом обращении и применяет истечение пробного периода
	EnsureAccount(ctx context.Context, claims *models.Claims) (*models.UserAccount, error)
	GetStatus(ctx context.Context, claims *models.Claims) (*models.TrialStatus, error)
	StartTrial(ctx context.Context, claims *models.Claims) (*models.StartTrialResult, error)
	// ValidateEligibility только читает, аккаунт не создаётся
	ValidateEligibility(ctx context.Context, claims *models.Claims) (*models.Eligibility, error)
	ProcessExpiredTrials(ctx context.Context, asOf time.Time) (*models.ExpiryReport, error)
	// ExpiringTrials активные пробные периоды, заканчивающиеся в ближайшие days суток
	ExpiringTrials(ctx context.Context, days int) ([]models.TrialReminder, error)
	UpgradeToPremium(ctx context.Context, claims *models.Claims) (bool, error)
	EffectiveTier(ctx context.Context, claims *models.Claims) (models.Tier, error)
	FindByEmail(ctx context.Context, email string) (*models.TrialStatus, error)
}

type TrialServiceConfig struct {
	TrialDuration time.Duration
	FreeGroup     string
	TrialGroup    string
	PremiumGroup  string
	Clock         Clock
}

type trialService struct {
	users    repository.UserRepository
	notifier GroupNotifier
	logger   *zap.Logger
	cfg      TrialServiceConfig
}

func NewTrialService(
	users repository.UserRepository,
	notifier GroupNotifier,
	logger *zap.Logger,
	cfg TrialServiceConfig,
) TrialService {
	if cfg.TrialDuration <= 0 {
		cfg.TrialDuration = defaultTrialDuration
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock
	}

	return &trialService{
		users:    users,
		notifier: notifier,
		logger:   logger,
		cfg:      cfg,
	}
}

func (s *trialService) EnsureAccount(ctx context.Context, claims *models.Claims) (*models.UserAccount, error) {
	return s.account(ctx, claims, s.cfg.Clock())
}

func (s *trialService) GetStatus(ctx context.Context, claims *models.Claims) (*models.TrialStatus, error) {
	now := s.cfg.Clock()
	acc, err := s.account(ctx, claims, now)
	if err != nil {
		return nil, err
	}
	return statusOf(acc, now), nil
}

// StartTrial повторно проверяет условия внутри условного UPDATE: из конкурентных вызовов побеждает один
func (s *trialService) StartTrial(ctx context.Context, claims *models.Claims) (*models.StartTrialResult, error) {
	now := s.cfg.Clock()
	acc, err := s.account(ctx, claims, now)
	if err != nil {
		return nil, err
	}

	if elig := eligibilityOf(acc, now); !elig.Eligible {
		return nil, fmt.Errorf("%w: %s", ErrTrialUnavailable, elig.Reason)
	}

	expiresAt := now.Add(s.cfg.TrialDuration)
	started, err := s.users.SetTrial(ctx, acc.UserID, now, expiresAt)
	if err != nil {
		return nil, storageErr(err)
	}
	if !started {
		return nil, fmt.Errorf("%w: %s", ErrTrialUnavailable, ReasonTrialUsed)
	}

	s.logger.Info("Trial started",
		zap.String("user_id", acc.UserID),
		zap.Time("expires_at", expiresAt),
	)
	s.notifier.Notify(ctx, models.GroupMove{User: acc.Email, From: s.cfg.FreeGroup, To: s.cfg.TrialGroup})

	return &models.StartTrialResult{
		Success:        true,
		TrialExpiresAt: expiresAt,
		DaysRemaining:  int(s.cfg.TrialDuration / (24 * time.Hour)),
	}, nil
}

func (s *trialService) ValidateEligibility(ctx context.Context, claims *models.Claims) (*models.Eligibility, error) {
	if claims == nil || claims.Subject == "" {
		return nil, ErrInvalidInput
	}

	acc, err := s.users.GetByID(ctx, claims.Subject)
	if errors.Is(err, repository.ErrUserNotFound) {
		return &models.Eligibility{Eligible: true, Reason: ReasonNewUser}, nil
	}
	if err != nil {
		return nil, storageErr(err)
	}
	return eligibilityOf(acc, s.cfg.Clock()), nil
}

// ProcessExpiredTrials переводит в Free все пробные периоды с trial_expires_at < asOf.
// Ошибка по одному пользователю не прерывает обработку остальных.
func (s *trialService) ProcessExpiredTrials(ctx context.Context, asOf time.Time) (*models.ExpiryReport, error) {
	now := s.cfg.Clock()
	// Точка отсечения из будущего завершила бы ещё активные периоды
	if asOf.IsZero() || asOf.After(now) {
		if !asOf.IsZero() {
			s.logger.Warn("Expiry cut-off is in the future, using current time",
				zap.Time("as_of", asOf),
				zap.Time("now", now),
			)
		}
		asOf = now
	}

	expired, err := s.users.ScanExpiredTrials(ctx, asOf)
	if err != nil {
		return nil, storageErr(err)
	}

	report := &models.ExpiryReport{}
	for _, acc := range expired {
		won, err := s.users.ExpireTrial(ctx, acc.UserID, asOf, now)
		if err != nil {
			report.FailedCount++
			s.logger.Error("Failed to expire trial", zap.String("user_id", acc.UserID), zap.Error(err))
			continue
		}
		// Проиграли конкурентному чтению или другому запуску: уведомление уже отправлено
		if !won {
			continue
		}
		report.ExpiredCount++
		s.notifier.Notify(ctx, models.GroupMove{User: acc.Email, From: s.cfg.TrialGroup, To: s.cfg.FreeGroup})
	}

	s.logger.Info("Expired trials processed",
		zap.Int("candidates", len(expired)),
		zap.Int("expired", report.ExpiredCount),
		zap.Int("failed", report.FailedCount),
	)
	return report, nil
}

func (s *trialService) ExpiringTrials(ctx context.Context, days int) ([]models.TrialReminder, error) {
	if days <= 0 || days > maxReminderDays {
		return nil, ErrInvalidInput
	}

	now := s.cfg.Clock()
	accounts, err := s.users.ScanExpiringTrials(ctx, now, now.Add(time.Duration(days)*24*time.Hour))
	if err != nil {
		return nil, storageErr(err)
	}

	reminders := make([]models.TrialReminder, 0, len(accounts))
	for i := range accounts {
		acc := &accounts[i]
		reminders = append(reminders, models.TrialReminder{
			UserID:         acc.UserID,
			Email:          acc.Email,
			TrialExpiresAt: *acc.TrialExpiresAt,
			DaysRemaining:  acc.DaysRemaining(now),
		})
	}
	return reminders, nil
}

// UpgradeToPremium идемпотентен: повторный вызов для Premium ничего не меняет
func (s *trialService) UpgradeToPremium(ctx context.Context, claims *models.Claims) (bool, error) {
	now := s.cfg.Clock()
	acc, err := s.account(ctx, claims, now)
	if err != nil {
		return false, err
	}
	if acc.Tier == models.TierPremium {
		return true, nil
	}

	if err := s.users.SetTier(ctx, acc.UserID, models.TierPremium, now); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return false, ErrNotFound
		}
		return false, storageErr(err)
	}

	s.logger.Info("Account upgraded to premium",
		zap.String("user_id", acc.UserID),
		zap.String("from", string(acc.Tier)),
	)
	s.notifier.Notify(ctx, models.GroupMove{User: acc.Email, From: s.groupOf(acc.Tier), To: s.cfg.PremiumGroup})
	return true, nil
}

func (s *trialService) EffectiveTier(ctx context.Context, claims *models.Claims) (models.Tier, error) {
	acc, err := s.account(ctx, claims, s.cfg.Clock())
	if err != nil {
		return "", err
	}
	return acc.Tier, nil
}

// FindByEmail административный поиск, без побочных эффектов
func (s *trialService) FindByEmail(ctx context.Context, email string) (*models.TrialStatus, error) {
	if email == "" {
		return nil, ErrInvalidInput
	}

	acc, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrNotFound
		}
		return nil, storageErr(err)
	}

	now := s.cfg.Clock()
	status := statusOf(acc, now)
	status.Tier = acc.EffectiveTier(now)
	return status, nil
}

// account находит или создаёт аккаунт и синхронизирует email с токеном
func (s *trialService) account(ctx context.Context, claims *models.Claims, now time.Time) (*models.UserAccount, error) {
	if claims == nil || claims.Subject == "" {
		return nil, ErrInvalidInput
	}
	identity := claims.Identity()

	acc, err := s.users.GetByID(ctx, claims.Subject)
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		acc, err = s.users.Upsert(ctx, claims.Subject, identity, models.TierFree, now)
		if err == nil {
			s.logger.Info("Account created", zap.String("user_id", acc.UserID), zap.String("email", acc.Email))
		}
	case err == nil && acc.Email != identity:
		acc, err = s.users.Upsert(ctx, claims.Subject, identity, acc.Tier, now)
	}
	if err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return nil, ErrAccountConflict
		}
		return nil, storageErr(err)
	}

	s.observeExpiry(ctx, acc, now)
	return acc, nil
}

// observeExpiry переводит истёкший Trial в Free тем же условным UPDATE, что и пакетная обработка
func (s *trialService) observeExpiry(ctx context.Context, acc *models.UserAccount, now time.Time) {
	if acc.Tier != models.TierTrial || !models.TrialExpiredAt(acc.TrialExpiresAt, now) {
		return
	}

	won, err := s.users.ExpireTrial(ctx, acc.UserID, now, now)
	if err != nil {
		// Запись отложится до пакетной обработки, чтение всё равно видит Free
		s.logger.Warn("Failed to expire trial on read", zap.String("user_id", acc.UserID), zap.Error(err))
	} else if won {
		s.logger.Info("Trial expired", zap.String("user_id", acc.UserID))
		s.notifier.Notify(ctx, models.GroupMove{User: acc.Email, From: s.cfg.TrialGroup, To: s.cfg.FreeGroup})
	}

	acc.Tier = models.TierFree
	acc.UpdatedAt = now
}

func (s *trialService) groupOf(tier models.Tier) string {
	switch tier {
	case models.TierTrial:
		return s.cfg.TrialGroup
	case models.TierPremium:
		return s.cfg.PremiumGroup
	default:
		return s.cfg.FreeGroup
	}
}

func statusOf(acc *models.UserAccount, now time.Time) *models.TrialStatus {
	return &models.TrialStatus{
		UserID:         acc.UserID,
		Email:          acc.Email,
		Tier:           acc.Tier,
		TrialStatus:    acc.TrialStateAt(now),
		TrialUsed:      acc.TrialUsed,
		TrialStartedAt: acc.TrialStartedAt,
		TrialExpiresAt: acc.TrialExpiresAt,
		DaysRemaining:  acc.DaysRemaining(now),
		CanStartTrial:  eligibilityOf(acc, now).Eligible,
	}
}

// eligibilityOf правила доступности пробного периода для существующего аккаунта
func eligibilityOf(acc *models.UserAccount, now time.Time) *models.Eligibility {
	switch {
	case acc.Tier == models.TierPremium:
		return &models.Eligibility{Eligible: false, Reason: ReasonAlreadyPremium}
	case acc.TrialStateAt(now) == models.TrialActive:
		return &models.Eligibility{Eligible: false, Reason: ReasonTrialActive}
	case acc.TrialUsed:
		return &models.Eligibility{Eligible: false, Reason: ReasonTrialUsed}
	default:
		return &models.Eligibility{Eligible: true, Reason: ReasonNoTrial}
	}
}
