package mocks

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/SergeiKhy/fileshare/internal/models"
	"github.com/SergeiKhy/fileshare/internal/repository"
)

// ErrInjected ошибка драйвера, подставляемая в тестах
var ErrInjected = errors.New("injected storage failure")

// MockLinkRepository implements repository.LinkRepository for testing
type MockLinkRepository struct {
	mu    sync.Mutex
	links map[string]*models.Link

	// Err возвращается всеми методами, если не nil
	Err error
	// SweepErr возвращается только из DeleteExpired
	SweepErr error
	// CreateConflicts первые N вызовов Create отвечают ErrCodeExists
	CreateConflicts int
	SweepCalls      int
}

func NewMockLinkRepository() *MockLinkRepository {
	return &MockLinkRepository{links: make(map[string]*models.Link)}
}

func (m *MockLinkRepository) Create(ctx context.Context, link *models.Link) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	if m.CreateConflicts > 0 {
		m.CreateConflicts--
		return repository.ErrCodeExists
	}
	if existing, ok := m.links[link.Code]; ok && existing.ActiveAt(link.CreatedAt) {
		return repository.ErrCodeExists
	}

	stored := *link
	m.links[link.Code] = &stored
	return nil
}

func (m *MockLinkRepository) FindActiveByTarget(ctx context.Context, targetURL, owner string, now time.Time) (*models.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	var found *models.Link
	for _, l := range m.links {
		if l.TargetURL == targetURL && l.Owner == owner && l.ActiveAt(now) {
			if found == nil || l.CreatedAt.After(found.CreatedAt) {
				found = l
			}
		}
	}
	if found == nil {
		return nil, repository.ErrLinkNotFound
	}
	out := *found
	return &out, nil
}

func (m *MockLinkRepository) CodeInUse(ctx context.Context, code string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return false, m.Err
	}
	l, ok := m.links[code]
	return ok && l.ActiveAt(now), nil
}

func (m *MockLinkRepository) Resolve(ctx context.Context, code string, now time.Time) (*models.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	l, ok := m.links[code]
	if !ok || !l.ActiveAt(now) {
		return nil, repository.ErrLinkNotFound
	}
	l.ClickCount++
	out := *l
	return &out, nil
}

func (m *MockLinkRepository) ListByOwner(ctx context.Context, owner string, now time.Time, limit int) ([]models.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	links := make([]models.Link, 0)
	for _, l := range m.links {
		if l.Owner == owner && l.ActiveAt(now) {
			links = append(links, *l)
		}
	}
	sort.Slice(links, func(i, j int) bool { return links[i].CreatedAt.After(links[j].CreatedAt) })
	if len(links) > limit {
		links = links[:limit]
	}
	return links, nil
}

func (m *MockLinkRepository) DeleteOwned(ctx context.Context, code, owner string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return false, m.Err
	}
	l, ok := m.links[code]
	if !ok || l.Owner != owner {
		return false, nil
	}
	delete(m.links, code)
	return true, nil
}

func (m *MockLinkRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SweepCalls++
	if m.SweepErr != nil {
		return 0, m.SweepErr
	}
	if m.Err != nil {
		return 0, m.Err
	}
	var removed int64
	for code, l := range m.links {
		if l.ExpiredBefore(now) {
			delete(m.links, code)
			removed++
		}
	}
	return removed, nil
}

// Put кладёт ссылку напрямую, минуя проверки
func (m *MockLinkRepository) Put(link models.Link) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links[link.Code] = &link
}

// Count число строк, включая истёкшие и ещё не удалённые
func (m *MockLinkRepository) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.links)
}

// MockUserRepository implements repository.UserRepository for testing
type MockUserRepository struct {
	mu    sync.Mutex
	users map[string]*models.UserAccount

	Err error
	// ExpireErr возвращается только из ExpireTrial
	ExpireErr error
}

func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{users: make(map[string]*models.UserAccount)}
}

func (m *MockUserRepository) GetByID(ctx context.Context, userID string) (*models.UserAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	u, ok := m.users[userID]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	out := *u
	return &out, nil
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.UserAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	for _, u := range m.users {
		if u.Email == email {
			out := *u
			return &out, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (m *MockUserRepository) Upsert(ctx context.Context, userID, email string, tier models.Tier, now time.Time) (*models.UserAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	for id, u := range m.users {
		if id != userID && u.Email == email {
			return nil, repository.ErrEmailTaken
		}
	}

	u, ok := m.users[userID]
	if !ok {
		u = &models.UserAccount{UserID: userID, Tier: tier, CreatedAt: now, UpdatedAt: now}
		m.users[userID] = u
	}
	if u.Email != email {
		u.Email = email
		u.UpdatedAt = now
	}
	out := *u
	return &out, nil
}

func (m *MockUserRepository) SetTrial(ctx context.Context, userID string, startedAt, expiresAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return false, m.Err
	}
	u, ok := m.users[userID]
	if !ok || u.TrialUsed || u.Tier != models.TierFree {
		return false, nil
	}
	u.Tier = models.TierTrial
	u.TrialUsed = true
	u.TrialStartedAt = &startedAt
	u.TrialExpiresAt = &expiresAt
	u.UpdatedAt = startedAt
	return true, nil
}

func (m *MockUserRepository) SetTier(ctx context.Context, userID string, tier models.Tier, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	u, ok := m.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.Tier = tier
	u.UpdatedAt = now
	return nil
}

func (m *MockUserRepository) ExpireTrial(ctx context.Context, userID string, asOf, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ExpireErr != nil {
		return false, m.ExpireErr
	}
	if m.Err != nil {
		return false, m.Err
	}
	u, ok := m.users[userID]
	if !ok || u.Tier != models.TierTrial || !models.TrialExpiredAt(u.TrialExpiresAt, asOf) {
		return false, nil
	}
	u.Tier = models.TierFree
	u.UpdatedAt = now
	return true, nil
}

func (m *MockUserRepository) ScanExpiredTrials(ctx context.Context, asOf time.Time) ([]models.UserAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	users := make([]models.UserAccount, 0)
	for _, u := range m.users {
		if u.Tier == models.TierTrial && models.TrialExpiredAt(u.TrialExpiresAt, asOf) {
			users = append(users, *u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].TrialExpiresAt.Before(*users[j].TrialExpiresAt) })
	return users, nil
}

func (m *MockUserRepository) ScanExpiringTrials(ctx context.Context, from, to time.Time) ([]models.UserAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	users := make([]models.UserAccount, 0)
	for _, u := range m.users {
		if u.Tier != models.TierTrial || u.TrialExpiresAt == nil {
			continue
		}
		if !u.TrialExpiresAt.Before(from) && !u.TrialExpiresAt.After(to) {
			users = append(users, *u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].TrialExpiresAt.Before(*users[j].TrialExpiresAt) })
	return users, nil
}

// Put кладёт аккаунт напрямую
func (m *MockUserRepository) Put(u models.UserAccount) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.UserID] = &u
}

// MockLockRepository implements repository.LockRepository for testing
type MockLockRepository struct {
	mu    sync.Mutex
	held  map[string]time.Time
	clock func() time.Time

	Err error
}

func NewMockLockRepository(clock func() time.Time) *MockLockRepository {
	return &MockLockRepository{held: make(map[string]time.Time), clock: clock}
}

func (m *MockLockRepository) TryAcquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return false, m.Err
	}
	now := m.clock()
	if until, ok := m.held[name]; ok && now.Before(until) {
		return false, nil
	}
	m.held[name] = now.Add(ttl)
	return true, nil
}
