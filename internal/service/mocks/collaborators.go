package mocks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/SergeiKhy/fileshare/internal/models"
)

// Clock управляемые часы для тестов
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start.UTC()}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Notifier записывает переносы между группами
type Notifier struct {
	mu    sync.Mutex
	moves []models.GroupMove
}

func (n *Notifier) Notify(ctx context.Context, move models.GroupMove) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.moves = append(n.moves, move)
}

func (n *Notifier) Moves() []models.GroupMove {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.GroupMove(nil), n.moves...)
}

// Mover implements groups.Mover. Первые FailTimes вызовов завершаются ошибкой.
type Mover struct {
	mu        sync.Mutex
	calls     []models.GroupMove
	FailTimes int
}

func (m *Mover) Move(ctx context.Context, user, from, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, models.GroupMove{User: user, From: from, To: to})
	if m.FailTimes > 0 {
		m.FailTimes--
		return errors.New("group provider unavailable")
	}
	return nil
}

func (m *Mover) Calls() []models.GroupMove {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.GroupMove(nil), m.calls...)
}

// SequenceGenerator implements shortcode.Generator, выдаёт коды по кругу
type SequenceGenerator struct {
	mu    sync.Mutex
	codes []string
	next  int
}

func NewSequenceGenerator(codes ...string) *SequenceGenerator {
	return &SequenceGenerator{codes: codes}
}

func (g *SequenceGenerator) Generate() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	code := g.codes[g.next%len(g.codes)]
	g.next++
	return code, nil
}
