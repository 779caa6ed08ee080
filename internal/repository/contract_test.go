package repository_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/SergeiKhy/fileshare/internal/models"
	"github.com/SergeiKhy/fileshare/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Общие проверки для всех реализаций LinkRepository / UserRepository

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func ptrTime(t time.Time) *time.Time { return &t }

func newLink(code, target, owner string, created time.Time, expires *time.Time) *models.Link {
	return &models.Link{
		Code:        code,
		TargetURL:   target,
		Owner:       owner,
		ResourceKey: "sub/" + code,
		DisplayName: code + ".txt",
		CreatedAt:   created,
		ExpiresAt:   expires,
	}
}

func runLinkRepositoryContract(t *testing.T, newRepo func(t *testing.T) repository.LinkRepository) {
	t.Run("create and resolve increments clicks", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		require.NoError(t, repo.Create(ctx, newLink("abc123", "https://files/a", "alice", baseTime, ptrTime(baseTime.Add(72*time.Hour)))))

		link, err := repo.Resolve(ctx, "abc123", baseTime.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, "https://files/a", link.TargetURL)
		assert.Equal(t, int64(1), link.ClickCount)
		assert.Equal(t, "alice", link.Owner)

		link, err = repo.Resolve(ctx, "abc123", baseTime.Add(2*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(2), link.ClickCount)
	})

	t.Run("duplicate active code", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		require.NoError(t, repo.Create(ctx, newLink("dup001", "https://a", "alice", baseTime, nil)))
		err := repo.Create(ctx, newLink("dup001", "https://b", "bob", baseTime.Add(time.Minute), nil))
		assert.ErrorIs(t, err, repository.ErrCodeExists)
	})

	t.Run("expired code is reclaimed", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		require.NoError(t, repo.Create(ctx, newLink("old001", "https://old", "alice", baseTime, ptrTime(baseTime.Add(time.Hour)))))
		later := baseTime.Add(2 * time.Hour)
		require.NoError(t, repo.Create(ctx, newLink("old001", "https://new", "bob", later, nil)))

		link, err := repo.Resolve(ctx, "old001", later)
		require.NoError(t, err)
		assert.Equal(t, "https://new", link.TargetURL)
		assert.Equal(t, int64(1), link.ClickCount)
	})

	t.Run("expired link is invisible", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		expires := baseTime.Add(3 * 24 * time.Hour)

		require.NoError(t, repo.Create(ctx, newLink("exp001", "https://x", "alice", baseTime, &expires)))

		_, err := repo.Resolve(ctx, "exp001", expires.Add(24*time.Hour))
		assert.ErrorIs(t, err, repository.ErrLinkNotFound)

		_, err = repo.FindActiveByTarget(ctx, "https://x", "alice", expires.Add(time.Second))
		assert.ErrorIs(t, err, repository.ErrLinkNotFound)

		inUse, err := repo.CodeInUse(ctx, "exp001", expires)
		require.NoError(t, err)
		assert.False(t, inUse)

		inUse, err = repo.CodeInUse(ctx, "exp001", baseTime)
		require.NoError(t, err)
		assert.True(t, inUse)
	})

	t.Run("find active by target and owner", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		require.NoError(t, repo.Create(ctx, newLink("tgt001", "https://same", "alice", baseTime, nil)))
		require.NoError(t, repo.Create(ctx, newLink("tgt002", "https://same", "bob", baseTime, nil)))

		link, err := repo.FindActiveByTarget(ctx, "https://same", "bob", baseTime)
		require.NoError(t, err)
		assert.Equal(t, "tgt002", link.Code)

		_, err = repo.FindActiveByTarget(ctx, "https://same", "carol", baseTime)
		assert.ErrorIs(t, err, repository.ErrLinkNotFound)
	})

	t.Run("list by owner newest first with limit", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		for i := 0; i < 5; i++ {
			code := fmt.Sprintf("lst00%d", i)
			require.NoError(t, repo.Create(ctx, newLink(code, "https://l/"+code, "alice", baseTime.Add(time.Duration(i)*time.Minute), nil)))
		}
		require.NoError(t, repo.Create(ctx, newLink("lstexp", "https://l/exp", "alice", baseTime, ptrTime(baseTime.Add(time.Minute)))))
		require.NoError(t, repo.Create(ctx, newLink("lstbob", "https://l/bob", "bob", baseTime, nil)))

		links, err := repo.ListByOwner(ctx, "alice", baseTime.Add(time.Hour), 3)
		require.NoError(t, err)
		require.Len(t, links, 3)
		assert.Equal(t, "lst004", links[0].Code)
		assert.Equal(t, "lst003", links[1].Code)
		assert.Equal(t, "lst002", links[2].Code)

		links, err = repo.ListByOwner(ctx, "nobody", baseTime, 10)
		require.NoError(t, err)
		assert.Empty(t, links)
	})

	t.Run("delete requires owner", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		require.NoError(t, repo.Create(ctx, newLink("del001", "https://d", "alice", baseTime, nil)))

		deleted, err := repo.DeleteOwned(ctx, "del001", "bob")
		require.NoError(t, err)
		assert.False(t, deleted)

		deleted, err = repo.DeleteOwned(ctx, "del001", "alice")
		require.NoError(t, err)
		assert.True(t, deleted)

		deleted, err = repo.DeleteOwned(ctx, "del001", "alice")
		require.NoError(t, err)
		assert.False(t, deleted)
	})

	t.Run("delete expired removes only past rows", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		now := baseTime.Add(10 * 24 * time.Hour)

		require.NoError(t, repo.Create(ctx, newLink("swp001", "https://s/1", "alice", baseTime, ptrTime(now.Add(-time.Hour)))))
		require.NoError(t, repo.Create(ctx, newLink("swp002", "https://s/2", "alice", baseTime, ptrTime(now.Add(time.Hour)))))
		require.NoError(t, repo.Create(ctx, newLink("swp003", "https://s/3", "alice", baseTime, nil)))

		removed, err := repo.DeleteExpired(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, int64(1), removed)

		removed, err = repo.DeleteExpired(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, int64(0), removed)

		links, err := repo.ListByOwner(ctx, "alice", baseTime, 10)
		require.NoError(t, err)
		assert.Len(t, links, 2)
	})

	t.Run("concurrent resolves are not lost", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		require.NoError(t, repo.Create(ctx, newLink("con001", "https://c", "alice", baseTime, nil)))

		const n = 20
		counts := make([]int64, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				link, err := repo.Resolve(ctx, "con001", baseTime)
				if assert.NoError(t, err) {
					counts[i] = link.ClickCount
				}
			}(i)
		}
		wg.Wait()

		sort.Slice(counts, func(a, b int) bool { return counts[a] < counts[b] })
		for i := 0; i < n; i++ {
			assert.Equal(t, int64(i+1), counts[i])
		}
	})
}

func runUserRepositoryContract(t *testing.T, newRepo func(t *testing.T) repository.UserRepository) {
	t.Run("upsert creates then keeps tier", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		u, err := repo.Upsert(ctx, "sub-1", "a@example.com", models.TierFree, baseTime)
		require.NoError(t, err)
		assert.Equal(t, models.TierFree, u.Tier)
		assert.False(t, u.TrialUsed)
		assert.Nil(t, u.TrialStartedAt)

		require.NoError(t, repo.SetTier(ctx, "sub-1", models.TierPremium, baseTime))

		u, err = repo.Upsert(ctx, "sub-1", "new@example.com", models.TierFree, baseTime.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, models.TierPremium, u.Tier)
		assert.Equal(t, "new@example.com", u.Email)

		byEmail, err := repo.GetByEmail(ctx, "new@example.com")
		require.NoError(t, err)
		assert.Equal(t, "sub-1", byEmail.UserID)
	})

	t.Run("email unique across accounts", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.Upsert(ctx, "sub-1", "same@example.com", models.TierFree, baseTime)
		require.NoError(t, err)

		_, err = repo.Upsert(ctx, "sub-2", "same@example.com", models.TierFree, baseTime)
		assert.ErrorIs(t, err, repository.ErrEmailTaken)
	})

	t.Run("not found", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.GetByID(ctx, "ghost")
		assert.ErrorIs(t, err, repository.ErrUserNotFound)
		_, err = repo.GetByEmail(ctx, "ghost@example.com")
		assert.ErrorIs(t, err, repository.ErrUserNotFound)
		assert.ErrorIs(t, repo.SetTier(ctx, "ghost", models.TierPremium, baseTime), repository.ErrUserNotFound)
	})

	t.Run("set trial is a one-shot transition", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		_, err := repo.Upsert(ctx, "sub-1", "a@example.com", models.TierFree, baseTime)
		require.NoError(t, err)

		expires := baseTime.Add(30 * 24 * time.Hour)
		ok, err := repo.SetTrial(ctx, "sub-1", baseTime, expires)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.SetTrial(ctx, "sub-1", baseTime, expires)
		require.NoError(t, err)
		assert.False(t, ok)

		u, err := repo.GetByID(ctx, "sub-1")
		require.NoError(t, err)
		assert.Equal(t, models.TierTrial, u.Tier)
		assert.True(t, u.TrialUsed)
		require.NotNil(t, u.TrialStartedAt)
		require.NotNil(t, u.TrialExpiresAt)
		assert.True(t, expires.Equal(*u.TrialExpiresAt))
	})

	t.Run("concurrent set trial has one winner", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		_, err := repo.Upsert(ctx, "sub-1", "a@example.com", models.TierFree, baseTime)
		require.NoError(t, err)

		const n = 10
		var wg sync.WaitGroup
		var mu sync.Mutex
		wins := 0
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := repo.SetTrial(ctx, "sub-1", baseTime, baseTime.Add(30*24*time.Hour))
				if assert.NoError(t, err) && ok {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, wins)
	})

	t.Run("expire trial and scan", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		for i, id := range []string{"u-old", "u-new", "u-free"} {
			_, err := repo.Upsert(ctx, id, fmt.Sprintf("%d@example.com", i), models.TierFree, baseTime)
			require.NoError(t, err)
		}

		_, err := repo.SetTrial(ctx, "u-old", baseTime, baseTime.Add(24*time.Hour))
		require.NoError(t, err)
		_, err = repo.SetTrial(ctx, "u-new", baseTime, baseTime.Add(30*24*time.Hour))
		require.NoError(t, err)

		asOf := baseTime.Add(48 * time.Hour)
		expired, err := repo.ScanExpiredTrials(ctx, asOf)
		require.NoError(t, err)
		require.Len(t, expired, 1)
		assert.Equal(t, "u-old", expired[0].UserID)

		// Граница строгая: ровно в момент окончания ещё не истёк
		ok, err := repo.ExpireTrial(ctx, "u-old", baseTime.Add(24*time.Hour), asOf)
		require.NoError(t, err)
		assert.False(t, ok)

		now := asOf.Add(time.Hour)
		ok, err = repo.ExpireTrial(ctx, "u-old", asOf, now)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.ExpireTrial(ctx, "u-old", asOf, now)
		require.NoError(t, err)
		assert.False(t, ok)

		u, err := repo.GetByID(ctx, "u-old")
		require.NoError(t, err)
		assert.Equal(t, models.TierFree, u.Tier)
		assert.True(t, u.TrialUsed)
		// updated_at фиксирует момент записи, а не точку отсечения
		assert.True(t, now.Equal(u.UpdatedAt), u.UpdatedAt)

		expired, err = repo.ScanExpiredTrials(ctx, asOf)
		require.NoError(t, err)
		assert.Empty(t, expired)
	})

	t.Run("scan expiring trials", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		ends := map[string]time.Duration{
			"u-past":   -time.Hour,
			"u-soon":   24 * time.Hour,
			"u-edge":   3 * 24 * time.Hour,
			"u-later":  10 * 24 * time.Hour,
			"u-sooner": 2 * time.Hour,
		}
		i := 0
		for id, d := range ends {
			_, err := repo.Upsert(ctx, id, fmt.Sprintf("exp%d@example.com", i), models.TierFree, baseTime)
			require.NoError(t, err)
			_, err = repo.SetTrial(ctx, id, baseTime.Add(-30*24*time.Hour), baseTime.Add(d))
			require.NoError(t, err)
			i++
		}
		// Premium с прошлым пробным периодом не попадает в выборку
		require.NoError(t, repo.SetTier(ctx, "u-sooner", models.TierPremium, baseTime))

		expiring, err := repo.ScanExpiringTrials(ctx, baseTime, baseTime.Add(3*24*time.Hour))
		require.NoError(t, err)
		ids := make([]string, 0, len(expiring))
		for _, u := range expiring {
			ids = append(ids, u.UserID)
		}
		assert.Equal(t, []string{"u-soon", "u-edge"}, ids)
	})
}
