package campaign

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/radieske/bolao-facil/internal/shared/store"
)

func newRepo(t *testing.T) (*RedisRepo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisRepo(rdb, time.Second), mr
}

func TestRepoCRUD(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)
	clock := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	repo.WithClock(func() time.Time { return clock })

	created, err := repo.Create(ctx, Campaign{Name: "Mega", PricePerShare: decimal.RequireFromString("2.5")})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.Equal(t, StatusActive, created.Status)
	require.Equal(t, 15, created.NumbersPerBet)

	got, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, got.PricePerShare.Equal(decimal.RequireFromString("2.50")))

	clock = clock.Add(time.Hour)
	updated, err := repo.Update(ctx, created.ID, func(c *Campaign) error {
		c.Status = StatusPaused
		c.ID = "hijack"
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, created.ID, updated.ID)
	require.Equal(t, StatusPaused, updated.Status)
	require.True(t, updated.UpdatedAt.After(updated.CreatedAt))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, repo.Delete(ctx, created.ID))
	_, err = repo.Get(ctx, created.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, repo.Delete(ctx, created.ID), ErrNotFound)
}

func TestRepoCreateRejectsInvalid(t *testing.T) {
	repo, _ := newRepo(t)
	_, err := repo.Create(context.Background(), Campaign{Name: "x"})
	require.ErrorIs(t, err, ErrInvalid)
}

func TestRepoUpdateErrors(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)

	_, err := repo.Update(ctx, "missing", func(*Campaign) error { return nil })
	require.ErrorIs(t, err, ErrNotFound)

	c, err := repo.Create(ctx, Campaign{Name: "A", PricePerShare: decimal.NewFromInt(1)})
	require.NoError(t, err)

	_, err = repo.Update(ctx, c.ID, func(c *Campaign) error { c.NumbersPerBet = 30; return nil })
	require.ErrorIs(t, err, ErrInvalid)

	boom := errors.New("boom")
	_, err = repo.Update(ctx, c.ID, func(*Campaign) error { return boom })
	require.ErrorIs(t, err, boom)
}

func TestRepoListNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)
	clock := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	repo.WithClock(func() time.Time { return clock })

	_, err := repo.Create(ctx, Campaign{ID: "old", Name: "Old", PricePerShare: decimal.NewFromInt(1)})
	require.NoError(t, err)
	clock = clock.Add(time.Minute)
	_, err = repo.Create(ctx, Campaign{ID: "new", Name: "New", PricePerShare: decimal.NewFromInt(1)})
	require.NoError(t, err)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Equal(t, "new", list[0].ID)
	require.Equal(t, "old", list[1].ID)

	_, err = repo.Create(ctx, Campaign{ID: "new", Name: "Dup", PricePerShare: decimal.NewFromInt(1)})
	require.ErrorIs(t, err, ErrInvalid)
}

func TestRepoStoreUnavailable(t *testing.T) {
	repo, mr := newRepo(t)
	mr.Close()

	_, err := repo.Get(context.Background(), "x")
	require.ErrorIs(t, err, store.ErrUnavailable)
	_, err = repo.List(context.Background())
	require.ErrorIs(t, err, store.ErrUnavailable)
}
