package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/DukeRupert/tollgate/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// newPostgresStore connects to TEST_DATABASE_URL, which must point at a
// database already migrated with internal/migrations. Tests are skipped when
// it is unset.
func newPostgresStore(t *testing.T) (*Postgres, *pgxpool.Pool) {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := Connect(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, `TRUNCATE subscriptions, usage_counters`)
	require.NoError(t, err)

	return NewPostgres(pool, 2*time.Second), pool
}

func TestPostgres_GetPlanState(t *testing.T) {
	store, pool := newPostgresStore(t)
	ctx := context.Background()

	_, err := pool.Exec(ctx, `INSERT INTO subscriptions (user_email, tier_id, subscription_status) VALUES ($1, 'pro', 'active')`, "a@example.com")
	require.NoError(t, err)

	state, err := store.GetPlanState(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "pro", state.Subscription.TierID)
	assert.Equal(t, domain.SubscriptionStatusActive, state.Subscription.Status)
	assert.Nil(t, state.Usage)

	require.NoError(t, store.Ensure(ctx, "a@example.com", 50))
	state, err = store.GetPlanState(ctx, "a@example.com")
	require.NoError(t, err)
	require.NotNil(t, state.Usage)
	assert.Equal(t, int64(50), state.Usage.Limit)

	_, err = store.GetPlanState(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, domain.ErrPlanNotFound)
}

func TestPostgres_WithoutUsageSkipsCounter(t *testing.T) {
	store, pool := newPostgresStore(t)
	ctx := context.Background()

	_, err := pool.Exec(ctx, `INSERT INTO subscriptions (user_email, tier_id) VALUES ($1, 'free')`, "a@example.com")
	require.NoError(t, err)
	require.NoError(t, store.Ensure(ctx, "a@example.com", 50))

	state, err := store.WithoutUsage().GetPlanState(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "free", state.Subscription.TierID)
	assert.Equal(t, domain.SubscriptionStatusNone, state.Subscription.Status)
	assert.Nil(t, state.Usage)
}

func TestPostgres_CounterLifecycle(t *testing.T) {
	store, _ := newPostgresStore(t)
	ctx := context.Background()

	_, err := store.GetCounter(ctx, "a@example.com")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	assert.ErrorIs(t, store.Increment(ctx, "a@example.com", 1), domain.ErrAccountNotFound)

	require.NoError(t, store.Ensure(ctx, "a@example.com", 10))
	require.NoError(t, store.Increment(ctx, "a@example.com", 4))
	require.NoError(t, store.Ensure(ctx, "a@example.com", 99))

	c, err := store.GetCounter(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(4), c.Used)
	assert.Equal(t, int64(10), c.Limit)

	require.NoError(t, store.Reset(ctx, "a@example.com"))
	c, err = store.GetCounter(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(0), c.Used)
}

func TestPostgres_SetLimit(t *testing.T) {
	store, _ := newPostgresStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetLimit(ctx, "a@example.com", 2000))
	c, err := store.GetCounter(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(0), c.Used)
	assert.Equal(t, int64(2000), c.Limit)

	require.NoError(t, store.Increment(ctx, "a@example.com", 1500))
	require.NoError(t, store.SetLimit(ctx, "a@example.com", 100000))
	c, err = store.GetCounter(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(1500), c.Used)
	assert.Equal(t, int64(100000), c.Limit)
}

func TestPostgres_ConcurrentIncrementsNeverLoseUpdates(t *testing.T) {
	store, _ := newPostgresStore(t)
	ctx := context.Background()

	const n = 100
	require.NoError(t, store.Ensure(ctx, "busy@example.com", 1_000))
	require.NoError(t, store.Increment(ctx, "busy@example.com", 3))

	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			return store.Increment(ctx, "busy@example.com", 1)
		})
	}
	require.NoError(t, g.Wait())

	c, err := store.GetCounter(ctx, "busy@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(3+n), c.Used)
}

func TestPostgres_TimeoutIsUnavailable(t *testing.T) {
	store, _ := newPostgresStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.GetPlanState(ctx, "a@example.com")
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
}
