package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DukeRupert/tollgate/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres reads subscriptions and reads/writes usage counters.
type Postgres struct {
	pool      *pgxpool.Pool
	timeout   time.Duration
	skipUsage bool
}

// NewPostgres creates a store on an existing pool.
func NewPostgres(pool *pgxpool.Pool, timeout time.Duration) *Postgres {
	return &Postgres{pool: pool, timeout: timeout}
}

// Connect opens a pool and verifies it with a ping.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// WithoutUsage returns a store whose GetPlanState reads only the
// subscription. Use it when counters live in another backend and the
// usage_counters table would be stale.
func (s *Postgres) WithoutUsage() *Postgres {
	return &Postgres{pool: s.pool, timeout: s.timeout, skipUsage: true}
}

const getSubscription = `
SELECT tier_id, subscription_status, updated_at,
       NULL::BIGINT, NULL::BIGINT, NULL::TIMESTAMPTZ
FROM subscriptions
WHERE user_email = $1`

const getPlanState = `
SELECT s.tier_id, s.subscription_status, s.updated_at,
       u.used, u.usage_limit, u.updated_at
FROM subscriptions s
LEFT JOIN usage_counters u ON u.user_email = s.user_email
WHERE s.user_email = $1`

// GetPlanState fetches the subscription and, when present, the usage
// counter for email in one round trip.
func (s *Postgres) GetPlanState(ctx context.Context, email string) (*domain.PlanState, error) {
	const op = "plans.get_state"

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	var (
		tier, status   string
		subUpdated     time.Time
		used, limit    *int64
		usageUpdatedAt *time.Time
	)
	query := getPlanState
	if s.skipUsage {
		query = getSubscription
	}
	err := s.pool.QueryRow(ctx, query, email).Scan(
		&tier, &status, &subUpdated, &used, &limit, &usageUpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(domain.ErrPlanNotFound, op, email)
	}
	if err != nil {
		return nil, unavailable(err, op)
	}

	state := &domain.PlanState{
		Subscription: domain.SubscriptionRecord{
			Email:     email,
			TierID:    tier,
			Status:    domain.SubscriptionStatus(status),
			UpdatedAt: subUpdated,
		},
	}
	if used != nil && limit != nil {
		state.Usage = &domain.UsageCounter{Email: email, Used: *used, Limit: *limit}
		if usageUpdatedAt != nil {
			state.Usage.UpdatedAt = *usageUpdatedAt
		}
	}
	return state, nil
}

// GetCounter returns the usage counter for email.
func (s *Postgres) GetCounter(ctx context.Context, email string) (*domain.UsageCounter, error) {
	const op = "usage.get"

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	c := &domain.UsageCounter{Email: email}
	err := s.pool.QueryRow(ctx,
		`SELECT used, usage_limit, updated_at FROM usage_counters WHERE user_email = $1`,
		email,
	).Scan(&c.Used, &c.Limit, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(domain.ErrAccountNotFound, op, email)
	}
	if err != nil {
		return nil, unavailable(err, op)
	}
	return c, nil
}

// Increment adds amount to used with a single UPDATE, so concurrent
// increments for the same email never lose an update.
func (s *Postgres) Increment(ctx context.Context, email string, amount int64) error {
	const op = "usage.increment"

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx,
		`UPDATE usage_counters SET used = used + $2, updated_at = NOW() WHERE user_email = $1`,
		email, amount,
	)
	if err != nil {
		return unavailable(err, op)
	}
	if tag.RowsAffected() == 0 {
		return notFound(domain.ErrAccountNotFound, op, email)
	}
	return nil
}

// Reset sets used back to zero. Only administrators reach this.
func (s *Postgres) Reset(ctx context.Context, email string) error {
	const op = "usage.reset"

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx,
		`UPDATE usage_counters SET used = 0, updated_at = NOW() WHERE user_email = $1`,
		email,
	)
	if err != nil {
		return unavailable(err, op)
	}
	if tag.RowsAffected() == 0 {
		return notFound(domain.ErrAccountNotFound, op, email)
	}
	return nil
}

// Ensure creates a zeroed counter with the given limit if none exists. An
// existing counter is left untouched.
func (s *Postgres) Ensure(ctx context.Context, email string, limit int64) error {
	const op = "usage.ensure"

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO usage_counters (user_email, used, usage_limit)
		 VALUES ($1, 0, $2)
		 ON CONFLICT (user_email) DO NOTHING`,
		email, limit,
	)
	if err != nil {
		return unavailable(err, op)
	}
	return nil
}

// SetLimit sets the counter's limit, creating a zeroed counter if none
// exists. used is never touched, so a plan change keeps consumption so far.
func (s *Postgres) SetLimit(ctx context.Context, email string, limit int64) error {
	const op = "usage.set_limit"

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO usage_counters (user_email, used, usage_limit)
		 VALUES ($1, 0, $2)
		 ON CONFLICT (user_email) DO UPDATE
		 SET usage_limit = EXCLUDED.usage_limit, updated_at = NOW()`,
		email, limit,
	)
	if err != nil {
		return unavailable(err, op)
	}
	return nil
}
