package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/DukeRupert/tollgate/internal/domain"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeVerifier maps raw tokens to principals; anything else is invalid.
type fakeVerifier map[string]domain.Principal

func (f fakeVerifier) Verify(raw string) (domain.Principal, error) {
	p, ok := f[raw]
	if !ok {
		return domain.Principal{}, domain.ErrInvalidToken
	}
	return p, nil
}

// fakePlans serves subscription records from memory.
type fakePlans struct {
	states map[string]*domain.PlanState
	err    error
	calls  atomic.Int64
}

func (f *fakePlans) GetPlanState(ctx context.Context, email string) (*domain.PlanState, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	s, ok := f.states[email]
	if !ok {
		return nil, domain.Wrap(domain.ErrPlanNotFound, domain.ENOTFOUND, "fake", "not found")
	}
	return s, nil
}

func activePlan(email, tier string) *domain.PlanState {
	return &domain.PlanState{Subscription: domain.SubscriptionRecord{
		Email:  email,
		TierID: tier,
		Status: domain.SubscriptionStatusActive,
	}}
}

// memoryUsage is an in-memory UsageStore with an atomic increment.
type memoryUsage struct {
	mu       sync.Mutex
	counters map[string]*domain.UsageCounter
	err      error

	gets       atomic.Int64
	increments atomic.Int64
	lastCtxErr error
}

func newMemoryUsage() *memoryUsage {
	return &memoryUsage{counters: map[string]*domain.UsageCounter{}}
}

func (m *memoryUsage) set(email string, used, limit int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[email] = &domain.UsageCounter{Email: email, Used: used, Limit: limit}
}

func (m *memoryUsage) GetCounter(ctx context.Context, email string) (*domain.UsageCounter, error) {
	m.gets.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.counters[email]
	if !ok {
		return nil, domain.Wrap(domain.ErrAccountNotFound, domain.ENOTFOUND, "fake", "not found")
	}
	cp := *c
	return &cp, nil
}

func (m *memoryUsage) Increment(ctx context.Context, email string, amount int64) error {
	m.increments.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastCtxErr = ctx.Err()
	if m.err != nil {
		return m.err
	}
	c, ok := m.counters[email]
	if !ok {
		return domain.Wrap(domain.ErrAccountNotFound, domain.ENOTFOUND, "fake", "not found")
	}
	c.Used += amount
	return nil
}

func (m *memoryUsage) Reset(ctx context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.counters[email]
	if !ok {
		return domain.Wrap(domain.ErrAccountNotFound, domain.ENOTFOUND, "fake", "not found")
	}
	c.Used = 0
	return nil
}

func (m *memoryUsage) Ensure(ctx context.Context, email string, limit int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.counters[email]; !ok {
		m.counters[email] = &domain.UsageCounter{Email: email, Limit: limit}
	}
	return nil
}

func (m *memoryUsage) SetLimit(ctx context.Context, email string, limit int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	c, ok := m.counters[email]
	if !ok {
		c = &domain.UsageCounter{Email: email}
		m.counters[email] = c
	}
	c.Limit = limit
	return nil
}
