// Package service contains the business logic layer.
//
// This file implements the usage metering service for checking and charging
// per-user consumption of metered AI features.
package service

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"
	"unicode/utf8"

	"github.com/DukeRupert/tollgate/internal/domain"
	"github.com/DukeRupert/tollgate/internal/metrics"
)

// Metering defaults.
const (
	// DefaultCharsPerUnit is the conservative content-size to billing-unit
	// ratio used by Estimate (roughly one token per four characters).
	DefaultCharsPerUnit = 4

	// DefaultChargeTimeout bounds a charge once the request itself is done.
	DefaultChargeTimeout = 5 * time.Second

	// CreditsKey is the catalog limit that sizes a new usage counter.
	CreditsKey = "aiCredits"
)

// CreditLimit returns the counter limit a plan grants. Plans without an
// aiCredits cap get fallback; "unlimited" maps to math.MaxInt64.
func CreditLimit(plan domain.Plan, fallback int64) int64 {
	l, ok := plan.Limits[CreditsKey]
	if !ok || l.Kind != domain.LimitKindCap {
		return fallback
	}
	if l.Unlimited {
		return math.MaxInt64
	}
	return l.Cap
}

// =============================================================================
// Interface Definition
// =============================================================================

// UsageStore persists usage counters. Increment must be a single atomic
// storage-side add.
type UsageStore interface {
	GetCounter(ctx context.Context, email string) (*domain.UsageCounter, error)
	Increment(ctx context.Context, email string, amount int64) error
	Reset(ctx context.Context, email string) error
	Ensure(ctx context.Context, email string, limit int64) error
	SetLimit(ctx context.Context, email string, limit int64) error
}

// MeteringService defines operations for checking and charging quota.
//
// Check and charge are deliberately separate: the billable work between
// them may fail, in which case nothing is charged.
type MeteringService interface {
	// CheckRemaining returns true iff used < limit. It fails with an error
	// matching domain.ErrAccountNotFound when no counter exists.
	CheckRemaining(ctx context.Context, email string) (bool, error)

	// Charge atomically adds amount to the counter. Failures are logged and
	// swallowed because the billable work has already been delivered.
	Charge(ctx context.Context, email string, amount int64)

	// Estimate converts a payload into billing units.
	Estimate(payload string) int64

	// Usage returns the current counter.
	Usage(ctx context.Context, email string) (*domain.UsageCounter, error)

	// EnsureCounter creates a zeroed counter with limit if none exists.
	EnsureCounter(ctx context.Context, email string, limit int64) error

	// SyncLimit sets the counter's limit, creating the counter if needed.
	// Used after plan changes and for administrator overrides.
	SyncLimit(ctx context.Context, email string, limit int64) error

	// Reset zeroes the counter. Administrative use only.
	Reset(ctx context.Context, email string) error
}

// MeteringConfig tunes the metering service.
type MeteringConfig struct {
	CharsPerUnit  int
	ChargeTimeout time.Duration
}

// =============================================================================
// Implementation
// =============================================================================

type meteringService struct {
	store         UsageStore
	charsPerUnit  int
	chargeTimeout time.Duration
	logger        *slog.Logger
}

// NewMeteringService creates a new MeteringService.
func NewMeteringService(store UsageStore, cfg MeteringConfig, logger *slog.Logger) MeteringService {
	if cfg.CharsPerUnit <= 0 {
		cfg.CharsPerUnit = DefaultCharsPerUnit
	}
	if cfg.ChargeTimeout <= 0 {
		cfg.ChargeTimeout = DefaultChargeTimeout
	}
	return &meteringService{
		store:         store,
		charsPerUnit:  cfg.CharsPerUnit,
		chargeTimeout: cfg.ChargeTimeout,
		logger:        logger,
	}
}

// CheckRemaining reports whether the principal has quota left.
func (s *meteringService) CheckRemaining(ctx context.Context, email string) (bool, error) {
	const op = "metering.check"

	counter, err := s.store.GetCounter(ctx, email)
	if err != nil {
		metrics.MeteringChecksTotal.WithLabelValues("error").Inc()
		if errors.Is(err, domain.ErrAccountNotFound) {
			return false, domain.Wrap(err, domain.ENOTFOUND, op, "No usage account exists for this user")
		}
		return false, err
	}

	if !counter.HasRemaining() {
		metrics.MeteringChecksTotal.WithLabelValues("exhausted").Inc()
		s.logger.Info("Usage quota exhausted",
			"email", email,
			"used", counter.Used,
			"limit", counter.Limit,
		)
		return false, nil
	}

	metrics.MeteringChecksTotal.WithLabelValues("allowed").Inc()
	return true, nil
}

// Charge adds amount to the principal's counter.
func (s *meteringService) Charge(ctx context.Context, email string, amount int64) {
	if amount <= 0 {
		return
	}

	// The caller's request may already be finished; the charge must still land.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.chargeTimeout)
	defer cancel()

	if err := s.store.Increment(ctx, email, amount); err != nil {
		metrics.MeteringChargesTotal.WithLabelValues("failed").Inc()
		s.logger.Error("Failed to record usage charge",
			"email", email,
			"amount", amount,
			"error", err,
		)
		return
	}

	metrics.MeteringChargesTotal.WithLabelValues("ok").Inc()
	metrics.MeteringUnitsTotal.Add(float64(amount))
}

// Estimate returns ceil(runes / charsPerUnit). It is approximate but
// monotonic in payload size.
func (s *meteringService) Estimate(payload string) int64 {
	n := utf8.RuneCountInString(payload)
	if n == 0 {
		return 0
	}
	return int64((n + s.charsPerUnit - 1) / s.charsPerUnit)
}

// Usage returns the principal's counter.
func (s *meteringService) Usage(ctx context.Context, email string) (*domain.UsageCounter, error) {
	return s.store.GetCounter(ctx, email)
}

// EnsureCounter creates the principal's counter if it does not exist.
func (s *meteringService) EnsureCounter(ctx context.Context, email string, limit int64) error {
	if limit < 0 {
		return domain.Invalid("metering.ensure", "limit must be non-negative")
	}
	return s.store.Ensure(ctx, email, limit)
}

// SyncLimit updates the principal's counter limit without touching used.
func (s *meteringService) SyncLimit(ctx context.Context, email string, limit int64) error {
	if limit < 0 {
		return domain.Invalid("metering.sync_limit", "limit must be non-negative")
	}
	if err := s.store.SetLimit(ctx, email, limit); err != nil {
		return err
	}
	s.logger.Info("Usage limit updated", "email", email, "limit", limit)
	return nil
}

// Reset zeroes the principal's counter.
func (s *meteringService) Reset(ctx context.Context, email string) error {
	if err := s.store.Reset(ctx, email); err != nil {
		return err
	}
	s.logger.Info("Usage counter reset", "email", email)
	return nil
}
