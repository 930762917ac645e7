// Package service contains the business logic layer.
//
// This file implements the entitlement evaluator that decides, for every
// request, whether the caller's plan allows the requested path.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/DukeRupert/tollgate/internal/catalog"
	"github.com/DukeRupert/tollgate/internal/domain"
	"github.com/DukeRupert/tollgate/internal/metrics"
	"github.com/DukeRupert/tollgate/internal/policy"
)

// =============================================================================
// Interface Definition
// =============================================================================

// TokenVerifier validates a raw session token and returns its principal.
type TokenVerifier interface {
	Verify(raw string) (domain.Principal, error)
}

// PlanReader loads a principal's subscription from storage.
type PlanReader interface {
	GetPlanState(ctx context.Context, email string) (*domain.PlanState, error)
}

// EntitlementService decides whether a request may proceed.
type EntitlementService interface {
	// Evaluate runs the full gate for one request. It never returns an
	// error; failures are expressed as deny or redirect decisions.
	Evaluate(ctx context.Context, path, rawToken string) domain.Decision

	// Authenticate verifies a token without consulting the path policy.
	// Administrator emails from configuration are elevated here.
	Authenticate(rawToken string) (domain.Principal, error)

	// PlanFor resolves the catalog plan for a principal. Used by
	// informational endpoints that need limits without gating.
	PlanFor(ctx context.Context, email string) (domain.Plan, error)

	// Account resolves the plan together with the usage counter read in
	// the same storage round trip. The counter is nil when none exists or
	// when counters are kept outside the plan store.
	Account(ctx context.Context, email string) (domain.Plan, *domain.UsageCounter, error)
}

// EntitlementConfig holds the dependencies of the entitlement service.
type EntitlementConfig struct {
	Verifier    TokenVerifier
	Plans       PlanReader
	Catalog     *catalog.Catalog
	Policy      *policy.Table
	AdminEmails []string
	Logger      *slog.Logger
}

// =============================================================================
// Implementation
// =============================================================================

type entitlementService struct {
	verifier TokenVerifier
	plans    PlanReader
	catalog  *catalog.Catalog
	policy   *policy.Table
	admins   map[string]struct{}
	logger   *slog.Logger
}

// NewEntitlementService creates a new EntitlementService.
func NewEntitlementService(cfg EntitlementConfig) EntitlementService {
	admins := make(map[string]struct{}, len(cfg.AdminEmails))
	for _, email := range cfg.AdminEmails {
		if email = domain.NormalizeEmail(email); email != "" {
			admins[email] = struct{}{}
		}
	}

	return &entitlementService{
		verifier: cfg.Verifier,
		plans:    cfg.Plans,
		catalog:  cfg.Catalog,
		policy:   cfg.Policy,
		admins:   admins,
		logger:   cfg.Logger,
	}
}

// Evaluate decides whether the request may proceed.
func (s *entitlementService) Evaluate(ctx context.Context, path, rawToken string) domain.Decision {
	start := time.Now()
	d := s.evaluate(ctx, path, rawToken)
	metrics.EntitlementDecisionDuration.Observe(time.Since(start).Seconds())
	metrics.EntitlementDecisionsTotal.WithLabelValues(string(d.Outcome), d.Reason).Inc()

	s.logger.Debug("Entitlement decided",
		"path", path,
		"outcome", d.Outcome,
		"reason", d.Reason,
		"tier", d.TierID,
	)
	return d
}

func (s *entitlementService) evaluate(ctx context.Context, path, rawToken string) domain.Decision {
	// Ungated paths never touch the token or the plan store.
	req, gated := s.policy.Match(path)
	if !gated {
		return domain.Decision{Outcome: domain.OutcomeAllow, Reason: domain.ReasonUngated}
	}

	principal, err := s.Authenticate(rawToken)
	if err != nil {
		return domain.Decision{
			Outcome:  domain.OutcomeRedirectToLogin,
			Reason:   domain.ReasonInvalidToken,
			LimitKey: req.LimitKey,
			Err:      err,
		}
	}

	if principal.IsAdmin() {
		return domain.Decision{
			Outcome:   domain.OutcomeAllow,
			Reason:    domain.ReasonAdminBypass,
			LimitKey:  req.LimitKey,
			Principal: &principal,
		}
	}

	state, err := s.plans.GetPlanState(ctx, principal.Email)
	if err != nil {
		// Fail closed: a gated path is never reachable on lookup failure.
		if errors.Is(err, domain.ErrStorageUnavailable) {
			s.logger.Warn("Plan lookup failed, denying gated path",
				"email", principal.Email,
				"path", path,
				"error", err,
			)
		} else {
			s.logger.Info("No plan for principal, denying gated path",
				"email", principal.Email,
				"path", path,
			)
		}
		return domain.Decision{
			Outcome:   domain.OutcomeDeny,
			Reason:    domain.ReasonPlanUnresolvable,
			LimitKey:  req.LimitKey,
			Principal: &principal,
			Err:       err,
		}
	}

	plan := s.catalog.Resolve(state.Subscription)
	limit := plan.Limit(req.LimitKey)

	if !req.MinRequired.SatisfiedBy(limit) {
		return domain.Decision{
			Outcome:   domain.OutcomeRedirectToUpgrade,
			Reason:    req.LimitKey,
			LimitKey:  req.LimitKey,
			Principal: &principal,
			TierID:    plan.TierID,
		}
	}

	return domain.Decision{
		Outcome:   domain.OutcomeAllow,
		Reason:    domain.ReasonAllowed,
		LimitKey:  req.LimitKey,
		Principal: &principal,
		TierID:    plan.TierID,
	}
}

// Authenticate verifies the token and applies configured admin emails.
func (s *entitlementService) Authenticate(rawToken string) (domain.Principal, error) {
	principal, err := s.verifier.Verify(rawToken)
	if err != nil {
		return domain.Principal{}, err
	}
	if _, ok := s.admins[principal.Email]; ok {
		principal.Role = domain.RoleAdmin
	}
	return principal, nil
}

// PlanFor resolves the current plan for email.
func (s *entitlementService) PlanFor(ctx context.Context, email string) (domain.Plan, error) {
	plan, _, err := s.Account(ctx, email)
	return plan, err
}

// Account resolves the plan and returns the counter loaded alongside it.
func (s *entitlementService) Account(ctx context.Context, email string) (domain.Plan, *domain.UsageCounter, error) {
	state, err := s.plans.GetPlanState(ctx, email)
	if err != nil {
		return catalog.Restrictive(), nil, err
	}
	return s.catalog.Resolve(state.Subscription), state.Usage, nil
}
