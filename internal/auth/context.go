// Package auth provides authentication context helpers.
//
// This package is designed to be imported by both middleware and handler
// packages without causing import cycles.
package auth

import (
	"context"
	"net/http"

	"github.com/DukeRupert/tollgate/internal/domain"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// principalContextKey is the key used to store the verified principal.
	principalContextKey contextKey = "principal"

	// tierContextKey is the key used to store the resolved plan tier.
	tierContextKey contextKey = "tier"
)

// GetPrincipal retrieves the authenticated principal from the context.
//
// Returns nil if no principal is authenticated.
//
// Usage:
//
//	p := auth.GetPrincipal(r.Context())
//	if p == nil {
//	    // Handle unauthenticated request
//	}
func GetPrincipal(ctx context.Context) *domain.Principal {
	p, ok := ctx.Value(principalContextKey).(*domain.Principal)
	if !ok {
		return nil
	}
	return p
}

// GetPrincipalFromRequest retrieves the authenticated principal from the
// request context.
func GetPrincipalFromRequest(r *http.Request) *domain.Principal {
	return GetPrincipal(r.Context())
}

// SetPrincipal stores a principal in the context.
//
// This is called by the entitlement and authentication middleware after
// verifying a session token.
func SetPrincipal(ctx context.Context, p *domain.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// GetTier returns the plan tier resolved for this request, or "" if the
// request was not gated or the caller bypassed the plan check.
func GetTier(ctx context.Context) string {
	tier, _ := ctx.Value(tierContextKey).(string)
	return tier
}

// SetTier stores the resolved plan tier in the context.
func SetTier(ctx context.Context, tier string) context.Context {
	return context.WithValue(ctx, tierContextKey, tier)
}
