package domain

import (
	"fmt"
	"strconv"
)

// LimitKind determines how a feature limit is interpreted.
type LimitKind string

const (
	LimitKindFlag LimitKind = "flag" // feature enabled or not
	LimitKindCap  LimitKind = "cap"  // non-negative numeric capacity
)

// FeatureLimit is one entry in a plan: either a boolean gate or a numeric cap.
// The zero value is a disabled flag, which is the most restrictive limit.
type FeatureLimit struct {
	Kind      LimitKind
	Enabled   bool
	Cap       int64
	Unlimited bool
}

// Flag returns a boolean feature limit.
func Flag(enabled bool) FeatureLimit {
	return FeatureLimit{Kind: LimitKindFlag, Enabled: enabled}
}

// Cap returns a numeric feature limit.
func Cap(n int64) FeatureLimit {
	return FeatureLimit{Kind: LimitKindCap, Cap: n}
}

// Unlimited returns a numeric limit without an upper bound.
func Unlimited() FeatureLimit {
	return FeatureLimit{Kind: LimitKindCap, Unlimited: true}
}

func (l FeatureLimit) String() string {
	switch {
	case l.Kind == LimitKindCap && l.Unlimited:
		return "unlimited"
	case l.Kind == LimitKindCap:
		return strconv.FormatInt(l.Cap, 10)
	default:
		return strconv.FormatBool(l.Enabled)
	}
}

// Plan maps feature keys to limits for one tier. Plans are built once from
// the catalog and never mutated.
type Plan struct {
	TierID string
	Limits map[string]FeatureLimit
}

// Limit returns the limit for key, or a disabled flag when the plan does not
// mention it.
func (p Plan) Limit(key string) FeatureLimit {
	if l, ok := p.Limits[key]; ok {
		return l
	}
	return FeatureLimit{}
}

// Requirement is the minimum entitlement a gated path asks for: either
// "feature must be enabled" or "at least Count units of capacity".
type Requirement struct {
	Count int64 // zero means boolean requirement
}

// RequireEnabled returns a boolean requirement.
func RequireEnabled() Requirement {
	return Requirement{}
}

// RequireAtLeast returns a numeric requirement.
func RequireAtLeast(n int64) Requirement {
	return Requirement{Count: n}
}

// IsBoolean returns true for "feature must be enabled" requirements.
func (r Requirement) IsBoolean() bool {
	return r.Count == 0
}

func (r Requirement) String() string {
	if r.IsBoolean() {
		return "true"
	}
	return strconv.FormatInt(r.Count, 10)
}

// SatisfiedBy reports whether a plan limit meets the requirement.
//
// A boolean requirement accepts an enabled flag or any positive cap. A numeric
// requirement only accepts caps; a flag never satisfies it.
func (r Requirement) SatisfiedBy(l FeatureLimit) bool {
	if r.IsBoolean() {
		if l.Kind == LimitKindCap {
			return l.Unlimited || l.Cap > 0
		}
		return l.Enabled
	}
	if l.Kind != LimitKindCap {
		return false
	}
	return l.Unlimited || l.Cap >= r.Count
}

// PathRequirement binds a URL path prefix to the feature it needs.
type PathRequirement struct {
	PathPrefix  string
	LimitKey    string
	MinRequired Requirement
}

func (p PathRequirement) String() string {
	return fmt.Sprintf("%s -> %s >= %s", p.PathPrefix, p.LimitKey, p.MinRequired)
}
