package domain

// Outcome is the result of evaluating one request against the path policy.
type Outcome string

const (
	OutcomeAllow             Outcome = "allow"
	OutcomeDeny              Outcome = "deny"
	OutcomeRedirectToLogin   Outcome = "redirect_to_login"
	OutcomeRedirectToUpgrade Outcome = "redirect_to_upgrade"
)

// Stable reason codes. The UI keys upgrade prompts off these values; an
// upgrade redirect uses the feature key itself as its reason.
const (
	ReasonUngated          = "ungated"
	ReasonAllowed          = "allowed"
	ReasonAdminBypass      = "admin-bypass"
	ReasonInvalidToken     = "invalid-token"
	ReasonPlanUnresolvable = "plan-unresolvable"
	ReasonQuotaExceeded    = "quota-exceeded"
	ReasonAccountNotFound  = "account-not-found"
)

// Decision is the transient verdict for one request. It is never persisted
// or cached.
type Decision struct {
	Outcome   Outcome
	Reason    string
	LimitKey  string     // set when a policy entry matched
	Principal *Principal // set once the token verified
	TierID    string     // resolved catalog tier, when a plan was loaded
	Err       error      // underlying cause for deny and login redirects
}

// Allowed returns true if the request may pass through.
func (d Decision) Allowed() bool {
	return d.Outcome == OutcomeAllow
}
