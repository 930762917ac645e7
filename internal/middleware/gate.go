package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/DukeRupert/tollgate/internal/auth"
	"github.com/DukeRupert/tollgate/internal/domain"
	"github.com/DukeRupert/tollgate/internal/handler"
	"github.com/DukeRupert/tollgate/internal/service"
)

const (
	// ReasonHeader carries the decision reason on every non-allow response.
	ReasonHeader = "X-Entitlement-Reason"

	// DefaultUpgradePath is where plan-limited HTML requests are sent.
	DefaultUpgradePath = "/settings/billing"
)

// GateConfig configures the entitlement gate.
type GateConfig struct {
	CookieName  string
	LoginPath   string
	UpgradePath string
}

// EntitlementMiddleware runs the entitlement evaluator in front of every
// request and turns its decision into an HTTP response.
type EntitlementMiddleware struct {
	entitlements service.EntitlementService
	logger       *slog.Logger
	cookieName   string
	loginPath    string
	upgradePath  string
}

// NewEntitlementMiddleware creates a new entitlement gate.
func NewEntitlementMiddleware(entitlements service.EntitlementService, logger *slog.Logger, cfg GateConfig) *EntitlementMiddleware {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultSessionCookieName
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = DefaultLoginPath
	}
	if cfg.UpgradePath == "" {
		cfg.UpgradePath = DefaultUpgradePath
	}
	return &EntitlementMiddleware{
		entitlements: entitlements,
		logger:       logger,
		cookieName:   cfg.CookieName,
		loginPath:    cfg.LoginPath,
		upgradePath:  cfg.UpgradePath,
	}
}

// Handler returns middleware that gates requests by plan.
//
//	allow               -> next handler, principal and tier in context
//	redirect_to_login   -> 303 to login (HTML) or 401 (API)
//	redirect_to_upgrade -> 303 to upgrade page (HTML) or 402 (API)
//	deny                -> 503 when storage failed, otherwise 403
func (m *EntitlementMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := TokenFromRequest(r, m.cookieName)
		d := m.entitlements.Evaluate(r.Context(), r.URL.Path, raw)

		switch d.Outcome {
		case domain.OutcomeAllow:
			ctx := r.Context()
			if d.Principal != nil {
				ctx = auth.SetPrincipal(ctx, d.Principal)
			}
			if d.TierID != "" {
				ctx = auth.SetTier(ctx, d.TierID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))

		case domain.OutcomeRedirectToLogin:
			w.Header().Set(ReasonHeader, d.Reason)
			if isAPIRequest(r) {
				handler.UnauthorizedResponse(w, r, m.logger)
				return
			}
			redirectToLogin(w, r, m.loginPath)

		case domain.OutcomeRedirectToUpgrade:
			w.Header().Set(ReasonHeader, d.Reason)
			if isAPIRequest(r) {
				err := domain.Errorf(domain.EPAYMENT, "entitlement.gate",
					"Your current plan does not include %s", d.LimitKey)
				handler.ErrorResponse(w, r, m.logger, err)
				return
			}
			http.Redirect(w, r, m.upgradePath+"?feature="+url.QueryEscape(d.LimitKey), http.StatusSeeOther)

		default:
			w.Header().Set(ReasonHeader, d.Reason)
			if errors.Is(d.Err, domain.ErrStorageUnavailable) {
				handler.ErrorResponse(w, r, m.logger, d.Err)
				return
			}
			handler.ForbiddenResponse(w, r, m.logger)
		}
	})
}

var _ func(http.Handler) http.Handler = (&EntitlementMiddleware{}).Handler
