package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/DukeRupert/tollgate/internal/domain"
	"github.com/DukeRupert/tollgate/internal/service"
	"github.com/DukeRupert/tollgate/internal/session"
)

// TokenIssuer signs session tokens.
type TokenIssuer interface {
	Issue(p domain.Principal) (string, time.Time, error)
}

// TokenConfig configures the development token endpoint.
type TokenConfig struct {
	CookieName   string
	DefaultLimit int64
	IsSecure     bool
}

// TokenHandler issues session tokens for local development. It is only
// registered when DEV_TOKEN_ENDPOINT is enabled.
type TokenHandler struct {
	issuer       TokenIssuer
	entitlements service.EntitlementService
	metering     service.MeteringService
	cfg          TokenConfig
	logger       *slog.Logger
}

// NewTokenHandler creates a new TokenHandler.
func NewTokenHandler(issuer TokenIssuer, entitlements service.EntitlementService, metering service.MeteringService, cfg TokenConfig, logger *slog.Logger) *TokenHandler {
	if cfg.CookieName == "" {
		cfg.CookieName = session.CookieName
	}
	return &TokenHandler{
		issuer:       issuer,
		entitlements: entitlements,
		metering:     metering,
		cfg:          cfg,
		logger:       logger,
	}
}

// RegisterRoutes registers the token route behind limit.
func (h *TokenHandler) RegisterRoutes(mux *http.ServeMux, limit func(http.Handler) http.Handler) {
	mux.Handle("POST /auth/dev-token", limit(http.HandlerFunc(h.Issue)))
}

// TokenRequest is the body of POST /auth/dev-token.
type TokenRequest struct {
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
}

// TokenResponse is the success body of POST /auth/dev-token.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Issue handles POST /auth/dev-token.
func (h *TokenHandler) Issue(w http.ResponseWriter, r *http.Request) {
	const op = "token.issue"

	var req TokenRequest
	if err := decodeJSON(w, r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	email := domain.NormalizeEmail(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "A valid email is required"))
		return
	}

	p := domain.Principal{Email: email, Role: domain.ParseRole(req.Role)}

	signed, expiresAt, err := h.issuer.Issue(p)
	if err != nil {
		InternalErrorResponse(w, r, h.logger, err)
		return
	}

	h.syncCounter(r.Context(), email)

	session.SetCookie(w, h.cfg.CookieName, signed, expiresAt, h.cfg.IsSecure)

	h.logger.Info("development token issued", "email", email, "role", p.Role)

	writeJSON(w, http.StatusCreated, TokenResponse{Token: signed, ExpiresAt: expiresAt})
}

// syncCounter sizes the principal's usage counter from their plan, creating
// it if needed. When the plan cannot be read an existing counter is left
// alone. Failure only means the first generation call reports
// account-not-found.
func (h *TokenHandler) syncCounter(ctx context.Context, email string) {
	plan, err := h.entitlements.PlanFor(ctx, email)
	limit := service.CreditLimit(plan, h.cfg.DefaultLimit)

	if err == nil {
		err = h.metering.SyncLimit(ctx, email, limit)
	} else {
		err = h.metering.EnsureCounter(ctx, email, limit)
	}
	if err != nil {
		h.logger.Warn("failed to seed usage counter", "email", email, "error", err)
	}
}
