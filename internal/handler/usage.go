package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/DukeRupert/tollgate/internal/auth"
	"github.com/DukeRupert/tollgate/internal/domain"
	"github.com/DukeRupert/tollgate/internal/service"
)

// UsageHandler reports a principal's metering counter. It is informational
// and fails open: storage trouble yields a degraded answer, never an error.
type UsageHandler struct {
	metering     service.MeteringService
	entitlements service.EntitlementService
	defaultLimit int64
	logger       *slog.Logger
}

// NewUsageHandler creates a new UsageHandler.
func NewUsageHandler(metering service.MeteringService, entitlements service.EntitlementService, defaultLimit int64, logger *slog.Logger) *UsageHandler {
	return &UsageHandler{
		metering:     metering,
		entitlements: entitlements,
		defaultLimit: defaultLimit,
		logger:       logger,
	}
}

// RegisterRoutes registers usage routes behind requireAuth.
func (h *UsageHandler) RegisterRoutes(mux *http.ServeMux, requireAuth func(http.Handler) http.Handler) {
	mux.Handle("GET /api/usage", requireAuth(http.HandlerFunc(h.Show)))
}

// UsageResponse is the body of GET /api/usage.
type UsageResponse struct {
	Email     string `json:"email"`
	Tier      string `json:"tier"`
	Used      int64  `json:"used"`
	Limit     int64  `json:"limit"`
	Remaining int64  `json:"remaining"`
	Degraded  bool   `json:"degraded"`
	Reason    string `json:"reason,omitempty"`
}

// Show handles GET /api/usage.
func (h *UsageHandler) Show(w http.ResponseWriter, r *http.Request) {
	p := auth.GetPrincipalFromRequest(r)
	if p == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	resp := UsageResponse{Email: p.Email}

	plan, counter, planErr := h.entitlements.Account(r.Context(), p.Email)
	resp.Tier = plan.TierID
	if errors.Is(planErr, domain.ErrStorageUnavailable) {
		resp.Degraded = true
	}

	// The plan store may already have returned the counter.
	var err error
	if counter == nil {
		counter, err = h.metering.Usage(r.Context(), p.Email)
	}
	switch {
	case err == nil:
		resp.Used = counter.Used
		resp.Limit = counter.Limit
		resp.Remaining = counter.Remaining()

	case errors.Is(err, domain.ErrAccountNotFound):
		resp.Limit = service.CreditLimit(plan, h.defaultLimit)
		resp.Remaining = resp.Limit
		resp.Reason = domain.ReasonAccountNotFound

	default:
		h.logger.Warn("usage lookup failed, serving degraded response",
			"email", p.Email,
			"error", err,
		)
		resp.Limit = h.defaultLimit
		resp.Remaining = h.defaultLimit
		resp.Degraded = true
	}

	writeJSON(w, http.StatusOK, resp)
}
