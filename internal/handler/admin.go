package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/DukeRupert/tollgate/internal/auth"
	"github.com/DukeRupert/tollgate/internal/domain"
	"github.com/DukeRupert/tollgate/internal/service"
)

// AdminHandler handles administrative usage requests.
type AdminHandler struct {
	metering     service.MeteringService
	entitlements service.EntitlementService
	defaultLimit int64
	logger       *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(metering service.MeteringService, entitlements service.EntitlementService, defaultLimit int64, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		metering:     metering,
		entitlements: entitlements,
		defaultLimit: defaultLimit,
		logger:       logger,
	}
}

// RegisterRoutes registers admin routes with the provided middleware.
func (h *AdminHandler) RegisterRoutes(
	mux *http.ServeMux,
	requireAdmin func(http.Handler) http.Handler,
) {
	mux.Handle("GET /admin/usage", requireAdmin(http.HandlerFunc(h.ShowUsage)))
	mux.Handle("POST /admin/usage/reset", requireAdmin(http.HandlerFunc(h.ResetUsage)))
	mux.Handle("POST /admin/usage/limit", requireAdmin(http.HandlerFunc(h.SetLimit)))
}

// ResetRequest is the body of POST /admin/usage/reset.
type ResetRequest struct {
	Email string `json:"email"`
}

// LimitRequest is the body of POST /admin/usage/limit.
type LimitRequest struct {
	Email string `json:"email"`
	Limit *int64 `json:"limit"`
}

// CounterResponse describes one usage counter.
type CounterResponse struct {
	Email     string `json:"email"`
	Used      int64  `json:"used"`
	Limit     int64  `json:"limit"`
	Remaining int64  `json:"remaining"`
}

func newCounterResponse(c *domain.UsageCounter) CounterResponse {
	return CounterResponse{
		Email:     c.Email,
		Used:      c.Used,
		Limit:     c.Limit,
		Remaining: c.Remaining(),
	}
}

// ShowUsage handles GET /admin/usage?email=...
func (h *AdminHandler) ShowUsage(w http.ResponseWriter, r *http.Request) {
	email := domain.NormalizeEmail(r.URL.Query().Get("email"))
	if email == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid("admin.show_usage", "email is required"))
		return
	}

	counter, err := h.metering.Usage(r.Context(), email)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			err = domain.NotFound("admin.show_usage", "usage counter", email)
		}
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, newCounterResponse(counter))
}

// ResetUsage handles POST /admin/usage/reset. It brings the counter's limit
// in line with the current plan, creating the counter if needed, then zeroes
// used.
func (h *AdminHandler) ResetUsage(w http.ResponseWriter, r *http.Request) {
	const op = "admin.reset_usage"

	var req ResetRequest
	if err := decodeJSON(w, r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	email := domain.NormalizeEmail(req.Email)
	if email == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "email is required"))
		return
	}

	plan, err := h.entitlements.PlanFor(r.Context(), email)
	if errors.Is(err, domain.ErrStorageUnavailable) {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	if err := h.metering.SyncLimit(r.Context(), email, service.CreditLimit(plan, h.defaultLimit)); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if err := h.metering.Reset(r.Context(), email); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	counter, err := h.metering.Usage(r.Context(), email)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	actor := ""
	if p := auth.GetPrincipalFromRequest(r); p != nil {
		actor = p.Email
	}
	h.logger.Info("usage counter reset by administrator", "email", email, "admin", actor)

	writeJSON(w, http.StatusOK, newCounterResponse(counter))
}

// SetLimit handles POST /admin/usage/limit. The override holds until the next
// plan sync (reset or token issuance).
func (h *AdminHandler) SetLimit(w http.ResponseWriter, r *http.Request) {
	const op = "admin.set_limit"

	var req LimitRequest
	if err := decodeJSON(w, r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	email := domain.NormalizeEmail(req.Email)
	if email == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "email is required"))
		return
	}
	if req.Limit == nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "limit is required"))
		return
	}

	if err := h.metering.SyncLimit(r.Context(), email, *req.Limit); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	counter, err := h.metering.Usage(r.Context(), email)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	actor := ""
	if p := auth.GetPrincipalFromRequest(r); p != nil {
		actor = p.Email
	}
	h.logger.Info("usage limit overridden by administrator", "email", email, "limit", *req.Limit, "admin", actor)

	writeJSON(w, http.StatusOK, newCounterResponse(counter))
}
