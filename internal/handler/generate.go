package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/DukeRupert/tollgate/internal/ai"
	"github.com/DukeRupert/tollgate/internal/auth"
	"github.com/DukeRupert/tollgate/internal/domain"
	"github.com/DukeRupert/tollgate/internal/service"
)

// GenerateHandler serves metered AI generation.
//
// Flow per request:
//
//	check remaining -> generate -> charge(estimate(output))
//
// Nothing is charged when generation fails. The check and the charge are
// not atomic, so concurrent requests may overshoot the limit slightly.
type GenerateHandler struct {
	metering service.MeteringService
	provider ai.Provider
	timeout  time.Duration
	logger   *slog.Logger
}

// NewGenerateHandler creates a new GenerateHandler.
func NewGenerateHandler(metering service.MeteringService, provider ai.Provider, timeout time.Duration, logger *slog.Logger) *GenerateHandler {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &GenerateHandler{
		metering: metering,
		provider: provider,
		timeout:  timeout,
		logger:   logger,
	}
}

// RegisterRoutes registers the generation route behind requireAuth, which
// must place the principal on the context.
func (h *GenerateHandler) RegisterRoutes(mux *http.ServeMux, requireAuth func(http.Handler) http.Handler) {
	mux.Handle("POST /api/ai/generate", requireAuth(http.HandlerFunc(h.Generate)))
}

// GenerateRequest is the body of POST /api/ai/generate.
type GenerateRequest struct {
	Prompt    string `json:"prompt"`
	Context   string `json:"context,omitempty"`
	MaxTokens int    `json:"max_tokens,omitempty"`
}

// GenerateResponse is the success body of POST /api/ai/generate.
type GenerateResponse struct {
	Text         string `json:"text"`
	Model        string `json:"model"`
	UnitsCharged int64  `json:"units_charged"`
}

// Generate handles POST /api/ai/generate.
func (h *GenerateHandler) Generate(w http.ResponseWriter, r *http.Request) {
	const op = "generate"

	p := auth.GetPrincipalFromRequest(r)
	if p == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	var req GenerateRequest
	if err := decodeJSON(w, r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	params := ai.GenerateParams{
		Prompt:    req.Prompt,
		Context:   req.Context,
		MaxTokens: req.MaxTokens,
		Email:     p.Email,
	}
	if err := params.Validate(); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, err.Error()))
		return
	}

	ok, err := h.metering.CheckRemaining(r.Context(), p.Email)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			w.Header().Set(reasonHeader, domain.ReasonAccountNotFound)
		}
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if !ok {
		w.Header().Set(reasonHeader, domain.ReasonQuotaExceeded)
		ErrorResponse(w, r, h.logger, domain.QuotaExceeded(op))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	result, err := h.provider.Generate(ctx, params)
	if err != nil {
		ErrorResponse(w, r, h.logger, mapAIError(op, err))
		return
	}

	units := h.metering.Estimate(result.Text)
	h.metering.Charge(r.Context(), p.Email, units)

	writeJSON(w, http.StatusOK, GenerateResponse{
		Text:         result.Text,
		Model:        result.Usage.Model,
		UnitsCharged: units,
	})
}

// mapAIError converts provider failures into domain errors.
func mapAIError(op string, err error) error {
	switch {
	case errors.Is(err, ai.EAIInvalidRequest):
		return domain.Wrap(err, domain.EINVALID, op, "The generation request was rejected")
	case errors.Is(err, ai.EAIRateLimit),
		errors.Is(err, ai.EAITimeout),
		errors.Is(err, ai.EAIUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return domain.Wrap(err, domain.EUNAVAILABLE, op, "The generation service is busy. Please try again shortly.")
	default:
		return domain.Internal(err, op, "Generation failed")
	}
}
