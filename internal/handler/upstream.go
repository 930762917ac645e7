package handler

import (
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/DukeRupert/tollgate/internal/auth"
	"github.com/DukeRupert/tollgate/internal/domain"
)

// Identity headers forwarded to the upstream application. Inbound values
// are always stripped so clients cannot forge them.
const (
	HeaderUserEmail = "X-Tollgate-Email"
	HeaderUserRole  = "X-Tollgate-Role"
	HeaderUserTier  = "X-Tollgate-Tier"
)

// UpstreamHandler serves every path the gate let through that no other
// route claims. With a target it reverse proxies to the application;
// without one it answers with the access that was granted.
type UpstreamHandler struct {
	proxy  *httputil.ReverseProxy
	logger *slog.Logger
}

// NewUpstreamHandler creates an UpstreamHandler. target may be nil.
func NewUpstreamHandler(target *url.URL, logger *slog.Logger) *UpstreamHandler {
	h := &UpstreamHandler{logger: logger}
	if target == nil {
		return h
	}

	rp := httputil.NewSingleHostReverseProxy(target)
	rp.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error("upstream request failed",
			"upstream", target.Host,
			"path", r.URL.Path,
			"error", err,
		)
		writeJSONError(w, http.StatusBadGateway, "bad_gateway", "The application is unavailable")
	}
	h.proxy = rp
	return h
}

// AccessResponse is returned for granted paths when no upstream is configured.
type AccessResponse struct {
	Path  string `json:"path"`
	Email string `json:"email"`
	Tier  string `json:"tier,omitempty"`
}

func (h *UpstreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r.Header.Del(HeaderUserEmail)
	r.Header.Del(HeaderUserRole)
	r.Header.Del(HeaderUserTier)

	p := auth.GetPrincipalFromRequest(r)
	tier := auth.GetTier(r.Context())

	if h.proxy != nil {
		if p != nil {
			r.Header.Set(HeaderUserEmail, p.Email)
			r.Header.Set(HeaderUserRole, string(p.Role))
		}
		if tier != "" {
			r.Header.Set(HeaderUserTier, tier)
		}
		h.proxy.ServeHTTP(w, r)
		return
	}

	// Ungated paths carry no principal; there is nothing to serve for them.
	if p == nil {
		ErrorResponse(w, r, h.logger, domain.NotFound("upstream", "page", r.URL.Path))
		return
	}

	writeJSON(w, http.StatusOK, AccessResponse{Path: r.URL.Path, Email: p.Email, Tier: tier})
}
