package main

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/DukeRupert/tollgate/internal"
	"github.com/DukeRupert/tollgate/internal/ai"
	"github.com/DukeRupert/tollgate/internal/csrf"
	"github.com/DukeRupert/tollgate/internal/handler"
	"github.com/DukeRupert/tollgate/internal/metrics"
	"github.com/DukeRupert/tollgate/internal/middleware"
	"github.com/DukeRupert/tollgate/internal/service"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// routeDeps is everything newRouter wires together.
type routeDeps struct {
	cfg          *internal.Config
	entitlements service.EntitlementService
	metering     service.MeteringService
	provider     ai.Provider
	upstream     *url.URL
	logger       *slog.Logger

	// issuer and limiter are only set when the dev-token endpoint is enabled.
	issuer  handler.TokenIssuer
	limiter *middleware.RateLimiter
}

// newRouter registers every route and wraps the mux in the application
// middleware stack. The entitlement gate is the innermost layer.
func newRouter(d routeDeps) http.Handler {
	cfg := d.cfg
	isSecure := cfg.IsSecure()

	// Initialize middleware
	authMw := middleware.NewAuthMiddleware(d.entitlements, d.logger, cfg.SessionCookieName, cfg.LoginPath, isSecure)
	gateMw := middleware.NewEntitlementMiddleware(d.entitlements, d.logger, middleware.GateConfig{
		CookieName:  cfg.SessionCookieName,
		LoginPath:   cfg.LoginPath,
		UpgradePath: cfg.UpgradePath,
	})
	loggingMw := middleware.NewRequestLoggingMiddleware(d.logger)
	securityMw := middleware.NewSecurityHeadersMiddleware(isSecure)
	csrfMw := csrf.NewMiddleware(cfg.SessionCookieName, isSecure, d.logger)
	metricsAuth := middleware.NewBasicAuthMiddleware("metrics", cfg.MetricsUsername, cfg.MetricsPassword)

	// Initialize handlers
	usageHandler := handler.NewUsageHandler(d.metering, d.entitlements, cfg.DefaultUsageLimit, d.logger)
	generateHandler := handler.NewGenerateHandler(d.metering, d.provider, cfg.AIRequestTimeout, d.logger)
	adminHandler := handler.NewAdminHandler(d.metering, d.entitlements, cfg.DefaultUsageLimit, d.logger)
	upstream := handler.NewUpstreamHandler(d.upstream, d.logger)

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Metrics
	mux.Handle("GET /metrics", metricsAuth.Handler(promhttp.Handler()))

	// Protected routes verify the token themselves so they keep working
	// whether or not the path policy gates them.
	requireUser := middleware.Stack(authMw.WithPrincipal, authMw.RequirePrincipal)
	requireAdmin := middleware.Stack(authMw.WithPrincipal, authMw.RequireAdmin)

	usageHandler.RegisterRoutes(mux, requireUser)
	adminHandler.RegisterRoutes(mux, requireAdmin)
	generateHandler.RegisterRoutes(mux, requireUser)

	// Development token endpoint (rate limited per IP)
	if d.issuer != nil {
		tokenHandler := handler.NewTokenHandler(d.issuer, d.entitlements, d.metering, handler.TokenConfig{
			CookieName:   cfg.SessionCookieName,
			DefaultLimit: cfg.DefaultUsageLimit,
			IsSecure:     isSecure,
		}, d.logger)
		tokenHandler.RegisterRoutes(mux, middleware.NewRateLimitMiddleware(d.limiter, d.logger).Limit)
	}

	// Everything else goes to the application behind the gate
	mux.Handle("/", upstream)

	return middleware.Stack(
		loggingMw.Handler,
		metrics.Middleware,
		securityMw.Handler,
		csrfMw.Handler,
		gateMw.Handler,
	)(mux)
}
