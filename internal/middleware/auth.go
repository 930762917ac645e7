// Package middleware contains HTTP middleware for the tollgate service.
//
// Middleware functions follow the standard Go pattern of wrapping http.Handler.
// They are designed to be composed using a middleware stack approach.
package middleware

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/DukeRupert/tollgate/internal/auth"
	"github.com/DukeRupert/tollgate/internal/handler"
	"github.com/DukeRupert/tollgate/internal/service"
	"github.com/DukeRupert/tollgate/internal/session"
)

// =============================================================================
// Configuration Constants
// =============================================================================

const (
	// DefaultSessionCookieName is the cookie that carries the signed session
	// token when no Authorization header is present.
	DefaultSessionCookieName = session.CookieName

	// DefaultLoginPath is where unauthenticated HTML requests are sent.
	DefaultLoginPath = "/login"
)

// =============================================================================
// Auth Middleware Configuration
// =============================================================================

// AuthMiddleware provides authentication middleware functionality for
// routes that need a principal but are not gated by the path policy.
type AuthMiddleware struct {
	entitlements service.EntitlementService
	logger       *slog.Logger
	cookieName   string
	loginPath    string
	isSecure     bool // Whether to set Secure flag on cookies (true in production)
}

// NewAuthMiddleware creates a new AuthMiddleware instance.
func NewAuthMiddleware(entitlements service.EntitlementService, logger *slog.Logger, cookieName, loginPath string, isSecure bool) *AuthMiddleware {
	if cookieName == "" {
		cookieName = DefaultSessionCookieName
	}
	if loginPath == "" {
		loginPath = DefaultLoginPath
	}
	return &AuthMiddleware{
		entitlements: entitlements,
		logger:       logger,
		cookieName:   cookieName,
		loginPath:    loginPath,
		isSecure:     isSecure,
	}
}

// =============================================================================
// WithPrincipal Middleware
// =============================================================================

// WithPrincipal verifies the session token, if any, and stores the principal
// in the request context. It always calls the next handler.
//
// A cookie that fails verification is cleared so the browser stops sending it.
func (m *AuthMiddleware) WithPrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, fromCookie := TokenFromRequest(r, m.cookieName)
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}

		p, err := m.entitlements.Authenticate(raw)
		if err != nil {
			m.logger.Debug("session token rejected", "path", r.URL.Path, "error", err)
			if fromCookie {
				session.ClearCookie(w, m.cookieName, m.isSecure)
			}
			next.ServeHTTP(w, r)
			return
		}

		ctx := auth.SetPrincipal(r.Context(), &p)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// =============================================================================
// RequirePrincipal Middleware
// =============================================================================

// RequirePrincipal rejects requests without a principal in context.
//
// IMPORTANT: This middleware must be used AFTER WithPrincipal in the chain.
//
//	Request -> WithPrincipal -> RequirePrincipal -> Handler
//	                            |
//	                            +-> If no principal: redirect to login (or 401 for API)
//	                            +-> Otherwise: call next handler
func (m *AuthMiddleware) RequirePrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.GetPrincipalFromRequest(r) == nil {
			if isAPIRequest(r) {
				handler.UnauthorizedResponse(w, r, m.logger)
				return
			}
			redirectToLogin(w, r, m.loginPath)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// RequireAdmin Middleware
// =============================================================================

// RequireAdmin rejects requests whose principal is not an administrator.
// Use it after RequirePrincipal.
func (m *AuthMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := auth.GetPrincipalFromRequest(r)
		if p == nil {
			m.logger.Error("RequireAdmin called without principal in context")
			handler.UnauthorizedResponse(w, r, m.logger)
			return
		}

		if !p.IsAdmin() {
			m.logger.Warn("non-admin attempted admin route",
				"email", p.Email,
				"path", r.URL.Path,
			)
			handler.ForbiddenResponse(w, r, m.logger)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Token and Cookie Helpers
// =============================================================================

// TokenFromRequest extracts the raw session token. A bearer token in the
// Authorization header wins over the session cookie. The second return
// value reports whether the token came from the cookie.
func TokenFromRequest(r *http.Request, cookieName string) (string, bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token), false
		}
	}

	if cookie, err := r.Cookie(cookieName); err == nil && cookie.Value != "" {
		return cookie.Value, true
	}

	return "", false
}

// redirectToLogin sends the browser to the login page with a return_to
// parameter so it can come back after signing in.
func redirectToLogin(w http.ResponseWriter, r *http.Request, loginPath string) {
	returnTo := r.URL.Path
	if r.URL.RawQuery != "" {
		returnTo += "?" + r.URL.RawQuery
	}
	http.Redirect(w, r, loginPath+"?return_to="+url.QueryEscape(returnTo), http.StatusSeeOther)
}

// =============================================================================
// Request Helpers
// =============================================================================

// isAPIRequest determines if the request expects a JSON response.
//
// This is used to decide whether to redirect (HTML) or return JSON errors (API).
//
// Checks:
// 1. HX-Request header is NOT present (htmx wants HTML)
// 2. Accept header contains application/json
// 3. Content-Type is application/json
// 4. URL path starts with /api/
func isAPIRequest(r *http.Request) bool {
	if r.Header.Get("HX-Request") == "true" {
		return false
	}

	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}

	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		return true
	}

	return strings.HasPrefix(r.URL.Path, "/api/")
}

// =============================================================================
// Middleware Stack Helpers
// =============================================================================

// Stack composes multiple middleware functions into a single middleware.
//
// Middleware is applied in the order provided, meaning the first middleware
// in the slice is the outermost (runs first on request, last on response).
//
// Example:
//
//	stack := Stack(loggingMw, authMw.WithPrincipal, authMw.RequirePrincipal)
//	mux.Handle("GET /api/usage", stack(usageHandler))
func Stack(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// =============================================================================
// Compile-time checks
// =============================================================================

var (
	_ func(http.Handler) http.Handler = (&AuthMiddleware{}).WithPrincipal
	_ func(http.Handler) http.Handler = (&AuthMiddleware{}).RequirePrincipal
	_ func(http.Handler) http.Handler = (&AuthMiddleware{}).RequireAdmin
)
