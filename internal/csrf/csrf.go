// Package csrf protects cookie-authenticated requests using the
// double-submit cookie pattern.
//
// A random token is set in a cookie readable by the page's scripts. Unsafe
// requests that authenticate with the session cookie must echo it in the
// X-CSRF-Token header. A cross-site attacker can make the browser send the
// cookies but cannot read them, so it cannot produce the header.
//
// Requests authenticated with an Authorization header are exempt: browsers
// never attach that header on their own.
package csrf

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"

	"github.com/DukeRupert/tollgate/internal/domain"
	"github.com/DukeRupert/tollgate/internal/handler"
)

// =============================================================================
// Configuration Constants
// =============================================================================

const (
	// CookieName is the name of the CSRF token cookie.
	CookieName = "tollgate_csrf"

	// HeaderName carries the echoed token on unsafe requests.
	HeaderName = "X-CSRF-Token"

	// TokenLength is the number of random bytes for the token (32 bytes = 256 bits).
	TokenLength = 32

	// CookieMaxAge is the lifetime of the CSRF cookie (12 hours).
	CookieMaxAge = 12 * 3600
)

// =============================================================================
// Token Generation
// =============================================================================

// GenerateToken returns 32 random bytes, base64 URL-encoded.
func GenerateToken() (string, error) {
	b := make([]byte, TokenLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// ValidateToken compares the cookie token with the echoed token in
// constant time.
func ValidateToken(cookieToken, echoed string) bool {
	if cookieToken == "" || echoed == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(cookieToken), []byte(echoed)) == 1
}

// SetCookie sets the CSRF token cookie on the response. It is not HttpOnly
// because the page must read it to fill the header.
func SetCookie(w http.ResponseWriter, token string, isSecure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   CookieMaxAge,
		HttpOnly: false,
		Secure:   isSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

// GetTokenFromRequest retrieves the CSRF token from the request cookie.
func GetTokenFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// =============================================================================
// Middleware
// =============================================================================

// Middleware issues tokens on safe requests and validates them on unsafe ones.
type Middleware struct {
	sessionCookie string
	isSecure      bool
	logger        *slog.Logger
}

// NewMiddleware creates a CSRF middleware for the named session cookie.
func NewMiddleware(sessionCookie string, isSecure bool, logger *slog.Logger) *Middleware {
	return &Middleware{
		sessionCookie: sessionCookie,
		isSecure:      isSecure,
		logger:        logger,
	}
}

// Handler returns the CSRF middleware.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isSafeMethod(r.Method) {
			if GetTokenFromRequest(r) == "" {
				if token, err := GenerateToken(); err == nil {
					SetCookie(w, token, m.isSecure)
				} else {
					m.logger.Error("failed to generate csrf token", "error", err)
				}
			}
			next.ServeHTTP(w, r)
			return
		}

		if !m.needsCheck(r) {
			next.ServeHTTP(w, r)
			return
		}

		if !ValidateToken(GetTokenFromRequest(r), r.Header.Get(HeaderName)) {
			m.logger.Warn("csrf validation failed",
				"method", r.Method,
				"path", r.URL.Path,
			)
			handler.ErrorResponse(w, r, m.logger,
				domain.Forbidden("csrf.validate", "Missing or invalid CSRF token"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// needsCheck reports whether the request is authenticated by the session
// cookie alone.
func (m *Middleware) needsCheck(r *http.Request) bool {
	if auth := r.Header.Get("Authorization"); len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return false
	}
	_, err := r.Cookie(m.sessionCookie)
	return err == nil
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}
