// Package session holds the session cookie name, path and helpers shared by
// the handler and middleware packages and by configuration defaults.
package session

const (
	// CookieName is the default name of the cookie that stores the session token.
	CookieName = "tollgate_session"

	// CookiePath ensures the cookie is sent with all requests.
	CookiePath = "/"
)
