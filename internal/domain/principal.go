// Package domain contains core business types and interfaces.
//
// This file defines the Principal, the identity extracted from a verified
// session token. A Principal lives for exactly one request.
package domain

import "strings"

// Role distinguishes ordinary users from administrators.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "administrator"
)

// ParseRole normalizes a role claim. Anything unrecognized is an ordinary user.
func ParseRole(s string) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "administrator", "admin":
		return RoleAdmin
	default:
		return RoleUser
	}
}

// Principal is the authenticated identity making a request.
type Principal struct {
	Email string
	Role  Role
}

// IsAdmin returns true if the principal carries the administrator role.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// NormalizeEmail lowercases and trims an email so it can be used as a key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
