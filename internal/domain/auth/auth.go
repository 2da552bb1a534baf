// Package auth describes the authenticated caller and the role checks every
// service entry point performs before touching data.
package auth

import (
	"context"
	"fmt"
	"slices"

	"github.com/go-faster/errors"
)

// Role names a permission group.
type Role string

// Roles known to the storefront.
const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// ErrUserNotFound is returned when the principal's user record does not exist.
var ErrUserNotFound = errors.New("user not found")

// Principal is the identity attached to a request.
type Principal struct {
	UserID string
	Roles  []Role
}

// Authenticated reports whether the principal carries a user identity.
func (p Principal) Authenticated() bool {
	return p.UserID != ""
}

// IsInRole reports whether the principal holds role.
func (p Principal) IsInRole(role Role) bool {
	return slices.Contains(p.Roles, role)
}

// UnauthorizedError is returned when the caller is anonymous or lacks a role.
type UnauthorizedError struct {
	// Role is the role that was required, empty when only authentication was.
	Role   Role
	Reason string
}

func (e *UnauthorizedError) Error() string {
	switch {
	case e.Reason != "":
		return "unauthorized: " + e.Reason
	case e.Role != "":
		return fmt.Sprintf("unauthorized: role %q required", e.Role)
	default:
		return "unauthorized: authentication required"
	}
}

// Authenticated reports whether the error was caused by a missing role rather
// than a missing identity.
func (e *UnauthorizedError) Authenticated() bool {
	return e.Role != "" || e.Reason != ""
}

// RequireUser returns an *UnauthorizedError for anonymous principals.
func RequireUser(p Principal) error {
	if !p.Authenticated() {
		return &UnauthorizedError{}
	}
	return nil
}

// Require returns an *UnauthorizedError unless p is authenticated and holds role.
func Require(p Principal, role Role) error {
	if err := RequireUser(p); err != nil {
		return err
	}
	if !p.IsInRole(role) {
		return &UnauthorizedError{Role: role}
	}
	return nil
}

// Deny builds an *UnauthorizedError for an authenticated caller touching a
// resource it does not own.
func Deny(reason string) error {
	return &UnauthorizedError{Reason: reason}
}

type principalKey struct{}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored in ctx, or the anonymous principal.
func FromContext(ctx context.Context) Principal {
	p, _ := ctx.Value(principalKey{}).(Principal)
	return p
}
