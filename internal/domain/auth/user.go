package auth

import (
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
)

var (
	// ErrLastAdmin is returned when a change would leave no admin account.
	ErrLastAdmin = errors.New("cannot remove the last admin")
	// ErrUserHasOrders is returned when deleting a user who placed orders.
	ErrUserHasOrders = errors.New("user has placed orders")
)

// User is a registered storefront account.
type User struct {
	ID        string
	Email     string
	Name      string
	Roles     []Role
	CreatedAt time.Time
}

// HasRole reports whether the user holds role.
func (u User) HasRole(role Role) bool {
	return slices.Contains(u.Roles, role)
}

// UserRepository provides the user lookups the storefront needs. Credential
// handling lives with the identity provider, not here.
type UserRepository interface {
	Exists(ctx context.Context, id string) (bool, error)
	GetByID(ctx context.Context, id string) (*User, error)
	Count(ctx context.Context) (int, error)
	Upsert(ctx context.Context, u *User) error
	// ListByRole returns users holding role, oldest first.
	ListByRole(ctx context.Context, role Role, offset, limit int) ([]User, error)
	CountByRole(ctx context.Context, role Role) (int, error)
	// SetRoles replaces the user's roles or reports ErrUserNotFound.
	SetRoles(ctx context.Context, id string, roles []Role) error
	// Delete removes the user and their cart. It reports ErrUserNotFound,
	// or ErrUserHasOrders when orders still reference the user.
	Delete(ctx context.Context, id string) error
}
