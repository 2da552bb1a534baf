package auth

import (
	"context"
	"slices"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// UserPage is a window of accounts holding one role.
type UserPage struct {
	Items  []User
	Total  int
	Offset int
	Limit  int
}

const (
	defaultUserPageLimit = 20
	maxUserPageLimit     = 100
)

// UserService manages accounts and their roles. Every method is admin only.
//
// Roles are also carried in identity tokens, so a change applies to tokens
// issued after it.
type UserService struct {
	users UserRepository
}

// NewUserService creates a UserService.
func NewUserService(users UserRepository) *UserService {
	return &UserService{users: users}
}

// List returns accounts holding role, oldest first.
func (s *UserService) List(ctx context.Context, p Principal, role Role, offset, limit int) (*UserPage, error) {
	if err := Require(p, RoleAdmin); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultUserPageLimit
	}
	limit = min(limit, maxUserPageLimit)
	offset = max(offset, 0)

	items, err := s.users.ListByRole(ctx, role, offset, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list users")
	}
	total, err := s.users.CountByRole(ctx, role)
	if err != nil {
		return nil, errors.Wrap(err, "count users")
	}
	return &UserPage{Items: items, Total: total, Offset: offset, Limit: limit}, nil
}

// MakeAdmin moves a user from the user role to the admin role.
func (s *UserService) MakeAdmin(ctx context.Context, p Principal, id string) (*User, error) {
	if err := Require(p, RoleAdmin); err != nil {
		return nil, err
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.HasRole(RoleAdmin) {
		return u, nil
	}
	return s.setRoles(ctx, p, u, swapRole(u.Roles, RoleUser, RoleAdmin))
}

// RemoveAdmin moves an admin back to the user role. The last admin cannot
// be demoted.
func (s *UserService) RemoveAdmin(ctx context.Context, p Principal, id string) (*User, error) {
	if err := Require(p, RoleAdmin); err != nil {
		return nil, err
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !u.HasRole(RoleAdmin) {
		return u, nil
	}
	if err := s.keepOneAdmin(ctx); err != nil {
		return nil, err
	}
	return s.setRoles(ctx, p, u, swapRole(u.Roles, RoleAdmin, RoleUser))
}

// Delete removes an account. The last admin cannot be deleted.
func (s *UserService) Delete(ctx context.Context, p Principal, id string) error {
	if err := Require(p, RoleAdmin); err != nil {
		return err
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if u.HasRole(RoleAdmin) {
		if err := s.keepOneAdmin(ctx); err != nil {
			return err
		}
	}
	if err := s.users.Delete(ctx, id); err != nil {
		return err
	}
	zctx.From(ctx).Info("User deleted",
		zap.String("user_id", id),
		zap.String("by", p.UserID),
	)
	return nil
}

func (s *UserService) keepOneAdmin(ctx context.Context) error {
	admins, err := s.users.CountByRole(ctx, RoleAdmin)
	if err != nil {
		return errors.Wrap(err, "count admins")
	}
	if admins <= 1 {
		return ErrLastAdmin
	}
	return nil
}

func (s *UserService) setRoles(ctx context.Context, p Principal, u *User, roles []Role) (*User, error) {
	if err := s.users.SetRoles(ctx, u.ID, roles); err != nil {
		return nil, err
	}
	zctx.From(ctx).Info("User roles changed",
		zap.String("user_id", u.ID),
		zap.Strings("roles", roleNames(roles)),
		zap.String("by", p.UserID),
	)
	u.Roles = roles
	return u, nil
}

// swapRole returns roles with from removed and to added once.
func swapRole(roles []Role, from, to Role) []Role {
	out := make([]Role, 0, len(roles)+1)
	for _, r := range roles {
		if r != from && r != to {
			out = append(out, r)
		}
	}
	out = append(out, to)
	slices.Sort(out)
	return out
}

func roleNames(roles []Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}

// ParseRole returns the known role named s.
func ParseRole(s string) (Role, bool) {
	switch r := Role(s); r {
	case RoleAdmin, RoleUser:
		return r, true
	default:
		return "", false
	}
}
