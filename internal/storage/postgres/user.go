package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
)

const (
	userExistsSQL = `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`
	getUserSQL    = `SELECT id, email, name, roles, created_at FROM users WHERE id = $1`
	countUsersSQL = `SELECT count(*) FROM users`
	upsertUserSQL = `INSERT INTO users (id, email, name, roles) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, name = EXCLUDED.name, roles = EXCLUDED.roles
		RETURNING created_at`
	listUsersByRoleSQL = `SELECT id, email, name, roles, created_at FROM users
		WHERE $1 = ANY (roles) ORDER BY created_at, id OFFSET $2 LIMIT $3`
	countUsersByRoleSQL = `SELECT count(*) FROM users WHERE $1 = ANY (roles)`
	setUserRolesSQL     = `UPDATE users SET roles = $2 WHERE id = $1`
	deleteUserSQL       = `WITH cart AS (DELETE FROM carts WHERE owner = $2)
		DELETE FROM users WHERE id = $1`
)

var _ auth.UserRepository = (*UserRepository)(nil)

// UserRepository implements auth.UserRepository backed by PostgreSQL.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a UserRepository that uses the given pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// Exists reports whether the user has an account.
func (r *UserRepository) Exists(ctx context.Context, id string) (bool, error) {
	var ok bool
	if err := r.pool.QueryRow(ctx, userExistsSQL, id).Scan(&ok); err != nil {
		return false, fmt.Errorf("checking user %q: %w", id, err)
	}
	return ok, nil
}

// GetByID returns a user or auth.ErrUserNotFound.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*auth.User, error) {
	rows, err := r.pool.Query(ctx, getUserSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting user %q: %w", id, err)
	}
	u, err := pgx.CollectExactlyOneRow(rows, scanUser)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrUserNotFound
		}
		return nil, fmt.Errorf("getting user %q: %w", id, err)
	}
	return &u, nil
}

// Count returns the number of registered users.
func (r *UserRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, countUsersSQL).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return n, nil
}

// Upsert creates the user or updates its profile and roles.
func (r *UserRepository) Upsert(ctx context.Context, u *auth.User) error {
	if err := r.pool.QueryRow(ctx, upsertUserSQL, u.ID, u.Email, u.Name, roleStrings(u.Roles)).Scan(&u.CreatedAt); err != nil {
		return fmt.Errorf("upserting user %q: %w", u.ID, err)
	}
	return nil
}

// ListByRole returns a page of users holding role, oldest first.
func (r *UserRepository) ListByRole(ctx context.Context, role auth.Role, offset, limit int) ([]auth.User, error) {
	rows, err := r.pool.Query(ctx, listUsersByRoleSQL, string(role), offset, limit)
	if err != nil {
		return nil, fmt.Errorf("listing users with role %q: %w", role, err)
	}
	users, err := pgx.CollectRows(rows, scanUser)
	if err != nil {
		return nil, fmt.Errorf("listing users with role %q: %w", role, err)
	}
	return users, nil
}

// CountByRole returns the number of users holding role.
func (r *UserRepository) CountByRole(ctx context.Context, role auth.Role) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, countUsersByRoleSQL, string(role)).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting users with role %q: %w", role, err)
	}
	return n, nil
}

// SetRoles replaces the roles of a user.
func (r *UserRepository) SetRoles(ctx context.Context, id string, roles []auth.Role) error {
	tag, err := r.pool.Exec(ctx, setUserRolesSQL, id, roleStrings(roles))
	if err != nil {
		return fmt.Errorf("setting roles of user %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return auth.ErrUserNotFound
	}
	return nil
}

// Delete removes a user together with their cart.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, deleteUserSQL, id, string(cart.UserOwner(id)))
	if err != nil {
		if pgCode(err) == foreignKeyViolation {
			return auth.ErrUserHasOrders
		}
		return fmt.Errorf("deleting user %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return auth.ErrUserNotFound
	}
	return nil
}

func roleStrings(roles []auth.Role) []string {
	out := make([]string, len(roles))
	for i, role := range roles {
		out[i] = string(role)
	}
	return out
}

func scanUser(row pgx.CollectableRow) (auth.User, error) {
	var (
		u     auth.User
		roles []string
	)
	err := row.Scan(&u.ID, &u.Email, &u.Name, &roles, &u.CreatedAt)
	for _, role := range roles {
		u.Roles = append(u.Roles, auth.Role(role))
	}
	return u, err
}
