package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/product"
)

const (
	listCategoriesSQL = `SELECT id, name, description FROM categories ORDER BY id`
	getCategorySQL    = `SELECT id, name, description FROM categories WHERE id = $1`
	insertCategorySQL = `INSERT INTO categories (name, description) VALUES ($1, $2) RETURNING id`
	updateCategorySQL = `UPDATE categories SET name = $2, description = $3 WHERE id = $1`
	deleteCategorySQL = `DELETE FROM categories WHERE id = $1`
	ensureCategorySQL = `INSERT INTO categories (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name RETURNING id`
)

var _ product.CategoryRepository = (*CategoryRepository)(nil)

// CategoryRepository implements product.CategoryRepository backed by PostgreSQL.
type CategoryRepository struct {
	pool *pgxpool.Pool
}

// NewCategoryRepository returns a CategoryRepository that uses the given pool.
func NewCategoryRepository(pool *pgxpool.Pool) *CategoryRepository {
	return &CategoryRepository{pool: pool}
}

// List returns all categories ordered by ID.
func (r *CategoryRepository) List(ctx context.Context) ([]product.Category, error) {
	rows, err := r.pool.Query(ctx, listCategoriesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	return pgx.CollectRows(rows, scanCategory)
}

// GetByID returns a single category.
func (r *CategoryRepository) GetByID(ctx context.Context, id int64) (*product.Category, error) {
	rows, err := r.pool.Query(ctx, getCategorySQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting category %d: %w", id, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCategory)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrCategoryNotFound
		}
		return nil, fmt.Errorf("getting category %d: %w", id, err)
	}
	return &c, nil
}

// Create inserts c and sets its ID.
func (r *CategoryRepository) Create(ctx context.Context, c *product.Category) error {
	if err := r.pool.QueryRow(ctx, insertCategorySQL, c.Name, c.Description).Scan(&c.ID); err != nil {
		if pgCode(err) == uniqueViolation {
			return product.ErrNameTaken
		}
		return fmt.Errorf("creating category %q: %w", c.Name, err)
	}
	return nil
}

// Update overwrites the category's name and description.
func (r *CategoryRepository) Update(ctx context.Context, c *product.Category) error {
	tag, err := r.pool.Exec(ctx, updateCategorySQL, c.ID, c.Name, c.Description)
	if err != nil {
		if pgCode(err) == uniqueViolation {
			return product.ErrNameTaken
		}
		return fmt.Errorf("updating category %d: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrCategoryNotFound
	}
	return nil
}

// Delete removes a category that no product references.
func (r *CategoryRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, deleteCategorySQL, id)
	if err != nil {
		if pgCode(err) == foreignKeyViolation {
			return product.ErrCategoryInUse
		}
		return fmt.Errorf("deleting category %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrCategoryNotFound
	}
	return nil
}

// Ensure returns the ID of the named category, creating it if needed.
func (r *CategoryRepository) Ensure(ctx context.Context, name string) (int64, error) {
	var id int64
	if err := r.pool.QueryRow(ctx, ensureCategorySQL, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("ensuring category %q: %w", name, err)
	}
	return id, nil
}

func scanCategory(row pgx.CollectableRow) (product.Category, error) {
	var c product.Category
	err := row.Scan(&c.ID, &c.Name, &c.Description)
	return c, err
}
