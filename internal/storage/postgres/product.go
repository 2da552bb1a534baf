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
	productColumns = `id, name, description, price, stock, category_id`

	// filterWhere evaluates product.Filter: $1 category ids, $2 min price,
	// $3 max price, $4 name pattern. NULL disables a constraint.
	filterWhere = `WHERE ($1::bigint[] IS NULL OR category_id = ANY($1))
		AND ($2::numeric IS NULL OR price >= $2)
		AND ($3::numeric IS NULL OR price <= $3)
		AND ($4::text IS NULL OR name ILIKE $4)`

	listProductsSQL = `SELECT ` + productColumns + ` FROM products ` + filterWhere + `
		ORDER BY id OFFSET $5 LIMIT $6`

	countProductsSQL = `SELECT count(*) FROM products ` + filterWhere

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1) ORDER BY id`

	insertProductSQL = `INSERT INTO products (name, description, price, stock, category_id)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`

	updateProductSQL = `UPDATE products
		SET name = $2, description = $3, price = $4, stock = $5, category_id = $6
		WHERE id = $1`

	deleteProductSQL = `DELETE FROM products WHERE id = $1`

	decrementStockSQL = `UPDATE products SET stock = stock - $2
		WHERE id = $1 AND stock >= $2 RETURNING stock`

	getStockSQL = `SELECT stock FROM products WHERE id = $1`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

func filterArgs(f product.Filter) []any {
	var search *string
	if f.Search != "" {
		p := likePattern(f.Search)
		search = &p
	}
	return []any{f.CategoryIDs, f.MinPrice, f.MaxPrice, search}
}

// List returns one page of products matching f, ordered by ID.
func (r *ProductRepository) List(ctx context.Context, f product.Filter) ([]product.Product, error) {
	args := append(filterArgs(f), f.Offset, f.Limit)
	rows, err := r.pool.Query(ctx, listProductsSQL, args...)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// Count returns the number of products matching f, ignoring paging.
func (r *ProductRepository) Count(ctx context.Context, f product.Filter) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, countProductsSQL, filterArgs(f)...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting products: %w", err)
	}
	return n, nil
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &product.NotFoundError{ProductID: id}
		}
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs, ordered by ID.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []int64) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// Create inserts p and sets its ID.
func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	err := r.pool.QueryRow(ctx, insertProductSQL,
		p.Name, p.Description, p.Price, p.Stock, p.CategoryID,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("creating product %q: %w", p.Name, productWriteErr(err))
	}
	return nil
}

// Update overwrites the product's mutable fields.
func (r *ProductRepository) Update(ctx context.Context, p *product.Product) error {
	tag, err := r.pool.Exec(ctx, updateProductSQL,
		p.ID, p.Name, p.Description, p.Price, p.Stock, p.CategoryID,
	)
	if err != nil {
		return fmt.Errorf("updating product %d: %w", p.ID, productWriteErr(err))
	}
	if tag.RowsAffected() == 0 {
		return &product.NotFoundError{ProductID: p.ID}
	}
	return nil
}

// Delete removes a product. Cart lines referencing it are removed with it.
func (r *ProductRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, deleteProductSQL, id)
	if err != nil {
		return fmt.Errorf("deleting product %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return &product.NotFoundError{ProductID: id}
	}
	return nil
}

// DecrementStock lowers stock in a single conditional UPDATE so concurrent
// callers can never drive it below zero.
func (r *ProductRepository) DecrementStock(ctx context.Context, id int64, amount int) (int, error) {
	return decrementStock(ctx, r.pool, id, amount)
}

func decrementStock(ctx context.Context, q querier, id int64, amount int) (int, error) {
	var left int
	err := q.QueryRow(ctx, decrementStockSQL, id, amount).Scan(&left)
	if err == nil {
		return left, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("decrementing stock of product %d: %w", id, err)
	}

	var available int
	if err := q.QueryRow(ctx, getStockSQL, id).Scan(&available); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, &product.NotFoundError{ProductID: id}
		}
		return 0, fmt.Errorf("reading stock of product %d: %w", id, err)
	}
	return 0, &product.InsufficientStockError{ProductID: id, Requested: amount, Available: available}
}

func productWriteErr(err error) error {
	switch pgCode(err) {
	case uniqueViolation:
		return product.ErrNameTaken
	case foreignKeyViolation:
		return product.ErrCategoryNotFound
	default:
		return err
	}
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock, &p.CategoryID)
	return p, err
}
