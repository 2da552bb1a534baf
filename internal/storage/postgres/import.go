package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/catalogfeed"
	"github.com/xenking/storefront/internal/domain/product"
)

const (
	productNamesSQL = `SELECT name FROM products`

	upsertProductByNameSQL = `INSERT INTO products (name, description, price, stock, category_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name) DO UPDATE SET
			description = EXCLUDED.description,
			price = EXCLUDED.price,
			stock = EXCLUDED.stock,
			category_id = EXCLUDED.category_id
		RETURNING id`
)

var _ catalogfeed.Store = (*ImportStore)(nil)

// ImportStore implements catalogfeed.Store for bulk catalog loads.
type ImportStore struct {
	pool       *pgxpool.Pool
	categories *CategoryRepository
}

// NewImportStore returns an ImportStore that uses the given pool.
func NewImportStore(pool *pgxpool.Pool) *ImportStore {
	return &ImportStore{pool: pool, categories: NewCategoryRepository(pool)}
}

// ProductNames returns the name of every product in the catalog.
func (s *ImportStore) ProductNames(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, productNamesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing product names: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// EnsureCategory returns the ID of the named category, creating it if needed.
func (s *ImportStore) EnsureCategory(ctx context.Context, name string) (int64, error) {
	return s.categories.Ensure(ctx, name)
}

// CopyProducts bulk-inserts products with the COPY protocol. The batch is
// all-or-nothing; a name collision fails it with product.ErrNameTaken.
func (s *ImportStore) CopyProducts(ctx context.Context, products []product.Product) (int64, error) {
	n, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"products"},
		[]string{"name", "description", "price", "stock", "category_id"},
		pgx.CopyFromSlice(len(products), func(i int) ([]any, error) {
			p := products[i]
			return []any{p.Name, p.Description, p.Price, p.Stock, p.CategoryID}, nil
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("copying %d products: %w", len(products), productWriteErr(err))
	}
	return n, nil
}

// UpsertProductByName inserts p or overwrites the product with the same name,
// and sets p.ID.
func (s *ImportStore) UpsertProductByName(ctx context.Context, p *product.Product) error {
	err := s.pool.QueryRow(ctx, upsertProductByNameSQL,
		p.Name, p.Description, p.Price, p.Stock, p.CategoryID,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("upserting product %q: %w", p.Name, productWriteErr(err))
	}
	return nil
}
