package product

import (
	"context"
	"strings"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/auth"
)

// ValidationError reports a malformed product or category field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Reason
}

// PageLimits bounds catalog page sizes.
type PageLimits struct {
	Default int
	Max     int
}

// Service exposes catalog reads to everyone and catalog writes to admins.
type Service struct {
	products   Repository
	categories CategoryRepository
	limits     PageLimits
}

// NewService creates a catalog Service.
func NewService(products Repository, categories CategoryRepository, limits PageLimits) *Service {
	return &Service{
		products:   products,
		categories: categories,
		limits:     limits,
	}
}

// ListPage returns one id-ordered page of products matching f.
func (s *Service) ListPage(ctx context.Context, f Filter) (*Page, error) {
	f = f.Normalize(s.limits.Default, s.limits.Max)
	if f.MinPrice.Valid && f.MaxPrice.Valid && f.MinPrice.Decimal.GreaterThan(f.MaxPrice.Decimal) {
		return nil, &ValidationError{Field: "min_price", Reason: "must not exceed max_price"}
	}

	items, err := s.products.List(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	total, err := s.products.Count(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "count products")
	}

	return &Page{
		Items:  items,
		Total:  total,
		Offset: f.Offset,
		Limit:  f.Limit,
	}, nil
}

// Get returns a single product.
func (s *Service) Get(ctx context.Context, id int64) (*Product, error) {
	return s.products.GetByID(ctx, id)
}

// GetByIDs returns the products that exist among ids, in id order.
func (s *Service) GetByIDs(ctx context.Context, ids []int64) ([]Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.products.GetByIDs(ctx, ids)
}

// DecrementStock atomically reduces stock and returns what is left.
func (s *Service) DecrementStock(ctx context.Context, id int64, amount int) (int, error) {
	if amount <= 0 {
		return 0, &InvalidQuantityError{Quantity: amount}
	}
	return s.products.DecrementStock(ctx, id, amount)
}

// Create adds a product to the catalog.
func (s *Service) Create(ctx context.Context, p auth.Principal, prod *Product) error {
	if err := auth.Require(p, auth.RoleAdmin); err != nil {
		return err
	}
	if err := s.validate(ctx, prod); err != nil {
		return err
	}
	return s.products.Create(ctx, prod)
}

// Update replaces the mutable fields of an existing product.
func (s *Service) Update(ctx context.Context, p auth.Principal, prod *Product) error {
	if err := auth.Require(p, auth.RoleAdmin); err != nil {
		return err
	}
	if err := s.validate(ctx, prod); err != nil {
		return err
	}
	return s.products.Update(ctx, prod)
}

// Delete removes a product.
func (s *Service) Delete(ctx context.Context, p auth.Principal, id int64) error {
	if err := auth.Require(p, auth.RoleAdmin); err != nil {
		return err
	}
	return s.products.Delete(ctx, id)
}

func (s *Service) validate(ctx context.Context, prod *Product) error {
	prod.Name = strings.TrimSpace(prod.Name)
	switch {
	case prod.Name == "":
		return &ValidationError{Field: "name", Reason: "required"}
	case prod.Price.IsNegative():
		return &ValidationError{Field: "price", Reason: "must not be negative"}
	case prod.Stock < 0:
		return &ValidationError{Field: "stock", Reason: "must not be negative"}
	}
	if _, err := s.categories.GetByID(ctx, prod.CategoryID); err != nil {
		return errors.Wrap(err, "resolve category")
	}
	return nil
}

// ListCategories returns every category ordered by id.
func (s *Service) ListCategories(ctx context.Context) ([]Category, error) {
	return s.categories.List(ctx)
}

// CreateCategory adds a category.
func (s *Service) CreateCategory(ctx context.Context, p auth.Principal, c *Category) error {
	if err := auth.Require(p, auth.RoleAdmin); err != nil {
		return err
	}
	if c.Name = strings.TrimSpace(c.Name); c.Name == "" {
		return &ValidationError{Field: "name", Reason: "required"}
	}
	return s.categories.Create(ctx, c)
}

// UpdateCategory renames or re-describes a category.
func (s *Service) UpdateCategory(ctx context.Context, p auth.Principal, c *Category) error {
	if err := auth.Require(p, auth.RoleAdmin); err != nil {
		return err
	}
	if c.Name = strings.TrimSpace(c.Name); c.Name == "" {
		return &ValidationError{Field: "name", Reason: "required"}
	}
	return s.categories.Update(ctx, c)
}

// DeleteCategory removes a category. Storage refuses while products still
// reference it.
func (s *Service) DeleteCategory(ctx context.Context, p auth.Principal, id int64) error {
	if err := auth.Require(p, auth.RoleAdmin); err != nil {
		return err
	}
	return s.categories.Delete(ctx, id)
}
