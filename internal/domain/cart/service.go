package cart

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/product"
)

// Catalog is the slice of the product catalog the cart depends on.
type Catalog interface {
	GetByID(ctx context.Context, id int64) (*product.Product, error)
	GetByIDs(ctx context.Context, ids []int64) ([]product.Product, error)
}

// Line is a cart item joined with its current product data.
type Line struct {
	Item      Item
	Product   product.Product
	LineTotal decimal.Decimal
}

// Detail is a priced view of a cart. Items whose product has been removed
// from the catalog are listed in Missing.
type Detail struct {
	Cart    *Cart
	Lines   []Line
	Missing []Item
	Total   decimal.Decimal
}

// Service implements cart operations.
type Service struct {
	carts   Repository
	catalog Catalog
}

// NewService creates a cart Service.
func NewService(carts Repository, catalog Catalog) *Service {
	return &Service{carts: carts, catalog: catalog}
}

// Resolve returns the caller's cart, creating it on first use. A signed-in
// caller without a cart of their own adopts the cart of their anonymous
// session, so items added before login are kept.
func (s *Service) Resolve(ctx context.Context, ref Ref) (*Cart, error) {
	owner := ref.Owner()
	if owner == "" {
		return nil, ErrNoOwner
	}

	c, err := s.carts.GetByOwner(ctx, owner)
	switch {
	case err == nil:
		return c, nil
	case !errors.Is(err, ErrNotFound):
		return nil, errors.Wrap(err, "get cart")
	}

	if ref.UserID != "" && ref.SessionID != "" {
		adopted, err := s.adopt(ctx, SessionOwner(ref.SessionID), owner)
		if err != nil {
			return nil, err
		}
		if adopted != nil {
			return adopted, nil
		}
	}

	c, err = s.carts.Create(ctx, owner)
	if err != nil {
		return nil, errors.Wrap(err, "create cart")
	}
	return c, nil
}

// adopt moves the session cart to owner. It returns nil when there is no
// session cart to take over.
func (s *Service) adopt(ctx context.Context, from, to Owner) (*Cart, error) {
	c, err := s.carts.GetByOwner(ctx, from)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, errors.Wrap(err, "get session cart")
	}

	if err := s.carts.Reassign(ctx, c.ID, to); err != nil {
		if errors.Is(err, ErrOwnerTaken) {
			// A concurrent request created the user cart first.
			return s.carts.GetByOwner(ctx, to)
		}
		return nil, errors.Wrap(err, "adopt session cart")
	}
	zctx.From(ctx).Info("Adopted session cart",
		zap.Int64("cart_id", c.ID),
		zap.String("owner", string(to)),
	)
	c.Owner = to
	return c, nil
}

// Get returns a cart with its items.
func (s *Service) Get(ctx context.Context, cartID int64) (*Cart, error) {
	return s.carts.GetByID(ctx, cartID)
}

// Detail returns the cart priced against the current catalog.
func (s *Service) Detail(ctx context.Context, cartID int64) (*Detail, error) {
	c, err := s.carts.GetByID(ctx, cartID)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, len(c.Items))
	for i, it := range c.Items {
		ids[i] = it.ProductID
	}
	products, err := s.catalog.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[int64]product.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	d := &Detail{Cart: c, Total: decimal.Zero}
	for _, it := range c.Items {
		p, ok := byID[it.ProductID]
		if !ok {
			d.Missing = append(d.Missing, it)
			continue
		}
		lineTotal := p.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
		d.Lines = append(d.Lines, Line{Item: it, Product: p, LineTotal: lineTotal.Round(2)})
		d.Total = d.Total.Add(lineTotal)
	}
	d.Total = d.Total.Round(2)
	return d, nil
}

// AddOrIncrement adds qty units of a product, merging with an existing line.
// The resulting line quantity must not exceed the product's current stock.
func (s *Service) AddOrIncrement(ctx context.Context, cartID, productID int64, qty int) (*Item, error) {
	if qty <= 0 {
		return nil, &product.InvalidQuantityError{Quantity: qty}
	}

	p, err := s.catalog.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	c, err := s.carts.GetByID(ctx, cartID)
	if err != nil {
		return nil, err
	}

	requested := qty
	if existing, ok := c.Find(productID); ok {
		requested += existing.Quantity
	}
	if requested > p.Stock {
		return nil, &product.InsufficientStockError{
			ProductID: productID,
			Requested: requested,
			Available: p.Stock,
		}
	}

	item, err := s.carts.AddQuantity(ctx, cartID, productID, qty)
	if err != nil {
		return nil, errors.Wrap(err, "add to cart")
	}
	return item, nil
}

// UpdateQuantity sets the quantity of an existing line.
func (s *Service) UpdateQuantity(ctx context.Context, cartID, itemID int64, qty int) error {
	if qty <= 0 {
		return &product.InvalidQuantityError{Quantity: qty}
	}

	c, err := s.carts.GetByID(ctx, cartID)
	if err != nil {
		return err
	}
	var item *Item
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			item = &c.Items[i]
			break
		}
	}
	if item == nil {
		return ErrItemNotFound
	}

	p, err := s.catalog.GetByID(ctx, item.ProductID)
	if err != nil {
		return err
	}
	if qty > p.Stock {
		return &product.InsufficientStockError{ProductID: p.ID, Requested: qty, Available: p.Stock}
	}
	return s.carts.SetQuantity(ctx, cartID, itemID, qty)
}

// RemoveItem deletes a line from the cart.
func (s *Service) RemoveItem(ctx context.Context, cartID, itemID int64) error {
	return s.carts.RemoveItem(ctx, cartID, itemID)
}

// Clear removes every line from the cart.
func (s *Service) Clear(ctx context.Context, cartID int64) error {
	return s.carts.Clear(ctx, cartID)
}
