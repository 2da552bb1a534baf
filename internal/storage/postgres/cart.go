package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/cart"
)

const (
	getCartByIDSQL    = `SELECT id, owner, created_at FROM carts WHERE id = $1`
	getCartByOwnerSQL = `SELECT id, owner, created_at FROM carts WHERE owner = $1`

	// The no-op update makes RETURNING yield the existing row on conflict.
	createCartSQL = `INSERT INTO carts (owner) VALUES ($1)
		ON CONFLICT (owner) DO UPDATE SET owner = EXCLUDED.owner
		RETURNING id, owner, created_at`

	reassignCartSQL = `UPDATE carts SET owner = $2 WHERE id = $1`

	listCartItemsSQL = `SELECT id, cart_id, product_id, quantity
		FROM cart_items WHERE cart_id = $1 ORDER BY id`

	addCartItemSQL = `INSERT INTO cart_items (cart_id, product_id, quantity) VALUES ($1, $2, $3)
		ON CONFLICT (cart_id, product_id) DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
		RETURNING id, cart_id, product_id, quantity`

	setCartItemQuantitySQL = `UPDATE cart_items SET quantity = $3 WHERE cart_id = $1 AND id = $2`
	removeCartItemSQL      = `DELETE FROM cart_items WHERE cart_id = $1 AND id = $2`
	clearCartSQL           = `DELETE FROM cart_items WHERE cart_id = $1`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// GetByID returns the cart with its items.
func (r *CartRepository) GetByID(ctx context.Context, id int64) (*cart.Cart, error) {
	return r.get(ctx, getCartByIDSQL, id)
}

// GetByOwner returns the owner's cart with its items.
func (r *CartRepository) GetByOwner(ctx context.Context, owner cart.Owner) (*cart.Cart, error) {
	return r.get(ctx, getCartByOwnerSQL, string(owner))
}

func (r *CartRepository) get(ctx context.Context, query string, arg any) (*cart.Cart, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("getting cart %v: %w", arg, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCart)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrNotFound
		}
		return nil, fmt.Errorf("getting cart %v: %w", arg, err)
	}

	rows, err = r.pool.Query(ctx, listCartItemsSQL, c.ID)
	if err != nil {
		return nil, fmt.Errorf("listing items of cart %d: %w", c.ID, err)
	}
	c.Items, err = pgx.CollectRows(rows, scanCartItem)
	if err != nil {
		return nil, fmt.Errorf("listing items of cart %d: %w", c.ID, err)
	}
	return &c, nil
}

// Create returns the owner's cart, inserting an empty one when missing.
func (r *CartRepository) Create(ctx context.Context, owner cart.Owner) (*cart.Cart, error) {
	rows, err := r.pool.Query(ctx, createCartSQL, string(owner))
	if err != nil {
		return nil, fmt.Errorf("creating cart for %q: %w", owner, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCart)
	if err != nil {
		return nil, fmt.Errorf("creating cart for %q: %w", owner, err)
	}

	// An existing cart may already hold items.
	rows, err = r.pool.Query(ctx, listCartItemsSQL, c.ID)
	if err != nil {
		return nil, fmt.Errorf("listing items of cart %d: %w", c.ID, err)
	}
	if c.Items, err = pgx.CollectRows(rows, scanCartItem); err != nil {
		return nil, fmt.Errorf("listing items of cart %d: %w", c.ID, err)
	}
	return &c, nil
}

// Reassign moves the cart to a new owner.
func (r *CartRepository) Reassign(ctx context.Context, cartID int64, owner cart.Owner) error {
	tag, err := r.pool.Exec(ctx, reassignCartSQL, cartID, string(owner))
	if err != nil {
		if pgCode(err) == uniqueViolation {
			return cart.ErrOwnerTaken
		}
		return fmt.Errorf("reassigning cart %d: %w", cartID, err)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrNotFound
	}
	return nil
}

// AddQuantity inserts the product line or increments its quantity in one statement.
func (r *CartRepository) AddQuantity(ctx context.Context, cartID, productID int64, qty int) (*cart.Item, error) {
	rows, err := r.pool.Query(ctx, addCartItemSQL, cartID, productID, qty)
	if err != nil {
		return nil, fmt.Errorf("adding product %d to cart %d: %w", productID, cartID, err)
	}
	it, err := pgx.CollectExactlyOneRow(rows, scanCartItem)
	if err != nil {
		if pgCode(err) == foreignKeyViolation {
			return nil, cart.ErrNotFound
		}
		return nil, fmt.Errorf("adding product %d to cart %d: %w", productID, cartID, err)
	}
	return &it, nil
}

// SetQuantity overwrites an item's quantity.
func (r *CartRepository) SetQuantity(ctx context.Context, cartID, itemID int64, qty int) error {
	tag, err := r.pool.Exec(ctx, setCartItemQuantitySQL, cartID, itemID, qty)
	if err != nil {
		return fmt.Errorf("updating item %d of cart %d: %w", itemID, cartID, err)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrItemNotFound
	}
	return nil
}

// RemoveItem deletes one item.
func (r *CartRepository) RemoveItem(ctx context.Context, cartID, itemID int64) error {
	tag, err := r.pool.Exec(ctx, removeCartItemSQL, cartID, itemID)
	if err != nil {
		return fmt.Errorf("removing item %d of cart %d: %w", itemID, cartID, err)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrItemNotFound
	}
	return nil
}

// Clear deletes every item of the cart.
func (r *CartRepository) Clear(ctx context.Context, cartID int64) error {
	return clearCart(ctx, r.pool, cartID)
}

func clearCart(ctx context.Context, q querier, cartID int64) error {
	if _, err := q.Exec(ctx, clearCartSQL, cartID); err != nil {
		return fmt.Errorf("clearing cart %d: %w", cartID, err)
	}
	return nil
}

func scanCart(row pgx.CollectableRow) (cart.Cart, error) {
	var (
		c     cart.Cart
		owner string
	)
	err := row.Scan(&c.ID, &owner, &c.CreatedAt)
	c.Owner = cart.Owner(owner)
	return c, err
}

func scanCartItem(row pgx.CollectableRow) (cart.Item, error) {
	var it cart.Item
	err := row.Scan(&it.ID, &it.CartID, &it.ProductID, &it.Quantity)
	return it, err
}
