package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
)

const (
	lockProductsSQL = `SELECT ` + productColumns + ` FROM products
		WHERE id = ANY($1) ORDER BY id FOR UPDATE`

	insertOrderSQL = `INSERT INTO orders (user_id, created_at, total) VALUES ($1, $2, $3)
		RETURNING id, created_at`

	insertOrderItemSQL = `INSERT INTO order_items (order_id, product_id, quantity, unit_price)
		VALUES ($1, $2, $3, $4) RETURNING id`

	insertShipmentSQL = `INSERT INTO shipments
		(order_id, user_id, address, city, region, postal_code, country, ship_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`

	attachShipmentSQL = `UPDATE orders SET shipment_id = $2 WHERE id = $1`
)

var _ checkout.Transactor = (*CheckoutStore)(nil)

// CheckoutStore runs checkout commits in a single read-committed transaction.
// Product rows are locked with SELECT ... FOR UPDATE, which serializes
// concurrent commits per product.
type CheckoutStore struct {
	pool *pgxpool.Pool
}

// NewCheckoutStore returns a CheckoutStore that uses the given pool.
func NewCheckoutStore(pool *pgxpool.Pool) *CheckoutStore {
	return &CheckoutStore{pool: pool}
}

// WithinTx runs fn in a transaction.
func (s *CheckoutStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx checkout.Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, checkoutTx{tx: tx})
	})
}

type checkoutTx struct {
	tx pgx.Tx
}

var _ checkout.Tx = checkoutTx{}

func (t checkoutTx) LockProducts(ctx context.Context, ids []int64) ([]product.Product, error) {
	rows, err := t.tx.Query(ctx, lockProductsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("locking products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

func (t checkoutTx) DecrementStock(ctx context.Context, productID int64, qty int) error {
	_, err := decrementStock(ctx, t.tx, productID, qty)
	return err
}

func (t checkoutTx) InsertOrder(ctx context.Context, o *order.Order) error {
	if err := t.tx.QueryRow(ctx, insertOrderSQL, o.UserID, o.CreatedAt, o.Total).Scan(&o.ID, &o.CreatedAt); err != nil {
		return fmt.Errorf("inserting order for %q: %w", o.UserID, err)
	}
	return nil
}

func (t checkoutTx) InsertOrderItem(ctx context.Context, it *order.Item) error {
	err := t.tx.QueryRow(ctx, insertOrderItemSQL, it.OrderID, it.ProductID, it.Quantity, it.UnitPrice).Scan(&it.ID)
	if err != nil {
		return fmt.Errorf("inserting item of order %d: %w", it.OrderID, err)
	}
	return nil
}

func (t checkoutTx) InsertShipment(ctx context.Context, sh *order.Shipment) error {
	a := sh.Address
	err := t.tx.QueryRow(ctx, insertShipmentSQL,
		sh.OrderID, sh.UserID, a.Line, a.City, a.Region, a.PostalCode, a.Country, sh.ShipDate,
	).Scan(&sh.ID)
	if err != nil {
		return fmt.Errorf("inserting shipment of order %d: %w", sh.OrderID, err)
	}
	return nil
}

func (t checkoutTx) AttachShipment(ctx context.Context, orderID, shipmentID int64) error {
	tag, err := t.tx.Exec(ctx, attachShipmentSQL, orderID, shipmentID)
	if err != nil {
		return fmt.Errorf("attaching shipment %d to order %d: %w", shipmentID, orderID, err)
	}
	if tag.RowsAffected() != 1 {
		return &order.NotFoundError{OrderID: orderID}
	}
	return nil
}

func (t checkoutTx) ClearCart(ctx context.Context, cartID int64) error {
	return clearCart(ctx, t.tx, cartID)
}
