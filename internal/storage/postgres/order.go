package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/order"
)

const (
	orderColumns = `id, user_id, created_at, shipment_id, total`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	listOrdersByUserSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE user_id = $1 ORDER BY id DESC OFFSET $2 LIMIT $3`

	countOrdersByUserSQL = `SELECT count(*) FROM orders WHERE user_id = $1`

	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders ORDER BY id DESC OFFSET $1 LIMIT $2`

	orderTotalsSQL = `SELECT count(*), COALESCE(sum(total), 0) FROM orders`

	listOrderItemsSQL = `SELECT id, order_id, product_id, quantity, unit_price
		FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, id`

	getShipmentSQL = `SELECT id, order_id, user_id, address, city, region, postal_code, country, ship_date
		FROM shipments WHERE order_id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// GetByID returns an order with its items.
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %d: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &order.NotFoundError{OrderID: id}
		}
		return nil, fmt.Errorf("getting order %d: %w", id, err)
	}

	orders := []order.Order{o}
	if err := r.loadItems(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// GetShipment returns the shipment of an order.
func (r *OrderRepository) GetShipment(ctx context.Context, orderID int64) (*order.Shipment, error) {
	rows, err := r.pool.Query(ctx, getShipmentSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("getting shipment of order %d: %w", orderID, err)
	}
	sh, err := pgx.CollectExactlyOneRow(rows, scanShipment)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrShipmentNotFound
		}
		return nil, fmt.Errorf("getting shipment of order %d: %w", orderID, err)
	}
	return &sh, nil
}

// ListByUser returns the user's orders with items, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string, page order.PageRequest) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByUserSQL, userID, page.Offset, page.Limit)
	if err != nil {
		return nil, fmt.Errorf("listing orders of %q: %w", userID, err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders of %q: %w", userID, err)
	}
	if err := r.loadItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// CountByUser returns how many orders the user placed.
func (r *OrderRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, countOrdersByUserSQL, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting orders of %q: %w", userID, err)
	}
	return n, nil
}

// List returns all orders with items, newest first.
func (r *OrderRepository) List(ctx context.Context, page order.PageRequest) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersSQL, page.Offset, page.Limit)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	if err := r.loadItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// Totals returns the order count and revenue.
func (r *OrderRepository) Totals(ctx context.Context) (order.Totals, error) {
	var t order.Totals
	if err := r.pool.QueryRow(ctx, orderTotalsSQL).Scan(&t.Orders, &t.Revenue); err != nil {
		return order.Totals{}, fmt.Errorf("summing orders: %w", err)
	}
	return t, nil
}

// loadItems fills Items of every order with one query.
func (r *OrderRepository) loadItems(ctx context.Context, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]int64, len(orders))
	index := make(map[int64]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}

	rows, err := r.pool.Query(ctx, listOrderItemsSQL, ids)
	if err != nil {
		return fmt.Errorf("listing order items: %w", err)
	}
	items, err := pgx.CollectRows(rows, scanOrderItem)
	if err != nil {
		return fmt.Errorf("listing order items: %w", err)
	}
	for _, it := range items {
		i := index[it.OrderID]
		orders[i].Items = append(orders[i].Items, it)
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var o order.Order
	err := row.Scan(&o.ID, &o.UserID, &o.CreatedAt, &o.ShipmentID, &o.Total)
	return o, err
}

func scanOrderItem(row pgx.CollectableRow) (order.Item, error) {
	var (
		it    order.Item
		price decimal.Decimal
	)
	err := row.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &price)
	it.UnitPrice = price
	return it, err
}

func scanShipment(row pgx.CollectableRow) (order.Shipment, error) {
	var sh order.Shipment
	err := row.Scan(
		&sh.ID, &sh.OrderID, &sh.UserID,
		&sh.Address.Line, &sh.Address.City, &sh.Address.Region,
		&sh.Address.PostalCode, &sh.Address.Country, &sh.ShipDate,
	)
	return sh, err
}
