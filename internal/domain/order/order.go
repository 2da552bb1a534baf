// Package order holds placed orders, their line items and shipments.
package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when an order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrShipmentNotFound is returned when an order has no shipment.
	ErrShipmentNotFound = errors.New("shipment not found")
)

// Order is a completed checkout. Items are immutable once written; only the
// shipment link is set after insertion, inside the same transaction.
type Order struct {
	ID         int64
	UserID     string
	CreatedAt  time.Time
	ShipmentID *int64
	Total      decimal.Decimal
	Items      []Item
}

// Item is a purchased product line. Quantity and UnitPrice are snapshots
// taken at commit and never follow later catalog edits.
type Item struct {
	ID        int64
	OrderID   int64
	ProductID int64
	Quantity  int
	UnitPrice decimal.Decimal
}

// Subtotal returns UnitPrice × Quantity.
func (i Item) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Address is a shipment destination.
type Address struct {
	Line       string
	City       string
	Region     string
	PostalCode string
	Country    string
}

// Normalize trims surrounding whitespace from every field.
func (a Address) Normalize() Address {
	return Address{
		Line:       strings.TrimSpace(a.Line),
		City:       strings.TrimSpace(a.City),
		Region:     strings.TrimSpace(a.Region),
		PostalCode: strings.TrimSpace(a.PostalCode),
		Country:    strings.TrimSpace(a.Country),
	}
}

// MissingField returns the name of the first required field that is blank,
// or "" when the address is complete. Region is optional.
func (a Address) MissingField() string {
	a = a.Normalize()
	switch {
	case a.Line == "":
		return "address"
	case a.City == "":
		return "city"
	case a.PostalCode == "":
		return "postal_code"
	case a.Country == "":
		return "country"
	default:
		return ""
	}
}

func (a Address) String() string {
	parts := []string{a.Line, a.City}
	if a.Region != "" {
		parts = append(parts, a.Region)
	}
	parts = append(parts, a.PostalCode, a.Country)
	return strings.Join(parts, ", ")
}

// Shipment delivers exactly one order.
type Shipment struct {
	ID       int64
	OrderID  int64
	UserID   string
	Address  Address
	ShipDate time.Time
}

// Details is an order with its shipment, if any.
type Details struct {
	Order    *Order
	Shipment *Shipment
}

// PageRequest selects a window of orders, newest first.
type PageRequest struct {
	Offset int
	Limit  int
}

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// Normalize clamps paging values.
func (p PageRequest) Normalize() PageRequest {
	if p.Limit <= 0 {
		p.Limit = defaultPageLimit
	}
	if p.Limit > maxPageLimit {
		p.Limit = maxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// Page is a window of orders plus the total count.
type Page struct {
	Items  []Order
	Total  int
	Offset int
	Limit  int
}

// Totals summarizes every order ever placed.
type Totals struct {
	Orders  int
	Revenue decimal.Decimal
}

// NotFoundError indicates a specific order does not exist.
type NotFoundError struct {
	OrderID int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("order %d not found", e.OrderID)
}

// Is reports NotFoundError as ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// Repository defines read operations for orders. Orders are written only by
// the checkout transaction.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Order, error)
	GetShipment(ctx context.Context, orderID int64) (*Shipment, error)
	ListByUser(ctx context.Context, userID string, page PageRequest) ([]Order, error)
	CountByUser(ctx context.Context, userID string) (int, error)
	List(ctx context.Context, page PageRequest) ([]Order, error)
	Totals(ctx context.Context) (Totals, error)
}
