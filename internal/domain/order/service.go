package order

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/auth"
)

// Counter reports the size of a collection for the dashboard.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// CounterFunc adapts a function to Counter.
type CounterFunc func(ctx context.Context) (int, error)

// Count calls f.
func (f CounterFunc) Count(ctx context.Context) (int, error) { return f(ctx) }

// Stats is the admin dashboard summary.
type Stats struct {
	Users    int
	Products int
	Totals
}

// Service exposes orders to their owners and to admins.
type Service struct {
	orders   Repository
	users    Counter
	products Counter
}

// NewService creates an order Service.
func NewService(orders Repository, users, products Counter) *Service {
	return &Service{
		orders:   orders,
		users:    users,
		products: products,
	}
}

// Get returns an order with its shipment. Only the owner or an admin may see it.
func (s *Service) Get(ctx context.Context, p auth.Principal, id int64) (*Details, error) {
	if err := auth.RequireUser(p); err != nil {
		return nil, err
	}

	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.UserID != p.UserID && !p.IsInRole(auth.RoleAdmin) {
		// Hide the existence of other users' orders.
		return nil, &NotFoundError{OrderID: id}
	}

	d := &Details{Order: o}
	if o.ShipmentID != nil {
		sh, err := s.orders.GetShipment(ctx, o.ID)
		if err != nil {
			return nil, errors.Wrap(err, "get shipment")
		}
		d.Shipment = sh
	}
	return d, nil
}

// ListMine returns the caller's orders, newest first.
func (s *Service) ListMine(ctx context.Context, p auth.Principal, req PageRequest) (*Page, error) {
	if err := auth.RequireUser(p); err != nil {
		return nil, err
	}
	req = req.Normalize()

	items, err := s.orders.ListByUser(ctx, p.UserID, req)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	total, err := s.orders.CountByUser(ctx, p.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "count orders")
	}
	return &Page{Items: items, Total: total, Offset: req.Offset, Limit: req.Limit}, nil
}

// ListAll returns every order, newest first. Admin only.
func (s *Service) ListAll(ctx context.Context, p auth.Principal, req PageRequest) (*Page, error) {
	if err := auth.Require(p, auth.RoleAdmin); err != nil {
		return nil, err
	}
	req = req.Normalize()

	items, err := s.orders.List(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	totals, err := s.orders.Totals(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "order totals")
	}
	return &Page{Items: items, Total: totals.Orders, Offset: req.Offset, Limit: req.Limit}, nil
}

// Stats returns dashboard counters. Admin only.
func (s *Service) Stats(ctx context.Context, p auth.Principal) (*Stats, error) {
	if err := auth.Require(p, auth.RoleAdmin); err != nil {
		return nil, err
	}

	users, err := s.users.Count(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "count users")
	}
	products, err := s.products.Count(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "count products")
	}
	totals, err := s.orders.Totals(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "order totals")
	}
	return &Stats{Users: users, Products: products, Totals: totals}, nil
}
