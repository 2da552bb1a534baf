package checkout

import (
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
)

const instrumentationName = "github.com/xenking/storefront/internal/domain/checkout"

// Users checks that a principal still has an account.
type Users interface {
	Exists(ctx context.Context, id string) (bool, error)
}

// Carts reads the cart being checked out.
type Carts interface {
	GetByID(ctx context.Context, id int64) (*cart.Cart, error)
}

// Catalog reads current product data.
type Catalog interface {
	GetByIDs(ctx context.Context, ids []int64) ([]product.Product, error)
}

// Config controls draft lifetime and commit behaviour.
type Config struct {
	// DraftTTL is how long a draft stays confirmable.
	DraftTTL time.Duration
	// ShipAfter is added to the commit time to get the ship date.
	ShipAfter time.Duration
	// CommitTimeout bounds the commit transaction, which is detached from
	// request cancellation.
	CommitTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.DraftTTL <= 0 {
		c.DraftTTL = 30 * time.Minute
	}
	if c.ShipAfter <= 0 {
		c.ShipAfter = 72 * time.Hour
	}
	if c.CommitTimeout <= 0 {
		c.CommitTimeout = 10 * time.Second
	}
	return c
}

// Option configures a Service.
type Option func(*Service)

// WithTracerProvider sets the tracer provider for checkout spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer(instrumentationName) }
}

// WithMeterProvider sets the meter provider for checkout counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meter = mp.Meter(instrumentationName) }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithTokenGenerator overrides draft token generation.
func WithTokenGenerator(gen func() string) Option {
	return func(s *Service) { s.newToken = gen }
}

// Service runs the checkout workflow.
type Service struct {
	users   Users
	carts   Carts
	catalog Catalog
	drafts  DraftStore
	tx      Transactor
	cfg     Config

	now      func() time.Time
	newToken func() string

	tracer    trace.Tracer
	meter     metric.Meter
	begun     metric.Int64Counter
	committed metric.Int64Counter
	failed    metric.Int64Counter
}

// NewService creates a checkout Service.
func NewService(
	users Users,
	carts Carts,
	catalog Catalog,
	drafts DraftStore,
	tx Transactor,
	cfg Config,
	opts ...Option,
) (*Service, error) {
	s := &Service{
		users:    users,
		carts:    carts,
		catalog:  catalog,
		drafts:   drafts,
		tx:       tx,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
		newToken: uuid.NewString,
		tracer:   otel.GetTracerProvider().Tracer(instrumentationName),
		meter:    otel.GetMeterProvider().Meter(instrumentationName),
	}
	for _, o := range opts {
		o(s)
	}

	var err error
	if s.begun, err = s.meter.Int64Counter("checkout.begun",
		metric.WithDescription("Drafts built from a cart"),
	); err != nil {
		return nil, errors.Wrap(err, "checkout.begun")
	}
	if s.committed, err = s.meter.Int64Counter("checkout.committed",
		metric.WithDescription("Orders placed"),
	); err != nil {
		return nil, errors.Wrap(err, "checkout.committed")
	}
	if s.failed, err = s.meter.Int64Counter("checkout.failed",
		metric.WithDescription("Checkout attempts that returned an error"),
	); err != nil {
		return nil, errors.Wrap(err, "checkout.failed")
	}
	return s, nil
}

// Begin validates the cart and stores a draft. Nothing durable is written.
func (s *Service) Begin(ctx context.Context, p auth.Principal, cartID int64) (_ *Summary, rerr error) {
	ctx, span := s.tracer.Start(ctx, "checkout.Begin",
		trace.WithAttributes(attribute.Int64("cart.id", cartID)),
	)
	defer func() { s.finish(ctx, span, "begin", rerr) }()

	if err := auth.RequireUser(p); err != nil {
		return nil, err
	}
	exists, err := s.users.Exists(ctx, p.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "check user")
	}
	if !exists {
		return nil, auth.ErrUserNotFound
	}

	c, err := s.carts.GetByID(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if owner, ok := c.Owner.UserID(); !ok || owner != p.UserID {
		return nil, auth.Deny("cart belongs to another owner")
	}
	if len(c.Items) == 0 {
		return nil, ErrCartEmpty
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
	for _, prod := range products {
		byID[prod.ID] = prod
	}

	now := s.now()
	d := &Draft{
		Token:     s.newToken(),
		UserID:    p.UserID,
		CartID:    c.ID,
		Items:     make([]DraftItem, 0, len(c.Items)),
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.DraftTTL),
	}
	lines := make([]Line, 0, len(c.Items))
	total := decimal.Zero
	for _, it := range c.Items {
		prod, ok := byID[it.ProductID]
		if !ok {
			return nil, &product.NotFoundError{ProductID: it.ProductID}
		}
		if prod.Stock < it.Quantity {
			return nil, &product.InsufficientStockError{
				ProductID: prod.ID,
				Requested: it.Quantity,
				Available: prod.Stock,
			}
		}
		lineTotal := prod.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
		total = total.Add(lineTotal)
		d.Items = append(d.Items, DraftItem{ProductID: it.ProductID, Quantity: it.Quantity})
		lines = append(lines, Line{
			ProductID: prod.ID,
			Name:      prod.Name,
			Quantity:  it.Quantity,
			UnitPrice: prod.Price,
			LineTotal: lineTotal.Round(2),
		})
	}
	d.Total = total.Round(2)

	if err := s.drafts.Save(ctx, d, s.cfg.DraftTTL); err != nil {
		return nil, errors.Wrap(err, "save draft")
	}

	s.begun.Add(ctx, 1)
	s.transition(ctx, d.Token, StateIdle, StateDraftBuilt,
		zap.Int64("cart_id", c.ID),
		zap.Int("items", len(d.Items)),
		zap.Stringer("total", d.Total),
	)
	return &Summary{Draft: d, Lines: lines}, nil
}

// Confirm commits the draft identified by token and ships to addr.
//
// Stock and product failures consume the draft: the caller has to begin
// again from the cart. Any other failure rolls back and restores the draft
// for its remaining lifetime; the error then matches ErrCheckoutFailed.
func (s *Service) Confirm(ctx context.Context, p auth.Principal, token string, addr order.Address) (_ *Result, rerr error) {
	ctx, span := s.tracer.Start(ctx, "checkout.Confirm")
	defer func() { s.finish(ctx, span, "confirm", rerr) }()

	if err := auth.RequireUser(p); err != nil {
		return nil, err
	}
	addr = addr.Normalize()
	if field := addr.MissingField(); field != "" {
		return nil, &InvalidAddressError{Field: field}
	}

	d, err := s.drafts.Get(ctx, token)
	if err != nil {
		return nil, draftErr(err, "get draft")
	}
	if d.UserID != p.UserID {
		return nil, auth.Deny("draft belongs to another user")
	}
	d, err = s.drafts.Take(ctx, token)
	if err != nil {
		return nil, draftErr(err, "claim draft")
	}
	span.SetAttributes(attribute.Int64("cart.id", d.CartID))

	// The commit must finish or roll back even if the client goes away.
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CommitTimeout)
	defer cancel()

	res, err := s.commit(commitCtx, d, addr)
	if err != nil {
		s.transition(ctx, token, StateDraftBuilt, StateFailed, zap.Error(err))
		if isValidation(err) {
			s.transition(ctx, token, StateFailed, StateIdle)
			return nil, err
		}
		s.restore(context.WithoutCancel(ctx), d)
		return nil, &CommitError{Cause: err}
	}

	s.committed.Add(ctx, 1)
	s.transition(ctx, token, StateDraftBuilt, StateCommitted,
		zap.Int64("order_id", res.Order.ID),
		zap.Int64("shipment_id", res.Shipment.ID),
		zap.Stringer("total", res.Order.Total),
	)
	return res, nil
}

// Abandon discards a draft owned by the caller.
func (s *Service) Abandon(ctx context.Context, p auth.Principal, token string) (rerr error) {
	ctx, span := s.tracer.Start(ctx, "checkout.Abandon")
	defer func() { s.finish(ctx, span, "abandon", rerr) }()

	if err := auth.RequireUser(p); err != nil {
		return err
	}
	d, err := s.drafts.Get(ctx, token)
	if err != nil {
		return draftErr(err, "get draft")
	}
	if d.UserID != p.UserID {
		return auth.Deny("draft belongs to another user")
	}
	if err := s.drafts.Delete(ctx, token); err != nil {
		return errors.Wrap(err, "delete draft")
	}
	s.transition(ctx, token, StateDraftBuilt, StateIdle)
	return nil
}

func (s *Service) commit(ctx context.Context, d *Draft, addr order.Address) (*Result, error) {
	// Merge quantities per product and lock in ascending id order so
	// concurrent commits touching the same products cannot deadlock.
	want := make(map[int64]int, len(d.Items))
	for _, it := range d.Items {
		if it.Quantity <= 0 {
			return nil, &product.InvalidQuantityError{Quantity: it.Quantity}
		}
		want[it.ProductID] += it.Quantity
	}
	ids := make([]int64, 0, len(want))
	for id := range want {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var res *Result
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		locked, err := tx.LockProducts(ctx, ids)
		if err != nil {
			return errors.Wrap(err, "lock products")
		}
		byID := make(map[int64]product.Product, len(locked))
		for _, prod := range locked {
			byID[prod.ID] = prod
		}

		total := decimal.Zero
		for _, id := range ids {
			prod, ok := byID[id]
			if !ok {
				return &product.NotFoundError{ProductID: id}
			}
			if prod.Stock < want[id] {
				return &product.InsufficientStockError{
					ProductID: id,
					Requested: want[id],
					Available: prod.Stock,
				}
			}
			total = total.Add(prod.Price.Mul(decimal.NewFromInt(int64(want[id]))))
		}

		now := s.now()
		o := &order.Order{
			UserID:    d.UserID,
			CreatedAt: now,
			Total:     total.Round(2),
		}
		if err := tx.InsertOrder(ctx, o); err != nil {
			return errors.Wrap(err, "insert order")
		}

		for _, id := range ids {
			it := order.Item{
				OrderID:   o.ID,
				ProductID: id,
				Quantity:  want[id],
				UnitPrice: byID[id].Price,
			}
			if err := tx.InsertOrderItem(ctx, &it); err != nil {
				return errors.Wrapf(err, "insert item for product %d", id)
			}
			if err := tx.DecrementStock(ctx, id, want[id]); err != nil {
				return errors.Wrapf(err, "decrement stock of product %d", id)
			}
			o.Items = append(o.Items, it)
		}

		sh := &order.Shipment{
			OrderID:  o.ID,
			UserID:   d.UserID,
			Address:  addr,
			ShipDate: now.Add(s.cfg.ShipAfter),
		}
		if err := tx.InsertShipment(ctx, sh); err != nil {
			return errors.Wrap(err, "insert shipment")
		}
		if err := tx.AttachShipment(ctx, o.ID, sh.ID); err != nil {
			return errors.Wrap(err, "attach shipment")
		}
		o.ShipmentID = &sh.ID

		if err := tx.ClearCart(ctx, d.CartID); err != nil {
			return errors.Wrap(err, "clear cart")
		}

		res = &Result{Order: o, Shipment: sh}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// draftErr reports a draft store outage as a retryable checkout failure.
func draftErr(err error, op string) error {
	if errors.Is(err, ErrDraftMissing) {
		return err
	}
	return &CommitError{Cause: errors.Wrap(err, op)}
}

// restore puts a claimed draft back for the rest of its lifetime.
func (s *Service) restore(ctx context.Context, d *Draft) {
	lg := zctx.From(ctx)
	ttl := d.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		lg.Info("Draft expired during commit, not restoring", zap.String("token", d.Token))
		return
	}
	if err := s.drafts.Save(ctx, d, ttl); err != nil {
		lg.Error("Restore draft", zap.String("token", d.Token), zap.Error(err))
		return
	}
	s.transition(ctx, d.Token, StateFailed, StateDraftBuilt, zap.Duration("ttl", ttl))
}

func (s *Service) transition(ctx context.Context, token string, from, to State, fields ...zap.Field) {
	zctx.From(ctx).Info("Checkout transition", append([]zap.Field{
		zap.String("token", token),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	}, fields...)...)
}

func (s *Service) finish(ctx context.Context, span trace.Span, stage string, err error) {
	defer span.End()
	if err == nil {
		return
	}
	reason := Reason(err)
	span.RecordError(err)
	span.SetStatus(codes.Error, reason)
	s.failed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("reason", reason),
	))
	zctx.From(ctx).Warn("Checkout failed",
		zap.String("stage", stage),
		zap.String("reason", reason),
		zap.Error(err),
	)
}

func isValidation(err error) bool {
	var (
		stockErr *product.InsufficientStockError
		qtyErr   *product.InvalidQuantityError
	)
	return errors.As(err, &stockErr) ||
		errors.As(err, &qtyErr) ||
		errors.Is(err, product.ErrNotFound)
}

// Reason classifies a checkout error into a short label.
func Reason(err error) string {
	var (
		stockErr *product.InsufficientStockError
		addrErr  *InvalidAddressError
		authErr  *auth.UnauthorizedError
	)
	switch {
	case errors.As(err, &stockErr):
		return "insufficient_stock"
	case errors.Is(err, product.ErrNotFound):
		return "product_not_found"
	case errors.As(err, &addrErr):
		return "invalid_address"
	case errors.As(err, &authErr):
		return "unauthorized"
	case errors.Is(err, ErrDraftMissing):
		return "draft_missing"
	case errors.Is(err, ErrCartEmpty):
		return "cart_empty"
	case errors.Is(err, cart.ErrNotFound):
		return "cart_not_found"
	case errors.Is(err, auth.ErrUserNotFound):
		return "user_not_found"
	default:
		return "persistence"
	}
}
