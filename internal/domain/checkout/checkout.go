// Package checkout turns a cart into a placed order in two steps.
//
// Begin validates the cart against the catalog and stores a draft under an
// opaque token with an expiry. Confirm claims the draft, re-validates it
// against locked product rows and writes the order, its items, the stock
// decrements, the shipment and the cart clear in one transaction.
package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
)

var (
	// ErrCartEmpty is returned by Begin for a cart without items.
	ErrCartEmpty = errors.New("cart is empty")
	// ErrDraftMissing is returned when a draft token is unknown, expired or
	// already used.
	ErrDraftMissing = errors.New("checkout draft expired or missing")
	// ErrCheckoutFailed marks a commit that was rolled back for a reason
	// other than stock validation. The draft is kept so the caller can retry.
	ErrCheckoutFailed = errors.New("checkout failed, please retry")
)

// State is a checkout workflow state.
type State string

// Workflow states.
const (
	StateIdle       State = "idle"
	StateDraftBuilt State = "draft_built"
	StateCommitted  State = "committed"
	StateFailed     State = "failed"
)

// IsTerminal reports whether no further transition leaves the state.
func (s State) IsTerminal() bool {
	return s == StateCommitted
}

// InvalidAddressError reports a blank required address field.
type InvalidAddressError struct {
	Field string
}

func (e *InvalidAddressError) Error() string {
	return fmt.Sprintf("invalid address: %s is required", e.Field)
}

// CommitError wraps the cause of a rolled back commit.
type CommitError struct {
	Cause error
}

func (e *CommitError) Error() string {
	return ErrCheckoutFailed.Error() + ": " + e.Cause.Error()
}

// Unwrap returns the underlying cause.
func (e *CommitError) Unwrap() error { return e.Cause }

// Is reports CommitError as ErrCheckoutFailed.
func (e *CommitError) Is(target error) bool { return target == ErrCheckoutFailed }

// Draft is a validated but uncommitted checkout. It is held outside the
// database and re-validated on Confirm.
type Draft struct {
	Token     string
	UserID    string
	CartID    int64
	Items     []DraftItem
	Total     decimal.Decimal
	CreatedAt time.Time
	ExpiresAt time.Time
}

// DraftItem is a product line copied from the cart.
type DraftItem struct {
	ProductID int64
	Quantity  int
}

// Line is a priced draft line shown for confirmation.
type Line struct {
	ProductID int64
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
}

// Summary is what Begin returns to the caller.
type Summary struct {
	Draft *Draft
	Lines []Line
}

// Result is what a successful Confirm returns.
type Result struct {
	Order    *order.Order
	Shipment *order.Shipment
}

// DraftStore keeps drafts between Begin and Confirm.
type DraftStore interface {
	// Save stores the draft for ttl, replacing any previous value.
	Save(ctx context.Context, d *Draft, ttl time.Duration) error
	// Get returns the draft or ErrDraftMissing.
	Get(ctx context.Context, token string) (*Draft, error)
	// Take atomically reads and deletes the draft. Of several concurrent
	// callers at most one receives it; the rest get ErrDraftMissing.
	Take(ctx context.Context, token string) (*Draft, error)
	// Delete removes the draft if present.
	Delete(ctx context.Context, token string) error
}

// Transactor runs fn inside one database transaction, committing when fn
// returns nil and rolling back otherwise.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the set of writes a checkout commit performs.
type Tx interface {
	// LockProducts returns the products among ids, locked for update until
	// the transaction ends. Rows are locked in ascending id order.
	LockProducts(ctx context.Context, ids []int64) ([]product.Product, error)
	// DecrementStock lowers stock on a locked product.
	DecrementStock(ctx context.Context, productID int64, qty int) error
	// InsertOrder writes o and sets its ID and CreatedAt.
	InsertOrder(ctx context.Context, o *order.Order) error
	// InsertOrderItem writes it and sets its ID.
	InsertOrderItem(ctx context.Context, it *order.Item) error
	// InsertShipment writes s and sets its ID.
	InsertShipment(ctx context.Context, s *order.Shipment) error
	// AttachShipment links the order to its shipment.
	AttachShipment(ctx context.Context, orderID, shipmentID int64) error
	// ClearCart deletes every item of the cart.
	ClearCart(ctx context.Context, cartID int64) error
}
