// Package cart owns shopping carts and their line items.
package cart

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

var (
	// ErrNotFound is returned when a cart does not exist.
	ErrNotFound = errors.New("cart not found")
	// ErrItemNotFound is returned when a line item is not part of the cart.
	ErrItemNotFound = errors.New("cart item not found")
	// ErrNoOwner is returned when neither a user nor a session identifies the caller.
	ErrNoOwner = errors.New("cart owner required")
	// ErrOwnerTaken is returned by Reassign when the target owner already has a cart.
	ErrOwnerTaken = errors.New("owner already has a cart")
)

// Owner is the unique key a cart belongs to: "user:<id>" or "session:<id>".
type Owner string

const (
	userPrefix    = "user:"
	sessionPrefix = "session:"
)

// UserOwner returns the owner key of a signed-in user's cart.
func UserOwner(userID string) Owner { return Owner(userPrefix + userID) }

// SessionOwner returns the owner key of an anonymous session's cart.
func SessionOwner(sessionID string) Owner { return Owner(sessionPrefix + sessionID) }

// UserID returns the user id for user-scoped owners.
func (o Owner) UserID() (string, bool) {
	id, ok := strings.CutPrefix(string(o), userPrefix)
	return id, ok && id != ""
}

// Ref identifies the caller a cart is resolved for.
type Ref struct {
	UserID    string
	SessionID string
}

// Owner returns the key the caller's cart is stored under. Signed-in callers
// always own a user-scoped cart.
func (r Ref) Owner() Owner {
	switch {
	case r.UserID != "":
		return UserOwner(r.UserID)
	case r.SessionID != "":
		return SessionOwner(r.SessionID)
	default:
		return ""
	}
}

// Cart is a shopping cart with its line items ordered by item id.
type Cart struct {
	ID        int64
	Owner     Owner
	Items     []Item
	CreatedAt time.Time
}

// Item is one product line in a cart. A cart holds at most one item per product.
type Item struct {
	ID        int64
	CartID    int64
	ProductID int64
	Quantity  int
}

// Find returns the item for productID.
func (c *Cart) Find(productID int64) (Item, bool) {
	for _, it := range c.Items {
		if it.ProductID == productID {
			return it, true
		}
	}
	return Item{}, false
}

// Repository defines persistence operations for carts.
type Repository interface {
	// GetByID returns the cart with its items or ErrNotFound.
	GetByID(ctx context.Context, id int64) (*Cart, error)
	// GetByOwner returns the owner's cart with its items or ErrNotFound.
	GetByOwner(ctx context.Context, owner Owner) (*Cart, error)
	// Create returns the owner's cart, inserting an empty one if needed.
	Create(ctx context.Context, owner Owner) (*Cart, error)
	// Reassign moves a cart to a new owner or reports ErrOwnerTaken.
	Reassign(ctx context.Context, cartID int64, owner Owner) error
	// AddQuantity inserts the product line or increments its quantity.
	AddQuantity(ctx context.Context, cartID, productID int64, qty int) (*Item, error)
	// SetQuantity overwrites an item's quantity or reports ErrItemNotFound.
	SetQuantity(ctx context.Context, cartID, itemID int64, qty int) error
	// RemoveItem deletes an item or reports ErrItemNotFound.
	RemoveItem(ctx context.Context, cartID, itemID int64) error
	// Clear deletes every item of the cart.
	Clear(ctx context.Context, cartID int64) error
}
