// Package handler adapts the domain services to the JSON API served under /api.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
)

// Catalog is the product service as seen by the API.
type Catalog interface {
	ListPage(ctx context.Context, f product.Filter) (*product.Page, error)
	Get(ctx context.Context, id int64) (*product.Product, error)
	Create(ctx context.Context, p auth.Principal, prod *product.Product) error
	Update(ctx context.Context, p auth.Principal, prod *product.Product) error
	Delete(ctx context.Context, p auth.Principal, id int64) error
	ListCategories(ctx context.Context) ([]product.Category, error)
	CreateCategory(ctx context.Context, p auth.Principal, c *product.Category) error
	UpdateCategory(ctx context.Context, p auth.Principal, c *product.Category) error
	DeleteCategory(ctx context.Context, p auth.Principal, id int64) error
}

// Carts is the cart service as seen by the API.
type Carts interface {
	Resolve(ctx context.Context, ref cart.Ref) (*cart.Cart, error)
	Detail(ctx context.Context, cartID int64) (*cart.Detail, error)
	AddOrIncrement(ctx context.Context, cartID, productID int64, qty int) (*cart.Item, error)
	UpdateQuantity(ctx context.Context, cartID, itemID int64, qty int) error
	RemoveItem(ctx context.Context, cartID, itemID int64) error
	Clear(ctx context.Context, cartID int64) error
}

// Checkout is the checkout workflow as seen by the API.
type Checkout interface {
	Begin(ctx context.Context, p auth.Principal, cartID int64) (*checkout.Summary, error)
	Confirm(ctx context.Context, p auth.Principal, token string, addr order.Address) (*checkout.Result, error)
	Abandon(ctx context.Context, p auth.Principal, token string) error
}

// Orders is the order service as seen by the API.
type Orders interface {
	Get(ctx context.Context, p auth.Principal, id int64) (*order.Details, error)
	ListMine(ctx context.Context, p auth.Principal, req order.PageRequest) (*order.Page, error)
	ListAll(ctx context.Context, p auth.Principal, req order.PageRequest) (*order.Page, error)
	Stats(ctx context.Context, p auth.Principal) (*order.Stats, error)
}

// Users is the account administration service as seen by the API.
type Users interface {
	List(ctx context.Context, p auth.Principal, role auth.Role, offset, limit int) (*auth.UserPage, error)
	MakeAdmin(ctx context.Context, p auth.Principal, id string) (*auth.User, error)
	RemoveAdmin(ctx context.Context, p auth.Principal, id string) (*auth.User, error)
	Delete(ctx context.Context, p auth.Principal, id string) error
}

// Config holds non-dependency settings of the Handler.
type Config struct {
	// SecureCookies marks the cart session cookie Secure.
	SecureCookies bool
	// SessionTTL is the lifetime of the anonymous cart session cookie.
	SessionTTL time.Duration
}

// Handler serves the storefront API.
type Handler struct {
	catalog  Catalog
	carts    Carts
	checkout Checkout
	orders   Orders
	users    Users
	cfg      Config
}

// New creates a Handler.
func New(cfg Config, catalog Catalog, carts Carts, co Checkout, orders Orders, users Users) *Handler {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 30 * 24 * time.Hour
	}
	return &Handler{
		catalog:  catalog,
		carts:    carts,
		checkout: co,
		orders:   orders,
		users:    users,
		cfg:      cfg,
	}
}

// Register adds every API route to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/products", h.listProducts)
	mux.HandleFunc("GET /api/products/{id}", h.getProduct)
	mux.HandleFunc("POST /api/products", h.createProduct)
	mux.HandleFunc("PUT /api/products/{id}", h.updateProduct)
	mux.HandleFunc("DELETE /api/products/{id}", h.deleteProduct)

	mux.HandleFunc("GET /api/categories", h.listCategories)
	mux.HandleFunc("POST /api/categories", h.createCategory)
	mux.HandleFunc("PUT /api/categories/{id}", h.updateCategory)
	mux.HandleFunc("DELETE /api/categories/{id}", h.deleteCategory)

	mux.HandleFunc("GET /api/cart", h.getCart)
	mux.HandleFunc("DELETE /api/cart", h.clearCart)
	mux.HandleFunc("POST /api/cart/items", h.addCartItem)
	mux.HandleFunc("PUT /api/cart/items/{id}", h.updateCartItem)
	mux.HandleFunc("DELETE /api/cart/items/{id}", h.removeCartItem)

	mux.HandleFunc("POST /api/checkout", h.beginCheckout)
	mux.HandleFunc("POST /api/checkout/{token}/confirm", h.confirmCheckout)
	mux.HandleFunc("DELETE /api/checkout/{token}", h.abandonCheckout)

	mux.HandleFunc("GET /api/orders", h.listMyOrders)
	mux.HandleFunc("GET /api/orders/{id}", h.getOrder)
	mux.HandleFunc("GET /api/admin/orders", h.listAllOrders)
	mux.HandleFunc("GET /api/admin/stats", h.stats)

	mux.HandleFunc("GET /api/admin/users", h.listUsers)
	mux.HandleFunc("PUT /api/admin/users/{id}/admin", h.makeAdmin)
	mux.HandleFunc("DELETE /api/admin/users/{id}/admin", h.removeAdmin)
	mux.HandleFunc("DELETE /api/admin/users/{id}", h.deleteUser)
}
