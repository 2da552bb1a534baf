package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/storage/redis"
)

// --- Mock implementations ---

// shopStore backs the cart and checkout services with maps. Transactions
// run under one lock and are not rolled back; the flow below only commits.
type shopStore struct {
	mu       sync.Mutex
	products map[int64]product.Product
	carts    map[int64]*cart.Cart
	orders   []order.Order
	items    []order.Item
	ships    []order.Shipment
	nextID   int64
}

func newShopStore(products ...product.Product) *shopStore {
	s := &shopStore{products: make(map[int64]product.Product), carts: make(map[int64]*cart.Cart), nextID: 100}
	for _, p := range products {
		s.products[p.ID] = p
	}
	return s
}

func (s *shopStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *shopStore) Exists(context.Context, string) (bool, error) { return true, nil }

func (s *shopStore) GetProduct(id int64) (*product.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return nil, &product.NotFoundError{ProductID: id}
	}
	return &p, nil
}

func (s *shopStore) GetByIDs(_ context.Context, ids []int64) ([]product.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []product.Product
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *shopStore) GetByID(_ context.Context, id int64) (*cart.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[id]
	if !ok {
		return nil, cart.ErrNotFound
	}
	cp := *c
	cp.Items = slices.Clone(c.Items)
	return &cp, nil
}

func (s *shopStore) GetByOwner(_ context.Context, owner cart.Owner) (*cart.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.carts {
		if c.Owner == owner {
			cp := *c
			cp.Items = slices.Clone(c.Items)
			return &cp, nil
		}
	}
	return nil, cart.ErrNotFound
}

func (s *shopStore) Create(_ context.Context, owner cart.Owner) (*cart.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &cart.Cart{ID: s.id(), Owner: owner}
	s.carts[c.ID] = c
	cp := *c
	return &cp, nil
}

func (s *shopStore) Reassign(context.Context, int64, cart.Owner) error { return cart.ErrOwnerTaken }

func (s *shopStore) AddQuantity(_ context.Context, cartID, productID int64, qty int) (*cart.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.carts[cartID]
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items[i].Quantity += qty
			it := c.Items[i]
			return &it, nil
		}
	}
	it := cart.Item{ID: s.id(), CartID: cartID, ProductID: productID, Quantity: qty}
	c.Items = append(c.Items, it)
	return &it, nil
}

func (s *shopStore) SetQuantity(context.Context, int64, int64, int) error { return nil }

func (s *shopStore) RemoveItem(context.Context, int64, int64) error { return nil }

func (s *shopStore) Clear(_ context.Context, cartID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.carts[cartID].Items = nil
	return nil
}

func (s *shopStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx checkout.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(ctx, shopTx{s})
}

type shopTx struct{ s *shopStore }

func (t shopTx) LockProducts(_ context.Context, ids []int64) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := t.s.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (t shopTx) DecrementStock(_ context.Context, productID int64, qty int) error {
	p := t.s.products[productID]
	p.Stock -= qty
	t.s.products[productID] = p
	return nil
}

func (t shopTx) InsertOrder(_ context.Context, o *order.Order) error {
	o.ID = t.s.id()
	t.s.orders = append(t.s.orders, *o)
	return nil
}

func (t shopTx) InsertOrderItem(_ context.Context, it *order.Item) error {
	it.ID = t.s.id()
	t.s.items = append(t.s.items, *it)
	return nil
}

func (t shopTx) InsertShipment(_ context.Context, sh *order.Shipment) error {
	sh.ID = t.s.id()
	t.s.ships = append(t.s.ships, *sh)
	return nil
}

func (t shopTx) AttachShipment(context.Context, int64, int64) error { return nil }

func (t shopTx) ClearCart(_ context.Context, cartID int64) error {
	t.s.carts[cartID].Items = nil
	return nil
}

// catalogByID adapts shopStore to cart.Catalog.
type catalogByID struct{ *shopStore }

func (c catalogByID) GetByID(_ context.Context, id int64) (*product.Product, error) {
	return c.GetProduct(id)
}

// --- Helpers ---

func newFlowServer(t *testing.T, store *shopStore) (http.Handler, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	co, err := checkout.NewService(store, store, store, redis.NewDraftStore(rdb), store,
		checkout.Config{DraftTTL: 30 * time.Minute, ShipAfter: 72 * time.Hour, CommitTimeout: time.Second},
	)
	require.NoError(t, err)

	mux := http.NewServeMux()
	New(Config{}, &mockCatalog{}, cart.NewService(store, catalogByID{store}), co, &mockOrders{}, &mockUsers{}).Register(mux)
	return Authenticate(tokens)(mux), mr
}

// --- Tests ---

func TestCheckoutFlow_BeginThenConfirm(t *testing.T) {
	store := newShopStore(product.Product{ID: 7, Name: "Pen", Price: mustDecimal("10.00"), Stock: 5})
	h, mr := newFlowServer(t, store)
	s := &testServer{handler: h}

	w := s.do(http.MethodPost, "/api/cart/items", "alice-token", `{"product_id":7,"quantity":2}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(http.MethodPost, "/api/checkout", "alice-token", "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var summary struct {
		Token string `json:"token"`
		Total string `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, "20.00", summary.Total)
	require.Len(t, mr.Keys(), 1)

	confirmURL := fmt.Sprintf("/api/checkout/%s/confirm", summary.Token)
	address := `{"address":"1 Main St","city":"Springfield","postal_code":"12345","country":"US"}`

	w = s.do(http.MethodPost, confirmURL, "alice-token", address)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var placed struct {
		OrderID    int64  `json:"order_id"`
		ShipmentID int64  `json:"shipment_id"`
		Total      string `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &placed))
	assert.Equal(t, "20.00", placed.Total)
	assert.NotZero(t, placed.OrderID)
	assert.NotZero(t, placed.ShipmentID)

	assert.Equal(t, 3, store.products[7].Stock)
	require.Len(t, store.orders, 1)
	require.Len(t, store.items, 1)
	assert.Equal(t, 2, store.items[0].Quantity)
	assert.True(t, store.items[0].UnitPrice.Equal(mustDecimal("10")))
	require.Len(t, store.ships, 1)
	assert.Equal(t, "Springfield", store.ships[0].Address.City)
	assert.Empty(t, mr.Keys())

	w = s.do(http.MethodGet, "/api/cart", "alice-token", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"items":[]`)

	assertError(t, s.do(http.MethodPost, confirmURL, "alice-token", address), http.StatusGone, "")
}

func TestCheckoutFlow_BadAddressKeepsDraft(t *testing.T) {
	store := newShopStore(product.Product{ID: 7, Name: "Pen", Price: mustDecimal("10.00"), Stock: 5})
	h, mr := newFlowServer(t, store)
	s := &testServer{handler: h}

	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/cart/items", "alice-token", `{"product_id":7}`).Code)
	w := s.do(http.MethodPost, "/api/checkout", "alice-token", "")
	require.Equal(t, http.StatusCreated, w.Code)
	var summary struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))

	w = s.do(http.MethodPost, "/api/checkout/"+summary.Token+"/confirm", "alice-token", `{"address":"1 Main St","city":" "}`)
	assertError(t, w, http.StatusUnprocessableEntity, `"field":"city"`)
	assert.Len(t, mr.Keys(), 1)
	assert.Equal(t, 5, store.products[7].Stock)
	assert.Empty(t, store.orders)
}
