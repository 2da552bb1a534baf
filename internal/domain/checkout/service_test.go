package checkout

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
)

// --- Mock implementations ---

// memStore is an in-memory database. WithinTx holds the lock for the whole
// transaction and restores a snapshot when fn fails, so commits here run one
// after another. Row lock contention is exercised against PostgreSQL by
// TestCheckout_ConcurrentLastUnit in internal/storage/postgres.
type memStore struct {
	mu        sync.Mutex
	users     map[string]bool
	products  map[int64]product.Product
	carts     map[int64]cart.Cart
	orders    map[int64]order.Order
	items     []order.Item
	shipments map[int64]order.Shipment
	nextID    int64

	failOn string
}

type snapshot struct {
	products  map[int64]product.Product
	carts     map[int64]cart.Cart
	orders    map[int64]order.Order
	items     []order.Item
	shipments map[int64]order.Shipment
	nextID    int64
}

func newMemStore() *memStore {
	return &memStore{
		users:     make(map[string]bool),
		products:  make(map[int64]product.Product),
		carts:     make(map[int64]cart.Cart),
		orders:    make(map[int64]order.Order),
		shipments: make(map[int64]order.Shipment),
		nextID:    1000,
	}
}

func (m *memStore) Exists(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[id], nil
}

func (m *memStore) GetByID(_ context.Context, id int64) (*cart.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[id]
	if !ok {
		return nil, cart.ErrNotFound
	}
	c.Items = slices.Clone(c.Items)
	return &c, nil
}

func (m *memStore) GetByIDs(_ context.Context, ids []int64) ([]product.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := snapshot{
		products:  maps.Clone(m.products),
		carts:     maps.Clone(m.carts),
		orders:    maps.Clone(m.orders),
		items:     slices.Clone(m.items),
		shipments: maps.Clone(m.shipments),
		nextID:    m.nextID,
	}
	if err := fn(ctx, memTx{m}); err != nil {
		m.products, m.carts, m.orders = snap.products, snap.carts, snap.orders
		m.items, m.shipments, m.nextID = snap.items, snap.shipments, snap.nextID
		return err
	}
	return nil
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) fail(step string) error {
	if m.failOn == step {
		return errors.New("connection reset by peer")
	}
	return nil
}

type memTx struct{ m *memStore }

func (t memTx) LockProducts(_ context.Context, ids []int64) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := t.m.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (t memTx) DecrementStock(_ context.Context, productID int64, qty int) error {
	if err := t.m.fail("decrement"); err != nil {
		return err
	}
	p := t.m.products[productID]
	if p.Stock < qty {
		return &product.InsufficientStockError{ProductID: productID, Requested: qty, Available: p.Stock}
	}
	p.Stock -= qty
	t.m.products[productID] = p
	return nil
}

func (t memTx) InsertOrder(_ context.Context, o *order.Order) error {
	if err := t.m.fail("order"); err != nil {
		return err
	}
	o.ID = t.m.id()
	t.m.orders[o.ID] = *o
	return nil
}

func (t memTx) InsertOrderItem(_ context.Context, it *order.Item) error {
	it.ID = t.m.id()
	t.m.items = append(t.m.items, *it)
	return nil
}

func (t memTx) InsertShipment(_ context.Context, s *order.Shipment) error {
	if err := t.m.fail("shipment"); err != nil {
		return err
	}
	s.ID = t.m.id()
	t.m.shipments[s.ID] = *s
	return nil
}

func (t memTx) AttachShipment(_ context.Context, orderID, shipmentID int64) error {
	o := t.m.orders[orderID]
	o.ShipmentID = &shipmentID
	t.m.orders[orderID] = o
	return nil
}

func (t memTx) ClearCart(_ context.Context, cartID int64) error {
	if err := t.m.fail("clear"); err != nil {
		return err
	}
	c := t.m.carts[cartID]
	c.Items = nil
	t.m.carts[cartID] = c
	return nil
}

type memDrafts struct {
	mu     sync.Mutex
	drafts map[string]Draft
	ttls   map[string]time.Duration
	err    error
}

func newMemDrafts() *memDrafts {
	return &memDrafts{drafts: make(map[string]Draft), ttls: make(map[string]time.Duration)}
}

func (m *memDrafts) Save(_ context.Context, d *Draft, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drafts[d.Token] = *d
	m.ttls[d.Token] = ttl
	return nil
}

func (m *memDrafts) Get(_ context.Context, token string) (*Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	d, ok := m.drafts[token]
	if !ok {
		return nil, ErrDraftMissing
	}
	return &d, nil
}

func (m *memDrafts) Take(_ context.Context, token string) (*Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	d, ok := m.drafts[token]
	if !ok {
		return nil, ErrDraftMissing
	}
	delete(m.drafts, token)
	delete(m.ttls, token)
	return &d, nil
}

func (m *memDrafts) Delete(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.drafts, token)
	delete(m.ttls, token)
	return nil
}

func (m *memDrafts) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.drafts)
}

// --- Helpers ---

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var validAddress = order.Address{
	Line:       "742 Evergreen Terrace",
	City:       "Springfield",
	PostalCode: "49007",
	Country:    "US",
}

type fixture struct {
	store  *memStore
	drafts *memDrafts
	svc    *Service
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: newMemStore(), drafts: newMemDrafts(), now: testNow}
	var seq atomic.Int64
	svc, err := NewService(f.store, f.store, f.store, f.drafts, f.store,
		Config{DraftTTL: 30 * time.Minute, ShipAfter: 72 * time.Hour, CommitTimeout: time.Second},
		WithClock(func() time.Time { return f.now }),
		WithTokenGenerator(func() string { return fmt.Sprintf("tok-%d", seq.Add(1)) }),
	)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) product(id int64, price string, stock int) {
	f.store.products[id] = product.Product{
		ID:    id,
		Name:  fmt.Sprintf("product-%d", id),
		Price: decimal.RequireFromString(price),
		Stock: stock,
	}
}

func (f *fixture) user(id string) auth.Principal {
	f.store.users[id] = true
	return auth.Principal{UserID: id, Roles: []auth.Role{auth.RoleUser}}
}

func (f *fixture) cart(id int64, userID string, items ...cart.Item) {
	for i := range items {
		items[i].ID = id*100 + int64(i)
		items[i].CartID = id
	}
	f.store.carts[id] = cart.Cart{ID: id, Owner: cart.UserOwner(userID), Items: items}
}

func line(productID int64, qty int) cart.Item {
	return cart.Item{ProductID: productID, Quantity: qty}
}

func (f *fixture) assertNothingWritten(t *testing.T) {
	t.Helper()
	assert.Empty(t, f.store.orders)
	assert.Empty(t, f.store.items)
	assert.Empty(t, f.store.shipments)
}

// --- Tests ---

func TestCheckout_Scenario(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice")
	f.product(7, "10.00", 5)
	f.cart(1, "alice", line(7, 2))
	ctx := context.Background()

	sum, err := f.svc.Begin(ctx, alice, 1)
	require.NoError(t, err)
	assert.True(t, sum.Draft.Total.Equal(decimal.RequireFromString("20.00")))
	assert.Equal(t, testNow.Add(30*time.Minute), sum.Draft.ExpiresAt)
	require.Len(t, sum.Lines, 1)
	assert.Equal(t, "product-7", sum.Lines[0].Name)
	assert.Equal(t, 30*time.Minute, f.drafts.ttls[sum.Draft.Token])

	// Begin writes nothing durable.
	assert.Equal(t, 5, f.store.products[7].Stock)
	f.assertNothingWritten(t)

	res, err := f.svc.Confirm(ctx, alice, sum.Draft.Token, validAddress)
	require.NoError(t, err)

	assert.Equal(t, 3, f.store.products[7].Stock)
	assert.Equal(t, "20.00", res.Order.Total.StringFixed(2))
	assert.Equal(t, "alice", res.Order.UserID)
	require.Len(t, f.store.orders, 1)
	require.Len(t, f.store.shipments, 1)

	stored := f.store.orders[res.Order.ID]
	require.NotNil(t, stored.ShipmentID)
	assert.Equal(t, res.Shipment.ID, *stored.ShipmentID)

	sh := f.store.shipments[res.Shipment.ID]
	assert.Equal(t, res.Order.ID, sh.OrderID)
	assert.Equal(t, "alice", sh.UserID)
	assert.Equal(t, validAddress, sh.Address)
	assert.Equal(t, testNow.Add(72*time.Hour), sh.ShipDate)

	require.Len(t, f.store.items, 1)
	assert.Equal(t, int64(7), f.store.items[0].ProductID)
	assert.Equal(t, 2, f.store.items[0].Quantity)
	assert.True(t, f.store.items[0].UnitPrice.Equal(decimal.RequireFromString("10.00")))

	assert.Empty(t, f.store.carts[1].Items)
	assert.Zero(t, f.drafts.len())
}

func TestCheckout_ItemsMatchCart(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice")
	f.product(1, "2.50", 10)
	f.product(2, "4.00", 3)
	f.product(3, "0.99", 100)
	f.cart(1, "alice", line(3, 7), line(1, 4), line(2, 3))
	ctx := context.Background()

	sum, err := f.svc.Begin(ctx, alice, 1)
	require.NoError(t, err)
	res, err := f.svc.Confirm(ctx, alice, sum.Draft.Token, validAddress)
	require.NoError(t, err)

	got := make(map[int64]int)
	for _, it := range f.store.items {
		assert.Equal(t, res.Order.ID, it.OrderID)
		got[it.ProductID] = it.Quantity
	}
	assert.Equal(t, map[int64]int{1: 4, 2: 3, 3: 7}, got)
	assert.Equal(t, 6, f.store.products[1].Stock)
	assert.Equal(t, 0, f.store.products[2].Stock)
	assert.Equal(t, 93, f.store.products[3].Stock)
	// 4×2.50 + 3×4.00 + 7×0.99
	assert.Equal(t, "28.93", res.Order.Total.StringFixed(2))
	assert.True(t, sum.Draft.Total.Equal(res.Order.Total))
}

func TestBegin_InsufficientStock(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice")
	f.product(9, "1.00", 2)
	f.cart(1, "alice", line(9, 10))

	_, err := f.svc.Begin(context.Background(), alice, 1)

	var isErr *product.InsufficientStockError
	require.ErrorAs(t, err, &isErr)
	assert.Equal(t, &product.InsufficientStockError{ProductID: 9, Requested: 10, Available: 2}, isErr)
	assert.Zero(t, f.drafts.len(), "no draft stored")
}

func TestBegin_Preconditions(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice")
	bob := f.user("bob")
	f.product(7, "10.00", 5)
	f.cart(1, "alice", line(7, 1))
	f.cart(2, "alice")
	f.cart(3, "alice", line(404, 1))
	f.store.carts[4] = cart.Cart{ID: 4, Owner: cart.SessionOwner("s1"), Items: []cart.Item{line(7, 1)}}
	ctx := context.Background()

	t.Run("anonymous", func(t *testing.T) {
		_, err := f.svc.Begin(ctx, auth.Principal{}, 1)
		var uErr *auth.UnauthorizedError
		require.ErrorAs(t, err, &uErr)
		assert.False(t, uErr.Authenticated())
	})
	t.Run("unknown user", func(t *testing.T) {
		_, err := f.svc.Begin(ctx, auth.Principal{UserID: "ghost"}, 1)
		require.ErrorIs(t, err, auth.ErrUserNotFound)
	})
	t.Run("missing cart", func(t *testing.T) {
		_, err := f.svc.Begin(ctx, alice, 99)
		require.ErrorIs(t, err, cart.ErrNotFound)
	})
	t.Run("other user's cart", func(t *testing.T) {
		_, err := f.svc.Begin(ctx, bob, 1)
		var uErr *auth.UnauthorizedError
		require.ErrorAs(t, err, &uErr)
		assert.True(t, uErr.Authenticated())
	})
	t.Run("session cart", func(t *testing.T) {
		_, err := f.svc.Begin(ctx, alice, 4)
		var uErr *auth.UnauthorizedError
		require.ErrorAs(t, err, &uErr)
	})
	t.Run("empty cart", func(t *testing.T) {
		_, err := f.svc.Begin(ctx, alice, 2)
		require.ErrorIs(t, err, ErrCartEmpty)
	})
	t.Run("missing product", func(t *testing.T) {
		_, err := f.svc.Begin(ctx, alice, 3)
		var nfErr *product.NotFoundError
		require.ErrorAs(t, err, &nfErr)
		assert.Equal(t, int64(404), nfErr.ProductID)
	})

	assert.Zero(t, f.drafts.len())
}

func TestConfirm_StockChangedSinceBegin(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice")
	f.product(7, "10.00", 5)
	f.product(8, "3.00", 5)
	f.cart(1, "alice", line(8, 1), line(7, 4))
	ctx := context.Background()

	sum, err := f.svc.Begin(ctx, alice, 1)
	require.NoError(t, err)

	// An admin edit lowers stock between the two steps.
	p := f.store.products[7]
	p.Stock = 3
	f.store.products[7] = p

	_, err = f.svc.Confirm(ctx, alice, sum.Draft.Token, validAddress)
	var isErr *product.InsufficientStockError
	require.ErrorAs(t, err, &isErr)
	assert.Equal(t, int64(7), isErr.ProductID)
	assert.Equal(t, 4, isErr.Requested)
	assert.Equal(t, 3, isErr.Available)
	assert.NotErrorIs(t, err, ErrCheckoutFailed)

	f.assertNothingWritten(t)
	assert.Equal(t, 3, f.store.products[7].Stock)
	assert.Equal(t, 5, f.store.products[8].Stock)
	assert.Len(t, f.store.carts[1].Items, 2, "cart untouched")

	// The draft was consumed; the user has to start over.
	_, err = f.svc.Confirm(ctx, alice, sum.Draft.Token, validAddress)
	require.ErrorIs(t, err, ErrDraftMissing)
}

func TestConfirm_ProductDeletedSinceBegin(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice")
	f.product(7, "10.00", 5)
	f.cart(1, "alice", line(7, 1))
	ctx := context.Background()

	sum, err := f.svc.Begin(ctx, alice, 1)
	require.NoError(t, err)
	delete(f.store.products, 7)

	_, err = f.svc.Confirm(ctx, alice, sum.Draft.Token, validAddress)
	require.ErrorIs(t, err, product.ErrNotFound)
	f.assertNothingWritten(t)
}

func TestConfirm_TwiceYieldsDraftMissing(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice")
	f.product(7, "10.00", 5)
	f.cart(1, "alice", line(7, 1))
	ctx := context.Background()

	sum, err := f.svc.Begin(ctx, alice, 1)
	require.NoError(t, err)
	_, err = f.svc.Confirm(ctx, alice, sum.Draft.Token, validAddress)
	require.NoError(t, err)

	_, err = f.svc.Confirm(ctx, alice, sum.Draft.Token, validAddress)
	require.ErrorIs(t, err, ErrDraftMissing)
	assert.Len(t, f.store.orders, 1)
	assert.Equal(t, 4, f.store.products[7].Stock)
}

func TestConfirm_InvalidAddressKeepsDraft(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice")
	f.product(7, "10.00", 5)
	f.cart(1, "alice", line(7, 1))
	ctx := context.Background()

	sum, err := f.svc.Begin(ctx, alice, 1)
	require.NoError(t, err)

	addr := validAddress
	addr.City = "   "
	_, err = f.svc.Confirm(ctx, alice, sum.Draft.Token, addr)
	var aErr *InvalidAddressError
	require.ErrorAs(t, err, &aErr)
	assert.Equal(t, "city", aErr.Field)
	assert.Equal(t, 1, f.drafts.len())
	f.assertNothingWritten(t)

	_, err = f.svc.Confirm(ctx, alice, sum.Draft.Token, validAddress)
	require.NoError(t, err)
}

func TestConfirm_OtherUsersDraft(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice")
	bob := f.user("bob")
	f.product(7, "10.00", 5)
	f.cart(1, "alice", line(7, 1))
	ctx := context.Background()

	sum, err := f.svc.Begin(ctx, alice, 1)
	require.NoError(t, err)

	_, err = f.svc.Confirm(ctx, bob, sum.Draft.Token, validAddress)
	var uErr *auth.UnauthorizedError
	require.ErrorAs(t, err, &uErr)
	require.Error(t, f.svc.Abandon(ctx, bob, sum.Draft.Token))
	assert.Equal(t, 1, f.drafts.len(), "draft survives foreign attempts")
}

func TestConfirm_PersistenceFailureRollsBack(t *testing.T) {
	for _, step := range []string{"order", "decrement", "shipment", "clear"} {
		t.Run(step, func(t *testing.T) {
			f := newFixture(t)
			alice := f.user("alice")
			f.product(7, "10.00", 5)
			f.cart(1, "alice", line(7, 2))
			ctx := context.Background()

			sum, err := f.svc.Begin(ctx, alice, 1)
			require.NoError(t, err)

			f.now = testNow.Add(10 * time.Minute)
			f.store.failOn = step
			_, err = f.svc.Confirm(ctx, alice, sum.Draft.Token, validAddress)
			require.ErrorIs(t, err, ErrCheckoutFailed)
			var cErr *CommitError
			require.ErrorAs(t, err, &cErr)
			assert.Equal(t, "persistence", Reason(err))

			f.assertNothingWritten(t)
			assert.Equal(t, 5, f.store.products[7].Stock)
			assert.Len(t, f.store.carts[1].Items, 1)

			// The draft is restored for the rest of its lifetime.
			require.Equal(t, 1, f.drafts.len())
			assert.Equal(t, 20*time.Minute, f.drafts.ttls[sum.Draft.Token])

			f.store.failOn = ""
			res, err := f.svc.Confirm(ctx, alice, sum.Draft.Token, validAddress)
			require.NoError(t, err)
			assert.Equal(t, 3, f.store.products[7].Stock)
			assert.NotNil(t, res.Order.ShipmentID)
		})
	}
}

func TestConfirm_ExpiredDraftNotRestored(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice")
	f.product(7, "10.00", 5)
	f.cart(1, "alice", line(7, 2))
	ctx := context.Background()

	sum, err := f.svc.Begin(ctx, alice, 1)
	require.NoError(t, err)

	f.now = testNow.Add(time.Hour)
	f.store.failOn = "shipment"
	_, err = f.svc.Confirm(ctx, alice, sum.Draft.Token, validAddress)
	require.ErrorIs(t, err, ErrCheckoutFailed)
	assert.Zero(t, f.drafts.len())
}

func TestConfirm_DetachedFromCancellation(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice")
	f.product(7, "10.00", 5)
	f.cart(1, "alice", line(7, 1))

	sum, err := f.svc.Begin(context.Background(), alice, 1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := f.svc.Confirm(ctx, alice, sum.Draft.Token, validAddress)
	require.NoError(t, err)
	assert.NotZero(t, res.Order.ID)
	assert.Equal(t, 4, f.store.products[7].Stock)
}

func TestConfirm_DraftStoreUnavailable(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice")
	f.product(7, "10.00", 5)
	f.cart(1, "alice", line(7, 1))
	ctx := context.Background()

	sum, err := f.svc.Begin(ctx, alice, 1)
	require.NoError(t, err)

	f.drafts.err = errors.New("dial tcp: connection refused")
	_, err = f.svc.Confirm(ctx, alice, sum.Draft.Token, validAddress)
	require.ErrorIs(t, err, ErrCheckoutFailed)
	var commitErr *CommitError
	require.ErrorAs(t, err, &commitErr)
	assert.ErrorContains(t, commitErr.Cause, "get draft")

	err = f.svc.Abandon(ctx, alice, sum.Draft.Token)
	require.ErrorIs(t, err, ErrCheckoutFailed)

	f.drafts.err = nil
	res, err := f.svc.Confirm(ctx, alice, sum.Draft.Token, validAddress)
	require.NoError(t, err)
	assert.NotZero(t, res.Order.ID)
	assert.Equal(t, 4, f.store.products[7].Stock)
}

// Commits are serialized by memStore, so this checks the outcome accounting;
// the row lock race itself runs in the PostgreSQL integration suite.
func TestConfirm_ConcurrentLastUnit(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice")
	bob := f.user("bob")
	f.product(7, "10.00", 1)
	f.cart(1, "alice", line(7, 1))
	f.cart(2, "bob", line(7, 1))
	ctx := context.Background()

	sumA, err := f.svc.Begin(ctx, alice, 1)
	require.NoError(t, err)
	sumB, err := f.svc.Begin(ctx, bob, 2)
	require.NoError(t, err)

	var (
		g         errgroup.Group
		succeeded atomic.Int32
		oversold  atomic.Int32
	)
	attempts := []struct {
		p     auth.Principal
		token string
	}{
		{alice, sumA.Draft.Token},
		{bob, sumB.Draft.Token},
	}
	for _, a := range attempts {
		g.Go(func() error {
			_, err := f.svc.Confirm(ctx, a.p, a.token, validAddress)
			var isErr *product.InsufficientStockError
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.As(err, &isErr):
				oversold.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), succeeded.Load())
	assert.Equal(t, int32(1), oversold.Load())
	assert.Equal(t, 0, f.store.products[7].Stock)
	assert.Len(t, f.store.orders, 1)
	assert.Len(t, f.store.shipments, 1)
}

func TestConfirm_ConcurrentSameDraft(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice")
	f.product(7, "10.00", 10)
	f.cart(1, "alice", line(7, 1))
	ctx := context.Background()

	sum, err := f.svc.Begin(ctx, alice, 1)
	require.NoError(t, err)

	var (
		g       errgroup.Group
		placed  atomic.Int32
		missing atomic.Int32
	)
	for range 8 {
		g.Go(func() error {
			_, err := f.svc.Confirm(ctx, alice, sum.Draft.Token, validAddress)
			switch {
			case err == nil:
				placed.Add(1)
			case errors.Is(err, ErrDraftMissing):
				missing.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), placed.Load())
	assert.Equal(t, int32(7), missing.Load())
	assert.Equal(t, 9, f.store.products[7].Stock)
}

func TestAbandon(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice")
	f.product(7, "10.00", 5)
	f.cart(1, "alice", line(7, 1))
	ctx := context.Background()

	sum, err := f.svc.Begin(ctx, alice, 1)
	require.NoError(t, err)

	require.NoError(t, f.svc.Abandon(ctx, alice, sum.Draft.Token))
	require.ErrorIs(t, f.svc.Abandon(ctx, alice, sum.Draft.Token), ErrDraftMissing)

	_, err = f.svc.Confirm(ctx, alice, sum.Draft.Token, validAddress)
	require.ErrorIs(t, err, ErrDraftMissing)
	assert.Len(t, f.store.carts[1].Items, 1)
}

func TestReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&product.InsufficientStockError{ProductID: 1}, "insufficient_stock"},
		{errors.Wrap(&product.NotFoundError{ProductID: 1}, "lock"), "product_not_found"},
		{&InvalidAddressError{Field: "city"}, "invalid_address"},
		{auth.Deny("x"), "unauthorized"},
		{ErrDraftMissing, "draft_missing"},
		{ErrCartEmpty, "cart_empty"},
		{cart.ErrNotFound, "cart_not_found"},
		{auth.ErrUserNotFound, "user_not_found"},
		{errors.New("boom"), "persistence"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Reason(tt.err), tt.err.Error())
	}
	assert.True(t, StateCommitted.IsTerminal())
	assert.False(t, StateFailed.IsTerminal())
}
