package storefront

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var alice = models.User{ID: "user-alice", Email: "alice@example.com", Role: models.RoleCustomer}

func signedInAs(u models.User) *Session {
	s := &Session{}
	s.SignIn(u)
	return s
}

// fakeCartBackend keeps lines per user and can be told to fail.
type fakeCartBackend struct {
	mu    sync.Mutex
	lines map[string]map[string]models.CartItem
	err   error
	// hold, when set, blocks Add until closed
	hold chan struct{}
}

func newFakeCartBackend() *fakeCartBackend {
	return &fakeCartBackend{lines: make(map[string]map[string]models.CartItem)}
}

func (b *fakeCartBackend) userLines(id string) map[string]models.CartItem {
	if b.lines[id] == nil {
		b.lines[id] = make(map[string]models.CartItem)
	}
	return b.lines[id]
}

func (b *fakeCartBackend) Items(ctx context.Context, user models.User) ([]models.CartItem, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	var out []models.CartItem
	for _, it := range b.userLines(user.ID) {
		out = append(out, it)
	}
	return out, nil
}

func (b *fakeCartBackend) Add(ctx context.Context, user models.User, productID string, quantity int) (*models.CartItem, error) {
	if b.hold != nil {
		<-b.hold
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	lines := b.userLines(user.ID)
	it, ok := lines[productID]
	if !ok {
		it = models.CartItem{ID: "line-" + productID, UserID: user.ID, ProductID: productID}
	}
	it.Quantity += quantity
	lines[productID] = it
	return &it, nil
}

func (b *fakeCartBackend) Update(ctx context.Context, user models.User, productID string, quantity int) (*models.CartItem, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	lines := b.userLines(user.ID)
	it, ok := lines[productID]
	if !ok {
		return nil, apperr.NotFound("cart item", productID)
	}
	it.Quantity = quantity
	lines[productID] = it
	return &it, nil
}

func (b *fakeCartBackend) Remove(ctx context.Context, user models.User, productID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	delete(b.userLines(user.ID), productID)
	return nil
}

func (b *fakeCartBackend) fail(err error) {
	b.mu.Lock()
	b.err = err
	b.mu.Unlock()
}

func product(id, price string) models.Product {
	return models.Product{ID: id, Title: id, Price: decimal.RequireFromString(price)}
}

func TestCartStoreAddMergesLines(t *testing.T) {
	backend := newFakeCartBackend()
	store := NewCartStore(backend, signedInAs(alice))
	ctx := context.Background()
	p := product("p1", "10")

	_, err := store.Add(ctx, p, 1)
	require.NoError(t, err)
	saved, err := store.Add(ctx, p, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, saved.Quantity)

	items := store.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].Quantity)
	assert.Equal(t, "line-p1", items[0].ID, "reconciled with the saved line")
	assert.Equal(t, "p1", items[0].Product.ID, "local product details kept")
	assert.Equal(t, 3, store.Count())
	assert.True(t, decimal.NewFromInt(30).Equal(store.Total()))
}

func TestCartStoreRollsBackFailedAdd(t *testing.T) {
	backend := newFakeCartBackend()
	store := NewCartStore(backend, signedInAs(alice))
	ctx := context.Background()
	p := product("p1", "10")

	_, err := store.Add(ctx, p, 1)
	require.NoError(t, err)

	backend.fail(apperr.Unavailable("add to cart", errors.New("timeout")))
	_, err = store.Add(ctx, p, 4)
	assert.ErrorIs(t, err, apperr.ErrDataUnavailable)
	assert.Equal(t, 1, store.Quantity("p1"))

	_, err = store.Add(ctx, product("p2", "5"), 1)
	require.Error(t, err)
	assert.Equal(t, 0, store.Quantity("p2"))
	assert.Len(t, store.Items(), 1)
}

func TestCartStoreShowsOptimisticLineBeforeSave(t *testing.T) {
	backend := newFakeCartBackend()
	backend.hold = make(chan struct{})
	store := NewCartStore(backend, signedInAs(alice))

	done := make(chan error, 1)
	go func() {
		_, err := store.Add(context.Background(), product("p1", "10"), 2)
		done <- err
	}()

	assert.Eventually(t, func() bool { return store.Quantity("p1") == 2 }, time.Second, 5*time.Millisecond)
	close(backend.hold)
	require.NoError(t, <-done)
	assert.Equal(t, 2, store.Quantity("p1"))
}

func TestCartStoreUpdateAndRemove(t *testing.T) {
	backend := newFakeCartBackend()
	store := NewCartStore(backend, signedInAs(alice))
	ctx := context.Background()

	_, err := store.Add(ctx, product("p1", "10"), 1)
	require.NoError(t, err)

	_, err = store.Update(ctx, "p1", 5)
	require.NoError(t, err)
	assert.Equal(t, 5, store.Quantity("p1"))

	_, err = store.Update(ctx, "p1", -1)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = store.Update(ctx, "missing", 2)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	backend.fail(apperr.Unavailable("remove from cart", nil))
	require.Error(t, store.Remove(ctx, "p1"))
	assert.Equal(t, 5, store.Quantity("p1"), "failed remove restores the line")

	backend.fail(nil)
	item, err := store.Update(ctx, "p1", 0)
	require.NoError(t, err)
	assert.Nil(t, item)
	assert.Empty(t, store.Items())
}

func TestCartStoreRequiresSignedInUser(t *testing.T) {
	session := &Session{}
	store := NewCartStore(newFakeCartBackend(), session)
	ctx := context.Background()

	_, err := store.Add(ctx, product("p1", "10"), 1)
	assert.ErrorIs(t, err, apperr.ErrAuthRequired)
	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, apperr.ErrAuthRequired)
	assert.ErrorIs(t, store.Remove(ctx, "p1"), apperr.ErrAuthRequired)
}

func TestCartStoreLoadAndUserSwitch(t *testing.T) {
	backend := newFakeCartBackend()
	session := signedInAs(alice)
	store := NewCartStore(backend, session)
	ctx := context.Background()

	_, err := store.Add(ctx, product("p1", "10"), 2)
	require.NoError(t, err)

	session.SignIn(models.User{ID: "user-bob"})
	_, err = store.Add(ctx, product("p2", "5"), 1)
	require.NoError(t, err)
	assert.Equal(t, 0, store.Quantity("p1"), "lines of the previous user are dropped")

	session.SignIn(alice)
	items, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "p1", items[0].ProductID)
	assert.Equal(t, 2, items[0].Quantity)

	store.Reset()
	assert.Empty(t, store.Items())
}
