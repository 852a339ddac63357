package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/models"
	"storefront/internal/payment"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var bob = models.User{ID: "u-bob", Email: "bob@example.com", Role: models.RoleCustomer}

type checkoutFixture struct {
	store   *memStore
	locker  *memLocker
	gateway *stubGateway
	events  *memEvents
	svc     *CheckoutService
}

func newCheckoutFixture(retries int) *checkoutFixture {
	f := &checkoutFixture{
		store:   newMemStore(),
		locker:  newMemLocker(),
		gateway: &stubGateway{},
		events:  &memEvents{},
	}
	f.svc = NewCheckoutService(f.store, f.locker, f.gateway, f.events, CheckoutOptions{
		LockTTL:        time.Second,
		PersistRetries: retries,
		RetryBackoff:   time.Millisecond,
	})
	return f
}

func (f *checkoutFixture) fillCart(t *testing.T, user models.User, product *models.Product, qty int) {
	t.Helper()
	_, err := f.store.AddToCart(context.Background(), user.ID, product.ID, qty)
	require.NoError(t, err)
}

func TestCheckoutFreezesPricesAtSnapshot(t *testing.T) {
	f := newCheckoutFixture(0)
	plugin := f.store.addProduct("SEO Plugin", "10.00")
	theme := f.store.addProduct("Theme", "5.50")
	f.fillCart(t, bob, plugin, 2)
	f.fillCart(t, bob, theme, 1)

	f.gateway.onCharge = func(snap models.CartSnapshot) (payment.Receipt, error) {
		// An admin reprices while the buyer is paying.
		f.store.setPrice(plugin.ID, "99.00")
		return payment.Receipt{Reference: "sim_freeze", Status: payment.StatusSucceeded, Method: payment.MethodCard}, nil
	}

	res, err := f.svc.Checkout(context.Background(), bob, "key-1")
	require.NoError(t, err)

	order := res.Order
	assert.Equal(t, models.OrderStatusPaid, order.Status)
	assert.Equal(t, "sim_freeze", order.PaymentID)
	assert.True(t, order.Total.Equal(decimal.RequireFromString("25.50")), order.Total.String())
	require.Len(t, order.Items, 2)
	for _, it := range order.Items {
		if it.ProductID == plugin.ID {
			assert.True(t, it.Price.Equal(decimal.RequireFromString("10.00")))
			assert.Equal(t, 2, it.Quantity)
		}
	}
	require.Len(t, f.gateway.charges, 1)
	assert.True(t, f.gateway.charges[0].Total.Equal(order.Total))

	cart, _ := f.store.GetCart(context.Background(), bob.ID)
	assert.Empty(t, cart)
	require.Len(t, f.events.placed, 1)
	assert.Equal(t, order.ID, f.events.placed[0].OrderID)
	assert.False(t, f.locker.isHeld("checkout:"+bob.ID))
	assert.Equal(t, 1, f.locker.extended)
}

func TestCheckoutKeepsLinesAddedAfterSnapshot(t *testing.T) {
	f := newCheckoutFixture(0)
	plugin := f.store.addProduct("Plugin", "10")
	late := f.store.addProduct("Late", "3")
	f.fillCart(t, bob, plugin, 1)

	f.gateway.onCharge = func(snap models.CartSnapshot) (payment.Receipt, error) {
		_, err := f.store.AddToCart(context.Background(), bob.ID, late.ID, 1)
		require.NoError(t, err)
		return payment.Receipt{Reference: "sim_x", Status: payment.StatusSucceeded, Method: payment.MethodCard}, nil
	}

	_, err := f.svc.Checkout(context.Background(), bob, "")
	require.NoError(t, err)

	cart, _ := f.store.GetCart(context.Background(), bob.ID)
	require.Len(t, cart, 1)
	assert.Equal(t, late.ID, cart[0].ProductID)
}

func TestCheckoutRefundsWhenOrderCannotBeWritten(t *testing.T) {
	f := newCheckoutFixture(2)
	plugin := f.store.addProduct("Plugin", "10")
	f.fillCart(t, bob, plugin, 1)

	down := apperr.Unavailable("create order", errors.New("connection reset"))
	f.store.orderErrs = []error{down, down, down}

	_, err := f.svc.Checkout(context.Background(), bob, "key-2")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrCheckout)
	assert.False(t, apperr.Retryable(err))

	var ce *apperr.CheckoutError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "sim_1", ce.PaymentReference)
	assert.True(t, ce.Refunded)

	assert.Equal(t, 3, f.store.orderWrites)
	assert.Equal(t, []string{"sim_1"}, f.gateway.refunds)
	require.Len(t, f.events.failed, 1)
	assert.Equal(t, "sim_1", f.events.failed[0].PaymentReference)
	assert.True(t, f.events.failed[0].Refunded)

	cart, _ := f.store.GetCart(context.Background(), bob.ID)
	assert.Len(t, cart, 1)
}

func TestCheckoutReportsFailedRefund(t *testing.T) {
	f := newCheckoutFixture(0)
	plugin := f.store.addProduct("Plugin", "10")
	f.fillCart(t, bob, plugin, 1)
	f.store.orderErrs = []error{apperr.Invalid("constraint")}
	f.gateway.refundErr = errors.New("gateway down")

	_, err := f.svc.Checkout(context.Background(), bob, "")

	var ce *apperr.CheckoutError
	require.True(t, errors.As(err, &ce))
	assert.False(t, ce.Refunded)
	assert.Equal(t, 1, f.store.orderWrites, "validation errors are not retried")
	require.Len(t, f.events.failed, 1)
	assert.False(t, f.events.failed[0].Refunded)
}

func TestCheckoutRetriesTransientWriteFailure(t *testing.T) {
	f := newCheckoutFixture(2)
	plugin := f.store.addProduct("Plugin", "10")
	f.fillCart(t, bob, plugin, 1)
	f.store.orderErrs = []error{apperr.Unavailable("create order", nil)}

	res, err := f.svc.Checkout(context.Background(), bob, "")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Order.ID)
	assert.Equal(t, 2, f.store.orderWrites)
	assert.Empty(t, f.gateway.refunds)
}

func TestCheckoutReplaysIdempotencyKey(t *testing.T) {
	f := newCheckoutFixture(0)
	plugin := f.store.addProduct("Plugin", "10")
	f.fillCart(t, bob, plugin, 1)

	first, err := f.svc.Checkout(context.Background(), bob, "same-key")
	require.NoError(t, err)

	second, err := f.svc.Checkout(context.Background(), bob, "same-key")
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.Equal(t, first.Receipt.Reference, second.Receipt.Reference)
	assert.Len(t, f.gateway.charges, 1)
}

func TestCheckoutReplaysKeyCommittedBeforeLock(t *testing.T) {
	f := newCheckoutFixture(0)
	plugin := f.store.addProduct("Plugin", "10")
	theme := f.store.addProduct("Theme", "5")
	f.fillCart(t, bob, plugin, 1)

	var first *CheckoutResult
	// The first attempt finishes after the retry's lookup but before it locks.
	f.store.onKeyLookup = func() {
		var err error
		first, err = f.svc.Checkout(context.Background(), bob, "same-key")
		require.NoError(t, err)
		f.fillCart(t, bob, theme, 1)
	}

	retry, err := f.svc.Checkout(context.Background(), bob, "same-key")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.True(t, retry.Replayed)
	assert.Equal(t, first.Order.ID, retry.Order.ID)
	assert.Len(t, f.gateway.charges, 1)
	assert.Empty(t, f.gateway.refunds)

	cart, err := f.store.GetCart(context.Background(), bob.ID)
	require.NoError(t, err)
	require.Len(t, cart, 1, "lines added later stay for the next checkout")
	assert.Equal(t, theme.ID, cart[0].ProductID)
}

func TestCheckoutRejectsEmptyCart(t *testing.T) {
	f := newCheckoutFixture(0)

	_, err := f.svc.Checkout(context.Background(), bob, "")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Empty(t, f.gateway.charges)
	assert.False(t, f.locker.isHeld("checkout:"+bob.ID))
}

func TestCheckoutRequiresUser(t *testing.T) {
	f := newCheckoutFixture(0)

	_, err := f.svc.Checkout(context.Background(), models.User{}, "")
	assert.ErrorIs(t, err, apperr.ErrAuthRequired)
}

func TestCheckoutRejectsConcurrentCheckout(t *testing.T) {
	f := newCheckoutFixture(0)
	plugin := f.store.addProduct("Plugin", "10")
	f.fillCart(t, bob, plugin, 1)

	_, err := f.locker.AcquireLock(context.Background(), "checkout:"+bob.ID, time.Second)
	require.NoError(t, err)

	_, err = f.svc.Checkout(context.Background(), bob, "")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Empty(t, f.gateway.charges)
}

func TestCheckoutDeclined(t *testing.T) {
	f := newCheckoutFixture(0)
	plugin := f.store.addProduct("Plugin", "10")
	f.fillCart(t, bob, plugin, 1)
	f.gateway.onCharge = func(models.CartSnapshot) (payment.Receipt, error) {
		return payment.Receipt{}, payment.ErrDeclined
	}

	_, err := f.svc.Checkout(context.Background(), bob, "")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.ErrorIs(t, err, payment.ErrDeclined)
	assert.Zero(t, f.store.orderWrites)
	assert.Empty(t, f.gateway.refunds)
}

func TestCheckoutGatewayFailureIsRetryable(t *testing.T) {
	f := newCheckoutFixture(0)
	plugin := f.store.addProduct("Plugin", "10")
	f.fillCart(t, bob, plugin, 1)
	f.gateway.onCharge = func(models.CartSnapshot) (payment.Receipt, error) {
		return payment.Receipt{}, errors.New("timeout")
	}

	_, err := f.svc.Checkout(context.Background(), bob, "")
	assert.True(t, apperr.Retryable(err))
}

func TestCheckoutFreeCartSkipsGateway(t *testing.T) {
	f := newCheckoutFixture(0)
	free := f.store.addProduct("Free Plugin", "0")
	f.fillCart(t, bob, free, 1)

	res, err := f.svc.Checkout(context.Background(), bob, "")
	require.NoError(t, err)
	assert.Equal(t, payment.MethodFree, res.Order.PaymentMethod)
	assert.Equal(t, models.OrderStatusPaid, res.Order.Status)
	assert.Empty(t, f.gateway.charges)
}

func TestHostedCheckoutConfirmation(t *testing.T) {
	f := newCheckoutFixture(0)
	plugin := f.store.addProduct("Plugin", "10")
	f.fillCart(t, bob, plugin, 1)
	f.gateway.onCharge = func(models.CartSnapshot) (payment.Receipt, error) {
		return payment.Receipt{Reference: "hs_1", RedirectURL: "https://pay.test/hs_1", Status: payment.StatusPending, Method: payment.MethodHosted}, nil
	}

	res, err := f.svc.Checkout(context.Background(), bob, "")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, res.Order.Status)
	assert.Equal(t, "https://pay.test/hs_1", res.Receipt.RedirectURL)

	orders := NewOrderService(f.store, f.events)
	confirmed, err := orders.ConfirmPayment(context.Background(), "hs_1", true)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, confirmed.Status)

	// A second notification leaves the order alone.
	again, err := orders.ConfirmPayment(context.Background(), "hs_1", false)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, again.Status)

	_, err = orders.ConfirmPayment(context.Background(), "hs_unknown", true)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestConcurrentConfirmationsSettleOnce(t *testing.T) {
	cases := []struct {
		name     string
		outcomes [2]bool
	}{
		{"success and failure", [2]bool{true, false}},
		{"two successes", [2]bool{true, true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newCheckoutFixture(0)
			plugin := f.store.addProduct("Plugin", "10")
			f.fillCart(t, bob, plugin, 1)
			f.gateway.onCharge = func(models.CartSnapshot) (payment.Receipt, error) {
				return payment.Receipt{Reference: "hs_race", Status: payment.StatusPending, Method: payment.MethodHosted}, nil
			}
			res, err := f.svc.Checkout(context.Background(), bob, "")
			require.NoError(t, err)
			require.Equal(t, models.OrderStatusPending, res.Order.Status)
			placedBefore := len(f.events.placed)

			// Both notifications read the order as pending before either writes.
			var reads atomic.Int32
			bothRead := make(chan struct{})
			f.store.onOrderRead = func() {
				if reads.Add(1) == 2 {
					close(bothRead)
				}
				<-bothRead
			}

			orders := NewOrderService(f.store, f.events)
			results := make([]*models.Order, len(tc.outcomes))
			var wg sync.WaitGroup
			for i, succeeded := range tc.outcomes {
				i, succeeded := i, succeeded
				wg.Add(1)
				go func() {
					defer wg.Done()
					o, err := orders.ConfirmPayment(context.Background(), "hs_race", succeeded)
					assert.NoError(t, err)
					results[i] = o
				}()
			}
			wg.Wait()
			f.store.onOrderRead = nil

			final, err := f.store.GetOrderByID(context.Background(), res.Order.ID)
			require.NoError(t, err)
			for _, o := range results {
				require.NotNil(t, o)
				assert.Equal(t, final.Status, o.Status, "every caller sees the one settled status")
			}

			placed := len(f.events.placed) - placedBefore
			if final.Status == models.OrderStatusPaid {
				assert.Equal(t, 1, placed)
			} else {
				assert.Equal(t, models.OrderStatusCancelled, final.Status)
				assert.Zero(t, placed)
			}
			if tc.outcomes[1] {
				assert.Equal(t, models.OrderStatusPaid, final.Status)
			}
		})
	}
}

func TestOrderVisibility(t *testing.T) {
	f := newCheckoutFixture(0)
	plugin := f.store.addProduct("Plugin", "10")
	f.fillCart(t, bob, plugin, 1)
	res, err := f.svc.Checkout(context.Background(), bob, "")
	require.NoError(t, err)

	orders := NewOrderService(f.store, nil)

	own, err := orders.Order(context.Background(), bob, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Order.ID, own.ID)

	eve := models.User{ID: "u-eve", Role: models.RoleCustomer}
	_, err = orders.Order(context.Background(), eve, res.Order.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	admin := models.User{ID: "u-root", Role: models.RoleAdmin}
	_, err = orders.Order(context.Background(), admin, res.Order.ID)
	assert.NoError(t, err)

	list, err := orders.Orders(context.Background(), bob)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
