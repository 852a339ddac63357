package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/broker"
	"storefront/internal/models"
	"storefront/internal/payment"
	"storefront/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CheckoutService turns a cart into a paid (or pending) order
type CheckoutService struct {
	store   OrderStore
	locker  Locker
	gateway payment.Gateway
	events  Events
	logger  *zap.Logger

	lockTTL        time.Duration
	persistRetries int
	retryBackoff   time.Duration
	persistTimeout time.Duration
	now            func() time.Time
}

// CheckoutOptions tunes CheckoutService
type CheckoutOptions struct {
	LockTTL        time.Duration
	PersistRetries int
	RetryBackoff   time.Duration
	PersistTimeout time.Duration
}

// NewCheckoutService creates a new checkout service. locker may be nil when
// only one instance runs.
func NewCheckoutService(
	store OrderStore,
	locker Locker,
	gateway payment.Gateway,
	events Events,
	opts CheckoutOptions,
) *CheckoutService {
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Second
	}
	if opts.PersistRetries < 0 {
		opts.PersistRetries = 0
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = 15 * time.Second
	}
	return &CheckoutService{
		store:          store,
		locker:         locker,
		gateway:        gateway,
		events:         events,
		logger:         util.GetLogger(),
		lockTTL:        opts.LockTTL,
		persistRetries: opts.PersistRetries,
		retryBackoff:   opts.RetryBackoff,
		persistTimeout: opts.PersistTimeout,
		now:            time.Now,
	}
}

// CheckoutResult is the outcome of a checkout
type CheckoutResult struct {
	Order    *models.Order   `json:"order"`
	Receipt  payment.Receipt `json:"receipt"`
	Replayed bool            `json:"replayed,omitempty"`
}

// Checkout charges the user's cart as it is at this instant and records the
// order with those prices. A repeated idempotency key returns the order
// created by the first call.
func (s *CheckoutService) Checkout(ctx context.Context, user models.User, idempotencyKey string) (*CheckoutResult, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.Checkout")
	defer span.End()

	if user.ID == "" {
		return nil, apperr.AuthRequired("checkout")
	}
	util.CheckoutsStartedTotal.Inc()

	if res, err := s.findReplay(ctx, user.ID, idempotencyKey); err != nil || res != nil {
		return res, err
	}

	lock, err := s.lock(ctx, user.ID)
	if err != nil {
		util.CheckoutsFailedTotal.WithLabelValues("locked").Inc()
		return nil, err
	}
	defer lock.release(ctx)

	// The first attempt may have committed between the lookup above and the lock.
	if res, err := s.findReplay(ctx, user.ID, idempotencyKey); err != nil || res != nil {
		return res, err
	}

	items, err := s.store.GetCart(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		util.CheckoutsFailedTotal.WithLabelValues("empty_cart").Inc()
		return nil, apperr.Invalid("cart is empty")
	}

	snap := models.NewCartSnapshot(user.ID, items, s.now())
	snap.Email = user.Email

	receipt, err := s.charge(ctx, snap)
	if err != nil {
		util.CheckoutsFailedTotal.WithLabelValues("payment").Inc()
		util.EndSpan(span, err)
		return nil, err
	}

	order := orderFromSnapshot(snap, receipt, idempotencyKey)

	// The buyer has paid: finish the write even if the request goes away.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.persistTimeout)
	defer cancel()

	lock.extend(persistCtx)
	if err := s.persist(persistCtx, order, snap.CartItemIDs()); err != nil {
		return nil, s.compensate(persistCtx, snap, receipt, err)
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.String("order_id", order.ID),
		zap.String("user_id", user.ID),
		zap.String("status", order.Status),
		zap.String("total", order.Total.String()))

	s.publishOrderPlaced(persistCtx, order)

	return &CheckoutResult{Order: order, Receipt: receipt}, nil
}

// findReplay returns the result of an earlier checkout made with key, or nil
func (s *CheckoutService) findReplay(ctx context.Context, userID, key string) (*CheckoutResult, error) {
	if key == "" {
		return nil, nil
	}
	existing, err := s.store.GetOrderByIdempotencyKey(ctx, userID, key)
	if err != nil || existing == nil {
		return nil, err
	}
	s.logger.Info("Duplicate checkout request detected",
		zap.String("idempotency_key", key),
		zap.String("order_id", existing.ID))
	return replayed(existing), nil
}

func replayed(order *models.Order) *CheckoutResult {
	status := payment.StatusPending
	if order.Status != models.OrderStatusPending {
		status = payment.StatusSucceeded
	}
	return &CheckoutResult{
		Order: order,
		Receipt: payment.Receipt{
			Reference: order.PaymentID,
			Status:    status,
			Method:    order.PaymentMethod,
		},
		Replayed: true,
	}
}

type checkoutLock struct {
	s     *CheckoutService
	key   string
	token string
}

// lock takes the per-user checkout lock
func (s *CheckoutService) lock(ctx context.Context, userID string) (*checkoutLock, error) {
	l := &checkoutLock{s: s, key: "checkout:" + userID}
	if s.locker == nil {
		return l, nil
	}
	token, err := s.locker.AcquireLock(ctx, l.key, s.lockTTL)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, apperr.Invalid("another checkout is already in progress")
	}
	l.token = token
	return l, nil
}

// extend keeps the lock alive across a slow charge. Losing it is logged
// only; the order transaction still deletes exactly the snapshotted lines.
func (l *checkoutLock) extend(ctx context.Context) {
	if l.token == "" {
		return
	}
	ok, err := l.s.locker.ExtendLock(ctx, l.key, l.token, l.s.lockTTL)
	if err != nil || !ok {
		l.s.logger.Warn("Checkout lock expired before order write", zap.String("key", l.key), zap.Error(err))
	}
}

func (l *checkoutLock) release(ctx context.Context) {
	if l.token == "" {
		return
	}
	if err := l.s.locker.ReleaseLock(context.WithoutCancel(ctx), l.key, l.token); err != nil {
		l.s.logger.Warn("Failed to release checkout lock", zap.String("key", l.key), zap.Error(err))
	}
}

func (s *CheckoutService) charge(ctx context.Context, snap models.CartSnapshot) (payment.Receipt, error) {
	if snap.Total.IsZero() {
		return payment.Receipt{
			Reference: "free_" + uuid.NewString()[:8],
			Status:    payment.StatusSucceeded,
			Method:    payment.MethodFree,
		}, nil
	}

	receipt, err := s.gateway.Charge(ctx, snap)
	switch {
	case err == nil:
		return receipt, nil
	case errors.Is(err, payment.ErrDeclined):
		return payment.Receipt{}, fmt.Errorf("%w: %w", apperr.ErrValidation, err)
	default:
		return payment.Receipt{}, apperr.Unavailable("charge payment", err)
	}
}

func orderFromSnapshot(snap models.CartSnapshot, receipt payment.Receipt, key string) *models.Order {
	status := models.OrderStatusPaid
	if receipt.Status == payment.StatusPending {
		status = models.OrderStatusPending
	}
	order := &models.Order{
		UserID:         snap.UserID,
		Status:         status,
		PaymentMethod:  receipt.Method,
		PaymentID:      receipt.Reference,
		Total:          snap.Total,
		IdempotencyKey: key,
		Items:          make([]models.OrderItem, 0, len(snap.Lines)),
	}
	for _, line := range snap.Lines {
		order.Items = append(order.Items, models.OrderItem{
			ProductID: line.ProductID,
			Price:     line.UnitPrice,
			Quantity:  line.Quantity,
			Title:     line.Title,
		})
	}
	return order
}

// persist writes the order, retrying while the store reports it is
// unavailable.
func (s *CheckoutService) persist(ctx context.Context, order *models.Order, cartItemIDs []string) error {
	var err error
	for attempt := 0; attempt <= s.persistRetries; attempt++ {
		if attempt > 0 {
			util.OrderPersistRetriesTotal.Inc()
			s.logger.Warn("Retrying order write",
				zap.Int("attempt", attempt),
				zap.String("payment_id", order.PaymentID),
				zap.Error(err))
			select {
			case <-ctx.Done():
				return errors.Join(err, ctx.Err())
			case <-time.After(s.retryBackoff * time.Duration(attempt)):
			}
		}
		err = s.store.CreateOrderTx(ctx, order, cartItemIDs)
		if err == nil || !apperr.Retryable(err) {
			return err
		}
	}
	return err
}

// compensate refunds a charge whose order could not be written and reports
// the failure for reconciliation.
func (s *CheckoutService) compensate(ctx context.Context, snap models.CartSnapshot, receipt payment.Receipt, cause error) error {
	refunded := true
	if receipt.Method != payment.MethodFree {
		if err := s.gateway.Refund(ctx, receipt.Reference); err != nil {
			refunded = false
			util.CheckoutRefundsTotal.WithLabelValues("failed").Inc()
			s.logger.Error("Compensating refund failed",
				zap.String("payment_id", receipt.Reference),
				zap.String("user_id", snap.UserID),
				zap.Error(err))
		} else {
			util.CheckoutRefundsTotal.WithLabelValues("ok").Inc()
		}
	}

	util.CheckoutsFailedTotal.WithLabelValues("persist").Inc()
	s.logger.Error("Checkout failed after payment",
		zap.String("payment_id", receipt.Reference),
		zap.String("user_id", snap.UserID),
		zap.Bool("refunded", refunded),
		zap.Error(cause))

	event := &models.CheckoutFailedEvent{
		BaseEvent:        broker.NewBaseEvent(models.EventTypeCheckoutFailed),
		UserID:           snap.UserID,
		PaymentReference: receipt.Reference,
		Total:            snap.Total,
		Refunded:         refunded,
		Reason:           cause.Error(),
	}
	if s.events != nil {
		if err := s.events.PublishCheckoutFailed(ctx, event); err != nil {
			s.logger.Error("Failed to publish CheckoutFailed event", zap.Error(err))
		}
	}

	return &apperr.CheckoutError{PaymentReference: receipt.Reference, Refunded: refunded, Cause: cause}
}

func (s *CheckoutService) publishOrderPlaced(ctx context.Context, order *models.Order) {
	if s.events == nil {
		return
	}
	items := make([]models.OrderItemData, 0, len(order.Items))
	for _, it := range order.Items {
		items = append(items, models.OrderItemData{ProductID: it.ProductID, Quantity: it.Quantity, Price: it.Price})
	}
	event := &models.OrderPlacedEvent{
		BaseEvent:     broker.NewBaseEvent(models.EventTypeOrderPlaced),
		OrderID:       order.ID,
		UserID:        order.UserID,
		Status:        order.Status,
		Total:         order.Total,
		PaymentMethod: order.PaymentMethod,
		Items:         items,
	}
	if err := s.events.PublishOrderPlaced(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderPlaced event", zap.Error(err))
	}
}
