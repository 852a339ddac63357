package service

import (
	"context"
	"strings"

	"storefront/internal/apperr"
	"storefront/internal/broker"
	"storefront/internal/models"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// OrderService handles order reads and hosted payment confirmation
type OrderService struct {
	store  OrderStore
	events Events
	logger *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(store OrderStore, events Events) *OrderService {
	return &OrderService{
		store:  store,
		events: events,
		logger: util.GetLogger(),
	}
}

// Orders lists the user's orders, newest first
func (s *OrderService) Orders(ctx context.Context, user models.User) ([]models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Orders")
	defer span.End()

	if err := requireUser(user, "list orders"); err != nil {
		return nil, err
	}
	return s.store.GetOrdersByUserID(ctx, user.ID)
}

// Order returns one order with its items. Orders of other users look missing
// unless the caller is an admin.
func (s *OrderService) Order(ctx context.Context, user models.User, orderID string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Order")
	defer span.End()

	if err := requireUser(user, "view order"); err != nil {
		return nil, err
	}
	if strings.TrimSpace(orderID) == "" {
		return nil, apperr.Invalid("order id is required")
	}

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != user.ID && !user.IsAdmin() {
		return nil, apperr.NotFound("order", orderID)
	}
	return order, nil
}

// ConfirmPayment settles a pending hosted-checkout order. Orders that are no
// longer pending are returned unchanged, so repeated or conflicting
// notifications are harmless: only the call that moves the order out of
// pending counts it and announces it.
func (s *OrderService) ConfirmPayment(ctx context.Context, paymentRef string, succeeded bool) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ConfirmPayment")
	defer span.End()

	if strings.TrimSpace(paymentRef) == "" {
		return nil, apperr.Invalid("payment reference is required")
	}

	found, err := s.store.GetOrderByPaymentID(ctx, paymentRef)
	if err != nil {
		return nil, err
	}
	order, err := s.store.GetOrderByID(ctx, found.ID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderStatusPending {
		return s.alreadySettled(order), nil
	}

	status := models.OrderStatusCancelled
	if succeeded {
		status = models.OrderStatusPaid
	}
	settled, err := s.store.SettleOrder(ctx, order.ID, status)
	if err != nil {
		return nil, err
	}
	if !settled {
		// Another notification won the race; report what it decided.
		current, err := s.store.GetOrderByID(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		return s.alreadySettled(current), nil
	}
	order.Status = status

	if succeeded {
		util.PaymentSuccessTotal.Inc()
	} else {
		util.PaymentFailedTotal.Inc()
	}
	s.logger.Info("Hosted payment confirmed",
		zap.String("order_id", order.ID),
		zap.String("payment_id", paymentRef),
		zap.String("status", status))

	if succeeded && s.events != nil {
		items := make([]models.OrderItemData, 0, len(order.Items))
		for _, it := range order.Items {
			items = append(items, models.OrderItemData{ProductID: it.ProductID, Quantity: it.Quantity, Price: it.Price})
		}
		event := &models.OrderPlacedEvent{
			BaseEvent:     broker.NewBaseEvent(models.EventTypeOrderPlaced),
			OrderID:       order.ID,
			UserID:        order.UserID,
			Status:        status,
			Total:         order.Total,
			PaymentMethod: order.PaymentMethod,
			Items:         items,
		}
		if err := s.events.PublishOrderPlaced(ctx, event); err != nil {
			s.logger.Error("Failed to publish OrderPlaced event", zap.Error(err))
		}
	}
	return order, nil
}

func (s *OrderService) alreadySettled(order *models.Order) *models.Order {
	s.logger.Info("Payment confirmation for settled order ignored",
		zap.String("order_id", order.ID),
		zap.String("status", order.Status))
	return order
}
