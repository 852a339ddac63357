package store

import (
	"context"
	"database/sql"
	"errors"

	"storefront/internal/apperr"
	"storefront/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const orderSelect = `id, user_id, status, payment_method, payment_id, total,
	COALESCE(idempotency_key, '') AS idempotency_key, created_at, updated_at`

// CreateOrderTx writes the order header and items and removes exactly the
// given cart lines, all in one transaction. Item prices come from the caller.
func (s *Store) CreateOrderTx(ctx context.Context, order *models.Order, cartItemIDs []string) error {
	return s.inTx(ctx, "create order", func(tx *sqlx.Tx) error {
		var key any
		if order.IdempotencyKey != "" {
			key = order.IdempotencyKey
		}
		err := tx.QueryRowxContext(ctx, `
			INSERT INTO orders (user_id, status, payment_method, payment_id, total, idempotency_key)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id, created_at, updated_at`,
			order.UserID, order.Status, order.PaymentMethod, order.PaymentID, order.Total, key,
		).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
		if err != nil {
			return mapErr("insert order", err)
		}

		for i := range order.Items {
			item := &order.Items[i]
			item.OrderID = order.ID
			err := tx.QueryRowxContext(ctx, `
				INSERT INTO order_items (order_id, product_id, price, quantity)
				VALUES ($1, $2, $3, $4)
				RETURNING id`,
				item.OrderID, item.ProductID, item.Price, item.Quantity,
			).Scan(&item.ID)
			if err != nil {
				return mapErr("insert order item", err)
			}
		}

		if len(cartItemIDs) > 0 {
			_, err := tx.ExecContext(ctx,
				"DELETE FROM cart_items WHERE user_id = $1 AND id::text = ANY($2)",
				order.UserID, pq.Array(cartItemIDs))
			if err != nil {
				return mapErr("clear cart lines", err)
			}
		}
		return nil
	})
}

// GetOrderByID retrieves an order and its items
func (s *Store) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT "+orderSelect+" FROM orders WHERE id = $1", id)
	if err != nil {
		return nil, notFound("order", id, "get order", err)
	}
	if order.Items, err = s.GetOrderItems(ctx, order.ID); err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByIdempotencyKey returns the user's order created with key, or nil
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, userID, key string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		"SELECT "+orderSelect+" FROM orders WHERE user_id = $1 AND idempotency_key = $2", userID, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapErr("get order by idempotency key", err)
	}
	if order.Items, err = s.GetOrderItems(ctx, order.ID); err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByPaymentID finds the order a gateway reference belongs to
func (s *Store) GetOrderByPaymentID(ctx context.Context, paymentID string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		"SELECT "+orderSelect+" FROM orders WHERE payment_id = $1 ORDER BY created_at DESC LIMIT 1", paymentID)
	if err != nil {
		return nil, notFound("payment", paymentID, "get order by payment", err)
	}
	return &order, nil
}

// GetOrderItems lists an order's items with product titles
func (s *Store) GetOrderItems(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	items := []models.OrderItem{}
	err := s.db.SelectContext(ctx, &items, `
		SELECT oi.id, oi.order_id, oi.product_id, oi.price, oi.quantity, p.title
		FROM order_items oi JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = $1
		ORDER BY p.title, oi.id`, orderID)
	if err != nil {
		return nil, mapErr("get order items", err)
	}
	return items, nil
}

// GetOrdersByUserID lists a user's orders, newest first
func (s *Store) GetOrdersByUserID(ctx context.Context, userID string) ([]models.Order, error) {
	orders := []models.Order{}
	err := s.db.SelectContext(ctx, &orders,
		"SELECT "+orderSelect+" FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id", userID)
	if err != nil {
		return nil, mapErr("get orders", err)
	}
	return orders, nil
}

// ListOrders lists all orders for the dashboard, optionally by status
func (s *Store) ListOrders(ctx context.Context, status string, limit, offset int) ([]models.Order, error) {
	orders := []models.Order{}
	err := s.db.SelectContext(ctx, &orders, `
		SELECT `+orderSelect+` FROM orders
		WHERE ($1::text = '' OR status = $1)
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`, status, limit, offset)
	if err != nil {
		return nil, mapErr("list orders", err)
	}
	return orders, nil
}

// UpdateOrderStatus updates order status
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID, status string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2",
		status, orderID)
	if err != nil {
		return notFound("order", orderID, "update order status", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("order", orderID)
	}
	return nil
}

// SettleOrder moves a pending order to status. It reports false when the
// order had already left pending, so only one caller ever settles it.
func (s *Store) SettleOrder(ctx context.Context, orderID, status string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3",
		status, orderID, models.OrderStatusPending)
	if err != nil {
		return false, notFound("order", orderID, "settle order", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, mapErr("settle order", err)
	}
	return n == 1, nil
}

// HasPurchased reports whether the user holds a paid or fulfilled order
// containing the product
func (s *Store) HasPurchased(ctx context.Context, userID, productID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `
		SELECT EXISTS(
			SELECT 1 FROM order_items oi JOIN orders o ON o.id = oi.order_id
			WHERE o.user_id = $1 AND oi.product_id = $2 AND o.status IN ($3, $4)
		)`, userID, productID, models.OrderStatusPaid, models.OrderStatusFulfilled)
	if err != nil {
		return false, notFound("product", productID, "check purchase", err)
	}
	return exists, nil
}

