package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderPlaced       = "ORDER_PLACED"
	EventTypeCheckoutFailed    = "CHECKOUT_FAILED"
	EventTypeProductChanged    = "PRODUCT_CHANGED"
	EventTypeProductDownloaded = "PRODUCT_DOWNLOADED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderPlacedEvent published when an order is persisted
type OrderPlacedEvent struct {
	BaseEvent
	OrderID       string          `json:"order_id"`
	UserID        string          `json:"user_id"`
	Status        string          `json:"status"`
	Total         decimal.Decimal `json:"total"`
	PaymentMethod string          `json:"payment_method"`
	Items         []OrderItemData `json:"items"`
}

// CheckoutFailedEvent published when a charged checkout could not be persisted
type CheckoutFailedEvent struct {
	BaseEvent
	UserID           string          `json:"user_id"`
	PaymentReference string          `json:"payment_reference"`
	Total            decimal.Decimal `json:"total"`
	Refunded         bool            `json:"refunded"`
	Reason           string          `json:"reason"`
}

// ProductChangedEvent published after an admin mutation of a product or its versions
type ProductChangedEvent struct {
	BaseEvent
	ProductID string `json:"product_id"`
	Action    string `json:"action"`
}

// ProductDownloadedEvent published when a download URL is handed out
type ProductDownloadedEvent struct {
	BaseEvent
	ProductID string `json:"product_id"`
	VersionID string `json:"version_id"`
	UserID    string `json:"user_id"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// Product change actions
const (
	ProductActionCreated         = "created"
	ProductActionUpdated         = "updated"
	ProductActionDeleted         = "deleted"
	ProductActionVersionAdded    = "version_added"
	ProductActionReviewModerated = "review_moderated"
)
