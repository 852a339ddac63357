package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventWriter is what EventPublisher needs from a producer
type EventWriter interface {
	PublishEvent(ctx context.Context, key string, event interface{}) error
}

// NewBaseEvent stamps a fresh event id and time
func NewBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.NewString(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
}

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer EventWriter
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer EventWriter) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishOrderPlaced publishes OrderPlaced event
func (ep *EventPublisher) PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	return ep.producer.PublishEvent(ctx, "order-"+event.OrderID, event)
}

// PublishCheckoutFailed publishes CheckoutFailed event
func (ep *EventPublisher) PublishCheckoutFailed(ctx context.Context, event *models.CheckoutFailedEvent) error {
	return ep.producer.PublishEvent(ctx, "user-"+event.UserID, event)
}

// PublishProductChanged publishes ProductChanged event
func (ep *EventPublisher) PublishProductChanged(ctx context.Context, event *models.ProductChangedEvent) error {
	return ep.producer.PublishEvent(ctx, "product-"+event.ProductID, event)
}

// PublishProductDownloaded publishes ProductDownloaded event
func (ep *EventPublisher) PublishProductDownloaded(ctx context.Context, event *models.ProductDownloadedEvent) error {
	return ep.producer.PublishEvent(ctx, "product-"+event.ProductID, event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onProductChanged    func(context.Context, *models.ProductChangedEvent) error
	onProductDownloaded func(context.Context, *models.ProductDownloadedEvent) error
	onOrderPlaced       func(context.Context, *models.OrderPlacedEvent) error
	logger              *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnProductChanged registers a handler for ProductChanged events
func (eh *EventHandler) OnProductChanged(handler func(context.Context, *models.ProductChangedEvent) error) {
	eh.onProductChanged = handler
}

// OnProductDownloaded registers a handler for ProductDownloaded events
func (eh *EventHandler) OnProductDownloaded(handler func(context.Context, *models.ProductDownloadedEvent) error) {
	eh.onProductDownloaded = handler
}

// OnOrderPlaced registers a handler for OrderPlaced events
func (eh *EventHandler) OnOrderPlaced(handler func(context.Context, *models.OrderPlacedEvent) error) {
	eh.onOrderPlaced = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeProductChanged:
		if eh.onProductChanged != nil {
			var event models.ProductChangedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal ProductChanged event: %w", err)
			}
			return eh.onProductChanged(ctx, &event)
		}

	case models.EventTypeProductDownloaded:
		if eh.onProductDownloaded != nil {
			var event models.ProductDownloadedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal ProductDownloaded event: %w", err)
			}
			return eh.onProductDownloaded(ctx, &event)
		}

	case models.EventTypeOrderPlaced:
		if eh.onOrderPlaced != nil {
			var event models.OrderPlacedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal OrderPlaced event: %w", err)
			}
			return eh.onOrderPlaced(ctx, &event)
		}

	default:
		eh.logger.Debug("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
