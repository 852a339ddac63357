package worker

import (
	"context"

	"storefront/internal/broker"
	"storefront/internal/models"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// CatalogCache is the part of the cache the worker invalidates
type CatalogCache interface {
	InvalidateCatalog(ctx context.Context) (int64, error)
}

// DownloadCounter applies download events at most once
type DownloadCounter interface {
	IncrementDownloadCount(ctx context.Context, eventID, productID string) (bool, error)
}

// Subscriber delivers messages to a handler until ctx ends
type Subscriber interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// EventWorker applies storefront events in the background
type EventWorker struct {
	consumer Subscriber
	handler  *broker.EventHandler
	cache    CatalogCache
	counter  DownloadCounter
	logger   *zap.Logger
}

// NewEventWorker creates a new event worker. cache may be nil.
func NewEventWorker(consumer Subscriber, cache CatalogCache, counter DownloadCounter) *EventWorker {
	w := &EventWorker{
		consumer: consumer,
		handler:  broker.NewEventHandler(),
		cache:    cache,
		counter:  counter,
		logger:   util.GetLogger(),
	}

	w.handler.OnProductChanged(w.handleProductChanged)
	w.handler.OnProductDownloaded(w.handleProductDownloaded)
	w.handler.OnOrderPlaced(w.handleOrderPlaced)
	return w
}

// Handler exposes the routing handler
func (w *EventWorker) Handler() broker.MessageHandler {
	return w.handler.HandleMessage
}

// Start starts the worker
func (w *EventWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting event worker")
	return w.consumer.StartConsuming(ctx, w.handler.HandleMessage)
}

// Stop stops the worker
func (w *EventWorker) Stop() error {
	w.logger.Info("Stopping event worker")
	return w.consumer.Close()
}

func (w *EventWorker) handleProductChanged(ctx context.Context, event *models.ProductChangedEvent) error {
	ctx, span := util.StartSpan(ctx, "EventWorker.ProductChanged")
	defer span.End()

	if w.cache == nil {
		return nil
	}
	gen, err := w.cache.InvalidateCatalog(ctx)
	if err != nil {
		util.EventsProcessedTotal.WithLabelValues(event.EventType, "error").Inc()
		return err
	}
	util.CatalogInvalidationsTotal.Inc()
	util.EventsProcessedTotal.WithLabelValues(event.EventType, "ok").Inc()
	w.logger.Info("Catalog cache invalidated",
		zap.String("product_id", event.ProductID),
		zap.String("action", event.Action),
		zap.Int64("generation", gen))
	return nil
}

func (w *EventWorker) handleProductDownloaded(ctx context.Context, event *models.ProductDownloadedEvent) error {
	ctx, span := util.StartSpan(ctx, "EventWorker.ProductDownloaded")
	defer span.End()

	applied, err := w.counter.IncrementDownloadCount(ctx, event.EventID, event.ProductID)
	if err != nil {
		util.EventsProcessedTotal.WithLabelValues(event.EventType, "error").Inc()
		return err
	}
	if !applied {
		util.EventsProcessedTotal.WithLabelValues(event.EventType, "duplicate").Inc()
		w.logger.Info("Event already processed, skipping", zap.String("event_id", event.EventID))
		return nil
	}
	util.EventsProcessedTotal.WithLabelValues(event.EventType, "ok").Inc()
	return nil
}

func (w *EventWorker) handleOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	util.EventsProcessedTotal.WithLabelValues(event.EventType, "ok").Inc()
	w.logger.Info("Order placed",
		zap.String("order_id", event.OrderID),
		zap.String("user_id", event.UserID),
		zap.String("status", event.Status),
		zap.String("total", event.Total.String()),
		zap.Int("items", len(event.Items)))
	return nil
}
