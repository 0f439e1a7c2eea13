package worker

import (
	"context"
	"fmt"

	"storefront/internal/broker"
	"storefront/internal/models"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// Archiver persists submitted orders. It reports false when the event or
// order was already stored.
type Archiver interface {
	ArchiveOrder(ctx context.Context, eventID string, order *models.Order) (bool, error)
}

// MessageSource feeds messages to a handler until ctx is done.
type MessageSource interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// OrderArchiveWorker copies ORDER_SUBMITTED events into the order archive.
type OrderArchiveWorker struct {
	consumer     MessageSource
	eventHandler *broker.EventHandler
	archiver     Archiver
	logger       *zap.Logger
}

// NewOrderArchiveWorker creates a new archive worker
func NewOrderArchiveWorker(consumer MessageSource, archiver Archiver) *OrderArchiveWorker {
	w := &OrderArchiveWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		archiver:     archiver,
		logger:       util.ComponentLogger("archive-worker"),
	}

	w.eventHandler.OnOrderSubmitted(w.handleOrderSubmitted)
	w.eventHandler.OnCartChanged(w.handleCartChanged)
	return w
}

// Start starts the worker
func (w *OrderArchiveWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting order archive worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *OrderArchiveWorker) Stop() error {
	w.logger.Info("Stopping order archive worker")
	return w.consumer.Close()
}

func (w *OrderArchiveWorker) handleOrderSubmitted(ctx context.Context, event *models.OrderSubmittedEvent) error {
	ctx, span := util.StartSpan(ctx, "OrderArchiveWorker.handleOrderSubmitted")
	defer span.End()

	if event.Order.ID == "" {
		return fmt.Errorf("order submitted event %s has no order id", event.EventID)
	}

	stored, err := w.archiver.ArchiveOrder(ctx, event.EventID, &event.Order)
	if err != nil {
		return fmt.Errorf("failed to archive order %s: %w", event.Order.ID, err)
	}
	if !stored {
		w.logger.Debug("Order already archived", zap.String("order_id", event.Order.ID))
		return nil
	}

	util.OrdersArchivedTotal.Inc()
	w.logger.Info("Order archived",
		zap.String("order_id", event.Order.ID),
		zap.String("total", event.Total.StringFixed(2)))
	return nil
}

func (w *OrderArchiveWorker) handleCartChanged(_ context.Context, event *models.CartChangedEvent) error {
	w.logger.Debug("Cart activity",
		zap.String("session_id", event.SessionID),
		zap.String("op", event.Op),
		zap.Int("units", event.UnitCount))
	return nil
}
