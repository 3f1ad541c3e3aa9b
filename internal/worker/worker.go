package worker

import (
	"context"

	"storefront/internal/broker"
	"storefront/internal/models"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// StockEventHandler reacts to storefront events that affect stock
type StockEventHandler interface {
	HandleOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error
	HandleStockLow(ctx context.Context, event *models.StockLowEvent) error
}

// StockWorker consumes storefront events and keeps stock state in sync
type StockWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewStockWorker creates a new stock worker
func NewStockWorker(consumer *broker.Consumer, handler StockEventHandler) *StockWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderPlaced(handler.HandleOrderPlaced)
	eventHandler.OnStockLow(handler.HandleStockLow)

	return &StockWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.GetLogger(),
	}
}

// Start blocks consuming events until ctx is cancelled
func (w *StockWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting stock worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop closes the underlying consumer
func (w *StockWorker) Stop() error {
	w.logger.Info("Stopping stock worker")
	return w.consumer.Close()
}
