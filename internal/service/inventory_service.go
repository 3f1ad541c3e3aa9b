package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/models"
	"storefront/internal/redisclient"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// InventoryService handles stock reads, updates and the stock cache
type InventoryService struct {
	store     *store.Store
	cache     StockCache
	publisher EventPublisher
	logger    *zap.Logger
}

// NewInventoryService creates a new inventory service. cache and publisher may be nil.
func NewInventoryService(store *store.Store, cache StockCache, publisher EventPublisher) *InventoryService {
	return &InventoryService{
		store:     store,
		cache:     cache,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// StockRequest is the writable shape of a stock record
type StockRequest struct {
	Quantity  *int `json:"quantity" binding:"required,min=0"`
	Threshold *int `json:"threshold" binding:"required,min=0"`
}

// GetStock returns a product's stock, reading through the cache
func (s *InventoryService) GetStock(ctx context.Context, productID int64) (*models.Stock, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.GetStock")
	defer span.End()

	if s.cache != nil {
		stock, err := s.cache.GetStock(ctx, productID)
		switch {
		case err == nil:
			util.StockCacheResults.WithLabelValues("hit").Inc()
			return stock, nil
		case errors.Is(err, redisclient.ErrCacheMiss):
			util.StockCacheResults.WithLabelValues("miss").Inc()
		default:
			util.StockCacheResults.WithLabelValues("error").Inc()
			s.logger.Warn("Stock cache read failed, falling back to DB",
				zap.Int64("product_id", productID),
				zap.Error(err))
		}
	}

	stock, err := s.store.GetStock(ctx, productID)
	if err != nil {
		return nil, err
	}
	s.cacheStock(ctx, *stock)
	return stock, nil
}

// UpdateStock creates or replaces a product's stock record
func (s *InventoryService) UpdateStock(ctx context.Context, productID int64, req *StockRequest) (*models.Stock, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.UpdateStock")
	defer span.End()

	if _, err := s.store.GetProductByID(ctx, productID); err != nil {
		return nil, err
	}

	stock := &models.Stock{
		ProductID: productID,
		Quantity:  *req.Quantity,
		Threshold: *req.Threshold,
	}
	if err := s.store.UpsertStock(ctx, stock); err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to update stock: %w", err)
	}

	s.logger.Info("Stock updated",
		zap.Int64("product_id", productID),
		zap.Int("quantity", stock.Quantity),
		zap.Int("threshold", stock.Threshold))

	s.cacheStock(ctx, *stock)
	if stock.IsLow() {
		s.publishStockLow(ctx, *stock)
	}
	return stock, nil
}

// ListLowStock lists stock records at or below their threshold
func (s *InventoryService) ListLowStock(ctx context.Context) ([]models.Stock, error) {
	return s.store.ListLowStock(ctx)
}

// SyncStockToCache loads every stock record into the cache
func (s *InventoryService) SyncStockToCache(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	s.logger.Info("Starting stock sync to cache")

	stocks, err := s.store.ListStock(ctx)
	if err != nil {
		return fmt.Errorf("failed to list stock: %w", err)
	}

	synced := 0
	for _, stock := range stocks {
		if err := s.cache.SetStock(ctx, stock); err != nil {
			s.logger.Error("Failed to cache stock",
				zap.Int64("product_id", stock.ProductID),
				zap.Error(err))
			continue
		}
		synced++
	}

	s.logger.Info("Stock sync completed", zap.Int("count", synced))
	return nil
}

// HandleOrderPlaced refreshes the cached stock of every product in the order
func (s *InventoryService) HandleOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	ctx, span := util.StartSpan(ctx, "InventoryService.HandleOrderPlaced")
	defer span.End()

	return s.once(ctx, event.BaseEvent, func() error {
		for _, item := range event.Items {
			stock, err := s.store.GetStock(ctx, item.ProductID)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("failed to load stock for product %d: %w", item.ProductID, err)
			}
			s.cacheStock(ctx, *stock)
		}

		s.logger.Info("Stock cache refreshed for order",
			zap.Int64("order_id", event.OrderID),
			zap.Int("items", len(event.Items)))
		return nil
	})
}

// HandleStockLow records a low-stock alert
func (s *InventoryService) HandleStockLow(ctx context.Context, event *models.StockLowEvent) error {
	return s.once(ctx, event.BaseEvent, func() error {
		util.StockLowTotal.Inc()
		s.logger.Warn("Product stock is low",
			zap.Int64("product_id", event.ProductID),
			zap.Int("quantity", event.Quantity),
			zap.Int("threshold", event.Threshold))
		return nil
	})
}

// once runs fn unless the event was already processed, then marks it processed
func (s *InventoryService) once(ctx context.Context, event models.BaseEvent, fn func() error) error {
	processed, err := s.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event: %w", err)
	}
	if processed {
		s.logger.Info("Event already processed, skipping",
			zap.String("event_id", event.EventID),
			zap.String("event_type", event.EventType))
		return nil
	}

	if err := fn(); err != nil {
		return err
	}

	err = s.store.MarkEventProcessed(ctx, event.EventID, event.EventType)
	if errors.Is(err, store.ErrDuplicate) {
		return nil
	}
	return err
}

func (s *InventoryService) cacheStock(ctx context.Context, stock models.Stock) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetStock(ctx, stock); err != nil {
		s.logger.Warn("Failed to cache stock",
			zap.Int64("product_id", stock.ProductID),
			zap.Error(err))
	}
}

func (s *InventoryService) publishStockLow(ctx context.Context, stock models.Stock) {
	if s.publisher == nil {
		return
	}
	event := newStockLowEvent(stock)
	if err := s.publisher.PublishStockLow(ctx, event); err != nil {
		s.logger.Error("Failed to publish StockLow event",
			zap.Int64("product_id", stock.ProductID),
			zap.Error(err))
	}
}

func newStockLowEvent(stock models.Stock) *models.StockLowEvent {
	return &models.StockLowEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeStockLow,
			Timestamp: time.Now(),
		},
		ProductID: stock.ProductID,
		Quantity:  stock.Quantity,
		Threshold: stock.Threshold,
	}
}
