package service

import (
	"context"
	"time"

	"storefront/internal/models"
)

// EventPublisher publishes domain events after state changes commit
type EventPublisher interface {
	PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error
	PublishStockLow(ctx context.Context, event *models.StockLowEvent) error
}

// StockCache is a read-through cache of product stock
type StockCache interface {
	GetStock(ctx context.Context, productID int64) (*models.Stock, error)
	SetStock(ctx context.Context, stock models.Stock) error
	DeleteStock(ctx context.Context, productID int64) error
}

// Locker provides short-lived mutual exclusion across instances
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// Page is a limit/offset window over a listing
type Page struct {
	Limit  int
	Offset int
}

// Actor is the authenticated caller; a customer's ID equals its user's ID
type Actor struct {
	UserID  int64
	IsStaff bool
}
