package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const checkoutLockTTL = 10 * time.Second

// OrderService handles checkout and order management
type OrderService struct {
	store     *store.Store
	cache     StockCache
	locker    Locker
	publisher EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewOrderService creates a new order service. cache, locker and publisher may be nil.
func NewOrderService(store *store.Store, cache StockCache, locker Locker, publisher EventPublisher) *OrderService {
	return &OrderService{
		store:     store,
		cache:     cache,
		locker:    locker,
		publisher: publisher,
		logger:    util.GetLogger(),
		now:       time.Now,
	}
}

// CheckoutRequest represents a request to turn a cart into an order
type CheckoutRequest struct {
	CartID         uuid.UUID `json:"cart_id" binding:"required"`
	IdempotencyKey string    `json:"-"`
}

// PlaceOrder converts a cart into an order in a single transaction
func (s *OrderService) PlaceOrder(ctx context.Context, customerID int64, req *CheckoutRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.PlaceOrder",
		attribute.String("cart_id", req.CartID.String()),
		attribute.Int64("customer_id", customerID))
	defer span.End()

	if req.IdempotencyKey != "" {
		existing, err := s.store.GetOrderByIdempotencyKey(ctx, customerID, req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("failed to check idempotency: %w", err)
		}
		if existing != nil {
			if existing.CartID == nil || *existing.CartID != req.CartID {
				return nil, fmt.Errorf("%w: idempotency key was used for another cart", ErrConflict)
			}
			s.logger.Info("Duplicate checkout request detected",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.Int64("order_id", existing.ID))
			return s.withItems(ctx, existing)
		}
	}

	release, err := s.lockCart(ctx, req.CartID)
	if err != nil {
		util.CheckoutFailedTotal.WithLabelValues("locked").Inc()
		return nil, err
	}
	defer release()

	start := time.Now()
	order, decremented, err := s.checkout(ctx, customerID, req)
	util.CheckoutLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		util.RecordError(span, err)
		util.CheckoutFailedTotal.WithLabelValues(failureReason(err)).Inc()
		return nil, err
	}

	util.OrdersPlacedTotal.Inc()
	units := 0
	for _, item := range order.Items {
		units += item.Quantity
	}
	util.UnitsSoldTotal.Add(float64(units))

	s.logger.Info("Order placed",
		zap.Int64("order_id", order.ID),
		zap.Int64("customer_id", customerID),
		zap.String("total", order.Total.StringFixed(2)))

	s.afterCommit(ctx, order, decremented)
	return order, nil
}

func (s *OrderService) checkout(ctx context.Context, customerID int64, req *CheckoutRequest) (*models.Order, []models.Stock, error) {
	var order *models.Order
	var decremented []models.Stock

	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		if _, err := tx.LockCart(ctx, req.CartID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrCartNotFound
			}
			return fmt.Errorf("failed to lock cart: %w", err)
		}

		lines, err := tx.GetCartLines(ctx, req.CartID)
		if err != nil {
			return fmt.Errorf("failed to load cart items: %w", err)
		}
		if len(lines) == 0 {
			return ErrCartEmpty
		}

		items := make([]priceable, len(lines))
		for i, l := range lines {
			items[i] = priceable{ProductID: l.ProductID, CollectionID: l.CollectionID}
		}
		book, err := loadPriceBook(ctx, tx, items, s.now())
		if err != nil {
			return err
		}

		// decrement in product order so concurrent checkouts lock stock rows consistently
		sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })

		cartID := req.CartID
		order = &models.Order{
			CustomerID:    customerID,
			PaymentStatus: models.PaymentStatusPending,
			CartID:        &cartID,
		}
		if req.IdempotencyKey != "" {
			key := req.IdempotencyKey
			order.IdempotencyKey = &key
		}
		if err := tx.CreateOrder(ctx, order); err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		order.Items = make([]models.OrderItem, 0, len(lines))
		order.Total = decimal.Zero
		decremented = make([]models.Stock, 0, len(lines))
		for _, line := range lines {
			item := models.OrderItem{
				OrderID:   order.ID,
				ProductID: line.ProductID,
				Quantity:  line.Quantity,
				UnitPrice: book.price(line.ProductID, line.CollectionID, line.Price),
			}
			if err := tx.CreateOrderItem(ctx, &item); err != nil {
				return fmt.Errorf("failed to create order item: %w", err)
			}

			stock, err := tx.DecrementStock(ctx, line.ProductID, line.Quantity)
			if errors.Is(err, store.ErrNotFound) {
				return s.insufficient(ctx, tx, line)
			}
			if err != nil {
				return fmt.Errorf("failed to decrement stock: %w", err)
			}

			decremented = append(decremented, *stock)
			order.Items = append(order.Items, item)
			order.Total = order.Total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
		}

		if err := tx.DeleteCart(ctx, req.CartID); err != nil {
			return fmt.Errorf("failed to delete cart: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return order, decremented, nil
}

// insufficient builds the error for a failed guarded decrement
func (s *OrderService) insufficient(ctx context.Context, tx *store.Tx, line models.CartLine) error {
	available := 0
	stock, err := tx.GetStock(ctx, line.ProductID)
	switch {
	case err == nil:
		available = stock.Quantity
	case !errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("failed to read stock: %w", err)
	}
	return &InsufficientStockError{
		ProductID: line.ProductID,
		Available: available,
		Requested: line.Quantity,
	}
}

func (s *OrderService) lockCart(ctx context.Context, cartID uuid.UUID) (func(), error) {
	noop := func() {}
	if s.locker == nil {
		return noop, nil
	}

	key := "checkout:" + cartID.String()
	token, ok, err := s.locker.AcquireLock(ctx, key, checkoutLockTTL)
	if err != nil {
		s.logger.Warn("Checkout lock unavailable, relying on row lock",
			zap.String("cart_id", cartID.String()),
			zap.Error(err))
		return noop, nil
	}
	if !ok {
		return nil, ErrCheckoutInProgress
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.locker.ReleaseLock(releaseCtx, key, token); err != nil {
			s.logger.Warn("Failed to release checkout lock",
				zap.String("cart_id", cartID.String()),
				zap.Error(err))
		}
	}, nil
}

func (s *OrderService) afterCommit(ctx context.Context, order *models.Order, stocks []models.Stock) {
	for _, stock := range stocks {
		if s.cache != nil {
			if err := s.cache.SetStock(ctx, stock); err != nil {
				s.logger.Warn("Failed to refresh cached stock",
					zap.Int64("product_id", stock.ProductID),
					zap.Error(err))
			}
		}
	}

	if s.publisher == nil {
		return
	}

	items := make([]models.OrderItemData, len(order.Items))
	for i, item := range order.Items {
		items[i] = models.OrderItemData{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
	}
	event := &models.OrderPlacedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderPlaced,
			Timestamp: time.Now(),
		},
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		Total:      order.Total,
		Items:      items,
	}
	if err := s.publisher.PublishOrderPlaced(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderPlaced event",
			zap.Int64("order_id", order.ID),
			zap.Error(err))
	}

	for _, stock := range stocks {
		if !stock.IsLow() {
			continue
		}
		if err := s.publisher.PublishStockLow(ctx, newStockLowEvent(stock)); err != nil {
			s.logger.Error("Failed to publish StockLow event",
				zap.Int64("product_id", stock.ProductID),
				zap.Error(err))
		}
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrCartNotFound):
		return "cart_not_found"
	case errors.Is(err, ErrCartEmpty):
		return "cart_empty"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "db_error"
	}
}

// ListOrders lists orders visible to the caller
func (s *OrderService) ListOrders(ctx context.Context, scope Actor, page Page) ([]models.Order, int, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListOrders")
	defer span.End()

	var customerID *int64
	if !scope.IsStaff {
		customerID = &scope.UserID
	}

	orders, total, err := s.store.ListOrders(ctx, customerID, page.Limit, page.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	if len(orders) == 0 {
		return orders, total, nil
	}

	ids := make([]int64, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	items, err := s.store.GetOrderItems(ctx, ids)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load order items: %w", err)
	}

	byOrder := make(map[int64][]models.OrderItem, len(orders))
	for _, item := range items {
		byOrder[item.OrderID] = append(byOrder[item.OrderID], item)
	}
	for i := range orders {
		fillOrder(&orders[i], byOrder[orders[i].ID])
	}
	return orders, total, nil
}

// GetOrder retrieves an order visible to the caller
func (s *OrderService) GetOrder(ctx context.Context, scope Actor, orderID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder")
	defer span.End()

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !scope.IsStaff && order.CustomerID != scope.UserID {
		return nil, ErrNotFound
	}
	return s.withItems(ctx, order)
}

// UpdateOrderStatus sets an order's payment status
func (s *OrderService) UpdateOrderStatus(ctx context.Context, orderID int64, status string) (*models.Order, error) {
	if !models.ValidPaymentStatus(status) {
		return nil, invalid("payment_status", fmt.Sprintf("%q is not a valid choice", status))
	}
	if err := s.store.UpdateOrderStatus(ctx, orderID, status); err != nil {
		return nil, err
	}

	s.logger.Info("Order status updated",
		zap.Int64("order_id", orderID),
		zap.String("payment_status", status))
	return s.GetOrder(ctx, Actor{IsStaff: true}, orderID)
}

// DeleteOrder deletes an order and its items
func (s *OrderService) DeleteOrder(ctx context.Context, orderID int64) error {
	return s.store.DeleteOrder(ctx, orderID)
}

func (s *OrderService) withItems(ctx context.Context, order *models.Order) (*models.Order, error) {
	items, err := s.store.GetOrderItems(ctx, []int64{order.ID})
	if err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}
	fillOrder(order, items)
	return order, nil
}

func fillOrder(order *models.Order, items []models.OrderItem) {
	if items == nil {
		items = []models.OrderItem{}
	}
	order.Items = items
	order.Total = decimal.Zero
	for _, item := range items {
		order.Total = order.Total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
}
