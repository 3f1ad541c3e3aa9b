package store

import (
	"context"
	"database/sql"
	"errors"

	"storefront/internal/models"

	"github.com/lib/pq"
)

const orderColumns = "id, customer_id, placed_at, payment_status, idempotency_key, cart_id"

// CreateOrder creates a new order
func (c *conn) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (customer_id, payment_status, idempotency_key, cart_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, placed_at`

	return translate(c.q.GetContext(ctx, order, query,
		order.CustomerID, order.PaymentStatus, order.IdempotencyKey, order.CartID))
}

// GetOrderByID retrieves an order by ID
func (c *conn) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := c.q.GetContext(ctx, &order, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
	if err != nil {
		return nil, translate(err)
	}
	return &order, nil
}

// GetOrderByIdempotencyKey retrieves a customer's order by idempotency key.
// Keys are scoped per customer.
func (c *conn) GetOrderByIdempotencyKey(ctx context.Context, customerID int64, key string) (*models.Order, error) {
	var order models.Order
	err := c.q.GetContext(ctx, &order,
		"SELECT "+orderColumns+" FROM orders WHERE customer_id = $1 AND idempotency_key = $2", customerID, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ListOrders lists orders newest first; a nil customerID lists every customer's orders
func (c *conn) ListOrders(ctx context.Context, customerID *int64, limit, offset int) ([]models.Order, int, error) {
	var total int
	if err := c.q.GetContext(ctx, &total,
		"SELECT COUNT(*) FROM orders WHERE ($1::BIGINT IS NULL OR customer_id = $1)", customerID); err != nil {
		return nil, 0, err
	}

	orders := []models.Order{}
	err := c.q.SelectContext(ctx, &orders, `
		SELECT `+orderColumns+` FROM orders
		WHERE ($1::BIGINT IS NULL OR customer_id = $1)
		ORDER BY placed_at DESC, id DESC
		LIMIT $2 OFFSET $3`, customerID, limit, offset)
	return orders, total, err
}

// UpdateOrderStatus updates the payment status of an order
func (c *conn) UpdateOrderStatus(ctx context.Context, orderID int64, status string) error {
	res, err := c.q.ExecContext(ctx,
		"UPDATE orders SET payment_status = $1 WHERE id = $2", status, orderID)
	if err != nil {
		return err
	}
	return affected(res)
}

// DeleteOrder deletes an order and its items
func (c *conn) DeleteOrder(ctx context.Context, orderID int64) error {
	res, err := c.q.ExecContext(ctx, "DELETE FROM orders WHERE id = $1", orderID)
	if err != nil {
		return err
	}
	return affected(res)
}

// CreateOrderItem creates a new order item
func (c *conn) CreateOrderItem(ctx context.Context, item *models.OrderItem) error {
	query := `
		INSERT INTO order_items (order_id, product_id, quantity, unit_price)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	return translate(c.q.GetContext(ctx, &item.ID, query,
		item.OrderID, item.ProductID, item.Quantity, item.UnitPrice))
}

// GetOrderItems retrieves the items of the given orders
func (c *conn) GetOrderItems(ctx context.Context, orderIDs []int64) ([]models.OrderItem, error) {
	items := []models.OrderItem{}
	if len(orderIDs) == 0 {
		return items, nil
	}
	err := c.q.SelectContext(ctx, &items, `
		SELECT id, order_id, product_id, quantity, unit_price FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, id`, pq.Array(orderIDs))
	return items, err
}

// IsEventProcessed checks if an event has been processed
func (c *conn) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := c.q.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (c *conn) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := c.q.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
