package store

import (
	"context"

	"storefront/internal/models"
)

// GetStock retrieves stock for a product
func (c *conn) GetStock(ctx context.Context, productID int64) (*models.Stock, error) {
	var stock models.Stock
	err := c.q.GetContext(ctx, &stock,
		"SELECT product_id, quantity, threshold FROM stock WHERE product_id = $1", productID)
	if err != nil {
		return nil, translate(err)
	}
	return &stock, nil
}

// ListStock retrieves stock for every product
func (c *conn) ListStock(ctx context.Context) ([]models.Stock, error) {
	stock := []models.Stock{}
	err := c.q.SelectContext(ctx, &stock, "SELECT product_id, quantity, threshold FROM stock ORDER BY product_id")
	return stock, err
}

// ListLowStock lists products whose quantity has reached the threshold
func (c *conn) ListLowStock(ctx context.Context) ([]models.Stock, error) {
	stock := []models.Stock{}
	err := c.q.SelectContext(ctx, &stock, `
		SELECT product_id, quantity, threshold FROM stock
		WHERE quantity <= threshold
		ORDER BY quantity, product_id`)
	return stock, err
}

// UpsertStock creates or replaces the stock row of a product
func (c *conn) UpsertStock(ctx context.Context, stock *models.Stock) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO stock (product_id, quantity, threshold)
		VALUES ($1, $2, $3)
		ON CONFLICT (product_id) DO UPDATE SET quantity = EXCLUDED.quantity, threshold = EXCLUDED.threshold`,
		stock.ProductID, stock.Quantity, stock.Threshold)
	return translate(err)
}

// DecrementStock subtracts quantity only when enough stock is available.
// It returns ErrNotFound when the row is missing or would go negative.
func (c *conn) DecrementStock(ctx context.Context, productID int64, quantity int) (*models.Stock, error) {
	var stock models.Stock
	err := c.q.GetContext(ctx, &stock, `
		UPDATE stock SET quantity = quantity - $1
		WHERE product_id = $2 AND quantity >= $1
		RETURNING product_id, quantity, threshold`,
		quantity, productID)
	if err != nil {
		return nil, translate(err)
	}
	return &stock, nil
}
