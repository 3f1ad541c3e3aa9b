package store

import (
	"context"

	"storefront/internal/models"

	"github.com/google/uuid"
)

// CreateCart inserts a cart with a caller-chosen ID
func (c *conn) CreateCart(ctx context.Context, cart *models.Cart) error {
	return translate(c.q.GetContext(ctx, &cart.CreatedAt,
		"INSERT INTO carts (id) VALUES ($1) RETURNING created_at", cart.ID))
}

// GetCart retrieves a cart
func (c *conn) GetCart(ctx context.Context, id uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := c.q.GetContext(ctx, &cart, "SELECT id, created_at FROM carts WHERE id = $1", id)
	if err != nil {
		return nil, translate(err)
	}
	return &cart, nil
}

// LockCart retrieves a cart and locks its row until the transaction ends
func (c *conn) LockCart(ctx context.Context, id uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := c.q.GetContext(ctx, &cart, "SELECT id, created_at FROM carts WHERE id = $1 FOR UPDATE", id)
	if err != nil {
		return nil, translate(err)
	}
	return &cart, nil
}

// DeleteCart deletes a cart and, by cascade, its items
func (c *conn) DeleteCart(ctx context.Context, id uuid.UUID) error {
	res, err := c.q.ExecContext(ctx, "DELETE FROM carts WHERE id = $1", id)
	if err != nil {
		return err
	}
	return affected(res)
}

const cartLineSelect = `
	SELECT ci.id, ci.product_id, ci.quantity, p.title, p.price, p.collection_id
	FROM cart_items ci
	JOIN products p ON p.id = ci.product_id`

// GetCartLines retrieves the items of a cart joined with their products
func (c *conn) GetCartLines(ctx context.Context, cartID uuid.UUID) ([]models.CartLine, error) {
	lines := []models.CartLine{}
	err := c.q.SelectContext(ctx, &lines, cartLineSelect+" WHERE ci.cart_id = $1 ORDER BY ci.id", cartID)
	return lines, err
}

// GetCartLine retrieves a single item of a cart
func (c *conn) GetCartLine(ctx context.Context, cartID uuid.UUID, itemID int64) (*models.CartLine, error) {
	var line models.CartLine
	err := c.q.GetContext(ctx, &line, cartLineSelect+" WHERE ci.cart_id = $1 AND ci.id = $2", cartID, itemID)
	if err != nil {
		return nil, translate(err)
	}
	return &line, nil
}

// AddCartItem adds a product to a cart, increasing the quantity if the product is already there
func (c *conn) AddCartItem(ctx context.Context, cartID uuid.UUID, productID int64, quantity int) (int64, error) {
	var id int64
	err := c.q.GetContext(ctx, &id, `
		INSERT INTO cart_items (cart_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (cart_id, product_id) DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
		RETURNING id`,
		cartID, productID, quantity)
	return id, translate(err)
}

// UpdateCartItemQuantity sets the quantity of a cart item
func (c *conn) UpdateCartItemQuantity(ctx context.Context, cartID uuid.UUID, itemID int64, quantity int) error {
	res, err := c.q.ExecContext(ctx,
		"UPDATE cart_items SET quantity = $1 WHERE id = $2 AND cart_id = $3", quantity, itemID, cartID)
	if err != nil {
		return translate(err)
	}
	return affected(res)
}

// DeleteCartItem removes an item from a cart
func (c *conn) DeleteCartItem(ctx context.Context, cartID uuid.UUID, itemID int64) error {
	res, err := c.q.ExecContext(ctx, "DELETE FROM cart_items WHERE id = $1 AND cart_id = $2", itemID, cartID)
	if err != nil {
		return err
	}
	return affected(res)
}
