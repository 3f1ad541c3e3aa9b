package store

import (
	"context"
	"fmt"
	"strings"

	"storefront/internal/models"

	"github.com/lib/pq"
)

const productColumns = "id, title, slug, description, price, is_digital, last_update, collection_id"

// ProductFilter narrows and orders product listings
type ProductFilter struct {
	CollectionID *int64
	Search       string
	Ordering     string
	Limit        int
	Offset       int
}

var productOrderings = map[string]string{
	"":             "title, price, id",
	"title":        "title, price, id",
	"-title":       "title DESC, price, id",
	"price":        "price, title, id",
	"-price":       "price DESC, title, id",
	"last_update":  "last_update, id",
	"-last_update": "last_update DESC, id",
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// ValidProductOrdering reports whether ordering is supported by ListProducts
func ValidProductOrdering(ordering string) bool {
	_, ok := productOrderings[ordering]
	return ok
}

// ListProducts lists products matching the filter
func (c *conn) ListProducts(ctx context.Context, f ProductFilter) ([]models.Product, int, error) {
	orderBy, ok := productOrderings[f.Ordering]
	if !ok {
		return nil, 0, fmt.Errorf("unsupported ordering %q", f.Ordering)
	}

	var conds []string
	var args []interface{}
	if f.CollectionID != nil {
		args = append(args, *f.CollectionID)
		conds = append(conds, fmt.Sprintf("collection_id = $%d", len(args)))
	}
	if f.Search != "" {
		args = append(args, "%"+likeEscaper.Replace(f.Search)+"%")
		conds = append(conds, fmt.Sprintf(`title ILIKE $%d ESCAPE '\'`, len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := c.q.GetContext(ctx, &total, "SELECT COUNT(*) FROM products"+where, args...); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf("SELECT %s FROM products%s ORDER BY %s LIMIT $%d OFFSET $%d",
		productColumns, where, orderBy, len(args)+1, len(args)+2)
	args = append(args, f.Limit, f.Offset)

	products := []models.Product{}
	err := c.q.SelectContext(ctx, &products, query, args...)
	return products, total, err
}

// GetProductByID retrieves a product by ID
func (c *conn) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := c.q.GetContext(ctx, &product, "SELECT "+productColumns+" FROM products WHERE id = $1", id)
	if err != nil {
		return nil, translate(err)
	}
	return &product, nil
}

// GetProductsByIDs retrieves multiple products by IDs
func (c *conn) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	var products []models.Product
	err := c.q.SelectContext(ctx, &products,
		"SELECT "+productColumns+" FROM products WHERE id = ANY($1) ORDER BY id", pq.Array(ids))
	return products, err
}

// CreateProduct inserts a product
func (c *conn) CreateProduct(ctx context.Context, p *models.Product) error {
	query := `
		INSERT INTO products (title, slug, description, price, is_digital, collection_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, last_update`

	return translate(c.q.GetContext(ctx, p, query,
		p.Title, p.Slug, p.Description, p.Price, p.IsDigital, p.CollectionID))
}

// UpdateProduct updates a product and bumps last_update
func (c *conn) UpdateProduct(ctx context.Context, p *models.Product) error {
	query := `
		UPDATE products
		SET title = $1, slug = $2, description = $3, price = $4, is_digital = $5, collection_id = $6,
		    last_update = NOW()
		WHERE id = $7
		RETURNING last_update`

	return translate(c.q.GetContext(ctx, &p.LastUpdate, query,
		p.Title, p.Slug, p.Description, p.Price, p.IsDigital, p.CollectionID, p.ID))
}

// CountProductOrderItems counts order items that reference a product
func (c *conn) CountProductOrderItems(ctx context.Context, productID int64) (int, error) {
	var count int
	err := c.q.GetContext(ctx, &count, "SELECT COUNT(*) FROM order_items WHERE product_id = $1", productID)
	return count, err
}

// DeleteProduct deletes a product
func (c *conn) DeleteProduct(ctx context.Context, id int64) error {
	res, err := c.q.ExecContext(ctx, "DELETE FROM products WHERE id = $1", id)
	if err != nil {
		return translate(err)
	}
	return affected(res)
}
