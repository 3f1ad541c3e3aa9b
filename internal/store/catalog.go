package store

import (
	"context"

	"storefront/internal/models"

	"github.com/lib/pq"
)

const collectionSelect = `
	SELECT c.id, c.title, c.slug, c.featured_product_id, c.promotion_id, COUNT(p.id) AS products_count
	FROM collections c
	LEFT JOIN products p ON p.collection_id = c.id`

// ListCollections lists collections with their product counts
func (c *conn) ListCollections(ctx context.Context, limit, offset int) ([]models.Collection, int, error) {
	var total int
	if err := c.q.GetContext(ctx, &total, "SELECT COUNT(*) FROM collections"); err != nil {
		return nil, 0, err
	}

	collections := []models.Collection{}
	err := c.q.SelectContext(ctx, &collections,
		collectionSelect+" GROUP BY c.id ORDER BY c.id LIMIT $1 OFFSET $2", limit, offset)
	return collections, total, err
}

// GetCollection retrieves a collection with its product count
func (c *conn) GetCollection(ctx context.Context, id int64) (*models.Collection, error) {
	var collection models.Collection
	err := c.q.GetContext(ctx, &collection, collectionSelect+" WHERE c.id = $1 GROUP BY c.id", id)
	if err != nil {
		return nil, translate(err)
	}
	return &collection, nil
}

// CreateCollection inserts a collection
func (c *conn) CreateCollection(ctx context.Context, collection *models.Collection) error {
	return translate(c.q.GetContext(ctx, &collection.ID, `
		INSERT INTO collections (title, slug, featured_product_id, promotion_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		collection.Title, collection.Slug, collection.FeaturedProductID, collection.PromotionID))
}

// UpdateCollection updates a collection
func (c *conn) UpdateCollection(ctx context.Context, collection *models.Collection) error {
	res, err := c.q.ExecContext(ctx, `
		UPDATE collections SET title = $1, slug = $2, featured_product_id = $3, promotion_id = $4
		WHERE id = $5`,
		collection.Title, collection.Slug, collection.FeaturedProductID, collection.PromotionID, collection.ID)
	if err != nil {
		return translate(err)
	}
	return affected(res)
}

// CountCollectionProducts counts the products that belong to a collection
func (c *conn) CountCollectionProducts(ctx context.Context, collectionID int64) (int, error) {
	var count int
	err := c.q.GetContext(ctx, &count, "SELECT COUNT(*) FROM products WHERE collection_id = $1", collectionID)
	return count, err
}

// DeleteCollection deletes a collection
func (c *conn) DeleteCollection(ctx context.Context, id int64) error {
	res, err := c.q.ExecContext(ctx, "DELETE FROM collections WHERE id = $1", id)
	if err != nil {
		return translate(err)
	}
	return affected(res)
}

const promotionColumns = "id, title, slug, discount, start_date, end_date"

// ListPromotions lists promotions
func (c *conn) ListPromotions(ctx context.Context, limit, offset int) ([]models.Promotion, int, error) {
	var total int
	if err := c.q.GetContext(ctx, &total, "SELECT COUNT(*) FROM promotions"); err != nil {
		return nil, 0, err
	}

	promotions := []models.Promotion{}
	err := c.q.SelectContext(ctx, &promotions,
		"SELECT "+promotionColumns+" FROM promotions ORDER BY id LIMIT $1 OFFSET $2", limit, offset)
	return promotions, total, err
}

// GetPromotion retrieves a promotion by ID
func (c *conn) GetPromotion(ctx context.Context, id int64) (*models.Promotion, error) {
	var promotion models.Promotion
	err := c.q.GetContext(ctx, &promotion, "SELECT "+promotionColumns+" FROM promotions WHERE id = $1", id)
	if err != nil {
		return nil, translate(err)
	}
	return &promotion, nil
}

// CountPromotions counts how many of ids exist
func (c *conn) CountPromotions(ctx context.Context, ids []int64) (int, error) {
	var count int
	err := c.q.GetContext(ctx, &count, "SELECT COUNT(*) FROM promotions WHERE id = ANY($1)", pq.Array(ids))
	return count, err
}

// CreatePromotion inserts a promotion
func (c *conn) CreatePromotion(ctx context.Context, p *models.Promotion) error {
	return translate(c.q.GetContext(ctx, &p.ID, `
		INSERT INTO promotions (title, slug, discount, start_date, end_date)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		p.Title, p.Slug, p.Discount, p.StartDate, p.EndDate))
}

// UpdatePromotion updates a promotion
func (c *conn) UpdatePromotion(ctx context.Context, p *models.Promotion) error {
	res, err := c.q.ExecContext(ctx, `
		UPDATE promotions SET title = $1, slug = $2, discount = $3, start_date = $4, end_date = $5
		WHERE id = $6`,
		p.Title, p.Slug, p.Discount, p.StartDate, p.EndDate, p.ID)
	if err != nil {
		return translate(err)
	}
	return affected(res)
}

// DeletePromotion deletes a promotion
func (c *conn) DeletePromotion(ctx context.Context, id int64) error {
	res, err := c.q.ExecContext(ctx, "DELETE FROM promotions WHERE id = $1", id)
	if err != nil {
		return translate(err)
	}
	return affected(res)
}

type productPromotion struct {
	ProductID int64 `db:"product_id"`
	models.Promotion
}

// GetProductPromotions returns the direct promotions of each product
func (c *conn) GetProductPromotions(ctx context.Context, productIDs []int64) (map[int64][]models.Promotion, error) {
	result := make(map[int64][]models.Promotion)
	if len(productIDs) == 0 {
		return result, nil
	}

	var rows []productPromotion
	err := c.q.SelectContext(ctx, &rows, `
		SELECT pp.product_id, pr.id, pr.title, pr.slug, pr.discount, pr.start_date, pr.end_date
		FROM product_promotions pp
		JOIN promotions pr ON pr.id = pp.promotion_id
		WHERE pp.product_id = ANY($1)
		ORDER BY pp.product_id, pr.id`, pq.Array(productIDs))
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		result[row.ProductID] = append(result[row.ProductID], row.Promotion)
	}
	return result, nil
}

type collectionPromotion struct {
	CollectionID int64 `db:"collection_id"`
	models.Promotion
}

// GetCollectionPromotions returns the promotion attached to each collection, if any
func (c *conn) GetCollectionPromotions(ctx context.Context, collectionIDs []int64) (map[int64]models.Promotion, error) {
	result := make(map[int64]models.Promotion)
	if len(collectionIDs) == 0 {
		return result, nil
	}

	var rows []collectionPromotion
	err := c.q.SelectContext(ctx, &rows, `
		SELECT c.id AS collection_id, pr.id, pr.title, pr.slug, pr.discount, pr.start_date, pr.end_date
		FROM collections c
		JOIN promotions pr ON pr.id = c.promotion_id
		WHERE c.id = ANY($1)`, pq.Array(collectionIDs))
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		result[row.CollectionID] = row.Promotion
	}
	return result, nil
}

// SetProductPromotions replaces the direct promotions of a product
func (c *conn) SetProductPromotions(ctx context.Context, productID int64, promotionIDs []int64) error {
	if _, err := c.q.ExecContext(ctx, "DELETE FROM product_promotions WHERE product_id = $1", productID); err != nil {
		return err
	}
	for _, promotionID := range promotionIDs {
		_, err := c.q.ExecContext(ctx,
			"INSERT INTO product_promotions (product_id, promotion_id) VALUES ($1, $2) ON CONFLICT DO NOTHING",
			productID, promotionID)
		if err != nil {
			return translate(err)
		}
	}
	return nil
}
