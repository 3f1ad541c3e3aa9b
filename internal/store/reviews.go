package store

import (
	"context"
	"time"

	"storefront/internal/models"
)

const reviewColumns = "id, customer_id, product_id, rating, description, created_at, is_updated, updated_at"

// ListReviews lists the reviews of a product, oldest first
func (c *conn) ListReviews(ctx context.Context, productID int64, limit, offset int) ([]models.Review, int, error) {
	var total int
	if err := c.q.GetContext(ctx, &total, "SELECT COUNT(*) FROM reviews WHERE product_id = $1", productID); err != nil {
		return nil, 0, err
	}

	reviews := []models.Review{}
	err := c.q.SelectContext(ctx, &reviews, `
		SELECT `+reviewColumns+` FROM reviews
		WHERE product_id = $1
		ORDER BY created_at, is_updated, updated_at
		LIMIT $2 OFFSET $3`, productID, limit, offset)
	return reviews, total, err
}

// GetReview retrieves a review of a product
func (c *conn) GetReview(ctx context.Context, productID, reviewID int64) (*models.Review, error) {
	var review models.Review
	err := c.q.GetContext(ctx, &review,
		"SELECT "+reviewColumns+" FROM reviews WHERE id = $1 AND product_id = $2", reviewID, productID)
	if err != nil {
		return nil, translate(err)
	}
	return &review, nil
}

// CreateReview inserts a review
func (c *conn) CreateReview(ctx context.Context, r *models.Review) error {
	query := `
		INSERT INTO reviews (customer_id, product_id, rating, description)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, is_updated`

	return translate(c.q.GetContext(ctx, r, query, r.CustomerID, r.ProductID, r.Rating, r.Description))
}

// UpdateReview rewrites rating and description and flags the review as edited
func (c *conn) UpdateReview(ctx context.Context, r *models.Review, now time.Time) error {
	res, err := c.q.ExecContext(ctx, `
		UPDATE reviews SET rating = $1, description = $2, is_updated = TRUE, updated_at = $3
		WHERE id = $4 AND product_id = $5`,
		r.Rating, r.Description, now, r.ID, r.ProductID)
	if err != nil {
		return err
	}
	if err := affected(res); err != nil {
		return err
	}
	r.IsUpdated = true
	r.UpdatedAt = &now
	return nil
}

// DeleteReview deletes a review of a product
func (c *conn) DeleteReview(ctx context.Context, productID, reviewID int64) error {
	res, err := c.q.ExecContext(ctx, "DELETE FROM reviews WHERE id = $1 AND product_id = $2", reviewID, productID)
	if err != nil {
		return err
	}
	return affected(res)
}
