package service

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// ReviewService handles product reviews
type ReviewService struct {
	store  *store.Store
	logger *zap.Logger
	now    func() time.Time
}

func NewReviewService(store *store.Store) *ReviewService {
	return &ReviewService{
		store:  store,
		logger: util.GetLogger(),
		now:    time.Now,
	}
}

// ReviewRequest is the writable shape of a review
type ReviewRequest struct {
	Rating      string `json:"rating" binding:"required"`
	Description string `json:"description" binding:"required"`
}

func (r *ReviewRequest) validate() error {
	if !models.ValidRating(r.Rating) {
		return invalid("rating", fmt.Sprintf("%q is not a valid choice", r.Rating))
	}
	return nil
}

func (s *ReviewService) ListReviews(ctx context.Context, productID int64, page Page) ([]models.Review, int, error) {
	if _, err := s.store.GetProductByID(ctx, productID); err != nil {
		return nil, 0, err
	}
	return s.store.ListReviews(ctx, productID, page.Limit, page.Offset)
}

func (s *ReviewService) GetReview(ctx context.Context, productID, reviewID int64) (*models.Review, error) {
	return s.store.GetReview(ctx, productID, reviewID)
}

// CreateReview records actor's review of a product
func (s *ReviewService) CreateReview(ctx context.Context, actor Actor, productID int64, req *ReviewRequest) (*models.Review, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if _, err := s.store.GetProductByID(ctx, productID); err != nil {
		return nil, err
	}

	review := &models.Review{
		CustomerID:  actor.UserID,
		ProductID:   productID,
		Rating:      req.Rating,
		Description: req.Description,
	}
	if err := s.store.CreateReview(ctx, review); err != nil {
		return nil, fmt.Errorf("failed to create review: %w", err)
	}

	s.logger.Info("Review created",
		zap.Int64("review_id", review.ID),
		zap.Int64("product_id", productID))
	return review, nil
}

// UpdateReview rewrites a review; only its author or staff may do so
func (s *ReviewService) UpdateReview(ctx context.Context, actor Actor, productID, reviewID int64, req *ReviewRequest) (*models.Review, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	review, err := s.owned(ctx, actor, productID, reviewID)
	if err != nil {
		return nil, err
	}

	review.Rating = req.Rating
	review.Description = req.Description
	if err := s.store.UpdateReview(ctx, review, s.now()); err != nil {
		return nil, err
	}
	return review, nil
}

// DeleteReview deletes a review; only its author or staff may do so
func (s *ReviewService) DeleteReview(ctx context.Context, actor Actor, productID, reviewID int64) error {
	if _, err := s.owned(ctx, actor, productID, reviewID); err != nil {
		return err
	}
	return s.store.DeleteReview(ctx, productID, reviewID)
}

func (s *ReviewService) owned(ctx context.Context, actor Actor, productID, reviewID int64) (*models.Review, error) {
	review, err := s.store.GetReview(ctx, productID, reviewID)
	if err != nil {
		return nil, err
	}
	if !actor.IsStaff && review.CustomerID != actor.UserID {
		return nil, ErrForbidden
	}
	return review, nil
}
