package api

import (
	"net/http"

	"storefront/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) listReviews(c *gin.Context) {
	productID, ok := idParam(c, "id")
	if !ok {
		return
	}
	page, ok := h.pager.parse(c)
	if !ok {
		return
	}
	reviews, total, err := h.reviews.ListReviews(c.Request.Context(), productID, page.window())
	if err != nil {
		respondError(c, err)
		return
	}
	h.pager.respond(c, page, total, reviews)
}

func (h *Handler) getReview(c *gin.Context) {
	productID, ok := idParam(c, "id")
	if !ok {
		return
	}
	reviewID, ok := idParam(c, "review_id")
	if !ok {
		return
	}
	review, err := h.reviews.GetReview(c.Request.Context(), productID, reviewID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, review)
}

func (h *Handler) createReview(c *gin.Context) {
	productID, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req service.ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	review, err := h.reviews.CreateReview(c.Request.Context(), actorFrom(c), productID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, review)
}

func (h *Handler) updateReview(c *gin.Context) {
	productID, ok := idParam(c, "id")
	if !ok {
		return
	}
	reviewID, ok := idParam(c, "review_id")
	if !ok {
		return
	}
	var req service.ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	review, err := h.reviews.UpdateReview(c.Request.Context(), actorFrom(c), productID, reviewID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, review)
}

func (h *Handler) deleteReview(c *gin.Context) {
	productID, ok := idParam(c, "id")
	if !ok {
		return
	}
	reviewID, ok := idParam(c, "review_id")
	if !ok {
		return
	}
	if err := h.reviews.DeleteReview(c.Request.Context(), actorFrom(c), productID, reviewID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
