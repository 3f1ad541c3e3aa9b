package api

import (
	"errors"
	"net/http"

	"storefront/internal/service"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// respondError maps service errors onto HTTP responses
func respondError(c *gin.Context, err error) {
	var validation *service.ValidationError
	var stock *service.InsufficientStockError

	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Validation failed",
			"details": gin.H{validation.Field: []string{validation.Message}},
		})
	case errors.As(err, &stock):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Insufficient stock",
			"details": gin.H{
				"product_id": stock.ProductID,
				"available":  stock.Available,
				"requested":  stock.Requested,
			},
		})
	case errors.Is(err, service.ErrCartNotFound),
		errors.Is(err, service.ErrCartEmpty):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Checkout failed",
			"details": err.Error(),
		})
	case errors.Is(err, service.ErrInvalidValue),
		errors.Is(err, store.ErrReferenced):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid value",
			"details": err.Error(),
		})
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": err.Error(),
		})
	case errors.Is(err, service.ErrCollectionHasProducts),
		errors.Is(err, service.ErrProductHasOrders),
		errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{
			"error": err.Error(),
		})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Not found",
		})
	case errors.Is(err, service.ErrConflict),
		errors.Is(err, service.ErrCheckoutInProgress):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "Conflict",
			"details": err.Error(),
		})
	default:
		util.GetLogger().Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Internal server error",
			"details": err.Error(),
		})
	}
}

func respondBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request body",
		"details": err.Error(),
	})
}
