package api

import (
	"net/http"
	"strconv"

	"storefront/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) listCollections(c *gin.Context) {
	page, ok := h.pager.parse(c)
	if !ok {
		return
	}
	collections, total, err := h.catalog.ListCollections(c.Request.Context(), page.window())
	if err != nil {
		respondError(c, err)
		return
	}
	h.pager.respond(c, page, total, collections)
}

func (h *Handler) getCollection(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	collection, err := h.catalog.GetCollection(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, collection)
}

func (h *Handler) createCollection(c *gin.Context) {
	var req service.CollectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	collection, err := h.catalog.CreateCollection(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, collection)
}

func (h *Handler) updateCollection(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req service.CollectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	collection, err := h.catalog.UpdateCollection(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, collection)
}

func (h *Handler) deleteCollection(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.catalog.DeleteCollection(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listPromotions(c *gin.Context) {
	page, ok := h.pager.parse(c)
	if !ok {
		return
	}
	promotions, total, err := h.catalog.ListPromotions(c.Request.Context(), page.window())
	if err != nil {
		respondError(c, err)
		return
	}
	h.pager.respond(c, page, total, promotions)
}

func (h *Handler) getPromotion(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	promotion, err := h.catalog.GetPromotion(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, promotion)
}

func (h *Handler) createPromotion(c *gin.Context) {
	var req service.PromotionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	promotion, err := h.catalog.CreatePromotion(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, promotion)
}

func (h *Handler) updatePromotion(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req service.PromotionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	promotion, err := h.catalog.UpdatePromotion(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, promotion)
}

func (h *Handler) deletePromotion(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.catalog.DeletePromotion(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// listProducts supports ?collection_id=, ?search= and ?ordering=
func (h *Handler) listProducts(c *gin.Context) {
	page, ok := h.pager.parse(c)
	if !ok {
		return
	}

	q := service.ProductQuery{
		Search:   c.Query("search"),
		Ordering: c.Query("ordering"),
		Page:     page.window(),
	}
	if raw := c.Query("collection_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid collection_id",
				"details": err.Error(),
			})
			return
		}
		q.CollectionID = &id
	}

	products, total, err := h.catalog.ListProducts(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}
	h.pager.respond(c, page, total, products)
}

func (h *Handler) getProduct(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	product, err := h.catalog.GetProduct(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) createProduct(c *gin.Context) {
	var req service.ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	product, err := h.catalog.CreateProduct(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (h *Handler) updateProduct(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req service.ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	product, err := h.catalog.UpdateProduct(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) deleteProduct(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.catalog.DeleteProduct(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) getStock(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	stock, err := h.inventory.GetStock(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stock)
}

func (h *Handler) updateStock(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req service.StockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	stock, err := h.inventory.UpdateStock(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stock)
}

func (h *Handler) listLowStock(c *gin.Context) {
	stocks, err := h.inventory.ListLowStock(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stocks)
}
