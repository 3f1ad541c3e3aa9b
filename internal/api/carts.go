package api

import (
	"net/http"

	"storefront/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) createCart(c *gin.Context) {
	cart, err := h.carts.CreateCart(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cart)
}

func (h *Handler) getCart(c *gin.Context) {
	id, ok := cartParam(c)
	if !ok {
		return
	}
	cart, err := h.carts.GetCart(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

func (h *Handler) deleteCart(c *gin.Context) {
	id, ok := cartParam(c)
	if !ok {
		return
	}
	if err := h.carts.DeleteCart(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listCartItems(c *gin.Context) {
	id, ok := cartParam(c)
	if !ok {
		return
	}
	cart, err := h.carts.GetCart(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart.Items)
}

func (h *Handler) getCartItem(c *gin.Context) {
	cartID, ok := cartParam(c)
	if !ok {
		return
	}
	itemID, ok := idParam(c, "item_id")
	if !ok {
		return
	}
	item, err := h.carts.GetItem(c.Request.Context(), cartID, itemID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *Handler) addCartItem(c *gin.Context) {
	cartID, ok := cartParam(c)
	if !ok {
		return
	}
	var req service.AddCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	item, err := h.carts.AddItem(c.Request.Context(), cartID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (h *Handler) updateCartItem(c *gin.Context) {
	cartID, ok := cartParam(c)
	if !ok {
		return
	}
	itemID, ok := idParam(c, "item_id")
	if !ok {
		return
	}
	var req service.UpdateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	item, err := h.carts.UpdateItem(c.Request.Context(), cartID, itemID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *Handler) deleteCartItem(c *gin.Context) {
	cartID, ok := cartParam(c)
	if !ok {
		return
	}
	itemID, ok := idParam(c, "item_id")
	if !ok {
		return
	}
	if err := h.carts.DeleteItem(c.Request.Context(), cartID, itemID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
