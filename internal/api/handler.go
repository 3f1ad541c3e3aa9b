package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"storefront/internal/auth"
	"storefront/internal/service"
	"storefront/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger is a dependency checked by /ready
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	catalog   *service.CatalogService
	inventory *service.InventoryService
	reviews   *service.ReviewService
	carts     *service.CartService
	customers *service.CustomerService
	orders    *service.OrderService
	tokens    *auth.TokenManager
	pager     Paginator
	limiter   *RateLimiter
	checks    map[string]Pinger
}

// Options wires the handler's dependencies
type Options struct {
	Catalog   *service.CatalogService
	Inventory *service.InventoryService
	Reviews   *service.ReviewService
	Carts     *service.CartService
	Customers *service.CustomerService
	Orders    *service.OrderService
	Tokens    *auth.TokenManager
	Paginator Paginator
	// Limiter is optional; nil disables rate limiting.
	Limiter *RateLimiter
	// Checks are pinged by /ready.
	Checks map[string]Pinger
}

// NewHandler creates a new HTTP handler
func NewHandler(opts Options) *Handler {
	return &Handler{
		catalog:   opts.Catalog,
		inventory: opts.Inventory,
		reviews:   opts.Reviews,
		carts:     opts.Carts,
		customers: opts.Customers,
		orders:    opts.Orders,
		tokens:    opts.Tokens,
		pager:     opts.Paginator,
		limiter:   opts.Limiter,
		checks:    opts.Checks,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	if h.limiter != nil {
		v1.Use(h.limiter.Middleware())
	}
	v1.Use(auth.Authenticate(h.tokens))

	authGroup := v1.Group("/auth")
	{
		authGroup.POST("/users", h.register)
		authGroup.POST("/token", h.login)
		authGroup.GET("/users/me", auth.RequireAuth(), h.me)
	}

	catalog := v1.Group("", auth.StaffForWrites())
	{
		catalog.GET("/collections", h.listCollections)
		catalog.POST("/collections", h.createCollection)
		catalog.GET("/collections/:id", h.getCollection)
		catalog.PUT("/collections/:id", h.updateCollection)
		catalog.DELETE("/collections/:id", h.deleteCollection)

		catalog.GET("/products", h.listProducts)
		catalog.POST("/products", h.createProduct)
		catalog.GET("/products/:id", h.getProduct)
		catalog.PUT("/products/:id", h.updateProduct)
		catalog.DELETE("/products/:id", h.deleteProduct)

		catalog.GET("/products/:id/stock", h.getStock)
		catalog.PUT("/products/:id/stock", h.updateStock)
	}

	promotions := v1.Group("/promotions", auth.RequireAuth(), auth.StaffForWrites())
	{
		promotions.GET("", h.listPromotions)
		promotions.POST("", h.createPromotion)
		promotions.GET("/:id", h.getPromotion)
		promotions.PUT("/:id", h.updatePromotion)
		promotions.DELETE("/:id", h.deletePromotion)
	}

	reviews := v1.Group("/products/:id/reviews")
	{
		reviews.GET("", h.listReviews)
		reviews.GET("/:review_id", h.getReview)
		reviews.POST("", auth.RequireAuth(), h.createReview)
		reviews.PUT("/:review_id", auth.RequireAuth(), h.updateReview)
		reviews.DELETE("/:review_id", auth.RequireAuth(), h.deleteReview)
	}

	v1.GET("/stock/low", auth.RequireStaff(), h.listLowStock)

	carts := v1.Group("/carts")
	{
		carts.POST("", h.createCart)
		carts.GET("/:id", h.getCart)
		carts.DELETE("/:id", h.deleteCart)
		carts.GET("/:id/items", h.listCartItems)
		carts.POST("/:id/items", h.addCartItem)
		carts.GET("/:id/items/:item_id", h.getCartItem)
		carts.PATCH("/:id/items/:item_id", h.updateCartItem)
		carts.DELETE("/:id/items/:item_id", h.deleteCartItem)
	}

	customers := v1.Group("/customers", auth.RequireAuth())
	{
		customers.GET("", auth.RequireStaff(), h.listCustomers)
		customers.GET("/me", h.getMyProfile)
		customers.PUT("/me", h.updateMyProfile)
		customers.GET("/me/addresses", h.listAddresses)
		customers.POST("/me/addresses", h.addAddress)
		customers.DELETE("/me/addresses/:address_id", h.deleteAddress)
		customers.GET("/:id", auth.RequireStaff(), h.getCustomer)
		customers.PATCH("/:id", auth.RequireStaff(), h.updateMembership)
	}

	orders := v1.Group("/orders", auth.RequireAuth())
	{
		orders.POST("", h.placeOrder)
		orders.GET("", h.listOrders)
		orders.GET("/:id", h.getOrder)
		orders.PATCH("/:id", auth.RequireStaff(), h.updateOrderStatus)
		orders.DELETE("/:id", auth.RequireStaff(), h.deleteOrder)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every registered dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unavailable",
			"details": failed,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Not found",
		})
		return 0, false
	}
	return id, true
}

func cartParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Not found",
		})
		return uuid.Nil, false
	}
	return id, true
}

func actorFrom(c *gin.Context) service.Actor {
	p, ok := auth.PrincipalFrom(c)
	if !ok {
		return service.Actor{}
	}
	return service.Actor{UserID: p.UserID, IsStaff: p.IsStaff}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		util.HTTPRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(duration)
		util.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
	}
}
