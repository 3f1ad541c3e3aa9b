package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersPlacedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_orders_placed_total",
		Help: "Total number of orders placed through checkout",
	})

	CheckoutFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_checkout_failed_total",
		Help: "Total number of failed checkouts",
	}, []string{"reason"})

	CheckoutLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "storefront_checkout_latency_seconds",
		Help:    "Latency of the checkout transaction",
		Buckets: prometheus.DefBuckets,
	})

	UnitsSoldTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_units_sold_total",
		Help: "Total number of product units sold",
	})

	StockLowTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_stock_low_total",
		Help: "Total number of times a product dropped to its reorder threshold",
	})

	StockCacheResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_stock_cache_results_total",
		Help: "Stock cache lookups by result",
	}, []string{"result"})

	CartsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_carts_created_total",
		Help: "Total number of carts created",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
