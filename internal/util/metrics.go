package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CartMutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_cart_mutations_total",
		Help: "Cart mutations by operation and outcome",
	}, []string{"op", "outcome"})

	StoreFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_store_failures_total",
		Help: "Key-value store reads or writes that failed and were recovered",
	}, []string{"op"})

	CatalogFallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_catalog_fallbacks_total",
		Help: "Category requests served from the default category",
	}, []string{"category"})

	CheckoutAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_checkout_attempts_total",
		Help: "Total number of checkout submissions",
	})

	CheckoutRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_checkout_rejected_total",
		Help: "Checkout submissions rejected before reaching the backend",
	}, []string{"reason"})

	CheckoutSucceededTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_checkout_succeeded_total",
		Help: "Total number of successful checkouts",
	})

	CheckoutFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_checkout_failed_total",
		Help: "Checkout submissions that failed at the backend",
	}, []string{"reason"})

	OrderSubmissionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "storefront_order_submission_latency_seconds",
		Help:    "Latency of order submission calls",
		Buckets: prometheus.DefBuckets,
	})

	OrdersArchivedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_orders_archived_total",
		Help: "Orders written to the archive by the order worker",
	})

	OrderIDCollisionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_order_id_collisions_total",
		Help: "New order events whose order id was already archived",
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
