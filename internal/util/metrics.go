package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CatalogQueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_queries_total",
		Help: "Total number of catalog page queries by cache outcome",
	}, []string{"cache"})

	CatalogQueryLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "catalog_query_latency_seconds",
		Help:    "Latency of catalog page queries against the database",
		Buckets: prometheus.DefBuckets,
	})

	CatalogInvalidationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_invalidations_total",
		Help: "Total number of catalog cache generations started",
	})

	CartUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_updates_total",
		Help: "Total number of cart and wishlist mutations",
	}, []string{"list", "op"})

	CheckoutsStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkouts_started_total",
		Help: "Total number of checkouts started",
	})

	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created",
	})

	CheckoutsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkouts_failed_total",
		Help: "Total number of failed checkouts",
	}, []string{"reason"})

	CheckoutRefundsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_refunds_total",
		Help: "Total number of compensating refunds",
	}, []string{"result"})

	OrderPersistRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "order_persist_retries_total",
		Help: "Total number of retried order writes",
	})

	PaymentAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_attempts_total",
		Help: "Total number of payment attempts",
	})

	PaymentSuccessTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_success_total",
		Help: "Total number of successful payments",
	})

	PaymentFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_failed_total",
		Help: "Total number of failed payments",
	})

	PaymentProcessingLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "payment_processing_latency_seconds",
		Help:    "Latency of payment processing",
		Buckets: prometheus.DefBuckets,
	})

	DownloadsIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "downloads_issued_total",
		Help: "Total number of download links handed out",
	})

	EventsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_processed_total",
		Help: "Total number of consumed events by type and outcome",
	}, []string{"type", "result"})

	RateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "http_rate_limited_total",
		Help: "Total number of requests rejected by the rate limiter",
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
