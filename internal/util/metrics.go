package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LoginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_logins_total",
		Help: "Total number of login and register attempts",
	}, []string{"kind", "result"})

	LogoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_logouts_total",
		Help: "Total number of session teardowns",
	}, []string{"reason"})

	SessionRestoresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_restores_total",
		Help: "Outcome of boot-time session restoration",
	}, []string{"result"})

	CartMutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_mutations_total",
		Help: "Total number of cart operations",
	}, []string{"op", "mode", "result"})

	CartSyncLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cart_sync_latency_seconds",
		Help:    "Latency of cart round trips including queueing behind other mutations",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	CartItemsSanitizedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cart_items_sanitized_total",
		Help: "Cart items whose product snapshot was rebuilt with placeholder values",
	})

	PaymentLaunchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_app_launches_total",
		Help: "Total number of UPI app launches",
	}, []string{"app", "result"})

	PaymentReturnsDetectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_app_returns_detected_total",
		Help: "Total number of visibility transitions that ended an app hand-off",
	})

	OrdersSubmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_submitted_total",
		Help: "Total number of order submissions",
	}, []string{"method", "result"})

	OrderSubmissionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "order_submission_latency_seconds",
		Help:    "Latency of order creation round trips",
		Buckets: prometheus.DefBuckets,
	})

	NotificationsReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_received_total",
		Help: "Total number of realtime notifications stored",
	}, []string{"type"})

	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "backend_request_duration_seconds",
		Help:    "Latency of outbound storefront API requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

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
