package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters and histograms for the core flows. Registered on the default
// registry and served by promhttp from main.
var (
	LedgerOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "travo_ledger_operations_total",
		Help: "Ledger apply operations by kind and result",
	}, []string{"kind", "result"})

	MeteredUnits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "travo_metered_units_total",
		Help: "Metered send units by channel and outcome",
	}, []string{"channel", "outcome"})

	PaymentReconciliations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "travo_payment_reconciliations_total",
		Help: "Payment reconcile calls by resulting intent status",
	}, []string{"status"})

	WebhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "travo_webhook_deliveries_total",
		Help: "Webhook delivery attempts by result",
	}, []string{"result"})

	WebhookDeliveryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "travo_webhook_delivery_duration_seconds",
		Help:    "Webhook delivery attempt latency",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 30},
	})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "travo_http_requests_total",
		Help: "HTTP requests by method, path and status",
	}, []string{"method", "path", "status"})
)
