package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PurchasesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ticketing_purchases_total",
		Help: "Purchase transitions by resulting status.",
	}, []string{"status"})

	ValidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ticketing_validations_total",
		Help: "Ticket validation scans by outcome.",
	}, []string{"outcome"})

	RefundsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ticketing_refunds_total",
		Help: "Refund requests by resulting status.",
	}, []string{"status"})

	GatewayDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ticketing_gateway_duration_seconds",
		Help:    "Latency of payment gateway calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ticketing_http_request_duration_seconds",
		Help:    "Latency of HTTP requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)
