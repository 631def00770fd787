// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RevenueComputationsTotal counts aggregator runs by mode (memory, server) and outcome.
	RevenueComputationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_revenue_computations_total",
			Help: "Total number of revenue aggregations",
		},
		[]string{"mode", "outcome"},
	)

	// RevenueComputationDuration tracks aggregation latency including the store query.
	RevenueComputationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "billing_revenue_computation_duration_seconds",
			Help:    "Duration of revenue aggregations in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"mode"},
	)

	// RevenueSkippedRecordsTotal counts payment records ignored as malformed.
	RevenueSkippedRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_revenue_skipped_records_total",
			Help: "Payment records skipped during revenue aggregation",
		},
		[]string{"reason"},
	)

	// RevenueBreakerOpen is 1 while the payment query breaker is open.
	RevenueBreakerOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "billing_revenue_breaker_open",
			Help: "Whether the payment query circuit breaker is open",
		},
	)

	// PaymentsRecordedTotal counts payments written by final status, type and source.
	PaymentsRecordedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_payments_recorded_total",
			Help: "Payments recorded by final status",
		},
		[]string{"status", "type", "source"},
	)
)
