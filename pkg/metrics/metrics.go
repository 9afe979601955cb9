// Package metrics registers the engine's Prometheus collectors, exposed at
// GET /metrics. Grounded on the teacher's pkg/metrics package, retargeted
// from exchange-wide HTTP/DB metrics to the matching/ingress/stats domain
// this repository actually implements.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// OrdersProcessed counts orders the consumer has run through matchOrder,
	// by side.
	OrdersProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matchengine_orders_processed_total",
			Help: "Total number of orders processed by the matching engine",
		},
		[]string{"side"},
	)

	// TradesExecuted counts trades produced by the matching engine, by
	// symbol.
	TradesExecuted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matchengine_trades_executed_total",
			Help: "Total number of trades executed by the matching engine",
		},
		[]string{"symbol"},
	)

	// OrderProcessingLatency records the time spent in matchOrder per
	// order.
	OrderProcessingLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "matchengine_order_processing_latency_seconds",
			Help:    "Latency in seconds to match a single incoming order",
			Buckets: prometheus.DefBuckets,
		},
	)

	// StatsQueueDepth tracks the statistics collector's MPSC queue
	// occupancy.
	StatsQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "matchengine_stats_queue_depth",
			Help: "Current number of unprocessed trade events queued for the statistics collector",
		},
	)

	// StatsDropped counts trade events the statistics collector dropped
	// because its queue was full.
	StatsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "matchengine_stats_events_dropped_total",
			Help: "Total number of trade events dropped because the statistics queue was full",
		},
	)

	// BusPublishErrors counts failed Bus.Publish calls.
	BusPublishErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "matchengine_bus_publish_errors_total",
			Help: "Total number of ingress bus publish failures",
		},
	)
)

func init() {
	prometheus.MustRegister(
		OrdersProcessed,
		TradesExecuted,
		OrderProcessingLatency,
		StatsQueueDepth,
		StatsDropped,
		BusPublishErrors,
	)
}
