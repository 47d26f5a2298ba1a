// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// RPC pool metrics
	RPCAttempts     *prometheus.CounterVec
	RPCFailures     *prometheus.CounterVec
	RPCCallLatency  *prometheus.HistogramVec
	RPCPoolFailures *prometheus.CounterVec

	// Decoder metrics
	TransactionsDecoded *prometheus.CounterVec
	DecoderFallbacks    *prometheus.CounterVec
	UnknownLayouts      prometheus.Counter

	// Ingestion metrics
	NotificationsReceived *prometheus.CounterVec
	EventsPublished       *prometheus.CounterVec
	EventProcessingErrors *prometheus.CounterVec
	HighestSlotSeen       prometheus.Gauge

	// Trading metrics
	TradesTotal        *prometheus.CounterVec
	TradeDuration      *prometheus.HistogramVec
	BlockhashRetries   prometheus.Counter
	OperationsInFlight *prometheus.GaugeVec

	// Storage metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
	SinkErrors      *prometheus.CounterVec

	// Health metrics
	LastEventTimestamp prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "pumpfun_engine"
	}

	return &Metrics{
		// RPC pool metrics
		RPCAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "attempts_total",
			Help:      "Total number of RPC attempts by endpoint and operation",
		}, []string{"endpoint", "op"}),
		RPCFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "failures_total",
			Help:      "Total number of failed or empty RPC attempts by endpoint and operation",
		}, []string{"endpoint", "op"}),
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_latency_seconds",
			Help:      "RPC attempt latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint", "op"}),
		RPCPoolFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "pool_failures_total",
			Help:      "Total number of calls where every endpoint failed",
		}, []string{"op", "timed_out"}),

		// Decoder metrics
		TransactionsDecoded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decoder",
			Name:      "transactions_total",
			Help:      "Total number of decoded transactions by result",
		}, []string{"result"}),
		DecoderFallbacks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decoder",
			Name:      "fallbacks_total",
			Help:      "Total number of decoder fallbacks by name",
		}, []string{"fallback"}),
		UnknownLayouts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decoder",
			Name:      "unknown_layouts_total",
			Help:      "Total number of program data lines with an unrecognized discriminator",
		}),

		// Ingestion metrics
		NotificationsReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "notifications_total",
			Help:      "Total number of stream notifications received by source",
		}, []string{"source"}),
		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "events_published_total",
			Help:      "Total number of typed events published by kind",
		}, []string{"kind"}),
		EventProcessingErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "event_processing_errors_total",
			Help:      "Total number of event processing errors by source and type",
		}, []string{"source", "error_type"}),
		HighestSlotSeen: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "highest_slot_seen",
			Help:      "Highest Solana slot number seen",
		}),

		// Trading metrics
		TradesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "operations_total",
			Help:      "Total number of trading operations by kind and outcome",
		}, []string{"kind", "outcome"}),
		TradeDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "operation_duration_seconds",
			Help:      "Trading operation duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"kind"}),
		BlockhashRetries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "blockhash_retries_total",
			Help:      "Total number of submissions retried with a fresh blockhash",
		}),
		OperationsInFlight: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "operations_in_flight",
			Help:      "Number of trading operations currently in flight by kind",
		}, []string{"kind"}),

		// Storage metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
		SinkErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "sink_errors_total",
			Help:      "Total number of event sink failures by sink and kind",
		}, []string{"sink", "kind"}),

		// Health metrics
		LastEventTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_event_timestamp",
			Help:      "Unix timestamp of the last published event",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordRPCAttempt records one attempt against an endpoint.
func RecordRPCAttempt(endpoint, op string, seconds float64, failed bool) {
	DefaultMetrics.RPCAttempts.WithLabelValues(endpoint, op).Inc()
	DefaultMetrics.RPCCallLatency.WithLabelValues(endpoint, op).Observe(seconds)
	if failed {
		DefaultMetrics.RPCFailures.WithLabelValues(endpoint, op).Inc()
	}
}

// RecordRPCPoolFailure records a call where no endpoint produced a result.
func RecordRPCPoolFailure(op string, timedOut bool) {
	label := "false"
	if timedOut {
		label = "true"
	}
	DefaultMetrics.RPCPoolFailures.WithLabelValues(op, label).Inc()
}

// RecordDecoded records a decoder outcome (create, buy, sell, ignored, send_error, unknown_layout).
func RecordDecoded(result string) {
	DefaultMetrics.TransactionsDecoded.WithLabelValues(result).Inc()
}

// RecordFallback records a named decoder fallback.
func RecordFallback(name string) {
	DefaultMetrics.DecoderFallbacks.WithLabelValues(name).Inc()
}

// RecordUnknownLayout increments the unknown discriminator counter.
func RecordUnknownLayout() {
	DefaultMetrics.UnknownLayouts.Inc()
}

// RecordNotification records a stream notification.
func RecordNotification(source string) {
	DefaultMetrics.NotificationsReceived.WithLabelValues(source).Inc()
}

// RecordEventPublished records a typed event published to the bus.
func RecordEventPublished(kind string, unixSeconds int64) {
	DefaultMetrics.EventsPublished.WithLabelValues(kind).Inc()
	DefaultMetrics.LastEventTimestamp.Set(float64(unixSeconds))
}

// RecordEventError records an event processing error.
func RecordEventError(source, errorType string) {
	DefaultMetrics.EventProcessingErrors.WithLabelValues(source, errorType).Inc()
}

// UpdateHighestSlot updates the highest slot seen gauge.
func UpdateHighestSlot(slot int64) {
	DefaultMetrics.HighestSlotSeen.Set(float64(slot))
}

// RecordTrade records a finished trading operation.
func RecordTrade(kind, outcome string, durationSeconds float64) {
	DefaultMetrics.TradesTotal.WithLabelValues(kind, outcome).Inc()
	DefaultMetrics.TradeDuration.WithLabelValues(kind).Observe(durationSeconds)
}

// RecordBlockhashRetry increments the blockhash retry counter.
func RecordBlockhashRetry() {
	DefaultMetrics.BlockhashRetries.Inc()
}

// SetInFlight sets the in-flight gauge for an operation kind.
func SetInFlight(kind string, n int64) {
	DefaultMetrics.OperationsInFlight.WithLabelValues(kind).Set(float64(n))
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordSinkError records an event sink failure.
func RecordSinkError(sink, kind string) {
	DefaultMetrics.SinkErrors.WithLabelValues(sink, kind).Inc()
}
