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
	// Feed metrics
	FeedMessages       *prometheus.CounterVec
	FeedMalformed      *prometheus.CounterVec
	FeedDropped        *prometheus.CounterVec
	FeedReconnects     prometheus.Counter
	FeedConnected      prometheus.Gauge
	FeedPaused         prometheus.Gauge
	FeedMessageLatency prometheus.Histogram

	// Aggregate store metrics
	TradesApplied    prometheus.Counter
	TradesDuplicate  prometheus.Counter
	SnapshotsApplied prometheus.Counter
	MintsTracked     prometheus.Gauge
	SweepDuration    prometheus.Histogram

	// Ledger metrics
	FillsRecorded *prometheus.CounterVec
	FillMessages  *prometheus.CounterVec
	OpenPositions prometheus.Gauge

	// Navigator metrics
	ActiveSessions prometheus.Gauge

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "activity_engine"
	}

	return &Metrics{
		FeedMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "messages_total",
			Help:      "Total number of feed messages applied by kind",
		}, []string{"kind"}),
		FeedMalformed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "malformed_messages_total",
			Help:      "Total number of malformed feed messages dropped by reason",
		}, []string{"reason"}),
		FeedDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "dropped_messages_total",
			Help:      "Total number of well-formed messages dropped by reason",
		}, []string{"reason"}),
		FeedReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "reconnects_total",
			Help:      "Total number of feed reconnect attempts",
		}),
		FeedConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "connected",
			Help:      "1 when the feed transport is connected",
		}),
		FeedPaused: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "paused",
			Help:      "1 when the exposed view is paused",
		}),
		FeedMessageLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "message_latency_seconds",
			Help:      "Feed message processing latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		TradesApplied: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregate",
			Name:      "trades_applied_total",
			Help:      "Total number of trades applied to mint aggregates",
		}),
		TradesDuplicate: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregate",
			Name:      "trades_duplicate_total",
			Help:      "Total number of replayed trades ignored",
		}),
		SnapshotsApplied: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregate",
			Name:      "snapshots_applied_total",
			Help:      "Total number of full snapshots applied",
		}),
		MintsTracked: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "aggregate",
			Name:      "mints_tracked",
			Help:      "Number of mints in the aggregate store",
		}),
		SweepDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "aggregate",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of trade window sweeps in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		FillsRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "fills_total",
			Help:      "Total number of confirmed fills processed by outcome",
		}, []string{"outcome"}),
		FillMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "fill_messages_total",
			Help:      "Total number of fill notifications consumed by result",
		}, []string{"result"}),
		OpenPositions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "open_positions",
			Help:      "Number of open positions",
		}),

		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "navigator",
			Name:      "active_sessions",
			Help:      "Number of live navigation sessions",
		}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by route and status",
		}, []string{"route", "status"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordFeedMessage increments the applied feed message counter.
func RecordFeedMessage(kind string, seconds float64) {
	DefaultMetrics.FeedMessages.WithLabelValues(kind).Inc()
	DefaultMetrics.FeedMessageLatency.Observe(seconds)
}

// RecordMalformed records a malformed feed message.
func RecordMalformed(reason string) {
	DefaultMetrics.FeedMalformed.WithLabelValues(reason).Inc()
}

// RecordFeedDropped records a well-formed message that was not applied.
func RecordFeedDropped(reason string) {
	DefaultMetrics.FeedDropped.WithLabelValues(reason).Inc()
}

// RecordReconnect increments the reconnect counter.
func RecordReconnect() {
	DefaultMetrics.FeedReconnects.Inc()
}

// SetFeedConnected updates the connectivity gauge.
func SetFeedConnected(connected bool) {
	DefaultMetrics.FeedConnected.Set(boolToFloat(connected))
}

// SetFeedPaused updates the pause gauge.
func SetFeedPaused(paused bool) {
	DefaultMetrics.FeedPaused.Set(boolToFloat(paused))
}

// RecordTrade records an applied or duplicate trade.
func RecordTrade(duplicate bool) {
	if duplicate {
		DefaultMetrics.TradesDuplicate.Inc()
		return
	}
	DefaultMetrics.TradesApplied.Inc()
}

// RecordSnapshot records a full snapshot replacement.
func RecordSnapshot(mints int) {
	DefaultMetrics.SnapshotsApplied.Inc()
	DefaultMetrics.MintsTracked.Set(float64(mints))
}

// UpdateMintsTracked sets the tracked mints gauge.
func UpdateMintsTracked(mints int) {
	DefaultMetrics.MintsTracked.Set(float64(mints))
}

// RecordSweep records a sweep run.
func RecordSweep(seconds float64) {
	DefaultMetrics.SweepDuration.Observe(seconds)
}

// RecordFill records a processed fill outcome.
func RecordFill(outcome string, openPositions int) {
	DefaultMetrics.FillsRecorded.WithLabelValues(outcome).Inc()
	DefaultMetrics.OpenPositions.Set(float64(openPositions))
}

// RecordFillMessage records how a fill notification was settled.
func RecordFillMessage(result string) {
	DefaultMetrics.FillMessages.WithLabelValues(result).Inc()
}

// UpdateActiveSessions sets the navigator sessions gauge.
func UpdateActiveSessions(n int) {
	DefaultMetrics.ActiveSessions.Set(float64(n))
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(route, status string) {
	DefaultMetrics.HTTPRequests.WithLabelValues(route, status).Inc()
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
