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
	// Auction metrics
	BidsAccepted  prometheus.Counter
	BidsRejected  *prometheus.CounterVec
	AuctionsSwept *prometheus.CounterVec

	// Offer metrics
	OffersPlaced   prometheus.Counter
	OfferResponses *prometheus.CounterVec
	OffersExpired  prometheus.Counter

	// Settlement metrics
	SettlementsRecorded *prometheus.CounterVec
	SettlementFailures  prometheus.Counter

	// Money movement metrics
	PayoutsTotal      *prometheus.CounterVec
	RefundsTotal      *prometheus.CounterVec
	LamportsPaidOut   prometheus.Counter
	LamportsCollected *prometheus.CounterVec
	FeePeriodsClosed  prometheus.Counter

	// Chain metrics
	RPCCallLatency *prometheus.HistogramVec

	// Database metrics
	DBQueryErrors *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "fraction_market"
	}

	return &Metrics{
		BidsAccepted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auction",
			Name:      "bids_accepted_total",
			Help:      "Total number of bids accepted",
		}),
		BidsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auction",
			Name:      "bids_rejected_total",
			Help:      "Total number of bids rejected by reason",
		}, []string{"reason"}),
		AuctionsSwept: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auction",
			Name:      "auctions_swept_total",
			Help:      "Total number of auctions swept by outcome",
		}, []string{"outcome"}),

		OffersPlaced: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "offer",
			Name:      "placed_total",
			Help:      "Total number of offers placed",
		}),
		OfferResponses: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "offer",
			Name:      "responses_total",
			Help:      "Total number of seller responses by type",
		}, []string{"type"}),
		OffersExpired: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "offer",
			Name:      "expired_total",
			Help:      "Total number of offers expired by the sweep",
		}),

		SettlementsRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "recorded_total",
			Help:      "Total number of settlements recorded by source",
		}, []string{"source"}),
		SettlementFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "failures_total",
			Help:      "Total number of failed settlement attempts",
		}),

		PayoutsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payout",
			Name:      "attempts_total",
			Help:      "Total number of payout attempts by terminal status",
		}, []string{"status"}),
		RefundsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refund",
			Name:      "attempts_total",
			Help:      "Total number of refund attempts by terminal status",
		}, []string{"status"}),
		LamportsPaidOut: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payout",
			Name:      "lamports_total",
			Help:      "Total lamports paid out to earners",
		}),
		LamportsCollected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "revenue",
			Name:      "lamports_collected_total",
			Help:      "Total lamports collected by revenue kind",
		}, []string{"kind"}),
		FeePeriodsClosed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "revenue",
			Name:      "fee_periods_closed_total",
			Help:      "Total number of trading-fee windows closed",
		}),

		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordBidAccepted increments the accepted bids counter.
func RecordBidAccepted() {
	DefaultMetrics.BidsAccepted.Inc()
}

// RecordBidRejected increments the rejected bids counter for a reason.
func RecordBidRejected(reason string) {
	DefaultMetrics.BidsRejected.WithLabelValues(reason).Inc()
}

// RecordSweep increments the swept auctions counter for an outcome.
func RecordSweep(outcome string) {
	DefaultMetrics.AuctionsSwept.WithLabelValues(outcome).Inc()
}

// RecordSettlement increments the recorded settlements counter for a source.
func RecordSettlement(source string) {
	DefaultMetrics.SettlementsRecorded.WithLabelValues(source).Inc()
}

// RecordPayout increments the payout attempts counter for a terminal status.
func RecordPayout(status string) {
	DefaultMetrics.PayoutsTotal.WithLabelValues(status).Inc()
}

// RecordRefund increments the refund attempts counter for a terminal status.
func RecordRefund(status string) {
	DefaultMetrics.RefundsTotal.WithLabelValues(status).Inc()
}
