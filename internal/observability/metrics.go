package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the settlement service.
type Metrics struct {
	// --- Rounds ---
	RoundsSettled  prometheus.Counter
	RoundsFailed   *prometheus.CounterVec
	RoundDuration  prometheus.Histogram
	RoundSequence  prometheus.Gauge
	PartialApplied prometheus.Gauge

	// --- Transactions ---
	Submissions         *prometheus.CounterVec
	SubmissionsRejected *prometheus.CounterVec
	TxSettled           *prometheus.CounterVec
	TxSkipped           *prometheus.CounterVec
	PendingDepth        prometheus.Gauge
	PositionsOpened     prometheus.Counter

	// --- Interest ---
	InterestAccruals prometheus.Counter
	InterestNet      prometheus.Gauge
	BankInterestRate prometheus.Gauge

	// --- Delivery ---
	MessagesDelivered prometheus.Counter
	DeliveryFailures  *prometheus.CounterVec

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryErrors   *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics on the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers all metrics on reg.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	roundBuckets := []float64{
		0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005,
		0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1,
	}

	return &Metrics{
		// Rounds
		RoundsSettled: factory.NewCounter(prometheus.CounterOpts{
			Name: "ledger_rounds_settled_total",
			Help: "Settlement rounds run to completion",
		}),

		RoundsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_rounds_failed_total",
			Help: "Settlement rounds aborted or rejected",
		}, []string{"reason"}),

		RoundDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ledger_round_duration_seconds",
			Help:    "Wall time of one drain/settle/accrue/report pass",
			Buckets: roundBuckets,
		}),

		RoundSequence: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ledger_round_sequence",
			Help: "Number of the last round invoked",
		}),

		PartialApplied: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ledger_partial_state",
			Help: "1 while the account store carries an unacknowledged partially-applied round",
		}),

		// Transactions
		Submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_submissions_total",
			Help: "Transactions accepted into the pending queue",
		}, []string{"kind"}),

		SubmissionsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_submissions_rejected_total",
			Help: "Submissions rejected as malformed",
		}, []string{"kind"}),

		TxSettled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_transactions_settled_total",
			Help: "Transactions settled by kind",
		}, []string{"kind"}),

		TxSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_transactions_skipped_total",
			Help: "Drained transactions whose effects were skipped",
		}, []string{"kind", "reason"}),

		PendingDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ledger_pending_queue_depth",
			Help: "Transactions drained at the start of the last round",
		}),

		PositionsOpened: factory.NewCounter(prometheus.CounterOpts{
			Name: "ledger_market_positions_opened_total",
			Help: "Market positions created on first trade for a timeslot",
		}),

		// Interest
		InterestAccruals: factory.NewCounter(prometheus.CounterOpts{
			Name: "ledger_interest_accruals_total",
			Help: "Per-participant interest postings",
		}),

		InterestNet: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ledger_interest_net_last",
			Help: "Net interest posted at the last accrual instant",
		}),

		BankInterestRate: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ledger_bank_interest_rate",
			Help: "Resolved annual bank interest rate",
		}),

		// Delivery
		MessagesDelivered: factory.NewCounter(prometheus.CounterOpts{
			Name: "ledger_messages_delivered_total",
			Help: "Messages handed to the transport",
		}),

		DeliveryFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_delivery_failures_total",
			Help: "Transport failures by channel",
		}, []string{"channel"}),

		// Query API
		QueryRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_query_requests_total",
			Help: "HTTP gateway requests by route",
		}, []string{"route"}),

		QueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_query_errors_total",
			Help: "HTTP gateway errors by route and code",
		}, []string{"route", "code"}),
	}
}
