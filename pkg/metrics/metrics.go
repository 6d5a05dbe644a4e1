package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for monitoring
var (
	TxTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cachekeeper_tx_transitions_total",
		Help: "Transaction lifecycle status transitions",
	}, []string{"from", "to"})

	TxConfirmationTime = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cachekeeper_tx_confirmation_seconds",
		Help:    "Time from submission to a terminal lifecycle status",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10), // Start at 1s with 10 buckets doubling in size
	}, []string{"chain_id", "status"})

	GasPrice = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cachekeeper_gas_price_gwei",
		Help: "Current gas price in gwei",
	}, []string{"chain_id"})

	GasCeilingExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cachekeeper_gas_ceiling_exceeded_total",
		Help: "Number of gas price observations above the configured maximum",
	}, []string{"chain_id"})

	MinBid = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cachekeeper_min_bid_eth",
		Help: "Last observed minimum bid for a program in ETH",
	}, []string{"chain_id", "program"})

	BidsPlaced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cachekeeper_bids_placed_total",
		Help: "Bid submissions by final status",
	}, []string{"chain_id", "status"})

	ReconcileOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cachekeeper_reconcile_outcomes_total",
		Help: "Post-confirmation reconciliation outcomes",
	}, []string{"outcome"})

	AutomationRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cachekeeper_automation_runs_total",
		Help: "Automated bid evaluations by result",
	}, []string{"result"})

	PermanentErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cachekeeper_permanent_errors_total",
		Help: "Total number of permanent errors that won't be retried",
	}, []string{"error_type"})

	BackendRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cachekeeper_backend_requests_total",
		Help: "Requests made to the dashboard backend",
	}, []string{"method", "status"})

	CircuitOpen = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cachekeeper_circuit_open",
		Help: "1 when the named circuit breaker is open",
	}, []string{"name"})

	UpdateSignals = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cachekeeper_update_signals_total",
		Help: "Update signals emitted by kind",
	}, []string{"kind"})
)
