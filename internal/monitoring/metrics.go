package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Signal metrics
	proposalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fx_engine_proposals_total",
			Help: "Total number of trade proposals generated",
		},
		[]string{"instrument", "regime"},
	)

	rejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fx_engine_rejections_total",
			Help: "Total number of rejected trade attempts",
		},
		[]string{"reason"},
	)

	// Routing metrics
	ordersRoutedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fx_engine_orders_routed_total",
			Help: "Total number of orders routed to executors",
		},
		[]string{"account_id"},
	)

	executionFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fx_engine_execution_failures_total",
			Help: "Total number of failed executor calls",
		},
		[]string{"account_id"},
	)

	orderUnits = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fx_engine_order_units",
			Help:    "Distribution of routed order sizes",
			Buckets: prometheus.ExponentialBuckets(100, 4, 8),
		},
		[]string{"instrument"},
	)

	// Account metrics
	accountHalted = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fx_engine_account_halted",
			Help: "Whether the account is halted for the day (1 or 0)",
		},
		[]string{"account_id"},
	)

	// Market data metrics
	currentPrice = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fx_engine_current_price",
			Help: "Last observed mid price per instrument",
		},
		[]string{"instrument"},
	)
)

func init() {
	// Register metrics
	prometheus.MustRegister(proposalsTotal)
	prometheus.MustRegister(rejectionsTotal)
	prometheus.MustRegister(ordersRoutedTotal)
	prometheus.MustRegister(executionFailuresTotal)
	prometheus.MustRegister(orderUnits)
	prometheus.MustRegister(accountHalted)
	prometheus.MustRegister(currentPrice)
}

// MetricsHandler handles Prometheus metrics endpoint
type MetricsHandler struct{}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{}
}

// ServeHTTP serves the Prometheus metrics endpoint
func (m *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// RecordProposal records a generated trade proposal
func RecordProposal(instrument, regime string) {
	proposalsTotal.WithLabelValues(instrument, regime).Inc()
}

// RecordRejection records a rejected trade attempt
func RecordRejection(reason string) {
	rejectionsTotal.WithLabelValues(reason).Inc()
}

// RecordOrderRouted records an order handed to an executor
func RecordOrderRouted(accountID, instrument string, units float64) {
	ordersRoutedTotal.WithLabelValues(accountID).Inc()
	orderUnits.WithLabelValues(instrument).Observe(units)
}

// RecordExecutionFailure records a failed executor call
func RecordExecutionFailure(accountID string) {
	executionFailuresTotal.WithLabelValues(accountID).Inc()
}

// UpdateHalted updates the halted gauge for an account
func UpdateHalted(accountID string, halted bool) {
	v := 0.0
	if halted {
		v = 1.0
	}
	accountHalted.WithLabelValues(accountID).Set(v)
}

// UpdatePrice updates the current price metric
func UpdatePrice(instrument string, price float64) {
	currentPrice.WithLabelValues(instrument).Set(price)
}
