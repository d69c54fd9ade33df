package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// QuotesServed counts quote computations by outcome (ok/rejected/unavailable).
var QuotesServed = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "rubex_quotes_served_total",
		Help: "Total number of quote requests computed",
	},
	[]string{"outcome"},
)

// OrdersCreated counts submitted exchange orders.
var OrdersCreated = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "rubex_orders_created_total",
		Help: "Total number of exchange orders created",
	},
)

// OrderIDCollisions counts observed short-id generation collisions.
// Collisions are expected to be near zero; a nonzero rate warrants
// investigation.
var OrderIDCollisions = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "rubex_order_id_collisions_total",
		Help: "Total number of short order id collisions hit during generation",
	},
)

// WithdrawalsCreated counts accepted partner payout requests.
var WithdrawalsCreated = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "rubex_withdrawals_created_total",
		Help: "Total number of withdrawal requests created",
	},
)

// BonusCredited counts referral bonus accruals.
var BonusCredited = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "rubex_bonus_credited_total",
		Help: "Total number of referral bonus credits applied",
	},
)

// RateRefreshes counts rate feed refresh cycles by status (ok/error).
var RateRefreshes = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "rubex_rate_refreshes_total",
		Help: "Total number of rate snapshot refresh attempts",
	},
	[]string{"status"},
)

func init() {
	prometheus.MustRegister(QuotesServed, OrdersCreated, OrderIDCollisions)
	prometheus.MustRegister(WithdrawalsCreated, BonusCredited, RateRefreshes)
}
