// Package metrics exposes the engine's Prometheus collectors.
//
// Collectors are registered in init() against the default registry and served
// by Handler() at /metrics:
//
//	trader_cycles_total{result}              cycles by outcome (ok|skip|fatal)
//	trader_cycle_duration_seconds            wall time per cycle
//	trader_decisions_total{signal}           confirmed signals (buy|sell|short|cover)
//	trader_orders_total{mode,side}           orders placed (mode: paper|live)
//	trader_order_failures_total{reason}      orders abandoned
//	trader_trades_total{result}              trades by result (open|win|loss)
//	trader_exit_reasons_total{reason,side}   exits by reason and closed side
//	trader_gate_count{kind}                  current confirmation count per gate
//	trader_reconcile_total{action}           reconciliation actions
//	trader_candle_fetch_failures_total       failed candle refreshes
//	trader_limit_orders_*_total{side}        post-only limit flow
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Cycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_cycles_total",
			Help: "Trading cycles by result",
		},
		[]string{"result"},
	)

	CycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "trader_cycle_duration_seconds",
			Help:    "Duration of one trading cycle",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
	)

	Decisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_decisions_total",
			Help: "Confirmed signals",
		},
		[]string{"signal"},
	)

	Orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_orders_total",
			Help: "Orders placed",
		},
		[]string{"mode", "side"},
	)

	OrderFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_order_failures_total",
			Help: "Orders abandoned by reason",
		},
		[]string{"reason"},
	)

	Trades = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_trades_total",
			Help: "Trades counted by result (open|win|loss)",
		},
		[]string{"result"},
	)

	ExitReasons = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_exit_reasons_total",
			Help: "Exits split by reason and side",
		},
		[]string{"reason", "side"},
	)

	Equity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trader_equity_quote",
			Help: "Wallet equity in quote currency at the last close",
		},
	)

	CumulativeProfit = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trader_cumulative_profit_quote",
			Help: "Realized profit since the profit file was created",
		},
	)

	PositionQuantity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trader_position_quantity",
			Help: "Open position quantity, negative for shorts",
		},
	)

	GateCount = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trader_gate_count",
			Help: "Current confirmation count per signal kind",
		},
		[]string{"kind"},
	)

	Reconciliations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_reconcile_total",
			Help: "Reconciliation actions taken",
		},
		[]string{"action"},
	)

	CandleFetchFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trader_candle_fetch_failures_total",
			Help: "Candle refreshes that failed on every endpoint",
		},
	)

	CandleWindow = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trader_candle_window",
			Help: "Candles held in the store",
		},
	)

	LimitPlaced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_limit_orders_placed_total",
			Help: "Post-only limit orders placed",
		},
		[]string{"side"},
	)

	LimitFilled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_limit_orders_filled_total",
			Help: "Post-only limit orders filled",
		},
		[]string{"side"},
	)

	LimitTimeout = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_limit_orders_timeout_total",
			Help: "Post-only limit orders cancelled and replaced by market",
		},
		[]string{"side"},
	)

	Notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_notifications_total",
			Help: "Notifications by state (queued|sent)",
		},
		[]string{"state"},
	)
)

func init() {
	prometheus.MustRegister(Cycles, CycleDuration, Decisions)
	prometheus.MustRegister(Orders, OrderFailures, Trades, ExitReasons)
	prometheus.MustRegister(Equity, CumulativeProfit, PositionQuantity, GateCount)
	prometheus.MustRegister(Reconciliations, CandleFetchFailures, CandleWindow)
	prometheus.MustRegister(LimitPlaced, LimitFilled, LimitTimeout)
	prometheus.MustRegister(Notifications)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// TradeResult labels a closed slice as win or loss.
func TradeResult(pnl float64) string {
	if pnl > 0 {
		return "win"
	}
	return "loss"
}
