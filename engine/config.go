package engine

import (
	"fmt"
	"time"

	"github.com/rustyeddy/pairtrader/confirm"
	"github.com/rustyeddy/pairtrader/indicators"
	"github.com/rustyeddy/pairtrader/position"
	"github.com/rustyeddy/pairtrader/reconcile"
	"github.com/rustyeddy/pairtrader/risk"
	"github.com/rustyeddy/pairtrader/strategies"
)

// TradingConfig covers position management beyond the first entry.
type TradingConfig struct {
	AllowShort bool `json:"allow_short" yaml:"allow_short"`

	// AverageInDropPct is how far below the weighted entry price must fall
	// before a long adds to itself. It has to stay inside the stop-loss
	// distance or the stop always fires first.
	AverageInDropPct float64 `json:"average_in_drop_pct" yaml:"average_in_drop_pct"`
	MaxAverageIns    int     `json:"max_average_ins" yaml:"max_average_ins"`

	SignalExitFraction     float64 `json:"signal_exit_fraction" yaml:"signal_exit_fraction"`
	TakeProfitExitFraction float64 `json:"take_profit_exit_fraction" yaml:"take_profit_exit_fraction"`
}

func DefaultTradingConfig() TradingConfig {
	return TradingConfig{
		AverageInDropPct:       0.005,
		MaxAverageIns:          2,
		SignalExitFraction:     0.5,
		TakeProfitExitFraction: 1.0,
	}
}

func (c TradingConfig) Validate() error {
	if c.AverageInDropPct < 0 || c.AverageInDropPct >= 1 {
		return fmt.Errorf("trading.average_in_drop_pct must be within [0, 1)")
	}
	if c.MaxAverageIns < 0 {
		return fmt.Errorf("trading.max_average_ins must not be negative")
	}
	for name, v := range map[string]float64{
		"signal_exit_fraction":      c.SignalExitFraction,
		"take_profit_exit_fraction": c.TakeProfitExitFraction,
	} {
		if v <= 0 || v > 1 {
			return fmt.Errorf("trading.%s must be within (0, 1]", name)
		}
	}
	return nil
}

// OrderConfig controls how the executor places orders.
type OrderConfig struct {
	// PostOnly tries a maker limit at the last close first and falls back
	// to a market order when it does not fill at once.
	PostOnly bool `json:"post_only" yaml:"post_only"`
	// CancelStale cancels open orders for the pair before each submission.
	CancelStale bool `json:"cancel_stale" yaml:"cancel_stale"`
	// Mode labels order metrics, e.g. paper or live.
	Mode string `json:"-" yaml:"-"`
}

func DefaultOrderConfig() OrderConfig {
	return OrderConfig{CancelStale: true, Mode: "live"}
}

// Config is everything the engine needs to decide.
type Config struct {
	Pair         string
	Granularity  time.Duration
	Indicators   indicators.Params
	Scoring      strategies.Config
	Confirmation confirm.Config
	Position     position.Config
	Risk         risk.Policy
	Reconcile    reconcile.Config
	Trading      TradingConfig
	Orders       OrderConfig
}

func DefaultConfig() Config {
	return Config{
		Pair:         "BTC-USD",
		Granularity:  15 * time.Minute,
		Indicators:   indicators.DefaultParams(),
		Scoring:      strategies.DefaultConfig(),
		Confirmation: confirm.DefaultConfig(),
		Position:     position.DefaultConfig(),
		Risk:         risk.DefaultPolicy(),
		Reconcile:    reconcile.DefaultConfig(),
		Trading:      DefaultTradingConfig(),
		Orders:       DefaultOrderConfig(),
	}
}
