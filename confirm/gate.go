// Package confirm debounces trade signals. A signal must hold for a number of
// consecutive cycles before it is acted on; counters live in memory only and
// start from zero after a restart.
package confirm

import (
	"fmt"
	"strings"

	"github.com/rustyeddy/pairtrader/strategies"
)

type State int

const (
	Idle State = iota
	Accumulating
	Confirmed
)

func (s State) String() string {
	switch s {
	case Accumulating:
		return "accumulating"
	case Confirmed:
		return "confirmed"
	default:
		return "idle"
	}
}

// Config sets the required counts per kind and the reset behaviour.
type Config struct {
	BuyRequired   int `json:"buy_required" yaml:"buy_required"`
	SellRequired  int `json:"sell_required" yaml:"sell_required"`
	ShortRequired int `json:"short_required" yaml:"short_required"`
	CoverRequired int `json:"cover_required" yaml:"cover_required"`

	// ResetTolerance is the adverse move, as a fraction of the reference
	// price, that resets a counter.
	ResetTolerance float64 `json:"reset_tolerance" yaml:"reset_tolerance"`
	// AnchorFirst measures adverse moves from the price where counting
	// started instead of the previous cycle, so a slow drift also resets.
	AnchorFirst bool `json:"anchor_first" yaml:"anchor_first"`

	// Aggressive keeps counting through adverse moves but holds at
	// required-1 while the move exceeds AggressivePauseMove.
	Aggressive          bool    `json:"aggressive" yaml:"aggressive"`
	AggressivePauseMove float64 `json:"aggressive_pause_move" yaml:"aggressive_pause_move"`

	// MaxPatternBoost bounds the extra increments a pattern may add per cycle.
	MaxPatternBoost int `json:"max_pattern_boost" yaml:"max_pattern_boost"`
}

func DefaultConfig() Config {
	return Config{
		BuyRequired:         4,
		SellRequired:        5,
		ShortRequired:       4,
		CoverRequired:       5,
		ResetTolerance:      0.0015,
		AggressivePauseMove: 0.003,
		MaxPatternBoost:     2,
	}
}

func (c Config) Validate() error {
	if c.BuyRequired <= 0 || c.SellRequired <= 0 || c.ShortRequired <= 0 || c.CoverRequired <= 0 {
		return fmt.Errorf("confirmation required counts must be positive")
	}
	if c.ResetTolerance <= 0 || c.ResetTolerance >= 0.1 {
		return fmt.Errorf("confirmation.reset_tolerance must be within (0, 0.1)")
	}
	if c.Aggressive && c.AggressivePauseMove <= 0 {
		return fmt.Errorf("confirmation.aggressive_pause_move must be positive in aggressive mode")
	}
	if c.MaxPatternBoost < 0 {
		return fmt.Errorf("confirmation.max_pattern_boost must not be negative")
	}
	return nil
}

func (c Config) required(kind strategies.Signal) int {
	var n int
	switch kind {
	case strategies.Buy:
		n = c.BuyRequired
	case strategies.Sell:
		n = c.SellRequired
	case strategies.ShortEntry:
		n = c.ShortRequired
	case strategies.Cover:
		n = c.CoverRequired
	}
	return max(n, 1)
}

// direction is +1 for kinds that expect price to rise, -1 for falls.
func direction(kind strategies.Signal) float64 {
	if kind == strategies.Sell || kind == strategies.ShortEntry {
		return -1
	}
	return 1
}

// Counter is the confirmation state of one signal kind.
type Counter struct {
	Count              int     `json:"count"`
	Required           int     `json:"required"`
	LastReferencePrice float64 `json:"lastReferencePrice"`
	AnchorPrice        float64 `json:"anchorPrice,omitempty"`
	State              State   `json:"state"`
}

func (c Counter) String() string {
	return fmt.Sprintf("%d/%d", c.Count, c.Required)
}

// Kinds lists the gated signal kinds in display order.
var Kinds = []strategies.Signal{strategies.Buy, strategies.Sell, strategies.ShortEntry, strategies.Cover}

// Gate holds one counter per signal kind. It is not safe for concurrent use;
// the trading cycle is its only caller.
type Gate struct {
	cfg      Config
	counters map[strategies.Signal]*Counter
}

func New(cfg Config) *Gate {
	g := &Gate{cfg: cfg, counters: make(map[strategies.Signal]*Counter)}
	for _, k := range Kinds {
		g.counters[k] = &Counter{Required: cfg.required(k)}
	}
	return g
}

func (g *Gate) counter(kind strategies.Signal) *Counter {
	c, ok := g.counters[kind]
	if !ok {
		c = &Counter{Required: g.cfg.required(kind)}
		g.counters[kind] = c
	}
	return c
}

// Observe feeds one cycle's evaluation of kind. holds reports whether the
// underlying condition is true this cycle, price is the reference price and
// boost the number of supporting pattern detections. It returns the updated
// counter.
//
// A lapse of the condition returns the counter to Idle. While it holds, the
// count grows by 1 plus the bounded boost and never exceeds Required. In
// normal mode a move against the signal beyond ResetTolerance since the last
// reference price (or the anchor, with AnchorFirst) resets the count to 0;
// smaller adverse moves do not.
func (g *Gate) Observe(kind strategies.Signal, holds bool, price float64, boost int) Counter {
	c := g.counter(kind)
	if !holds {
		c.clear()
		return *c
	}
	if price <= 0 || c.State == Confirmed {
		return *c
	}

	inc := 1 + min(max(boost, 0), g.cfg.MaxPatternBoost)

	if c.State == Idle || c.LastReferencePrice <= 0 {
		c.State = Accumulating
		c.Count = min(inc, c.Required)
		c.LastReferencePrice = price
		c.AnchorPrice = price
		g.settle(c)
		return *c
	}

	ref := c.LastReferencePrice
	if g.cfg.AnchorFirst && c.AnchorPrice > 0 {
		ref = c.AnchorPrice
	}
	move := direction(kind) * (price - ref) / ref
	next := min(c.Count+inc, c.Required)

	if g.cfg.Aggressive {
		if move < -g.cfg.AggressivePauseMove && next >= c.Required {
			next = c.Required - 1
		}
	} else if move < -g.cfg.ResetTolerance {
		next = 0
		c.AnchorPrice = price
	}

	c.Count = max(next, 0)
	c.LastReferencePrice = price
	g.settle(c)
	return *c
}

func (g *Gate) settle(c *Counter) {
	if c.Count >= c.Required {
		c.Count = c.Required
		c.State = Confirmed
	}
}

// Confirmed reports whether kind has reached its required count.
func (g *Gate) Confirmed(kind strategies.Signal) bool {
	return g.counter(kind).State == Confirmed
}

// Reset returns kind to Idle, typically after its action was taken.
func (g *Gate) Reset(kind strategies.Signal) {
	g.counter(kind).clear()
}

func (c *Counter) clear() {
	c.Count = 0
	c.LastReferencePrice = 0
	c.AnchorPrice = 0
	c.State = Idle
}

func (g *Gate) ResetAll() {
	for _, k := range Kinds {
		g.Reset(k)
	}
}

// Counter returns a copy of kind's counter.
func (g *Gate) Counter(kind strategies.Signal) Counter {
	return *g.counter(kind)
}

// Counters returns copies of all counters keyed by signal name.
func (g *Gate) Counters() map[string]Counter {
	out := make(map[string]Counter, len(Kinds))
	for _, k := range Kinds {
		out[k.String()] = *g.counter(k)
	}
	return out
}

// String renders "buy:1/4 sell:0/5 short:0/4 cover:0/5".
func (g *Gate) String() string {
	parts := make([]string, 0, len(Kinds))
	for _, k := range Kinds {
		parts = append(parts, k.String()+":"+g.counter(k).String())
	}
	return strings.Join(parts, " ")
}
