// Package reconcile repairs drift between the wallet's base balance and the
// tracked long position.
package reconcile

import (
	"fmt"
	"math"
	"time"

	"github.com/rustyeddy/pairtrader/logging"
	"github.com/rustyeddy/pairtrader/metrics"
	"github.com/rustyeddy/pairtrader/position"
)

type Action int

const (
	None Action = iota
	AdjustUp
	Recover
	Shrink
	Close
)

func (a Action) String() string {
	switch a {
	case AdjustUp:
		return "adjust_up"
	case Recover:
		return "recover"
	case Shrink:
		return "shrink"
	case Close:
		return "close"
	default:
		return "none"
	}
}

type Config struct {
	// Tolerance is the relative difference ignored between wallet and ledger.
	Tolerance float64 `json:"tolerance" yaml:"tolerance"`
	// NoiseThreshold is the base balance treated as empty.
	NoiseThreshold float64 `json:"noise_threshold" yaml:"noise_threshold"`
}

func DefaultConfig() Config {
	return Config{Tolerance: 0.01, NoiseThreshold: 0.0001}
}

func (c Config) Validate() error {
	if c.Tolerance < 0 || c.Tolerance >= 1 {
		return fmt.Errorf("reconcile.tolerance must be within [0, 1)")
	}
	if c.NoiseThreshold < 0 {
		return fmt.Errorf("reconcile.noise_threshold must not be negative")
	}
	return nil
}

// Outcome describes the drift found by Check.
type Outcome struct {
	Action  Action
	Tracked float64
	Wallet  float64
	// Delta is wallet minus tracked.
	Delta float64
	Price float64
}

func (o Outcome) String() string {
	return fmt.Sprintf("%s tracked=%.8f wallet=%.8f", o.Action, o.Tracked, o.Wallet)
}

// Applied is the ledger effect of an outcome.
type Applied struct {
	Outcome Outcome
	PnL     float64
	Closed  bool
}

type Monitor struct {
	cfg Config
	log logging.LoggerInterface
	now func() time.Time
}

func New(cfg Config, log logging.LoggerInterface) *Monitor {
	if log == nil {
		log = logging.Nop()
	}
	return &Monitor{cfg: cfg, log: log, now: time.Now}
}

// Check compares the wallet against pos. Shorts are held on margin and are
// never reconciled against the base wallet.
func (m *Monitor) Check(pos *position.Position, walletBase, price float64) Outcome {
	o := Outcome{Wallet: walletBase, Price: price}

	if pos == nil {
		if walletBase > m.cfg.NoiseThreshold {
			o.Action = Recover
			o.Delta = walletBase
		}
		return o
	}
	if pos.Side == position.Short {
		return o
	}

	o.Tracked = pos.Quantity
	o.Delta = walletBase - pos.Quantity
	if math.Abs(o.Delta) <= m.cfg.Tolerance*pos.Quantity {
		return o
	}
	switch {
	case o.Delta > 0:
		o.Action = AdjustUp
	case walletBase <= m.cfg.NoiseThreshold:
		o.Action = Close
	default:
		o.Action = Shrink
	}
	return o
}

// Apply books o against the ledger. Increases are MANUAL transactions and
// decreases are synthetic EXITs whose realized PnL is returned. The ledger
// persists each change.
func (m *Monitor) Apply(ledger *position.Ledger, o Outcome) (Applied, error) {
	out := Applied{Outcome: o}
	if o.Action == None {
		return out, nil
	}
	if o.Price <= 0 {
		return out, fmt.Errorf("reconcile %s: no price", o.Action)
	}

	var err error
	switch o.Action {
	case AdjustUp:
		_, err = ledger.AverageIn(position.NewTransaction(position.Manual, o.Price, o.Delta, m.now()))
	case Recover:
		_, err = ledger.Recover(position.Long, o.Price, o.Wallet)
	case Shrink:
		out.PnL, out.Closed, err = ledger.PartialExit(-o.Delta, o.Price)
	case Close:
		out.PnL, out.Closed, err = ledger.PartialExit(o.Tracked, o.Price)
	}
	if err != nil {
		return out, fmt.Errorf("reconcile %s: %w", o.Action, err)
	}

	metrics.Reconciliations.WithLabelValues(o.Action.String()).Inc()
	m.log.Warning("reconciled position: %s at %.2f pnl=%.4f", o, o.Price, out.PnL)
	return out, nil
}
