// Package engine runs the trading cycle for one pair: refresh candles,
// compute indicators, reconcile the wallet, score, act through the
// confirmation gates and persist.
package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rustyeddy/pairtrader/broker"
	"github.com/rustyeddy/pairtrader/confirm"
	"github.com/rustyeddy/pairtrader/journal"
	"github.com/rustyeddy/pairtrader/logging"
	"github.com/rustyeddy/pairtrader/market"
	"github.com/rustyeddy/pairtrader/notify"
	"github.com/rustyeddy/pairtrader/position"
	"github.com/rustyeddy/pairtrader/reconcile"
	"github.com/rustyeddy/pairtrader/risk"
	"github.com/rustyeddy/pairtrader/strategies"
)

// Deps are the collaborators the engine talks to. Journal and Notify may be
// nil.
type Deps struct {
	Exchange broker.Exchange
	Journal  journal.Journal
	Notify   notify.Sink
	Log      logging.LoggerInterface
	Now      func() time.Time
}

type Engine struct {
	cfg Config
	st  *State

	ex      broker.Exchange
	scorer  *strategies.Scorer
	sizer   *risk.Sizer
	monitor *reconcile.Monitor
	exec    *Executor
	journal journal.Journal
	notify  notify.Sink
	log     logging.LoggerInterface
	now     func() time.Time

	running sync.Mutex
}

// NewState assembles engine state from its stores. The gate always starts
// with zero counts.
func NewState(pair market.Pair, candles *market.Store, ledger *position.Ledger, profit *journal.ProfitStore, gate confirm.Config) *State {
	g := confirm.New(gate)
	return &State{
		Pair:    pair,
		Candles: candles,
		Ledger:  ledger,
		Gate:    g,
		Profit:  profit,
		gates:   g.Counters(),
	}
}

func New(cfg Config, st *State, d Deps) (*Engine, error) {
	if st == nil || st.Candles == nil || st.Ledger == nil || st.Gate == nil || st.Profit == nil {
		return nil, errors.New("engine: incomplete state")
	}
	if d.Exchange == nil {
		return nil, errors.New("engine: no exchange")
	}
	if err := cfg.Trading.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Risk.Validate(); err != nil {
		return nil, err
	}
	if d.Log == nil {
		d.Log = logging.Nop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if cfg.Pair == "" {
		cfg.Pair = st.Pair.Name
	}
	if cfg.Pair != st.Pair.Name {
		return nil, fmt.Errorf("engine: config pair %s does not match state pair %s", cfg.Pair, st.Pair)
	}

	log := d.Log.With("pair", st.Pair.Name)
	exec := NewExecutor(d.Exchange, st.Pair, cfg.Orders, cfg.Risk, d.Journal, d.Notify, log)
	exec.now = d.Now

	return &Engine{
		cfg:     cfg,
		st:      st,
		ex:      d.Exchange,
		scorer:  strategies.NewScorer(cfg.Scoring, strategies.NewCandlePatterns()),
		sizer:   risk.NewSizer(cfg.Risk),
		monitor: reconcile.New(cfg.Reconcile, log),
		exec:    exec,
		journal: d.Journal,
		notify:  d.Notify,
		log:     log,
		now:     d.Now,
	}, nil
}

func (e *Engine) State() *State { return e.st }

// Status copies the current state for display.
func (e *Engine) Status() Status {
	s := Status{
		Pair:     e.st.Pair.Name,
		Position: e.st.Ledger.Position(),
		Profit:   e.st.Profit.Profit(),
	}
	e.st.mu.Lock()
	defer e.st.mu.Unlock()
	s.Gates = e.st.gates
	if e.st.balancesOK || len(e.st.balances) > 0 {
		s.Balances = make(broker.Balances, len(e.st.balances))
		for k, v := range e.st.balances {
			s.Balances[k] = v
		}
	}
	if !e.st.lastAt.IsZero() {
		last := e.st.last
		s.LastCycle = &last
	}
	return s
}

func (e *Engine) publish(level notify.Level, kind, format string, args ...any) {
	if e.notify == nil {
		return
	}
	if err := e.notify.Publish(level, kind, fmt.Sprintf(format, args...)); err != nil {
		e.log.Error("queue notification: %v", err)
	}
}
