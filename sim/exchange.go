// Package sim is an in-process paper exchange. Market orders fill at the last
// candle close with optional slippage; resting limits fill when a later
// candle trades through them.
package sim

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rustyeddy/pairtrader/broker"
	"github.com/rustyeddy/pairtrader/internal/store"
	"github.com/rustyeddy/pairtrader/logging"
	"github.com/rustyeddy/pairtrader/market"
	"github.com/rustyeddy/pairtrader/pkg/id"
)

type Config struct {
	Pair market.Pair

	StartQuote float64 `json:"start_quote" yaml:"start_quote"`
	StartBase  float64 `json:"start_base" yaml:"start_base"`
	FeeRate    float64 `json:"fee_rate" yaml:"fee_rate"`
	// Slippage worsens market fills by this fraction.
	Slippage float64 `json:"slippage" yaml:"slippage"`
	// AllowMargin lets sells exceed the base balance so shorts can open.
	AllowMargin bool `json:"allow_margin" yaml:"allow_margin"`
}

type Exchange struct {
	mu       sync.Mutex
	cfg      Config
	path     string
	balances broker.Balances
	candles  []market.Candle
	orders   map[string]*broker.Order
	source   market.Fetcher
	log      logging.LoggerInterface
	now      func() time.Time
}

// wallet is the persisted paper balance sheet.
type wallet struct {
	Balances broker.Balances `json:"balances"`
}

// New returns a paper exchange. When path is set the wallet is restored from
// and saved to it so paper positions survive restarts.
func New(cfg Config, path string, log logging.LoggerInterface) (*Exchange, error) {
	if log == nil {
		log = logging.Nop()
	}
	e := &Exchange{
		cfg:    cfg,
		path:   path,
		orders: make(map[string]*broker.Order),
		log:    log,
		now:    time.Now,
		balances: broker.Balances{
			cfg.Pair.Base:  cfg.StartBase,
			cfg.Pair.Quote: cfg.StartQuote,
		},
	}
	if path != "" {
		var w wallet
		found, err := store.ReadJSON(path, &w)
		switch {
		case errors.Is(err, store.ErrCorrupt):
			log.Warning("discarding paper wallet: %v", err)
		case err != nil:
			return nil, fmt.Errorf("load paper wallet: %w", err)
		case found && w.Balances != nil:
			e.balances = w.Balances
		}
	}
	return e, nil
}

func (e *Exchange) Name() string { return "paper" }

// SetSource makes GetCandles delegate to f, typically a live client, so
// paper trading follows real prices.
func (e *Exchange) SetSource(f market.Fetcher) {
	e.mu.Lock()
	e.source = f
	e.mu.Unlock()
}

func (e *Exchange) SetClock(now func() time.Time) {
	e.mu.Lock()
	e.now = now
	e.mu.Unlock()
}

// AddCandles feeds price history. The newest close becomes the fill price
// and resting limits are checked against each new candle.
func (e *Exchange) AddCandles(cs ...market.Candle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.addLocked(cs)
}

func (e *Exchange) addLocked(cs []market.Candle) {
	for _, c := range cs {
		n := len(e.candles)
		switch {
		case n == 0 || c.Start > e.candles[n-1].Start:
			e.candles = append(e.candles, c)
		case c.Start == e.candles[n-1].Start:
			e.candles[n-1] = c
		default:
			continue
		}
		e.matchLocked(c)
	}
}

// SetBalance overrides one asset, for tests and manual adjustments.
func (e *Exchange) SetBalance(asset string, v float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.balances[asset] = v
	e.saveLocked()
}

func (e *Exchange) LastPrice() (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastLocked()
}

func (e *Exchange) lastLocked() (float64, bool) {
	if len(e.candles) == 0 {
		return 0, false
	}
	return e.candles[len(e.candles)-1].Close, true
}

func (e *Exchange) GetBalances(ctx context.Context) (broker.Balances, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(broker.Balances, len(e.balances))
	for k, v := range e.balances {
		out[k] = v
	}
	return out, nil
}

func (e *Exchange) GetCandles(ctx context.Context, pair string, granularity time.Duration, start, end time.Time) ([]market.Candle, error) {
	e.mu.Lock()
	src := e.source
	e.mu.Unlock()

	if src != nil {
		cs, err := src.GetCandles(ctx, pair, granularity, start, end)
		if err != nil {
			return nil, err
		}
		e.AddCandles(cs...)
		return cs, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	var out []market.Candle
	for _, c := range e.candles {
		if c.Start >= start.Unix() && c.Start <= end.Unix() {
			out = append(out, c)
		}
	}
	return out, nil
}

func (e *Exchange) SubmitOrder(ctx context.Context, req broker.OrderRequest) (broker.Order, error) {
	if err := req.Validate(); err != nil {
		return broker.Order{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	last, ok := e.lastLocked()
	if !ok {
		return broker.Order{}, fmt.Errorf("paper: no price for %s", req.Pair)
	}

	o := &broker.Order{
		ID:        id.WithPrefix("paper"),
		ClientID:  req.ClientID,
		Pair:      req.Pair,
		Side:      req.Side,
		Type:      req.Type,
		Quantity:  req.Quantity,
		Price:     req.Price,
		Status:    broker.StatusOpen,
		CreatedAt: e.now().UTC(),
	}

	if req.Type == broker.Limit {
		crosses := (req.Side == broker.Buy && req.Price >= last) || (req.Side == broker.Sell && req.Price <= last)
		if crosses && req.PostOnly {
			return broker.Order{}, fmt.Errorf("%w: %s %.2f vs last %.2f", broker.ErrWouldCross, req.Side, req.Price, last)
		}
		if !crosses {
			e.orders[o.ID] = o
			e.log.Debug("paper: resting %s limit %.8f @ %.2f", o.Side, o.Quantity, o.Price)
			return *o, nil
		}
		last = req.Price
	} else {
		if req.Side == broker.Buy {
			last *= 1 + e.cfg.Slippage
		} else {
			last *= 1 - e.cfg.Slippage
		}
	}

	if err := e.fillLocked(o, last); err != nil {
		return broker.Order{}, err
	}
	return *o, nil
}

func (e *Exchange) fillLocked(o *broker.Order, price float64) error {
	base, quote := e.cfg.Pair.Base, e.cfg.Pair.Quote
	notional := o.Quantity * price
	fee := notional * e.cfg.FeeRate

	switch o.Side {
	case broker.Buy:
		if e.balances[quote] < notional+fee {
			return fmt.Errorf("%w: need %.2f %s, have %.2f", broker.ErrInsufficientFunds, notional+fee, quote, e.balances[quote])
		}
		e.balances[quote] -= notional + fee
		e.balances[base] += o.Quantity
	case broker.Sell:
		if !e.cfg.AllowMargin && e.balances[base] < o.Quantity*(1-1e-9) {
			return fmt.Errorf("%w: need %.8f %s, have %.8f", broker.ErrInsufficientFunds, o.Quantity, base, e.balances[base])
		}
		e.balances[base] -= o.Quantity
		if !e.cfg.AllowMargin && e.balances[base] < 0 {
			e.balances[base] = 0
		}
		e.balances[quote] += notional - fee
	}

	o.Status = broker.StatusFilled
	o.FilledQuantity = o.Quantity
	o.AveragePrice = price
	o.Fee = fee
	delete(e.orders, o.ID)
	e.saveLocked()
	e.log.Info("paper fill %s %.8f %s @ %.2f fee=%.4f", o.Side, o.Quantity, o.Pair, price, fee)
	return nil
}

// matchLocked fills resting limits the candle traded through.
func (e *Exchange) matchLocked(c market.Candle) {
	ids := make([]string, 0, len(e.orders))
	for id := range e.orders {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		o := e.orders[id]
		hit := (o.Side == broker.Buy && c.Low <= o.Price) || (o.Side == broker.Sell && c.High >= o.Price)
		if !hit {
			continue
		}
		if err := e.fillLocked(o, o.Price); err != nil {
			o.Status = broker.StatusRejected
			delete(e.orders, id)
			e.log.Warning("paper: limit %s rejected: %v", id, err)
		}
	}
}

func (e *Exchange) CancelOrder(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.orders[id]
	if !ok {
		return fmt.Errorf("paper: order %q not open", id)
	}
	o.Status = broker.StatusCancelled
	delete(e.orders, id)
	return nil
}

func (e *Exchange) GetOpenOrders(ctx context.Context, pair string) ([]broker.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]broker.Order, 0, len(e.orders))
	for _, o := range e.orders {
		if pair == "" || o.Pair == pair {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (e *Exchange) saveLocked() {
	if e.path == "" {
		return
	}
	if err := store.WriteJSON(e.path, wallet{Balances: e.balances}); err != nil {
		e.log.Error("save paper wallet: %v", err)
	}
}

var _ broker.Exchange = (*Exchange)(nil)
