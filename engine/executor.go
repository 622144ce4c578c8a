package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rustyeddy/pairtrader/broker"
	"github.com/rustyeddy/pairtrader/journal"
	"github.com/rustyeddy/pairtrader/logging"
	"github.com/rustyeddy/pairtrader/market"
	"github.com/rustyeddy/pairtrader/metrics"
	"github.com/rustyeddy/pairtrader/notify"
	"github.com/rustyeddy/pairtrader/pkg/id"
	"github.com/rustyeddy/pairtrader/risk"
	"github.com/rustyeddy/pairtrader/strategies"
)

var ErrOrderInFlight = errors.New("order already in flight")

// Fill is what the executor learned about an executed order.
type Fill struct {
	Order    broker.Order
	Price    float64
	Quantity float64
	Quote    float64
	Fee      float64
}

// Executor places orders for one pair and records what filled.
type Executor struct {
	ex      broker.Exchange
	cfg     OrderConfig
	policy  risk.Policy
	pair    market.Pair
	journal journal.Journal
	notify  notify.Sink
	log     logging.LoggerInterface
	now     func() time.Time

	mu       sync.Mutex
	inflight map[string]bool
}

func NewExecutor(ex broker.Exchange, pair market.Pair, cfg OrderConfig, policy risk.Policy, j journal.Journal, sink notify.Sink, log logging.LoggerInterface) *Executor {
	if log == nil {
		log = logging.Nop()
	}
	if cfg.Mode == "" {
		cfg.Mode = ex.Name()
	}
	return &Executor{
		ex:       ex,
		cfg:      cfg,
		policy:   policy,
		pair:     pair,
		journal:  j,
		notify:   sink,
		log:      log,
		now:      time.Now,
		inflight: make(map[string]bool),
	}
}

func (x *Executor) acquire(key string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.inflight[key] {
		return false
	}
	x.inflight[key] = true
	return true
}

func (x *Executor) release(key string) {
	x.mu.Lock()
	delete(x.inflight, key)
	x.mu.Unlock()
}

// Execute buys or sells qty on behalf of the signal kind. price is the last
// close, used for the post-only limit and as the fill estimate when the
// exchange has not reported one yet.
func (x *Executor) Execute(ctx context.Context, side broker.Side, kind strategies.Signal, qty, price float64) (Fill, error) {
	key := string(side) + "/" + kind.String()
	if !x.acquire(key) {
		return Fill{}, fmt.Errorf("%s %s: %w", side, kind, ErrOrderInFlight)
	}
	defer x.release(key)

	if x.cfg.CancelStale {
		x.cancelStale(ctx)
	}

	if x.cfg.PostOnly {
		if f, ok := x.tryLimit(ctx, side, qty, price); ok {
			return f, nil
		}
	}

	order, err := x.ex.SubmitOrder(ctx, broker.OrderRequest{
		ClientID: id.New(),
		Pair:     x.pair.Name,
		Side:     side,
		Type:     broker.Market,
		Quantity: qty,
	})
	if err != nil {
		return Fill{}, x.failed(side, kind, qty, err)
	}
	metrics.Orders.WithLabelValues(x.cfg.Mode, string(side)).Inc()
	return x.fill(order, qty, price), nil
}

func (x *Executor) cancelStale(ctx context.Context) {
	open, err := x.ex.GetOpenOrders(ctx, x.pair.Name)
	if err != nil {
		x.log.Warning("list open orders: %v", err)
		return
	}
	for _, o := range open {
		if err := x.ex.CancelOrder(ctx, o.ID); err != nil {
			x.log.Warning("cancel stale order %s: %v", o.ID, err)
			continue
		}
		x.log.Info("cancelled stale %s order %s", o.Side, o.ID)
	}
}

// tryLimit places a post-only limit at price. A limit that does not fill at
// once is cancelled so the caller can fall back to market.
func (x *Executor) tryLimit(ctx context.Context, side broker.Side, qty, price float64) (Fill, bool) {
	label := string(side)
	order, err := x.ex.SubmitOrder(ctx, broker.OrderRequest{
		ClientID: id.New(),
		Pair:     x.pair.Name,
		Side:     side,
		Type:     broker.Limit,
		Quantity: qty,
		Price:    price,
		PostOnly: true,
	})
	if err != nil {
		x.log.Info("post-only %s limit at %.2f not placed: %v", side, price, err)
		return Fill{}, false
	}
	metrics.LimitPlaced.WithLabelValues(label).Inc()
	if order.Filled() {
		metrics.LimitFilled.WithLabelValues(label).Inc()
		metrics.Orders.WithLabelValues(x.cfg.Mode, label).Inc()
		return x.fill(order, qty, price), true
	}

	metrics.LimitTimeout.WithLabelValues(label).Inc()
	if err := x.ex.CancelOrder(ctx, order.ID); err != nil {
		x.log.Warning("cancel unfilled limit %s: %v", order.ID, err)
	}
	return Fill{}, false
}

func (x *Executor) fill(o broker.Order, qty, price float64) Fill {
	f := Fill{Order: o, Quantity: o.FilledQuantity, Price: o.AveragePrice}
	if f.Quantity <= 0 {
		f.Quantity = qty
	}
	if f.Price <= 0 {
		x.log.Warning("order %s reported no fill price, assuming %.2f", o.ID, price)
		f.Price = price
	}
	f.Quote = f.Quantity * f.Price
	f.Fee = o.Fee
	if f.Fee <= 0 {
		f.Fee = x.policy.Fee(f.Quote)
	}
	return f
}

func (x *Executor) failed(side broker.Side, kind strategies.Signal, qty float64, err error) error {
	reason := "exchange"
	level := notify.Error
	if errors.Is(err, broker.ErrInsufficientFunds) {
		reason = "insufficient_funds"
		level = notify.Warning
	}
	metrics.OrderFailures.WithLabelValues(reason).Inc()
	x.publish(level, "order", fmt.Sprintf("%s %s %.8f %s abandoned: %v", kind, side, qty, x.pair, err))
	return fmt.Errorf("%s %s: %w", side, kind, err)
}

// Record writes an executed trade to the journal and announces it.
func (x *Executor) Record(t journal.TradeRecord) {
	if t.Timestamp.IsZero() {
		t.Timestamp = x.now().UTC()
	}
	if t.Pair == "" {
		t.Pair = x.pair.Name
	}
	if t.ID == "" {
		t.ID = id.NewAt(t.Timestamp)
	}
	if x.journal != nil {
		if err := x.journal.RecordTrade(t); err != nil {
			x.log.Error("journal %s: %v", t.Action, err)
		}
	}
	msg := fmt.Sprintf("%s %.8f %s @ %.2f", t.Action, t.Quantity, t.Pair, t.Price)
	if t.PnL != 0 {
		msg += fmt.Sprintf(" pnl=%.2f", t.PnL)
	}
	if t.Reason != "" {
		msg += " (" + t.Reason + ")"
	}
	x.publish(notify.Info, "trade", msg)
}

func (x *Executor) publish(level notify.Level, kind, msg string) {
	if x.notify == nil {
		return
	}
	if err := x.notify.Publish(level, kind, msg); err != nil {
		x.log.Error("queue notification: %v", err)
	}
}
