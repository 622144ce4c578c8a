package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rustyeddy/pairtrader/broker"
	"github.com/rustyeddy/pairtrader/indicators"
	"github.com/rustyeddy/pairtrader/journal"
	"github.com/rustyeddy/pairtrader/market"
	"github.com/rustyeddy/pairtrader/metrics"
	"github.com/rustyeddy/pairtrader/notify"
	"github.com/rustyeddy/pairtrader/pkg/outcome"
	"github.com/rustyeddy/pairtrader/position"
	"github.com/rustyeddy/pairtrader/reconcile"
	"github.com/rustyeddy/pairtrader/risk"
	"github.com/rustyeddy/pairtrader/strategies"
)

// Cycle runs one trading pass. Overlapping calls return Skip.
func (e *Engine) Cycle(ctx context.Context) outcome.Result[CycleReport] {
	if !e.running.TryLock() {
		metrics.Cycles.WithLabelValues(outcome.KindSkip.String()).Inc()
		return outcome.Skip[CycleReport]("cycle already running")
	}
	defer e.running.Unlock()

	began := time.Now()
	res := e.cycle(ctx)
	metrics.CycleDuration.Observe(time.Since(began).Seconds())
	metrics.Cycles.WithLabelValues(res.Kind.String()).Inc()
	return res
}

// pass carries the values one cycle shares between its steps.
type pass struct {
	now      time.Time
	window   []market.Candle
	snap     indicators.Snapshot
	price    float64
	scores   strategies.Scores
	balances broker.Balances
	report   *CycleReport
}

func (p *pass) act(format string, args ...any) {
	p.report.Actions = append(p.report.Actions, fmt.Sprintf(format, args...))
}

func (p *pass) fail(err error) {
	p.report.Errors = append(p.report.Errors, err.Error())
}

func (e *Engine) cycle(ctx context.Context) outcome.Result[CycleReport] {
	st := e.st
	st.beginCycle()
	p := &pass{now: e.now(), report: &CycleReport{}}
	p.report.Time = p.now.UTC()

	// 1. balances
	balances, err := e.ex.GetBalances(ctx)
	if err != nil {
		e.log.Warning("balances unavailable, skipping reconciliation and orders: %v", err)
		p.fail(fmt.Errorf("balances: %w", err))
	} else {
		st.setBalances(balances)
		p.balances = balances
		p.report.BalancesOK = true
	}

	// 2. candles
	minLen := e.cfg.Indicators.MinLength()
	refreshed := st.Candles.Refresh(ctx, e.ex, st.Pair.Name, p.now, minLen)
	metrics.CandleWindow.Set(float64(st.Candles.Len()))
	if !refreshed.IsOk() {
		return outcome.Into[CycleReport](refreshed)
	}
	p.window = refreshed.Value
	p.report.Candles = len(p.window)

	// 3. indicators
	p.snap, err = indicators.Compute(p.window, e.cfg.Indicators)
	if errors.Is(err, indicators.ErrInsufficientData) {
		return outcome.Skip[CycleReport]("indicators: %v", err)
	}
	if err != nil {
		return outcome.Fatal[CycleReport](fmt.Errorf("indicators: %w", err))
	}
	p.price = p.snap.Close.Cur
	p.report.Price = p.price

	// 4. reconciliation
	if p.report.BalancesOK {
		e.reconcile(p)
	}

	// 5. scores
	p.scores = e.scorer.Score(p.window, p.snap)
	p.report.Scores = p.scores
	e.log.Debug("scores buy=%d sell=%d short=%d quality=%d pos=%.2f %s",
		p.scores.Buy, p.scores.Sell, p.scores.Short, p.scores.Quality, p.scores.PricePosition, p.scores.Reason())

	// 6. actions
	if p.report.BalancesOK {
		e.act(ctx, p)
	}

	// 7. persist and report
	e.persist(ctx, p)
	st.finish(*p.report)

	e.log.Info("cycle price=%.2f candles=%d gates=[%s] actions=%v", p.price, p.report.Candles, p.report.Gates, p.report.Actions)
	return outcome.Ok(*p.report)
}

func (e *Engine) reconcile(p *pass) {
	st := e.st
	o := e.monitor.Check(st.Ledger.Position(), p.balances.Get(st.Pair.Base), p.price)
	if o.Action == reconcile.None {
		return
	}
	entry := 0.0
	if pos := st.Ledger.Position(); pos != nil {
		entry = pos.WeightedEntryPrice
	}

	applied, err := e.monitor.Apply(st.Ledger, o)
	if err != nil {
		e.log.Error("%v", err)
		e.publish(notify.Error, "reconcile", "reconcile %s failed: %v", o.Action, err)
		p.fail(err)
		return
	}
	st.markAdjusted()
	p.report.Reconciled = o.String()

	if applied.PnL != 0 {
		if _, err := st.Profit.Add(applied.PnL); err != nil {
			e.log.Error("book reconcile profit: %v", err)
			p.fail(err)
		}
	}
	e.exec.Record(journal.TradeRecord{
		Timestamp:   p.now.UTC(),
		Action:      journal.ActionReconcile,
		Price:       p.price,
		Quantity:    math.Abs(o.Delta),
		QuoteAmount: math.Abs(o.Delta) * p.price,
		Reason:      o.Action.String(),
		EntryPrice:  entry,
		PnL:         applied.PnL,
		Side:        string(position.Long),
	})
	if applied.Closed {
		metrics.ExitReasons.WithLabelValues(string(position.ReasonReconcile), string(position.Long)).Inc()
		metrics.Trades.WithLabelValues(metrics.TradeResult(applied.PnL)).Inc()
	}
	e.publish(notify.Warning, "reconcile", "position reconciled: %s", o)
	p.act("reconcile %s", o.Action)
}

func (e *Engine) act(ctx context.Context, p *pass) {
	pos := e.st.Ledger.Position()
	switch {
	case pos == nil:
		e.actFlat(ctx, p)
	case pos.Side == position.Long:
		e.actLong(ctx, p, pos)
	default:
		e.actShort(ctx, p, pos)
	}
}

func (e *Engine) actFlat(ctx context.Context, p *pass) {
	g := e.st.Gate
	g.Reset(strategies.Sell)
	g.Reset(strategies.Cover)

	buy := g.Observe(strategies.Buy, p.scores.BuyOK, p.price, 0)
	short := g.Observe(strategies.ShortEntry, e.cfg.Trading.AllowShort && p.scores.ShortOK, p.price, 0)
	e.log.Debug("flat: buy %s short %s", buy, short)

	if e.st.Adjusted() {
		return
	}
	switch {
	case g.Confirmed(strategies.Buy):
		e.enter(ctx, p, position.Long, strategies.Buy)
	case g.Confirmed(strategies.ShortEntry):
		e.enter(ctx, p, position.Short, strategies.ShortEntry)
	}
}

func (e *Engine) enter(ctx context.Context, p *pass, side position.Side, kind strategies.Signal) {
	g := e.st.Gate
	defer g.Reset(kind)
	metrics.Decisions.WithLabelValues(kind.String()).Inc()

	stop, _ := e.st.Ledger.Config().Levels(side, p.price)
	plan := e.sizer.Plan(side, p.price, stop, p.balances.Get(e.st.Pair.Quote))
	if !plan.Tradable {
		e.log.Info("%s confirmed but not tradable: %s", kind, plan.Reason())
		metrics.OrderFailures.WithLabelValues("sizing").Inc()
		return
	}

	fill, err := e.exec.Execute(ctx, orderSide(side, true), kind, plan.Quantity, p.price)
	if err != nil {
		e.log.Error("%s entry: %v", kind, err)
		p.fail(err)
		return
	}
	stop, tp := e.st.Ledger.Config().Levels(side, fill.Price)
	if _, err := e.st.Ledger.Open(side, fill.Price, fill.Quantity, stop, tp); err != nil {
		e.log.Error("open %s position after fill %s: %v", side, fill.Order.ID, err)
		e.publish(notify.Error, "position", "order %s filled but position not opened: %v", fill.Order.ID, err)
		p.fail(err)
		return
	}
	g.ResetAll()

	action := journal.ActionBuy
	if side == position.Short {
		action = journal.ActionShort
	}
	e.exec.Record(journal.TradeRecord{
		Timestamp:   p.now.UTC(),
		Action:      action,
		Price:       fill.Price,
		Quantity:    fill.Quantity,
		QuoteAmount: fill.Quote,
		OrderID:     fill.Order.ID,
		Reason:      p.scores.ReasonFor(kind),
		EntryPrice:  fill.Price,
		Fee:         fill.Fee,
		Side:        string(side),
	})
	metrics.Trades.WithLabelValues("open").Inc()
	p.act("%s %.8f @ %.2f", action, fill.Quantity, fill.Price)
}

func (e *Engine) actLong(ctx context.Context, p *pass, pos *position.Position) {
	g := e.st.Gate
	g.Reset(strategies.ShortEntry)
	g.Reset(strategies.Cover)

	if e.stopped(ctx, p, pos) {
		return
	}

	tp := e.st.Ledger.TakeProfitReached(p.price)
	last := p.window[len(p.window)-1]
	holds := (tp && !last.Rising()) || p.scores.SellOK
	g.Observe(strategies.Sell, holds, p.price, p.scores.Patterns.Bearish)
	g.Observe(strategies.Buy, p.scores.BuyOK, p.price, 0)

	if g.Confirmed(strategies.Sell) {
		g.Reset(strategies.Sell)
		e.exitSignal(ctx, p, pos, tp)
		return
	}

	t := e.cfg.Trading
	dropped := p.price <= pos.WeightedEntryPrice*(1-t.AverageInDropPct)
	if dropped && pos.AverageIns < t.MaxAverageIns && g.Confirmed(strategies.Buy) && !e.st.Adjusted() {
		g.Reset(strategies.Buy)
		e.averageIn(ctx, p)
	}
}

func (e *Engine) actShort(ctx context.Context, p *pass, pos *position.Position) {
	g := e.st.Gate
	g.Reset(strategies.Buy)
	g.Reset(strategies.Sell)
	g.Reset(strategies.ShortEntry)

	if e.stopped(ctx, p, pos) {
		return
	}

	tp := e.st.Ledger.TakeProfitReached(p.price)
	last := p.window[len(p.window)-1]
	holds := (tp && !last.Falling()) || p.scores.CoverOK
	g.Observe(strategies.Cover, holds, p.price, p.scores.Patterns.Bullish)

	if g.Confirmed(strategies.Cover) {
		g.Reset(strategies.Cover)
		e.exitSignal(ctx, p, pos, tp)
	}
}

// stopped exits the whole position when the stop-loss or trailing stop is hit.
func (e *Engine) stopped(ctx context.Context, p *pass, pos *position.Position) bool {
	if e.st.Ledger.UpdateTrailingStop(p.price) {
		if cur := e.st.Ledger.Position(); cur != nil && cur.TrailingStopPrice != nil {
			p.act("trail %s stop to %.2f", pos.Side, *cur.TrailingStopPrice)
		}
	}
	reason, hit := e.st.Ledger.ShouldStop(p.price)
	if !hit {
		return false
	}
	e.exit(ctx, p, pos, pos.Quantity, reason)
	return true
}

func (e *Engine) exitSignal(ctx context.Context, p *pass, pos *position.Position, tp bool) {
	frac, reason := e.cfg.Trading.SignalExitFraction, position.ReasonSignal
	if tp {
		frac, reason = e.cfg.Trading.TakeProfitExitFraction, position.ReasonTakeProfit
	}
	qty := pos.Quantity
	if frac < 1 {
		part := risk.FloorToStep(pos.Quantity*frac, e.cfg.Risk.LotStep)
		rest := pos.Quantity - part
		// A slice or remainder too small to trade exits everything.
		if e.sizer.Admit(part, p.price).Tradable && e.sizer.Admit(rest, p.price).Tradable {
			qty = part
		}
	}
	e.exit(ctx, p, pos, qty, reason)
}

func (e *Engine) exit(ctx context.Context, p *pass, pos *position.Position, qty float64, reason position.ExitReason) {
	kind := strategies.Sell
	action := journal.ActionSell
	if pos.Side == position.Short {
		kind = strategies.Cover
		action = journal.ActionCover
	}
	metrics.Decisions.WithLabelValues(kind.String()).Inc()

	fill, err := e.exec.Execute(ctx, orderSide(pos.Side, false), kind, qty, p.price)
	if err != nil {
		e.log.Error("%s exit (%s): %v", pos.Side, reason, err)
		p.fail(err)
		return
	}
	pnl, closed, err := e.st.Ledger.PartialExit(math.Min(fill.Quantity, pos.Quantity), fill.Price)
	if err != nil {
		e.log.Error("record exit after fill %s: %v", fill.Order.ID, err)
		e.publish(notify.Error, "position", "order %s filled but exit not recorded: %v", fill.Order.ID, err)
		p.fail(err)
		return
	}
	if _, err := e.st.Profit.Add(pnl - fill.Fee); err != nil {
		e.log.Error("book profit: %v", err)
		p.fail(err)
	}
	if closed {
		e.st.Gate.ResetAll()
	}

	metrics.ExitReasons.WithLabelValues(string(reason), string(pos.Side)).Inc()
	metrics.Trades.WithLabelValues(metrics.TradeResult(pnl)).Inc()
	e.exec.Record(journal.TradeRecord{
		Timestamp:   p.now.UTC(),
		Action:      action,
		Price:       fill.Price,
		Quantity:    fill.Quantity,
		QuoteAmount: fill.Quote,
		OrderID:     fill.Order.ID,
		Reason:      string(reason),
		EntryPrice:  pos.WeightedEntryPrice,
		PnL:         pnl,
		Fee:         fill.Fee,
		Side:        string(pos.Side),
	})
	p.act("%s %.8f @ %.2f %s pnl=%.4f", action, fill.Quantity, fill.Price, reason, pnl)
}

func (e *Engine) averageIn(ctx context.Context, p *pass) {
	metrics.Decisions.WithLabelValues(strategies.Buy.String()).Inc()

	stop, _ := e.st.Ledger.Config().Levels(position.Long, p.price)
	plan := e.sizer.Plan(position.Long, p.price, stop, p.balances.Get(e.st.Pair.Quote))
	if !plan.Tradable {
		e.log.Info("average-in not tradable: %s", plan.Reason())
		return
	}
	fill, err := e.exec.Execute(ctx, broker.Buy, strategies.Buy, plan.Quantity, p.price)
	if err != nil {
		e.log.Error("average-in: %v", err)
		p.fail(err)
		return
	}
	tx := position.NewTransaction(position.AverageIn, fill.Price, fill.Quantity, p.now)
	tx.QuoteAmount = fill.Quote
	pos, err := e.st.Ledger.AverageIn(tx)
	if err != nil {
		e.log.Error("record average-in after fill %s: %v", fill.Order.ID, err)
		e.publish(notify.Error, "position", "order %s filled but average-in not recorded: %v", fill.Order.ID, err)
		p.fail(err)
		return
	}
	e.exec.Record(journal.TradeRecord{
		Timestamp:   p.now.UTC(),
		Action:      journal.ActionAverageIn,
		Price:       fill.Price,
		Quantity:    fill.Quantity,
		QuoteAmount: fill.Quote,
		OrderID:     fill.Order.ID,
		Reason:      p.scores.ReasonFor(strategies.Buy),
		EntryPrice:  pos.WeightedEntryPrice,
		Fee:         fill.Fee,
		Side:        string(position.Long),
	})
	p.act("AVERAGE_IN %.8f @ %.2f entry now %.2f", fill.Quantity, fill.Price, pos.WeightedEntryPrice)
}

func (e *Engine) persist(ctx context.Context, p *pass) {
	st := e.st
	st.Ledger.SetConfirmationState(st.Gate.String())
	if err := st.Ledger.Save(); err != nil {
		e.log.Error("save position: %v", err)
		p.fail(err)
	}
	p.report.Gates = st.Gate.String()
	for kind, c := range st.Gate.Counters() {
		metrics.GateCount.WithLabelValues(kind).Set(float64(c.Count))
	}

	qty := 0.0
	if pos := st.Ledger.Position(); pos != nil {
		qty = pos.Quantity * pos.Side.Sign()
	}
	metrics.PositionQuantity.Set(qty)
	profit := st.Profit.Profit()
	metrics.CumulativeProfit.Set(profit)

	if !p.report.BalancesOK {
		return
	}
	b := p.balances
	if len(p.report.Actions) > 0 {
		if fresh, err := e.ex.GetBalances(ctx); err == nil {
			b = fresh
			st.setBalances(fresh)
		}
	}
	base, quote := b.Get(st.Pair.Base), b.Get(st.Pair.Quote)
	equity := quote + base*p.price
	p.report.Equity = equity
	metrics.Equity.Set(equity)
	if e.journal != nil {
		err := e.journal.RecordEquity(journal.EquitySnapshot{
			Time:   p.now.UTC(),
			Price:  p.price,
			Base:   base,
			Quote:  quote,
			Equity: equity,
			Profit: profit,
		})
		if err != nil {
			e.log.Warning("record equity: %v", err)
		}
	}
}

// orderSide maps a position side to the order that opens or closes it.
func orderSide(side position.Side, opening bool) broker.Side {
	if (side == position.Long) == opening {
		return broker.Buy
	}
	return broker.Sell
}
