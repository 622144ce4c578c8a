package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rustyeddy/pairtrader/broker"
	"github.com/rustyeddy/pairtrader/journal"
	"github.com/rustyeddy/pairtrader/market"
	"github.com/rustyeddy/pairtrader/notify"
	"github.com/rustyeddy/pairtrader/risk"
	"github.com/rustyeddy/pairtrader/strategies"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingExchange answers orders from canned responses and records calls.
type recordingExchange struct {
	mu        sync.Mutex
	calls     []string
	open      []broker.Order
	limit     func(broker.OrderRequest) (broker.Order, error)
	market    func(broker.OrderRequest) (broker.Order, error)
	cancelled []string
}

func (r *recordingExchange) record(format string, args ...any) {
	r.mu.Lock()
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
	r.mu.Unlock()
}

func (r *recordingExchange) Name() string { return "test" }

func (r *recordingExchange) GetBalances(ctx context.Context) (broker.Balances, error) {
	return broker.Balances{}, nil
}

func (r *recordingExchange) GetCandles(ctx context.Context, pair string, g time.Duration, start, end time.Time) ([]market.Candle, error) {
	return nil, nil
}

func (r *recordingExchange) SubmitOrder(ctx context.Context, req broker.OrderRequest) (broker.Order, error) {
	r.record("submit %s %s", req.Type, req.Side)
	if req.Type == broker.Limit {
		return r.limit(req)
	}
	return r.market(req)
}

func (r *recordingExchange) CancelOrder(ctx context.Context, id string) error {
	r.record("cancel %s", id)
	r.mu.Lock()
	r.cancelled = append(r.cancelled, id)
	r.mu.Unlock()
	return nil
}

func (r *recordingExchange) GetOpenOrders(ctx context.Context, pair string) ([]broker.Order, error) {
	r.record("open %s", pair)
	return r.open, nil
}

func filled(req broker.OrderRequest, price float64) broker.Order {
	return broker.Order{
		ID:             "o-" + string(req.Type),
		Pair:           req.Pair,
		Side:           req.Side,
		Type:           req.Type,
		Status:         broker.StatusFilled,
		Quantity:       req.Quantity,
		FilledQuantity: req.Quantity,
		AveragePrice:   price,
	}
}

func newTestExecutor(t *testing.T, ex broker.Exchange, cfg OrderConfig) (*Executor, *notify.Queue) {
	t.Helper()
	pair, err := market.ParsePair("BTC-USD")
	require.NoError(t, err)
	q := notify.NewQueue(filepath.Join(t.TempDir(), "notifications.json"))
	return NewExecutor(ex, pair, cfg, risk.DefaultPolicy(), nil, q, nil), q
}

func TestExecutorMarketOrder(t *testing.T) {
	t.Parallel()

	ex := &recordingExchange{
		market: func(req broker.OrderRequest) (broker.Order, error) { return filled(req, 101), nil },
	}
	x, _ := newTestExecutor(t, ex, OrderConfig{})

	f, err := x.Execute(context.Background(), broker.Buy, strategies.Buy, 0.5, 100)
	require.NoError(t, err)
	assert.InDelta(t, 101, f.Price, 1e-12)
	assert.InDelta(t, 0.5, f.Quantity, 1e-12)
	assert.InDelta(t, 50.5, f.Quote, 1e-9)
	assert.InDelta(t, 50.5*risk.DefaultPolicy().FeeRate, f.Fee, 1e-12)
	assert.Equal(t, []string{"submit MARKET BUY"}, ex.calls)
}

func TestExecutorUsesReportedFee(t *testing.T) {
	t.Parallel()

	ex := &recordingExchange{
		market: func(req broker.OrderRequest) (broker.Order, error) {
			o := filled(req, 100)
			o.Fee = 0.07
			return o, nil
		},
	}
	x, _ := newTestExecutor(t, ex, OrderConfig{})

	f, err := x.Execute(context.Background(), broker.Buy, strategies.Buy, 0.5, 100)
	require.NoError(t, err)
	assert.InDelta(t, 0.07, f.Fee, 1e-12)
}

func TestExecutorEstimatesMissingFill(t *testing.T) {
	t.Parallel()

	ex := &recordingExchange{
		market: func(req broker.OrderRequest) (broker.Order, error) {
			return broker.Order{ID: "pending", Status: broker.StatusOpen}, nil
		},
	}
	x, _ := newTestExecutor(t, ex, OrderConfig{})

	f, err := x.Execute(context.Background(), broker.Sell, strategies.Sell, 0.25, 200)
	require.NoError(t, err)
	assert.InDelta(t, 200, f.Price, 1e-12)
	assert.InDelta(t, 0.25, f.Quantity, 1e-12)
	assert.InDelta(t, 50*risk.DefaultPolicy().FeeRate, f.Fee, 1e-12)
}

func TestExecutorPostOnly(t *testing.T) {
	t.Parallel()

	t.Run("filled limit skips market", func(t *testing.T) {
		ex := &recordingExchange{
			limit: func(req broker.OrderRequest) (broker.Order, error) {
				assert.True(t, req.PostOnly)
				assert.InDelta(t, 100, req.Price, 1e-12)
				return filled(req, req.Price), nil
			},
		}
		x, _ := newTestExecutor(t, ex, OrderConfig{PostOnly: true})

		f, err := x.Execute(context.Background(), broker.Buy, strategies.Buy, 1, 100)
		require.NoError(t, err)
		assert.Equal(t, "o-LIMIT", f.Order.ID)
		assert.Equal(t, []string{"submit LIMIT BUY"}, ex.calls)
	})

	t.Run("resting limit is cancelled", func(t *testing.T) {
		ex := &recordingExchange{
			limit: func(req broker.OrderRequest) (broker.Order, error) {
				return broker.Order{ID: "rest-1", Status: broker.StatusOpen}, nil
			},
			market: func(req broker.OrderRequest) (broker.Order, error) { return filled(req, 100.2), nil },
		}
		x, _ := newTestExecutor(t, ex, OrderConfig{PostOnly: true})

		f, err := x.Execute(context.Background(), broker.Buy, strategies.Buy, 1, 100)
		require.NoError(t, err)
		assert.Equal(t, "o-MARKET", f.Order.ID)
		assert.Equal(t, []string{"submit LIMIT BUY", "cancel rest-1", "submit MARKET BUY"}, ex.calls)
	})

	t.Run("crossing limit falls back", func(t *testing.T) {
		ex := &recordingExchange{
			limit: func(req broker.OrderRequest) (broker.Order, error) {
				return broker.Order{}, broker.ErrWouldCross
			},
			market: func(req broker.OrderRequest) (broker.Order, error) { return filled(req, 100), nil },
		}
		x, _ := newTestExecutor(t, ex, OrderConfig{PostOnly: true})

		_, err := x.Execute(context.Background(), broker.Sell, strategies.Sell, 1, 100)
		require.NoError(t, err)
		assert.Equal(t, []string{"submit LIMIT SELL", "submit MARKET SELL"}, ex.calls)
	})
}

func TestExecutorCancelsStaleOrders(t *testing.T) {
	t.Parallel()

	ex := &recordingExchange{
		open:   []broker.Order{{ID: "old-1"}, {ID: "old-2"}},
		market: func(req broker.OrderRequest) (broker.Order, error) { return filled(req, 100), nil },
	}
	x, _ := newTestExecutor(t, ex, OrderConfig{CancelStale: true})

	_, err := x.Execute(context.Background(), broker.Buy, strategies.Buy, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"old-1", "old-2"}, ex.cancelled)
	assert.Equal(t, "open BTC-USD", ex.calls[0])
}

func TestExecutorInsufficientFunds(t *testing.T) {
	t.Parallel()

	ex := &recordingExchange{
		market: func(req broker.OrderRequest) (broker.Order, error) {
			return broker.Order{}, fmt.Errorf("%w: need more", broker.ErrInsufficientFunds)
		},
	}
	x, q := newTestExecutor(t, ex, OrderConfig{})

	_, err := x.Execute(context.Background(), broker.Buy, strategies.Buy, 1, 100)
	require.ErrorIs(t, err, broker.ErrInsufficientFunds)
	assert.Len(t, ex.calls, 1, "no retry")

	notes, err := q.List()
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, notify.Warning, notes[0].Level)
	assert.Equal(t, "order", notes[0].Kind)
}

func TestExecutorOneOrderInFlightPerKind(t *testing.T) {
	t.Parallel()

	ex := &recordingExchange{
		market: func(req broker.OrderRequest) (broker.Order, error) { return filled(req, 100), nil },
	}
	x, _ := newTestExecutor(t, ex, OrderConfig{})

	require.True(t, x.acquire("BUY/buy"))
	_, err := x.Execute(context.Background(), broker.Buy, strategies.Buy, 1, 100)
	require.True(t, errors.Is(err, ErrOrderInFlight))

	_, err = x.Execute(context.Background(), broker.Sell, strategies.Sell, 1, 100)
	require.NoError(t, err, "other kinds are independent")

	x.release("BUY/buy")
	_, err = x.Execute(context.Background(), broker.Buy, strategies.Buy, 1, 100)
	require.NoError(t, err)
}

func TestExecutorRecord(t *testing.T) {
	t.Parallel()

	trades := journal.NewTradeLog(filepath.Join(t.TempDir(), "trades.json"))
	pair, err := market.ParsePair("BTC-USD")
	require.NoError(t, err)
	q := notify.NewQueue(filepath.Join(t.TempDir(), "notifications.json"))
	x := NewExecutor(&recordingExchange{}, pair, OrderConfig{}, risk.DefaultPolicy(), trades, q, nil)

	x.Record(journal.TradeRecord{Action: journal.ActionSell, Price: 100, Quantity: 0.5, PnL: 1.25, Reason: "signal"})

	recs, err := trades.Read()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "BTC-USD", recs[0].Pair)
	assert.NotEmpty(t, recs[0].ID)
	assert.False(t, recs[0].Timestamp.IsZero())

	notes, err := q.List()
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0].Message, "pnl=1.25")
	assert.Contains(t, notes[0].Message, "(signal)")
}
