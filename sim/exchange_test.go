package sim

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rustyeddy/pairtrader/broker"
	"github.com/rustyeddy/pairtrader/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newExchange(t *testing.T, path string) *Exchange {
	t.Helper()
	pair, err := market.ParsePair("BTC-USD")
	require.NoError(t, err)
	e, err := New(Config{Pair: pair, StartQuote: 10000, FeeRate: 0.001}, path, nil)
	require.NoError(t, err)
	e.AddCandles(market.Candle{Start: 900, Open: 100, High: 101, Low: 99, Close: 100, Volume: 1})
	return e
}

func marketOrder(side broker.Side, qty float64) broker.OrderRequest {
	return broker.OrderRequest{Pair: "BTC-USD", Side: side, Type: broker.Market, Quantity: qty}
}

func TestMarketOrdersMoveBalances(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newExchange(t, "")

	o, err := e.SubmitOrder(ctx, marketOrder(broker.Buy, 10))
	require.NoError(t, err)
	assert.True(t, o.Filled())
	assert.InDelta(t, 100, o.AveragePrice, 1e-12)
	assert.InDelta(t, 1, o.Fee, 1e-12)

	bal, err := e.GetBalances(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 10, bal.Get("BTC"), 1e-12)
	assert.InDelta(t, 8999, bal.Get("USD"), 1e-9)

	e.AddCandles(market.Candle{Start: 1800, Open: 100, High: 111, Low: 100, Close: 110, Volume: 1})
	_, err = e.SubmitOrder(ctx, marketOrder(broker.Sell, 10))
	require.NoError(t, err)

	bal, _ = e.GetBalances(ctx)
	assert.Zero(t, bal.Get("BTC"))
	assert.InDelta(t, 8999+1100-1.1, bal.Get("USD"), 1e-9)
}

func TestInsufficientFunds(t *testing.T) {
	t.Parallel()

	e := newExchange(t, "")
	_, err := e.SubmitOrder(context.Background(), marketOrder(broker.Buy, 100))
	assert.True(t, errors.Is(err, broker.ErrInsufficientFunds))

	_, err = e.SubmitOrder(context.Background(), marketOrder(broker.Sell, 1))
	assert.ErrorIs(t, err, broker.ErrInsufficientFunds)
}

func TestPostOnlyLimit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newExchange(t, "")

	_, err := e.SubmitOrder(ctx, broker.OrderRequest{Pair: "BTC-USD", Side: broker.Buy, Type: broker.Limit, Quantity: 1, Price: 100.5, PostOnly: true})
	assert.ErrorIs(t, err, broker.ErrWouldCross)

	o, err := e.SubmitOrder(ctx, broker.OrderRequest{Pair: "BTC-USD", Side: broker.Buy, Type: broker.Limit, Quantity: 1, Price: 98, PostOnly: true})
	require.NoError(t, err)
	assert.Equal(t, broker.StatusOpen, o.Status)

	open, err := e.GetOpenOrders(ctx, "BTC-USD")
	require.NoError(t, err)
	require.Len(t, open, 1)

	// A candle trading down through 98 fills the resting bid.
	e.AddCandles(market.Candle{Start: 1800, Open: 100, High: 100, Low: 97.5, Close: 98.5, Volume: 1})
	open, _ = e.GetOpenOrders(ctx, "")
	assert.Empty(t, open)
	bal, _ := e.GetBalances(ctx)
	assert.InDelta(t, 1, bal.Get("BTC"), 1e-12)

	o, err = e.SubmitOrder(ctx, broker.OrderRequest{Pair: "BTC-USD", Side: broker.Sell, Type: broker.Limit, Quantity: 1, Price: 120})
	require.NoError(t, err)
	require.NoError(t, e.CancelOrder(ctx, o.ID))
	assert.Error(t, e.CancelOrder(ctx, o.ID))
}

func TestGetCandlesFiltersRange(t *testing.T) {
	t.Parallel()

	e := newExchange(t, "")
	e.AddCandles(
		market.Candle{Start: 1800, Close: 101},
		market.Candle{Start: 2700, Close: 102},
		market.Candle{Start: 1800, Close: 999}, // older than last: ignored
	)
	cs, err := e.GetCandles(context.Background(), "BTC-USD", 15*time.Minute, time.Unix(1000, 0), time.Unix(3000, 0))
	require.NoError(t, err)
	require.Len(t, cs, 2)
	assert.Equal(t, 101.0, cs[0].Close)

	last, ok := e.LastPrice()
	assert.True(t, ok)
	assert.Equal(t, 102.0, last)
}

type stubSource struct{ candles []market.Candle }

func (s stubSource) GetCandles(ctx context.Context, pair string, g time.Duration, start, end time.Time) ([]market.Candle, error) {
	return s.candles, nil
}

func TestSourceFeedsPrices(t *testing.T) {
	t.Parallel()

	e := newExchange(t, "")
	e.SetSource(stubSource{candles: []market.Candle{{Start: 1800, Close: 150}}})

	_, err := e.GetCandles(context.Background(), "BTC-USD", 15*time.Minute, time.Unix(0, 0), time.Unix(3000, 0))
	require.NoError(t, err)
	last, _ := e.LastPrice()
	assert.Equal(t, 150.0, last)
}

func TestWalletPersists(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "wallet.json")
	e := newExchange(t, path)
	_, err := e.SubmitOrder(context.Background(), marketOrder(broker.Buy, 2))
	require.NoError(t, err)

	again := newExchange(t, path)
	bal, _ := again.GetBalances(context.Background())
	assert.InDelta(t, 2, bal.Get("BTC"), 1e-12)
}
