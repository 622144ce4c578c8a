package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rustyeddy/pairtrader/broker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)

	c, err := NewClient(Config{Name: "test", BaseURL: server.URL, Token: "test-token", Timeout: 5 * time.Second})
	require.NoError(t, err)
	return c
}

func TestNewClientDefaults(t *testing.T) {
	c, err := NewClient(Config{})
	require.NoError(t, err)
	assert.Equal(t, DefaultURL, c.baseURL)
	assert.Equal(t, DefaultURL, c.Name())
	assert.Equal(t, 15*time.Second, c.httpClient.Timeout)
}

func TestGetBalances(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/brokerage/accounts", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		w.Write([]byte(`{"accounts":[
			{"currency":"BTC","available_balance":{"value":"0.12345678","currency":"BTC"}},
			{"currency":"usd","available_balance":{"value":"1500.50","currency":"USD"}}
		]}`))
	})

	bal, err := c.GetBalances(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.12345678, bal.Get("BTC"))
	assert.Equal(t, 1500.50, bal.Get("USD"))
}

func TestGetCandlesSortsAscending(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	end := start.Add(30 * time.Minute)

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/brokerage/products/BTC-USD/candles", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "FIFTEEN_MINUTE", q.Get("granularity"))
		assert.Equal(t, "1700000000", q.Get("start"))
		assert.Equal(t, "1700001800", q.Get("end"))
		w.Write([]byte(`{"candles":[
			{"start":"1700000900","low":"99","high":"102","open":"100","close":"101","volume":"3.5"},
			{"start":"1700000000","low":"98","high":"101","open":"99","close":"100","volume":"2"}
		]}`))
	})

	candles, err := c.GetCandles(context.Background(), "BTC-USD", 15*time.Minute, start, end)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, int64(1700000000), candles[0].Start)
	assert.Equal(t, 101.0, candles[1].Close)
	assert.Equal(t, 3.5, candles[1].Volume)

	_, err = c.GetCandles(context.Background(), "BTC-USD", 7*time.Minute, start, end)
	assert.Error(t, err)
}

func TestGetCandlesAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream down"))
	})

	_, err := c.GetCandles(context.Background(), "BTC-USD", time.Minute, time.Now(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestSubmitMarketOrder(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/brokerage/orders":
			assert.Equal(t, http.MethodPost, r.Method)
			var body createOrderRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "cid-1", body.ClientOrderID)
			assert.Equal(t, "BUY", body.Side)
			require.NotNil(t, body.Configuration.Market)
			assert.Equal(t, "0.015", body.Configuration.Market.BaseSize)
			assert.Nil(t, body.Configuration.Limit)
			w.Write([]byte(`{"success":true,"success_response":{"order_id":"ord-1"}}`))
		case "/api/v3/brokerage/orders/historical/ord-1":
			w.Write([]byte(`{"order":{"order_id":"ord-1","client_order_id":"cid-1","product_id":"BTC-USD",
				"side":"BUY","status":"FILLED","filled_size":"0.015","average_filled_price":"64000.5",
				"total_fees":"5.76","created_time":"2026-03-01T12:00:00Z",
				"order_configuration":{"market_market_ioc":{"base_size":"0.015"}}}}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	o, err := c.SubmitOrder(context.Background(), broker.OrderRequest{
		ClientID: "cid-1", Pair: "BTC-USD", Side: broker.Buy, Type: broker.Market, Quantity: 0.015,
	})
	require.NoError(t, err)
	assert.True(t, o.Filled())
	assert.Equal(t, "ord-1", o.ID)
	assert.Equal(t, broker.Market, o.Type)
	assert.InDelta(t, 0.015, o.FilledQuantity, 1e-12)
	assert.InDelta(t, 64000.5, o.AveragePrice, 1e-9)
	assert.InDelta(t, 5.76, o.Fee, 1e-12)
	assert.False(t, o.CreatedAt.IsZero())
}

func TestSubmitLimitOrderPostOnly(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/brokerage/orders":
			var body createOrderRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.NotNil(t, body.Configuration.Limit)
			assert.True(t, body.Configuration.Limit.PostOnly)
			assert.Equal(t, "63999.99", body.Configuration.Limit.LimitPrice)
			w.Write([]byte(`{"success":true,"success_response":{"order_id":"lim-1"}}`))
		default:
			w.Write([]byte(`{"order":{"order_id":"lim-1","side":"SELL","status":"OPEN",
				"order_configuration":{"limit_limit_gtc":{"base_size":"1","limit_price":"63999.99","post_only":true}}}}`))
		}
	})

	o, err := c.SubmitOrder(context.Background(), broker.OrderRequest{
		Pair: "BTC-USD", Side: broker.Sell, Type: broker.Limit, Quantity: 1, Price: 63999.99, PostOnly: true,
	})
	require.NoError(t, err)
	assert.False(t, o.Filled())
	assert.Equal(t, broker.StatusOpen, o.Status)
	assert.Equal(t, broker.Limit, o.Type)
	assert.Equal(t, 63999.99, o.Price)
}

func TestSubmitOrderErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"rejected insufficient", 200, `{"success":false,"error_response":{"error":"INSUFFICIENT_FUND","message":"not enough USD"}}`, broker.ErrInsufficientFunds},
		{"http insufficient", 400, `{"error":"INSUFFICIENT_FUNDS","message":"nope"}`, broker.ErrInsufficientFunds},
		{"post only", 200, `{"success":false,"error_response":{"error":"INVALID_LIMIT_PRICE_POST_ONLY"}}`, broker.ErrWouldCross},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			_, err := c.SubmitOrder(context.Background(), broker.OrderRequest{
				Pair: "BTC-USD", Side: broker.Buy, Type: broker.Market, Quantity: 1,
			})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCancelAndOpenOrders(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/brokerage/orders/batch_cancel":
			var body map[string][]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			id := body["order_ids"][0]
			ok := id == "good"
			json.NewEncoder(w).Encode(map[string]any{
				"results": []map[string]any{{"success": ok, "order_id": id, "failure_reason": "UNKNOWN_CANCEL_ORDER"}},
			})
		case "/api/v3/brokerage/orders/historical/batch":
			assert.Equal(t, "OPEN", r.URL.Query().Get("order_status"))
			assert.Equal(t, "BTC-USD", r.URL.Query().Get("product_id"))
			w.Write([]byte(`{"orders":[{"order_id":"a","product_id":"BTC-USD","side":"BUY","status":"OPEN"}]}`))
		}
	})

	require.NoError(t, c.CancelOrder(context.Background(), "good"))
	err := c.CancelOrder(context.Background(), "bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UNKNOWN_CANCEL_ORDER")

	orders, err := c.GetOpenOrders(context.Background(), "BTC-USD")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "a", orders[0].ID)
	assert.Equal(t, broker.StatusOpen, orders[0].Status)
}
