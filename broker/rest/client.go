// Package rest is an HTTP client for a Coinbase Advanced Trade style
// brokerage API.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/pairtrader/broker"
	"github.com/rustyeddy/pairtrader/market"
)

const (
	// DefaultURL is the production brokerage API.
	DefaultURL = "https://api.coinbase.com"

	apiPrefix = "/api/v3/brokerage"
)

var granularities = map[time.Duration]string{
	time.Minute:      "ONE_MINUTE",
	5 * time.Minute:  "FIVE_MINUTE",
	15 * time.Minute: "FIFTEEN_MINUTE",
	30 * time.Minute: "THIRTY_MINUTE",
	time.Hour:        "ONE_HOUR",
	2 * time.Hour:    "TWO_HOUR",
	6 * time.Hour:    "SIX_HOUR",
	24 * time.Hour:   "ONE_DAY",
}

// Granularity returns the API name for d.
func Granularity(d time.Duration) (string, error) {
	g, ok := granularities[d]
	if !ok {
		return "", fmt.Errorf("unsupported granularity %s", d)
	}
	return g, nil
}

type Config struct {
	Name    string
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client is one brokerage endpoint.
type Client struct {
	name       string
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultURL
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", cfg.BaseURL, err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	name := cfg.Name
	if name == "" {
		name = base
	}
	return &Client{
		name:       name,
		baseURL:    base,
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (c *Client) Name() string { return c.name }

// apiError is the error body the API returns on non-2xx responses.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	apiURL := c.baseURL + apiPrefix + path
	if len(query) > 0 {
		apiURL += "?" + query.Encode()
	}

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, rd)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", "pairtrader")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		var ae apiError
		if json.Unmarshal(raw, &ae) == nil && isInsufficientFunds(ae.Error) {
			return fmt.Errorf("%w: %s", broker.ErrInsufficientFunds, ae.Message)
		}
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func isInsufficientFunds(code string) bool {
	return strings.Contains(strings.ToUpper(code), "INSUFFICIENT_FUND")
}

type amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type accountsResponse struct {
	Accounts []struct {
		Currency         string `json:"currency"`
		AvailableBalance amount `json:"available_balance"`
	} `json:"accounts"`
}

func (c *Client) GetBalances(ctx context.Context) (broker.Balances, error) {
	var resp accountsResponse
	if err := c.do(ctx, http.MethodGet, "/accounts", url.Values{"limit": {"250"}}, nil, &resp); err != nil {
		return nil, fmt.Errorf("balances: %w", err)
	}
	out := make(broker.Balances, len(resp.Accounts))
	for _, a := range resp.Accounts {
		v, err := parseDecimal(a.AvailableBalance.Value)
		if err != nil {
			return nil, fmt.Errorf("balance %s: %w", a.Currency, err)
		}
		out[strings.ToUpper(a.Currency)] += v
	}
	return out, nil
}

type apiCandle struct {
	Start  string `json:"start"`
	Low    string `json:"low"`
	High   string `json:"high"`
	Open   string `json:"open"`
	Close  string `json:"close"`
	Volume string `json:"volume"`
}

type candlesResponse struct {
	Candles []apiCandle `json:"candles"`
}

// GetCandles fetches candles in [start, end], oldest first.
func (c *Client) GetCandles(ctx context.Context, pair string, granularity time.Duration, start, end time.Time) ([]market.Candle, error) {
	if pair == "" {
		return nil, fmt.Errorf("pair is required")
	}
	g, err := Granularity(granularity)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("start", strconv.FormatInt(start.Unix(), 10))
	q.Set("end", strconv.FormatInt(end.Unix(), 10))
	q.Set("granularity", g)

	var resp candlesResponse
	if err := c.do(ctx, http.MethodGet, "/products/"+url.PathEscape(pair)+"/candles", q, nil, &resp); err != nil {
		return nil, fmt.Errorf("candles: %w", err)
	}

	candles := make([]market.Candle, 0, len(resp.Candles))
	for _, ac := range resp.Candles {
		cd, err := ac.toCandle()
		if err != nil {
			return nil, err
		}
		candles = append(candles, cd)
	}
	// The API returns newest first.
	sort.Slice(candles, func(i, j int) bool { return candles[i].Start < candles[j].Start })
	return candles, nil
}

func (ac apiCandle) toCandle() (market.Candle, error) {
	start, err := strconv.ParseInt(ac.Start, 10, 64)
	if err != nil {
		return market.Candle{}, fmt.Errorf("parse start %q: %w", ac.Start, err)
	}
	vals := make([]float64, 5)
	for i, s := range []string{ac.Open, ac.High, ac.Low, ac.Close, ac.Volume} {
		v, err := parseDecimal(s)
		if err != nil {
			return market.Candle{}, fmt.Errorf("parse candle %d: %w", start, err)
		}
		vals[i] = v
	}
	return market.Candle{Start: start, Open: vals[0], High: vals[1], Low: vals[2], Close: vals[3], Volume: vals[4]}, nil
}

type marketConfig struct {
	BaseSize string `json:"base_size"`
}

type limitConfig struct {
	BaseSize   string `json:"base_size"`
	LimitPrice string `json:"limit_price"`
	PostOnly   bool   `json:"post_only"`
}

type orderConfiguration struct {
	Market *marketConfig `json:"market_market_ioc,omitempty"`
	Limit  *limitConfig  `json:"limit_limit_gtc,omitempty"`
}

type createOrderRequest struct {
	ClientOrderID string             `json:"client_order_id"`
	ProductID     string             `json:"product_id"`
	Side          string             `json:"side"`
	Configuration orderConfiguration `json:"order_configuration"`
}

type createOrderResponse struct {
	Success         bool `json:"success"`
	SuccessResponse struct {
		OrderID string `json:"order_id"`
	} `json:"success_response"`
	ErrorResponse struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	} `json:"error_response"`
}

// SubmitOrder places req and returns the order as reported right after
// placement, so a market order comes back filled.
func (c *Client) SubmitOrder(ctx context.Context, req broker.OrderRequest) (broker.Order, error) {
	if err := req.Validate(); err != nil {
		return broker.Order{}, err
	}
	body := createOrderRequest{
		ClientOrderID: req.ClientID,
		ProductID:     req.Pair,
		Side:          string(req.Side),
	}
	size := formatDecimal(req.Quantity)
	if req.Type == broker.Limit {
		body.Configuration.Limit = &limitConfig{BaseSize: size, LimitPrice: formatDecimal(req.Price), PostOnly: req.PostOnly}
	} else {
		body.Configuration.Market = &marketConfig{BaseSize: size}
	}

	var resp createOrderResponse
	if err := c.do(ctx, http.MethodPost, "/orders", nil, body, &resp); err != nil {
		return broker.Order{}, fmt.Errorf("submit order: %w", err)
	}
	if !resp.Success {
		switch {
		case isInsufficientFunds(resp.ErrorResponse.Error):
			return broker.Order{}, fmt.Errorf("%w: %s", broker.ErrInsufficientFunds, resp.ErrorResponse.Message)
		case strings.Contains(strings.ToUpper(resp.ErrorResponse.Error), "POST_ONLY"):
			return broker.Order{}, fmt.Errorf("%w: %s", broker.ErrWouldCross, resp.ErrorResponse.Message)
		}
		return broker.Order{}, fmt.Errorf("order rejected: %s %s", resp.ErrorResponse.Error, resp.ErrorResponse.Message)
	}
	return c.GetOrder(ctx, resp.SuccessResponse.OrderID)
}

type apiOrder struct {
	OrderID            string `json:"order_id"`
	ClientOrderID      string `json:"client_order_id"`
	ProductID          string `json:"product_id"`
	Side               string `json:"side"`
	Status             string `json:"status"`
	OrderType          string `json:"order_type"`
	FilledSize         string `json:"filled_size"`
	AverageFilledPrice string `json:"average_filled_price"`
	TotalFees          string `json:"total_fees"`
	CreatedTime        string `json:"created_time"`

	Configuration orderConfiguration `json:"order_configuration"`
}

func (ao apiOrder) toOrder() (broker.Order, error) {
	o := broker.Order{
		ID:       ao.OrderID,
		ClientID: ao.ClientOrderID,
		Pair:     ao.ProductID,
		Side:     broker.Side(strings.ToUpper(ao.Side)),
		Type:     broker.Market,
	}
	switch strings.ToUpper(ao.Status) {
	case "FILLED":
		o.Status = broker.StatusFilled
	case "CANCELLED", "EXPIRED":
		o.Status = broker.StatusCancelled
	case "FAILED":
		o.Status = broker.StatusRejected
	default:
		o.Status = broker.StatusOpen
	}

	var err error
	if o.FilledQuantity, err = parseDecimal(ao.FilledSize); err != nil {
		return o, fmt.Errorf("filled_size: %w", err)
	}
	if o.AveragePrice, err = parseDecimal(ao.AverageFilledPrice); err != nil {
		return o, fmt.Errorf("average_filled_price: %w", err)
	}
	if o.Fee, err = parseDecimal(ao.TotalFees); err != nil {
		return o, fmt.Errorf("total_fees: %w", err)
	}
	if lc := ao.Configuration.Limit; lc != nil {
		o.Type = broker.Limit
		o.Quantity, _ = parseDecimal(lc.BaseSize)
		o.Price, _ = parseDecimal(lc.LimitPrice)
	} else if mc := ao.Configuration.Market; mc != nil {
		o.Quantity, _ = parseDecimal(mc.BaseSize)
	}
	if ao.CreatedTime != "" {
		if t, err := time.Parse(time.RFC3339, ao.CreatedTime); err == nil {
			o.CreatedAt = t
		}
	}
	return o, nil
}

func (c *Client) GetOrder(ctx context.Context, id string) (broker.Order, error) {
	var resp struct {
		Order apiOrder `json:"order"`
	}
	if err := c.do(ctx, http.MethodGet, "/orders/historical/"+url.PathEscape(id), nil, nil, &resp); err != nil {
		return broker.Order{}, fmt.Errorf("get order %s: %w", id, err)
	}
	return resp.Order.toOrder()
}

func (c *Client) CancelOrder(ctx context.Context, id string) error {
	var resp struct {
		Results []struct {
			Success       bool   `json:"success"`
			FailureReason string `json:"failure_reason"`
			OrderID       string `json:"order_id"`
		} `json:"results"`
	}
	body := map[string][]string{"order_ids": {id}}
	if err := c.do(ctx, http.MethodPost, "/orders/batch_cancel", nil, body, &resp); err != nil {
		return fmt.Errorf("cancel order %s: %w", id, err)
	}
	for _, r := range resp.Results {
		if r.OrderID == id && !r.Success {
			return fmt.Errorf("cancel order %s: %s", id, r.FailureReason)
		}
	}
	return nil
}

func (c *Client) GetOpenOrders(ctx context.Context, pair string) ([]broker.Order, error) {
	q := url.Values{}
	q.Set("order_status", "OPEN")
	if pair != "" {
		q.Set("product_id", pair)
	}
	var resp struct {
		Orders []apiOrder `json:"orders"`
	}
	if err := c.do(ctx, http.MethodGet, "/orders/historical/batch", q, nil, &resp); err != nil {
		return nil, fmt.Errorf("open orders: %w", err)
	}
	out := make([]broker.Order, 0, len(resp.Orders))
	for _, ao := range resp.Orders {
		o, err := ao.toOrder()
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

func parseDecimal(s string) (float64, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	return d.InexactFloat64(), nil
}

func formatDecimal(v float64) string {
	return decimal.NewFromFloat(v).String()
}

var _ broker.Exchange = (*Client)(nil)
