// Package broker defines the exchange surface the engine trades through.
package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/pairtrader/market"
)

var (
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrAllEndpointsFailed = errors.New("all exchange endpoints failed")
	// ErrWouldCross is returned when a post-only limit would take liquidity.
	ErrWouldCross = errors.New("post-only order would cross")
)

type Exchange interface {
	Name() string
	GetBalances(ctx context.Context) (Balances, error)
	GetCandles(ctx context.Context, pair string, granularity time.Duration, start, end time.Time) ([]market.Candle, error)
	SubmitOrder(ctx context.Context, req OrderRequest) (Order, error)
	CancelOrder(ctx context.Context, id string) error
	GetOpenOrders(ctx context.Context, pair string) ([]Order, error)
}

// Balances maps an asset code to its available amount.
type Balances map[string]float64

func (b Balances) Get(asset string) float64 {
	return b[strings.ToUpper(asset)]
}

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

type OrderType string

const (
	Market OrderType = "MARKET"
	Limit  OrderType = "LIMIT"
)

type OrderStatus string

const (
	StatusOpen      OrderStatus = "OPEN"
	StatusFilled    OrderStatus = "FILLED"
	StatusCancelled OrderStatus = "CANCELLED"
	StatusRejected  OrderStatus = "REJECTED"
)

type OrderRequest struct {
	// ClientID makes resubmission through another endpoint idempotent.
	ClientID string
	Pair     string
	Side     Side
	Type     OrderType
	Quantity float64
	Price    float64 // limit only
	PostOnly bool
}

func (r OrderRequest) Validate() error {
	if r.Pair == "" {
		return fmt.Errorf("order: pair is required")
	}
	if r.Side != Buy && r.Side != Sell {
		return fmt.Errorf("order: invalid side %q", r.Side)
	}
	if r.Quantity <= 0 {
		return fmt.Errorf("order: quantity must be positive")
	}
	if r.Type == Limit && r.Price <= 0 {
		return fmt.Errorf("order: limit price must be positive")
	}
	return nil
}

type Order struct {
	ID             string
	ClientID       string
	Pair           string
	Side           Side
	Type           OrderType
	Status         OrderStatus
	Quantity       float64
	Price          float64
	FilledQuantity float64
	AveragePrice   float64
	Fee            float64
	CreatedAt      time.Time
}

func (o Order) Filled() bool {
	return o.Status == StatusFilled && o.FilledQuantity > 0
}

// QuoteAmount is the filled value in the quote currency.
func (o Order) QuoteAmount() float64 {
	return o.FilledQuantity * o.AveragePrice
}
