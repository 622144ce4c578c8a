// Package position tracks the single open position: its transactions,
// weighted-average cost, protective stops and realized profit on exits.
package position

import (
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/pairtrader/pkg/id"
)

type Side string

const (
	Long  Side = "LONG"
	Short Side = "SHORT"
)

// Sign is +1 for longs and -1 for shorts.
func (s Side) Sign() float64 {
	if s == Short {
		return -1
	}
	return 1
}

func (s Side) Valid() bool { return s == Long || s == Short }

func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LONG", "BUY":
		return Long, nil
	case "SHORT", "SELL":
		return Short, nil
	}
	return "", fmt.Errorf("unknown side %q", s)
}

type TxType string

const (
	Entry     TxType = "ENTRY"
	Exit      TxType = "EXIT"
	AverageIn TxType = "AVERAGE_IN"
	Manual    TxType = "MANUAL"
)

// Increases reports whether the transaction adds to the cost basis.
func (t TxType) Increases() bool {
	return t == Entry || t == AverageIn || t == Manual
}

type Transaction struct {
	ID          string    `json:"id"`
	Type        TxType    `json:"type"`
	Price       float64   `json:"price"`
	Quantity    float64   `json:"quantity"`
	QuoteAmount float64   `json:"quoteAmount"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewTransaction(typ TxType, price, qty float64, at time.Time) Transaction {
	return Transaction{
		ID:          id.NewAt(at),
		Type:        typ,
		Price:       price,
		Quantity:    qty,
		QuoteAmount: price * qty,
		Timestamp:   at.UTC(),
	}
}

type Position struct {
	Side               Side          `json:"side"`
	Transactions       []Transaction `json:"transactions"`
	WeightedEntryPrice float64       `json:"weightedEntryPrice"`
	Quantity           float64       `json:"quantity"`
	OpenedAt           time.Time     `json:"openedAt"`
	StopLossPrice      float64       `json:"stopLossPrice"`
	TakeProfitPrice    float64       `json:"takeProfitPrice"`
	TrailingStopPrice  *float64      `json:"trailingStopPrice,omitempty"`
	TrailingActive     bool          `json:"trailingActive"`
	AverageIns         int           `json:"averageIns"`

	// ConfirmationState describes the gates when the file was written. It is
	// informational and never read back.
	ConfirmationState string `json:"confirmationState,omitempty"`
}

// WeightedEntry is Σ quoteAmount / Σ quantity over the cost-basis transactions.
func WeightedEntry(txs []Transaction) float64 {
	var quote, qty float64
	for _, tx := range txs {
		if !tx.Type.Increases() {
			continue
		}
		quote += tx.QuoteAmount
		qty += tx.Quantity
	}
	if qty <= 0 {
		return 0
	}
	return quote / qty
}

func (p *Position) UnrealizedPnL(price float64) float64 {
	return p.Side.Sign() * (price - p.WeightedEntryPrice) * p.Quantity
}

// ProfitPct is the move from the weighted entry in the position's favour.
func (p *Position) ProfitPct(price float64) float64 {
	if p.WeightedEntryPrice <= 0 {
		return 0
	}
	return p.Side.Sign() * (price - p.WeightedEntryPrice) / p.WeightedEntryPrice
}

func (p *Position) Notional(price float64) float64 {
	return p.Quantity * price
}

func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Transactions = append([]Transaction(nil), p.Transactions...)
	if p.TrailingStopPrice != nil {
		v := *p.TrailingStopPrice
		cp.TrailingStopPrice = &v
	}
	return &cp
}

func (p *Position) validate() error {
	switch {
	case !p.Side.Valid():
		return fmt.Errorf("invalid side %q", p.Side)
	case p.Quantity <= 0:
		return fmt.Errorf("quantity %.8f not positive", p.Quantity)
	case p.WeightedEntryPrice <= 0:
		return fmt.Errorf("missing entry price")
	}
	return nil
}
