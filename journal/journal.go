// Package journal records executed trades and equity snapshots. The JSON
// trade log is the record of truth; SQLite and CSV are optional mirrors.
package journal

import (
	"errors"
	"time"
)

// Actions written to TradeRecord.Action.
const (
	ActionBuy       = "BUY"
	ActionSell      = "SELL"
	ActionShort     = "SHORT"
	ActionCover     = "COVER"
	ActionAverageIn = "AVERAGE_IN"
	ActionReconcile = "RECONCILE"
)

type TradeRecord struct {
	ID          string    `json:"id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Action      string    `json:"action"`
	Pair        string    `json:"pair"`
	Price       float64   `json:"price"`
	Quantity    float64   `json:"quantity"`
	QuoteAmount float64   `json:"quoteAmount"`
	OrderID     string    `json:"orderId"`
	Reason      string    `json:"reason"`
	EntryPrice  float64   `json:"entryPrice"`
	PnL         float64   `json:"pnl"`
	Fee         float64   `json:"fee,omitempty"`
	Side        string    `json:"side,omitempty"`
}

type EquitySnapshot struct {
	Time   time.Time `json:"time"`
	Price  float64   `json:"price"`
	Base   float64   `json:"base"`
	Quote  float64   `json:"quote"`
	Equity float64   `json:"equity"`
	Profit float64   `json:"profit"`
}

type Journal interface {
	RecordTrade(TradeRecord) error
	RecordEquity(EquitySnapshot) error
	Close() error
}

// Multi fans a record out to every journal and joins their errors.
type Multi []Journal

func (m Multi) RecordTrade(t TradeRecord) error {
	var errs []error
	for _, j := range m {
		errs = append(errs, j.RecordTrade(t))
	}
	return errors.Join(errs...)
}

func (m Multi) RecordEquity(e EquitySnapshot) error {
	var errs []error
	for _, j := range m {
		errs = append(errs, j.RecordEquity(e))
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, j := range m {
		errs = append(errs, j.Close())
	}
	return errors.Join(errs...)
}
