package journal

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"
)

var (
	tradeHeader  = []string{"id", "timestamp", "action", "pair", "side", "price", "quantity", "quote_amount", "order_id", "reason", "entry_price", "pnl", "fee"}
	equityHeader = []string{"time", "price", "base", "quote", "equity", "profit"}
)

// CSVJournal appends to trades and equity CSV files, writing headers only
// when a file is new.
type CSVJournal struct {
	trades *csv.Writer
	equity *csv.Writer
	tf, ef *os.File
}

func openCSV(path string, header []string) (*os.File, *csv.Writer, error) {
	fresh := false
	if st, err := os.Stat(path); err != nil || st.Size() == 0 {
		fresh = true
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}
	w := csv.NewWriter(f)
	if fresh {
		if err := w.Write(header); err != nil {
			f.Close()
			return nil, nil, err
		}
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return nil, nil, err
		}
	}
	return f, w, nil
}

func NewCSV(tradesPath, equityPath string) (*CSVJournal, error) {
	tf, tw, err := openCSV(tradesPath, tradeHeader)
	if err != nil {
		return nil, fmt.Errorf("open trades csv: %w", err)
	}
	ef, ew, err := openCSV(equityPath, equityHeader)
	if err != nil {
		tf.Close()
		return nil, fmt.Errorf("open equity csv: %w", err)
	}
	return &CSVJournal{tw, ew, tf, ef}, nil
}

func (j *CSVJournal) RecordTrade(t TradeRecord) error {
	err := j.trades.Write([]string{
		t.ID,
		t.Timestamp.UTC().Format(time.RFC3339),
		t.Action,
		t.Pair,
		t.Side,
		f(t.Price),
		f8(t.Quantity),
		f(t.QuoteAmount),
		t.OrderID,
		t.Reason,
		f(t.EntryPrice),
		f(t.PnL),
		f(t.Fee),
	})
	if err != nil {
		return err
	}
	j.trades.Flush()
	return j.trades.Error()
}

func (j *CSVJournal) RecordEquity(e EquitySnapshot) error {
	err := j.equity.Write([]string{
		e.Time.UTC().Format(time.RFC3339),
		f(e.Price),
		f8(e.Base),
		f(e.Quote),
		f(e.Equity),
		f(e.Profit),
	})
	if err != nil {
		return err
	}

	j.equity.Flush()
	return j.equity.Error()
}

func (j *CSVJournal) Close() error {
	j.trades.Flush()
	if err := j.trades.Error(); err != nil {
		return err
	}
	j.equity.Flush()
	if err := j.equity.Error(); err != nil {
		return err
	}

	if err := j.tf.Close(); err != nil {
		return err
	}
	if err := j.ef.Close(); err != nil {
		return err
	}
	return nil
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}

func f8(x float64) string {
	return strconv.FormatFloat(x, 'f', 8, 64)
}
