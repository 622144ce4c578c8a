package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const tradeColumns = `id, timestamp, action, pair, side, price, quantity, quote_amount, order_id, reason, entry_price, pnl, fee`

type scanner interface {
	Scan(dest ...any) error
}

func scanTrade(s scanner) (TradeRecord, error) {
	var rec TradeRecord
	err := s.Scan(
		&rec.ID,
		&rec.Timestamp,
		&rec.Action,
		&rec.Pair,
		&rec.Side,
		&rec.Price,
		&rec.Quantity,
		&rec.QuoteAmount,
		&rec.OrderID,
		&rec.Reason,
		&rec.EntryPrice,
		&rec.PnL,
		&rec.Fee,
	)
	return rec, err
}

// GetTrade returns a single trade record by ID or order ID.
func (j *SQLite) GetTrade(tradeID string) (TradeRecord, error) {
	row := j.db.QueryRow(`
		SELECT `+tradeColumns+`
		FROM trades
		WHERE id = ? OR (order_id != '' AND order_id = ?)
		LIMIT 1`, tradeID, tradeID)

	rec, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TradeRecord{}, fmt.Errorf("trade %q not found", tradeID)
		}
		return TradeRecord{}, err
	}
	return rec, nil
}

// ListTradesBetween returns trades whose timestamp is within [start, end).
func (j *SQLite) ListTradesBetween(start, end time.Time) ([]TradeRecord, error) {
	rows, err := j.db.Query(`
		SELECT `+tradeColumns+`
		FROM trades
		WHERE timestamp >= ? AND timestamp < ?
		ORDER BY timestamp ASC`, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		rec, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (j *SQLite) ListEquityBetween(start, end time.Time) ([]EquitySnapshot, error) {
	rows, err := j.db.Query(`
		SELECT time, price, base, quote, equity, profit
		FROM equity
		WHERE time >= ? AND time < ?
		ORDER BY time ASC;`, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquitySnapshot
	for rows.Next() {
		var e EquitySnapshot
		if err := rows.Scan(&e.Time, &e.Price, &e.Base, &e.Quote, &e.Equity, &e.Profit); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Summary aggregates realized results over a set of records.
type Summary struct {
	Trades       int
	Wins         int
	Losses       int
	GrossProfit  float64
	GrossLoss    float64
	Fees         float64
	Net          float64
	ProfitFactor float64
}

// Summarize totals fees and realized PnL; records with zero PnL count as
// trades but neither wins nor losses.
func Summarize(recs []TradeRecord) Summary {
	var s Summary
	for _, r := range recs {
		s.Trades++
		s.Fees += r.Fee
		switch {
		case r.PnL > 0:
			s.Wins++
			s.GrossProfit += r.PnL
		case r.PnL < 0:
			s.Losses++
			s.GrossLoss += -r.PnL
		}
	}
	s.Net = s.GrossProfit - s.GrossLoss - s.Fees
	if s.GrossLoss > 0 {
		s.ProfitFactor = s.GrossProfit / s.GrossLoss
	}
	return s
}
