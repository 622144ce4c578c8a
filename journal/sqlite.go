package journal

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rustyeddy/pairtrader/pkg/id"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// RecordTrade inserts t. Records without an ID get one; replaying a record
// with a known ID replaces the row.
func (j *SQLite) RecordTrade(t TradeRecord) error {
	if t.ID == "" {
		t.ID = id.NewAt(t.Timestamp)
	}
	_, err := j.db.Exec(`
		INSERT OR REPLACE INTO trades
		(id, timestamp, action, pair, side, price, quantity, quote_amount, order_id, reason, entry_price, pnl, fee)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Timestamp.UTC(), t.Action, t.Pair, t.Side, t.Price, t.Quantity,
		t.QuoteAmount, t.OrderID, t.Reason, t.EntryPrice, t.PnL, t.Fee,
	)
	return err
}

func (j *SQLite) RecordEquity(e EquitySnapshot) error {
	_, err := j.db.Exec(`
		INSERT INTO equity
		(time, price, base, quote, equity, profit)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.Time.UTC(), e.Price, e.Base, e.Quote, e.Equity, e.Profit,
	)
	return err
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
