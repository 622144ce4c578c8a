package journal

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rustyeddy/pairtrader/internal/store"
)

// TradeLog is the append-only JSON array of executed actions.
type TradeLog struct {
	mu   sync.Mutex
	path string
}

func NewTradeLog(path string) *TradeLog {
	return &TradeLog{path: path}
}

func (l *TradeLog) Path() string { return l.path }

// Read returns every record. A corrupt log reads as empty and returns
// store.ErrCorrupt so the caller can warn.
func (l *TradeLog) Read() ([]TradeRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.read()
}

func (l *TradeLog) read() ([]TradeRecord, error) {
	var recs []TradeRecord
	if _, err := store.ReadJSON(l.path, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

func (l *TradeLog) RecordTrade(t TradeRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	recs, err := l.read()
	if err != nil && !errors.Is(err, store.ErrCorrupt) {
		return fmt.Errorf("trade log: %w", err)
	}
	recs = append(recs, t)
	if err := store.WriteJSON(l.path, recs); err != nil {
		return fmt.Errorf("trade log: %w", err)
	}
	return nil
}

func (l *TradeLog) RecordEquity(EquitySnapshot) error { return nil }

func (l *TradeLog) Close() error { return nil }

// Between returns the records with timestamps in [start, end).
func (l *TradeLog) Between(start, end time.Time) ([]TradeRecord, error) {
	recs, err := l.Read()
	if err != nil {
		return nil, err
	}
	var out []TradeRecord
	for _, r := range recs {
		if !r.Timestamp.Before(start) && r.Timestamp.Before(end) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Find returns the record with the given ID or order ID.
func (l *TradeLog) Find(id string) (TradeRecord, error) {
	recs, err := l.Read()
	if err != nil {
		return TradeRecord{}, err
	}
	for _, r := range recs {
		if r.ID == id || (r.OrderID != "" && r.OrderID == id) {
			return r, nil
		}
	}
	return TradeRecord{}, fmt.Errorf("trade %q not found", id)
}
