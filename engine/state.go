package engine

import (
	"sync"
	"time"

	"github.com/rustyeddy/pairtrader/broker"
	"github.com/rustyeddy/pairtrader/confirm"
	"github.com/rustyeddy/pairtrader/journal"
	"github.com/rustyeddy/pairtrader/market"
	"github.com/rustyeddy/pairtrader/position"
)

// State is all mutable trading state. Only the cycle mutates it; Status
// reads a copy under the lock.
type State struct {
	Pair    market.Pair
	Candles *market.Store
	Ledger  *position.Ledger
	Gate    *confirm.Gate
	Profit  *journal.ProfitStore

	mu         sync.Mutex
	balances   broker.Balances
	balancesOK bool
	// adjusted is set when reconciliation changed the position this cycle.
	adjusted bool
	last     CycleReport
	lastAt   time.Time
	// gates is the counter snapshot taken at the end of the last cycle.
	gates map[string]confirm.Counter
}

func (s *State) beginCycle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adjusted = false
	s.balancesOK = false
}

func (s *State) setBalances(b broker.Balances) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances = b
	s.balancesOK = true
}

func (s *State) markAdjusted() {
	s.mu.Lock()
	s.adjusted = true
	s.mu.Unlock()
}

func (s *State) Adjusted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adjusted
}

func (s *State) finish(r CycleReport) {
	gates := s.Gate.Counters()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = r
	s.lastAt = r.Time
	s.gates = gates
}

// CycleReport summarises one cycle.
type CycleReport struct {
	Time       time.Time `json:"time"`
	Price      float64   `json:"price"`
	Candles    int       `json:"candles"`
	BalancesOK bool      `json:"balancesOk"`
	Reconciled string    `json:"reconciled,omitempty"`
	Scores     any       `json:"scores,omitempty"`
	Actions    []string  `json:"actions,omitempty"`
	Errors     []string  `json:"errors,omitempty"`
	Equity     float64   `json:"equity"`
	Gates      string    `json:"gates"`
}

// Status is the read-only view served at /status.
type Status struct {
	Pair      string                     `json:"pair"`
	Position  *position.Position         `json:"position,omitempty"`
	Gates     map[string]confirm.Counter `json:"gates"`
	Profit    float64                    `json:"profit"`
	Balances  broker.Balances            `json:"balances,omitempty"`
	LastCycle *CycleReport               `json:"lastCycle,omitempty"`
}
