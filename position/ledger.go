package position

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rustyeddy/pairtrader/internal/store"
	"github.com/rustyeddy/pairtrader/logging"
)

var (
	ErrPositionExists  = errors.New("position already open")
	ErrNoPosition      = errors.New("no open position")
	ErrInvalidQuantity = errors.New("invalid quantity")
	ErrExceedsQuantity = errors.New("exit quantity exceeds position")
)

type ExitReason string

const (
	ReasonStopLoss     ExitReason = "stop_loss"
	ReasonTrailingStop ExitReason = "trailing_stop"
	ReasonTakeProfit   ExitReason = "take_profit"
	ReasonSignal       ExitReason = "signal"
	ReasonReconcile    ExitReason = "reconcile"
)

// Config holds protective levels as fractions of the weighted entry.
type Config struct {
	StopLossPct           float64 `json:"stop_loss_pct" yaml:"stop_loss_pct"`
	TakeProfitPct         float64 `json:"take_profit_pct" yaml:"take_profit_pct"`
	TrailingActivationPct float64 `json:"trailing_activation_pct" yaml:"trailing_activation_pct"`
	TrailingDistancePct   float64 `json:"trailing_distance_pct" yaml:"trailing_distance_pct"`
	// DustQuantity is the remainder below which a position counts as closed.
	DustQuantity float64 `json:"dust_quantity" yaml:"dust_quantity"`
}

func DefaultConfig() Config {
	return Config{
		StopLossPct:           0.01,
		TakeProfitPct:         0.005,
		TrailingActivationPct: 0.008,
		TrailingDistancePct:   0.004,
		DustQuantity:          0.00001,
	}
}

func (c Config) Validate() error {
	if c.StopLossPct <= 0 || c.StopLossPct >= 1 {
		return fmt.Errorf("position.stop_loss_pct must be within (0, 1)")
	}
	if c.TakeProfitPct <= 0 {
		return fmt.Errorf("position.take_profit_pct must be positive")
	}
	if c.TrailingActivationPct < 0 || c.TrailingDistancePct < 0 || c.TrailingDistancePct >= 1 {
		return fmt.Errorf("position trailing settings out of range")
	}
	if c.DustQuantity < 0 {
		return fmt.Errorf("position.dust_quantity must not be negative")
	}
	return nil
}

// Levels returns the stop-loss and take-profit prices for an entry.
func (c Config) Levels(side Side, entry float64) (stop, takeProfit float64) {
	s := side.Sign()
	return entry * (1 - s*c.StopLossPct), entry * (1 + s*c.TakeProfitPct)
}

// Ledger owns the open position and its state file. Every change is written
// through before the call returns.
type Ledger struct {
	mu   sync.Mutex
	cfg  Config
	path string
	pos  *Position
	log  logging.LoggerInterface
	now  func() time.Time
}

// NewLedger returns a flat ledger persisting to path. An empty path keeps
// the position in memory only.
func NewLedger(path string, cfg Config, log logging.LoggerInterface) *Ledger {
	if log == nil {
		log = logging.Nop()
	}
	return &Ledger{cfg: cfg, path: path, log: log, now: time.Now}
}

// SetClock replaces the time source used for transaction timestamps.
func (l *Ledger) SetClock(now func() time.Time) {
	l.mu.Lock()
	l.now = now
	l.mu.Unlock()
}

func (l *Ledger) Config() Config { return l.cfg }

// Load restores the position file. A corrupt or inconsistent file is
// discarded and the ledger starts flat.
func (l *Ledger) Load() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.pos = nil
	if l.path == "" {
		return nil
	}
	var p Position
	found, err := store.ReadJSON(l.path, &p)
	if err != nil {
		if errors.Is(err, store.ErrCorrupt) {
			l.log.Warning("discarding position file: %v", err)
			return store.Remove(l.path)
		}
		return fmt.Errorf("load position: %w", err)
	}
	if !found {
		return nil
	}
	if err := p.validate(); err != nil {
		l.log.Warning("discarding position file: %v", err)
		return store.Remove(l.path)
	}
	l.pos = &p
	l.log.Info("restored %s position qty=%.8f entry=%.2f", p.Side, p.Quantity, p.WeightedEntryPrice)
	return nil
}

// Position returns a copy of the open position, or nil when flat.
func (l *Ledger) Position() *Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pos.Clone()
}

func (l *Ledger) HasPosition() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pos != nil
}

// Open starts a position with a single ENTRY transaction.
func (l *Ledger) Open(side Side, entry, qty, stop, takeProfit float64) (*Position, error) {
	return l.open(side, Entry, entry, qty, stop, takeProfit)
}

// Recover starts a position for holdings found in the wallet but not in the
// ledger. The transaction is MANUAL and the levels derive from price.
func (l *Ledger) Recover(side Side, price, qty float64) (*Position, error) {
	stop, tp := l.cfg.Levels(side, price)
	return l.open(side, Manual, price, qty, stop, tp)
}

func (l *Ledger) open(side Side, typ TxType, entry, qty, stop, takeProfit float64) (*Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pos != nil {
		return nil, ErrPositionExists
	}
	if !side.Valid() {
		return nil, fmt.Errorf("open: invalid side %q", side)
	}
	if qty <= 0 || math.IsNaN(qty) {
		return nil, fmt.Errorf("open: %w: %v", ErrInvalidQuantity, qty)
	}
	if entry <= 0 {
		return nil, fmt.Errorf("open: invalid entry price %v", entry)
	}

	now := l.now()
	tx := NewTransaction(typ, entry, qty, now)
	l.pos = &Position{
		Side:               side,
		Transactions:       []Transaction{tx},
		WeightedEntryPrice: WeightedEntry([]Transaction{tx}),
		Quantity:           qty,
		OpenedAt:           now.UTC(),
		StopLossPrice:      stop,
		TakeProfitPrice:    takeProfit,
	}
	l.persist()
	return l.pos.Clone(), nil
}

// AverageIn appends a cost-basis transaction, recomputes the weighted entry
// and moves the stop-loss and take-profit levels with it.
func (l *Ledger) AverageIn(tx Transaction) (*Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pos == nil {
		return nil, ErrNoPosition
	}
	if !tx.Type.Increases() {
		return nil, fmt.Errorf("average in: %s transaction does not add to the position", tx.Type)
	}
	if tx.Quantity <= 0 || tx.Price <= 0 {
		return nil, fmt.Errorf("average in: %w: qty=%v price=%v", ErrInvalidQuantity, tx.Quantity, tx.Price)
	}
	if tx.QuoteAmount == 0 {
		tx.QuoteAmount = tx.Price * tx.Quantity
	}
	if tx.ID == "" {
		tx = NewTransaction(tx.Type, tx.Price, tx.Quantity, l.now())
	}

	p := l.pos
	p.Transactions = append(p.Transactions, tx)
	p.Quantity += tx.Quantity
	p.WeightedEntryPrice = WeightedEntry(p.Transactions)
	p.StopLossPrice, p.TakeProfitPrice = l.cfg.Levels(p.Side, p.WeightedEntryPrice)
	if tx.Type == AverageIn {
		p.AverageIns++
	}
	l.persist()
	return p.Clone(), nil
}

// PartialExit removes qty at price and returns the realized PnL against the
// weighted entry, before fees. The position closes when the remainder falls
// below the dust quantity.
func (l *Ledger) PartialExit(qty, price float64) (pnl float64, closed bool, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pos == nil {
		return 0, false, ErrNoPosition
	}
	if qty <= 0 || math.IsNaN(qty) {
		return 0, false, fmt.Errorf("exit: %w: %v", ErrInvalidQuantity, qty)
	}
	p := l.pos
	if qty > p.Quantity*(1+1e-9) {
		return 0, false, fmt.Errorf("%w: %.8f > %.8f", ErrExceedsQuantity, qty, p.Quantity)
	}
	qty = math.Min(qty, p.Quantity)

	pnl = p.Side.Sign() * (price - p.WeightedEntryPrice) * qty
	p.Transactions = append(p.Transactions, NewTransaction(Exit, price, qty, l.now()))
	p.Quantity -= qty

	if p.Quantity < l.cfg.DustQuantity || p.Quantity <= 0 {
		l.log.Info("position closed at %.2f pnl=%.4f", price, pnl)
		l.pos = nil
	}
	l.persist()
	return pnl, l.pos == nil, nil
}

// Close exits the full quantity.
func (l *Ledger) Close(price float64) (float64, error) {
	l.mu.Lock()
	if l.pos == nil {
		l.mu.Unlock()
		return 0, ErrNoPosition
	}
	qty := l.pos.Quantity
	l.mu.Unlock()

	pnl, _, err := l.PartialExit(qty, price)
	return pnl, err
}

// UpdateTrailingStop activates the trailing stop once profit reaches the
// activation level and then ratchets it behind price. It never loosens.
// It reports whether the stop moved.
func (l *Ledger) UpdateTrailingStop(price float64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	p := l.pos
	if p == nil || price <= 0 {
		return false
	}
	if !p.TrailingActive {
		if p.ProfitPct(price) < l.cfg.TrailingActivationPct {
			return false
		}
		p.TrailingActive = true
		l.log.Info("trailing stop activated at %.2f", price)
	}

	candidate := price * (1 - p.Side.Sign()*l.cfg.TrailingDistancePct)
	cur := p.TrailingStopPrice
	tighter := cur == nil ||
		(p.Side == Long && candidate > *cur) ||
		(p.Side == Short && candidate < *cur)
	if !tighter {
		return false
	}
	p.TrailingStopPrice = &candidate
	l.persist()
	return true
}

// ShouldStop reports whether price has hit the stop-loss or an active
// trailing stop.
func (l *Ledger) ShouldStop(price float64) (ExitReason, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p := l.pos
	if p == nil {
		return "", false
	}
	hit := func(level float64) bool {
		if level <= 0 {
			return false
		}
		if p.Side == Long {
			return price <= level
		}
		return price >= level
	}
	if hit(p.StopLossPrice) {
		return ReasonStopLoss, true
	}
	if p.TrailingActive && p.TrailingStopPrice != nil && hit(*p.TrailingStopPrice) {
		return ReasonTrailingStop, true
	}
	return "", false
}

func (l *Ledger) TakeProfitReached(price float64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	p := l.pos
	if p == nil || p.TakeProfitPrice <= 0 {
		return false
	}
	if p.Side == Long {
		return price >= p.TakeProfitPrice
	}
	return price <= p.TakeProfitPrice
}

// SetConfirmationState records a description of the gates with the next write.
func (l *Ledger) SetConfirmationState(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pos != nil {
		l.pos.ConfirmationState = s
	}
}

// Save writes the current state; the file is removed when flat.
func (l *Ledger) Save() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.save()
}

func (l *Ledger) save() error {
	if l.path == "" {
		return nil
	}
	if l.pos == nil {
		return store.Remove(l.path)
	}
	return store.WriteJSON(l.path, l.pos)
}

func (l *Ledger) persist() {
	if err := l.save(); err != nil {
		l.log.Error("persist position: %v", err)
	}
}
