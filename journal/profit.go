package journal

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rustyeddy/pairtrader/internal/store"
)

// ProfitStore keeps the cumulative realized profit in {"profit": n}.
type ProfitStore struct {
	mu     sync.Mutex
	path   string
	profit float64
}

type profitFile struct {
	Profit float64 `json:"profit"`
}

// NewProfitStore loads path. A corrupt file restarts the total at zero and is
// reported as store.ErrCorrupt alongside a usable store.
func NewProfitStore(path string) (*ProfitStore, error) {
	s := &ProfitStore{path: path}
	if path == "" {
		return s, nil
	}
	var pf profitFile
	_, err := store.ReadJSON(path, &pf)
	if err != nil {
		if errors.Is(err, store.ErrCorrupt) {
			return s, err
		}
		return nil, fmt.Errorf("load profit: %w", err)
	}
	s.profit = pf.Profit
	return s, nil
}

func (s *ProfitStore) Profit() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profit
}

// Add books delta and writes the new total.
func (s *ProfitStore) Add(delta float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profit += delta
	if s.path == "" {
		return s.profit, nil
	}
	if err := store.WriteJSON(s.path, profitFile{Profit: s.profit}); err != nil {
		return s.profit, fmt.Errorf("save profit: %w", err)
	}
	return s.profit, nil
}
