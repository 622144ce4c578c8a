package market

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rustyeddy/pairtrader/internal/store"
	"github.com/rustyeddy/pairtrader/logging"
	"github.com/rustyeddy/pairtrader/metrics"
	"github.com/rustyeddy/pairtrader/pkg/outcome"
)

// Fetcher retrieves candles for pair in [start, end].
type Fetcher interface {
	GetCandles(ctx context.Context, pair string, granularity time.Duration, start, end time.Time) ([]Candle, error)
}

// StoreConfig sizes the candle window.
type StoreConfig struct {
	Capacity    int           `json:"capacity" yaml:"capacity"`
	Granularity time.Duration `json:"granularity" yaml:"granularity"`
	Lookback    int           `json:"lookback" yaml:"lookback"` // candles requested per refresh
}

func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Capacity:    300,
		Granularity: 15 * time.Minute,
		Lookback:    100,
	}
}

// Store is the capped, persisted candle window.
type Store struct {
	mu       sync.Mutex
	cfg      StoreConfig
	path     string
	candles  []Candle
	failures int
	log      logging.LoggerInterface
}

// NewStore returns an empty store persisting to path. An empty path keeps the
// window in memory only.
func NewStore(path string, cfg StoreConfig, log logging.LoggerInterface) *Store {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultStoreConfig().Capacity
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Store{cfg: cfg, path: path, log: log}
}

// Load replaces the window with the cache file. A corrupt cache is discarded.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return nil
	}
	var cached []Candle
	found, err := store.ReadJSON(s.path, &cached)
	if err != nil {
		if errors.Is(err, store.ErrCorrupt) {
			s.log.Warning("discarding candle cache: %v", err)
			s.candles = nil
			return nil
		}
		return fmt.Errorf("load candle cache: %w", err)
	}
	if !found {
		return nil
	}
	sort.Slice(cached, func(i, j int) bool { return cached[i].Start < cached[j].Start })
	s.candles = dedupe(cached)
	s.truncateLocked()
	return nil
}

// Merge folds incoming candles into the window and persists it. Candles newer
// than the last stored one are appended, one matching the last start replaces
// it, anything older is dropped.
func (s *Store) Merge(in []Candle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := make([]Candle, 0, len(in))
	for _, c := range in {
		if c.Start <= 0 || c.Close <= 0 {
			continue
		}
		batch = append(batch, c)
	}
	sort.SliceStable(batch, func(i, j int) bool { return batch[i].Start < batch[j].Start })

	for _, c := range batch {
		n := len(s.candles)
		switch {
		case n == 0 || c.Start > s.candles[n-1].Start:
			s.candles = append(s.candles, c)
		case c.Start == s.candles[n-1].Start:
			s.candles[n-1] = c
		}
	}

	sort.Slice(s.candles, func(i, j int) bool { return s.candles[i].Start < s.candles[j].Start })
	s.truncateLocked()
	metrics.CandleWindow.Set(float64(len(s.candles)))
	return s.persistLocked()
}

// Window returns a copy of the ordered candles, oldest first.
func (s *Store) Window() []Candle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Candle, len(s.candles))
	copy(out, s.candles)
	return out
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.candles)
}

// Last returns the newest candle.
func (s *Store) Last() (Candle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.candles) == 0 {
		return Candle{}, false
	}
	return s.candles[len(s.candles)-1], true
}

// ConsecutiveFailures counts refreshes that failed since the last success.
func (s *Store) ConsecutiveFailures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures
}

// Refresh fetches recent candles and merges them. A failed fetch keeps the
// stale window; the result is Skip only when the window is shorter than
// minLength.
func (s *Store) Refresh(ctx context.Context, f Fetcher, pair string, now time.Time, minLength int) outcome.Result[[]Candle] {
	gran := s.cfg.Granularity
	if gran <= 0 {
		gran = DefaultStoreConfig().Granularity
	}
	lookback := s.cfg.Lookback
	if lookback <= 0 {
		lookback = DefaultStoreConfig().Lookback
	}
	start := now.Add(-time.Duration(lookback) * gran)

	fresh, err := f.GetCandles(ctx, pair, gran, start, now)
	if err != nil {
		metrics.CandleFetchFailures.Inc()
		s.mu.Lock()
		s.failures++
		failures := s.failures
		s.mu.Unlock()
		s.log.Warning("candle fetch failed (%d in a row), using cached window: %v", failures, err)
	} else {
		s.mu.Lock()
		s.failures = 0
		s.mu.Unlock()
		if err := s.Merge(fresh); err != nil {
			s.log.Warning("persist candle cache: %v", err)
		}
	}

	window := s.Window()
	if len(window) < minLength {
		return outcome.Skip[[]Candle]("candle window has %d candles, need %d", len(window), minLength)
	}
	return outcome.Ok(window)
}

func (s *Store) truncateLocked() {
	if over := len(s.candles) - s.cfg.Capacity; over > 0 {
		s.candles = append([]Candle(nil), s.candles[over:]...)
	}
}

func (s *Store) persistLocked() error {
	if s.path == "" {
		return nil
	}
	return store.WriteJSON(s.path, s.candles)
}

// dedupe keeps the last candle for each start in a sorted slice.
func dedupe(sorted []Candle) []Candle {
	out := sorted[:0]
	for _, c := range sorted {
		if n := len(out); n > 0 && out[n-1].Start == c.Start {
			out[n-1] = c
			continue
		}
		out = append(out, c)
	}
	return out
}
