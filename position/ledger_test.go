package position

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) (*Ledger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "position.json")
	l := NewLedger(path, DefaultConfig(), nil)
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.SetClock(func() time.Time {
		ts = ts.Add(time.Minute)
		return ts
	})
	return l, path
}

func TestOpenTwiceFails(t *testing.T) {
	t.Parallel()

	l, _ := newTestLedger(t)
	_, err := l.Open(Long, 100, 1, 99, 100.5)
	require.NoError(t, err)

	_, err = l.Open(Long, 101, 1, 100, 101.5)
	assert.ErrorIs(t, err, ErrPositionExists)

	_, err = NewLedger("", DefaultConfig(), nil).Open(Long, 100, 0, 99, 101)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestWeightedEntryOverEntryTransactions(t *testing.T) {
	t.Parallel()

	l, _ := newTestLedger(t)
	_, err := l.Open(Long, 100, 1, 99, 100.5)
	require.NoError(t, err)

	fills := []struct{ price, qty float64 }{{98, 0.5}, {96, 2}, {97.5, 0.25}}
	quote, qty := 100.0, 1.0
	for _, f := range fills {
		p, err := l.AverageIn(NewTransaction(AverageIn, f.price, f.qty, time.Now()))
		require.NoError(t, err)
		quote += f.price * f.qty
		qty += f.qty
		assert.InDelta(t, quote/qty, p.WeightedEntryPrice, 1e-9)
		assert.InDelta(t, qty, p.Quantity, 1e-12)
	}

	p := l.Position()
	assert.Equal(t, 3, p.AverageIns)
	stop, tp := DefaultConfig().Levels(Long, p.WeightedEntryPrice)
	assert.InDelta(t, stop, p.StopLossPrice, 1e-9)
	assert.InDelta(t, tp, p.TakeProfitPrice, 1e-9)

	// Exits do not move the weighted entry; manual top-ups do.
	_, _, err = l.PartialExit(1, 110)
	require.NoError(t, err)
	assert.InDelta(t, quote/qty, l.Position().WeightedEntryPrice, 1e-9)

	p, err = l.AverageIn(NewTransaction(Manual, 90, 1, time.Now()))
	require.NoError(t, err)
	assert.InDelta(t, (quote+90)/(qty+1), p.WeightedEntryPrice, 1e-9)
	assert.Equal(t, 3, p.AverageIns)

	_, err = l.AverageIn(NewTransaction(Exit, 90, 1, time.Now()))
	assert.Error(t, err)
}

func TestPartialExit(t *testing.T) {
	t.Parallel()

	l, _ := newTestLedger(t)
	_, err := l.Open(Long, 100, 2, 99, 100.5)
	require.NoError(t, err)

	pnl, closed, err := l.PartialExit(0.5, 104)
	require.NoError(t, err)
	assert.False(t, closed)
	assert.InDelta(t, 2.0, pnl, 1e-9)
	assert.InDelta(t, 1.5, l.Position().Quantity, 1e-12)

	_, _, err = l.PartialExit(2, 104)
	assert.ErrorIs(t, err, ErrExceedsQuantity)

	// Leaving less than dust closes the position.
	pnl, closed, err = l.PartialExit(1.499995, 98)
	require.NoError(t, err)
	assert.True(t, closed)
	assert.InDelta(t, -2.99999, pnl, 1e-9)
	assert.Nil(t, l.Position())

	_, _, err = l.PartialExit(1, 100)
	assert.ErrorIs(t, err, ErrNoPosition)
}

func TestShortPnLIsSignFlipped(t *testing.T) {
	t.Parallel()

	l, _ := newTestLedger(t)
	stop, tp := DefaultConfig().Levels(Short, 200)
	assert.InDelta(t, 202, stop, 1e-9)
	assert.InDelta(t, 199, tp, 1e-9)

	_, err := l.Open(Short, 200, 1, stop, tp)
	require.NoError(t, err)

	assert.True(t, l.TakeProfitReached(198.9))
	assert.False(t, l.TakeProfitReached(199.5))

	pnl, err := l.Close(190)
	require.NoError(t, err)
	assert.InDelta(t, 10, pnl, 1e-9)
}

func TestTrailingStopRatchets(t *testing.T) {
	t.Parallel()

	l, _ := newTestLedger(t)
	_, err := l.Open(Long, 100, 1, 99, 105)
	require.NoError(t, err)

	assert.False(t, l.UpdateTrailingStop(100.5), "below activation")
	assert.False(t, l.Position().TrailingActive)

	assert.True(t, l.UpdateTrailingStop(101))
	p := l.Position()
	require.True(t, p.TrailingActive)
	assert.InDelta(t, 101*0.996, *p.TrailingStopPrice, 1e-9)

	assert.True(t, l.UpdateTrailingStop(102))
	assert.False(t, l.UpdateTrailingStop(101.5), "never loosens")
	assert.InDelta(t, 102*0.996, *l.Position().TrailingStopPrice, 1e-9)

	reason, hit := l.ShouldStop(101.8)
	assert.False(t, hit)
	reason, hit = l.ShouldStop(101.5)
	assert.True(t, hit)
	assert.Equal(t, ReasonTrailingStop, reason)
	reason, _ = l.ShouldStop(98)
	assert.Equal(t, ReasonStopLoss, reason)
}

func TestShortTrailingStopRatchetsDown(t *testing.T) {
	t.Parallel()

	l, _ := newTestLedger(t)
	_, err := l.Open(Short, 100, 1, 101, 95)
	require.NoError(t, err)

	require.True(t, l.UpdateTrailingStop(99))
	assert.InDelta(t, 99*1.004, *l.Position().TrailingStopPrice, 1e-9)
	assert.False(t, l.UpdateTrailingStop(99.5))
	assert.True(t, l.UpdateTrailingStop(98))

	_, hit := l.ShouldStop(98.5)
	assert.True(t, hit)
}

func TestPersistence(t *testing.T) {
	t.Parallel()

	l, path := newTestLedger(t)
	_, err := l.Open(Long, 100, 1, 99, 100.5)
	require.NoError(t, err)
	l.SetConfirmationState("buy:0/4")
	require.NoError(t, l.Save())

	restored := NewLedger(path, DefaultConfig(), nil)
	require.NoError(t, restored.Load())
	p := restored.Position()
	require.NotNil(t, p)
	assert.Equal(t, Long, p.Side)
	assert.InDelta(t, 100, p.WeightedEntryPrice, 1e-12)
	require.Len(t, p.Transactions, 1)
	assert.Equal(t, Entry, p.Transactions[0].Type)
	assert.NotEmpty(t, p.Transactions[0].ID)
	assert.Equal(t, "buy:0/4", p.ConfirmationState)

	_, err = restored.Close(101)
	require.NoError(t, err)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "flat ledger removes the file")
}

func TestCorruptFileIsDiscarded(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"garbage":       "{not json",
		"zero quantity": `{"side":"LONG","weightedEntryPrice":100,"quantity":0}`,
		"no entry":      `{"side":"LONG","quantity":1}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "position.json")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

			l := NewLedger(path, DefaultConfig(), nil)
			require.NoError(t, l.Load())
			assert.False(t, l.HasPosition())
			_, err := os.Stat(path)
			assert.True(t, os.IsNotExist(err))
		})
	}
}

func TestRecoverUsesManualTransaction(t *testing.T) {
	t.Parallel()

	l, _ := newTestLedger(t)
	p, err := l.Recover(Long, 200, 0.3)
	require.NoError(t, err)
	assert.Equal(t, Manual, p.Transactions[0].Type)
	assert.InDelta(t, 200, p.WeightedEntryPrice, 1e-12)
	assert.InDelta(t, 198, p.StopLossPrice, 1e-9)
}
