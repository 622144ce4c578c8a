package indicators

import (
	"math"
	"testing"

	"github.com/rustyeddy/pairtrader/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestCandles() []market.Candle {
	closes := []float64{102, 105, 106, 108, 110, 111, 113, 114, 116, 118}
	out := make([]market.Candle, len(closes))
	for i, c := range closes {
		out[i] = market.Candle{Start: int64(i+1) * 60, Open: c - 1, High: c + 2, Low: c - 2, Close: c}
	}
	return out
}

func TestMA(t *testing.T) {
	t.Parallel()

	ma, err := MA(createTestCandles(), 5)
	require.NoError(t, err)
	// Last 5 closes: 111,113,114,116,118 => 572/5 = 114.4
	assert.InDelta(t, 114.4, ma, 1e-9)

	_, err = MA(createTestCandles(), 11)
	assert.Error(t, err)
	_, err = MA(createTestCandles(), 0)
	assert.Error(t, err)
}

func TestEMA(t *testing.T) {
	t.Parallel()

	ema, err := EMA(createTestCandles(), 5)
	require.NoError(t, err)
	assert.Greater(t, ema, 110.0)
	assert.Less(t, ema, 118.0)
}

func TestEMASeriesLinear(t *testing.T) {
	t.Parallel()

	s, err := EMASeries([]float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 3)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(s[0]))
	assert.True(t, math.IsNaN(s[1]))
	// a linear series lags its EMA(3) by exactly one step
	for i := 2; i < len(s); i++ {
		assert.InDelta(t, float64(i), s[i], 1e-9)
	}
}

func TestSMASeries(t *testing.T) {
	t.Parallel()

	s, err := SMASeries([]float64{1, 2, 3, 4, 5}, 2)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(s[0]))
	assert.Equal(t, []float64{1.5, 2.5, 3.5, 4.5}, s[1:])

	_, err = SMASeries([]float64{1}, 2)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestRSISeriesWilderReference(t *testing.T) {
	t.Parallel()

	closes := []float64{
		44.34, 44.09, 44.15, 43.61, 44.33, 44.83, 45.10, 45.42, 45.84, 46.08,
		45.89, 46.03, 45.61, 46.28, 46.28, 46.00, 46.03, 46.41, 46.22, 45.64,
	}
	s, err := RSISeries(closes, 14)
	require.NoError(t, err)
	assert.InDelta(t, 70.464, s[14], 0.01)
	assert.InDelta(t, 57.915, s[19], 0.01)
}

func TestRSISeriesEdges(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{"only gains", []float64{1, 2, 3, 4, 5, 6}, 100},
		{"only losses", []float64{6, 5, 4, 3, 2, 1}, 0},
		{"flat", []float64{3, 3, 3, 3, 3, 3}, 50},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, err := RSISeries(tt.values, 4)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, s[len(s)-1], 1e-9)
		})
	}
}

func TestMACDSeries(t *testing.T) {
	t.Parallel()

	flat := make([]float64, 40)
	rising := make([]float64, 40)
	for i := range flat {
		flat[i] = 100
		rising[i] = 100 + float64(i)
	}

	m, err := MACDSeries(flat, 12, 26, 9)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(m.Hist[32]))
	assert.InDelta(t, 0, m.Hist[33], 1e-9)
	assert.InDelta(t, 0, m.Line[39], 1e-9)

	m, err = MACDSeries(rising, 12, 26, 9)
	require.NoError(t, err)
	assert.Greater(t, m.Line[39], 0.0)

	_, err = MACDSeries(flat[:33], 12, 26, 9)
	assert.ErrorIs(t, err, ErrInsufficientData)
	_, err = MACDSeries(flat, 26, 12, 9)
	assert.Error(t, err)
}

func TestStochasticSeries(t *testing.T) {
	t.Parallel()

	highs := []float64{10, 11, 12, 13, 14}
	lows := []float64{8, 9, 10, 11, 12}
	closes := []float64{9, 10, 11, 12, 14}

	s, err := StochasticSeries(highs, lows, closes, 3, 2)
	require.NoError(t, err)
	// last: HH 14, LL 10, close 14
	assert.InDelta(t, 100, s.K[4], 1e-9)
	// previous: HH 13, LL 9, close 12 => 75
	assert.InDelta(t, 75, s.K[3], 1e-9)
	assert.InDelta(t, 87.5, s.D[4], 1e-9)
	assert.True(t, math.IsNaN(s.D[2]))

	flat := []float64{5, 5, 5}
	s, err = StochasticSeries(flat, flat, flat, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 50.0, s.K[2])
}

func TestBollingerSeries(t *testing.T) {
	t.Parallel()

	b, err := BollingerSeries([]float64{1, 2, 3, 4, 5}, 5, 2)
	require.NoError(t, err)
	assert.InDelta(t, 3, b.Mid[4], 1e-9)
	assert.InDelta(t, 3+2*math.Sqrt2, b.Upper[4], 1e-9)
	assert.InDelta(t, 3-2*math.Sqrt2, b.Lower[4], 1e-9)
}

func TestParamsMinLength(t *testing.T) {
	t.Parallel()

	p := DefaultParams()
	require.NoError(t, p.Validate())
	// MACD(12,26,9) dominates: 26+9-1 = 34, plus one previous value
	assert.Equal(t, 35, p.MinLength())

	p.FastMA = 30
	assert.Error(t, p.Validate())
}

func TestComputeSnapshot(t *testing.T) {
	t.Parallel()

	p := DefaultParams()
	var window []market.Candle
	for i := 0; i < 60; i++ {
		c := 100 + 5*math.Sin(float64(i)/4)
		window = append(window, market.Candle{
			Start: int64(i+1) * 900, Open: c - 0.5, High: c + 1, Low: c - 1, Close: c, Volume: float64(10 + i%3),
		})
	}

	_, err := Compute(window[:p.MinLength()-1], p)
	assert.ErrorIs(t, err, ErrInsufficientData)

	snap, err := Compute(window[:p.MinLength()], p)
	require.NoError(t, err)
	assert.False(t, math.IsNaN(snap.Hist.Prev))

	snap, err = Compute(window, p)
	require.NoError(t, err)
	assert.Equal(t, window[59].Close, snap.Close.Cur)
	assert.Equal(t, window[58].Close, snap.Close.Prev)
	assert.GreaterOrEqual(t, snap.RSI.Cur, 0.0)
	assert.LessOrEqual(t, snap.RSI.Cur, 100.0)
	assert.GreaterOrEqual(t, snap.BollUpper.Cur, snap.BollMid.Cur)
	assert.LessOrEqual(t, snap.BollLower.Cur, snap.BollMid.Cur)
	assert.Equal(t, 60, snap.Candles)
	assert.Equal(t, window[59].Volume, snap.Volume)

	var sum float64
	for _, c := range window[49:59] {
		sum += c.Volume
	}
	assert.InDelta(t, sum/10, snap.AvgVolume, 1e-9)
}
