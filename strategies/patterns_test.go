package strategies

import (
	"testing"

	"github.com/rustyeddy/pairtrader/market"
	"github.com/stretchr/testify/assert"
)

func TestCandlePatterns(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		candles []market.Candle
		bull    int
		bear    int
		want    string
	}{
		{
			name: "bullish engulfing",
			candles: []market.Candle{
				{Open: 10, High: 10.2, Low: 8.8, Close: 9},
				{Open: 8.9, High: 10.6, Low: 8.8, Close: 10.5},
			},
			bull: 1, want: "bullish_engulfing",
		},
		{
			name: "bearish engulfing",
			candles: []market.Candle{
				{Open: 9, High: 10.2, Low: 8.8, Close: 10},
				{Open: 10.1, High: 10.2, Low: 8.4, Close: 8.5},
			},
			bear: 1, want: "bearish_engulfing",
		},
		{
			name: "hammer",
			candles: []market.Candle{
				{Open: 10, High: 10, Low: 10, Close: 10},
				{Open: 10, High: 10.6, Low: 8, Close: 10.5},
			},
			bull: 1, want: "hammer",
		},
		{
			name: "shooting star",
			candles: []market.Candle{
				{Open: 10, High: 10, Low: 10, Close: 10},
				{Open: 10.5, High: 12.5, Low: 9.9, Close: 10},
			},
			bear: 1, want: "shooting_star",
		},
		{
			name: "three black crows",
			candles: []market.Candle{
				{Open: 12, High: 12, Low: 11, Close: 11},
				{Open: 11, High: 11, Low: 10, Close: 10},
				{Open: 10, High: 10, Low: 9, Close: 9},
			},
			bear: 1, want: "three_black_crows",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := NewCandlePatterns().Detect(tt.candles)
			assert.Equal(t, tt.bull, p.Bullish)
			assert.Equal(t, tt.bear, p.Bearish)
			assert.Contains(t, p.Names, tt.want)
			assert.Equal(t, tt.bull-tt.bear, p.Bias())
		})
	}
}

func TestCandlePatternsShortWindow(t *testing.T) {
	t.Parallel()

	p := NewCandlePatterns().Detect([]market.Candle{{Open: 1, Close: 2, High: 2, Low: 1}})
	assert.Equal(t, Patterns{}, p)
}
