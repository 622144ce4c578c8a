package market

import "time"

// Candle is one OHLCV bucket. Start is the bucket open in unix seconds.
type Candle struct {
	Start  int64   `json:"start"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

func (c Candle) Time() time.Time {
	return time.Unix(c.Start, 0).UTC()
}

func (c Candle) Rising() bool  { return c.Close > c.Open }
func (c Candle) Falling() bool { return c.Close < c.Open }

// Body is the absolute open/close distance.
func (c Candle) Body() float64 {
	if c.Close > c.Open {
		return c.Close - c.Open
	}
	return c.Open - c.Close
}

func (c Candle) Range() float64 {
	return c.High - c.Low
}

func (c Candle) UpperWick() float64 {
	return c.High - max(c.Open, c.Close)
}

func (c Candle) LowerWick() float64 {
	return min(c.Open, c.Close) - c.Low
}

// Closes returns the close series of candles.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// Volumes returns the volume series of candles.
func Volumes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Volume
	}
	return out
}

// AlignStart floors t to the start of its granularity bucket.
func AlignStart(t time.Time, granularity time.Duration) time.Time {
	return t.UTC().Truncate(granularity)
}
