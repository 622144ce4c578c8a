package indicators

import (
	"fmt"
	"strings"

	"github.com/rustyeddy/pairtrader/market"
)

// Params selects the indicator periods computed for every cycle.
type Params struct {
	MAType       string  `json:"ma_type" yaml:"ma_type"` // ema|sma
	FastMA       int     `json:"fast_ma" yaml:"fast_ma"`
	SlowMA       int     `json:"slow_ma" yaml:"slow_ma"`
	RSIPeriod    int     `json:"rsi_period" yaml:"rsi_period"`
	MACDFast     int     `json:"macd_fast" yaml:"macd_fast"`
	MACDSlow     int     `json:"macd_slow" yaml:"macd_slow"`
	MACDSignal   int     `json:"macd_signal" yaml:"macd_signal"`
	StochK       int     `json:"stoch_k" yaml:"stoch_k"`
	StochD       int     `json:"stoch_d" yaml:"stoch_d"`
	BollPeriod   int     `json:"boll_period" yaml:"boll_period"`
	BollStdDev   float64 `json:"boll_stddev" yaml:"boll_stddev"`
	VolumePeriod int     `json:"volume_period" yaml:"volume_period"`
}

func DefaultParams() Params {
	return Params{
		MAType:       "ema",
		FastMA:       9,
		SlowMA:       21,
		RSIPeriod:    14,
		MACDFast:     12,
		MACDSlow:     26,
		MACDSignal:   9,
		StochK:       14,
		StochD:       3,
		BollPeriod:   20,
		BollStdDev:   2,
		VolumePeriod: 10,
	}
}

func (p Params) Validate() error {
	switch strings.ToLower(p.MAType) {
	case "", "ema", "sma":
	default:
		return fmt.Errorf("indicators.ma_type must be 'ema' or 'sma'")
	}
	if p.FastMA <= 0 || p.SlowMA <= 0 || p.FastMA >= p.SlowMA {
		return fmt.Errorf("indicators.fast_ma must be positive and below slow_ma")
	}
	if p.RSIPeriod <= 0 {
		return fmt.Errorf("indicators.rsi_period must be positive")
	}
	if p.MACDFast <= 0 || p.MACDSlow <= p.MACDFast || p.MACDSignal <= 0 {
		return fmt.Errorf("indicators.macd periods must be positive with fast < slow")
	}
	if p.StochK <= 0 || p.StochD <= 0 {
		return fmt.Errorf("indicators.stoch periods must be positive")
	}
	if p.BollPeriod <= 1 || p.BollStdDev <= 0 {
		return fmt.Errorf("indicators.boll_period must exceed 1 and boll_stddev be positive")
	}
	if p.VolumePeriod <= 0 {
		return fmt.Errorf("indicators.volume_period must be positive")
	}
	return nil
}

// MinLength is the shortest window for which every indicator has a current
// and a previous value.
func (p Params) MinLength() int {
	n := max(
		p.SlowMA,
		p.RSIPeriod+1,
		p.MACDSlow+p.MACDSignal-1,
		p.StochK+p.StochD-1,
		p.BollPeriod,
		p.VolumePeriod+1,
	)
	return n + 1
}

// Reading is the latest value of an indicator and the one before it.
type Reading struct {
	Cur  float64 `json:"cur"`
	Prev float64 `json:"prev"`
}

func reading(s []float64) Reading {
	cur, prev := Last(s)
	return Reading{Cur: cur, Prev: prev}
}

func (r Reading) Rising() bool  { return r.Cur > r.Prev }
func (r Reading) Falling() bool { return r.Cur < r.Prev }

// Snapshot is the per-cycle indicator state derived from the candle window.
type Snapshot struct {
	Close     Reading `json:"close"`
	FastMA    Reading `json:"fast_ma"`
	SlowMA    Reading `json:"slow_ma"`
	RSI       Reading `json:"rsi"`
	MACD      Reading `json:"macd"`
	Signal    Reading `json:"macd_signal"`
	Hist      Reading `json:"macd_hist"`
	StochK    Reading `json:"stoch_k"`
	StochD    Reading `json:"stoch_d"`
	BollMid   Reading `json:"boll_mid"`
	BollUpper Reading `json:"boll_upper"`
	BollLower Reading `json:"boll_lower"`

	Volume    float64 `json:"volume"`
	AvgVolume float64 `json:"avg_volume"` // mean of the VolumePeriod candles before the last
	Candles   int     `json:"candles"`
}

// Compute derives a Snapshot from window. It returns ErrInsufficientData
// when the window is shorter than p.MinLength(); no partial snapshot is
// produced.
func Compute(window []market.Candle, p Params) (Snapshot, error) {
	if err := need(len(window), p.MinLength(), "snapshot"); err != nil {
		return Snapshot{}, err
	}

	closes := market.Closes(window)
	highs := make([]float64, len(window))
	lows := make([]float64, len(window))
	for i, c := range window {
		highs[i] = c.High
		lows[i] = c.Low
	}

	ma := EMASeries
	if strings.EqualFold(p.MAType, "sma") {
		ma = SMASeries
	}
	fast, err := ma(closes, p.FastMA)
	if err != nil {
		return Snapshot{}, err
	}
	slow, err := ma(closes, p.SlowMA)
	if err != nil {
		return Snapshot{}, err
	}
	rsi, err := RSISeries(closes, p.RSIPeriod)
	if err != nil {
		return Snapshot{}, err
	}
	macd, err := MACDSeries(closes, p.MACDFast, p.MACDSlow, p.MACDSignal)
	if err != nil {
		return Snapshot{}, err
	}
	stoch, err := StochasticSeries(highs, lows, closes, p.StochK, p.StochD)
	if err != nil {
		return Snapshot{}, err
	}
	bands, err := BollingerSeries(closes, p.BollPeriod, p.BollStdDev)
	if err != nil {
		return Snapshot{}, err
	}

	n := len(window)
	var vol float64
	for _, c := range window[n-1-p.VolumePeriod : n-1] {
		vol += c.Volume
	}

	return Snapshot{
		Close:     reading(closes),
		FastMA:    reading(fast),
		SlowMA:    reading(slow),
		RSI:       reading(rsi),
		MACD:      reading(macd.Line),
		Signal:    reading(macd.Signal),
		Hist:      reading(macd.Hist),
		StochK:    reading(stoch.K),
		StochD:    reading(stoch.D),
		BollMid:   reading(bands.Mid),
		BollUpper: reading(bands.Upper),
		BollLower: reading(bands.Lower),
		Volume:    window[n-1].Volume,
		AvgVolume: vol / float64(p.VolumePeriod),
		Candles:   n,
	}, nil
}
