package indicators

import (
	"fmt"
	"math"
)

// RSISeries is Wilder's Relative Strength Index in [0, 100]. The first value
// appears at index period. A window with no movement reads 50.
func RSISeries(values []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, fmt.Errorf("period must be positive, got %d", period)
	}
	if err := need(len(values), period+1, "RSI"); err != nil {
		return nil, err
	}

	out := nanSeries(len(values))
	var gain, loss float64
	for i := 1; i <= period; i++ {
		d := values[i] - values[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)
	out[period] = rsi(avgGain, avgLoss)

	p := float64(period)
	for i := period + 1; i < len(values); i++ {
		d := values[i] - values[i-1]
		g, l := 0.0, 0.0
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		avgGain = (avgGain*(p-1) + g) / p
		avgLoss = (avgLoss*(p-1) + l) / p
		out[i] = rsi(avgGain, avgLoss)
	}
	return out, nil
}

func rsi(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// MACD holds the aligned line, signal and histogram series.
type MACD struct {
	Line   []float64
	Signal []float64
	Hist   []float64
}

// MACDSeries computes EMA(fast) - EMA(slow) and its EMA(signal). The
// histogram is defined from index slow+signal-2.
func MACDSeries(values []float64, fast, slow, signal int) (MACD, error) {
	if fast <= 0 || slow <= 0 || signal <= 0 {
		return MACD{}, fmt.Errorf("MACD periods must be positive, got %d/%d/%d", fast, slow, signal)
	}
	if fast >= slow {
		return MACD{}, fmt.Errorf("MACD fast period %d must be below slow %d", fast, slow)
	}
	if err := need(len(values), slow+signal-1, "MACD"); err != nil {
		return MACD{}, err
	}

	emaFast, err := EMASeries(values, fast)
	if err != nil {
		return MACD{}, err
	}
	emaSlow, err := EMASeries(values, slow)
	if err != nil {
		return MACD{}, err
	}

	line := nanSeries(len(values))
	for i := slow - 1; i < len(values); i++ {
		line[i] = emaFast[i] - emaSlow[i]
	}

	sig, err := EMASeries(line[slow-1:], signal)
	if err != nil {
		return MACD{}, err
	}
	signalOut := nanSeries(len(values))
	hist := nanSeries(len(values))
	for i, v := range sig {
		j := i + slow - 1
		signalOut[j] = v
		if !math.IsNaN(v) {
			hist[j] = line[j] - v
		}
	}
	return MACD{Line: line, Signal: signalOut, Hist: hist}, nil
}

// Stochastic holds the aligned %K and %D series.
type Stochastic struct {
	K []float64
	D []float64
}

// StochasticSeries computes the fast stochastic oscillator: %K over kPeriod
// high/low range, %D the SMA of %K over dPeriod. A flat range reads 50.
func StochasticSeries(highs, lows, closes []float64, kPeriod, dPeriod int) (Stochastic, error) {
	if kPeriod <= 0 || dPeriod <= 0 {
		return Stochastic{}, fmt.Errorf("stochastic periods must be positive, got %d/%d", kPeriod, dPeriod)
	}
	if len(highs) != len(closes) || len(lows) != len(closes) {
		return Stochastic{}, fmt.Errorf("stochastic inputs differ in length")
	}
	if err := need(len(closes), kPeriod+dPeriod-1, "Stochastic"); err != nil {
		return Stochastic{}, err
	}

	k := nanSeries(len(closes))
	for i := kPeriod - 1; i < len(closes); i++ {
		hh, ll := highs[i], lows[i]
		for j := i - kPeriod + 1; j <= i; j++ {
			hh = math.Max(hh, highs[j])
			ll = math.Min(ll, lows[j])
		}
		if hh == ll {
			k[i] = 50
			continue
		}
		k[i] = 100 * (closes[i] - ll) / (hh - ll)
	}

	dTail, err := SMASeries(k[kPeriod-1:], dPeriod)
	if err != nil {
		return Stochastic{}, err
	}
	d := nanSeries(len(closes))
	copy(d[kPeriod-1:], dTail)
	return Stochastic{K: k, D: d}, nil
}

// Bands holds the aligned Bollinger mid, upper and lower series.
type Bands struct {
	Mid   []float64
	Upper []float64
	Lower []float64
}

// BollingerSeries computes SMA(period) +/- mult population standard
// deviations.
func BollingerSeries(values []float64, period int, mult float64) (Bands, error) {
	mid, err := SMASeries(values, period)
	if err != nil {
		return Bands{}, err
	}

	upper := nanSeries(len(values))
	lower := nanSeries(len(values))
	for i := period - 1; i < len(values); i++ {
		var ss float64
		for j := i - period + 1; j <= i; j++ {
			d := values[j] - mid[i]
			ss += d * d
		}
		sd := math.Sqrt(ss / float64(period))
		upper[i] = mid[i] + mult*sd
		lower[i] = mid[i] - mult*sd
	}
	return Bands{Mid: mid, Upper: upper, Lower: lower}, nil
}
