package strategies

import (
	"fmt"
	"math"
	"strings"

	"github.com/rustyeddy/pairtrader/indicators"
	"github.com/rustyeddy/pairtrader/market"
)

// Weights are the points each checklist condition contributes.
type Weights struct {
	Trend         int `json:"trend" yaml:"trend"`
	MACDCross     int `json:"macd_cross" yaml:"macd_cross"`
	MACDMomentum  int `json:"macd_momentum" yaml:"macd_momentum"`
	RSIZone       int `json:"rsi_zone" yaml:"rsi_zone"`
	StochZone     int `json:"stoch_zone" yaml:"stoch_zone"`
	StochCross    int `json:"stoch_cross" yaml:"stoch_cross"`
	BandProximity int `json:"band_proximity" yaml:"band_proximity"`
	VolumeSurge   int `json:"volume_surge" yaml:"volume_surge"`
	Pattern       int `json:"pattern" yaml:"pattern"`
	LowConviction int `json:"low_conviction" yaml:"low_conviction"` // subtracted
}

// Config holds the scoring thresholds. All values are tunable constants.
type Config struct {
	Weights Weights `json:"weights" yaml:"weights"`

	BuyThreshold    int `json:"buy_threshold" yaml:"buy_threshold"`
	SellThreshold   int `json:"sell_threshold" yaml:"sell_threshold"`
	ShortThreshold  int `json:"short_threshold" yaml:"short_threshold"`
	CoverThreshold  int `json:"cover_threshold" yaml:"cover_threshold"`
	MinEntryQuality int `json:"min_entry_quality" yaml:"min_entry_quality"`

	RSIOversold      float64 `json:"rsi_oversold" yaml:"rsi_oversold"`
	RSIOverbought    float64 `json:"rsi_overbought" yaml:"rsi_overbought"`
	StochOversold    float64 `json:"stoch_oversold" yaml:"stoch_oversold"`
	StochOverbought  float64 `json:"stoch_overbought" yaml:"stoch_overbought"`
	BandProximity    float64 `json:"band_proximity" yaml:"band_proximity"` // fraction of price
	VolumeSurgeRatio float64 `json:"volume_surge_ratio" yaml:"volume_surge_ratio"`

	// Low-conviction zone: RSI inside [NeutralLow, NeutralHigh] while bullish
	// and bearish votes both reach ConflictVotes.
	NeutralLow    float64 `json:"neutral_low" yaml:"neutral_low"`
	NeutralHigh   float64 `json:"neutral_high" yaml:"neutral_high"`
	ConflictVotes int     `json:"conflict_votes" yaml:"conflict_votes"`

	Lookback           int     `json:"lookback" yaml:"lookback"`
	TopPercentile      float64 `json:"top_percentile" yaml:"top_percentile"`
	NearHighPercentile float64 `json:"near_high_percentile" yaml:"near_high_percentile"`
	MaxPatternCount    int     `json:"max_pattern_count" yaml:"max_pattern_count"`
}

func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			Trend:         2,
			MACDCross:     2,
			MACDMomentum:  1,
			RSIZone:       2,
			StochZone:     1,
			StochCross:    1,
			BandProximity: 1,
			VolumeSurge:   1,
			Pattern:       1,
			LowConviction: 2,
		},
		BuyThreshold:       5,
		SellThreshold:      5,
		ShortThreshold:     6,
		CoverThreshold:     5,
		MinEntryQuality:    2,
		RSIOversold:        30,
		RSIOverbought:      70,
		StochOversold:      20,
		StochOverbought:    80,
		BandProximity:      0.002,
		VolumeSurgeRatio:   1.5,
		NeutralLow:         40,
		NeutralHigh:        60,
		ConflictVotes:      2,
		Lookback:           20,
		TopPercentile:      0.8,
		NearHighPercentile: 0.7,
		MaxPatternCount:    2,
	}
}

func (c Config) Validate() error {
	if c.BuyThreshold <= 0 || c.SellThreshold <= 0 || c.ShortThreshold <= 0 || c.CoverThreshold <= 0 {
		return fmt.Errorf("scoring thresholds must be positive")
	}
	if c.RSIOversold <= 0 || c.RSIOverbought >= 100 || c.RSIOversold >= c.RSIOverbought {
		return fmt.Errorf("scoring.rsi_oversold must be below rsi_overbought within (0, 100)")
	}
	if c.StochOversold <= 0 || c.StochOverbought >= 100 || c.StochOversold >= c.StochOverbought {
		return fmt.Errorf("scoring.stoch_oversold must be below stoch_overbought within (0, 100)")
	}
	if c.Lookback <= 1 {
		return fmt.Errorf("scoring.lookback must exceed 1")
	}
	if c.TopPercentile <= 0 || c.TopPercentile > 1 || c.NearHighPercentile < 0 || c.NearHighPercentile > 1 {
		return fmt.Errorf("scoring percentiles must be within (0, 1]")
	}
	if c.VolumeSurgeRatio <= 1 {
		return fmt.Errorf("scoring.volume_surge_ratio must exceed 1")
	}
	return nil
}

// Scores is the scorer output for one cycle.
type Scores struct {
	Buy          int `json:"buy"`
	Sell         int `json:"sell"`
	Short        int `json:"short"`
	Quality      int `json:"quality"`       // long entry quality
	ShortQuality int `json:"short_quality"` // short entry quality

	// PricePosition is (close-low)/(high-low) over the look-back window.
	PricePosition float64 `json:"price_position"`
	LowConviction bool    `json:"low_conviction"`

	BuyOK   bool `json:"buy_ok"`
	SellOK  bool `json:"sell_ok"`
	ShortOK bool `json:"short_ok"`
	CoverOK bool `json:"cover_ok"`

	Patterns Patterns `json:"patterns"`
	Reasons  []string `json:"reasons,omitempty"`
}

// Reason joins every condition that fired.
func (s Scores) Reason() string {
	return strings.Join(s.Reasons, ",")
}

// ReasonFor joins the conditions behind kind's score. Short entries reuse the
// bearish checklist and covers the bullish one; unprefixed reasons such as
// low_conviction apply to all.
func (s Scores) ReasonFor(kind Signal) string {
	var prefixes []string
	switch kind {
	case Buy, Cover:
		prefixes = []string{"buy:"}
	case Sell:
		prefixes = []string{"sell:"}
	case ShortEntry:
		prefixes = []string{"sell:", "short:"}
	}
	var out []string
	for _, r := range s.Reasons {
		if !strings.Contains(r, ":") {
			out = append(out, r)
			continue
		}
		for _, p := range prefixes {
			if strings.HasPrefix(r, p) {
				out = append(out, r)
				break
			}
		}
	}
	return strings.Join(out, ",")
}

// Scorer evaluates the weighted checklist.
type Scorer struct {
	cfg      Config
	detector PatternDetector
}

func NewScorer(cfg Config, detector PatternDetector) *Scorer {
	if detector == nil {
		detector = NewCandlePatterns()
	}
	return &Scorer{cfg: cfg, detector: detector}
}

func (s *Scorer) Config() Config { return s.cfg }

// Score computes the buy, sell, short and entry-quality scores from the
// snapshot and the newest candles of window.
func (s *Scorer) Score(window []market.Candle, snap indicators.Snapshot) Scores {
	c := s.cfg
	w := c.Weights
	out := Scores{}

	var last market.Candle
	if len(window) > 0 {
		last = window[len(window)-1]
	}
	px := snap.Close.Cur

	out.Patterns = s.detector.Detect(window)
	bullPatterns := min(out.Patterns.Bullish, c.MaxPatternCount)
	bearPatterns := min(out.Patterns.Bearish, c.MaxPatternCount)

	trendUp := snap.FastMA.Cur > snap.SlowMA.Cur
	trendDown := snap.FastMA.Cur < snap.SlowMA.Cur
	crossUp := snap.Hist.Prev <= 0 && snap.Hist.Cur > 0
	crossDown := snap.Hist.Prev >= 0 && snap.Hist.Cur < 0
	histRising := snap.Hist.Cur > snap.Hist.Prev
	histFalling := snap.Hist.Cur < snap.Hist.Prev
	oversold := snap.RSI.Cur < c.RSIOversold
	overbought := snap.RSI.Cur > c.RSIOverbought
	stochLow := snap.StochK.Cur < c.StochOversold
	stochHigh := snap.StochK.Cur > c.StochOverbought
	stochCrossUp := snap.StochK.Prev <= snap.StochD.Prev && snap.StochK.Cur > snap.StochD.Cur
	stochCrossDown := snap.StochK.Prev >= snap.StochD.Prev && snap.StochK.Cur < snap.StochD.Cur
	nearLower := px <= snap.BollLower.Cur*(1+c.BandProximity)
	nearUpper := px >= snap.BollUpper.Cur*(1-c.BandProximity)
	surge := snap.AvgVolume > 0 && snap.Volume > snap.AvgVolume*c.VolumeSurgeRatio

	add := func(score *int, cond bool, pts int, reason string) {
		if cond && pts != 0 {
			*score += pts
			out.Reasons = append(out.Reasons, reason)
		}
	}

	add(&out.Buy, trendUp, w.Trend, "buy:trend_up")
	add(&out.Buy, crossUp, w.MACDCross, "buy:macd_cross_up")
	add(&out.Buy, histRising, w.MACDMomentum, "buy:macd_rising")
	add(&out.Buy, oversold, w.RSIZone, "buy:rsi_oversold")
	add(&out.Buy, stochLow, w.StochZone, "buy:stoch_oversold")
	add(&out.Buy, stochCrossUp, w.StochCross, "buy:stoch_cross_up")
	add(&out.Buy, nearLower, w.BandProximity, "buy:lower_band")
	add(&out.Buy, surge && last.Rising(), w.VolumeSurge, "buy:volume_surge")
	add(&out.Buy, bullPatterns > 0, w.Pattern*bullPatterns, "buy:bullish_pattern")

	add(&out.Sell, trendDown, w.Trend, "sell:trend_down")
	add(&out.Sell, crossDown, w.MACDCross, "sell:macd_cross_down")
	add(&out.Sell, histFalling, w.MACDMomentum, "sell:macd_falling")
	add(&out.Sell, overbought, w.RSIZone, "sell:rsi_overbought")
	add(&out.Sell, stochHigh, w.StochZone, "sell:stoch_overbought")
	add(&out.Sell, stochCrossDown, w.StochCross, "sell:stoch_cross_down")
	add(&out.Sell, nearUpper, w.BandProximity, "sell:upper_band")
	add(&out.Sell, surge && last.Falling(), w.VolumeSurge, "sell:volume_surge")
	add(&out.Sell, bearPatterns > 0, w.Pattern*bearPatterns, "sell:bearish_pattern")

	// Short entries reuse the bearish checklist but need the trend and the
	// price below the mid band to agree.
	out.Short = out.Sell
	add(&out.Short, trendDown && px < snap.BollMid.Cur, w.Trend, "short:trend_confirmed")

	// Low-conviction zone: mid-range RSI while trend-following votes split.
	bull, bear := votes(snap)
	if snap.RSI.Cur >= c.NeutralLow && snap.RSI.Cur <= c.NeutralHigh && bull >= c.ConflictVotes && bear >= c.ConflictVotes {
		out.LowConviction = true
		out.Buy -= w.LowConviction
		out.Sell -= w.LowConviction
		out.Short -= w.LowConviction
		out.Reasons = append(out.Reasons, "low_conviction")
	}

	out.PricePosition = pricePosition(window, c.Lookback)

	q := 0
	if out.PricePosition <= 0.5 {
		q++
	}
	if snap.RSI.Cur < 50 {
		q++
	}
	if snap.Close.Cur > snap.Close.Prev {
		q++
	}
	if surge {
		q++
	}
	q += out.Patterns.Bias()
	if out.LowConviction {
		q -= w.LowConviction
	}
	out.Quality = q

	sq := 0
	if out.PricePosition >= 0.5 {
		sq++
	}
	if snap.RSI.Cur > 50 {
		sq++
	}
	if snap.Close.Cur < snap.Close.Prev {
		sq++
	}
	if surge {
		sq++
	}
	sq -= out.Patterns.Bias()
	if out.LowConviction {
		sq -= w.LowConviction
	}
	out.ShortQuality = sq

	goodLong := out.PricePosition <= c.TopPercentile
	nearHighs := out.PricePosition >= c.NearHighPercentile

	out.BuyOK = out.Buy >= c.BuyThreshold && out.Quality >= c.MinEntryQuality && goodLong
	out.ShortOK = out.Short >= c.ShortThreshold && out.ShortQuality >= c.MinEntryQuality && nearHighs
	out.SellOK = out.Sell >= c.SellThreshold
	out.CoverOK = out.Buy >= c.CoverThreshold
	return out
}

func votes(snap indicators.Snapshot) (bull, bear int) {
	pairs := [][2]float64{
		{snap.FastMA.Cur, snap.SlowMA.Cur},
		{snap.Hist.Cur, 0},
		{snap.StochK.Cur, snap.StochD.Cur},
		{snap.Close.Cur, snap.BollMid.Cur},
	}
	for _, p := range pairs {
		switch {
		case p[0] > p[1]:
			bull++
		case p[0] < p[1]:
			bear++
		}
	}
	return bull, bear
}

// pricePosition locates the last close inside the high/low range of the
// newest lookback candles: 0 at the low, 1 at the high, 0.5 when flat.
func pricePosition(window []market.Candle, lookback int) float64 {
	n := len(window)
	if n == 0 {
		return 0.5
	}
	start := max(0, n-lookback)
	hi, lo := math.Inf(-1), math.Inf(1)
	for _, c := range window[start:] {
		hi = math.Max(hi, c.High)
		lo = math.Min(lo, c.Low)
	}
	if hi <= lo {
		return 0.5
	}
	return (window[n-1].Close - lo) / (hi - lo)
}
