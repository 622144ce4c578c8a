package strategies

import "github.com/rustyeddy/pairtrader/market"

// Patterns is the result of candle-pattern detection on the newest candles.
type Patterns struct {
	Bullish int      `json:"bullish"`
	Bearish int      `json:"bearish"`
	Names   []string `json:"names,omitempty"`
}

// Bias is bullish minus bearish detections.
func (p Patterns) Bias() int { return p.Bullish - p.Bearish }

func (p *Patterns) bull(name string) {
	p.Bullish++
	p.Names = append(p.Names, name)
}

func (p *Patterns) bear(name string) {
	p.Bearish++
	p.Names = append(p.Names, name)
}

// PatternDetector finds candle patterns at the end of a window.
type PatternDetector interface {
	Detect(window []market.Candle) Patterns
}

// CandlePatterns detects engulfing, hammer / shooting star and three
// soldiers / crows formations.
type CandlePatterns struct {
	// WickRatio is how many bodies long a wick must be for hammer/star.
	WickRatio float64
}

func NewCandlePatterns() CandlePatterns {
	return CandlePatterns{WickRatio: 2}
}

func (d CandlePatterns) Detect(window []market.Candle) Patterns {
	var p Patterns
	n := len(window)
	if n < 2 {
		return p
	}
	cur, prev := window[n-1], window[n-2]

	if prev.Falling() && cur.Rising() && cur.Open <= prev.Close && cur.Close >= prev.Open && cur.Body() > prev.Body() {
		p.bull("bullish_engulfing")
	}
	if prev.Rising() && cur.Falling() && cur.Open >= prev.Close && cur.Close <= prev.Open && cur.Body() > prev.Body() {
		p.bear("bearish_engulfing")
	}

	ratio := d.WickRatio
	if ratio <= 0 {
		ratio = 2
	}
	if body := cur.Body(); body > 0 && cur.Range() > 0 {
		if cur.LowerWick() >= ratio*body && cur.UpperWick() <= body {
			p.bull("hammer")
		}
		if cur.UpperWick() >= ratio*body && cur.LowerWick() <= body {
			p.bear("shooting_star")
		}
	}

	if n >= 3 {
		a, b, c := window[n-3], window[n-2], window[n-1]
		if a.Rising() && b.Rising() && c.Rising() && b.Close > a.Close && c.Close > b.Close {
			p.bull("three_white_soldiers")
		}
		if a.Falling() && b.Falling() && c.Falling() && b.Close < a.Close && c.Close < b.Close {
			p.bear("three_black_crows")
		}
	}
	return p
}
