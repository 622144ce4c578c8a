// Package strategies turns an indicator snapshot into trade signal scores.
package strategies

// Signal is a trade intent produced by the scorer and confirmed by the gate.
type Signal int

const (
	Hold Signal = iota
	Buy
	Sell
	ShortEntry
	Cover
)

func (s Signal) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	case ShortEntry:
		return "short"
	case Cover:
		return "cover"
	default:
		return "hold"
	}
}

// ParseSignal is the inverse of String.
func ParseSignal(s string) Signal {
	switch s {
	case "buy":
		return Buy
	case "sell":
		return Sell
	case "short":
		return ShortEntry
	case "cover":
		return Cover
	}
	return Hold
}
