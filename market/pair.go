package market

import (
	"fmt"
	"strings"
)

// Pair is the single traded instrument, e.g. BTC-USD.
type Pair struct {
	Name  string
	Base  string
	Quote string
}

// ParsePair accepts BASE-QUOTE, BASE_QUOTE or BASE/QUOTE.
func ParsePair(s string) (Pair, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == '-' || r == '_' || r == '/'
	})
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Pair{}, fmt.Errorf("invalid pair %q: want BASE-QUOTE", s)
	}
	return Pair{Name: parts[0] + "-" + parts[1], Base: parts[0], Quote: parts[1]}, nil
}

func (p Pair) String() string { return p.Name }
