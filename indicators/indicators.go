// Package indicators provides technical analysis indicators for trading.
//
// Series functions take a value slice and return a slice of the same length
// aligned with the input; positions before the indicator has warmed up hold
// NaN. They are deterministic and never mutate their input.
package indicators

import (
	"errors"
	"fmt"
	"math"
)

// ErrInsufficientData is returned when a series is shorter than an
// indicator's warmup.
var ErrInsufficientData = errors.New("not enough data")

func need(have, want int, name string) error {
	if have < want {
		return fmt.Errorf("%w: %s needs %d values, got %d", ErrInsufficientData, name, want, have)
	}
	return nil
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// Last returns the final element of s and the one before it.
func Last(s []float64) (cur, prev float64) {
	switch len(s) {
	case 0:
		return math.NaN(), math.NaN()
	case 1:
		return s[0], math.NaN()
	}
	return s[len(s)-1], s[len(s)-2]
}
