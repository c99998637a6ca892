// Package indicator provides technical analysis indicators over candle windows.
//
// Every series is aligned 1:1 with its input. Bars before an indicator's
// warm-up period hold NaN; use Defined to test a value.
package indicator

import (
	"errors"
	"math"
)

var ErrInvalidMode = errors.New("invalid price change mode")

// Defined reports whether v is a real indicator value and not the warm-up marker.
func Defined(v float64) bool {
	return !math.IsNaN(v)
}

// LastDefined returns the most recent defined value of a series.
func LastDefined(series []float64) (float64, bool) {
	for i := len(series) - 1; i >= 0; i-- {
		if Defined(series[i]) {
			return series[i], true
		}
	}
	return math.NaN(), false
}

func undefined(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
