package indicator

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ZScore computes the rolling population z-score of the last value in each
// window. Flat windows score 0.
func ZScore(values []float64, period int) []float64 {
	out := undefined(len(values))
	if period <= 0 || len(values) < period {
		return out
	}
	for i := period - 1; i < len(values); i++ {
		window := values[i-period+1 : i+1]
		if floats.Min(window) == floats.Max(window) {
			out[i] = 0
			continue
		}
		mean, std := stat.PopMeanStdDev(window, nil)
		if std == 0 {
			out[i] = 0
			continue
		}
		out[i] = (values[i] - mean) / std
	}
	return out
}
