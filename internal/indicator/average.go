package indicator

import "gonum.org/v1/gonum/stat"

// SMA computes the simple moving average. The first period-1 entries are NaN.
func SMA(values []float64, period int) []float64 {
	out := undefined(len(values))
	if period <= 0 || len(values) < period {
		return out
	}
	for i := period - 1; i < len(values); i++ {
		out[i] = stat.Mean(values[i-period+1:i+1], nil)
	}
	return out
}

// EMA computes the exponential moving average with multiplier 2/(period+1),
// seeded with the SMA of the first `period` values.
func EMA(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return undefined(len(values))
	}
	out := make([]float64, len(values))
	st := EMAState{Period: period}
	for i, v := range values {
		out[i] = st.Next(v)
	}
	return out
}
