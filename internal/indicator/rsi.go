package indicator

// RSI computes the relative strength index over values. The first `period`
// averages are simple means, later ones are Wilder-smoothed. Entries before
// index `period` are NaN, and so is every entry when len(values) <= period.
func RSI(values []float64, period int) []float64 {
	if period <= 0 || len(values) <= period {
		return undefined(len(values))
	}
	out := make([]float64, len(values))
	st := RSIState{Period: period}
	for i, v := range values {
		out[i] = st.Next(v)
	}
	return out
}
