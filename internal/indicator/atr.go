package indicator

import "github.com/amirphl/rank-trader/internal/candle"

// ATR computes the average true range. Bars before `period` average the true
// ranges seen so far; later bars use Wilder smoothing. A window shorter than
// `period` yields zeros.
func ATR(candles []candle.Candle, period int) []float64 {
	out := make([]float64, len(candles))
	if period <= 0 || len(candles) < period {
		return out
	}
	st := ATRState{Period: period}
	for i, c := range candles {
		out[i] = st.Next(c)
	}
	return out
}
