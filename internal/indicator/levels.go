package indicator

import (
	"math"
	"sort"

	"github.com/amirphl/rank-trader/internal/candle"
	"gonum.org/v1/gonum/stat"
)

// SupportResistance finds local lows and highs that hold against `window`
// bars on each side (ties allowed) and merges levels closer than `threshold`
// relative distance. Both slices are empty when there are fewer than
// 2*window+1 candles.
func SupportResistance(candles []candle.Candle, window int, threshold float64) (support, resistance []float64) {
	if window <= 0 || len(candles) < 2*window+1 {
		return []float64{}, []float64{}
	}

	var lows, highs []float64
	for i := window; i < len(candles)-window; i++ {
		isLow, isHigh := true, true
		for j := 1; j <= window; j++ {
			if candles[i].Low > candles[i-j].Low || candles[i].Low > candles[i+j].Low {
				isLow = false
			}
			if candles[i].High < candles[i-j].High || candles[i].High < candles[i+j].High {
				isHigh = false
			}
		}
		if isLow {
			lows = append(lows, candles[i].Low)
		}
		if isHigh {
			highs = append(highs, candles[i].High)
		}
	}
	return GroupLevels(lows, threshold), GroupLevels(highs, threshold)
}

// GroupLevels sorts levels ascending and collapses each run whose
// neighbour-to-neighbour relative distance is within threshold into its mean.
func GroupLevels(levels []float64, threshold float64) []float64 {
	out := []float64{}
	if len(levels) == 0 {
		return out
	}

	sorted := append([]float64(nil), levels...)
	sort.Float64s(sorted)

	group := []float64{sorted[0]}
	for _, level := range sorted[1:] {
		prev := group[len(group)-1]
		var diff float64
		if prev > 0 {
			diff = math.Abs((level - prev) / prev)
		}
		if diff <= threshold {
			group = append(group, level)
			continue
		}
		out = append(out, stat.Mean(group, nil))
		group = []float64{level}
	}
	return append(out, stat.Mean(group, nil))
}
