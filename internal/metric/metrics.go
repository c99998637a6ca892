package metric

import (
	"math"

	"github.com/amirphl/rank-trader/internal/candle"
	"github.com/amirphl/rank-trader/internal/indicator"
)

// VolumeMetric splits each bar's volume by where the close sits in the
// bar's range and returns cumulative buy over cumulative sell volume.
// Bars with no range are skipped; no sell volume gives 1. NaN when the
// window is shorter than baseline.
func VolumeMetric(candles []candle.Candle, baseline int) float64 {
	if len(candles) < baseline {
		return math.NaN()
	}

	var buy, sell float64
	for _, c := range candles {
		if c.High == c.Low {
			continue
		}
		rng := c.High - c.Low
		buy += c.Volume * (c.Close - c.Low) / rng
		sell += c.Volume * (c.High - c.Close) / rng
	}
	if sell > 0 {
		return buy / sell
	}
	return 1.0
}

// MomentumMetric is tanh of the percent change between the last two RSI
// values, divided by 10.
func MomentumMetric(candles []candle.Candle, period int) float64 {
	if len(candles) < period {
		return math.NaN()
	}

	rsi := indicator.RSI(candle.Closes(candles), period)
	var last, prev float64
	found := 0
	for i := len(rsi) - 1; i >= 0 && found < 2; i-- {
		if !indicator.Defined(rsi[i]) {
			continue
		}
		if found == 0 {
			last = rsi[i]
		} else {
			prev = rsi[i]
		}
		found++
	}
	if found < 2 {
		return math.NaN()
	}

	var pct float64
	if prev != 0 {
		pct = (last - prev) / prev * 100
	}
	return math.Tanh(pct / 10)
}

// TotalPctChange is the percent move between the first and last bar midprices.
func TotalPctChange(candles []candle.Candle) float64 {
	if len(candles) < 2 {
		return math.NaN()
	}
	start := candles[0].MidPrice()
	if start == 0 {
		return 0
	}
	return (candles[len(candles)-1].MidPrice() - start) / start * 100
}

// ZScoreMetric is the latest defined close z-score.
func ZScoreMetric(candles []candle.Candle, period int) float64 {
	if len(candles) < period {
		return math.NaN()
	}
	v, _ := indicator.LastDefined(indicator.ZScore(candle.Closes(candles), period))
	return v
}

// PriceMetric measures how far the last close has moved from the pullback
// level latched at the most recent Supertrend signal bar, positive when the
// move favours the signal's direction. It updates st in place and only ever
// moves the latch forward in time; a level latched earlier keeps serving
// windows that no longer contain its signal. It is 0 until a signal fires.
func PriceMetric(candles []candle.Candle, st *SignalState, period int, multiplier float64) float64 {
	points := indicator.Supertrend(candles, period, multiplier)

	st.InUptrend = true
	if len(points) > 0 {
		st.InUptrend = points[len(points)-1].InUptrend
	}

	if idx, kind := latestSignal(points); kind != SignalNone {
		bar := candles[idx]
		if st.newer(idx, bar.Timestamp) {
			level := bar.Low
			if kind == SignalSell {
				level = bar.High
			}
			st.latch(kind, idx, bar.Timestamp, level)
		}
	}
	if st.LastSignal == SignalNone || len(candles) == 0 {
		return 0
	}

	price := candles[len(candles)-1].Close
	if st.LastSignal == SignalBuy {
		if st.LongPullback > 0 {
			return (price - st.LongPullback) / st.LongPullback * 100
		}
		return 0
	}
	if st.ShortPullback > 0 {
		return (st.ShortPullback - price) / st.ShortPullback * 100
	}
	return 0
}

// latestSignal scans backwards for the newest buy and sell bars; the later
// index wins. A bar never carries both signals.
func latestSignal(points []indicator.SupertrendPoint) (int, SignalType) {
	buy, sell := -1, -1
	for i := len(points) - 1; i >= 0 && (buy < 0 || sell < 0); i-- {
		if buy < 0 && points[i].BuySignal {
			buy = i
		}
		if sell < 0 && points[i].SellSignal {
			sell = i
		}
	}
	switch {
	case buy < 0 && sell < 0:
		return -1, SignalNone
	case buy > sell:
		return buy, SignalBuy
	default:
		return sell, SignalSell
	}
}
