package indicator

import (
	"math"

	"github.com/amirphl/rank-trader/internal/candle"
)

// SupertrendPoint is one bar of the Supertrend band indicator. Upper and
// Lower are NaN until Ready.
type SupertrendPoint struct {
	Upper        float64
	Lower        float64
	InUptrend    bool
	Ready        bool
	SignalChange bool
	BuySignal    bool
	SellSignal   bool
}

func placeholder() SupertrendPoint {
	return SupertrendPoint{Upper: math.NaN(), Lower: math.NaN(), InUptrend: true}
}

// Supertrend computes ATR bands around the bar midprice and tracks the trend
// they imply. The first `period` bars are uptrend placeholders without
// signals; bar `period` seeds the bands.
func Supertrend(candles []candle.Candle, period int, multiplier float64) []SupertrendPoint {
	out := make([]SupertrendPoint, len(candles))
	if period <= 0 || len(candles) < period {
		for i := range out {
			out[i] = placeholder()
		}
		return out
	}

	atr := ATR(candles, period)
	for i, c := range candles {
		if i < period {
			out[i] = placeholder()
			continue
		}

		basicUpper := c.MidPrice() + multiplier*atr[i]
		basicLower := c.MidPrice() - multiplier*atr[i]
		if i == period {
			out[i] = SupertrendPoint{Upper: basicUpper, Lower: basicLower, InUptrend: true, Ready: true}
			continue
		}

		prev := out[i-1]
		p := SupertrendPoint{Ready: true}
		if prev.InUptrend {
			p.Upper = basicUpper
			p.Lower = math.Max(basicLower, prev.Lower)
			p.InUptrend = c.Close >= p.Lower
		} else {
			p.Upper = math.Min(basicUpper, prev.Upper)
			p.Lower = basicLower
			p.InUptrend = c.Close >= p.Upper
		}
		p.SignalChange = p.InUptrend != prev.InUptrend
		p.BuySignal = p.InUptrend && p.SignalChange
		p.SellSignal = !p.InUptrend && p.SignalChange
		out[i] = p
	}
	return out
}
