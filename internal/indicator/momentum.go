package indicator

import (
	"fmt"

	"github.com/amirphl/rank-trader/internal/candle"
)

type ChangeMode string

const (
	CloseToClose ChangeMode = "close-to-close"
	OpenToClose  ChangeMode = "open-to-close"
	HighToLow    ChangeMode = "high-to-low"
)

// Validate fails for unknown modes.
func (m ChangeMode) Validate() error {
	switch m {
	case CloseToClose, OpenToClose, HighToLow:
		return nil
	default:
		return fmt.Errorf("%w: %q (want %s, %s or %s)", ErrInvalidMode, string(m), CloseToClose, OpenToClose, HighToLow)
	}
}

// Momentum computes values[i] - values[i-period].
func Momentum(values []float64, period int) []float64 {
	out := undefined(len(values))
	if period <= 0 || len(values) <= period {
		return out
	}
	for i := period; i < len(values); i++ {
		out[i] = values[i] - values[i-period]
	}
	return out
}

// PriceChangePercentage computes the percent change per bar. close-to-close
// compares against the close `period` bars back; the other modes compare
// within the same bar. A non-positive start price gives 0.
func PriceChangePercentage(candles []candle.Candle, period int, mode ChangeMode) ([]float64, error) {
	if err := mode.Validate(); err != nil {
		return nil, err
	}
	if period <= 0 {
		return nil, fmt.Errorf("price change period must be positive, got %d", period)
	}

	out := undefined(len(candles))
	if len(candles) < period+1 {
		return out, nil
	}
	for i := period; i < len(candles); i++ {
		var start, end float64
		switch mode {
		case CloseToClose:
			start, end = candles[i-period].Close, candles[i].Close
		case OpenToClose:
			start, end = candles[i].Open, candles[i].Close
		case HighToLow:
			start, end = candles[i].High, candles[i].Low
		}
		if start > 0 {
			out[i] = (end - start) / start * 100
		} else {
			out[i] = 0
		}
	}
	return out, nil
}
