package backtest

import (
	"time"

	"github.com/amirphl/rank-trader/internal/candle"
	"github.com/amirphl/rank-trader/internal/opportunity"
)

// PnLPercent is the percentage return of moving from entry to price in dir.
func PnLPercent(dir opportunity.Direction, entry, price float64) float64 {
	if dir == opportunity.Short {
		return (entry - price) / entry * 100
	}
	return (price - entry) / entry * 100
}

// simulate walks up to p.MaxBars candles after the entry bar and exits on
// the first close that reaches take profit or stop loss, or on the last
// close available. There is no trade without a candle after the entry.
func simulate(series []candle.Candle, c candidate, p Params) (Trade, bool) {
	if c.bar < 0 || c.bar >= len(series) {
		return Trade{}, false
	}
	entry := series[c.bar]
	future := series[c.bar+1 : min(c.bar+p.MaxBars+1, len(series))]

	for i, bar := range future {
		pnl := PnLPercent(c.direction, entry.Close, bar.Close)

		var reason ExitReason
		switch {
		case pnl >= p.TakeProfit:
			reason = TakeProfit
		case pnl <= -p.StopLoss:
			reason = StopLoss
		case i == len(future)-1:
			reason = MaxDuration
		default:
			continue
		}

		return Trade{
			Symbol:     c.symbol,
			Direction:  c.direction,
			EntryPrice: entry.Close,
			EntryTime:  entry.Timestamp,
			ExitPrice:  bar.Close,
			ExitTime:   bar.Timestamp,
			ExitReason: reason,
			PnLPercent: pnl,
			BarsHeld:   i + 1,
			Strength:   c.strength,
		}, true
	}
	return Trade{}, false
}

func summarizeRun(long, short []Trade) Report {
	var start, end time.Time
	for _, set := range [][]Trade{long, short} {
		for _, t := range set {
			if start.IsZero() || t.EntryTime.Before(start) {
				start = t.EntryTime
			}
			if end.IsZero() || t.ExitTime.After(end) {
				end = t.ExitTime
			}
		}
	}

	combined := make([]Trade, 0, len(long)+len(short))
	combined = append(append(combined, long...), short...)
	return Report{
		Long:     Summarize(long, start, end),
		Short:    Summarize(short, start, end),
		Combined: Summarize(combined, start, end),
	}
}

// Summarize aggregates trades. A trade wins when its pnl is strictly
// positive; WinRate is a percentage.
func Summarize(trades []Trade, start, end time.Time) Summary {
	s := Summary{StartTime: start, EndTime: end, TotalTrades: len(trades)}
	if len(trades) == 0 {
		return s
	}

	bars := 0
	s.MaxProfit = trades[0].PnLPercent
	s.MaxLoss = trades[0].PnLPercent
	for _, t := range trades {
		if t.PnLPercent > 0 {
			s.WinningTrades++
		} else {
			s.LosingTrades++
		}
		s.TotalPnL += t.PnLPercent
		s.MaxProfit = max(s.MaxProfit, t.PnLPercent)
		s.MaxLoss = min(s.MaxLoss, t.PnLPercent)
		bars += t.BarsHeld
	}

	n := float64(len(trades))
	s.WinRate = float64(s.WinningTrades) / n * 100
	s.AveragePnL = s.TotalPnL / n
	s.AvgBarsHeld = float64(bars) / n
	return s
}
