package indicator

import (
	"math"

	"github.com/amirphl/rank-trader/internal/candle"
)

// ATRState is the carry-over of an ATR computation. The zero value with
// Period set starts a fresh series; copying it snapshots the series.
type ATRState struct {
	Period    int
	Count     int
	PrevClose float64
	Sum       float64
	Value     float64
}

// Next folds one candle into the state and returns the ATR at that bar.
func (s *ATRState) Next(c candle.Candle) float64 {
	tr := c.High - c.Low
	if s.Count > 0 {
		tr = math.Max(tr, math.Max(math.Abs(c.High-s.PrevClose), math.Abs(c.Low-s.PrevClose)))
	}
	if s.Count < s.Period {
		s.Sum += tr
		s.Value = s.Sum / float64(s.Count+1)
	} else {
		s.Value = (s.Value*float64(s.Period-1) + tr) / float64(s.Period)
	}
	s.PrevClose = c.Close
	s.Count++
	return s.Value
}

// RSIState is the carry-over of an RSI computation.
type RSIState struct {
	Period  int
	Count   int
	Prev    float64
	AvgGain float64 // running sum until Period differences are seen
	AvgLoss float64
}

// Next folds one value into the state and returns the RSI, or NaN while warming up.
func (s *RSIState) Next(v float64) float64 {
	if s.Count == 0 {
		s.Prev = v
		s.Count++
		return math.NaN()
	}

	change := v - s.Prev
	var gain, loss float64
	if change > 0 {
		gain = change
	} else {
		loss = -change
	}
	s.Prev = v
	diffs := s.Count
	s.Count++

	p := float64(s.Period)
	switch {
	case diffs < s.Period:
		s.AvgGain += gain
		s.AvgLoss += loss
		return math.NaN()
	case diffs == s.Period:
		s.AvgGain = (s.AvgGain + gain) / p
		s.AvgLoss = (s.AvgLoss + loss) / p
	default:
		s.AvgGain = (s.AvgGain*(p-1) + gain) / p
		s.AvgLoss = (s.AvgLoss*(p-1) + loss) / p
	}
	return rsiValue(s.AvgGain, s.AvgLoss)
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	return 100 - 100/(1+avgGain/avgLoss)
}

// EMAState is the carry-over of an EMA computation seeded with the SMA of
// the first Period values.
type EMAState struct {
	Period int
	Count  int
	Sum    float64
	Value  float64
}

func (s *EMAState) Next(v float64) float64 {
	s.Count++
	switch {
	case s.Count < s.Period:
		s.Sum += v
		return math.NaN()
	case s.Count == s.Period:
		s.Sum += v
		s.Value = s.Sum / float64(s.Period)
	default:
		k := 2 / float64(s.Period+1)
		s.Value = (v-s.Value)*k + s.Value
	}
	return s.Value
}
