package metric

import (
	"math"
	"time"
)

type SignalType string

const (
	SignalNone SignalType = "none"
	SignalBuy  SignalType = "buy"
	SignalSell SignalType = "sell"
)

// SignalState is the per-symbol memory of the latest Supertrend signal bar
// and the pullback level latched from it.
type SignalState struct {
	LastSignal     SignalType
	LastSignalBar  int
	LastSignalTime time.Time
	LongPullback   float64
	ShortPullback  float64
	InUptrend      bool
}

func NewSignalState() *SignalState {
	return &SignalState{
		LastSignal:    SignalNone,
		LastSignalBar: -1,
		LongPullback:  math.NaN(),
		ShortPullback: math.NaN(),
		InUptrend:     true,
	}
}

// newer reports whether the signal at idx/ts comes after the one already
// latched. Timestamps order bars when both sides carry one, since a sliding
// window shifts indices and can surface an older signal than the latched one.
func (s *SignalState) newer(idx int, ts time.Time) bool {
	if s.LastSignal == SignalNone {
		return true
	}
	if !ts.IsZero() && !s.LastSignalTime.IsZero() {
		return ts.After(s.LastSignalTime)
	}
	return idx > s.LastSignalBar
}

func (s *SignalState) latch(kind SignalType, idx int, ts time.Time, level float64) {
	switch kind {
	case SignalBuy:
		s.LongPullback = level
	case SignalSell:
		s.ShortPullback = level
	}
	s.LastSignal = kind
	s.LastSignalBar = idx
	s.LastSignalTime = ts
}
