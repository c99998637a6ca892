package opportunity

import (
	"math"
	"sort"
	"time"

	"github.com/amirphl/rank-trader/internal/metric"
	"github.com/amirphl/rank-trader/internal/ranking"
	"github.com/rs/zerolog"
)

const (
	ResetInterval  = time.Hour
	LookbackWindow = 3 * time.Minute

	// TopBand and WatchBand bound the overall ranks a symbol moves between.
	TopBand   = 20
	WatchBand = 40

	// MinRankSwing is the summed per-metric rank movement a crossing needs.
	MinRankSwing = 50

	missingRank = 999
)

type Detector struct {
	thresholds Thresholds
	logger     zerolog.Logger
}

func NewDetector(thresholds Thresholds, logger zerolog.Logger) *Detector {
	return &Detector{
		thresholds: thresholds,
		logger:     logger.With().Str("component", "opportunity").Logger(),
	}
}

// Detect records the cycle's rankings in st and returns the symbols that
// newly crossed the top band. metrics may be nil, in which case the metric
// values embedded in the rankings are reported.
func (d *Detector) Detect(
	st *State,
	now time.Time,
	rankings map[string]ranking.Record,
	deltas map[string]ranking.Delta,
	metrics map[string]metric.Record,
) Result {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.history.Add(now, rankings)
	if st.resetIfDue(now) {
		d.logger.Debug().Time("at", now).Msg("Detect | announced sets reset")
	}

	res := Result{Long: []Opportunity{}, Short: []Opportunity{}}
	symbols := make([]string, 0, len(rankings))
	for s := range rankings {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	for _, symbol := range symbols {
		r := rankings[symbol]
		m, ok := metrics[symbol]
		if !ok {
			m = r.Record
		}
		delta := deltas[symbol]

		for _, dir := range []Direction{Long, Short} {
			if _, done := st.announced[dir][symbol]; done {
				continue
			}
			if !crossed(st.history, symbol, dir) {
				continue
			}
			strength := Strength(d.thresholds, r, delta, m, dir)
			opp := newOpportunity(symbol, dir, m, r.OverallRank, delta.Overall, strength, now)
			if dir == Long {
				res.Long = append(res.Long, opp)
			} else {
				res.Short = append(res.Short, opp)
			}
			st.announced[dir][symbol] = struct{}{}
		}
	}

	byStrength(res.Long)
	byStrength(res.Short)
	d.logger.Info().Int("long", len(res.Long)).Int("short", len(res.Short)).
		Msg("Detect | opportunities detected")
	return res
}

func byStrength(opps []Opportunity) {
	sort.SliceStable(opps, func(i, j int) bool { return opps[i].Strength > opps[j].Strength })
}

func overallRank(snap ranking.Snapshot, symbol string) int {
	if r, ok := snap.Rankings[symbol]; ok {
		return r.OverallRank
	}
	return missingRank
}

// crossed scans the history backwards from the snapshot before the latest
// one. The first snapshot inside LookbackWindow whose overall rank sat in
// the opposite band decides the outcome by the summed per-metric movement.
func crossed(h *ranking.History, symbol string, dir Direction) bool {
	current, ok := h.Latest()
	if !ok || h.Len() < 2 {
		return false
	}
	rank := overallRank(current, symbol)

	switch dir {
	case Long:
		if rank > TopBand {
			return false
		}
	case Short:
		if rank <= TopBand || rank > WatchBand {
			return false
		}
	}

	for i := h.Len() - 2; i >= 0; i-- {
		past := h.At(i)
		if current.Timestamp.Sub(past.Timestamp) > LookbackWindow {
			continue
		}
		prev := overallRank(past, symbol)
		var inBand bool
		if dir == Long {
			inBand = prev > TopBand && prev <= WatchBand
		} else {
			inBand = prev <= TopBand
		}
		if !inBand {
			continue
		}

		swing := past.Rankings[symbol].MetricRankSum() - current.Rankings[symbol].MetricRankSum()
		if dir == Short {
			swing = -swing
		}
		return swing > MinRankSwing
	}
	return false
}

// Strength scores an opportunity from a base of 50, capped at 100. The price
// component has no floor, so a move against the signal can take the score
// below 50 or below 0. Undefined metric values contribute nothing.
func Strength(th Thresholds, r ranking.Record, delta ranking.Delta, m metric.Record, dir Direction) float64 {
	sign := 1.0
	if dir == Short {
		sign = -1.0
	}
	score := 50.0

	if metric.Defined(m.VolumeMetric) {
		v := m.VolumeMetric
		if dir == Short {
			v = 1.0 / math.Max(v, 0.01)
		}
		score += math.Min(v/th.Volume*7.5, 15.0)
	}

	if mom := m.MomentumMetric; mom*sign > 0 {
		score += math.Min(math.Abs(mom)/th.Momentum*7.5, 15.0)
	}

	if metric.Defined(m.PriceMetric) {
		score += math.Min(m.PriceMetric/th.Price*10.0, 20.0)
	}

	if rc := float64(delta.Overall) * sign; rc > 0 {
		score += math.Min(rc/th.RankChange*7.5, 15.0)
	}

	if z := m.ZScoreMetric * sign; z > 0 {
		score += math.Min(z/th.ZScore*7.5, 15.0)
	}

	if r.InUptrend == (dir == Long) {
		score += 20.0
	}

	return math.Min(score, 100.0)
}
