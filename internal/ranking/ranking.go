// Package ranking orders symbols by each metric and combines the per-metric
// ranks into an overall rank.
package ranking

import (
	"math"
	"sort"

	"github.com/amirphl/rank-trader/internal/metric"
)

// Record is a symbol's metrics together with its ranks. Rank 1 is best.
type Record struct {
	metric.Record
	VolumeRank   int `json:"volume_rank" db:"volume_rank"`
	MomentumRank int `json:"momentum_rank" db:"momentum_rank"`
	TotalPctRank int `json:"total_pct_rank" db:"total_pct_rank"`
	ZScoreRank   int `json:"zscore_rank" db:"zscore_rank"`
	PriceRank    int `json:"price_rank" db:"price_rank"`
	TotalScore   int `json:"total_score" db:"total_score"`
	OverallRank  int `json:"overall_rank" db:"overall_rank"`
}

// MetricRankSum is the sum of the five per-metric ranks.
func (r Record) MetricRankSum() int {
	return r.VolumeRank + r.MomentumRank + r.TotalPctRank + r.ZScoreRank + r.PriceRank
}

type scored struct {
	symbol string
	value  float64
}

// Rank assigns the five per-metric ranks (higher metric is better), the
// total score and the overall rank (lower total score is better). Tied
// values share the position of the first tied symbol and later ranks are
// not renumbered. Undefined metrics rank as 0.
func Rank(records map[string]metric.Record) map[string]Record {
	out := make(map[string]Record, len(records))
	if len(records) == 0 {
		return out
	}

	extract := []func(metric.Record) float64{
		func(r metric.Record) float64 { return r.VolumeMetric },
		func(r metric.Record) float64 { return r.MomentumMetric },
		func(r metric.Record) float64 { return r.TotalPctChange },
		func(r metric.Record) float64 { return r.ZScoreMetric },
		func(r metric.Record) float64 { return r.PriceMetric },
	}
	ranks := make([]map[string]int, len(extract))
	for i, fn := range extract {
		items := make([]scored, 0, len(records))
		for symbol, rec := range records {
			items = append(items, scored{symbol: symbol, value: rankValue(fn(rec))})
		}
		ranks[i] = tieRanks(items, true)
	}

	totals := make([]scored, 0, len(records))
	for symbol, rec := range records {
		r := Record{
			Record:       rec,
			VolumeRank:   ranks[0][symbol],
			MomentumRank: ranks[1][symbol],
			TotalPctRank: ranks[2][symbol],
			ZScoreRank:   ranks[3][symbol],
			PriceRank:    ranks[4][symbol],
		}
		r.Symbol = symbol
		r.TotalScore = r.MetricRankSum()
		out[symbol] = r
		totals = append(totals, scored{symbol: symbol, value: float64(r.TotalScore)})
	}

	for symbol, rank := range tieRanks(totals, false) {
		r := out[symbol]
		r.OverallRank = rank
		out[symbol] = r
	}
	return out
}

func rankValue(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}

// tieRanks orders items by value, then symbol, and gives equal values the
// 1-based position of the first of them.
func tieRanks(items []scored, descending bool) map[string]int {
	sort.Slice(items, func(i, j int) bool {
		if items[i].value != items[j].value {
			if descending {
				return items[i].value > items[j].value
			}
			return items[i].value < items[j].value
		}
		return items[i].symbol < items[j].symbol
	})

	ranks := make(map[string]int, len(items))
	rank := 1
	for i, it := range items {
		if i > 0 && it.value != items[i-1].value {
			rank = i + 1
		}
		ranks[it.symbol] = rank
	}
	return ranks
}

// Sorted returns the records ordered by overall rank, then symbol.
func Sorted(rankings map[string]Record) []Record {
	out := make([]Record, 0, len(rankings))
	for _, r := range rankings {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OverallRank != out[j].OverallRank {
			return out[i].OverallRank < out[j].OverallRank
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}
