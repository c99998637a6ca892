package ranking

import (
	"math"
	"sort"
	"testing"

	"github.com/amirphl/rank-trader/internal/metric"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(symbol string, volume, momentum, total, z, price float64) metric.Record {
	return metric.Record{
		Symbol:         symbol,
		VolumeMetric:   volume,
		MomentumMetric: momentum,
		TotalPctChange: total,
		ZScoreMetric:   z,
		PriceMetric:    price,
		Price:          100,
		InUptrend:      true,
	}
}

func sample() map[string]metric.Record {
	return map[string]metric.Record{
		"AAA": rec("AAA", 2.0, 0.5, 3.0, 1.0, 2.0),
		"BBB": rec("BBB", 1.0, 0.1, 1.0, -0.5, 4.0),
		"CCC": rec("CCC", 1.0, -0.3, 5.0, 0.2, -1.0),
		"DDD": rec("DDD", 0.5, 0.9, -2.0, 2.5, 0.0),
	}
}

func TestRank_TiedVolumeSharesFirstPosition(t *testing.T) {
	rankings := Rank(sample())

	assert.Equal(t, 1, rankings["AAA"].VolumeRank)
	assert.Equal(t, 2, rankings["BBB"].VolumeRank)
	assert.Equal(t, 2, rankings["CCC"].VolumeRank)
	assert.Equal(t, 4, rankings["DDD"].VolumeRank, "ranks after a tie are not renumbered")
}

func TestRank_ScoresAndOverall(t *testing.T) {
	rankings := Rank(sample())

	// momentum: DDD, AAA, BBB, CCC; total: CCC, AAA, BBB, DDD
	// zscore: DDD, AAA, CCC, BBB; price: BBB, AAA, DDD, CCC
	expected := map[string][6]int{
		"AAA": {1, 2, 2, 2, 2, 9},
		"BBB": {2, 3, 3, 4, 1, 13},
		"CCC": {2, 4, 1, 3, 4, 14},
		"DDD": {4, 1, 4, 1, 3, 13},
	}
	for symbol, want := range expected {
		r := rankings[symbol]
		assert.Equal(t, want[0], r.VolumeRank, symbol)
		assert.Equal(t, want[1], r.MomentumRank, symbol)
		assert.Equal(t, want[2], r.TotalPctRank, symbol)
		assert.Equal(t, want[3], r.ZScoreRank, symbol)
		assert.Equal(t, want[4], r.PriceRank, symbol)
		assert.Equal(t, want[5], r.TotalScore, symbol)
		assert.Equal(t, r.MetricRankSum(), r.TotalScore, symbol)
	}

	assert.Equal(t, 1, rankings["AAA"].OverallRank)
	assert.Equal(t, 2, rankings["BBB"].OverallRank)
	assert.Equal(t, 2, rankings["DDD"].OverallRank)
	assert.Equal(t, 4, rankings["CCC"].OverallRank)
}

func TestRank_OverallIsPermutationWithTies(t *testing.T) {
	records := make(map[string]metric.Record)
	symbols := []string{"A1", "B2", "C3", "D4", "E5", "F6", "G7", "H8", "I9", "J10", "K11", "L12"}
	for i, s := range symbols {
		v := float64(i % 4)
		records[s] = rec(s, v, float64(i%3), float64(i%5)-2, float64(i%2), float64(i%4)*0.5)
	}

	rankings := Rank(records)
	require.Len(t, rankings, len(symbols))

	overall := make([]int, 0, len(rankings))
	for _, r := range rankings {
		overall = append(overall, r.OverallRank)
	}
	sort.Ints(overall)
	assert.Equal(t, 1, overall[0])
	for i := 1; i < len(overall); i++ {
		if overall[i] != overall[i-1] {
			assert.Equal(t, i+1, overall[i], "rank after a tie group equals its first position")
		}
	}
}

func TestRank_Idempotent(t *testing.T) {
	first := Rank(sample())
	second := Rank(sample())
	assert.Equal(t, first, second)
}

func TestRank_UndefinedRanksAsZero(t *testing.T) {
	records := map[string]metric.Record{
		"AAA": rec("AAA", 1, math.NaN(), 1, 1, 1),
		"BBB": rec("BBB", 1, -0.5, 1, 1, 1),
		"CCC": rec("CCC", 1, 0.5, 1, 1, 1),
	}
	rankings := Rank(records)

	assert.Equal(t, 1, rankings["CCC"].MomentumRank)
	assert.Equal(t, 2, rankings["AAA"].MomentumRank)
	assert.Equal(t, 3, rankings["BBB"].MomentumRank)
	assert.True(t, math.IsNaN(rankings["AAA"].MomentumMetric), "display value stays undefined")
}

func TestRank_Empty(t *testing.T) {
	assert.Empty(t, Rank(nil))
}

func TestSorted(t *testing.T) {
	sorted := Sorted(Rank(sample()))
	require.Len(t, sorted, 4)
	assert.Equal(t, []string{"AAA", "BBB", "DDD", "CCC"},
		[]string{sorted[0].Symbol, sorted[1].Symbol, sorted[2].Symbol, sorted[3].Symbol})
}

func TestChanges(t *testing.T) {
	previous := map[string]Record{
		"AAA": {VolumeRank: 5, MomentumRank: 3, TotalPctRank: 2, ZScoreRank: 9, PriceRank: 1, OverallRank: 10},
	}
	current := map[string]Record{
		"AAA": {VolumeRank: 1, MomentumRank: 4, TotalPctRank: 2, ZScoreRank: 3, PriceRank: 2, OverallRank: 4},
		"NEW": {VolumeRank: 2, OverallRank: 1},
	}

	deltas := Changes(current, previous)
	require.Len(t, deltas, 2)
	assert.Equal(t, Delta{Symbol: "AAA", Volume: 4, Momentum: -1, TotalPct: 0, ZScore: 6, Price: -1, Overall: 6}, deltas["AAA"])
	assert.Equal(t, Delta{Symbol: "NEW"}, deltas["NEW"])

	for symbol, d := range Changes(current, nil) {
		assert.Equal(t, Delta{Symbol: symbol}, d)
	}
}
