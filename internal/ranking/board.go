package ranking

import (
	"fmt"
	"sort"
)

// Board algorithms.
const (
	Consistent = "consistent"
	Breakout   = "momentum"
)

const DefaultBoardRows = 50

// Column is one board column: the symbols ordered by a single rank.
type Column struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Items []Record `json:"items"`
}

// Match is a symbol highlighted across several board columns.
type Match struct {
	Symbol             string   `json:"symbol"`
	Rank               int      `json:"rank"`
	MatchCount         int      `json:"matchCount"`
	OverallImprovement int      `json:"overallImprovement,omitempty"`
	Columns            []string `json:"columns"`
	MatchType          string   `json:"matchType"`
}

type Board struct {
	Columns []Column `json:"columns"`
	Matches []Match  `json:"matches"`
}

type rankColumn struct {
	id, name string
	rank     func(Record) int
}

var rankColumns = []rankColumn{
	{"overall_rank", "Overall", func(r Record) int { return r.OverallRank }},
	{"volume_rank", "Volume", func(r Record) int { return r.VolumeRank }},
	{"momentum_rank", "Momentum", func(r Record) int { return r.MomentumRank }},
	{"price_rank", "Price%", func(r Record) int { return r.PriceRank }},
	{"total_pct_rank", "Total%", func(r Record) int { return r.TotalPctRank }},
	{"zscore_rank", "Z-Score", func(r Record) int { return r.ZScoreRank }},
}

// BuildBoard lays out every rank as a column capped at maxRows and
// highlights matches found by the chosen algorithm.
func BuildBoard(rankings map[string]Record, deltas map[string]Delta, algorithm string, maxRows int) (Board, error) {
	if algorithm != Consistent && algorithm != Breakout {
		return Board{}, fmt.Errorf("unknown board algorithm %q", algorithm)
	}
	board := Board{Columns: []Column{}, Matches: []Match{}}
	if len(rankings) == 0 {
		return board, nil
	}
	if maxRows <= 0 {
		maxRows = DefaultBoardRows
	}

	base := Sorted(rankings)
	for _, col := range rankColumns {
		items := append([]Record(nil), base...)
		sort.SliceStable(items, func(i, j int) bool { return col.rank(items[i]) < col.rank(items[j]) })
		board.Columns = append(board.Columns, Column{ID: col.id, Name: col.name, Items: items[:min(maxRows, len(items))]})
	}

	trend := append([]Record(nil), base...)
	sort.SliceStable(trend, func(i, j int) bool { return trend[i].InUptrend && !trend[j].InUptrend })
	board.Columns = append(board.Columns, Column{ID: "in_uptrend", Name: "Trend", Items: trend[:min(maxRows, len(trend))]})

	if algorithm == Consistent {
		board.Matches = ConsistentLeaders(rankings)
	} else {
		board.Matches = Breakouts(rankings, deltas)
	}
	return board, nil
}

// ConsistentLeaders finds symbols ranked in the top 20 overall whose five
// metric ranks are all within the top 40 and at least four within the top 20.
func ConsistentLeaders(rankings map[string]Record) []Match {
	matches := []Match{}
	for _, r := range Sorted(rankings) {
		if r.OverallRank > 20 {
			continue
		}
		allTop40 := true
		var top20 []string
		for _, col := range rankColumns[1:] {
			rank := col.rank(r)
			if rank > 40 {
				allTop40 = false
			}
			if rank <= 20 {
				top20 = append(top20, col.id)
			}
		}
		if !allTop40 || len(top20) < 4 {
			continue
		}
		matches = append(matches, Match{
			Symbol:     r.Symbol,
			Rank:       r.OverallRank,
			MatchCount: len(top20),
			Columns:    top20,
			MatchType:  Consistent,
		})
	}
	return matches
}

// Breakouts finds symbols ranked in the top 30 overall that improved by at
// least 5 positions overall and on at least three metrics.
func Breakouts(rankings map[string]Record, deltas map[string]Delta) []Match {
	matches := []Match{}
	for _, r := range Sorted(rankings) {
		d := deltas[r.Symbol]
		changes := []struct {
			id string
			v  int
		}{
			{"volume_rank", d.Volume},
			{"momentum_rank", d.Momentum},
			{"price_rank", d.Price},
			{"total_pct_rank", d.TotalPct},
			{"zscore_rank", d.ZScore},
		}
		var improved []string
		for _, c := range changes {
			if c.v >= 5 {
				improved = append(improved, c.id)
			}
		}
		if len(improved) < 3 || d.Overall < 5 || r.OverallRank > 30 {
			continue
		}
		matches = append(matches, Match{
			Symbol:             r.Symbol,
			Rank:               r.OverallRank,
			MatchCount:         len(improved),
			OverallImprovement: d.Overall,
			Columns:            improved,
			MatchType:          Breakout,
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].OverallImprovement > matches[j].OverallImprovement
	})
	return matches
}
