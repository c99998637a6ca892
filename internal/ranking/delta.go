package ranking

// Delta is previous rank minus current rank; positive means the symbol moved up.
type Delta struct {
	Symbol   string `json:"symbol" db:"symbol"`
	Volume   int    `json:"volume_rank_change" db:"volume_rank_change"`
	Momentum int    `json:"momentum_rank_change" db:"momentum_rank_change"`
	TotalPct int    `json:"total_pct_rank_change" db:"total_pct_rank_change"`
	ZScore   int    `json:"zscore_rank_change" db:"zscore_rank_change"`
	Price    int    `json:"price_rank_change" db:"price_rank_change"`
	Overall  int    `json:"overall_rank_change" db:"overall_rank_change"`
}

// Changes compares every current ranking with the previous one. Symbols
// without a previous ranking get zero deltas.
func Changes(current, previous map[string]Record) map[string]Delta {
	out := make(map[string]Delta, len(current))
	for symbol, cur := range current {
		d := Delta{Symbol: symbol}
		if prev, ok := previous[symbol]; ok {
			d.Volume = prev.VolumeRank - cur.VolumeRank
			d.Momentum = prev.MomentumRank - cur.MomentumRank
			d.TotalPct = prev.TotalPctRank - cur.TotalPctRank
			d.ZScore = prev.ZScoreRank - cur.ZScoreRank
			d.Price = prev.PriceRank - cur.PriceRank
			d.Overall = prev.OverallRank - cur.OverallRank
		}
		out[symbol] = d
	}
	return out
}
