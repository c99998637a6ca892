package db

import (
	"database/sql"
	"maps"
	"math"
	"slices"
	"time"

	"github.com/amirphl/rank-trader/internal/backtest"
	"github.com/amirphl/rank-trader/internal/metric"
	"github.com/amirphl/rank-trader/internal/opportunity"
	"github.com/amirphl/rank-trader/internal/ranking"
)

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}

// nullable stores undefined metric values as NULL.
func nullable(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: !math.IsNaN(v) && !math.IsInf(v, 0)}
}

func fromNullable(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

type metricDTO struct {
	Symbol         string          `db:"symbol"`
	Timeframe      string          `db:"timeframe"`
	Timestamp      time.Time       `db:"timestamp"`
	VolumeMetric   sql.NullFloat64 `db:"volume_metric"`
	MomentumMetric sql.NullFloat64 `db:"momentum_metric"`
	TotalPctChange sql.NullFloat64 `db:"total_pct_change"`
	ZScoreMetric   sql.NullFloat64 `db:"zscore_metric"`
	PriceMetric    sql.NullFloat64 `db:"price_metric"`
	Price          float64         `db:"price"`
	InUptrend      bool            `db:"in_uptrend"`
}

func toMetricDTO(r MetricRow) metricDTO {
	return metricDTO{
		Symbol:         r.Symbol,
		Timeframe:      r.Timeframe,
		Timestamp:      r.Timestamp.UTC(),
		VolumeMetric:   nullable(r.VolumeMetric),
		MomentumMetric: nullable(r.MomentumMetric),
		TotalPctChange: nullable(r.TotalPctChange),
		ZScoreMetric:   nullable(r.ZScoreMetric),
		PriceMetric:    nullable(r.PriceMetric),
		Price:          r.Price,
		InUptrend:      r.InUptrend,
	}
}

func (d metricDTO) row() MetricRow {
	return MetricRow{
		Timeframe: d.Timeframe,
		Timestamp: d.Timestamp,
		Record: metric.Record{
			Symbol:         d.Symbol,
			VolumeMetric:   fromNullable(d.VolumeMetric),
			MomentumMetric: fromNullable(d.MomentumMetric),
			TotalPctChange: fromNullable(d.TotalPctChange),
			ZScoreMetric:   fromNullable(d.ZScoreMetric),
			PriceMetric:    fromNullable(d.PriceMetric),
			Price:          d.Price,
			InUptrend:      d.InUptrend,
		},
	}
}

type rankingDTO struct {
	Symbol       string    `db:"symbol"`
	Timeframe    string    `db:"timeframe"`
	Timestamp    time.Time `db:"timestamp"`
	VolumeRank   int       `db:"volume_rank"`
	MomentumRank int       `db:"momentum_rank"`
	TotalPctRank int       `db:"total_pct_rank"`
	ZScoreRank   int       `db:"zscore_rank"`
	PriceRank    int       `db:"price_rank"`
	TotalScore   int       `db:"total_score"`
	OverallRank  int       `db:"overall_rank"`
}

func toRankingDTO(r RankingRow) rankingDTO {
	return rankingDTO{
		Symbol:       r.Symbol,
		Timeframe:    r.Timeframe,
		Timestamp:    r.Timestamp.UTC(),
		VolumeRank:   r.VolumeRank,
		MomentumRank: r.MomentumRank,
		TotalPctRank: r.TotalPctRank,
		ZScoreRank:   r.ZScoreRank,
		PriceRank:    r.PriceRank,
		TotalScore:   r.TotalScore,
		OverallRank:  r.OverallRank,
	}
}

// row rebuilds a ranking. Metric values are not stored with rankings and
// come back undefined.
func (d rankingDTO) row() RankingRow {
	r := ranking.Record{
		Record: metric.Record{
			Symbol:         d.Symbol,
			VolumeMetric:   math.NaN(),
			MomentumMetric: math.NaN(),
			TotalPctChange: math.NaN(),
			ZScoreMetric:   math.NaN(),
			PriceMetric:    math.NaN(),
		},
		VolumeRank:   d.VolumeRank,
		MomentumRank: d.MomentumRank,
		TotalPctRank: d.TotalPctRank,
		ZScoreRank:   d.ZScoreRank,
		PriceRank:    d.PriceRank,
		TotalScore:   d.TotalScore,
		OverallRank:  d.OverallRank,
	}
	return RankingRow{Timeframe: d.Timeframe, Timestamp: d.Timestamp, Record: r}
}

type opportunityDTO struct {
	Symbol         string          `db:"symbol"`
	Timeframe      string          `db:"timeframe"`
	Timestamp      time.Time       `db:"timestamp"`
	Direction      string          `db:"direction"`
	EntryPrice     float64         `db:"entry_price"`
	VolumeMetric   sql.NullFloat64 `db:"volume_metric"`
	MomentumMetric sql.NullFloat64 `db:"momentum_metric"`
	ZScoreMetric   sql.NullFloat64 `db:"zscore_metric"`
	PriceMetric    sql.NullFloat64 `db:"price_metric"`
	OverallRank    int             `db:"overall_rank"`
	RankChange     int             `db:"rank_change"`
	Strength       float64         `db:"strength"`
}

func toOpportunityDTO(timeframe string, o opportunity.Opportunity) opportunityDTO {
	return opportunityDTO{
		Symbol:         o.Symbol,
		Timeframe:      timeframe,
		Timestamp:      o.DetectedAt.UTC(),
		Direction:      string(o.Direction),
		EntryPrice:     o.Price,
		VolumeMetric:   nullable(o.VolumeMetric),
		MomentumMetric: nullable(o.MomentumMetric),
		ZScoreMetric:   nullable(o.ZScoreMetric),
		PriceMetric:    nullable(o.PriceMetric),
		OverallRank:    o.OverallRank,
		RankChange:     o.RankChange,
		Strength:       o.Strength,
	}
}

func (d opportunityDTO) opportunity() opportunity.Opportunity {
	return opportunity.Opportunity{
		Symbol:         d.Symbol,
		Direction:      opportunity.Direction(d.Direction),
		Price:          d.EntryPrice,
		VolumeMetric:   fromNullable(d.VolumeMetric),
		MomentumMetric: fromNullable(d.MomentumMetric),
		ZScoreMetric:   fromNullable(d.ZScoreMetric),
		PriceMetric:    fromNullable(d.PriceMetric),
		OverallRank:    d.OverallRank,
		RankChange:     d.RankChange,
		Strength:       d.Strength,
		DetectedAt:     d.Timestamp,
	}
}

type runDTO struct {
	RunID      string  `db:"backtest_id"`
	Timeframe  string  `db:"timeframe"`
	Status     string  `db:"status"`
	StartBar   int     `db:"start_bar"`
	EndBar     int     `db:"end_bar"`
	TakeProfit float64 `db:"take_profit"`
	StopLoss   float64 `db:"stop_loss"`
	MaxBars    int     `db:"max_bars"`
	Bars       int     `db:"bars"`
	FailedBars int     `db:"failed_bars"`
}

func toRunDTO(res *backtest.Result) runDTO {
	return runDTO{
		RunID:      res.RunID,
		Timeframe:  res.Timeframe,
		Status:     string(res.Status),
		StartBar:   res.Params.Start,
		EndBar:     res.Params.End,
		TakeProfit: res.Params.TakeProfit,
		StopLoss:   res.Params.StopLoss,
		MaxBars:    res.Params.MaxBars,
		Bars:       res.Bars,
		FailedBars: res.FailedBars,
	}
}

type tradeDTO struct {
	RunID      string    `db:"backtest_id"`
	Symbol     string    `db:"symbol"`
	Timeframe  string    `db:"timeframe"`
	Direction  string    `db:"direction"`
	EntryTime  time.Time `db:"entry_time"`
	EntryPrice float64   `db:"entry_price"`
	ExitTime   time.Time `db:"exit_time"`
	ExitPrice  float64   `db:"exit_price"`
	ExitReason string    `db:"exit_reason"`
	PnLPercent float64   `db:"pnl_percent"`
	BarsHeld   int       `db:"bars_held"`
	Strength   float64   `db:"strength"`
}

func toTradeDTO(runID, timeframe string, t backtest.Trade) tradeDTO {
	return tradeDTO{
		RunID:      runID,
		Symbol:     t.Symbol,
		Timeframe:  timeframe,
		Direction:  string(t.Direction),
		EntryTime:  t.EntryTime.UTC(),
		EntryPrice: t.EntryPrice,
		ExitTime:   t.ExitTime.UTC(),
		ExitPrice:  t.ExitPrice,
		ExitReason: string(t.ExitReason),
		PnLPercent: t.PnLPercent,
		BarsHeld:   t.BarsHeld,
		Strength:   t.Strength,
	}
}

func (d tradeDTO) trade() backtest.Trade {
	return backtest.Trade{
		Symbol:     d.Symbol,
		Direction:  opportunity.Direction(d.Direction),
		EntryPrice: d.EntryPrice,
		EntryTime:  d.EntryTime,
		ExitPrice:  d.ExitPrice,
		ExitTime:   d.ExitTime,
		ExitReason: backtest.ExitReason(d.ExitReason),
		PnLPercent: d.PnLPercent,
		BarsHeld:   d.BarsHeld,
		Strength:   d.Strength,
	}
}

type summaryDTO struct {
	RunID         string       `db:"backtest_id"`
	Timeframe     string       `db:"timeframe"`
	Direction     string       `db:"direction"`
	TotalTrades   int          `db:"total_trades"`
	WinningTrades int          `db:"winning_trades"`
	LosingTrades  int          `db:"losing_trades"`
	WinRate       float64      `db:"win_rate"`
	AveragePnL    float64      `db:"average_pnl"`
	TotalPnL      float64      `db:"total_pnl"`
	MaxProfit     float64      `db:"max_profit"`
	MaxLoss       float64      `db:"max_loss"`
	AvgBarsHeld   float64      `db:"avg_bars_held"`
	StartTime     sql.NullTime `db:"start_time"`
	EndTime       sql.NullTime `db:"end_time"`
}

func summaryDTOs(res *backtest.Result) []summaryDTO {
	parts := []struct {
		direction string
		s         backtest.Summary
	}{
		{"long", res.Report.Long},
		{"short", res.Report.Short},
		{"combined", res.Report.Combined},
	}
	out := make([]summaryDTO, 0, len(parts))
	for _, p := range parts {
		out = append(out, summaryDTO{
			RunID:         res.RunID,
			Timeframe:     res.Timeframe,
			Direction:     p.direction,
			TotalTrades:   p.s.TotalTrades,
			WinningTrades: p.s.WinningTrades,
			LosingTrades:  p.s.LosingTrades,
			WinRate:       p.s.WinRate,
			AveragePnL:    p.s.AveragePnL,
			TotalPnL:      p.s.TotalPnL,
			MaxProfit:     p.s.MaxProfit,
			MaxLoss:       p.s.MaxLoss,
			AvgBarsHeld:   p.s.AvgBarsHeld,
			StartTime:     nullTime(p.s.StartTime),
			EndTime:       nullTime(p.s.EndTime),
		})
	}
	return out
}
