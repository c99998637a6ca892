// Package publisher broadcasts evaluation cycles to subscribers.
package publisher

import (
	"math"
	"time"

	"github.com/amirphl/rank-trader/internal/metric"
	"github.com/amirphl/rank-trader/internal/opportunity"
	"github.com/amirphl/rank-trader/internal/ranking"
)

const MessageType = "cycle"

// Entry is a ranking record in wire form. Undefined metrics are null.
type Entry struct {
	Symbol         string   `json:"symbol"`
	Price          float64  `json:"price"`
	InUptrend      bool     `json:"in_uptrend"`
	VolumeMetric   *float64 `json:"volume_metric"`
	MomentumMetric *float64 `json:"momentum_metric"`
	TotalPctChange *float64 `json:"total_pct_change"`
	ZScoreMetric   *float64 `json:"zscore_metric"`
	PriceMetric    *float64 `json:"price_metric"`
	VolumeRank     int      `json:"volume_rank"`
	MomentumRank   int      `json:"momentum_rank"`
	TotalPctRank   int      `json:"total_pct_rank"`
	ZScoreRank     int      `json:"zscore_rank"`
	PriceRank      int      `json:"price_rank"`
	TotalScore     int      `json:"total_score"`
	OverallRank    int      `json:"overall_rank"`
}

type Signal struct {
	Symbol         string                `json:"symbol"`
	Direction      opportunity.Direction `json:"direction"`
	Price          float64               `json:"current_price"`
	VolumeMetric   *float64              `json:"volume_metric"`
	MomentumMetric *float64              `json:"momentum_metric"`
	ZScoreMetric   *float64              `json:"zscore_metric"`
	PriceMetric    *float64              `json:"price_metric"`
	OverallRank    int                   `json:"overall_rank"`
	RankChange     int                   `json:"rank_change"`
	Strength       float64               `json:"opportunity_strength"`
	DetectedAt     time.Time             `json:"detection_time"`
}

type Column struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Items []Entry `json:"items"`
}

type Board struct {
	Columns []Column        `json:"columns"`
	Matches []ranking.Match `json:"matches"`
}

// Message is one published cycle.
type Message struct {
	Type      string    `json:"type"`
	Timeframe string    `json:"timeframe"`
	Timestamp time.Time `json:"timestamp"`
	Rankings  []Entry   `json:"rankings"`
	Long      []Signal  `json:"long"`
	Short     []Signal  `json:"short"`
	Board     *Board    `json:"board,omitempty"`
}

func value(v float64) *float64 {
	if !metric.Defined(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func NewEntry(r ranking.Record) Entry {
	return Entry{
		Symbol:         r.Symbol,
		Price:          r.Price,
		InUptrend:      r.InUptrend,
		VolumeMetric:   value(r.VolumeMetric),
		MomentumMetric: value(r.MomentumMetric),
		TotalPctChange: value(r.TotalPctChange),
		ZScoreMetric:   value(r.ZScoreMetric),
		PriceMetric:    value(r.PriceMetric),
		VolumeRank:     r.VolumeRank,
		MomentumRank:   r.MomentumRank,
		TotalPctRank:   r.TotalPctRank,
		ZScoreRank:     r.ZScoreRank,
		PriceRank:      r.PriceRank,
		TotalScore:     r.TotalScore,
		OverallRank:    r.OverallRank,
	}
}

func NewSignal(o opportunity.Opportunity) Signal {
	return Signal{
		Symbol:         o.Symbol,
		Direction:      o.Direction,
		Price:          o.Price,
		VolumeMetric:   value(o.VolumeMetric),
		MomentumMetric: value(o.MomentumMetric),
		ZScoreMetric:   value(o.ZScoreMetric),
		PriceMetric:    value(o.PriceMetric),
		OverallRank:    o.OverallRank,
		RankChange:     o.RankChange,
		Strength:       o.Strength,
		DetectedAt:     o.DetectedAt,
	}
}

func entries(records []ranking.Record) []Entry {
	out := make([]Entry, len(records))
	for i, r := range records {
		out[i] = NewEntry(r)
	}
	return out
}

func signals(opps []opportunity.Opportunity) []Signal {
	out := make([]Signal, len(opps))
	for i, o := range opps {
		out[i] = NewSignal(o)
	}
	return out
}

// NewMessage builds the wire form of a cycle. board may be nil.
func NewMessage(timeframe string, ts time.Time, rankings map[string]ranking.Record, opps opportunity.Result, board *ranking.Board) Message {
	msg := Message{
		Type:      MessageType,
		Timeframe: timeframe,
		Timestamp: ts.UTC(),
		Rankings:  entries(ranking.Sorted(rankings)),
		Long:      signals(opps.Long),
		Short:     signals(opps.Short),
	}
	if board != nil {
		b := &Board{Columns: make([]Column, len(board.Columns)), Matches: board.Matches}
		for i, c := range board.Columns {
			b.Columns[i] = Column{ID: c.ID, Name: c.Name, Items: entries(c.Items)}
		}
		msg.Board = b
	}
	return msg
}
