// Package db persists candles, analysis output and backtest runs.
package db

import (
	"context"
	"errors"
	"time"

	"github.com/amirphl/rank-trader/internal/backtest"
	"github.com/amirphl/rank-trader/internal/candle"
	"github.com/amirphl/rank-trader/internal/metric"
	"github.com/amirphl/rank-trader/internal/opportunity"
	"github.com/amirphl/rank-trader/internal/ranking"
)

var (
	ErrDuplicate = errors.New("duplicate record")
	ErrNotFound  = errors.New("record not found")
)

// MetricRow is a symbol's metrics stamped with the bar they were computed at.
type MetricRow struct {
	Timeframe string
	Timestamp time.Time
	metric.Record
}

type RankingRow struct {
	Timeframe string
	Timestamp time.Time
	ranking.Record
}

// Storage is the interface for all persistent storage.
type Storage interface {
	candle.Storage
	SaveMetrics(ctx context.Context, rows []MetricRow) error
	GetMetrics(ctx context.Context, timeframe string, start, end time.Time, limit int) ([]MetricRow, error)
	SaveRankings(ctx context.Context, rows []RankingRow) error
	GetRankings(ctx context.Context, timeframe string, ts time.Time) ([]RankingRow, error)
	SaveOpportunities(ctx context.Context, timeframe string, opps []opportunity.Opportunity) error
	GetOpportunities(ctx context.Context, timeframe string, since time.Time, limit int) ([]opportunity.Opportunity, error)
	SaveBacktest(ctx context.Context, res *backtest.Result) error
	GetBacktestTrades(ctx context.Context, runID string) ([]backtest.Trade, error)
}

// MetricRows stamps every record with one timestamp.
func MetricRows(timeframe string, ts time.Time, records map[string]metric.Record) []MetricRow {
	rows := make([]MetricRow, 0, len(records))
	for _, symbol := range sortedKeys(records) {
		rows = append(rows, MetricRow{Timeframe: timeframe, Timestamp: ts, Record: records[symbol]})
	}
	return rows
}

func RankingRows(timeframe string, ts time.Time, rankings map[string]ranking.Record) []RankingRow {
	rows := make([]RankingRow, 0, len(rankings))
	for _, r := range ranking.Sorted(rankings) {
		rows = append(rows, RankingRow{Timeframe: timeframe, Timestamp: ts, Record: r})
	}
	return rows
}
