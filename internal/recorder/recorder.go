// Package recorder stores metrics and rankings for later analysis, either
// one live cycle at a time or by replaying historical candles.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/rank-trader/internal/candle"
	"github.com/amirphl/rank-trader/internal/db"
	"github.com/amirphl/rank-trader/internal/metric"
	"github.com/amirphl/rank-trader/internal/ranking"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var ErrInvalidRange = errors.New("invalid recording range")

const DefaultStep = 10

// Store is the subset of db.Storage the recorder writes to.
type Store interface {
	SaveMetrics(ctx context.Context, rows []db.MetricRow) error
	SaveRankings(ctx context.Context, rows []db.RankingRow) error
}

type Observer interface {
	ObserveRecordedBar()
}

type nopObserver struct{}

func (nopObserver) ObserveRecordedBar() {}

type Recorder struct {
	id        string
	store     Store
	metricCfg metric.Config
	observer  Observer
	logger    zerolog.Logger
}

// Stats summarises a historical recording.
type Stats struct {
	Bars       int
	FailedBars int
	Metrics    int
	Rankings   int
}

func New(store Store, metricCfg metric.Config, logger zerolog.Logger) *Recorder {
	id := newRecordingID(time.Now())
	return &Recorder{
		id:        id,
		store:     store,
		metricCfg: metricCfg,
		observer:  nopObserver{},
		logger:    logger.With().Str("component", "recorder").Str("recording_id", id).Logger(),
	}
}

func (r *Recorder) WithObserver(o Observer) *Recorder {
	if o != nil {
		r.observer = o
	}
	return r
}

func (r *Recorder) ID() string { return r.id }

func newRecordingID(now time.Time) string {
	return fmt.Sprintf("recording_%s_%s", now.UTC().Format("20060102_150405"), uuid.NewString()[:8])
}

// Record stores one cycle's metrics and rankings stamped with ts.
func (r *Recorder) Record(ctx context.Context, timeframe string, ts time.Time, metrics map[string]metric.Record, rankings map[string]ranking.Record) error {
	if err := r.store.SaveMetrics(ctx, db.MetricRows(timeframe, ts, metrics)); err != nil {
		return fmt.Errorf("Record | save metrics: %w", err)
	}
	if err := r.store.SaveRankings(ctx, db.RankingRows(timeframe, ts, rankings)); err != nil {
		return fmt.Errorf("Record | save rankings: %w", err)
	}
	r.logger.Debug().Str("timeframe", timeframe).Int("symbols", len(rankings)).Msg("Record | metrics and rankings recorded")
	return nil
}

// RecordHistorical recomputes metrics and rankings every step bars over
// [start, end] of data, a per-symbol candle sequence aligned by index, and
// stores each row under the timestamp of that symbol's bar. end <= 0 selects
// the last bar. A bar that fails is logged and skipped.
func (r *Recorder) RecordHistorical(ctx context.Context, data map[string][]candle.Candle, timeframe string, start, end, step int) (Stats, error) {
	var stats Stats
	if step <= 0 {
		return stats, fmt.Errorf("RecordHistorical | %w: step must be positive, got %d", ErrInvalidRange, step)
	}
	longest := 0
	for _, candles := range data {
		longest = max(longest, len(candles))
	}
	if end <= 0 {
		end = longest - 1
	}
	if start < 0 || start >= end || end >= longest {
		return stats, fmt.Errorf("RecordHistorical | %w: start %d, end %d, last bar %d", ErrInvalidRange, start, end, longest-1)
	}

	r.logger.Info().Str("timeframe", timeframe).Int("start", start).Int("end", end).Int("step", step).
		Msg("RecordHistorical | recording started")

	me := metric.NewEngine(r.metricCfg, r.logger.Level(zerolog.WarnLevel))
	symbols := candle.Symbols(data)
	for idx := start; idx <= end; idx += step {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("RecordHistorical | cancelled at bar %d: %w", idx, err)
		}

		stats.Bars++
		metrics, rankings, err := r.recordBar(ctx, me, data, symbols, timeframe, idx)
		if err != nil {
			stats.FailedBars++
			r.logger.Error().Err(err).Int("bar", idx).Msg("RecordHistorical | error processing bar")
			continue
		}
		stats.Metrics += metrics
		stats.Rankings += rankings
		r.observer.ObserveRecordedBar()

		if (idx-start)%(step*10) == 0 {
			r.logger.Info().Int("processed", idx-start+1).Int("total", end-start+1).Msg("RecordHistorical | progress")
		}
	}

	r.logger.Info().Int("bars", stats.Bars).Int("failed_bars", stats.FailedBars).Int("metrics", stats.Metrics).
		Msg("RecordHistorical | recording finished")
	return stats, nil
}

func (r *Recorder) recordBar(
	ctx context.Context,
	me *metric.Engine,
	data map[string][]candle.Candle,
	symbols []string,
	timeframe string,
	idx int,
) (nMetrics, nRankings int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()

	window := make(map[string][]candle.Candle, len(symbols))
	for _, s := range symbols {
		if candles := data[s]; len(candles) > idx {
			window[s] = candles[:idx+1]
		}
	}

	batch := me.Calculate(window)
	if len(batch.Records) == 0 && len(batch.Failures) > 0 {
		return 0, 0, fmt.Errorf("all %d symbols failed: %w", len(batch.Failures), batch.Failures[0])
	}
	rankings := ranking.Rank(batch.Records)

	metricRows := make([]db.MetricRow, 0, len(batch.Records))
	for _, s := range candle.Symbols(window) {
		rec, ok := batch.Records[s]
		if !ok {
			continue
		}
		ts := window[s][len(window[s])-1].Timestamp
		metricRows = append(metricRows, db.MetricRow{Timeframe: timeframe, Timestamp: ts, Record: rec})
	}
	rankingRows := make([]db.RankingRow, 0, len(rankings))
	for _, rec := range ranking.Sorted(rankings) {
		candles := window[rec.Symbol]
		ts := candles[len(candles)-1].Timestamp
		rankingRows = append(rankingRows, db.RankingRow{Timeframe: timeframe, Timestamp: ts, Record: rec})
	}

	if err := r.store.SaveMetrics(ctx, metricRows); err != nil {
		return 0, 0, fmt.Errorf("save metrics: %w", err)
	}
	if err := r.store.SaveRankings(ctx, rankingRows); err != nil {
		return 0, 0, fmt.Errorf("save rankings: %w", err)
	}
	return len(metricRows), len(rankingRows), nil
}
