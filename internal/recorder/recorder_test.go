package recorder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/amirphl/rank-trader/internal/candle"
	"github.com/amirphl/rank-trader/internal/db"
	"github.com/amirphl/rank-trader/internal/metric"
	"github.com/amirphl/rank-trader/internal/ranking"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func testMetricConfig() metric.Config {
	return metric.Config{
		VolumeBaselinePeriod: 5,
		MomentumPeriod:       3,
		ZScorePeriod:         5,
		SupertrendPeriod:     3,
		SupertrendMultiplier: 1.0,
		Workers:              2,
	}
}

func series(symbol string, s, n int) []candle.Candle {
	out := make([]candle.Candle, n)
	for t := range n {
		close := float64(100 + (t*(s+3)+5*s)%17 + (t*s)%5)
		out[t] = candle.Candle{
			Timestamp: base.Add(time.Duration(t) * time.Minute),
			Open:      close,
			High:      close + 1 + float64((t+s)%3),
			Low:       close - 1 - float64((t*s)%2),
			Close:     close,
			Volume:    float64(50 + ((t*7+s*11)%23)*10),
			Symbol:    symbol,
			Timeframe: "1m",
		}
	}
	return out
}

func testData() map[string][]candle.Candle {
	return map[string][]candle.Candle{
		"AAA": series("AAA", 1, 30),
		"BBB": series("BBB", 2, 30),
		"CCC": series("CCC", 3, 20),
	}
}

type observer struct{ bars int }

func (o *observer) ObserveRecordedBar() { o.bars++ }

type failingStore struct{ calls int }

func (f *failingStore) SaveMetrics(context.Context, []db.MetricRow) error {
	f.calls++
	return errors.New("connection reset")
}

func (f *failingStore) SaveRankings(context.Context, []db.RankingRow) error { return nil }

func TestRecordHistorical(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemory()
	obs := &observer{}
	r := New(store, testMetricConfig(), zerolog.Nop()).WithObserver(obs)

	stats, err := r.RecordHistorical(ctx, testData(), "1m", 5, 29, 10)
	require.NoError(t, err)
	// bars 5, 15, 25; CCC has no candle at 25
	assert.Equal(t, Stats{Bars: 3, Metrics: 8, Rankings: 8}, stats)
	assert.Equal(t, 3, obs.bars)

	rows, err := store.GetMetrics(ctx, "1m", base, base.Add(time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, rows, 8)
	assert.True(t, rows[0].Timestamp.Equal(base.Add(5*time.Minute)))
	assert.Equal(t, "AAA", rows[0].Symbol)
	assert.True(t, rows[7].Timestamp.Equal(base.Add(25*time.Minute)))

	// stored rows match a direct computation over the same window
	window := map[string][]candle.Candle{}
	for s, c := range testData() {
		window[s] = c[:6]
	}
	want := metric.NewEngine(testMetricConfig(), zerolog.Nop()).Calculate(window).Records
	assert.Equal(t, want["BBB"].TotalPctChange, rows[1].TotalPctChange)

	ranks, err := store.GetRankings(ctx, "1m", base.Add(25*time.Minute))
	require.NoError(t, err)
	assert.Len(t, ranks, 2)
}

func TestRecordHistorical_EndDefaultsToLastBar(t *testing.T) {
	r := New(db.NewMemory(), testMetricConfig(), zerolog.Nop())
	stats, err := r.RecordHistorical(context.Background(), testData(), "1m", 9, 0, 10)
	require.NoError(t, err)
	// bars 9, 19, 29
	assert.Equal(t, 3, stats.Bars)
}

func TestRecordHistorical_InvalidInput(t *testing.T) {
	tests := []struct {
		name             string
		start, end, step int
	}{
		{"start after end", 20, 10, 5},
		{"start equals end", 10, 10, 5},
		{"negative start", -1, 10, 5},
		{"end beyond data", 0, 30, 5},
		{"zero step", 0, 10, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := db.NewMemory()
			r := New(store, testMetricConfig(), zerolog.Nop())
			_, err := r.RecordHistorical(context.Background(), testData(), "1m", tt.start, tt.end, tt.step)
			assert.ErrorIs(t, err, ErrInvalidRange)

			rows, err := store.GetMetrics(context.Background(), "1m", base, base.Add(time.Hour), 0)
			require.NoError(t, err)
			assert.Empty(t, rows)
		})
	}
}

func TestRecordHistorical_StoreFailureSkipsBar(t *testing.T) {
	store := &failingStore{}
	r := New(store, testMetricConfig(), zerolog.Nop())

	stats, err := r.RecordHistorical(context.Background(), testData(), "1m", 5, 25, 10)
	require.NoError(t, err)
	assert.Equal(t, Stats{Bars: 3, FailedBars: 3}, stats)
	assert.Equal(t, 3, store.calls)
}

func TestRecordHistorical_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := New(db.NewMemory(), testMetricConfig(), zerolog.Nop())
	_, err := r.RecordHistorical(ctx, testData(), "1m", 5, 25, 10)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRecord(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemory()
	r := New(store, testMetricConfig(), zerolog.Nop())
	assert.Regexp(t, `^recording_\d{8}_\d{6}_[0-9a-f]{8}$`, r.ID())

	window := map[string][]candle.Candle{}
	for s, c := range testData() {
		window[s] = c[:10]
	}
	batch := metric.NewEngine(testMetricConfig(), zerolog.Nop()).Calculate(window)
	rankings := ranking.Rank(batch.Records)
	ts := base.Add(9 * time.Minute)

	require.NoError(t, r.Record(ctx, "1m", ts, batch.Records, rankings))

	rows, err := store.GetRankings(ctx, "1m", time.Time{})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, 1, rows[0].OverallRank)
	assert.True(t, rows[0].Timestamp.Equal(ts))

	metrics, err := store.GetMetrics(ctx, "1m", ts, ts, 0)
	require.NoError(t, err)
	assert.Len(t, metrics, 3)

	err = New(&failingStore{}, testMetricConfig(), zerolog.Nop()).Record(ctx, "1m", ts, batch.Records, rankings)
	assert.ErrorContains(t, err, "connection reset")
}
