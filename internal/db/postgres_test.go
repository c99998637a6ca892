package db

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/amirphl/rank-trader/internal/backtest"
	"github.com/amirphl/rank-trader/internal/candle"
	"github.com/amirphl/rank-trader/internal/metric"
	"github.com/amirphl/rank-trader/internal/opportunity"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newMock(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewPostgres(sqlx.NewDb(conn, "postgres"), 5*time.Second), mock
}

func testCandle(symbol string, ts time.Time, close float64) candle.Candle {
	return candle.Candle{
		Timestamp: ts,
		Open:      close,
		High:      close + 1,
		Low:       close - 1,
		Close:     close,
		Volume:    10,
		Symbol:    symbol,
		Timeframe: "1m",
		Source:    "test",
	}
}

func TestPostgres_SaveCandles(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO candles")
	prep.ExpectExec().
		WithArgs("BTCUSDT", "1m", t0, 100.0, 101.0, 99.0, 100.0, 10.0, "test").
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().
		WithArgs("BTCUSDT", "1m", t0.Add(time.Minute), 102.0, 103.0, 101.0, 102.0, 10.0, "test").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := p.SaveCandles(context.Background(), []candle.Candle{
		testCandle("BTCUSDT", t0, 100),
		testCandle("BTCUSDT", t0.Add(time.Minute), 102),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SaveCandlesRejectsInvalid(t *testing.T) {
	p, mock := newMock(t)

	bad := testCandle("BTCUSDT", t0, 100)
	bad.High = 50
	err := p.SaveCandles(context.Background(), []candle.Candle{bad})
	assert.ErrorIs(t, err, candle.ErrMalformed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SaveMetricsStoresUndefinedAsNull(t *testing.T) {
	p, mock := newMock(t)

	rec := metric.Record{
		Symbol:         "ETHUSDT",
		VolumeMetric:   1.5,
		MomentumMetric: math.NaN(),
		TotalPctChange: 2,
		ZScoreMetric:   math.NaN(),
		PriceMetric:    3,
		Price:          2500,
		InUptrend:      true,
	}

	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO metrics").ExpectExec().
		WithArgs("ETHUSDT", "1m", t0, 1.5, nil, 2.0, nil, 3.0, 2500.0, true).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := p.SaveMetrics(context.Background(), []MetricRow{{Timeframe: "1m", Timestamp: t0, Record: rec}})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetMetricsReadsNullAsUndefined(t *testing.T) {
	p, mock := newMock(t)

	rows := sqlmock.NewRows([]string{
		"symbol", "timeframe", "timestamp", "volume_metric", "momentum_metric",
		"total_pct_change", "zscore_metric", "price_metric", "price", "in_uptrend",
	}).AddRow("ETHUSDT", "1m", t0, 1.5, nil, 2.0, nil, 3.0, 2500.0, true)
	mock.ExpectQuery("SELECT (.+) FROM metrics").
		WithArgs("1m", t0, t0.Add(time.Hour), int64(10)).
		WillReturnRows(rows)

	out, err := p.GetMetrics(context.Background(), "1m", t0, t0.Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "ETHUSDT", out[0].Symbol)
	assert.Equal(t, 1.5, out[0].VolumeMetric)
	assert.True(t, math.IsNaN(out[0].MomentumMetric))
	assert.True(t, math.IsNaN(out[0].ZScoreMetric))
	assert.True(t, out[0].InUptrend)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetLatestCandles(t *testing.T) {
	p, mock := newMock(t)

	rows := sqlmock.NewRows([]string{"symbol", "timeframe", "timestamp", "open", "high", "low", "close", "volume", "source"}).
		AddRow("BTCUSDT", "1m", t0, 100.0, 101.0, 99.0, 100.5, 7.0, "test").
		AddRow("BTCUSDT", "1m", t0.Add(time.Minute), 100.5, 102.0, 100.0, 101.0, 9.0, "test")
	mock.ExpectQuery("ORDER BY timestamp DESC LIMIT").
		WithArgs("BTCUSDT", "1m", 2).
		WillReturnRows(rows)

	out, err := p.GetLatestCandles(context.Background(), "BTCUSDT", "1m", 2)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, 100.5, out[0].Close)
	assert.Equal(t, t0.Add(time.Minute), out[1].Timestamp)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SaveOpportunitiesJoinsCallerTransaction(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO opportunities").ExpectExec().
		WithArgs("SOLUSDT", "1m", t0, "long", 150.0, 1.0, 2.0, 3.0, 4.0, 5, 30, 81.25).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := p.db.Beginx()
	require.NoError(t, err)
	ctx := WithTransaction(context.Background(), tx)
	require.Same(t, tx, GetTransaction(ctx))

	err = p.SaveOpportunities(ctx, "1m", []opportunity.Opportunity{{
		Symbol:         "SOLUSDT",
		Direction:      opportunity.Long,
		Price:          150,
		VolumeMetric:   1,
		MomentumMetric: 2,
		ZScoreMetric:   3,
		PriceMetric:    4,
		OverallRank:    5,
		RankChange:     30,
		Strength:       81.25,
		DetectedAt:     t0,
	}})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func testResult() *backtest.Result {
	trade := backtest.Trade{
		Symbol:     "BTCUSDT",
		Direction:  opportunity.Long,
		EntryPrice: 100,
		EntryTime:  t0,
		ExitPrice:  103.2,
		ExitTime:   t0.Add(3 * time.Minute),
		ExitReason: backtest.TakeProfit,
		PnLPercent: 3.2,
		BarsHeld:   3,
		Strength:   90,
	}
	return &backtest.Result{
		RunID:     "backtest_20240301_120000_0a1b2c3d",
		Timeframe: "1m",
		Status:    backtest.StatusSummarized,
		Params:    backtest.Params{Start: 5, End: 40, TakeProfit: 3, StopLoss: 1.5, MaxBars: 20},
		Long:      []backtest.Trade{trade},
		Report: backtest.Report{
			Long:     backtest.Summarize([]backtest.Trade{trade}, t0, t0.Add(3*time.Minute)),
			Combined: backtest.Summarize([]backtest.Trade{trade}, t0, t0.Add(3*time.Minute)),
		},
		Bars: 36,
	}
}

func TestPostgres_SaveBacktest(t *testing.T) {
	p, mock := newMock(t)
	res := testResult()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO backtest_runs").
		WithArgs(res.RunID, "1m", "summarized", 5, 40, 3.0, 1.5, 20, 36, 0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectPrepare("INSERT INTO backtest_results").ExpectExec().
		WithArgs(res.RunID, "BTCUSDT", "1m", "long", t0, 100.0, t0.Add(3*time.Minute), 103.2, "take_profit", 3.2, 3, 90.0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	summary := mock.ExpectPrepare("INSERT INTO backtest_summary")
	for range 3 {
		summary.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	require.NoError(t, p.SaveBacktest(context.Background(), res))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SaveBacktestDuplicate(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO backtest_runs").
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})
	mock.ExpectRollback()

	err := p.SaveBacktest(context.Background(), testResult())
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetBacktestTradesNotFound(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectQuery("FROM backtest_results").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"backtest_id", "symbol"}))

	_, err := p.GetBacktestTrades(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
