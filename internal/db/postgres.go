package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/rank-trader/internal/backtest"
	"github.com/amirphl/rank-trader/internal/candle"
	"github.com/amirphl/rank-trader/internal/opportunity"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

type Postgres struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewPostgres wraps an open connection pool. A positive timeout bounds every
// call that does not run inside a caller's transaction.
func NewPostgres(db *sqlx.DB, timeout time.Duration) *Postgres {
	return &Postgres{db: db, timeout: timeout}
}

// Connect opens a pool with the postgres driver and checks it is reachable.
func Connect(ctx context.Context, connStr string, maxOpen, maxIdle int) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

type txKey struct{}

// WithTransaction returns a context that carries tx. Storage calls made with
// it join tx instead of opening their own.
func WithTransaction(ctx context.Context, tx *sqlx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

func GetTransaction(ctx context.Context) *sqlx.Tx {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return nil
}

func (p *Postgres) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 || GetTransaction(ctx) != nil {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.timeout)
}

// executeWithTransaction runs fn in the context's transaction, or in a new one
// that is committed on success and rolled back otherwise.
func (p *Postgres) executeWithTransaction(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if tx := GetTransaction(ctx); tx != nil {
		return fn(tx)
	}

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (p *Postgres) queryer(ctx context.Context) sqlx.QueryerContext {
	if tx := GetTransaction(ctx); tx != nil {
		return tx
	}
	return p.db
}

// execEach prepares query once and executes it for every arg.
func execEach[T any](ctx context.Context, tx *sqlx.Tx, query string, args []T) error {
	stmt, err := tx.PrepareNamedContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, arg := range args {
		if _, err := stmt.ExecContext(ctx, arg); err != nil {
			return mapError(err)
		}
	}
	return nil
}

func mapError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicate, pqErr.Message)
	}
	return err
}

const upsertCandle = `
	INSERT INTO candles (symbol, timeframe, timestamp, open, high, low, close, volume, source)
	VALUES (:symbol, :timeframe, :timestamp, :open, :high, :low, :close, :volume, :source)
	ON CONFLICT (symbol, timeframe, timestamp) DO UPDATE SET
		open = EXCLUDED.open,
		high = EXCLUDED.high,
		low = EXCLUDED.low,
		close = EXCLUDED.close,
		volume = EXCLUDED.volume,
		source = EXCLUDED.source`

func (p *Postgres) SaveCandles(ctx context.Context, candles []candle.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	rows := make([]candle.Candle, len(candles))
	for i, c := range candles {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("candle %d (%s %s): %w", i, c.Symbol, c.Timestamp, err)
		}
		c.Timestamp = c.Timestamp.UTC()
		rows[i] = c
	}

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	return p.executeWithTransaction(ctx, func(tx *sqlx.Tx) error {
		return execEach(ctx, tx, upsertCandle, rows)
	})
}

const candleColumns = `symbol, timeframe, timestamp, open, high, low, close, volume, source`

// GetCandles returns the candles in [start, end) oldest first.
func (p *Postgres) GetCandles(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]candle.Candle, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + candleColumns + ` FROM candles
		WHERE symbol = $1 AND timeframe = $2 AND timestamp >= $3 AND timestamp < $4
		ORDER BY timestamp ASC`
	var out []candle.Candle
	if err := sqlx.SelectContext(ctx, p.queryer(ctx), &out, query, symbol, timeframe, start.UTC(), end.UTC()); err != nil {
		return nil, fmt.Errorf("failed to get candles for %s: %w", symbol, err)
	}
	return out, nil
}

// GetLatestCandles returns up to limit of the newest candles, oldest first.
func (p *Postgres) GetLatestCandles(ctx context.Context, symbol, timeframe string, limit int) ([]candle.Candle, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + candleColumns + ` FROM (
			SELECT ` + candleColumns + ` FROM candles
			WHERE symbol = $1 AND timeframe = $2
			ORDER BY timestamp DESC LIMIT $3
		) latest ORDER BY timestamp ASC`
	var out []candle.Candle
	if err := sqlx.SelectContext(ctx, p.queryer(ctx), &out, query, symbol, timeframe, limit); err != nil {
		return nil, fmt.Errorf("failed to get latest candles for %s: %w", symbol, err)
	}
	return out, nil
}

const upsertMetric = `
	INSERT INTO metrics (symbol, timeframe, timestamp, volume_metric, momentum_metric,
		total_pct_change, zscore_metric, price_metric, price, in_uptrend)
	VALUES (:symbol, :timeframe, :timestamp, :volume_metric, :momentum_metric,
		:total_pct_change, :zscore_metric, :price_metric, :price, :in_uptrend)
	ON CONFLICT (symbol, timeframe, timestamp) DO UPDATE SET
		volume_metric = EXCLUDED.volume_metric,
		momentum_metric = EXCLUDED.momentum_metric,
		total_pct_change = EXCLUDED.total_pct_change,
		zscore_metric = EXCLUDED.zscore_metric,
		price_metric = EXCLUDED.price_metric,
		price = EXCLUDED.price,
		in_uptrend = EXCLUDED.in_uptrend`

func (p *Postgres) SaveMetrics(ctx context.Context, rows []MetricRow) error {
	if len(rows) == 0 {
		return nil
	}
	dtos := make([]metricDTO, len(rows))
	for i, r := range rows {
		dtos[i] = toMetricDTO(r)
	}

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	return p.executeWithTransaction(ctx, func(tx *sqlx.Tx) error {
		return execEach(ctx, tx, upsertMetric, dtos)
	})
}

// GetMetrics returns the metric rows stamped in [start, end], oldest first.
// A non-positive limit returns all of them.
func (p *Postgres) GetMetrics(ctx context.Context, timeframe string, start, end time.Time, limit int) ([]MetricRow, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	query := `SELECT symbol, timeframe, timestamp, volume_metric, momentum_metric,
			total_pct_change, zscore_metric, price_metric, price, in_uptrend
		FROM metrics
		WHERE timeframe = $1 AND timestamp >= $2 AND timestamp <= $3
		ORDER BY timestamp ASC, symbol ASC`
	args := []any{timeframe, start.UTC(), end.UTC()}
	if limit > 0 {
		query += ` LIMIT $4`
		args = append(args, limit)
	}

	var dtos []metricDTO
	if err := sqlx.SelectContext(ctx, p.queryer(ctx), &dtos, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get metrics: %w", err)
	}
	out := make([]MetricRow, len(dtos))
	for i, d := range dtos {
		out[i] = d.row()
	}
	return out, nil
}

const upsertRanking = `
	INSERT INTO rankings (symbol, timeframe, timestamp, volume_rank, momentum_rank,
		total_pct_rank, zscore_rank, price_rank, total_score, overall_rank)
	VALUES (:symbol, :timeframe, :timestamp, :volume_rank, :momentum_rank,
		:total_pct_rank, :zscore_rank, :price_rank, :total_score, :overall_rank)
	ON CONFLICT (symbol, timeframe, timestamp) DO UPDATE SET
		volume_rank = EXCLUDED.volume_rank,
		momentum_rank = EXCLUDED.momentum_rank,
		total_pct_rank = EXCLUDED.total_pct_rank,
		zscore_rank = EXCLUDED.zscore_rank,
		price_rank = EXCLUDED.price_rank,
		total_score = EXCLUDED.total_score,
		overall_rank = EXCLUDED.overall_rank`

func (p *Postgres) SaveRankings(ctx context.Context, rows []RankingRow) error {
	if len(rows) == 0 {
		return nil
	}
	dtos := make([]rankingDTO, len(rows))
	for i, r := range rows {
		dtos[i] = toRankingDTO(r)
	}

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	return p.executeWithTransaction(ctx, func(tx *sqlx.Tx) error {
		return execEach(ctx, tx, upsertRanking, dtos)
	})
}

// GetRankings returns the rankings stamped at ts, best first. A zero ts
// selects the newest stamp of the timeframe.
func (p *Postgres) GetRankings(ctx context.Context, timeframe string, ts time.Time) ([]RankingRow, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	columns := `symbol, timeframe, timestamp, volume_rank, momentum_rank,
		total_pct_rank, zscore_rank, price_rank, total_score, overall_rank`
	var (
		query string
		args  []any
	)
	if ts.IsZero() {
		query = `SELECT ` + columns + ` FROM rankings
			WHERE timeframe = $1 AND timestamp = (SELECT MAX(timestamp) FROM rankings WHERE timeframe = $1)
			ORDER BY overall_rank ASC, symbol ASC`
		args = []any{timeframe}
	} else {
		query = `SELECT ` + columns + ` FROM rankings
			WHERE timeframe = $1 AND timestamp = $2
			ORDER BY overall_rank ASC, symbol ASC`
		args = []any{timeframe, ts.UTC()}
	}

	var dtos []rankingDTO
	if err := sqlx.SelectContext(ctx, p.queryer(ctx), &dtos, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get rankings: %w", err)
	}
	out := make([]RankingRow, len(dtos))
	for i, d := range dtos {
		out[i] = d.row()
	}
	return out, nil
}

const upsertOpportunity = `
	INSERT INTO opportunities (symbol, timeframe, timestamp, direction, entry_price,
		volume_metric, momentum_metric, zscore_metric, price_metric, overall_rank, rank_change, strength)
	VALUES (:symbol, :timeframe, :timestamp, :direction, :entry_price,
		:volume_metric, :momentum_metric, :zscore_metric, :price_metric, :overall_rank, :rank_change, :strength)
	ON CONFLICT (symbol, timeframe, timestamp, direction) DO UPDATE SET
		entry_price = EXCLUDED.entry_price,
		volume_metric = EXCLUDED.volume_metric,
		momentum_metric = EXCLUDED.momentum_metric,
		zscore_metric = EXCLUDED.zscore_metric,
		price_metric = EXCLUDED.price_metric,
		overall_rank = EXCLUDED.overall_rank,
		rank_change = EXCLUDED.rank_change,
		strength = EXCLUDED.strength`

func (p *Postgres) SaveOpportunities(ctx context.Context, timeframe string, opps []opportunity.Opportunity) error {
	if len(opps) == 0 {
		return nil
	}
	dtos := make([]opportunityDTO, len(opps))
	for i, o := range opps {
		dtos[i] = toOpportunityDTO(timeframe, o)
	}

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	return p.executeWithTransaction(ctx, func(tx *sqlx.Tx) error {
		return execEach(ctx, tx, upsertOpportunity, dtos)
	})
}

// GetOpportunities returns opportunities detected at or after since, newest
// first.
func (p *Postgres) GetOpportunities(ctx context.Context, timeframe string, since time.Time, limit int) ([]opportunity.Opportunity, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	query := `SELECT symbol, timeframe, timestamp, direction, entry_price, volume_metric,
			momentum_metric, zscore_metric, price_metric, overall_rank, rank_change, strength
		FROM opportunities
		WHERE timeframe = $1 AND timestamp >= $2
		ORDER BY timestamp DESC, strength DESC`
	args := []any{timeframe, since.UTC()}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	var dtos []opportunityDTO
	if err := sqlx.SelectContext(ctx, p.queryer(ctx), &dtos, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get opportunities: %w", err)
	}
	out := make([]opportunity.Opportunity, len(dtos))
	for i, d := range dtos {
		out[i] = d.opportunity()
	}
	return out, nil
}

const insertRun = `
	INSERT INTO backtest_runs (backtest_id, timeframe, status, start_bar, end_bar,
		take_profit, stop_loss, max_bars, bars, failed_bars)
	VALUES (:backtest_id, :timeframe, :status, :start_bar, :end_bar,
		:take_profit, :stop_loss, :max_bars, :bars, :failed_bars)`

const insertTrade = `
	INSERT INTO backtest_results (backtest_id, symbol, timeframe, direction, entry_time,
		entry_price, exit_time, exit_price, exit_reason, pnl_percent, bars_held, strength)
	VALUES (:backtest_id, :symbol, :timeframe, :direction, :entry_time,
		:entry_price, :exit_time, :exit_price, :exit_reason, :pnl_percent, :bars_held, :strength)`

const insertSummary = `
	INSERT INTO backtest_summary (backtest_id, timeframe, direction, total_trades, winning_trades,
		losing_trades, win_rate, average_pnl, total_pnl, max_profit, max_loss, avg_bars_held,
		start_time, end_time)
	VALUES (:backtest_id, :timeframe, :direction, :total_trades, :winning_trades,
		:losing_trades, :win_rate, :average_pnl, :total_pnl, :max_profit, :max_loss, :avg_bars_held,
		:start_time, :end_time)`

// SaveBacktest writes a run, its trades and its three summaries in one
// transaction. Saving the same run twice fails with ErrDuplicate.
func (p *Postgres) SaveBacktest(ctx context.Context, res *backtest.Result) error {
	if res == nil || res.RunID == "" {
		return errors.New("backtest result has no run id")
	}
	trades := res.Trades()
	tradeDTOs := make([]tradeDTO, len(trades))
	for i, t := range trades {
		tradeDTOs[i] = toTradeDTO(res.RunID, res.Timeframe, t)
	}

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	return p.executeWithTransaction(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, insertRun, toRunDTO(res)); err != nil {
			return fmt.Errorf("failed to save backtest run %s: %w", res.RunID, mapError(err))
		}
		if len(tradeDTOs) > 0 {
			if err := execEach(ctx, tx, insertTrade, tradeDTOs); err != nil {
				return fmt.Errorf("failed to save backtest trades: %w", err)
			}
		}
		if err := execEach(ctx, tx, insertSummary, summaryDTOs(res)); err != nil {
			return fmt.Errorf("failed to save backtest summary: %w", err)
		}
		return nil
	})
}

func (p *Postgres) GetBacktestTrades(ctx context.Context, runID string) ([]backtest.Trade, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	query := `SELECT backtest_id, symbol, timeframe, direction, entry_time, entry_price,
			exit_time, exit_price, exit_reason, pnl_percent, bars_held, strength
		FROM backtest_results
		WHERE backtest_id = $1
		ORDER BY entry_time ASC, strength DESC`
	var dtos []tradeDTO
	if err := sqlx.SelectContext(ctx, p.queryer(ctx), &dtos, query, runID); err != nil {
		return nil, fmt.Errorf("failed to get backtest trades: %w", err)
	}
	if len(dtos) == 0 {
		return nil, fmt.Errorf("%w: backtest %s", ErrNotFound, runID)
	}
	out := make([]backtest.Trade, len(dtos))
	for i, d := range dtos {
		out[i] = d.trade()
	}
	return out, nil
}
