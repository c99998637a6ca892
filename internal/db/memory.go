package db

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/amirphl/rank-trader/internal/backtest"
	"github.com/amirphl/rank-trader/internal/candle"
	"github.com/amirphl/rank-trader/internal/opportunity"
)

// MemoryStorage keeps everything in process. It backs tests and runs
// started without a database.
type MemoryStorage struct {
	mu sync.RWMutex

	// keyed by symbol|timeframe|timestamp
	candles  map[string]candle.Candle
	metrics  map[string]MetricRow
	rankings map[string]RankingRow

	// keyed by symbol|timeframe|timestamp|direction
	opportunities map[string]opportunityRow

	backtests map[string]*backtest.Result
}

type opportunityRow struct {
	timeframe string
	opportunity.Opportunity
}

func NewMemory() *MemoryStorage {
	return &MemoryStorage{
		candles:       make(map[string]candle.Candle),
		metrics:       make(map[string]MetricRow),
		rankings:      make(map[string]RankingRow),
		opportunities: make(map[string]opportunityRow),
		backtests:     make(map[string]*backtest.Result),
	}
}

func rowKey(symbol, timeframe string, ts time.Time) string {
	return strings.ToUpper(symbol) + "|" + timeframe + "|" + ts.UTC().Format(time.RFC3339Nano)
}

func inRange(ts, start, end time.Time) bool {
	return !ts.Before(start) && ts.Before(end)
}

func (m *MemoryStorage) SaveCandles(ctx context.Context, candles []candle.Candle) error {
	for i, c := range candles {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("candle %d (%s %s): %w", i, c.Symbol, c.Timestamp, err)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range candles {
		c.Timestamp = c.Timestamp.UTC()
		m.candles[rowKey(c.Symbol, c.Timeframe, c.Timestamp)] = c
	}
	return nil
}

func (m *MemoryStorage) GetCandles(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]candle.Candle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []candle.Candle
	for _, c := range m.candles {
		if !strings.EqualFold(c.Symbol, symbol) || c.Timeframe != timeframe {
			continue
		}
		if inRange(c.Timestamp, start.UTC(), end.UTC()) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *MemoryStorage) GetLatestCandles(ctx context.Context, symbol, timeframe string, limit int) ([]candle.Candle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []candle.Candle
	for _, c := range m.candles {
		if strings.EqualFold(c.Symbol, symbol) && c.Timeframe == timeframe {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *MemoryStorage) SaveMetrics(ctx context.Context, rows []MetricRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		r.Timestamp = r.Timestamp.UTC()
		m.metrics[rowKey(r.Symbol, r.Timeframe, r.Timestamp)] = r
	}
	return nil
}

func (m *MemoryStorage) GetMetrics(ctx context.Context, timeframe string, start, end time.Time, limit int) ([]MetricRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []MetricRow
	for _, r := range m.metrics {
		if r.Timeframe != timeframe || r.Timestamp.Before(start) || r.Timestamp.After(end) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].Symbol < out[j].Symbol
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStorage) SaveRankings(ctx context.Context, rows []RankingRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		r.Timestamp = r.Timestamp.UTC()
		m.rankings[rowKey(r.Symbol, r.Timeframe, r.Timestamp)] = r
	}
	return nil
}

// GetRankings mirrors Postgres.GetRankings, but returns the metric values
// that were saved alongside the ranks.
func (m *MemoryStorage) GetRankings(ctx context.Context, timeframe string, ts time.Time) ([]RankingRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if ts.IsZero() {
		for _, r := range m.rankings {
			if r.Timeframe == timeframe && r.Timestamp.After(ts) {
				ts = r.Timestamp
			}
		}
	}
	var out []RankingRow
	for _, r := range m.rankings {
		if r.Timeframe == timeframe && r.Timestamp.Equal(ts) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OverallRank != out[j].OverallRank {
			return out[i].OverallRank < out[j].OverallRank
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out, nil
}

func (m *MemoryStorage) SaveOpportunities(ctx context.Context, timeframe string, opps []opportunity.Opportunity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range opps {
		o.DetectedAt = o.DetectedAt.UTC()
		key := rowKey(o.Symbol, timeframe, o.DetectedAt) + "|" + string(o.Direction)
		m.opportunities[key] = opportunityRow{timeframe: timeframe, Opportunity: o}
	}
	return nil
}

func (m *MemoryStorage) GetOpportunities(ctx context.Context, timeframe string, since time.Time, limit int) ([]opportunity.Opportunity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []opportunity.Opportunity
	for _, o := range m.opportunities {
		if o.timeframe == timeframe && !o.DetectedAt.Before(since) {
			out = append(out, o.Opportunity)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DetectedAt.Equal(out[j].DetectedAt) {
			return out[i].DetectedAt.After(out[j].DetectedAt)
		}
		return out[i].Strength > out[j].Strength
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStorage) SaveBacktest(ctx context.Context, res *backtest.Result) error {
	if res == nil || res.RunID == "" {
		return fmt.Errorf("backtest result has no run id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.backtests[res.RunID]; ok {
		return fmt.Errorf("%w: backtest %s", ErrDuplicate, res.RunID)
	}
	cp := *res
	m.backtests[res.RunID] = &cp
	return nil
}

func (m *MemoryStorage) GetBacktestTrades(ctx context.Context, runID string) ([]backtest.Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res, ok := m.backtests[runID]
	if !ok || len(res.Trades()) == 0 {
		return nil, fmt.Errorf("%w: backtest %s", ErrNotFound, runID)
	}
	return res.Trades(), nil
}
