// Package metric turns candle windows into the five per-symbol ranking metrics.
package metric

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/amirphl/rank-trader/internal/candle"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Record is one symbol's metrics for one evaluation. Metrics that could not
// be computed are NaN; see Defined.
type Record struct {
	Symbol         string  `json:"symbol" db:"symbol"`
	VolumeMetric   float64 `json:"volume_metric" db:"volume_metric"`
	MomentumMetric float64 `json:"momentum_metric" db:"momentum_metric"`
	TotalPctChange float64 `json:"total_pct_change" db:"total_pct_change"`
	ZScoreMetric   float64 `json:"zscore_metric" db:"zscore_metric"`
	PriceMetric    float64 `json:"price_metric" db:"price_metric"`
	Price          float64 `json:"price" db:"price"`
	InUptrend      bool    `json:"in_uptrend" db:"in_uptrend"`
}

func Defined(v float64) bool {
	return !math.IsNaN(v)
}

// ComputationError reports a symbol that was dropped from a batch.
type ComputationError struct {
	Symbol string
	Err    error
}

func (e ComputationError) Error() string {
	return fmt.Sprintf("metrics for %s: %v", e.Symbol, e.Err)
}

func (e ComputationError) Unwrap() error { return e.Err }

// Batch is the outcome of one evaluation across symbols.
type Batch struct {
	Records  map[string]Record
	Failures []ComputationError
	Skipped  []string
}

// Engine computes metrics and owns each symbol's SignalState across calls.
type Engine struct {
	cfg    Config
	logger zerolog.Logger

	mu     sync.Mutex
	states map[string]SignalState
}

func NewEngine(cfg Config, logger zerolog.Logger) *Engine {
	return &Engine{
		cfg:    cfg,
		logger: logger.With().Str("component", "metric").Logger(),
		states: make(map[string]SignalState),
	}
}

func (e *Engine) loadState(symbol string) SignalState {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok := e.states[symbol]; ok {
		return st
	}
	return *NewSignalState()
}

func (e *Engine) storeState(symbol string, st SignalState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.states[symbol] = st
}

// Calculate computes metrics for every symbol with enough candles. A symbol
// that fails is reported in Failures and left out of Records; the rest of
// the batch is unaffected.
func (e *Engine) Calculate(data map[string][]candle.Candle) Batch {
	batch := Batch{Records: make(map[string]Record, len(data))}
	minCandles := e.cfg.MinCandles()

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	if e.cfg.Workers > 0 {
		g.SetLimit(e.cfg.Workers)
	}

	for _, symbol := range candle.Symbols(data) {
		candles := data[symbol]
		if len(candles) < minCandles {
			e.logger.Warn().Str("symbol", symbol).Int("candles", len(candles)).Int("required", minCandles).
				Msg("Calculate | skipping symbol with insufficient data")
			batch.Skipped = append(batch.Skipped, symbol)
			continue
		}

		g.Go(func() error {
			rec, err := e.Compute(symbol, candles)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				e.logger.Warn().Err(err).Str("symbol", symbol).Msg("Calculate | metric computation failed")
				batch.Failures = append(batch.Failures, ComputationError{Symbol: symbol, Err: err})
				return nil
			}
			batch.Records[symbol] = rec
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(batch.Failures, func(i, j int) bool {
		return batch.Failures[i].Symbol < batch.Failures[j].Symbol
	})
	e.logger.Debug().Int("records", len(batch.Records)).Int("failures", len(batch.Failures)).
		Int("skipped", len(batch.Skipped)).Msg("Calculate | metrics calculated")
	return batch
}

// Compute calculates one symbol's record, updating its SignalState.
func (e *Engine) Compute(symbol string, candles []candle.Candle) (rec Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			rec, err = Record{}, fmt.Errorf("panic: %v", r)
		}
	}()

	if len(candles) == 0 {
		return Record{}, fmt.Errorf("no candles")
	}
	for i, c := range candles {
		if err := c.CheckOHLCV(); err != nil {
			return Record{}, fmt.Errorf("candle %d at %s: %w", i, c.Timestamp, err)
		}
	}

	st := e.loadState(symbol)
	rec = Record{
		Symbol:         symbol,
		VolumeMetric:   VolumeMetric(candles, e.cfg.VolumeBaselinePeriod),
		MomentumMetric: MomentumMetric(candles, e.cfg.MomentumPeriod),
		TotalPctChange: TotalPctChange(candles),
		ZScoreMetric:   ZScoreMetric(candles, e.cfg.ZScorePeriod),
		PriceMetric:    PriceMetric(candles, &st, e.cfg.SupertrendPeriod, e.cfg.SupertrendMultiplier),
		Price:          candles[len(candles)-1].Close,
	}
	rec.InUptrend = st.InUptrend
	e.storeState(symbol, st)
	return rec, nil
}
