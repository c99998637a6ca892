package backtest

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/amirphl/rank-trader/internal/candle"
	"github.com/amirphl/rank-trader/internal/metric"
	"github.com/amirphl/rank-trader/internal/opportunity"
	"github.com/amirphl/rank-trader/internal/ranking"
	"github.com/rs/zerolog"
)

// Engine runs backtests. It holds no per-run state, so independent runs may
// execute concurrently.
type Engine struct {
	metricCfg metric.Config
	defaults  Params
	store     Store
	observer  Observer
	logger    zerolog.Logger
	now       func() time.Time
}

func NewEngine(metricCfg metric.Config, defaults Params, logger zerolog.Logger) *Engine {
	return &Engine{
		metricCfg: metricCfg,
		defaults:  defaults.withDefaults(DefaultParams()),
		observer:  nopObserver{},
		logger:    logger.With().Str("component", "backtest").Logger(),
		now:       time.Now,
	}
}

// WithStore makes every successful run persist its result.
func (e *Engine) WithStore(s Store) *Engine {
	e.store = s
	return e
}

func (e *Engine) WithObserver(o Observer) *Engine {
	if o == nil {
		o = nopObserver{}
	}
	e.observer = o
	return e
}

// candidate is an entry signal at one bar.
type candidate struct {
	symbol     string
	direction  opportunity.Direction
	bar        int
	strength   float64
	rankChange int
}

type run struct {
	id     string
	status Status
	logger zerolog.Logger
}

func (r *run) transition(to Status) {
	r.logger.Debug().Str("from", string(r.status)).Str("to", string(to)).Msg("Run | state change")
	r.status = to
}

// Run replays data, a per-symbol candle sequence for one timeframe aligned
// by index, over the bars [p.Start, p.End]. Metrics at bar i only see
// candles up to and including i.
func (e *Engine) Run(ctx context.Context, data map[string][]candle.Candle, timeframe string, p Params) (*Result, error) {
	p = p.withDefaults(e.defaults)
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("Run | %w", err)
	}

	longest := 0
	for _, candles := range data {
		longest = max(longest, len(candles))
	}
	if p.End <= 0 {
		p.End = longest - 1
	}
	if p.Start < 0 || p.Start >= p.End || p.End >= longest {
		return nil, fmt.Errorf("Run | %w: start %d, end %d, last bar %d", ErrInvalidRange, p.Start, p.End, longest-1)
	}

	started := e.now()
	r := &run{id: newRunID(started), status: StatusIdle}
	r.logger = e.logger.With().Str("run_id", r.id).Str("timeframe", timeframe).Logger()
	res := &Result{RunID: r.id, Timeframe: timeframe, Params: p, Long: []Trade{}, Short: []Trade{}}

	r.logger.Info().Int("start", p.Start).Int("end", p.End).Int("symbols", len(data)).
		Float64("take_profit", p.TakeProfit).Float64("stop_loss", p.StopLoss).Int("max_bars", p.MaxBars).
		Msg("Run | backtest started")
	r.transition(StatusRunning)

	// A fresh metric engine keeps signal state private to this run.
	me := metric.NewEngine(e.metricCfg, e.logger.Level(zerolog.WarnLevel))
	symbols := candle.Symbols(data)

	var (
		candidates []candidate
		previous   map[string]ranking.Record
	)
	for idx := p.Start; idx <= p.End; idx++ {
		if err := ctx.Err(); err != nil {
			r.transition(StatusCancelled)
			e.observer.ObserveBacktestRun(string(StatusCancelled), e.now().Sub(started), 0, 0)
			r.logger.Warn().Int("bar", idx).Msg("Run | backtest cancelled")
			return nil, fmt.Errorf("Run | backtest %s cancelled at bar %d: %w", r.id, idx, err)
		}

		found, rankings, err := e.evaluateBar(me, data, symbols, idx, previous)
		res.Bars++
		if err != nil {
			res.FailedBars++
			e.observer.ObserveBacktestBar(true)
			r.logger.Error().Err(err).Int("bar", idx).Msg("Run | error processing bar")
			continue
		}
		e.observer.ObserveBacktestBar(false)
		candidates = append(candidates, found...)
		previous = rankings

		if (idx-p.Start+1)%100 == 0 {
			r.logger.Info().Int("processed", idx-p.Start+1).Int("total", p.End-p.Start+1).Msg("Run | progress")
		}
	}

	for _, c := range candidates {
		trade, ok := simulate(data[c.symbol], c, p)
		if !ok {
			continue
		}
		if c.direction == opportunity.Long {
			res.Long = append(res.Long, trade)
		} else {
			res.Short = append(res.Short, trade)
		}
	}
	r.transition(StatusSimulated)
	r.logger.Info().Int("candidates", len(candidates)).Int("long", len(res.Long)).Int("short", len(res.Short)).
		Msg("Run | trades simulated")

	res.Report = summarizeRun(res.Long, res.Short)
	r.transition(StatusSummarized)

	if e.store != nil {
		res.Status = r.status
		if err := e.store.SaveBacktest(ctx, res); err != nil {
			r.logger.Error().Err(err).Msg("Run | error storing backtest results")
		} else {
			res.Persisted = true
			r.transition(StatusPersisted)
		}
	}

	r.transition(StatusDone)
	res.Status = r.status
	e.observer.ObserveBacktestRun(string(StatusDone), e.now().Sub(started), len(res.Long), len(res.Short))
	r.logger.Info().Int("failed_bars", res.FailedBars).Float64("total_pnl", res.Report.Combined.TotalPnL).
		Msg("Run | backtest finished")
	return res, nil
}

// evaluateBar ranks every symbol that has a candle at idx and returns the
// entry candidates of that bar, strongest first. A bar fails when it panics
// or when no symbol could be computed.
func (e *Engine) evaluateBar(
	me *metric.Engine,
	data map[string][]candle.Candle,
	symbols []string,
	idx int,
	previous map[string]ranking.Record,
) (found []candidate, rankings map[string]ranking.Record, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			found, rankings, err = nil, nil, fmt.Errorf("panic: %v", rec)
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
		return nil, nil, fmt.Errorf("all %d symbols failed: %w", len(batch.Failures), batch.Failures[0])
	}

	rankings = ranking.Rank(batch.Records)
	deltas := ranking.Changes(rankings, previous)
	return entries(idx, rankings, deltas), rankings, nil
}

// entries applies the backtest entry rules: longs must sit in the top band
// with an improving rank and positive momentum, shorts just below it with a
// worsening rank and negative momentum.
func entries(idx int, rankings map[string]ranking.Record, deltas map[string]ranking.Delta) []candidate {
	var out []candidate
	for _, r := range ranking.Sorted(rankings) {
		change := deltas[r.Symbol].Overall
		mom := r.MomentumMetric

		if r.OverallRank <= opportunity.TopBand && change > 0 && mom > 0 {
			out = append(out, candidate{
				symbol:     r.Symbol,
				direction:  opportunity.Long,
				bar:        idx,
				strength:   EntryStrength(r, change, opportunity.Long),
				rankChange: change,
			})
		}
		if r.OverallRank > opportunity.TopBand && r.OverallRank <= opportunity.WatchBand && change < 0 && mom < 0 {
			out = append(out, candidate{
				symbol:     r.Symbol,
				direction:  opportunity.Short,
				bar:        idx,
				strength:   EntryStrength(r, change, opportunity.Short),
				rankChange: change,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].strength > out[j].strength })
	return out
}

// EntryStrength scores a backtest entry between 0 and 100 from its overall
// rank tier, momentum magnitude, rank change magnitude and trend.
func EntryStrength(r ranking.Record, rankChange int, dir opportunity.Direction) float64 {
	score := 50.0
	rank := r.OverallRank

	if dir == opportunity.Long {
		switch {
		case rank <= 10:
			score += 20
		case rank <= 20:
			score += 10
		case rank <= 30:
			score += 5
		}
	} else {
		switch {
		case rank <= 20:
		case rank <= 25:
			score += 20
		case rank <= 30:
			score += 15
		case rank <= 40:
			score += 10
		}
	}

	mom := r.MomentumMetric
	if (dir == opportunity.Long && mom > 0) || (dir == opportunity.Short && mom < 0) {
		switch m := math.Abs(mom); {
		case m > 0.5:
			score += 15
		case m > 0.3:
			score += 10
		case m > 0.1:
			score += 5
		}
	}

	if (dir == opportunity.Long && rankChange > 0) || (dir == opportunity.Short && rankChange < 0) {
		switch c := math.Abs(float64(rankChange)); {
		case c >= 10:
			score += 15
		case c >= 5:
			score += 10
		case c >= 2:
			score += 5
		}
	}

	if r.InUptrend == (dir == opportunity.Long) {
		score += 10
	}
	return min(score, 100)
}
