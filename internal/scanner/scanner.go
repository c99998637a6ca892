// Package scanner runs the live evaluation loop: load the latest candles,
// rank the universe, detect opportunities, then persist and broadcast them.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/amirphl/rank-trader/internal/candle"
	"github.com/amirphl/rank-trader/internal/metric"
	"github.com/amirphl/rank-trader/internal/opportunity"
	"github.com/amirphl/rank-trader/internal/publisher"
	"github.com/amirphl/rank-trader/internal/ranking"
	"github.com/amirphl/rank-trader/internal/tfutils"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var ErrNoData = errors.New("no symbol could be evaluated")

type Config struct {
	Timeframe      string
	Symbols        []string
	HistoryLimit   int
	Interval       time.Duration
	BoardAlgorithm string
	BoardRows      int
	LoadWorkers    int
}

type OpportunityStore interface {
	SaveOpportunities(ctx context.Context, timeframe string, opps []opportunity.Opportunity) error
}

// CycleRecorder stores each cycle's metrics and rankings.
type CycleRecorder interface {
	Record(ctx context.Context, timeframe string, ts time.Time, metrics map[string]metric.Record, rankings map[string]ranking.Record) error
}

type Publisher interface {
	Publish(ctx context.Context, msg publisher.Message) error
}

type Observer interface {
	ObserveCycle(elapsed time.Duration, symbols, failures int, err error)
	ObserveOpportunities(long, short int)
	ObservePublish(err error)
	ObserveError(kind string)
}

type nopObserver struct{}

func (nopObserver) ObserveCycle(time.Duration, int, int, error) {}
func (nopObserver) ObserveOpportunities(int, int)               {}
func (nopObserver) ObservePublish(error)                        {}
func (nopObserver) ObserveError(string)                         {}

// Cycle is the outcome of one evaluation.
type Cycle struct {
	Timestamp     time.Time
	Rankings      map[string]ranking.Record
	Deltas        map[string]ranking.Delta
	Opportunities opportunity.Result
	Board         *ranking.Board
	Failures      []metric.ComputationError
	Skipped       []string
}

type Service struct {
	cfg      Config
	candles  candle.Storage
	opps     OpportunityStore
	recorder CycleRecorder
	pub      Publisher
	observer Observer
	logger   zerolog.Logger
	now      func() time.Time

	metrics  *metric.Engine
	detector *opportunity.Detector
	state    *opportunity.State

	// mu serialises cycles; previous and state belong to the last one.
	mu       sync.Mutex
	previous map[string]ranking.Record
}

func New(cfg Config, metricCfg metric.Config, thresholds opportunity.Thresholds, candles candle.Storage, logger zerolog.Logger) *Service {
	if cfg.LoadWorkers <= 0 {
		cfg.LoadWorkers = 8
	}
	return &Service{
		cfg:      cfg,
		candles:  candles,
		observer: nopObserver{},
		logger:   logger.With().Str("component", "scanner").Str("timeframe", cfg.Timeframe).Logger(),
		now:      time.Now,
		metrics:  metric.NewEngine(metricCfg, logger),
		detector: opportunity.NewDetector(thresholds, logger),
		state:    opportunity.NewState(),
	}
}

func (s *Service) WithOpportunityStore(o OpportunityStore) *Service {
	s.opps = o
	return s
}

func (s *Service) WithRecorder(r CycleRecorder) *Service {
	s.recorder = r
	return s
}

func (s *Service) WithPublisher(p Publisher) *Service {
	s.pub = p
	return s
}

func (s *Service) WithObserver(o Observer) *Service {
	if o != nil {
		s.observer = o
	}
	return s
}

// Run evaluates immediately and then on every interval until ctx is done.
// Failed cycles are logged and do not stop the loop.
func (s *Service) Run(ctx context.Context) error {
	if s.cfg.Interval <= 0 {
		return fmt.Errorf("Run | scan interval must be positive, got %s", s.cfg.Interval)
	}
	s.logger.Info().Dur("interval", s.cfg.Interval).Int("symbols", len(s.cfg.Symbols)).Msg("Run | scanner started")

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		if _, err := s.RunOnce(ctx, s.now()); err != nil && ctx.Err() == nil {
			s.logger.Error().Err(err).Msg("Run | cycle failed")
		}
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Run | scanner stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce performs one evaluation at now. Storage and publish failures are
// logged and counted; only a cycle that ranks nothing returns an error.
func (s *Service) RunOnce(ctx context.Context, now time.Time) (*Cycle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	started := s.now()
	cycle, err := s.evaluate(ctx, now)
	if err != nil {
		s.observer.ObserveCycle(s.now().Sub(started), 0, 0, err)
		return nil, err
	}

	stamp := tfutils.Align(now, s.cfg.Timeframe)
	s.persist(ctx, stamp, cycle)
	s.publish(ctx, stamp, cycle)

	s.observer.ObserveCycle(s.now().Sub(started), len(cycle.Rankings), len(cycle.Failures), nil)
	s.observer.ObserveOpportunities(len(cycle.Opportunities.Long), len(cycle.Opportunities.Short))
	s.logger.Info().Int("ranked", len(cycle.Rankings)).Int("long", len(cycle.Opportunities.Long)).
		Int("short", len(cycle.Opportunities.Short)).Dur("elapsed", s.now().Sub(started)).
		Msg("RunOnce | cycle complete")
	return cycle, nil
}

func (s *Service) evaluate(ctx context.Context, now time.Time) (*Cycle, error) {
	data, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	batch := s.metrics.Calculate(data)
	if len(batch.Records) == 0 {
		return nil, fmt.Errorf("RunOnce | %w: %d loaded, %d failed, %d skipped",
			ErrNoData, len(data), len(batch.Failures), len(batch.Skipped))
	}

	rankings := ranking.Rank(batch.Records)
	deltas := ranking.Changes(rankings, s.previous)
	s.previous = rankings
	opps := s.detector.Detect(s.state, now, rankings, deltas, batch.Records)

	cycle := &Cycle{
		Timestamp:     now,
		Rankings:      rankings,
		Deltas:        deltas,
		Opportunities: opps,
		Failures:      batch.Failures,
		Skipped:       batch.Skipped,
	}
	if s.cfg.BoardAlgorithm != "" {
		board, err := ranking.BuildBoard(rankings, deltas, s.cfg.BoardAlgorithm, s.cfg.BoardRows)
		if err != nil {
			s.logger.Warn().Err(err).Msg("RunOnce | board skipped")
		} else {
			cycle.Board = &board
		}
	}
	return cycle, nil
}

// load fetches the latest candles of every configured symbol concurrently.
// Symbols that fail to load are logged and left out.
func (s *Service) load(ctx context.Context) (map[string][]candle.Candle, error) {
	var (
		mu   sync.Mutex
		data = make(map[string][]candle.Candle, len(s.cfg.Symbols))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.LoadWorkers)
	for _, symbol := range s.cfg.Symbols {
		g.Go(func() error {
			candles, err := s.candles.GetLatestCandles(gctx, symbol, s.cfg.Timeframe, s.cfg.HistoryLimit)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				s.observer.ObserveError("load")
				s.logger.Warn().Err(err).Str("symbol", symbol).Msg("RunOnce | failed to load candles")
				return nil
			}
			if len(candles) == 0 {
				return nil
			}
			mu.Lock()
			data[symbol] = candle.SortByTime(candles)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("RunOnce | loading candles: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("RunOnce | %w: no candles loaded", ErrNoData)
	}
	return data, nil
}

func (s *Service) persist(ctx context.Context, stamp time.Time, c *Cycle) {
	if s.recorder != nil {
		metrics := make(map[string]metric.Record, len(c.Rankings))
		for symbol, r := range c.Rankings {
			metrics[symbol] = r.Record
		}
		if err := s.recorder.Record(ctx, s.cfg.Timeframe, stamp, metrics, c.Rankings); err != nil {
			s.observer.ObserveError("storage")
			s.logger.Error().Err(err).Msg("RunOnce | failed to record cycle")
		}
	}

	if s.opps != nil && c.Opportunities.Len() > 0 {
		all := append(append([]opportunity.Opportunity{}, c.Opportunities.Long...), c.Opportunities.Short...)
		if err := s.opps.SaveOpportunities(ctx, s.cfg.Timeframe, all); err != nil {
			s.observer.ObserveError("storage")
			s.logger.Error().Err(err).Int("count", len(all)).Msg("RunOnce | failed to save opportunities")
		}
	}
}

func (s *Service) publish(ctx context.Context, stamp time.Time, c *Cycle) {
	if s.pub == nil {
		return
	}
	msg := publisher.NewMessage(s.cfg.Timeframe, stamp, c.Rankings, c.Opportunities, c.Board)
	err := s.pub.Publish(ctx, msg)
	s.observer.ObservePublish(err)
	if err != nil {
		s.logger.Warn().Err(err).Msg("RunOnce | failed to publish cycle")
	}
}
