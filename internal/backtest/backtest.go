// Package backtest replays the ranking pipeline bar by bar over historical
// candles and simulates the trades its entry rules would have taken.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/amirphl/rank-trader/internal/opportunity"
	"github.com/google/uuid"
)

var ErrInvalidRange = errors.New("invalid bar range")

const (
	DefaultTakeProfit = 3.0
	DefaultStopLoss   = 1.5
	DefaultMaxBars    = 20
)

type ExitReason string

const (
	TakeProfit  ExitReason = "take_profit"
	StopLoss    ExitReason = "stop_loss"
	MaxDuration ExitReason = "max_duration"
)

// Status is the lifecycle state of a single run.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusRunning    Status = "running"
	StatusSimulated  Status = "simulated"
	StatusSummarized Status = "summarized"
	StatusPersisted  Status = "persisted"
	StatusDone       Status = "done"
	StatusCancelled  Status = "cancelled"
)

// Params selects the bar range and exit rules of a run. TakeProfit and
// StopLoss are percentages. Zero values fall back to the engine defaults;
// End <= 0 selects the last bar.
type Params struct {
	Start      int     `yaml:"start" json:"start"`
	End        int     `yaml:"end" json:"end"`
	TakeProfit float64 `yaml:"take_profit" json:"take_profit"`
	StopLoss   float64 `yaml:"stop_loss" json:"stop_loss"`
	MaxBars    int     `yaml:"max_bars" json:"max_bars"`
}

func DefaultParams() Params {
	return Params{
		End:        -1,
		TakeProfit: DefaultTakeProfit,
		StopLoss:   DefaultStopLoss,
		MaxBars:    DefaultMaxBars,
	}
}

func (p Params) withDefaults(d Params) Params {
	if p.TakeProfit == 0 {
		p.TakeProfit = d.TakeProfit
	}
	if p.StopLoss == 0 {
		p.StopLoss = d.StopLoss
	}
	if p.MaxBars == 0 {
		p.MaxBars = d.MaxBars
	}
	return p
}

// Validate checks the exit rules. The bar range depends on the data and is
// checked by Engine.Run.
func (p Params) Validate() error {
	var errs []error
	if p.TakeProfit <= 0 {
		errs = append(errs, fmt.Errorf("take profit must be positive, got %v", p.TakeProfit))
	}
	if p.StopLoss <= 0 {
		errs = append(errs, fmt.Errorf("stop loss must be positive, got %v", p.StopLoss))
	}
	if p.MaxBars <= 0 {
		errs = append(errs, fmt.Errorf("max bars must be positive, got %d", p.MaxBars))
	}
	return errors.Join(errs...)
}

type Trade struct {
	Symbol     string                `json:"symbol" db:"symbol"`
	Direction  opportunity.Direction `json:"direction" db:"direction"`
	EntryPrice float64               `json:"entry_price" db:"entry_price"`
	EntryTime  time.Time             `json:"entry_time" db:"entry_time"`
	ExitPrice  float64               `json:"exit_price" db:"exit_price"`
	ExitTime   time.Time             `json:"exit_time" db:"exit_time"`
	ExitReason ExitReason            `json:"exit_reason" db:"exit_reason"`
	PnLPercent float64               `json:"pnl" db:"pnl_percent"`
	BarsHeld   int                   `json:"bars_held" db:"bars_held"`
	Strength   float64               `json:"opportunity_strength" db:"strength"`
}

// Summary aggregates a set of trades. StartTime and EndTime always span the
// whole run, not just the trades summarized.
type Summary struct {
	TotalTrades   int       `json:"total_trades" db:"total_trades"`
	WinningTrades int       `json:"winning_trades" db:"winning_trades"`
	LosingTrades  int       `json:"losing_trades" db:"losing_trades"`
	WinRate       float64   `json:"win_rate" db:"win_rate"`
	AveragePnL    float64   `json:"average_pnl" db:"average_pnl"`
	TotalPnL      float64   `json:"total_pnl" db:"total_pnl"`
	MaxProfit     float64   `json:"max_profit" db:"max_profit"`
	MaxLoss       float64   `json:"max_loss" db:"max_loss"`
	AvgBarsHeld   float64   `json:"avg_bars_held" db:"avg_bars_held"`
	StartTime     time.Time `json:"start_time" db:"start_time"`
	EndTime       time.Time `json:"end_time" db:"end_time"`
}

type Report struct {
	Long     Summary `json:"long"`
	Short    Summary `json:"short"`
	Combined Summary `json:"combined"`
}

type Result struct {
	RunID      string  `json:"backtest_id"`
	Timeframe  string  `json:"timeframe"`
	Status     Status  `json:"status"`
	Params     Params  `json:"params"`
	Long       []Trade `json:"long"`
	Short      []Trade `json:"short"`
	Report     Report  `json:"summary"`
	Bars       int     `json:"bars"`
	FailedBars int     `json:"failed_bars"`
	Persisted  bool    `json:"persisted"`
}

// Trades returns long trades followed by short trades.
func (r *Result) Trades() []Trade {
	out := make([]Trade, 0, len(r.Long)+len(r.Short))
	out = append(out, r.Long...)
	return append(out, r.Short...)
}

// Store persists a finished run.
type Store interface {
	SaveBacktest(ctx context.Context, res *Result) error
}

// Observer receives run progress, typically to export it as metrics.
type Observer interface {
	ObserveBacktestBar(failed bool)
	ObserveBacktestRun(status string, elapsed time.Duration, long, short int)
}

type nopObserver struct{}

func (nopObserver) ObserveBacktestBar(bool)                            {}
func (nopObserver) ObserveBacktestRun(string, time.Duration, int, int) {}

func newRunID(now time.Time) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("backtest_%s_%s", now.Format("20060102_150405"), hex[:8])
}
