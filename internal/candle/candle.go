// Package candle
package candle

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

var ErrMalformed = errors.New("malformed candle")

type Candle struct {
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
	Open      float64   `json:"open" db:"open"`
	High      float64   `json:"high" db:"high"`
	Low       float64   `json:"low" db:"low"`
	Close     float64   `json:"close" db:"close"`
	Volume    float64   `json:"volume" db:"volume"`
	Symbol    string    `json:"symbol" db:"symbol"`
	Timeframe string    `json:"timeframe" db:"timeframe"`
	Source    string    `json:"source" db:"source"`
}

// MidPrice returns the average of high and low.
func (c Candle) MidPrice() float64 {
	return (c.High + c.Low) / 2
}

// CheckOHLCV verifies the numeric fields only. Analysis code works on
// windows that may lack symbol or timeframe metadata, so it uses this
// instead of Validate.
func (c Candle) CheckOHLCV() error {
	for _, v := range []float64{c.Open, c.High, c.Low, c.Close, c.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite value", ErrMalformed)
		}
	}
	if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
		return fmt.Errorf("%w: prices must be positive", ErrMalformed)
	}
	if c.High < c.Low {
		return fmt.Errorf("%w: high cannot be less than low", ErrMalformed)
	}
	if c.Volume < 0 {
		return fmt.Errorf("%w: volume cannot be negative", ErrMalformed)
	}
	return nil
}

// Validate checks if a candle has valid data
func (c Candle) Validate() error {
	if c.Timestamp.IsZero() {
		return errors.New("candle timestamp is zero")
	}
	if err := c.CheckOHLCV(); err != nil {
		return err
	}
	if c.Open < c.Low || c.Open > c.High {
		return errors.New("candle open price must be between high and low")
	}
	if c.Close < c.Low || c.Close > c.High {
		return errors.New("candle close price must be between high and low")
	}
	if c.Symbol == "" {
		return errors.New("candle symbol cannot be empty")
	}
	if c.Timeframe == "" {
		return errors.New("candle timeframe cannot be empty")
	}
	return nil
}

// Closes extracts the close prices of a window.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// SortByTime orders candles ascending by timestamp and drops duplicate
// timestamps, keeping the last occurrence.
func SortByTime(candles []Candle) []Candle {
	if len(candles) == 0 {
		return candles
	}
	sort.SliceStable(candles, func(i, j int) bool {
		return candles[i].Timestamp.Before(candles[j].Timestamp)
	})
	out := candles[:0]
	for i, c := range candles {
		if i+1 < len(candles) && candles[i+1].Timestamp.Equal(c.Timestamp) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Symbols returns the keys of a per-symbol candle map in sorted order.
func Symbols(data map[string][]Candle) []string {
	symbols := make([]string, 0, len(data))
	for s := range data {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}

// Storage persists candles and serves windows of them back.
type Storage interface {
	SaveCandles(ctx context.Context, candles []Candle) error
	GetCandles(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]Candle, error)
	GetLatestCandles(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error)
}
