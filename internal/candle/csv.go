package candle

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

var csvColumns = []string{"symbol", "timeframe", "timestamp", "open", "high", "low", "close", "volume"}

// ReadCSV parses candles from CSV with a header naming at least the columns
// symbol, timeframe, timestamp, open, high, low, close and volume, in any
// order. An optional source column is kept. Timestamps are RFC3339 or unix
// milliseconds. Every candle is validated.
func ReadCSV(r io.Reader) ([]Candle, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range csvColumns {
		if _, ok := idx[c]; !ok {
			return nil, fmt.Errorf("csv header is missing column %q", c)
		}
	}
	sourceCol, hasSource := idx["source"]

	var out []Candle
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		c := Candle{
			Symbol:    strings.ToUpper(rec[idx["symbol"]]),
			Timeframe: rec[idx["timeframe"]],
		}
		if c.Timestamp, err = parseTimestamp(rec[idx["timestamp"]]); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		fields := []struct {
			name string
			dst  *float64
		}{
			{"open", &c.Open}, {"high", &c.High}, {"low", &c.Low}, {"close", &c.Close}, {"volume", &c.Volume},
		}
		for _, f := range fields {
			if *f.dst, err = strconv.ParseFloat(rec[idx[f.name]], 64); err != nil {
				return nil, fmt.Errorf("line %d: invalid %s: %w", line, f.name, err)
			}
		}
		if hasSource {
			c.Source = rec[sourceCol]
		}
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, c)
	}
	return out, nil
}

func ReadCSVFile(filename string) ([]Candle, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f)
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
	}
	return t.UTC(), nil
}

// GroupBySymbol splits candles per symbol, each ordered by time.
func GroupBySymbol(candles []Candle) map[string][]Candle {
	out := make(map[string][]Candle)
	for _, c := range candles {
		out[c.Symbol] = append(out[c.Symbol], c)
	}
	for s, cs := range out {
		out[s] = SortByTime(cs)
	}
	return out
}
