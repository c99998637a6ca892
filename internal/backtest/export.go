package backtest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

var tradeHeader = []string{
	"backtest_id", "symbol", "direction", "entry_time", "entry_price",
	"exit_time", "exit_price", "exit_reason", "pnl_percent", "bars_held", "strength",
}

// WriteCSV writes one row per trade, longs first.
func WriteCSV(w io.Writer, res *Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tradeHeader); err != nil {
		return fmt.Errorf("WriteCSV | %w", err)
	}
	for _, t := range res.Trades() {
		row := []string{
			res.RunID,
			t.Symbol,
			string(t.Direction),
			t.EntryTime.UTC().Format(time.RFC3339),
			formatFloat(t.EntryPrice),
			t.ExitTime.UTC().Format(time.RFC3339),
			formatFloat(t.ExitPrice),
			string(t.ExitReason),
			strconv.FormatFloat(t.PnLPercent, 'f', 4, 64),
			strconv.Itoa(t.BarsHeld),
			strconv.FormatFloat(t.Strength, 'f', 2, 64),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("WriteCSV | %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("WriteCSV | %w", err)
	}
	return nil
}

// SaveCSV writes the trades of res to filename.
func SaveCSV(filename string, res *Result) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("SaveCSV | error creating %s: %w", filename, err)
	}
	if err := WriteCSV(f, res); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// LogReport writes the per-direction summaries and the first trades of res.
func LogReport(logger zerolog.Logger, res *Result, maxTrades int) {
	for _, part := range []struct {
		name string
		s    Summary
	}{
		{"long", res.Report.Long},
		{"short", res.Report.Short},
		{"combined", res.Report.Combined},
	} {
		logger.Info().
			Str("run_id", res.RunID).
			Str("direction", part.name).
			Int("trades", part.s.TotalTrades).
			Int("wins", part.s.WinningTrades).
			Int("losses", part.s.LosingTrades).
			Float64("win_rate", part.s.WinRate).
			Float64("avg_pnl", part.s.AveragePnL).
			Float64("total_pnl", part.s.TotalPnL).
			Float64("max_profit", part.s.MaxProfit).
			Float64("max_loss", part.s.MaxLoss).
			Float64("avg_bars_held", part.s.AvgBarsHeld).
			Msg("LogReport | summary")
	}

	trades := res.Trades()
	for i, t := range trades {
		if i >= maxTrades {
			logger.Info().Int("remaining", len(trades)-maxTrades).Msg("LogReport | more trades omitted")
			break
		}
		logger.Info().
			Str("symbol", t.Symbol).
			Str("direction", string(t.Direction)).
			Float64("entry", t.EntryPrice).
			Time("entry_time", t.EntryTime).
			Float64("exit", t.ExitPrice).
			Time("exit_time", t.ExitTime).
			Float64("pnl", t.PnLPercent).
			Str("reason", string(t.ExitReason)).
			Msg("LogReport | trade")
	}
}
