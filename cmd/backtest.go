package main

import (
	"context"
	"fmt"

	"github.com/amirphl/rank-trader/internal/backtest"
	"github.com/amirphl/rank-trader/internal/monitoring"
	"github.com/spf13/cobra"
)

func newBacktestCmd(a *app) *cobra.Command {
	var (
		src     candleSource
		params  backtest.Params
		csvPath string
		persist bool
	)
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay stored candles bar by bar and simulate the detected entries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := a.cfg.Backtest
			f := cmd.Flags()
			if f.Changed("start") {
				p.Start = params.Start
			}
			if f.Changed("end") {
				p.End = params.End
			}
			if f.Changed("take-profit") {
				p.TakeProfit = params.TakeProfit
			}
			if f.Changed("stop-loss") {
				p.StopLoss = params.StopLoss
			}
			if f.Changed("max-bars") {
				p.MaxBars = params.MaxBars
			}
			return runBacktest(cmd.Context(), a, &src, p, csvPath, persist)
		},
	}
	src.register(cmd)
	f := cmd.Flags()
	f.IntVar(&params.Start, "start", 0, "first bar index to evaluate")
	f.IntVar(&params.End, "end", -1, "last bar index to evaluate (<= 0 for the last bar)")
	f.Float64Var(&params.TakeProfit, "take-profit", backtest.DefaultTakeProfit, "take profit in percent")
	f.Float64Var(&params.StopLoss, "stop-loss", backtest.DefaultStopLoss, "stop loss in percent")
	f.IntVar(&params.MaxBars, "max-bars", backtest.DefaultMaxBars, "bars after which a trade is closed")
	f.StringVar(&csvPath, "csv", "", "write the trades to this CSV file")
	f.BoolVar(&persist, "persist", true, "save the run to storage")
	return cmd
}

func runBacktest(ctx context.Context, a *app, src *candleSource, p backtest.Params, csvPath string, persist bool) error {
	store, release, err := a.openStorage(ctx)
	if err != nil {
		return err
	}
	defer release()

	data, err := src.load(ctx, a, store)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return fmt.Errorf("no candles for %v on %s", a.cfg.Symbols, a.cfg.Timeframe)
	}

	monitor := monitoring.New()
	defer a.serveMetrics(monitor)()

	engine := backtest.NewEngine(a.cfg.Metric, a.cfg.Backtest, a.logger).WithObserver(monitor)
	if persist {
		engine.WithStore(store)
	}
	res, err := engine.Run(ctx, data, a.cfg.Timeframe, p)
	if err != nil {
		return err
	}

	backtest.LogReport(a.logger, res, 10)
	if csvPath != "" {
		if err := backtest.SaveCSV(csvPath, res); err != nil {
			return fmt.Errorf("failed to export trades: %w", err)
		}
		a.logger.Info().Str("file", csvPath).Int("trades", len(res.Trades())).Msg("runBacktest | trades exported")
	}
	fmt.Printf("%s: %d long, %d short, win rate %.2f%%, total pnl %.2f%%\n",
		res.RunID, res.Report.Long.TotalTrades, res.Report.Short.TotalTrades,
		res.Report.Combined.WinRate, res.Report.Combined.TotalPnL)
	return nil
}
