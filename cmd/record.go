package main

import (
	"context"
	"fmt"

	"github.com/amirphl/rank-trader/internal/monitoring"
	"github.com/amirphl/rank-trader/internal/recorder"
	"github.com/spf13/cobra"
)

func newRecordCmd(a *app) *cobra.Command {
	var (
		src              candleSource
		start, end, step int
	)
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Recompute and store metrics and rankings over historical candles",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("step") {
				step = a.cfg.Recorder.Step
			}
			return runRecord(cmd.Context(), a, &src, start, end, step)
		},
	}
	src.register(cmd)
	f := cmd.Flags()
	f.IntVar(&start, "start", 0, "first bar index to record")
	f.IntVar(&end, "end", -1, "last bar index to record (<= 0 for the last bar)")
	f.IntVar(&step, "step", recorder.DefaultStep, "bars between recordings, overrides the config")
	return cmd
}

func runRecord(ctx context.Context, a *app, src *candleSource, start, end, step int) error {
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

	rec := recorder.New(store, a.cfg.Metric, a.logger).WithObserver(monitor)
	stats, err := rec.RecordHistorical(ctx, data, a.cfg.Timeframe, start, end, step)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d bars (%d failed), %d metric rows, %d ranking rows\n",
		rec.ID(), stats.Bars, stats.FailedBars, stats.Metrics, stats.Rankings)
	return nil
}
