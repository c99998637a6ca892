package main

import (
	"context"
	"time"

	"github.com/amirphl/rank-trader/internal/monitoring"
	"github.com/amirphl/rank-trader/internal/publisher"
	"github.com/amirphl/rank-trader/internal/recorder"
	"github.com/amirphl/rank-trader/internal/scanner"
	"github.com/spf13/cobra"
)

func newScanCmd(a *app) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Evaluate the configured symbols on every interval and broadcast each cycle",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("interval") {
				a.cfg.ScanInterval = interval
			}
			return runScan(cmd.Context(), a)
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "scan interval, overrides the config")
	return cmd
}

func runScan(ctx context.Context, a *app) error {
	store, release, err := a.openStorage(ctx)
	if err != nil {
		return err
	}
	defer release()

	monitor := monitoring.New()
	rec := recorder.New(store, a.cfg.Metric, a.logger).WithObserver(monitor)
	svc := scanner.New(scanner.Config{
		Timeframe:      a.cfg.Timeframe,
		Symbols:        a.cfg.Symbols,
		HistoryLimit:   a.cfg.HistoryLimit,
		Interval:       a.cfg.ScanInterval,
		BoardAlgorithm: a.cfg.Board.Algorithm,
		BoardRows:      a.cfg.Board.MaxRows,
	}, a.cfg.Metric, a.cfg.Thresholds, store, a.logger).
		WithRecorder(rec).
		WithOpportunityStore(store).
		WithObserver(monitor)

	if a.cfg.Redis.Enabled {
		client, err := publisher.Dial(ctx, a.cfg.Redis.Addr, a.cfg.Redis.Password, a.cfg.Redis.DB)
		if err != nil {
			return err
		}
		pub := publisher.NewRedis(client, publisher.Options{
			Channel:   a.cfg.Redis.Channel,
			LatestKey: a.cfg.Redis.LatestKey,
			LatestTTL: a.cfg.Redis.LatestTTL,
		}, a.logger)
		defer pub.Close()
		svc.WithPublisher(pub)
	}

	defer a.serveMetrics(monitor)()

	return svc.Run(ctx)
}
