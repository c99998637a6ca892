package main

import (
	"fmt"

	"github.com/amirphl/rank-trader/internal/candle"
	"github.com/spf13/cobra"
)

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Load candles from a CSV file into storage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			candles, err := candle.ReadCSVFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read candles: %w", err)
			}
			store, release, err := a.openStorage(ctx)
			if err != nil {
				return err
			}
			defer release()

			if err := store.SaveCandles(ctx, candles); err != nil {
				return fmt.Errorf("failed to save candles: %w", err)
			}
			a.logger.Info().Str("file", args[0]).Int("candles", len(candles)).Msg("import | candles saved")
			return nil
		},
	}
}
