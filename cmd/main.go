package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amirphl/rank-trader/internal/candle"
	"github.com/amirphl/rank-trader/internal/config"
	"github.com/amirphl/rank-trader/internal/db"
	"github.com/amirphl/rank-trader/internal/logger"
	"github.com/amirphl/rank-trader/internal/monitoring"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// app is the state shared by every subcommand once the root has loaded the
// configuration.
type app struct {
	configPath string
	timeframe  string
	symbols    string

	cfg    config.Config
	logger zerolog.Logger
	closer io.Closer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "rank-trader",
		Short:         "Rank instruments by five signals, detect rank breakouts and backtest them",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if a.closer != nil {
				return a.closer.Close()
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "path to the YAML configuration file")
	pf.StringVar(&a.timeframe, "timeframe", "", "candle timeframe, overrides the config")
	pf.StringVar(&a.symbols, "symbols", "", "comma-separated symbols, overrides the config")

	root.AddCommand(
		newScanCmd(a),
		newBacktestCmd(a),
		newRecordCmd(a),
		newImportCmd(a),
		newMigrateCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("timeframe") {
		cfg.Timeframe = a.timeframe
	}
	if cmd.Flags().Changed("symbols") {
		cfg.Symbols = config.ParseSymbols(a.symbols)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, closer, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = log.With().Str("command", cmd.Name()).Logger()
	a.closer = closer
	return nil
}

// openStorage connects to Postgres, or falls back to in-process storage
// when no connection string is configured. The returned func releases it.
func (a *app) openStorage(ctx context.Context) (db.Storage, func(), error) {
	if a.cfg.DB.ConnStr == "" {
		a.logger.Warn().Msg("openStorage | no database configured, using in-memory storage")
		return db.NewMemory(), func() {}, nil
	}
	conn, err := db.Connect(ctx, a.cfg.DB.ConnStr, a.cfg.DB.MaxOpen, a.cfg.DB.MaxIdle)
	if err != nil {
		return nil, nil, err
	}
	a.logger.Info().Msg("openStorage | connected to Postgres")
	pg := db.NewPostgres(conn, a.cfg.DB.QueryTimeout)
	return pg, func() {
		if err := pg.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("openStorage | close failed")
		}
	}, nil
}

// candleSource names where a batch command reads its candles from.
type candleSource struct {
	file     string
	from, to string
}

func (s *candleSource) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&s.file, "candles", "", "read candles from this CSV file instead of storage")
	f.StringVar(&s.from, "from", "", "first candle time (RFC3339); default is the latest history_limit candles")
	f.StringVar(&s.to, "to", "", "end of the candle range (RFC3339, exclusive); default is now")
}

// load returns the configured symbols' candles, each ordered by time.
func (s *candleSource) load(ctx context.Context, a *app, store candle.Storage) (map[string][]candle.Candle, error) {
	data := make(map[string][]candle.Candle, len(a.cfg.Symbols))
	if s.file != "" {
		all, err := candle.ReadCSVFile(s.file)
		if err != nil {
			return nil, fmt.Errorf("failed to read candles: %w", err)
		}
		grouped := candle.GroupBySymbol(all)
		for _, symbol := range a.cfg.Symbols {
			var series []candle.Candle
			for _, c := range grouped[symbol] {
				if c.Timeframe == a.cfg.Timeframe {
					series = append(series, c)
				}
			}
			if len(series) > 0 {
				data[symbol] = series
			}
		}
		return data, nil
	}

	var from, to time.Time
	var err error
	if s.from != "" {
		if from, err = time.Parse(time.RFC3339, s.from); err != nil {
			return nil, fmt.Errorf("invalid --from: %w", err)
		}
		to = time.Now().UTC()
		if s.to != "" {
			if to, err = time.Parse(time.RFC3339, s.to); err != nil {
				return nil, fmt.Errorf("invalid --to: %w", err)
			}
		}
	}

	for _, symbol := range a.cfg.Symbols {
		var series []candle.Candle
		if from.IsZero() {
			series, err = store.GetLatestCandles(ctx, symbol, a.cfg.Timeframe, a.cfg.HistoryLimit)
		} else {
			series, err = store.GetCandles(ctx, symbol, a.cfg.Timeframe, from, to)
		}
		if err != nil {
			return nil, err
		}
		if len(series) == 0 {
			a.logger.Warn().Str("symbol", symbol).Msg("load | no candles found")
			continue
		}
		data[symbol] = candle.SortByTime(series)
	}
	return data, nil
}

func newRouter(monitor *monitoring.Recorder) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", monitor.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	return r
}

// serveMetrics exposes monitor on the configured address until the returned
// func is called. An empty address disables it.
func (a *app) serveMetrics(monitor *monitoring.Recorder) func() {
	if a.cfg.MetricsAddr == "" {
		return func() {}
	}
	srv := &http.Server{
		Addr:              a.cfg.MetricsAddr,
		Handler:           newRouter(monitor),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info().Str("addr", srv.Addr).Msg("serveMetrics | metrics server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error().Err(err).Msg("serveMetrics | metrics server failed")
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("serveMetrics | shutdown failed")
		}
	}
}
