package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/amirphl/rank-trader/internal/monitoring"
	"github.com/amirphl/rank-trader/internal/recorder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSymbols = 24

// writeFixtures writes a candle CSV and a config that logs to a file and
// keeps the metrics server off.
func writeFixtures(t *testing.T) (cfgPath, candlesPath string) {
	t.Helper()
	t.Setenv("DB_CONN_STR", "")
	dir := t.TempDir()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	var b strings.Builder
	b.WriteString("symbol,timeframe,timestamp,open,high,low,close,volume\n")
	var symbols []string
	for s := range testSymbols {
		name := fmt.Sprintf("S%02d", s)
		symbols = append(symbols, name)
		for i := range 60 {
			close := 100 + (i*(s+3)+5*s)%17 + (i*s)%5
			fmt.Fprintf(&b, "%s,1m,%s,%d,%d,%d,%d,%d\n", name,
				base.Add(time.Duration(i)*time.Minute).Format(time.RFC3339),
				close, close+1+(i+s)%3, close-1-(i*s)%2, close, 50+((i*7+s*11)%23)*10)
		}
	}
	candlesPath = filepath.Join(dir, "candles.csv")
	require.NoError(t, os.WriteFile(candlesPath, []byte(b.String()), 0o644))

	cfg := fmt.Sprintf(`timeframe: "1m"
symbols: [%s]
history_limit: 60
metric:
  volume_baseline_period: 5
  momentum_period: 3
  zscore_period: 5
  supertrend_period: 3
  supertrend_multiplier: 1.0
  workers: 2
log: { level: "warn", format: "json", output: %q }
metrics_addr: ""
`, strings.Join(symbols, ", "), filepath.Join(dir, "test.log"))
	cfgPath = filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))
	return cfgPath, candlesPath
}

func execute(args ...string) error {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&strings.Builder{})
	return root.ExecuteContext(context.Background())
}

func TestBacktestCommand(t *testing.T) {
	cfgPath, candlesPath := writeFixtures(t)
	out := filepath.Join(t.TempDir(), "trades.csv")

	err := execute("--config", cfgPath, "backtest", "--candles", candlesPath,
		"--start", "5", "--end", "49", "--max-bars", "5", "--csv", out)
	require.NoError(t, err)

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Greater(t, len(rows), 1)
	assert.Equal(t, "backtest_id", rows[0][0])
	assert.Regexp(t, `^backtest_\d{8}_\d{6}_[0-9a-f]{8}$`, rows[1][0])
}

func TestRecordCommand(t *testing.T) {
	cfgPath, candlesPath := writeFixtures(t)

	require.NoError(t, execute("--config", cfgPath, "record", "--candles", candlesPath, "--start", "5", "--step", "5"))

	err := execute("--config", cfgPath, "record", "--candles", candlesPath, "--start", "70")
	assert.ErrorIs(t, err, recorder.ErrInvalidRange)
}

func TestImportCommand(t *testing.T) {
	cfgPath, candlesPath := writeFixtures(t)
	require.NoError(t, execute("--config", cfgPath, "import", candlesPath))
	assert.Error(t, execute("--config", cfgPath, "import", filepath.Join(t.TempDir(), "missing.csv")))
}

func TestRootCommand_RejectsInvalidOverrides(t *testing.T) {
	cfgPath, candlesPath := writeFixtures(t)

	err := execute("--config", cfgPath, "--timeframe", "7m", "backtest", "--candles", candlesPath)
	assert.ErrorContains(t, err, `unsupported timeframe "7m"`)

	err = execute("--config", cfgPath, "--symbols", " , ", "backtest", "--candles", candlesPath)
	assert.ErrorContains(t, err, "at least one symbol is required")
}

func TestMigrateCommand_NeedsConnection(t *testing.T) {
	cfgPath, _ := writeFixtures(t)
	assert.ErrorContains(t, execute("--config", cfgPath, "migrate"), "conn_str")
}

func TestRouter(t *testing.T) {
	r := newRouter(monitoring.New())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "rank_trader_")

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/metrics", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
