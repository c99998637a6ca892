package monitoring

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/amirphl/rank-trader/internal/backtest"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ backtest.Observer = (*Recorder)(nil)

func TestRecorder_Cycles(t *testing.T) {
	r := New()

	r.ObserveCycle(120*time.Millisecond, 40, 2, nil)
	r.ObserveCycle(80*time.Millisecond, 0, 0, errors.New("storage down"))
	r.ObserveOpportunities(3, 1)
	r.ObserveOpportunities(1, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.cycles.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.cycles.WithLabelValues("failed")))
	assert.Equal(t, 40.0, testutil.ToFloat64(r.symbols))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.failures))
	assert.Equal(t, 4.0, testutil.ToFloat64(r.opportunities.WithLabelValues("long")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.opportunities.WithLabelValues("short")))
}

func TestRecorder_Backtest(t *testing.T) {
	r := New()

	for i := range 5 {
		r.ObserveBacktestBar(i == 2)
	}
	r.ObserveBacktestRun(string(backtest.StatusDone), 3*time.Second, 10, 4)

	assert.Equal(t, 4.0, testutil.ToFloat64(r.backtestBars.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.backtestBars.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.backtestRuns.WithLabelValues("done")))
	assert.Equal(t, 10.0, testutil.ToFloat64(r.backtestTrades.WithLabelValues("long")))
	assert.Equal(t, 4.0, testutil.ToFloat64(r.backtestTrades.WithLabelValues("short")))
}

func TestRecorder_Handler(t *testing.T) {
	r := New()
	r.ObservePublish(nil)
	r.ObserveError("storage")
	r.ObserveRecordedBar()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `rank_trader_publisher_messages_total{outcome="ok"} 1`)
	assert.Contains(t, body, `rank_trader_errors_total{kind="storage"} 1`)
	assert.Contains(t, body, "rank_trader_recorder_bars_total 1")
	assert.Contains(t, body, "go_goroutines")
}

func TestNew_IndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.ObserveRecordedBar()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.recordedBars))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.recordedBars))
}
