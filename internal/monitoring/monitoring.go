// Package monitoring exports engine activity as Prometheus metrics.
package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rank_trader"

// Recorder owns its registry so several can coexist in one process.
type Recorder struct {
	registry *prometheus.Registry

	cycles        *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	symbols       prometheus.Gauge
	failures      prometheus.Counter
	opportunities *prometheus.CounterVec
	publishes     *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec

	backtestBars     *prometheus.CounterVec
	backtestRuns     *prometheus.CounterVec
	backtestDuration prometheus.Histogram
	backtestTrades   *prometheus.CounterVec

	recordedBars prometheus.Counter
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,
		cycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "cycles_total",
			Help:      "Evaluation cycles by outcome",
		}, []string{"outcome"}),
		cycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of an evaluation cycle",
			Buckets:   prometheus.DefBuckets,
		}),
		symbols: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "ranked_symbols",
			Help:      "Symbols ranked in the last cycle",
		}),
		failures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "symbol_failures_total",
			Help:      "Symbols whose metrics could not be computed",
		}),
		opportunities: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "opportunities_total",
			Help:      "Opportunities detected by direction",
		}, []string{"direction"}),
		publishes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "publisher",
			Name:      "messages_total",
			Help:      "Published cycles by outcome",
		}, []string{"outcome"}),
		errorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Errors by kind",
		}, []string{"kind"}),
		backtestBars: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "bars_total",
			Help:      "Backtest bars evaluated by outcome",
		}, []string{"outcome"}),
		backtestRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "runs_total",
			Help:      "Backtest runs by final status",
		}, []string{"status"}),
		backtestDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "run_duration_seconds",
			Help:      "Duration of a backtest run",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		backtestTrades: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "trades_total",
			Help:      "Simulated trades by direction",
		}, []string{"direction"}),
		recordedBars: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recorder",
			Name:      "bars_total",
			Help:      "Historical bars recorded",
		}),
	}
}

func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func outcome(failed bool) string {
	if failed {
		return "failed"
	}
	return "ok"
}

func (r *Recorder) ObserveCycle(elapsed time.Duration, symbols, failures int, err error) {
	r.cycles.WithLabelValues(outcome(err != nil)).Inc()
	r.cycleDuration.Observe(elapsed.Seconds())
	if err == nil {
		r.symbols.Set(float64(symbols))
	}
	r.failures.Add(float64(failures))
}

func (r *Recorder) ObserveOpportunities(long, short int) {
	r.opportunities.WithLabelValues("long").Add(float64(long))
	r.opportunities.WithLabelValues("short").Add(float64(short))
}

func (r *Recorder) ObservePublish(err error) {
	r.publishes.WithLabelValues(outcome(err != nil)).Inc()
}

// ObserveError counts a non-fatal error such as a failed storage write.
func (r *Recorder) ObserveError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) ObserveBacktestBar(failed bool) {
	r.backtestBars.WithLabelValues(outcome(failed)).Inc()
}

func (r *Recorder) ObserveBacktestRun(status string, elapsed time.Duration, long, short int) {
	r.backtestRuns.WithLabelValues(status).Inc()
	r.backtestDuration.Observe(elapsed.Seconds())
	r.backtestTrades.WithLabelValues("long").Add(float64(long))
	r.backtestTrades.WithLabelValues("short").Add(float64(short))
}

func (r *Recorder) ObserveRecordedBar() {
	r.recordedBars.Inc()
}
