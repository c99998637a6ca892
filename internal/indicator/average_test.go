package indicator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertSeries(t *testing.T, expected, actual []float64) {
	t.Helper()
	require.Len(t, actual, len(expected))
	for i := range expected {
		if math.IsNaN(expected[i]) {
			assert.True(t, math.IsNaN(actual[i]), "Expected NaN at index %d", i)
			continue
		}
		assert.InDelta(t, expected[i], actual[i], 1e-9, "mismatch at index %d", i)
	}
}

func TestSMA(t *testing.T) {
	nan := math.NaN()
	assertSeries(t, []float64{nan, nan, 2, 3, 4}, SMA([]float64{1, 2, 3, 4, 5}, 3))
	assertSeries(t, []float64{nan, nan}, SMA([]float64{1, 2}, 3))
}

func TestEMA(t *testing.T) {
	nan := math.NaN()
	assertSeries(t, []float64{nan, nan, 2, 3, 4, 5}, EMA([]float64{1, 2, 3, 4, 5, 6}, 3))
	assertSeries(t, []float64{nan, nan, 4, 7}, EMA([]float64{3, 4, 5, 10}, 3))
	assertSeries(t, []float64{nan}, EMA([]float64{1}, 3))
}

func TestEMAState_MatchesBatch(t *testing.T) {
	values := []float64{3, 4, 5, 10, 8, 7, 12}
	full := EMA(values, 3)
	st := EMAState{Period: 3}
	for i, v := range values {
		got := st.Next(v)
		if math.IsNaN(full[i]) {
			assert.True(t, math.IsNaN(got))
			continue
		}
		assert.InDelta(t, full[i], got, 1e-12)
	}
}
