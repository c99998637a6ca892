package indicator

import (
	"math"
	"testing"

	"github.com/amirphl/rank-trader/internal/candle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMomentum(t *testing.T) {
	nan := math.NaN()
	assertSeries(t, []float64{nan, nan, 2, 2, -1}, Momentum([]float64{1, 2, 3, 4, 2}, 2))
	assertSeries(t, []float64{nan, nan}, Momentum([]float64{1, 2}, 2))
}

func TestPriceChangePercentage(t *testing.T) {
	nan := math.NaN()
	candles := []candle.Candle{
		{Open: 100, High: 110, Low: 90, Close: 105},
		{Open: 105, High: 120, Low: 100, Close: 110},
		{Open: 110, High: 125, Low: 100, Close: 99},
	}

	tests := []struct {
		name     string
		period   int
		mode     ChangeMode
		expected []float64
	}{
		{name: "close-to-close", period: 1, mode: CloseToClose, expected: []float64{nan, 110.0/105*100 - 100, -10}},
		{name: "close-to-close two bars", period: 2, mode: CloseToClose, expected: []float64{nan, nan, 99.0/105*100 - 100}},
		{name: "open-to-close", period: 1, mode: OpenToClose, expected: []float64{nan, 110.0/105*100 - 100, -10}},
		{name: "high-to-low", period: 1, mode: HighToLow, expected: []float64{nan, 100.0/120*100 - 100, -20}},
		{name: "insufficient data", period: 3, mode: CloseToClose, expected: []float64{nan, nan, nan}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := PriceChangePercentage(candles, tt.period, tt.mode)
			require.NoError(t, err)
			assertSeries(t, tt.expected, result)
		})
	}

	t.Run("unknown mode fails before computing", func(t *testing.T) {
		result, err := PriceChangePercentage(candles, 1, ChangeMode("low-to-high"))
		assert.ErrorIs(t, err, ErrInvalidMode)
		assert.Nil(t, result)
	})

	t.Run("non-positive period", func(t *testing.T) {
		_, err := PriceChangePercentage(candles, 0, CloseToClose)
		assert.Error(t, err)
	})
}
