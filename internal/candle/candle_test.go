package candle

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandle_Validate(t *testing.T) {
	now := time.Now().Truncate(time.Minute)
	valid := Candle{
		Timestamp: now,
		Open:      100,
		High:      110,
		Low:       95,
		Close:     105,
		Volume:    12,
		Symbol:    "BTCUSDT",
		Timeframe: "1m",
		Source:    "test",
	}

	tests := []struct {
		name      string
		mutate    func(c *Candle)
		expectErr bool
		malformed bool
	}{
		{name: "valid candle", mutate: func(c *Candle) {}},
		{name: "zero timestamp", mutate: func(c *Candle) { c.Timestamp = time.Time{} }, expectErr: true},
		{name: "negative price", mutate: func(c *Candle) { c.Low = -1 }, expectErr: true, malformed: true},
		{name: "high below low", mutate: func(c *Candle) { c.High = 90 }, expectErr: true, malformed: true},
		{name: "NaN close", mutate: func(c *Candle) { c.Close = math.NaN() }, expectErr: true, malformed: true},
		{name: "infinite volume", mutate: func(c *Candle) { c.Volume = math.Inf(1) }, expectErr: true, malformed: true},
		{name: "negative volume", mutate: func(c *Candle) { c.Volume = -3 }, expectErr: true, malformed: true},
		{name: "open outside range", mutate: func(c *Candle) { c.Open = 120 }, expectErr: true},
		{name: "close outside range", mutate: func(c *Candle) { c.Close = 90 }, expectErr: true},
		{name: "empty symbol", mutate: func(c *Candle) { c.Symbol = "" }, expectErr: true},
		{name: "empty timeframe", mutate: func(c *Candle) { c.Timeframe = "" }, expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			err := c.Validate()
			if !tt.expectErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			if tt.malformed {
				assert.ErrorIs(t, err, ErrMalformed)
				assert.ErrorIs(t, c.CheckOHLCV(), ErrMalformed)
			}
		})
	}
}

func TestCandle_CheckOHLCVIgnoresMetadata(t *testing.T) {
	c := Candle{Open: 1, High: 2, Low: 1, Close: 1.5}
	assert.NoError(t, c.CheckOHLCV())
	assert.Error(t, c.Validate())
}

func TestMidPriceAndCloses(t *testing.T) {
	candles := []Candle{
		{High: 12, Low: 8, Close: 11},
		{High: 20, Low: 10, Close: 19},
	}
	assert.Equal(t, 10.0, candles[0].MidPrice())
	assert.Equal(t, 15.0, candles[1].MidPrice())
	assert.Equal(t, []float64{11, 19}, Closes(candles))
	assert.Empty(t, Closes(nil))
}

func TestSortByTime(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := []Candle{
		{Timestamp: base.Add(2 * time.Minute), Close: 3},
		{Timestamp: base, Close: 1},
		{Timestamp: base.Add(time.Minute), Close: 2},
		{Timestamp: base.Add(time.Minute), Close: 22},
	}

	sorted := SortByTime(candles)
	require.Len(t, sorted, 3)
	assert.Equal(t, 1.0, sorted[0].Close)
	assert.Equal(t, 22.0, sorted[1].Close)
	assert.Equal(t, 3.0, sorted[2].Close)
}

func TestSymbols(t *testing.T) {
	data := map[string][]Candle{"ETHUSDT": nil, "ADAUSDT": nil, "BTCUSDT": nil}
	assert.Equal(t, []string{"ADAUSDT", "BTCUSDT", "ETHUSDT"}, Symbols(data))
}
