package ranking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistory(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("default capacity", func(t *testing.T) {
		h := NewHistory(0)
		for i := 0; i < DefaultHistorySize+3; i++ {
			h.Add(base.Add(time.Duration(i)*time.Minute), map[string]Record{})
		}
		assert.Equal(t, DefaultHistorySize, h.Len())
	})

	t.Run("evicts the oldest snapshots", func(t *testing.T) {
		h := NewHistory(3)
		for i := 0; i < 5; i++ {
			h.Add(base.Add(time.Duration(i)*time.Minute), map[string]Record{"AAA": {OverallRank: i + 1}})
		}
		require.Equal(t, 3, h.Len())
		assert.Equal(t, base.Add(2*time.Minute), h.At(0).Timestamp)
		assert.Equal(t, 3, h.At(0).Rankings["AAA"].OverallRank)

		latest, ok := h.Latest()
		require.True(t, ok)
		assert.Equal(t, 5, latest.Rankings["AAA"].OverallRank)
	})

	t.Run("stores copies", func(t *testing.T) {
		h := NewHistory(2)
		rankings := map[string]Record{"AAA": {OverallRank: 1}}
		h.Add(base, rankings)
		rankings["AAA"] = Record{OverallRank: 7}
		rankings["BBB"] = Record{OverallRank: 2}

		assert.Equal(t, 1, h.At(0).Rankings["AAA"].OverallRank)
		assert.NotContains(t, h.At(0).Rankings, "BBB")
	})

	t.Run("empty", func(t *testing.T) {
		_, ok := NewHistory(2).Latest()
		assert.False(t, ok)
	})
}
