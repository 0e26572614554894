package indicators

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/gridbot/market"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestRSIExtremes(t *testing.T) {
	t.Parallel()

	up := make([]float64, 30)
	down := make([]float64, 30)
	for i := range up {
		up[i] = 1 + float64(i)*0.01
		down[i] = 2 - float64(i)*0.01
	}
	assert.InDelta(t, 100, RSI(up, 14), 1e-6)
	assert.InDelta(t, 0, RSI(down, 14), 1e-6)
	assert.Zero(t, RSI(up[:14], 14), "not enough data")

	mixed := []float64{44.34, 44.09, 44.15, 43.61, 44.33, 44.83, 45.10, 45.42, 45.84, 46.08, 45.89, 46.03, 45.61, 46.28, 46.28}
	v := RSI(mixed, 14)
	assert.Greater(t, v, 50.0)
	assert.Less(t, v, 100.0)
}

func TestDailyRSIBucketsByDay(t *testing.T) {
	t.Parallel()

	r := NewDailyRSI(14)
	assert.Equal(t, "RSI(14,1d)", r.Name())
	assert.Equal(t, 15, r.Warmup())
	assert.Nil(t, Current(r))

	// Hourly samples over 20 days; each day closes higher than the last.
	var closes []float64
	for d := 0; d < 20; d++ {
		for h := 0; h < 24; h++ {
			price := 1 + float64(d)*0.01 + float64(h)*0.0001
			r.Update(market.Sample{Time: t0.Add(time.Duration(d*24+h) * time.Hour), Price: price})
		}
		closes = append(closes, 1+float64(d)*0.01+23*0.0001)
	}

	assert.Equal(t, 20, r.Days())
	require.True(t, r.Ready())
	assert.InDelta(t, RSI(closes, 14), r.Value(), 1e-9)
	assert.InDelta(t, 100, *Current(r), 1e-6)
}

func TestDailyRSIWarmup(t *testing.T) {
	t.Parallel()

	r := NewDailyRSI(3)
	for d := 0; d < 3; d++ {
		r.Update(market.Sample{Time: t0.Add(time.Duration(d) * 24 * time.Hour), Price: 1})
		assert.False(t, r.Ready(), "day %d", d)
	}
	r.Update(market.Sample{Time: t0.Add(3 * 24 * time.Hour), Price: 1})
	assert.True(t, r.Ready())

	r.Update(market.Sample{Time: t0.Add(4 * 24 * time.Hour), Price: -1})
	assert.Equal(t, 4, r.Days(), "invalid samples are ignored")

	r.Reset()
	assert.Zero(t, r.Days())
	assert.False(t, r.Ready())
	assert.Zero(t, r.Value())
}
