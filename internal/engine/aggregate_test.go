package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregatorEmptyWindowProducesNoSnapshot(t *testing.T) {
	w := NewWindow("AAPL", 5, 15, time.Second)
	assert.Nil(t, NewAggregator(5).Compute(w))
}

func TestAggregatorConstantPriceSMA(t *testing.T) {
	w := NewWindow("AAPL", 5, 15, time.Second)
	for i := 0; i < 10; i++ {
		require.NoError(t, w.Append(tick("AAPL", 42.5, 100, t0.Add(time.Duration(i)*time.Minute))))
	}

	snap := NewAggregator(5).Compute(w)
	require.NotNil(t, snap)
	assert.Equal(t, 42.5, snap.SMA)
	assert.Equal(t, 42.5, snap.MinPrice)
	assert.Equal(t, 42.5, snap.MaxPrice)
}

func TestAggregatorFiveMinuteRamp(t *testing.T) {
	w := NewWindow("AAPL", 5, 15, time.Second)
	for i, p := range []float64{100, 101, 102, 103, 104} {
		require.NoError(t, w.Append(tick("AAPL", p, 10, t0.Add(time.Duration(i)*time.Minute))))
	}

	snap := NewAggregator(5).Compute(w)
	require.NotNil(t, snap)
	assert.Equal(t, "AAPL", snap.Symbol)
	assert.Equal(t, 102.0, snap.SMA)
	assert.Equal(t, 100.0, snap.MinPrice)
	assert.Equal(t, 104.0, snap.MaxPrice)
	assert.Equal(t, 104.0, snap.CurrentPrice)
	assert.Equal(t, int64(50), snap.Volume)
	assert.Equal(t, t0.Add(4*time.Minute), snap.Timestamp)
	assert.Equal(t, 5, snap.WindowMinutes)
}

func TestAggregatorSMAIgnoresOlderRetainedTicks(t *testing.T) {
	// Retention is 15m but the SMA horizon is 5m: ticks between 5 and 15
	// minutes old back the EMA only.
	w := NewWindow("AAPL", 5, 15, time.Second)
	require.NoError(t, w.Append(tick("AAPL", 10, 1, t0)))
	require.NoError(t, w.Append(tick("AAPL", 200, 7, t0.Add(10*time.Minute))))
	require.NoError(t, w.Append(tick("AAPL", 202, 3, t0.Add(11*time.Minute))))

	snap := NewAggregator(5).Compute(w)
	require.NotNil(t, snap)
	assert.Equal(t, 201.0, snap.SMA)
	assert.Equal(t, 200.0, snap.MinPrice)
	assert.Equal(t, int64(10), snap.Volume)
}

func TestAggregatorComputeIsIdempotent(t *testing.T) {
	w := NewWindow("AAPL", 5, 15, time.Second)
	for i, p := range []float64{100, 101.3, 99.8, 104.2} {
		require.NoError(t, w.Append(tick("AAPL", p, int64(i+1), t0.Add(time.Duration(i)*time.Minute))))
	}

	agg := NewAggregator(5)
	first := agg.Compute(w)
	second := agg.Compute(w)
	require.NotNil(t, first)
	assert.Equal(t, *first, *second, "compute on an unmodified window is bit-identical")
	assert.Equal(t, 4, w.Len(), "compute must not mutate the window")
}
