package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketPulse/internal/domain/models"
)

func tick(symbol string, price float64, volume int64, ts time.Time) *models.Tick {
	return &models.Tick{Symbol: symbol, Price: price, Volume: volume, Timestamp: ts}
}

var t0 = time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)

func TestWindowRejectsInvalidTicks(t *testing.T) {
	w := NewWindow("AAPL", 5, 15, 2*time.Second)

	require.ErrorIs(t, w.Append(tick("AAPL", 0, 10, t0)), ErrInvalidTick)
	require.ErrorIs(t, w.Append(tick("AAPL", -1.5, 10, t0)), ErrInvalidTick)
	require.ErrorIs(t, w.Append(tick("AAPL", 100, -1, t0)), ErrInvalidTick)
	assert.Equal(t, 0, w.Len())
	_, ok := w.EMA()
	assert.False(t, ok, "rejected ticks must not seed the EMA")
}

func TestWindowRejectsOutOfOrderBeyondTolerance(t *testing.T) {
	w := NewWindow("AAPL", 5, 15, 2*time.Second)
	require.NoError(t, w.Append(tick("AAPL", 100, 10, t0)))
	require.NoError(t, w.Append(tick("AAPL", 101, 10, t0.Add(time.Minute))))

	emaBefore, _ := w.EMA()
	err := w.Append(tick("AAPL", 50, 10, t0.Add(time.Minute).Add(-3*time.Second)))
	require.ErrorIs(t, err, ErrOutOfOrder)

	assert.Equal(t, 2, w.Len(), "rejected tick must not change the window")
	emaAfter, _ := w.EMA()
	assert.Equal(t, emaBefore, emaAfter, "rejected tick must not move the EMA")
}

func TestWindowAcceptsJitterWithinTolerance(t *testing.T) {
	w := NewWindow("AAPL", 5, 15, 2*time.Second)
	require.NoError(t, w.Append(tick("AAPL", 100, 10, t0)))
	require.NoError(t, w.Append(tick("AAPL", 101, 10, t0.Add(-time.Second))))
	assert.Equal(t, 2, w.Len())
	assert.Equal(t, t0, w.Newest(), "newest timestamp tracks the max, not the last arrival")
}

func TestWindowKeepsTicksAscendingUnderJitter(t *testing.T) {
	w := NewWindow("AAPL", 5, 5, 2*time.Second)
	require.NoError(t, w.Append(tick("AAPL", 100, 10, t0)))
	require.NoError(t, w.Append(tick("AAPL", 101, 10, t0.Add(-time.Second))))

	require.Equal(t, 2, w.Len())
	for i := 1; i < len(w.ticks); i++ {
		assert.False(t, w.ticks[i].Timestamp.Before(w.ticks[i-1].Timestamp),
			"ticks must stay ascending by timestamp")
	}

	// push the jitter tick past the horizon; it must not evade eviction
	require.NoError(t, w.Append(tick("AAPL", 102, 10, t0.Add(5*time.Minute-500*time.Millisecond))))
	cutoff := w.Newest().Add(-5 * time.Minute)
	assert.Equal(t, 2, w.Len())
	for _, tk := range w.ticks {
		assert.False(t, tk.Timestamp.Before(cutoff), "tick %v survived past the horizon", tk.Timestamp)
	}
}

func TestWindowEMASeedAndRecurrence(t *testing.T) {
	const emaMinutes = 15
	alpha := 2.0 / (emaMinutes + 1.0)
	w := NewWindow("AAPL", 5, emaMinutes, time.Second)

	require.NoError(t, w.Append(tick("AAPL", 100, 1, t0)))
	ema, ok := w.EMA()
	require.True(t, ok)
	assert.Equal(t, 100.0, ema, "EMA is seeded by the first tick's price")

	prices := []float64{102, 99.5, 103.25, 101}
	want := 100.0
	for i, p := range prices {
		want = p*alpha + want*(1-alpha)
		require.NoError(t, w.Append(tick("AAPL", p, 1, t0.Add(time.Duration(i+1)*time.Minute))))
		got, _ := w.EMA()
		assert.InDelta(t, want, got, 1e-12)
	}
}

func TestWindowEvictionHorizon(t *testing.T) {
	// retention = max(sma, ema) = 15 minutes
	w := NewWindow("AAPL", 5, 15, time.Second)
	for i := 0; i < 30; i++ {
		require.NoError(t, w.Append(tick("AAPL", 100+float64(i), 1, t0.Add(time.Duration(i)*time.Minute))))
	}

	cutoff := w.Newest().Add(-15 * time.Minute)
	assert.Equal(t, 16, w.Len(), "ticks within the horizon are always present")
	for _, tk := range w.ticks {
		assert.False(t, tk.Timestamp.Before(cutoff), "tick %v survived past the horizon", tk.Timestamp)
	}
}

func TestWindowEvictionPreservesEMA(t *testing.T) {
	w := NewWindow("AAPL", 1, 1, time.Second)
	var want float64
	alpha := 2.0 / 2.0

	require.NoError(t, w.Append(tick("AAPL", 100, 1, t0)))
	want = 100
	for i := 1; i <= 10; i++ {
		p := 100 + float64(i)
		want = p*alpha + want*(1-alpha)
		require.NoError(t, w.Append(tick("AAPL", p, 1, t0.Add(time.Duration(i)*time.Minute))))
	}

	assert.LessOrEqual(t, w.Len(), 2, "aggressive retention keeps the buffer tiny")
	got, ok := w.EMA()
	require.True(t, ok)
	assert.InDelta(t, want, got, 1e-12, "EMA runs over all ticks ever seen, not the retained set")
}

func TestWindowSeedSkipsStaleTicks(t *testing.T) {
	w := NewWindow("AAPL", 5, 15, time.Second)
	require.NoError(t, w.Append(tick("AAPL", 110, 1, t0.Add(10*time.Minute))))

	n := w.Seed([]*models.Tick{
		tick("AAPL", 100, 1, t0),                     // stale, behind live tick
		tick("AAPL", 111, 1, t0.Add(11*time.Minute)), // newer, accepted
		tick("AAPL", 0, 1, t0.Add(12*time.Minute)),   // invalid
	})
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, w.Len())
}
