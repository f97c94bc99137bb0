package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketPulse/internal/domain/models"
)

func testDetector() *AnomalyDetector {
	return NewAnomalyDetector(DetectorConfig{
		SpikeThresholdPercent: 5.0,
		VolumeMultiplier:      3.0,
		VolatilityThreshold:   2.0,
		Lookback:              20,
		TrendHysteresis:       0.05,
	})
}

func snap(price float64, volume int64, at time.Time) *models.Snapshot {
	return &models.Snapshot{
		Symbol:       "AAPL",
		CurrentPrice: price,
		SMA:          price,
		EMA:          price,
		Volume:       volume,
		Timestamp:    at,
	}
}

func kinds(alerts []*models.Alert) []models.AlertKind {
	out := make([]models.AlertKind, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, a.Kind)
	}
	return out
}

func TestDetectorFirstSnapshotWarmsUpSilently(t *testing.T) {
	d := testDetector()
	st := d.NewState()
	assert.Empty(t, d.Evaluate(st, snap(100, 1000, t0)))
}

func TestDetectorSpikeUp(t *testing.T) {
	d := testDetector()
	st := d.NewState()
	d.Evaluate(st, snap(100, 1000, t0))

	alerts := d.Evaluate(st, snap(106, 1000, t0.Add(time.Minute)))
	require.Len(t, alerts, 1)
	a := alerts[0]
	assert.Equal(t, models.SpikeUp, a.Kind)
	assert.InDelta(t, 6.0, a.PercentageChange, 1e-9)
	assert.Equal(t, 5.0, a.Threshold)
	assert.Equal(t, 106.0, a.CurrentValue)
}

func TestDetectorSpikeDown(t *testing.T) {
	d := testDetector()
	st := d.NewState()
	d.Evaluate(st, snap(100, 1000, t0))

	alerts := d.Evaluate(st, snap(94, 1000, t0.Add(time.Minute)))
	require.Len(t, alerts, 1)
	assert.Equal(t, models.SpikeDown, alerts[0].Kind)
	assert.InDelta(t, -6.0, alerts[0].PercentageChange, 1e-9)
}

func TestDetectorNoSpikeBelowThreshold(t *testing.T) {
	d := testDetector()
	st := d.NewState()
	d.Evaluate(st, snap(100, 1000, t0))

	alerts := d.Evaluate(st, snap(104, 1000, t0.Add(time.Minute)))
	assert.NotContains(t, kinds(alerts), models.SpikeUp)
	assert.NotContains(t, kinds(alerts), models.SpikeDown)
}

func TestDetectorHighVolume(t *testing.T) {
	d := testDetector()
	st := d.NewState()
	// Build a trailing average of exactly 1000.
	d.Evaluate(st, snap(100, 1000, t0))
	d.Evaluate(st, snap(100, 1000, t0.Add(time.Minute)))

	alerts := d.Evaluate(st, snap(100, 3001, t0.Add(2*time.Minute)))
	require.Contains(t, kinds(alerts), models.HighVolume)
	for _, a := range alerts {
		if a.Kind == models.HighVolume {
			assert.Equal(t, 3000.0, a.Threshold)
			assert.Equal(t, 3001.0, a.CurrentValue)
		}
	}
}

func TestDetectorVolumeAtThresholdDoesNotFire(t *testing.T) {
	d := testDetector()
	st := d.NewState()
	d.Evaluate(st, snap(100, 1000, t0))
	d.Evaluate(st, snap(100, 1000, t0.Add(time.Minute)))

	alerts := d.Evaluate(st, snap(100, 3000, t0.Add(2*time.Minute)))
	assert.NotContains(t, kinds(alerts), models.HighVolume)
}

func TestDetectorVolumeBaselineExcludesCurrentCycle(t *testing.T) {
	d := testDetector()
	st := d.NewState()
	d.Evaluate(st, snap(100, 1000, t0))

	// 3001 against a baseline of 1000 fires even though it will drag the
	// trailing average up for later cycles.
	alerts := d.Evaluate(st, snap(100, 3001, t0.Add(time.Minute)))
	require.Contains(t, kinds(alerts), models.HighVolume)

	// Next cycle's baseline is mean(1000, 3001) = 2000.5.
	alerts = d.Evaluate(st, snap(100, 6002, t0.Add(2*time.Minute)))
	var hv *models.Alert
	for _, a := range alerts {
		if a.Kind == models.HighVolume {
			hv = a
		}
	}
	require.NotNil(t, hv)
	assert.InDelta(t, 6001.5, hv.Threshold, 1e-9)
	assert.Equal(t, 6002.0, hv.CurrentValue)
}

func TestDetectorVolatilityBreakout(t *testing.T) {
	d := testDetector()
	st := d.NewState()
	// Tight trailing distribution around 100.
	prices := []float64{100, 100.1, 99.9, 100.05, 99.95, 100}
	for i, p := range prices {
		d.Evaluate(st, snap(p, 1000, t0.Add(time.Duration(i)*time.Minute)))
	}

	alerts := d.Evaluate(st, snap(103, 1000, t0.Add(10*time.Minute)))
	require.Contains(t, kinds(alerts), models.Volatility)
	for _, a := range alerts {
		if a.Kind == models.Volatility {
			assert.Equal(t, 2.0, a.Threshold)
			assert.Greater(t, a.CurrentValue, 2.0)
		}
	}
}

func TestDetectorVolatilityQuietMarketStaysSilent(t *testing.T) {
	d := testDetector()
	st := d.NewState()
	prices := []float64{100, 101, 99, 100.5, 99.5}
	for i, p := range prices {
		d.Evaluate(st, snap(p, 1000, t0.Add(time.Duration(i)*time.Minute)))
	}

	alerts := d.Evaluate(st, snap(100.2, 1000, t0.Add(10*time.Minute)))
	assert.NotContains(t, kinds(alerts), models.Volatility)
}

func TestDetectorTrendReversal(t *testing.T) {
	d := testDetector()
	st := d.NewState()

	bear := snap(100, 1000, t0)
	bear.EMA, bear.SMA = 99.0, 100.0 // ema-sma < 0
	d.Evaluate(st, bear)

	bull := snap(100, 1000, t0.Add(time.Minute))
	bull.EMA, bull.SMA = 100.5, 100.0 // sign flip, magnitude 0.5 > hysteresis
	alerts := d.Evaluate(st, bull)
	require.Contains(t, kinds(alerts), models.TrendReversal)
	for _, a := range alerts {
		if a.Kind == models.TrendReversal {
			assert.InDelta(t, 0.5, a.CurrentValue, 1e-9)
			assert.Equal(t, 0.05, a.Threshold)
		}
	}
}

func TestDetectorTrendReversalInsideHysteresisBand(t *testing.T) {
	d := testDetector()
	st := d.NewState()

	bear := snap(100, 1000, t0)
	bear.EMA, bear.SMA = 99.9, 100.0
	d.Evaluate(st, bear)

	noise := snap(100, 1000, t0.Add(time.Minute))
	noise.EMA, noise.SMA = 100.02, 100.0 // flip but |diff| <= 0.05
	alerts := d.Evaluate(st, noise)
	assert.NotContains(t, kinds(alerts), models.TrendReversal)
}

func TestDetectorTrendNoFlipNoAlert(t *testing.T) {
	d := testDetector()
	st := d.NewState()

	for i := 0; i < 3; i++ {
		s := snap(100, 1000, t0.Add(time.Duration(i)*time.Minute))
		s.EMA, s.SMA = 101.0, 100.0
		alerts := d.Evaluate(st, s)
		assert.NotContains(t, kinds(alerts), models.TrendReversal)
	}
}

func TestDetectorMultipleAlertsInOneCycle(t *testing.T) {
	d := testDetector()
	st := d.NewState()

	base := snap(100, 1000, t0)
	base.EMA, base.SMA = 99.0, 100.0
	d.Evaluate(st, base)
	d.Evaluate(st, snap(100, 1000, t0.Add(time.Minute)))

	hot := snap(110, 5000, t0.Add(2*time.Minute))
	hot.EMA, hot.SMA = 111.0, 110.0
	alerts := d.Evaluate(st, hot)
	ks := kinds(alerts)
	assert.Contains(t, ks, models.SpikeUp)
	assert.Contains(t, ks, models.HighVolume)

	// At most one alert per kind per cycle.
	seen := map[models.AlertKind]int{}
	for _, k := range ks {
		seen[k]++
	}
	for k, n := range seen {
		assert.Equal(t, 1, n, "kind %v fired %d times", k, n)
	}
}

func TestDetectorLookbackRingBounds(t *testing.T) {
	d := NewAnomalyDetector(DetectorConfig{
		SpikeThresholdPercent: 5,
		VolumeMultiplier:      3,
		VolatilityThreshold:   2,
		Lookback:              3,
		TrendHysteresis:       0.05,
	})
	st := d.NewState()
	for i := 0; i < 10; i++ {
		d.Evaluate(st, snap(100, 1000, t0.Add(time.Duration(i)*time.Minute)))
	}
	assert.Equal(t, 3, st.prices.len())
	assert.Equal(t, 3, st.volumes.len())
}
