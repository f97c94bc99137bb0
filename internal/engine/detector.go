package engine

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"

	"MarketPulse/internal/domain/models"
)

// DetectorConfig holds the threshold parameters for anomaly classification.
type DetectorConfig struct {
	// SpikeThresholdPercent is the absolute percentage move between
	// consecutive snapshots that triggers SpikeUp/SpikeDown.
	SpikeThresholdPercent float64
	// VolumeMultiplier scales the trailing average volume into the
	// HighVolume threshold.
	VolumeMultiplier float64
	// VolatilityThreshold is the number of standard deviations of price
	// deviation from the trailing mean that triggers Volatility.
	VolatilityThreshold float64
	// Lookback is the number of recent snapshots kept for the volatility
	// statistics and the trailing volume baseline.
	Lookback int
	// TrendHysteresis is the minimum |EMA-SMA| magnitude for a sign flip
	// to count as a trend reversal.
	TrendHysteresis float64
}

// SymbolState is the detector's per-symbol memory between cycles. It is
// created when the registry creates the symbol's window and discarded with it.
type SymbolState struct {
	prev      *models.Snapshot
	volumes   *rolling
	prices    *rolling
	trendSign int
}

// AnomalyDetector applies threshold rules to consecutive snapshots. Each rule
// is evaluated independently; one cycle may emit several alerts for a symbol,
// at most one per kind.
type AnomalyDetector struct {
	cfg DetectorConfig
}

// NewAnomalyDetector creates a detector with the given thresholds.
func NewAnomalyDetector(cfg DetectorConfig) *AnomalyDetector {
	if cfg.Lookback < 1 {
		cfg.Lookback = 20
	}
	return &AnomalyDetector{cfg: cfg}
}

// NewState creates fresh per-symbol detector state.
func (d *AnomalyDetector) NewState() *SymbolState {
	return &SymbolState{
		volumes: newRolling(d.cfg.Lookback),
		prices:  newRolling(d.cfg.Lookback),
	}
}

// Evaluate runs every rule against the snapshot and the symbol's prior state,
// then advances the state. On the first snapshot for a symbol no rule that
// needs a prior observation fires.
func (d *AnomalyDetector) Evaluate(st *SymbolState, s *models.Snapshot) []*models.Alert {
	var alerts []*models.Alert

	if st.prev != nil {
		if a := d.evalSpike(st, s); a != nil {
			alerts = append(alerts, a)
		}
		if a := d.evalTrend(st, s); a != nil {
			alerts = append(alerts, a)
		}
	}
	if a := d.evalVolume(st, s); a != nil {
		alerts = append(alerts, a)
	}
	if a := d.evalVolatility(st, s); a != nil {
		alerts = append(alerts, a)
	}

	// Trailing state advances after evaluation so every rule compared the
	// snapshot against history, not against itself.
	st.volumes.push(float64(s.Volume))
	st.prices.push(s.CurrentPrice)
	st.trendSign = sign(s.EMA - s.SMA)
	st.prev = s

	return alerts
}

func (d *AnomalyDetector) evalSpike(st *SymbolState, s *models.Snapshot) *models.Alert {
	prior := st.prev.CurrentPrice
	if prior == 0 {
		return nil
	}
	pct := (s.CurrentPrice - prior) / prior * 100

	switch {
	case pct >= d.cfg.SpikeThresholdPercent:
		return &models.Alert{
			Symbol:           s.Symbol,
			Kind:             models.SpikeUp,
			Threshold:        d.cfg.SpikeThresholdPercent,
			CurrentValue:     s.CurrentPrice,
			PercentageChange: pct,
			Details:          fmt.Sprintf("price rose %.2f%% (%.4f -> %.4f)", pct, prior, s.CurrentPrice),
			TriggeredAt:      s.Timestamp,
		}
	case pct <= -d.cfg.SpikeThresholdPercent:
		return &models.Alert{
			Symbol:           s.Symbol,
			Kind:             models.SpikeDown,
			Threshold:        d.cfg.SpikeThresholdPercent,
			CurrentValue:     s.CurrentPrice,
			PercentageChange: pct,
			Details:          fmt.Sprintf("price fell %.2f%% (%.4f -> %.4f)", pct, prior, s.CurrentPrice),
			TriggeredAt:      s.Timestamp,
		}
	}
	return nil
}

func (d *AnomalyDetector) evalVolume(st *SymbolState, s *models.Snapshot) *models.Alert {
	if st.volumes.len() == 0 {
		return nil
	}
	avg, err := stats.Mean(st.volumes.values())
	if err != nil || avg <= 0 {
		return nil
	}
	threshold := d.cfg.VolumeMultiplier * avg
	if float64(s.Volume) <= threshold {
		return nil
	}
	return &models.Alert{
		Symbol:       s.Symbol,
		Kind:         models.HighVolume,
		Threshold:    threshold,
		CurrentValue: float64(s.Volume),
		Details:      fmt.Sprintf("volume %d exceeds %.1fx trailing average %.1f", s.Volume, d.cfg.VolumeMultiplier, avg),
		TriggeredAt:  s.Timestamp,
	}
}

func (d *AnomalyDetector) evalVolatility(st *SymbolState, s *models.Snapshot) *models.Alert {
	if st.prices.len() < 2 {
		return nil
	}
	vals := st.prices.values()
	mean, err := stats.Mean(vals)
	if err != nil {
		return nil
	}
	sd, err := stats.StandardDeviationSample(vals)
	if err != nil || sd <= 0 {
		return nil
	}
	dev := math.Abs(s.CurrentPrice-mean) / sd
	if dev <= d.cfg.VolatilityThreshold {
		return nil
	}
	return &models.Alert{
		Symbol:       s.Symbol,
		Kind:         models.Volatility,
		Threshold:    d.cfg.VolatilityThreshold,
		CurrentValue: dev,
		Details:      fmt.Sprintf("price %.4f deviates %.2f sigma from trailing mean %.4f", s.CurrentPrice, dev, mean),
		TriggeredAt:  s.Timestamp,
	}
}

func (d *AnomalyDetector) evalTrend(st *SymbolState, s *models.Snapshot) *models.Alert {
	diff := s.EMA - s.SMA
	cur := sign(diff)
	if st.trendSign == 0 || cur == 0 || cur == st.trendSign {
		return nil
	}
	if math.Abs(diff) <= d.cfg.TrendHysteresis {
		// Inside the hysteresis band the crossing is treated as noise.
		return nil
	}
	direction := "bearish"
	if cur > 0 {
		direction = "bullish"
	}
	return &models.Alert{
		Symbol:       s.Symbol,
		Kind:         models.TrendReversal,
		Threshold:    d.cfg.TrendHysteresis,
		CurrentValue: diff,
		Details:      fmt.Sprintf("EMA/SMA crossover turned %s (ema-sma=%.4f)", direction, diff),
		TriggeredAt:  s.Timestamp,
	}
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
