package models

import (
	"fmt"
	"time"
)

// AlertKind classifies a detected anomaly.
type AlertKind int

const (
	SpikeUp AlertKind = iota
	SpikeDown
	HighVolume
	Volatility
	TrendReversal
)

// String returns the wire token for the alert kind, matching the gateway
// contract (SPIKE_UP, SPIKE_DOWN, HIGH_VOLUME, VOLATILITY, TREND_REVERSAL).
func (k AlertKind) String() string {
	switch k {
	case SpikeUp:
		return "SPIKE_UP"
	case SpikeDown:
		return "SPIKE_DOWN"
	case HighVolume:
		return "HIGH_VOLUME"
	case Volatility:
		return "VOLATILITY"
	case TrendReversal:
		return "TREND_REVERSAL"
	default:
		return "UNKNOWN"
	}
}

// Alert is a classified anomaly event derived by comparing consecutive
// snapshots against configured thresholds. Created only by the detector;
// immutable; consumed once by the dispatcher.
type Alert struct {
	Symbol           string    `json:"symbol"`
	Kind             AlertKind `json:"kind"`
	Threshold        float64   `json:"threshold"`
	CurrentValue     float64   `json:"current_value"`
	PercentageChange float64   `json:"percentage_change"`
	Details          string    `json:"details"`
	TriggeredAt      time.Time `json:"triggered_at"`
}

// MarshalJSON serializes the kind as its wire token.
func (k AlertKind) MarshalJSON() ([]byte, error) {
	return []byte(`"` + k.String() + `"`), nil
}

// UnmarshalJSON accepts the wire tokens produced by MarshalJSON.
func (k *AlertKind) UnmarshalJSON(b []byte) error {
	switch string(b) {
	case `"SPIKE_UP"`:
		*k = SpikeUp
	case `"SPIKE_DOWN"`:
		*k = SpikeDown
	case `"HIGH_VOLUME"`:
		*k = HighVolume
	case `"VOLATILITY"`:
		*k = Volatility
	case `"TREND_REVERSAL"`:
		*k = TrendReversal
	default:
		return fmt.Errorf("unknown alert kind %s", b)
	}
	return nil
}
