package models

import "time"

// Snapshot is one cycle's computed aggregate view of a symbol.
// Produced by the aggregator once per symbol per cycle; immutable.
type Snapshot struct {
	Symbol        string    `json:"symbol"`
	CurrentPrice  float64   `json:"current_price"`
	SMA           float64   `json:"sma"`
	EMA           float64   `json:"ema"`
	Volume        int64     `json:"volume"`
	MinPrice      float64   `json:"min_price"`
	MaxPrice      float64   `json:"max_price"`
	Timestamp     time.Time `json:"timestamp"`
	WindowMinutes int       `json:"window_minutes"`
}
