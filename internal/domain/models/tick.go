package models

import "time"

// Tick is one timestamped price/volume observation for a symbol.
// Immutable once created.
type Tick struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Volume    int64     `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}
