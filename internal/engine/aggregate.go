package engine

import (
	"time"

	"MarketPulse/internal/domain/models"
)

// Aggregator reads a window's state and produces a point-in-time snapshot.
// SMA, min/max and volume are computed over the ticks within smaWindowMinutes
// of the newest tick; the EMA is read straight from the window's accumulator.
type Aggregator struct {
	smaWindowMinutes int
	smaSpan          time.Duration
}

// NewAggregator creates an Aggregator with the given SMA horizon.
func NewAggregator(smaWindowMinutes int) *Aggregator {
	return &Aggregator{
		smaWindowMinutes: smaWindowMinutes,
		smaSpan:          time.Duration(smaWindowMinutes) * time.Minute,
	}
}

// Compute produces a snapshot from the window, or nil if the window is empty.
// It is a pure read: window state is never mutated.
func (a *Aggregator) Compute(w *Window) *models.Snapshot {
	if w == nil || len(w.ticks) == 0 {
		return nil
	}

	cutoff := w.newest.Add(-a.smaSpan)
	var (
		sum    float64
		volume int64
		count  int
		min    float64
		max    float64
	)
	for i := range w.ticks {
		t := &w.ticks[i]
		if t.Timestamp.Before(cutoff) {
			continue
		}
		if count == 0 {
			min, max = t.Price, t.Price
		} else {
			if t.Price < min {
				min = t.Price
			}
			if t.Price > max {
				max = t.Price
			}
		}
		sum += t.Price
		volume += t.Volume
		count++
	}
	if count == 0 {
		// The newest tick always falls inside its own horizon.
		return nil
	}

	ema, _ := w.EMA()
	return &models.Snapshot{
		Symbol:        w.symbol,
		CurrentPrice:  w.lastPrice,
		SMA:           sum / float64(count),
		EMA:           ema,
		Volume:        volume,
		MinPrice:      min,
		MaxPrice:      max,
		Timestamp:     w.newest,
		WindowMinutes: a.smaWindowMinutes,
	}
}
