package engine

import (
	"errors"
	"fmt"
	"math"
	"time"

	"MarketPulse/internal/domain/models"
)

var (
	// ErrInvalidTick marks ticks with a non-positive price or negative volume.
	ErrInvalidTick = errors.New("invalid tick")
	// ErrOutOfOrder marks ticks older than the newest retained tick beyond tolerance.
	ErrOutOfOrder = errors.New("tick out of order")
)

// Window owns one symbol's bounded tick history plus the incremental EMA
// accumulator. Ticks are retained for max(smaWindowMinutes, emaWindowMinutes)
// relative to the newest tick; the EMA is a running recurrence over every
// accepted tick and survives eviction of the raw ticks backing it.
//
// Window is not safe for concurrent use; callers serialize access per symbol.
type Window struct {
	symbol    string
	retention time.Duration
	tolerance time.Duration

	ticks     []models.Tick
	newest    time.Time
	lastPrice float64

	ema      float64
	emaAlpha float64
	emaInit  bool
}

// NewWindow creates a Window for symbol. alpha = 2 / (emaWindowMinutes + 1).
func NewWindow(symbol string, smaWindowMinutes, emaWindowMinutes int, tolerance time.Duration) *Window {
	retain := smaWindowMinutes
	if emaWindowMinutes > retain {
		retain = emaWindowMinutes
	}
	return &Window{
		symbol:    symbol,
		retention: time.Duration(retain) * time.Minute,
		tolerance: tolerance,
		emaAlpha:  2.0 / (float64(emaWindowMinutes) + 1.0),
	}
}

// Append validates and accepts a tick, updates the EMA recurrence and evicts
// ticks that fell out of the retention horizon. Rejected ticks leave the
// window and its derived statistics untouched.
func (w *Window) Append(t *models.Tick) error {
	if t == nil {
		return fmt.Errorf("%w: nil tick", ErrInvalidTick)
	}
	if t.Price <= 0 || math.IsNaN(t.Price) || math.IsInf(t.Price, 0) {
		return fmt.Errorf("%w: price %v", ErrInvalidTick, t.Price)
	}
	if t.Volume < 0 {
		return fmt.Errorf("%w: volume %d", ErrInvalidTick, t.Volume)
	}
	if t.Timestamp.IsZero() {
		return fmt.Errorf("%w: zero timestamp", ErrInvalidTick)
	}
	if !w.newest.IsZero() && t.Timestamp.Before(w.newest.Add(-w.tolerance)) {
		return fmt.Errorf("%w: %s behind newest %s", ErrOutOfOrder,
			t.Timestamp.Format(time.RFC3339Nano), w.newest.Format(time.RFC3339Nano))
	}

	w.insert(*t)
	if !t.Timestamp.Before(w.newest) {
		w.newest = t.Timestamp
		w.lastPrice = t.Price
	}

	if !w.emaInit {
		w.ema = t.Price
		w.emaInit = true
	} else {
		w.ema = t.Price*w.emaAlpha + w.ema*(1-w.emaAlpha)
	}

	w.evict()
	return nil
}

// insert places t at its timestamp position so the slice stays ascending.
// Jitter is bounded by the tolerance, so only the last few ticks can be
// newer than t; a backward scan from the tail finds the slot.
func (w *Window) insert(t models.Tick) {
	i := len(w.ticks)
	for i > 0 && w.ticks[i-1].Timestamp.After(t.Timestamp) {
		i--
	}
	w.ticks = append(w.ticks, models.Tick{})
	copy(w.ticks[i+1:], w.ticks[i:])
	w.ticks[i] = t
}

// evict drops ticks older than the retention horizon relative to the newest
// timestamp. The EMA accumulator is never reset here.
func (w *Window) evict() {
	cutoff := w.newest.Add(-w.retention)
	cut := 0
	for cut < len(w.ticks) && w.ticks[cut].Timestamp.Before(cutoff) {
		cut++
	}
	if cut > 0 {
		w.ticks = append(w.ticks[:0], w.ticks[cut:]...)
	}
}

// Seed pre-populates the window from a time-ordered history slice, skipping
// ticks the live window already superseded. Used on cold start only.
func (w *Window) Seed(ticks []*models.Tick) int {
	accepted := 0
	for _, t := range ticks {
		if err := w.Append(t); err == nil {
			accepted++
		}
	}
	return accepted
}

// Symbol returns the symbol the window belongs to.
func (w *Window) Symbol() string { return w.symbol }

// Len returns the number of retained ticks.
func (w *Window) Len() int { return len(w.ticks) }

// Newest returns the newest accepted timestamp.
func (w *Window) Newest() time.Time { return w.newest }

// EMA returns the running EMA value and whether it has been seeded.
func (w *Window) EMA() (float64, bool) { return w.ema, w.emaInit }
