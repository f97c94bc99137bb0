package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	applogger "MarketPulse/pkg/logger"
)

// ErrRegistryFull is returned when resolving a new symbol would exceed the
// configured capacity. Ticks for new symbols are rejected rather than
// evicting an active one.
var ErrRegistryFull = errors.New("symbol registry full")

// RegistryConfig configures window creation and eviction.
type RegistryConfig struct {
	SMAWindowMinutes    int
	EMAWindowMinutes    int
	OutOfOrderTolerance time.Duration
	// GraceCycles is the number of consecutive sweeps a symbol may be
	// missing from the active set before its window is evicted.
	GraceCycles int
	MaxSymbols  int
	// SeedSpan bounds how far back cold-start seeding reaches.
	SeedSpan  time.Duration
	SeedLimit int
}

// Entry couples one symbol's window with its detector state behind a single
// lock. Window mutation (tick append) and window reads (aggregation) for the
// same symbol are mutually exclusive; distinct symbols never contend.
type Entry struct {
	reg *SymbolRegistry

	mu     sync.Mutex
	window *Window
	state  *SymbolState
	missed int
}

// Append applies one tick to the symbol's window in arrival order.
func (e *Entry) Append(t *models.Tick) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.window.Append(t)
}

// Collect computes the symbol's snapshot and evaluates the anomaly rules in
// one exclusive section. A nil snapshot means the window held no ticks.
func (e *Entry) Collect() (*models.Snapshot, []*models.Alert) {
	e.mu.Lock()
	defer e.mu.Unlock()
	snap := e.reg.aggregator.Compute(e.window)
	if snap == nil {
		return nil, nil
	}
	return snap, e.reg.detector.Evaluate(e.state, snap)
}

// TickCount reports the number of retained ticks.
func (e *Entry) TickCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.window.Len()
}

// SymbolRegistry is the concurrency-safe mapping from symbol to its window
// and detector state. Windows are created lazily on first tick and evicted
// when a symbol stays absent from the supplied active set past the grace
// period. Registry-level synchronization covers only the map itself; all
// per-symbol work happens under the entry lock.
type SymbolRegistry struct {
	cfg        RegistryConfig
	aggregator *Aggregator
	detector   *AnomalyDetector
	history    domrepo.HistorySource
	log        *applogger.Logger

	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewSymbolRegistry creates an empty registry. history may be nil when no
// cold-start seeding source is available.
func NewSymbolRegistry(cfg RegistryConfig, agg *Aggregator, det *AnomalyDetector, history domrepo.HistorySource, log *applogger.Logger) *SymbolRegistry {
	if cfg.GraceCycles < 1 {
		cfg.GraceCycles = 2
	}
	return &SymbolRegistry{
		cfg:        cfg,
		aggregator: agg,
		detector:   det,
		history:    history,
		log:        log,
		entries:    make(map[string]*Entry),
	}
}

// Resolve returns the entry for symbol, creating it on first use. Newly
// created windows are seeded from the history source, best effort.
func (r *SymbolRegistry) Resolve(ctx context.Context, symbol string) (*Entry, error) {
	r.mu.RLock()
	e, ok := r.entries[symbol]
	r.mu.RUnlock()
	if ok {
		return e, nil
	}

	r.mu.Lock()
	if e, ok = r.entries[symbol]; ok {
		r.mu.Unlock()
		return e, nil
	}
	if r.cfg.MaxSymbols > 0 && len(r.entries) >= r.cfg.MaxSymbols {
		r.mu.Unlock()
		return nil, ErrRegistryFull
	}
	e = &Entry{
		reg:    r,
		window: NewWindow(symbol, r.cfg.SMAWindowMinutes, r.cfg.EMAWindowMinutes, r.cfg.OutOfOrderTolerance),
		state:  r.detector.NewState(),
	}
	r.entries[symbol] = e
	r.mu.Unlock()

	r.seed(ctx, symbol, e)
	return e, nil
}

// Lookup returns the entry for symbol without creating it.
func (r *SymbolRegistry) Lookup(symbol string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[symbol]
	return e, ok
}

// seed pre-populates a fresh window so SMA/EMA are defined right after a
// restart. Live ticks appended concurrently win over stale history.
func (r *SymbolRegistry) seed(ctx context.Context, symbol string, e *Entry) {
	if r.history == nil {
		return
	}
	ticks, err := r.history.RecentTicks(ctx, symbol, r.cfg.SeedSpan, r.cfg.SeedLimit)
	if err != nil {
		r.log.Warn("history seed failed",
			applogger.String("symbol", symbol), applogger.Error(err))
		return
	}
	if len(ticks) == 0 {
		return
	}
	e.mu.Lock()
	n := e.window.Seed(ticks)
	e.mu.Unlock()
	r.log.Debug("window seeded",
		applogger.String("symbol", symbol), applogger.Int("ticks", n))
}

// Symbols returns a snapshot of the registered symbols. The scheduler fixes
// this set at the start of a cycle; creations and removals become visible on
// the next iteration only.
func (r *SymbolRegistry) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries))
	for s := range r.entries {
		out = append(out, s)
	}
	return out
}

// Len reports the number of registered symbols.
func (r *SymbolRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Sweep marks symbols absent from the supplied active set and evicts those
// missing for GraceCycles consecutive sweeps, dropping their window and
// detector state. Returns the evicted symbols.
func (r *SymbolRegistry) Sweep(active []string) []string {
	set := make(map[string]struct{}, len(active))
	for _, s := range active {
		set[s] = struct{}{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	var evicted []string
	for sym, e := range r.entries {
		if _, ok := set[sym]; ok {
			e.missed = 0
			continue
		}
		e.missed++
		if e.missed >= r.cfg.GraceCycles {
			delete(r.entries, sym)
			evicted = append(evicted, sym)
		}
	}
	return evicted
}
