package usecase

import (
	"context"
	"sync"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	"MarketPulse/internal/engine"
	applogger "MarketPulse/pkg/logger"
)

// ResultSink receives the output of one symbol evaluation.
type ResultSink interface {
	Enqueue(s *models.Snapshot, alerts []*models.Alert)
}

// StateStore keeps the latest snapshot and recent alerts for read APIs.
type StateStore interface {
	SetSnapshot(ctx context.Context, s *models.Snapshot)
	AddAlerts(ctx context.Context, alerts []*models.Alert)
}

// AnalysisCycle periodically evaluates every tracked symbol: it computes
// a snapshot, runs anomaly detection, publishes results, and sweeps
// symbols that stopped trading.
type AnalysisCycle struct {
	registry *engine.SymbolRegistry
	sink     ResultSink
	state    StateStore
	symbols  domrepo.SymbolSource
	metrics  domrepo.Metrics
	log      *applogger.Logger

	interval time.Duration
	workers  int

	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// NewAnalysisCycle creates a new AnalysisCycle instance.
func NewAnalysisCycle(
	registry *engine.SymbolRegistry,
	sink ResultSink,
	state StateStore,
	symbols domrepo.SymbolSource,
	metrics domrepo.Metrics,
	log *applogger.Logger,
	interval time.Duration,
	workers int,
) *AnalysisCycle {
	if interval <= 0 {
		interval = time.Minute
	}
	if workers <= 0 {
		workers = 4
	}
	return &AnalysisCycle{
		registry: registry,
		sink:     sink,
		state:    state,
		symbols:  symbols,
		metrics:  metrics,
		log:      log,
		interval: interval,
		workers:  workers,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the cycle loop.
func (c *AnalysisCycle) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stopCh:
				return
			case <-ticker.C:
				c.RunCycle(ctx)
			}
		}
	}()
}

// Stop terminates the cycle loop and waits for the current cycle.
func (c *AnalysisCycle) Stop() {
	c.once.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

// RunCycle evaluates every symbol tracked at the start of the cycle.
// Symbols appearing mid-cycle are picked up on the next one.
func (c *AnalysisCycle) RunCycle(ctx context.Context) {
	start := time.Now()
	symbols := c.registry.Symbols()

	jobs := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sym := range jobs {
				c.evaluate(ctx, sym)
			}
		}()
	}
	for _, sym := range symbols {
		jobs <- sym
	}
	close(jobs)
	wg.Wait()

	c.sweep(ctx)
	c.metrics.RecordCycleDuration(time.Since(start).Seconds())
}

// evaluate collects one symbol's snapshot and alerts. A panic in the
// evaluation of one symbol must not take down the cycle.
func (c *AnalysisCycle) evaluate(ctx context.Context, symbol string) {
	defer func() {
		if r := recover(); r != nil {
			c.metrics.RecordError("cycle_panic")
			c.log.Error("symbol evaluation panicked",
				applogger.String("symbol", symbol),
				applogger.Any("panic", r))
		}
	}()

	entry, ok := c.registry.Lookup(symbol)
	if !ok {
		return
	}
	snap, alerts := entry.Collect()
	if snap == nil {
		return
	}

	c.metrics.RecordSnapshot(snap.Symbol)
	for _, a := range alerts {
		c.metrics.RecordAlert(a.Kind.String())
	}
	if c.state != nil {
		c.state.SetSnapshot(ctx, snap)
		c.state.AddAlerts(ctx, alerts)
	}
	c.sink.Enqueue(snap, alerts)
}

func (c *AnalysisCycle) sweep(ctx context.Context) {
	if c.symbols == nil {
		return
	}
	active, err := c.symbols.Active(ctx)
	if err != nil {
		// without a trustworthy active set a sweep would evict everything
		c.metrics.RecordError("symbol_source")
		c.log.Warn("active symbol lookup failed, skipping sweep", applogger.Error(err))
		return
	}
	evicted := c.registry.Sweep(active)
	if len(evicted) > 0 {
		c.log.Info("evicted idle symbols",
			applogger.Int("count", len(evicted)),
			applogger.Strings("symbols", evicted))
	}
}
