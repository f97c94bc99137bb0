package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketPulse/internal/domain/models"
	applogger "MarketPulse/pkg/logger"
)

func testRegistry(t *testing.T, cfg RegistryConfig) *SymbolRegistry {
	t.Helper()
	log, err := applogger.New(&applogger.Config{Level: "error", Format: "console", Output: "stderr"})
	require.NoError(t, err)
	agg := NewAggregator(cfg.SMAWindowMinutes)
	det := testDetector()
	return NewSymbolRegistry(cfg, agg, det, nil, log)
}

func defaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		SMAWindowMinutes:    5,
		EMAWindowMinutes:    15,
		OutOfOrderTolerance: 2 * time.Second,
		GraceCycles:         2,
		MaxSymbols:          100,
	}
}

func TestRegistryCreatesWindowsLazily(t *testing.T) {
	r := testRegistry(t, defaultRegistryConfig())
	require.Equal(t, 0, r.Len())

	e, err := r.Resolve(context.Background(), "AAPL")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, 1, r.Len())

	again, err := r.Resolve(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Same(t, e, again, "resolve returns the same entry for a known symbol")
}

func TestRegistryCapacityRejectsNewSymbols(t *testing.T) {
	cfg := defaultRegistryConfig()
	cfg.MaxSymbols = 2
	r := testRegistry(t, cfg)

	_, err := r.Resolve(context.Background(), "AAPL")
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), "MSFT")
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), "GOOG")
	require.ErrorIs(t, err, ErrRegistryFull)

	// Existing symbols keep working.
	_, err = r.Resolve(context.Background(), "AAPL")
	require.NoError(t, err)
}

func TestRegistrySweepHonorsGracePeriod(t *testing.T) {
	r := testRegistry(t, defaultRegistryConfig())
	_, err := r.Resolve(context.Background(), "AAPL")
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), "MSFT")
	require.NoError(t, err)

	// First absence: within grace, nothing evicted.
	assert.Empty(t, r.Sweep([]string{"MSFT"}))
	assert.Equal(t, 2, r.Len())

	// Reappearing resets the counter.
	assert.Empty(t, r.Sweep([]string{"AAPL", "MSFT"}))
	assert.Empty(t, r.Sweep([]string{"MSFT"}))

	// Second consecutive absence: evicted.
	evicted := r.Sweep([]string{"MSFT"})
	assert.Equal(t, []string{"AAPL"}, evicted)
	assert.Equal(t, 1, r.Len())
	_, ok := r.Lookup("AAPL")
	assert.False(t, ok)
}

func TestRegistryEvictionDropsDetectorState(t *testing.T) {
	r := testRegistry(t, defaultRegistryConfig())
	e, err := r.Resolve(context.Background(), "AAPL")
	require.NoError(t, err)
	require.NoError(t, e.Append(tick("AAPL", 100, 10, t0)))
	_, _ = e.Collect()

	r.Sweep(nil)
	r.Sweep(nil)

	fresh, err := r.Resolve(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.NotSame(t, e, fresh)
	assert.Equal(t, 0, fresh.TickCount(), "recreated window starts empty")
	assert.Nil(t, fresh.state.prev, "recreated detector state is uninitialized")
}

func TestRegistryEntryCollect(t *testing.T) {
	r := testRegistry(t, defaultRegistryConfig())
	e, err := r.Resolve(context.Background(), "AAPL")
	require.NoError(t, err)

	snap, alerts := e.Collect()
	assert.Nil(t, snap, "empty window produces no snapshot")
	assert.Nil(t, alerts)

	for i, p := range []float64{100, 101, 102, 103, 104} {
		require.NoError(t, e.Append(tick("AAPL", p, 10, t0.Add(time.Duration(i)*time.Minute))))
	}
	snap, _ = e.Collect()
	require.NotNil(t, snap)
	assert.Equal(t, 102.0, snap.SMA)
}

func TestRegistryConcurrentResolveAndAppend(t *testing.T) {
	r := testRegistry(t, defaultRegistryConfig())
	symbols := []string{"AAPL", "MSFT", "GOOG", "AMZN"}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			sym := symbols[g%len(symbols)]
			for i := 0; i < 200; i++ {
				e, err := r.Resolve(context.Background(), sym)
				if err != nil {
					t.Error(err)
					return
				}
				_ = e.Append(&models.Tick{
					Symbol:    sym,
					Price:     100 + float64(i),
					Volume:    1,
					Timestamp: t0.Add(time.Duration(i) * time.Second),
				})
			}
		}(g)
	}

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			for _, sym := range r.Symbols() {
				if e, ok := r.Lookup(sym); ok {
					e.Collect()
				}
			}
			r.Sweep(symbols)
		}
		close(done)
	}()

	wg.Wait()
	<-done
	assert.Equal(t, len(symbols), r.Len())
}

type stubHistory struct {
	ticks []*models.Tick
}

func (s *stubHistory) RecentTicks(_ context.Context, _ string, _ time.Duration, _ int) ([]*models.Tick, error) {
	return s.ticks, nil
}

func TestRegistrySeedsNewWindowsFromHistory(t *testing.T) {
	cfg := defaultRegistryConfig()
	log, err := applogger.New(&applogger.Config{Level: "error", Format: "console", Output: "stderr"})
	require.NoError(t, err)
	hist := &stubHistory{ticks: []*models.Tick{
		tick("AAPL", 100, 5, t0),
		tick("AAPL", 101, 5, t0.Add(time.Minute)),
	}}
	r := NewSymbolRegistry(cfg, NewAggregator(cfg.SMAWindowMinutes), testDetector(), hist, log)

	e, err := r.Resolve(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 2, e.TickCount(), "cold start pre-populates the window")

	snap, _ := e.Collect()
	require.NotNil(t, snap)
	assert.Equal(t, 100.5, snap.SMA)
}
