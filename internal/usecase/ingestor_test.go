package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/engine"
	applogger "MarketPulse/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingMetrics struct {
	mu       sync.Mutex
	ingested map[string]int
	rejected map[string]int
	errors   map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{
		ingested: make(map[string]int),
		rejected: make(map[string]int),
		errors:   make(map[string]int),
	}
}

func (m *countingMetrics) RecordTickIngested(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ingested[symbol]++
}

func (m *countingMetrics) RecordTickRejected(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejected[reason]++
}

func (m *countingMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[kind]++
}

func (m *countingMetrics) RecordSnapshot(string)           {}
func (m *countingMetrics) RecordAlert(string)              {}
func (m *countingMetrics) RecordCycleDuration(float64)     {}
func (m *countingMetrics) RecordQueueDepth(int)            {}
func (m *countingMetrics) RecordLastPrice(string, float64) {}
func (m *countingMetrics) RecordLatency(string, float64)   {}

func testLogger(t *testing.T) *applogger.Logger {
	t.Helper()
	l, err := applogger.New(&applogger.Config{Level: "error", Format: "console", Output: "stderr"})
	require.NoError(t, err)
	return l
}

func testRegistry(t *testing.T, maxSymbols int) *engine.SymbolRegistry {
	t.Helper()
	cfg := engine.RegistryConfig{
		SMAWindowMinutes:    5,
		EMAWindowMinutes:    15,
		OutOfOrderTolerance: 2 * time.Second,
		GraceCycles:         2,
		MaxSymbols:          maxSymbols,
	}
	agg := engine.NewAggregator(cfg.SMAWindowMinutes)
	det := engine.NewAnomalyDetector(engine.DetectorConfig{
		SpikeThresholdPercent: 5,
		VolumeMultiplier:      3,
		VolatilityThreshold:   2,
		Lookback:              20,
		TrendHysteresis:       0.05,
	})
	return engine.NewSymbolRegistry(cfg, agg, det, nil, testLogger(t))
}

var base = time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)

func TestIngestProcessorAcceptsValidTick(t *testing.T) {
	reg := testRegistry(t, 10)
	m := newCountingMetrics()
	p := NewIngestProcessor(reg, nil, m, testLogger(t))

	err := p.Process(context.Background(), &models.Tick{Symbol: "AAPL", Price: 100, Volume: 10, Timestamp: base})
	require.NoError(t, err)

	assert.Equal(t, 1, m.ingested["AAPL"])
	entry, ok := reg.Lookup("AAPL")
	require.True(t, ok)
	assert.Equal(t, 1, entry.TickCount())
}

func TestIngestProcessorSwallowsOutOfOrderTicks(t *testing.T) {
	reg := testRegistry(t, 10)
	m := newCountingMetrics()
	p := NewIngestProcessor(reg, nil, m, testLogger(t))
	ctx := context.Background()

	require.NoError(t, p.Process(ctx, &models.Tick{Symbol: "AAPL", Price: 100, Volume: 10, Timestamp: base}))
	// 5s behind the newest tick, beyond the 2s tolerance
	err := p.Process(ctx, &models.Tick{Symbol: "AAPL", Price: 99, Volume: 10, Timestamp: base.Add(-5 * time.Second)})
	require.NoError(t, err, "stale ticks are dropped, not errors")

	assert.Equal(t, 1, m.rejected["out_of_order"])
	entry, _ := reg.Lookup("AAPL")
	assert.Equal(t, 1, entry.TickCount())
}

func TestIngestProcessorSwallowsInvalidTicks(t *testing.T) {
	reg := testRegistry(t, 10)
	m := newCountingMetrics()
	p := NewIngestProcessor(reg, nil, m, testLogger(t))

	err := p.Process(context.Background(), &models.Tick{Symbol: "AAPL", Price: -1, Volume: 10, Timestamp: base})
	require.NoError(t, err)
	assert.Equal(t, 1, m.rejected["invalid"])
	assert.Equal(t, 0, m.ingested["AAPL"])
}

func TestIngestProcessorRegistryFull(t *testing.T) {
	reg := testRegistry(t, 1)
	m := newCountingMetrics()
	p := NewIngestProcessor(reg, nil, m, testLogger(t))
	ctx := context.Background()

	require.NoError(t, p.Process(ctx, &models.Tick{Symbol: "AAPL", Price: 100, Volume: 1, Timestamp: base}))
	err := p.Process(ctx, &models.Tick{Symbol: "MSFT", Price: 200, Volume: 1, Timestamp: base})
	require.NoError(t, err, "capacity overflow drops the tick without failing the stream")

	assert.Equal(t, 1, m.rejected["registry_full"])
	_, ok := reg.Lookup("MSFT")
	assert.False(t, ok)

	// existing symbols keep working
	require.NoError(t, p.Process(ctx, &models.Tick{Symbol: "AAPL", Price: 101, Volume: 1, Timestamp: base.Add(time.Second)}))
	assert.Equal(t, 2, m.ingested["AAPL"])
}

func TestIngestProcessorRejectsAfterClose(t *testing.T) {
	reg := testRegistry(t, 10)
	p := NewIngestProcessor(reg, nil, newCountingMetrics(), testLogger(t))

	p.Close()
	err := p.Process(context.Background(), &models.Tick{Symbol: "AAPL", Price: 100, Volume: 1, Timestamp: base})
	assert.ErrorIs(t, err, ErrIngestClosed)
}

// recoveringStream fails its first read loop immediately; the second one
// delivers a tick and stays open.
type recoveringStream struct {
	mu         sync.Mutex
	reads      int
	reconnects int
}

func (s *recoveringStream) Connect(ctx context.Context) error   { return nil }
func (s *recoveringStream) Subscribe(ctx context.Context) error { return nil }
func (s *recoveringStream) Close() error                        { return nil }
func (s *recoveringStream) IsConnected() bool                   { return true }

func (s *recoveringStream) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconnects++
	return nil
}

func (s *recoveringStream) Read(ctx context.Context) (<-chan *models.Tick, <-chan error) {
	s.mu.Lock()
	s.reads++
	n := s.reads
	s.mu.Unlock()

	ticks := make(chan *models.Tick, 4)
	errs := make(chan error, 1)
	if n == 1 {
		errs <- context.DeadlineExceeded
		close(ticks)
		close(errs)
		return ticks, errs
	}
	ticks <- &models.Tick{Symbol: "AAPL", Price: 100, Volume: 1, Timestamp: base}
	return ticks, errs
}

func TestTickIngestorRestartsReadLoopAfterStreamError(t *testing.T) {
	reg := testRegistry(t, 10)
	m := newCountingMetrics()
	proc := NewIngestProcessor(reg, nil, m, testLogger(t))
	src := &recoveringStream{}
	ing := NewTickIngestor(src, proc, m, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, ing.Start(ctx))

	require.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.ingested["AAPL"] == 1
	}, time.Second, 10*time.Millisecond, "ticks must flow again after the stream recovers")

	src.mu.Lock()
	defer src.mu.Unlock()
	assert.Equal(t, 1, src.reconnects)
	assert.Equal(t, 2, src.reads)
}

func TestIngestProcessorForwardsToArchive(t *testing.T) {
	reg := testRegistry(t, 10)
	ar := &captureArchive{}
	w := NewArchiveWriter(ar, newCountingMetrics(), testLogger(t), 1, time.Second, 16)
	ctx := context.Background()
	w.Start(ctx)

	p := NewIngestProcessor(reg, w, newCountingMetrics(), testLogger(t))
	require.NoError(t, p.Process(ctx, &models.Tick{Symbol: "AAPL", Price: 100, Volume: 1, Timestamp: base}))
	w.Close()

	batches := ar.snapshot()
	require.Len(t, batches, 1)
	assert.Equal(t, "AAPL", batches[0][0].Symbol)
}
