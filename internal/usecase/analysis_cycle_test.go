package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"MarketPulse/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	mu        sync.Mutex
	snapshots []*models.Snapshot
	alerts    []*models.Alert
}

func (s *captureSink) Enqueue(snap *models.Snapshot, alerts []*models.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, snap)
	s.alerts = append(s.alerts, alerts...)
}

type captureState struct {
	mu        sync.Mutex
	snapshots map[string]*models.Snapshot
	alerts    []*models.Alert
}

func newCaptureState() *captureState {
	return &captureState{snapshots: make(map[string]*models.Snapshot)}
}

func (s *captureState) SetSnapshot(_ context.Context, snap *models.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snap.Symbol] = snap
}

func (s *captureState) AddAlerts(_ context.Context, alerts []*models.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, alerts...)
}

type stubSymbolSource struct {
	active []string
	err    error
	calls  int
}

func (s *stubSymbolSource) Active(context.Context) ([]string, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.active, nil
}

func TestRunCycleDeliversSnapshots(t *testing.T) {
	reg := testRegistry(t, 10)
	sink := &captureSink{}
	state := newCaptureState()
	cycle := NewAnalysisCycle(reg, sink, state, nil, newCountingMetrics(), testLogger(t), time.Minute, 2)

	ctx := context.Background()
	for i, sym := range []string{"AAPL", "MSFT"} {
		entry, err := reg.Resolve(ctx, sym)
		require.NoError(t, err)
		require.NoError(t, entry.Append(&models.Tick{
			Symbol:    sym,
			Price:     100 + float64(i),
			Volume:    10,
			Timestamp: base,
		}))
	}

	cycle.RunCycle(ctx)

	require.Len(t, sink.snapshots, 2)
	syms := []string{sink.snapshots[0].Symbol, sink.snapshots[1].Symbol}
	assert.ElementsMatch(t, []string{"AAPL", "MSFT"}, syms)
	assert.Len(t, state.snapshots, 2)
}

func TestRunCycleSkipsEmptyWindows(t *testing.T) {
	reg := testRegistry(t, 10)
	sink := &captureSink{}
	cycle := NewAnalysisCycle(reg, sink, nil, nil, newCountingMetrics(), testLogger(t), time.Minute, 2)

	ctx := context.Background()
	_, err := reg.Resolve(ctx, "AAPL")
	require.NoError(t, err)

	cycle.RunCycle(ctx)
	assert.Empty(t, sink.snapshots)
}

func TestRunCycleEmitsSpikeAlert(t *testing.T) {
	reg := testRegistry(t, 10)
	sink := &captureSink{}
	m := newCountingMetrics()
	cycle := NewAnalysisCycle(reg, sink, nil, nil, m, testLogger(t), time.Minute, 1)

	ctx := context.Background()
	entry, err := reg.Resolve(ctx, "AAPL")
	require.NoError(t, err)

	require.NoError(t, entry.Append(&models.Tick{Symbol: "AAPL", Price: 100, Volume: 10, Timestamp: base}))
	cycle.RunCycle(ctx)

	// +10% between cycles, above the 5% spike threshold
	require.NoError(t, entry.Append(&models.Tick{Symbol: "AAPL", Price: 110, Volume: 10, Timestamp: base.Add(30 * time.Second)}))
	cycle.RunCycle(ctx)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.NotEmpty(t, sink.alerts)
	kinds := make([]models.AlertKind, 0, len(sink.alerts))
	for _, a := range sink.alerts {
		kinds = append(kinds, a.Kind)
	}
	assert.Contains(t, kinds, models.SpikeUp)
}

func TestSweepEvictsIdleSymbols(t *testing.T) {
	reg := testRegistry(t, 10)
	sink := &captureSink{}
	src := &stubSymbolSource{active: []string{"AAPL"}}
	cycle := NewAnalysisCycle(reg, sink, nil, src, newCountingMetrics(), testLogger(t), time.Minute, 1)

	ctx := context.Background()
	for _, sym := range []string{"AAPL", "MSFT"} {
		entry, err := reg.Resolve(ctx, sym)
		require.NoError(t, err)
		require.NoError(t, entry.Append(&models.Tick{Symbol: sym, Price: 100, Volume: 10, Timestamp: base}))
	}

	// MSFT absent from the active set; two grace cycles before eviction
	cycle.RunCycle(ctx)
	_, ok := reg.Lookup("MSFT")
	assert.True(t, ok, "first miss is within grace")

	cycle.RunCycle(ctx)
	cycle.RunCycle(ctx)
	_, ok = reg.Lookup("MSFT")
	assert.False(t, ok, "evicted after grace cycles elapse")

	_, ok = reg.Lookup("AAPL")
	assert.True(t, ok)
}

func TestSweepSkippedWhenSymbolSourceFails(t *testing.T) {
	reg := testRegistry(t, 10)
	sink := &captureSink{}
	src := &stubSymbolSource{err: errors.New("clickhouse down")}
	cycle := NewAnalysisCycle(reg, sink, nil, src, newCountingMetrics(), testLogger(t), time.Minute, 1)

	ctx := context.Background()
	entry, err := reg.Resolve(ctx, "AAPL")
	require.NoError(t, err)
	require.NoError(t, entry.Append(&models.Tick{Symbol: "AAPL", Price: 100, Volume: 10, Timestamp: base}))

	for i := 0; i < 5; i++ {
		cycle.RunCycle(ctx)
	}

	_, ok := reg.Lookup("AAPL")
	assert.True(t, ok, "no eviction without a trustworthy active set")
	assert.Equal(t, 5, src.calls)
}

func TestKafkaTicksHandlerNormalizesTimestamps(t *testing.T) {
	reg := testRegistry(t, 10)
	m := newCountingMetrics()
	proc := NewIngestProcessor(reg, nil, m, testLogger(t))
	h := NewKafkaTicksHandler("market.ticks", proc, m)

	msg := []byte(`{"symbol":"AAPL","t":1741615200000,"c":101.5,"v":250}`)
	require.NoError(t, h.Handle(context.Background(), msg))

	entry, ok := reg.Lookup("AAPL")
	require.True(t, ok)
	assert.Equal(t, 1, entry.TickCount())
	assert.Equal(t, 1, m.ingested["AAPL"])
}

func TestKafkaTicksHandlerRejectsMalformedPayload(t *testing.T) {
	reg := testRegistry(t, 10)
	m := newCountingMetrics()
	proc := NewIngestProcessor(reg, nil, m, testLogger(t))
	h := NewKafkaTicksHandler("market.ticks", proc, m)

	err := h.Handle(context.Background(), []byte(`{not json`))
	require.Error(t, err)
	assert.Equal(t, 1, m.errors["consumer_unmarshal"])
}
