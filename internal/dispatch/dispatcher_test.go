package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"MarketPulse/internal/domain/models"
	applogger "MarketPulse/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingGateway struct {
	mu        sync.Mutex
	snapshots []*models.Snapshot
	alerts    []*models.Alert
	failures  int // fail this many calls before succeeding
}

func (g *recordingGateway) PushSnapshot(_ context.Context, s *models.Snapshot) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failures > 0 {
		g.failures--
		return errors.New("gateway unavailable")
	}
	g.snapshots = append(g.snapshots, s)
	return nil
}

func (g *recordingGateway) PushAlert(_ context.Context, a *models.Alert) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failures > 0 {
		g.failures--
		return errors.New("gateway unavailable")
	}
	g.alerts = append(g.alerts, a)
	return nil
}

func (g *recordingGateway) delivered() (int, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.snapshots), len(g.alerts)
}

type nopMetrics struct{}

func (nopMetrics) RecordTickIngested(string)       {}
func (nopMetrics) RecordTickRejected(string)       {}
func (nopMetrics) RecordSnapshot(string)           {}
func (nopMetrics) RecordAlert(string)              {}
func (nopMetrics) RecordCycleDuration(float64)     {}
func (nopMetrics) RecordQueueDepth(int)            {}
func (nopMetrics) RecordError(string)              {}
func (nopMetrics) RecordLastPrice(string, float64) {}
func (nopMetrics) RecordLatency(string, float64)   {}

func testLogger(t *testing.T) *applogger.Logger {
	t.Helper()
	l, err := applogger.New(&applogger.Config{Level: "error", Format: "console", Output: "stderr"})
	require.NoError(t, err)
	return l
}

func testSnapshot(symbol string) *models.Snapshot {
	return &models.Snapshot{
		Symbol:        symbol,
		CurrentPrice:  101.5,
		SMA:           100.2,
		EMA:           100.8,
		Volume:        4200,
		Timestamp:     time.Now().UTC(),
		WindowMinutes: 5,
	}
}

func TestDispatcherDeliversSnapshotAndAlerts(t *testing.T) {
	gw := &recordingGateway{}
	d := New(gw, nil, nopMetrics{}, testLogger(t), Config{BufferSize: 16})
	d.Start(context.Background())

	alert := &models.Alert{Symbol: "AAPL", Kind: models.SpikeUp, Threshold: 5, TriggeredAt: time.Now()}
	d.Enqueue(testSnapshot("AAPL"), []*models.Alert{alert})
	d.Close()

	snaps, alerts := gw.delivered()
	assert.Equal(t, 1, snaps)
	assert.Equal(t, 1, alerts)
	assert.Equal(t, "AAPL", gw.snapshots[0].Symbol)
	assert.Equal(t, models.SpikeUp, gw.alerts[0].Kind)
}

func TestDispatcherRetriesTransientFailures(t *testing.T) {
	gw := &recordingGateway{failures: 2}
	d := New(gw, nil, nopMetrics{}, testLogger(t), Config{
		BufferSize:  16,
		MaxAttempts: 3,
		BackoffMin:  time.Millisecond,
		BackoffMax:  5 * time.Millisecond,
	})
	d.Start(context.Background())

	d.Enqueue(testSnapshot("MSFT"), nil)
	d.Close()

	snaps, _ := gw.delivered()
	assert.Equal(t, 1, snaps, "third attempt should succeed")
}

func TestDispatcherGivesUpAfterMaxAttempts(t *testing.T) {
	gw := &recordingGateway{failures: 10}
	d := New(gw, nil, nopMetrics{}, testLogger(t), Config{
		BufferSize:  16,
		MaxAttempts: 2,
		BackoffMin:  time.Millisecond,
		BackoffMax:  5 * time.Millisecond,
	})
	d.Start(context.Background())

	d.Enqueue(testSnapshot("MSFT"), nil)
	d.Close()

	snaps, _ := gw.delivered()
	assert.Equal(t, 0, snaps)
}

func TestDispatcherDropsWhenQueueFull(t *testing.T) {
	gw := &recordingGateway{}
	d := New(gw, nil, nopMetrics{}, testLogger(t), Config{BufferSize: 1})
	// not started: the queue fills immediately

	d.Enqueue(testSnapshot("A"), nil)
	d.Enqueue(testSnapshot("B"), nil) // dropped, must not block

	d.Start(context.Background())
	d.Close()

	snaps, _ := gw.delivered()
	assert.Equal(t, 1, snaps)
	assert.Equal(t, "A", gw.snapshots[0].Symbol)
}

func TestDispatcherCloseDrainsBufferedResults(t *testing.T) {
	gw := &recordingGateway{}
	d := New(gw, nil, nopMetrics{}, testLogger(t), Config{BufferSize: 32})

	for i := 0; i < 10; i++ {
		d.Enqueue(testSnapshot("AAPL"), nil)
	}
	d.Start(context.Background())
	d.Close()

	snaps, _ := gw.delivered()
	assert.Equal(t, 10, snaps)
}
