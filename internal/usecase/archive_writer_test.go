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

type captureArchive struct {
	mu      sync.Mutex
	batches [][]*models.Tick
	failN   int
}

func (a *captureArchive) StoreBatch(_ context.Context, ticks []*models.Tick) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failN > 0 {
		a.failN--
		return errors.New("archive unavailable")
	}
	cp := make([]*models.Tick, len(ticks))
	copy(cp, ticks)
	a.batches = append(a.batches, cp)
	return nil
}

func (a *captureArchive) Store(ctx context.Context, t *models.Tick) error {
	return a.StoreBatch(ctx, []*models.Tick{t})
}

func (a *captureArchive) Query(context.Context, string, time.Time, time.Time, int) ([]*models.Tick, error) {
	return nil, nil
}

func (a *captureArchive) Health(context.Context) error { return nil }
func (a *captureArchive) Close() error                 { return nil }

func (a *captureArchive) snapshot() [][]*models.Tick {
	a.mu.Lock()
	defer a.mu.Unlock()
	cp := make([][]*models.Tick, len(a.batches))
	copy(cp, a.batches)
	return cp
}

func (a *captureArchive) total() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, b := range a.batches {
		n += len(b)
	}
	return n
}

func archiveTick(symbol string, i int) *models.Tick {
	return &models.Tick{
		Symbol:    symbol,
		Price:     100 + float64(i),
		Volume:    10,
		Timestamp: base.Add(time.Duration(i) * time.Second),
	}
}

func TestArchiveWriterFlushesOnBatchSize(t *testing.T) {
	ar := &captureArchive{}
	w := NewArchiveWriter(ar, newCountingMetrics(), testLogger(t), 3, time.Minute, 64)
	w.Start(context.Background())
	defer w.Close()

	for i := 0; i < 3; i++ {
		w.Enqueue(archiveTick("AAPL", i))
	}

	require.Eventually(t, func() bool {
		return len(ar.snapshot()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Len(t, ar.snapshot()[0], 3)
}

func TestArchiveWriterFlushesOnTimer(t *testing.T) {
	ar := &captureArchive{}
	w := NewArchiveWriter(ar, newCountingMetrics(), testLogger(t), 100, 50*time.Millisecond, 64)
	w.Start(context.Background())
	defer w.Close()

	w.Enqueue(archiveTick("AAPL", 0))
	w.Enqueue(archiveTick("AAPL", 1))

	require.Eventually(t, func() bool {
		return ar.total() == 2
	}, time.Second, 10*time.Millisecond)
}

func TestArchiveWriterCloseDrainsBuffer(t *testing.T) {
	ar := &captureArchive{}
	w := NewArchiveWriter(ar, newCountingMetrics(), testLogger(t), 100, time.Minute, 64)
	w.Start(context.Background())

	for i := 0; i < 10; i++ {
		w.Enqueue(archiveTick("MSFT", i))
	}
	w.Close()

	assert.Equal(t, 10, ar.total())
}

func TestArchiveWriterDropsWhenBufferFull(t *testing.T) {
	ar := &captureArchive{}
	m := newCountingMetrics()
	// not started, so the buffer never drains
	w := NewArchiveWriter(ar, m, testLogger(t), 100, time.Minute, 2)

	for i := 0; i < 5; i++ {
		w.Enqueue(archiveTick("AAPL", i))
	}

	m.mu.Lock()
	dropped := m.errors["archive_buffer_full"]
	m.mu.Unlock()
	assert.Equal(t, 3, dropped)
}

func TestArchiveWriterRecordsFlushFailure(t *testing.T) {
	ar := &captureArchive{failN: 1}
	m := newCountingMetrics()
	w := NewArchiveWriter(ar, m, testLogger(t), 2, time.Minute, 64)
	w.Start(context.Background())

	w.Enqueue(archiveTick("AAPL", 0))
	w.Enqueue(archiveTick("AAPL", 1))

	require.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.errors["archive_flush"] == 1
	}, time.Second, 10*time.Millisecond)
}
