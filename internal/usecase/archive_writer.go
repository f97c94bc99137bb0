package usecase

import (
	"context"
	"sync"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	applogger "MarketPulse/pkg/logger"
)

// ArchiveWriter batches accepted ticks and flushes them to the tick
// archive in the background, keeping inserts off the hot ingest path.
type ArchiveWriter struct {
	archive domrepo.TickArchive
	metrics domrepo.Metrics
	log     *applogger.Logger

	batchSz int
	batchTO time.Duration

	in     chan *models.Tick
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// NewArchiveWriter creates a new ArchiveWriter instance.
func NewArchiveWriter(archive domrepo.TickArchive, metrics domrepo.Metrics, log *applogger.Logger, batchSz int, batchTO time.Duration, bufSize int) *ArchiveWriter {
	if batchSz <= 0 {
		batchSz = 100
	}
	if batchTO <= 0 {
		batchTO = 5 * time.Second
	}
	if bufSize <= 0 {
		bufSize = 10000
	}
	return &ArchiveWriter{
		archive: archive,
		metrics: metrics,
		log:     log,
		batchSz: batchSz,
		batchTO: batchTO,
		in:      make(chan *models.Tick, bufSize),
		stopCh:  make(chan struct{}),
	}
}

// Start launches the background batcher.
func (w *ArchiveWriter) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Enqueue hands a tick to the batcher without blocking. Ticks are
// dropped when the buffer is full; the archive is best-effort.
func (w *ArchiveWriter) Enqueue(t *models.Tick) {
	select {
	case w.in <- t:
	default:
		w.metrics.RecordError("archive_buffer_full")
	}
}

func (w *ArchiveWriter) run(ctx context.Context) {
	defer w.wg.Done()

	batch := make([]*models.Tick, 0, w.batchSz)
	timer := time.NewTimer(w.batchTO)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := w.archive.StoreBatch(ctx, batch); err != nil {
			w.metrics.RecordError("archive_flush")
			w.log.Error("archive batch flush failed",
				applogger.Error(err),
				applogger.Int("batch_size", len(batch)))
		} else {
			w.metrics.RecordLatency("archive_flush", time.Since(start).Seconds())
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-w.stopCh:
			// drain whatever is buffered before the final flush
			for {
				select {
				case t := <-w.in:
					if t != nil {
						batch = append(batch, t)
						if len(batch) >= w.batchSz {
							flush()
						}
					}
				default:
					flush()
					return
				}
			}
		case t := <-w.in:
			if t == nil {
				continue
			}
			batch = append(batch, t)
			if len(batch) >= w.batchSz {
				flush()
				timer.Reset(w.batchTO)
			}
		case <-timer.C:
			flush()
			timer.Reset(w.batchTO)
		}
	}
}

// Close stops the batcher, flushing buffered ticks first.
func (w *ArchiveWriter) Close() {
	w.once.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}
