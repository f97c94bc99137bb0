package usecase

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	"MarketPulse/internal/engine"
	mid "MarketPulse/internal/middleware"
	applogger "MarketPulse/pkg/logger"
)

// ErrIngestClosed is returned for ticks arriving after shutdown began.
var ErrIngestClosed = errors.New("ingest closed")

// IngestProcessor routes validated ticks into per-symbol windows and
// enqueues accepted ticks for archival.
type IngestProcessor struct {
	registry *engine.SymbolRegistry
	archive  *ArchiveWriter
	metrics  domrepo.Metrics
	log      *applogger.Logger
	closed   atomic.Bool
}

// NewIngestProcessor creates a new IngestProcessor instance.
func NewIngestProcessor(registry *engine.SymbolRegistry, archive *ArchiveWriter, metrics domrepo.Metrics, log *applogger.Logger) *IngestProcessor {
	return &IngestProcessor{registry: registry, archive: archive, metrics: metrics, log: log}
}

// Process appends one tick into its symbol window. Rejections from the
// window boundary are recorded and swallowed so a bad producer cannot
// stall the stream loop.
func (p *IngestProcessor) Process(ctx context.Context, t *models.Tick) error {
	if p.closed.Load() {
		return ErrIngestClosed
	}
	if t == nil {
		return engine.ErrInvalidTick
	}

	start := time.Now()
	entry, err := p.registry.Resolve(ctx, t.Symbol)
	if err != nil {
		if errors.Is(err, engine.ErrRegistryFull) {
			p.metrics.RecordTickRejected("registry_full")
			p.log.Warn("tick dropped, registry at capacity", applogger.String("symbol", t.Symbol))
			return nil
		}
		return err
	}

	if err := entry.Append(t); err != nil {
		switch {
		case errors.Is(err, engine.ErrOutOfOrder):
			p.metrics.RecordTickRejected("out_of_order")
			p.log.Debug("stale tick rejected",
				applogger.String("symbol", t.Symbol),
				applogger.Any("timestamp", t.Timestamp))
		case errors.Is(err, engine.ErrInvalidTick):
			p.metrics.RecordTickRejected("invalid")
		default:
			p.metrics.RecordError("ingest")
			return err
		}
		return nil
	}

	p.metrics.RecordTickIngested(t.Symbol)
	p.metrics.RecordLastPrice(t.Symbol, t.Price)
	if p.archive != nil {
		p.archive.Enqueue(t)
	}
	p.metrics.RecordLatency("ingest", time.Since(start).Seconds())
	return nil
}

// Close marks the processor as shut down. Subsequent Process calls fail
// with ErrIngestClosed instead of silently losing ticks.
func (p *IngestProcessor) Close() {
	p.closed.Store(true)
}

// TickIngestor collects ticks from the market stream and feeds the
// ingest pipeline.
type TickIngestor struct {
	stream  domrepo.MarketStream
	proc    *IngestProcessor
	metrics domrepo.Metrics
	pipe    *mid.RealtimePipeline
}

// NewTickIngestor creates a new TickIngestor instance.
func NewTickIngestor(stream domrepo.MarketStream, proc *IngestProcessor, metrics domrepo.Metrics, pipe *mid.RealtimePipeline) *TickIngestor {
	return &TickIngestor{stream: stream, proc: proc, metrics: metrics, pipe: pipe}
}

// IsConnected returns true if the market stream is connected.
func (c *TickIngestor) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *TickIngestor) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	if c.pipe != nil {
		c.pipe.Start(ctx)
	}
	tickCh, errCh := c.stream.Read(ctx)
	go c.consume(ctx, tickCh, errCh)
	return nil
}

// consume drains the stream channels until the context ends. The stream's
// read loop closes both channels on its way out, so a received error or a
// closed channel both mean the loop is gone and must be recreated.
func (c *TickIngestor) consume(ctx context.Context, tickCh <-chan *models.Tick, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errCh:
			if ok && err == nil {
				continue
			}
			if err != nil {
				c.metrics.RecordError("stream")
			}
			if tickCh, errCh = c.restart(ctx); tickCh == nil {
				return
			}
		case t, ok := <-tickCh:
			if !ok {
				if tickCh, errCh = c.restart(ctx); tickCh == nil {
					return
				}
				continue
			}
			if t == nil {
				continue
			}
			if c.pipe != nil {
				_ = c.pipe.Process(ctx, t)
			} else {
				_ = c.proc.Process(ctx, t)
			}
		}
	}
}

// restart reconnects and opens a fresh read loop. Reconnect sleeps the
// configured delay first, so a dead upstream cannot spin this loop. Nil
// channels signal that the context ended and consumption should stop.
func (c *TickIngestor) restart(ctx context.Context) (<-chan *models.Tick, <-chan error) {
	if ctx.Err() != nil {
		return nil, nil
	}
	if err := c.stream.Reconnect(ctx); err != nil {
		c.metrics.RecordError("stream_reconnect")
		// reading a dead connection reports once and closes the channels,
		// which feeds the next restart after another reconnect delay
	}
	return c.stream.Read(ctx)
}

// Processor returns the underlying IngestProcessor for lifecycle management.
func (c *TickIngestor) Processor() *IngestProcessor { return c.proc }

// Shutdown stops the pipeline, marks ingest closed, and closes the stream.
func (c *TickIngestor) Shutdown(ctx context.Context) error {
	if c.pipe != nil {
		c.pipe.Stop()
	}
	c.proc.Close()
	return c.stream.Close()
}
