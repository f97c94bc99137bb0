package dispatch

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	applogger "MarketPulse/pkg/logger"
	"MarketPulse/pkg/queue"
)

// item is one cycle's output for a single symbol.
type item struct {
	snap   *models.Snapshot
	alerts []*models.Alert
}

// Config controls dispatcher buffering and retry behavior.
type Config struct {
	BufferSize   int
	MaxAttempts  int
	BackoffMin   time.Duration
	BackoffMax   time.Duration
	DrainTimeout time.Duration
}

// Dispatcher pushes snapshots and alerts to the downstream gateway from
// a bounded queue so a slow consumer never blocks the analysis cycle.
type Dispatcher struct {
	gateway  domrepo.Gateway
	notifier queue.QueueService
	metrics  domrepo.Metrics
	log      *applogger.Logger
	cfg      Config

	ch     chan item
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// New creates a new Dispatcher instance. notifier may be nil when alert
// notification jobs are disabled.
func New(gateway domrepo.Gateway, notifier queue.QueueService, metrics domrepo.Metrics, log *applogger.Logger, cfg Config) *Dispatcher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffMin <= 0 {
		cfg.BackoffMin = 100 * time.Millisecond
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 5 * time.Second
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 10 * time.Second
	}
	return &Dispatcher{
		gateway:  gateway,
		notifier: notifier,
		metrics:  metrics,
		log:      log,
		cfg:      cfg,
		ch:       make(chan item, cfg.BufferSize),
		stopCh:   make(chan struct{}),
	}
}

// Start launches the delivery worker.
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go d.run(ctx)
}

// Enqueue hands one evaluation result to the delivery worker without
// blocking. When the queue is full the result is dropped and counted.
func (d *Dispatcher) Enqueue(s *models.Snapshot, alerts []*models.Alert) {
	select {
	case d.ch <- item{snap: s, alerts: alerts}:
		d.metrics.RecordQueueDepth(len(d.ch))
	default:
		d.metrics.RecordError("dispatch_queue_full")
		d.log.Warn("dispatch queue full, dropping result",
			applogger.String("symbol", s.Symbol),
			applogger.Int("alerts", len(alerts)))
	}
}

func (d *Dispatcher) run(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-d.stopCh:
			d.drain(ctx)
			return
		case it := <-d.ch:
			d.deliver(ctx, it)
			d.metrics.RecordQueueDepth(len(d.ch))
		}
	}
}

// drain delivers whatever is still buffered, bounded so shutdown cannot
// hang on a dead gateway.
func (d *Dispatcher) drain(ctx context.Context) {
	drainCtx, cancel := context.WithTimeout(ctx, d.cfg.DrainTimeout)
	defer cancel()
	for {
		select {
		case it := <-d.ch:
			d.deliver(drainCtx, it)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, it item) {
	if it.snap != nil {
		if err := d.withRetry(ctx, func() error { return d.gateway.PushSnapshot(ctx, it.snap) }); err != nil {
			d.metrics.RecordError("dispatch_snapshot")
			d.log.Error("snapshot delivery failed",
				applogger.Error(err),
				applogger.String("symbol", it.snap.Symbol))
		}
	}
	for _, a := range it.alerts {
		a := a
		if err := d.withRetry(ctx, func() error { return d.gateway.PushAlert(ctx, a) }); err != nil {
			d.metrics.RecordError("dispatch_alert")
			d.log.Error("alert delivery failed",
				applogger.Error(err),
				applogger.String("symbol", a.Symbol),
				applogger.String("kind", a.Kind.String()))
			continue
		}
		d.notify(ctx, a)
	}
}

// notify publishes a best-effort notification job for a delivered alert.
func (d *Dispatcher) notify(ctx context.Context, a *models.Alert) {
	if d.notifier == nil {
		return
	}
	if err := d.notifier.PublishMessage(ctx, "alert.triggered", a); err != nil {
		d.metrics.RecordError("alert_notify")
		d.log.Warn("alert notification publish failed", applogger.Error(err))
	}
}

// withRetry retries fn with capped exponential backoff and jitter.
func (d *Dispatcher) withRetry(ctx context.Context, fn func() error) error {
	backoff := d.cfg.BackoffMin
	var err error
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == d.cfg.MaxAttempts {
			break
		}
		sleep := backoff + time.Duration(rand.Int63n(int64(backoff)/2+1))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
		backoff *= 2
		if backoff > d.cfg.BackoffMax {
			backoff = d.cfg.BackoffMax
		}
	}
	return err
}

// Close stops the worker after draining buffered results.
func (d *Dispatcher) Close() {
	d.once.Do(func() { close(d.stopCh) })
	d.wg.Wait()
}
