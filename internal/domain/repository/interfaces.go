package repository

import (
	"context"
	"time"

	"MarketPulse/internal/domain/models"
)

// MarketStream delivers validated ticks from an upstream feed.
type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Tick, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// TickArchive persists accepted raw ticks and serves history queries.
type TickArchive interface {
	Store(ctx context.Context, t *models.Tick) error
	StoreBatch(ctx context.Context, ticks []*models.Tick) error
	Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.Tick, error)
	Health(ctx context.Context) error
	Close() error
}

// HistorySource supplies a time-ordered sequence of recent ticks for a
// symbol, used to pre-populate a freshly created window on cold start.
type HistorySource interface {
	RecentTicks(ctx context.Context, symbol string, span time.Duration, limit int) ([]*models.Tick, error)
}

// SymbolSource supplies the set of symbols currently considered active.
// Symbols absent from consecutive sets are eventually evicted.
type SymbolSource interface {
	Active(ctx context.Context) ([]string, error)
}

// Gateway is the downstream push boundary for snapshots and alerts.
type Gateway interface {
	PushSnapshot(ctx context.Context, s *models.Snapshot) error
	PushAlert(ctx context.Context, a *models.Alert) error
}

// Metrics records operational measurements.
type Metrics interface {
	RecordTickIngested(symbol string)
	RecordTickRejected(reason string)
	RecordSnapshot(symbol string)
	RecordAlert(kind string)
	RecordCycleDuration(seconds float64)
	RecordQueueDepth(n int)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
}
