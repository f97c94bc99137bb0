package state

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"MarketPulse/internal/domain/models"
	pkgcache "MarketPulse/pkg/cache"
	applogger "MarketPulse/pkg/logger"
)

const snapshotKeyPrefix = "snapshot"

// Store keeps the latest snapshot per symbol in a cache backend (memory,
// redis, or layered) and a bounded in-memory ring of recent alerts for
// the read API.
type Store struct {
	cache pkgcache.Service
	ttl   time.Duration
	log   *applogger.Logger

	mu        sync.RWMutex
	alerts    []*models.Alert
	maxAlerts int
}

// NewStore creates a new Store instance.
func NewStore(c pkgcache.Service, ttl time.Duration, maxAlerts int, log *applogger.Logger) *Store {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if maxAlerts <= 0 {
		maxAlerts = 500
	}
	return &Store{cache: c, ttl: ttl, maxAlerts: maxAlerts, log: log}
}

// SetSnapshot stores the latest snapshot for its symbol. Snapshots are
// serialized to strings so every cache backend handles them uniformly.
func (s *Store) SetSnapshot(ctx context.Context, snap *models.Snapshot) {
	if snap == nil {
		return
	}
	b, err := json.Marshal(snap)
	if err != nil {
		s.log.Error("snapshot marshal failed", applogger.Error(err))
		return
	}
	if err := s.cache.Set(ctx, pkgcache.GenerateKey(snapshotKeyPrefix, snap.Symbol), string(b), s.ttl); err != nil {
		s.log.Warn("snapshot cache write failed",
			applogger.Error(err),
			applogger.String("symbol", snap.Symbol))
	}
}

// Snapshot returns the latest cached snapshot for a symbol.
func (s *Store) Snapshot(ctx context.Context, symbol string) (*models.Snapshot, bool, error) {
	var raw string
	if err := s.cache.Get(ctx, pkgcache.GenerateKey(snapshotKeyPrefix, symbol), &raw); err != nil {
		if errors.Is(err, pkgcache.ErrCacheMiss) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var snap models.Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, false, err
	}
	return &snap, true, nil
}

// AddAlerts appends alerts to the recent ring, trimming the oldest.
func (s *Store) AddAlerts(_ context.Context, alerts []*models.Alert) {
	if len(alerts) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, alerts...)
	if over := len(s.alerts) - s.maxAlerts; over > 0 {
		s.alerts = s.alerts[over:]
	}
}

// RecentAlerts returns up to limit alerts newest-first, optionally
// filtered by symbol.
func (s *Store) RecentAlerts(symbol string, limit int) []*models.Alert {
	if limit <= 0 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Alert, 0, limit)
	for i := len(s.alerts) - 1; i >= 0 && len(out) < limit; i-- {
		a := s.alerts[i]
		if symbol != "" && a.Symbol != symbol {
			continue
		}
		out = append(out, a)
	}
	return out
}
