package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/domain/repository"
)

// ClickHouseArchive implements TickArchive and HistorySource on the
// ticks_raw table.
type ClickHouseArchive struct {
	db    *sql.DB
	table string
}

// NewClickHouseArchive creates ClickHouse-backed tick storage.
func NewClickHouseArchive(db *sql.DB, table string) *ClickHouseArchive {
	return &ClickHouseArchive{db: db, table: table}
}

func (s *ClickHouseArchive) Store(ctx context.Context, t *models.Tick) error {
	q := fmt.Sprintf("INSERT INTO %s (ts, symbol, price, volume, source, event_id) VALUES (?, ?, ?, ?, ?, ?)", s.table)
	// idempotency key derived from symbol+timestamp
	eventID := fmt.Sprintf("%s-%d", t.Symbol, t.Timestamp.UnixNano())
	_, err := s.db.ExecContext(ctx, q,
		t.Timestamp,
		t.Symbol,
		t.Price,
		t.Volume,
		"stream",
		eventID,
	)
	return err
}

func (s *ClickHouseArchive) StoreBatch(ctx context.Context, ticks []*models.Tick) error {
	if len(ticks) == 0 {
		return nil
	}
	// Multi-row VALUES insert to reduce round-trips, chunked at 2000 rows.
	const chunkSize = 2000
	for start := 0; start < len(ticks); start += chunkSize {
		end := start + chunkSize
		if end > len(ticks) {
			end = len(ticks)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*6)
		for _, t := range ticks[start:end] {
			if t == nil || t.Symbol == "" || t.Timestamp.IsZero() {
				continue
			}
			eventID := fmt.Sprintf("%s-%d", t.Symbol, t.Timestamp.UnixNano())
			values = append(values, "(?, ?, ?, ?, ?, ?)")
			args = append(args,
				t.Timestamp,
				t.Symbol,
				t.Price,
				t.Volume,
				"stream",
				eventID,
			)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (ts, symbol, price, volume, source, event_id) VALUES %s", s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return err
		}
	}
	return nil
}

// Query returns archived ticks newest-first for API consumption.
func (s *ClickHouseArchive) Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.Tick, error) {
	q := fmt.Sprintf("SELECT symbol, ts, price, volume FROM %s WHERE symbol = ? AND ts >= ? AND ts <= ? ORDER BY ts DESC LIMIT ?", s.table)
	return s.scanTicks(ctx, q, symbol, from, to, limit)
}

// RecentTicks returns the last span of ticks oldest-first, the order a
// fresh window wants them appended in.
func (s *ClickHouseArchive) RecentTicks(ctx context.Context, symbol string, span time.Duration, limit int) ([]*models.Tick, error) {
	from := time.Now().Add(-span)
	q := fmt.Sprintf("SELECT symbol, ts, price, volume FROM %s WHERE symbol = ? AND ts >= ? ORDER BY ts ASC LIMIT ?", s.table)
	return s.scanTicks(ctx, q, symbol, from, limit)
}

func (s *ClickHouseArchive) scanTicks(ctx context.Context, q string, args ...interface{}) ([]*models.Tick, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ticks []*models.Tick
	for rows.Next() {
		var t models.Tick
		if err := rows.Scan(&t.Symbol, &t.Timestamp, &t.Price, &t.Volume); err != nil {
			return nil, err
		}
		ticks = append(ticks, &t)
	}
	return ticks, rows.Err()
}

func (s *ClickHouseArchive) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseArchive) Close() error {
	return nil // connection owned by pkg
}

var (
	_ repository.TickArchive   = (*ClickHouseArchive)(nil)
	_ repository.HistorySource = (*ClickHouseArchive)(nil)
)

// ClickHouseSymbolSource treats symbols with archived ticks in a recent
// lookback window as active.
type ClickHouseSymbolSource struct {
	db       *sql.DB
	table    string
	lookback time.Duration
}

// NewClickHouseSymbolSource creates an activity-based symbol source.
func NewClickHouseSymbolSource(db *sql.DB, table string, lookback time.Duration) repository.SymbolSource {
	if lookback <= 0 {
		lookback = 30 * time.Minute
	}
	return &ClickHouseSymbolSource{db: db, table: table, lookback: lookback}
}

func (s *ClickHouseSymbolSource) Active(ctx context.Context) ([]string, error) {
	q := fmt.Sprintf("SELECT DISTINCT symbol FROM %s WHERE ts >= ?", s.table)
	rows, err := s.db.QueryContext(ctx, q, time.Now().Add(-s.lookback))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, err
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}

// StaticSymbolSource serves a fixed symbol set from configuration, for
// deployments without a ClickHouse archive.
type StaticSymbolSource struct {
	symbols []string
}

// NewStaticSymbolSource creates a config-backed symbol source.
func NewStaticSymbolSource(symbols []string) repository.SymbolSource {
	out := make([]string, len(symbols))
	copy(out, symbols)
	return &StaticSymbolSource{symbols: out}
}

func (s *StaticSymbolSource) Active(_ context.Context) ([]string, error) {
	out := make([]string, len(s.symbols))
	copy(out, s.symbols)
	return out, nil
}
