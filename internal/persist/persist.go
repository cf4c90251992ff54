// Package persist writes EnrichedSpots into Postgres asynchronously: a
// queue channel decouples the Enricher's hot path from insert latency,
// batched by size or by a flush interval, plus a ticker-driven
// retention sweeper. The batching/queue/ticker shape follows the
// project's prior SQLite archive writer; the schema and driver are
// swapped for a relational store meant to hold the live working set,
// not a removable side archive.
package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"holycluster/internal/spotmodel"
)

// Config mirrors the original pool_size/max_overflow/pool_timeout/
// pool_pre_ping/pool_recycle knobs via pgxpool equivalents.
type Config struct {
	DSN                string
	MaxConns           int32
	MinConns           int32
	HealthCheckPeriod  time.Duration
	MaxConnLifetime    time.Duration
	QueueSize          int
	BatchSize          int
	BatchInterval      time.Duration
	RetentionDays      int
	CleanupInterval    time.Duration
}

// DefaultConfig returns the documented defaults for every knob not set
// explicitly by the caller's environment.
func DefaultConfig(dsn string) Config {
	return Config{
		DSN:               dsn,
		MaxConns:          10,
		MinConns:          2,
		HealthCheckPeriod: time.Minute,
		MaxConnLifetime:   time.Hour,
		QueueSize:         10000,
		BatchSize:         200,
		BatchInterval:     2 * time.Second,
		RetentionDays:     14,
		CleanupInterval:   time.Hour,
	}
}

// Store persists enriched spots to holy_spots and sweeps rows older
// than the configured retention window. The hot path (Persist) never
// blocks on a slow database: a full queue drops the spot and returns an
// error for the caller to log.
type Store struct {
	cfg   Config
	pool  *pgxpool.Pool
	db    *sqlx.DB
	log   *zap.SugaredLogger
	queue chan spotmodel.EnrichedSpot
}

// Open connects to Postgres, ensures the schema exists, and returns a
// Store ready to have Run launched on it.
func Open(ctx context.Context, cfg Config, log *zap.SugaredLogger) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("persist: parse dsn: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("persist: new pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("persist: ping: %w", err)
	}

	rawDB, err := stdlibOpen(cfg.DSN)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("persist: open stdlib db: %w", err)
	}
	db := sqlx.NewDb(rawDB, "pgx")
	if err := ensureSchema(ctx, db); err != nil {
		pool.Close()
		return nil, err
	}

	qsize := cfg.QueueSize
	if qsize <= 0 {
		qsize = 10000
	}
	return &Store{
		cfg:   cfg,
		pool:  pool,
		db:    db,
		log:   log,
		queue: make(chan spotmodel.EnrichedSpot, qsize),
	}, nil
}

// Run drives the batched insert loop and the retention sweeper until
// ctx is cancelled, flushing any partial batch before returning.
func (s *Store) Run(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.insertLoop(ctx)
	}()
	go s.cleanupLoop(ctx)
	<-done
}

// Close releases the pool and the sqlx handle. Call after Run returns.
func (s *Store) Close() {
	s.pool.Close()
	_ = s.db.Close()
}

// Persist implements enrich.Sink: enqueue without blocking. Returns an
// error only when the queue is saturated; the caller logs and moves on.
func (s *Store) Persist(_ context.Context, spot spotmodel.EnrichedSpot) error {
	select {
	case s.queue <- spot:
		return nil
	default:
		return fmt.Errorf("persist: queue full, dropping spot for %s", spot.DXCallsign)
	}
}

func (s *Store) insertLoop(ctx context.Context) {
	batchSize := s.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 200
	}
	interval := s.cfg.BatchInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	batch := make([]spotmodel.EnrichedSpot, 0, batchSize)
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.flush(context.Background(), batch)
			return
		case spot := <-s.queue:
			batch = append(batch, spot)
			if len(batch) >= batchSize {
				s.flush(ctx, batch)
				batch = batch[:0]
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(interval)
			}
		case <-timer.C:
			if len(batch) > 0 {
				s.flush(ctx, batch)
				batch = batch[:0]
			}
			timer.Reset(interval)
		}
	}
}

func (s *Store) flush(ctx context.Context, batch []spotmodel.EnrichedSpot) {
	if len(batch) == 0 {
		return
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		s.log.Warnw("persist: begin tx failed", "error", err)
		return
	}
	defer tx.Rollback(ctx)

	for _, spot := range batch {
		// A savepoint isolates each spot's insert: once a statement
		// errors, Postgres aborts every later statement in the same
		// transaction until a rollback, so without this the issue-row
		// insert below would itself fail on a unique violation.
		if _, err := tx.Exec(ctx, "savepoint spot_insert"); err != nil {
			s.log.Warnw("persist: savepoint failed", "error", err)
			return
		}

		_, err := tx.Exec(ctx, insertSQL,
			spot.Timestamp, spot.DXCallsign, spot.SpotterCallsign, spot.FrequencyKHz,
			spot.Band, spot.Mode, spot.ModeSelection, spot.Comment,
			spot.SourceEndpoint,
			spot.Spotter.LocatorSource, spot.Spotter.Locator, spot.Spotter.Lat, spot.Spotter.Lon,
			spot.Spotter.Country, spot.Spotter.Continent,
			spot.DX.LocatorSource, spot.DX.Locator, spot.DX.Lat, spot.DX.Lon,
			spot.DX.Country, spot.DX.Continent,
		)
		if err != nil {
			if _, rbErr := tx.Exec(ctx, "rollback to savepoint spot_insert"); rbErr != nil {
				s.log.Warnw("persist: rollback to savepoint failed", "error", rbErr)
				return
			}
			s.log.Warnw("persist: insert failed, recording issue", "dx", spot.DXCallsign, "error", err)
			if _, issueErr := tx.Exec(ctx, insertIssueSQL,
				spot.Timestamp, spot.DXCallsign, spot.SpotterCallsign, spot.FrequencyKHz,
				spot.Band, spot.Mode, spot.Comment, err.Error(),
			); issueErr != nil {
				s.log.Warnw("persist: recording issue failed", "error", issueErr)
			}
			continue
		}
		if _, err := tx.Exec(ctx, "release savepoint spot_insert"); err != nil {
			s.log.Warnw("persist: release savepoint failed", "error", err)
			return
		}
	}
	if err := tx.Commit(ctx); err != nil {
		s.log.Warnw("persist: commit failed", "error", err)
	}
}

func (s *Store) cleanupLoop(ctx context.Context) {
	interval := s.cfg.CleanupInterval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanupOnce(ctx)
		}
	}
}

func (s *Store) cleanupOnce(ctx context.Context) {
	days := s.cfg.RetentionDays
	if days <= 0 {
		days = 14
	}
	cutoff := time.Now().UTC().Add(-time.Duration(days) * 24 * time.Hour).Unix()
	if _, err := s.pool.Exec(ctx, `delete from holy_spots where date_time < $1`, cutoff); err != nil {
		s.log.Warnw("persist: retention sweep failed", "error", err)
	}
}

// Recent returns up to limit EnrichedSpots newer than sinceUnix,
// newest-first, for the Broadcaster's initial/catch-up backlog.
func (s *Store) Recent(ctx context.Context, sinceUnix int64, limit int) ([]spotmodel.EnrichedSpot, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, selectRecentSQL, sinceUnix, limit)
	if err != nil {
		return nil, fmt.Errorf("persist: query recent: %w", err)
	}
	defer rows.Close()

	var out []spotmodel.EnrichedSpot
	for rows.Next() {
		var spot spotmodel.EnrichedSpot
		if err := rows.Scan(
			&spot.Timestamp, &spot.DXCallsign, &spot.SpotterCallsign, &spot.FrequencyKHz,
			&spot.Band, &spot.Mode, &spot.ModeSelection, &spot.Comment, &spot.SourceEndpoint,
			&spot.Spotter.LocatorSource, &spot.Spotter.Locator, &spot.Spotter.Lat, &spot.Spotter.Lon,
			&spot.Spotter.Country, &spot.Spotter.Continent,
			&spot.DX.LocatorSource, &spot.DX.Locator, &spot.DX.Lat, &spot.DX.Lon,
			&spot.DX.Country, &spot.DX.Continent,
		); err != nil {
			return nil, fmt.Errorf("persist: scan recent: %w", err)
		}
		out = append(out, spot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("persist: iterate recent: %w", err)
	}
	return out, nil
}

// SpotsWithIssues returns up to limit rows from spots_with_issues,
// newest-first, for the read-only diagnostics endpoint.
func (s *Store) SpotsWithIssues(ctx context.Context, limit int) ([]IssueRow, error) {
	if limit <= 0 {
		return nil, nil
	}
	var rows []IssueRow
	err := s.db.SelectContext(ctx, &rows, selectIssuesSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("persist: query issues: %w", err)
	}
	return rows, nil
}

// IssueRow is one row of spots_with_issues.
type IssueRow struct {
	DateTime        int64   `db:"date_time"`
	DXCallsign      string  `db:"dx_callsign"`
	SpotterCallsign string  `db:"spotter_callsign"`
	Frequency       float64 `db:"frequency"`
	Band            string  `db:"band"`
	Mode            string  `db:"mode"`
	Comment         string  `db:"comment"`
	Issues          string  `db:"issues"`
}
