// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/warka/warka/internal/capture"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ErrNotFound is returned when a capture id has no row.
var ErrNotFound = errors.New("capture not found")

// CaptureLogConfig controls the Postgres connection pool used for capture rows.
type CaptureLogConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	// Migrate creates the table when it does not exist.
	Migrate bool
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// CaptureLog keeps one row per capture attempt.
type CaptureLog struct {
	pool  pool
	table string
}

// NewCaptureLog connects to Postgres using the provided config.
func NewCaptureLog(ctx context.Context, cfg CaptureLogConfig) (*CaptureLog, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	log, err := NewCaptureLogWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	if cfg.Migrate {
		if err := log.EnsureSchema(ctx); err != nil {
			p.Close()
			return nil, err
		}
	}
	return log, nil
}

// NewCaptureLogWithPool constructs a log from an existing pool (primarily for testing).
func NewCaptureLogWithPool(p pool, table string) (*CaptureLog, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	if table == "" {
		table = "captures"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &CaptureLog{pool: p, table: table}, nil
}

// Close releases the underlying pool resources.
func (l *CaptureLog) Close() {
	if l == nil || l.pool == nil {
		return
	}
	l.pool.Close()
}

// EnsureSchema creates the capture table and its time index.
func (l *CaptureLog) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	id text PRIMARY KEY,
	target_url text NOT NULL,
	status text NOT NULL,
	width integer NOT NULL DEFAULT 0,
	height integer NOT NULL DEFAULT 0,
	digest text NOT NULL DEFAULT '',
	blob_uri text NOT NULL DEFAULT '',
	error_message text NOT NULL DEFAULT '',
	started_at timestamptz NOT NULL,
	duration_ms bigint NOT NULL
);
CREATE INDEX IF NOT EXISTS %[1]s_started_at_idx ON %[1]s (started_at DESC);`, l.table)
	if _, err := l.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", l.table, err)
	}
	return nil
}

// RecordCapture inserts a capture row.
func (l *CaptureLog) RecordCapture(ctx context.Context, rec capture.Record) error {
	if rec.ID == "" {
		return errors.New("record id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	target_url,
	status,
	width,
	height,
	digest,
	blob_uri,
	error_message,
	started_at,
	duration_ms
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)`, l.table)

	args := []any{
		rec.ID,
		rec.TargetURL,
		rec.Status,
		rec.Width,
		rec.Height,
		rec.Digest,
		rec.BlobURI,
		rec.Error,
		rec.StartedAt,
		rec.Duration.Milliseconds(),
	}
	if _, err := l.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert capture: %w", err)
	}
	return nil
}

// GetCapture loads one capture row by id.
func (l *CaptureLog) GetCapture(ctx context.Context, id string) (capture.Record, error) {
	query := fmt.Sprintf(`
		SELECT id, target_url, status, width, height, digest, blob_uri, error_message, started_at, duration_ms
		FROM %s
		WHERE id = $1;
	`, l.table)
	rec, err := scanRecord(l.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return capture.Record{}, ErrNotFound
		}
		return capture.Record{}, fmt.Errorf("failed to get capture: %w", err)
	}
	return rec, nil
}

// ListCaptures returns the newest captures first, optionally filtered by status.
func (l *CaptureLog) ListCaptures(ctx context.Context, status *string, limit, offset int) ([]capture.Record, error) {
	query := fmt.Sprintf(`
		SELECT id, target_url, status, width, height, digest, blob_uri, error_message, started_at, duration_ms
		FROM %s
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3;
	`, l.table)
	rows, err := l.pool.Query(ctx, query, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list captures: %w", err)
	}
	defer rows.Close()

	var out []capture.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan capture row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list captures: %w", err)
	}
	return out, nil
}

func scanRecord(row pgx.Row) (capture.Record, error) {
	var (
		rec        capture.Record
		durationMS int64
	)
	err := row.Scan(
		&rec.ID,
		&rec.TargetURL,
		&rec.Status,
		&rec.Width,
		&rec.Height,
		&rec.Digest,
		&rec.BlobURI,
		&rec.Error,
		&rec.StartedAt,
		&durationMS,
	)
	if err != nil {
		return capture.Record{}, err
	}
	rec.Duration = time.Duration(durationMS) * time.Millisecond
	return rec, nil
}
