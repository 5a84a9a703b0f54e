package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jpalmerr/sitecheck/internal/report"
)

const pingTimeout = 5 * time.Second

const postgresSchema = `
CREATE TABLE IF NOT EXISTS sitecheck_runs (
	id          TEXT PRIMARY KEY,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	workers     INTEGER NOT NULL,
	targets     INTEGER NOT NULL,
	succeeded   INTEGER NOT NULL,
	failed      INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS sitecheck_outcomes (
	run_id      TEXT NOT NULL REFERENCES sitecheck_runs(id) ON DELETE CASCADE,
	position    INTEGER NOT NULL,
	url         TEXT NOT NULL,
	status_code INTEGER NULL,
	reason      TEXT NULL,
	time_ms     BIGINT NOT NULL,
	observed_at BIGINT NOT NULL,
	PRIMARY KEY (run_id, position)
);
CREATE INDEX IF NOT EXISTS idx_sitecheck_runs_started_at ON sitecheck_runs (started_at DESC);
`

// PostgresStore persists run history in PostgreSQL.
//
// It uses the same NULL-status/NULL-reason layout as [SQLiteStore].
type PostgresStore struct {
	pool *pgxpool.Pool
}

// IsPostgresDSN reports whether location is a PostgreSQL connection URL.
func IsPostgresDSN(location string) bool {
	return strings.HasPrefix(location, "postgres://") || strings.HasPrefix(location, "postgresql://")
}

// OpenPostgres connects to dsn and creates the history tables if needed.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid history database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach history database: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create history schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Save inserts or replaces an entry in a single transaction.
func (s *PostgresStore) Save(ctx context.Context, entry Entry) (err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	sum := entry.Summary
	if _, err = tx.Exec(ctx, `DELETE FROM sitecheck_runs WHERE id = $1`, sum.ID); err != nil {
		return fmt.Errorf("failed to replace run %s: %w", sum.ID, err)
	}
	if _, err = tx.Exec(ctx, `INSERT INTO sitecheck_runs
		(id, started_at, finished_at, workers, targets, succeeded, failed)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sum.ID, sum.StartedAt, sum.FinishedAt, sum.Workers, sum.Targets, sum.Succeeded, sum.Failed,
	); err != nil {
		return fmt.Errorf("failed to save run %s: %w", sum.ID, err)
	}

	batch := &pgx.Batch{}
	for i, rec := range entry.Records {
		code, reason := splitStatus(rec.Status)
		batch.Queue(`INSERT INTO sitecheck_outcomes
			(run_id, position, url, status_code, reason, time_ms, observed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			sum.ID, i, rec.URL, code, reason, rec.TimeMS, rec.Timestamp)
	}
	if err = tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to save outcomes of run %s: %w", sum.ID, err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", sum.ID, err)
	}
	return nil
}

// List returns summaries ordered by start time, most recent first.
func (s *PostgresStore) List(ctx context.Context, limit int) ([]Summary, error) {
	query := `SELECT id, started_at, finished_at, workers, targets, succeeded, failed
		FROM sitecheck_runs ORDER BY started_at DESC, id ASC`
	var args []any
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		sum, err := scanPostgresSummary(rows)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return summaries, nil
}

// Get returns the entry with the given ID and its records in input order.
func (s *PostgresStore) Get(ctx context.Context, id string) (Entry, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, started_at, finished_at, workers, targets, succeeded, failed
		FROM sitecheck_runs WHERE id = $1`, id)
	sum, err := scanPostgresSummary(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, err
	}

	rows, err := s.pool.Query(ctx, `SELECT url, status_code, reason, time_ms, observed_at
		FROM sitecheck_outcomes WHERE run_id = $1 ORDER BY position`, id)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to load outcomes of run %s: %w", id, err)
	}
	defer rows.Close()

	entry := Entry{Summary: sum}
	for rows.Next() {
		var (
			rec    report.Record
			code   *int32
			reason *string
		)
		if err := rows.Scan(&rec.URL, &code, &reason, &rec.TimeMS, &rec.Timestamp); err != nil {
			return Entry{}, fmt.Errorf("failed to read outcome: %w", err)
		}
		switch {
		case code != nil:
			rec.Status = int(*code)
		case reason != nil:
			rec.Status = *reason
		default:
			rec.Status = ""
		}
		entry.Records = append(entry.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return Entry{}, fmt.Errorf("failed to load outcomes of run %s: %w", id, err)
	}
	return entry, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanPostgresSummary(row pgx.Row) (Summary, error) {
	var sum Summary
	err := row.Scan(&sum.ID, &sum.StartedAt, &sum.FinishedAt, &sum.Workers, &sum.Targets, &sum.Succeeded, &sum.Failed)
	if errors.Is(err, pgx.ErrNoRows) {
		return Summary{}, err
	}
	if err != nil {
		return Summary{}, fmt.Errorf("failed to read run: %w", err)
	}
	return sum, nil
}
