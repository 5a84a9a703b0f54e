package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jpalmerr/sitecheck/internal/report"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER NOT NULL,
	workers     INTEGER NOT NULL,
	targets     INTEGER NOT NULL,
	succeeded   INTEGER NOT NULL,
	failed      INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS outcomes (
	run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	position    INTEGER NOT NULL,
	url         TEXT NOT NULL,
	status_code INTEGER,
	reason      TEXT,
	time_ms     INTEGER NOT NULL,
	timestamp   INTEGER NOT NULL,
	PRIMARY KEY (run_id, position)
);
CREATE INDEX IF NOT EXISTS runs_started_at ON runs(started_at);
`

// SQLiteStore persists run history in a SQLite database.
//
// A successful outcome is stored with its status code and a NULL reason; a
// failed one with a NULL status code and its reason, so records read back
// keep their number-or-string status.
type SQLiteStore struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// OpenSQLite opens (or creates) the database at path and its parent
// directory.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("history database path required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	// a single connection serialises writers and keeps pragmas in effect
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, path: path}
	if err := s.init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("failed to configure history database: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create history schema: %w", err)
	}
	return nil
}

// Save inserts or replaces an entry in a single transaction.
func (s *SQLiteStore) Save(ctx context.Context, entry Entry) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	sum := entry.Summary
	if _, err = tx.ExecContext(ctx, `DELETE FROM outcomes WHERE run_id = ?`, sum.ID); err != nil {
		return fmt.Errorf("failed to replace run %s: %w", sum.ID, err)
	}
	if _, err = tx.ExecContext(ctx, `INSERT OR REPLACE INTO runs
		(id, started_at, finished_at, workers, targets, succeeded, failed)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sum.ID,
		sum.StartedAt.UnixNano(),
		sum.FinishedAt.UnixNano(),
		sum.Workers,
		sum.Targets,
		sum.Succeeded,
		sum.Failed,
	); err != nil {
		return fmt.Errorf("failed to save run %s: %w", sum.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO outcomes
		(run_id, position, url, status_code, reason, time_ms, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare outcome insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, rec := range entry.Records {
		code, reason := splitStatus(rec.Status)
		if _, err = stmt.ExecContext(ctx, sum.ID, i, rec.URL, code, reason, rec.TimeMS, rec.Timestamp); err != nil {
			return fmt.Errorf("failed to save outcome for %s: %w", rec.URL, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", sum.ID, err)
	}
	return nil
}

// List returns summaries ordered by start time, most recent first.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Summary, error) {
	query := `SELECT id, started_at, finished_at, workers, targets, succeeded, failed
		FROM runs ORDER BY started_at DESC, id ASC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var summaries []Summary
	for rows.Next() {
		sum, err := scanSummary(rows)
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
func (s *SQLiteStore) Get(ctx context.Context, id string) (Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, started_at, finished_at, workers, targets, succeeded, failed
		FROM runs WHERE id = ?`, id)
	sum, err := scanSummary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT url, status_code, reason, time_ms, timestamp
		FROM outcomes WHERE run_id = ? ORDER BY position`, id)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to load outcomes of run %s: %w", id, err)
	}
	defer func() { _ = rows.Close() }()

	entry := Entry{Summary: sum}
	for rows.Next() {
		var (
			rec    report.Record
			code   sql.NullInt64
			reason sql.NullString
		)
		if err := rows.Scan(&rec.URL, &code, &reason, &rec.TimeMS, &rec.Timestamp); err != nil {
			return Entry{}, fmt.Errorf("failed to read outcome: %w", err)
		}
		if code.Valid {
			rec.Status = int(code.Int64)
		} else {
			rec.Status = reason.String
		}
		entry.Records = append(entry.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return Entry{}, fmt.Errorf("failed to load outcomes of run %s: %w", id, err)
	}
	return entry, nil
}

// Path returns the database path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSummary(sc scanner) (Summary, error) {
	var (
		sum               Summary
		started, finished int64
	)
	if err := sc.Scan(&sum.ID, &started, &finished, &sum.Workers, &sum.Targets, &sum.Succeeded, &sum.Failed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Summary{}, err
		}
		return Summary{}, fmt.Errorf("failed to read run: %w", err)
	}
	sum.StartedAt = time.Unix(0, started)
	sum.FinishedAt = time.Unix(0, finished)
	return sum, nil
}

// splitStatus maps a record status to its status_code and reason columns.
func splitStatus(status any) (sql.NullInt64, sql.NullString) {
	switch v := status.(type) {
	case int:
		return sql.NullInt64{Int64: int64(v), Valid: true}, sql.NullString{}
	case int64:
		return sql.NullInt64{Int64: v, Valid: true}, sql.NullString{}
	case float64:
		return sql.NullInt64{Int64: int64(v), Valid: true}, sql.NullString{}
	case string:
		return sql.NullInt64{}, sql.NullString{String: v, Valid: true}
	default:
		return sql.NullInt64{}, sql.NullString{String: fmt.Sprint(v), Valid: true}
	}
}

var _ Store = (*SQLiteStore)(nil)
