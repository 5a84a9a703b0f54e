package history

import (
	"context"
	"errors"
	"time"

	"github.com/jpalmerr/sitecheck"
	"github.com/jpalmerr/sitecheck/internal/report"
)

// ErrNotFound is returned by [Store.Get] for an unknown run ID.
var ErrNotFound = errors.New("history: run not found")

// Summary describes one stored run.
type Summary struct {
	// ID is the run ID assigned by the checker.
	ID string

	StartedAt  time.Time
	FinishedAt time.Time

	// Workers is the pool size the run used.
	Workers int

	// Targets is the number of targets probed.
	Targets int

	Succeeded int
	Failed    int
}

// Duration returns the wall-clock duration of the run.
func (s Summary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// Entry is a stored run: its summary and its records in input order.
type Entry struct {
	Summary Summary
	Records []report.Record
}

// NewEntry builds an [Entry] from a completed run.
func NewEntry(run *sitecheck.Run) Entry {
	ok, failed := run.Counts()
	return Entry{
		Summary: Summary{
			ID:         run.ID,
			StartedAt:  run.StartedAt,
			FinishedAt: run.FinishedAt,
			Workers:    run.Workers,
			Targets:    len(run.Outcomes),
			Succeeded:  ok,
			Failed:     failed,
		},
		Records: report.Records(run, report.OrderInput),
	}
}

// Store defines the interface for saving and querying run history.
//
// Store implementations must be safe for concurrent access.
type Store interface {
	// Save stores an entry. Saving an ID twice replaces the earlier entry.
	Save(ctx context.Context, entry Entry) error

	// List returns up to limit summaries, most recent first.
	// A limit of zero or less returns every summary.
	List(ctx context.Context, limit int) ([]Summary, error)

	// Get returns the entry with the given run ID, or [ErrNotFound].
	Get(ctx context.Context, id string) (Entry, error)

	// Close releases the store's resources.
	Close() error
}

// Open opens the store at location, which is either a PostgreSQL URL
// (postgres://...) or the path of a SQLite database file.
func Open(ctx context.Context, location string) (Store, error) {
	if IsPostgresDSN(location) {
		s, err := OpenPostgres(ctx, location)
		if err != nil {
			return nil, err
		}
		return s, nil
	}

	s, err := OpenSQLite(ctx, location)
	if err != nil {
		return nil, err
	}
	return s, nil
}
