package main

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jpalmerr/sitecheck/internal/history"
	"github.com/jpalmerr/sitecheck/internal/report"
)

// seedHistory writes one run with a success and a failure to a new database.
func seedHistory(t *testing.T) (db, runID string) {
	t.Helper()

	db = filepath.Join(t.TempDir(), "runs.db")
	store, err := history.OpenSQLite(context.Background(), db)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	defer func() { _ = store.Close() }()

	started := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	entry := history.Entry{
		Summary: history.Summary{
			ID:         "run-1",
			StartedAt:  started,
			FinishedAt: started.Add(1500 * time.Millisecond),
			Workers:    4,
			Targets:    2,
			Succeeded:  1,
			Failed:     1,
		},
		Records: []report.Record{
			{URL: "https://a.example", Status: 200, TimeMS: 12, Timestamp: started.Unix()},
			{URL: "https://b.example", Status: "timeout after 5s", TimeMS: 5000, Timestamp: started.Unix()},
		},
	}
	if err := store.Save(context.Background(), entry); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	return db, "run-1"
}

func TestHistoryList(t *testing.T) {
	db, runID := seedHistory(t)

	code, stdout, stderr := executeCmd(t, nil, "history", "list", "--db", db)
	if code != exitOK {
		t.Fatalf("exit code = %d, stderr: %s", code, stderr)
	}

	for _, phrase := range []string{"ID", "DURATION", runID, "1.5s"} {
		if !strings.Contains(stdout, phrase) {
			t.Errorf("output missing %q\nGot: %s", phrase, stdout)
		}
	}
}

func TestHistoryList_Empty(t *testing.T) {
	db := filepath.Join(t.TempDir(), "empty.db")

	code, stdout, _ := executeCmd(t, nil, "history", "list", "--db", db)
	if code != exitOK {
		t.Fatalf("exit code = %d, want %d", code, exitOK)
	}
	if !strings.Contains(stdout, "No runs recorded.") {
		t.Errorf("output = %q", stdout)
	}
}

func TestHistoryShow(t *testing.T) {
	db, runID := seedHistory(t)

	code, stdout, stderr := executeCmd(t, nil, "history", "show", "--db", db, runID)
	if code != exitOK {
		t.Fatalf("exit code = %d, stderr: %s", code, stderr)
	}

	for _, phrase := range []string{
		"Run run-1",
		"results:  1 ok, 1 failed",
		"https://a.example",
		"200",
		"timeout after 5s",
		"5000ms",
	} {
		if !strings.Contains(stdout, phrase) {
			t.Errorf("output missing %q\nGot: %s", phrase, stdout)
		}
	}
}

func TestHistoryShow_UnknownRun(t *testing.T) {
	db, _ := seedHistory(t)

	code, _, stderr := executeCmd(t, nil, "history", "show", "--db", db, "nope")
	if code != exitError {
		t.Fatalf("exit code = %d, want %d", code, exitError)
	}
	if !strings.Contains(stderr, "run not found") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestHistory_RequiresDB(t *testing.T) {
	code, _, _ := executeCmd(t, nil, "history", "list")
	if code == exitOK {
		t.Fatal("history list without --db should fail")
	}
}
