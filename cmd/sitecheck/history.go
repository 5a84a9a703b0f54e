package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/jpalmerr/sitecheck/internal/history"
)

const defaultHistoryLimit = 20

// newHistoryCmd groups the commands reading the run history database.
func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded runs",
		Long: `Inspect runs recorded by "sitecheck check --history-db".

Example:
  sitecheck history list --db runs.db
  sitecheck history show --db runs.db 5f0c1d2e-...`,
	}

	cmd.PersistentFlags().String("db", "", "history database: SQLite file or postgres:// URL (required)")
	_ = cmd.MarkPersistentFlagRequired("db")

	list := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
		Args:  cobra.NoArgs,
		RunE:  runHistoryList,
	}
	list.Flags().Int("limit", defaultHistoryLimit, "maximum number of runs to list")

	show := &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show the outcomes of one run",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistoryShow,
	}

	cmd.AddCommand(list, show)
	return cmd
}

func openHistory(cmd *cobra.Command) (history.Store, error) {
	location, _ := cmd.Flags().GetString("db")
	return history.Open(cmd.Context(), location)
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	store, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := store.List(cmd.Context(), limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(out, "No runs recorded.")
		return nil
	}

	t := newTable("ID", "STARTED", "TARGETS", "OK", "FAILED", "DURATION")
	for _, r := range runs {
		t.Row(
			r.ID,
			r.StartedAt.Local().Format(time.DateTime),
			strconv.Itoa(r.Targets),
			strconv.Itoa(r.Succeeded),
			strconv.Itoa(r.Failed),
			r.Duration().Round(time.Millisecond).String(),
		)
	}
	_, err = fmt.Fprintln(out, t.String())
	return err
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	store, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	entry, err := store.Get(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("run %s: %w", args[0], err)
	}

	s := entry.Summary
	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Run %s\n", s.ID)
	_, _ = fmt.Fprintf(out, "  started:  %s\n", s.StartedAt.Local().Format(time.DateTime))
	_, _ = fmt.Fprintf(out, "  duration: %s\n", s.Duration().Round(time.Millisecond))
	_, _ = fmt.Fprintf(out, "  workers:  %d\n", s.Workers)
	_, _ = fmt.Fprintf(out, "  results:  %d ok, %d failed\n", s.Succeeded, s.Failed)

	t := newTable("STATUS", "URL", "TIME")
	for _, rec := range entry.Records {
		t.Row(fmt.Sprint(rec.Status), rec.URL, fmt.Sprintf("%dms", rec.TimeMS))
	}
	_, err = fmt.Fprintln(out, t.String())
	return err
}

// newTable returns a borderless table with the given column headers.
func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.HiddenBorder()).
		Headers(headers...).
		StyleFunc(func(_, _ int) lipgloss.Style {
			return lipgloss.NewStyle().PaddingRight(1)
		})
}
