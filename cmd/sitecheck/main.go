// Package main is the entry point for the sitecheck CLI.
//
// sitecheck can be used as a library (SDK) or as a standalone binary.
// This CLI provides the standalone binary approach.
//
// Usage:
//
//	sitecheck check https://example.com          # Probe URLs, write status.json
//	sitecheck check --file urls.txt -o out.json  # Probe URLs listed in a file
//	sitecheck check -c sitecheck.yaml            # Probe targets from a config
//	sitecheck validate -c sitecheck.yaml         # Validate configuration
//	sitecheck history list                       # Show recent runs
//	sitecheck version                            # Show version info
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Exit codes.
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

const usageLine = "Usage: sitecheck check [--file path] [URL ...]"

// usageError reports a command line that cannot be run at all.
type usageError struct {
	msg string
}

func (e *usageError) Error() string {
	return e.msg
}

// newRootCmd builds the command tree. Commands are built per invocation so
// flag state never leaks between executions.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "sitecheck",
		Short: "A concurrent HTTP endpoint prober",
		Long: `sitecheck probes a list of HTTP endpoints with a bounded pool of
workers and records the status code or failure reason of each.

Quick start:
  sitecheck check https://example.com https://example.org
  sitecheck check --file urls.txt --workers 16 --retries 2

Results are printed as they arrive and written to status.json:
  [{"url": "https://example.com", "status": 200, "time_ms": 84, "timestamp": 1760601600}]`,
		SilenceUsage:  true,
		SilenceErrors: true,
		// No Run/RunE means this just shows help when called without subcommands
	}

	// flag mistakes are usage errors, like a missing target list
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{msg: err.Error()}
	})

	root.AddCommand(newCheckCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newHistoryCmd())
	root.AddCommand(newVersionCmd())

	return root
}

// newVersionCmd prints version information.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  `Print the version, commit hash, and build date of this sitecheck binary.`,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "sitecheck %s\n", version)
			_, _ = fmt.Fprintf(out, "  commit: %s\n", commit)
			_, _ = fmt.Fprintf(out, "  built:  %s\n", date)
		},
	}
}

// execute runs the command line in args and returns the process exit code.
func execute(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	if err == nil {
		return exitOK
	}

	var ue *usageError
	if errors.As(err, &ue) {
		if ue.msg != "" {
			_, _ = fmt.Fprintln(stderr, ue.msg)
		}
		_, _ = fmt.Fprintln(stderr, usageLine)
		return exitUsage
	}

	_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
	return exitError
}

// Execute runs the root command and exits with its status.
// This is the main entry point called from main().
func Execute() {
	os.Exit(execute(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func main() {
	Execute()
}
