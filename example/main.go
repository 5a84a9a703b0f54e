package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/sitecheck"
)

func main() {
	// start mock server (see mock_server.go)
	go StartMockServer(":9999")
	time.Sleep(100 * time.Millisecond)

	// grid API: 2 services × 2 envs = 4 targets from one declaration
	targets, err := sitecheck.ExpandGrid(
		sitecheck.WithURLTemplate("http://localhost:9999/health?svc={{.svc}}&env={{.env}}"),
		sitecheck.WithDimensions(map[string][]string{
			"svc": {"users", "orders"},
			"env": {"prod", "staging"},
		}),
		sitecheck.WithURLValidation(),
	)
	if err != nil {
		slog.Error("failed to expand target grid", "error", err)
		os.Exit(1)
	}

	targets = append(targets,
		"http://localhost:9999/flaky?fails=2", // succeeds on the third attempt
		"http://localhost:9999/flaky?fails=5", // exhausts its retries
		"http://localhost:9999/slow?ms=3000",  // times out
		"http://localhost:1/closed",           // connection refused
	)

	c, err := sitecheck.New(
		sitecheck.WithWorkers(4),
		sitecheck.WithTimeout(time.Second),
		sitecheck.WithRetries(2),
		sitecheck.WithRetryDelay(200*time.Millisecond),
		sitecheck.WithOutcomeCallback(func(o sitecheck.Outcome) {
			if o.OK() {
				fmt.Printf("[%d] %s - %dms (%d attempts)\n", o.StatusCode, o.Target, o.Elapsed.Milliseconds(), o.Attempts)
				return
			}
			fmt.Printf("[ERR] %s - %s (%d attempts)\n", o.Target, o.Reason(), o.Attempts)
		}),
	)
	if err != nil {
		slog.Error("failed to create checker", "error", err)
		os.Exit(1)
	}
	defer c.Close()

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Found %d URLs\n", len(targets))

	run, err := c.Run(ctx, targets)
	if run == nil {
		slog.Error("run failed", "error", err)
		os.Exit(1)
	}

	ok, failed := run.Counts()
	fmt.Printf("\n%d ok, %d failed in %s\n", ok, failed, run.Duration().Round(time.Millisecond))
	if err != nil {
		slog.Error("run incomplete", "error", err)
		os.Exit(1)
	}
}
