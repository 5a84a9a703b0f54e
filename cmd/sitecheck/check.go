package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jpalmerr/sitecheck"
	"github.com/jpalmerr/sitecheck/config"
	"github.com/jpalmerr/sitecheck/internal/history"
	"github.com/jpalmerr/sitecheck/internal/logging"
	"github.com/jpalmerr/sitecheck/internal/metrics"
	"github.com/jpalmerr/sitecheck/internal/report"
	"github.com/jpalmerr/sitecheck/internal/telemetry"
)

// envPrefix prefixes the environment variables read by check,
// e.g. SITECHECK_WORKERS or SITECHECK_REPORT_PATH.
const envPrefix = "SITECHECK"

// flagKeys maps configuration keys to the check flags overriding them.
var flagKeys = map[string]string{
	"workers":          "workers",
	"timeout":          "timeout",
	"retries":          "retries",
	"retry_delay":      "retry-delay",
	"method":           "method",
	"report.path":      "output",
	"report.format":    "format",
	"report.order":     "order",
	"log.level":        "log-level",
	"log.format":       "log-format",
	"log.file":         "log-file",
	"metrics.addr":     "metrics-addr",
	"tracing.endpoint": "otlp-endpoint",
	"tracing.insecure": "otlp-insecure",
	"history.path":     "history-db",
}

// newCheckCmd probes targets and writes the report.
func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [URL ...]",
		Short: "Probe URLs and write a status report",
		Long: `Probe every target once (plus retries) and write a status report.

Targets are taken, in order, from --file, the command line, and the
targets, target_files and grids of the config file.

Settings are layered: built-in defaults, then the config file, then
SITECHECK_* environment variables (SITECHECK_WORKERS, SITECHECK_REPORT_PATH,
...), then flags.

Exit codes:
  0 - Every target was probed and the report was written
  1 - The run failed or was interrupted
  2 - No targets were given

Example:
  sitecheck check https://example.com https://example.org
  sitecheck check --file urls.txt --workers 16 --timeout 2 --retries 2
  cat urls.txt | sitecheck check --file -`,
		RunE: runCheck,
	}

	f := cmd.Flags()
	f.StringP("config", "c", "", "path to config file")
	f.StringP("file", "f", "", "read targets from file, one per line (- for stdin)")
	f.Int("workers", sitecheck.DefaultWorkers(), "number of concurrent workers")
	f.String("timeout", config.DefaultTimeout.String(), "per-attempt timeout (seconds or duration)")
	f.Int("retries", 0, "retries after the first attempt")
	f.String("retry-delay", config.DefaultRetryDelay.String(), "delay before each retry (seconds or duration)")
	f.String("method", "GET", "HTTP method, GET or HEAD")
	f.StringArray("header", nil, `extra request header "Name: value" (repeatable)`)
	f.StringP("output", "o", config.DefaultReportPath, "report file")
	f.String("format", "json", "report format, json or yaml")
	f.String("order", "input", "report order, input or arrival")
	f.String("log-level", "warn", "log level: debug, info, warn, error")
	f.String("log-format", "text", "log format: text or json")
	f.String("log-file", "", "write logs to a rotated file instead of stderr")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address during the run")
	f.String("otlp-endpoint", "", "export traces to this OTLP gRPC endpoint")
	f.Bool("otlp-insecure", false, "disable TLS towards the OTLP endpoint")
	f.String("history-db", "", "record the run in this SQLite file or postgres:// database")
	f.Bool("no-color", false, "disable coloured output")

	return cmd
}

func runCheck(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := resolveConfig(cmd, configPath)
	if err != nil {
		return err
	}

	logger, logCloser, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
		Stderr: cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logCloser.Close() }()

	targets, err := collectTargets(cmd, args, cfg)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return &usageError{}
	}

	format, err := report.ParseFormat(cfg.Report.Format)
	if err != nil {
		return err
	}
	order, err := report.ParseOrder(cfg.Report.Order)
	if err != nil {
		return err
	}

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	noColor, _ := cmd.Flags().GetBool("no-color")
	console := report.NewConsole(cmd.OutOrStdout(), !noColor && stdoutIsColor(cmd))

	opts := []sitecheck.Option{
		sitecheck.WithLogger(logger),
		sitecheck.WithHeaders("User-Agent", "sitecheck/"+version),
		sitecheck.WithOutcomeCallback(console.Outcome),
	}
	// config headers come after the default User-Agent so they can replace it
	opts = append(opts, config.CheckerOptions(cfg)...)

	if cfg.Metrics.Addr != "" {
		reg, err := startMetrics(ctx, cfg.Metrics.Addr, logger)
		if err != nil {
			return err
		}
		opts = append(opts, sitecheck.WithMetrics(reg))
	}

	if cfg.Tracing.Endpoint != "" {
		tp, err := telemetry.NewTracerProvider(ctx, telemetry.Options{
			Endpoint:       cfg.Tracing.Endpoint,
			Insecure:       cfg.Tracing.Insecure,
			ServiceName:    cfg.Tracing.ServiceName,
			ServiceVersion: version,
			SampleRatio:    cfg.Tracing.SampleRatio,
		})
		if err != nil {
			return fmt.Errorf("failed to set up tracing: %w", err)
		}
		defer func() {
			if err := telemetry.Shutdown(tp); err != nil {
				logger.Warn("failed to flush traces", "error", err)
			}
		}()
		opts = append(opts, sitecheck.WithTracerProvider(tp))
	}

	checker, err := sitecheck.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create checker: %w", err)
	}
	defer checker.Close()

	console.Banner(len(targets))

	run, runErr := checker.Run(ctx, targets)
	if errors.Is(runErr, sitecheck.ErrPoolStartup) || errors.Is(runErr, sitecheck.ErrShortRun) {
		// an incomplete run must never be reported as complete
		return fmt.Errorf("run failed, no report written: %w", runErr)
	}
	if run == nil {
		return fmt.Errorf("run failed: %w", runErr)
	}

	console.Summary(run)

	records := report.Records(run, order)
	if err := report.WriteFile(cfg.Report.Path, format, records); err != nil {
		return err
	}
	logger.Info("report written", "path", cfg.Report.Path, "records", len(records))

	if cfg.History.Path != "" {
		// record the run even when interrupted; every target has an outcome
		if err := saveHistory(context.WithoutCancel(ctx), cfg.History.Path, run); err != nil {
			return err
		}
	}

	return runErr
}

// resolveConfig layers the config file, SITECHECK_* environment variables
// and explicitly set flags, then validates the result.
func resolveConfig(cmd *cobra.Command, configPath string) (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	v := viper.New()
	v.SetDefault("workers", cfg.Workers)
	v.SetDefault("timeout", cfg.Timeout.String())
	v.SetDefault("retries", cfg.Retries)
	v.SetDefault("retry_delay", cfg.RetryDelay.String())
	v.SetDefault("method", cfg.Method)
	v.SetDefault("report.path", cfg.Report.Path)
	v.SetDefault("report.format", cfg.Report.Format)
	v.SetDefault("report.order", cfg.Report.Order)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.file", cfg.Log.File)
	v.SetDefault("metrics.addr", cfg.Metrics.Addr)
	v.SetDefault("tracing.endpoint", cfg.Tracing.Endpoint)
	v.SetDefault("tracing.insecure", cfg.Tracing.Insecure)
	v.SetDefault("history.path", cfg.History.Path)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	for key, name := range flagKeys {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			return nil, fmt.Errorf("failed to bind flag --%s: %w", name, err)
		}
	}

	timeout, err := config.ParseDuration(v.GetString("timeout"))
	if err != nil {
		return nil, &usageError{msg: fmt.Sprintf("invalid timeout: %v", err)}
	}
	retryDelay, err := config.ParseDuration(v.GetString("retry_delay"))
	if err != nil {
		return nil, &usageError{msg: fmt.Sprintf("invalid retry delay: %v", err)}
	}

	cfg.Workers = v.GetInt("workers")
	cfg.Timeout = config.Duration(timeout)
	cfg.Retries = v.GetInt("retries")
	cfg.RetryDelay = config.Duration(retryDelay)
	cfg.Method = strings.ToUpper(v.GetString("method"))
	cfg.Report.Path = v.GetString("report.path")
	cfg.Report.Format = v.GetString("report.format")
	cfg.Report.Order = v.GetString("report.order")
	cfg.Log.Level = v.GetString("log.level")
	cfg.Log.Format = v.GetString("log.format")
	cfg.Log.File = v.GetString("log.file")
	cfg.Metrics.Addr = v.GetString("metrics.addr")
	cfg.Tracing.Endpoint = v.GetString("tracing.endpoint")
	cfg.Tracing.Insecure = v.GetBool("tracing.insecure")
	cfg.History.Path = v.GetString("history.path")

	headers, _ := cmd.Flags().GetStringArray("header")
	for _, h := range headers {
		name, value, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, &usageError{msg: fmt.Sprintf("invalid header %q (want \"Name: value\")", h)}
		}
		if cfg.Headers == nil {
			cfg.Headers = make(map[string]string)
		}
		cfg.Headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// collectTargets returns the --file targets, then the positional ones,
// then those defined by the config file.
func collectTargets(cmd *cobra.Command, args []string, cfg *config.Config) ([]string, error) {
	var targets []string

	file, _ := cmd.Flags().GetString("file")
	switch file {
	case "":
	case "-":
		fromStdin, err := config.ReadTargets(cmd.InOrStdin())
		if err != nil {
			return nil, err
		}
		targets = append(targets, fromStdin...)
	default:
		fromFile, err := config.LoadTargetFile(file)
		if err != nil {
			return nil, err
		}
		targets = append(targets, fromFile...)
	}

	targets = append(targets, args...)

	fromConfig, err := config.BuildTargets(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build targets: %w", err)
	}
	return append(targets, fromConfig...), nil
}

// startMetrics serves a fresh registry on addr until ctx is done.
func startMetrics(ctx context.Context, addr string, logger *slog.Logger) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srv := metrics.NewServer(addr, reg, logger)
	if err := srv.Start(ctx); err != nil {
		return nil, err
	}
	return reg, nil
}

func saveHistory(ctx context.Context, location string, run *sitecheck.Run) error {
	store, err := history.Open(ctx, location)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.Save(ctx, history.NewEntry(run)); err != nil {
		return fmt.Errorf("failed to save run history: %w", err)
	}
	return nil
}

// stdoutIsColor reports whether the command writes to a colour terminal.
func stdoutIsColor(cmd *cobra.Command) bool {
	f, ok := cmd.OutOrStdout().(*os.File)
	return ok && report.ColorEnabled(f)
}
