package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/sitecheck/config"
)

// newValidateCmd validates a config file without probing anything.
func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a config file",
		Long: `Validate a sitecheck configuration file without probing anything.

This command parses the YAML, expands environment variables, validates
all fields and expands target files and grids. It's useful for CI/CD
pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  sitecheck validate -c sitecheck.yaml
  sitecheck validate --config /etc/sitecheck/sitecheck.yaml`,
		RunE: runValidate,
	}

	cmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	targets, err := config.BuildTargets(cfg)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// count grid targets separately (cartesian product size)
	gridTargets := 0
	for _, g := range cfg.Grids {
		size := 1
		for _, vals := range g.Dimensions {
			size *= len(vals)
		}
		gridTargets += size
	}
	direct := len(targets) - gridTargets

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Config is valid!\n")
	_, _ = fmt.Fprintf(out, "  Workers:     %d\n", cfg.Workers)
	_, _ = fmt.Fprintf(out, "  Timeout:     %s\n", cfg.Timeout)
	_, _ = fmt.Fprintf(out, "  Retries:     %d (delay %s)\n", cfg.Retries, cfg.RetryDelay)
	_, _ = fmt.Fprintf(out, "  Report:      %s (%s, %s order)\n", cfg.Report.Path, cfg.Report.Format, cfg.Report.Order)
	_, _ = fmt.Fprintf(out, "  Targets:     %d listed + %d from grids = %d total\n",
		direct, gridTargets, len(targets))

	return nil
}
