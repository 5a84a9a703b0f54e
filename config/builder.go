package config

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/jpalmerr/sitecheck"
)

// BuildTargets returns the targets defined by the configuration.
//
// Order is: targets, then each target file in turn, then each grid in
// turn. Relative target file paths are resolved against [Config.Dir].
func BuildTargets(cfg *Config) ([]string, error) {
	targets := append([]string(nil), cfg.Targets...)

	for _, f := range cfg.TargetFiles {
		path := f
		if !filepath.IsAbs(path) && path != "-" {
			path = filepath.Join(cfg.Dir(), path)
		}
		fileTargets, err := LoadTargetFile(path)
		if err != nil {
			return nil, err
		}
		targets = append(targets, fileTargets...)
	}

	for i := range cfg.Grids {
		g := &cfg.Grids[i]
		gridTargets, err := sitecheck.ExpandGrid(
			sitecheck.WithURLTemplate(g.URLTemplate),
			sitecheck.WithDimensions(g.Dimensions),
		)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", g.label(i), err)
		}
		targets = append(targets, gridTargets...)
	}

	return targets, nil
}

// CheckerOptions converts the probing settings to SDK options.
func CheckerOptions(cfg *Config) []sitecheck.Option {
	opts := []sitecheck.Option{
		sitecheck.WithWorkers(cfg.Workers),
		sitecheck.WithTimeout(cfg.Timeout.Duration()),
		sitecheck.WithRetries(cfg.Retries),
		sitecheck.WithRetryDelay(cfg.RetryDelay.Duration()),
	}

	if cfg.Method != "" {
		opts = append(opts, sitecheck.WithMethod(cfg.Method))
	}

	if len(cfg.Headers) > 0 {
		opts = append(opts, sitecheck.WithHeaders(mapToKeyValuePairs(cfg.Headers)...))
	}

	return opts
}

// mapToKeyValuePairs converts a map to a sorted slice of key-value pairs.
func mapToKeyValuePairs(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(m)*2)
	for _, k := range keys {
		pairs = append(pairs, k, m[k])
	}
	return pairs
}
