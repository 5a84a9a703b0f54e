package sitecheck

import (
	"errors"
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// ExpandGrid generates target URLs from a URL template and dimensions
// using cartesian product expansion.
//
// The URL template uses Go's text/template syntax with the sprig function
// library available. Dimension values are URL-encoded before interpolation.
// Missing template keys cause an error (fail-fast).
//
// Targets are returned in a deterministic order: dimension keys are sorted
// alphabetically and the rightmost key varies fastest. Values keep the
// order they were given in.
//
// Example:
//
//	targets, err := sitecheck.ExpandGrid(
//	    sitecheck.WithURLTemplate("https://{{.region}}.api.com/health?env={{.env | upper}}"),
//	    sitecheck.WithDimensions(map[string][]string{
//	        "region": {"us-east", "eu-west"},
//	        "env":    {"prod", "staging"},
//	    }),
//	)
//	// Returns 4 targets
func ExpandGrid(opts ...GridOption) ([]string, error) {
	var grid gridConfig
	for _, opt := range opts {
		if err := opt(&grid); err != nil {
			return nil, err
		}
	}
	switch {
	case grid.urlTemplate == "":
		return nil, errors.New("URL template required")
	case len(grid.dimensions) == 0:
		return nil, errors.New("at least one dimension required")
	}

	// a key missing from the dimensions is an error, not "<no value>"
	tmpl, err := template.New("url").
		Funcs(sprig.TxtFuncMap()).
		Option("missingkey=error").
		Parse(grid.urlTemplate)
	if err != nil {
		return nil, fmt.Errorf("invalid URL template: %w", err)
	}

	var targets []string
	for _, combo := range cartesianProduct(grid.dimensions) {
		target, err := renderTarget(tmpl, combo, grid.validate)
		if err != nil {
			return nil, err
		}
		targets = append(targets, target)
	}
	return targets, nil
}

// renderTarget executes tmpl for one combination of dimension values.
func renderTarget(tmpl *template.Template, combo map[string]string, validate bool) (string, error) {
	raw, err := executeTemplate(tmpl, urlEncodeMap(combo))
	if err != nil {
		return "", fmt.Errorf("template execution failed: %w", err)
	}

	target := strings.TrimSpace(raw)
	if target == "" {
		return "", fmt.Errorf("template produced an empty URL for %s", formatCombo(combo))
	}
	if validate {
		if err := validateTarget(target); err != nil {
			return "", fmt.Errorf("template produced an invalid URL for %s: %w", formatCombo(combo), err)
		}
	}
	return target, nil
}

// cartesianProduct returns every combination of dimension values, built
// one key at a time in sorted key order so the last key varies fastest.
// Values keep their slice order. An empty dimension yields no combinations.
//
//	{"x": ["a","b"], "y": ["1","2"]} -> x=a,y=1  x=a,y=2  x=b,y=1  x=b,y=2
func cartesianProduct(dims map[string][]string) []map[string]string {
	keys := sortedKeys(dims)
	if len(keys) == 0 {
		return nil
	}

	combos := []map[string]string{{}}
	for _, k := range keys {
		next := make([]map[string]string, 0, len(combos)*len(dims[k]))
		for _, partial := range combos {
			for _, v := range dims[k] {
				combo := maps.Clone(partial)
				combo[k] = v
				next = append(next, combo)
			}
		}
		combos = next
	}
	return combos
}

// urlEncodeMap query-escapes every value of combo into a new map.
func urlEncodeMap(combo map[string]string) map[string]string {
	escaped := make(map[string]string, len(combo))
	for k, v := range combo {
		escaped[k] = url.QueryEscape(v)
	}
	return escaped
}

// executeTemplate renders the template with the given data.
func executeTemplate(tmpl *template.Template, data map[string]string) (string, error) {
	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// formatCombo renders a combination as "k1=v1,k2=v2" in sorted key order.
func formatCombo(combo map[string]string) string {
	keys := sortedKeys(combo)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + combo[k]
	}
	return strings.Join(parts, ",")
}

// validateTarget checks that target is an absolute http(s) URL.
func validateTarget(target string) error {
	u, err := url.Parse(target)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
