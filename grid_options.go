package sitecheck

import (
	"errors"
	"fmt"
	"slices"
)

// gridConfig collects the settings of one [ExpandGrid] call.
type gridConfig struct {
	urlTemplate string
	dimensions  map[string][]string
	validate    bool
}

// GridOption configures [ExpandGrid].
type GridOption func(*gridConfig) error

// WithURLTemplate sets the text/template source each target is rendered
// from, e.g. "https://{{.region}}.example.com/health?env={{.env}}".
// Sprig functions such as upper and trimPrefix can be used.
func WithURLTemplate(tmpl string) GridOption {
	return func(cfg *gridConfig) error {
		if tmpl == "" {
			return errors.New("URL template required")
		}
		cfg.urlTemplate = tmpl
		return nil
	}
}

// WithDimensions sets the template variables and their values. One target
// is rendered per combination, so {env: [prod, staging], region: [us, eu]}
// yields four.
//
// Every dimension needs at least one value and values cannot be empty.
func WithDimensions(dims map[string][]string) GridOption {
	return func(cfg *gridConfig) error {
		if len(dims) == 0 {
			return errors.New("at least one dimension required")
		}
		for name, values := range dims {
			if len(values) == 0 {
				return fmt.Errorf("dimension '%s' has no values", name)
			}
			if i := slices.Index(values, ""); i >= 0 {
				return fmt.Errorf("dimension '%s' contains empty value at index %d", name, i)
			}
		}
		cfg.dimensions = dims
		return nil
	}
}

// WithURLValidation makes [ExpandGrid] reject generated targets that are not
// absolute http or https URLs. Off by default: malformed targets are
// otherwise reported as failed outcomes at probe time.
func WithURLValidation() GridOption {
	return func(cfg *gridConfig) error {
		cfg.validate = true
		return nil
	}
}
