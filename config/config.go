// Package config provides YAML configuration parsing for sitecheck.
//
// A configuration file is optional: every setting has a command-line flag
// and a SITECHECK_* environment variable, and the file only supplies values
// those leave unset.
//
// Example configuration:
//
//	workers: 16
//	timeout: 3s
//	retries: 2
//	retry_delay: 250ms
//	headers:
//	  Authorization: Bearer ${API_TOKEN}
//
//	targets:
//	  - https://example.com
//	target_files:
//	  - urls.txt
//
//	grids:
//	  - name: Platform
//	    url_template: "https://{{.env}}.example.com/health"
//	    dimensions:
//	      env: [prod, staging]
//
//	report:
//	  path: status.json
//	  format: json
//	  order: input
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	"github.com/jpalmerr/sitecheck"
)

// Defaults for settings not given anywhere.
const (
	DefaultTimeout     = 5 * time.Second
	DefaultRetryDelay  = 100 * time.Millisecond
	DefaultReportPath  = "status.json"
	DefaultServiceName = "sitecheck"
)

// Config is the root configuration structure for sitecheck.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML, or [Default] for the
// built-in defaults.
type Config struct {
	// Workers is the size of the worker pool. Defaults to the number of
	// CPUs, or 4 when that is unknown.
	Workers int `yaml:"workers"`

	// Timeout is the per-attempt timeout. Accepts "5s", "500ms" or a bare
	// number of seconds. Defaults to 5s.
	Timeout Duration `yaml:"timeout"`

	// Retries is the number of retries after the first attempt.
	Retries int `yaml:"retries"`

	// RetryDelay is slept before every retry. Defaults to 100ms.
	RetryDelay Duration `yaml:"retry_delay"`

	// Method is GET (default) or HEAD.
	Method string `yaml:"method"`

	// Headers are sent with every request.
	// Values support environment variable substitution.
	Headers map[string]string `yaml:"headers"`

	// Targets are probed in the order listed.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	Targets []string `yaml:"targets"`

	// TargetFiles are target lists, one URL per line. Relative paths are
	// resolved against the directory of the configuration file.
	TargetFiles []string `yaml:"target_files"`

	// Grids expand into targets via cartesian product.
	Grids []GridConfig `yaml:"grids"`

	Report  ReportConfig  `yaml:"report"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
	History HistoryConfig `yaml:"history"`

	// dir is the directory of the loaded file, for resolving TargetFiles.
	dir string
}

// GridConfig defines a target grid that expands via cartesian product.
//
// For example, with dimensions {env: [prod, staging], svc: [api, web]},
// the grid expands to 4 targets.
type GridConfig struct {
	// Name identifies the grid in error messages.
	Name string `yaml:"name"`

	// URLTemplate is a Go template for generating target URLs.
	// Dimension keys are available as template variables: {{.env}}, {{.svc}}
	// Sprig functions are available. Supports environment variable
	// substitution in the template.
	URLTemplate string `yaml:"url_template"`

	// Dimensions maps dimension names to their possible values.
	Dimensions map[string][]string `yaml:"dimensions"`
}

// ReportConfig controls the report file.
type ReportConfig struct {
	// Path is the report file. Defaults to status.json.
	Path string `yaml:"path"`

	// Format is json (default) or yaml.
	Format string `yaml:"format"`

	// Order is input (default) or arrival.
	Order string `yaml:"order"`
}

// LogConfig controls diagnostic logging.
type LogConfig struct {
	// Level is debug, info, warn or error. Defaults to warn.
	Level string `yaml:"level"`

	// Format is json or text. Defaults to text.
	Format string `yaml:"format"`

	// File sends logs to a rotated file instead of stderr.
	File string `yaml:"file"`
}

// MetricsConfig controls the Prometheus endpoint served during a run.
type MetricsConfig struct {
	// Addr is the listen address, e.g. ":9090". Empty disables metrics.
	Addr string `yaml:"addr"`
}

// TracingConfig controls OTLP trace export.
type TracingConfig struct {
	// Endpoint is the OTLP gRPC collector address. Empty disables tracing.
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS towards the collector.
	Insecure bool `yaml:"insecure"`

	// ServiceName is reported as service.name. Defaults to sitecheck.
	ServiceName string `yaml:"service_name"`

	// SampleRatio is the fraction of runs traced, between 0 and 1.
	// Defaults to 1.
	SampleRatio float64 `yaml:"sample_ratio"`
}

// HistoryConfig controls the run history database.
type HistoryConfig struct {
	// Path is a SQLite database file or a postgres:// URL. Supports
	// environment variable substitution. Empty disables history.
	Path string `yaml:"path"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
// Both duration strings ("5s") and bare numbers of seconds (5) are accepted.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := ParseDuration(s)
	if err != nil {
		return err
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// String returns the duration in time.Duration notation.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// ParseDuration parses a Go duration string or a bare number of seconds,
// which may be fractional ("1.5").
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsNaN(secs) || math.IsInf(secs, 0) {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return d, nil
}

// Default returns the configuration used when nothing else is given.
func Default() *Config {
	return &Config{
		Workers:    sitecheck.DefaultWorkers(),
		Timeout:    Duration(DefaultTimeout),
		RetryDelay: Duration(DefaultRetryDelay),
		Method:     "GET",
		Report: ReportConfig{
			Path:   DefaultReportPath,
			Format: "json",
			Order:  "input",
		},
		Log: LogConfig{
			Level:  "warn",
			Format: "text",
		},
		Tracing: TracingConfig{
			ServiceName: DefaultServiceName,
			SampleRatio: 1,
		},
	}
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		sub := envVarPattern.FindStringSubmatch(match)
		name := sub[1]
		hasDefault := sub[2] != ""

		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		if hasDefault {
			return sub[3]
		}
		firstErr = fmt.Errorf("environment variable %q is not set", name)
		return match
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded before validation.
// Returns an error if the file cannot be read, parsed or validated.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.dir = filepath.Dir(path)
	return cfg, nil
}

// Parse parses YAML configuration data on top of [Default].
//
// Unknown keys are rejected. An empty document yields the defaults.
//
// Environment variables are expanded in targets, target files, grid
// templates, header values, the tracing endpoint and the history path.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cfg.expand(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Dir returns the directory relative target files are resolved against.
func (c *Config) Dir() string {
	if c.dir == "" {
		return "."
	}
	return c.dir
}

// expand substitutes environment variables in place.
func (c *Config) expand() error {
	for i, t := range c.Targets {
		expanded, err := expandEnvVars(t)
		if err != nil {
			return fmt.Errorf("targets[%d]: %w", i, err)
		}
		c.Targets[i] = strings.TrimSpace(expanded)
	}

	for i, f := range c.TargetFiles {
		expanded, err := expandEnvVars(f)
		if err != nil {
			return fmt.Errorf("target_files[%d]: %w", i, err)
		}
		c.TargetFiles[i] = expanded
	}

	for k, v := range c.Headers {
		expanded, err := expandEnvVars(v)
		if err != nil {
			return fmt.Errorf("headers[%s]: %w", k, err)
		}
		c.Headers[k] = expanded
	}

	for i := range c.Grids {
		g := &c.Grids[i]
		expanded, err := expandEnvVars(g.URLTemplate)
		if err != nil {
			return fmt.Errorf("%s: url_template: %w", g.label(i), err)
		}
		g.URLTemplate = expanded
	}

	expanded, err := expandEnvVars(c.Tracing.Endpoint)
	if err != nil {
		return fmt.Errorf("tracing.endpoint: %w", err)
	}
	c.Tracing.Endpoint = expanded

	expanded, err = expandEnvVars(c.History.Path)
	if err != nil {
		return fmt.Errorf("history.path: %w", err)
	}
	c.History.Path = expanded

	return nil
}

// Validate checks the configuration.
//
// A workers value of zero is accepted here: running with it fails with a
// pool startup error, which is reported as such.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Workers, validation.Min(0)),
		validation.Field(&c.Timeout, validation.By(positiveDuration)),
		validation.Field(&c.Retries, validation.Min(0)),
		validation.Field(&c.RetryDelay, validation.By(nonNegativeDuration)),
		validation.Field(&c.Method, validation.In("GET", "HEAD", "get", "head")),
		validation.Field(&c.Report),
		validation.Field(&c.Log),
		validation.Field(&c.Metrics),
		validation.Field(&c.Tracing),
	); err != nil {
		return yamlKeyed(err, c)
	}

	for i, t := range c.Targets {
		if err := ValidateTarget(t); err != nil {
			return fmt.Errorf("targets[%d]: %w", i, err)
		}
	}

	for i, f := range c.TargetFiles {
		if strings.TrimSpace(f) == "" {
			return fmt.Errorf("target_files[%d]: path is required", i)
		}
	}

	for i := range c.Grids {
		if err := c.Grids[i].validate(i); err != nil {
			return err
		}
	}

	return nil
}

// Validate implements validation.Validatable.
func (r ReportConfig) Validate() error {
	return yamlKeyed(validation.ValidateStruct(&r,
		validation.Field(&r.Path, validation.Required),
		validation.Field(&r.Format, validation.In("json", "yaml", "yml")),
		validation.Field(&r.Order, validation.In("input", "arrival")),
	), &r)
}

// Validate implements validation.Validatable.
func (l LogConfig) Validate() error {
	return yamlKeyed(validation.ValidateStruct(&l,
		validation.Field(&l.Level, validation.In("debug", "info", "warn", "warning", "error")),
		validation.Field(&l.Format, validation.In("json", "text")),
	), &l)
}

// Validate implements validation.Validatable.
func (m MetricsConfig) Validate() error {
	return yamlKeyed(validation.ValidateStruct(&m,
		validation.Field(&m.Addr, validation.By(validateHostPort)),
	), &m)
}

// Validate implements validation.Validatable.
func (t TracingConfig) Validate() error {
	return yamlKeyed(validation.ValidateStruct(&t,
		validation.Field(&t.SampleRatio, validation.Min(0.0), validation.Max(1.0)),
	), &t)
}

// yamlKeyed renames the keys of ozzo validation errors from Go field
// names to the YAML keys of v's struct type, recursing into nested structs.
func yamlKeyed(err error, v any) error {
	errs, ok := err.(validation.Errors)
	if !ok {
		return err
	}
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	renamed := make(validation.Errors, len(errs))
	for name, fieldErr := range errs {
		key := name
		if f, found := t.FieldByName(name); found {
			if tag, _, _ := strings.Cut(f.Tag.Get("yaml"), ","); tag != "" && tag != "-" {
				key = tag
			}
			if f.Type.Kind() == reflect.Struct {
				fieldErr = yamlKeyed(fieldErr, reflect.Zero(f.Type).Interface())
			}
		}
		renamed[key] = fieldErr
	}
	return renamed
}

func (g *GridConfig) label(i int) string {
	if g.Name == "" {
		return fmt.Sprintf("grids[%d]", i)
	}
	return fmt.Sprintf("grids[%d] (%s)", i, g.Name)
}

func (g *GridConfig) validate(i int) error {
	if g.URLTemplate == "" {
		return fmt.Errorf("%s: url_template is required", g.label(i))
	}

	// fail fast before expansion tries to use an invalid template
	if _, err := template.New("").Funcs(sprig.TxtFuncMap()).Parse(g.URLTemplate); err != nil {
		return fmt.Errorf("%s: invalid url_template: %w", g.label(i), err)
	}

	if len(g.Dimensions) == 0 {
		return fmt.Errorf("%s: at least one dimension is required", g.label(i))
	}
	for name, values := range g.Dimensions {
		if len(values) == 0 {
			return fmt.Errorf("%s: dimension %q has no values", g.label(i), name)
		}
		seen := make(map[string]struct{}, len(values))
		for _, v := range values {
			if _, exists := seen[v]; exists {
				return fmt.Errorf("%s: dimension %q has duplicate value %q", g.label(i), name, v)
			}
			seen[v] = struct{}{}
		}
	}
	return nil
}

// ValidateTarget checks that target is an absolute http or https URL.
func ValidateTarget(target string) error {
	if target == "" {
		return errors.New("url is required")
	}
	parsed, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return errors.New("url must have a host")
	}
	return nil
}

func positiveDuration(value any) error {
	d, _ := value.(Duration)
	if d <= 0 {
		return validation.NewError("validation_duration_positive", "must be a positive duration")
	}
	return nil
}

func nonNegativeDuration(value any) error {
	d, _ := value.(Duration)
	if d < 0 {
		return validation.NewError("validation_duration_negative", "cannot be negative")
	}
	return nil
}

func validateHostPort(value any) error {
	addr, _ := value.(string)
	if addr == "" {
		return nil
	}
	if _, port, err := net.SplitHostPort(addr); err != nil || port == "" {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}
	return nil
}
