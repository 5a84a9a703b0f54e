package report

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"gopkg.in/yaml.v3"
)

// Format selects the report encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat parses a format name. Empty selects [FormatJSON]; "yml" is
// accepted for YAML.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown report format %q (want json or yaml)", s)
	}
}

// Encode writes records to w in the given format.
//
// JSON output is an array indented by two spaces and ends with a newline.
// An empty record list is encoded as an empty array, never null. Invalid
// UTF-8 in string fields is written as U+FFFD rather than rejected.
func Encode(w io.Writer, format Format, records []Record) error {
	if records == nil {
		records = []Record{}
	}

	switch format {
	case FormatJSON, "":
		data, err := json.Marshal(records,
			jsontext.WithIndent("  "),
			jsontext.AllowInvalidUTF8(true),
		)
		if err != nil {
			return fmt.Errorf("failed to encode JSON report: %w", err)
		}
		data = append(data, '\n')
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(records); err != nil {
			return fmt.Errorf("failed to encode YAML report: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("failed to encode YAML report: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

// Decode reads records written by [Encode].
//
// Numeric statuses are returned as int, so decoded records compare equal
// to the ones that were encoded.
func Decode(r io.Reader, format Format) ([]Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}

	var records []Record
	switch format {
	case FormatJSON, "":
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("failed to decode JSON report: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("failed to decode YAML report: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown report format %q", format)
	}

	for i := range records {
		records[i].Status = normalizeStatus(records[i].Status)
	}
	return records, nil
}

// normalizeStatus maps decoded numbers back to int.
func normalizeStatus(v any) any {
	switch s := v.(type) {
	case float64:
		return int(s)
	case int64:
		return int(s)
	case uint64:
		return int(s)
	default:
		return v
	}
}

// WriteFile encodes records and atomically replaces the file at path.
//
// The report is written to a temporary file in the same directory and
// renamed into place, so readers never observe a partial report.
func WriteFile(path string, format Format, records []Record) (err error) {
	var buf bytes.Buffer
	if err := Encode(&buf, format, records); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write report file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync report file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close report file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("failed to set report file mode: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace report file: %w", err)
	}
	return nil
}

// ReadFile reads a report written by [WriteFile].
func ReadFile(path string, format Format) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open report: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Decode(f, format)
}
