package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// ReadTargets reads one target per line.
//
// Lines are trimmed; blank lines and lines starting with # are skipped.
// Targets are returned in file order and are not validated: a malformed
// target becomes a failed outcome when probed.
func ReadTargets(r io.Reader) ([]string, error) {
	var targets []string

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		targets = append(targets, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read targets: %w", err)
	}
	return targets, nil
}

// LoadTargetFile reads targets from the file at path. A path of "-" reads
// standard input.
func LoadTargetFile(path string) ([]string, error) {
	if path == "-" {
		return ReadTargets(os.Stdin)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open target file: %w", err)
	}
	defer func() { _ = f.Close() }()

	targets, err := ReadTargets(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return targets, nil
}
