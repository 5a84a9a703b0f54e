package dispatch

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrPoolStartup indicates the worker pool could not be started.
	// Nothing was probed and no report should be produced.
	ErrPoolStartup = errors.New("dispatch: worker pool failed to start")

	// ErrShortRun indicates the result stream ended before every target
	// produced an outcome.
	ErrShortRun = errors.New("dispatch: result stream ended early")
)

// PoolStartupError describes a pool that could not reach its configured size.
type PoolStartupError struct {
	// Requested is the configured worker count.
	Requested int

	// Err is the underlying cause, if any.
	Err error
}

func (e *PoolStartupError) Error() string {
	msg := fmt.Sprintf("worker pool failed to start with %d workers", e.Requested)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is reports whether target is [ErrPoolStartup].
func (e *PoolStartupError) Is(target error) bool {
	return target == ErrPoolStartup
}

// Unwrap returns the underlying cause.
func (e *PoolStartupError) Unwrap() error {
	return e.Err
}

// ShortRunError reports an integrity violation: some targets did not get
// exactly one outcome.
type ShortRunError struct {
	// Expected is the number of targets submitted.
	Expected int

	// Received is the number of outcomes that reached the collector.
	Received int

	// Missing lists the targets without an outcome, when known.
	Missing []string

	// Duplicates lists targets that produced more outcomes than they were
	// submitted.
	Duplicates []string
}

func (e *ShortRunError) Error() string {
	msg := fmt.Sprintf("short run: received %d of %d outcomes", e.Received, e.Expected)
	if len(e.Missing) > 0 {
		msg += " (missing " + listTargets(e.Missing) + ")"
	}
	if len(e.Duplicates) > 0 {
		msg += " (duplicated " + listTargets(e.Duplicates) + ")"
	}
	return msg
}

// listTargets joins at most five targets and counts the rest.
func listTargets(targets []string) string {
	const maxListed = 5
	listed := targets
	if len(listed) > maxListed {
		listed = listed[:maxListed]
	}
	s := strings.Join(listed, ", ")
	if extra := len(targets) - len(listed); extra > 0 {
		s += fmt.Sprintf(" and %d more", extra)
	}
	return s
}

// Is reports whether target is [ErrShortRun].
func (e *ShortRunError) Is(target error) bool {
	return target == ErrShortRun
}
