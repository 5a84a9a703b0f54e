package dispatch

import (
	"time"

	"github.com/jpalmerr/sitecheck/internal/probe"
)

// Run is the aggregate of all outcomes of one invocation.
type Run struct {
	// Targets is the submitted target list, in input order.
	Targets []string

	// Outcomes holds one outcome per target, in arrival order.
	Outcomes []probe.Outcome

	StartedAt  time.Time
	FinishedAt time.Time
}

// Collector drains a result stream into a [Run].
//
// A Collector is used by a single goroutine. The optional handler is called
// for every outcome as it arrives, before the next one is read.
type Collector struct {
	onOutcome func(probe.Outcome)
}

// NewCollector creates a [Collector]. onOutcome may be nil.
func NewCollector(onOutcome func(probe.Outcome)) *Collector {
	return &Collector{onOutcome: onOutcome}
}

// Collect reads outcomes until expected have arrived or the stream closes.
//
// Outcomes are kept in arrival order. If the stream closes first, Collect
// returns the partial run together with a [*ShortRunError].
func (c *Collector) Collect(stream <-chan probe.Outcome, expected int) (*Run, error) {
	if expected < 0 {
		expected = 0
	}
	run := &Run{Outcomes: make([]probe.Outcome, 0, expected)}

	for len(run.Outcomes) < expected {
		outcome, ok := <-stream
		if !ok {
			return run, &ShortRunError{Expected: expected, Received: len(run.Outcomes)}
		}
		run.Outcomes = append(run.Outcomes, outcome)
		if c.onOutcome != nil {
			c.onOutcome(outcome)
		}
	}

	return run, nil
}

// Collect is shorthand for NewCollector(nil).Collect(stream, expected).
func Collect(stream <-chan probe.Outcome, expected int) (*Run, error) {
	return NewCollector(nil).Collect(stream, expected)
}

// duplicateTargets returns the outcome targets that exceed the number of
// times they were submitted, one entry per surplus outcome.
func duplicateTargets(targets []string, outcomes []probe.Outcome) []string {
	remaining := make(map[string]int, len(targets))
	for _, t := range targets {
		remaining[t]++
	}

	var dups []string
	for _, o := range outcomes {
		if remaining[o.Target] > 0 {
			remaining[o.Target]--
			continue
		}
		dups = append(dups, o.Target)
	}
	return dups
}

// missingTargets returns the targets (with multiplicity) that have no
// matching outcome.
func missingTargets(targets []string, outcomes []probe.Outcome) []string {
	seen := make(map[string]int, len(outcomes))
	for _, o := range outcomes {
		seen[o.Target]++
	}

	var missing []string
	for _, t := range targets {
		if seen[t] > 0 {
			seen[t]--
			continue
		}
		missing = append(missing, t)
	}
	return missing
}
