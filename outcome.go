package sitecheck

import (
	"time"

	"github.com/jpalmerr/sitecheck/internal/dispatch"
	"github.com/jpalmerr/sitecheck/internal/probe"
)

// Outcome is the final result of probing one target.
//
// Outcome is a value type and is not modified after a run returns. Exactly
// one of StatusCode and Err is meaningful: a nil Err means the target
// answered with StatusCode (any code, including 5xx); a non-nil Err holds
// the failure of the last attempt. Earlier failures are not retained.
type Outcome struct {
	// Target is the probed URL, exactly as submitted.
	Target string

	// StatusCode is the HTTP status code of the successful attempt.
	// Zero when Err is non-nil.
	StatusCode int

	// Err is the last attempt's failure. nil on success.
	Err error

	// Elapsed spans first attempt start to final attempt end, including
	// the delays between retries.
	Elapsed time.Duration

	// ObservedAt is the wall-clock time the probe finished.
	ObservedAt time.Time

	// Attempts is the number of fetch attempts made.
	Attempts int
}

// OK reports whether the target answered with a status code.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Reason returns the failure description, or "" for a success.
func (o Outcome) Reason() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// Run holds every outcome of one [Checker.Run] call.
//
// Outcomes are in arrival order, which depends on worker timing and differs
// between runs. Use [Run.InTargetOrder] for a deterministic order.
type Run struct {
	// ID uniquely identifies the run.
	ID string

	// Targets is the submitted target list, in input order.
	Targets []string

	// Outcomes holds one outcome per target, in arrival order.
	Outcomes []Outcome

	// Workers is the pool size the run used.
	Workers int

	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns the wall-clock duration of the run.
func (r *Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Counts returns the number of successful and failed outcomes.
func (r *Run) Counts() (ok, failed int) {
	for _, o := range r.Outcomes {
		if o.OK() {
			ok++
		} else {
			failed++
		}
	}
	return ok, failed
}

// InTargetOrder returns the outcomes sorted by the position of their target
// in the submitted list. Repeated targets keep their relative arrival order.
// Outcomes whose target was never submitted are appended at the end.
func (r *Run) InTargetOrder() []Outcome {
	positions := make(map[string][]int, len(r.Targets))
	for i, t := range r.Targets {
		positions[t] = append(positions[t], i)
	}

	slots := make([]*Outcome, len(r.Targets))
	var extra []Outcome
	for i := range r.Outcomes {
		o := &r.Outcomes[i]
		queue := positions[o.Target]
		if len(queue) == 0 {
			extra = append(extra, *o)
			continue
		}
		slots[queue[0]] = o
		positions[o.Target] = queue[1:]
	}

	ordered := make([]Outcome, 0, len(r.Outcomes))
	for _, o := range slots {
		if o != nil {
			ordered = append(ordered, *o)
		}
	}
	return append(ordered, extra...)
}

// probeOutcomeToPublic converts an internal outcome to the public type.
func probeOutcomeToPublic(o probe.Outcome) Outcome {
	return Outcome{
		Target:     o.Target,
		StatusCode: o.StatusCode,
		Err:        o.Err,
		Elapsed:    o.Elapsed,
		ObservedAt: o.ObservedAt,
		Attempts:   o.Attempts,
	}
}

// dispatchRunToPublic converts an internal run to the public type.
func dispatchRunToPublic(id string, workers int, dr *dispatch.Run) *Run {
	outcomes := make([]Outcome, len(dr.Outcomes))
	for i, o := range dr.Outcomes {
		outcomes[i] = probeOutcomeToPublic(o)
	}
	return &Run{
		ID:         id,
		Targets:    dr.Targets,
		Outcomes:   outcomes,
		Workers:    workers,
		StartedAt:  dr.StartedAt,
		FinishedAt: dr.FinishedAt,
	}
}
