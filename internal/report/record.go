package report

import (
	"fmt"
	"strings"

	"github.com/jpalmerr/sitecheck"
)

// Order selects the order of records in a report.
type Order string

const (
	// OrderInput sorts records by the position of their target in the
	// submitted list.
	OrderInput Order = "input"

	// OrderArrival keeps records in the order their outcomes arrived.
	OrderArrival Order = "arrival"
)

// ParseOrder parses an order name. Empty selects [OrderInput].
func ParseOrder(s string) (Order, error) {
	switch o := Order(strings.ToLower(strings.TrimSpace(s))); o {
	case "":
		return OrderInput, nil
	case OrderInput, OrderArrival:
		return o, nil
	default:
		return "", fmt.Errorf("unknown report order %q (want input or arrival)", s)
	}
}

// Record is one report entry.
//
// Status is an int for a success and a string for a failure.
type Record struct {
	URL       string `json:"url" yaml:"url"`
	Status    any    `json:"status" yaml:"status"`
	TimeMS    int64  `json:"time_ms" yaml:"time_ms"`
	Timestamp int64  `json:"timestamp" yaml:"timestamp"`
}

// OK reports whether the record describes a success.
func (r Record) OK() bool {
	switch r.Status.(type) {
	case int, int64, float64:
		return true
	default:
		return false
	}
}

// FromOutcome converts one outcome to a record.
//
// Invalid UTF-8 in the target or failure reason is replaced with U+FFFD so
// the record encodes the same in every format.
func FromOutcome(o sitecheck.Outcome) Record {
	rec := Record{
		URL:       strings.ToValidUTF8(o.Target, "\uFFFD"),
		TimeMS:    o.Elapsed.Milliseconds(),
		Timestamp: o.ObservedAt.Unix(),
	}
	if o.OK() {
		rec.Status = o.StatusCode
	} else {
		rec.Status = strings.ToValidUTF8(o.Reason(), "\uFFFD")
	}
	return rec
}

// Records converts every outcome of run to a record, in the given order.
func Records(run *sitecheck.Run, order Order) []Record {
	if run == nil {
		return nil
	}

	outcomes := run.Outcomes
	if order != OrderArrival {
		outcomes = run.InTargetOrder()
	}

	records := make([]Record, len(outcomes))
	for i, o := range outcomes {
		records[i] = FromOutcome(o)
	}
	return records
}
