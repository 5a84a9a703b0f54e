package dispatch

import (
	"errors"
	"strings"
	"testing"

	"github.com/jpalmerr/sitecheck/internal/probe"
)

func streamOf(outcomes ...probe.Outcome) chan probe.Outcome {
	ch := make(chan probe.Outcome, len(outcomes))
	for _, o := range outcomes {
		ch <- o
	}
	return ch
}

// TestCollect_ArrivalOrder verifies that outcomes are kept in the order
// they were read from the stream.
func TestCollect_ArrivalOrder(t *testing.T) {
	ch := streamOf(
		probe.Outcome{Target: "http://c"},
		probe.Outcome{Target: "http://a"},
		probe.Outcome{Target: "http://b"},
	)
	close(ch)

	run, err := Collect(ch, 3)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	want := []string{"http://c", "http://a", "http://b"}
	for i, o := range run.Outcomes {
		if o.Target != want[i] {
			t.Errorf("Outcomes[%d].Target = %q, want %q", i, o.Target, want[i])
		}
	}
}

// TestCollect_ShortStream verifies that a stream closing early is reported
// as a ShortRunError with the partial run.
func TestCollect_ShortStream(t *testing.T) {
	ch := streamOf(probe.Outcome{Target: "http://a"}, probe.Outcome{Target: "http://b"})
	close(ch)

	run, err := Collect(ch, 3)

	if !errors.Is(err, ErrShortRun) {
		t.Fatalf("Collect() error = %v, want ErrShortRun", err)
	}
	var shortRun *ShortRunError
	if !errors.As(err, &shortRun) {
		t.Fatalf("error type = %T, want *ShortRunError", err)
	}
	if shortRun.Expected != 3 || shortRun.Received != 2 {
		t.Errorf("ShortRunError = %d/%d, want 2/3", shortRun.Received, shortRun.Expected)
	}
	if len(run.Outcomes) != 2 {
		t.Errorf("len(Outcomes) = %d, want 2", len(run.Outcomes))
	}
}

// TestCollect_StopsAtExpected verifies that Collect returns as soon as the
// expected count is reached, without waiting for the stream to close.
func TestCollect_StopsAtExpected(t *testing.T) {
	ch := streamOf(probe.Outcome{Target: "http://a"}, probe.Outcome{Target: "http://b"})
	// channel deliberately left open

	run, err := Collect(ch, 2)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(run.Outcomes) != 2 {
		t.Errorf("len(Outcomes) = %d, want 2", len(run.Outcomes))
	}
}

// TestCollect_ZeroExpected verifies that nothing is read when no outcomes
// are expected.
func TestCollect_ZeroExpected(t *testing.T) {
	ch := make(chan probe.Outcome)

	run, err := Collect(ch, 0)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(run.Outcomes) != 0 {
		t.Errorf("len(Outcomes) = %d, want 0", len(run.Outcomes))
	}
}

// TestCollector_Handler verifies that the handler is invoked per outcome.
func TestCollector_Handler(t *testing.T) {
	ch := streamOf(probe.Outcome{Target: "http://a"}, probe.Outcome{Target: "http://b"})
	close(ch)

	var seen []string
	_, err := NewCollector(func(o probe.Outcome) { seen = append(seen, o.Target) }).Collect(ch, 2)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if strings.Join(seen, ",") != "http://a,http://b" {
		t.Errorf("handler saw %v, want [http://a http://b]", seen)
	}
}

// TestMissingTargets verifies multiset-aware detection of missing targets.
func TestMissingTargets(t *testing.T) {
	targets := []string{"a", "b", "a", "c"}
	outcomes := []probe.Outcome{{Target: "a"}, {Target: "c"}}

	got := missingTargets(targets, outcomes)

	if strings.Join(got, ",") != "b,a" {
		t.Errorf("missingTargets() = %v, want [b a]", got)
	}
}

// TestShortRunError_Message verifies that long missing lists are truncated.
func TestShortRunError_Message(t *testing.T) {
	err := &ShortRunError{
		Expected: 10,
		Received: 3,
		Missing:  []string{"1", "2", "3", "4", "5", "6", "7"},
	}
	want := "short run: received 3 of 10 outcomes (missing 1, 2, 3, 4, 5 and 2 more)"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

// TestDuplicateTargets verifies that only surplus outcomes are reported.
func TestDuplicateTargets(t *testing.T) {
	targets := []string{"a", "b", "a"}
	outcomes := []probe.Outcome{{Target: "a"}, {Target: "a"}, {Target: "a"}, {Target: "b"}}

	got := duplicateTargets(targets, outcomes)

	if strings.Join(got, ",") != "a" {
		t.Errorf("duplicateTargets() = %v, want [a]", got)
	}
	if dups := duplicateTargets(targets, outcomes[1:]); len(dups) != 0 {
		t.Errorf("duplicateTargets() = %v, want none", dups)
	}
}

// TestShortRunError_DuplicatesMessage verifies that duplicated targets are
// named alongside missing ones.
func TestShortRunError_DuplicatesMessage(t *testing.T) {
	err := &ShortRunError{
		Expected:   2,
		Received:   2,
		Missing:    []string{"b"},
		Duplicates: []string{"a"},
	}
	want := "short run: received 2 of 2 outcomes (missing b) (duplicated a)"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, ErrShortRun) {
		t.Error("errors.Is(err, ErrShortRun) = false, want true")
	}
}
