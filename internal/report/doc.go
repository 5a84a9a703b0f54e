// Package report turns a completed run into report records and renders
// them.
//
// Each outcome becomes one [Record] with the fields url, status, time_ms and
// timestamp. The status field holds the numeric HTTP status code for a
// success and the failure reason, as a string, for a failure. Consumers
// tell the two apart by JSON type, so the distinction must never be lost.
//
// Record order is chosen by the caller: [OrderInput] follows the submitted
// target list and is stable between runs; [OrderArrival] follows the order
// outcomes reached the collector.
//
// Reports are encoded as JSON or YAML and written atomically. The
// [Console] renderer prints the per-outcome progress lines and the summary
// shown while a run is in progress.
package report
