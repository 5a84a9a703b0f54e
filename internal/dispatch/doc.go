// Package dispatch provides the concurrent engine that probes a list of
// targets with a fixed-size worker pool.
//
// The main components are:
//
//   - [Dispatcher]: owns the intake queue and the workers, closes the result
//     stream only after every worker has exited
//   - [Collector]: drains the result stream and detects short runs
//   - [Run]: every outcome of one invocation
//   - [PoolStartupError], [ShortRunError]: the only fatal run conditions
//
// Failures of individual targets are data (see probe.Outcome), never errors
// of the run. Users of the sitecheck library should not need to interact
// with this package directly.
package dispatch
