// Package probe runs the retry policy for a single target.
//
// The main components are:
//
//   - [Fetcher]: one network attempt against a target
//   - [RetryPolicy]: attempt count, per-attempt timeout and fixed delay
//   - [Outcome]: the final result for one target after all attempts
//   - [Do]: executes the policy and always returns an Outcome
//
// Users of the sitecheck library should not need to interact with this
// package directly. Configuration is done through the main sitecheck package.
package probe
