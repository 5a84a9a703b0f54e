// Package fetch provides the HTTP implementation of a single probe attempt.
//
// [HTTPFetcher] wraps a pooled http.Client and applies the timeout of each
// attempt through the request context. It satisfies the probe.Fetcher
// contract and is shared by every worker of a run.
package fetch
