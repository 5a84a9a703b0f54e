// Package metrics exposes probe activity to Prometheus.
//
// [Recorder] counts probes, attempts and panics and tracks in-flight probes;
// [Server] serves a custom registry over HTTP with a chi router so metrics
// can be scraped while a long run is in progress.
package metrics
