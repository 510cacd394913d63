// Package stats keeps in-process delivery counters and renders them in the
// Prometheus text exposition format.
//
// A Registry hands out CounterVecs (optionally keyed by one label) and
// GaugeFuncs, and Gather converts them to client_model MetricFamilies that
// WriteText encodes with expfmt. Parse and Sum read an exposition back, which
// the CLI and tests use to inspect a running collector's /metrics.
package stats
