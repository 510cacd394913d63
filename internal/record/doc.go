// Package record assembles the fixed-shape LogRecord shipped to the collector.
//
// Every record carries the same nineteen keys; fields that cannot be derived
// from the inputs encode as JSON null instead of being omitted, so downstream
// consumers can rely on a fixed-width row.
//
// Builder.Build is pure apart from two environment reads (clock and
// hostname), both injectable. ErrorInfoFrom captures message, goroutine stack
// and caller position from a Go error.
package record
