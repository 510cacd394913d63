// Package logpush ships error records to a remote collector, best effort.
//
// Emit is the only call application code needs:
//
//	logpush.EmitError(err, map[string]any{"user_id": uid, "request_id": rid})
//
//	logpush.Emit(logpush.ErrorInfoFrom(err), fields, "WARN", "billing", "staging")
//
// Configuration is read once, lazily, from LogConfig.json in the process
// working directory (or $LOGPUSH_CONFIG). push_type picks HTTP (100ms budget)
// or UDP (500ms budget). Emit never panics and never reports failure: a
// missing config file, an unreachable collector or an unencodable context
// value only show up as debug output and in the delivery counters.
//
// Emit blocks for at most the transport timeout. Callers that must not wait
// at all run it in a goroutine:
//
//	go logpush.EmitError(err, fields)
//
// A Dispatcher built with New owns its own config cache; the package-level
// functions share one process-wide Dispatcher.
package logpush
