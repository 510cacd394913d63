// Package transport delivers a single LogRecord to the collector over HTTP or
// UDP.
//
// Send returns nil on success and an error otherwise; it never retries, never
// panics, and never shares a connection between calls. Each variant owns its
// timeout:
//
//   - HTTP: one POST with a hard 100ms budget, keep-alives disabled, a fresh
//     http.Transport per call. The body is either the raw record JSON or
//     {"log": base64(zlib(json))} depending on the compress setting.
//   - UDP: one datagram carrying zlib(json). Resolving and connecting share a
//     500ms budget; any reply is read only when debug tracing is on, behind a
//     short read deadline.
//
// Debug tracing goes to an optional *slog.Logger; a nil logger disables it.
// Codec helpers (EncodeRecord, Deflate, Inflate, WrapHTTP, UnwrapHTTP) are
// shared with the collector so both ends agree on the wire format.
package transport
