// Package api implements the collector's HTTP read API.
//
// New(store, registry, guard) returns an http.Handler that serves:
//
//	GET /api/v1/health     — record count, drops, retention, last receive time
//	GET /api/v1/logs       — live records, newest first ([]LogResponse)
//	GET /api/v1/logs/{id}  — single record; 404 if unknown or stale
//	GET /metrics           — collector counters in the Prometheus text format
//
// /api/v1/logs accepts the query parameters level, application, environment,
// request_id, transport, app_id and limit (default 100). Only the /logs
// routes pass through guard; health and metrics stay open for probes.
//
// All JSON endpoints return 405 for non-GET methods. No external HTTP
// framework is used.
package api
