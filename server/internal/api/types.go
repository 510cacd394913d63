package api

import "github.com/segmentio/encoding/json"

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	State          string  `json:"state"` // "idle" until the first live record
	RecordCount    int     `json:"record_count"`
	DroppedTotal   uint64  `json:"dropped_total"`
	Capacity       int     `json:"capacity"`
	TTLSeconds     float64 `json:"ttl_seconds"`
	LastReceivedAt string  `json:"last_received_at,omitempty"` // RFC3339
}

// LogResponse is one record in GET /api/v1/logs or GET /api/v1/logs/{id}.
type LogResponse struct {
	ID         string          `json:"id"`
	Transport  string          `json:"transport"`
	Remote     string          `json:"remote"`
	ReceivedAt string          `json:"received_at"` // RFC3339Nano
	Record     json.RawMessage `json:"record"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
