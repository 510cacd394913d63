package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/segmentio/encoding/json"

	"github.com/obsidianstack/logpush/internal/stats"
	"github.com/obsidianstack/logpush/server/internal/store"
)

// DefaultLimit is the page size of GET /api/v1/logs without ?limit.
const DefaultLimit = 100

const metricsContentType = "text/plain; version=0.0.4; charset=utf-8"

// Handler serves the read API from the record store.
type Handler struct {
	store   *store.Store
	metrics *stats.Registry
	mux     *http.ServeMux
}

// New creates a Handler wired to st and reg and registers all routes.
// guard wraps the /logs routes; pass nil for no authentication.
// Store gauges are registered on reg.
func New(st *store.Store, reg *stats.Registry, guard func(http.Handler) http.Handler) http.Handler {
	if guard == nil {
		guard = func(h http.Handler) http.Handler { return h }
	}
	h := &Handler{store: st, metrics: reg, mux: http.NewServeMux()}

	reg.GaugeFunc("logpush_collector_store_records", "Records currently held, including stale ones.",
		func() float64 { return float64(st.Count()) })
	reg.GaugeFunc("logpush_collector_store_dropped", "Records displaced by the capacity bound since start.",
		func() float64 { return float64(st.Dropped()) })

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.Handle("/api/v1/logs", guard(http.HandlerFunc(h.listLogs)))
	h.mux.Handle("/api/v1/logs/", guard(http.HandlerFunc(h.getLog))) // subtree, extracts {id}
	h.mux.HandleFunc("/metrics", h.serveMetrics)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	resp := HealthResponse{
		State:        "idle",
		RecordCount:  h.store.Count(),
		DroppedTotal: h.store.Dropped(),
		Capacity:     h.store.Capacity(),
		TTLSeconds:   h.store.TTL().Seconds(),
	}
	if latest := h.store.List(store.Filter{Limit: 1}); len(latest) == 1 {
		resp.State = "receiving"
		resp.LastReceivedAt = latest[0].ReceivedAt.UTC().Format(time.RFC3339)
	}
	jsonResp(w, http.StatusOK, resp)
}

// listLogs returns GET /api/v1/logs: live records matching the query.
func (h *Handler) listLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	f, err := parseFilter(r)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}

	entries := h.store.List(f)
	out := make([]LogResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toLogResponse(e))
	}
	jsonResp(w, http.StatusOK, out)
}

// getLog returns GET /api/v1/logs/{id}: a single live record.
func (h *Handler) getLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/v1/logs/")
	if id == "" {
		h.listLogs(w, r)
		return
	}

	e, ok := h.store.Get(id)
	if !ok {
		jsonErr(w, http.StatusNotFound, "record not found")
		return
	}
	jsonResp(w, http.StatusOK, toLogResponse(e))
}

func (h *Handler) serveMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	w.Header().Set("Content-Type", metricsContentType)
	h.metrics.WriteText(w) //nolint:errcheck
}

// --- helpers ----------------------------------------------------------------

type filterError string

func (e filterError) Error() string { return string(e) }

// parseFilter maps query parameters onto a store.Filter.
func parseFilter(r *http.Request) (store.Filter, error) {
	q := r.URL.Query()
	f := store.Filter{
		Level:       q.Get("level"),
		Application: q.Get("application"),
		Environment: q.Get("environment"),
		RequestID:   q.Get("request_id"),
		Transport:   q.Get("transport"),
		Limit:       DefaultLimit,
	}
	if s := q.Get("app_id"); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return f, filterError("app_id must be an integer")
		}
		f.AppID = v
	}
	if s := q.Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			return f, filterError("limit must be a positive integer")
		}
		f.Limit = v
	}
	return f, nil
}

func toLogResponse(e *store.Entry) LogResponse {
	return LogResponse{
		ID:         e.ID,
		Transport:  e.Transport,
		Remote:     e.Remote,
		ReceivedAt: e.ReceivedAt.UTC().Format(time.RFC3339Nano),
		Record:     json.RawMessage(e.Record),
	}
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
