package api_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/segmentio/encoding/json"

	"github.com/obsidianstack/logpush/internal/stats"
	"github.com/obsidianstack/logpush/server/internal/api"
	"github.com/obsidianstack/logpush/server/internal/auth"
	"github.com/obsidianstack/logpush/server/internal/store"
)

// --- test helpers -----------------------------------------------------------

func newStore(entries ...*store.Entry) *store.Store {
	st := store.New(5*time.Minute, 100)
	for _, e := range entries {
		st.Put(e)
	}
	return st
}

func entry(app, level string, appID int64) *store.Entry {
	return &store.Entry{
		Transport:   "http",
		Remote:      "127.0.0.1:5000",
		Application: app,
		Level:       level,
		AppID:       appID,
		Record:      []byte(`{"application":"` + app + `","level":"` + level + `"}`),
	}
}

func newHandler(st *store.Store) http.Handler {
	return api.New(st, stats.NewRegistry(), nil)
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v (body: %s)", err, rr.Body.String())
	}
}

// --- /api/v1/health ---------------------------------------------------------

func TestHealth_EmptyStore(t *testing.T) {
	rr := get(t, newHandler(newStore()), "/api/v1/health")

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.HealthResponse
	decode(t, rr, &resp)

	if resp.State != "idle" || resp.RecordCount != 0 {
		t.Errorf("health: got %+v", resp)
	}
	if resp.Capacity != 100 || resp.TTLSeconds != 300 {
		t.Errorf("capacity/ttl: got %d/%v", resp.Capacity, resp.TTLSeconds)
	}
	if resp.LastReceivedAt != "" {
		t.Errorf("last_received_at: got %q, want empty", resp.LastReceivedAt)
	}
}

func TestHealth_Receiving(t *testing.T) {
	rr := get(t, newHandler(newStore(entry("a", "ERROR", 1), entry("b", "WARN", 1))), "/api/v1/health")
	var resp api.HealthResponse
	decode(t, rr, &resp)

	if resp.State != "receiving" || resp.RecordCount != 2 {
		t.Errorf("health: got %+v", resp)
	}
	if _, err := time.Parse(time.RFC3339, resp.LastReceivedAt); err != nil {
		t.Errorf("last_received_at %q: %v", resp.LastReceivedAt, err)
	}
}

func TestHealth_MethodNotAllowed(t *testing.T) {
	rr := httptest.NewRecorder()
	newHandler(newStore()).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/health", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", rr.Code)
	}
}

// --- /api/v1/logs -----------------------------------------------------------

func TestListLogs_Empty(t *testing.T) {
	rr := get(t, newHandler(newStore()), "/api/v1/logs")

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp []interface{}
	decode(t, rr, &resp)
	if len(resp) != 0 {
		t.Errorf("logs: got %d items, want 0", len(resp))
	}
}

func TestListLogs_FieldsPresent(t *testing.T) {
	rr := get(t, newHandler(newStore(entry("billing", "ERROR", 7))), "/api/v1/logs")
	var resp []map[string]interface{}
	decode(t, rr, &resp)

	if len(resp) != 1 {
		t.Fatalf("got %d items, want 1", len(resp))
	}
	l := resp[0]
	if l["id"] == "" || l["id"] == nil {
		t.Error("id: missing")
	}
	if l["transport"] != "http" || l["remote"] != "127.0.0.1:5000" {
		t.Errorf("transport/remote: got %v/%v", l["transport"], l["remote"])
	}
	rec, ok := l["record"].(map[string]interface{})
	if !ok {
		t.Fatalf("record: got %T, want embedded object", l["record"])
	}
	if rec["application"] != "billing" {
		t.Errorf("record.application: got %v", rec["application"])
	}
}

func TestListLogs_Query(t *testing.T) {
	h := newHandler(newStore(
		entry("billing", "ERROR", 1),
		entry("billing", "WARN", 1),
		entry("search", "ERROR", 2),
	))

	cases := []struct {
		query string
		want  int
	}{
		{"", 3},
		{"?application=billing", 2},
		{"?level=ERROR", 2},
		{"?app_id=2", 1},
		{"?application=billing&level=WARN", 1},
		{"?limit=1", 1},
		{"?transport=udp", 0},
	}
	for _, tc := range cases {
		t.Run(tc.query, func(t *testing.T) {
			rr := get(t, h, "/api/v1/logs"+tc.query)
			if rr.Code != http.StatusOK {
				t.Fatalf("status: got %d, want 200", rr.Code)
			}
			var resp []api.LogResponse
			decode(t, rr, &resp)
			if len(resp) != tc.want {
				t.Errorf("got %d records, want %d", len(resp), tc.want)
			}
		})
	}
}

func TestListLogs_BadQuery(t *testing.T) {
	h := newHandler(newStore())
	for _, q := range []string{"?app_id=abc", "?limit=0", "?limit=-3", "?limit=many"} {
		if rr := get(t, h, "/api/v1/logs"+q); rr.Code != http.StatusBadRequest {
			t.Errorf("%s: got %d, want 400", q, rr.Code)
		}
	}
}

func TestListLogs_DefaultLimit(t *testing.T) {
	st := store.New(5*time.Minute, api.DefaultLimit+20)
	for i := 0; i < api.DefaultLimit+10; i++ {
		st.Put(entry("a", "ERROR", 1))
	}
	var resp []api.LogResponse
	decode(t, get(t, newHandler(st), "/api/v1/logs"), &resp)
	if len(resp) != api.DefaultLimit {
		t.Errorf("got %d records, want %d", len(resp), api.DefaultLimit)
	}
}

func TestListLogs_MethodNotAllowed(t *testing.T) {
	rr := httptest.NewRecorder()
	newHandler(newStore()).ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/api/v1/logs", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", rr.Code)
	}
}

// --- /api/v1/logs/{id} ------------------------------------------------------

func TestGetLog_Found(t *testing.T) {
	st := newStore()
	e := st.Put(entry("billing", "ERROR", 1))

	rr := get(t, newHandler(st), "/api/v1/logs/"+e.ID)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.LogResponse
	decode(t, rr, &resp)
	if resp.ID != e.ID {
		t.Errorf("id: got %q, want %q", resp.ID, e.ID)
	}
	if _, err := time.Parse(time.RFC3339Nano, resp.ReceivedAt); err != nil {
		t.Errorf("received_at %q: %v", resp.ReceivedAt, err)
	}
}

func TestGetLog_NotFound(t *testing.T) {
	rr := get(t, newHandler(newStore()), "/api/v1/logs/does-not-exist")
	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", rr.Code)
	}
}

func TestGetLog_TrailingSlashLists(t *testing.T) {
	rr := get(t, newHandler(newStore(entry("a", "ERROR", 1))), "/api/v1/logs/")
	var resp []api.LogResponse
	decode(t, rr, &resp)
	if len(resp) != 1 {
		t.Errorf("got %d records, want 1", len(resp))
	}
}

// --- auth -------------------------------------------------------------------

func TestLogs_GuardedHealthOpen(t *testing.T) {
	st := newStore(entry("a", "ERROR", 1))
	h := api.New(st, stats.NewRegistry(), auth.APIKey("apikey", "x-api-key", "secret"))

	if rr := get(t, h, "/api/v1/logs"); rr.Code != http.StatusUnauthorized {
		t.Errorf("logs without key: got %d, want 401", rr.Code)
	}
	if rr := get(t, h, "/api/v1/health"); rr.Code != http.StatusOK {
		t.Errorf("health without key: got %d, want 200", rr.Code)
	}
	if rr := get(t, h, "/metrics"); rr.Code != http.StatusOK {
		t.Errorf("metrics without key: got %d, want 200", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/logs", nil)
	req.Header.Set("x-api-key", "secret")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("logs with key: got %d, want 200", rr.Code)
	}
}

// --- /metrics ---------------------------------------------------------------

func TestMetrics_StoreGauges(t *testing.T) {
	st := store.New(5*time.Minute, 2)
	for i := 0; i < 3; i++ {
		st.Put(entry("a", "ERROR", 1))
	}
	reg := stats.NewRegistry()
	reg.Counter("logpush_collector_received_total", "Records accepted.", "transport").Inc("udp")

	rr := get(t, api.New(st, reg, nil), "/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type: got %q", ct)
	}

	families, err := stats.Parse(rr.Body)
	if err != nil {
		t.Fatalf("parse metrics: %v", err)
	}
	want := map[string]float64{
		"logpush_collector_store_records":  2,
		"logpush_collector_store_dropped":  1,
		"logpush_collector_received_total": 1,
	}
	for name, v := range want {
		mf, ok := families[name]
		if !ok {
			t.Errorf("metric %s missing", name)
			continue
		}
		if got := stats.Sum(mf); got != v {
			t.Errorf("%s: got %v, want %v", name, got, v)
		}
	}
}
