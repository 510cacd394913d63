package receiver_test

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/obsidianstack/logpush/internal/record"
	"github.com/obsidianstack/logpush/internal/stats"
	"github.com/obsidianstack/logpush/internal/transport"
	"github.com/obsidianstack/logpush/server/internal/receiver"
	"github.com/obsidianstack/logpush/server/internal/store"
)

func makeRecord(requestID string) record.LogRecord {
	info := &record.ErrorInfo{Message: "disk full", Trace: "trace", File: "main.go", Line: 9}
	return record.NewBuilder(77).Build(info,
		map[string]any{"user_id": "u1", "request_id": requestID}, "ERROR", "billing", "staging")
}

func newReceiver(ack bool) (*receiver.Receiver, *store.Store, *stats.Registry) {
	st := store.New(5*time.Minute, 100)
	reg := stats.NewRegistry()
	return receiver.New(st, reg, ack), st, reg
}

// waitFor polls the store until it holds n entries or the deadline passes.
func waitFor(t *testing.T, st *store.Store, n int) []*store.Entry {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if entries := st.List(store.Filter{}); len(entries) >= n {
			return entries
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("store never reached %d entries (have %d)", n, st.Count())
	return nil
}

func TestHTTP_AcceptsCompressedEnvelope(t *testing.T) {
	rc, st, reg := newReceiver(false)
	srv := httptest.NewServer(rc)
	defer srv.Close()

	if err := transport.NewHTTP(srv.URL, true, nil).Send(context.Background(), makeRecord("r-env")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	entries := waitFor(t, st, 1)
	e := entries[0]
	if e.Transport != "http" || e.RequestID != "r-env" || e.AppID != 77 {
		t.Errorf("entry: %+v", e)
	}
	if e.Level != "ERROR" || e.Application != "billing" || e.Environment != "staging" || e.Message != "disk full" {
		t.Errorf("indexed fields: %+v", e)
	}
	if !bytes.Contains(e.Record, []byte(`"file_name":"main.go"`)) {
		t.Errorf("stored record: %s", e.Record)
	}
	var text bytes.Buffer
	if err := reg.WriteText(&text); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(text.String(), `logpush_collector_received_total{transport="http"} 1`) {
		t.Errorf("metrics:\n%s", text.String())
	}
}

func TestHTTP_AcceptsRawJSON(t *testing.T) {
	rc, st, _ := newReceiver(false)
	srv := httptest.NewServer(rc)
	defer srv.Close()

	if err := transport.NewHTTP(srv.URL, false, nil).Send(context.Background(), makeRecord("r-raw")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if e := waitFor(t, st, 1)[0]; e.RequestID != "r-raw" {
		t.Errorf("RequestID: got %q", e.RequestID)
	}
}

func TestHTTP_NullFieldsIndexAsEmpty(t *testing.T) {
	rc, st, _ := newReceiver(false)
	rec := record.NewBuilder(5).Build(nil, nil, "INFO", "app", "prod")
	body, err := transport.EncodeRecord(rec)
	if err != nil {
		t.Fatal(err)
	}

	rr := httptest.NewRecorder()
	rc.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/logs", bytes.NewReader(body)))
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"id"`) {
		t.Errorf("response: %s", rr.Body.String())
	}
	e := st.List(store.Filter{})[0]
	if e.Message != "" || e.RequestID != "" {
		t.Errorf("null fields: message=%q request_id=%q", e.Message, e.RequestID)
	}
}

func TestHTTP_Rejects(t *testing.T) {
	full, err := transport.EncodeRecord(makeRecord("r"))
	if err != nil {
		t.Fatal(err)
	}
	missing := bytes.Replace(full, []byte(`"thread":null,`), nil, 1)
	if bytes.Equal(missing, full) {
		t.Fatalf("fixture: thread key not found in %s", full)
	}

	cases := []struct {
		name string
		body string
		want string
	}{
		{"not json", "{", "parse body"},
		{"array", "[1,2]", "not a JSON object"},
		{"missing key", string(missing), "thread"},
		{"bad base64", `{"log":"%%%"}`, "envelope"},
		{"not zlib", `{"log":"aGVsbG8="}`, "inflate"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rc, st, _ := newReceiver(false)
			rr := httptest.NewRecorder()
			rc.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/logs", strings.NewReader(tc.body)))

			if rr.Code != http.StatusBadRequest {
				t.Errorf("status: got %d, want 400", rr.Code)
			}
			if !strings.Contains(rr.Body.String(), tc.want) {
				t.Errorf("body %q does not mention %q", rr.Body.String(), tc.want)
			}
			if st.Count() != 0 {
				t.Errorf("store holds %d entries after rejection", st.Count())
			}
		})
	}
}

func TestHTTP_MissingKeyErrorType(t *testing.T) {
	var mk *receiver.MissingKeyError
	err := error(&receiver.MissingKeyError{Key: "host"})
	if !errors.As(err, &mk) || mk.Key != "host" {
		t.Fatalf("errors.As: %v", err)
	}
}

func TestHTTP_MethodNotAllowed(t *testing.T) {
	rc, _, _ := newReceiver(false)
	rr := httptest.NewRecorder()
	rc.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/logs", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET: got %d, want 405", rr.Code)
	}
}

// serveUDP starts rc.ServeUDP on a loopback socket and returns its address.
func serveUDP(t *testing.T, rc *receiver.Receiver) *net.UDPAddr {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rc.ServeUDP(ctx, pc) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("ServeUDP: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("ServeUDP did not stop after cancel")
		}
	})
	return pc.LocalAddr().(*net.UDPAddr)
}

func TestUDP_AcceptsDatagram(t *testing.T) {
	rc, st, _ := newReceiver(false)
	addr := serveUDP(t, rc)

	if err := transport.NewUDP("127.0.0.1", addr.Port, nil).Send(context.Background(), makeRecord("r-udp")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	e := waitFor(t, st, 1)[0]
	if e.Transport != "udp" || e.RequestID != "r-udp" {
		t.Errorf("entry: %+v", e)
	}
	if !strings.HasPrefix(e.Remote, "127.0.0.1:") {
		t.Errorf("Remote: got %q", e.Remote)
	}
}

func TestUDP_AckAndRejection(t *testing.T) {
	rc, st, reg := newReceiver(true)
	addr := serveUDP(t, rc)

	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	// Garbage is dropped silently: no ack, nothing stored.
	if _, err := conn.Write([]byte("not zlib")); err != nil {
		t.Fatal(err)
	}

	raw, err := transport.EncodeRecord(makeRecord("r-ack"))
	if err != nil {
		t.Fatal(err)
	}
	payload, err := transport.Deflate(raw)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Write(payload); err != nil {
		t.Fatal(err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 16)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("read ack: %v", err)
	}
	if string(buf[:n]) != "ok" {
		t.Errorf("ack: got %q, want ok", buf[:n])
	}

	if e := waitFor(t, st, 1)[0]; e.RequestID != "r-ack" {
		t.Errorf("RequestID: got %q", e.RequestID)
	}
	var text bytes.Buffer
	if err := reg.WriteText(&text); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(text.String(), `logpush_collector_rejected_total{transport="udp"} 1`) {
		t.Errorf("metrics:\n%s", text.String())
	}
}
