package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/obsidianstack/logpush/internal/record"
)

const (
	// HTTPTimeout bounds a whole POST: connect, write, and response headers.
	HTTPTimeout = 100 * time.Millisecond

	// debugBodyLimit caps how much of a response body is traced.
	debugBodyLimit = 4 << 10
)

// HTTPTransport POSTs each record to a fixed URL on a fresh connection.
type HTTPTransport struct {
	url      string
	compress bool
	timeout  time.Duration
	trace    tracer
}

// NewHTTP returns an HTTPTransport for url. When compress is true the body is
// {"log": base64(zlib(json))}; otherwise the record JSON is sent as is.
func NewHTTP(url string, compress bool, debug *slog.Logger) *HTTPTransport {
	return &HTTPTransport{
		url:      url,
		compress: compress,
		timeout:  HTTPTimeout,
		trace:    tracer{log: debug},
	}
}

// Name implements Transport.
func (t *HTTPTransport) Name() string { return "http" }

// Send implements Transport. Any HTTP response, whatever its status, counts as
// delivered; the status and body are only traced.
func (t *HTTPTransport) Send(ctx context.Context, rec record.LogRecord) error {
	payload, err := EncodeRecord(rec)
	if err != nil {
		return fmt.Errorf("http: %w", err)
	}
	body := payload
	if t.compress {
		if body, err = WrapHTTP(payload); err != nil {
			return fmt.Errorf("http: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("http: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Close = true

	// A private transport per call: nothing is pooled or reused.
	rt := &http.Transport{DisableKeepAlives: true}
	defer rt.CloseIdleConnections()
	client := &http.Client{Transport: rt, Timeout: t.timeout}

	t.trace.debug("transport: http request", "url", t.url, "compressed", t.compress, "body", string(body))

	resp, err := client.Do(req)
	if err != nil {
		t.trace.debug("transport: http send failed", "url", t.url, "err", err)
		return fmt.Errorf("http: post %s: %w", t.url, err)
	}
	defer resp.Body.Close()

	if t.trace.enabled() {
		b, readErr := io.ReadAll(io.LimitReader(resp.Body, debugBodyLimit))
		t.trace.debug("transport: http response",
			"status", resp.StatusCode,
			"body", string(b),
			"read_err", readErr)
	}
	return nil
}
