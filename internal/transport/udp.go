package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"syscall"
	"time"

	"github.com/obsidianstack/logpush/internal/record"
)

const (
	// UDPDialTimeout bounds address resolution, connect and write.
	UDPDialTimeout = 500 * time.Millisecond

	// UDPReplyTimeout bounds the optional reply read done for debug tracing.
	UDPReplyTimeout = 50 * time.Millisecond

	// MaxDatagram is the largest UDP payload over IPv4.
	MaxDatagram = 65507
)

// ErrDatagramTooLarge is returned when the compressed record does not fit in
// one datagram.
var ErrDatagramTooLarge = errors.New("compressed record exceeds max datagram size")

// dialFunc opens the socket. Abstracted so tests can observe dialing.
type dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// UDPTransport sends each record as one zlib-compressed datagram.
type UDPTransport struct {
	addr         string
	dialTimeout  time.Duration
	replyTimeout time.Duration
	trace        tracer
	dialFn       dialFunc
}

// NewUDP returns a UDPTransport for host:port.
func NewUDP(host string, port int, debug *slog.Logger) *UDPTransport {
	var d net.Dialer
	return &UDPTransport{
		addr:         net.JoinHostPort(host, strconv.Itoa(port)),
		dialTimeout:  UDPDialTimeout,
		replyTimeout: UDPReplyTimeout,
		trace:        tracer{log: debug},
		dialFn:       d.DialContext,
	}
}

// Name implements Transport.
func (t *UDPTransport) Name() string { return "udp" }

// Send implements Transport. Success means the datagram was handed to the
// kernel; no acknowledgement is expected.
func (t *UDPTransport) Send(ctx context.Context, rec record.LogRecord) error {
	payload, err := EncodeRecord(rec)
	if err != nil {
		return fmt.Errorf("udp: %w", err)
	}
	compressed, err := Deflate(payload)
	if err != nil {
		return fmt.Errorf("udp: %w", err)
	}
	if len(compressed) > MaxDatagram {
		return fmt.Errorf("udp: %w: %d bytes", ErrDatagramTooLarge, len(compressed))
	}

	t.trace.debug("transport: udp send",
		"addr", t.addr,
		"record", string(payload),
		"compressed_bytes", len(compressed))

	ctx, cancel := context.WithTimeout(ctx, t.dialTimeout)
	defer cancel()

	conn, err := t.dialFn(ctx, "udp", t.addr)
	if err != nil {
		t.trace.debug("transport: udp connect failed", "addr", t.addr, "errno", errnoOf(err), "err", err)
		return fmt.Errorf("udp: connect %s: %w", t.addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}
	if _, err := conn.Write(compressed); err != nil {
		t.trace.debug("transport: udp write failed", "addr", t.addr, "errno", errnoOf(err), "err", err)
		return fmt.Errorf("udp: write %s: %w", t.addr, err)
	}

	if t.trace.enabled() {
		t.readReply(conn)
	}
	return nil
}

// readReply traces whatever the collector answers within replyTimeout.
func (t *UDPTransport) readReply(conn net.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(t.replyTimeout))
	buf := make([]byte, 2048)
	n, err := conn.Read(buf)
	var ne net.Error
	switch {
	case err == nil:
		t.trace.debug("transport: udp reply", "addr", t.addr, "reply", string(buf[:n]))
	case errors.As(err, &ne) && ne.Timeout():
		t.trace.debug("transport: udp no reply", "addr", t.addr)
	default:
		t.trace.debug("transport: udp reply failed", "addr", t.addr, "errno", errnoOf(err), "err", err)
	}
}

// errnoOf extracts the OS error code from a network error, or 0.
func errnoOf(err error) int {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return int(errno)
	}
	return 0
}
