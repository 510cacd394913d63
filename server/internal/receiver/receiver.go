package receiver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"

	"github.com/segmentio/encoding/json"
	"github.com/valyala/fastjson"

	"github.com/obsidianstack/logpush/internal/config"
	"github.com/obsidianstack/logpush/internal/stats"
	"github.com/obsidianstack/logpush/server/internal/store"
)

// maxBody caps an HTTP ingest body.
const maxBody = 8 << 20

// Transport labels, matching the client's push_type values.
var (
	viaHTTP = string(config.PushHTTP)
	viaUDP  = string(config.PushUDP)
)

// udpAck is written back to the sender of every accepted datagram when
// acknowledgements are on.
var udpAck = []byte("ok")

// Receiver decodes incoming records and stores them.
type Receiver struct {
	store  *store.Store
	parser fastjson.ParserPool
	ack    bool

	received *stats.CounterVec
	rejected *stats.CounterVec
}

// New creates a Receiver that writes accepted records to st and counts
// them in reg. With ack set, ServeUDP replies "ok" to each accepted datagram.
func New(st *store.Store, reg *stats.Registry, ack bool) *Receiver {
	return &Receiver{
		store:    st,
		ack:      ack,
		received: reg.Counter("logpush_collector_received_total", "Records accepted into the store.", "transport"),
		rejected: reg.Counter("logpush_collector_rejected_total", "Payloads that could not be decoded into a record.", "transport"),
	}
}

type ingestResponse struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// ServeHTTP accepts POSTed records on the ingest path.
func (r *Receiver) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxBody))
	if err != nil {
		r.rejected.Inc(viaHTTP)
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: err.Error()})
		return
	}

	p := r.parser.Get()
	e, err := decodeBody(p, body)
	r.parser.Put(p)
	if err != nil {
		r.rejected.Inc(viaHTTP)
		slog.Warn("receiver: rejected http payload", "remote", req.RemoteAddr, "err", err)
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	e = r.accept(e, viaHTTP, req.RemoteAddr)
	writeJSON(w, http.StatusOK, ingestResponse{ID: e.ID})
}

// ServeUDP reads datagrams from pc until ctx is cancelled or pc is closed.
// Each datagram holds one zlib-compressed record.
func (r *Receiver) ServeUDP(ctx context.Context, pc net.PacketConn) error {
	stop := context.AfterFunc(ctx, func() { pc.Close() })
	defer stop()

	buf := make([]byte, 64<<10)
	for {
		n, addr, err := pc.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("receiver: udp read: %w", err)
		}

		p := r.parser.Get()
		e, err := decodeCompressed(p, buf[:n])
		r.parser.Put(p)
		if err != nil {
			r.rejected.Inc(viaUDP)
			slog.Warn("receiver: rejected datagram", "remote", addr.String(), "bytes", n, "err", err)
			continue
		}

		r.accept(e, viaUDP, addr.String())
		if r.ack {
			if _, err := pc.WriteTo(udpAck, addr); err != nil {
				slog.Debug("receiver: udp ack failed", "remote", addr.String(), "err", err)
			}
		}
	}
}

func (r *Receiver) accept(e *store.Entry, via, remote string) *store.Entry {
	e.Transport = via
	e.Remote = remote
	e = r.store.Put(e)
	r.received.Inc(via)

	slog.Debug("receiver: record stored",
		"id", e.ID,
		"transport", via,
		"app_id", e.AppID,
		"level", e.Level,
		"application", e.Application,
	)
	return e
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
