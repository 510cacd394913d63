package transport

import (
	"context"
	"log/slog"

	"github.com/obsidianstack/logpush/internal/config"
	"github.com/obsidianstack/logpush/internal/record"
)

// Transport delivers one record. A nil error means the record left the
// process; it says nothing about receipt.
type Transport interface {
	Send(ctx context.Context, rec record.LogRecord) error
	Name() string
}

// New returns the Transport selected by cfg.PushType. debug may be nil.
func New(cfg *config.Config, debug *slog.Logger) Transport {
	if cfg.PushType == config.PushUDP {
		return NewUDP(cfg.UDPHost, cfg.UDPPort, debug)
	}
	return NewHTTP(cfg.ServerURL, cfg.HTTPCompress, debug)
}

// tracer wraps an optional debug logger.
type tracer struct {
	log *slog.Logger
}

func (t tracer) enabled() bool { return t.log != nil }

func (t tracer) debug(msg string, args ...any) {
	if t.log != nil {
		t.log.Debug(msg, args...)
	}
}
