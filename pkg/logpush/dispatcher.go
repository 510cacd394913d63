package logpush

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/obsidianstack/logpush/internal/config"
	"github.com/obsidianstack/logpush/internal/record"
	"github.com/obsidianstack/logpush/internal/stats"
	"github.com/obsidianstack/logpush/internal/transport"
)

// Defaults used by EmitError.
const (
	DefaultLevel       = "ERROR"
	DefaultApplication = "default_app"
	DefaultEnvironment = "production"
)

// ErrorInfo describes the error carried by a record: message, stack trace,
// source file and line. A nil *ErrorInfo means the record has no error.
type ErrorInfo = record.ErrorInfo

// ErrorInfoFrom captures err together with the caller's file, line and stack.
// It returns nil for a nil error.
func ErrorInfoFrom(err error) *ErrorInfo {
	return record.ErrorInfoFrom(err, 1)
}

// transportFactory builds the transport for one Emit.
type transportFactory func(cfg *config.Config, debug *slog.Logger) transport.Transport

// Dispatcher resolves configuration, builds records and hands them to the
// configured transport. It is safe for concurrent use.
type Dispatcher struct {
	store        *config.Store
	forceDebug   bool
	sink         *slog.Logger
	now          func() time.Time
	hostname     func() (string, error)
	newTransport transportFactory // injectable for tests

	metrics      *stats.Registry
	emitted      *stats.CounterVec
	delivered    *stats.CounterVec
	failed       *stats.CounterVec
	configErrors *stats.CounterVec
	panics       *stats.CounterVec
}

// Option configures a Dispatcher.
type Option func(*options)

type options struct {
	path     string
	debug    bool
	sink     io.Writer
	now      func() time.Time
	hostname func() (string, error)
}

// WithConfigPath reads configuration from path instead of the default.
func WithConfigPath(path string) Option {
	return func(o *options) { o.path = path }
}

// WithDebug forces debug tracing on, including for configuration failures
// that happen before the config file's own debug flag is known.
func WithDebug(on bool) Option {
	return func(o *options) { o.debug = on }
}

// WithDebugSink sends debug tracing to w (default os.Stderr).
func WithDebugSink(w io.Writer) Option {
	return func(o *options) { o.sink = w }
}

// WithClock sets the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithHostname sets the host name source used for records.
func WithHostname(fn func() (string, error)) Option {
	return func(o *options) { o.hostname = fn }
}

// New returns a Dispatcher. Nothing is read from disk until the first Emit.
func New(opts ...Option) *Dispatcher {
	o := options{sink: os.Stderr, now: time.Now, hostname: os.Hostname}
	for _, opt := range opts {
		opt(&o)
	}
	if o.path == "" {
		o.path = config.DefaultPath()
	}

	reg := stats.NewRegistry()
	return &Dispatcher{
		store:        config.NewStore(o.path),
		forceDebug:   o.debug,
		sink:         slog.New(slog.NewTextHandler(o.sink, &slog.HandlerOptions{Level: slog.LevelDebug})),
		now:          o.now,
		hostname:     o.hostname,
		newTransport: func(cfg *config.Config, debug *slog.Logger) transport.Transport { return transport.New(cfg, debug) },

		metrics:      reg,
		emitted:      reg.Counter("logpush_records_emitted_total", "Emit calls.", ""),
		delivered:    reg.Counter("logpush_records_delivered_total", "Records handed to a transport without error.", "transport"),
		failed:       reg.Counter("logpush_records_failed_total", "Records whose transport returned an error.", "transport"),
		configErrors: reg.Counter("logpush_config_errors_total", "Emit calls dropped because configuration could not be resolved.", ""),
		panics:       reg.Counter("logpush_emit_panics_total", "Panics recovered inside Emit.", ""),
	}
}

// Emit builds a record and delivers it. It never panics and never blocks
// longer than the configured transport's timeout. info and fields may be nil.
func (d *Dispatcher) Emit(info *ErrorInfo, fields map[string]any, level, application, environment string) {
	d.EmitContext(context.Background(), info, fields, level, application, environment)
}

// EmitContext is Emit with a parent context; cancelling ctx shortens the
// transport budget, it never extends it.
func (d *Dispatcher) EmitContext(ctx context.Context, info *ErrorInfo, fields map[string]any, level, application, environment string) {
	var debug *slog.Logger
	if d.forceDebug {
		debug = d.sink
	}
	defer func() {
		if r := recover(); r != nil {
			d.panics.Inc("")
			if debug != nil {
				debug.Debug("logpush: recovered panic", "panic", fmt.Sprint(r))
			}
		}
	}()

	d.emitted.Inc("")

	cfg, err := d.store.Resolve()
	if err != nil {
		d.configErrors.Inc("")
		if debug != nil {
			debug.Debug("logpush: config unavailable", "path", d.store.Path(), "err", err)
		}
		return
	}
	if cfg.Debug {
		debug = d.sink
	}

	rec := record.NewBuilder(cfg.AppID).
		WithClock(d.now).
		WithHostname(d.hostname).
		Build(info, fields, level, application, environment)

	tr := d.newTransport(cfg, debug)
	if err := tr.Send(ctx, rec); err != nil {
		d.failed.Inc(tr.Name())
		if debug != nil {
			debug.Debug("logpush: delivery failed", "transport", tr.Name(), "err", err)
		}
		return
	}
	d.delivered.Inc(tr.Name())
	if debug != nil {
		debug.Debug("logpush: delivered", "transport", tr.Name(), "level", level, "application", application)
	}
}

// Stats is a point-in-time copy of a Dispatcher's counters.
type Stats struct {
	Emitted      uint64
	Delivered    map[string]uint64
	Failed       map[string]uint64
	ConfigErrors uint64
	Panics       uint64
}

// Stats returns the current delivery counters, keyed by transport name.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Emitted:      d.emitted.Value(""),
		Delivered:    perTransport(d.delivered),
		Failed:       perTransport(d.failed),
		ConfigErrors: d.configErrors.Value(""),
		Panics:       d.panics.Value(""),
	}
}

// perTransport reads c for every push type.
func perTransport(c *stats.CounterVec) map[string]uint64 {
	out := make(map[string]uint64, 2)
	for _, pt := range []config.PushType{config.PushHTTP, config.PushUDP} {
		out[string(pt)] = c.Value(string(pt))
	}
	return out
}

// WriteMetrics renders the counters in the Prometheus text format.
func (d *Dispatcher) WriteMetrics(w io.Writer) error {
	return d.metrics.WriteText(w)
}

var defaultDispatcher = sync.OnceValue(func() *Dispatcher { return New() })

// Default returns the process-wide Dispatcher used by the package-level
// functions. It is created on first use.
func Default() *Dispatcher {
	return defaultDispatcher()
}

// Emit delivers a record through the process-wide Dispatcher.
func Emit(info *ErrorInfo, fields map[string]any, level, application, environment string) {
	Default().Emit(info, fields, level, application, environment)
}

// EmitError delivers err with the default level, application and
// environment through the process-wide Dispatcher. err may be nil.
func EmitError(err error, fields map[string]any) {
	Default().Emit(record.ErrorInfoFrom(err, 1), fields, DefaultLevel, DefaultApplication, DefaultEnvironment)
}
