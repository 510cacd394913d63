// logpush-collector receives records from logpush clients over HTTP and UDP,
// keeps them in memory for a while, and serves them back over a small REST
// API. It is meant for development and integration testing.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/obsidianstack/logpush/internal/stats"
	"github.com/obsidianstack/logpush/server/internal/api"
	"github.com/obsidianstack/logpush/server/internal/auth"
	"github.com/obsidianstack/logpush/server/internal/config"
	"github.com/obsidianstack/logpush/server/internal/receiver"
	"github.com/obsidianstack/logpush/server/internal/store"
)

func main() {
	fl, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		os.Exit(2)
	}

	level := slog.LevelInfo
	if fl.debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("logpush-collector starting", "config", fl.configPath)

	cfg, err := fl.load()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	c := cfg.Collector
	slog.Info("config loaded",
		"http_port", c.HTTPPort,
		"udp_port", c.UDPPort,
		"ingest_path", c.IngestPath,
		"auth_mode", c.Auth.Mode,
		"store_ttl", c.Store.TTL,
		"store_capacity", c.Store.Capacity,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		slog.Error("collector stopped", "err", err)
		os.Exit(1)
	}
}

// flags holds the parsed command line.
type flags struct {
	set        *pflag.FlagSet
	configPath string
	httpPort   int
	udpPort    int
	debug      bool
}

func parseFlags(args []string) (*flags, error) {
	fl := &flags{set: pflag.NewFlagSet("logpush-collector", pflag.ContinueOnError)}
	fl.set.StringVar(&fl.configPath, "config", "", "path to collector YAML config; built-in defaults when empty")
	fl.set.IntVar(&fl.httpPort, "http-port", 0, "override collector.http_port")
	fl.set.IntVar(&fl.udpPort, "udp-port", 0, "override collector.udp_port (0 disables UDP ingest)")
	fl.set.BoolVar(&fl.debug, "debug", false, "log every stored record")
	if err := fl.set.Parse(args); err != nil {
		return nil, err
	}
	return fl, nil
}

// load reads the config file (or the defaults), applies flag overrides and
// validates the result.
func (fl *flags) load() (*config.Config, error) {
	cfg := config.Default()
	if fl.configPath != "" {
		var err error
		if cfg, err = config.Load(fl.configPath); err != nil {
			return nil, err
		}
	}
	if fl.set.Changed("http-port") {
		cfg.Collector.HTTPPort = fl.httpPort
	}
	if fl.set.Changed("udp-port") {
		cfg.Collector.UDPPort = fl.udpPort
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// run opens the configured listeners and serves until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config) error {
	c := cfg.Collector
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", c.HTTPPort))
	if err != nil {
		return fmt.Errorf("listen on http port %d: %w", c.HTTPPort, err)
	}

	var pc net.PacketConn
	if c.UDPPort != 0 {
		if pc, err = net.ListenPacket("udp", fmt.Sprintf(":%d", c.UDPPort)); err != nil {
			ln.Close()
			return fmt.Errorf("listen on udp port %d: %w", c.UDPPort, err)
		}
	}
	return serve(ctx, cfg, ln, pc)
}

// serve runs HTTP ingest and the read API on ln, and UDP ingest on pc when
// pc is non-nil. It returns once ctx is cancelled and both have stopped.
func serve(ctx context.Context, cfg *config.Config, ln net.Listener, pc net.PacketConn) error {
	c := cfg.Collector

	// Record store with background TTL eviction.
	st := store.New(c.Store.TTL, c.Store.Capacity)
	go st.Run(ctx)

	reg := stats.NewRegistry()
	rc := receiver.New(st, reg, c.UDPAck)
	guard := auth.APIKey(c.Auth.Mode, c.Auth.EffectiveHeader(), c.Auth.Key())

	mux := http.NewServeMux()
	mux.Handle(c.IngestPath, rc)
	readAPI := api.New(st, reg, guard)
	mux.Handle("/api/", readAPI)
	mux.Handle("/metrics", readAPI)

	udpDone := make(chan error, 1)
	if pc != nil {
		go func() {
			slog.Info("UDP ingest listening", "addr", pc.LocalAddr().String())
			udpDone <- rc.ServeUDP(ctx, pc)
		}()
	} else {
		udpDone <- nil
	}

	httpSrv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	httpDone := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpDone <- err
			return
		}
		httpDone <- nil
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-httpDone:
		httpDone <- serveErr
	}

	slog.Info("logpush-collector shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
	if pc != nil {
		pc.Close()
	}

	return errors.Join(<-httpDone, <-udpDone)
}
