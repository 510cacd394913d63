package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/segmentio/encoding/json"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/obsidianstack/logpush/internal/config"
	"github.com/obsidianstack/logpush/pkg/logpush"
)

// defaultFile is the document written by init. Field order matches the
// documented file layout.
type defaultFile struct {
	ServerURL    string `json:"ServerUrl"`
	UDPHost      string `json:"UdpServerHost"`
	Port         int    `json:"Port"`
	AppID        int64  `json:"app_id"`
	PushType     string `json:"push_type"`
	Debug        bool   `json:"debug"`
	HTTPCompress bool   `json:"http_compress"`
}

func newFlagSet(name string) (*pflag.FlagSet, *string) {
	fs := pflag.NewFlagSet("logpush "+name, pflag.ContinueOnError)
	path := fs.String("config", config.DefaultPath(), "path to LogConfig.json")
	return fs, path
}

func runInit(args []string, stdout io.Writer) error {
	fs, path := newFlagSet("init")
	doc := defaultFile{}
	fs.StringVar(&doc.ServerURL, "server-url", "http://127.0.0.1:8000/logs", "HTTP collector endpoint")
	fs.StringVar(&doc.UDPHost, "udp-host", "127.0.0.1", "UDP collector host")
	fs.IntVar(&doc.Port, "udp-port", 9502, "UDP collector port")
	fs.Int64Var(&doc.AppID, "app-id", 1, "application id stamped on every record")
	fs.StringVar(&doc.PushType, "push-type", string(config.PushHTTP), "transport: http or udp")
	fs.BoolVar(&doc.HTTPCompress, "http-compress", true, "wrap HTTP bodies as base64(zlib(json))")
	force := fs.Bool("force", false, "overwrite an existing file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("init: encode: %w", err)
	}
	// Refuse to write something Load would reject.
	if _, err := config.Parse(data); err != nil {
		return fmt.Errorf("init: %w", err)
	}

	if !*force {
		if _, err := os.Stat(*path); err == nil {
			fmt.Fprintf(stdout, "%s already exists, skipping (use --force to overwrite)\n", *path)
			return nil
		}
	}
	if err := os.WriteFile(*path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("init: %w", err)
	}
	fmt.Fprintf(stdout, "wrote default config to %s\n", *path)
	return nil
}

func runValidate(ctx context.Context, args []string, stdout io.Writer) error {
	fs, path := newFlagSet("validate")
	watch := fs.Bool("watch", false, "keep running and re-validate on every change")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if !*watch {
		cfg, err := config.Load(*path)
		if err != nil {
			return describe(err)
		}
		fmt.Fprintf(stdout, "%s: ok (push_type=%s app_id=%d)\n", *path, cfg.PushType, cfg.AppID)
		return nil
	}

	return config.Watch(ctx, *path, func(cfg *config.Config, err error) {
		if err != nil {
			fmt.Fprintf(stdout, "%s: %v\n", *path, describe(err))
			return
		}
		fmt.Fprintf(stdout, "%s: ok (push_type=%s app_id=%d)\n", *path, cfg.PushType, cfg.AppID)
	})
}

// describe adds an operator hint to the config error taxonomy.
func describe(err error) error {
	var mf *config.MissingFieldError
	switch {
	case errors.Is(err, config.ErrNotFound):
		return fmt.Errorf("%w (run `logpush init` to create one)", err)
	case errors.As(err, &mf):
		return fmt.Errorf("%w (add %q to the file)", err, mf.Field)
	default:
		return err
	}
}

func runShow(args []string, stdout io.Writer) error {
	fs, path := newFlagSet("show")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := config.Load(*path)
	if err != nil {
		return describe(err)
	}
	enc := yaml.NewEncoder(stdout)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("show: %w", err)
	}
	return enc.Close()
}

func runSend(args []string, stdout, stderr io.Writer) error {
	fs, path := newFlagSet("send")
	message := fs.String("message", "logpush test record", "error message to send")
	level := fs.String("level", logpush.DefaultLevel, "record level")
	application := fs.String("application", logpush.DefaultApplication, "application name")
	environment := fs.String("environment", logpush.DefaultEnvironment, "environment name")
	userID := fs.String("user-id", "", "user_id context value")
	if err := fs.Parse(args); err != nil {
		return err
	}

	// Fail loudly here; Emit itself would swallow it.
	if _, err := config.Load(*path); err != nil {
		return describe(err)
	}

	fields := map[string]any{"request_id": uuid.NewString(), "source": "logpush send"}
	if *userID != "" {
		fields["user_id"] = *userID
	}

	d := logpush.New(
		logpush.WithConfigPath(*path),
		logpush.WithDebug(true),
		logpush.WithDebugSink(stderr),
	)
	d.Emit(logpush.ErrorInfoFrom(errors.New(*message)), fields, *level, *application, *environment)

	st := d.Stats()
	fmt.Fprintf(stdout, "request_id=%s delivered=%d failed=%d\n",
		fields["request_id"], st.Delivered["http"]+st.Delivered["udp"], st.Failed["http"]+st.Failed["udp"])
	return d.WriteMetrics(stdout)
}
