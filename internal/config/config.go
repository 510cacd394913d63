package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/valyala/fastjson"
)

// FileName is the configuration file looked up in the host process root.
const FileName = "LogConfig.json"

// EnvPath overrides the configuration file location when set.
const EnvPath = "LOGPUSH_CONFIG"

// Push types accepted in the push_type field.
const (
	PushHTTP PushType = "http"
	PushUDP  PushType = "udp"
)

// Keys of the on-disk JSON document.
const (
	KeyServerURL    = "ServerUrl"
	KeyUDPHost      = "UdpServerHost"
	KeyPort         = "Port"
	KeyAppID        = "app_id"
	KeyPushType     = "push_type"
	KeyDebug        = "debug"
	KeyHTTPCompress = "http_compress"
)

// requiredKeys are checked in this order; the first absent one is reported.
var requiredKeys = []string{KeyServerURL, KeyUDPHost, KeyPort, KeyAppID, KeyPushType}

var (
	// ErrNotFound is returned when the configuration file does not exist.
	ErrNotFound = errors.New("config file not found")

	// ErrParse is returned when the file is not valid JSON.
	ErrParse = errors.New("config file is not valid json")

	// ErrInvalid is returned when a field is present but has the wrong type
	// or an unsupported value.
	ErrInvalid = errors.New("invalid config value")
)

// MissingFieldError reports a required key absent from the configuration.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("config: required field %q is missing", e.Field)
}

// PushType selects the transport used to deliver records.
type PushType string

// Config is the resolved client configuration.
// Field names in the yaml tags are the canonical names used by `logpush show`.
type Config struct {
	// ServerURL is the HTTP collector endpoint records are POSTed to.
	ServerURL string `yaml:"server_url"`

	// UDPHost and UDPPort address the UDP collector.
	UDPHost string `yaml:"udp_host"`
	UDPPort int    `yaml:"udp_port"`

	// AppID identifies the tenant/application; copied into every record.
	AppID int64 `yaml:"app_id"`

	// PushType is http or udp.
	PushType PushType `yaml:"push_type"`

	// Debug enables tracing to the debug sink.
	Debug bool `yaml:"debug"`

	// HTTPCompress wraps HTTP bodies as {"log": base64(zlib(json))}.
	// When false the raw record JSON is posted.
	HTTPCompress bool `yaml:"http_compress"`
}

// UDPAddr returns host:port for the UDP collector.
func (c *Config) UDPAddr() string {
	return net.JoinHostPort(c.UDPHost, strconv.Itoa(c.UDPPort))
}

// DefaultPath returns the configuration path for this process: $LOGPUSH_CONFIG
// if set, otherwise LogConfig.json in the working directory.
func DefaultPath() string {
	if p := os.Getenv(EnvPath); p != "" {
		return p
	}
	wd, err := os.Getwd()
	if err != nil {
		return FileName
	}
	return filepath.Join(wd, FileName)
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: %w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	return Parse(data)
}

// Parse validates a configuration document already in memory.
func Parse(data []byte) (*Config, error) {
	v, err := fastjson.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("config: %w: %v", ErrParse, err)
	}
	if v.Type() != fastjson.TypeObject {
		return nil, fmt.Errorf("config: %w: top level must be an object, got %s", ErrParse, v.Type())
	}

	for _, key := range requiredKeys {
		if f := v.Get(key); f == nil || f.Type() == fastjson.TypeNull {
			return nil, &MissingFieldError{Field: key}
		}
	}

	cfg := defaults()
	if cfg.ServerURL, err = stringField(v, KeyServerURL); err != nil {
		return nil, err
	}
	if cfg.UDPHost, err = stringField(v, KeyUDPHost); err != nil {
		return nil, err
	}
	port, err := v.Get(KeyPort).Int()
	if err != nil {
		return nil, fmt.Errorf("config: %w: %s: %v", ErrInvalid, KeyPort, err)
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("config: %w: %s %d is out of range [1, 65535]", ErrInvalid, KeyPort, port)
	}
	cfg.UDPPort = port
	if cfg.AppID, err = v.Get(KeyAppID).Int64(); err != nil {
		return nil, fmt.Errorf("config: %w: %s: %v", ErrInvalid, KeyAppID, err)
	}

	pt, err := stringField(v, KeyPushType)
	if err != nil {
		return nil, err
	}
	switch PushType(pt) {
	case PushHTTP, PushUDP:
		cfg.PushType = PushType(pt)
	default:
		return nil, fmt.Errorf("config: %w: %s %q unknown: want http|udp", ErrInvalid, KeyPushType, pt)
	}

	if cfg.Debug, err = boolField(v, KeyDebug, cfg.Debug); err != nil {
		return nil, err
	}
	if cfg.HTTPCompress, err = boolField(v, KeyHTTPCompress, cfg.HTTPCompress); err != nil {
		return nil, err
	}
	return cfg, nil
}

// defaults returns a Config pre-populated with the optional field defaults.
func defaults() *Config {
	return &Config{
		Debug:        false,
		HTTPCompress: true,
	}
}

func stringField(v *fastjson.Value, key string) (string, error) {
	b, err := v.Get(key).StringBytes()
	if err != nil {
		return "", fmt.Errorf("config: %w: %s: %v", ErrInvalid, key, err)
	}
	return string(b), nil
}

// boolField returns def when key is absent or null.
func boolField(v *fastjson.Value, key string, def bool) (bool, error) {
	f := v.Get(key)
	if f == nil || f.Type() == fastjson.TypeNull {
		return def, nil
	}
	b, err := f.Bool()
	if err != nil {
		return false, fmt.Errorf("config: %w: %s: %v", ErrInvalid, key, err)
	}
	return b, nil
}
