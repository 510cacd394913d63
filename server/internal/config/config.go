package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the collector configuration.
const (
	DefaultHTTPPort   = 8000
	DefaultUDPPort    = 9502
	DefaultIngestPath = "/logs"
	DefaultTTL        = 15 * time.Minute
	DefaultCapacity   = 10000
)

// Config holds the collector configuration parsed from the `collector:`
// section of the YAML file. Other top-level keys are ignored.
type Config struct {
	Collector CollectorConfig `yaml:"collector"`
}

// CollectorConfig holds all collector settings.
type CollectorConfig struct {
	HTTPPort   int         `yaml:"http_port"`
	UDPPort    int         `yaml:"udp_port"`
	IngestPath string      `yaml:"ingest_path"`
	UDPAck     bool        `yaml:"udp_ack"`
	Auth       AuthConfig  `yaml:"auth"`
	Store      StoreConfig `yaml:"store"`
}

// AuthConfig controls API key checks on the read API. Ingest is never
// authenticated: the client library has no way to send credentials.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header to read the key from. Defaults to "x-api-key".
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// StoreConfig controls in-memory record retention.
type StoreConfig struct {
	TTL      time.Duration `yaml:"ttl"`
	Capacity int           `yaml:"capacity"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return defaults()
}

// Load reads and parses the config file at path.
// Missing fields are filled with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("collector config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("collector config: parse yaml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Collector: CollectorConfig{
			HTTPPort:   DefaultHTTPPort,
			UDPPort:    DefaultUDPPort,
			IngestPath: DefaultIngestPath,
			Store: StoreConfig{
				TTL:      DefaultTTL,
				Capacity: DefaultCapacity,
			},
		},
	}
}

// Validate checks structural constraints. Callers that change a loaded
// Config (flag overrides) must validate again.
func (cfg *Config) Validate() error {
	if err := cfg.Collector.validate(); err != nil {
		return fmt.Errorf("collector config: %w", err)
	}
	return nil
}

func (c CollectorConfig) validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("collector.http_port %d is out of range [1, 65535]", c.HTTPPort)
	}
	if c.UDPPort < 0 || c.UDPPort > 65535 {
		return fmt.Errorf("collector.udp_port %d is out of range [0, 65535]", c.UDPPort)
	}
	if !strings.HasPrefix(c.IngestPath, "/") {
		return fmt.Errorf("collector.ingest_path %q must start with /", c.IngestPath)
	}
	if c.IngestPath == "/metrics" || strings.HasPrefix(c.IngestPath, "/api/") {
		return fmt.Errorf("collector.ingest_path %q collides with the read API", c.IngestPath)
	}
	switch c.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("collector.auth.mode %q unknown: want apikey|none", c.Auth.Mode)
	}
	if c.Store.TTL <= 0 {
		return fmt.Errorf("collector.store.ttl must be positive")
	}
	if c.Store.Capacity <= 0 {
		return fmt.Errorf("collector.store.capacity must be positive")
	}
	return nil
}
