package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPort         = "8080"
	DefaultProduct      = "RemPos"
	DefaultWebListen    = "127.0.0.1:8081"
	DefaultWriteTimeout = 5 * time.Second
	DefaultReadLimit    = 64 * 1024
	DefaultLogLines     = 2000
)

type Config struct {
	Ingest IngestConfig `yaml:"ingest"`
	Web    WebConfig    `yaml:"web"`
	Log    LogConfig    `yaml:"log"`
}

type IngestConfig struct {
	// Host is the address to bind; empty means every interface.
	Host         string        `yaml:"host"`
	Port         string        `yaml:"port"`
	Product      string        `yaml:"product"`
	Version      string        `yaml:"version"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	ReadLimit    int64         `yaml:"read_limit"`
	ReusePort    bool          `yaml:"reuse_port"`
}

type WebConfig struct {
	// Enable is a pointer so an explicit false survives defaulting.
	Enable *bool  `yaml:"enable"`
	Listen string `yaml:"listen"`
}

func (w WebConfig) Enabled() bool {
	return w.Enable == nil || *w.Enable
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	BufferLines int    `yaml:"buffer_lines"`
}

// Default returns a validated config with every default applied, for running
// without a config file.
func Default() Config {
	var cfg Config
	if err := DefaultAndValidate(&cfg); err != nil {
		panic(err)
	}
	return cfg
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	// An empty file decodes to io.EOF and means all defaults.
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, describeDecodeError(err)
	}

	if err := DefaultAndValidate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultAndValidate fills unset fields and rejects invalid ones. It is also
// used after command-line overrides are applied.
func DefaultAndValidate(cfg *Config) error {
	cfg.Ingest.Host = strings.TrimSpace(cfg.Ingest.Host)
	cfg.Ingest.Port = strings.TrimSpace(cfg.Ingest.Port)
	if cfg.Ingest.Port == "" {
		cfg.Ingest.Port = DefaultPort
	}
	if _, err := strconv.ParseUint(cfg.Ingest.Port, 10, 16); err != nil {
		return fmt.Errorf("ingest.port must be a number between 0 and 65535")
	}
	if cfg.Ingest.Product == "" {
		cfg.Ingest.Product = DefaultProduct
	}
	if cfg.Ingest.Version == "" {
		cfg.Ingest.Version = "dev"
	}
	if cfg.Ingest.WriteTimeout < 0 {
		return fmt.Errorf("ingest.write_timeout must be >= 0")
	}
	if cfg.Ingest.WriteTimeout == 0 {
		cfg.Ingest.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Ingest.ReadLimit < 0 {
		return fmt.Errorf("ingest.read_limit must be >= 0")
	}
	if cfg.Ingest.ReadLimit == 0 {
		cfg.Ingest.ReadLimit = DefaultReadLimit
	}

	cfg.Web.Listen = strings.TrimSpace(cfg.Web.Listen)
	if cfg.Web.Listen == "" {
		cfg.Web.Listen = DefaultWebListen
	}
	if cfg.Web.Enabled() {
		if _, _, err := net.SplitHostPort(cfg.Web.Listen); err != nil {
			return fmt.Errorf("web.listen must be host:port: %v", err)
		}
	}

	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	switch cfg.Log.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of trace, debug, info, warn, error")
	}
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Format != "console" && cfg.Log.Format != "json" {
		return fmt.Errorf("log.format must be 'console' or 'json'")
	}
	if cfg.Log.BufferLines < 0 {
		return fmt.Errorf("log.buffer_lines must be >= 0")
	}
	if cfg.Log.BufferLines == 0 {
		cfg.Log.BufferLines = DefaultLogLines
	}
	return nil
}

func describeDecodeError(err error) error {
	var te *yaml.TypeError
	if !errors.As(err, &te) {
		return err
	}
	unknown := make([]string, 0, len(te.Errors))
	for _, msg := range te.Errors {
		if !strings.Contains(msg, "not found in type") {
			return err
		}
		// yaml.v3 prefixes each entry with "line N: ".
		if i := strings.Index(msg, ": "); i >= 0 && strings.HasPrefix(msg, "line ") {
			msg = msg[i+2:]
		}
		unknown = append(unknown, msg)
	}
	return fmt.Errorf("config contains unknown fields: %s", strings.Join(unknown, "; "))
}
