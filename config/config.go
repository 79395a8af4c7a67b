// Package config loads the YAML configuration shared by the statesync tools.
//
//	log:
//	  level: info
//	  format: json
//	metrics:
//	  namespace: statesync
//	store:
//	  backend: s3
//	  timeout: 3s
//	  s3:
//	    bucket: app-state
//	    prefix: persistent/
//	distributed:
//	  session_id: 0b7d...
//	  store:
//	    backend: memory
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/delaneyj/statesync/metrics"
	"github.com/delaneyj/statesync/staterr"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendS3     = "s3"

	DefaultLogLevel  = "warn"
	DefaultLogFormat = "text"
	DefaultNamespace = "statesync"
	DefaultTimeout   = 5 * time.Second
)

var ErrInvalid = staterr.New(staterr.Usage, "config.Validate", "invalid configuration")

type Config struct {
	Log         Log         `yaml:"log"`
	Metrics     Metrics     `yaml:"metrics"`
	Store       Store       `yaml:"store"`
	Distributed Distributed `yaml:"distributed"`
}

type Log struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is text or json.
	Format string `yaml:"format"`
}

type Metrics struct {
	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`
}

// Store selects and configures a key-value backend.
type Store struct {
	Backend string `yaml:"backend"`
	// Path is the root directory of the file backend.
	Path    string        `yaml:"path"`
	Timeout time.Duration `yaml:"timeout"`
	S3      S3            `yaml:"s3"`
}

type S3 struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type Distributed struct {
	// SessionID names the shared session. Empty means a new random session.
	SessionID string `yaml:"session_id"`
	Store     Store  `yaml:"store"`
}

// Default is the configuration used when no file is given.
func Default() Config {
	return Config{
		Log:         Log{Level: DefaultLogLevel, Format: DefaultLogFormat},
		Metrics:     Metrics{Namespace: DefaultNamespace},
		Store:       Store{Backend: BackendMemory, Timeout: DefaultTimeout},
		Distributed: Distributed{Store: Store{Backend: BackendMemory, Timeout: DefaultTimeout}},
	}
}

// Option mutates a Config after defaults and file values are applied.
type Option func(*Config)

func WithLogLevel(level string) Option {
	return func(c *Config) { c.Log.Level = level }
}

func WithLogFormat(format string) Option {
	return func(c *Config) { c.Log.Format = format }
}

func WithStore(s Store) Option {
	return func(c *Config) { c.Store = s }
}

// WithFileStore switches the persistent store to the file backend at path.
func WithFileStore(path string) Option {
	return func(c *Config) {
		c.Store.Backend = BackendFile
		c.Store.Path = path
	}
}

func WithSessionID(id string) Option {
	return func(c *Config) { c.Distributed.SessionID = id }
}

func WithMetricsNamespace(namespace string) Option {
	return func(c *Config) { c.Metrics.Namespace = namespace }
}

// New returns the defaults with opts applied.
func New(opts ...Option) Config {
	cfg := Default()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Parse decodes YAML over the defaults, applies opts and validates. Unknown
// keys are an error.
func Parse(data []byte, opts ...Option) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, ErrInvalid.Wrap(err)
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads and parses the file at path.
func Load(path string, opts ...Option) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data, opts...)
}

// Validate reports every problem found, not just the first.
func (c Config) Validate() error {
	var err error
	if _, e := parseLevel(c.Log.Level); e != nil {
		err = multierr.Append(err, e)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		err = multierr.Append(err, fmt.Errorf("log.format %q: want text or json", c.Log.Format))
	}
	err = multierr.Append(err, c.Store.validate("store"))
	err = multierr.Append(err, c.Distributed.Store.validate("distributed.store"))
	if err != nil {
		return ErrInvalid.Wrap(err)
	}
	return nil
}

func (s Store) validate(path string) error {
	var err error
	switch s.Backend {
	case BackendMemory:
	case BackendFile:
		if s.Path == "" {
			err = multierr.Append(err, fmt.Errorf("%s.path: required for the file backend", path))
		}
	case BackendS3:
		if s.S3.Bucket == "" {
			err = multierr.Append(err, fmt.Errorf("%s.s3.bucket: required for the s3 backend", path))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("%s.backend %q: want memory, file or s3", path, s.Backend))
	}
	if s.Timeout < 0 {
		err = multierr.Append(err, fmt.Errorf("%s.timeout: must not be negative", path))
	}
	return err
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("log.level %q: %w", s, err)
	}
	return level, nil
}

// Logger builds a slog logger writing to w.
func (l Log) Logger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// Options converts the section into metrics options.
func (m Metrics) Options() []metrics.Option {
	var opts []metrics.Option
	if m.Namespace != "" {
		opts = append(opts, metrics.WithNamespace(m.Namespace))
	}
	if m.Subsystem != "" {
		opts = append(opts, metrics.WithSubsystem(m.Subsystem))
	}
	return opts
}
