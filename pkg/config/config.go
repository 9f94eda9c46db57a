package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/volt/pkg/logger"
	"github.com/dmitrymomot/volt/pkg/objectsink"
)

// Errors returned by Load, Parse and Validate.
var (
	ErrRead    = errors.New("config: read failed")
	ErrDecode  = errors.New("config: decode failed")
	ErrInvalid = errors.New("config: invalid")
)

// Auth modes.
const (
	AuthNone   = ""
	AuthBasic  = "basic"
	AuthDigest = "digest"
)

// Config is the daemon configuration file.
type Config struct {
	Address         string              `yaml:"address"`
	ShutdownTimeout time.Duration       `yaml:"shutdown_timeout"`
	DefaultHeaders  map[string]string   `yaml:"default_headers"`
	RedisURL        string              `yaml:"redis_url"`
	Log             Log                 `yaml:"log"`
	Limits          Limits              `yaml:"limits"`
	Auth            Auth                `yaml:"auth"`
	Static          Static              `yaml:"static"`
	Uploads         Uploads             `yaml:"uploads"`
	Events          Events              `yaml:"events"`
	CORS            CORS                `yaml:"cors"`
	Sentry          logger.SentryConfig `yaml:"sentry"`
}

// Log configures local logging.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Limits are hard request limits.
type Limits struct {
	MaxRequestBodySize int64 `yaml:"max_request_body_size"`
	MaxUploadSize      int64 `yaml:"max_upload_size"`
	ChunkSize          int   `yaml:"chunk_size"`
	StreamChunkSize    int   `yaml:"stream_chunk_size"`
}

// Auth protects the admin routes of the daemon.
type Auth struct {
	Mode           string `yaml:"mode"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	Realm          string `yaml:"realm"`
	FailureMessage string `yaml:"failure_message"`
}

// Static serves files from a directory.
type Static struct {
	URI          string `yaml:"uri"`
	Root         string `yaml:"root"`
	DefaultFile  string `yaml:"default_file"`
	CacheControl string `yaml:"cache_control"`
}

// Uploads selects where uploaded files go. S3 wins when a bucket is set.
type Uploads struct {
	Dir string            `yaml:"dir"`
	S3  objectsink.Config `yaml:"s3"`
}

// Events configures the periodic status broadcast.
type Events struct {
	// Schedule is a cron spec, e.g. "@every 5s". Empty disables the broadcast.
	Schedule string `yaml:"schedule"`
}

// CORS configures cross-origin access to the API routes.
type CORS struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	MaxAge         int      `yaml:"max_age"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Address:         ":8080",
		ShutdownTimeout: 30 * time.Second,
		Log:             Log{Level: "info", Format: "json"},
		Limits: Limits{
			MaxRequestBodySize: 16 * 1024,
			MaxUploadSize:      2 * 1024 * 1024,
			ChunkSize:          8 * 1024,
			StreamChunkSize:    1024,
		},
		Auth:    Auth{Realm: "Login Required", FailureMessage: "Unauthorized"},
		Static:  Static{URI: "/", DefaultFile: "index.html"},
		Uploads: Uploads{Dir: "uploads"},
	}
}

// Load reads and parses the YAML file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRead, err)
	}
	return Parse(data)
}

// Parse decodes YAML over Default, expanding ${VAR} references from the
// environment first. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	expanded := os.ExpandEnv(string(data))
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []error

	if c.Address == "" {
		errs = append(errs, errors.New("address is required"))
	}
	if c.Limits.MaxRequestBodySize <= 0 {
		errs = append(errs, errors.New("limits.max_request_body_size must be positive"))
	}
	if c.Limits.MaxUploadSize <= 0 {
		errs = append(errs, errors.New("limits.max_upload_size must be positive"))
	}
	if c.Limits.ChunkSize <= 0 || c.Limits.StreamChunkSize <= 0 {
		errs = append(errs, errors.New("limits chunk sizes must be positive"))
	}

	switch strings.ToLower(c.Auth.Mode) {
	case AuthNone:
	case AuthBasic, AuthDigest:
		if c.Auth.Username == "" {
			errs = append(errs, errors.New("auth.username is required when auth is enabled"))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.mode %q is not one of basic, digest", c.Auth.Mode))
	}

	if c.Uploads.S3.Bucket != "" {
		if err := c.Uploads.S3.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("uploads.s3: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}
