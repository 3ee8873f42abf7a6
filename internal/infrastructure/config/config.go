package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/fx"
)

// Collector protocols
const (
	ProtocolGRPC = "grpc"
	ProtocolHTTP = "http"
	ProtocolLog  = "log"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig
	Service    ServiceConfig
	Logging    LogConfig
	Tracing    TracingConfig
	Downstream DownstreamConfig
	RateLimit  RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	Host string `envconfig:"HOST" default:"127.0.0.1"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// ServiceConfig describes this process to the collector.
type ServiceConfig struct {
	Name        string `envconfig:"SERVICE_NAME" default:"greeter"`
	Version     string `envconfig:"SERVICE_VERSION" default:"0.1.0"`
	Environment string `envconfig:"APP_ENV" default:"development"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// TracingConfig holds span export configuration.
type TracingConfig struct {
	Enabled       bool          `envconfig:"TRACING_ENABLED" default:"true"`
	Protocol      string        `envconfig:"TRACING_PROTOCOL" default:"grpc"`
	Endpoint      string        `envconfig:"TRACING_ENDPOINT"`
	Token         string        `envconfig:"TRACING_TOKEN"`
	Insecure      bool          `envconfig:"TRACING_INSECURE" default:"false"`
	Sampler       string        `envconfig:"TRACING_SAMPLER" default:"parentbased_always_on"`
	SamplerArg    string        `envconfig:"TRACING_SAMPLER_ARG" default:"1.0"`
	BatchSize     int           `envconfig:"TRACING_BATCH_SIZE" default:"512"`
	FlushInterval time.Duration `envconfig:"TRACING_FLUSH_INTERVAL" default:"5s"`
	ExportTimeout time.Duration `envconfig:"TRACING_EXPORT_TIMEOUT" default:"10s"`
	MaxRetries    uint64        `envconfig:"TRACING_MAX_RETRIES" default:"5"`
	RetryInitial  time.Duration `envconfig:"TRACING_RETRY_INITIAL" default:"100ms"`
	RetryMax      time.Duration `envconfig:"TRACING_RETRY_MAX" default:"5s"`
	QueueWarnSize int           `envconfig:"TRACING_QUEUE_WARN" default:"10000"`
}

// DownstreamConfig names the next service in the call chain.
type DownstreamConfig struct {
	URL string `envconfig:"DOWNSTREAM_URL"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// ConfigurationError reports a missing or malformed setting. It is fatal at
// startup.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}

// Load loads configuration from environment variables and validates it.
func Load() (*Config, error) {
	var cfg Config
	// Sections are processed one by one so keys are not prefixed with the
	// section name.
	sections := []any{&cfg.Server, &cfg.Service, &cfg.Logging, &cfg.Tracing, &cfg.Downstream, &cfg.RateLimit}
	for _, section := range sections {
		if err := envconfig.Process("", section); err != nil {
			var parseErr *envconfig.ParseError
			if errors.As(err, &parseErr) {
				return nil, &ConfigurationError{Field: parseErr.KeyName, Reason: parseErr.Err.Error()}
			}
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns default configuration with tracing disabled.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8080",
			Host: "127.0.0.1",
		},
		Service: ServiceConfig{
			Name:        "greeter",
			Version:     "0.1.0",
			Environment: "development",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		Tracing: TracingConfig{
			Enabled:       false,
			Protocol:      ProtocolGRPC,
			Sampler:       "parentbased_always_on",
			SamplerArg:    "1.0",
			BatchSize:     512,
			FlushInterval: 5 * time.Second,
			ExportTimeout: 10 * time.Second,
			MaxRetries:    5,
			RetryInitial:  100 * time.Millisecond,
			RetryMax:      5 * time.Second,
			QueueWarnSize: 10000,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}

// Validate checks cross-field constraints. The collector credential is
// only required while tracing is enabled.
func (c *Config) Validate() error {
	if c.Service.Name == "" {
		return &ConfigurationError{Field: "SERVICE_NAME", Reason: "must not be empty"}
	}
	if c.Downstream.URL != "" {
		if u, err := url.Parse(c.Downstream.URL); err != nil || u.Scheme == "" || u.Host == "" {
			return &ConfigurationError{Field: "DOWNSTREAM_URL", Reason: "must be an absolute URL"}
		}
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		return &ConfigurationError{Field: "RATE_LIMIT_RPS", Reason: "rate and burst must be positive when rate limiting is enabled"}
	}
	if !c.Tracing.Enabled {
		return nil
	}
	return c.Tracing.validate()
}

func (t *TracingConfig) validate() error {
	switch t.Protocol {
	case ProtocolGRPC, ProtocolHTTP:
		if t.Endpoint == "" {
			return &ConfigurationError{Field: "TRACING_ENDPOINT", Reason: "required when tracing is enabled"}
		}
		if t.Token == "" {
			return &ConfigurationError{Field: "TRACING_TOKEN", Reason: "required when tracing is enabled"}
		}
		if strings.ContainsAny(t.Token, " \t\r\n") {
			return &ConfigurationError{Field: "TRACING_TOKEN", Reason: "must not contain whitespace"}
		}
	case ProtocolLog:
	default:
		return &ConfigurationError{Field: "TRACING_PROTOCOL", Reason: fmt.Sprintf("unknown protocol %q", t.Protocol)}
	}

	if t.BatchSize <= 0 {
		return &ConfigurationError{Field: "TRACING_BATCH_SIZE", Reason: "must be positive"}
	}
	if t.FlushInterval <= 0 {
		return &ConfigurationError{Field: "TRACING_FLUSH_INTERVAL", Reason: "must be positive"}
	}
	if t.ExportTimeout <= 0 {
		return &ConfigurationError{Field: "TRACING_EXPORT_TIMEOUT", Reason: "must be positive"}
	}
	if t.RetryInitial <= 0 || t.RetryMax < t.RetryInitial {
		return &ConfigurationError{Field: "TRACING_RETRY_MAX", Reason: "must be at least TRACING_RETRY_INITIAL"}
	}
	return nil
}

// Module provides *Config and its sections to the fx graph.
var Module = fx.Module("config",
	fx.Provide(
		Load,
		func(c *Config) ServerConfig { return c.Server },
		func(c *Config) ServiceConfig { return c.Service },
		func(c *Config) LogConfig { return c.Logging },
		func(c *Config) TracingConfig { return c.Tracing },
		func(c *Config) DownstreamConfig { return c.Downstream },
		func(c *Config) RateLimitConfig { return c.RateLimit },
	),
)
