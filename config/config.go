package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/labelmint/mintflow/integrations"
	"github.com/labelmint/mintflow/persistence"
	"github.com/labelmint/mintflow/workflow"
)

// Config is the complete mintflow configuration.
type Config struct {
	// Engine tunes the execution engine
	Engine EngineConfig `yaml:"engine" env:"ENGINE"`

	// Storage selects the execution trace store
	Storage StorageConfig `yaml:"storage" env:"STORAGE"`

	// HTTP tunes the outbound integration caller
	HTTP HTTPConfig `yaml:"http" env:"HTTP"`

	// Notify maps notification channels to webhook endpoints
	Notify NotifyConfig `yaml:"notify" env:"NOTIFY"`

	// Log configures logging
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry configures tracing and metrics export
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// EngineConfig tunes the scheduler and the per-definition defaults
// applied when a definition leaves a setting unset.
type EngineConfig struct {
	// MaxParallel bounds how many nodes of one execution run at once
	MaxParallel int `yaml:"max_parallel" env:"MAX_PARALLEL"`
	// DefaultTimeout is the execution budget for definitions without one
	DefaultTimeout time.Duration `yaml:"default_timeout" env:"DEFAULT_TIMEOUT"`
	// DefaultMaxAttempts and friends seed the retry policy
	DefaultMaxAttempts  int           `yaml:"default_max_attempts" env:"DEFAULT_MAX_ATTEMPTS"`
	DefaultBackoff      string        `yaml:"default_backoff" env:"DEFAULT_BACKOFF"`
	DefaultInitialDelay time.Duration `yaml:"default_initial_delay" env:"DEFAULT_INITIAL_DELAY"`
}

// StorageConfig selects and configures the execution store.
type StorageConfig struct {
	// Driver is memory, redis or database
	Driver   string         `yaml:"driver" env:"DRIVER"`
	Redis    RedisConfig    `yaml:"redis" env:"REDIS"`
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`
}

// RedisConfig configures the redis store.
type RedisConfig struct {
	Addr      string        `yaml:"addr" env:"ADDR"`
	Password  string        `yaml:"password" env:"PASSWORD"`
	DB        int           `yaml:"db" env:"DB"`
	PoolSize  int           `yaml:"pool_size" env:"POOL_SIZE"`
	KeyPrefix string        `yaml:"key_prefix" env:"KEY_PREFIX"`
	TTL       time.Duration `yaml:"ttl" env:"TTL"`
}

// DatabaseConfig configures the relational store.
type DatabaseConfig struct {
	// Driver is postgres, mysql or sqlite
	Driver          string        `yaml:"driver" env:"DRIVER"`
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	User            string        `yaml:"user" env:"USER"`
	Password        string        `yaml:"password" env:"PASSWORD"`
	Name            string        `yaml:"name" env:"NAME"`
	SSLMode         string        `yaml:"ssl_mode" env:"SSL_MODE"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// HTTPConfig tunes the outbound HTTP caller.
type HTTPConfig struct {
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// RPS <= 0 disables rate limiting
	RPS   float64 `yaml:"rps" env:"RPS"`
	Burst int     `yaml:"burst" env:"BURST"`
	// Circuit breaker tuning, per upstream host
	BreakerFailureThreshold int           `yaml:"breaker_failure_threshold" env:"BREAKER_FAILURE_THRESHOLD"`
	BreakerCooldown         time.Duration `yaml:"breaker_cooldown" env:"BREAKER_COOLDOWN"`
	BreakerProbes           int           `yaml:"breaker_probes" env:"BREAKER_PROBES"`
}

// NotifyConfig maps channel names to webhook endpoints for the
// notification collaborator.
type NotifyConfig struct {
	// Webhooks is keyed by channel name, e.g. "ops" or "labeling-alerts"
	Webhooks map[string]string `yaml:"webhooks" env:"-"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is debug, info, warn or error
	Level string `yaml:"level" env:"LEVEL"`
	// Format is json or console
	Format           string   `yaml:"format" env:"FORMAT"`
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// Validate checks configuration consistency, collecting every problem
// found.
func (c *Config) Validate() error {
	var errs []string

	if c.Engine.MaxParallel <= 0 {
		errs = append(errs, "engine.max_parallel must be positive")
	}
	if c.Engine.DefaultMaxAttempts <= 0 {
		errs = append(errs, "engine.default_max_attempts must be positive")
	}
	switch c.Engine.DefaultBackoff {
	case string(workflow.BackoffFixed), string(workflow.BackoffExponential):
	default:
		errs = append(errs, "engine.default_backoff must be fixed or exponential")
	}

	switch c.Storage.Driver {
	case "", "memory":
	case "redis":
		if c.Storage.Redis.Addr == "" {
			errs = append(errs, "storage.redis.addr is required for the redis driver")
		}
	case "database":
		switch c.Storage.Database.Driver {
		case "postgres", "mysql", "sqlite":
		default:
			errs = append(errs, "storage.database.driver must be postgres, mysql or sqlite")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown storage driver %q", c.Storage.Driver))
	}

	if c.Telemetry.Enabled && c.Telemetry.OTLPEndpoint == "" {
		errs = append(errs, "telemetry.otlp_endpoint is required when telemetry is enabled")
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, "telemetry.sample_rate must be between 0 and 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// DSN returns the connection string for the configured driver.
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}

// RetryPolicy converts the engine defaults into a workflow retry
// policy.
func (e *EngineConfig) RetryPolicy() workflow.RetryPolicy {
	return workflow.RetryPolicy{
		MaxAttempts:  e.DefaultMaxAttempts,
		Backoff:      workflow.BackoffType(e.DefaultBackoff),
		InitialDelay: workflow.Duration(e.DefaultInitialDelay),
	}
}

// StoreOptions converts the storage section to persistence options.
func (s *StorageConfig) StoreOptions() persistence.Options {
	return persistence.Options{
		Driver: s.Driver,
		Redis: persistence.RedisOptions{
			Addr:      s.Redis.Addr,
			Password:  s.Redis.Password,
			DB:        s.Redis.DB,
			PoolSize:  s.Redis.PoolSize,
			KeyPrefix: s.Redis.KeyPrefix,
			TTL:       s.Redis.TTL,
		},
		Database: persistence.DatabaseOptions{
			Driver:          s.Database.Driver,
			DSN:             s.Database.DSN(),
			MaxOpenConns:    s.Database.MaxOpenConns,
			MaxIdleConns:    s.Database.MaxIdleConns,
			ConnMaxLifetime: s.Database.ConnMaxLifetime,
		},
	}
}

// CallerConfig converts the http section to the integrations caller
// tuning.
func (h *HTTPConfig) CallerConfig() integrations.CallerConfig {
	cfg := integrations.DefaultCallerConfig()
	if h.Timeout > 0 {
		cfg.Timeout = h.Timeout
	}
	cfg.RPS = h.RPS
	cfg.Burst = h.Burst
	if h.BreakerFailureThreshold > 0 {
		cfg.Breaker.FailureThreshold = h.BreakerFailureThreshold
	}
	if h.BreakerCooldown > 0 {
		cfg.Breaker.RecoveryTimeout = h.BreakerCooldown
	}
	if h.BreakerProbes > 0 {
		cfg.Breaker.HalfOpenMaxProbes = h.BreakerProbes
	}
	return cfg
}
