package config

import (
	"time"

	"github.com/labelmint/mintflow/workflow"
)

// DefaultConfig returns the configuration used when no file or
// environment overrides are present.
func DefaultConfig() *Config {
	return &Config{
		Engine:    DefaultEngineConfig(),
		Storage:   DefaultStorageConfig(),
		HTTP:      DefaultHTTPConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultEngineConfig returns the default engine tuning.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxParallel:         16,
		DefaultTimeout:      10 * time.Minute,
		DefaultMaxAttempts:  3,
		DefaultBackoff:      string(workflow.BackoffExponential),
		DefaultInitialDelay: time.Second,
	}
}

// DefaultStorageConfig returns the default storage configuration. The
// memory driver keeps single-process runs dependency-free.
func DefaultStorageConfig() StorageConfig {
	return StorageConfig{
		Driver: "memory",
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			PoolSize:  10,
			KeyPrefix: "mintflow:",
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			Host:            "localhost",
			Port:            5432,
			User:            "mintflow",
			Name:            "mintflow",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: time.Hour,
		},
	}
}

// DefaultHTTPConfig returns the default outbound caller tuning.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Timeout: 30 * time.Second,
		RPS:     10,
		Burst:   20,
	}
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig returns the default telemetry configuration.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "mintflow",
		SampleRate:   1.0,
	}
}
