// Package config loads runtime settings from defaults, an optional YAML file,
// TASKGUARD_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"time"
)

const (
	EnvPrefix = "TASKGUARD"

	CheckpointKindFile   = "file"
	CheckpointKindMemory = "memory"

	EstimatorChars    = "chars"
	EstimatorTiktoken = "tiktoken"
)

// Config is the full runtime configuration.
type Config struct {
	Workspace  string           `mapstructure:"workspace" yaml:"workspace"`
	Engine     EngineConfig     `mapstructure:"engine" yaml:"engine"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint" yaml:"checkpoint"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
	Tracing    TracingConfig    `mapstructure:"tracing" yaml:"tracing"`
}

// EngineConfig tunes the retry executor.
type EngineConfig struct {
	MaxRetries   int           `mapstructure:"max_retries" yaml:"max_retries"`
	CostPerToken float64       `mapstructure:"cost_per_token" yaml:"cost_per_token"`
	Estimator    string        `mapstructure:"estimator" yaml:"estimator"`
	Backoff      BackoffConfig `mapstructure:"backoff" yaml:"backoff"`
}

// BackoffConfig enables exponential waits between attempts when Initial > 0.
type BackoffConfig struct {
	Initial    time.Duration `mapstructure:"initial" yaml:"initial"`
	Max        time.Duration `mapstructure:"max" yaml:"max"`
	Multiplier float64       `mapstructure:"multiplier" yaml:"multiplier"`
}

// Enabled reports whether attempts should be spaced out.
func (b BackoffConfig) Enabled() bool { return b.Initial > 0 }

type CheckpointConfig struct {
	Kind      string `mapstructure:"kind" yaml:"kind"` // file, memory
	Dir       string `mapstructure:"dir" yaml:"dir"`   // defaults to <workspace>/checkpoints
	CacheSize int    `mapstructure:"cache_size" yaml:"cache_size"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig exposes Prometheus metrics on Addr when it is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

type TracingConfig struct {
	Enabled        bool    `mapstructure:"enabled" yaml:"enabled"`
	Exporter       string  `mapstructure:"exporter" yaml:"exporter"`
	OTLPEndpoint   string  `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint"`
	ZipkinEndpoint string  `mapstructure:"zipkin_endpoint" yaml:"zipkin_endpoint"`
	SampleRate     float64 `mapstructure:"sample_rate" yaml:"sample_rate"`
	ServiceName    string  `mapstructure:"service_name" yaml:"service_name"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Workspace: "workspace",
		Engine: EngineConfig{
			MaxRetries:   3,
			CostPerToken: 0.00002,
			Estimator:    EstimatorChars,
			Backoff: BackoffConfig{
				Max:        5 * time.Second,
				Multiplier: 2,
			},
		},
		Checkpoint: CheckpointConfig{
			Kind:      CheckpointKindFile,
			CacheSize: 64,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Tracing: TracingConfig{
			Exporter:    "otlp",
			SampleRate:  1.0,
			ServiceName: "taskguard",
		},
	}
}
