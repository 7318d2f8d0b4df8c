package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// FlagBindings maps config keys (dotted, e.g. "logging.level") to flag names.
type FlagBindings map[string]string

// Load resolves the configuration. When path is empty, taskguard.yaml is
// searched in the working directory and $HOME/.taskguard, and a missing file
// is not an error. An explicit path must exist. Flags in bindings that were
// set on the command line override every other source.
func Load(path string, flags *pflag.FlagSet, bindings FlagBindings) (Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("taskguard")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.taskguard")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	if flags != nil {
		for key, name := range bindings {
			flag := flags.Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("workspace", d.Workspace)
	v.SetDefault("engine.max_retries", d.Engine.MaxRetries)
	v.SetDefault("engine.cost_per_token", d.Engine.CostPerToken)
	v.SetDefault("engine.estimator", d.Engine.Estimator)
	v.SetDefault("engine.backoff.initial", d.Engine.Backoff.Initial)
	v.SetDefault("engine.backoff.max", d.Engine.Backoff.Max)
	v.SetDefault("engine.backoff.multiplier", d.Engine.Backoff.Multiplier)
	v.SetDefault("checkpoint.kind", d.Checkpoint.Kind)
	v.SetDefault("checkpoint.dir", d.Checkpoint.Dir)
	v.SetDefault("checkpoint.cache_size", d.Checkpoint.CacheSize)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.zipkin_endpoint", d.Tracing.ZipkinEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
}

func (c *Config) normalize() {
	c.Workspace = strings.TrimSpace(c.Workspace)
	c.Engine.Estimator = strings.ToLower(strings.TrimSpace(c.Engine.Estimator))
	c.Checkpoint.Kind = strings.ToLower(strings.TrimSpace(c.Checkpoint.Kind))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Tracing.Exporter = strings.ToLower(strings.TrimSpace(c.Tracing.Exporter))
}
