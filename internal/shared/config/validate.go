package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ValidationIssue is a single blocking finding.
type ValidationIssue struct {
	Key     string
	Message string
}

func (i ValidationIssue) Error() string {
	return fmt.Sprintf("%s: %s", i.Key, i.Message)
}

// Issues lists every problem with c.
func (c Config) Issues() []ValidationIssue {
	var issues []ValidationIssue
	add := func(key, format string, args ...any) {
		issues = append(issues, ValidationIssue{Key: key, Message: fmt.Sprintf(format, args...)})
	}

	if c.Workspace == "" {
		add("workspace", "must not be empty")
	}
	if c.Engine.MaxRetries <= 0 {
		add("engine.max_retries", "must be positive, got %d", c.Engine.MaxRetries)
	}
	if c.Engine.CostPerToken < 0 {
		add("engine.cost_per_token", "must not be negative")
	}
	switch c.Engine.Estimator {
	case EstimatorChars, EstimatorTiktoken:
	default:
		add("engine.estimator", "unknown estimator %q", c.Engine.Estimator)
	}
	if b := c.Engine.Backoff; b.Enabled() {
		if b.Max < b.Initial {
			add("engine.backoff.max", "must be at least engine.backoff.initial")
		}
		if b.Multiplier < 1 {
			add("engine.backoff.multiplier", "must be >= 1")
		}
	}
	switch c.Checkpoint.Kind {
	case CheckpointKindFile, CheckpointKindMemory:
	default:
		add("checkpoint.kind", "unknown store %q", c.Checkpoint.Kind)
	}
	if c.Checkpoint.CacheSize < 0 {
		add("checkpoint.cache_size", "must not be negative")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		add("logging.level", "unknown level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		add("logging.format", "unknown format %q", c.Logging.Format)
	}
	if c.Tracing.Enabled {
		switch c.Tracing.Exporter {
		case "otlp", "zipkin":
		default:
			add("tracing.exporter", "unsupported exporter %q", c.Tracing.Exporter)
		}
	}
	return issues
}

// Validate returns every issue joined into one error, or nil.
func (c Config) Validate() error {
	issues := c.Issues()
	if len(issues) == 0 {
		return nil
	}
	errs := make([]error, 0, len(issues))
	for _, issue := range issues {
		errs = append(errs, issue)
	}
	return fmt.Errorf("invalid config: %w", errors.Join(errs...))
}

// CheckpointDir returns the configured checkpoint directory, falling back to
// <workspace>/checkpoints.
func (c Config) CheckpointDir() string {
	if dir := strings.TrimSpace(c.Checkpoint.Dir); dir != "" {
		return dir
	}
	return filepath.Join(c.Workspace, "checkpoints")
}
