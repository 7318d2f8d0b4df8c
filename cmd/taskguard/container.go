package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"taskguard/internal/app/pipeline"
	"taskguard/internal/domain/execution"
	"taskguard/internal/infra/checkpoint"
	"taskguard/internal/infra/filestore"
	"taskguard/internal/infra/observability"
	"taskguard/internal/shared/config"
	"taskguard/internal/shared/logging"
	tokenutil "taskguard/internal/shared/token"
)

// Container holds the wired runtime for one CLI invocation.
type Container struct {
	Config    config.Config
	Logger    logging.Logger
	Workspace *pipeline.Workspace
	Store     execution.CheckpointStore
	Files     *checkpoint.FileStore
	Tracker   *execution.Tracker
	Registry  *prometheus.Registry
	Metrics   *observability.Metrics
	Tracing   *observability.TracerProvider
	Executor  *execution.Executor
	Runner    *pipeline.Runner

	logOutput io.Writer
}

func buildContainer(ctx context.Context, cfg config.Config, logOutput io.Writer) (*Container, error) {
	c := &Container{Config: cfg, logOutput: logOutput}
	c.Logger = c.componentLogger("taskguard")

	ws, err := pipeline.NewWorkspace(cfg.Workspace)
	if err != nil {
		return nil, err
	}
	c.Workspace = ws

	if err := c.buildStore(); err != nil {
		return nil, err
	}

	c.Registry = prometheus.NewRegistry()
	c.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	c.Metrics = observability.MustNewMetrics(c.Registry)

	c.Tracing, err = observability.NewTracerProvider(ctx, observability.TracingConfig{
		Enabled:        cfg.Tracing.Enabled,
		Exporter:       cfg.Tracing.Exporter,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		ZipkinEndpoint: cfg.Tracing.ZipkinEndpoint,
		SampleRate:     cfg.Tracing.SampleRate,
		ServiceName:    cfg.Tracing.ServiceName,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	c.Tracker = execution.NewTracker(execution.WithCostPerToken(cfg.Engine.CostPerToken))
	opts := []execution.Option{
		execution.WithEstimator(tokenutil.NewEstimator(cfg.Engine.Estimator)),
		execution.WithRecorder(c.Metrics),
		execution.WithLogger(c.componentLogger("executor")),
		execution.WithTracer(c.Tracing.Tracer()),
	}
	if b := cfg.Engine.Backoff; b.Enabled() {
		opts = append(opts, execution.WithBackoff(func() backoff.BackOff {
			policy := backoff.NewExponentialBackOff()
			policy.InitialInterval = b.Initial
			policy.MaxInterval = b.Max
			policy.Multiplier = b.Multiplier
			policy.MaxElapsedTime = 0
			return policy
		}))
	}
	c.Executor = execution.NewExecutor(c.Tracker, c.Store, opts...)

	c.Runner, err = pipeline.NewRunner(c.Executor, c.Tracker, c.Store,
		pipeline.WithLogger(c.componentLogger("pipeline")),
		pipeline.WithTracer(c.Tracing.Tracer()),
		pipeline.WithDefaultRetries(cfg.Engine.MaxRetries),
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Container) buildStore() error {
	var base execution.CheckpointStore
	switch c.Config.Checkpoint.Kind {
	case config.CheckpointKindMemory:
		base = checkpoint.NewMemoryStore()
	default:
		dir := filestore.ResolvePath(c.Config.Checkpoint.Dir, c.Workspace.CheckpointDir())
		files, err := checkpoint.NewFileStore(dir)
		if err != nil {
			return fmt.Errorf("open checkpoint store: %w", err)
		}
		c.Files = files
		base = files
	}

	cached, err := checkpoint.NewCachedStore(base, c.Config.Checkpoint.CacheSize)
	if err != nil {
		return err
	}
	c.Store = cached
	return nil
}

func (c *Container) componentLogger(component string) logging.Logger {
	return logging.New(logging.Config{
		Level:  c.Config.Logging.Level,
		Format: c.Config.Logging.Format,
		Output: c.logOutput,
	}, component)
}

// Shutdown flushes tracing.
func (c *Container) Shutdown(ctx context.Context) error {
	var errs []error
	if c.Tracing != nil {
		if err := c.Tracing.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracing: %w", err))
		}
	}
	return errors.Join(errs...)
}
