package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"taskguard/internal/domain/execution"
	"taskguard/internal/shared/logging"
)

const (
	StatusComplete = "complete"
	StatusFailed   = "failed"

	defaultRetries = 3
)

// Phase is one named step. Retries <= 0 uses the runner default.
type Phase struct {
	execution.Command
	Retries int
}

// NewPhase binds op to name.
func NewPhase(name string, op execution.Operation, retries int) Phase {
	return Phase{Command: execution.NewCommand(name, op), Retries: retries}
}

// Reporter summarizes aggregate execution metrics.
type Reporter interface {
	Summarize() execution.PerformanceReport
}

// Result describes a pipeline run. On failure Outputs holds the phases that
// completed before FailedPhase.
type Result struct {
	Status      string                      `json:"status"`
	Phases      []string                    `json:"phases"`
	Outputs     map[string]any              `json:"-"`
	FailedPhase string                      `json:"failed_phase,omitempty"`
	Performance execution.PerformanceReport `json:"performance"`
	Elapsed     time.Duration               `json:"-"`
}

// ExecutionTime formats Elapsed in seconds with two decimals.
func (r *Result) ExecutionTime() string {
	return fmt.Sprintf("%.2fs", r.Elapsed.Seconds())
}

// Runner executes phases in order through an Executor.
type Runner struct {
	executor *execution.Executor
	reporter Reporter
	store    execution.CheckpointStore
	logger   logging.Logger
	tracer   trace.Tracer
	retries  int
	now      func() time.Time
}

type RunnerOption func(*Runner)

func WithLogger(logger logging.Logger) RunnerOption {
	return func(r *Runner) { r.logger = logging.OrNop(logger) }
}

func WithTracer(tracer trace.Tracer) RunnerOption {
	return func(r *Runner) {
		if tracer != nil {
			r.tracer = tracer
		}
	}
}

// WithDefaultRetries sets the attempt bound for phases that leave Retries
// unset.
func WithDefaultRetries(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.retries = n
		}
	}
}

func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRunner wires a runner. store may be nil, in which case no checkpoints
// are written; reporter may be nil, in which case Performance stays zero.
func NewRunner(executor *execution.Executor, reporter Reporter, store execution.CheckpointStore, opts ...RunnerOption) (*Runner, error) {
	if executor == nil {
		return nil, errors.New("pipeline runner needs an executor")
	}
	r := &Runner{
		executor: executor,
		reporter: reporter,
		store:    store,
		logger:   logging.Nop(),
		tracer:   otel.Tracer("taskguard/pipeline"),
		retries:  defaultRetries,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run executes phases in order. Each phase that validates is checkpointed
// under its name. The first terminal failure stops the run; the returned
// Result is still populated and the error names the failed phase.
func (r *Runner) Run(ctx context.Context, phases ...Phase) (*Result, error) {
	ctx, span := r.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.Int("pipeline.phases", len(phases)),
	))
	defer span.End()

	start := r.now()
	result := &Result{Outputs: make(map[string]any, len(phases))}
	finish := func(status string) {
		result.Status = status
		result.Elapsed = r.now().Sub(start)
		if r.reporter != nil {
			result.Performance = r.reporter.Summarize()
		}
	}

	for _, phase := range phases {
		if phase.Command == nil {
			err := errors.New("pipeline phase has no command")
			finish(StatusFailed)
			span.SetStatus(codes.Error, err.Error())
			return result, err
		}
		name := phase.Name()
		retries := phase.Retries
		if retries <= 0 {
			retries = r.retries
		}

		output, err := r.executor.ExecuteCommand(ctx, phase.Command, retries)
		if err != nil {
			result.FailedPhase = name
			finish(StatusFailed)
			r.logger.Error("Phase %s failed: %v", name, err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return result, fmt.Errorf("phase %s: %w", name, err)
		}

		result.Phases = append(result.Phases, name)
		result.Outputs[name] = output
		r.checkpoint(ctx, name, output)
		r.logger.Info("Phase %s completed", name)
	}

	finish(StatusComplete)
	span.SetStatus(codes.Ok, "")
	return result, nil
}

// checkpoint saves output for name. A failed save is logged and does not
// fail the phase that already succeeded.
func (r *Runner) checkpoint(ctx context.Context, name string, output any) {
	if r.store == nil {
		return
	}
	cp, err := execution.NewCheckpoint(name, output, r.now())
	if err == nil {
		err = r.store.Save(ctx, cp)
	}
	if err != nil {
		r.logger.Warn("Checkpoint for %s not saved: %v", name, err)
		return
	}
	r.logger.Info("Checkpoint created: %s", name)
}
