package execution

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"taskguard/internal/shared/logging"
	tokenutil "taskguard/internal/shared/token"
)

const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Recorder receives per-attempt and per-task observations, typically for
// Prometheus export.
type Recorder interface {
	ObserveAttempt(taskID string, outcome string)
	ObserveRecovery(taskID string, found bool)
	ObserveTask(taskID string, status string, duration time.Duration, tokens int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveAttempt(string, string)                  {}
func (nopRecorder) ObserveRecovery(string, bool)                   {}
func (nopRecorder) ObserveTask(string, string, time.Duration, int) {}

// RecoveryHook is called when a checkpoint is found after a failed attempt.
type RecoveryHook func(ctx context.Context, cp *Checkpoint)

type recoveredKey struct{}

// RecoveredFromContext returns the checkpoint restored before the current
// attempt, if any. Operations use it to resume from prior progress.
func RecoveredFromContext(ctx context.Context) (*Checkpoint, bool) {
	cp, ok := ctx.Value(recoveredKey{}).(*Checkpoint)
	return cp, ok && cp != nil
}

// Executor supervises operations through a bounded retry loop with
// checkpoint-assisted recovery. Every invocation reports exactly one outcome
// to its Monitor.
type Executor struct {
	monitor    Monitor
	store      CheckpointStore
	validator  Validator
	estimator  tokenutil.Estimator
	recorder   Recorder
	logger     logging.Logger
	tracer     trace.Tracer
	hook       RecoveryHook
	newBackoff func() backoff.BackOff
	now        func() time.Time
}

// Option configures an Executor.
type Option func(*Executor)

func WithValidator(v Validator) Option {
	return func(e *Executor) {
		if v != nil {
			e.validator = v
		}
	}
}

func WithEstimator(est tokenutil.Estimator) Option {
	return func(e *Executor) {
		if est != nil {
			e.estimator = est
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(e *Executor) {
		if r != nil {
			e.recorder = r
		}
	}
}

func WithLogger(logger logging.Logger) Option {
	return func(e *Executor) {
		e.logger = logging.OrNop(logger)
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Executor) {
		if tracer != nil {
			e.tracer = tracer
		}
	}
}

func WithRecoveryHook(hook RecoveryHook) Option {
	return func(e *Executor) {
		e.hook = hook
	}
}

// WithBackoff waits between attempts using a fresh policy per invocation.
func WithBackoff(factory func() backoff.BackOff) Option {
	return func(e *Executor) {
		e.newBackoff = factory
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		if now != nil {
			e.now = now
		}
	}
}

// NewExecutor builds an executor reporting to monitor. store may be nil, in
// which case thrown failures are retried without a checkpoint lookup. A nil
// monitor gets a private Tracker.
func NewExecutor(monitor Monitor, store CheckpointStore, opts ...Option) *Executor {
	e := &Executor{
		monitor:   monitor,
		store:     store,
		validator: DefaultValidator,
		estimator: tokenutil.CharEstimator{},
		recorder:  nopRecorder{},
		logger:    logging.Nop(),
		tracer:    otel.Tracer("taskguard/execution"),
		now:       time.Now,
	}
	if e.monitor == nil {
		e.monitor = NewTracker()
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExecuteCommand runs cmd with its name as the task identifier.
func (e *Executor) ExecuteCommand(ctx context.Context, cmd Command, maxRetries int) (any, error) {
	return e.ExecuteWithRecovery(ctx, cmd.Run, cmd.Name(), maxRetries)
}

// ExecuteWithRecovery attempts op up to maxRetries times.
//
// A valid result is returned immediately. An invalid result is retried
// without consulting checkpoints; when the last attempt is invalid the call
// fails with ErrExhaustedRetries. A thrown error looks up the checkpoint for
// taskID before the next attempt; when the last attempt throws, that error
// is returned as is.
func (e *Executor) ExecuteWithRecovery(ctx context.Context, op Operation, taskID string, maxRetries int) (any, error) {
	if maxRetries <= 0 {
		return nil, fmt.Errorf("%w: got %d for %s", ErrInvalidMaxRetries, maxRetries, taskID)
	}

	ctx, span := e.tracer.Start(ctx, "execution.task", trace.WithAttributes(
		attribute.String("task.id", taskID),
		attribute.Int("task.max_retries", maxRetries),
	))
	defer span.End()

	start := e.now()
	var policy backoff.BackOff
	if e.newBackoff != nil {
		policy = e.newBackoff()
		policy.Reset()
	}

	attemptCtx := ctx
	for attempt := 1; attempt <= maxRetries; attempt++ {
		last := attempt == maxRetries
		e.logger.Info("Executing %s (attempt %d/%d)", taskID, attempt, maxRetries)

		outcome := e.attempt(attemptCtx, op, taskID)
		e.recorder.ObserveAttempt(taskID, outcome.Kind.String())
		span.AddEvent("attempt", trace.WithAttributes(
			attribute.Int("attempt", attempt),
			attribute.String("outcome", outcome.Kind.String()),
		))

		switch outcome.Kind {
		case OutcomeValid:
			elapsed := e.now().Sub(start)
			tokens := e.estimator.Estimate(outcome.Result)
			e.monitor.RecordSuccess(taskID, elapsed, tokens)
			e.recorder.ObserveTask(taskID, StatusSucceeded, elapsed, tokens)
			span.SetAttributes(attribute.Int("task.attempts", attempt), attribute.Int("task.tokens", tokens))
			span.SetStatus(codes.Ok, "")
			return outcome.Result, nil

		case OutcomeInvalid:
			e.logger.Warn("Result validation failed for %s, attempt %d/%d: %s", taskID, attempt, maxRetries, outcome.Reason)
			if last {
				e.logger.Error("Max retries exceeded for %s without successful execution", taskID)
				err := fmt.Errorf("%w: %s after %d attempts", ErrExhaustedRetries, taskID, maxRetries)
				e.fail(span, taskID, start, err)
				return nil, err
			}
			attemptCtx = ctx

		case OutcomeThrown:
			e.logger.Warn("Execution error on attempt %d for %s: %v", attempt, taskID, outcome.Err)
			if last {
				e.fail(span, taskID, start, outcome.Err)
				return nil, outcome.Err
			}
			attemptCtx = ctx
			if cp := e.restore(ctx, taskID); cp != nil {
				attemptCtx = context.WithValue(ctx, recoveredKey{}, cp)
			}
		}

		if err := e.wait(ctx, policy); err != nil {
			err = fmt.Errorf("%s stopped after attempt %d: %w", taskID, attempt, err)
			e.fail(span, taskID, start, err)
			return nil, err
		}
	}
	// maxRetries > 0 guarantees the loop returns.
	return nil, fmt.Errorf("%w: %s", ErrExhaustedRetries, taskID)
}

// attempt runs op once and classifies the outcome. Panics become PanicError.
func (e *Executor) attempt(ctx context.Context, op Operation, taskID string) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Thrown(&PanicError{TaskID: taskID, Value: r, Stack: debug.Stack()})
		}
	}()

	result, err := op(ctx)
	if err != nil {
		return Thrown(err)
	}
	if ok, reason := e.validator(result); !ok {
		return Invalid(result, reason)
	}
	return Valid(result)
}

// restore looks up the checkpoint for taskID. Lookup errors are logged and
// do not stop the retry.
func (e *Executor) restore(ctx context.Context, taskID string) *Checkpoint {
	if e.store == nil {
		return nil
	}
	cp, err := e.store.Load(ctx, taskID)
	if err != nil {
		e.logger.Warn("Checkpoint lookup failed for %s: %v", taskID, err)
		e.recorder.ObserveRecovery(taskID, false)
		return nil
	}
	e.recorder.ObserveRecovery(taskID, cp != nil)
	if cp == nil {
		return nil
	}
	e.logger.Info("Restored checkpoint for %s", taskID)
	trace.SpanFromContext(ctx).AddEvent("checkpoint.restored", trace.WithAttributes(
		attribute.String("checkpoint.id", cp.ID),
	))
	if e.hook != nil {
		e.hook(ctx, cp)
	}
	return cp
}

func (e *Executor) wait(ctx context.Context, policy backoff.BackOff) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if policy == nil {
		return nil
	}
	delay := policy.NextBackOff()
	if delay == backoff.Stop || delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Executor) fail(span trace.Span, taskID string, start time.Time, err error) {
	e.monitor.RecordFailure(taskID)
	e.recorder.ObserveTask(taskID, StatusFailed, e.now().Sub(start), 0)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// Run is a typed wrapper around ExecuteWithRecovery.
func Run[T any](ctx context.Context, e *Executor, taskID string, maxRetries int, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	result, err := e.ExecuteWithRecovery(ctx, func(ctx context.Context) (any, error) {
		return fn(ctx)
	}, taskID, maxRetries)
	if err != nil {
		return zero, err
	}
	typed, ok := result.(T)
	if !ok {
		return zero, fmt.Errorf("%s returned %T", taskID, result)
	}
	return typed, nil
}
