package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingStore struct {
	mu      sync.Mutex
	loads   int
	saves   int
	cp      *Checkpoint
	loadErr error
}

func (s *recordingStore) Save(_ context.Context, cp *Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	s.cp = cp
	return nil
}

func (s *recordingStore) Load(_ context.Context, _ string) (*Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.cp, nil
}

func (s *recordingStore) Delete(_ context.Context, _ string) error {
	return nil
}

type recordingMonitor struct {
	successes []time.Duration
	tokens    []int
	failures  []string
}

func (m *recordingMonitor) RecordSuccess(_ string, duration time.Duration, tokens int) {
	m.successes = append(m.successes, duration)
	m.tokens = append(m.tokens, tokens)
}

func (m *recordingMonitor) RecordFailure(taskID string) {
	m.failures = append(m.failures, taskID)
}

type recordingRecorder struct {
	attempts   []string
	recoveries []bool
	tasks      []string
}

func (r *recordingRecorder) ObserveAttempt(_ string, outcome string) {
	r.attempts = append(r.attempts, outcome)
}

func (r *recordingRecorder) ObserveRecovery(_ string, found bool) {
	r.recoveries = append(r.recoveries, found)
}

func (r *recordingRecorder) ObserveTask(_ string, status string, _ time.Duration, _ int) {
	r.tasks = append(r.tasks, status)
}

type manualClock struct {
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Unix(1700000000, 0)}
}

func (c *manualClock) Now() time.Time { return c.now }

func (c *manualClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestExecuteWithRecovery_FirstAttemptSucceeds(t *testing.T) {
	store := &recordingStore{}
	monitor := &recordingMonitor{}
	exec := NewExecutor(monitor, store)

	want := map[string]any{"company": "Acme"}
	calls := 0
	got, err := exec.ExecuteWithRecovery(context.Background(), func(context.Context) (any, error) {
		calls++
		return want, nil
	}, "research_phase", 3)

	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, 1, calls)
	assert.Len(t, monitor.successes, 1)
	assert.Empty(t, monitor.failures)
	assert.Zero(t, store.loads)
	assert.Zero(t, store.saves)
}

func TestExecuteWithRecovery_RecoversAfterThrownFailures(t *testing.T) {
	store := &recordingStore{}
	monitor := &recordingMonitor{}
	exec := NewExecutor(monitor, store)

	calls := 0
	got, err := exec.ExecuteWithRecovery(context.Background(), func(context.Context) (any, error) {
		calls++
		if calls < 3 {
			return nil, fmt.Errorf("attempt %d failed", calls)
		}
		return "third", nil
	}, "analysis_phase", 3)

	require.NoError(t, err)
	assert.Equal(t, "third", got)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, store.loads)
	assert.Len(t, monitor.successes, 1)
	assert.Empty(t, monitor.failures)
}

func TestExecuteWithRecovery_PropagatesLastError(t *testing.T) {
	store := &recordingStore{}
	monitor := &recordingMonitor{}
	exec := NewExecutor(monitor, store)

	errs := []error{errors.New("first"), errors.New("second"), errors.New("third")}
	calls := 0
	_, err := exec.ExecuteWithRecovery(context.Background(), func(context.Context) (any, error) {
		e := errs[calls]
		calls++
		return nil, e
	}, "synthesis_phase", 3)

	require.Error(t, err)
	assert.True(t, err == errs[2], "expected the third error unwrapped, got %v", err)
	assert.False(t, errors.Is(err, ErrExhaustedRetries))
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, store.loads)
	assert.Equal(t, []string{"synthesis_phase"}, monitor.failures)
	assert.Empty(t, monitor.successes)
}

func TestExecuteWithRecovery_InvalidResultsExhaustRetries(t *testing.T) {
	store := &recordingStore{cp: &Checkpoint{ID: "cp", TaskID: "empty"}}
	monitor := &recordingMonitor{}
	exec := NewExecutor(monitor, store)

	calls := 0
	_, err := exec.ExecuteWithRecovery(context.Background(), func(context.Context) (any, error) {
		calls++
		return map[string]any{}, nil
	}, "empty", 2)

	require.ErrorIs(t, err, ErrExhaustedRetries)
	assert.Contains(t, err.Error(), "empty")
	assert.Equal(t, 2, calls)
	assert.Zero(t, store.loads, "validation failures must not consult checkpoints")
	assert.Equal(t, []string{"empty"}, monitor.failures)
	assert.Empty(t, monitor.successes)
}

func TestExecuteWithRecovery_InvalidThenValid(t *testing.T) {
	monitor := &recordingMonitor{}
	store := &recordingStore{}
	exec := NewExecutor(monitor, store)

	calls := 0
	got, err := exec.ExecuteWithRecovery(context.Background(), func(context.Context) (any, error) {
		calls++
		if calls == 1 {
			return nil, nil
		}
		return []string{}, nil
	}, "task", 2)

	require.NoError(t, err)
	assert.Equal(t, []string{}, got)
	assert.Zero(t, store.loads)
	assert.Len(t, monitor.successes, 1)
}

func TestExecuteWithRecovery_RejectsNonPositiveRetries(t *testing.T) {
	for _, retries := range []int{0, -1} {
		t.Run(fmt.Sprint(retries), func(t *testing.T) {
			tracker := NewTracker()
			exec := NewExecutor(tracker, &recordingStore{})
			calls := 0
			_, err := exec.ExecuteWithRecovery(context.Background(), func(context.Context) (any, error) {
				calls++
				return "x", nil
			}, "task", retries)

			require.ErrorIs(t, err, ErrInvalidMaxRetries)
			assert.Zero(t, calls)
			assert.Equal(t, TaskMetrics{}, tracker.Snapshot())
		})
	}
}

func TestExecuteWithRecovery_PanicsBecomeErrors(t *testing.T) {
	store := &recordingStore{}
	monitor := &recordingMonitor{}
	exec := NewExecutor(monitor, store)

	_, err := exec.ExecuteWithRecovery(context.Background(), func(context.Context) (any, error) {
		panic("kaboom")
	}, "panicky", 2)

	var panicErr *PanicError
	require.ErrorAs(t, err, &panicErr)
	assert.Equal(t, "panicky", panicErr.TaskID)
	assert.Equal(t, "kaboom", panicErr.Value)
	assert.NotEmpty(t, panicErr.Stack)
	assert.Equal(t, 1, store.loads)
	assert.Len(t, monitor.failures, 1)
}

func TestExecuteWithRecovery_RestoredCheckpointReachesNextAttempt(t *testing.T) {
	cp, err := NewCheckpoint("research", map[string]string{"company": "Acme"}, time.Now())
	require.NoError(t, err)
	store := &recordingStore{cp: cp}

	var hooked *Checkpoint
	exec := NewExecutor(NewTracker(), store, WithRecoveryHook(func(_ context.Context, c *Checkpoint) {
		hooked = c
	}))

	var seen []bool
	got, err := exec.ExecuteWithRecovery(context.Background(), func(ctx context.Context) (any, error) {
		restored, ok := RecoveredFromContext(ctx)
		seen = append(seen, ok)
		if !ok {
			return nil, errors.New("not yet")
		}
		var data map[string]string
		if err := restored.Decode(&data); err != nil {
			return nil, err
		}
		return data, nil
	}, "research", 3)

	require.NoError(t, err)
	assert.Equal(t, map[string]string{"company": "Acme"}, got)
	assert.Equal(t, []bool{false, true}, seen)
	assert.Same(t, cp, hooked)
}

func TestExecuteWithRecovery_LookupErrorDoesNotStopRetry(t *testing.T) {
	store := &recordingStore{loadErr: errors.New("disk gone")}
	exec := NewExecutor(NewTracker(), store)

	calls := 0
	got, err := exec.ExecuteWithRecovery(context.Background(), func(context.Context) (any, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("flaky")
		}
		return 42, nil
	}, "task", 2)

	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 1, store.loads)
}

func TestExecuteWithRecovery_NilStoreSkipsLookup(t *testing.T) {
	exec := NewExecutor(NewTracker(), nil)
	calls := 0
	got, err := exec.ExecuteWithRecovery(context.Background(), func(context.Context) (any, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("flaky")
		}
		return "ok", nil
	}, "task", 2)

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}

func TestExecuteWithRecovery_DurationSpansWholeInvocation(t *testing.T) {
	clock := newManualClock()
	monitor := &recordingMonitor{}
	exec := NewExecutor(monitor, &recordingStore{}, WithClock(clock.Now))

	calls := 0
	_, err := exec.ExecuteWithRecovery(context.Background(), func(context.Context) (any, error) {
		calls++
		clock.Advance(2 * time.Second)
		if calls < 3 {
			return nil, errors.New("retry me")
		}
		return map[string]string{"company": "Acme"}, nil
	}, "task", 3)

	require.NoError(t, err)
	require.Len(t, monitor.successes, 1)
	assert.Equal(t, 6*time.Second, monitor.successes[0])
	// {"company":"Acme"} is 18 characters.
	assert.Equal(t, []int{4}, monitor.tokens)
}

func TestExecuteWithRecovery_ReportsToRecorder(t *testing.T) {
	recorder := &recordingRecorder{}
	store := &recordingStore{cp: &Checkpoint{ID: "cp-1", TaskID: "task"}}
	exec := NewExecutor(NewTracker(), store, WithRecorder(recorder))

	calls := 0
	_, err := exec.ExecuteWithRecovery(context.Background(), func(context.Context) (any, error) {
		calls++
		switch calls {
		case 1:
			return nil, errors.New("boom")
		case 2:
			return map[string]int{}, nil
		default:
			return "done", nil
		}
	}, "task", 3)

	require.NoError(t, err)
	assert.Equal(t, []string{"thrown", "invalid", "valid"}, recorder.attempts)
	assert.Equal(t, []bool{true}, recorder.recoveries)
	assert.Equal(t, []string{StatusSucceeded}, recorder.tasks)
}

func TestExecuteWithRecovery_CancelledDuringBackoff(t *testing.T) {
	monitor := &recordingMonitor{}
	exec := NewExecutor(monitor, &recordingStore{}, WithBackoff(func() backoff.BackOff {
		return backoff.NewConstantBackOff(time.Hour)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	_, err := exec.ExecuteWithRecovery(ctx, func(context.Context) (any, error) {
		calls++
		cancel()
		return nil, errors.New("boom")
	}, "task", 3)

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
	assert.Len(t, monitor.failures, 1)
}

func TestExecuteWithRecovery_BackoffBetweenAttempts(t *testing.T) {
	exec := NewExecutor(NewTracker(), nil, WithBackoff(func() backoff.BackOff {
		return backoff.NewConstantBackOff(time.Millisecond)
	}))

	calls := 0
	got, err := exec.ExecuteWithRecovery(context.Background(), func(context.Context) (any, error) {
		calls++
		if calls < 2 {
			return nil, errors.New("again")
		}
		return true, nil
	}, "task", 2)

	require.NoError(t, err)
	assert.Equal(t, true, got)
}

func TestExecuteCommandUsesName(t *testing.T) {
	monitor := &recordingMonitor{}
	exec := NewExecutor(monitor, nil)

	type args struct{ Company, Industry string }
	cmd := Bind("research_phase", args{"Acme", "SaaS"}, func(_ context.Context, a args) (any, error) {
		return map[string]string{"company": a.Company, "industry": a.Industry}, nil
	})

	got, err := exec.ExecuteCommand(context.Background(), cmd, 1)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"company": "Acme", "industry": "SaaS"}, got)
	assert.Equal(t, "research_phase", cmd.Name())

	failing := NewCommand("never", func(context.Context) (any, error) { return nil, nil })
	_, err = exec.ExecuteCommand(context.Background(), failing, 1)
	require.ErrorIs(t, err, ErrExhaustedRetries)
	assert.Equal(t, []string{"never"}, monitor.failures)
}

func TestRunReturnsTypedResult(t *testing.T) {
	exec := NewExecutor(NewTracker(), nil)

	got, err := Run(context.Background(), exec, "typed", 1, func(context.Context) (map[string]int, error) {
		return map[string]int{"a": 1}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, got["a"])

	_, err = Run(context.Background(), exec, "typed-empty", 1, func(context.Context) (map[string]int, error) {
		return nil, nil
	})
	require.ErrorIs(t, err, ErrExhaustedRetries)
}
