// Package observability wires Prometheus collectors and OpenTelemetry tracing
// for supervised task execution.
package observability

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"taskguard/internal/shared/logging"
)

const (
	namespace = "taskguard"
	subsystem = "execution"
)

// Metrics exposes Prometheus collectors that report executor activity. A nil
// *Metrics is safe to use and records nothing.
type Metrics struct {
	attempts   *prometheus.CounterVec
	tasks      *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	recoveries *prometheus.CounterVec
	tokens     *prometheus.CounterVec
}

// MustNewMetrics registers the executor collectors with reg. Collectors that
// are already registered are reused so repeated construction against the same
// registry does not panic; any other registration error does.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "attempts_total",
			Help:      "Attempts made per task, labelled by attempt outcome.",
		}, []string{"task", "outcome"}),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tasks_total",
			Help:      "Supervised task invocations by final status.",
		}, []string{"task", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "task_duration_seconds",
			Help:      "Wall-clock time of a supervised invocation across all attempts.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"task", "status"}),
		recoveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "recoveries_total",
			Help:      "Checkpoint lookups after a failed attempt, labelled by whether one was found.",
		}, []string{"task", "found"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "estimated_tokens_total",
			Help:      "Estimated tokens of accepted results.",
		}, []string{"task"}),
	}

	m.attempts = registerCounter(reg, m.attempts)
	m.tasks = registerCounter(reg, m.tasks)
	m.recoveries = registerCounter(reg, m.recoveries)
	m.tokens = registerCounter(reg, m.tokens)
	if err := reg.Register(m.duration); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			panic(err)
		}
		m.duration = already.ExistingCollector.(*prometheus.HistogramVec)
	}
	return m
}

func registerCounter(reg prometheus.Registerer, c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			return already.ExistingCollector.(*prometheus.CounterVec)
		}
		panic(err)
	}
	return c
}

// ObserveAttempt counts one attempt with its outcome kind.
func (m *Metrics) ObserveAttempt(taskID string, outcome string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(taskID, outcome).Inc()
}

// ObserveRecovery counts a checkpoint lookup.
func (m *Metrics) ObserveRecovery(taskID string, found bool) {
	if m == nil {
		return
	}
	m.recoveries.WithLabelValues(taskID, strconv.FormatBool(found)).Inc()
}

// ObserveTask records the final status of one invocation.
func (m *Metrics) ObserveTask(taskID string, status string, duration time.Duration, tokens int) {
	if m == nil {
		return
	}
	m.tasks.WithLabelValues(taskID, status).Inc()
	m.duration.WithLabelValues(taskID, status).Observe(duration.Seconds())
	if tokens > 0 {
		m.tokens.WithLabelValues(taskID).Add(float64(tokens))
	}
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled. It returns nil on a
// clean shutdown.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, logger logging.Logger) error {
	logger = logging.OrNop(logger)
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(g))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Metrics listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Metrics server shutdown: %v", err)
			return err
		}
		return nil
	}
}
