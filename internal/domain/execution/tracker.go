package execution

import (
	"fmt"
	"sync"
	"time"

	jsonx "taskguard/internal/shared/json"
)

// DefaultCostPerToken is the rate applied to the token estimate in reports.
const DefaultCostPerToken = 0.00002

// TaskMetrics holds the aggregate counters of a tracker.
type TaskMetrics struct {
	Completed      int
	Failed         int
	TotalTokens    int
	TotalExecution float64 // seconds, successful tasks only
}

// PerformanceReport is derived from TaskMetrics at a point in time.
type PerformanceReport struct {
	SuccessRate       float64
	AvgTaskDuration   float64
	TotalCostEstimate float64
	TotalTasks        int
	Completed         int
	Failed            int
}

// FormattedSuccessRate renders the success rate as a percentage with two decimals.
func (r PerformanceReport) FormattedSuccessRate() string {
	return fmt.Sprintf("%.2f%%", r.SuccessRate*100)
}

// Map returns the flat report surface consumed by reporting layers.
func (r PerformanceReport) Map() map[string]any {
	return map[string]any{
		"success_rate":        r.FormattedSuccessRate(),
		"avg_task_duration":   r.AvgTaskDuration,
		"total_cost_estimate": r.TotalCostEstimate,
		"total_tasks":         r.TotalTasks,
		"completed":           r.Completed,
		"failed":              r.Failed,
	}
}

func (r PerformanceReport) MarshalJSON() ([]byte, error) {
	return jsonx.Marshal(r.Map())
}

// Monitor receives exactly one outcome per executor invocation.
type Monitor interface {
	RecordSuccess(taskID string, duration time.Duration, tokens int)
	RecordFailure(taskID string)
}

// Tracker aggregates task outcomes for a session. It keeps no per-task ledger.
type Tracker struct {
	mu           sync.Mutex
	metrics      TaskMetrics
	costPerToken float64
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithCostPerToken overrides DefaultCostPerToken. Negative rates are ignored.
func WithCostPerToken(rate float64) TrackerOption {
	return func(t *Tracker) {
		if rate >= 0 {
			t.costPerToken = rate
		}
	}
}

func NewTracker(opts ...TrackerOption) *Tracker {
	t := &Tracker{costPerToken: DefaultCostPerToken}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RecordSuccess counts a completed task. Negative inputs are clamped to zero.
func (t *Tracker) RecordSuccess(_ string, duration time.Duration, tokens int) {
	if duration < 0 {
		duration = 0
	}
	if tokens < 0 {
		tokens = 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.metrics.Completed++
	t.metrics.TotalTokens += tokens
	t.metrics.TotalExecution += duration.Seconds()
}

// RecordFailure counts a task that reached a terminal failure.
func (t *Tracker) RecordFailure(_ string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.metrics.Failed++
}

// Snapshot returns a copy of the raw counters.
func (t *Tracker) Snapshot() TaskMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.metrics
}

// Summarize derives a report from the current counters. Rates are zero when
// nothing has run.
func (t *Tracker) Summarize() PerformanceReport {
	m := t.Snapshot()
	total := m.Completed + m.Failed

	report := PerformanceReport{
		TotalCostEstimate: float64(m.TotalTokens) * t.costPerToken,
		TotalTasks:        total,
		Completed:         m.Completed,
		Failed:            m.Failed,
	}
	if total > 0 {
		report.SuccessRate = float64(m.Completed) / float64(total)
	}
	if m.Completed > 0 {
		report.AvgTaskDuration = m.TotalExecution / float64(m.Completed)
	}
	return report
}
