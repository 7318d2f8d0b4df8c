package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"taskguard/internal/app/pipeline"
	"taskguard/internal/domain/execution"
	"taskguard/internal/shared/logging"
)

const (
	PhaseResearch  = "research"
	PhaseAnalysis  = "analysis"
	PhaseSynthesis = "synthesis"

	FindingsFile = pipeline.DirResearch + "/findings.json"
	AnalysisFile = pipeline.DirAnalysis + "/competitive_analysis.json"
	ReportFile   = pipeline.DirOutputs + "/competitive_analysis_report.md"

	executiveSummary = "Comprehensive competitive analysis completed successfully."
)

// ErrInjectedFailure is returned by phases forced to fail via
// Request.FailAttempts.
var ErrInjectedFailure = errors.New("injected phase failure")

type Findings struct {
	Company      string    `json:"company"`
	Industry     string    `json:"industry"`
	Competitors  []string  `json:"competitors"`
	MarketTrends []string  `json:"market_trends"`
	Timestamp    time.Time `json:"timestamp"`
}

type CompetitiveAnalysis struct {
	SWOTAnalyses      []map[string]any `json:"swot_analyses"`
	FeatureMatrix     map[string]any   `json:"feature_matrix"`
	PricingAnalysis   map[string]any   `json:"pricing_analysis"`
	MarketPositioning map[string]any   `json:"market_positioning"`
	Timestamp         time.Time        `json:"timestamp"`
}

type Report struct {
	Company          string    `json:"company"`
	ExecutiveSummary string    `json:"executive_summary"`
	ReportGenerated  bool      `json:"report_generated"`
	Timestamp        time.Time `json:"timestamp"`
}

// Summary is what Analyze hands back to the caller.
type Summary struct {
	Status      string                      `json:"status"`
	ReportPath  string                      `json:"report_path"`
	Summary     string                      `json:"summary"`
	Phases      []string                    `json:"phases"`
	Elapsed     string                      `json:"execution_time"`
	Performance execution.PerformanceReport `json:"performance"`
}

// Agent drives the three analysis phases over a workspace.
type Agent struct {
	ws     *pipeline.Workspace
	runner *pipeline.Runner
	logger logging.Logger
	now    func() time.Time

	mu       sync.Mutex
	attempts map[string]int
}

type AgentOption func(*Agent)

func WithLogger(logger logging.Logger) AgentOption {
	return func(a *Agent) { a.logger = logging.OrNop(logger) }
}

func WithClock(now func() time.Time) AgentOption {
	return func(a *Agent) {
		if now != nil {
			a.now = now
		}
	}
}

func NewAgent(ws *pipeline.Workspace, runner *pipeline.Runner, opts ...AgentOption) (*Agent, error) {
	if ws == nil || runner == nil {
		return nil, errors.New("analysis agent needs a workspace and a runner")
	}
	a := &Agent{
		ws:       ws,
		runner:   runner,
		logger:   logging.Nop(),
		now:      time.Now,
		attempts: make(map[string]int),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Analyze runs research, analysis and synthesis for req. On failure the
// returned Summary carries the partial run and the error names the phase.
func (a *Agent) Analyze(ctx context.Context, req Request) (*Summary, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	a.logger.Info("Starting competitive analysis for %s in %s", req.Company, req.Industry)

	result, err := a.runner.Run(ctx, a.Phases(req)...)
	if result == nil {
		return nil, err
	}
	summary := &Summary{
		Status:      result.Status,
		Phases:      result.Phases,
		Elapsed:     result.ExecutionTime(),
		Performance: result.Performance,
	}
	if err != nil {
		a.logger.Error("Analysis failed: %v", err)
		return summary, err
	}
	summary.ReportPath = a.ws.Path(ReportFile)
	if report, ok := result.Outputs[PhaseSynthesis].(Report); ok {
		summary.Summary = report.ExecutiveSummary
	}
	a.logger.Info("Analysis complete in %s, success rate %s", summary.Elapsed, summary.Performance.FormattedSuccessRate())
	return summary, nil
}

// Phases returns the pipeline for req in execution order.
func (a *Agent) Phases(req Request) []pipeline.Phase {
	return []pipeline.Phase{
		a.phase(req, PhaseResearch, func(ctx context.Context) (any, error) { return a.research(ctx, req) }),
		a.phase(req, PhaseAnalysis, func(ctx context.Context) (any, error) { return a.analyze(ctx) }),
		a.phase(req, PhaseSynthesis, func(ctx context.Context) (any, error) { return a.synthesize(ctx, req) }),
	}
}

func (a *Agent) phase(req Request, name string, op execution.Operation) pipeline.Phase {
	failures := req.FailAttempts[name]
	return pipeline.NewPhase(name, func(ctx context.Context) (any, error) {
		if n := a.nextAttempt(name); n <= failures {
			return nil, fmt.Errorf("%w: %s attempt %d", ErrInjectedFailure, name, n)
		}
		return op(ctx)
	}, req.Retries)
}

func (a *Agent) nextAttempt(name string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.attempts[name]++
	return a.attempts[name]
}

// research gathers findings. A restored checkpoint for the same company is
// reused instead of starting over.
func (a *Agent) research(ctx context.Context, req Request) (Findings, error) {
	findings := Findings{
		Company:      req.Company,
		Industry:     req.Industry,
		Competitors:  []string{},
		MarketTrends: []string{},
		Timestamp:    a.now().UTC(),
	}
	if cp, ok := execution.RecoveredFromContext(ctx); ok {
		var prior Findings
		if err := cp.Decode(&prior); err == nil && prior.Company == req.Company {
			a.logger.Info("Resuming research from checkpoint %s", cp.ID)
			findings = prior
		}
	}

	path, err := a.ws.WriteJSON(FindingsFile, findings)
	if err != nil {
		return Findings{}, err
	}
	a.logger.Info("Research phase completed: %s", path)
	return findings, nil
}

func (a *Agent) analyze(context.Context) (CompetitiveAnalysis, error) {
	var findings Findings
	if err := a.ws.ReadJSON(FindingsFile, &findings); err != nil {
		return CompetitiveAnalysis{}, err
	}

	out := CompetitiveAnalysis{
		SWOTAnalyses:      make([]map[string]any, 0, len(findings.Competitors)),
		FeatureMatrix:     map[string]any{},
		PricingAnalysis:   map[string]any{},
		MarketPositioning: map[string]any{},
		Timestamp:         a.now().UTC(),
	}
	for _, competitor := range findings.Competitors {
		out.SWOTAnalyses = append(out.SWOTAnalyses, map[string]any{"competitor": competitor})
	}

	path, err := a.ws.WriteJSON(AnalysisFile, out)
	if err != nil {
		return CompetitiveAnalysis{}, err
	}
	a.logger.Info("Analysis phase completed: %s", path)
	return out, nil
}

func (a *Agent) synthesize(_ context.Context, req Request) (Report, error) {
	var findings Findings
	if err := a.ws.ReadJSON(FindingsFile, &findings); err != nil {
		return Report{}, err
	}
	var analysis CompetitiveAnalysis
	if err := a.ws.ReadJSON(AnalysisFile, &analysis); err != nil {
		return Report{}, err
	}

	report := Report{
		Company:          req.Company,
		ExecutiveSummary: executiveSummary,
		ReportGenerated:  true,
		Timestamp:        a.now().UTC(),
	}
	path, err := a.ws.WriteFile(ReportFile, []byte(renderReport(findings, analysis, report)))
	if err != nil {
		return Report{}, err
	}
	a.logger.Info("Synthesis phase completed: %s", path)
	return report, nil
}

func renderReport(findings Findings, analysis CompetitiveAnalysis, report Report) string {
	var b strings.Builder
	b.WriteString("# Competitive Analysis Report\n\n")
	fmt.Fprintf(&b, "%s, %s\n\n", findings.Company, findings.Industry)
	b.WriteString("## Executive Summary\n\n")
	b.WriteString(report.ExecutiveSummary + "\n")
	if len(findings.Competitors) > 0 {
		b.WriteString("\n## Competitors\n\n")
		for _, c := range findings.Competitors {
			fmt.Fprintf(&b, "- %s\n", c)
		}
	}
	if len(analysis.SWOTAnalyses) > 0 {
		fmt.Fprintf(&b, "\n%d SWOT analyses attached.\n", len(analysis.SWOTAnalyses))
	}
	return b.String()
}
