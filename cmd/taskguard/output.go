package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"taskguard/internal/app/analysis"
	"taskguard/internal/infra/checkpoint"
)

var (
	green = color.New(color.FgGreen).SprintFunc()
	red   = color.New(color.FgRed).SprintFunc()
	cyan  = color.New(color.FgCyan).SprintFunc()
	gray  = color.New(color.FgHiBlack).SprintFunc()
	bold  = color.New(color.Bold).SprintFunc()
)

const rule = "============================================================"

func errorLine(msg string) string   { return red("Error: " + msg) }
func successLine(msg string) string { return green(msg) }

func printBanner(w io.Writer, title string) {
	fmt.Fprintf(w, "\n%s\n%s\n%s\n\n", gray(rule), bold(title), gray(rule))
}

// printSummary renders the run outcome and the performance report.
func printSummary(w io.Writer, s *analysis.Summary, runErr error) {
	fmt.Fprintln(w, gray(rule))
	if runErr != nil {
		fmt.Fprintln(w, red(fmt.Sprintf("Analysis failed: %v", runErr)))
	} else {
		fmt.Fprintln(w, successLine("Analysis Complete!"))
	}
	fmt.Fprintln(w, gray(rule))

	field := func(name, value string) {
		fmt.Fprintf(w, "%-16s %s\n", cyan(name+":"), value)
	}
	field("Status", s.Status)
	if s.ReportPath != "" {
		field("Report", s.ReportPath)
	}
	if s.Summary != "" {
		field("Summary", s.Summary)
	}
	if len(s.Phases) > 0 {
		field("Phases", strings.Join(s.Phases, " -> "))
	}
	field("Execution Time", s.Elapsed)

	p := s.Performance
	field("Success Rate", p.FormattedSuccessRate())
	field("Tasks", fmt.Sprintf("%d total, %d completed, %d failed", p.TotalTasks, p.Completed, p.Failed))
	field("Avg Duration", fmt.Sprintf("%.3fs", p.AvgTaskDuration))
	field("Cost Estimate", fmt.Sprintf("$%.5f", p.TotalCostEstimate))
	fmt.Fprintln(w, gray(rule))
}

func printCheckpoints(w io.Writer, dir string, entries []checkpoint.Entry) {
	if len(entries) == 0 {
		fmt.Fprintf(w, "No checkpoints in %s\n", dir)
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PHASE\tCREATED\tFILE")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.TaskID, e.CreatedAt.Local().Format(time.DateTime), e.Path)
	}
	tw.Flush()
}
